package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalResolver serves references from files on the local filesystem.
// This is intended for development and testing only.
//
// Values are stored one per file:
//
//	<base_dir>/
//	  <vault>/<item>/<field>
type LocalResolver struct {
	baseDir string
	logger  *slog.Logger
}

// NewLocalResolver creates a file-backed resolver.
// If baseDir is empty, it defaults to ~/.fleet/secrets.
func NewLocalResolver(baseDir string, logger *slog.Logger) (*LocalResolver, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".fleet", "secrets")
	}

	logger.Info("using local secret store", "path", baseDir)

	return &LocalResolver{baseDir: baseDir, logger: logger}, nil
}

// Resolve reads <base_dir>/<vault>/<item>/<field> and trims trailing newlines.
func (r *LocalResolver) Resolve(_ context.Context, s string) (string, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.baseDir, ref.Vault, ref.Item, ref.Field)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("secret %s not found", ref)
		}
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

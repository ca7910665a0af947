package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// itemReader is the subset of the Connect client the resolver needs.
type itemReader interface {
	GetItemsByTitle(title string, vaultQuery string) ([]onepassword.Item, error)
	GetItem(itemQuery string, vaultQuery string) (*onepassword.Item, error)
}

// OnePasswordResolver resolves references through the 1Password Connect API.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: vault used when a reference names the "default" vault
type OnePasswordResolver struct {
	client  itemReader
	vaultID string
	logger  *slog.Logger

	// Resolved values are cached for the life of the process.
	mu    sync.RWMutex
	cache map[string]string
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// DefaultVault is the vault segment that maps to OnePasswordConfig.VaultID.
const DefaultVault = "default"

// NewOnePasswordResolver creates a resolver backed by 1Password Connect.
func NewOnePasswordResolver(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordResolver, error) {
	if cfg.Host == "" || cfg.Token == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host and token are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "fleet-control-plane")
	return newOnePasswordResolver(client, cfg.VaultID, logger), nil
}

func newOnePasswordResolver(client itemReader, vaultID string, logger *slog.Logger) *OnePasswordResolver {
	return &OnePasswordResolver{
		client:  client,
		vaultID: vaultID,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Resolve returns the value of the referenced item field. The field segment
// matches either the field ID or its label, case-insensitively.
func (r *OnePasswordResolver) Resolve(ctx context.Context, s string) (string, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	if v, ok := r.cache[ref.String()]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	vault := ref.Vault
	if vault == DefaultVault {
		if r.vaultID == "" {
			return "", fmt.Errorf("reference %s uses the default vault but OP_VAULT_ID is not set", ref)
		}
		vault = r.vaultID
	}

	items, err := r.client.GetItemsByTitle(ref.Item, vault)
	if err != nil {
		return "", fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("item %q not found in vault %q", ref.Item, ref.Vault)
	}

	// Get the full item (including fields)
	item, err := r.client.GetItem(items[0].ID, vault)
	if err != nil {
		return "", fmt.Errorf("getting item: %w", err)
	}

	value, ok := fieldValue(item, ref.Field)
	if !ok {
		return "", fmt.Errorf("field %q not found on item %q", ref.Field, ref.Item)
	}

	r.mu.Lock()
	r.cache[ref.String()] = value
	r.mu.Unlock()

	r.logger.Debug("resolved secret reference", "vault", ref.Vault, "item", ref.Item, "field", ref.Field)
	return value, nil
}

func fieldValue(item *onepassword.Item, name string) (string, bool) {
	for _, field := range item.Fields {
		if field == nil {
			continue
		}
		if strings.EqualFold(field.ID, name) || strings.EqualFold(field.Label, name) {
			return field.Value, true
		}
	}
	return "", false
}

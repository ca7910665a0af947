// Package secrets resolves secret references used in configuration.
//
// A reference has the form op://<vault>/<item>/<field>. The primary backend
// reads items through 1Password Connect; a local directory backend serves the
// same references during development.
package secrets

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix is the scheme every secret reference starts with.
const RefPrefix = "op://"

// Ref identifies a single field of a vault item.
type Ref struct {
	Vault string
	Item  string
	Field string
}

// String returns the op:// form of the reference.
func (r Ref) String() string {
	return RefPrefix + r.Vault + "/" + r.Item + "/" + r.Field
}

// ParseRef parses op://vault/item/field.
func ParseRef(s string) (Ref, error) {
	if !strings.HasPrefix(s, RefPrefix) {
		return Ref{}, fmt.Errorf("secret reference must start with %s", RefPrefix)
	}
	parts := strings.Split(strings.TrimPrefix(s, RefPrefix), "/")
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("secret reference must be op://vault/item/field, got %q", s)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Ref{}, fmt.Errorf("secret reference has an empty segment: %q", s)
		}
		if p == "." || p == ".." {
			return Ref{}, fmt.Errorf("secret reference has an invalid segment: %q", s)
		}
	}
	return Ref{Vault: parts[0], Item: parts[1], Field: parts[2]}, nil
}

// Resolver looks up the value behind a secret reference.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

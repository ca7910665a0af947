package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/1Password/connect-sdk-go/onepassword"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		input   string
		want    Ref
		wantErr bool
	}{
		{"op://fleet/postgres/url", Ref{"fleet", "postgres", "url"}, false},
		{"op://default/redis/password", Ref{"default", "redis", "password"}, false},
		{"postgres://localhost", Ref{}, true},
		{"op://fleet/postgres", Ref{}, true},
		{"op://fleet/postgres/url/extra", Ref{}, true},
		{"op://fleet//url", Ref{}, true},
		{"op://../postgres/url", Ref{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestLocalResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet", "postgres", "url")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("postgres://secret/fleet\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := NewLocalResolver(dir, testLogger())
	if err != nil {
		t.Fatalf("NewLocalResolver: %v", err)
	}

	got, err := r.Resolve(context.Background(), "op://fleet/postgres/url")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://secret/fleet" {
		t.Errorf("Resolve = %q", got)
	}

	if _, err := r.Resolve(context.Background(), "op://fleet/redis/url"); err == nil {
		t.Error("expected error for missing secret")
	}
}

type fakeItems struct {
	items map[string]*onepassword.Item // keyed by vault + "/" + title
	calls int
	err   error
}

func (f *fakeItems) GetItemsByTitle(title, vault string) ([]onepassword.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[vault+"/"+title]
	if !ok {
		return nil, nil
	}
	return []onepassword.Item{{ID: item.ID, Title: item.Title}}, nil
}

func (f *fakeItems) GetItem(id, vault string) (*onepassword.Item, error) {
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, errors.New("404 not found")
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: map[string]*onepassword.Item{
		"vault-uuid/postgres": {
			ID:    "item-1",
			Title: "postgres",
			Fields: []*onepassword.ItemField{
				{ID: "username", Label: "username", Value: "fleet"},
				{ID: "abc123", Label: "URL", Value: "postgres://vaulted/fleet"},
			},
		},
	}}
}

func TestOnePasswordResolver(t *testing.T) {
	client := newFakeItems()
	r := newOnePasswordResolver(client, "vault-uuid", testLogger())
	ctx := context.Background()

	got, err := r.Resolve(ctx, "op://default/postgres/url")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://vaulted/fleet" {
		t.Errorf("Resolve = %q", got)
	}

	// Second lookup is served from cache.
	if _, err := r.Resolve(ctx, "op://default/postgres/url"); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Errorf("GetItemsByTitle called %d times, want 1", client.calls)
	}

	got, err = r.Resolve(ctx, "op://vault-uuid/postgres/username")
	if err != nil {
		t.Fatalf("Resolve by field ID: %v", err)
	}
	if got != "fleet" {
		t.Errorf("Resolve = %q, want fleet", got)
	}
}

func TestOnePasswordResolverErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		vaultID string
		ref     string
		err     error
	}{
		{"missing item", "vault-uuid", "op://vault-uuid/redis/url", nil},
		{"missing field", "vault-uuid", "op://vault-uuid/postgres/password", nil},
		{"default vault unset", "", "op://default/postgres/url", nil},
		{"client error", "vault-uuid", "op://vault-uuid/postgres/url", errors.New("connection refused")},
		{"bad reference", "vault-uuid", "postgres://x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeItems()
			client.err = tt.err
			r := newOnePasswordResolver(client, tt.vaultID, testLogger())
			if _, err := r.Resolve(ctx, tt.ref); err == nil {
				t.Errorf("expected error resolving %s", tt.ref)
			}
		})
	}
}

func TestNewResolver(t *testing.T) {
	logger := testLogger()

	r, err := NewResolver(Config{Backend: "auto", LocalDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("auto backend: %v", err)
	}
	if _, ok := r.(*LocalResolver); !ok {
		t.Errorf("auto without Connect host should be local, got %T", r)
	}

	r, err = NewResolver(Config{
		Backend:     "auto",
		OnePassword: OnePasswordConfig{Host: "http://connect:8080", Token: "tok"},
	}, logger)
	if err != nil {
		t.Fatalf("auto backend with Connect: %v", err)
	}
	if _, ok := r.(*OnePasswordResolver); !ok {
		t.Errorf("auto with Connect host should be 1Password, got %T", r)
	}

	if _, err := NewResolver(Config{Backend: "1password"}, logger); err == nil {
		t.Error("expected error for incomplete 1Password config")
	}
	if _, err := NewResolver(Config{Backend: "vault"}, logger); err == nil {
		t.Error("expected error for unknown backend")
	}
}

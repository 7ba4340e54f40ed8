package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"
)

func TestParseVaultRef(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantMount  string
		wantPath   string
		wantField  string
		wantParsed bool
	}{
		{"full reference", "vault:secret/laf/account#authz_sock", "secret", "laf/account", "authz_sock", true},
		{"no field", "vault:secret/laf/account", "secret", "laf/account", "", true},
		{"plain path", "/run/laf/authz.sock", "", "", "", false},
		{"empty", "", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mount, path, field, ok := parseVaultRef(tt.ref)
			require.Equal(t, tt.wantParsed, ok)
			if !ok {
				return
			}
			require.Equal(t, tt.wantMount, mount)
			require.Equal(t, tt.wantPath, path)
			require.Equal(t, tt.wantField, field)
		})
	}
}

// newTestVaultServer mocks just enough of the KV v2 read API for
// CredentialResolver.Resolve to exercise against.
func newTestVaultServer(t *testing.T, data map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") == "" {
			http.Error(w, `{"errors":["missing client token"]}`, http.StatusForbidden)
			return
		}
		if !strings.Contains(r.URL.Path, "/data/") {
			http.Error(w, `{"errors":["not found"]}`, http.StatusNotFound)
			return
		}
		resp := map[string]any{
			"data": map[string]any{
				"data":     data,
				"metadata": map[string]any{"version": 1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestResolver(t *testing.T, addr string) *CredentialResolver {
	t.Helper()
	cfg := vault.DefaultConfig()
	cfg.Address = addr
	client, err := vault.NewClient(cfg)
	require.NoError(t, err)
	client.SetToken("test-token")
	return &CredentialResolver{client: client}
}

func TestCredentialResolverResolveVaultRef(t *testing.T) {
	server := newTestVaultServer(t, map[string]any{"authz_sock": "/run/laf/authz.sock"})
	resolver := newTestResolver(t, server.URL)

	got, err := resolver.Resolve(context.Background(), "vault:secret/laf/account#authz_sock")
	require.NoError(t, err)
	require.Equal(t, "/run/laf/authz.sock", got)
}

func TestCredentialResolverResolveMissingField(t *testing.T) {
	server := newTestVaultServer(t, map[string]any{"other": "x"})
	resolver := newTestResolver(t, server.URL)

	_, err := resolver.Resolve(context.Background(), "vault:secret/laf/account#authz_sock")
	require.Error(t, err)
}

func TestCredentialResolverResolvePassthrough(t *testing.T) {
	resolver := &CredentialResolver{}
	got, err := resolver.Resolve(context.Background(), "/run/laf/authz.sock")
	require.NoError(t, err)
	require.Equal(t, "/run/laf/authz.sock", got)
}

func TestResolveDefaultAuthPlainFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaultauth"), []byte("/run/laf/authz.sock\n"), 0o600))

	got, err := ResolveDefaultAuth(context.Background(), nil, dir)
	require.NoError(t, err)
	require.Equal(t, "/run/laf/authz.sock", got)
}

func TestResolveDefaultAuthVaultRef(t *testing.T) {
	server := newTestVaultServer(t, map[string]any{"authz_sock": "/run/laf/authz.sock"})
	resolver := newTestResolver(t, server.URL)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaultauth"), []byte("vault:secret/laf/account#authz_sock"), 0o600))

	got, err := ResolveDefaultAuth(context.Background(), resolver, dir)
	require.NoError(t, err)
	require.Equal(t, "/run/laf/authz.sock", got)
}

func TestResolveDefaultAuthMissingFile(t *testing.T) {
	_, err := ResolveDefaultAuth(context.Background(), nil, t.TempDir())
	require.Error(t, err)
}

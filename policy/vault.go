package policy

import (
	"context"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// CredentialResolver resolves references found in a family's LAF_CONFIG
// defaultauth file. A reference of the form "vault:<mount>/<path>#<field>"
// is fetched from Vault KV v2; anything else (a bare unix-socket path, a
// literal secret) passes through unchanged, so a deployment that never
// configures Vault pays no cost.
type CredentialResolver struct {
	client *vault.Client
}

// NewCredentialResolver builds a resolver from the standard VAULT_ADDR/
// VAULT_TOKEN/VAULT_NAMESPACE environment variables, mirroring vault/api's
// own DefaultConfig convention.
func NewCredentialResolver() (*CredentialResolver, error) {
	cfg := vault.DefaultConfig()
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy: building vault client: %w", err)
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}
	return &CredentialResolver{client: client}, nil
}

// Resolve returns the literal value of ref, fetching it from Vault first
// when ref is a "vault:" reference.
func (r *CredentialResolver) Resolve(ctx context.Context, ref string) (string, error) {
	mount, path, field, ok := parseVaultRef(ref)
	if !ok {
		return ref, nil
	}

	secret, err := r.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("policy: vault get %s/%s: %w", mount, path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("policy: no data at vault path %s/%s", mount, path)
	}

	if field == "" {
		field = "value"
	}
	val, ok := secret.Data[field]
	if !ok {
		return "", fmt.Errorf("policy: field %q not found at vault path %s/%s", field, mount, path)
	}
	return fmt.Sprintf("%v", val), nil
}

// ResolveDefaultAuth reads <configDir>/defaultauth and resolves its content.
// The laf-worker command uses the result as its authorization-service
// socket path.
func ResolveDefaultAuth(ctx context.Context, resolver *CredentialResolver, configDir string) (string, error) {
	raw, err := os.ReadFile(configDir + "/defaultauth")
	if err != nil {
		return "", fmt.Errorf("policy: reading defaultauth: %w", err)
	}
	ref := strings.TrimSpace(string(raw))
	if resolver == nil {
		return ref, nil
	}
	return resolver.Resolve(ctx, ref)
}

// parseVaultRef splits "vault:<mount>/<path>#<field>" into its parts. ok is
// false for anything not prefixed with "vault:".
func parseVaultRef(ref string) (mount, path, field string, ok bool) {
	rest, found := strings.CutPrefix(ref, "vault:")
	if !found {
		return "", "", "", false
	}
	if idx := strings.LastIndex(rest, "#"); idx >= 0 {
		field = rest[idx+1:]
		rest = rest[:idx]
	}
	mount, path, found = strings.Cut(rest, "/")
	if !found {
		return "", "", "", false
	}
	return mount, path, field, true
}

package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., resume-token signing key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManager retrieves secrets from a secret management service.
// Backends: local filesystem, AWS Secrets Manager, HashiCorp Vault, GCP Secret Manager.
type SecretManager interface {
	// GetSecret retrieves the current version of a secret by path.
	// Path format depends on implementation:
	//   - AWS: "purchase-gateway/resume-keys/{kid}"
	//   - Vault: "secret/data/purchase-gateway/resume-keys/{kid}"
	//   - GCP: slashes become dashes, "purchase-gateway-resume-keys-{kid}"
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// GetSecretVersion retrieves a specific version, used while keys rotate
	GetSecretVersion(ctx context.Context, path string, version string) (*Secret, error)
}

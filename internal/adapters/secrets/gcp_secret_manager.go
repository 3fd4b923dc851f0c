package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// GCPSecretManagerConfig contains configuration for GCP Secret Manager
type GCPSecretManagerConfig struct {
	ProjectID string
	CacheTTL  time.Duration
}

// DefaultGCPSecretManagerConfig returns default configuration
func DefaultGCPSecretManagerConfig(projectID string) *GCPSecretManagerConfig {
	return &GCPSecretManagerConfig{
		ProjectID: projectID,
		CacheTTL:  5 * time.Minute,
	}
}

// gcpSecretAPI is the slice of the GCP client the adapter uses
type gcpSecretAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// GCPSecretManager reads resume keys from Google Cloud Secret Manager.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS or
// workload identity).
type GCPSecretManager struct {
	client    gcpSecretAPI
	projectID string
	logger    *zap.Logger
	cache     *secretCache
}

var _ ports.SecretManager = (*GCPSecretManager)(nil)

// NewGCPSecretManager creates a GCP Secret Manager adapter
func NewGCPSecretManager(ctx context.Context, cfg *GCPSecretManagerConfig, logger *zap.Logger) (*GCPSecretManager, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP project ID is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}

	logger.Info("GCP Secret Manager adapter initialized",
		zap.String("project_id", cfg.ProjectID),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)
	return newGCPSecretManager(client, cfg, logger), nil
}

func newGCPSecretManager(client gcpSecretAPI, cfg *GCPSecretManagerConfig, logger *zap.Logger) *GCPSecretManager {
	return &GCPSecretManager{
		client:    client,
		projectID: cfg.ProjectID,
		logger:    logger,
		cache:     newSecretCache(true, cfg.CacheTTL),
	}
}

// Close releases the underlying gRPC connection
func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// GetSecret retrieves the latest version of a secret.
// Path format: "purchase-gateway-resume-keys-{kid}" (GCP secret ids allow no slashes).
func (g *GCPSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := g.cache.get(path); cached != nil {
		return cached, nil
	}

	secret, err := g.access(ctx, path, "latest")
	if err != nil {
		return nil, err
	}
	g.cache.set(path, secret)
	return secret, nil
}

// GetSecretVersion retrieves a numbered version; versions are not cached
func (g *GCPSecretManager) GetSecretVersion(ctx context.Context, path string, version string) (*ports.Secret, error) {
	return g.access(ctx, path, version)
}

func (g *GCPSecretManager) access(ctx context.Context, path, version string) (*ports.Secret, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", g.projectID, secretID(path), version)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		g.logger.Error("Failed to access GCP secret",
			zap.String("path", path),
			zap.String("version", version),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to access GCP secret %s: %w", path, err)
	}

	data := result.GetPayload().GetData()
	if len(data) == 0 {
		return nil, fmt.Errorf("secret %s has no payload", path)
	}
	return &ports.Secret{
		Value:   string(data),
		Version: versionFromName(result.GetName()),
		Metadata: map[string]string{
			"gcp_project_id": g.projectID,
			"gcp_secret":     secretID(path),
		},
	}, nil
}

// secretID maps a slash-separated key path onto a GCP secret id
func secretID(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", "-")
}

// versionFromName returns the trailing segment of
// projects/{project}/secrets/{secret}/versions/{version}
func versionFromName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return "unknown"
}

package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// LocalSecretManager reads secrets from files under a base directory.
// Development only.
type LocalSecretManager struct {
	basePath string
	logger   *zap.Logger
}

var _ ports.SecretManager = (*LocalSecretManager)(nil)

// NewLocalSecretManager creates a filesystem secret manager
func NewLocalSecretManager(basePath string, logger *zap.Logger) *LocalSecretManager {
	return &LocalSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// localSecretFile is the JSON shape of a secret file. Plain-text files are
// read as the bare value.
type localSecretFile struct {
	Value     string            `json:"value"`
	Version   string            `json:"version"`
	Tags      map[string]string `json:"tags"`
	CreatedAt string            `json:"created_at"`
}

// GetSecret reads the secret file at secretPath
func (m *LocalSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + secretPath)
	filePath := filepath.Join(m.basePath, clean)

	m.logger.Debug("Reading secret from filesystem",
		zap.String("path", secretPath),
	)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var file localSecretFile
	if err := json.Unmarshal(data, &file); err == nil && file.Value != "" {
		version := file.Version
		if version == "" {
			version = "v1"
		}
		return &ports.Secret{
			Value:     file.Value,
			Version:   version,
			Metadata:  file.Tags,
			CreatedAt: file.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}

// GetSecretVersion only knows the single stored version
func (m *LocalSecretManager) GetSecretVersion(ctx context.Context, path string, version string) (*ports.Secret, error) {
	secret, err := m.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	if version != "" && version != "latest" && version != secret.Version {
		return nil, fmt.Errorf("%w: %s version %s", ErrSecretNotFound, path, version)
	}
	return secret, nil
}

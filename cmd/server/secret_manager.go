package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/adapters/secrets"
	"github.com/kevin07696/purchase-gateway/internal/config"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// initSecretManager builds the backend resume-token keys are read from:
//   - local: files under SECRETS_LOCAL_PATH (development)
//   - vault: HashiCorp Vault KV, token/approle/kubernetes auth
//   - aws: AWS Secrets Manager
//   - gcp: Google Cloud Secret Manager
func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case config.SecretsVault:
		vcfg := secrets.DefaultVaultConfig(cfg.VaultAddr)
		vcfg.AuthMethod = cfg.VaultAuth
		vcfg.Token = cfg.VaultToken
		vcfg.RoleID = cfg.VaultRoleID
		vcfg.SecretID = cfg.VaultSecretID
		vcfg.K8sRole = cfg.VaultK8sRole
		vcfg.Namespace = cfg.VaultNamespace
		if cfg.VaultMount != "" {
			vcfg.MountPath = cfg.VaultMount
		}
		sm, err := secrets.NewVaultSecretManager(ctx, vcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init vault secret manager: %w", err)
		}
		logger.Info("Vault secret manager initialized", zap.String("address", cfg.VaultAddr))
		return sm, nil

	case config.SecretsAWS:
		sm, err := secrets.NewAWSSecretsManager(ctx, secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion), logger)
		if err != nil {
			return nil, fmt.Errorf("init aws secrets manager: %w", err)
		}
		logger.Info("AWS Secrets Manager initialized", zap.String("region", cfg.AWSRegion))
		return sm, nil

	case config.SecretsGCP:
		sm, err := secrets.NewGCPSecretManager(ctx, secrets.DefaultGCPSecretManagerConfig(cfg.GCPProjectID), logger)
		if err != nil {
			return nil, fmt.Errorf("init gcp secret manager: %w", err)
		}
		return sm, nil

	default:
		logger.Warn("Using local secret manager - NOT for production use!",
			zap.String("path", cfg.LocalPath),
		)
		return secrets.NewLocalSecretManager(cfg.LocalPath, logger), nil
	}
}

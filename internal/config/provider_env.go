package config

import (
	"context"
	"os"
)

// SecretProvider resolves secret values by key. Keys are referenced from the
// environment through variables ending in _SECRET_REF.
type SecretProvider interface {
	GetSecrets(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider resolves secret references from other environment variables.
// It lets a deployment point AMADEUS_CLIENT_SECRET_SECRET_REF at a variable
// injected by the platform (for example a Lambda extension) under a different
// name.
type EnvVarProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvVarProvider creates a new EnvVarProvider backed by os.LookupEnv.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{lookup: os.LookupEnv}
}

// GetSecrets returns the values of the keys that are set. Missing keys are
// omitted from the result.
func (p *EnvVarProvider) GetSecrets(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := p.lookup(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

package secretstore

import (
	"context"
	"fmt"
	"time"
)

// Backend kinds accepted by Open.
const (
	KindVault  = "vault"
	KindMemory = "memory"
)

type Config struct {
	Kind     string
	Vault    VaultConfig
	CacheTTL time.Duration
}

// Open builds the configured backend behind a read cache.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var backend Backend
	switch cfg.Kind {
	case KindVault, "":
		vb, err := NewVaultBackend(ctx, cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("open vault secret store: %w", err)
		}
		backend = vb
	case KindMemory:
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown secret store kind %q", cfg.Kind)
	}
	return NewStore(NewCache(backend, cfg.CacheTTL)), nil
}

package auth

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// MinKeyLength is the shortest HMAC key the keyring accepts
const MinKeyLength = 32

// Keyring holds resume-token signing keys by key id. Keys missing from
// memory are fetched from the secret manager at <prefix>/<kid> and kept.
type Keyring struct {
	secrets ports.SecretManager
	prefix  string
	current string
	keys    map[string][]byte // kid -> key
	mu      sync.RWMutex
}

// NewKeyring creates a keyring that signs with currentKID. secrets may be nil
// when every key is added up front.
func NewKeyring(secrets ports.SecretManager, prefix, currentKID string) *Keyring {
	return &Keyring{
		secrets: secrets,
		prefix:  prefix,
		current: currentKID,
		keys:    make(map[string][]byte),
	}
}

// AddKey registers a key in memory
func (k *Keyring) AddKey(kid string, key []byte) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("key %s is %d bytes, need at least %d", kid, len(key), MinKeyLength)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[kid] = append([]byte(nil), key...)
	return nil
}

// Current returns the signing key id and key
func (k *Keyring) Current(ctx context.Context) (string, []byte, error) {
	key, err := k.Key(ctx, k.current)
	if err != nil {
		return "", nil, err
	}
	return k.current, key, nil
}

// Key returns the key for kid, loading it from the secret manager on first use
func (k *Keyring) Key(ctx context.Context, kid string) ([]byte, error) {
	if kid == "" {
		return nil, fmt.Errorf("empty key id")
	}

	k.mu.RLock()
	key, ok := k.keys[kid]
	k.mu.RUnlock()
	if ok {
		return key, nil
	}

	if k.secrets == nil {
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
	secret, err := k.secrets.GetSecret(ctx, path.Join(k.prefix, kid))
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", kid, err)
	}
	if err := k.AddKey(kid, []byte(secret.Value)); err != nil {
		return nil, err
	}
	return []byte(secret.Value), nil
}

// HasKey reports whether kid is loaded
func (k *Keyring) HasKey(kid string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[kid]
	return ok
}

// KeyIDs returns the loaded key ids in sorted order
func (k *Keyring) KeyIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

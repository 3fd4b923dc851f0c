package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/testutil/mocks"
)

func testKey(fill string) []byte {
	return []byte(strings.Repeat(fill, MinKeyLength))
}

func TestKeyring_AddKey(t *testing.T) {
	tests := []struct {
		name      string
		key       []byte
		expectErr bool
	}{
		{"accepts_long_key", testKey("a"), false},
		{"rejects_short_key", []byte("short"), true},
		{"rejects_empty_key", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := NewKeyring(nil, "", "k1")
			err := ring.AddKey("k1", tt.key)
			if tt.expectErr {
				assert.Error(t, err)
				assert.False(t, ring.HasKey("k1"))
				return
			}
			require.NoError(t, err)
			assert.True(t, ring.HasKey("k1"))
		})
	}
}

func TestKeyring_LoadsFromSecretManagerOnce(t *testing.T) {
	secrets := new(mocks.MockSecretManager)
	secrets.On("GetSecret", context.Background(), "purchase-gateway/resume-keys/k2").
		Return(&ports.Secret{Value: string(testKey("b"))}, nil).Once()
	ring := NewKeyring(secrets, "purchase-gateway/resume-keys", "k2")

	for i := 0; i < 3; i++ {
		kid, key, err := ring.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "k2", kid)
		assert.Equal(t, testKey("b"), key)
	}
	secrets.AssertExpectations(t)
	assert.Equal(t, []string{"k2"}, ring.KeyIDs())
}

func TestKeyring_Key_Errors(t *testing.T) {
	secrets := new(mocks.MockSecretManager)
	secrets.On("GetSecret", context.Background(), "keys/missing").
		Return(nil, errors.New("secret not found")).Once()
	secrets.On("GetSecret", context.Background(), "keys/weak").
		Return(&ports.Secret{Value: "weak"}, nil).Once()
	ring := NewKeyring(secrets, "keys", "missing")

	_, err := ring.Key(context.Background(), "")
	assert.Error(t, err)

	_, err = ring.Key(context.Background(), "missing")
	assert.ErrorContains(t, err, "failed to load key missing")

	_, err = ring.Key(context.Background(), "weak")
	assert.Error(t, err)
	assert.False(t, ring.HasKey("weak"))
}

func TestKeyring_UnknownKeyWithoutSecretManager(t *testing.T) {
	ring := NewKeyring(nil, "", "k1")
	_, _, err := ring.Current(context.Background())
	assert.ErrorContains(t, err, "unknown key id")
}

func TestKeyring_ConcurrentAccess(t *testing.T) {
	ring := NewKeyring(nil, "", "k0")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = ring.AddKey("k0", testKey("c"))
		}()
		go func() {
			defer wg.Done()
			_ = ring.HasKey("k0")
			_ = ring.KeyIDs()
		}()
	}
	wg.Wait()
	assert.True(t, ring.HasKey("k0"))
}

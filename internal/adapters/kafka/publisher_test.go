package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

type fakeWriter struct {
	failures int
	calls    int
	written  []kafkago.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unavailable")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		expectErr     bool
		expectedCalls int
	}{
		{"first_attempt", 0, false, 1},
		{"retried", 2, false, 3},
		{"gives_up", 5, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{failures: tt.failures}
			p := newPublisher(w, &resilience.FixedBackoff{Delay: time.Millisecond}, 3, zap.NewNop())

			err := p.Publish(context.Background(), domain.PurchaseSnapshot{
				Event:     domain.EventPurchaseInitialized,
				SessionID: "session-1",
				State:     string(domain.StateValidated),
			})
			if tt.expectErr {
				assert.Error(t, err)
				assert.Empty(t, w.written)
			} else {
				require.NoError(t, err)
				require.Len(t, w.written, 1)
				msg := w.written[0]
				assert.Equal(t, "session-1", string(msg.Key))
				assert.Equal(t, domain.EventPurchaseInitialized, string(msg.Headers[0].Value))

				var snap domain.PurchaseSnapshot
				require.NoError(t, json.Unmarshal(msg.Value, &snap))
				assert.Equal(t, string(domain.StateValidated), snap.State)
			}
			assert.Equal(t, tt.expectedCalls, w.calls)
		})
	}
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newPublisher(w, nil, 0, zap.NewNop()).Close())
	assert.True(t, w.closed)
}

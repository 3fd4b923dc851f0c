// Package events emits BI snapshots without blocking the purchase flow.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

// Emitter hands snapshots to the publisher on a background goroutine
type Emitter struct {
	publisher ports.EventPublisher
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewEmitter creates an emitter. A nil publisher disables emission.
func NewEmitter(publisher ports.EventPublisher, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Emitter {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Emitter{publisher: publisher, timeouts: timeouts, logger: logger}
}

// Emit snapshots session for event and publishes it in the background.
// Failures are logged and counted, never returned.
func (e *Emitter) Emit(ctx context.Context, session *domain.PurchaseSession, event string) {
	if e == nil || e.publisher == nil {
		return
	}
	snapshot := session.Snapshot(event)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		pctx, cancel := e.timeouts.PublishContext(ctx)
		defer cancel()

		if err := e.publisher.Publish(pctx, snapshot); err != nil {
			e.logger.Warn("Failed to publish BI event",
				zap.String("event", event),
				zap.String("session_id", snapshot.SessionID),
				zap.Error(err),
			)
			observability.RecordBIEvent("failed")
			return
		}
		observability.RecordBIEvent("published")
	}()
}

// Wait blocks until every in-flight emission finished
func (e *Emitter) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}

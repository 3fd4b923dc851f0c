package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the gateway's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (30s)
//	  ↓
//	Purchase Operation (25s) - init, process, 3DS completion, postback
//	  ↓
//	Biller Call (10s) - one cascade submit
//	  ↓
//	Upstream Lookup (3s) - site, fraud, member profile, templates
//
// A whole purchase call is bounded by the operation timeout, so the number of
// cascade submits that fit is bounded too. A biller call that runs out of time
// has an unknown outcome and must not be retried against the next biller.
type TimeoutConfig struct {
	// Handler layer
	HTTPHandler time.Duration // Overall request timeout (default: 30s)

	// Service layer
	PurchaseOperation time.Duration // One purchase operation end to end (default: 25s)

	// External calls (adapters)
	BillerCall     time.Duration // Single submit to a biller (default: 10s)
	UpstreamLookup time.Duration // Config, fraud and member lookups (default: 3s)
	EventPublish   time.Duration // BI event delivery, detached from the request (default: 5s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:       30 * time.Second,
		PurchaseOperation: 25 * time.Second,
		BillerCall:        10 * time.Second,
		UpstreamLookup:    3 * time.Second,
		EventPublish:      5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:       5 * time.Second,
		PurchaseOperation: 4 * time.Second,
		BillerCall:        1 * time.Second,
		UpstreamLookup:    500 * time.Millisecond,
		EventPublish:      500 * time.Millisecond,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// OperationContext bounds the total external-call time of one purchase operation
func (tc *TimeoutConfig) OperationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.PurchaseOperation)
}

// BillerCallContext creates a context for a single biller submit
func (tc *TimeoutConfig) BillerCallContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.BillerCall)
}

// UpstreamContext creates a context for a lookup against a collaborator service
func (tc *TimeoutConfig) UpstreamContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.UpstreamLookup)
}

// PublishContext creates a context for BI delivery. It is detached from
// parent's cancellation so a finished request does not drop the event.
func (tc *TimeoutConfig) PublishContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.EventPublish)
}

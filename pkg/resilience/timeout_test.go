package resilience

import (
	"context"
	"testing"
	"time"
)

func TestDefaultTimeoutConfig(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Verify timeout hierarchy is correctly ordered
	if config.HTTPHandler <= config.PurchaseOperation {
		t.Errorf("HTTPHandler (%v) must be > PurchaseOperation (%v)", config.HTTPHandler, config.PurchaseOperation)
	}

	if config.PurchaseOperation <= config.BillerCall {
		t.Errorf("PurchaseOperation (%v) must be > BillerCall (%v)", config.PurchaseOperation, config.BillerCall)
	}

	if config.BillerCall <= config.UpstreamLookup {
		t.Errorf("BillerCall (%v) must be > UpstreamLookup (%v)", config.BillerCall, config.UpstreamLookup)
	}

	// Verify production values
	if config.HTTPHandler != 30*time.Second {
		t.Errorf("Expected HTTPHandler = 30s, got %v", config.HTTPHandler)
	}

	if config.BillerCall != 10*time.Second {
		t.Errorf("Expected BillerCall = 10s, got %v", config.BillerCall)
	}
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()

	// Verify test timeouts are shorter
	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}

	// Verify hierarchy is still preserved in test config
	if config.HTTPHandler <= config.PurchaseOperation {
		t.Errorf("HTTPHandler (%v) must be > PurchaseOperation (%v)", config.HTTPHandler, config.PurchaseOperation)
	}

	if config.PurchaseOperation <= config.BillerCall {
		t.Errorf("PurchaseOperation (%v) must be > BillerCall (%v)", config.PurchaseOperation, config.BillerCall)
	}
}

func TestTimeoutHierarchyPreservation(t *testing.T) {
	config := DefaultTimeoutConfig()

	parent, parentCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer parentCancel()

	// Child asks for a longer timeout than its parent allows
	child, childCancel := config.OperationContext(parent)
	defer childCancel()

	parentDeadline, _ := parent.Deadline()
	childDeadline, _ := child.Deadline()

	if childDeadline.After(parentDeadline) {
		t.Errorf("Child deadline (%v) should not be after parent deadline (%v)",
			childDeadline, parentDeadline)
	}
}

func TestContextCancellationPropagation(t *testing.T) {
	config := DefaultTimeoutConfig()

	ctx, cancel := config.OperationContext(context.Background())
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Context should be cancelled immediately")
	}

	if ctx.Err() != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", ctx.Err())
	}
}

func TestContextTimeout(t *testing.T) {
	config := TestTimeoutConfig()
	config.BillerCall = 100 * time.Millisecond

	ctx, cancel := config.BillerCallContext(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		if ctx.Err() != context.DeadlineExceeded {
			t.Errorf("Expected context.DeadlineExceeded, got %v", ctx.Err())
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("Context should timeout after 100ms")
	}
}

func TestPublishContext_SurvivesParentCancellation(t *testing.T) {
	config := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := config.PublishContext(parent)
	defer cancel()
	cancelParent()

	select {
	case <-ctx.Done():
		t.Fatal("publish context must not follow parent cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := ctx.Deadline(); !ok {
		t.Error("publish context should still carry its own deadline")
	}
}

func TestAllContextCreators(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	tests := []struct {
		name    string
		creator func(context.Context) (context.Context, context.CancelFunc)
		timeout time.Duration
	}{
		{"HandlerContext", config.HandlerContext, config.HTTPHandler},
		{"OperationContext", config.OperationContext, config.PurchaseOperation},
		{"BillerCallContext", config.BillerCallContext, config.BillerCall},
		{"UpstreamContext", config.UpstreamContext, config.UpstreamLookup},
		{"PublishContext", config.PublishContext, config.EventPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.creator(parent)
			defer cancel()

			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatalf("%s should have deadline", tt.name)
			}

			expectedDeadline := time.Now().Add(tt.timeout)
			diff := deadline.Sub(expectedDeadline).Abs()
			if diff > 100*time.Millisecond {
				t.Errorf("%s: deadline diff too large: %v (expected ~%v)",
					tt.name, diff, tt.timeout)
			}
		})
	}
}

func TestTimeoutBudget(t *testing.T) {
	config := DefaultTimeoutConfig()

	// A process call must fit at least two sequential biller submits plus the
	// session load and save.
	minOperationBudget := 2*config.BillerCall + 2*time.Second
	if config.PurchaseOperation < minOperationBudget {
		t.Errorf("PurchaseOperation (%v) insufficient for two submits (need >= %v)",
			config.PurchaseOperation, minOperationBudget)
	}

	if config.EventPublish > config.HTTPHandler {
		t.Errorf("EventPublish (%v) should not outlive a request budget (%v)",
			config.EventPublish, config.HTTPHandler)
	}
}

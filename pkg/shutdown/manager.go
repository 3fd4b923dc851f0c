// Package shutdown stops the service's components in reverse start order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "component_shutdown_duration_seconds",
		Help:    "Time taken to shutdown individual components",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// Func shuts down one component
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager runs registered shutdown functions one at a time, last registered
// first, so HTTP servers drain before the emitter, publisher and stores they
// use are closed.
type Manager struct {
	logger     *zap.Logger
	timeout    time.Duration
	components []component
	mu         sync.Mutex
	once       sync.Once
}

// NewManager creates a manager whose whole shutdown is bounded by timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds fn under name
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterCloser registers a component with Close() error
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return closer.Close() })
}

// RegisterNoErr registers a shutdown function that cannot fail
func (m *Manager) RegisterNoErr(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForSignal blocks until SIGINT or SIGTERM, or until ctx is done, then
// shuts down
func (m *Manager) WaitForSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		m.logger.Info("Shutdown requested", zap.Error(ctx.Err()))
	}
	m.Shutdown()
}

// Shutdown runs every component once and returns the errors by component
func (m *Manager) Shutdown() map[string]error {
	errs := make(map[string]error)
	m.once.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		components := append([]component(nil), m.components...)
		m.mu.Unlock()

		for i := len(components) - 1; i >= 0; i-- {
			c := components[i]
			if ctx.Err() != nil {
				m.logger.Warn("Shutdown timeout exceeded, skipping component", zap.String("component", c.name))
				errs[c.name] = ctx.Err()
				shutdownErrors.WithLabelValues(c.name).Inc()
				continue
			}

			cstart := time.Now()
			if err := c.fn(ctx); err != nil {
				errs[c.name] = err
				shutdownErrors.WithLabelValues(c.name).Inc()
				m.logger.Error("Component shutdown failed", zap.String("component", c.name), zap.Error(err))
			} else {
				m.logger.Info("Component shut down",
					zap.String("component", c.name),
					zap.Duration("elapsed", time.Since(cstart)),
				)
			}
			componentShutdownDuration.WithLabelValues(c.name).Observe(time.Since(cstart).Seconds())
		}

		shutdownDuration.Observe(time.Since(start).Seconds())
		m.logger.Info("Graceful shutdown finished",
			zap.Int("errors", len(errs)),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	return errs
}

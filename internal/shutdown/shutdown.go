// Package shutdown coordinates signal handling and resource cleanup for the
// long-running salesink tools.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager closes registered resources exactly once, in reverse order of
// registration, when a signal arrives or Shutdown is called.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	once sync.Once
	err  error

	mu      sync.Mutex
	closers []io.Closer
}

// New creates a Manager. timeout bounds how long Shutdown waits for closers;
// zero means 10 seconds.
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterCloser adds a closer to be called during shutdown.
func (m *Manager) RegisterCloser(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func (m *Manager) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown closes every registered closer. Later calls return the result of
// the first one.
func (m *Manager) Shutdown(ctx context.Context, reason string) error {
	m.once.Do(func() {
		m.logger.Info("Shutting down", zap.String("reason", reason))

		m.mu.Lock()
		closers := make([]io.Closer, len(m.closers))
		copy(closers, m.closers)
		m.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		result := make(chan error, 1)
		go func() {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i].Close(); err != nil {
					errs = append(errs, err)
				}
			}
			result <- errors.Join(errs...)
		}()

		select {
		case err := <-result:
			if err != nil {
				m.err = fmt.Errorf("close failed: %w", err)
			}
		case <-shutdownCtx.Done():
			m.err = fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	})

	return m.err
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}

// Package shutdown coordinates graceful shutdown of the avatar API process.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"avatarsynth/internal/pkg/logger"
)

// Manager runs registered cleanup handlers once a stop signal arrives.
// Handlers run one at a time, last registered first, under a shared deadline.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
}

// Handler is a function that performs cleanup during shutdown.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		log:      log,
		timeout:  timeout,
		handlers: make([]Handler, 0),
		done:     make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}


// Wait blocks until a shutdown signal is received, then runs cleanup.
func (m *Manager) Wait() {
	m.WaitWithContext(context.Background())
}

// WaitWithContext blocks until a shutdown signal arrives or ctx is done.
func (m *Manager) WaitWithContext(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}

	m.Shutdown()
}

// Shutdown runs all cleanup handlers. Calls after the first are no-ops.
func (m *Manager) Shutdown() {
	m.once.Do(m.run)
}

func (m *Manager) run() {
	defer close(m.done)

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	failed := 0
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout exceeded, skipping handler", "name", h.Name)
			failed++
			continue
		}

		start := time.Now()
		m.log.Debug("running shutdown handler", "name", h.Name)

		if err := runHandler(ctx, h); err != nil {
			failed++
			m.log.Error("shutdown handler failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		m.log.Debug("shutdown handler completed",
			"name", h.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if failed > 0 {
		m.log.Warn("graceful shutdown finished with failures", "failed", failed)
		return
	}
	m.log.Info("graceful shutdown completed")
}

// runHandler returns when the handler returns or ctx expires, whichever is first.
func runHandler(ctx context.Context, h Handler) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.Cleanup(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Context returns a context that is canceled on shutdown.
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.done
		cancel()
	}()
	return ctx
}

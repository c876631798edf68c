// Package worker runs the service's background loops.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background loop owned by a WorkerManager
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// ErrAlreadyRunning is returned by StartAll on a running manager
var ErrAlreadyRunning = errors.New("workers already running")

// Status reports one registered worker
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// WorkerManager starts registered workers together and stops them in
// reverse registration order.
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	workers []Worker
	started map[string]bool
	running bool
	cancel  context.CancelFunc
}

// NewWorkerManager creates an empty manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		logger:  logger,
		started: make(map[string]bool),
	}
}

// Register adds a worker. Workers registered while running are started on
// the next StartAll.
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered", zap.String("worker", w.Name()))
}

// StartAll starts every worker under a context derived from ctx. A worker
// that fails to start does not prevent the others; the failures are
// returned joined, and the manager still counts as running.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	var runCtx context.Context
	runCtx, m.cancel = context.WithCancel(ctx)
	m.running = true

	var errs []error
	for _, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker", zap.String("worker", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.started[w.Name()] = true
	}
	m.logger.Info("Workers started", zap.Int("started", len(m.started)), zap.Int("registered", len(m.workers)))
	return errors.Join(errs...)
}

// StopAll cancels the shared context and stops started workers, last
// registered first. Stopping a manager that is not running is a no-op.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()

	var errs []error
	for i := len(m.workers) - 1; i >= 0; i-- {
		w := m.workers[i]
		if !m.started[w.Name()] {
			continue
		}
		delete(m.started, w.Name())
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker", zap.String("worker", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Statuses lists the registered workers in registration order
func (m *WorkerManager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, Status{Name: w.Name(), Running: m.started[w.Name()]})
	}
	return out
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning reports whether StartAll has been called without a StopAll
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

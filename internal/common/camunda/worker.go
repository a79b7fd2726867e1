// internal/common/camunda/worker.go
package camunda

import (
	"fmt"

	"store-sessions/internal/common/logger"
)

// JobWorker is implemented by every job handler the process runs.
type JobWorker interface {
	GetTaskType() string
	IsEnabled() bool
	Register() error
	Close()
}

// Workers registers a set of job handlers and closes them together.
type Workers struct {
	logger     logger.Logger
	registered []JobWorker
}

func NewWorkers(log logger.Logger) *Workers {
	return &Workers{logger: logger.OrNop(log)}
}

// Start registers each enabled worker. On failure the ones already
// registered are closed again.
func (w *Workers) Start(workers ...JobWorker) error {
	for _, jw := range workers {
		if !jw.IsEnabled() {
			w.logger.Info("Worker disabled, not registering", map[string]interface{}{
				"taskType": jw.GetTaskType(),
			})
			continue
		}
		if err := jw.Register(); err != nil {
			w.Stop()
			return fmt.Errorf("register worker %s: %w", jw.GetTaskType(), err)
		}
		w.registered = append(w.registered, jw)
	}

	w.logger.Info("Workers started", map[string]interface{}{
		"count": len(w.registered),
	})
	return nil
}

// Stop closes workers in reverse registration order.
func (w *Workers) Stop() {
	for i := len(w.registered) - 1; i >= 0; i-- {
		w.registered[i].Close()
	}
	w.registered = nil
}

func (w *Workers) Count() int {
	return len(w.registered)
}

// Package broadcast fans asynchronous output out to every live session.
// The registries here are the only mutable state shared across session
// goroutines, so they use sync.Map and take no caller-side locks.
package broadcast

import (
	"sync"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// Writer receives broadcast output. Sessions register one writer each; the
// writer serializes its own writes, which gives per-destination ordering
// without any global lock.
type Writer interface {
	WriteOutput(s string) error
}

// Registry maps live session ids to their output writers.
type Registry struct {
	writers sync.Map // int64 -> Writer
	log     *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Global()
	}
	return &Registry{log: log.WithPrefix("broadcast")}
}

// Register adds a session writer. Call once per live session.
func (r *Registry) Register(id int64, w Writer) {
	r.writers.Store(id, w)
	r.log.Debug("registered session %d", id)
}

// Deregister removes a session writer. Idempotent.
func (r *Registry) Deregister(id int64) {
	if _, ok := r.writers.LoadAndDelete(id); ok {
		r.log.Debug("deregistered session %d", id)
	}
}

// Output delivers s to every registered writer. Delivery order across
// sessions is unspecified; a failing writer is the session's own problem
// and never blocks delivery to the others.
func (r *Registry) Output(s string) {
	r.writers.Range(func(_, value any) bool {
		_ = value.(Writer).WriteOutput(s)
		return true
	})
}

// OutputExcept delivers s to every registered writer except the one
// registered under id. Used to echo a session's submitted statement to the
// other terminals.
func (r *Registry) OutputExcept(id int64, s string) {
	r.writers.Range(func(key, value any) bool {
		if key.(int64) == id {
			return true
		}
		_ = value.(Writer).WriteOutput(s)
		return true
	})
}

// Len reports the number of registered writers.
func (r *Registry) Len() int {
	n := 0
	r.writers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

package server

import (
	"context"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// Listener is one network frontend the supervisor manages. Start binds
// and begins accepting; Stop closes the accept loop but lets live
// sessions drain.
type Listener interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Supervisor starts and stops a set of listeners. A listener that fails
// to start is logged and skipped; the others keep serving, so one bad
// port never takes the whole server down.
type Supervisor struct {
	log       *logger.Logger
	listeners []Listener
	running   []Listener
}

func NewSupervisor(log *logger.Logger, listeners ...Listener) *Supervisor {
	return &Supervisor{log: log, listeners: listeners}
}

// Start brings up every listener that can bind. Returns the number that
// actually started.
func (s *Supervisor) Start(ctx context.Context) int {
	for _, l := range s.listeners {
		if err := l.Start(ctx); err != nil {
			s.log.Error("listener %s failed to start: %v", l.Name(), err)
			continue
		}
		s.running = append(s.running, l)
	}
	return len(s.running)
}

// Stop closes every running listener's accept loop.
func (s *Supervisor) Stop() {
	for _, l := range s.running {
		if err := l.Stop(); err != nil {
			s.log.Error("listener %s failed to stop: %v", l.Name(), err)
		}
	}
	s.running = nil
}

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/openGDA/gda-core-sub061/internal/audit"
	"github.com/openGDA/gda-core-sub061/internal/broadcast"
	"github.com/openGDA/gda-core-sub061/internal/interp"
	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// Session state machine: CREATED -> RUNNING -> CLOSED, no transition skips
// a state and CLOSED is terminal.
const (
	stateCreated int32 = iota
	stateRunning
	stateClosed
)

const (
	primaryPrompt      = ">>> "
	continuationPrompt = "... "
)

// nextSessionID assigns monotonically increasing session ids.
var nextSessionID atomic.Int64

// NextID allocates a session id from the shared counter. Used by listeners
// that register a broadcast writer without a full session, such as
// single-command connections.
func NextID() int64 {
	return nextSessionID.Add(1)
}

// SessionConfig carries the collaborators a session needs. The interpreter
// is the single shared instance; everything else is per connection.
type SessionConfig struct {
	Terminal   Terminal
	Interp     interp.Interpreter
	Registry   *broadcast.Registry
	Scans      *broadcast.ScanFeed
	Audit      *audit.Store
	Translator interp.Translator
	Username   string
	Version    string
	Logger     *logger.Logger
}

// Session is one authenticated connection's read/execute state machine. It
// owns its terminal, accumulates multi-line statements with the
// classifier, submits complete statements to the shared interpreter, and
// receives broadcast output through WriteOutput.
type Session struct {
	id         int64
	term       Terminal
	interp     interp.Interpreter
	classifier *Classifier
	completer  *Completer
	registry   *broadcast.Registry
	scans      *broadcast.ScanFeed
	audit      *audit.Store
	translate  interp.Translator
	username   string
	version    string
	log        *logger.Logger

	state     atomic.Int32
	closeOnce sync.Once

	// writeMu serializes output delivery to this session, which is what
	// gives the broadcaster its per-destination ordering guarantee.
	writeMu sync.Mutex

	// broken flips when a write fails; after that no further writes are
	// attempted and the blocked read is interrupted so the run loop can
	// observe the failure and close.
	broken    atomic.Bool
	brokenLog sync.Once
}

// NewSession creates a session in the CREATED state and assigns its id.
func NewSession(cfg SessionConfig) *Session {
	id := NextID()
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Session{
		id:         id,
		term:       cfg.Terminal,
		interp:     cfg.Interp,
		classifier: NewClassifier(cfg.Interp, cfg.Translator),
		completer:  NewCompleter(cfg.Interp),
		registry:   cfg.Registry,
		scans:      cfg.Scans,
		audit:      cfg.Audit,
		translate:  cfg.Translator,
		username:   cfg.Username,
		version:    cfg.Version,
		log:        log.WithPrefix(fmt.Sprintf("session-%d", id)),
	}
}

// ID returns the session's id.
func (s *Session) ID() int64 {
	return s.id
}

// Running reports whether the session is in the RUNNING state.
func (s *Session) Running() bool {
	return s.state.Load() == stateRunning
}

// Init registers the session with the output broadcaster and the scan
// feed, installs the completion binding, writes the welcome banner and
// window title, and moves the session to RUNNING. Must be called exactly
// once, before Run, so a partially-initialized session is never a
// broadcast target.
func (s *Session) Init() error {
	if !s.state.CompareAndSwap(stateCreated, stateRunning) {
		return fmt.Errorf("session %d initialized twice", s.id)
	}

	if b, ok := s.term.(interface{ BindCompleter(CompleteFunc) }); ok {
		b.BindCompleter(s.completer.Complete)
	}

	s.registry.Register(s.id, s)
	s.scans.Subscribe(s.id, s)

	banner := fmt.Sprintf("Welcome to GDA %s\nType commands at the prompt; Ctrl-D ends the session.\n", s.version)
	if _, err := s.term.Write([]byte(banner)); err != nil {
		return fmt.Errorf("failed to write banner: %w", err)
	}
	s.term.SetTitle(fmt.Sprintf("GDA %s (session %d)", s.version, s.id))

	s.log.Info("session started for %q", s.username)
	return nil
}

// Run is the session's primary loop. It returns when the input ends or the
// transport breaks, after which the session is closed. A user interrupt
// discards the accumulated statement but keeps the session alive.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	needMore := false
	var buffer []string

	for {
		if s.broken.Load() || ctx.Err() != nil {
			return
		}

		if needMore {
			s.term.SetPrompt(continuationPrompt)
		} else {
			s.term.SetPrompt(primaryPrompt)
		}

		line, err := s.term.ReadLine()
		switch {
		case err == nil:
		case errors.Is(err, ErrInterrupted):
			if s.broken.Load() {
				return
			}
			buffer = nil
			needMore = false
			s.printLocal("KeyboardInterrupt\n")
			continue
		case errors.Is(err, io.EOF):
			s.log.Info("end of input")
			return
		default:
			s.log.Info("read failed: %v", err)
			return
		}

		buffer = append(buffer, line)
		source := strings.Join(buffer, "\n")

		if s.classifier.Classify(source, len(source), ContextAcceptLine) == interp.Incomplete {
			needMore = true
			continue
		}

		// Complete or invalid: submit either way and let execution
		// surface any error text.
		buffer = nil
		needMore = false
		s.submit(ctx, source)
	}
}

// submit runs one accumulated statement on the shared interpreter. The
// statement is echoed to the other sessions, recorded in the audit log,
// and interruptible by Ctrl-C for its whole runtime.
func (s *Session) submit(ctx context.Context, source string) {
	s.registry.OutputExcept(s.id, primaryPrompt+source+"\n")
	s.audit.Record(s.id, s.username, source)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	go func() {
		select {
		case <-s.term.Interrupts():
			cancel()
		case <-stop:
		}
	}()

	err := s.interp.Execute(execCtx, s.translate.Translate(source))
	close(stop)

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("statement failed: %v", err)
	}
}

// WriteOutput delivers broadcast or interpreter output to this session's
// terminal. A write of exactly "\n" only redisplays the prompt; a pending
// prompt and partial input are redrawn around real output. After a write
// failure the session stops writing, logs once, and interrupts its own
// blocked read so the run loop can close.
func (s *Session) WriteOutput(out string) error {
	if s.state.Load() != stateRunning || s.broken.Load() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	if out == "\n" {
		// Redisplay ping from the broadcaster; no content to print.
		_, err = s.term.Write(nil)
	} else {
		_, err = s.term.Write([]byte(strings.TrimRight(out, "\n") + "\n"))
	}

	if err != nil {
		s.broken.Store(true)
		s.brokenLog.Do(func() {
			s.log.Warn("transport broken, closing session: %v", err)
		})
		s.term.Interrupt()
		return err
	}
	return nil
}

// printLocal writes to this session's own terminal only, ignoring write
// errors beyond the broken-transport bookkeeping.
func (s *Session) printLocal(out string) {
	_ = s.WriteOutput(out)
}

// Close deregisters the session from the output broadcaster and the scan
// feed. Idempotent; the underlying transport is closed by the listener
// that created it, since teardown may need protocol-specific negotiation.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(stateClosed)
		s.registry.Deregister(s.id)
		s.scans.Unsubscribe(s.id)
		s.log.Info("session closed")
	})
}

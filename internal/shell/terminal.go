package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrInterrupted is returned from ReadLine when the pending read was
// aborted, either by the user pressing Ctrl-C or by Interrupt being called
// from another goroutine (the broken-transport self-interrupt path).
var ErrInterrupted = errors.New("read interrupted")

// Terminal is the capability the session needs from its transport: read an
// edited line, write output (redrawing any in-progress prompt), and abort a
// blocked read from outside. One implementation serves every transport;
// the listeners only differ in how they produce the byte streams.
type Terminal interface {
	// ReadLine blocks for one line of input. It returns ErrInterrupted
	// for an aborted read and io.EOF when the input ends (Ctrl-D on an
	// empty line, or the transport closing).
	ReadLine() (string, error)
	// Write delivers output. If a ReadLine is in progress the prompt
	// line is cleared, the output printed, and the prompt plus any
	// partial input redrawn.
	Write(p []byte) (int, error)
	// SetPrompt sets the prompt for subsequent reads.
	SetPrompt(prompt string)
	// SetTitle sets the client's window title.
	SetTitle(title string)
	// Interrupt aborts a blocked ReadLine. Safe from any goroutine.
	Interrupt()
	// Interrupts exposes interrupt arrivals so a session can cancel a
	// running statement. May return nil if unsupported.
	Interrupts() <-chan struct{}
}

const interruptByte = 0x03 // ETX, Ctrl-C

// interruptReader sits between the transport and the line editor. It scans
// the byte stream for Ctrl-C, turning it into ErrInterrupted instead of
// letting the editor see it, and exposes an Interrupt method for aborting a
// blocked read from another goroutine. Bytes typed before an interrupt are
// discarded; they belong to the aborted line.
type interruptReader struct {
	chunks    chan []byte
	intr      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// read-side state, only touched by the single reader goroutine
	pending []byte

	mu  sync.Mutex
	err error
}

func newInterruptReader(r io.Reader) *interruptReader {
	ir := &interruptReader{
		chunks: make(chan []byte, 8),
		intr:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go ir.pump(r)
	return ir
}

// pump moves bytes from the transport into the chunk channel, splitting
// out interrupts as it goes.
func (ir *interruptReader) pump(r io.Reader) {
	for {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			if i := bytes.LastIndexByte(data, interruptByte); i >= 0 {
				ir.signal()
				data = data[i+1:]
			}
			if len(data) > 0 {
				select {
				case ir.chunks <- data:
				case <-ir.done:
					return
				}
			}
		}
		if err != nil {
			ir.mu.Lock()
			ir.err = err
			ir.mu.Unlock()
			close(ir.chunks)
			return
		}
	}
}

func (ir *interruptReader) signal() {
	select {
	case ir.intr <- struct{}{}:
	default:
	}
}

// Interrupt aborts the current or next Read.
func (ir *interruptReader) Interrupt() {
	ir.signal()
}

// Interrupts exposes the interrupt channel.
func (ir *interruptReader) Interrupts() <-chan struct{} {
	return ir.intr
}

// discardBuffered drops the partial line accumulated before an interrupt,
// both the unread tail of the last chunk and any chunks still queued.
func (ir *interruptReader) discardBuffered() {
	ir.pending = nil
	for {
		select {
		case _, ok := <-ir.chunks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (ir *interruptReader) Read(p []byte) (int, error) {
	// A pending interrupt wins over buffered input.
	select {
	case <-ir.intr:
		ir.discardBuffered()
		return 0, ErrInterrupted
	default:
	}

	if len(ir.pending) > 0 {
		n := copy(p, ir.pending)
		ir.pending = ir.pending[n:]
		return n, nil
	}

	select {
	case <-ir.intr:
		ir.discardBuffered()
		return 0, ErrInterrupted
	case data, ok := <-ir.chunks:
		if !ok {
			ir.mu.Lock()
			err := ir.err
			ir.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		n := copy(p, data)
		if n < len(data) {
			ir.pending = data[n:]
		}
		return n, nil
	case <-ir.done:
		return 0, io.EOF
	}
}

// Close stops the pump. The transport itself is owned by the listener and
// is not closed here.
func (ir *interruptReader) Close() error {
	ir.closeOnce.Do(func() { close(ir.done) })
	return nil
}

// CompleteFunc computes candidates for the word under the cursor.
type CompleteFunc func(line string, cursor int) []Candidate

// termIO implements Terminal over any transport byte stream using the
// x/term line editor. The editor already handles prompt redraw around
// asynchronous writes; termIO adds interrupt handling, history injection,
// window titles and the tab-completion menu.
type termIO struct {
	conn io.Writer
	in   *interruptReader

	mu       sync.Mutex
	term     *term.Terminal
	history  term.History
	complete CompleteFunc
	prompt   string
	width    int
	height   int
}

// NewTerminal wraps a transport's byte streams in a Terminal. history may
// be nil for the editor's default in-memory history.
func NewTerminal(conn io.ReadWriter, history term.History) *termIO {
	t := &termIO{
		conn:    conn,
		in:      newInterruptReader(conn),
		history: history,
		width:   80,
		height:  24,
	}
	t.term = t.newEditor("")
	return t
}

// newEditor builds a fresh line editor sharing the termIO's reader,
// history and completion binding. Called at construction and again after
// an interrupt, which abandons the editor's partial line state.
func (t *termIO) newEditor(prompt string) *term.Terminal {
	ed := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{t.in, t.conn}, prompt)
	if t.history != nil {
		ed.History = t.history
	}
	_ = ed.SetSize(t.width, t.height)
	ed.AutoCompleteCallback = t.onKey
	return ed
}

func (t *termIO) editor() *term.Terminal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.term
}

// ReadLine reads one edited line.
func (t *termIO) ReadLine() (string, error) {
	line, err := t.editor().ReadLine()
	if err == nil {
		return line, nil
	}
	if errors.Is(err, ErrInterrupted) {
		// The abandoned editor still holds the half-typed line; start
		// over with a clean one.
		t.mu.Lock()
		t.term = t.newEditor(t.prompt)
		t.mu.Unlock()
		return "", ErrInterrupted
	}
	return "", err
}

// AskLine reads one line with a throwaway prompt, outside the shared
// history and without tab completion. Used for login-style questions
// before a session exists.
func (t *termIO) AskLine(prompt string) (string, error) {
	ed := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{t.in, t.conn}, prompt)
	t.mu.Lock()
	_ = ed.SetSize(t.width, t.height)
	t.mu.Unlock()
	line, err := ed.ReadLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// Write sends output through the editor so an in-progress prompt is
// cleared and redrawn around it.
func (t *termIO) Write(p []byte) (int, error) {
	return t.editor().Write(p)
}

// SetPrompt sets the prompt for subsequent reads.
func (t *termIO) SetPrompt(prompt string) {
	t.mu.Lock()
	t.prompt = prompt
	ed := t.term
	t.mu.Unlock()
	ed.SetPrompt(prompt)
}

// SetTitle sets the client's window title with an OSC 0 sequence.
func (t *termIO) SetTitle(title string) {
	fmt.Fprintf(t.conn, "\x1b]0;%s\a", title)
}

// Resize propagates a client window-size change to the editor.
func (t *termIO) Resize(width, height int) {
	t.mu.Lock()
	t.width, t.height = width, height
	ed := t.term
	t.mu.Unlock()
	_ = ed.SetSize(width, height)
}

// Interrupt aborts a blocked ReadLine. Safe from any goroutine.
func (t *termIO) Interrupt() {
	t.in.Interrupt()
}

// Interrupts exposes interrupt arrivals.
func (t *termIO) Interrupts() <-chan struct{} {
	return t.in.Interrupts()
}

// BindCompleter installs tab completion: a unique candidate is spliced into
// the line, multiple candidates are shown as a menu below the prompt.
func (t *termIO) BindCompleter(fn CompleteFunc) {
	t.mu.Lock()
	t.complete = fn
	t.mu.Unlock()
}

// Close releases the reader pump. The transport stays open; the listener
// that accepted the connection owns its teardown.
func (t *termIO) Close() error {
	return t.in.Close()
}

// onKey is the editor's AutoCompleteCallback; only tab is bound.
func (t *termIO) onKey(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		return "", 0, false
	}

	t.mu.Lock()
	fn := t.complete
	t.mu.Unlock()
	if fn == nil {
		return "", 0, false
	}

	candidates := fn(line, pos)
	if len(candidates) == 0 {
		return "", 0, false
	}

	parsed := ParseLine(line, pos)
	wordStart := parsed.Cursor - parsed.WordCursor

	if len(candidates) == 1 {
		value := candidates[0].Value
		newLine := line[:wordStart] + value + line[parsed.Cursor:]
		return newLine, wordStart + len(value), true
	}

	// Several candidates: extend to the longest common prefix if that
	// gains anything, otherwise display the menu.
	prefix := commonPrefix(candidates)
	if len(prefix) > len(parsed.Word[:parsed.WordCursor]) {
		newLine := line[:wordStart] + prefix + line[parsed.Cursor:]
		return newLine, wordStart + len(prefix), true
	}

	t.showMenu(candidates)
	return line, pos, true
}

// showMenu prints candidates in columns. Writing through the editor clears
// and redraws the prompt line around the menu.
func (t *termIO) showMenu(candidates []Candidate) {
	t.mu.Lock()
	width := t.width
	t.mu.Unlock()

	longest := 0
	for _, c := range candidates {
		if len(c.Display) > longest {
			longest = len(c.Display)
		}
	}
	cols := width / (longest + 2)
	if cols < 1 {
		cols = 1
	}

	var b strings.Builder
	for i, c := range candidates {
		b.WriteString(c.Display)
		if (i+1)%cols == 0 || i == len(candidates)-1 {
			b.WriteByte('\n')
		} else {
			b.WriteString(strings.Repeat(" ", longest+2-len(c.Display)))
		}
	}
	_, _ = t.Write([]byte(b.String()))
}

// commonPrefix returns the longest common prefix of all candidate values.
func commonPrefix(candidates []Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	prefix := candidates[0].Value
	for _, c := range candidates[1:] {
		for !strings.HasPrefix(c.Value, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

package interp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// bootstrap is the driver program run inside the interpreter subprocess.
// Requests arrive as JSON lines on stdin; acknowledgements leave on fd 3 so
// they never mix with script output. Script stdout/stderr are inherited
// pipes pumped to the output broadcaster on the Go side. codeop provides
// the real interactive compile check and rlcompleter the symbol-table
// completions.
const bootstrap = `
import sys, os, json, codeop, traceback
try:
    import rlcompleter
except ImportError:
    rlcompleter = None

ack = os.fdopen(3, "w", buffering=1)
ns = {"__name__": "__main__", "__doc__": None}
compiler = codeop.CommandCompiler()
completer = rlcompleter.Completer(ns) if rlcompleter else None

def respond(obj):
    ack.write(json.dumps(obj) + "\n")

while True:
    # A SIGINT landing between statements, after an ack but before the
    # next request, must not take down the shared interpreter.
    try:
        raw = sys.stdin.readline()
    except KeyboardInterrupt:
        continue
    if not raw:
        break
    try:
        req = json.loads(raw)
    except ValueError:
        continue
    op = req.get("op")
    if op == "check":
        try:
            code = compiler(req.get("src", ""), "<input>", "single")
        except (SyntaxError, OverflowError, ValueError):
            respond({"status": "invalid"})
        else:
            respond({"status": "incomplete"} if code is None else {"status": "complete"})
    elif op == "exec":
        src = req.get("src", "")
        try:
            try:
                code = compile(src, "<input>", "single")
            except SyntaxError:
                code = compile(src, "<input>", "exec")
        except SyntaxError:
            traceback.print_exc()
            sys.stderr.flush()
            respond({"status": "error"})
            continue
        try:
            exec(code, ns)
            sys.stdout.flush()
            respond({"status": "ok"})
        except SystemExit:
            raise
        except BaseException:
            traceback.print_exc()
            sys.stdout.flush()
            sys.stderr.flush()
            respond({"status": "error"})
    elif op == "complete":
        names = []
        if completer is not None:
            word = req.get("line", "")[:req.get("cursor", 0)]
            for sep in " \t,()[]{}=+-*/%<>:;|&^~@!":
                idx = word.rfind(sep)
                if idx >= 0:
                    word = word[idx + 1:]
            state = 0
            while word:
                m = completer.complete(word, state)
                if m is None or state > 200:
                    break
                names.append(m)
                state += 1
        respond({"candidates": names})
`

type pyRequest struct {
	Op     string `json:"op"`
	Src    string `json:"src,omitempty"`
	Line   string `json:"line,omitempty"`
	Cursor int    `json:"cursor,omitempty"`
}

type pyResponse struct {
	Status     string   `json:"status"`
	Candidates []string `json:"candidates"`
}

// PythonProcess drives a persistent Python subprocess as the shared
// interpreter. All requests are serialized by an internal mutex: the
// interpreter is one shared resource and submissions from concurrent
// sessions queue behind each other.
type PythonProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	acks  *bufio.Reader
	ackR  *os.File
	out   func(string)
	log   *logger.Logger

	mu     sync.Mutex
	closed bool
}

// StartPython launches command (e.g. "python3") with the embedded bootstrap
// and returns the running interpreter. out receives execution output line
// by line and must be safe for concurrent use.
func StartPython(command string, out func(string), log *logger.Logger) (*PythonProcess, error) {
	if log == nil {
		log = logger.Global()
	}

	cmd := exec.Command(command, "-u", "-c", bootstrap)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open interpreter stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open interpreter stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open interpreter stderr: %w", err)
	}

	ackR, ackW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ack pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{ackW} // fd 3 in the child

	if err := cmd.Start(); err != nil {
		ackR.Close()
		ackW.Close()
		return nil, fmt.Errorf("failed to start interpreter %q: %w", command, err)
	}
	ackW.Close()

	p := &PythonProcess{
		cmd:   cmd,
		stdin: stdin,
		acks:  bufio.NewReader(ackR),
		ackR:  ackR,
		out:   out,
		log:   log.WithPrefix("interp"),
	}

	go p.pump(stdout)
	go p.pump(stderr)

	p.log.Info("interpreter started: %s (pid %d)", command, cmd.Process.Pid)
	return p, nil
}

// pump copies interpreter output to the broadcast writer, one line per
// write so sessions can redraw their prompts between lines.
func (p *PythonProcess) pump(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if p.out != nil {
			p.out(scanner.Text() + "\n")
		}
	}
}

// roundTrip sends one request and reads its acknowledgement. Callers hold
// no lock; serialization happens here.
func (p *PythonProcess) roundTrip(req pyRequest) (pyResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roundTripLocked(req)
}

// roundTripLocked requires p.mu to be held.
func (p *PythonProcess) roundTripLocked(req pyRequest) (pyResponse, error) {
	if p.closed {
		return pyResponse{}, fmt.Errorf("interpreter is closed")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return pyResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := p.stdin.Write(append(payload, '\n')); err != nil {
		return pyResponse{}, fmt.Errorf("failed to write to interpreter: %w", err)
	}

	line, err := p.acks.ReadBytes('\n')
	if err != nil {
		return pyResponse{}, fmt.Errorf("failed to read interpreter ack: %w", err)
	}

	var resp pyResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return pyResponse{}, fmt.Errorf("failed to decode interpreter ack: %w", err)
	}
	return resp, nil
}

// CompileCheck delegates to the interpreter's codeop compile.
func (p *PythonProcess) CompileCheck(source string) Completeness {
	resp, err := p.roundTrip(pyRequest{Op: "check", Src: source})
	if err != nil {
		p.log.Error("compile check failed: %v", err)
		return Invalid
	}
	switch resp.Status {
	case "incomplete":
		return Incomplete
	case "invalid":
		return Invalid
	default:
		return Complete
	}
}

// Execute submits source as one statement and blocks until it finishes.
// Cancelling ctx sends SIGINT to the interpreter, which raises
// KeyboardInterrupt inside the running statement.
func (p *PythonProcess) Execute(ctx context.Context, source string) error {
	if resp, err := p.roundTrip(pyRequest{Op: "check", Src: source}); err == nil && resp.Status == "incomplete" {
		return ErrIncomplete
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The watchdog is armed only while this statement owns the
	// interpreter. A cancellation while the submission is still queued
	// behind another session's statement must not interrupt that one.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Interrupt()
		case <-done:
		}
	}()
	defer close(done)

	resp, err := p.roundTripLocked(pyRequest{Op: "exec", Src: source})
	if err != nil {
		return err
	}
	if resp.Status == "error" {
		// Error text already went to the broadcast writer via stderr.
		p.log.Debug("statement raised an error")
	}
	return nil
}

// Completions asks rlcompleter for candidates at the cursor.
func (p *PythonProcess) Completions(line string, cursor int) []string {
	resp, err := p.roundTrip(pyRequest{Op: "complete", Line: line, Cursor: cursor})
	if err != nil {
		p.log.Error("completion request failed: %v", err)
		return nil
	}
	return resp.Candidates
}

// Interrupt delivers SIGINT to the interpreter process.
func (p *PythonProcess) Interrupt() {
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			p.log.Warn("failed to interrupt interpreter: %v", err)
		}
	}
}

// Close shuts the interpreter down and reaps the subprocess.
func (p *PythonProcess) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stdin.Close()
	p.ackR.Close()
	err := p.cmd.Wait()
	p.log.Info("interpreter stopped")
	return err
}

// Package pidfile guards against a second server instance attaching to the
// same state directory. The shared interpreter and the history file both
// assume a single process owner.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile is a pid file at a fixed path.
type Pidfile struct {
	path string
}

// New creates a Pidfile instance. Nothing touches the filesystem until
// Acquire.
func New(path string) *Pidfile {
	return &Pidfile{path: path}
}

// Path returns the pid file path.
func (p *Pidfile) Path() string {
	return p.path
}

// Acquire writes the current pid, refusing if another live process holds
// the file. A pid file left behind by a dead process is taken over.
func (p *Pidfile) Acquire() error {
	if pid, err := p.read(); err == nil && pidAlive(pid) {
		return fmt.Errorf("already running as pid %d (pidfile %s)", pid, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Release removes the pid file. Missing files are fine.
func (p *Pidfile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

func (p *Pidfile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", p.path, err)
	}
	return pid, nil
}

// pidAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}

package shell

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxHistoryEntries bounds how many lines are kept in memory and replayed
// into new sessions.
const maxHistoryEntries = 1000

// FileHistory is a line history shared by every session of one type. It
// satisfies the terminal History interface (Add/Len/At) and appends each
// accepted line to a plain text file, one line per entry, so history
// survives reconnects and restarts.
type FileHistory struct {
	mu      sync.Mutex
	path    string
	entries []string // oldest first
	file    *os.File
}

// OpenFileHistory loads existing history from path (creating the file and
// its directory if needed). An empty path yields an in-memory history.
func OpenFileHistory(path string) (*FileHistory, error) {
	h := &FileHistory{path: path}
	if path == "" {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	h.file = file

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.entries = append(h.entries, line)
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}

	return h, nil
}

// Add records a line as the most recent entry. Blank lines and consecutive
// duplicates are dropped, matching conventional shell history behavior.
func (h *FileHistory) Add(entry string) {
	if entry == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
		return
	}

	h.entries = append(h.entries, entry)
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[1:]
	}

	if h.file != nil {
		// Best effort; a full disk should not break the session.
		_, _ = fmt.Fprintln(h.file, entry)
	}
}

// Len returns the number of entries.
func (h *FileHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// At returns the entry with age idx, where 0 is the most recent.
func (h *FileHistory) At(idx int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx < 0 || idx >= len(h.entries) {
		return ""
	}
	return h.entries[len(h.entries)-1-idx]
}

// Close closes the backing file.
func (h *FileHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}

package interp

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// pythonKeywords seeds the static interpreter's completion table.
var pythonKeywords = []string{
	"and", "as", "assert", "break", "class", "continue", "def", "del",
	"elif", "else", "except", "finally", "for", "from", "global", "if",
	"import", "in", "is", "lambda", "not", "or", "pass", "print",
	"raise", "return", "try", "while", "with", "yield",
}

// Local is the interpreter used when no interpreter command is configured.
// It checks statements with the tree-sitter grammar and records accepted
// source to grow its completion table, but executes nothing. Useful for
// development and for exercising the session machinery offline.
type Local struct {
	checker *Checker
	out     func(string)

	mu    sync.Mutex
	names map[string]struct{}
}

// NewLocal creates a Local interpreter. out receives error text produced at
// submission time (may be nil).
func NewLocal(out func(string)) *Local {
	names := make(map[string]struct{}, len(pythonKeywords))
	for _, kw := range pythonKeywords {
		names[kw] = struct{}{}
	}
	return &Local{
		checker: NewChecker(),
		out:     out,
		names:   names,
	}
}

// CompileCheck classifies source without side effects.
func (l *Local) CompileCheck(source string) Completeness {
	return l.checker.Check(source)
}

// Execute accepts source, harvesting identifiers for later completion.
// Invalid source produces error text on the broadcast writer; incomplete
// source returns ErrIncomplete.
func (l *Local) Execute(_ context.Context, source string) error {
	switch l.checker.Check(source) {
	case Incomplete:
		return ErrIncomplete
	case Invalid:
		if l.out != nil {
			l.out("SyntaxError: invalid syntax\n")
		}
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	harvestIdentifiers(source, l.names)
	return nil
}

// Completions returns recorded names matching the word under the cursor.
func (l *Local) Completions(line string, cursor int) []string {
	prefix := wordBefore(line, cursor)

	l.mu.Lock()
	defer l.mu.Unlock()

	var matches []string
	for name := range l.names {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}

// wordBefore returns the identifier fragment immediately left of cursor.
func wordBefore(line string, cursor int) string {
	if cursor > len(line) {
		cursor = len(line)
	}
	if cursor < 0 {
		cursor = 0
	}
	start := cursor
	for start > 0 {
		ch := line[start-1]
		if ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' {
			start--
			continue
		}
		break
	}
	return line[start:cursor]
}

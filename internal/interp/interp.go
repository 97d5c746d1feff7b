// Package interp defines the boundary to the shared scripting interpreter
// and provides the two implementations the server ships with: a persistent
// Python subprocess and a static checker used when no interpreter command
// is configured.
//
// The interpreter is a single shared resource. Submissions from different
// sessions are serialized by the implementation; execution output is never
// returned from Execute but streamed through the output broadcaster so that
// every connected session sees it.
package interp

import (
	"context"
	"errors"
)

// Completeness is the verdict of an interactive compile check.
type Completeness int

const (
	// Complete means the source compiles as a full statement.
	Complete Completeness = iota
	// Incomplete means the interpreter needs more input to finish the
	// statement (continuation prompt).
	Incomplete
	// Invalid means the source cannot compile. The error itself is
	// surfaced at execution time, not by the check.
	Invalid
)

// String returns the verdict name.
func (c Completeness) String() string {
	switch c {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrIncomplete is returned by Execute when the submitted source was itself
// an incomplete statement. Single-command connections report it to the
// client as an error; interactive sessions never see it because they check
// completeness before submitting.
var ErrIncomplete = errors.New("incomplete statement")

// Translator rewrites syntactic sugar of the host environment into plain
// interpreter source before compilation or execution. A nil Translator is
// the identity.
type Translator func(string) string

// Translate applies t to source, treating nil as the identity function.
func (t Translator) Translate(source string) string {
	if t == nil {
		return source
	}
	return t(source)
}

// Interpreter is the narrow interface the session layer consumes.
type Interpreter interface {
	// CompileCheck reports whether source is a complete statement, needs
	// more input, or cannot compile. It must not execute anything.
	CompileCheck(source string) Completeness

	// Execute runs source as one statement. Output and error text are
	// delivered through the output broadcaster. Returns ErrIncomplete if
	// the source needed more input.
	Execute(ctx context.Context, source string) error

	// Completions returns candidate completions for the word under the
	// cursor, sourced from the interpreter's symbol table.
	Completions(line string, cursor int) []string
}

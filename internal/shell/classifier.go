package shell

import (
	"github.com/openGDA/gda-core-sub061/internal/interp"
)

// ParseContext says why the classifier is being consulted. Only an
// accept-line request pays for a real compile check; everything else (line
// editing, history navigation, completion) returns Complete unconditionally
// so that no compilation happens per keystroke.
type ParseContext int

const (
	// ContextAcceptLine is the user pressing enter to execute.
	ContextAcceptLine ParseContext = iota
	// ContextComplete is a completion request.
	ContextComplete
	// ContextEdit is any other editing or history interaction.
	ContextEdit
)

// Classifier decides whether accumulated source is a complete statement, an
// incomplete one that needs a continuation line, or invalid. The real
// decision is delegated to the interpreter's interactive compile check; an
// optional translator rewrites host syntactic sugar first.
//
// Classify is side-effect free: it never mutates the source and yields the
// same verdict for the same input against a fixed interpreter state.
type Classifier struct {
	interp    interp.Interpreter
	translate interp.Translator
}

// NewClassifier creates a classifier over the shared interpreter.
// translate may be nil.
func NewClassifier(in interp.Interpreter, translate interp.Translator) *Classifier {
	return &Classifier{interp: in, translate: translate}
}

// Classify returns the completeness verdict for source with the cursor at
// the given byte offset.
func (c *Classifier) Classify(source string, cursor int, pctx ParseContext) interp.Completeness {
	if pctx != ContextAcceptLine {
		return interp.Complete
	}

	// Accepting while the cursor is mid-buffer must never execute; the
	// user is still editing.
	if cursor < len(source) {
		return interp.Incomplete
	}

	return c.interp.CompileCheck(c.translate.Translate(source))
}

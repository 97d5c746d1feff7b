package shell

import (
	"github.com/openGDA/gda-core-sub061/internal/interp"
)

// Candidate is one completion choice. Display text equals the completion
// text; no descriptions or grouping.
type Candidate struct {
	Value   string
	Display string
}

// Completer produces completion candidates for a partial line by asking the
// interpreter's symbol-table introspection.
type Completer struct {
	interp interp.Interpreter
}

// NewCompleter creates a completer over the shared interpreter.
func NewCompleter(in interp.Interpreter) *Completer {
	return &Completer{interp: in}
}

// Complete returns the ordered candidates for the word under the cursor.
// Empty and all-delimiter lines are fine: the current word is simply empty
// and the interpreter sees the line as-is.
func (c *Completer) Complete(line string, cursor int) []Candidate {
	parsed := ParseLine(line, cursor)

	values := c.interp.Completions(line, parsed.Cursor)
	candidates := make([]Candidate, 0, len(values))
	for _, v := range values {
		candidates = append(candidates, Candidate{Value: v, Display: v})
	}
	return candidates
}

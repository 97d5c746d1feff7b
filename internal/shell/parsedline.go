// Package shell implements the per-connection command session: line
// parsing and completion, multi-line statement accumulation, the
// interactive read/execute loop, and asynchronous output delivery to the
// session's terminal.
package shell

// ParsedLine is the word-level view of an input line at a cursor position.
// It is recomputed per completion request, never persisted.
type ParsedLine struct {
	// Line is the raw input line.
	Line string
	// Cursor is the byte offset of the cursor within Line.
	Cursor int
	// Word is the word under the cursor; empty when the cursor sits on a
	// delimiter. For an empty or all-delimiter line, Word is "" and
	// WordIndex counts the words before the cursor (0 for an empty line).
	Word string
	// WordCursor is the cursor offset relative to the start of Word,
	// always in [0, len(Word)].
	WordCursor int
	// WordIndex is the 0-based position of the current word among all
	// words.
	WordIndex int
	// Words is the ordered sequence of all words in the line, before and
	// after the cursor.
	Words []string
}

// isWordByte reports whether b belongs to a word. Everything outside
// [A-Za-z0-9_] is a delimiter.
func isWordByte(b byte) bool {
	return b == '_' ||
		b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9'
}

// ParseLine splits line into words and locates the word under the cursor.
// The cursor is clamped into [0, len(line)].
func ParseLine(line string, cursor int) ParsedLine {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(line) {
		cursor = len(line)
	}

	type span struct{ start, end int }
	var spans []span
	start := -1
	for i := 0; i <= len(line); i++ {
		if i < len(line) && isWordByte(line[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, span{start, i})
			start = -1
		}
	}

	parsed := ParsedLine{
		Line:   line,
		Cursor: cursor,
		Words:  make([]string, 0, len(spans)),
	}
	for _, sp := range spans {
		parsed.Words = append(parsed.Words, line[sp.start:sp.end])
	}

	for i, sp := range spans {
		if cursor >= sp.start && cursor <= sp.end {
			parsed.Word = line[sp.start:sp.end]
			parsed.WordCursor = cursor - sp.start
			parsed.WordIndex = i
			return parsed
		}
	}

	// Cursor sits on a delimiter: the current word is empty and the word
	// index counts the words wholly before the cursor.
	idx := 0
	for _, sp := range spans {
		if sp.end < cursor {
			idx++
		}
	}
	parsed.WordIndex = idx
	return parsed
}

package interp

import (
	"strings"
	"sync"
)

// AliasTranslator rewrites beamline console shorthand into interpreter
// calls before submission. A registered alias turns "pos motor1 5" into
// "pos(motor1, 5)"; everything unrecognised passes through untouched so
// the interpreter surfaces real syntax errors itself. The "alias" command
// registers further names at runtime.
type AliasTranslator struct {
	mu      sync.RWMutex
	aliases map[string]bool // name -> callable with no arguments
}

// NewAliasTranslator creates an empty translator.
func NewAliasTranslator() *AliasTranslator {
	return &AliasTranslator{aliases: make(map[string]bool)}
}

// Alias registers command names that require at least one argument. A bare
// "inc" stays untouched while "inc motor 0.1" becomes "inc(motor, 0.1)".
func (t *AliasTranslator) Alias(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		if n != "" {
			t.aliases[n] = false
		}
	}
}

// AliasVararg registers command names that may also be called bare, so
// "pos" alone becomes "pos()".
func (t *AliasTranslator) AliasVararg(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		if n != "" {
			t.aliases[n] = true
		}
	}
}

// Translate rewrites each line of source independently, preserving
// indentation so shorthand inside a suite still translates.
func (t *AliasTranslator) Translate(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = t.translateLine(line)
	}
	return strings.Join(lines, "\n")
}

func (t *AliasTranslator) translateLine(line string) string {
	body := strings.TrimSpace(line)
	if body == "" || strings.HasPrefix(body, "#") {
		return line
	}
	indent := line[:strings.Index(line, body[:1])]

	args := splitCommand(body)
	if len(args) == 0 {
		return line
	}
	name := args[0]

	if name == "alias" && len(args) == 2 {
		t.Alias(args[1])
		return indent
	}

	t.mu.RLock()
	bare, known := t.aliases[name]
	t.mu.RUnlock()
	if !known {
		return line
	}

	if len(args) == 1 {
		if !bare {
			return line
		}
		return indent + name + "()"
	}

	// Assignments to an aliased name and explicit calls are real Python.
	rest := strings.TrimSpace(body[len(name):])
	if strings.HasPrefix(rest, "(") || strings.HasPrefix(rest, ".") {
		return line
	}
	if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
		return line
	}

	return indent + name + "(" + strings.Join(args[1:], ", ") + ")"
}

// splitCommand splits a console line on whitespace, keeping bracketed and
// quoted runs together so "pos motor [1, 2]" yields three fields.
func splitCommand(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		depth int
		quote rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '(' || r == '[' || r == '{':
			depth++
			cur.WriteRune(r)
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

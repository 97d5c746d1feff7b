package interp

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Checker performs interactive completeness checks on Python source using a
// tree-sitter parse, without talking to a running interpreter. Verdicts
// follow interactive-console conventions: a compound statement is complete
// only once its terminating blank line has been entered.
type Checker struct{}

// NewChecker creates a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check classifies source. It is side-effect free and deterministic for a
// fixed input.
func (c *Checker) Check(source string) Completeness {
	if strings.TrimSpace(source) == "" {
		return Complete
	}

	lines := strings.Split(source, "\n")
	lastBlank := strings.TrimSpace(lines[len(lines)-1]) == ""

	// Explicit line continuation.
	if !lastBlank && strings.HasSuffix(strings.TrimRight(source, " \t\n"), "\\") {
		return Incomplete
	}

	hasErr, hasMissing, errAtEOF, emptyBody := parsePython(source)

	if hasErr {
		if lastBlank {
			// The user terminated the statement; let execution
			// surface the real error.
			return Invalid
		}
		if hasMissing || errAtEOF {
			return Incomplete
		}
		return Invalid
	}

	// The grammar accepts a bare compound-statement header such as
	// "def f(x):" without complaint, synthesizing an empty body block.
	// Interactively that is an unfinished suite, not a statement.
	if emptyBody {
		if lastBlank {
			return Invalid
		}
		return Incomplete
	}

	// A syntactically valid multi-line statement still waits for its
	// terminating blank line, as in an interactive console.
	if len(lines) > 1 && !lastBlank {
		return Incomplete
	}
	return Complete
}

// parsePython parses source with the Python grammar and reports whether the
// tree has errors, whether any node is a MISSING token, whether an error
// node extends to the end of the input, and whether any compound statement
// carries an empty body block.
func parsePython(source string) (hasErr, hasMissing, errAtEOF, emptyBody bool) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return true, false, false, false
	}

	src := []byte(source)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return true, false, false, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return true, false, false, false
	}
	hasErr = root.HasError()

	end := uint(len(strings.TrimRight(source, " \t\n")))

	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.IsMissing() {
			hasMissing = true
		}
		if n.IsError() && n.EndByte() >= end {
			errAtEOF = true
		}
		if n.Kind() == "block" && n.NamedChildCount() == 0 {
			emptyBody = true
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return hasErr, hasMissing, errAtEOF, emptyBody
}

// harvestIdentifiers collects every identifier in source. Used by the
// static interpreter to grow its completion symbol table as statements are
// accepted.
func harvestIdentifiers(source string, into map[string]struct{}) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return
	}

	src := []byte(source)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return
	}
	defer tree.Close()

	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "identifier" {
			start, stop := n.StartByte(), n.EndByte()
			if start < stop && stop <= uint(len(src)) {
				into[string(src[start:stop])] = struct{}{}
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
}

package interp

import (
	"testing"
)

func TestCheckerVerdicts(t *testing.T) {
	checker := NewChecker()

	testCases := []struct {
		name   string
		source string
		want   Completeness
	}{
		{
			name:   "empty input",
			source: "",
			want:   Complete,
		},
		{
			name:   "whitespace only",
			source: "   \n",
			want:   Complete,
		},
		{
			name:   "simple expression",
			source: "1+1",
			want:   Complete,
		},
		{
			name:   "function call",
			source: "scan(motor1, 0, 10, 0.1)",
			want:   Complete,
		},
		{
			name:   "assignment",
			source: "x = pos()",
			want:   Complete,
		},
		{
			name:   "def header needs body",
			source: "def f(x):",
			want:   Incomplete,
		},
		{
			name:   "def with body waits for blank line",
			source: "def f(x):\n    return x+1",
			want:   Incomplete,
		},
		{
			name:   "def terminated by blank line",
			source: "def f(x):\n    return x+1\n",
			want:   Complete,
		},
		{
			name:   "for header needs body",
			source: "for i in range(3):",
			want:   Incomplete,
		},
		{
			name:   "while header needs body",
			source: "while running():",
			want:   Incomplete,
		},
		{
			name:   "class header needs body",
			source: "class Detector:",
			want:   Incomplete,
		},
		{
			name:   "bare header terminated by blank line",
			source: "def f(x):\n",
			want:   Invalid,
		},
		{
			name:   "if else chain terminated",
			source: "if x:\n    a()\nelse:\n    b()\n",
			want:   Complete,
		},
		{
			name:   "open parenthesis",
			source: "print(",
			want:   Incomplete,
		},
		{
			name:   "open bracket across lines",
			source: "xs = [1,\n2,",
			want:   Incomplete,
		},
		{
			name:   "explicit line continuation",
			source: "total = 1 + \\",
			want:   Incomplete,
		},
		{
			name:   "broken syntax terminated by blank line",
			source: "def f(:\n",
			want:   Invalid,
		},
		{
			name:   "unbalanced close terminated by blank line",
			source: "x = )\n",
			want:   Invalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := checker.Check(tc.source); got != tc.want {
				t.Errorf("Check(%q) = %v, want %v", tc.source, got, tc.want)
			}
		})
	}
}

// Repeated checks of the same source must agree; checking must leave no
// state behind that changes a later verdict.
func TestCheckerDeterministic(t *testing.T) {
	checker := NewChecker()
	sources := []string{"def f(x):", "1+1", "print(", "x = [1,2,3]"}

	var first []Completeness
	for _, s := range sources {
		first = append(first, checker.Check(s))
	}
	for round := 0; round < 3; round++ {
		for i, s := range sources {
			if got := checker.Check(s); got != first[i] {
				t.Fatalf("round %d: Check(%q) = %v, previously %v", round, s, got, first[i])
			}
		}
	}
}

func TestLocalExecuteGrowsCompletionTable(t *testing.T) {
	l := NewLocal(nil)

	if err := l.Execute(nil, "my_motor = 5"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := l.Completions("my_m", 4)
	if len(got) != 1 || got[0] != "my_motor" {
		t.Fatalf("Completions = %v, want [my_motor]", got)
	}
}

func TestLocalExecuteIncomplete(t *testing.T) {
	l := NewLocal(nil)
	if err := l.Execute(nil, "def f(x):"); err != ErrIncomplete {
		t.Fatalf("Execute = %v, want ErrIncomplete", err)
	}
}

func TestLocalExecuteInvalidEmitsErrorText(t *testing.T) {
	var out []string
	l := NewLocal(func(s string) { out = append(out, s) })

	if err := l.Execute(nil, "def f(:\n"); err != nil {
		t.Fatalf("Execute = %v, want nil for invalid source", err)
	}
	if len(out) != 1 || out[0] != "SyntaxError: invalid syntax\n" {
		t.Fatalf("output = %v", out)
	}
}

func TestLocalCompletionsKeywordsSeeded(t *testing.T) {
	l := NewLocal(nil)

	got := l.Completions("imp", 3)
	if len(got) != 1 || got[0] != "import" {
		t.Fatalf("Completions = %v, want [import]", got)
	}
}

func TestWordBefore(t *testing.T) {
	testCases := []struct {
		line   string
		cursor int
		want   string
	}{
		{"scan mot", 8, "mot"},
		{"scan mot", 4, "scan"},
		{"scan mot", 5, ""},
		{"", 0, ""},
		{"a.b", 3, "b"},
		{"x", 99, "x"},
	}
	for _, tc := range testCases {
		if got := wordBefore(tc.line, tc.cursor); got != tc.want {
			t.Errorf("wordBefore(%q, %d) = %q, want %q", tc.line, tc.cursor, got, tc.want)
		}
	}
}

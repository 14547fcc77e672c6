package sexy

import (
	"testing"

	"github.com/nalgeon/be"
)

func mustParse(t *testing.T, input string) *Node {
	t.Helper()
	node, err := Parse(input)
	be.Err(t, err, nil)
	return node
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		actual  string
	}{
		{`(lit 5)`, `(lit 5)`},
		{`(lit _)`, `(lit 5)`},
		{`(binary "+" ...)`, `(binary "+" (lit 1) (lit 2))`},
		{`(module ... (global $x (mut i32) (i32.const 5)) ...)`,
			`(module (func $print) (global $x (mut i32) (i32.const 5)) (func (export "exported_func")))`},
		{`(f ...)`, `(f)`},
		{`(f ... c)`, `(f a b c)`},
		{`(lit 5)`, `(lit ^{type: int} 5)`},
		{`(lit ^{type: int} 5)`, `(lit ^{type: int} 5)`},
		{`[... (param "b" int)]`, `[(param "a" int) (param "b" int)]`},
		{`{type: int}`, `{type: int, returns: none}`},
	}
	for _, test := range tests {
		err := Match(mustParse(t, test.pattern), mustParse(t, test.actual))
		be.Err(t, err, nil)
	}
}

func TestMatchMismatch(t *testing.T) {
	tests := []struct {
		pattern string
		actual  string
		err     string
	}{
		{`(lit 5)`, `(lit 6)`, "at root[1]: expected 5, got 6"},
		{`(lit 5)`, `(lit "5")`, "at root[1]: expected integer 5, got string"},
		{`(lit)`, `(lit 5)`, "at root[1]: unexpected 5"},
		{`(lit 5 6)`, `(lit 5)`, "at root[2]: missing 6"},
		{`(lit ^{type: int} 5)`, `(lit 5)`, "missing metadata type"},
		{`(lit ^{type: int} 5)`, `(lit ^{type: bool} 5)`, "at root^type: expected int, got bool"},
		{`(f ... d)`, `(f a b c)`, "d"},
		{`{type: int}`, `{returns: int}`, "missing key type"},
	}
	for _, test := range tests {
		err := Match(mustParse(t, test.pattern), mustParse(t, test.actual))
		be.Err(t, err, test.err)
	}
}

package main

import (
	"fmt"
	"sort"
)

// Pos is a 1-based line and column in the source text. The zero Pos means
// "unknown" and is omitted from error messages.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) IsKnown() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	return fmt.Sprintf("line %d, col %d", p.Line, p.Col)
}

// lineIndex maps byte offsets to line/column positions.
type lineIndex []int

func newLineIndex(source string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (li lineIndex) pos(offset int) Pos {
	line := sort.SearchInts(li, offset+1) - 1
	return Pos{Line: line + 1, Col: offset - li[line] + 1}
}

// ParseError reports source that the tokenizer, the grammar or the AST
// builder rejects.
type ParseError struct {
	Pos Pos
	Msg string
}

func (e *ParseError) Error() string {
	return formatError("ParseError", e.Pos, e.Msg)
}

// TypeError reports a semantic violation found by the type checker.
type TypeError struct {
	Pos Pos
	Msg string
}

func (e *TypeError) Error() string {
	return formatError("TypeError", e.Pos, e.Msg)
}

// CompileError is an internal invariant failure in the code generator. A
// correct type checker never lets one through.
type CompileError struct {
	Msg string
}

func (e *CompileError) Error() string {
	return "CompileError: " + e.Msg
}

func formatError(kind string, pos Pos, msg string) string {
	if !pos.IsKnown() {
		return kind + ": " + msg
	}
	return fmt.Sprintf("%s: %s (%s)", kind, msg, pos)
}

func parseErrorf(pos Pos, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(pos Pos, format string, args ...any) *TypeError {
	return &TypeError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

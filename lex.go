package main

import "strings"

// TokenType is the type of token (identifier, operator, literal, etc.).
type TokenType string

// Definition of token types
const (
	EOF     TokenType = "EOF"
	NEWLINE TokenType = "NEWLINE"
	INDENT  TokenType = "INDENT"
	DEDENT  TokenType = "DEDENT"

	IDENT   TokenType = "IDENT"  // main, foo, _bar
	INT     TokenType = "INT"    // 12345
	STRING  TokenType = "STRING" // "abc", 'abc'
	KEYWORD TokenType = "KEYWORD"
	OP      TokenType = "OP" // operators and delimiters
)

// Token is one lexeme. From and To are byte offsets into the source.
type Token struct {
	Type TokenType
	Text string
	From int
	To   int
}

var keywords = map[string]bool{
	"def": true, "if": true, "elif": true, "else": true, "while": true,
	"for": true, "in": true, "return": true, "pass": true, "break": true,
	"continue": true, "not": true, "is": true, "and": true, "or": true,
	"True": true, "False": true, "None": true,

	// Reserved but never accepted by the grammar.
	"class": true, "import": true, "from": true, "global": true,
	"nonlocal": true, "lambda": true, "del": true, "yield": true,
	"with": true, "try": true, "except": true, "finally": true,
	"raise": true, "assert": true, "async": true, "await": true, "as": true,
}

// Longest operators first.
var operators = []string{
	"**", "//", "==", "!=", "<=", ">=", "->", "<<", ">>",
	"+", "-", "*", "/", "%", "<", ">", "=", "(", ")", "[", "]",
	",", ":", ".", "~", "&", "|", "^",
}

const tabWidth = 8

type lexer struct {
	source  string
	lines   lineIndex
	pos     int
	depth   int // bracket nesting; newlines inside brackets are not significant
	indents []int
	tokens  []Token
}

// Tokenize splits Python source into tokens, synthesizing NEWLINE, INDENT
// and DEDENT tokens from line structure. The returned slice always ends with
// EOF.
func Tokenize(source string) ([]Token, error) {
	return tokenize(source, newLineIndex(source))
}

func tokenize(source string, lines lineIndex) ([]Token, error) {
	l := &lexer{source: source, lines: lines, indents: []int{0}}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	atLineStart := true
	for {
		if atLineStart && l.depth == 0 {
			skipped, err := l.indentation()
			if err != nil {
				return err
			}
			if skipped {
				if l.atEnd() {
					break
				}
				continue
			}
			atLineStart = false
		}

		l.skipWhitespace()
		if l.atEnd() {
			break
		}

		c := l.source[l.pos]
		switch {
		case c == '\\' && l.peekAt(1) == '\n':
			l.pos += 2

		case c == '\n':
			if l.depth == 0 {
				l.emitNewline(l.pos, l.pos+1)
				atLineStart = true
			}
			l.pos++

		case isDigit(c):
			if err := l.readNumber(); err != nil {
				return err
			}

		case isLetter(c):
			l.readIdentifier()

		case c == '"' || c == '\'':
			if err := l.readString(c); err != nil {
				return err
			}

		default:
			if !l.readOperator() {
				return parseErrorf(l.lines.pos(l.pos), "unexpected character %q", c)
			}
		}
	}

	if l.depth > 0 {
		return parseErrorf(l.lines.pos(l.pos), "unexpected end of input inside brackets")
	}
	l.emitNewline(l.pos, l.pos)
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(DEDENT, l.pos, l.pos)
	}
	l.emit(EOF, l.pos, l.pos)
	return nil
}

// indentation measures the leading whitespace of a line and emits INDENT or
// DEDENT tokens. Blank and comment-only lines are consumed whole and
// reported as skipped.
func (l *lexer) indentation() (bool, error) {
	start := l.pos
	width := 0
	for !l.atEnd() {
		c := l.source[l.pos]
		if c == ' ' {
			width++
		} else if c == '\t' {
			width += tabWidth - width%tabWidth
		} else {
			break
		}
		l.pos++
	}

	if l.atEnd() {
		return true, nil
	}
	switch l.source[l.pos] {
	case '\n', '\r', '#':
		for !l.atEnd() && l.source[l.pos] != '\n' {
			l.pos++
		}
		if !l.atEnd() {
			l.pos++
		}
		return true, nil
	}

	current := l.indents[len(l.indents)-1]
	if width > current {
		if len(l.tokens) == 0 {
			return false, parseErrorf(l.lines.pos(l.pos), "unexpected indent")
		}
		l.indents = append(l.indents, width)
		l.emit(INDENT, start, l.pos)
		return false, nil
	}
	for width < l.indents[len(l.indents)-1] {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(DEDENT, l.pos, l.pos)
	}
	if width != l.indents[len(l.indents)-1] {
		return false, parseErrorf(l.lines.pos(l.pos), "unindent does not match any outer indentation level")
	}
	return false, nil
}

func (l *lexer) skipWhitespace() {
	for !l.atEnd() {
		c := l.source[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\f' {
			l.pos++
		} else if c == '\n' && l.depth > 0 {
			l.pos++
		} else if c == '#' {
			for !l.atEnd() && l.source[l.pos] != '\n' {
				l.pos++
			}
		} else {
			return
		}
	}
}

func (l *lexer) readNumber() error {
	start := l.pos
	for !l.atEnd() && isDigit(l.source[l.pos]) {
		l.pos++
	}
	if !l.atEnd() && (isLetter(l.source[l.pos]) || l.source[l.pos] == '.') {
		return parseErrorf(l.lines.pos(start), "invalid number literal")
	}
	// Decimal literals other than zero cannot start with 0.
	if text := l.source[start:l.pos]; text[0] == '0' && strings.Trim(text, "0") != "" {
		return parseErrorf(l.lines.pos(start), "invalid number literal %s: leading zeros are not allowed", text)
	}
	l.emit(INT, start, l.pos)
	return nil
}

func (l *lexer) readIdentifier() {
	start := l.pos
	for !l.atEnd() && (isLetter(l.source[l.pos]) || isDigit(l.source[l.pos])) {
		l.pos++
	}
	if keywords[l.source[start:l.pos]] {
		l.emit(KEYWORD, start, l.pos)
	} else {
		l.emit(IDENT, start, l.pos)
	}
}

func (l *lexer) readString(quote byte) error {
	start := l.pos
	l.pos++ // skip opening quote
	for {
		if l.atEnd() || l.source[l.pos] == '\n' {
			return parseErrorf(l.lines.pos(start), "unterminated string literal")
		}
		c := l.source[l.pos]
		if c == '\\' {
			l.pos += 2
			continue
		}
		l.pos++
		if c == quote {
			break
		}
	}
	l.emit(STRING, start, l.pos)
	return nil
}

func (l *lexer) readOperator() bool {
	for _, op := range operators {
		if len(l.source)-l.pos >= len(op) && l.source[l.pos:l.pos+len(op)] == op {
			start := l.pos
			l.pos += len(op)
			switch op {
			case "(", "[":
				l.depth++
			case ")", "]":
				if l.depth > 0 {
					l.depth--
				}
			}
			l.emit(OP, start, l.pos)
			return true
		}
	}
	return false
}

// emitNewline emits a NEWLINE unless the previous token already ends a
// logical line.
func (l *lexer) emitNewline(from, to int) {
	if len(l.tokens) == 0 {
		return
	}
	switch l.tokens[len(l.tokens)-1].Type {
	case NEWLINE, INDENT, DEDENT:
		return
	}
	l.emit(NEWLINE, from, to)
}

func (l *lexer) emit(typ TokenType, from, to int) {
	l.tokens = append(l.tokens, Token{Type: typ, Text: l.source[from:to], From: from, To: to})
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.source) {
		return 0
	}
	return l.source[l.pos+n]
}

func (l *lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// Package sexy reads the S-expressions used by the compiler's markdown test
// cases and by its WAT interpreter.
package sexy

import (
	"fmt"
	"strings"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeInteger
	NodeEllipsis
	NodeList
	NodeMap
	NodeArray
)

func (t NodeType) String() string {
	switch t {
	case NodeSymbol:
		return "symbol"
	case NodeString:
		return "string"
	case NodeInteger:
		return "integer"
	case NodeEllipsis:
		return "ellipsis"
	case NodeList:
		return "list"
	case NodeMap:
		return "map"
	case NodeArray:
		return "array"
	default:
		return fmt.Sprintf("node type %d", int(t))
	}
}

// Node is one datum.
type Node struct {
	Type NodeType

	Text string // NodeSymbol, NodeString, NodeInteger

	Items []*Node  // NodeList, NodeMap, NodeArray
	Keys  []string // NodeMap, parallel to Items

	// Metadata written as ^{key: value} inside a list.
	MetaKeys  []string
	MetaItems []*Node
}

func (n *Node) String() string {
	switch n.Type {
	case NodeSymbol, NodeInteger:
		return n.Text
	case NodeString:
		escaped := strings.ReplaceAll(n.Text, "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		return "\"" + escaped + "\""
	case NodeEllipsis:
		return "..."
	case NodeList:
		var parts []string
		for i, item := range n.Items {
			parts = append(parts, item.String())
			if i == 0 && len(n.MetaKeys) > 0 {
				parts = append(parts, "^"+pairs(n.MetaKeys, n.MetaItems))
			}
		}
		if len(n.Items) == 0 && len(n.MetaKeys) > 0 {
			parts = append(parts, "^"+pairs(n.MetaKeys, n.MetaItems))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case NodeMap:
		return pairs(n.Keys, n.Items)
	case NodeArray:
		var parts []string
		for _, item := range n.Items {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("UNKNOWN_NODE_TYPE_%d", n.Type)
	}
}

func pairs(keys []string, items []*Node) string {
	var parts []string
	for i, key := range keys {
		parts = append(parts, key+": "+items[i].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Meta returns the metadata value stored under key, or nil.
func (n *Node) Meta(key string) *Node {
	for i, k := range n.MetaKeys {
		if k == key {
			return n.MetaItems[i]
		}
	}
	return nil
}

// Head returns the symbol text of a list's first item, or "".
func (n *Node) Head() string {
	if n.Type != NodeList || len(n.Items) == 0 || n.Items[0].Type != NodeSymbol {
		return ""
	}
	return n.Items[0].Text
}

func NewSymbol(name string) *Node {
	return &Node{Type: NodeSymbol, Text: name}
}

func NewString(value string) *Node {
	return &Node{Type: NodeString, Text: value}
}

func NewInteger(text string) *Node {
	return &Node{Type: NodeInteger, Text: text}
}

func NewList(items ...*Node) *Node {
	return &Node{Type: NodeList, Items: items}
}

type parser struct {
	lexer *lexer
	curr  token
	peek  token
}

// Parse parses input, which must hold exactly one datum.
func Parse(input string) (*Node, error) {
	nodes, err := ParseAll(input)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("expected one datum but got %d", len(nodes))
	}
	return nodes[0], nil
}

// ParseAll parses a sequence of data.
func ParseAll(input string) ([]*Node, error) {
	p := &parser{lexer: &lexer{input: input}}
	p.next()
	p.next()

	var nodes []*Node
	for p.curr.Type != tokenEOF {
		node, err := p.parseDatum()
		if err != nil {
			if p.lexer.err != nil {
				return nil, p.lexer.err
			}
			return nil, err
		}
		nodes = append(nodes, node)
	}
	// Lexer errors take priority because they might cause confusing parser errors.
	if p.lexer.err != nil {
		return nil, p.lexer.err
	}
	return nodes, nil
}

func (p *parser) next() {
	p.curr = p.peek
	p.peek = p.lexer.nextToken()
}

func (p *parser) parseDatum() (*Node, error) {
	if p.lexer.err != nil {
		return nil, p.lexer.err
	}
	tok := p.curr
	switch tok.Type {
	case tokenSymbol:
		p.next()
		return NewSymbol(tok.Value), nil
	case tokenString:
		p.next()
		return NewString(tok.Value), nil
	case tokenInteger:
		p.next()
		return NewInteger(tok.Value), nil
	case tokenEllipsis:
		p.next()
		return &Node{Type: NodeEllipsis}, nil
	case tokenLParen:
		return p.parseList()
	case tokenLBrace:
		return p.parseMap()
	case tokenLBracket:
		return p.parseArray()
	default:
		return nil, fmt.Errorf("offset %d: unexpected %s", tok.Position, tok.Type)
	}
}

func (p *parser) parseList() (*Node, error) {
	list := &Node{Type: NodeList}
	p.next() // consume '('

	for p.curr.Type != tokenRParen && p.curr.Type != tokenEOF {
		if p.curr.Type == tokenCaret {
			p.next()
			if p.curr.Type != tokenLBrace {
				return nil, fmt.Errorf("offset %d: expected '{' after '^' but got %s", p.curr.Position, p.curr.Type)
			}
			meta, err := p.parseMap()
			if err != nil {
				return nil, err
			}
			for i, key := range meta.Keys {
				list.setMeta(key, meta.Items[i])
			}
			continue
		}
		item, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
	}

	if p.curr.Type != tokenRParen {
		return nil, fmt.Errorf("offset %d: expected ')' but got %s", p.curr.Position, p.curr.Type)
	}
	p.next()
	return list, nil
}

// setMeta stores a metadata entry; later values win.
func (n *Node) setMeta(key string, value *Node) {
	for i, k := range n.MetaKeys {
		if k == key {
			n.MetaItems[i] = value
			return
		}
	}
	n.MetaKeys = append(n.MetaKeys, key)
	n.MetaItems = append(n.MetaItems, value)
}

func (p *parser) parseMap() (*Node, error) {
	m := &Node{Type: NodeMap}
	p.next() // consume '{'

	for p.curr.Type != tokenRBrace && p.curr.Type != tokenEOF {
		if p.curr.Type != tokenSymbol {
			return nil, fmt.Errorf("offset %d: expected symbol for map key but got %s", p.curr.Position, p.curr.Type)
		}
		key := p.curr.Value
		p.next()
		if p.curr.Type != tokenColon {
			return nil, fmt.Errorf("offset %d: expected ':' after map key but got %s", p.curr.Position, p.curr.Type)
		}
		p.next()

		value, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
		m.Items = append(m.Items, value)

		if p.curr.Type == tokenComma {
			p.next()
		} else if p.curr.Type != tokenRBrace {
			return nil, fmt.Errorf("offset %d: expected ',' or '}' in map but got %s", p.curr.Position, p.curr.Type)
		}
	}

	if p.curr.Type != tokenRBrace {
		return nil, fmt.Errorf("offset %d: expected '}' but got %s", p.curr.Position, p.curr.Type)
	}
	p.next()
	return m, nil
}

func (p *parser) parseArray() (*Node, error) {
	arr := &Node{Type: NodeArray}
	p.next() // consume '['

	for p.curr.Type != tokenRBracket && p.curr.Type != tokenEOF {
		item, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
	}

	if p.curr.Type != tokenRBracket {
		return nil, fmt.Errorf("offset %d: expected ']' but got %s", p.curr.Position, p.curr.Type)
	}
	p.next()
	return arr, nil
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenSymbol
	tokenString
	tokenInteger
	tokenEllipsis
	tokenLParen
	tokenRParen
	tokenLBrace
	tokenRBrace
	tokenLBracket
	tokenRBracket
	tokenColon
	tokenComma
	tokenCaret
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenSymbol:
		return "symbol"
	case tokenString:
		return "string"
	case tokenInteger:
		return "integer"
	case tokenEllipsis:
		return "ellipsis"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBrace:
		return "'{'"
	case tokenRBrace:
		return "'}'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	case tokenColon:
		return "':'"
	case tokenComma:
		return "','"
	case tokenCaret:
		return "'^'"
	default:
		return fmt.Sprintf("unknown token %d", int(t))
	}
}

type token struct {
	Type     tokenType
	Value    string
	Position int
}

type lexer struct {
	input string
	pos   int
	err   error // first error; the lexer returns EOF after it
}

func (l *lexer) peekByte(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *lexer) nextToken() token {
	if l.err != nil {
		return token{Type: tokenEOF, Position: l.pos}
	}
	for {
		for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{Type: tokenEOF, Position: l.pos}
		}

		start := l.pos
		c := l.input[l.pos]
		single := func(typ tokenType) token {
			l.pos++
			return token{Type: typ, Value: string(c), Position: start}
		}

		switch c {
		case ';':
			// Line comment. WAT writes these as ";;".
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		case '(':
			return single(tokenLParen)
		case ')':
			return single(tokenRParen)
		case '{':
			return single(tokenLBrace)
		case '}':
			return single(tokenRBrace)
		case '[':
			return single(tokenLBracket)
		case ']':
			return single(tokenRBracket)
		case ':':
			return single(tokenColon)
		case ',':
			return single(tokenComma)
		case '^':
			return single(tokenCaret)
		case '"':
			return l.readString()
		}

		if c == '.' && l.peekByte(1) == '.' && l.peekByte(2) == '.' {
			l.pos += 3
			return token{Type: tokenEllipsis, Value: "...", Position: start}
		}
		if isDigit(c) || ((c == '-' || c == '+') && isDigit(l.peekByte(1))) {
			l.pos++
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
			return token{Type: tokenInteger, Value: l.input[start:l.pos], Position: start}
		}
		if isSymbolChar(c) {
			for l.pos < len(l.input) && isSymbolChar(l.input[l.pos]) {
				l.pos++
			}
			return token{Type: tokenSymbol, Value: l.input[start:l.pos], Position: start}
		}

		l.err = fmt.Errorf("offset %d: unexpected character %q", start, c)
		return token{Type: tokenEOF, Position: start}
	}
}

func (l *lexer) readString() token {
	start := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		c := l.input[l.pos]
		if c == '\\' {
			l.pos++
			switch l.peekByte(0) {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				l.err = fmt.Errorf("offset %d: invalid escape sequence \\%c", l.pos-1, l.peekByte(0))
				return token{Type: tokenEOF, Position: start}
			}
		} else {
			sb.WriteByte(c)
		}
		l.pos++
	}
	if l.pos >= len(l.input) {
		l.err = fmt.Errorf("offset %d: unterminated string", start)
		return token{Type: tokenEOF, Position: start}
	}
	l.pos++ // skip closing quote
	return token{Type: tokenString, Value: sb.String(), Position: start}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// isSymbolChar accepts the characters of plain symbols (func-name) and of
// WAT identifiers and instructions ($$scratch, i32.const, br_if).
func isSymbolChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', isDigit(c):
		return true
	}
	switch c {
	case '_', '-', '+', '$', '.', '=', '!', '<', '>', '*', '/', '%', '?', '@':
		return true
	}
	return false
}

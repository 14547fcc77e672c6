package main

import (
	"fmt"
	"strings"
)

// Syntax node kinds. The names follow the lezer-python grammar. Keyword and
// punctuation leaves use their own text as the kind ("def", "(", ":").
const (
	KindScript              = "Script"
	KindBody                = "Body"
	KindAssignStatement     = "AssignStatement"
	KindTypeDef             = "TypeDef"
	KindAssignOp            = "AssignOp"
	KindExpressionStatement = "ExpressionStatement"
	KindReturnStatement     = "ReturnStatement"
	KindPassStatement       = "PassStatement"
	KindBreakStatement      = "BreakStatement"
	KindContinueStatement   = "ContinueStatement"
	KindWhileStatement      = "WhileStatement"
	KindIfStatement         = "IfStatement"
	KindForStatement        = "ForStatement"
	KindFunctionDefinition  = "FunctionDefinition"
	KindParamList           = "ParamList"
	KindArgList             = "ArgList"
	KindCallExpression      = "CallExpression"
	KindMemberExpression    = "MemberExpression"
	KindBinaryExpression    = "BinaryExpression"
	KindUnaryExpression     = "UnaryExpression"
	KindParenthesized       = "ParenthesizedExpression"
	KindVariableName        = "VariableName"
	KindPropertyName        = "PropertyName"
	KindNumber              = "Number"
	KindString              = "String"
	KindBoolean             = "Boolean"
	KindNone                = "None"
	KindArithOp             = "ArithOp"
	KindCompareOp           = "CompareOp"
	KindBitOp               = "BitOp"
)

// SyntaxNode is a generic, language-agnostic parse tree node. A node's text
// is source[From:To]. Nodes are never modified after parsing.
type SyntaxNode struct {
	Kind     string
	From     int
	To       int
	Children []*SyntaxNode
}

func (n *SyntaxNode) Text(source string) string {
	return source[n.From:n.To]
}

// SyntaxString renders the tree for debugging and tests, e.g.
// (Script (ExpressionStatement (Number "1"))).
func SyntaxString(n *SyntaxNode, source string) string {
	var sb strings.Builder
	writeSyntax(&sb, n, source)
	return sb.String()
}

func writeSyntax(sb *strings.Builder, n *SyntaxNode, source string) {
	if len(n.Children) == 0 {
		if n.Kind == n.Text(source) {
			fmt.Fprintf(sb, "%q", n.Kind)
		} else {
			fmt.Fprintf(sb, "(%s %q)", n.Kind, n.Text(source))
		}
		return
	}
	sb.WriteString("(" + n.Kind)
	for _, child := range n.Children {
		sb.WriteString(" ")
		writeSyntax(sb, child, source)
	}
	sb.WriteString(")")
}

type syntaxParser struct {
	source string
	lines  lineIndex
	tokens []Token
	pos    int
}

// ParseSyntax tokenizes and parses source into a generic syntax tree. The
// grammar is wider than the compiled language; the AST builder decides what
// is supported.
func ParseSyntax(source string) (tree *SyntaxNode, err error) {
	lines := newLineIndex(source)
	tokens, err := tokenize(source, lines)
	if err != nil {
		return nil, err
	}

	p := &syntaxParser{source: source, lines: lines, tokens: tokens}
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			tree, err = nil, perr
		}
	}()
	return p.parseScript(), nil
}

func (p *syntaxParser) parseScript() *SyntaxNode {
	script := &SyntaxNode{Kind: KindScript, From: 0, To: len(p.source)}
	for p.curr().Type != EOF {
		script.Children = append(script.Children, p.parseStatement())
	}
	return script
}

func (p *syntaxParser) parseStatement() *SyntaxNode {
	tok := p.curr()
	if tok.Type == KEYWORD {
		switch tok.Text {
		case "def":
			return p.parseFunctionDefinition()
		case "if":
			return p.parseIfStatement()
		case "while":
			return p.parseWhileStatement()
		case "for":
			return p.parseForStatement()
		}
	}
	return p.parseSimpleStatement()
}

func (p *syntaxParser) parseSimpleStatement() *SyntaxNode {
	var stmt *SyntaxNode
	tok := p.curr()
	switch {
	case tok.Type == KEYWORD && tok.Text == "return":
		ret := p.leaf("return")
		if p.curr().Type == NEWLINE {
			stmt = newNode(KindReturnStatement, ret)
		} else {
			stmt = newNode(KindReturnStatement, ret, p.parseExpression())
		}
	case tok.Type == KEYWORD && tok.Text == "pass":
		stmt = newNode(KindPassStatement, p.leaf("pass"))
	case tok.Type == KEYWORD && tok.Text == "break":
		stmt = newNode(KindBreakStatement, p.leaf("break"))
	case tok.Type == KEYWORD && tok.Text == "continue":
		stmt = newNode(KindContinueStatement, p.leaf("continue"))
	case tok.Type == KEYWORD && !isExpressionKeyword(tok.Text):
		p.fail(tok, "unsupported statement %q", tok.Text)
	default:
		stmt = p.parseExpressionOrAssignment()
	}
	p.expect(NEWLINE, "")
	return stmt
}

func (p *syntaxParser) parseExpressionOrAssignment() *SyntaxNode {
	target := p.parseExpression()
	switch {
	case p.isOp(":"):
		children := []*SyntaxNode{target, newNode(KindTypeDef, p.leaf(":"), p.parseExpression())}
		if p.isOp("=") {
			children = append(children, p.leafAs(KindAssignOp), p.parseExpression())
		}
		return newNode(KindAssignStatement, children...)
	case p.isOp("="):
		children := []*SyntaxNode{target}
		for p.isOp("=") {
			children = append(children, p.leafAs(KindAssignOp), p.parseExpression())
		}
		return newNode(KindAssignStatement, children...)
	default:
		return newNode(KindExpressionStatement, target)
	}
}

func (p *syntaxParser) parseFunctionDefinition() *SyntaxNode {
	children := []*SyntaxNode{p.leaf("def")}
	if p.curr().Type != IDENT {
		p.fail(p.curr(), "expected function name")
	}
	children = append(children, p.leafAs(KindVariableName), p.parseParamList())
	if p.isOp("->") {
		children = append(children, newNode(KindTypeDef, p.leaf("->"), p.parseExpression()))
	}
	children = append(children, p.parseBody())
	return newNode(KindFunctionDefinition, children...)
}

func (p *syntaxParser) parseParamList() *SyntaxNode {
	if !p.isOp("(") {
		p.fail(p.curr(), "expected '(' after function name")
	}
	children := []*SyntaxNode{p.leaf("(")}
	for !p.isOp(")") {
		if p.curr().Type != IDENT {
			p.fail(p.curr(), "expected parameter name")
		}
		children = append(children, p.leafAs(KindVariableName))
		if p.isOp(":") {
			children = append(children, newNode(KindTypeDef, p.leaf(":"), p.parseExpression()))
		}
		if p.isOp("=") {
			children = append(children, p.leafAs(KindAssignOp), p.parseExpression())
		}
		if p.isOp(",") {
			children = append(children, p.leaf(","))
		} else if !p.isOp(")") {
			p.fail(p.curr(), "expected ',' or ')' in parameter list")
		}
	}
	children = append(children, p.leaf(")"))
	return newNode(KindParamList, children...)
}

// parseBody parses ':' followed by an indented block or a single simple
// statement on the same line.
func (p *syntaxParser) parseBody() *SyntaxNode {
	if !p.isOp(":") {
		p.fail(p.curr(), "expected ':'")
	}
	children := []*SyntaxNode{p.leaf(":")}
	if p.curr().Type != NEWLINE {
		children = append(children, p.parseSimpleStatement())
		return newNode(KindBody, children...)
	}
	p.advance()
	p.expect(INDENT, "expected an indented block")
	for p.curr().Type != DEDENT && p.curr().Type != EOF {
		children = append(children, p.parseStatement())
	}
	p.expect(DEDENT, "")
	return newNode(KindBody, children...)
}

func (p *syntaxParser) parseIfStatement() *SyntaxNode {
	children := []*SyntaxNode{p.leaf("if"), p.parseExpression(), p.parseBody()}
	for p.isKeyword("elif") {
		children = append(children, p.leaf("elif"), p.parseExpression(), p.parseBody())
	}
	if p.isKeyword("else") {
		children = append(children, p.leaf("else"), p.parseBody())
	}
	return newNode(KindIfStatement, children...)
}

func (p *syntaxParser) parseWhileStatement() *SyntaxNode {
	children := []*SyntaxNode{p.leaf("while"), p.parseExpression(), p.parseBody()}
	if p.isKeyword("else") {
		children = append(children, p.leaf("else"), p.parseBody())
	}
	return newNode(KindWhileStatement, children...)
}

func (p *syntaxParser) parseForStatement() *SyntaxNode {
	children := []*SyntaxNode{p.leaf("for"), p.parseExpression()}
	if !p.isKeyword("in") {
		p.fail(p.curr(), "expected 'in' in for statement")
	}
	children = append(children, p.leaf("in"), p.parseExpression(), p.parseBody())
	return newNode(KindForStatement, children...)
}

// Binding powers, lowest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precSum
	precProduct
	precUnary
	precPower
)

func binaryPrecedence(tok Token) int {
	if tok.Type == KEYWORD {
		switch tok.Text {
		case "or":
			return precOr
		case "and":
			return precAnd
		case "is":
			return precCompare
		}
		return 0
	}
	if tok.Type != OP {
		return 0
	}
	switch tok.Text {
	case "==", "!=", "<", ">", "<=", ">=":
		return precCompare
	case "|":
		return precBitOr
	case "^":
		return precBitXor
	case "&":
		return precBitAnd
	case "<<", ">>":
		return precShift
	case "+", "-":
		return precSum
	case "*", "/", "//", "%":
		return precProduct
	case "**":
		return precPower
	default:
		return 0
	}
}

func operatorKind(tok Token) string {
	if tok.Type == KEYWORD {
		return tok.Text
	}
	switch tok.Text {
	case "==", "!=", "<", ">", "<=", ">=":
		return KindCompareOp
	case "|", "^", "&", "<<", ">>", "~":
		return KindBitOp
	default:
		return KindArithOp
	}
}

func (p *syntaxParser) parseExpression() *SyntaxNode {
	return p.parseExpressionWithPrecedence(precOr)
}

// parseExpressionWithPrecedence implements precedence climbing
func (p *syntaxParser) parseExpressionWithPrecedence(minPrec int) *SyntaxNode {
	left := p.parseUnary()
	for {
		tok := p.curr()
		prec := binaryPrecedence(tok)
		if prec == 0 || prec < minPrec {
			return left
		}
		op := p.leafAs(operatorKind(tok))

		var right *SyntaxNode
		if tok.Text == "**" {
			right = p.parseExpressionWithPrecedence(prec) // right-associative
		} else {
			right = p.parseExpressionWithPrecedence(prec + 1)
		}
		left = newNode(KindBinaryExpression, left, op, right)
	}
}

func (p *syntaxParser) parseUnary() *SyntaxNode {
	tok := p.curr()
	if tok.Type == KEYWORD && tok.Text == "not" {
		op := p.leaf("not")
		return newNode(KindUnaryExpression, op, p.parseExpressionWithPrecedence(precNot))
	}
	if tok.Type == OP && (tok.Text == "-" || tok.Text == "+" || tok.Text == "~") {
		op := p.leafAs(operatorKind(tok))
		return newNode(KindUnaryExpression, op, p.parseExpressionWithPrecedence(precUnary))
	}
	return p.parsePostfix()
}

func (p *syntaxParser) parsePostfix() *SyntaxNode {
	expr := p.parsePrimary()
	for {
		switch {
		case p.isOp("("):
			expr = newNode(KindCallExpression, expr, p.parseArgList())
		case p.isOp("."):
			dot := p.leaf(".")
			if p.curr().Type != IDENT {
				p.fail(p.curr(), "expected attribute name after '.'")
			}
			expr = newNode(KindMemberExpression, expr, dot, p.leafAs(KindPropertyName))
		default:
			return expr
		}
	}
}

func (p *syntaxParser) parseArgList() *SyntaxNode {
	children := []*SyntaxNode{p.leaf("(")}
	for !p.isOp(")") {
		children = append(children, p.parseExpression())
		if p.isOp("=") {
			children = append(children, p.leafAs(KindAssignOp), p.parseExpression())
		}
		if p.isOp(",") {
			children = append(children, p.leaf(","))
		} else if !p.isOp(")") {
			p.fail(p.curr(), "expected ',' or ')' in argument list")
		}
	}
	children = append(children, p.leaf(")"))
	return newNode(KindArgList, children...)
}

// parsePrimary handles primary expressions (literals, identifiers, parentheses)
func (p *syntaxParser) parsePrimary() *SyntaxNode {
	tok := p.curr()
	switch tok.Type {
	case INT:
		return p.leafAs(KindNumber)
	case STRING:
		return p.leafAs(KindString)
	case IDENT:
		return p.leafAs(KindVariableName)
	case KEYWORD:
		switch tok.Text {
		case "True", "False":
			return p.leafAs(KindBoolean)
		case "None":
			return p.leafAs(KindNone)
		}
	case OP:
		if tok.Text == "(" {
			open := p.leaf("(")
			inner := p.parseExpression()
			if !p.isOp(")") {
				p.fail(p.curr(), "expected ')'")
			}
			return newNode(KindParenthesized, open, inner, p.leaf(")"))
		}
	}
	p.fail(tok, "unexpected %s", describeToken(tok))
	return nil
}

func isExpressionKeyword(kw string) bool {
	switch kw {
	case "not", "True", "False", "None":
		return true
	}
	return false
}

func (p *syntaxParser) curr() Token {
	return p.tokens[p.pos]
}

func (p *syntaxParser) advance() {
	if p.tokens[p.pos].Type != EOF {
		p.pos++
	}
}

func (p *syntaxParser) isOp(text string) bool {
	tok := p.curr()
	return tok.Type == OP && tok.Text == text
}

func (p *syntaxParser) isKeyword(text string) bool {
	tok := p.curr()
	return tok.Type == KEYWORD && tok.Text == text
}

// leaf consumes the current token, which must have the given text, as a
// leaf whose kind is its text.
func (p *syntaxParser) leaf(text string) *SyntaxNode {
	tok := p.curr()
	if tok.Text != text || (tok.Type != OP && tok.Type != KEYWORD) {
		p.fail(tok, "expected %q but got %s", text, describeToken(tok))
	}
	return p.leafAs(text)
}

// leafAs consumes the current token as a leaf of the given kind.
func (p *syntaxParser) leafAs(kind string) *SyntaxNode {
	tok := p.curr()
	p.advance()
	return &SyntaxNode{Kind: kind, From: tok.From, To: tok.To}
}

func (p *syntaxParser) expect(typ TokenType, msg string) {
	tok := p.curr()
	if tok.Type != typ {
		if msg == "" {
			msg = fmt.Sprintf("unexpected %s", describeToken(tok))
		}
		p.fail(tok, "%s", msg)
	}
	p.advance()
}

func (p *syntaxParser) fail(tok Token, format string, args ...any) {
	panic(parseErrorf(p.lines.pos(tok.From), format, args...))
}

func describeToken(tok Token) string {
	switch tok.Type {
	case EOF:
		return "end of input"
	case NEWLINE:
		return "end of line"
	case INDENT:
		return "indent"
	case DEDENT:
		return "dedent"
	default:
		return fmt.Sprintf("%q", tok.Text)
	}
}

func newNode(kind string, children ...*SyntaxNode) *SyntaxNode {
	return &SyntaxNode{
		Kind:     kind,
		From:     children[0].From,
		To:       children[len(children)-1].To,
		Children: children,
	}
}

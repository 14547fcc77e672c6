package main

import (
	"fmt"
	"math"
	"strconv"
)

// AssignmentType tells a variable definition (x: int = 1) apart from a
// re-assignment (x = 1).
type AssignmentType int

const (
	Definition AssignmentType = iota
	ReAssignment
)

var binaryOps = map[string]bool{
	"+": true, "-": true, "*": true, "%": true, "//": true,
	"==": true, "!=": true, "<=": true, ">=": true, "<": true, ">": true,
	"is": true,
}

var unaryOps = map[string]bool{"not": true, "-": true, "+": true}

type builder struct {
	source string
	lines  lineIndex
}

// Build turns a generic syntax tree into an unchecked Program, enforcing the
// structural rules the generic grammar does not.
func Build(tree *SyntaxNode, source string) (*Program[Unchecked], error) {
	b := &builder{source: source, lines: newLineIndex(source)}
	return b.program(tree)
}

func (b *builder) program(n *SyntaxNode) (*Program[Unchecked], error) {
	if n.Kind != KindScript {
		return nil, b.errorf(n, "could not parse program: expected %s, got %s", KindScript, n.Kind)
	}

	prog := &Program[Unchecked]{}
	definitionPhase := true
	for _, child := range n.Children {
		isDefinition := child.Kind == KindFunctionDefinition
		if child.Kind == KindAssignStatement {
			kind, err := b.assignmentType(child)
			if err != nil {
				return nil, err
			}
			isDefinition = kind == Definition
		}
		if isDefinition && !definitionPhase {
			return nil, b.errorf(child, "definitions must come before all statements")
		}
		definitionPhase = isDefinition

		switch {
		case child.Kind == KindFunctionDefinition:
			f, err := b.funcDef(child)
			if err != nil {
				return nil, err
			}
			prog.Funcs = append(prog.Funcs, f)
		case isDefinition:
			v, err := b.varDef(child)
			if err != nil {
				return nil, err
			}
			prog.Vars = append(prog.Vars, v)
		default:
			s, err := b.stmt(child)
			if err != nil {
				return nil, err
			}
			prog.Body = append(prog.Body, s)
		}
	}
	return prog, nil
}

// assignmentType classifies an AssignStatement by the sibling right after
// its target.
func (b *builder) assignmentType(n *SyntaxNode) (AssignmentType, error) {
	if len(n.Children) < 2 {
		return 0, b.errorf(n, "invalid assignment statement")
	}
	switch n.Children[1].Kind {
	case KindTypeDef:
		return Definition, nil
	case KindAssignOp:
		return ReAssignment, nil
	default:
		return 0, b.errorf(n.Children[1], "invalid assignment statement")
	}
}

func (b *builder) varDef(n *SyntaxNode) (*VarDef[Unchecked], error) {
	s := b.siblings(n)
	target := s.next()
	if target.Kind != KindVariableName {
		return nil, b.errorf(target, "cannot define %q: expected a variable name", b.text(target))
	}
	name := b.text(target)

	typeName, err := b.typeAnnotation(s.next(), ":")
	if err != nil {
		return nil, err
	}
	op := s.next()
	if op == nil {
		return nil, b.errorf(n, "variable %s must be initialized", name)
	}
	if op.Kind != KindAssignOp {
		return nil, b.unexpected(op)
	}
	init := s.next()
	if init == nil {
		return nil, b.errorf(op, "variable %s must be initialized", name)
	}
	value, err := b.literal(init)
	if err != nil {
		return nil, err
	}
	if err := s.done(); err != nil {
		return nil, err
	}

	typ, ok := varType(typeName)
	if !ok {
		return nil, b.errorf(n, "invalid type %q for variable %s", typeName, name)
	}
	return &VarDef[Unchecked]{Meta: b.meta(n), Name: name, Type: typ, Value: value}, nil
}

// typeAnnotation reads a TypeDef node: marker (":" or "->") then a type name.
func (b *builder) typeAnnotation(n *SyntaxNode, marker string) (string, error) {
	if n == nil || n.Kind != KindTypeDef {
		return "", b.errorf(n, "expected a type annotation")
	}
	s := b.siblings(n)
	if m := s.next(); m.Kind != marker {
		return "", b.unexpected(m)
	}
	name := s.next()
	if name == nil || (name.Kind != KindVariableName && name.Kind != KindNone) {
		return "", b.errorf(n, "invalid type annotation %q", b.text(n))
	}
	if err := s.done(); err != nil {
		return "", err
	}
	return b.text(name), nil
}

func varType(name string) (Type, bool) {
	switch name {
	case "int":
		return TypeInt, true
	case "bool":
		return TypeBool, true
	}
	return "", false
}

func (b *builder) literal(n *SyntaxNode) (*Literal[Unchecked], error) {
	switch n.Kind {
	case KindNumber:
		v, err := strconv.ParseInt(b.text(n), 10, 32)
		if err != nil {
			return nil, b.errorf(n, "integer literal %s does not fit in 32 bits", b.text(n))
		}
		return &Literal[Unchecked]{Meta: b.meta(n), Kind: LitNumber, Value: int32(v)}, nil
	case KindBoolean:
		if b.text(n) == "True" {
			return &Literal[Unchecked]{Meta: b.meta(n), Kind: LitTrue}, nil
		}
		return &Literal[Unchecked]{Meta: b.meta(n), Kind: LitFalse}, nil
	case KindNone:
		return &Literal[Unchecked]{Meta: b.meta(n), Kind: LitNone}, nil
	default:
		return nil, b.errorf(n, "invalid literal %q", b.text(n))
	}
}

// minInt32 folds -2147483648 into a single literal. The magnitude alone
// does not fit in an int32, so it cannot be built as a negated literal.
func (b *builder) minInt32(op string, arg, n *SyntaxNode) (*Literal[Unchecked], bool) {
	if op != "-" || arg == nil || arg.Kind != KindNumber {
		return nil, false
	}
	v, err := strconv.ParseInt("-"+b.text(arg), 10, 32)
	if err != nil || v != math.MinInt32 {
		return nil, false
	}
	return &Literal[Unchecked]{Meta: b.meta(n), Kind: LitNumber, Value: math.MinInt32}, true
}

func (b *builder) funcDef(n *SyntaxNode) (*FuncDef[Unchecked], error) {
	s := b.siblings(n)
	if kw := s.next(); kw.Kind != "def" {
		return nil, b.unexpected(kw)
	}
	nameNode := s.next()
	if nameNode == nil || nameNode.Kind != KindVariableName {
		return nil, b.errorf(n, "invalid function definition")
	}
	name := b.text(nameNode)

	paramList := s.next()
	if paramList == nil || paramList.Kind != KindParamList {
		return nil, b.errorf(n, "function %s is missing a parameter list", name)
	}
	params, err := b.params(paramList)
	if err != nil {
		return nil, err
	}

	ret := TypeNone
	if next := s.peek(); next != nil && next.Kind == KindTypeDef {
		retName, err := b.typeAnnotation(s.next(), "->")
		if err != nil {
			return nil, err
		}
		switch retName {
		case "int":
			ret = TypeInt
		case "bool":
			ret = TypeBool
		case "None":
			ret = TypeNone
		default:
			return nil, b.errorf(next, "invalid return type %q for function %s", retName, name)
		}
	}

	bodyNode := s.next()
	if bodyNode == nil || bodyNode.Kind != KindBody {
		return nil, b.errorf(n, "function %s is missing a body", name)
	}
	body, err := b.funcBody(bodyNode)
	if err != nil {
		return nil, err
	}
	if err := s.done(); err != nil {
		return nil, err
	}

	return &FuncDef[Unchecked]{Pos: b.pos(n), Name: name, Params: params, Ret: ret, Body: body}, nil
}

func (b *builder) params(n *SyntaxNode) ([]*Parameter[Unchecked], error) {
	s := b.siblings(n)
	if open := s.next(); open == nil || open.Kind != "(" {
		return nil, b.errorf(n, "invalid parameter list")
	}

	var params []*Parameter[Unchecked]
	for {
		p := s.next()
		if p == nil {
			return nil, b.errorf(n, "invalid parameter list")
		}
		if p.Kind == ")" {
			break
		}
		if p.Kind != KindVariableName {
			return nil, b.errorf(p, "invalid parameter %q", b.text(p))
		}
		name := b.text(p)

		td := s.peek()
		if td == nil || td.Kind != KindTypeDef {
			return nil, b.errorf(p, "parameter %s needs a type annotation", name)
		}
		typeName, err := b.typeAnnotation(s.next(), ":")
		if err != nil {
			return nil, err
		}
		typ, ok := varType(typeName)
		if !ok {
			return nil, b.errorf(td, "invalid type %q for parameter %s", typeName, name)
		}
		params = append(params, &Parameter[Unchecked]{Meta: b.meta(p), Name: name, Type: typ})

		sep := s.next()
		if sep == nil {
			return nil, b.errorf(n, "invalid parameter list")
		}
		if sep.Kind == ")" {
			break
		}
		if sep.Kind != "," {
			return nil, b.errorf(sep, "unexpected %q in parameter list", b.text(sep))
		}
		if next := s.peek(); next == nil || next.Kind == ")" {
			return nil, b.errorf(sep, "trailing comma in parameter list")
		}
	}
	if err := s.done(); err != nil {
		return nil, err
	}
	return params, nil
}

func (b *builder) funcBody(n *SyntaxNode) (*FuncBody[Unchecked], error) {
	s := b.siblings(n)
	if colon := s.next(); colon == nil || colon.Kind != ":" {
		return nil, b.errorf(n, "invalid function body")
	}

	body := &FuncBody[Unchecked]{Meta: b.meta(n)}
	definitionPhase := true
	for child := s.next(); child != nil; child = s.next() {
		isDefinition := false
		if child.Kind == KindAssignStatement {
			kind, err := b.assignmentType(child)
			if err != nil {
				return nil, err
			}
			isDefinition = kind == Definition
		}
		if isDefinition && !definitionPhase {
			return nil, b.errorf(child, "cannot define any further variables inside the function body")
		}
		definitionPhase = isDefinition

		if isDefinition {
			v, err := b.varDef(child)
			if err != nil {
				return nil, err
			}
			body.Defs = append(body.Defs, v)
		} else {
			stmt, err := b.stmt(child)
			if err != nil {
				return nil, err
			}
			body.Stmts = append(body.Stmts, stmt)
		}
	}
	return body, nil
}

// block reads the statements of a while/if Body, which must not be empty.
func (b *builder) block(n *SyntaxNode) ([]Stmt[Unchecked], error) {
	s := b.siblings(n)
	if colon := s.next(); colon == nil || colon.Kind != ":" {
		return nil, b.errorf(n, "invalid block")
	}
	var stmts []Stmt[Unchecked]
	for child := s.next(); child != nil; child = s.next() {
		stmt, err := b.stmt(child)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if len(stmts) == 0 {
		return nil, b.errorf(n, "empty block")
	}
	return stmts, nil
}

func (b *builder) stmt(n *SyntaxNode) (Stmt[Unchecked], error) {
	switch n.Kind {
	case KindAssignStatement:
		kind, err := b.assignmentType(n)
		if err != nil {
			return nil, err
		}
		if kind == Definition {
			return nil, b.errorf(n, "cannot define variable %s at this point", b.text(n.Children[0]))
		}
		return b.assign(n)

	case KindExpressionStatement:
		s := b.siblings(n)
		expr, err := b.expr(s.next())
		if err != nil {
			return nil, err
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return &ExprStmt[Unchecked]{Meta: b.meta(n), Expr: expr}, nil

	case KindReturnStatement:
		s := b.siblings(n)
		s.next() // "return"
		valueNode := s.next()
		if valueNode == nil {
			return &Return[Unchecked]{Meta: b.meta(n)}, nil
		}
		value, err := b.expr(valueNode)
		if err != nil {
			return nil, err
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return &Return[Unchecked]{Meta: b.meta(n), Value: value}, nil

	case KindWhileStatement:
		return b.while(n)

	case KindIfStatement:
		s := b.siblings(n)
		stmt, err := b.ifChain(s)
		if err != nil {
			return nil, err
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return stmt, nil

	case KindPassStatement:
		return &Pass[Unchecked]{Meta: b.meta(n)}, nil

	case KindFunctionDefinition:
		return nil, b.errorf(n, "function definitions are only allowed at the top level, before all statements")

	default:
		return nil, b.errorf(n, "unsupported statement %q", b.text(n))
	}
}

func (b *builder) assign(n *SyntaxNode) (Stmt[Unchecked], error) {
	s := b.siblings(n)
	target := s.next()
	if target.Kind != KindVariableName {
		return nil, b.errorf(target, "cannot assign to %q", b.text(target))
	}
	s.next() // AssignOp
	valueNode := s.next()
	if valueNode == nil {
		return nil, b.errorf(n, "missing value in assignment")
	}
	value, err := b.expr(valueNode)
	if err != nil {
		return nil, err
	}
	if err := s.done(); err != nil {
		return nil, err
	}
	return &Assign[Unchecked]{Meta: b.meta(n), Name: b.text(target), Value: value}, nil
}

func (b *builder) while(n *SyntaxNode) (Stmt[Unchecked], error) {
	s := b.siblings(n)
	s.next() // "while"
	condNode := s.next()
	if condNode == nil || condNode.Kind == KindBody {
		return nil, b.errorf(n, "while statement is missing a condition")
	}
	cond, err := b.expr(condNode)
	if err != nil {
		return nil, err
	}
	bodyNode := s.next()
	if bodyNode == nil || bodyNode.Kind != KindBody {
		return nil, b.errorf(n, "while statement is missing a body")
	}
	body, err := b.block(bodyNode)
	if err != nil {
		return nil, err
	}
	if err := s.done(); err != nil {
		return nil, err
	}
	return &While[Unchecked]{Meta: b.meta(n), Cond: cond, Body: body}, nil
}

// ifChain parses the arms of an IfStatement left to right. Each elif
// becomes the Else of its predecessor and a trailing else becomes a
// condition-less If.
func (b *builder) ifChain(s *siblings) (*If[Unchecked], error) {
	kw := s.next()
	switch kw.Kind {
	case "if", "elif":
	case "else":
		bodyNode := s.next()
		if bodyNode == nil || bodyNode.Kind != KindBody {
			return nil, b.errorf(kw, "else is missing a body")
		}
		body, err := b.block(bodyNode)
		if err != nil {
			return nil, err
		}
		if next := s.peek(); next != nil {
			return nil, b.errorf(next, "no conditions allowed after else")
		}
		return &If[Unchecked]{Meta: b.meta(kw), Body: body}, nil
	default:
		return nil, b.unexpected(kw)
	}

	condNode := s.next()
	if condNode == nil || condNode.Kind == KindBody {
		return nil, b.errorf(kw, "%s is missing a condition", kw.Kind)
	}
	cond, err := b.expr(condNode)
	if err != nil {
		return nil, err
	}
	bodyNode := s.next()
	if bodyNode == nil || bodyNode.Kind != KindBody {
		return nil, b.errorf(kw, "if condition missing body")
	}
	body, err := b.block(bodyNode)
	if err != nil {
		return nil, err
	}

	stmt := &If[Unchecked]{Meta: b.meta(kw), Cond: cond, Body: body}
	if s.peek() != nil {
		next, err := b.ifChain(s)
		if err != nil {
			return nil, err
		}
		stmt.Else = next
	}
	return stmt, nil
}

func (b *builder) expr(n *SyntaxNode) (Expr[Unchecked], error) {
	if n == nil {
		return nil, &ParseError{Msg: "missing expression"}
	}
	switch n.Kind {
	case KindNumber, KindBoolean, KindNone:
		return b.literal(n)

	case KindVariableName:
		return &Identifier[Unchecked]{Meta: b.meta(n), Name: b.text(n)}, nil

	case KindBinaryExpression:
		s := b.siblings(n)
		lhs, err := b.expr(s.next())
		if err != nil {
			return nil, err
		}
		opNode := s.next()
		op := b.text(opNode)
		if !binaryOps[op] {
			return nil, b.errorf(opNode, "unsupported binary operator %q", op)
		}
		rhs, err := b.expr(s.next())
		if err != nil {
			return nil, err
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return &BinaryOp[Unchecked]{Meta: b.meta(n), Op: op, LHS: lhs, RHS: rhs}, nil

	case KindUnaryExpression:
		s := b.siblings(n)
		opNode := s.next()
		op := b.text(opNode)
		if !unaryOps[op] {
			return nil, b.errorf(opNode, "unsupported unary operator %q", op)
		}
		argNode := s.next()
		if lit, ok := b.minInt32(op, argNode, n); ok {
			if err := s.done(); err != nil {
				return nil, err
			}
			return lit, nil
		}
		arg, err := b.expr(argNode)
		if err != nil {
			return nil, err
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return &UnaryOp[Unchecked]{Meta: b.meta(n), Op: op, Arg: arg}, nil

	case KindParenthesized:
		s := b.siblings(n)
		if open := s.next(); open.Kind != "(" {
			return nil, b.errorf(n, "invalid parenthesis")
		}
		arg, err := b.expr(s.next())
		if err != nil {
			return nil, err
		}
		if closing := s.next(); closing == nil || closing.Kind != ")" {
			return nil, b.errorf(n, "invalid parenthesis")
		}
		if err := s.done(); err != nil {
			return nil, err
		}
		return &Parenthesized[Unchecked]{Meta: b.meta(n), Arg: arg}, nil

	case KindCallExpression:
		return b.call(n)

	case KindString:
		return nil, b.errorf(n, "strings are not supported")

	case KindMemberExpression:
		return nil, b.errorf(n, "attribute access is not supported")

	default:
		return nil, b.errorf(n, "could not parse expression %q (%s)", b.text(n), n.Kind)
	}
}

func (b *builder) call(n *SyntaxNode) (Expr[Unchecked], error) {
	s := b.siblings(n)
	callee := s.next()
	if callee.Kind != KindVariableName {
		return nil, b.errorf(callee, "only named functions can be called")
	}
	argList := s.next()
	if argList == nil || argList.Kind != KindArgList {
		return nil, b.errorf(n, "invalid call")
	}
	if err := s.done(); err != nil {
		return nil, err
	}

	as := b.siblings(argList)
	if open := as.next(); open == nil || open.Kind != "(" {
		return nil, b.errorf(argList, "invalid argument list")
	}
	var args []Expr[Unchecked]
	if next := as.peek(); next != nil && next.Kind == ")" {
		as.next()
	} else {
		for {
			arg, err := b.expr(as.next())
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			sep := as.next()
			if sep == nil {
				return nil, b.errorf(argList, "invalid argument list")
			}
			if sep.Kind == ")" {
				break
			}
			if sep.Kind != "," {
				return nil, b.errorf(sep, "unexpected %q in argument list", b.text(sep))
			}
			if next := as.peek(); next == nil || next.Kind == ")" {
				return nil, b.errorf(sep, "trailing comma in argument list")
			}
		}
	}
	if err := as.done(); err != nil {
		return nil, err
	}
	return &Call[Unchecked]{Meta: b.meta(n), Name: b.text(callee), Args: args}, nil
}

// siblings walks the children of one syntax node in order. Each production
// gets its own walker, so no cursor state crosses function boundaries.
type siblings struct {
	b     *builder
	nodes []*SyntaxNode
	i     int
}

func (b *builder) siblings(n *SyntaxNode) *siblings {
	return &siblings{b: b, nodes: n.Children}
}

func (s *siblings) peek() *SyntaxNode {
	if s.i >= len(s.nodes) {
		return nil
	}
	return s.nodes[s.i]
}

func (s *siblings) next() *SyntaxNode {
	n := s.peek()
	if n != nil {
		s.i++
	}
	return n
}

// done fails if any sibling has not been consumed.
func (s *siblings) done() error {
	if n := s.peek(); n != nil {
		return s.b.unexpected(n)
	}
	return nil
}

func (b *builder) text(n *SyntaxNode) string {
	return n.Text(b.source)
}

func (b *builder) pos(n *SyntaxNode) Pos {
	return b.lines.pos(n.From)
}

func (b *builder) meta(n *SyntaxNode) Meta[Unchecked] {
	return Meta[Unchecked]{Pos: b.pos(n)}
}

func (b *builder) unexpected(n *SyntaxNode) *ParseError {
	return b.errorf(n, "unexpected %q", b.text(n))
}

func (b *builder) errorf(n *SyntaxNode, format string, args ...any) *ParseError {
	err := &ParseError{Msg: fmt.Sprintf(format, args...)}
	if n != nil {
		err.Pos = b.pos(n)
	}
	return err
}

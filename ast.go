package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is a static type of the compiled language.
type Type string

const (
	TypeInt  Type = "int"
	TypeBool Type = "bool"
	TypeNone Type = "none"
	TypeAny  Type = "any" // only in builtin signatures
)

// Unchecked is the annotation of a tree that has not been type checked yet.
// A checked tree is annotated with Type.
type Unchecked struct{}

// Meta holds what every AST node carries: its phase annotation and the
// source position it was built from.
type Meta[A any] struct {
	Ann A
	Pos Pos
}

func (m Meta[A]) Annotation() A { return m.Ann }
func (m Meta[A]) Position() Pos { return m.Pos }

// Expr is an expression. In a checked tree the annotation is the
// expression's type.
type Expr[A any] interface {
	Annotation() A
	Position() Pos
	exprNode()
}

type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitTrue
	LitFalse
	LitNumber
)

type Literal[A any] struct {
	Meta[A]
	Kind  LiteralKind
	Value int32 // LitNumber only
}

type Identifier[A any] struct {
	Meta[A]
	Name string
}

type UnaryOp[A any] struct {
	Meta[A]
	Op  string // "not", "-", "+"
	Arg Expr[A]
}

type BinaryOp[A any] struct {
	Meta[A]
	Op  string
	LHS Expr[A]
	RHS Expr[A]
}

type Parenthesized[A any] struct {
	Meta[A]
	Arg Expr[A]
}

type Call[A any] struct {
	Meta[A]
	Name string
	Args []Expr[A]
}

func (*Literal[A]) exprNode()       {}
func (*Identifier[A]) exprNode()    {}
func (*UnaryOp[A]) exprNode()       {}
func (*BinaryOp[A]) exprNode()      {}
func (*Parenthesized[A]) exprNode() {}
func (*Call[A]) exprNode()          {}

// Stmt is a statement. In a checked tree the annotation is the statement's
// return-guarantee type.
type Stmt[A any] interface {
	Annotation() A
	Position() Pos
	stmtNode()
}

type Assign[A any] struct {
	Meta[A]
	Name  string
	Value Expr[A]
}

type ExprStmt[A any] struct {
	Meta[A]
	Expr Expr[A]
}

type Return[A any] struct {
	Meta[A]
	Value Expr[A] // nil for a bare return
}

type While[A any] struct {
	Meta[A]
	Cond Expr[A]
	Body []Stmt[A]
}

// If is one arm of an if/elif/else chain. Else holds the next elif arm, or
// for a trailing else, an If with neither Cond nor Else.
type If[A any] struct {
	Meta[A]
	Cond Expr[A] // nil for the terminal else block
	Else *If[A]
	Body []Stmt[A]
}

type Pass[A any] struct {
	Meta[A]
}

func (*Assign[A]) stmtNode()   {}
func (*ExprStmt[A]) stmtNode() {}
func (*Return[A]) stmtNode()   {}
func (*While[A]) stmtNode()    {}
func (*If[A]) stmtNode()       {}
func (*Pass[A]) stmtNode()     {}

type VarDef[A any] struct {
	Meta[A]
	Name  string
	Type  Type // TypeInt or TypeBool
	Value *Literal[A]
}

type Parameter[A any] struct {
	Meta[A]
	Name string
	Type Type // TypeInt or TypeBool
}

// FuncBody is a function's local definitions followed by its statements.
// In a checked tree the annotation is the body's return-guarantee type.
type FuncBody[A any] struct {
	Meta[A]
	Defs  []*VarDef[A]
	Stmts []Stmt[A]
}

type FuncDef[A any] struct {
	Pos    Pos
	Name   string
	Params []*Parameter[A]
	Ret    Type // TypeInt, TypeBool or TypeNone
	Body   *FuncBody[A]
}

type Program[A any] struct {
	Funcs []*FuncDef[A]
	Vars  []*VarDef[A]
	Body  []Stmt[A]
}

// ToSExpr converts a program to s-expression string representation. A
// checked program carries ^{type: T} on expressions and ^{returns: T} on
// statements.
func ToSExpr[A any](p *Program[A]) string {
	var sb strings.Builder
	sb.WriteString("(program")
	for _, f := range p.Funcs {
		sb.WriteString(" ")
		writeFuncDef(&sb, f)
	}
	for _, v := range p.Vars {
		sb.WriteString(" ")
		writeVarDef(&sb, v)
	}
	for _, s := range p.Body {
		sb.WriteString(" ")
		writeStmt(&sb, s)
	}
	sb.WriteString(")")
	return sb.String()
}

// ExprToSExpr converts a single expression to s-expression form.
func ExprToSExpr[A any](e Expr[A]) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

func writeFuncDef[A any](sb *strings.Builder, f *FuncDef[A]) {
	fmt.Fprintf(sb, "(def %q [", f.Name)
	for i, param := range f.Params {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(sb, "(param %q %s)", param.Name, param.Type)
	}
	fmt.Fprintf(sb, "] %s (body%s", f.Ret, meta(f.Body.Ann, "returns"))
	for _, v := range f.Body.Defs {
		sb.WriteString(" ")
		writeVarDef(sb, v)
	}
	for _, s := range f.Body.Stmts {
		sb.WriteString(" ")
		writeStmt(sb, s)
	}
	sb.WriteString("))")
}

func writeVarDef[A any](sb *strings.Builder, v *VarDef[A]) {
	fmt.Fprintf(sb, "(var %q %s ", v.Name, v.Type)
	writeExpr[A](sb, v.Value)
	sb.WriteString(")")
}

func writeStmts[A any](sb *strings.Builder, stmts []Stmt[A]) {
	for _, s := range stmts {
		sb.WriteString(" ")
		writeStmt(sb, s)
	}
}

func writeStmt[A any](sb *strings.Builder, s Stmt[A]) {
	m := meta(s.Annotation(), "returns")
	switch s := s.(type) {
	case *Assign[A]:
		fmt.Fprintf(sb, "(assign%s %q ", m, s.Name)
		writeExpr(sb, s.Value)
		sb.WriteString(")")
	case *ExprStmt[A]:
		sb.WriteString("(expr" + m + " ")
		writeExpr(sb, s.Expr)
		sb.WriteString(")")
	case *Return[A]:
		sb.WriteString("(return" + m)
		if s.Value != nil {
			sb.WriteString(" ")
			writeExpr(sb, s.Value)
		}
		sb.WriteString(")")
	case *While[A]:
		sb.WriteString("(while" + m + " ")
		writeExpr(sb, s.Cond)
		writeStmts(sb, s.Body)
		sb.WriteString(")")
	case *If[A]:
		if s.Cond == nil {
			sb.WriteString("(else" + m)
			writeStmts(sb, s.Body)
			sb.WriteString(")")
			return
		}
		sb.WriteString("(if" + m + " ")
		writeExpr(sb, s.Cond)
		sb.WriteString(" (then")
		writeStmts(sb, s.Body)
		sb.WriteString(")")
		if s.Else != nil {
			sb.WriteString(" ")
			writeStmt[A](sb, s.Else)
		}
		sb.WriteString(")")
	case *Pass[A]:
		sb.WriteString("(pass" + m + ")")
	default:
		fmt.Fprintf(sb, "(unknown-stmt %T)", s)
	}
}

func writeExpr[A any](sb *strings.Builder, e Expr[A]) {
	m := meta(e.Annotation(), "type")
	switch e := e.(type) {
	case *Literal[A]:
		sb.WriteString("(lit" + m + " " + literalText(e.Kind, e.Value) + ")")
	case *Identifier[A]:
		fmt.Fprintf(sb, "(id%s %q)", m, e.Name)
	case *UnaryOp[A]:
		fmt.Fprintf(sb, "(unary%s %q ", m, e.Op)
		writeExpr(sb, e.Arg)
		sb.WriteString(")")
	case *BinaryOp[A]:
		fmt.Fprintf(sb, "(binary%s %q ", m, e.Op)
		writeExpr(sb, e.LHS)
		sb.WriteString(" ")
		writeExpr(sb, e.RHS)
		sb.WriteString(")")
	case *Parenthesized[A]:
		sb.WriteString("(paren" + m + " ")
		writeExpr(sb, e.Arg)
		sb.WriteString(")")
	case *Call[A]:
		fmt.Fprintf(sb, "(call%s %q", m, e.Name)
		for _, arg := range e.Args {
			sb.WriteString(" ")
			writeExpr(sb, arg)
		}
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "(unknown-expr %T)", e)
	}
}

func literalText(kind LiteralKind, value int32) string {
	switch kind {
	case LitNone:
		return "None"
	case LitTrue:
		return "True"
	case LitFalse:
		return "False"
	default:
		return strconv.Itoa(int(value))
	}
}

// meta renders the annotation of a checked node; unchecked nodes have none.
func meta[A any](ann A, key string) string {
	t, ok := any(ann).(Type)
	if !ok {
		return ""
	}
	return fmt.Sprintf(" ^{%s: %s}", key, t)
}

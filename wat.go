package main

import (
	"bytes"
	"fmt"
	"strings"
)

// Import order of the host builtins in every emitted module.
var builtinImports = []string{"print", "min", "abs", "max", "pow"}

// Print modes tell the host how to render the value passed to print.
const (
	printModeNone = 0
	printModeBool = 1
	printModeInt  = 2
)

const scratchLocal = "$$scratch"

// watWriter writes indented WAT text, one form per line.
type watWriter struct {
	buf    bytes.Buffer
	indent int
}

func (w *watWriter) line(format string, args ...any) {
	w.buf.WriteString(strings.Repeat("  ", w.indent))
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
}

// open writes the head of a form whose closing paren is written by close.
func (w *watWriter) open(format string, args ...any) {
	w.line(format, args...)
	w.indent++
}

func (w *watWriter) close() {
	w.indent--
	w.line(")")
}

// scope is the set of names that resolve to locals in the function being
// generated. Every other name is a global.
type scope map[string]bool

func (s scope) get(name string) string {
	if s[name] {
		return "(local.get $" + name + ")"
	}
	return "(global.get $" + name + ")"
}

func (s scope) set(name string) string {
	if s[name] {
		return "(local.set $" + name + ")"
	}
	return "(global.set $" + name + ")"
}

// Generate lowers a checked program to a WAT module.
func Generate(p *Program[Type]) (wat string, err error) {
	defer func() {
		if r := recover(); r != nil {
			cerr, ok := r.(*CompileError)
			if !ok {
				panic(r)
			}
			wat, err = "", cerr
		}
	}()

	w := &watWriter{}
	w.open("(module")
	EmitImports(w)
	EmitGlobals(w, p.Vars)
	for _, f := range p.Funcs {
		EmitFunction(w, f)
	}
	EmitEntry(w, p.Body)
	w.close()
	return w.buf.String(), nil
}

func EmitImports(w *watWriter) {
	for _, name := range builtinImports {
		var sb strings.Builder
		fmt.Fprintf(&sb, "(func $%s (import \"imports\" %q)", name, name)
		params := len(builtins[name].Params)
		if name == "print" {
			params++ // mode
		}
		for i := 0; i < params; i++ {
			sb.WriteString(" (param i32)")
		}
		sb.WriteString(" (result i32))")
		w.line("%s", sb.String())
	}
}

func EmitGlobals(w *watWriter, vars []*VarDef[Type]) {
	for _, v := range vars {
		w.line("(global $%s (mut i32) (i32.const %d))", v.Name, literalValue(v.Value))
	}
}

// EmitFunction emits a user function. Every function returns one i32
// whatever its declared return type.
func EmitFunction(w *watWriter, f *FuncDef[Type]) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(func $%s", f.Name)
	locals := scope{}
	for _, param := range f.Params {
		fmt.Fprintf(&sb, " (param $%s i32)", param.Name)
		locals[param.Name] = true
	}
	sb.WriteString(" (result i32)")
	w.open("%s", sb.String())

	w.line("(local %s i32)", scratchLocal)
	for _, v := range f.Body.Defs {
		w.line("(local $%s i32)", v.Name)
		locals[v.Name] = true
	}
	for _, v := range f.Body.Defs {
		w.line("(i32.const %d)", literalValue(v.Value))
		w.line("%s", locals.set(v.Name))
	}

	emitStmts(w, locals, f.Body.Stmts, 1)

	// Unreachable when the body guarantees a return.
	w.line("(i32.const 0)")
	w.line("(return)")
	w.close()
}

// EmitEntry emits the exported function holding the top-level statements.
func EmitEntry(w *watWriter, stmts []Stmt[Type]) {
	w.open("(func (export \"exported_func\")")
	w.line("(local %s i32)", scratchLocal)
	emitStmts(w, scope{}, stmts, 1)
	w.close()
}

// emitStmts emits a statement list. label is the number of the next loop
// label; the updated number is returned.
func emitStmts(w *watWriter, s scope, stmts []Stmt[Type], label int) int {
	for _, stmt := range stmts {
		label = emitStmt(w, s, stmt, label)
	}
	return label
}

func emitStmt(w *watWriter, s scope, stmt Stmt[Type], label int) int {
	switch stmt := stmt.(type) {
	case *Assign[Type]:
		emitExpr(w, s, stmt.Value)
		w.line("%s", s.set(stmt.Name))

	case *ExprStmt[Type]:
		emitExpr(w, s, stmt.Expr)
		w.line("(local.set %s)", scratchLocal)

	case *Return[Type]:
		if stmt.Value != nil {
			emitExpr(w, s, stmt.Value)
		} else {
			w.line("(i32.const 0)")
		}
		w.line("(return)")

	case *While[Type]:
		n := label
		label++
		w.open("(block $$block_label_%d", n)
		w.open("(loop $$loop_label_%d", n)
		emitExpr(w, s, stmt.Cond)
		w.line("(i32.const 1)")
		w.line("(i32.xor)")
		w.line("(br_if $$block_label_%d)", n)
		label = emitStmts(w, s, stmt.Body, label)
		w.line("(br $$loop_label_%d)", n)
		w.close()
		w.close()

	case *If[Type]:
		label = emitIf(w, s, stmt, label)

	case *Pass[Type]:

	default:
		panic(&CompileError{Msg: fmt.Sprintf("unsupported statement %T", stmt)})
	}
	return label
}

func emitIf(w *watWriter, s scope, stmt *If[Type], label int) int {
	if stmt.Cond == nil {
		// Terminal else block, inlined into the enclosing else arm.
		return emitStmts(w, s, stmt.Body, label)
	}
	emitExpr(w, s, stmt.Cond)
	w.open("(if")
	w.open("(then")
	label = emitStmts(w, s, stmt.Body, label)
	w.close()
	if stmt.Else != nil {
		w.open("(else")
		label = emitIf(w, s, stmt.Else, label)
		w.close()
	}
	w.close()
	return label
}

func emitExpr(w *watWriter, s scope, expr Expr[Type]) {
	switch e := expr.(type) {
	case *Literal[Type]:
		w.line("(i32.const %d)", literalValue(e))

	case *Identifier[Type]:
		w.line("%s", s.get(e.Name))

	case *UnaryOp[Type]:
		emitExpr(w, s, e.Arg)
		switch e.Op {
		case "not":
			w.line("(i32.const 1)")
			w.line("(i32.xor)")
		case "-":
			w.line("(i32.const -1)")
			w.line("(i32.mul)")
		case "+":
		default:
			panic(&CompileError{Msg: "unsupported unary operator: " + e.Op})
		}

	case *BinaryOp[Type]:
		emitExpr(w, s, e.LHS)
		emitExpr(w, s, e.RHS)
		w.line("(%s)", getBinaryInstruction(e.Op))

	case *Parenthesized[Type]:
		emitExpr(w, s, e.Arg)

	case *Call[Type]:
		for _, arg := range e.Args {
			emitExpr(w, s, arg)
		}
		if e.Name == "print" {
			if len(e.Args) != 1 {
				panic(&CompileError{Msg: fmt.Sprintf("print takes 1 argument, got %d", len(e.Args))})
			}
			w.line("(i32.const %d)", printMode(e.Args[0].Annotation()))
		}
		w.line("(call $%s)", e.Name)

	default:
		panic(&CompileError{Msg: fmt.Sprintf("unsupported expression %T", expr)})
	}
}

func getBinaryInstruction(op string) string {
	switch op {
	case "+":
		return "i32.add"
	case "-":
		return "i32.sub"
	case "*":
		return "i32.mul"
	case "//":
		return "i32.div_s"
	case "%":
		return "i32.rem_s"
	case "==", "is":
		return "i32.eq"
	case "!=":
		return "i32.ne"
	case ">":
		return "i32.gt_s"
	case "<":
		return "i32.lt_s"
	case ">=":
		return "i32.ge_s"
	case "<=":
		return "i32.le_s"
	default:
		panic(&CompileError{Msg: "unsupported binary operator: " + op})
	}
}

func printMode(t Type) int {
	switch t {
	case TypeNone:
		return printModeNone
	case TypeBool:
		return printModeBool
	default:
		return printModeInt
	}
}

func literalValue(lit *Literal[Type]) int32 {
	switch lit.Kind {
	case LitNone, LitFalse:
		return 0
	case LitTrue:
		return 1
	case LitNumber:
		return lit.Value
	default:
		panic(&CompileError{Msg: fmt.Sprintf("unrecognized literal kind %d", lit.Kind)})
	}
}

package main

import "maps"

// Signature is a function's parameter types and return type.
type Signature struct {
	Params []Type
	Ret    Type
}

var builtins = map[string]Signature{
	"print": {Params: []Type{TypeAny}, Ret: TypeNone},
	"abs":   {Params: []Type{TypeInt}, Ret: TypeInt},
	"min":   {Params: []Type{TypeInt, TypeInt}, Ret: TypeInt},
	"max":   {Params: []Type{TypeInt, TypeInt}, Ret: TypeInt},
	"pow":   {Params: []Type{TypeInt, TypeInt}, Ret: TypeInt},
}

// env is the scope a node is checked in. It is a value: the with* methods
// return a new env and never write to a map another env can see.
type env struct {
	vars  map[string]Type
	funcs map[string]Signature

	// local is nil while checking top-level statements.
	local map[string]Type
	ret   Type
}

func newEnv() env {
	return env{vars: map[string]Type{}, funcs: maps.Clone(builtins)}
}

func (e env) withGlobal(name string, t Type) env {
	e.vars = with(e.vars, name, t)
	return e
}

func (e env) withFunc(name string, sig Signature) env {
	e.funcs = with(e.funcs, name, sig)
	return e
}

func (e env) withLocal(name string, t Type) env {
	e.local = with(e.local, name, t)
	return e
}

// function returns the env for checking the body of a function returning ret.
func (e env) function(ret Type) env {
	e.local = map[string]Type{}
	e.ret = ret
	return e
}

func (e env) inFunction() bool {
	return e.local != nil
}

func (e env) lookup(name string) (Type, bool) {
	if t, ok := e.local[name]; ok {
		return t, true
	}
	t, ok := e.vars[name]
	return t, ok
}

func with[V any](m map[string]V, key string, value V) map[string]V {
	m = maps.Clone(m)
	if m == nil {
		m = map[string]V{}
	}
	m[key] = value
	return m
}

// Check type checks a program and returns a copy annotated with types. The
// input is not modified; a checked program may be checked again.
func Check[A any](p *Program[A]) (*Program[Type], error) {
	e := newEnv()
	out := &Program[Type]{}

	// Pass 1: globals, then function signatures.
	for _, v := range p.Vars {
		if _, ok := e.funcs[v.Name]; ok {
			return nil, typeErrorf(v.Pos, "%s has already been defined as a function", v.Name)
		}
		if _, ok := e.vars[v.Name]; ok {
			return nil, typeErrorf(v.Pos, "duplicate definition of %s", v.Name)
		}
		cv, err := checkVarDef(v)
		if err != nil {
			return nil, err
		}
		out.Vars = append(out.Vars, cv)
		e = e.withGlobal(v.Name, v.Type)
	}
	for _, f := range p.Funcs {
		if _, ok := builtins[f.Name]; ok {
			return nil, typeErrorf(f.Pos, "function %s is a builtin function and cannot be redefined", f.Name)
		}
		if _, ok := e.funcs[f.Name]; ok {
			return nil, typeErrorf(f.Pos, "duplicate definition of function %s", f.Name)
		}
		if _, ok := e.vars[f.Name]; ok {
			return nil, typeErrorf(f.Pos, "variable with name %s already exists", f.Name)
		}
		sig := Signature{Ret: f.Ret}
		for _, param := range f.Params {
			sig.Params = append(sig.Params, param.Type)
		}
		e = e.withFunc(f.Name, sig)
	}

	// Pass 2: bodies.
	for _, f := range p.Funcs {
		cf, err := checkFuncDef(e, f)
		if err != nil {
			return nil, err
		}
		out.Funcs = append(out.Funcs, cf)
	}
	body, _, err := checkStmts(e, p.Body)
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func checkVarDef[A any](v *VarDef[A]) (*VarDef[Type], error) {
	lit := checkLiteral(v.Value)
	if lit.Ann != v.Type {
		return nil, typeErrorf(v.Pos, "cannot assign %s to %s %s", lit.Ann, v.Type, v.Name)
	}
	return &VarDef[Type]{Meta: Meta[Type]{Ann: v.Type, Pos: v.Pos}, Name: v.Name, Type: v.Type, Value: lit}, nil
}

func checkFuncDef[A any](e env, f *FuncDef[A]) (*FuncDef[Type], error) {
	e = e.function(f.Ret)
	out := &FuncDef[Type]{Pos: f.Pos, Name: f.Name, Ret: f.Ret}

	declare := func(name string, pos Pos) error {
		if _, ok := builtins[name]; ok {
			return typeErrorf(pos, "%s shadows a builtin function", name)
		}
		if _, ok := e.local[name]; ok {
			return typeErrorf(pos, "duplicate definition of %s in function %s", name, f.Name)
		}
		return nil
	}

	for _, param := range f.Params {
		if err := declare(param.Name, param.Pos); err != nil {
			return nil, err
		}
		out.Params = append(out.Params, &Parameter[Type]{
			Meta: Meta[Type]{Ann: param.Type, Pos: param.Pos},
			Name: param.Name,
			Type: param.Type,
		})
		e = e.withLocal(param.Name, param.Type)
	}

	body := &FuncBody[Type]{}
	for _, v := range f.Body.Defs {
		if err := declare(v.Name, v.Pos); err != nil {
			return nil, err
		}
		cv, err := checkVarDef(v)
		if err != nil {
			return nil, err
		}
		body.Defs = append(body.Defs, cv)
		e = e.withLocal(v.Name, v.Type)
	}

	stmts, guarantee, err := checkStmts(e, f.Body.Stmts)
	if err != nil {
		return nil, err
	}
	body.Stmts = stmts
	body.Meta = Meta[Type]{Ann: guarantee, Pos: f.Body.Pos}
	out.Body = body

	if guarantee != f.Ret {
		switch {
		case f.Ret == TypeNone:
			return nil, typeErrorf(f.Pos, "function %s does not have a return type but always returns %s", f.Name, guarantee)
		case guarantee == TypeNone:
			return nil, typeErrorf(f.Pos, "function %s should return %s on every reachable path", f.Name, f.Ret)
		default:
			return nil, typeErrorf(f.Pos, "function %s returns %s, but got %s", f.Name, f.Ret, guarantee)
		}
	}
	return out, nil
}

// checkStmts checks a statement list and returns its return-guarantee type:
// the guarantee of the last statement that guarantees anything.
func checkStmts[A any](e env, stmts []Stmt[A]) ([]Stmt[Type], Type, error) {
	out := make([]Stmt[Type], 0, len(stmts))
	guarantee := TypeNone
	for _, s := range stmts {
		cs, err := checkStmt(e, s)
		if err != nil {
			return nil, "", err
		}
		if t := cs.Annotation(); t != TypeNone {
			guarantee = t
		}
		out = append(out, cs)
	}
	return out, guarantee, nil
}

func checkStmt[A any](e env, s Stmt[A]) (Stmt[Type], error) {
	none := Meta[Type]{Ann: TypeNone, Pos: s.Position()}
	switch s := s.(type) {
	case *Assign[A]:
		t, ok := e.local[s.Name]
		if !ok {
			if _, global := e.vars[s.Name]; global && e.inFunction() {
				return nil, typeErrorf(s.Pos, "cannot assign to %s explicitly not declared in the scope", s.Name)
			}
			t, ok = e.vars[s.Name]
		}
		if !ok {
			return nil, typeErrorf(s.Pos, "undefined variable %s", s.Name)
		}
		value, err := checkExpr(e, s.Value)
		if err != nil {
			return nil, err
		}
		if value.Annotation() != t {
			return nil, typeErrorf(s.Pos, "cannot assign expression of type %s to %s", value.Annotation(), t)
		}
		return &Assign[Type]{Meta: none, Name: s.Name, Value: value}, nil

	case *ExprStmt[A]:
		expr, err := checkExpr(e, s.Expr)
		if err != nil {
			return nil, err
		}
		return &ExprStmt[Type]{Meta: none, Expr: expr}, nil

	case *Return[A]:
		if !e.inFunction() {
			return nil, typeErrorf(s.Pos, "returns cannot occur at the outermost level")
		}
		if s.Value == nil {
			return &Return[Type]{Meta: none}, nil
		}
		value, err := checkExpr(e, s.Value)
		if err != nil {
			return nil, err
		}
		if value.Annotation() != e.ret {
			return nil, typeErrorf(s.Pos, "expected a return of type %s, but got %s", e.ret, value.Annotation())
		}
		return &Return[Type]{Meta: Meta[Type]{Ann: e.ret, Pos: s.Pos}, Value: value}, nil

	case *While[A]:
		cond, err := checkCondition(e, s.Cond, "while")
		if err != nil {
			return nil, err
		}
		// The loop may run zero times, so its body never guarantees a return.
		body, _, err := checkStmts(e, s.Body)
		if err != nil {
			return nil, err
		}
		return &While[Type]{Meta: none, Cond: cond, Body: body}, nil

	case *If[A]:
		return checkIf(e, s)

	case *Pass[A]:
		return &Pass[Type]{Meta: none}, nil

	default:
		return nil, typeErrorf(s.Position(), "statement not recognized: %T", s)
	}
}

func checkIf[A any](e env, s *If[A]) (*If[Type], error) {
	out := &If[Type]{}
	if s.Cond != nil {
		cond, err := checkCondition(e, s.Cond, "if/elif")
		if err != nil {
			return nil, err
		}
		out.Cond = cond
	}
	body, guarantee, err := checkStmts(e, s.Body)
	if err != nil {
		return nil, err
	}
	out.Body = body
	if s.Else != nil {
		out.Else, err = checkIf(e, s.Else)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case s.Cond == nil:
		// Terminal else block.
	case out.Else == nil:
		guarantee = TypeNone
	case out.Else.Ann == TypeNone:
		guarantee = TypeNone
	}
	out.Meta = Meta[Type]{Ann: guarantee, Pos: s.Pos}
	return out, nil
}

func checkCondition[A any](e env, cond Expr[A], construct string) (Expr[Type], error) {
	c, err := checkExpr(e, cond)
	if err != nil {
		return nil, err
	}
	if c.Annotation() != TypeBool {
		return nil, typeErrorf(cond.Position(), "%s condition must be bool, got %s", construct, c.Annotation())
	}
	return c, nil
}

func checkLiteral[A any](lit *Literal[A]) *Literal[Type] {
	t := TypeInt
	switch lit.Kind {
	case LitNone:
		t = TypeNone
	case LitTrue, LitFalse:
		t = TypeBool
	}
	return &Literal[Type]{Meta: Meta[Type]{Ann: t, Pos: lit.Pos}, Kind: lit.Kind, Value: lit.Value}
}

// binaryResult is the result type of a binary operator applied to two
// operands of the same type.
func binaryResult(op string) Type {
	switch op {
	case "+", "-", "*", "//", "%":
		return TypeInt
	}
	return TypeBool
}

func checkExpr[A any](e env, expr Expr[A]) (Expr[Type], error) {
	switch x := expr.(type) {
	case *Literal[A]:
		return checkLiteral(x), nil

	case *Identifier[A]:
		t, ok := e.lookup(x.Name)
		if !ok {
			return nil, typeErrorf(x.Pos, "undefined variable %s", x.Name)
		}
		return &Identifier[Type]{Meta: Meta[Type]{Ann: t, Pos: x.Pos}, Name: x.Name}, nil

	case *UnaryOp[A]:
		arg, err := checkExpr(e, x.Arg)
		if err != nil {
			return nil, err
		}
		want := TypeInt
		switch x.Op {
		case "not":
			want = TypeBool
		case "+", "-":
		default:
			return nil, typeErrorf(x.Pos, "undefined unary operation %s", x.Op)
		}
		if arg.Annotation() != want {
			return nil, typeErrorf(x.Pos, "%q operation is not defined on type %s", x.Op, arg.Annotation())
		}
		return &UnaryOp[Type]{Meta: Meta[Type]{Ann: want, Pos: x.Pos}, Op: x.Op, Arg: arg}, nil

	case *BinaryOp[A]:
		lhs, err := checkExpr(e, x.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := checkExpr(e, x.RHS)
		if err != nil {
			return nil, err
		}
		lt, rt := lhs.Annotation(), rhs.Annotation()
		ok := false
		if lt == rt {
			switch lt {
			case TypeInt:
				ok = x.Op != "is"
			case TypeBool:
				ok = x.Op == "==" || x.Op == "!="
			case TypeNone:
				ok = x.Op == "is"
			}
		}
		if !ok {
			return nil, typeErrorf(x.Pos, "cannot apply %s on %s and %s", x.Op, lt, rt)
		}
		return &BinaryOp[Type]{
			Meta: Meta[Type]{Ann: binaryResult(x.Op), Pos: x.Pos},
			Op:   x.Op,
			LHS:  lhs,
			RHS:  rhs,
		}, nil

	case *Parenthesized[A]:
		arg, err := checkExpr(e, x.Arg)
		if err != nil {
			return nil, err
		}
		return &Parenthesized[Type]{Meta: Meta[Type]{Ann: arg.Annotation(), Pos: x.Pos}, Arg: arg}, nil

	case *Call[A]:
		sig, ok := e.funcs[x.Name]
		if !ok {
			return nil, typeErrorf(x.Pos, "undefined function %s", x.Name)
		}
		if len(sig.Params) != len(x.Args) {
			return nil, typeErrorf(x.Pos, "expected %d arguments to %s, but got %d", len(sig.Params), x.Name, len(x.Args))
		}
		args := make([]Expr[Type], len(x.Args))
		for i, arg := range x.Args {
			ca, err := checkExpr(e, arg)
			if err != nil {
				return nil, err
			}
			if want := sig.Params[i]; want != TypeAny && ca.Annotation() != want {
				return nil, typeErrorf(arg.Position(), "expected %s as argument %d of %s, but got %s", want, i+1, x.Name, ca.Annotation())
			}
			args[i] = ca
		}
		return &Call[Type]{Meta: Meta[Type]{Ann: sig.Ret, Pos: x.Pos}, Name: x.Name, Args: args}, nil

	default:
		return nil, typeErrorf(expr.Position(), "expression not recognized: %T", expr)
	}
}

package main

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func buildSource(source string) (*Program[Unchecked], error) {
	tree, err := ParseSyntax(source)
	if err != nil {
		return nil, err
	}
	return Build(tree, source)
}

func mustBuild(t *testing.T, source string) *Program[Unchecked] {
	t.Helper()
	prog, err := buildSource(source)
	be.Err(t, err, nil)
	return prog
}

func TestBuildTopLevelPartition(t *testing.T) {
	source := "x: int = 5\ndef f() -> int:\n    return x\ny: bool = True\nprint(f())\nx = 3\n"
	prog := mustBuild(t, source)
	be.Equal(t, len(prog.Vars), 2)
	be.Equal(t, len(prog.Funcs), 1)
	be.Equal(t, len(prog.Body), 2)
	be.Equal(t, ToSExpr(prog),
		`(program (def "f" [] int (body (return (id "x")))) `+
			`(var "x" int (lit 5)) (var "y" bool (lit True)) `+
			`(expr (call "print" (call "f"))) (assign "x" (lit 3)))`)
}

func TestBuildLiterals(t *testing.T) {
	prog := mustBuild(t, "print(None)\nprint(False)\nprint(2147483647)\n")
	be.Equal(t, ToSExpr(prog),
		`(program (expr (call "print" (lit None))) (expr (call "print" (lit False))) (expr (call "print" (lit 2147483647))))`)
}

func TestBuildExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"-x", `(unary "-" (id "x"))`},
		{"+x", `(unary "+" (id "x"))`},
		{"not x", `(unary "not" (id "x"))`},
		{"(1 + 2) * 3", `(binary "*" (paren (binary "+" (lit 1) (lit 2))) (lit 3))`},
		{"a // b % c", `(binary "%" (binary "//" (id "a") (id "b")) (id "c"))`},
		{"a is None", `(binary "is" (id "a") (lit None))`},
		{"a >= b", `(binary ">=" (id "a") (id "b"))`},
		{"f()", `(call "f")`},
		{"max(1, min(2, 3))", `(call "max" (lit 1) (call "min" (lit 2) (lit 3)))`},
		{"-2147483648", `(lit -2147483648)`},
		{"-2147483647", `(unary "-" (lit 2147483647))`},
		{"-(2147483647)", `(unary "-" (paren (lit 2147483647)))`},
	}
	for _, tt := range tests {
		prog := mustBuild(t, tt.input)
		stmt, ok := prog.Body[0].(*ExprStmt[Unchecked])
		be.True(t, ok)
		be.Equal(t, ExprToSExpr(stmt.Expr), tt.want)
	}
}

func TestBuildFunction(t *testing.T) {
	source := "def f(a: int, b: bool) -> bool:\n    c: int = 1\n    a = 2\n    return b\n"
	prog := mustBuild(t, source)
	f := prog.Funcs[0]
	be.Equal(t, f.Name, "f")
	be.Equal(t, f.Ret, TypeBool)
	be.Equal(t, len(f.Params), 2)
	be.Equal(t, f.Params[1].Type, TypeBool)
	be.Equal(t, ToSExpr(prog),
		`(program (def "f" [(param "a" int) (param "b" bool)] bool `+
			`(body (var "c" int (lit 1)) (assign "a" (lit 2)) (return (id "b")))))`)
}

func TestBuildReturnTypeDefaultsToNone(t *testing.T) {
	prog := mustBuild(t, "def f():\n    pass\ndef g() -> None:\n    return\n")
	be.Equal(t, prog.Funcs[0].Ret, TypeNone)
	be.Equal(t, prog.Funcs[1].Ret, TypeNone)
	ret, ok := prog.Funcs[1].Body.Stmts[0].(*Return[Unchecked])
	be.True(t, ok)
	be.True(t, ret.Value == nil)
}

func TestBuildIfChain(t *testing.T) {
	source := "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"
	prog := mustBuild(t, source)
	be.Equal(t, ToSExpr(prog),
		`(program (if (id "a") (then (assign "x" (lit 1))) `+
			`(if (id "b") (then (assign "x" (lit 2))) `+
			`(else (assign "x" (lit 3))))))`)

	outer := prog.Body[0].(*If[Unchecked])
	be.True(t, outer.Else.Else.Cond == nil)
	be.True(t, outer.Else.Else.Else == nil)
}

func TestBuildIfWithoutElse(t *testing.T) {
	prog := mustBuild(t, "if a:\n    pass\n")
	stmt := prog.Body[0].(*If[Unchecked])
	be.True(t, stmt.Else == nil)
	be.Equal(t, ToSExpr(prog), `(program (if (id "a") (then (pass))))`)
}

func TestBuildWhile(t *testing.T) {
	prog := mustBuild(t, "while True:\n    while x:\n        pass\n")
	be.Equal(t, ToSExpr(prog), `(program (while (lit True) (while (id "x") (pass))))`)
}

func TestBuildPositions(t *testing.T) {
	prog := mustBuild(t, "x: int = 1\n\nprint(x)\n")
	be.Equal(t, prog.Vars[0].Pos, Pos{Line: 1, Col: 1})
	be.Equal(t, prog.Body[0].Position(), Pos{Line: 3, Col: 1})

	call := prog.Body[0].(*ExprStmt[Unchecked]).Expr.(*Call[Unchecked])
	be.Equal(t, call.Args[0].Position(), Pos{Line: 3, Col: 7})
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"definition after statement", "print(1)\nx: int = 1\n", "definitions must come before all statements (line 2, col 1)"},
		{"function after statement", "print(1)\ndef f():\n    pass\n", "definitions must come before all statements"},
		{"local after statement", "def f(a: int) -> int:\n    a = 2\n    b: int = 1\n    return a\n",
			"cannot define any further variables inside the function body (line 3, col 5)"},
		{"local after return", "def f() -> int:\n    return 1\n    b: int = 1\n", "cannot define any further variables"},
		{"definition in block", "while True:\n    x: int = 1\n", "cannot define variable x at this point"},
		{"non-literal initializer", "x: int = 1 + 2\n", `invalid literal "1 + 2"`},
		{"negative initializer", "x: int = -1\n", `invalid literal "-1"`},
		{"missing initializer", "x: int\n", "variable x must be initialized"},
		{"unknown variable type", "x: str = 1\n", `invalid type "str" for variable x`},
		{"none variable type", "x: None = None\n", `invalid type "None" for variable x`},
		{"none parameter type", "def f(a: None):\n    pass\n", `invalid type "None" for parameter a`},
		{"expression type annotation", "x: 1 + 2 = 1\n", `invalid type annotation ": 1 + 2"`},
		{"chained assignment", "x = y = 1\n", `unexpected "="`},
		{"assign to attribute", "a.b = 1\n", `cannot assign to "a.b"`},
		{"untyped parameter", "def f(a):\n    pass\n", "parameter a needs a type annotation"},
		{"bad parameter type", "def f(a: str):\n    pass\n", `invalid type "str" for parameter a`},
		{"default parameter", "def f(a: int = 1):\n    pass\n", `unexpected "=" in parameter list`},
		{"trailing comma in params", "def f(a: int,):\n    pass\n", "trailing comma in parameter list"},
		{"bad return type", "def f() -> str:\n    pass\n", `invalid return type "str" for function f`},
		{"nested function", "def f():\n    def g():\n        pass\n", "function definitions are only allowed at the top level"},
		{"while else", "while True:\n    pass\nelse:\n    pass\n", `unexpected "else"`},
		{"unsupported binary operator", "1 ** 2\n", `unsupported binary operator "**"`},
		{"and", "True and False\n", `unsupported binary operator "and"`},
		{"division", "1 / 2\n", `unsupported binary operator "/"`},
		{"unsupported unary operator", "~1\n", `unsupported unary operator "~"`},
		{"string", "print(\"hi\")\n", "strings are not supported"},
		{"attribute", "print(a.b)\n", "attribute access is not supported"},
		{"method call", "a.b()\n", "only named functions can be called"},
		{"trailing comma in args", "print(1,)\n", "trailing comma in argument list"},
		{"keyword argument", "f(a=1)\n", `unexpected "=" in argument list`},
		{"break", "while True:\n    break\n", `unsupported statement "break"`},
		{"for", "for x in y:\n    pass\n", `unsupported statement`},
		{"literal too large", "print(2147483648)\n", "integer literal 2147483648 does not fit in 32 bits"},
		{"negated literal too large", "print(-2147483649)\n", "integer literal 2147483649 does not fit in 32 bits"},
		{"parenthesized minimum", "print(-(2147483648))\n", "integer literal 2147483648 does not fit in 32 bits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSource(tt.input)
			be.Err(t, err, tt.err)

			var perr *ParseError
			be.True(t, errors.As(err, &perr))
		})
	}
}

func TestAssignmentType(t *testing.T) {
	tests := []struct {
		input string
		want  AssignmentType
	}{
		{"x: int = 1", Definition},
		{"x = 1", ReAssignment},
		{"x = y = 1", ReAssignment},
	}
	for _, tt := range tests {
		tree, err := ParseSyntax(tt.input)
		be.Err(t, err, nil)
		b := &builder{source: tt.input, lines: newLineIndex(tt.input)}
		got, err := b.assignmentType(tree.Children[0])
		be.Err(t, err, nil)
		be.Equal(t, got, tt.want)
	}
}

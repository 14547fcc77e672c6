package main

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/nalgeon/be"
	"github.com/strager/chocowasm/sexy"
)

func runWAT(t *testing.T, wat string) (*Machine, string, error) {
	t.Helper()
	m, err := LoadModule(wat)
	be.Err(t, err, nil)
	m.MaxSteps = 10_000
	var out bytes.Buffer
	err = m.Run(&out)
	return m, out.String(), err
}

func entryModule(body string) string {
	return "(module\n" + watImports + "  (func (export \"exported_func\")\n    (local $$scratch i32)\n" + body + "\n  )\n)\n"
}

func TestRunPrint(t *testing.T) {
	_, out, err := runWAT(t, entryModule(`
    (i32.const 7) (i32.const 2) (call $print) (local.set $$scratch)
    (i32.const 1) (i32.const 1) (call $print) (local.set $$scratch)
    (i32.const 0) (i32.const 1) (call $print) (local.set $$scratch)
    (i32.const 0) (i32.const 0) (call $print) (local.set $$scratch)`))
	be.Err(t, err, nil)
	be.Equal(t, out, "7\nTrue\nFalse\nNone\n")
}

func TestRunGlobals(t *testing.T) {
	wat := "(module\n" + watImports + `  (global $g (mut i32) (i32.const 40))
  (func (export "exported_func")
    (local $$scratch i32)
    (global.get $g)
    (i32.const 2)
    (i32.add)
    (global.set $g)
  )
)`
	m, _, err := runWAT(t, wat)
	be.Err(t, err, nil)
	g, ok := m.Global("$g")
	be.True(t, ok)
	be.Equal(t, g, int32(42))

	_, ok = m.Global("$missing")
	be.True(t, !ok)
}

func TestRunDivideByZero(t *testing.T) {
	for _, op := range []string{"i32.div_s", "i32.rem_s"} {
		_, _, err := runWAT(t, entryModule("(i32.const 1) (i32.const 0) ("+op+") (local.set $$scratch)"))
		be.Err(t, err, "trap: integer divide by zero")

		var trap *Trap
		be.True(t, errors.As(err, &trap))
	}
}

func TestRunStepLimit(t *testing.T) {
	wat, err := Compile("while True:\n    pass\n", nil)
	be.Err(t, err, nil)
	_, _, err = runWAT(t, wat)
	be.True(t, errors.Is(err, errStepLimit))
}

func TestRunCompiledReturnValue(t *testing.T) {
	wat, err := Compile("def f(a: int, b: int) -> int:\n    return a - b\nprint(f(10, 3))\n", nil)
	be.Err(t, err, nil)
	_, out, err := runWAT(t, wat)
	be.Err(t, err, nil)
	be.Equal(t, out, "7\n")
}

func TestRunTruncatingDivision(t *testing.T) {
	wat, err := Compile("print(-7 // 2)\nprint(-7 % 2)\n", nil)
	be.Err(t, err, nil)
	_, out, err := runWAT(t, wat)
	be.Err(t, err, nil)
	be.Equal(t, out, "-3\n-1\n")
}

func TestBinary(t *testing.T) {
	tests := []struct {
		op       string
		lhs, rhs int32
		want     int32
	}{
		{"i32.add", math.MaxInt32, 1, math.MinInt32},
		{"i32.sub", 3, 5, -2},
		{"i32.mul", -4, 5, -20},
		{"i32.div_s", 7, -2, -3},
		{"i32.rem_s", 7, -2, 1},
		{"i32.rem_s", math.MinInt32, -1, 0},
		{"i32.xor", 1, 1, 0},
		{"i32.eq", 2, 2, 1},
		{"i32.ne", 2, 2, 0},
		{"i32.gt_s", -1, 0, 0},
		{"i32.lt_s", -1, 0, 1},
		{"i32.ge_s", 0, 0, 1},
		{"i32.le_s", 1, 0, 0},
	}
	for _, tt := range tests {
		got, err := binary(tt.op, tt.lhs, tt.rhs)
		be.Err(t, err, nil)
		be.Equal(t, got, tt.want)
	}

	_, err := binary("i32.div_s", math.MinInt32, -1)
	be.Err(t, err, "integer overflow")

	_, err = binary("i32.shl", 1, 1)
	be.Err(t, err, "unsupported instruction")
}

func TestCallHost(t *testing.T) {
	var out bytes.Buffer
	tests := []struct {
		name string
		args []int32
		want int32
	}{
		{"abs", []int32{-5}, 5},
		{"abs", []int32{5}, 5},
		{"min", []int32{3, -4}, -4},
		{"max", []int32{3, -4}, 3},
		{"pow", []int32{3, 4}, 81},
		{"print", []int32{9, printModeInt}, 0},
	}
	for _, tt := range tests {
		got, err := callHost(&out, tt.name, tt.args)
		be.Err(t, err, nil)
		be.Equal(t, got, tt.want)
	}
	be.Equal(t, out.String(), "9\n")

	_, err := callHost(&out, "input", nil)
	be.Err(t, err, "unknown import input")
}

func TestIntPow(t *testing.T) {
	tests := []struct {
		base, exp, want int32
	}{
		{2, 0, 1},
		{2, 10, 1024},
		{-3, 3, -27},
		{0, 0, 1},
		{2, 31, math.MinInt32},
		{2, 32, 0},
		{2, -1, 0},
		{1, -5, 1},
		{-1, -3, -1},
		{-1, -4, 1},
	}
	for _, tt := range tests {
		be.Equal(t, intPow(tt.base, tt.exp), tt.want)
	}
}

func TestLoadModuleErrors(t *testing.T) {
	tests := []struct {
		name string
		wat  string
		err  string
	}{
		{"syntax", "(module", "parsing module"},
		{"not a module", "(func)", "expected (module ...)"},
		{"no entry", "(module (func $f (result i32) (i32.const 0) (return)))", "module has no exported function"},
		{"bad global", "(module (global $g (mut i32)))", "malformed global"},
		{"bad constant", "(module (global $g (mut i32) (i32.const x)))", "bad constant"},
		{"unknown field", "(module (memory 1))", "unsupported module field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModule(tt.wat)
			be.Err(t, err, tt.err)
		})
	}
}

func TestLoadModuleRejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  string
	}{
		{"undeclared local", "(local.get $nope) (local.set $$scratch)", `function (export "exported_func"): undeclared local $nope`},
		{"undeclared local set", "(i32.const 1) (local.set $nope)", "undeclared local $nope"},
		{"undeclared global", "(global.get $missing) (local.set $$scratch)", "undeclared global $missing"},
		{"undeclared global set", "(i32.const 1) (global.set $missing)", "undeclared global $missing"},
		{
			"unknown names in arithmetic",
			"(local.get $nope) (global.get $missing) (i32.add) (i32.const 2) (call $print) (i32.const 7)",
			"undeclared local $nope",
		},
		{"leftover value", "(i32.const 7)", "expected 0 values on the stack at end of function, got 1"},
		{"leftover call result", "(i32.const 7) (i32.const 2) (call $print)", "got 1"},
		{"stack underflow", "(local.set $$scratch)", "stack underflow at (local.set $$scratch)"},
		{"binary underflow", "(i32.const 1) (i32.add) (local.set $$scratch)", "stack underflow at (i32.add)"},
		{"call underflow", "(i32.const 1) (call $print) (local.set $$scratch)", "stack underflow at (call $print)"},
		{"unknown function", "(call $nope)", "call to unknown function $nope"},
		{"unknown instruction", "(memory.grow)", "unsupported instruction (memory.grow)"},
		{"unknown binary instruction", "(i32.const 1) (i32.const 1) (i32.shl) (local.set $$scratch)", "unsupported instruction (i32.shl)"},
		{"unknown label", "(br $$elsewhere)", "branch to unknown label $$elsewhere"},
		{"label out of scope", "(block $$a) (br $$a)", "branch to unknown label $$a"},
		{"unlabeled block", "(block (i32.const 1))", "block needs a label"},
		{"block leaves value", "(block $$a (i32.const 1))", "block $$a leaves 1 values on the stack"},
		{"block reads outer value", "(i32.const 1) (block $$a (local.set $$scratch))", "stack underflow"},
		{"if without condition", "(if (then))", "stack underflow at (if (then))"},
		{"if arm leaves value", "(i32.const 1) (if (then (i32.const 2)))", "leaves 1 values on the stack"},
		{"if arms out of order", "(i32.const 1) (if (else) (then))", "malformed if"},
		{"bad constant", "(i32.const 99999999999) (local.set $$scratch)", "bad constant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModule(entryModule(tt.body))
			be.Err(t, err, tt.err)
		})
	}
}

func TestLoadModuleRejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name string
		wat  string
		err  string
	}{
		{
			"result function without value",
			`(module (func $f (result i32)) (func (export "exported_func")))`,
			"function $f: expected 1 values on the stack at end of function, got 0",
		},
		{
			"return without value",
			`(module (func $f (result i32) (return)) (func (export "exported_func")))`,
			"function $f: stack underflow at (return)",
		},
		{
			"duplicate local",
			`(module (func $f (param $a i32) (result i32) (local $a i32) (i32.const 0)) (func (export "exported_func")))`,
			"function $f: duplicate local $a",
		},
		{
			"duplicate function",
			`(module (func $f) (func $f) (func (export "exported_func")))`,
			"duplicate function $f",
		},
		{
			"two exports",
			`(module (func (export "a")) (func (export "b")))`,
			"more than one exported function",
		},
		{
			"unknown import",
			`(module (func $input (import "imports" "input") (result i32)) (func (export "exported_func")))`,
			"unknown import input",
		},
		{
			"unnamed parameter",
			`(module (func $f (param i32)) (func (export "exported_func")))`,
			"unnamed parameter in function $f",
		},
		{
			"callee defined later",
			`(module (func (export "exported_func") (call $g)) (func $g (i32.const 1) (global.set $later)))`,
			"function $g: undeclared global $later",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModule(tt.wat)
			be.Err(t, err, tt.err)
		})
	}
}

func TestLoadModuleForwardReferences(t *testing.T) {
	wat := `(module
  (func (export "exported_func") (call $g))
  (func $g (i32.const 1) (global.set $x))
  (global $x (mut i32) (i32.const 0))
)`
	m, _, err := runWAT(t, wat)
	be.Err(t, err, nil)
	x, ok := m.Global("$x")
	be.True(t, ok)
	be.Equal(t, x, int32(1))
}

func TestRunBranchDiscardsBlockValues(t *testing.T) {
	_, out, err := runWAT(t, entryModule(`
    (block $$done
      (i32.const 5)
      (i32.const 1)
      (br_if $$done)
      (local.set $$scratch)
    )
    (block $$skip
      (i32.const 6)
      (br $$skip)
      (i32.add)
    )
    (i32.const 3) (i32.const 2) (call $print) (local.set $$scratch)`))
	be.Err(t, err, nil)
	be.Equal(t, out, "3\n")
}

func TestRunReturnDiscardsExtraValues(t *testing.T) {
	wat := "(module\n" + watImports + `  (func $f (result i32)
    (i32.const 1)
    (i32.const 2)
    (return)
  )
  (func (export "exported_func")
    (local $$scratch i32)
    (call $f) (i32.const 2) (call $print) (local.set $$scratch)
  )
)`
	_, out, err := runWAT(t, wat)
	be.Err(t, err, nil)
	be.Equal(t, out, "2\n")
}

func TestRunChecksFinalStackHeight(t *testing.T) {
	m, err := LoadModule(entryModule(""))
	be.Err(t, err, nil)
	leftover, err := sexy.Parse("(i32.const 7)")
	be.Err(t, err, nil)
	m.entry.body = []*sexy.Node{leftover}

	var out bytes.Buffer
	err = m.Run(&out)
	be.Err(t, err, `trap: function (export "exported_func") ended with 1 values on the stack, want 0`)
}

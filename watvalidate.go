package main

import (
	"fmt"

	"github.com/strager/chocowasm/sexy"
)

// hostArity is the parameter count of each builtin the module may import.
// Every builtin returns one value.
var hostArity = map[string]int{"print": 2, "min": 2, "max": 2, "pow": 2, "abs": 1}

var watBinaryOps = map[string]bool{
	"i32.add": true, "i32.sub": true, "i32.mul": true, "i32.div_s": true, "i32.rem_s": true,
	"i32.xor": true, "i32.eq": true, "i32.ne": true,
	"i32.gt_s": true, "i32.lt_s": true, "i32.ge_s": true, "i32.le_s": true,
}

// validator checks one function body before it runs: every name it uses
// must be declared and every instruction must find its operands.
type validator struct {
	m      *Machine
	f      *watFunc
	locals map[string]bool
	labels []string
}

func (m *Machine) validate(f *watFunc) error {
	v := &validator{m: m, f: f, locals: map[string]bool{}}
	for _, name := range append(append([]string{}, f.params...), f.locals...) {
		if v.locals[name] {
			return v.errorf("duplicate local %s", name)
		}
		v.locals[name] = true
	}
	height, unreachable, err := v.seq(f.body)
	if err != nil {
		return err
	}
	if want := f.results(); !unreachable && height != want {
		return v.errorf("expected %d values on the stack at end of function, got %d", want, height)
	}
	return nil
}

func (v *validator) errorf(format string, args ...any) error {
	return fmt.Errorf("function %s: %s", v.f.displayName(), fmt.Sprintf(format, args...))
}

// seq validates a block body, which starts with an empty operand stack. It
// returns the final stack height and whether the end is unreachable.
func (v *validator) seq(body []*sexy.Node) (int, bool, error) {
	height := 0
	unreachable := false
	pop := func(instr *sexy.Node, n int) error {
		if height < n {
			if unreachable {
				height = 0
				return nil
			}
			return v.errorf("stack underflow at %s", instr)
		}
		height -= n
		return nil
	}

	for _, instr := range body {
		op := instr.Head()
		name := ""
		if len(instr.Items) >= 2 {
			name = instr.Items[1].Text
		}

		switch op {
		case "i32.const":
			if _, err := constValue(instr); err != nil {
				return 0, false, v.errorf("%v", err)
			}
			height++

		case "local.get", "local.set":
			if !v.locals[name] {
				return 0, false, v.errorf("undeclared local %s", name)
			}
			if op == "local.get" {
				height++
			} else if err := pop(instr, 1); err != nil {
				return 0, false, err
			}

		case "global.get", "global.set":
			if _, ok := v.m.globals[name]; !ok {
				return 0, false, v.errorf("undeclared global %s", name)
			}
			if op == "global.get" {
				height++
			} else if err := pop(instr, 1); err != nil {
				return 0, false, err
			}

		case "call":
			params, results, ok := v.m.signature(name)
			if !ok {
				return 0, false, v.errorf("call to unknown function %s", name)
			}
			if err := pop(instr, params); err != nil {
				return 0, false, err
			}
			height += results

		case "return":
			if err := pop(instr, v.f.results()); err != nil {
				return 0, false, err
			}
			unreachable = true

		case "br", "br_if":
			if !v.hasLabel(name) {
				return 0, false, v.errorf("branch to unknown label %s", name)
			}
			if op == "br" {
				unreachable = true
			} else if err := pop(instr, 1); err != nil {
				return 0, false, err
			}

		case "block", "loop":
			if len(instr.Items) < 2 || instr.Items[1].Type != sexy.NodeSymbol {
				return 0, false, v.errorf("%s needs a label", op)
			}
			if err := v.nested(name, instr.Items[2:]); err != nil {
				return 0, false, err
			}

		case "if":
			if err := pop(instr, 1); err != nil {
				return 0, false, err
			}
			for i, arm := range instr.Items[1:] {
				want := "then"
				if i == 1 {
					want = "else"
				}
				if i > 1 || arm.Head() != want {
					return 0, false, v.errorf("malformed if %s", instr)
				}
				if err := v.nested("", arm.Items[1:]); err != nil {
					return 0, false, err
				}
			}

		default:
			if !watBinaryOps[op] {
				return 0, false, v.errorf("unsupported instruction %s", instr)
			}
			if err := pop(instr, 2); err != nil {
				return 0, false, err
			}
			height++
		}
	}
	return height, unreachable, nil
}

// nested validates the body of a block, loop or if arm. These produce no
// values, so a body that falls off its end must leave the stack empty.
func (v *validator) nested(label string, body []*sexy.Node) error {
	v.labels = append(v.labels, label)
	defer func() { v.labels = v.labels[:len(v.labels)-1] }()

	height, unreachable, err := v.seq(body)
	if err != nil {
		return err
	}
	if !unreachable && height != 0 {
		return v.errorf("block %s leaves %d values on the stack", label, height)
	}
	return nil
}

func (v *validator) hasLabel(label string) bool {
	for _, l := range v.labels {
		if l != "" && l == label {
			return true
		}
	}
	return false
}

// signature returns the parameter and result counts of a callable name.
func (m *Machine) signature(name string) (params, results int, ok bool) {
	if field, ok := m.imports[name]; ok {
		return hostArity[field], 1, true
	}
	f, ok := m.funcs[name]
	if !ok {
		return 0, 0, false
	}
	return len(f.params), f.results(), true
}

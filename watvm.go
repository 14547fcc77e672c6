package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/strager/chocowasm/sexy"
)

// Machine interprets modules produced by Generate. It understands exactly
// the subset of WAT the code generator emits.
type Machine struct {
	globals map[string]int32
	funcs   map[string]*watFunc
	imports map[string]string // $name -> imported field
	order   []*watFunc
	entry   *watFunc

	// MaxSteps bounds the number of executed instructions; 0 means no
	// limit.
	MaxSteps int
	steps    int
}

type watFunc struct {
	name   string
	export string
	params []string
	locals []string
	result bool
	body   []*sexy.Node
}

func (f *watFunc) results() int {
	if f.result {
		return 1
	}
	return 0
}

func (f *watFunc) displayName() string {
	if f.name == "" {
		return fmt.Sprintf("(export %q)", f.export)
	}
	return f.name
}

// Trap is a runtime failure of the executed program.
type Trap struct {
	Msg string
}

func (t *Trap) Error() string {
	return "trap: " + t.Msg
}

var errStepLimit = errors.New("step limit exceeded")

// LoadModule parses WAT text into a Machine. Every function body is
// validated before LoadModule returns.
func LoadModule(wat string) (*Machine, error) {
	mod, err := sexy.Parse(wat)
	if err != nil {
		return nil, fmt.Errorf("parsing module: %w", err)
	}
	if mod.Head() != "module" {
		return nil, fmt.Errorf("expected (module ...), got %s", mod)
	}

	m := &Machine{
		globals: map[string]int32{},
		funcs:   map[string]*watFunc{},
		imports: map[string]string{},
	}
	for _, field := range mod.Items[1:] {
		switch field.Head() {
		case "global":
			// (global $x (mut i32) (i32.const v))
			if len(field.Items) != 4 {
				return nil, fmt.Errorf("malformed global %s", field)
			}
			v, err := constValue(field.Items[3])
			if err != nil {
				return nil, err
			}
			m.globals[field.Items[1].Text] = v
		case "func":
			if err := m.loadFunc(field); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported module field %s", field)
		}
	}
	if m.entry == nil {
		return nil, errors.New("module has no exported function")
	}
	for _, f := range m.order {
		if err := m.validate(f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Machine) loadFunc(field *sexy.Node) error {
	f := &watFunc{}
	items := field.Items[1:]
	if len(items) > 0 && items[0].Type == sexy.NodeSymbol {
		f.name = items[0].Text
		items = items[1:]
	}

	for len(items) > 0 {
		item := items[0]
		switch item.Head() {
		case "import":
			// (import "imports" "name")
			if len(item.Items) != 3 {
				return fmt.Errorf("malformed import %s", item)
			}
			if _, ok := hostArity[item.Items[2].Text]; !ok {
				return fmt.Errorf("unknown import %s", item.Items[2].Text)
			}
			m.imports[f.name] = item.Items[2].Text
			return nil
		case "export":
			if len(item.Items) != 2 {
				return fmt.Errorf("malformed export %s", item)
			}
			if m.entry != nil {
				return errors.New("module has more than one exported function")
			}
			f.export = item.Items[1].Text
			m.entry = f
		case "param":
			if len(item.Items) == 3 {
				f.params = append(f.params, item.Items[1].Text)
			} else {
				return fmt.Errorf("unnamed parameter in function %s", f.displayName())
			}
		case "result":
			f.result = true
		case "local":
			if len(item.Items) != 3 {
				return fmt.Errorf("malformed local %s", item)
			}
			f.locals = append(f.locals, item.Items[1].Text)
		default:
			f.body = items
			items = nil
			continue
		}
		items = items[1:]
	}
	if f.name != "" {
		if _, ok := m.funcs[f.name]; ok {
			return fmt.Errorf("duplicate function %s", f.name)
		}
		m.funcs[f.name] = f
	}
	m.order = append(m.order, f)
	return nil
}

func constValue(n *sexy.Node) (int32, error) {
	if n.Head() != "i32.const" || len(n.Items) != 2 {
		return 0, fmt.Errorf("expected (i32.const N), got %s", n)
	}
	v, err := strconv.ParseInt(n.Items[1].Text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad constant %s: %w", n, err)
	}
	return int32(v), nil
}

// Run executes the exported function, writing print output to out.
func (m *Machine) Run(out io.Writer) error {
	_, err := m.invoke(m.entry, nil, out)
	return err
}

// Global returns the current value of a global such as "$x".
func (m *Machine) Global(name string) (int32, bool) {
	v, ok := m.globals[name]
	return v, ok
}

type frame struct {
	locals map[string]int32
	stack  []int32
	out    io.Writer
}

func (fr *frame) push(v int32) {
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() (int32, error) {
	if len(fr.stack) == 0 {
		return 0, &Trap{Msg: "stack underflow"}
	}
	v := fr.stack[len(fr.stack)-1]
	fr.stack = fr.stack[:len(fr.stack)-1]
	return v, nil
}

// control is how a sequence of instructions ended: by falling off its end,
// by branching to a label, or by returning.
type control struct {
	branch   string
	returned bool
}

func (m *Machine) invoke(f *watFunc, args []int32, out io.Writer) (int32, error) {
	fr := &frame{locals: map[string]int32{}, out: out}
	for i, param := range f.params {
		fr.locals[param] = args[i]
	}
	for _, local := range f.locals {
		fr.locals[local] = 0
	}

	ctl, err := m.exec(fr, f.body)
	if err != nil {
		return 0, err
	}
	want := f.results()
	if !ctl.returned && len(fr.stack) != want {
		return 0, &Trap{Msg: fmt.Sprintf("function %s ended with %d values on the stack, want %d",
			f.displayName(), len(fr.stack), want)}
	}
	if want == 0 {
		return 0, nil
	}
	return fr.pop()
}

func (m *Machine) exec(fr *frame, body []*sexy.Node) (control, error) {
	for _, instr := range body {
		ctl, err := m.step(fr, instr)
		if err != nil || ctl.branch != "" || ctl.returned {
			return ctl, err
		}
	}
	return control{}, nil
}

func (m *Machine) step(fr *frame, instr *sexy.Node) (control, error) {
	m.steps++
	if m.MaxSteps > 0 && m.steps > m.MaxSteps {
		return control{}, errStepLimit
	}

	op := instr.Head()
	arg := func() string {
		if len(instr.Items) < 2 {
			return ""
		}
		return instr.Items[1].Text
	}

	switch op {
	case "i32.const":
		v, err := constValue(instr)
		if err != nil {
			return control{}, err
		}
		fr.push(v)

	case "local.get":
		fr.push(fr.locals[arg()])
	case "local.set":
		v, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		fr.locals[arg()] = v
	case "global.get":
		fr.push(m.globals[arg()])
	case "global.set":
		v, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		m.globals[arg()] = v

	case "call":
		if err := m.call(fr, arg()); err != nil {
			return control{}, err
		}

	case "return":
		return control{returned: true}, nil

	case "br":
		return control{branch: arg()}, nil
	case "br_if":
		c, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		if c != 0 {
			return control{branch: arg()}, nil
		}

	case "block":
		height := len(fr.stack)
		ctl, err := m.exec(fr, instr.Items[2:])
		if ctl.branch == arg() {
			ctl.branch = ""
			fr.stack = fr.stack[:height]
		}
		return ctl, err

	case "loop":
		height := len(fr.stack)
		for {
			ctl, err := m.exec(fr, instr.Items[2:])
			if err != nil || ctl.branch != arg() {
				return ctl, err
			}
			fr.stack = fr.stack[:height]
		}

	case "if":
		c, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		for _, arm := range instr.Items[1:] {
			if (arm.Head() == "then") == (c != 0) {
				return m.exec(fr, arm.Items[1:])
			}
		}

	default:
		rhs, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		lhs, err := fr.pop()
		if err != nil {
			return control{}, err
		}
		v, err := binary(op, lhs, rhs)
		if err != nil {
			return control{}, err
		}
		fr.push(v)
	}
	return control{}, nil
}

func (m *Machine) call(fr *frame, name string) error {
	params, results, _ := m.signature(name)
	args := make([]int32, params)
	for i := params - 1; i >= 0; i-- {
		v, err := fr.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}

	var v int32
	var err error
	if field, ok := m.imports[name]; ok {
		v, err = callHost(fr.out, field, args)
	} else {
		v, err = m.invoke(m.funcs[name], args, fr.out)
	}
	if err != nil {
		return err
	}
	if results == 1 {
		fr.push(v)
	}
	return nil
}

func binary(op string, lhs, rhs int32) (int32, error) {
	b := func(cond bool) int32 {
		if cond {
			return 1
		}
		return 0
	}
	switch op {
	case "i32.add":
		return lhs + rhs, nil
	case "i32.sub":
		return lhs - rhs, nil
	case "i32.mul":
		return lhs * rhs, nil
	case "i32.div_s":
		if rhs == 0 {
			return 0, &Trap{Msg: "integer divide by zero"}
		}
		if lhs == math.MinInt32 && rhs == -1 {
			return 0, &Trap{Msg: "integer overflow"}
		}
		return lhs / rhs, nil
	case "i32.rem_s":
		if rhs == 0 {
			return 0, &Trap{Msg: "integer divide by zero"}
		}
		if rhs == -1 {
			return 0, nil
		}
		return lhs % rhs, nil
	case "i32.xor":
		return lhs ^ rhs, nil
	case "i32.eq":
		return b(lhs == rhs), nil
	case "i32.ne":
		return b(lhs != rhs), nil
	case "i32.gt_s":
		return b(lhs > rhs), nil
	case "i32.lt_s":
		return b(lhs < rhs), nil
	case "i32.ge_s":
		return b(lhs >= rhs), nil
	case "i32.le_s":
		return b(lhs <= rhs), nil
	default:
		return 0, fmt.Errorf("unsupported instruction (%s)", op)
	}
}

// callHost implements the imported builtins. print writes one line per
// call, rendered according to its mode argument.
func callHost(out io.Writer, name string, args []int32) (int32, error) {
	switch name {
	case "print":
		var text string
		switch args[1] {
		case printModeNone:
			text = "None"
		case printModeBool:
			text = "True"
			if args[0] == 0 {
				text = "False"
			}
		default:
			text = strconv.Itoa(int(args[0]))
		}
		if _, err := fmt.Fprintln(out, text); err != nil {
			return 0, err
		}
		return 0, nil
	case "abs":
		if args[0] < 0 {
			return -args[0], nil
		}
		return args[0], nil
	case "min":
		return min(args[0], args[1]), nil
	case "max":
		return max(args[0], args[1]), nil
	case "pow":
		return intPow(args[0], args[1]), nil
	default:
		return 0, fmt.Errorf("unknown import %s", name)
	}
}

// intPow computes base**exp with 32-bit wraparound. Negative exponents
// truncate toward zero.
func intPow(base, exp int32) int32 {
	if exp < 0 {
		switch base {
		case 1:
			return 1
		case -1:
			if exp%2 == 0 {
				return 1
			}
			return -1
		}
		return 0
	}
	result := int32(1)
	for ; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
	}
	return result
}

// Package vm implements the stack-based machine that executes pcode.
// Execution mutates an explicit value stack and a small set of
// registers (program counter, base pointer); every opcode handler is one
// case of a single switch in step (OPR sub-opcodes get a second switch in
// opr), the same shape the teacher's CPU.Step uses for its register
// machine.
package vm

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"

	"pl0/pkg/diag"
	"pl0/pkg/pcode"
)

// Header cells reserved at the base of every activation record: the
// static link, the dynamic link, and the return address (§4.3/§4.5).
const headerSize = 3

// VM is a stack machine over a fixed instruction sequence.
type VM struct {
	code []pcode.Instruction

	stack []int64
	b     int // base pointer: start of the current activation record
	p     int // program counter: index of the next instruction to execute

	in  *bufio.Reader
	out io.Writer

	trace    io.Writer // nil disables instruction tracing
	maxSteps int       // 0 means unbounded
	steps    int

	lastValue int64 // most recent arithmetic or write operand (§4.5)
}

// Result is what Run reports back: whether execution completed without
// a fault, and the most recent arithmetic-or-write value produced,
// which a host UI can show as a status line even when nothing was
// explicitly written.
type Result struct {
	Success   bool
	LastValue int64
}

// Option configures a VM at construction time.
type Option interface{ apply(*VM) }

type inputOption struct{ r io.Reader }
type outputOption struct{ w io.Writer }
type traceOption struct{ w io.Writer }
type maxStepsOption int

func (o inputOption) apply(vm *VM)    { vm.in = bufio.NewReader(o.r) }
func (o outputOption) apply(vm *VM)   { vm.out = o.w }
func (o traceOption) apply(vm *VM)    { vm.trace = o.w }
func (o maxStepsOption) apply(vm *VM) { vm.maxSteps = int(o) }

// WithInput sets the stream OPR READ consumes integers from. Default: empty.
func WithInput(r io.Reader) Option { return inputOption{r} }

// WithOutput sets the stream OPR WRITE/WRITELN writes to. Default: discard.
func WithOutput(w io.Writer) Option { return outputOption{w} }

// WithTrace causes every executed instruction to be logged to w before
// it runs, one line per step, for --trace-vm.
func WithTrace(w io.Writer) Option { return traceOption{w} }

// WithMaxSteps bounds execution: tripping the limit reports a
// runtime-error diagnostic and stops the run, guarding against a
// runaway program (e.g. a loop whose condition never turns false)
// without claiming the stack itself can overflow (it grows on demand).
func WithMaxSteps(n int) Option { return maxStepsOption(n) }

var defaultOptions = []Option{
	inputOption{r: new(nopReader)},
	outputOption{w: ioutil.Discard},
}

type nopReader struct{}

func (*nopReader) Read([]byte) (int, error) { return 0, io.EOF }

// New builds a VM ready to run code.
func New(code []pcode.Instruction, opts ...Option) *VM {
	vm := &VM{code: code}
	for _, opt := range defaultOptions {
		opt.apply(vm)
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
	return vm
}

// base climbs level static links from the current base pointer b,
// landing on the activation record of the enclosing scope level levels
// up the static chain.
func (vm *VM) base(level, b int) int {
	for ; level > 0; level-- {
		b = int(vm.stack[b])
	}
	return b
}

func (vm *VM) push(v int64) { vm.stack = append(vm.stack, v) }

// pop removes and returns the top of the stack. ok is false, with a
// CodeStackUnderflow diagnostic already reported, when the stack is
// empty — mirroring original_source/src/VM.cpp's pop(), which throws
// on stack_top_ == 0, caught into a RuntimeError diagnostic.
func (vm *VM) pop(sink *diag.Sink) (int64, bool) {
	if len(vm.stack) == 0 {
		sink.Errorf(diag.CodeStackUnderflow, diag.SourceRange{}, "stack underflow")
		return 0, false
	}
	top := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return top, true
}

// top returns the current top of the stack without removing it. ok is
// false, with a CodeStackUnderflow diagnostic already reported, when
// the stack is empty.
func (vm *VM) top(sink *diag.Sink) (int64, bool) {
	if len(vm.stack) == 0 {
		sink.Errorf(diag.CodeStackUnderflow, diag.SourceRange{}, "stack underflow")
		return 0, false
	}
	return vm.stack[len(vm.stack)-1], true
}

func (vm *VM) ensure(addr int) {
	for addr >= len(vm.stack) {
		vm.stack = append(vm.stack, 0)
	}
}

// Run executes code from the first instruction until a RET at the
// outermost activation (b == p's originating frame at level 0) or a
// runtime fault, reporting any fault to sink.
func (vm *VM) Run(sink *diag.Sink) Result {
	// The outermost call frame: three header cells, all zero, so that
	// the main block's closing RET pops back to p == 0 and halts.
	vm.stack = []int64{0, 0, 0}
	vm.b = 0
	vm.p = 0

	for {
		if vm.maxSteps > 0 && vm.steps >= vm.maxSteps {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "exceeded maximum step count (%d)", vm.maxSteps)
			return Result{LastValue: vm.lastValue}
		}
		vm.steps++

		if vm.p < 0 || vm.p >= len(vm.code) {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "program counter %d out of range", vm.p)
			return Result{LastValue: vm.lastValue}
		}
		instr := vm.code[vm.p]
		if vm.trace != nil {
			fmt.Fprintf(vm.trace, "%d: %s\n", vm.p, instr)
		}
		vm.p++

		halted, ok := vm.step(instr, sink)
		if !ok {
			return Result{LastValue: vm.lastValue}
		}
		if halted {
			return Result{Success: true, LastValue: vm.lastValue}
		}
	}
}

// step executes one instruction. It returns (halted, ok): ok is false on
// a reported fault, halted is true when the outermost procedure's RET
// has just returned control past the program's entry point.
func (vm *VM) step(instr pcode.Instruction, sink *diag.Sink) (bool, bool) {
	switch instr.Op {
	case pcode.LIT:
		vm.push(int64(instr.Argument))

	case pcode.LOD:
		addr := vm.base(instr.Level, vm.b) + instr.Argument
		if addr < 0 || addr >= len(vm.stack) {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "load from out-of-range address %d", addr)
			return false, false
		}
		vm.push(vm.stack[addr])

	case pcode.STO:
		addr := vm.base(instr.Level, vm.b) + instr.Argument
		if addr < 0 {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "store to out-of-range address %d", addr)
			return false, false
		}
		val, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.ensure(addr)
		vm.stack[addr] = val

	case pcode.CAL:
		// Activation record header: static link (base of the lexical
		// parent at instr.Level), dynamic link (caller's base), return
		// address (vm.p, already advanced past this CAL).
		staticLink := int64(vm.base(instr.Level, vm.b))
		newB := len(vm.stack)
		vm.push(staticLink)
		vm.push(int64(vm.b))
		vm.push(int64(vm.p))
		vm.b = newB
		vm.p = instr.Argument

	case pcode.INT:
		vm.ensure(vm.b + instr.Argument - 1)

	case pcode.JMP:
		vm.p = instr.Argument

	case pcode.JPC:
		cond, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		if cond == 0 {
			vm.p = instr.Argument
		}

	case pcode.LDA:
		addr := vm.base(instr.Level, vm.b) + instr.Argument
		vm.push(int64(addr))

	case pcode.IDX:
		index, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		base, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.push(base + index)

	case pcode.LDI:
		addr, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		if addr < 0 || int(addr) >= len(vm.stack) {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "load-indirect from out-of-range address %d", addr)
			return false, false
		}
		vm.push(vm.stack[addr])

	case pcode.STI:
		val, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		addr, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		if addr < 0 {
			sink.Errorf(diag.CodeRuntimeError, diag.SourceRange{}, "store-indirect to out-of-range address %d", addr)
			return false, false
		}
		vm.ensure(int(addr))
		vm.stack[addr] = val

	case pcode.CHK:
		index, ok := vm.top(sink)
		if !ok {
			return false, false
		}
		if index < 0 || index >= int64(instr.Argument) {
			sink.Errorf(diag.CodeInvalidArraySubscript, diag.SourceRange{}, "array index %d out of bounds [0,%d)", index, instr.Argument)
			return false, false
		}

	case pcode.DUP:
		v, ok := vm.top(sink)
		if !ok {
			return false, false
		}
		vm.push(v)

	case pcode.NOP:
		// no effect

	case pcode.OPR:
		return vm.opr(pcode.Opr(instr.Argument), sink)

	default:
		sink.Errorf(diag.CodeInternalError, diag.SourceRange{}, "unknown opcode %s", instr.Op)
		return false, false
	}
	return false, true
}

func (vm *VM) opr(sub pcode.Opr, sink *diag.Sink) (bool, bool) {
	switch sub {
	case pcode.RET:
		retAddr := int(vm.stack[vm.b+2])
		dynamicLink := int(vm.stack[vm.b+1])
		vm.stack = vm.stack[:vm.b]
		vm.b = dynamicLink
		vm.p = retAddr
		// The outermost block's own activation has dynamic link 0 and
		// return address 0: returning from it halts the machine.
		if vm.b == 0 && vm.p == 0 {
			return true, true
		}

	case pcode.NEG:
		v, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.push(-v)

	case pcode.ADD:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.lastValue = a + b
		vm.push(vm.lastValue)

	case pcode.SUB:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.lastValue = a - b
		vm.push(vm.lastValue)

	case pcode.MUL:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.lastValue = a * b
		vm.push(vm.lastValue)

	case pcode.DIV:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		if b == 0 {
			sink.Errorf(diag.CodeDivisionByZero, diag.SourceRange{}, "division by zero")
			return false, false
		}
		vm.lastValue = a / b
		vm.push(vm.lastValue)

	case pcode.MOD:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		if b == 0 {
			sink.Errorf(diag.CodeDivisionByZero, diag.SourceRange{}, "modulo by zero")
			return false, false
		}
		vm.lastValue = a % b
		vm.push(vm.lastValue)

	case pcode.ODD:
		v, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(v%2 != 0))

	case pcode.EQ:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a == b))

	case pcode.NE:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a != b))

	case pcode.LT:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a < b))

	case pcode.GE:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a >= b))

	case pcode.GT:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a > b))

	case pcode.LE:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a <= b))

	case pcode.WRITE:
		v, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.lastValue = v
		fmt.Fprintf(vm.out, "%d", vm.lastValue)

	case pcode.WRITELN:
		fmt.Fprintln(vm.out)

	case pcode.READ:
		var v int64
		if _, err := fmt.Fscan(vm.in, &v); err != nil {
			sink.Errorf(diag.CodeIOError, diag.SourceRange{}, "read: %v", err)
			return false, false
		}
		vm.push(v)

	case pcode.AND:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a != 0 && b != 0))

	case pcode.OR:
		b, a, ok := vm.pop2(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(a != 0 || b != 0))

	case pcode.NOT:
		v, ok := vm.pop(sink)
		if !ok {
			return false, false
		}
		vm.push(boolInt(v == 0))

	default:
		sink.Errorf(diag.CodeInternalError, diag.SourceRange{}, "unknown opr sub-opcode %s", sub)
		return false, false
	}
	return false, true
}

// pop2 pops the two operands of a binary operator, returning (rhs, lhs).
// ok is false if either pop underflows; the underflow diagnostic is
// reported by the failing pop itself.
func (vm *VM) pop2(sink *diag.Sink) (rhs, lhs int64, ok bool) {
	rhs, ok = vm.pop(sink)
	if !ok {
		return 0, 0, false
	}
	lhs, ok = vm.pop(sink)
	if !ok {
		return 0, 0, false
	}
	return rhs, lhs, true
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

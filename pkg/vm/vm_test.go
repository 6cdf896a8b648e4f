package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pl0/pkg/diag"
	"pl0/pkg/pcode"
)

func i(op pcode.Op, level, arg int) pcode.Instruction {
	return pcode.Instruction{Op: op, Level: level, Argument: arg}
}

func opr(sub pcode.Opr) pcode.Instruction {
	return pcode.Instruction{Op: pcode.OPR, Level: 0, Argument: int(sub)}
}

// program wraps code with the standard outer-block shape: JMP to body,
// INT reserve, body, RET.
func runProgram(t *testing.T, body []pcode.Instruction, localSlots int, opts ...Option) (string, *diag.Sink) {
	t.Helper()
	code := []pcode.Instruction{i(pcode.JMP, 0, 1), i(pcode.INT, 0, 3+localSlots)}
	code = append(code, body...)
	code = append(code, opr(pcode.RET))

	var out bytes.Buffer
	allOpts := append([]Option{WithOutput(&out)}, opts...)
	machine := New(code, allOpts...)
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success, "vm run failed: %v", sink.Diagnostics())
	return out.String(), &sink
}

func TestArithmeticAndWrite(t *testing.T) {
	body := []pcode.Instruction{
		i(pcode.LIT, 0, 2),
		i(pcode.LIT, 0, 3),
		opr(pcode.ADD),
		opr(pcode.WRITE),
	}
	out, _ := runProgram(t, body, 0)
	assert.Equal(t, "5", out)
}

func TestStoreAndLoadLocal(t *testing.T) {
	body := []pcode.Instruction{
		i(pcode.LIT, 0, 42),
		i(pcode.STO, 0, 3), // first local slot
		i(pcode.LOD, 0, 3),
		opr(pcode.WRITE),
	}
	out, _ := runProgram(t, body, 1)
	assert.Equal(t, "42", out)
}

func TestDivisionByZeroReportsDiagnostic(t *testing.T) {
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		i(pcode.LIT, 0, 0),
		opr(pcode.DIV),
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	res := machine.Run(&sink)
	assert.False(t, res.Success)
	require.True(t, sink.HasErrors())
	assert.Equal(t, diag.CodeDivisionByZero, sink.Diagnostics()[0].Code)
}

func TestModuloByZeroReportsDiagnostic(t *testing.T) {
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		i(pcode.LIT, 0, 0),
		opr(pcode.MOD),
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	res := machine.Run(&sink)
	assert.False(t, res.Success)
	assert.Equal(t, diag.CodeDivisionByZero, sink.Diagnostics()[0].Code)
}

func TestArrayBoundsCheckFailureReportsDiagnostic(t *testing.T) {
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 1),
		i(pcode.INT, 0, 8), // 5-element array at offset 3..7
		i(pcode.LDA, 0, 3),
		i(pcode.LIT, 0, 10), // out of bounds index
		i(pcode.CHK, 0, 5),
		i(pcode.IDX, 0, 0),
		i(pcode.LDI, 0, 0),
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	res := machine.Run(&sink)
	assert.False(t, res.Success)
	assert.Equal(t, diag.CodeInvalidArraySubscript, sink.Diagnostics()[0].Code)
}

func TestArrayStoreAndLoadInBounds(t *testing.T) {
	body := []pcode.Instruction{
		i(pcode.LDA, 0, 3), // address of a[0]
		i(pcode.LIT, 0, 2), // index
		i(pcode.IDX, 0, 0),
		i(pcode.LIT, 0, 99),
		i(pcode.STI, 0, 0),

		i(pcode.LDA, 0, 3),
		i(pcode.LIT, 0, 2),
		i(pcode.IDX, 0, 0),
		i(pcode.LDI, 0, 0),
		opr(pcode.WRITE),
	}
	out, _ := runProgram(t, body, 5)
	assert.Equal(t, "99", out)
}

func TestIfThenElseTakesCorrectBranch(t *testing.T) {
	// if 1 > 0 then write(1) else write(2)
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		i(pcode.LIT, 0, 0),
		opr(pcode.GT),
		i(pcode.JPC, 0, 9),
		i(pcode.LIT, 0, 1),
		opr(pcode.WRITE),
		i(pcode.JMP, 0, 11),
		i(pcode.LIT, 0, 2),
		opr(pcode.WRITE),
		opr(pcode.RET),
	}
	var out bytes.Buffer
	machine := New(code, WithOutput(&out))
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success)
	assert.Equal(t, "1", out.String())
}

func TestNestedProcedureCallAndStaticLink(t *testing.T) {
	// Outer declares x at level 0 offset 3. Inner procedure (level 1)
	// reads x via a static-link climb of 1 and writes it.
	//
	//   0: jmp 0 6        outer entry jump, past inner's body
	//   1: jmp 0 2        inner's own leading jmp
	//   2: int 0 3        inner reserve (header only)
	//   3: lod 1 3        load x from one level up
	//   4: opr 0 write
	//   5: opr 0 ret       inner return
	//   6: int 0 4         reserve outer frame (header + x)
	//   7: lit 0 7         outer body: x := 7
	//   8: sto 0 3
	//   9: cal 0 1         call inner (entry = index of its own jmp, 1)
	//  10: opr 0 ret       outer return
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 6),
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LOD, 1, 3),
		opr(pcode.WRITE),
		opr(pcode.RET),
		i(pcode.INT, 0, 4),
		i(pcode.LIT, 0, 7),
		i(pcode.STO, 0, 3),
		i(pcode.CAL, 0, 1),
		opr(pcode.RET),
	}
	var out bytes.Buffer
	machine := New(code, WithOutput(&out))
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success, "vm run failed: %v", sink.Diagnostics())
	assert.Equal(t, "7", out.String())
}

func TestReadConsumesFromInput(t *testing.T) {
	body := []pcode.Instruction{
		opr(pcode.READ),
		i(pcode.STO, 0, 3),
		i(pcode.LOD, 0, 3),
		opr(pcode.WRITE),
	}
	var out bytes.Buffer
	code := []pcode.Instruction{i(pcode.JMP, 0, 2), i(pcode.INT, 0, 4)}
	code = append(code, body...)
	code = append(code, opr(pcode.RET))
	machine := New(code, WithInput(strings.NewReader("123")), WithOutput(&out))
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success)
	assert.Equal(t, "123", out.String())
}

func TestMaxStepsTripsRuntimeError(t *testing.T) {
	// An infinite loop: jmp back to itself forever.
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.JMP, 0, 2),
	}
	machine := New(code, WithMaxSteps(50))
	var sink diag.Sink
	res := machine.Run(&sink)
	assert.False(t, res.Success)
	require.True(t, sink.HasErrors())
	assert.Equal(t, diag.CodeRuntimeError, sink.Diagnostics()[0].Code)
}

func TestLastValueTracksMostRecentArithmeticOrWrite(t *testing.T) {
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		i(pcode.LIT, 0, 2),
		opr(pcode.ADD),
		opr(pcode.WRITE),
		opr(pcode.RET),
	}
	var out bytes.Buffer
	machine := New(code, WithOutput(&out))
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success)
	assert.Equal(t, int64(3), res.LastValue)
}

func TestPopUnderflowReportsDiagnosticInsteadOfPanicking(t *testing.T) {
	// Each JPC pops one value with no matching push. Three drain the
	// outer frame's three header cells (all zero, so every branch is
	// taken and execution just falls through to the next index); the
	// fourth pops an empty stack.
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.JPC, 0, 3),
		i(pcode.JPC, 0, 4),
		i(pcode.JPC, 0, 5),
		i(pcode.JPC, 0, 6), // stack is empty here; this pop underflows
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	require.NotPanics(t, func() {
		res := machine.Run(&sink)
		assert.False(t, res.Success)
	})
	require.True(t, sink.HasErrors())
	assert.Equal(t, diag.CodeStackUnderflow, sink.Diagnostics()[0].Code)
}

func TestTopUnderflowOnEmptyStackReportsDiagnostic(t *testing.T) {
	// Same drain as above, but the operation that hits the empty
	// stack is CHK, which reads via top() rather than pop().
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.JPC, 0, 3),
		i(pcode.JPC, 0, 4),
		i(pcode.JPC, 0, 5),
		i(pcode.CHK, 0, 5), // stack is empty here; top() underflows
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	res := machine.Run(&sink)
	assert.False(t, res.Success)
	require.True(t, sink.HasErrors())
	assert.Equal(t, diag.CodeStackUnderflow, sink.Diagnostics()[0].Code)
}

func TestStoreToNegativeAddressReportsDiagnosticInsteadOfPanicking(t *testing.T) {
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 2),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		i(pcode.STO, 1, -5), // climbing a level from b=0 indexes stack[0], still an in-range static link, but the resulting address is negative
		opr(pcode.RET),
	}
	machine := New(code)
	var sink diag.Sink
	require.NotPanics(t, func() {
		res := machine.Run(&sink)
		assert.False(t, res.Success)
	})
	require.True(t, sink.HasErrors())
	assert.Equal(t, diag.CodeRuntimeError, sink.Diagnostics()[0].Code)
}

func TestTraceWritesOneLinePerStep(t *testing.T) {
	var trace bytes.Buffer
	code := []pcode.Instruction{
		i(pcode.JMP, 0, 1),
		i(pcode.INT, 0, 3),
		i(pcode.LIT, 0, 1),
		opr(pcode.WRITE),
		opr(pcode.RET),
	}
	machine := New(code, WithTrace(&trace))
	var sink diag.Sink
	res := machine.Run(&sink)
	require.True(t, res.Success)
	lines := strings.Split(strings.TrimRight(trace.String(), "\n"), "\n")
	assert.Len(t, lines, len(code))
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pl0/pkg/ast"
	"pl0/pkg/diag"
	"pl0/pkg/scanner"
)

func parse(t *testing.T, src string) (*ast.Program, *diag.Sink) {
	t.Helper()
	var sink diag.Sink
	sc := scanner.New(src, &sink)
	prog := Parse(sc, &sink)
	return prog, &sink
}

func TestParseSimpleAssignmentAndWrite(t *testing.T) {
	prog, sink := parse(t, "var x; begin x := 1; write(x); end.")
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Len(t, prog.Root.Vars, 1)
	assert.Equal(t, "x", prog.Root.Vars[0].Name)

	body, ok := prog.Root.Stmt.(*ast.CompoundStmt)
	require.True(t, ok)
	// the ';' before 'end' is followed by an empty statement.
	require.Len(t, body.Stmts, 3)

	assign, ok := body.Stmts[0].(*ast.AssignStmt)
	require.True(t, ok)
	assert.Equal(t, ast.AssignPlain, assign.Op)
}

func TestParseIncrementDesugarsToAddAssignOne(t *testing.T) {
	prog, sink := parse(t, "var x; begin x++; end.")
	require.False(t, sink.HasErrors())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	assign := body.Stmts[0].(*ast.AssignStmt)
	assert.Equal(t, ast.AssignAdd, assign.Op)
	lit, ok := assign.Value.(*ast.NumberLit)
	require.True(t, ok)
	assert.Equal(t, int64(1), lit.Value)
}

func TestParseCompoundAssignmentOperators(t *testing.T) {
	prog, sink := parse(t, "var x; begin x += 2; x *= 3; end.")
	require.False(t, sink.HasErrors())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	assert.Equal(t, ast.AssignAdd, body.Stmts[0].(*ast.AssignStmt).Op)
	assert.Equal(t, ast.AssignMul, body.Stmts[1].(*ast.AssignStmt).Op)
}

func TestOperatorPrecedenceUnaryBindsTighterThanMultiplicative(t *testing.T) {
	prog, sink := parse(t, "var x, y; begin x := -x*y; end.")
	require.False(t, sink.HasErrors())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	assign := body.Stmts[0].(*ast.AssignStmt)
	bin, ok := assign.Value.(*ast.BinaryExpr)
	require.True(t, ok, "top-level expression must be the '*' binary")
	_, ok = bin.Left.(*ast.UnaryExpr)
	assert.True(t, ok, "left operand of '*' must be the unary minus, i.e. (-x)*y")
}

func TestParseIfElse(t *testing.T) {
	prog, sink := parse(t, "var x; begin if x = 1 then write(10) else write(20); end.")
	require.False(t, sink.HasErrors())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	ifStmt, ok := body.Stmts[0].(*ast.IfStmt)
	require.True(t, ok)
	assert.NotNil(t, ifStmt.Else)
}

func TestParseNestedProcedure(t *testing.T) {
	src := `
var x;
procedure outer;
  var y;
  procedure inner;
  begin y := x + 1; end;
  begin y := 0; call inner; write(y); end;
begin x := 41; call outer; end.`
	prog, sink := parse(t, src)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Len(t, prog.Root.Procs, 1)
	outer := prog.Root.Procs[0]
	assert.Equal(t, "outer", outer.Name)
	require.Len(t, outer.Body.Procs, 1)
	assert.Equal(t, "inner", outer.Body.Procs[0].Name)
}

func TestMissingSemicolonRecoversAndReportsOneDiagnostic(t *testing.T) {
	_, sink := parse(t, "var x; begin x := 1 x := 2; end.")
	require.True(t, sink.HasErrors())
	// panic-mode recovery should stop this from cascading into a report
	// for every subsequent token.
	assert.Len(t, sink.Diagnostics(), 1)
}

func TestMissingIfConditionUsesPlaceholder(t *testing.T) {
	prog, sink := parse(t, "begin if then write(1); end.")
	require.True(t, sink.HasErrors())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	ifStmt := body.Stmts[0].(*ast.IfStmt)
	lit, ok := ifStmt.Cond.(*ast.NumberLit)
	require.True(t, ok, "missing condition should fall back to a placeholder literal")
	assert.Equal(t, int64(0), lit.Value)
}

func TestParseRepeatUntil(t *testing.T) {
	prog, sink := parse(t, "var x; begin x := 0; repeat x := x + 1; until x = 5; end.")
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	body := prog.Root.Stmt.(*ast.CompoundStmt)
	_, ok := body.Stmts[1].(*ast.RepeatStmt)
	assert.True(t, ok)
}

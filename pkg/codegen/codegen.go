// Package codegen walks a Program AST and emits a pcode.Instruction
// sequence realizing its semantics, driving a symtab.Table as it goes.
// Emission never panics: invalid programs produce diagnostics plus a
// best-effort (possibly incomplete) instruction sequence, so several
// semantic errors can surface from one pass.
package codegen

import (
	"pl0/pkg/ast"
	"pl0/pkg/diag"
	"pl0/pkg/pcode"
	"pl0/pkg/symtab"
	"pl0/pkg/token"
)

// Options configures a single Generate call.
type Options struct {
	// BoundsCheck enables CHK emission before every array index use,
	// corresponding to the CLI's --bounds-check flag.
	BoundsCheck bool
}

// Result is everything Generate produces.
type Result struct {
	Instructions []pcode.Instruction
	// Symbols is the exported symbol snapshot: every symbol installed
	// over the table's lifetime, independent of later scope truncation
	// (§3's "symbols persist beyond their scope only when exported as a
	// reporting snapshot"), consumed by --dump-sym.
	Symbols symtab.Snapshot
}

type generator struct {
	syms     *symtab.Table
	sink     *diag.Sink
	opts     Options
	out      []pcode.Instruction
	exported symtab.Snapshot
}

// Generate emits code for prog. It never returns an error; failures are
// reported through sink.
func Generate(prog *ast.Program, sink *diag.Sink, opts Options) Result {
	g := &generator{syms: symtab.New(), sink: sink, opts: opts}
	if prog.Root != nil {
		g.emitBlock(prog.Root)
	}
	return Result{Instructions: g.out, Symbols: g.exported}
}

func (g *generator) emit(op pcode.Op, level, arg int) int {
	g.out = append(g.out, pcode.Instruction{Op: op, Level: level, Argument: arg})
	return len(g.out) - 1
}

func (g *generator) patch(index, target int) {
	g.out[index].Argument = target
}

func (g *generator) here() int { return len(g.out) }

func (g *generator) addSymbol(sym symtab.Symbol) (symtab.Symbol, bool) {
	installed, ok := g.syms.AddSymbol(sym)
	if !ok {
		g.sink.Errorf(diag.CodeRedeclaration, diag.SourceRange{}, "redeclaration of %q", sym.Name)
		return installed, false
	}
	g.exported = append(g.exported, installed)
	return installed, true
}

// emitBlock implements the per-block layout of §4.4:
//  1. enter a new scope (data_offset = 3)
//  2. emit a placeholder JMP, to be backpatched past nested procedure bodies
//  3. install const/var symbols, collect procedure declarations
//  4. recursively emit each procedure's body in declaration order
//  5. backpatch the initial JMP to the current position
//  6. emit INT to reserve locals, emit the statement, emit OPR RET
func (g *generator) emitBlock(b *ast.Block) {
	g.syms.EnterScope()
	defer g.syms.LeaveScope()

	entryJMP := g.emit(pcode.JMP, 0, 0)

	for _, c := range b.Consts {
		g.addSymbol(symtab.Symbol{
			Name: c.Name, Kind: symtab.KindConstant, Type: symtab.TypeInteger, Const: c.Value,
		})
	}
	for _, v := range b.Vars {
		if v.Size <= 0 {
			g.sink.Errorf(diag.CodeInvalidArraySubscript, v.SrcRange, "array %q must have a positive size", v.Name)
			continue
		}
		addr := g.syms.AllocateData(v.Size)
		kind := symtab.KindVariable
		if v.Size > 1 {
			kind = symtab.KindArray
		}
		g.addSymbol(symtab.Symbol{Name: v.Name, Kind: kind, Type: symtab.TypeInteger, Address: addr, Size: v.Size})
	}

	for _, pd := range b.Procs {
		// A procedure's recorded address is the instruction index of its
		// own block's leading JMP, set before the block is emitted, per
		// original_source's CodeGenerator::emit_procedure.
		procAddr := g.here()
		g.addSymbol(symtab.Symbol{Name: pd.Name, Kind: symtab.KindProcedure, Address: procAddr})
		g.emitBlock(pd.Body)
	}

	g.patch(entryJMP, g.here())
	reserve := g.emit(pcode.INT, 0, g.syms.CurrentScope().DataOffset)
	_ = reserve
	g.genStmt(b.Stmt)
	g.emit(pcode.OPR, 0, int(pcode.RET))
}

//  expressions

func binaryOpr(k token.Kind) (pcode.Opr, bool) {
	if k.IsInequality() {
		return pcode.NE, true
	}
	switch k {
	case token.PLUS:
		return pcode.ADD, true
	case token.MINUS:
		return pcode.SUB, true
	case token.STAR:
		return pcode.MUL, true
	case token.SLASH:
		return pcode.DIV, true
	case token.PERCENT:
		return pcode.MOD, true
	case token.EQUALS:
		return pcode.EQ, true
	case token.LESS:
		return pcode.LT, true
	case token.LESS_EQ:
		return pcode.LE, true
	case token.GREATER:
		return pcode.GT, true
	case token.GREATER_EQ:
		return pcode.GE, true
	case token.AND:
		return pcode.AND, true
	case token.OR:
		return pcode.OR, true
	default:
		return 0, false
	}
}

// genExpr evaluates e, leaving its value on top of the stack.
func (g *generator) genExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.NumberLit:
		g.emit(pcode.LIT, 0, int(n.Value))

	case *ast.BoolLit:
		v := 0
		if n.Value {
			v = 1
		}
		g.emit(pcode.LIT, 0, v)

	case *ast.Ident:
		sym, ok := g.syms.Lookup(n.Name)
		if !ok {
			g.sink.Errorf(diag.CodeUndeclaredIdentifier, n.SrcRange, "undeclared identifier %q", n.Name)
			g.emit(pcode.LIT, 0, 0)
			return
		}
		switch sym.Kind {
		case symtab.KindConstant:
			g.emit(pcode.LIT, 0, int(sym.Const))
		case symtab.KindVariable, symtab.KindParameter:
			g.emit(pcode.LOD, g.syms.CurrentScope().Level-sym.Level, sym.Address)
		case symtab.KindArray:
			g.sink.Errorf(diag.CodeInvalidArraySubscript, n.SrcRange, "array %q used without subscript", n.Name)
			g.emit(pcode.LIT, 0, 0)
		case symtab.KindProcedure:
			g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "procedure %q used as a value", n.Name)
			g.emit(pcode.LIT, 0, 0)
		}

	case *ast.IndexExpr:
		g.genArrayAddress(n.Name, n.Index, n.SrcRange)
		g.emit(pcode.LDI, 0, 0)

	case *ast.BinaryExpr:
		g.genExpr(n.Left)
		g.genExpr(n.Right)
		opr, ok := binaryOpr(n.Op)
		if !ok {
			g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "unsupported binary operator %s", n.Op)
			return
		}
		g.emit(pcode.OPR, 0, int(opr))

	case *ast.UnaryExpr:
		g.genExpr(n.Operand)
		switch n.Op {
		case token.PLUS:
			// identity: nothing emitted
		case token.MINUS:
			g.emit(pcode.OPR, 0, int(pcode.NEG))
		case token.NOT:
			g.emit(pcode.OPR, 0, int(pcode.NOT))
		case token.ODD:
			g.emit(pcode.OPR, 0, int(pcode.ODD))
		}

	case *ast.CallExpr:
		g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "unexpected call to %q in expression context", n.Callee)
		g.emit(pcode.LIT, 0, 0)

	default:
		g.sink.Errorf(diag.CodeInternalError, diag.SourceRange{}, "unhandled expression node %T", e)
		g.emit(pcode.LIT, 0, 0)
	}
}

// genArrayAddress pushes the absolute address of name[index], looking up
// name (which must be an array symbol) and emitting the bounds check
// when enabled.
func (g *generator) genArrayAddress(name string, index ast.Expr, r diag.SourceRange) {
	sym, ok := g.syms.Lookup(name)
	if !ok {
		g.sink.Errorf(diag.CodeUndeclaredIdentifier, r, "undeclared identifier %q", name)
		g.genExpr(index)
		return
	}
	if sym.Kind != symtab.KindArray {
		g.sink.Errorf(diag.CodeInvalidArraySubscript, r, "%q is not an array", name)
	}
	g.emit(pcode.LDA, g.syms.CurrentScope().Level-sym.Level, sym.Address)
	g.genExpr(index)
	if g.opts.BoundsCheck && sym.Kind == symtab.KindArray {
		g.emit(pcode.CHK, 0, sym.Size)
	}
	g.emit(pcode.IDX, 0, 0)
}

//  statements

func compoundAssignOpr(op ast.AssignOp) pcode.Opr {
	switch op {
	case ast.AssignAdd:
		return pcode.ADD
	case ast.AssignSub:
		return pcode.SUB
	case ast.AssignMul:
		return pcode.MUL
	case ast.AssignDiv:
		return pcode.DIV
	case ast.AssignMod:
		return pcode.MOD
	default:
		return pcode.ADD
	}
}

func (g *generator) genStmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
		return

	case *ast.AssignStmt:
		g.genAssign(n)

	case *ast.CallStmt:
		sym, ok := g.syms.Lookup(n.Callee)
		if !ok {
			g.sink.Errorf(diag.CodeUndeclaredIdentifier, n.SrcRange, "undeclared identifier %q", n.Callee)
			return
		}
		if sym.Kind != symtab.KindProcedure {
			g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "%q is not a procedure", n.Callee)
			return
		}
		if len(n.Args) > 0 {
			g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "procedure %q does not accept arguments", n.Callee)
		}
		g.emit(pcode.CAL, g.syms.CurrentScope().Level-sym.Level, sym.Address)

	case *ast.IfStmt:
		g.genExpr(n.Cond)
		j1 := g.emit(pcode.JPC, 0, 0)
		g.genStmt(n.Then)
		if n.Else != nil {
			j2 := g.emit(pcode.JMP, 0, 0)
			g.patch(j1, g.here())
			g.genStmt(n.Else)
			g.patch(j2, g.here())
		} else {
			g.patch(j1, g.here())
		}

	case *ast.WhileStmt:
		loopHead := g.here()
		g.genExpr(n.Cond)
		j := g.emit(pcode.JPC, 0, 0)
		g.genStmt(n.Body)
		g.emit(pcode.JMP, 0, loopHead)
		g.patch(j, g.here())

	case *ast.RepeatStmt:
		loopHead := g.here()
		for _, stmt := range n.Body {
			g.genStmt(stmt)
		}
		g.genExpr(n.Cond)
		g.emit(pcode.JPC, 0, loopHead)

	case *ast.ReadStmt:
		for _, name := range n.Targets {
			sym, ok := g.syms.Lookup(name)
			if !ok {
				g.sink.Errorf(diag.CodeUndeclaredIdentifier, n.SrcRange, "undeclared identifier %q", name)
				continue
			}
			if sym.Kind == symtab.KindArray {
				g.sink.Errorf(diag.CodeInvalidArraySubscript, n.SrcRange, "read into array %q is not supported", name)
				continue
			}
			if sym.Kind == symtab.KindConstant {
				g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "cannot read into constant %q", name)
				continue
			}
			g.emit(pcode.OPR, 0, int(pcode.READ))
			g.emit(pcode.STO, g.syms.CurrentScope().Level-sym.Level, sym.Address)
		}

	case *ast.WriteStmt:
		for _, v := range n.Values {
			g.genExpr(v)
			g.emit(pcode.OPR, 0, int(pcode.WRITE))
		}
		if n.Newline {
			g.emit(pcode.OPR, 0, int(pcode.WRITELN))
		}

	case *ast.CompoundStmt:
		for _, stmt := range n.Stmts {
			g.genStmt(stmt)
		}

	default:
		g.sink.Errorf(diag.CodeInternalError, diag.SourceRange{}, "unhandled statement node %T", s)
	}
}

func (g *generator) genAssign(n *ast.AssignStmt) {
	sym, ok := g.syms.Lookup(n.Target)
	if !ok {
		g.sink.Errorf(diag.CodeUndeclaredIdentifier, n.SrcRange, "undeclared identifier %q", n.Target)
		g.genExpr(n.Value)
		return
	}
	if sym.Kind == symtab.KindConstant {
		g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "cannot assign to constant %q", n.Target)
		return
	}
	if sym.Kind == symtab.KindProcedure {
		g.sink.Errorf(diag.CodeInvalidAssignmentTarget, n.SrcRange, "cannot assign to procedure %q", n.Target)
		return
	}

	delta := g.syms.CurrentScope().Level - sym.Level

	if n.Index == nil {
		if sym.Kind == symtab.KindArray {
			g.sink.Errorf(diag.CodeInvalidArraySubscript, n.SrcRange, "array %q used without subscript", n.Target)
			return
		}
		if n.Op == ast.AssignPlain {
			g.genExpr(n.Value)
			g.emit(pcode.STO, delta, sym.Address)
			return
		}
		// Compound assignment to a scalar: load current value, evaluate
		// rvalue, apply the arithmetic OPR, store — a single load/store
		// pair (§4.4).
		g.emit(pcode.LOD, delta, sym.Address)
		g.genExpr(n.Value)
		g.emit(pcode.OPR, 0, int(compoundAssignOpr(n.Op)))
		g.emit(pcode.STO, delta, sym.Address)
		return
	}

	// Array element target.
	if sym.Kind != symtab.KindArray {
		g.sink.Errorf(diag.CodeInvalidArraySubscript, n.SrcRange, "%q is not an array", n.Target)
	}
	if n.Op == ast.AssignPlain {
		g.genArrayAddress(n.Target, n.Index, n.SrcRange)
		g.genExpr(n.Value)
		g.emit(pcode.STI, 0, 0)
		return
	}
	// Compound assignment to an array element: compute the address once,
	// DUP it so the index expression is not re-evaluated, load through
	// one copy, evaluate the rvalue, apply the OPR, store through the
	// other copy (§4.4).
	g.genArrayAddress(n.Target, n.Index, n.SrcRange)
	g.emit(pcode.DUP, 0, 0)
	g.emit(pcode.LDI, 0, 0)
	g.genExpr(n.Value)
	g.emit(pcode.OPR, 0, int(compoundAssignOpr(n.Op)))
	g.emit(pcode.STI, 0, 0)
}

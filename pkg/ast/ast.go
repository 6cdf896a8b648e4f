// Package ast defines the PL/0 abstract syntax tree as Go sum types:
// marker-method interfaces (Expr, Stmt) implemented by one struct per
// grammar variant, not an inheritance hierarchy. The AST is exclusively
// owned by the compile pipeline and is discarded after code generation.
package ast

import (
	"fmt"
	"strings"

	"pl0/pkg/diag"
	"pl0/pkg/token"
)

//  Expressions

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	Range() diag.SourceRange
	String() string
}

// NumberLit is an integer literal.
//
//	x := 10;
//	     ^^  NumberLit{Value: 10}
type NumberLit struct {
	Value    int64
	SrcRange diag.SourceRange
}

func (*NumberLit) exprNode()                   {}
func (n *NumberLit) Range() diag.SourceRange   { return n.SrcRange }
func (n *NumberLit) String() string            { return fmt.Sprintf("%d", n.Value) }

// BoolLit is a true/false literal.
type BoolLit struct {
	Value    bool
	SrcRange diag.SourceRange
}

func (*BoolLit) exprNode()                 {}
func (b *BoolLit) Range() diag.SourceRange { return b.SrcRange }
func (b *BoolLit) String() string          { return fmt.Sprintf("%t", b.Value) }

// Ident is a read of a named constant or variable.
type Ident struct {
	Name     string
	SrcRange diag.SourceRange
}

func (*Ident) exprNode()                 {}
func (i *Ident) Range() diag.SourceRange { return i.SrcRange }
func (i *Ident) String() string          { return i.Name }

// IndexExpr is an array element read: Name[Index].
type IndexExpr struct {
	Name     string
	Index    Expr
	SrcRange diag.SourceRange
}

func (*IndexExpr) exprNode()                 {}
func (e *IndexExpr) Range() diag.SourceRange { return e.SrcRange }
func (e *IndexExpr) String() string          { return fmt.Sprintf("%s[%s]", e.Name, e.Index) }

// BinaryExpr is Left Op Right.
type BinaryExpr struct {
	Op       token.Kind
	Left     Expr
	Right    Expr
	SrcRange diag.SourceRange
}

func (*BinaryExpr) exprNode()                 {}
func (b *BinaryExpr) Range() diag.SourceRange { return b.SrcRange }
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr is Op Operand: unary plus, unary minus, logical not, odd-test.
type UnaryExpr struct {
	Op       token.Kind
	Operand  Expr
	SrcRange diag.SourceRange
}

func (*UnaryExpr) exprNode()                 {}
func (u *UnaryExpr) Range() diag.SourceRange { return u.SrcRange }
func (u *UnaryExpr) String() string          { return fmt.Sprintf("(%s %s)", u.Op, u.Operand) }

// CallExpr is a call used in expression position (rejected by codegen;
// kept as a distinct node so the parser can still build a well-formed
// tree and the generator can report "unexpected call in expression
// context" with a precise range).
type CallExpr struct {
	Callee   string
	Args     []Expr
	SrcRange diag.SourceRange
}

func (*CallExpr) exprNode()                 {}
func (c *CallExpr) Range() diag.SourceRange { return c.SrcRange }
func (c *CallExpr) String() string          { return fmt.Sprintf("%s(%s)", c.Callee, joinExprs(c.Args)) }

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

//  Statements

// AssignOp identifies which assignment-operator tag §3/§4.4 requires.
type AssignOp int

const (
	AssignPlain AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
)

func (op AssignOp) String() string {
	switch op {
	case AssignPlain:
		return ":="
	case AssignAdd:
		return "+="
	case AssignSub:
		return "-="
	case AssignMul:
		return "*="
	case AssignDiv:
		return "/="
	case AssignMod:
		return "%="
	default:
		return fmt.Sprintf("AssignOp(%d)", int(op))
	}
}

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	Range() diag.SourceRange
	String() string
}

// AssignStmt represents Target[Index]? Op Value. Index is nil for a
// scalar target. ++/-- are desugared by the parser into AssignAdd/
// AssignSub with a NumberLit{Value: 1} Value.
type AssignStmt struct {
	Target   string
	Index    Expr // nil for a scalar target
	Op       AssignOp
	Value    Expr
	SrcRange diag.SourceRange
}

func (*AssignStmt) stmtNode()                {}
func (a *AssignStmt) Range() diag.SourceRange { return a.SrcRange }
func (a *AssignStmt) String() string {
	if a.Index != nil {
		return fmt.Sprintf("%s[%s] %s %s", a.Target, a.Index, a.Op, a.Value)
	}
	return fmt.Sprintf("%s %s %s", a.Target, a.Op, a.Value)
}

// CallStmt represents call Callee(Args).
type CallStmt struct {
	Callee   string
	Args     []Expr
	SrcRange diag.SourceRange
}

func (*CallStmt) stmtNode()                {}
func (c *CallStmt) Range() diag.SourceRange { return c.SrcRange }
func (c *CallStmt) String() string {
	return fmt.Sprintf("call %s(%s)", c.Callee, joinExprs(c.Args))
}

// IfStmt represents if Cond then Then [else Else].
type IfStmt struct {
	Cond     Expr
	Then     Stmt
	Else     Stmt // nil when no else clause
	SrcRange diag.SourceRange
}

func (*IfStmt) stmtNode()                {}
func (i *IfStmt) Range() diag.SourceRange { return i.SrcRange }
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("if %s then %s else %s", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("if %s then %s", i.Cond, i.Then)
}

// WhileStmt represents while Cond do Body.
type WhileStmt struct {
	Cond     Expr
	Body     Stmt
	SrcRange diag.SourceRange
}

func (*WhileStmt) stmtNode()                {}
func (w *WhileStmt) Range() diag.SourceRange { return w.SrcRange }
func (w *WhileStmt) String() string          { return fmt.Sprintf("while %s do %s", w.Cond, w.Body) }

// RepeatStmt represents repeat Body until Cond.
type RepeatStmt struct {
	Body     []Stmt
	Cond     Expr
	SrcRange diag.SourceRange
}

func (*RepeatStmt) stmtNode()                {}
func (r *RepeatStmt) Range() diag.SourceRange { return r.SrcRange }
func (r *RepeatStmt) String() string {
	return fmt.Sprintf("repeat %s until %s", joinStmts(r.Body), r.Cond)
}

// ReadStmt represents read(targets...) or read target.
type ReadStmt struct {
	Targets  []string
	SrcRange diag.SourceRange
}

func (*ReadStmt) stmtNode()                {}
func (r *ReadStmt) Range() diag.SourceRange { return r.SrcRange }
func (r *ReadStmt) String() string {
	return fmt.Sprintf("read(%s)", strings.Join(r.Targets, ", "))
}

// WriteStmt represents write(values...) or writeln(values...).
type WriteStmt struct {
	Values   []Expr
	Newline  bool
	SrcRange diag.SourceRange
}

func (*WriteStmt) stmtNode()                {}
func (w *WriteStmt) Range() diag.SourceRange { return w.SrcRange }
func (w *WriteStmt) String() string {
	name := "write"
	if w.Newline {
		name = "writeln"
	}
	return fmt.Sprintf("%s(%s)", name, joinExprs(w.Values))
}

// CompoundStmt represents begin Stmts... end.
type CompoundStmt struct {
	Stmts    []Stmt
	SrcRange diag.SourceRange
}

func (*CompoundStmt) stmtNode()                {}
func (c *CompoundStmt) Range() diag.SourceRange { return c.SrcRange }
func (c *CompoundStmt) String() string          { return fmt.Sprintf("begin %s end", joinStmts(c.Stmts)) }

func joinStmts(ss []Stmt) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

//  Declarations, block, program

// ConstDecl installs a named constant.
type ConstDecl struct {
	Name     string
	Value    int64
	SrcRange diag.SourceRange
}

// VarDecl installs a scalar (Size == 1) or array (Size == N) variable.
type VarDecl struct {
	Name     string
	Size     int // 1 for a scalar, N for an array of N elements
	SrcRange diag.SourceRange
}

// ProcDecl installs a parameter-less procedure.
type ProcDecl struct {
	Name     string
	Body     *Block
	SrcRange diag.SourceRange
}

// Block is one lexical scope: declarations followed by a single
// (typically compound) statement.
type Block struct {
	Consts   []ConstDecl
	Vars     []VarDecl
	Procs    []ProcDecl
	Stmt     Stmt
	SrcRange diag.SourceRange
}

func (b *Block) Range() diag.SourceRange { return b.SrcRange }

func (b *Block) String() string {
	var sb strings.Builder
	for _, c := range b.Consts {
		fmt.Fprintf(&sb, "const %s = %d; ", c.Name, c.Value)
	}
	for _, v := range b.Vars {
		if v.Size > 1 {
			fmt.Fprintf(&sb, "var %s[%d]; ", v.Name, v.Size)
		} else {
			fmt.Fprintf(&sb, "var %s; ", v.Name)
		}
	}
	for _, p := range b.Procs {
		fmt.Fprintf(&sb, "procedure %s; %s; ", p.Name, p.Body)
	}
	if b.Stmt != nil {
		sb.WriteString(b.Stmt.String())
	}
	return sb.String()
}

// Program is the root of the AST: a single block followed by the
// terminating '.'.
type Program struct {
	Root *Block
}

func (p *Program) String() string {
	if p.Root == nil {
		return ""
	}
	return p.Root.String() + "."
}

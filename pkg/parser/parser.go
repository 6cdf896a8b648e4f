// Package parser implements the recursive-descent parser that turns a
// token stream into a Program AST, using panic-mode error recovery so a
// single run can report more than one diagnostic.
//
// Grammar (§4.2, precedence weakest to strongest: or < and < relational
// < additive < multiplicative < unary < primary, so -x*y is (-x)*y):
//
//	program     := block '.'
//	block       := [ 'const' const_list ';' ]
//	               [ 'var'   var_list   ';' ]
//	               { 'procedure' IDENT ';' block ';' }
//	               statement
//	const_list  := IDENT '=' literal { ',' IDENT '=' literal }
//	var_list    := var_item { ',' var_item }
//	var_item    := IDENT [ '[' NUMBER ']' ]
//	statement   := assignment | call_stmt | compound | if_stmt
//	             | while_stmt | repeat_stmt | read_stmt | write_stmt | ε
//	assignment  := IDENT [ '[' expr ']' ] assign_op expr
//	             | IDENT [ '[' expr ']' ] ('++' | '--')
//	assign_op   := ':=' | '+=' | '-=' | '*=' | '/=' | '%='
//	call_stmt   := 'call' IDENT [ '(' [ expr { ',' expr } ] ')' ]
//	compound    := 'begin' statement { ';' statement } 'end'
//	if_stmt     := 'if' expr 'then' statement [ 'else' statement ]
//	while_stmt  := 'while' expr 'do' statement
//	repeat_stmt := 'repeat' statement { ';' statement } 'until' expr
//	read_stmt   := 'read' ( '(' IDENT { ',' IDENT } ')' | IDENT )
//	write_stmt  := ('write'|'writeln') [ '(' [ expr { ',' expr } ] ')' | expr ]
//	expr        := logic_and { 'or' logic_and }
//	logic_and   := relation { 'and' relation }
//	relation    := term [ relop term ]
//	relop       := '=' | '#' | '<>' | '!=' | '<' | '<=' | '>' | '>='
//	term        := product { ('+'|'-') product }
//	product     := factor { ('*'|'/'|'%') factor }
//	factor      := ('+'|'-'|'not'|'odd') factor | primary
//	primary     := NUMBER | BOOLEAN | IDENT [ '(' args ')' | '[' expr ']' ]
//	             | '(' expr ')'
package parser

import (
	"pl0/pkg/ast"
	"pl0/pkg/diag"
	"pl0/pkg/scanner"
	"pl0/pkg/token"
)

// Parser consumes tokens from a scanner.Scanner and builds a Program.
type Parser struct {
	sc        *scanner.Scanner
	sink      *diag.Sink
	panicMode bool
}

// Parse tokenizes nothing itself — it drives sc and returns the Program,
// possibly containing null-fallback placeholder nodes where a sub-parse
// failed. Diagnostics are reported to sink; Parse never returns an error.
func Parse(sc *scanner.Scanner, sink *diag.Sink) *ast.Program {
	p := &Parser{sc: sc, sink: sink}
	root := p.parseBlock()
	p.expect(token.DOT)
	return &ast.Program{Root: root}
}

//  token-stream helpers

func (p *Parser) cur() token.Token  { return p.sc.Peek(0) }
func (p *Parser) peekAt(k int) token.Token { return p.sc.Peek(k) }
func (p *Parser) advance() token.Token     { return p.sc.Next() }

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) match(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	return token.Token{}, false
}

// expect consumes the current token if it matches k. Otherwise it enters
// panic mode (suppressing further diagnostics until a later successful
// expect or a synchronize call clears it, so one missing token doesn't
// cascade into dozens of "expected X" reports) and returns the current,
// unconsumed token with ok = false.
func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if tok, ok := p.match(k); ok {
		p.panicMode = false
		return tok, true
	}
	tok := p.cur()
	if !p.panicMode {
		p.panicMode = true
		code := diag.CodeExpectedSymbol
		if k == token.IDENT {
			code = diag.CodeExpectedIdentifier
		}
		p.sink.Errorf(code, tok.Range, "expected %s, got %s %q", k, tok.Kind, tok.Lexeme)
	}
	return tok, false
}

// synchronize advances past tokens until one in syncSet is next (or EOF),
// then clears panic mode. Callers pass a sync set drawn from the nearest
// enclosing production (§9), not a global set.
func (p *Parser) synchronize(syncSet map[token.Kind]bool) {
	for !syncSet[p.cur().Kind] && p.cur().Kind != token.EOF {
		p.advance()
	}
	p.panicMode = false
}

var stmtSync = map[token.Kind]bool{
	token.SEMICOLON: true, token.END: true, token.DOT: true, token.BEGIN: true,
	token.IF: true, token.WHILE: true, token.REPEAT: true, token.PROCEDURE: true,
	token.VAR: true, token.CONST: true, token.EOF: true,
}

func placeholderExpr(r diag.SourceRange) ast.Expr  { return &ast.NumberLit{Value: 0, SrcRange: r} }
func placeholderStmt(r diag.SourceRange) ast.Stmt {
	return &ast.CompoundStmt{SrcRange: r}
}

//  block / program

func (p *Parser) parseBlock() *ast.Block {
	start := p.cur().Range
	b := &ast.Block{}

	if _, ok := p.match(token.CONST); ok {
		b.Consts = p.parseConstList()
		p.expect(token.SEMICOLON)
	}
	if _, ok := p.match(token.VAR); ok {
		b.Vars = p.parseVarList()
		p.expect(token.SEMICOLON)
	}
	for p.at(token.PROCEDURE) {
		b.Procs = append(b.Procs, p.parseProcDecl())
	}

	b.Stmt = p.parseStatement()
	b.SrcRange = diag.SourceRange{Start: start.Start, End: p.cur().Range.Start}
	return b
}

func (p *Parser) parseConstList() []ast.ConstDecl {
	var decls []ast.ConstDecl
	decls = append(decls, p.parseConstItem())
	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		decls = append(decls, p.parseConstItem())
	}
	return decls
}

func (p *Parser) parseConstItem() ast.ConstDecl {
	nameTok, ok := p.expect(token.IDENT)
	if !ok {
		p.synchronize(map[token.Kind]bool{token.COMMA: true, token.SEMICOLON: true, token.EOF: true})
		return ast.ConstDecl{SrcRange: nameTok.Range}
	}
	p.expect(token.EQUALS)
	numTok, ok := p.expect(token.NUMBER)
	if !ok {
		p.synchronize(map[token.Kind]bool{token.COMMA: true, token.SEMICOLON: true, token.EOF: true})
	}
	return ast.ConstDecl{Name: nameTok.Lexeme, Value: numTok.Number, SrcRange: nameTok.Range}
}

func (p *Parser) parseVarList() []ast.VarDecl {
	var decls []ast.VarDecl
	decls = append(decls, p.parseVarItem())
	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		decls = append(decls, p.parseVarItem())
	}
	return decls
}

func (p *Parser) parseVarItem() ast.VarDecl {
	nameTok, ok := p.expect(token.IDENT)
	if !ok {
		p.synchronize(map[token.Kind]bool{token.COMMA: true, token.SEMICOLON: true, token.EOF: true})
		return ast.VarDecl{Size: 1, SrcRange: nameTok.Range}
	}
	size := 1
	if _, ok := p.match(token.LBRACKET); ok {
		numTok, ok := p.expect(token.NUMBER)
		if ok {
			size = int(numTok.Number)
		}
		p.expect(token.RBRACKET)
	}
	return ast.VarDecl{Name: nameTok.Lexeme, Size: size, SrcRange: nameTok.Range}
}

func (p *Parser) parseProcDecl() ast.ProcDecl {
	start := p.cur().Range
	p.advance() // 'procedure'
	nameTok, _ := p.expect(token.IDENT)
	p.expect(token.SEMICOLON)
	body := p.parseBlock()
	p.expect(token.SEMICOLON)
	return ast.ProcDecl{Name: nameTok.Lexeme, Body: body, SrcRange: diag.SourceRange{Start: start.Start, End: p.cur().Range.Start}}
}

//  statements

func (p *Parser) parseStatement() ast.Stmt {
	switch p.cur().Kind {
	case token.IDENT:
		return p.parseAssignment()
	case token.CALL:
		return p.parseCallStmt()
	case token.BEGIN:
		return p.parseCompound()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.REPEAT:
		return p.parseRepeat()
	case token.READ:
		return p.parseRead()
	case token.WRITE, token.WRITELN:
		return p.parseWrite()
	default:
		// ε: an empty statement is valid (e.g. before 'end').
		r := p.cur().Range
		return &ast.CompoundStmt{SrcRange: r}
	}
}

func assignOpFor(k token.Kind) (ast.AssignOp, bool) {
	switch k {
	case token.ASSIGN:
		return ast.AssignPlain, true
	case token.PLUS_ASSIGN:
		return ast.AssignAdd, true
	case token.MINUS_ASSIGN:
		return ast.AssignSub, true
	case token.STAR_ASSIGN:
		return ast.AssignMul, true
	case token.SLASH_ASSIGN:
		return ast.AssignDiv, true
	case token.PCT_ASSIGN:
		return ast.AssignMod, true
	default:
		return ast.AssignPlain, false
	}
}

func (p *Parser) parseAssignment() ast.Stmt {
	nameTok := p.advance() // IDENT

	var index ast.Expr
	if _, ok := p.match(token.LBRACKET); ok {
		index = p.parseExpr()
		p.expect(token.RBRACKET)
	}

	// '++'/'--' desugar to AssignAdd/AssignSub with a literal 1 (§3).
	if tok, ok := p.match(token.PLUS_PLUS); ok {
		return &ast.AssignStmt{Target: nameTok.Lexeme, Index: index, Op: ast.AssignAdd,
			Value: &ast.NumberLit{Value: 1, SrcRange: tok.Range}, SrcRange: nameTok.Range}
	}
	if tok, ok := p.match(token.MINUS_MINUS); ok {
		return &ast.AssignStmt{Target: nameTok.Lexeme, Index: index, Op: ast.AssignSub,
			Value: &ast.NumberLit{Value: 1, SrcRange: tok.Range}, SrcRange: nameTok.Range}
	}

	opTok := p.advance()
	op, ok := assignOpFor(opTok.Kind)
	if !ok {
		if !p.panicMode {
			p.panicMode = true
			p.sink.Errorf(diag.CodeUnexpectedToken, opTok.Range, "expected assignment operator, got %s %q", opTok.Kind, opTok.Lexeme)
		}
		p.synchronize(stmtSync)
		return placeholderStmt(nameTok.Range)
	}

	value := p.parseExpr()
	return &ast.AssignStmt{Target: nameTok.Lexeme, Index: index, Op: op, Value: value, SrcRange: nameTok.Range}
}

func (p *Parser) parseCallStmt() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'call'
	nameTok, ok := p.expect(token.IDENT)
	if !ok {
		p.synchronize(stmtSync)
		return placeholderStmt(start)
	}
	var args []ast.Expr
	if _, ok := p.match(token.LPAREN); ok {
		args = p.parseArgsUntil(token.RPAREN)
		p.expect(token.RPAREN)
	}
	return &ast.CallStmt{Callee: nameTok.Lexeme, Args: args, SrcRange: start}
}

func (p *Parser) parseArgsUntil(closing token.Kind) []ast.Expr {
	if p.at(closing) {
		return nil
	}
	var args []ast.Expr
	args = append(args, p.parseExpr())
	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		args = append(args, p.parseExpr())
	}
	return args
}

func (p *Parser) parseCompound() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'begin'
	var stmts []ast.Stmt
	stmts = append(stmts, p.parseStatement())
	for {
		if _, ok := p.match(token.SEMICOLON); !ok {
			break
		}
		stmts = append(stmts, p.parseStatement())
	}
	p.expect(token.END)
	return &ast.CompoundStmt{Stmts: stmts, SrcRange: diag.SourceRange{Start: start.Start, End: p.cur().Range.Start}}
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'if'
	cond := p.parseExprOrPlaceholder()
	p.expect(token.THEN)
	then := p.parseStatement()
	var els ast.Stmt
	if _, ok := p.match(token.ELSE); ok {
		els = p.parseStatement()
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els, SrcRange: start}
}

func (p *Parser) parseWhile() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'while'
	cond := p.parseExprOrPlaceholder()
	p.expect(token.DO)
	body := p.parseStatement()
	return &ast.WhileStmt{Cond: cond, Body: body, SrcRange: start}
}

func (p *Parser) parseRepeat() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'repeat'
	var stmts []ast.Stmt
	stmts = append(stmts, p.parseStatement())
	for {
		if _, ok := p.match(token.SEMICOLON); !ok {
			break
		}
		stmts = append(stmts, p.parseStatement())
	}
	p.expect(token.UNTIL)
	cond := p.parseExprOrPlaceholder()
	return &ast.RepeatStmt{Body: stmts, Cond: cond, SrcRange: start}
}

func (p *Parser) parseRead() ast.Stmt {
	start := p.cur().Range
	p.advance() // 'read'
	var targets []string
	if _, ok := p.match(token.LPAREN); ok {
		if nameTok, ok := p.expect(token.IDENT); ok {
			targets = append(targets, nameTok.Lexeme)
		}
		for {
			if _, ok := p.match(token.COMMA); !ok {
				break
			}
			if nameTok, ok := p.expect(token.IDENT); ok {
				targets = append(targets, nameTok.Lexeme)
			}
		}
		p.expect(token.RPAREN)
	} else if nameTok, ok := p.expect(token.IDENT); ok {
		targets = append(targets, nameTok.Lexeme)
	}
	return &ast.ReadStmt{Targets: targets, SrcRange: start}
}

func (p *Parser) parseWrite() ast.Stmt {
	start := p.cur().Range
	newline := p.cur().Kind == token.WRITELN
	p.advance() // 'write' / 'writeln'

	var values []ast.Expr
	if _, ok := p.match(token.LPAREN); ok {
		values = p.parseArgsUntil(token.RPAREN)
		p.expect(token.RPAREN)
	} else if p.exprStarts() {
		values = append(values, p.parseExpr())
	}
	return &ast.WriteStmt{Values: values, Newline: newline, SrcRange: start}
}

func (p *Parser) exprStarts() bool {
	switch p.cur().Kind {
	case token.NUMBER, token.BOOLEAN, token.IDENT, token.LPAREN,
		token.PLUS, token.MINUS, token.NOT, token.ODD:
		return true
	default:
		return false
	}
}

//  expressions

func (p *Parser) parseExprOrPlaceholder() ast.Expr {
	if !p.exprStarts() {
		r := p.cur().Range
		if !p.panicMode {
			p.panicMode = true
			p.sink.Errorf(diag.CodeUnexpectedToken, r, "expected expression, got %s %q", p.cur().Kind, p.cur().Lexeme)
		}
		return placeholderExpr(r)
	}
	return p.parseExpr()
}

func (p *Parser) parseExpr() ast.Expr { return p.parseLogicOr() }

func (p *Parser) parseLogicOr() ast.Expr {
	left := p.parseLogicAnd()
	for p.at(token.OR) {
		op := p.advance()
		right := p.parseLogicAnd()
		left = &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right, SrcRange: left.Range()}
	}
	return left
}

func (p *Parser) parseLogicAnd() ast.Expr {
	left := p.parseRelation()
	for p.at(token.AND) {
		op := p.advance()
		right := p.parseRelation()
		left = &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right, SrcRange: left.Range()}
	}
	return left
}

func isRelOp(k token.Kind) bool {
	if k.IsInequality() {
		return true
	}
	switch k {
	case token.EQUALS, token.LESS, token.LESS_EQ, token.GREATER, token.GREATER_EQ:
		return true
	default:
		return false
	}
}

func (p *Parser) parseRelation() ast.Expr {
	left := p.parseTerm()
	if isRelOp(p.cur().Kind) {
		op := p.advance()
		right := p.parseTerm()
		return &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right, SrcRange: left.Range()}
	}
	return left
}

func (p *Parser) parseTerm() ast.Expr {
	left := p.parseMultiplicative()
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := p.advance()
		right := p.parseMultiplicative()
		left = &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right, SrcRange: left.Range()}
	}
	return left
}

func (p *Parser) parseFactor() ast.Expr {
	switch p.cur().Kind {
	case token.PLUS:
		p.advance()
		return p.parseFactor() // unary plus: identity, nothing emitted later
	case token.MINUS:
		op := p.advance()
		operand := p.parseFactor()
		return &ast.UnaryExpr{Op: op.Kind, Operand: operand, SrcRange: op.Range}
	case token.NOT:
		op := p.advance()
		operand := p.parseFactor()
		return &ast.UnaryExpr{Op: op.Kind, Operand: operand, SrcRange: op.Range}
	case token.ODD:
		op := p.advance()
		operand := p.parseFactor()
		return &ast.UnaryExpr{Op: op.Kind, Operand: operand, SrcRange: op.Range}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseFactor()
	for p.at(token.STAR) || p.at(token.SLASH) || p.at(token.PERCENT) {
		op := p.advance()
		right := p.parseFactor()
		left = &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right, SrcRange: left.Range()}
	}
	return left
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Kind {
	case token.NUMBER:
		p.advance()
		return &ast.NumberLit{Value: tok.Number, SrcRange: tok.Range}
	case token.BOOLEAN:
		p.advance()
		return &ast.BoolLit{Value: tok.Boolean, SrcRange: tok.Range}
	case token.IDENT:
		p.advance()
		if _, ok := p.match(token.LPAREN); ok {
			args := p.parseArgsUntil(token.RPAREN)
			p.expect(token.RPAREN)
			return &ast.CallExpr{Callee: tok.Lexeme, Args: args, SrcRange: tok.Range}
		}
		if _, ok := p.match(token.LBRACKET); ok {
			idx := p.parseExpr()
			p.expect(token.RBRACKET)
			return &ast.IndexExpr{Name: tok.Lexeme, Index: idx, SrcRange: tok.Range}
		}
		return &ast.Ident{Name: tok.Lexeme, SrcRange: tok.Range}
	case token.LPAREN:
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RPAREN)
		return inner
	default:
		if !p.panicMode {
			p.panicMode = true
			p.sink.Errorf(diag.CodeUnexpectedToken, tok.Range, "expected expression, got %s %q", tok.Kind, tok.Lexeme)
		}
		return placeholderExpr(tok.Range)
	}
}

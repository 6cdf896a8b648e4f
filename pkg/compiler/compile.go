// Package compiler wires the scanner, parser, and code generator into
// the single staged pipeline that turns PL/0 source text into a pcode
// program, the way the teacher's own Compile entry point stages
// lex -> parse -> codegen -> assemble.
package compiler

import (
	"pl0/pkg/ast"
	"pl0/pkg/codegen"
	"pl0/pkg/diag"
	"pl0/pkg/parser"
	"pl0/pkg/pcode"
	"pl0/pkg/scanner"
	"pl0/pkg/symtab"
)

// Options controls a single compile pass.
type Options struct {
	BoundsCheck bool
}

// Result is everything a compile pass produces, including partial
// output: diagnostics may be present alongside a (possibly incomplete)
// Program, Instructions, and Symbols, since the pipeline keeps going
// after a reported error to surface as many problems as it can.
type Result struct {
	Program      *ast.Program
	Instructions []pcode.Instruction
	Symbols      symtab.Snapshot
}

// Compile runs src through the full pipeline, reporting every lexical,
// syntactic, and semantic diagnostic to sink. Callers should check
// sink.HasErrors() before trusting Result.Instructions for execution.
func Compile(src string, sink *diag.Sink, opts Options) Result {
	sc := scanner.New(src, sink)
	prog := parser.Parse(sc, sink)

	gen := codegen.Generate(prog, sink, codegen.Options{BoundsCheck: opts.BoundsCheck})

	return Result{
		Program:      prog,
		Instructions: gen.Instructions,
		Symbols:      gen.Symbols,
	}
}

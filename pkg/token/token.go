// Package token defines the lexical token kinds produced by pkg/scanner
// and consumed by pkg/parser.
package token

import (
	"fmt"

	"pl0/pkg/diag"
)

// Kind identifies the category of a lexed token.
type Kind int

const (
	EOF Kind = iota // sentinel: end of input

	// Literals
	IDENT   // variable / constant / procedure name
	NUMBER  // decimal integer literal
	BOOLEAN // true / false

	// Keywords
	BEGIN
	CALL
	CONST
	DO
	ELSE
	END
	IF
	ODD
	PROCEDURE
	THEN
	VAR
	WHILE
	REPEAT
	UNTIL
	READ
	WRITE
	WRITELN
	TRUE
	FALSE
	AND
	OR
	NOT

	// Paired delimiters
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	COMMA     // ,
	SEMICOLON // ;
	DOT       // .
	COLON     // :

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %

	// Compound assignment / increment (order matters: ASSIGN before EQUALS)
	ASSIGN       // :=
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=
	STAR_ASSIGN  // *=
	SLASH_ASSIGN // /=
	PCT_ASSIGN   // %=
	PLUS_PLUS    // ++
	MINUS_MINUS  // --

	// Relational
	EQUALS  // =
	HASH    // #
	NOT_EQ  // <> or !=
	LESS    // <
	LESS_EQ // <=
	GREATER // >
	GREATER_EQ
)

// keywordNames is the canonical spelling used to match against a
// lower-cased lexeme during keyword lookup (§6 lists identifiers matched
// case-insensitively).
var keywordNames = map[string]Kind{
	"begin":     BEGIN,
	"call":      CALL,
	"const":     CONST,
	"do":        DO,
	"else":      ELSE,
	"end":       END,
	"if":        IF,
	"odd":       ODD,
	"procedure": PROCEDURE,
	"then":      THEN,
	"var":       VAR,
	"while":     WHILE,
	"repeat":    REPEAT,
	"until":     UNTIL,
	"read":      READ,
	"write":     WRITE,
	"writeln":   WRITELN,
	"true":      TRUE,
	"false":     FALSE,
	"and":       AND,
	"or":        OR,
	"not":       NOT,
}

// Keyword looks up a case-insensitive keyword spelling. ok is false for
// any lexeme that is not a keyword, in which case the caller should treat
// it as an identifier.
func Keyword(lowered string) (Kind, bool) {
	k, ok := keywordNames[lowered]
	return k, ok
}

var kindNames = [...]string{
	EOF:          "EOF",
	IDENT:        "IDENT",
	NUMBER:       "NUMBER",
	BOOLEAN:      "BOOLEAN",
	BEGIN:        "begin",
	CALL:         "call",
	CONST:        "const",
	DO:           "do",
	ELSE:         "else",
	END:          "end",
	IF:           "if",
	ODD:          "odd",
	PROCEDURE:    "procedure",
	THEN:         "then",
	VAR:          "var",
	WHILE:        "while",
	REPEAT:       "repeat",
	UNTIL:        "until",
	READ:         "read",
	WRITE:        "write",
	WRITELN:      "writeln",
	TRUE:         "true",
	FALSE:        "false",
	AND:          "and",
	OR:           "or",
	NOT:          "not",
	LPAREN:       "(",
	RPAREN:       ")",
	LBRACKET:     "[",
	RBRACKET:     "]",
	COMMA:        ",",
	SEMICOLON:    ";",
	DOT:          ".",
	COLON:        ":",
	PLUS:         "+",
	MINUS:        "-",
	STAR:         "*",
	SLASH:        "/",
	PERCENT:      "%",
	ASSIGN:       ":=",
	PLUS_ASSIGN:  "+=",
	MINUS_ASSIGN: "-=",
	STAR_ASSIGN:  "*=",
	SLASH_ASSIGN: "/=",
	PCT_ASSIGN:   "%=",
	PLUS_PLUS:    "++",
	MINUS_MINUS:  "--",
	EQUALS:       "=",
	HASH:         "#",
	NOT_EQ:       "<>",
	LESS:         "<",
	LESS_EQ:      "<=",
	GREATER:      ">",
	GREATER_EQ:   ">=",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsInequality reports whether k is one of the three inequality spellings
// (§4.1: both '#' and '<>' and '!=' denote inequality).
func (k Kind) IsInequality() bool {
	return k == HASH || k == NOT_EQ
}

// Token is a single lexical unit produced by the scanner. Once produced a
// Token is never mutated.
type Token struct {
	Kind    Kind
	Lexeme  string
	Range   diag.SourceRange
	Number  int64 // valid when Kind == NUMBER
	Boolean bool  // valid when Kind == BOOLEAN
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-12q %s", t.Kind, t.Lexeme, t.Range)
}

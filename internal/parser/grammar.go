// Package parser turns calculator input lines into annotated expression
// trees. The grammar covers arithmetic with juxtaposed unit factors
// ("12 km / 4 m"), right-associative powers, factorials, matrix literals,
// unit conversion ("x to km", "x to base", "x to best") and equations
// ("lhs = rhs"). Numeric literals are carried through verbatim so the
// evaluator can recover the number of written significant digits.
package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// calcLexer tokenizes calculator input. Order matters: multi-character
// operators must be matched before their single-character prefixes.
var calcLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Numbers: "12", "1.50", ".5", "6.022e23". The token keeps every typed
	// digit, including trailing zeros.
	{Name: "Number", Pattern: `[0-9]+\.?[0-9]*(?:[eE][+-]?[0-9]+)?|\.[0-9]+(?:[eE][+-]?[0-9]+)?`},
	// Operators and punctuation, including the unicode multiplication and
	// division signs.
	{Name: "Op", Pattern: `\*\*|//|[-+*/^!=(),;\[\]]|·|÷`},
	// "to" is reserved: without its own token the juxtaposition rule would
	// read it as a free variable.
	{Name: "To", Pattern: `to\b`},
	// Identifiers: unit tokens, constants, function names, free variables.
	// ° and µ appear in unit symbols.
	{Name: "Ident", Pattern: `[\p{L}_°][\p{L}\p{N}_°]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// line is the root production: an expression, optionally equated to a second
// expression.
type line struct {
	Pos   lexer.Position
	Left  *conversion `parser:"@@"`
	Right *conversion `parser:"( \"=\" @@ )?"`
}

// conversion is an expression with an optional conversion target. "to" is a
// reserved word; it cannot be used as a variable name.
type conversion struct {
	Expr   *addExpr    `parser:"@@"`
	Target *convTarget `parser:"( \"to\" @@ )?"`
}

type convTarget struct {
	Pos  lexer.Position
	Base bool      `parser:"  @\"base\""`
	Best bool      `parser:"| @\"best\""`
	Unit *unitExpr `parser:"| @@"`
}

// unitExpr is the restricted expression form allowed after "to": unit tokens
// combined with products, quotients, and integer exponents.
type unitExpr struct {
	First *unitFactor `parser:"@@"`
	Rest  []*unitOp   `parser:"@@*"`
}

type unitOp struct {
	Op   string      `parser:"@(\"*\" | \"/\" | \"·\")?"`
	Term *unitFactor `parser:"@@"`
}

type unitFactor struct {
	Pos  lexer.Position
	Name string  `parser:"@Ident"`
	Exp  *string `parser:"( ( \"^\" | \"**\" ) @( \"-\"? Number ) )?"`
}

type addExpr struct {
	Left *mulExpr `parser:"@@"`
	Rest []*addOp `parser:"@@*"`
}

type addOp struct {
	Op   string   `parser:"@(\"+\" | \"-\")"`
	Term *mulExpr `parser:"@@"`
}

type mulExpr struct {
	Left *juxtaExpr `parser:"@@"`
	Rest []*mulOp   `parser:"@@*"`
}

type mulOp struct {
	Op   string     `parser:"@(\"*\" | \"/\" | \"//\" | \"·\" | \"÷\")"`
	Term *juxtaExpr `parser:"@@"`
}

// juxtaExpr folds juxtaposed factors into a single operand before explicit
// multiplicative operators apply, so "12 km / 4 m" divides quantity by
// quantity instead of attaching the trailing unit to the quotient. The
// juxtaposed factors exclude leading signs so "a - b" stays a subtraction.
type juxtaExpr struct {
	Left *unary     `parser:"@@"`
	Rest []*powExpr `parser:"@@*"`
}

type unary struct {
	Pos  lexer.Position
	Sign string   `parser:"@(\"-\" | \"+\")?"`
	Expr *powExpr `parser:"@@"`
}

// powExpr is right-associative: 2^3^2 is 2^(3^2). The exponent re-enters at
// unary level so "2^-3" parses.
type powExpr struct {
	Base *postfix `parser:"@@"`
	Exp  *unary   `parser:"( ( \"^\" | \"**\" ) @@ )?"`
}

type postfix struct {
	Primary *primary `parser:"@@"`
	Bangs   []string `parser:"@\"!\"*"`
}

type primary struct {
	Pos    lexer.Position
	Number *string    `parser:"  @Number"`
	Call   *callExpr  `parser:"| @@"`
	Ident  *string    `parser:"| @Ident"`
	Paren  *addExpr   `parser:"| \"(\" @@ \")\""`
	Matrix *matrixLit `parser:"| @@"`
}

type callExpr struct {
	Pos  lexer.Position
	Name string     `parser:"@Ident \"(\""`
	Args []*addExpr `parser:"( @@ ( \",\" @@ )* )? \")\""`
}

// matrixLit is a bracketed matrix: rows separated by semicolons, cells by
// commas. "[1, 2, 3]" is a row vector.
type matrixLit struct {
	Pos  lexer.Position
	Rows []*matrixRow `parser:"\"[\" @@ ( \";\" @@ )* \"]\""`
}

type matrixRow struct {
	Cells []*addExpr `parser:"@@ ( \",\" @@ )*"`
}

var lineParser = participle.MustBuild[line](
	participle.Lexer(calcLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

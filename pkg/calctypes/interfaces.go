// This file contains the fundamental interfaces that define the system's
// structure: session context management, service registration, and the
// narrow contracts required from the backing algebra engine so that it can
// be substituted without touching the precision/unit/solve logic.
package calctypes

import "github.com/cockroachdb/apd/v3"

// Context provides session state shared across evaluations: the requested
// output precision, the guard-digit margin, and the hint suppression set.
// It is mutated only between top-level evaluations, never mid-evaluation.
type Context interface {
	SessionID() string

	OutputPrecision() int
	SetOutputPrecision(digits int) error
	GuardDigits() int
	SetGuardDigits(digits int) error

	// Suppression management, backed by externally persisted state.
	IsSuppressed(key string) bool
	Suppress(key string)
	Unsuppress(key string)
	SuppressedKeys() []string

	// MarkSeen records the first occurrence of a hint key in this session
	// and reports whether this call was the first occurrence.
	MarkSeen(key string) bool

	SetTestMode(testMode bool)
	IsTestMode() bool
}

// Service defines the interface for unitcalc services that provide specific
// functionality. Services are initialized at startup and accessed through
// the service registry.
type Service interface {
	Name() string
	Initialize() error
}

// ServiceRegistry manages the registration and retrieval of services.
type ServiceRegistry interface {
	GetService(name string) (Service, error)
	RegisterService(service Service) error
}

// AlgebraEngine is the contract required from the backing computer-algebra
// engine: expression construction, simplification at a given precision,
// substitution, differentiation, numeric evaluation, and analytic solving.
// All expressions flowing through the interface are opaque Expr values
// created by the same engine.
type AlgebraEngine interface {
	// Number parses a decimal literal into an exact expression.
	Number(text string) (Expr, error)
	// NumberFromDecimal wraps an existing decimal without re-parsing.
	NumberFromDecimal(d *apd.Decimal) Expr
	// Symbol returns a free variable.
	Symbol(name string) Expr

	Add(a, b Expr) Expr
	Sub(a, b Expr) Expr
	Mul(a, b Expr) Expr
	Div(a, b Expr) Expr
	Neg(a Expr) Expr
	Pow(base, exp Expr) Expr
	// Call applies a named function (sin, cos, exp, ln, sqrt, ...).
	Call(name string, arg Expr) (Expr, error)

	// Simplify reduces the expression at the given working precision.
	Simplify(e Expr, prec uint32) Expr
	// Substitute replaces every occurrence of variable with value.
	Substitute(e Expr, variable string, value Expr) Expr
	// Diff returns the symbolic derivative, or false when the expression
	// contains a construct the engine cannot differentiate.
	Diff(e Expr, variable string) (Expr, bool)

	// EvalDecimal evaluates a closed expression to a decimal at the given
	// precision. lossy reports that a float-precision fallback was used for
	// some operation, so the result may carry fewer correct digits than
	// requested.
	EvalDecimal(e Expr, prec uint32) (d *apd.Decimal, lossy bool, err error)
	// EvalComplex evaluates a closed expression in complex128 arithmetic.
	EvalComplex(e Expr) (complex128, error)

	// SolveAnalytic attempts exact solving of residual == 0 for variable.
	// An empty solution list with a nil error means the engine has no
	// analytic path for this residual.
	SolveAnalytic(residual Expr, variable string, prec uint32) (solutions []Expr, exact bool, err error)
}

package calctypes

import "github.com/cockroachdb/apd/v3"

// StartingPoint is an optional numeric seed for the solver's numeric
// fallback. Value is kept as decimal text so the seed's precision survives
// into the working-precision iteration; a nonzero Imag routes the solve
// through the float-precision complex path. Unit, when set, fixes the
// dimension of the unknown.
type StartingPoint struct {
	Value string
	Imag  float64
	Unit  string
}

// IsComplex reports whether the seed has an imaginary component.
func (s StartingPoint) IsComplex() bool { return s.Imag != 0 }

// SolveRequest is an equation (lhs = rhs) with a set of free variables and an
// optional starting point. Variable may be empty, in which case the solver
// picks the first free variable in order of appearance.
type SolveRequest struct {
	LHS      *ExpressionNode
	RHS      *ExpressionNode
	Variable string
	Start    *StartingPoint
}

// SolveStatus is the top-level tag of a SolveOutcome.
type SolveStatus int

const (
	// StatusAnalytic means the backing engine produced verified exact
	// solutions without numeric iteration.
	StatusAnalytic SolveStatus = iota
	// StatusNumeric means the numeric fallback converged from the supplied
	// starting point.
	StatusNumeric
	// StatusTruth means the equation reduced to a truth value without free
	// variables; see SolveOutcome.Truth.
	StatusTruth
	// StatusNoConvergence means a starting point was tried and every attempt
	// ended in a non-converged terminal state.
	StatusNoConvergence
	// StatusUnsolvable means the analytic attempt failed and no starting
	// point was available for a numeric attempt.
	StatusUnsolvable
	// StatusCancelled means the caller cancelled an in-flight numeric solve.
	StatusCancelled
)

// String returns the status tag name.
func (s SolveStatus) String() string {
	switch s {
	case StatusAnalytic:
		return "AnalyticSolutions"
	case StatusNumeric:
		return "NumericSolution"
	case StatusTruth:
		return "Truth"
	case StatusNoConvergence:
		return "NoConvergence"
	case StatusUnsolvable:
		return "Unsolvable"
	case StatusCancelled:
		return "Cancelled"
	}
	return "unknown"
}

// TerminalState is the end state of one numeric root-finding attempt.
type TerminalState int

const (
	// TerminalConverged: the residual magnitude fell below the tolerance
	// derived from the working precision.
	TerminalConverged TerminalState = iota
	// TerminalMaxIterations: the iteration cap was reached first.
	TerminalMaxIterations
	// TerminalDiverged: the iterate left the trust region around the
	// starting point, or the residual grew for consecutive steps.
	TerminalDiverged
	// TerminalCancelled: the cancellation signal fired between iterations.
	TerminalCancelled
)

// String returns the terminal state name.
func (t TerminalState) String() string {
	switch t {
	case TerminalConverged:
		return "Converged"
	case TerminalMaxIterations:
		return "MaxIterationsExceeded"
	case TerminalDiverged:
		return "Diverged"
	case TerminalCancelled:
		return "Cancelled"
	}
	return "unknown"
}

// AttemptReport records one numeric attempt: its starting point and how it
// ended. Failed attempts are reported, never silently discarded, because a
// different starting point may still converge.
type AttemptReport struct {
	Start      StartingPoint
	Terminal   TerminalState
	Iterations int
}

// NumericSolution is a converged numeric root with its final residual
// magnitude and iteration count.
type NumericSolution struct {
	Value      Quantity
	Residual   *apd.Decimal
	Iterations int
}

// SolveOutcome is the tagged result of one solve call.
type SolveOutcome struct {
	Status    SolveStatus
	Variable  string
	Solutions []Quantity       // set when Status == StatusAnalytic
	Numeric   *NumericSolution // set when Status == StatusNumeric
	Truth     *bool            // set when Status == StatusTruth
	Attempts  []AttemptReport  // every numeric attempt, in order
	Hints     []Hint
}

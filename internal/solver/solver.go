// Package solver implements equation solving: the analytic path through the
// backing algebra engine with substitution verification, and the numeric
// Newton fallback that iterates at the working precision from a user-supplied
// starting point. Every numeric attempt ends in an explicit terminal state
// that is reported back, never silently discarded.
package solver

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"strconv"

	charmlog "github.com/charmbracelet/log"
	"github.com/cockroachdb/apd/v3"

	"unitcalc/internal/evaluator"
	"unitcalc/internal/hints"
	"unitcalc/internal/logger"
	"unitcalc/internal/precision"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

// DefaultMaxIterations caps one numeric attempt. Newton roughly doubles
// correct digits per step near a root, so a converging attempt finishes far
// below this; the cap exists for oscillating trajectories.
const DefaultMaxIterations = 200

// growthLimit is the number of consecutive residual increases after which an
// attempt is declared diverged.
const growthLimit = 3

// trustFactor sizes the trust region: an iterate farther than
// trustFactor*max(1, |x0|) from the starting point has left the basin the
// user pointed at.
const trustFactor = 5

// complexTolerance is the convergence tolerance for the float-precision
// complex path, which cannot reach the decimal working tolerance.
const complexTolerance = 1e-12

// Solver solves equations against a session context. Like the evaluator it
// is stateless between calls.
type Solver struct {
	engine        calctypes.AlgebraEngine
	ev            *evaluator.Evaluator
	units         *units.Registry
	ctx           calctypes.Context
	log           *charmlog.Logger
	maxIterations int
}

// New builds a solver sharing the evaluator's engine and unit registry.
func New(engine calctypes.AlgebraEngine, ev *evaluator.Evaluator, reg *units.Registry, ctx calctypes.Context) *Solver {
	return &Solver{
		engine:        engine,
		ev:            ev,
		units:         reg,
		ctx:           ctx,
		log:           logger.NewStyledLogger("Solver"),
		maxIterations: DefaultMaxIterations,
	}
}

// SetMaxIterations overrides the per-attempt iteration cap.
func (s *Solver) SetMaxIterations(n int) error {
	if n <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", n)
	}
	s.maxIterations = n
	return nil
}

// Solve runs the full solving pipeline on one equation: evaluate both sides
// symbolically, pick the unknown, then either iterate numerically from the
// supplied starting point or try the analytic path. goCtx cancellation is
// polled between numeric iterations.
func (s *Solver) Solve(goCtx context.Context, req calctypes.SolveRequest) (*calctypes.SolveOutcome, error) {
	root := &calctypes.ExpressionNode{
		Kind:     calctypes.NodeBinary,
		Op:       "=",
		Children: []*calctypes.ExpressionNode{req.LHS, req.RHS},
	}
	ledger, err := s.ev.DeriveLedger(root)
	if err != nil {
		return nil, err
	}
	col := hints.NewCollector(s.ctx)

	left, err := s.ev.EvalExpression(req.LHS, ledger, col)
	if err != nil {
		return nil, err
	}
	right, err := s.ev.EvalExpression(req.RHS, ledger, col)
	if err != nil {
		return nil, err
	}
	if left.Quantity == nil || right.Quantity == nil {
		return nil, fmt.Errorf("only scalar equations can be solved")
	}
	lhs, rhs := *left.Quantity, *right.Quantity

	free := freeVariables(lhs, rhs)
	variable, err := pickVariable(req.Variable, free)
	if err != nil {
		return nil, err
	}
	if variable == "" {
		return s.solveTruth(lhs, rhs, ledger, col)
	}
	s.log.Debug("solving equation", "variable", variable, "working", ledger.Working)

	varDim, err := solutionDimension(variable, lhs, rhs)
	if err != nil {
		return nil, err
	}

	residual := s.engine.Simplify(s.engine.Sub(lhs.Magnitude, rhs.Magnitude), ledger.Working)

	// An explicit starting point routes straight to the numeric path, even
	// when an analytic solution exists: the user is asking for the root near
	// that seed.
	if req.Start != nil {
		if len(free) > 1 {
			return nil, fmt.Errorf("numeric solving needs a single unknown, equation has %d free variables", len(free))
		}
		if req.Start.IsComplex() {
			return s.solveComplex(goCtx, residual, variable, varDim, *req.Start, ledger, col)
		}
		return s.solveNewton(goCtx, residual, variable, varDim, *req.Start, ledger, col)
	}

	if outcome := s.solveAnalytic(residual, variable, varDim, ledger, col); outcome != nil {
		return outcome, nil
	}
	return &calctypes.SolveOutcome{
		Status:   calctypes.StatusUnsolvable,
		Variable: variable,
		Hints:    col.Hints(),
	}, nil
}

// freeVariables returns the free variables of both sides in order of
// appearance, left side first. The imaginary unit is a closed value, not a
// variable.
func freeVariables(lhs, rhs calctypes.Quantity) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range []calctypes.Quantity{lhs, rhs} {
		for _, name := range q.Magnitude.FreeSymbols() {
			if name == "i" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func pickVariable(requested string, free []string) (string, error) {
	if requested == "" {
		if len(free) == 0 {
			return "", nil
		}
		return free[0], nil
	}
	for _, name := range free {
		if name == requested {
			return requested, nil
		}
	}
	return "", fmt.Errorf("variable %q does not occur in the equation", requested)
}

// solutionDimension decides the dimension the solutions carry. A free
// variable is dimensionless during evaluation, so either both sides already
// agree dimensionally, or the side holding the unknown is entirely
// dimensionless and the other side fixes the unknown's dimension.
func solutionDimension(variable string, lhs, rhs calctypes.Quantity) (calctypes.Dimension, error) {
	if lhs.Dim == rhs.Dim {
		return calctypes.Dimensionless, nil
	}
	lIn := containsSymbol(lhs.Magnitude, variable)
	rIn := containsSymbol(rhs.Magnitude, variable)
	if lIn && !rIn && lhs.Dim.IsDimensionless() {
		return rhs.Dim, nil
	}
	if rIn && !lIn && rhs.Dim.IsDimensionless() {
		return lhs.Dim, nil
	}
	return calctypes.Dimensionless, &calctypes.DimensionError{Op: "=", Left: lhs.Dim, Right: rhs.Dim}
}

func containsSymbol(e calctypes.Expr, name string) bool {
	for _, s := range e.FreeSymbols() {
		if s == name {
			return true
		}
	}
	return false
}

// solveTruth handles an equation with no free variables: it reduces to a
// truth value within the evaluation tolerance.
func (s *Solver) solveTruth(lhs, rhs calctypes.Quantity, ledger *precision.Ledger, col *hints.Collector) (*calctypes.SolveOutcome, error) {
	if _, err := units.CheckAdditive("=", lhs, rhs, col); err != nil {
		return nil, err
	}
	diff := s.engine.Sub(lhs.Magnitude, rhs.Magnitude)
	d, _, err := s.engine.EvalDecimal(diff, ledger.Working)
	if err != nil {
		return nil, err
	}
	d.Abs(d)
	truth := d.Cmp(ledger.Tolerance()) <= 0
	return &calctypes.SolveOutcome{
		Status: calctypes.StatusTruth,
		Truth:  &truth,
		Hints:  col.Hints(),
	}, nil
}

// solveAnalytic asks the engine for exact solutions and verifies every
// candidate by substituting it back into the residual. Candidates that do not
// verify are dropped with a hint; nil means no analytic path survived.
func (s *Solver) solveAnalytic(residual calctypes.Expr, variable string, varDim calctypes.Dimension, ledger *precision.Ledger, col *hints.Collector) *calctypes.SolveOutcome {
	candidates, _, err := s.engine.SolveAnalytic(residual, variable, ledger.Working)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			s.log.Debug("analytic solve failed", "variable", variable, "error", err)
		}
		return nil
	}

	var solutions []calctypes.Quantity
	for _, sol := range candidates {
		if !s.verifySolution(residual, variable, sol, ledger) {
			col.AddSuppressible(
				calctypes.HintDroppedSolution,
				"dropped-solution",
				fmt.Sprintf("candidate %s = %s did not satisfy the equation and was dropped", variable, sol.String()),
			)
			continue
		}
		solutions = append(solutions, calctypes.Quantity{
			Magnitude: sol,
			Dim:       varDim,
			Precision: ledger.Requested,
		})
	}
	if len(solutions) == 0 {
		return nil
	}
	return &calctypes.SolveOutcome{
		Status:    calctypes.StatusAnalytic,
		Variable:  variable,
		Solutions: solutions,
		Hints:     col.Hints(),
	}
}

// verifySolution substitutes a candidate into the residual. Symbolic
// coefficients must cancel exactly; closed residuals must fall below the
// working tolerance.
func (s *Solver) verifySolution(residual calctypes.Expr, variable string, sol calctypes.Expr, ledger *precision.Ledger) bool {
	sub := s.engine.Simplify(s.engine.Substitute(residual, variable, sol), ledger.Working)
	for _, name := range sub.FreeSymbols() {
		if name != "i" {
			return false
		}
	}
	d, _, err := s.engine.EvalDecimal(sub, ledger.Working)
	if err != nil {
		z, zerr := s.engine.EvalComplex(sub)
		if zerr != nil {
			return false
		}
		return cmplx.Abs(z) <= complexTolerance
	}
	d.Abs(d)
	return d.Cmp(ledger.Tolerance()) <= 0
}

// solveNewton runs one real-valued Newton attempt at the working precision.
// Without a symbolic derivative it degrades to the secant method.
func (s *Solver) solveNewton(goCtx context.Context, residual calctypes.Expr, variable string, varDim calctypes.Dimension, start calctypes.StartingPoint, ledger *precision.Ledger, col *hints.Collector) (*calctypes.SolveOutcome, error) {
	x0, varDim, err := s.seedValue(start, varDim, ledger, col)
	if err != nil {
		return nil, err
	}

	numCtx := ledger.NumContext()
	tol := ledger.Tolerance()
	radius := trustRadius(numCtx, x0)

	deriv, haveDeriv := s.engine.Diff(residual, variable)
	if haveDeriv {
		deriv = s.engine.Simplify(deriv, ledger.Working)
	}

	report := calctypes.AttemptReport{Start: start}
	x := new(apd.Decimal).Set(x0)
	var xPrev, fPrev *apd.Decimal
	var prevAbs, lastAbs *apd.Decimal
	growth := 0
	lossy := false
	terminal := calctypes.TerminalMaxIterations

	for it := 1; it <= s.maxIterations; it++ {
		if goCtx.Err() != nil {
			terminal = calctypes.TerminalCancelled
			break
		}
		report.Iterations = it

		fx, l, ferr := s.evalAt(residual, variable, x, ledger)
		if ferr != nil {
			// The iterate left the domain of some function in the residual.
			terminal = calctypes.TerminalDiverged
			break
		}
		lossy = lossy || l

		absFx := new(apd.Decimal).Abs(fx)
		lastAbs = absFx
		if absFx.Cmp(tol) <= 0 {
			terminal = calctypes.TerminalConverged
			break
		}
		if prevAbs != nil && absFx.Cmp(prevAbs) > 0 {
			growth++
			if growth >= growthLimit {
				terminal = calctypes.TerminalDiverged
				break
			}
		} else {
			growth = 0
		}
		prevAbs = absFx

		step, serr := s.nextStep(numCtx, residual, variable, deriv, haveDeriv, x, fx, xPrev, fPrev, ledger)
		if serr != nil {
			terminal = calctypes.TerminalDiverged
			break
		}
		xPrev = new(apd.Decimal).Set(x)
		fPrev = fx
		if _, err := numCtx.Sub(x, x, step); err != nil {
			return nil, err
		}

		dist := new(apd.Decimal)
		if _, err := numCtx.Sub(dist, x, x0); err != nil {
			return nil, err
		}
		dist.Abs(dist)
		if dist.Cmp(radius) > 0 {
			report.Iterations = it
			terminal = calctypes.TerminalDiverged
			break
		}
	}

	report.Terminal = terminal
	return s.numericOutcome(terminal, variable, varDim, s.engine.NumberFromDecimal(x), lastAbs, report, start, lossy, ledger, col)
}

// nextStep computes the Newton step f/f', or a secant step when no symbolic
// derivative exists. The first secant step perturbs the iterate to bootstrap
// the difference quotient.
func (s *Solver) nextStep(numCtx *apd.Context, residual calctypes.Expr, variable string, deriv calctypes.Expr, haveDeriv bool, x, fx, xPrev, fPrev *apd.Decimal, ledger *precision.Ledger) (*apd.Decimal, error) {
	slope := new(apd.Decimal)
	if haveDeriv {
		dfx, _, err := s.evalAt(deriv, variable, x, ledger)
		if err != nil {
			return nil, err
		}
		slope.Set(dfx)
	} else if xPrev == nil {
		// Bootstrap the secant with a small forward difference.
		h := new(apd.Decimal).Abs(x)
		if h.Cmp(apd.New(1, 0)) < 0 {
			h.Set(apd.New(1, 0))
		}
		if _, err := numCtx.Mul(h, h, apd.New(1, -4)); err != nil {
			return nil, err
		}
		xh := new(apd.Decimal)
		if _, err := numCtx.Add(xh, x, h); err != nil {
			return nil, err
		}
		fh, _, err := s.evalAt(residual, variable, xh, ledger)
		if err != nil {
			return nil, err
		}
		if _, err := numCtx.Sub(slope, fh, fx); err != nil {
			return nil, err
		}
		if _, err := numCtx.Quo(slope, slope, h); err != nil {
			return nil, err
		}
	} else {
		df := new(apd.Decimal)
		dx := new(apd.Decimal)
		if _, err := numCtx.Sub(df, fx, fPrev); err != nil {
			return nil, err
		}
		if _, err := numCtx.Sub(dx, x, xPrev); err != nil {
			return nil, err
		}
		if df.IsZero() {
			return nil, fmt.Errorf("flat secant")
		}
		if _, err := numCtx.Quo(slope, df, dx); err != nil {
			return nil, err
		}
	}
	if slope.IsZero() {
		return nil, fmt.Errorf("zero derivative at iterate")
	}
	step := new(apd.Decimal)
	if _, err := numCtx.Quo(step, fx, slope); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *Solver) evalAt(e calctypes.Expr, variable string, x *apd.Decimal, ledger *precision.Ledger) (*apd.Decimal, bool, error) {
	sub := s.engine.Substitute(e, variable, s.engine.NumberFromDecimal(x))
	return s.engine.EvalDecimal(sub, ledger.Working)
}

// seedValue parses the starting point at working precision and applies its
// unit, which may fix the dimension of the unknown.
func (s *Solver) seedValue(start calctypes.StartingPoint, varDim calctypes.Dimension, ledger *precision.Ledger, col *hints.Collector) (*apd.Decimal, calctypes.Dimension, error) {
	x0, _, err := apd.NewFromString(start.Value)
	if err != nil {
		return nil, varDim, fmt.Errorf("bad starting point %q: %w", start.Value, err)
	}
	if start.Unit == "" {
		return x0, varDim, nil
	}
	def, err := s.units.Resolve(start.Unit, col)
	if err != nil {
		return nil, varDim, err
	}
	if varDim.IsDimensionless() {
		varDim = def.Dim
	} else if def.Dim != varDim {
		return nil, varDim, &calctypes.IncompatibleDimensionsError{
			From: varDim, To: def.Dim, TargetUnit: def.Name,
		}
	}
	base, err := s.units.ToBase(ledger.NumContext(), def, x0)
	if err != nil {
		return nil, varDim, err
	}
	return base, varDim, nil
}

func trustRadius(numCtx *apd.Context, x0 *apd.Decimal) *apd.Decimal {
	r := new(apd.Decimal).Abs(x0)
	one := apd.New(1, 0)
	if r.Cmp(one) < 0 {
		r.Set(one)
	}
	// Ignore the condition flags; the product of two in-range decimals at
	// working precision cannot overflow.
	numCtx.Mul(r, r, apd.New(trustFactor, 0)) //nolint:errcheck
	return r
}

// numericOutcome maps a terminal state to the outcome tag and attaches the
// attempt report and hints.
func (s *Solver) numericOutcome(terminal calctypes.TerminalState, variable string, varDim calctypes.Dimension, mag calctypes.Expr, lastAbs *apd.Decimal, report calctypes.AttemptReport, start calctypes.StartingPoint, lossy bool, ledger *precision.Ledger, col *hints.Collector) (*calctypes.SolveOutcome, error) {
	if lossy {
		s.notePrecisionLoss(ledger, col, "the residual was evaluated through a float-precision fallback")
	}

	outcome := &calctypes.SolveOutcome{
		Variable: variable,
		Attempts: []calctypes.AttemptReport{report},
	}
	switch terminal {
	case calctypes.TerminalConverged:
		col.AddSuppressible(
			calctypes.HintNumericSolution,
			"numeric-solution",
			fmt.Sprintf("numeric root found near the starting point %s; the equation may have other roots", startLabel(start)),
		)
		outcome.Status = calctypes.StatusNumeric
		outcome.Numeric = &calctypes.NumericSolution{
			Value: calctypes.Quantity{
				Magnitude: mag,
				Dim:       varDim,
				Precision: ledger.Requested,
			},
			Residual:   lastAbs,
			Iterations: report.Iterations,
		}
	case calctypes.TerminalCancelled:
		outcome.Status = calctypes.StatusCancelled
	default:
		outcome.Status = calctypes.StatusNoConvergence
	}
	outcome.Hints = col.Hints()
	return outcome, nil
}

func startLabel(start calctypes.StartingPoint) string {
	label := start.Value
	if start.Imag != 0 {
		label = fmt.Sprintf("%s%+gi", start.Value, start.Imag)
	}
	if start.Unit != "" {
		label += " " + start.Unit
	}
	return label
}

func (s *Solver) notePrecisionLoss(ledger *precision.Ledger, col *hints.Collector, reason string) {
	if ledger.Working <= precision.Float64Digits {
		return
	}
	col.AddSuppressible(
		calctypes.HintPrecisionLoss,
		"precision-loss",
		fmt.Sprintf("%s; fewer than %d digits of the result are reliable", reason, ledger.Working),
	)
}

// solveComplex runs the numeric attempt in complex128 arithmetic. Seeds with
// an imaginary component cannot iterate in decimal, so this path trades
// precision for reach and always notes the loss.
func (s *Solver) solveComplex(goCtx context.Context, residual calctypes.Expr, variable string, varDim calctypes.Dimension, start calctypes.StartingPoint, ledger *precision.Ledger, col *hints.Collector) (*calctypes.SolveOutcome, error) {
	if start.Unit != "" {
		return nil, fmt.Errorf("a complex starting point must be dimensionless")
	}
	re, err := strconv.ParseFloat(start.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("bad starting point %q: %w", start.Value, err)
	}
	z0 := complex(re, start.Imag)
	radius := trustFactor * math.Max(1, cmplx.Abs(z0))

	deriv, haveDeriv := s.engine.Diff(residual, variable)
	if haveDeriv {
		deriv = s.engine.Simplify(deriv, ledger.Working)
	}

	report := calctypes.AttemptReport{Start: start}
	z := z0
	var zPrev, fPrev complex128
	havePrev := false
	prevAbs := math.Inf(1)
	growth := 0
	lastAbs := math.Inf(1)
	terminal := calctypes.TerminalMaxIterations

	for it := 1; it <= s.maxIterations; it++ {
		if goCtx.Err() != nil {
			terminal = calctypes.TerminalCancelled
			break
		}
		report.Iterations = it

		fz, ferr := s.evalComplexAt(residual, variable, z)
		if ferr != nil {
			terminal = calctypes.TerminalDiverged
			break
		}
		absFz := cmplx.Abs(fz)
		lastAbs = absFz
		if math.IsInf(absFz, 0) || math.IsNaN(absFz) {
			terminal = calctypes.TerminalDiverged
			break
		}
		if absFz <= complexTolerance {
			terminal = calctypes.TerminalConverged
			break
		}
		if absFz > prevAbs {
			growth++
			if growth >= growthLimit {
				terminal = calctypes.TerminalDiverged
				break
			}
		} else {
			growth = 0
		}
		prevAbs = absFz

		var slope complex128
		switch {
		case haveDeriv:
			slope, ferr = s.evalComplexAt(deriv, variable, z)
			if ferr != nil {
				terminal = calctypes.TerminalDiverged
			}
		case !havePrev:
			h := complex(1e-6*math.Max(1, cmplx.Abs(z)), 0)
			fh, herr := s.evalComplexAt(residual, variable, z+h)
			if herr != nil {
				terminal = calctypes.TerminalDiverged
			} else {
				slope = (fh - fz) / h
			}
		default:
			slope = (fz - fPrev) / (z - zPrev)
		}
		if terminal == calctypes.TerminalDiverged || slope == 0 {
			terminal = calctypes.TerminalDiverged
			break
		}

		zPrev, fPrev, havePrev = z, fz, true
		z -= fz / slope
		if cmplx.Abs(z-z0) > radius {
			terminal = calctypes.TerminalDiverged
			break
		}
	}

	report.Terminal = terminal
	if terminal == calctypes.TerminalConverged {
		s.notePrecisionLoss(ledger, col, "the complex numeric path iterates in float precision")
	}

	mag, err := s.complexExpr(z)
	if err != nil {
		return nil, err
	}
	residualDec := new(apd.Decimal)
	if !math.IsInf(lastAbs, 0) {
		if _, err := residualDec.SetFloat64(lastAbs); err != nil {
			return nil, err
		}
	}
	return s.numericOutcome(terminal, variable, varDim, mag, residualDec, report, start, false, ledger, col)
}

func (s *Solver) evalComplexAt(e calctypes.Expr, variable string, z complex128) (complex128, error) {
	value, err := s.complexExpr(z)
	if err != nil {
		return 0, err
	}
	return s.engine.EvalComplex(s.engine.Substitute(e, variable, value))
}

// complexExpr rebuilds a complex128 as re + im*i over the engine.
func (s *Solver) complexExpr(z complex128) (calctypes.Expr, error) {
	re := new(apd.Decimal)
	if _, err := re.SetFloat64(real(z)); err != nil {
		return nil, err
	}
	if imag(z) == 0 {
		return s.engine.NumberFromDecimal(re), nil
	}
	im := new(apd.Decimal)
	if _, err := im.SetFloat64(imag(z)); err != nil {
		return nil, err
	}
	return s.engine.Add(
		s.engine.NumberFromDecimal(re),
		s.engine.Mul(s.engine.NumberFromDecimal(im), s.engine.Symbol("i")),
	), nil
}

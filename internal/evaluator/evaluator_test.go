package evaluator

import (
	"math"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/internal/algebra"
	"unitcalc/internal/context"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	reg, err := units.Load()
	require.NoError(t, err)
	return New(algebra.New(), reg, context.New())
}

func evalOK(t *testing.T, ev *Evaluator, input string) *Result {
	t.Helper()
	res, err := ev.Evaluate(input)
	require.NoError(t, err, "input %q", input)
	return res
}

func magnitude(t *testing.T, ev *Evaluator, res *Result) *apd.Decimal {
	t.Helper()
	require.NotNil(t, res.Value.Quantity)
	d, _, err := ev.engine.EvalDecimal(res.Value.Quantity.Magnitude, res.Ledger.Working)
	require.NoError(t, err)
	return d
}

func wantDec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestEvaluate_UnitCancellation(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "12 km / 4 m")

	q := res.Value.Quantity
	require.NotNil(t, q)
	assert.True(t, q.Dim.IsDimensionless())
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "3000")))
}

func TestEvaluate_WorkingPrecisionFromLiteralsAndRequest(t *testing.T) {
	ev := newEvaluator(t)
	// Output precision 8, guard 10, widest literal 3 digits: W = 8 + 10.
	res := evalOK(t, ev, "1.50 + 2")
	assert.Equal(t, uint32(18), res.Ledger.Working)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "3.5")))
}

func TestEvaluate_ResultIndependentOfGrouping(t *testing.T) {
	ev := newEvaluator(t)
	a := magnitude(t, ev, evalOK(t, ev, "(1/3) * 3"))
	b := magnitude(t, ev, evalOK(t, ev, "3 * (1/3)"))
	assert.Equal(t, a.Text('E'), b.Text('E'))
}

func TestEvaluate_Arithmetic(t *testing.T) {
	ev := newEvaluator(t)
	for input, want := range map[string]string{
		"2 + 3 * 4": "14",
		"2^3^2":     "512",
		"7 // 2":    "3",
		"-7 // 2":   "-4",
		"5!":        "120",
		"sin(0)":    "0",
	} {
		res := evalOK(t, ev, input)
		assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, want)), "input %q", input)
	}
}

func TestEvaluate_SqrtHalvesDimensions(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "sqrt(4 m^2)")
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 1}, res.Value.Quantity.Dim)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "2")))

	// sqrt of an odd length exponent has no dimensional meaning.
	_, err := ev.Evaluate("sqrt(4 m)")
	require.Error(t, err)
}

func TestEvaluate_AbsoluteTemperatureApplication(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "0 degC")

	q := res.Value.Quantity
	assert.Equal(t, calctypes.TempAbsolute, q.Temperature)
	assert.Equal(t, calctypes.Dimension{calctypes.DimTemperature: 1}, q.Dim)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "273.15")))
}

func TestEvaluate_TemperatureRules(t *testing.T) {
	ev := newEvaluator(t)

	res := evalOK(t, ev, "0 degC + 5 delta_degC")
	assert.Equal(t, calctypes.TempAbsolute, res.Value.Quantity.Temperature)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "278.15")))
	require.NotEmpty(t, res.Hints)
	assert.Equal(t, calctypes.HintTemperatureOffset, res.Hints[0].Kind)

	res = evalOK(t, ev, "20 degC - 5 degC")
	assert.Equal(t, calctypes.TempDelta, res.Value.Quantity.Temperature)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "15")))

	// Adding two absolute temperatures is rejected, but the result still
	// carries the hint explaining how to fix the expression.
	res, err := ev.Evaluate("0 degC + 5 degC")
	var terr *calctypes.TemperatureOffsetError
	require.ErrorAs(t, err, &terr)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Hints)
	assert.Equal(t, calctypes.HintTemperatureOffset, res.Hints[0].Kind)
}

func TestEvaluate_DimensionMismatch(t *testing.T) {
	ev := newEvaluator(t)
	_, err := ev.Evaluate("1 m + 1 s")
	var derr *calctypes.DimensionError
	require.ErrorAs(t, err, &derr)

	var eerr *calctypes.EvalError
	require.ErrorAs(t, err, &eerr, "dimension errors carry the offending subtree")
}

func TestEvaluate_AmbiguousUnitSyntax(t *testing.T) {
	ev := newEvaluator(t)
	// "m s" concatenates to "ms", which is itself a unit token.
	_, err := ev.Evaluate("5 m s")
	var aerr *calctypes.AmbiguousUnitSyntaxError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "ms", aerr.Combined)

	// An explicit operator disambiguates.
	res := evalOK(t, ev, "5 m * s")
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 1, calctypes.DimTime: 1}, res.Value.Quantity.Dim)
}

func TestEvaluate_AmbiguousTokenDefaultsToPlanck(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "1 h")

	q := res.Value.Quantity
	assert.Equal(t, calctypes.Dimension{
		calctypes.DimMass: 1, calctypes.DimLength: 2, calctypes.DimTime: -1,
	}, q.Dim)
	require.NotEmpty(t, res.Hints)
	assert.Equal(t, calctypes.HintAmbiguousUnit, res.Hints[0].Kind)
}

func TestEvaluate_Conversion(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "12 m to km")

	require.NotNil(t, res.Display)
	assert.Equal(t, "unit", res.Display.Mode)
	assert.Equal(t, "km", res.Display.Compound.Label)

	// The value itself stays in base units; rendering applies the target.
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "12")))
	converted, err := res.Display.Compound.FromBase(ev.units, res.Ledger.NumContext(), magnitude(t, ev, res))
	require.NoError(t, err)
	assert.Equal(t, 0, converted.Cmp(wantDec(t, "0.012")))
}

func TestEvaluate_ConversionIncompatible(t *testing.T) {
	ev := newEvaluator(t)
	_, err := ev.Evaluate("12 m to s")
	var ierr *calctypes.IncompatibleDimensionsError
	require.ErrorAs(t, err, &ierr)
}

func TestEvaluate_ConversionDirectives(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "12000 m to best")
	require.NotNil(t, res.Display)
	assert.Equal(t, "best", res.Display.Mode)

	res = evalOK(t, ev, "1 km to base")
	require.NotNil(t, res.Display)
	assert.Equal(t, "base", res.Display.Mode)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "1000")))
}

func TestEvaluate_SymbolicResult(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "x + x + 1")

	q := res.Value.Quantity
	assert.True(t, q.IsSymbolic())
	assert.Equal(t, []string{"x"}, q.Magnitude.FreeSymbols())
	assert.Contains(t, q.Magnitude.String(), "2")
}

func TestEvaluate_ClosedEqualityIsTruthValue(t *testing.T) {
	ev := newEvaluator(t)

	res := evalOK(t, ev, "2 = 2")
	require.NotNil(t, res.Value.Bool)
	assert.True(t, *res.Value.Bool)

	res = evalOK(t, ev, "1 = 2")
	require.NotNil(t, res.Value.Bool)
	assert.False(t, *res.Value.Bool)

	// Unit-aware: both sides normalize to base units first.
	res = evalOK(t, ev, "1 m = 100 cm")
	require.NotNil(t, res.Value.Bool)
	assert.True(t, *res.Value.Bool)
}

func TestEvaluate_OpenEquationGoesToSolver(t *testing.T) {
	ev := newEvaluator(t)
	_, err := ev.Evaluate("x + 1 = 2")
	var oerr *OpenEquationError
	require.ErrorAs(t, err, &oerr)
}

func TestEvaluate_MatrixArithmetic(t *testing.T) {
	ev := newEvaluator(t)

	res := evalOK(t, ev, "[1, 2] + [3, 4]")
	m := res.Value.Matrix
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Rows)
	assert.Equal(t, 2, m.Cols)

	res = evalOK(t, ev, "[1, 2; 3, 4] * [1, 0; 0, 1]")
	m = res.Value.Matrix
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 2, m.Cols)
}

func TestEvaluate_RowVectorAutoTranspose(t *testing.T) {
	ev := newEvaluator(t)
	// Two juxtaposed row-vector literals multiply as column times row.
	res := evalOK(t, ev, "[1, 2] * [3, 4]")

	m := res.Value.Matrix
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 2, m.Cols)

	d, _, err := ev.engine.EvalDecimal(m.At(1, 1).Magnitude, res.Ledger.Working)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Cmp(wantDec(t, "8")))
}

func TestEvaluate_MatrixShapeErrors(t *testing.T) {
	ev := newEvaluator(t)

	_, err := ev.Evaluate("[1, 2; 3]")
	var verr *calctypes.VariableLengthRowsError
	require.ErrorAs(t, err, &verr)

	_, err = ev.Evaluate("[1, 2] + [1, 2, 3]")
	var serr *calctypes.ShapeError
	require.ErrorAs(t, err, &serr)
}

func TestEvaluate_LossyFallbackHintsAboveFloatPrecision(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "atan(1)")

	assert.True(t, res.Lossy)
	found := false
	for _, h := range res.Hints {
		if h.Kind == calctypes.HintPrecisionLoss {
			found = true
		}
	}
	assert.True(t, found, "expected a precision-loss hint, got %v", res.Hints)
}

func TestEvaluate_ComplexArithmetic(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "(2 + 3 * i) * (2 - 3 * i)")

	q := res.Value.Quantity
	require.NotNil(t, q)
	// (2+3i)(2-3i) = 13, purely real.
	d, _, err := ev.engine.EvalDecimal(q.Magnitude, res.Ledger.Working)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Cmp(wantDec(t, "13")))
	assert.True(t, res.Lossy)
}

func TestEvaluate_Atan2(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "atan2(1, 1)")

	assert.True(t, res.Value.Quantity.Dim.IsDimensionless())
	f, err := magnitude(t, ev, res).Float64()
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4, f, 1e-15)
	assert.True(t, res.Lossy)
}

func TestEvaluate_PhysicalConstants(t *testing.T) {
	ev := newEvaluator(t)
	res := evalOK(t, ev, "c")
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 1, calctypes.DimTime: -1}, res.Value.Quantity.Dim)
	assert.Equal(t, 0, magnitude(t, ev, res).Cmp(wantDec(t, "299792458")))

	// Energy of a 500 nm photon: h*c/lambda, roughly 3.97e-19 J.
	res = evalOK(t, ev, "h * c / (500 nm)")
	assert.Equal(t, calctypes.Dimension{
		calctypes.DimMass: 1, calctypes.DimLength: 2, calctypes.DimTime: -2,
	}, res.Value.Quantity.Dim)
}

func TestEvaluate_GeometryHelpers(t *testing.T) {
	ev := newEvaluator(t)

	res := evalOK(t, ev, "circle_area(2 m)")
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 2}, res.Value.Quantity.Dim)
	f, err := magnitude(t, ev, res).Float64()
	require.NoError(t, err)
	assert.InDelta(t, 12.566370614359172, f, 1e-12)

	res = evalOK(t, ev, "sphere_volume(1 m)")
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 3}, res.Value.Quantity.Dim)
	f, err = magnitude(t, ev, res).Float64()
	require.NoError(t, err)
	assert.InDelta(t, 4.1887902047863905, f, 1e-12)
}

func TestEvaluate_UnknownFunction(t *testing.T) {
	ev := newEvaluator(t)
	_, err := ev.Evaluate("frobnicate(1)")
	var uerr *calctypes.UnknownFunctionError
	require.ErrorAs(t, err, &uerr)
}

package algebra

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/pkg/calctypes"
)

func num(t *testing.T, en *Engine, text string) calctypes.Expr {
	t.Helper()
	e, err := en.Number(text)
	require.NoError(t, err)
	return e
}

func evalAt(t *testing.T, en *Engine, e calctypes.Expr, prec uint32) *apd.Decimal {
	t.Helper()
	d, _, err := en.EvalDecimal(e, prec)
	require.NoError(t, err)
	return d
}

func assertClose(t *testing.T, got *apd.Decimal, want string, tol string) {
	t.Helper()
	w, _, err := apd.NewFromString(want)
	require.NoError(t, err)
	tolerance, _, err := apd.NewFromString(tol)
	require.NoError(t, err)
	diff := new(apd.Decimal)
	_, err = apd.BaseContext.WithPrecision(150).Sub(diff, got, w)
	require.NoError(t, err)
	diff.Abs(diff)
	assert.True(t, diff.Cmp(tolerance) < 0, "got %s, want %s within %s", got.Text('G'), want, tol)
}

func TestNumber_ExactParse(t *testing.T) {
	en := New()
	e := num(t, en, "1.50")
	assert.Equal(t, "1.50", evalAt(t, en, e, 20).Text('f'))

	_, err := en.Number("not-a-number")
	require.Error(t, err)
}

func TestSimplify_CollectsLikeTerms(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// 2x + 3x -> 5x
	e := en.Add(en.Mul(num(t, en, "2"), x), en.Mul(num(t, en, "3"), x))
	s := en.Simplify(e, 20)
	assert.Equal(t, "(5 * x)", s.String())

	// x + x - 2x -> 0
	e = en.Sub(en.Add(x, x), en.Mul(num(t, en, "2"), x))
	s = en.Simplify(e, 20)
	assert.Equal(t, "0", s.String())
}

func TestSimplify_CollectsPowers(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// x * x^2 -> x^3
	e := en.Mul(x, en.Pow(x, num(t, en, "2")))
	assert.Equal(t, "(x^3)", en.Simplify(e, 20).String())

	// x / x -> 1
	e = en.Div(x, x)
	assert.Equal(t, "1", en.Simplify(e, 20).String())
}

func TestSimplify_NumericFolding(t *testing.T) {
	en := New()
	e := en.Pow(num(t, en, "2"), num(t, en, "10"))
	assert.Equal(t, "1024", en.Simplify(e, 20).String())

	e = en.Mul(num(t, en, "0"), en.Symbol("x"))
	assert.Equal(t, "0", en.Simplify(e, 20).String())

	e = en.Pow(en.Symbol("x"), num(t, en, "1"))
	assert.Equal(t, "x", en.Simplify(e, 20).String())
}

func TestSimplify_FractionalPowersStaySymbolic(t *testing.T) {
	en := New()
	e := en.Simplify(en.Pow(num(t, en, "2"), num(t, en, "0.5")), 20)
	// sqrt(2) must not be folded early; it evaluates at whatever precision
	// the final numeric step requests.
	assert.Contains(t, e.String(), "^")

	got := evalAt(t, en, e, 50)
	assertClose(t, got, "1.41421356237309504880168872420969807856967187537694", "1e-45")
}

func TestFreeSymbols_FirstAppearanceOrder(t *testing.T) {
	en := New()
	b, a := en.Symbol("b"), en.Symbol("a")
	e := en.Add(en.Mul(b, a), en.Add(a, en.Symbol("c")))
	assert.Equal(t, []string{"b", "a", "c"}, e.FreeSymbols())
}

func TestDiff_Polynomial(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// d/dx (x^2 + 3x) = 2x + 3
	e := en.Add(en.Pow(x, num(t, en, "2")), en.Mul(num(t, en, "3"), x))
	d, ok := en.Diff(e, "x")
	require.True(t, ok)

	at5 := en.Substitute(d, "x", num(t, en, "5"))
	assert.Equal(t, "13", evalAt(t, en, at5, 20).Text('G'))
}

func TestDiff_ChainRule(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// d/dx sin(x^2) = 2x cos(x^2); at x=0 that is 0.
	inner := en.Pow(x, num(t, en, "2"))
	e, err := en.Call("sin", inner)
	require.NoError(t, err)
	d, ok := en.Diff(e, "x")
	require.True(t, ok)

	at0 := en.Simplify(en.Substitute(d, "x", num(t, en, "0")), 20)
	assert.Equal(t, "0", at0.String())
}

func TestDiff_ExpIsItsOwnDerivative(t *testing.T) {
	en := New()
	e, err := en.Call("exp", en.Symbol("x"))
	require.NoError(t, err)
	d, ok := en.Diff(e, "x")
	require.True(t, ok)

	at1 := en.Substitute(d, "x", num(t, en, "1"))
	assertClose(t, evalAt(t, en, at1, 30), "2.71828182845904523536028747135", "1e-27")
}

func TestDiff_UnsupportedFunction(t *testing.T) {
	en := New()
	e, err := en.Call("factorial", en.Symbol("x"))
	require.NoError(t, err)
	_, ok := en.Diff(e, "x")
	assert.False(t, ok)
}

func TestEvalDecimal_TrigAtHighPrecision(t *testing.T) {
	en := New()
	e, err := en.Call("sin", num(t, en, "1"))
	require.NoError(t, err)
	got, lossy, err := en.EvalDecimal(e, 40)
	require.NoError(t, err)
	assert.False(t, lossy)
	assertClose(t, got, "0.8414709848078965066525023216302989996226", "1e-37")
}

func TestEvalDecimal_SinNearPi(t *testing.T) {
	en := New()
	pi, err := en.Number(PiString)
	require.NoError(t, err)
	e, err := en.Call("sin", pi)
	require.NoError(t, err)
	got := evalAt(t, en, e, 30)
	assertClose(t, got, "0", "1e-28")
}

func TestEvalDecimal_LargeArgumentRangeReduction(t *testing.T) {
	en := New()
	// cos(1000) = 0.5623790762907029...; naive summation without widened
	// reduction precision gets this badly wrong.
	e, err := en.Call("cos", num(t, en, "1000"))
	require.NoError(t, err)
	got := evalAt(t, en, e, 25)
	assertClose(t, got, "0.5623790762907029", "1e-13")
}

func TestEvalDecimal_InverseTrigIsLossy(t *testing.T) {
	en := New()
	e, err := en.Call("atan", num(t, en, "1"))
	require.NoError(t, err)
	got, lossy, err := en.EvalDecimal(e, 30)
	require.NoError(t, err)
	assert.True(t, lossy)
	assertClose(t, got, "0.785398163397448", "1e-13")
}

func TestEvalDecimal_Factorial(t *testing.T) {
	en := New()
	e, err := en.Call("factorial", num(t, en, "10"))
	require.NoError(t, err)
	assert.Equal(t, "3628800", evalAt(t, en, e, 20).Text('G'))

	e, err = en.Call("factorial", num(t, en, "2.5"))
	require.NoError(t, err)
	_, _, err = en.EvalDecimal(e, 20)
	var ferr *NonIntegerFactorialError
	require.ErrorAs(t, err, &ferr)
}

func TestEvalDecimal_FreeSymbol(t *testing.T) {
	en := New()
	_, _, err := en.EvalDecimal(en.Symbol("x"), 20)
	var serr *FreeSymbolError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "x", serr.Name)
}

func TestEvalComplex_EulerIdentity(t *testing.T) {
	en := New()
	// exp(i*pi) = -1
	arg := en.Mul(en.Symbol("i"), num(t, en, "3.141592653589793"))
	e, err := en.Call("exp", arg)
	require.NoError(t, err)
	v, err := en.EvalComplex(e)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, real(v), 1e-12)
	assert.InDelta(t, 0.0, imag(v), 1e-12)
}

func TestCall_UnknownFunction(t *testing.T) {
	en := New()
	_, err := en.Call("frobnicate", en.Symbol("x"))
	var uerr *calctypes.UnknownFunctionError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "frobnicate", uerr.Name)
}

func TestSolveAnalytic_Linear(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// 2x + 6 = 0 -> x = -3
	residual := en.Add(en.Mul(num(t, en, "2"), x), num(t, en, "6"))
	sols, exact, err := en.SolveAnalytic(residual, "x", 20)
	require.NoError(t, err)
	require.Len(t, sols, 1)
	assert.True(t, exact)
	assert.Equal(t, "-3", evalAt(t, en, sols[0], 20).Text('G'))
}

func TestSolveAnalytic_LinearSymbolicCoefficients(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// a*x + b = 0 -> x = -b/a, symbolically.
	residual := en.Add(en.Mul(en.Symbol("a"), x), en.Symbol("b"))
	sols, exact, err := en.SolveAnalytic(residual, "x", 20)
	require.NoError(t, err)
	require.Len(t, sols, 1)
	assert.True(t, exact)
	assert.ElementsMatch(t, []string{"a", "b"}, sols[0].FreeSymbols())

	// Substituting the solution back must cancel to zero.
	check := en.Simplify(en.Substitute(residual, "x", sols[0]), 20)
	assert.Equal(t, "0", check.String())
}

func TestSolveAnalytic_Quadratic(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// x^2 - 5x + 6 = 0 -> x in {2, 3}, ascending
	residual := en.Add(
		en.Sub(en.Pow(x, num(t, en, "2")), en.Mul(num(t, en, "5"), x)),
		num(t, en, "6"),
	)
	sols, exact, err := en.SolveAnalytic(residual, "x", 20)
	require.NoError(t, err)
	require.Len(t, sols, 2)
	assert.True(t, exact)
	assert.Equal(t, "2", evalAt(t, en, sols[0], 20).Text('G'))
	assert.Equal(t, "3", evalAt(t, en, sols[1], 20).Text('G'))
}

func TestSolveAnalytic_QuadraticDoubleRoot(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// x^2 - 2x + 1 = 0 -> x = 1
	residual := en.Add(
		en.Sub(en.Pow(x, num(t, en, "2")), en.Mul(num(t, en, "2"), x)),
		num(t, en, "1"),
	)
	sols, _, err := en.SolveAnalytic(residual, "x", 20)
	require.NoError(t, err)
	require.Len(t, sols, 1)
	assert.Equal(t, "1", evalAt(t, en, sols[0], 20).Text('G'))
}

func TestSolveAnalytic_NegativeDiscriminant(t *testing.T) {
	en := New()
	x := en.Symbol("x")

	// x^2 + 1 has no real roots; the analytic path reports no solutions
	// rather than an error.
	residual := en.Add(en.Pow(x, num(t, en, "2")), num(t, en, "1"))
	sols, _, err := en.SolveAnalytic(residual, "x", 20)
	require.NoError(t, err)
	assert.Empty(t, sols)
}

func TestSolveAnalytic_TranscendentalHasNoPath(t *testing.T) {
	en := New()
	sinX, err := en.Call("sin", en.Symbol("x"))
	require.NoError(t, err)
	expX, err := en.Call("exp", en.Symbol("x"))
	require.NoError(t, err)

	sols, _, err := en.SolveAnalytic(en.Sub(sinX, expX), "x", 20)
	require.NoError(t, err)
	assert.Empty(t, sols)
}

package algebra

import (
	"math"
	"math/cmplx"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/pkg/calctypes"
)

// PiString is pi to 149 decimal places, enough headroom above the maximum
// working precision for trig range reduction.
const PiString = "3.14159265358979323846264338327950288419716939937510582097494459230781640628620899862803482534211706798214808651328230664709384460955058223172535940812"

// decimalEvaluator carries the working-precision context through a numeric
// walk. lossy is set when any step had to drop to float64.
type decimalEvaluator struct {
	ctx   *apd.Context
	lossy bool
}

func (c *Call) evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error) {
	v, err := c.arg.evalDecimal(ev)
	if err != nil {
		return nil, err
	}
	out := new(apd.Decimal)
	switch c.fn {
	case "exp":
		_, err = ev.ctx.Exp(out, v)
	case "ln":
		_, err = ev.ctx.Ln(out, v)
	case "log10":
		_, err = ev.ctx.Log10(out, v)
	case "log2":
		err = evalLog2(ev.ctx, out, v)
	case "sqrt":
		_, err = ev.ctx.Sqrt(out, v)
	case "cbrt":
		_, err = ev.ctx.Cbrt(out, v)
	case "abs":
		out.Abs(v)
	case "floor":
		_, err = ev.ctx.Floor(out, v)
	case "ceil":
		_, err = ev.ctx.Ceil(out, v)
	case "sin":
		err = evalSin(ev.ctx, out, v)
	case "cos":
		err = evalCos(ev.ctx, out, v)
	case "tan":
		err = evalTan(ev.ctx, out, v)
	case "sinh", "cosh", "tanh":
		err = evalHyperbolic(ev.ctx, out, v, c.fn)
	case "factorial":
		err = evalFactorial(ev.ctx, out, v)
	case "asin", "acos", "atan", "asinh", "acosh", "atanh":
		// No decimal algorithm available; fall back to float64 and flag the
		// precision loss for the hint pipeline.
		ev.lossy = true
		err = evalFloat64Fallback(ev.ctx, out, v, c.fn)
	default:
		return nil, &calctypes.UnknownFunctionError{Name: c.fn}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func evalLog2(ctx *apd.Context, out, x *apd.Decimal) error {
	inner := ctx.WithPrecision(ctx.Precision + 5)
	lnX, lnTwo := new(apd.Decimal), new(apd.Decimal)
	if _, err := inner.Ln(lnX, x); err != nil {
		return err
	}
	if _, err := inner.Ln(lnTwo, apd.New(2, 0)); err != nil {
		return err
	}
	_, err := ctx.Quo(out, lnX, lnTwo)
	return err
}

// trigContext widens the precision for range reduction. Arguments with a
// large integer part lose leading digits when the period is subtracted, so
// the reduction has to run with that many extra digits.
func trigContext(ctx *apd.Context, x *apd.Decimal) *apd.Context {
	extra := int64(20)
	if intDigits := x.NumDigits() + int64(x.Exponent); intDigits > 0 {
		extra += intDigits
	}
	prec := int64(ctx.Precision) + extra
	if prec > 400 {
		prec = 400
	}
	return ctx.WithPrecision(uint32(prec))
}

// reduceAngle maps x into [0, 2pi) at the precision of inner.
func reduceAngle(inner *apd.Context, x *apd.Decimal) (*apd.Decimal, error) {
	pi, _, err := apd.NewFromString(PiString)
	if err != nil {
		return nil, err
	}
	twoPi := new(apd.Decimal)
	if _, err := inner.Mul(twoPi, pi, apd.New(2, 0)); err != nil {
		return nil, err
	}
	q, r := new(apd.Decimal), new(apd.Decimal)
	if _, err := inner.QuoInteger(q, x, twoPi); err != nil {
		return nil, err
	}
	prod := new(apd.Decimal)
	if _, err := inner.Mul(prod, q, twoPi); err != nil {
		return nil, err
	}
	if _, err := inner.Sub(r, x, prod); err != nil {
		return nil, err
	}
	if r.Negative {
		if _, err := inner.Add(r, r, twoPi); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// taylorSinCos sums the sine or cosine Taylor series of a reduced angle.
// Terms shrink factorially once the index passes the angle magnitude, so the
// loop terminates quickly for arguments in [0, 2pi).
func taylorSinCos(inner *apd.Context, x *apd.Decimal, wantSin bool) (*apd.Decimal, error) {
	xSq := new(apd.Decimal)
	if _, err := inner.Mul(xSq, x, x); err != nil {
		return nil, err
	}

	term := new(apd.Decimal)
	k := int64(0)
	if wantSin {
		term.Set(x)
	} else {
		term.Set(apd.New(1, 0))
	}
	sum := new(apd.Decimal).Set(term)
	threshold := apd.New(1, -int32(inner.Precision))

	for i := 0; i < 500; i++ {
		k += 2
		var d1, d2 int64
		if wantSin {
			d1, d2 = k, k+1 // term_{n+1} = -term_n * x^2 / ((2n)(2n+1))
		} else {
			d1, d2 = k-1, k
		}
		if _, err := inner.Mul(term, term, xSq); err != nil {
			return nil, err
		}
		if _, err := inner.Quo(term, term, apd.New(d1*d2, 0)); err != nil {
			return nil, err
		}
		term.Negative = !term.Negative
		if _, err := inner.Add(sum, sum, term); err != nil {
			return nil, err
		}
		abs := new(apd.Decimal).Abs(term)
		if abs.Cmp(threshold) < 0 {
			break
		}
	}
	return sum, nil
}

func evalSin(ctx *apd.Context, out, x *apd.Decimal) error {
	inner := trigContext(ctx, x)
	r, err := reduceAngle(inner, x)
	if err != nil {
		return err
	}
	sum, err := taylorSinCos(inner, r, true)
	if err != nil {
		return err
	}
	_, err = ctx.Round(out, sum)
	return err
}

func evalCos(ctx *apd.Context, out, x *apd.Decimal) error {
	inner := trigContext(ctx, x)
	r, err := reduceAngle(inner, x)
	if err != nil {
		return err
	}
	sum, err := taylorSinCos(inner, r, false)
	if err != nil {
		return err
	}
	_, err = ctx.Round(out, sum)
	return err
}

func evalTan(ctx *apd.Context, out, x *apd.Decimal) error {
	inner := trigContext(ctx, x)
	r, err := reduceAngle(inner, x)
	if err != nil {
		return err
	}
	sin, err := taylorSinCos(inner, r, true)
	if err != nil {
		return err
	}
	cos, err := taylorSinCos(inner, r, false)
	if err != nil {
		return err
	}
	_, err = ctx.Quo(out, sin, cos)
	return err
}

// evalHyperbolic computes sinh, cosh, and tanh from the exponential, which
// apd provides at full precision.
func evalHyperbolic(ctx *apd.Context, out, x *apd.Decimal, fn string) error {
	inner := ctx.WithPrecision(ctx.Precision + 5)
	ePos, eNeg := new(apd.Decimal), new(apd.Decimal)
	if _, err := inner.Exp(ePos, x); err != nil {
		return err
	}
	negX := new(apd.Decimal).Neg(x)
	if _, err := inner.Exp(eNeg, negX); err != nil {
		return err
	}
	sinh, cosh := new(apd.Decimal), new(apd.Decimal)
	if _, err := inner.Sub(sinh, ePos, eNeg); err != nil {
		return err
	}
	if _, err := inner.Quo(sinh, sinh, apd.New(2, 0)); err != nil {
		return err
	}
	if _, err := inner.Add(cosh, ePos, eNeg); err != nil {
		return err
	}
	if _, err := inner.Quo(cosh, cosh, apd.New(2, 0)); err != nil {
		return err
	}
	switch fn {
	case "sinh":
		_, err := ctx.Round(out, sinh)
		return err
	case "cosh":
		_, err := ctx.Round(out, cosh)
		return err
	default:
		_, err := ctx.Quo(out, sinh, cosh)
		return err
	}
}

func evalFactorial(ctx *apd.Context, out, x *apd.Decimal) error {
	n, err := x.Int64()
	if err != nil || n < 0 {
		return &NonIntegerFactorialError{Arg: x.String()}
	}
	if n > 5000 {
		return &NonIntegerFactorialError{Arg: x.String()}
	}
	out.Set(apd.New(1, 0))
	for i := int64(2); i <= n; i++ {
		if _, err := ctx.Mul(out, out, apd.New(i, 0)); err != nil {
			return err
		}
	}
	return nil
}

// NonIntegerFactorialError reports a factorial of something other than a
// small non-negative integer.
type NonIntegerFactorialError struct {
	Arg string
}

func (e *NonIntegerFactorialError) Error() string {
	return "factorial is only defined for non-negative integers, got " + e.Arg
}

func evalFloat64Fallback(ctx *apd.Context, out, x *apd.Decimal, fn string) error {
	f, err := x.Float64()
	if err != nil {
		return err
	}
	var r float64
	switch fn {
	case "asin":
		r = math.Asin(f)
	case "acos":
		r = math.Acos(f)
	case "atan":
		r = math.Atan(f)
	case "asinh":
		r = math.Asinh(f)
	case "acosh":
		r = math.Acosh(f)
	case "atanh":
		r = math.Atanh(f)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return &DomainError{Fn: fn, Arg: x.String()}
	}
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(r); err != nil {
		return err
	}
	_, err = ctx.Round(out, d)
	return err
}

// DomainError reports a real-valued function applied outside its domain.
type DomainError struct {
	Fn  string
	Arg string
}

func (e *DomainError) Error() string {
	return e.Fn + " is undefined at " + e.Arg
}

func (c *Call) evalComplex() (complex128, error) {
	v, err := c.arg.evalComplex()
	if err != nil {
		return 0, err
	}
	switch c.fn {
	case "exp":
		return cmplx.Exp(v), nil
	case "ln":
		return cmplx.Log(v), nil
	case "log10":
		return cmplx.Log10(v), nil
	case "log2":
		return cmplx.Log(v) / cmplx.Log(2), nil
	case "sqrt":
		return cmplx.Sqrt(v), nil
	case "cbrt":
		return cmplx.Pow(v, complex(1.0/3.0, 0)), nil
	case "abs":
		return complex(cmplx.Abs(v), 0), nil
	case "floor":
		if imag(v) != 0 {
			return 0, &DomainError{Fn: c.fn, Arg: c.arg.String()}
		}
		return complex(math.Floor(real(v)), 0), nil
	case "ceil":
		if imag(v) != 0 {
			return 0, &DomainError{Fn: c.fn, Arg: c.arg.String()}
		}
		return complex(math.Ceil(real(v)), 0), nil
	case "sin":
		return cmplx.Sin(v), nil
	case "cos":
		return cmplx.Cos(v), nil
	case "tan":
		return cmplx.Tan(v), nil
	case "sinh":
		return cmplx.Sinh(v), nil
	case "cosh":
		return cmplx.Cosh(v), nil
	case "tanh":
		return cmplx.Tanh(v), nil
	case "asin":
		return cmplx.Asin(v), nil
	case "acos":
		return cmplx.Acos(v), nil
	case "atan":
		return cmplx.Atan(v), nil
	case "asinh":
		return cmplx.Asinh(v), nil
	case "acosh":
		return cmplx.Acosh(v), nil
	case "atanh":
		return cmplx.Atanh(v), nil
	case "factorial":
		if imag(v) != 0 || real(v) != math.Trunc(real(v)) || real(v) < 0 {
			return 0, &NonIntegerFactorialError{Arg: c.arg.String()}
		}
		out := 1.0
		for i := 2.0; i <= real(v); i++ {
			out *= i
		}
		return complex(out, 0), nil
	default:
		return 0, &calctypes.UnknownFunctionError{Name: c.fn}
	}
}

func complexPow(base, exp complex128) complex128 {
	if base == 0 {
		if exp == 0 {
			return 1
		}
		return 0
	}
	return cmplx.Pow(base, exp)
}

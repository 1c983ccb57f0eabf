package algebra

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/pkg/calctypes"
)

// knownFunctions is the set of single-argument functions the kernel can
// evaluate. Multi-argument helpers are lowered to these by the caller before
// they reach the engine.
var knownFunctions = map[string]bool{
	"sin": true, "cos": true, "tan": true,
	"asin": true, "acos": true, "atan": true,
	"sinh": true, "cosh": true, "tanh": true,
	"asinh": true, "acosh": true, "atanh": true,
	"exp": true, "ln": true, "log10": true, "log2": true,
	"sqrt": true, "cbrt": true,
	"abs": true, "floor": true, "ceil": true,
	"factorial": true,
}

// Engine implements calctypes.AlgebraEngine on the local symbolic kernel.
// It is stateless and safe for concurrent use.
type Engine struct{}

// New returns the engine.
func New() *Engine { return &Engine{} }

var _ calctypes.AlgebraEngine = (*Engine)(nil)

// coerce unwraps an interface expression back into a kernel node. Expressions
// are opaque values created by this engine; receiving anything else is a
// programming error, not a user error.
func coerce(e calctypes.Expr) Expr {
	inner, ok := e.(Expr)
	if !ok {
		panic(fmt.Sprintf("algebra: foreign expression %T", e))
	}
	return inner
}

func (en *Engine) Number(text string) (calctypes.Expr, error) {
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", text, err)
	}
	return newNum(d), nil
}

func (en *Engine) NumberFromDecimal(d *apd.Decimal) calctypes.Expr {
	return newNum(new(apd.Decimal).Set(d))
}

func (en *Engine) Symbol(name string) calctypes.Expr {
	return &Sym{name: name}
}

func (en *Engine) Add(a, b calctypes.Expr) calctypes.Expr {
	return &Add{terms: []Expr{coerce(a), coerce(b)}}
}

func (en *Engine) Sub(a, b calctypes.Expr) calctypes.Expr {
	return &Add{terms: []Expr{coerce(a), &Mul{factors: []Expr{intNum(-1), coerce(b)}}}}
}

func (en *Engine) Mul(a, b calctypes.Expr) calctypes.Expr {
	return &Mul{factors: []Expr{coerce(a), coerce(b)}}
}

func (en *Engine) Div(a, b calctypes.Expr) calctypes.Expr {
	return &Mul{factors: []Expr{coerce(a), &Pow{base: coerce(b), exp: intNum(-1)}}}
}

func (en *Engine) Neg(a calctypes.Expr) calctypes.Expr {
	return &Mul{factors: []Expr{intNum(-1), coerce(a)}}
}

func (en *Engine) Pow(base, exp calctypes.Expr) calctypes.Expr {
	return &Pow{base: coerce(base), exp: coerce(exp)}
}

func (en *Engine) Call(name string, arg calctypes.Expr) (calctypes.Expr, error) {
	if !knownFunctions[name] {
		return nil, &calctypes.UnknownFunctionError{Name: name}
	}
	return &Call{fn: name, arg: coerce(arg)}, nil
}

func ctxFor(prec uint32) *apd.Context {
	if prec == 0 {
		prec = 20
	}
	return apd.BaseContext.WithPrecision(prec)
}

func (en *Engine) Simplify(e calctypes.Expr, prec uint32) calctypes.Expr {
	return coerce(e).simplify(ctxFor(prec))
}

func (en *Engine) Substitute(e calctypes.Expr, variable string, value calctypes.Expr) calctypes.Expr {
	return coerce(e).substitute(variable, coerce(value))
}

func (en *Engine) Diff(e calctypes.Expr, variable string) (calctypes.Expr, bool) {
	d, ok := coerce(e).diff(variable)
	if !ok {
		return nil, false
	}
	return d, true
}

func (en *Engine) EvalDecimal(e calctypes.Expr, prec uint32) (*apd.Decimal, bool, error) {
	ev := &decimalEvaluator{ctx: ctxFor(prec)}
	d, err := coerce(e).evalDecimal(ev)
	if err != nil {
		return nil, ev.lossy, err
	}
	return d, ev.lossy, nil
}

func (en *Engine) EvalComplex(e calctypes.Expr) (complex128, error) {
	return coerce(e).evalComplex()
}

// maxAnalyticDegree bounds polynomial extraction. Higher degrees go to the
// numeric fallback.
const maxAnalyticDegree = 8

// polyCoeffs extracts residual as a polynomial in name, returning coefficient
// expressions by degree. It fails (second return false) when the variable
// appears inside a function call, in an exponent, or under a non-integer
// power.
func polyCoeffs(e Expr, name string) (map[int]Expr, bool) {
	free := func(x Expr) bool {
		for _, s := range x.FreeSymbols() {
			if s == name {
				return false
			}
		}
		return true
	}

	switch v := e.(type) {
	case *Num:
		return map[int]Expr{0: v}, true
	case *Sym:
		if v.name == name {
			return map[int]Expr{1: intNum(1)}, true
		}
		return map[int]Expr{0: v}, true
	case *Add:
		out := make(map[int]Expr)
		for _, t := range v.terms {
			m, ok := polyCoeffs(t, name)
			if !ok {
				return nil, false
			}
			for deg, c := range m {
				if prev, ok := out[deg]; ok {
					out[deg] = &Add{terms: []Expr{prev, c}}
				} else {
					out[deg] = c
				}
			}
		}
		return out, true
	case *Mul:
		out := map[int]Expr{0: intNum(1)}
		for _, f := range v.factors {
			m, ok := polyCoeffs(f, name)
			if !ok {
				return nil, false
			}
			out, ok = convolve(out, m)
			if !ok {
				return nil, false
			}
		}
		return out, true
	case *Pow:
		if free(v) {
			return map[int]Expr{0: v}, true
		}
		if !free(v.exp) {
			return nil, false
		}
		n, ok := v.exp.(*Num)
		if !ok {
			return nil, false
		}
		k, err := n.val.Int64()
		if err != nil || k < 0 || k > maxAnalyticDegree {
			return nil, false
		}
		base, ok := polyCoeffs(v.base, name)
		if !ok {
			return nil, false
		}
		out := map[int]Expr{0: intNum(1)}
		for i := int64(0); i < k; i++ {
			out, ok = convolve(out, base)
			if !ok {
				return nil, false
			}
		}
		return out, true
	case *Call:
		if free(v) {
			return map[int]Expr{0: v}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func convolve(a, b map[int]Expr) (map[int]Expr, bool) {
	out := make(map[int]Expr)
	for da, ca := range a {
		for db, cb := range b {
			deg := da + db
			if deg > maxAnalyticDegree {
				return nil, false
			}
			prod := Expr(&Mul{factors: []Expr{ca, cb}})
			if prev, ok := out[deg]; ok {
				out[deg] = &Add{terms: []Expr{prev, prod}}
			} else {
				out[deg] = prod
			}
		}
	}
	return out, true
}

// SolveAnalytic extracts residual as a polynomial in variable and solves
// degree 1 exactly and degree 2 through the quadratic formula at the working
// precision. Anything else returns no solutions, leaving the decision to the
// numeric fallback. exact is true only when no rounding occurred.
func (en *Engine) SolveAnalytic(residual calctypes.Expr, variable string, prec uint32) ([]calctypes.Expr, bool, error) {
	ctx := ctxFor(prec)
	simplified := coerce(residual).simplify(ctx)

	coeffs, ok := polyCoeffs(simplified, variable)
	if !ok {
		return nil, false, nil
	}

	// Simplify coefficients and find the true degree: numeric zeros drop out.
	degree := -1
	byDeg := make(map[int]Expr)
	for deg, c := range coeffs {
		s := c.simplify(ctx)
		if n, isNum := s.(*Num); isNum && n.IsZero() {
			continue
		}
		byDeg[deg] = s
		if deg > degree {
			degree = deg
		}
	}

	switch degree {
	case -1, 0:
		// No occurrence of the variable survives; nothing to solve here.
		return nil, false, nil
	case 1:
		return solveLinear(ctx, byDeg)
	case 2:
		return solveQuadratic(ctx, byDeg)
	default:
		return nil, false, nil
	}
}

func coeffOrZero(byDeg map[int]Expr, deg int) Expr {
	if c, ok := byDeg[deg]; ok {
		return c
	}
	return intNum(0)
}

// solveLinear solves c1*x + c0 = 0. Numeric coefficients divide at working
// precision; symbolic coefficients produce the closed form -c0/c1.
func solveLinear(ctx *apd.Context, byDeg map[int]Expr) ([]calctypes.Expr, bool, error) {
	c0, c1 := coeffOrZero(byDeg, 0), byDeg[1]

	n0, ok0 := c0.(*Num)
	n1, ok1 := c1.(*Num)
	if ok0 && ok1 {
		out := new(apd.Decimal)
		cond, err := ctx.Quo(out, n0.val, n1.val)
		if err != nil {
			return nil, false, err
		}
		out.Neg(out)
		// Quo pads the quotient to the context precision; exact roots must
		// not claim more digits than the inputs carried.
		out.Reduce(out)
		return []calctypes.Expr{newNum(out)}, !cond.Inexact(), nil
	}

	sol := (&Mul{factors: []Expr{intNum(-1), c0, &Pow{base: c1, exp: intNum(-1)}}}).simplify(ctx)
	return []calctypes.Expr{sol}, true, nil
}

// solveQuadratic solves c2*x^2 + c1*x + c0 = 0 for numeric coefficients.
// Symbolic coefficients are left to the numeric fallback. A negative
// discriminant yields no real solutions.
func solveQuadratic(ctx *apd.Context, byDeg map[int]Expr) ([]calctypes.Expr, bool, error) {
	a, aok := byDeg[2].(*Num)
	b, bok := coeffOrZero(byDeg, 1).(*Num)
	c, cok := coeffOrZero(byDeg, 0).(*Num)
	if !aok || !bok || !cok {
		return nil, false, nil
	}

	var inexact apd.Condition
	disc, tmp := new(apd.Decimal), new(apd.Decimal)
	cond, err := ctx.Mul(disc, b.val, b.val)
	if err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Mul(tmp, a.val, c.val); err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Mul(tmp, tmp, apd.New(4, 0)); err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Sub(disc, disc, tmp); err != nil {
		return nil, false, err
	}
	inexact |= cond

	if disc.Negative && disc.Sign() != 0 {
		return nil, false, nil
	}

	twoA := new(apd.Decimal)
	if cond, err = ctx.Mul(twoA, a.val, apd.New(2, 0)); err != nil {
		return nil, false, err
	}
	inexact |= cond

	negB := new(apd.Decimal).Neg(b.val)
	if disc.Sign() == 0 {
		root := new(apd.Decimal)
		if cond, err = ctx.Quo(root, negB, twoA); err != nil {
			return nil, false, err
		}
		inexact |= cond
		root.Reduce(root)
		return []calctypes.Expr{newNum(root)}, !inexact.Inexact(), nil
	}

	sqrtDisc := new(apd.Decimal)
	if cond, err = ctx.Sqrt(sqrtDisc, disc); err != nil {
		return nil, false, err
	}
	inexact |= cond

	lo, hi := new(apd.Decimal), new(apd.Decimal)
	if cond, err = ctx.Sub(lo, negB, sqrtDisc); err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Quo(lo, lo, twoA); err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Add(hi, negB, sqrtDisc); err != nil {
		return nil, false, err
	}
	inexact |= cond
	if cond, err = ctx.Quo(hi, hi, twoA); err != nil {
		return nil, false, err
	}
	inexact |= cond

	lo.Reduce(lo)
	hi.Reduce(hi)

	// Report roots in ascending order regardless of the sign of a.
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	return []calctypes.Expr{newNum(lo), newNum(hi)}, !inexact.Inexact(), nil
}

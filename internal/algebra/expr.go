// Package algebra implements the backing computer-algebra engine behind the
// calctypes.AlgebraEngine interface: a small deterministic symbolic kernel
// with canonical Add/Mul flattening, exact decimal numbers, symbolic
// differentiation, and numeric evaluation at a caller-supplied working
// precision. The rest of the core talks to it only through the interface so
// the kernel can be swapped without touching precision/unit/solve logic.
package algebra

import (
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Expr is the internal expression representation. All nodes are immutable;
// simplification returns new nodes.
type Expr interface {
	String() string
	FreeSymbols() []string

	simplify(ctx *apd.Context) Expr
	substitute(name string, val Expr) Expr
	diff(name string) (Expr, bool)
	evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error)
	evalComplex() (complex128, error)
}

// Num is an exact decimal number. Operations on it round at the working
// precision of the evaluation that touches it, never earlier.
type Num struct {
	val *apd.Decimal
}

func newNum(d *apd.Decimal) *Num { return &Num{val: d} }

func intNum(n int64) *Num { return &Num{val: apd.New(n, 0)} }

func (n *Num) String() string {
	// Negative numbers print parenthesized so "a + (-3)" stays readable.
	if n.val.Negative && n.val.Sign() != 0 {
		return "(" + n.val.Text('G') + ")"
	}
	return n.val.Text('G')
}

func (n *Num) FreeSymbols() []string { return nil }

func (n *Num) simplify(_ *apd.Context) Expr { return n }

func (n *Num) substitute(string, Expr) Expr { return n }

func (n *Num) diff(string) (Expr, bool) { return intNum(0), true }

func (n *Num) evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := ev.ctx.Round(out, n.val)
	return out, err
}

func (n *Num) evalComplex() (complex128, error) {
	f, err := n.val.Float64()
	if err != nil {
		return 0, err
	}
	return complex(f, 0), nil
}

// Decimal returns a copy of the underlying value.
func (n *Num) Decimal() *apd.Decimal { return new(apd.Decimal).Set(n.val) }

// IsZero reports whether the number is exactly zero.
func (n *Num) IsZero() bool { return n.val.Sign() == 0 }

func (n *Num) isOne() bool {
	return n.val.Cmp(apd.New(1, 0)) == 0
}

// Sym is a free symbolic variable.
type Sym struct {
	name string
}

func (s *Sym) String() string { return s.name }

func (s *Sym) FreeSymbols() []string { return []string{s.name} }

func (s *Sym) simplify(_ *apd.Context) Expr { return s }

func (s *Sym) substitute(name string, val Expr) Expr {
	if s.name == name {
		return val
	}
	return s
}

func (s *Sym) diff(name string) (Expr, bool) {
	if s.name == name {
		return intNum(1), true
	}
	return intNum(0), true
}

func (s *Sym) evalDecimal(*decimalEvaluator) (*apd.Decimal, error) {
	return nil, &FreeSymbolError{Name: s.name}
}

func (s *Sym) evalComplex() (complex128, error) {
	// The imaginary unit is a closed value in the complex domain.
	if s.name == "i" {
		return complex(0, 1), nil
	}
	return 0, &FreeSymbolError{Name: s.name}
}

// FreeSymbolError reports an attempt to evaluate an open expression
// numerically.
type FreeSymbolError struct {
	Name string
}

func (e *FreeSymbolError) Error() string {
	return "expression is not closed: free symbol " + e.Name
}

// Add is an n-ary sum.
type Add struct {
	terms []Expr
}

func (a *Add) String() string {
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

func (a *Add) FreeSymbols() []string { return unionSymbols(a.terms) }

func (a *Add) substitute(name string, val Expr) Expr {
	terms := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		terms[i] = t.substitute(name, val)
	}
	return &Add{terms: terms}
}

func (a *Add) diff(name string) (Expr, bool) {
	terms := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		d, ok := t.diff(name)
		if !ok {
			return nil, false
		}
		terms[i] = d
	}
	return &Add{terms: terms}, true
}

func (a *Add) evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error) {
	out := apd.New(0, 0)
	for _, t := range a.terms {
		v, err := t.evalDecimal(ev)
		if err != nil {
			return nil, err
		}
		if _, err := ev.ctx.Add(out, out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *Add) evalComplex() (complex128, error) {
	var out complex128
	for _, t := range a.terms {
		v, err := t.evalComplex()
		if err != nil {
			return 0, err
		}
		out += v
	}
	return out, nil
}

// simplify flattens nested sums, folds numeric terms at the working
// precision, and collects like terms by their canonical string key.
func (a *Add) simplify(ctx *apd.Context) Expr {
	var flat []Expr
	var collect func(e Expr)
	collect = func(e Expr) {
		if inner, ok := e.(*Add); ok {
			for _, t := range inner.terms {
				collect(t)
			}
			return
		}
		flat = append(flat, e)
	}
	for _, t := range a.terms {
		collect(t.simplify(ctx))
	}

	constant := apd.New(0, 0)
	type group struct {
		coeff *apd.Decimal
		rest  Expr
	}
	groups := make(map[string]*group)
	var order []string

	for _, t := range flat {
		if n, ok := t.(*Num); ok {
			if _, err := ctx.Add(constant, constant, n.val); err != nil {
				return &Add{terms: flat}
			}
			continue
		}
		coeff, rest := splitCoefficient(t)
		key := rest.String()
		g, ok := groups[key]
		if !ok {
			g = &group{coeff: apd.New(0, 0), rest: rest}
			groups[key] = g
			order = append(order, key)
		}
		if _, err := ctx.Add(g.coeff, g.coeff, coeff); err != nil {
			return &Add{terms: flat}
		}
	}

	terms := make([]Expr, 0, len(order)+1)
	for _, key := range order {
		g := groups[key]
		switch {
		case g.coeff.Sign() == 0:
		case g.coeff.Cmp(apd.New(1, 0)) == 0:
			terms = append(terms, g.rest)
		default:
			terms = append(terms, (&Mul{factors: []Expr{newNum(g.coeff), g.rest}}).simplify(ctx))
		}
	}
	if constant.Sign() != 0 || len(terms) == 0 {
		terms = append(terms, newNum(constant))
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return &Add{terms: terms}
}

// splitCoefficient decomposes a term into its numeric coefficient and the
// remaining symbolic part, used for like-term collection.
func splitCoefficient(e Expr) (*apd.Decimal, Expr) {
	m, ok := e.(*Mul)
	if !ok {
		return apd.New(1, 0), e
	}
	coeff := apd.New(1, 0)
	var rest []Expr
	for _, f := range m.factors {
		if n, ok := f.(*Num); ok {
			// Exact multiply; coefficients are folded again at working
			// precision when the term is rebuilt.
			_, _ = apd.BaseContext.WithPrecision(workingCoefficientPrecision).Mul(coeff, coeff, n.val)
			continue
		}
		rest = append(rest, f)
	}
	switch len(rest) {
	case 0:
		return coeff, intNum(1)
	case 1:
		return coeff, rest[0]
	default:
		return coeff, &Mul{factors: rest}
	}
}

// workingCoefficientPrecision bounds coefficient folding inside structural
// helpers that have no evaluation context of their own. It exceeds the
// maximum working precision, so it never introduces extra rounding.
const workingCoefficientPrecision = 120

// Mul is an n-ary product.
type Mul struct {
	factors []Expr
}

func (m *Mul) String() string {
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, " * ") + ")"
}

func (m *Mul) FreeSymbols() []string { return unionSymbols(m.factors) }

func (m *Mul) substitute(name string, val Expr) Expr {
	factors := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		factors[i] = f.substitute(name, val)
	}
	return &Mul{factors: factors}
}

// diff applies the product rule over all factors.
func (m *Mul) diff(name string) (Expr, bool) {
	var terms []Expr
	for i := range m.factors {
		d, ok := m.factors[i].diff(name)
		if !ok {
			return nil, false
		}
		factors := make([]Expr, 0, len(m.factors))
		factors = append(factors, d)
		for j, f := range m.factors {
			if j != i {
				factors = append(factors, f)
			}
		}
		terms = append(terms, &Mul{factors: factors})
	}
	return &Add{terms: terms}, true
}

func (m *Mul) evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error) {
	out := apd.New(1, 0)
	for _, f := range m.factors {
		v, err := f.evalDecimal(ev)
		if err != nil {
			return nil, err
		}
		if _, err := ev.ctx.Mul(out, out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Mul) evalComplex() (complex128, error) {
	out := complex128(1)
	for _, f := range m.factors {
		v, err := f.evalComplex()
		if err != nil {
			return 0, err
		}
		out *= v
	}
	return out, nil
}

// simplify flattens nested products, folds numeric factors, short-circuits
// on zero, and collects repeated bases into powers (x * x^2 -> x^3).
func (m *Mul) simplify(ctx *apd.Context) Expr {
	var flat []Expr
	var collect func(e Expr)
	collect = func(e Expr) {
		if inner, ok := e.(*Mul); ok {
			for _, f := range inner.factors {
				collect(f)
			}
			return
		}
		flat = append(flat, e)
	}
	for _, f := range m.factors {
		collect(f.simplify(ctx))
	}

	coeff := apd.New(1, 0)
	type group struct {
		base Expr
		exp  *apd.Decimal
	}
	groups := make(map[string]*group)
	var order []string
	var opaque []Expr // factors with non-numeric exponents, kept verbatim

	for _, f := range flat {
		if n, ok := f.(*Num); ok {
			if n.IsZero() {
				return intNum(0)
			}
			if _, err := ctx.Mul(coeff, coeff, n.val); err != nil {
				return &Mul{factors: flat}
			}
			continue
		}
		base, exp := f, apd.New(1, 0)
		if p, ok := f.(*Pow); ok {
			n, numExp := p.exp.(*Num)
			if !numExp {
				opaque = append(opaque, f)
				continue
			}
			base, exp = p.base, n.val
		}
		key := base.String()
		g, ok := groups[key]
		if !ok {
			g = &group{base: base, exp: apd.New(0, 0)}
			groups[key] = g
			order = append(order, key)
		}
		if _, err := ctx.Add(g.exp, g.exp, exp); err != nil {
			return &Mul{factors: flat}
		}
	}

	factors := make([]Expr, 0, len(order)+len(opaque)+1)
	for _, key := range order {
		g := groups[key]
		switch {
		case g.exp.Sign() == 0:
		case g.exp.Cmp(apd.New(1, 0)) == 0:
			factors = append(factors, g.base)
		default:
			factors = append(factors, &Pow{base: g.base, exp: newNum(g.exp)})
		}
	}
	factors = append(factors, opaque...)

	// Canonical ordering keeps String() stable across re-groupings.
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].String() < factors[j].String()
	})

	if coeff.Cmp(apd.New(1, 0)) != 0 || len(factors) == 0 {
		factors = append([]Expr{newNum(coeff)}, factors...)
	}
	if len(factors) == 1 {
		return factors[0]
	}
	return &Mul{factors: factors}
}

// Pow is base raised to exp.
type Pow struct {
	base, exp Expr
}

func (p *Pow) String() string {
	return "(" + p.base.String() + "^" + p.exp.String() + ")"
}

func (p *Pow) FreeSymbols() []string { return unionSymbols([]Expr{p.base, p.exp}) }

func (p *Pow) substitute(name string, val Expr) Expr {
	return &Pow{base: p.base.substitute(name, val), exp: p.exp.substitute(name, val)}
}

func (p *Pow) diff(name string) (Expr, bool) {
	expNum, expIsNum := p.exp.(*Num)
	baseDiff, ok := p.base.diff(name)
	if !ok {
		return nil, false
	}
	if expIsNum {
		// d/dx base^n = n * base^(n-1) * base'
		nMinus1 := new(apd.Decimal)
		if _, err := apd.BaseContext.WithPrecision(workingCoefficientPrecision).Sub(nMinus1, expNum.val, apd.New(1, 0)); err != nil {
			return nil, false
		}
		return &Mul{factors: []Expr{
			expNum,
			&Pow{base: p.base, exp: newNum(nMinus1)},
			baseDiff,
		}}, true
	}
	// General case: d/dx a^b = a^b * (b' * ln a + b * a'/a).
	expDiff, ok := p.exp.diff(name)
	if !ok {
		return nil, false
	}
	return &Mul{factors: []Expr{
		p,
		&Add{terms: []Expr{
			&Mul{factors: []Expr{expDiff, &Call{fn: "ln", arg: p.base}}},
			&Mul{factors: []Expr{p.exp, baseDiff, &Pow{base: p.base, exp: intNum(-1)}}},
		}},
	}}, true
}

func (p *Pow) evalDecimal(ev *decimalEvaluator) (*apd.Decimal, error) {
	base, err := p.base.evalDecimal(ev)
	if err != nil {
		return nil, err
	}
	exp, err := p.exp.evalDecimal(ev)
	if err != nil {
		return nil, err
	}
	out := new(apd.Decimal)
	if _, err := ev.ctx.Pow(out, base, exp); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pow) evalComplex() (complex128, error) {
	base, err := p.base.evalComplex()
	if err != nil {
		return 0, err
	}
	exp, err := p.exp.evalComplex()
	if err != nil {
		return 0, err
	}
	return complexPow(base, exp), nil
}

func (p *Pow) simplify(ctx *apd.Context) Expr {
	base := p.base.simplify(ctx)
	exp := p.exp.simplify(ctx)

	if en, ok := exp.(*Num); ok {
		if en.IsZero() {
			return intNum(1)
		}
		if en.isOne() {
			return base
		}
		if bn, ok := base.(*Num); ok {
			if bn.IsZero() && !en.val.Negative {
				return intNum(0)
			}
			if bn.isOne() {
				return intNum(1)
			}
			// Fold only exact small integer powers; fractional powers stay
			// symbolic so sqrt(2) keeps its full precision until the final
			// numeric evaluation.
			if n, err := en.val.Int64(); err == nil && n > -64 && n < 64 {
				out := new(apd.Decimal)
				if _, perr := ctx.Pow(out, bn.val, en.val); perr == nil {
					return newNum(out)
				}
			}
		}
		// (x^a)^n -> x^(a*n) for numeric inner exponents.
		if bp, ok := base.(*Pow); ok {
			if inner, ok := bp.exp.(*Num); ok {
				prod := new(apd.Decimal)
				if _, err := ctx.Mul(prod, inner.val, en.val); err == nil {
					return (&Pow{base: bp.base, exp: newNum(prod)}).simplify(ctx)
				}
			}
		}
	}
	return &Pow{base: base, exp: exp}
}

// Call is the application of a named function to one argument.
type Call struct {
	fn  string
	arg Expr
}

func (c *Call) String() string { return c.fn + "(" + c.arg.String() + ")" }

func (c *Call) FreeSymbols() []string { return c.arg.FreeSymbols() }

func (c *Call) substitute(name string, val Expr) Expr {
	return &Call{fn: c.fn, arg: c.arg.substitute(name, val)}
}

func (c *Call) simplify(ctx *apd.Context) Expr {
	arg := c.arg.simplify(ctx)
	if n, ok := arg.(*Num); ok {
		// Fold only the exact special values; everything else is evaluated
		// at the working precision of the final numeric step.
		if n.IsZero() {
			switch c.fn {
			case "sin", "tan", "sinh", "tanh", "asin", "atan":
				return intNum(0)
			case "cos", "cosh", "exp":
				return intNum(1)
			}
		}
		if n.isOne() && (c.fn == "ln" || c.fn == "log10" || c.fn == "log2") {
			return intNum(0)
		}
	}
	return &Call{fn: c.fn, arg: arg}
}

// chain applies the chain rule with the given outer derivative.
func (c *Call) chain(outer Expr, name string) (Expr, bool) {
	inner, ok := c.arg.diff(name)
	if !ok {
		return nil, false
	}
	return &Mul{factors: []Expr{outer, inner}}, true
}

func (c *Call) diff(name string) (Expr, bool) {
	x := c.arg
	switch c.fn {
	case "sin":
		return c.chain(&Call{fn: "cos", arg: x}, name)
	case "cos":
		return c.chain(&Mul{factors: []Expr{intNum(-1), &Call{fn: "sin", arg: x}}}, name)
	case "tan":
		// 1 + tan^2 x
		return c.chain(&Add{terms: []Expr{intNum(1), &Pow{base: c, exp: intNum(2)}}}, name)
	case "exp":
		return c.chain(c, name)
	case "ln":
		return c.chain(&Pow{base: x, exp: intNum(-1)}, name)
	case "sqrt":
		// 1 / (2 sqrt x)
		return c.chain(&Mul{factors: []Expr{newNum(apd.New(5, -1)), &Pow{base: c, exp: intNum(-1)}}}, name)
	case "sinh":
		return c.chain(&Call{fn: "cosh", arg: x}, name)
	case "cosh":
		return c.chain(&Call{fn: "sinh", arg: x}, name)
	case "tanh":
		return c.chain(&Add{terms: []Expr{intNum(1), &Mul{factors: []Expr{intNum(-1), &Pow{base: c, exp: intNum(2)}}}}}, name)
	case "atan":
		return c.chain(&Pow{base: &Add{terms: []Expr{intNum(1), &Pow{base: x, exp: intNum(2)}}}, exp: intNum(-1)}, name)
	default:
		return nil, false
	}
}

func unionSymbols(exprs []Expr) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range exprs {
		for _, s := range e.FreeSymbols() {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

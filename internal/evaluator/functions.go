package evaluator

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/internal/algebra"
	"unitcalc/internal/hints"
	"unitcalc/internal/precision"
	"unitcalc/pkg/calctypes"
)

// funcDef registers one callable function: its arity range and how the
// evaluator applies it to quantity arguments. Functions that the kernel knows
// natively lower to an engine call; the rest are composed here.
type funcDef struct {
	minArgs, maxArgs int
	apply            func(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, ledger *precision.Ledger, col *hints.Collector) (calctypes.Quantity, error)
}

var functionTable map[string]funcDef

func init() {
	functionTable = map[string]funcDef{
		"sqrt": {1, 1, applyRootN(2)},
		"cbrt": {1, 1, applyRootN(3)},
		"root": {2, 2, applyRoot},
		"abs":  {1, 1, applyAbs},
		"min":  {2, 2, applyMinMax},
		"max":  {2, 2, applyMinMax},

		"floor":     {1, 1, applyDimensionless},
		"ceil":      {1, 1, applyDimensionless},
		"factorial": {1, 1, applyDimensionless},
		"exp":       {1, 1, applyDimensionless},
		"ln":        {1, 1, applyDimensionless},
		"log10":     {1, 1, applyDimensionless},
		"log2":      {1, 1, applyDimensionless},
		"sin":       {1, 1, applyDimensionless},
		"cos":       {1, 1, applyDimensionless},
		"tan":       {1, 1, applyDimensionless},
		"asin":      {1, 1, applyDimensionless},
		"acos":      {1, 1, applyDimensionless},
		"atan":      {1, 1, applyDimensionless},
		"sinh":      {1, 1, applyDimensionless},
		"cosh":      {1, 1, applyDimensionless},
		"tanh":      {1, 1, applyDimensionless},
		"asinh":     {1, 1, applyDimensionless},
		"acosh":     {1, 1, applyDimensionless},
		"atanh":     {1, 1, applyDimensionless},

		"atan2":   {2, 2, applyAtan2},
		"hypot":   {2, 2, applyHypot},
		"deg2rad": {1, 1, applyDeg2Rad},
		"rad2deg": {1, 1, applyRad2Deg},

		"circle_area":          {1, 1, applyGeometry(2, "1", false)},
		"circle_circumference": {1, 1, applyGeometry(1, "2", false)},
		"sphere_volume":        {1, 1, applyGeometry(3, "4", true)},
		"sphere_surface":       {1, 1, applyGeometry(2, "4", false)},
	}
}

func (ev *Evaluator) evalCall(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	def, ok := functionTable[node.Op]
	if !ok {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.UnknownFunctionError{Name: node.Op}}
	}
	if len(node.Children) < def.minArgs || len(node.Children) > def.maxArgs {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.WrongNumberOfArgumentsError{
			Name: node.Op, Got: len(node.Children), Min: def.minArgs, Max: def.maxArgs,
		}}
	}

	args := make([]calctypes.Quantity, len(node.Children))
	for i, child := range node.Children {
		v, err := ev.evalNode(child, ledger, col)
		if err != nil {
			return calctypes.Value{}, err
		}
		if v.Quantity == nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: child, Err: fmt.Errorf("%s expects scalar arguments", node.Op)}
		}
		args[i] = *v.Quantity
	}

	q, err := def.apply(ev, node, args, ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}
	return quantityValue(q), nil
}

// applyDimensionless handles the functions that only accept dimensionless
// arguments and map straight to an engine call.
func applyDimensionless(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	a := args[0]
	if !a.Dim.IsDimensionless() {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("%s needs a dimensionless argument, got %s", node.Op, a.Dim.Describe())}
	}
	mag, err := ev.engine.Call(node.Op, a.Magnitude)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	return calctypes.Quantity{Magnitude: mag, Precision: a.Precision}, nil
}

// applyRootN builds sqrt and cbrt: the dimension vector must have an integer
// nth root.
func applyRootN(n int) func(*Evaluator, *calctypes.ExpressionNode, []calctypes.Quantity, *precision.Ledger, *hints.Collector) (calctypes.Quantity, error) {
	fn := "sqrt"
	if n == 3 {
		fn = "cbrt"
	}
	return func(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
		a := args[0]
		dim, err := a.Dim.Root(n)
		if err != nil {
			return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
		}
		mag, err := ev.engine.Call(fn, a.Magnitude)
		if err != nil {
			return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
		}
		return calctypes.Quantity{Magnitude: mag, Dim: dim, Precision: a.Precision}, nil
	}
}

// applyRoot is root(x, n) for a closed integer n.
func applyRoot(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, ledger *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	a, nq := args[0], args[1]
	if !nq.Dim.IsDimensionless() {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("root index must be dimensionless")}
	}
	d, _, err := ev.engine.EvalDecimal(nq.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("root index must be a closed number: %w", err)}
	}
	n, err := d.Int64()
	if err != nil || n < 1 {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("root index must be a positive integer, got %s", d.Text('G'))}
	}
	dim, err := a.Dim.Root(int(n))
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	// x^(1/n) over the engine keeps the magnitude symbolic until the final
	// numeric step.
	one, err := ev.engine.Number("1")
	if err != nil {
		return calctypes.Quantity{}, err
	}
	mag := ev.engine.Pow(a.Magnitude, ev.engine.Div(one, ev.engine.NumberFromDecimal(d)))
	return calctypes.Quantity{Magnitude: mag, Dim: dim, Precision: a.Precision}, nil
}

func applyAbs(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	a := args[0]
	mag, err := ev.engine.Call("abs", a.Magnitude)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	a.Magnitude = mag
	return a, nil
}

func applyMinMax(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, ledger *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	a, b := args[0], args[1]
	if a.Dim != b.Dim {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: &calctypes.DimensionError{Op: node.Op, Left: a.Dim, Right: b.Dim}}
	}
	da, _, err := ev.engine.EvalDecimal(a.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	db, _, err := ev.engine.EvalDecimal(b.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	pickA := da.Cmp(db) <= 0
	if node.Op == "max" {
		pickA = !pickA
	}
	if pickA {
		return a, nil
	}
	return b, nil
}

// applyAtan2 computes the two-argument arctangent. There is no decimal
// algorithm in the kernel, so this runs in float precision and flags the
// loss.
func applyAtan2(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, ledger *precision.Ledger, col *hints.Collector) (calctypes.Quantity, error) {
	y, x := args[0], args[1]
	if y.Dim != x.Dim {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: &calctypes.DimensionError{Op: "atan2", Left: y.Dim, Right: x.Dim}}
	}
	dy, _, err := ev.engine.EvalDecimal(y.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	dx, _, err := ev.engine.EvalDecimal(x.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	fy, err := dy.Float64()
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	fx, err := dx.Float64()
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	out := new(apd.Decimal)
	if _, err := out.SetFloat64(math.Atan2(fy, fx)); err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	ev.notePrecisionLoss(ledger, col, "atan2 is evaluated in float precision")
	return calctypes.Quantity{
		Magnitude: ev.engine.NumberFromDecimal(out),
		Precision: maxPrecision(y.Precision, x.Precision),
	}, nil
}

// applyHypot is sqrt(a^2 + b^2) with dimension checks; it stays symbolic.
func applyHypot(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	a, b := args[0], args[1]
	if a.Dim != b.Dim {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: &calctypes.DimensionError{Op: "hypot", Left: a.Dim, Right: b.Dim}}
	}
	two, err := ev.engine.Number("2")
	if err != nil {
		return calctypes.Quantity{}, err
	}
	sum := ev.engine.Add(ev.engine.Pow(a.Magnitude, two), ev.engine.Pow(b.Magnitude, two))
	mag, err := ev.engine.Call("sqrt", sum)
	if err != nil {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: err}
	}
	return calctypes.Quantity{Magnitude: mag, Dim: a.Dim, Precision: maxPrecision(a.Precision, b.Precision)}, nil
}

func applyDeg2Rad(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	return ev.scaleByPi(node, args[0], true)
}

func applyRad2Deg(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
	return ev.scaleByPi(node, args[0], false)
}

// applyGeometry builds the circle and sphere helpers: coefficient * pi * r^power,
// with an extra division by three for the sphere volume. The argument may
// carry any dimension; the result dimension is the argument's raised to power.
func applyGeometry(power int, coefficient string, thirds bool) func(*Evaluator, *calctypes.ExpressionNode, []calctypes.Quantity, *precision.Ledger, *hints.Collector) (calctypes.Quantity, error) {
	return func(ev *Evaluator, node *calctypes.ExpressionNode, args []calctypes.Quantity, _ *precision.Ledger, _ *hints.Collector) (calctypes.Quantity, error) {
		r := args[0]
		pi, err := ev.engine.Number(algebra.PiString)
		if err != nil {
			return calctypes.Quantity{}, err
		}
		coeff, err := ev.engine.Number(coefficient)
		if err != nil {
			return calctypes.Quantity{}, err
		}
		exp, err := ev.engine.Number(fmt.Sprintf("%d", power))
		if err != nil {
			return calctypes.Quantity{}, err
		}
		mag := ev.engine.Mul(ev.engine.Mul(coeff, pi), ev.engine.Pow(r.Magnitude, exp))
		if thirds {
			three, err := ev.engine.Number("3")
			if err != nil {
				return calctypes.Quantity{}, err
			}
			mag = ev.engine.Div(mag, three)
		}
		return calctypes.Quantity{Magnitude: mag, Dim: r.Dim.Pow(power), Precision: r.Precision}, nil
	}
}

func (ev *Evaluator) scaleByPi(node *calctypes.ExpressionNode, a calctypes.Quantity, toRadians bool) (calctypes.Quantity, error) {
	if !a.Dim.IsDimensionless() {
		return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("%s needs a dimensionless argument", node.Op)}
	}
	pi, err := ev.engine.Number(algebra.PiString)
	if err != nil {
		return calctypes.Quantity{}, err
	}
	halfTurn, err := ev.engine.Number("180")
	if err != nil {
		return calctypes.Quantity{}, err
	}
	if toRadians {
		a.Magnitude = ev.engine.Div(ev.engine.Mul(a.Magnitude, pi), halfTurn)
	} else {
		a.Magnitude = ev.engine.Div(ev.engine.Mul(a.Magnitude, halfTurn), pi)
	}
	return a, nil
}

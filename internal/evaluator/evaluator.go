// Package evaluator walks annotated expression trees and produces values:
// quantities with dimension vectors, matrices, or truth values. It owns the
// evaluation pipeline ordering: parse, derive the working precision, resolve
// identifiers, combine units, and only then evaluate numerically, so that
// displayed digits never depend on operand order or on the output precision
// setting.
package evaluator

import (
	"fmt"
	"math"

	charmlog "github.com/charmbracelet/log"
	"github.com/cockroachdb/apd/v3"

	"unitcalc/internal/algebra"
	"unitcalc/internal/hints"
	"unitcalc/internal/logger"
	"unitcalc/internal/parser"
	"unitcalc/internal/precision"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

// Evaluator evaluates expression trees against a session context. It is
// stateless between calls; all session state lives in the context.
type Evaluator struct {
	engine calctypes.AlgebraEngine
	units  *units.Registry
	ctx    calctypes.Context
	log    *charmlog.Logger
}

// New builds an evaluator on the given engine and unit registry.
func New(engine calctypes.AlgebraEngine, reg *units.Registry, ctx calctypes.Context) *Evaluator {
	return &Evaluator{
		engine: engine,
		units:  reg,
		ctx:    ctx,
		log:    logger.NewStyledLogger("Evaluator"),
	}
}

// DisplayTarget tells the presentation layer how to render the value.
type DisplayTarget struct {
	// Mode is "unit", "base", or "best".
	Mode string
	// Compound is the resolved conversion target for Mode "unit".
	Compound *units.Compound
}

// Result is the outcome of one evaluation.
type Result struct {
	Input   string
	Value   calctypes.Value
	Display *DisplayTarget
	Ledger  *precision.Ledger
	Hints   []calctypes.Hint
	// Lossy reports that a float-precision fallback fed the result.
	Lossy bool
}

// OpenEquationError reports an equation whose sides still contain free
// variables; the caller should hand it to the solver.
type OpenEquationError struct {
	Root *calctypes.ExpressionNode
}

func (e *OpenEquationError) Error() string {
	return "equation contains unknowns; solve it instead of evaluating"
}

// Evaluate runs the full pipeline on one input line. Equations whose sides
// are closed reduce to a truth value; open equations return
// OpenEquationError for the solver to pick up.
func (ev *Evaluator) Evaluate(input string) (*Result, error) {
	node, err := parser.Parse(input)
	if err != nil {
		return nil, err
	}
	return ev.EvaluateTree(input, node)
}

// EvaluateTree runs the pipeline on an already parsed tree. On failure the
// returned Result still carries the hints collected before the error, so
// callers can explain the rejection ("convert to kelvin first") next to it.
func (ev *Evaluator) EvaluateTree(input string, node *calctypes.ExpressionNode) (*Result, error) {
	ledger, err := ev.DeriveLedger(node)
	if err != nil {
		return nil, err
	}
	ev.log.Debug("evaluating expression", "input", input, "working", ledger.Working)
	col := hints.NewCollector(ev.ctx)

	res := &Result{Input: input, Ledger: ledger}

	if node.Kind == calctypes.NodeBinary && node.Op == "=" {
		truth, err := ev.evalTruth(node, ledger, col)
		if err != nil {
			res.Hints = col.Hints()
			return res, err
		}
		res.Value.Bool = truth
		res.Hints = col.Hints()
		return res, nil
	}

	display, inner := splitDisplay(node)
	v, err := ev.evalNode(inner, ledger, col)
	if err != nil {
		res.Hints = col.Hints()
		return res, err
	}
	if display != nil {
		if err := ev.resolveDisplay(display, &v, ledger, col, res); err != nil {
			res.Hints = col.Hints()
			return res, err
		}
	}

	if err := ev.finalizeValue(&v, ledger, col, res); err != nil {
		res.Hints = col.Hints()
		return res, err
	}
	res.Value = v
	res.Hints = col.Hints()
	return res, nil
}

// DeriveLedger collects every numeric literal in the tree and derives the
// working precision for this evaluation.
func (ev *Evaluator) DeriveLedger(node *calctypes.ExpressionNode) (*precision.Ledger, error) {
	var literals []calctypes.Literal
	node.Walk(func(n *calctypes.ExpressionNode) bool {
		if n.Kind == calctypes.NodeLiteral {
			literals = append(literals, calctypes.Literal{
				Text:      n.Text,
				Precision: precision.SignificantDigits(n.Text),
			})
		}
		return true
	})
	return precision.Derive(literals, ev.ctx.OutputPrecision(), ev.ctx.GuardDigits())
}

// splitDisplay peels a top-level conversion off the tree. Conversions nested
// deeper are evaluated in place.
func splitDisplay(node *calctypes.ExpressionNode) (*calctypes.ExpressionNode, *calctypes.ExpressionNode) {
	if node.Kind == calctypes.NodeConvert {
		return node, node.Children[0]
	}
	return nil, node
}

func (ev *Evaluator) resolveDisplay(convert *calctypes.ExpressionNode, v *calctypes.Value, ledger *precision.Ledger, col *hints.Collector, res *Result) error {
	if v.Quantity == nil {
		return &calctypes.EvalError{Node: convert, Err: fmt.Errorf("only scalar quantities can be converted")}
	}
	switch convert.Op {
	case "base":
		res.Display = &DisplayTarget{Mode: "base"}
	case "best":
		res.Display = &DisplayTarget{Mode: "best"}
	default:
		compound, err := ev.resolveUnitTarget(convert.Children[1], col)
		if err != nil {
			return &calctypes.EvalError{Node: convert, Err: err}
		}
		if compound.Dim != v.Quantity.Dim {
			return &calctypes.EvalError{Node: convert, Err: &calctypes.IncompatibleDimensionsError{
				From:       v.Quantity.Dim,
				To:         compound.Dim,
				TargetUnit: compound.Label,
			}}
		}
		res.Display = &DisplayTarget{Mode: "unit", Compound: compound}
	}
	return nil
}

// resolveUnitTarget walks the restricted unit expression after "to" and
// resolves it into a compound target.
func (ev *Evaluator) resolveUnitTarget(node *calctypes.ExpressionNode, col *hints.Collector) (*units.Compound, error) {
	var parts []units.CompoundPart
	var walk func(n *calctypes.ExpressionNode, sign int) error
	walk = func(n *calctypes.ExpressionNode, sign int) error {
		switch n.Kind {
		case calctypes.NodeIdent:
			def, err := ev.units.Resolve(n.Text, col)
			if err != nil {
				return err
			}
			parts = append(parts, units.CompoundPart{Def: def, Exp: sign})
			return nil
		case calctypes.NodeBinary:
			switch n.Op {
			case "*":
				if err := walk(n.Children[0], sign); err != nil {
					return err
				}
				return walk(n.Children[1], sign)
			case "/":
				if err := walk(n.Children[0], sign); err != nil {
					return err
				}
				return walk(n.Children[1], -sign)
			case "^":
				expText := n.Children[1].Text
				var exp int
				if _, err := fmt.Sscanf(expText, "%d", &exp); err != nil {
					return fmt.Errorf("conversion target exponent %q is not an integer", expText)
				}
				ident := n.Children[0]
				def, err := ev.units.Resolve(ident.Text, col)
				if err != nil {
					return err
				}
				parts = append(parts, units.CompoundPart{Def: def, Exp: sign * exp})
				return nil
			}
		}
		return fmt.Errorf("unsupported conversion target %q", n.Source())
	}
	if err := walk(node, 1); err != nil {
		return nil, err
	}
	return units.NewCompound(parts)
}

// evalTruth evaluates a closed equation to a truth value. Quantities compare
// within the evaluation tolerance; matrices compare cellwise.
func (ev *Evaluator) evalTruth(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (*bool, error) {
	left, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalNode(node.Children[1], ledger, col)
	if err != nil {
		return nil, err
	}
	if openSymbols(left) || openSymbols(right) {
		return nil, &OpenEquationError{Root: node}
	}

	if left.Matrix != nil || right.Matrix != nil {
		if left.Matrix == nil || right.Matrix == nil {
			f := false
			return &f, nil
		}
		return ev.matricesEqual(left.Matrix, right.Matrix, ledger)
	}

	if _, err := units.CheckAdditive("=", *left.Quantity, *right.Quantity, col); err != nil {
		return nil, &calctypes.EvalError{Node: node, Err: err}
	}
	return ev.quantitiesEqual(*left.Quantity, *right.Quantity, ledger)
}

func (ev *Evaluator) quantitiesEqual(a, b calctypes.Quantity, ledger *precision.Ledger) (*bool, error) {
	diff := ev.engine.Sub(a.Magnitude, b.Magnitude)
	d, _, err := ev.engine.EvalDecimal(diff, ledger.Working)
	if err != nil {
		return nil, err
	}
	d.Abs(d)
	out := d.Cmp(ledger.Tolerance()) <= 0
	return &out, nil
}

func (ev *Evaluator) matricesEqual(a, b *calctypes.Matrix, ledger *precision.Ledger) (*bool, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		f := false
		return &f, nil
	}
	for i := range a.Cells {
		if a.Cells[i].Dim != b.Cells[i].Dim {
			f := false
			return &f, nil
		}
		eq, err := ev.quantitiesEqual(a.Cells[i], b.Cells[i], ledger)
		if err != nil {
			return nil, err
		}
		if !*eq {
			return eq, nil
		}
	}
	t := true
	return &t, nil
}

func openSymbols(v calctypes.Value) bool {
	free := func(e calctypes.Expr) bool {
		for _, s := range e.FreeSymbols() {
			if s != "i" {
				return true
			}
		}
		return false
	}
	if v.Quantity != nil {
		return free(v.Quantity.Magnitude)
	}
	if v.Matrix != nil {
		for _, c := range v.Matrix.Cells {
			if free(c.Magnitude) {
				return true
			}
		}
	}
	return false
}

// EvalExpression evaluates a subtree to a raw value without numeric
// finalization. The solver uses it to build residuals whose magnitudes keep
// their free variables.
func (ev *Evaluator) EvalExpression(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	return ev.evalNode(node, ledger, col)
}

// evalNode is the recursive tree walk. Errors are tagged with the offending
// subtree on the way out.
func (ev *Evaluator) evalNode(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	switch node.Kind {
	case calctypes.NodeLiteral:
		return ev.evalLiteral(node)
	case calctypes.NodeIdent:
		return ev.evalIdent(node, ledger, col)
	case calctypes.NodeUnary:
		return ev.evalUnary(node, ledger, col)
	case calctypes.NodePostfix:
		return ev.evalPostfix(node, ledger, col)
	case calctypes.NodeBinary:
		return ev.evalBinary(node, ledger, col)
	case calctypes.NodeCall:
		return ev.evalCall(node, ledger, col)
	case calctypes.NodeMatrix:
		return ev.evalMatrix(node, ledger, col)
	case calctypes.NodeConvert:
		// A nested conversion collapses into its converted numeric value;
		// only the top-level conversion affects display.
		return ev.evalNestedConvert(node, ledger, col)
	}
	return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("unexpected node")}
}

func (ev *Evaluator) evalLiteral(node *calctypes.ExpressionNode) (calctypes.Value, error) {
	mag, err := ev.engine.Number(node.Text)
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	return quantityValue(calctypes.Quantity{
		Magnitude: mag,
		Dim:       calctypes.Dimensionless,
		Precision: precision.SignificantDigits(node.Text),
	}), nil
}

// evalIdent resolves an identifier. Resolution order: mathematical constants,
// physical constants, unit tokens, then a free symbolic variable.
func (ev *Evaluator) evalIdent(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	name := node.Text

	switch name {
	case "pi", "π":
		mag, err := ev.engine.Number(algebra.PiString)
		if err != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
		}
		return quantityValue(calctypes.Quantity{Magnitude: mag}), nil
	case "e":
		one, err := ev.engine.Number("1")
		if err != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
		}
		mag, err := ev.engine.Call("exp", one)
		if err != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
		}
		return quantityValue(calctypes.Quantity{Magnitude: mag}), nil
	case "i":
		return quantityValue(calctypes.Quantity{Magnitude: ev.engine.Symbol("i")}), nil
	}

	if def, ok := physicalConstants[name]; ok {
		mag, err := ev.engine.Number(def.text)
		if err != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
		}
		return quantityValue(calctypes.Quantity{Magnitude: mag, Dim: def.dim}), nil
	}

	if ev.units.HasToken(name) {
		def, err := ev.units.Resolve(name, col)
		if err != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
		}
		return ev.unitQuantity(node, def, ledger)
	}

	return quantityValue(calctypes.Quantity{Magnitude: ev.engine.Symbol(name)}), nil
}

// unitQuantity turns a bare unit token into the quantity "1 of that unit" in
// base units.
func (ev *Evaluator) unitQuantity(node *calctypes.ExpressionNode, def *units.UnitDef, ledger *precision.Ledger) (calctypes.Value, error) {
	base, err := ev.units.ToBase(ledger.NumContext(), def, apd.New(1, 0))
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	q := calctypes.Quantity{
		Magnitude: ev.engine.NumberFromDecimal(base),
		Dim:       def.Dim,
	}
	switch {
	case def.IsAbsoluteTemperature():
		q.Temperature = calctypes.TempAbsolute
	case def.Delta:
		q.Temperature = calctypes.TempDelta
	}
	return quantityValue(q), nil
}

func (ev *Evaluator) evalUnary(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	v, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}
	if v.Matrix != nil {
		return ev.scaleMatrixCells(v.Matrix, ev.engine.Neg), nil
	}
	q := *v.Quantity
	q.Magnitude = ev.engine.Neg(q.Magnitude)
	return quantityValue(q), nil
}

func (ev *Evaluator) evalPostfix(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	v, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}
	if v.Quantity == nil || !v.Quantity.Dim.IsDimensionless() {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("factorial needs a dimensionless scalar")}
	}
	q := *v.Quantity
	mag, err := ev.engine.Call("factorial", q.Magnitude)
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	q.Magnitude = mag
	return quantityValue(q), nil
}

func (ev *Evaluator) evalBinary(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	if node.Op == "=" {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("nested equations are not supported")}
	}

	if err := ev.checkAmbiguousUnitSyntax(node); err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}

	// Offset scales do not distribute over multiplication: "0 degC" means
	// 273.15 K, not 0 times the base value of one degC. Applying an absolute
	// temperature unit to a magnitude is handled as a unit application, not
	// as a product.
	if done, v, err := ev.applyAbsoluteUnit(node, ledger, col); done {
		return v, err
	}

	left, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}
	right, err := ev.evalNode(node.Children[1], ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}

	if left.Matrix != nil || right.Matrix != nil {
		return ev.evalMatrixBinary(node, left, right, ledger, col)
	}

	a, b := *left.Quantity, *right.Quantity
	switch node.Op {
	case "+", "-":
		return ev.addQuantities(node, a, b, col)
	case "*", "/":
		return ev.mulQuantities(node, a, b)
	case "//":
		v, err := ev.mulQuantities(node, a, b)
		if err != nil {
			return calctypes.Value{}, err
		}
		q := *v.Quantity
		mag, cerr := ev.engine.Call("floor", q.Magnitude)
		if cerr != nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: cerr}
		}
		q.Magnitude = mag
		return quantityValue(q), nil
	case "^":
		return ev.powQuantities(node, a, b, ledger)
	}
	return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("unsupported operator %q", node.Op)}
}

// applyAbsoluteUnit recognizes "<expr> <offset-unit>" and evaluates it as
// magnitude*factor + offset. The magnitude may be symbolic, so "x degC = 300"
// stays solvable.
func (ev *Evaluator) applyAbsoluteUnit(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (bool, calctypes.Value, error) {
	if node.Op != "*" || node.Children[1].Kind != calctypes.NodeIdent {
		return false, calctypes.Value{}, nil
	}
	token := node.Children[1].Text
	if IsMathConstant(token) || !ev.units.HasToken(token) {
		return false, calctypes.Value{}, nil
	}
	def, err := ev.units.Resolve(token, col)
	if err != nil || !def.IsAbsoluteTemperature() {
		return false, calctypes.Value{}, nil
	}

	left, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return true, calctypes.Value{}, err
	}
	if left.Quantity == nil || !left.Quantity.Dim.IsDimensionless() || left.Quantity.Temperature != calctypes.TempNone {
		return true, calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("cannot apply %s to a dimensional magnitude", def.Name)}
	}

	factor, offset, err := ev.units.ScaleParts(ledger.NumContext(), def)
	if err != nil {
		return true, calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	mag := ev.engine.Mul(left.Quantity.Magnitude, ev.engine.NumberFromDecimal(factor))
	mag = ev.engine.Add(mag, ev.engine.NumberFromDecimal(offset))
	return true, quantityValue(calctypes.Quantity{
		Magnitude:   mag,
		Dim:         def.Dim,
		Precision:   left.Quantity.Precision,
		Temperature: calctypes.TempAbsolute,
	}), nil
}

// checkAmbiguousUnitSyntax rejects juxtaposed unit tokens whose concatenation
// is itself a known unit token, e.g. "5 m s" when "ms" exists. The user must
// write an explicit operator to disambiguate.
func (ev *Evaluator) checkAmbiguousUnitSyntax(node *calctypes.ExpressionNode) error {
	if !parser.IsImplicitProduct(node) {
		return nil
	}
	rightTok := identToken(node.Children[1])
	leftTok := rightmostIdentToken(node.Children[0])
	if leftTok == "" || rightTok == "" {
		return nil
	}
	if !ev.units.HasToken(leftTok) || !ev.units.HasToken(rightTok) {
		return nil
	}
	combined := leftTok + rightTok
	if ev.units.HasToken(combined) {
		return &calctypes.AmbiguousUnitSyntaxError{
			Tokens:   []string{leftTok, rightTok},
			Combined: combined,
		}
	}
	return nil
}

func identToken(n *calctypes.ExpressionNode) string {
	if n.Kind == calctypes.NodeIdent {
		return n.Text
	}
	return ""
}

func rightmostIdentToken(n *calctypes.ExpressionNode) string {
	if n.Kind == calctypes.NodeIdent {
		return n.Text
	}
	if parser.IsImplicitProduct(n) {
		return identToken(n.Children[1])
	}
	return ""
}

func (ev *Evaluator) addQuantities(node *calctypes.ExpressionNode, a, b calctypes.Quantity, col *hints.Collector) (calctypes.Value, error) {
	kind, err := units.CheckAdditive(node.Op, a, b, col)
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	q := calctypes.Quantity{
		Dim:         a.Dim,
		Precision:   maxPrecision(a.Precision, b.Precision),
		Temperature: kind,
	}
	if node.Op == "+" {
		q.Magnitude = ev.engine.Add(a.Magnitude, b.Magnitude)
	} else {
		q.Magnitude = ev.engine.Sub(a.Magnitude, b.Magnitude)
	}
	return quantityValue(q), nil
}

func (ev *Evaluator) mulQuantities(node *calctypes.ExpressionNode, a, b calctypes.Quantity) (calctypes.Value, error) {
	q := calctypes.Quantity{
		Dim:         units.CombineMultiplicative(node.Op, a, b),
		Precision:   maxPrecision(a.Precision, b.Precision),
		Temperature: scaledTemperature(a, b),
	}
	if node.Op == "/" || node.Op == "//" {
		q.Magnitude = ev.engine.Div(a.Magnitude, b.Magnitude)
	} else {
		q.Magnitude = ev.engine.Mul(a.Magnitude, b.Magnitude)
	}
	return quantityValue(q), nil
}

// scaledTemperature keeps the delta marker when a temperature difference is
// scaled by a dimensionless factor. Everything else degrades to plain kelvin
// arithmetic.
func scaledTemperature(a, b calctypes.Quantity) calctypes.TemperatureKind {
	if a.Temperature == calctypes.TempDelta && b.Dim.IsDimensionless() {
		return calctypes.TempDelta
	}
	if b.Temperature == calctypes.TempDelta && a.Dim.IsDimensionless() {
		return calctypes.TempDelta
	}
	return calctypes.TempNone
}

func (ev *Evaluator) powQuantities(node *calctypes.ExpressionNode, base, exp calctypes.Quantity, ledger *precision.Ledger) (calctypes.Value, error) {
	if !exp.Dim.IsDimensionless() {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.DimensionError{
			Op: "^", Left: base.Dim, Right: exp.Dim,
		}}
	}

	q := calctypes.Quantity{Precision: maxPrecision(base.Precision, exp.Precision)}
	if base.Dim.IsDimensionless() {
		q.Magnitude = ev.engine.Pow(base.Magnitude, exp.Magnitude)
		return quantityValue(q), nil
	}

	// A dimensional base needs a closed integer exponent so the dimension
	// vector stays integral. sqrt() handles the even-root cases.
	d, _, err := ev.engine.EvalDecimal(exp.Magnitude, ledger.Working)
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("exponent of a dimensional base must be a closed number: %w", err)}
	}
	n, err := d.Int64()
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("exponent of a dimensional base must be an integer, got %s", d.Text('G'))}
	}
	q.Dim = base.Dim.Pow(int(n))
	q.Magnitude = ev.engine.Pow(base.Magnitude, ev.engine.NumberFromDecimal(d))
	return quantityValue(q), nil
}

func (ev *Evaluator) evalNestedConvert(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	v, err := ev.evalNode(node.Children[0], ledger, col)
	if err != nil {
		return calctypes.Value{}, err
	}
	if node.Op != "unit" {
		// "to base" and "to best" are display directives; nested they are
		// identity transforms because values already live in base units.
		return v, nil
	}
	if v.Quantity == nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("only scalar quantities can be converted")}
	}
	compound, err := ev.resolveUnitTarget(node.Children[1], col)
	if err != nil {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: err}
	}
	if compound.Dim != v.Quantity.Dim {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.IncompatibleDimensionsError{
			From: v.Quantity.Dim, To: compound.Dim, TargetUnit: compound.Label,
		}}
	}
	// The magnitude stays in base units; a nested conversion only checks
	// compatibility.
	return v, nil
}

// finalizeValue closes out the evaluation: closed real magnitudes become
// decimals at the working precision, complex-only magnitudes evaluate in
// complex arithmetic, and anything with free variables is left simplified.
func (ev *Evaluator) finalizeValue(v *calctypes.Value, ledger *precision.Ledger, col *hints.Collector, res *Result) error {
	if v.Bool != nil {
		return nil
	}
	if v.Matrix != nil {
		for i := range v.Matrix.Cells {
			if err := ev.finalizeQuantity(&v.Matrix.Cells[i], ledger, col, res); err != nil {
				return err
			}
		}
		return nil
	}
	return ev.finalizeQuantity(v.Quantity, ledger, col, res)
}

func (ev *Evaluator) finalizeQuantity(q *calctypes.Quantity, ledger *precision.Ledger, col *hints.Collector, res *Result) error {
	free := q.Magnitude.FreeSymbols()

	onlyImaginary := true
	for _, s := range free {
		if s != "i" {
			onlyImaginary = false
			break
		}
	}
	if !onlyImaginary {
		q.Magnitude = ev.engine.Simplify(q.Magnitude, ledger.Working)
		return nil
	}

	if len(free) == 1 {
		z, err := ev.engine.EvalComplex(q.Magnitude)
		if err != nil {
			return err
		}
		if cmplxIsInfOrNaN(z) {
			col.Add(calctypes.Hint{
				Kind:    calctypes.HintComplexInfinity,
				Message: "the result is complex infinity",
			})
			return fmt.Errorf("result is complex infinity")
		}
		mag, err := ev.complexExpr(z)
		if err != nil {
			return err
		}
		q.Magnitude = mag
		res.Lossy = true
		ev.notePrecisionLoss(ledger, col, "complex arithmetic runs in float precision")
		return nil
	}

	d, lossy, err := ev.engine.EvalDecimal(q.Magnitude, ledger.Working)
	if err != nil {
		return err
	}
	q.Magnitude = ev.engine.NumberFromDecimal(d)
	if lossy {
		res.Lossy = true
		ev.notePrecisionLoss(ledger, col, "an inverse function was evaluated in float precision")
	}
	return nil
}

func (ev *Evaluator) notePrecisionLoss(ledger *precision.Ledger, col *hints.Collector, reason string) {
	if ledger.Working <= precision.Float64Digits {
		return
	}
	col.AddSuppressible(
		calctypes.HintPrecisionLoss,
		"precision-loss",
		fmt.Sprintf("%s; fewer than %d digits of the result are reliable", reason, ledger.Working),
	)
}

func cmplxIsInfOrNaN(z complex128) bool {
	for _, f := range []float64{real(z), imag(z)} {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return true
		}
	}
	return false
}

// complexExpr rebuilds a complex128 as re + im*i over the engine.
func (ev *Evaluator) complexExpr(z complex128) (calctypes.Expr, error) {
	re, err := ev.decimalExpr(real(z))
	if err != nil {
		return nil, err
	}
	if imag(z) == 0 {
		return re, nil
	}
	im, err := ev.decimalExpr(imag(z))
	if err != nil {
		return nil, err
	}
	return ev.engine.Add(re, ev.engine.Mul(im, ev.engine.Symbol("i"))), nil
}

func (ev *Evaluator) decimalExpr(f float64) (calctypes.Expr, error) {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return nil, err
	}
	return ev.engine.NumberFromDecimal(d), nil
}

func quantityValue(q calctypes.Quantity) calctypes.Value {
	return calctypes.Value{Quantity: &q}
}

func maxPrecision(a, b int) int {
	if a > b {
		return a
	}
	return b
}

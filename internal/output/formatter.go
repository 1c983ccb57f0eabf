// Package output renders evaluation results, solve outcomes, and hints for
// the terminal. Numeric formatting happens here and nowhere else: the
// evaluator hands over magnitudes at working precision and this package
// rounds them down to the requested output precision.
package output

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/internal/evaluator"
	"unitcalc/internal/precision"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

// Formatter turns values into display strings. It needs the engine to close
// magnitudes into decimals and the registry to convert into display units.
type Formatter struct {
	engine calctypes.AlgebraEngine
	units  *units.Registry
}

// NewFormatter creates a formatter over the given engine and unit registry.
func NewFormatter(engine calctypes.AlgebraEngine, reg *units.Registry) *Formatter {
	return &Formatter{engine: engine, units: reg}
}

// FormatResult renders one evaluation result without its hints.
func (f *Formatter) FormatResult(res *evaluator.Result) (string, error) {
	v := res.Value
	switch {
	case v.Bool != nil:
		if *v.Bool {
			return "true", nil
		}
		return "false", nil
	case v.Matrix != nil:
		return f.formatMatrix(v.Matrix, res.Ledger)
	case v.Quantity != nil:
		return f.formatQuantity(*v.Quantity, res.Display, res.Ledger)
	}
	return "", fmt.Errorf("empty result")
}

// FormatOutcome renders one solve outcome without its hints.
func (f *Formatter) FormatOutcome(out *calctypes.SolveOutcome, ledger *precision.Ledger) (string, error) {
	switch out.Status {
	case calctypes.StatusTruth:
		if *out.Truth {
			return "true", nil
		}
		return "false", nil
	case calctypes.StatusAnalytic:
		parts := make([]string, 0, len(out.Solutions))
		for _, sol := range out.Solutions {
			s, err := f.formatQuantity(sol, nil, ledger)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s = %s", out.Variable, s))
		}
		return strings.Join(parts, "\n"), nil
	case calctypes.StatusNumeric:
		s, err := f.formatQuantity(out.Numeric.Value, nil, ledger)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ≈ %s (converged in %d iterations)", out.Variable, s, out.Numeric.Iterations), nil
	case calctypes.StatusNoConvergence:
		lines := []string{fmt.Sprintf("no convergence for %s", out.Variable)}
		for _, a := range out.Attempts {
			lines = append(lines, fmt.Sprintf("  start %s: %s after %d iterations",
				startText(a.Start), a.Terminal, a.Iterations))
		}
		return strings.Join(lines, "\n"), nil
	case calctypes.StatusUnsolvable:
		return fmt.Sprintf("no analytic solution for %s; supply a starting point to solve numerically", out.Variable), nil
	case calctypes.StatusCancelled:
		return "solve cancelled", nil
	}
	return "", fmt.Errorf("unknown solve status %d", out.Status)
}

// FormatHints renders hints one per line, prefixed so they are visually
// distinct from results.
func (f *Formatter) FormatHints(hs []calctypes.Hint) []string {
	lines := make([]string, 0, len(hs))
	for _, h := range hs {
		line := fmt.Sprintf("hint: %s", h.Message)
		if h.Suppressible {
			line += fmt.Sprintf(" [:suppress %s]", h.SuppressKey)
		}
		lines = append(lines, line)
	}
	return lines
}

func startText(s calctypes.StartingPoint) string {
	label := s.Value
	if s.Imag != 0 {
		label = fmt.Sprintf("%s%+gi", s.Value, s.Imag)
	}
	if s.Unit != "" {
		label += " " + s.Unit
	}
	return label
}

func (f *Formatter) formatMatrix(m *calctypes.Matrix, ledger *precision.Ledger) (string, error) {
	rows := make([]string, 0, m.Rows)
	for i := 0; i < m.Rows; i++ {
		cells := make([]string, 0, m.Cols)
		for j := 0; j < m.Cols; j++ {
			s, err := f.formatQuantity(m.At(i, j), nil, ledger)
			if err != nil {
				return "", err
			}
			cells = append(cells, s)
		}
		rows = append(rows, "["+strings.Join(cells, ", ")+"]")
	}
	return "[" + strings.Join(rows, ", ") + "]", nil
}

// formatQuantity renders a single quantity: number rounded to the requested
// precision plus the display unit. Magnitudes with free variables render
// symbolically over base units.
func (f *Formatter) formatQuantity(q calctypes.Quantity, display *evaluator.DisplayTarget, ledger *precision.Ledger) (string, error) {
	if open(q.Magnitude) {
		return joinUnit(q.Magnitude.String(), baseSuffix(q.Dim)), nil
	}

	d, _, err := f.engine.EvalDecimal(q.Magnitude, ledger.Working)
	if err != nil {
		// Complex closed magnitudes carry the imaginary unit; render the
		// expression as-is.
		return joinUnit(q.Magnitude.String(), baseSuffix(q.Dim)), nil
	}

	mode := "base"
	if display != nil {
		mode = display.Mode
	}
	switch mode {
	case "unit":
		converted, err := display.Compound.FromBase(f.units, ledger.NumContext(), d)
		if err != nil {
			return "", err
		}
		return joinUnit(f.round(converted, ledger), display.Compound.Label), nil
	case "best":
		if best := f.units.BestUnit(d, q.Dim); best != nil {
			converted, err := f.units.FromBase(ledger.NumContext(), best, d)
			if err != nil {
				return "", err
			}
			return joinUnit(f.round(converted, ledger), best.DisplaySymbol()), nil
		}
	}
	return joinUnit(f.round(d, ledger), baseSuffix(q.Dim)), nil
}

// round rounds a working-precision decimal down to the requested number of
// significant digits. This is the only place digits are discarded. Values
// near unity print in fixed notation, the rest in scientific notation.
func (f *Formatter) round(d *apd.Decimal, ledger *precision.Ledger) string {
	ctx := apd.BaseContext.WithPrecision(uint32(ledger.Requested))
	out := new(apd.Decimal)
	// Rounding to fewer digits cannot fail for finite inputs.
	ctx.Round(out, d) //nolint:errcheck
	out.Reduce(out)

	adjusted := int(out.Exponent) + int(out.NumDigits()) - 1
	if adjusted >= -6 && adjusted < ledger.Requested+6 {
		return out.Text('f')
	}
	return out.Text('E')
}

func open(e calctypes.Expr) bool {
	for _, s := range e.FreeSymbols() {
		if s != "i" {
			return true
		}
	}
	return false
}

func baseSuffix(dim calctypes.Dimension) string {
	if dim.IsDimensionless() {
		return ""
	}
	return dim.String()
}

func joinUnit(number, unit string) string {
	if unit == "" {
		return number
	}
	return number + " " + unit
}

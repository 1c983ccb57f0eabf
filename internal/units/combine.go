package units

import (
	"unitcalc/internal/hints"
	"unitcalc/pkg/calctypes"
)

const temperatureHintKey = "temperature-offset"

const temperatureHintMessage = "arithmetic on absolute temperatures follows the offset-scale rules: " +
	"sums of two absolute temperatures are rejected, differences become temperature differences, " +
	"and adding a delta keeps the absolute scale; use delta_degC/delta_degF to state intent"

// CheckAdditive validates an addition, subtraction, or comparison between two
// quantities and returns the temperature kind of the result. Both operands
// must have identical dimension vectors. Offset-scale temperatures get the
// special treatment described in the hint above; every accepted offset path
// emits a mandatory hint on its first occurrence in the session.
func CheckAdditive(op string, a, b calctypes.Quantity, col *hints.Collector) (calctypes.TemperatureKind, error) {
	if a.Dim != b.Dim {
		return calctypes.TempNone, &calctypes.DimensionError{Op: op, Left: a.Dim, Right: b.Dim}
	}

	aAbs := a.Temperature == calctypes.TempAbsolute
	bAbs := b.Temperature == calctypes.TempAbsolute
	aDelta := a.Temperature == calctypes.TempDelta
	bDelta := b.Temperature == calctypes.TempDelta

	if !aAbs && !bAbs {
		// Plain quantities; a delta survives only if both sides are deltas.
		if aDelta && bDelta {
			return calctypes.TempDelta, nil
		}
		return calctypes.TempNone, nil
	}

	switch op {
	case "+":
		if aAbs && bAbs {
			// 0°C + 1°C has no physical meaning; the user must re-express
			// one side as a temperature difference.
			if col != nil {
				col.AddMandatoryOnce(calctypes.HintTemperatureOffset, temperatureHintKey, temperatureHintMessage)
			}
			return calctypes.TempNone, &calctypes.TemperatureOffsetError{Op: op}
		}
		// absolute + delta (either order) stays absolute.
		if col != nil {
			col.AddMandatoryOnce(calctypes.HintTemperatureOffset, temperatureHintKey, temperatureHintMessage)
		}
		return calctypes.TempAbsolute, nil
	case "-":
		if aAbs && bAbs {
			// A difference of absolute temperatures is a temperature
			// difference, offset-free by construction.
			if col != nil {
				col.AddMandatoryOnce(calctypes.HintTemperatureOffset, temperatureHintKey, temperatureHintMessage)
			}
			return calctypes.TempDelta, nil
		}
		if aAbs {
			// absolute - delta stays absolute.
			if col != nil {
				col.AddMandatoryOnce(calctypes.HintTemperatureOffset, temperatureHintKey, temperatureHintMessage)
			}
			return calctypes.TempAbsolute, nil
		}
		// delta - absolute is as meaningless as absolute + absolute.
		if col != nil {
			col.AddMandatoryOnce(calctypes.HintTemperatureOffset, temperatureHintKey, temperatureHintMessage)
		}
		return calctypes.TempNone, &calctypes.TemperatureOffsetError{Op: op}
	default:
		// Comparisons between absolute temperatures are well defined; the
		// magnitudes are both in kelvin already.
		return calctypes.TempNone, nil
	}
}

// CombineMultiplicative returns the dimension of a product or quotient.
// Multiplication and division always succeed; offset bookkeeping degenerates
// to the plain kelvin-linear value that the magnitudes already hold.
func CombineMultiplicative(op string, a, b calctypes.Quantity) calctypes.Dimension {
	if op == "/" {
		return a.Dim.Div(b.Dim)
	}
	return a.Dim.Mul(b.Dim)
}

package calctypes

// HintKind classifies advisory records emitted alongside results. Hints are
// never errors: they must not abort a successful computation.
type HintKind string

// Hint kinds.
const (
	HintAmbiguousUnit     HintKind = "ambiguous-unit"
	HintTemperatureOffset HintKind = "temperature-offset"
	HintNumericSolution   HintKind = "numeric-solution"
	HintDroppedSolution   HintKind = "dropped-solution"
	HintPrecisionLoss     HintKind = "precision-loss"
	HintComplexInfinity   HintKind = "complex-infinity"
	HintUnsimplifiedEq    HintKind = "unsimplified-equality"
)

// Hint is a non-fatal advisory attached to a result. Hints with equal
// SuppressKey are deduplicated within one evaluation and can be permanently
// suppressed by the user; Suppressible is false for hints that must be shown
// at least once (e.g. the first temperature-offset warning in a session).
type Hint struct {
	Kind         HintKind
	Message      string
	SuppressKey  string
	Suppressible bool
}

package hints

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"unitcalc/internal/context"
	"unitcalc/pkg/calctypes"
)

func TestCollector_DedupeByKey(t *testing.T) {
	col := NewCollector(context.New())
	col.AddSuppressible(calctypes.HintAmbiguousUnit, "ambiguous-unit:h", "h read as Planck constant")
	col.AddSuppressible(calctypes.HintAmbiguousUnit, "ambiguous-unit:h", "h read as Planck constant")
	col.AddSuppressible(calctypes.HintAmbiguousUnit, "ambiguous-unit:a", "another one")

	assert.Len(t, col.Hints(), 2)
}

func TestCollector_SuppressionFilter(t *testing.T) {
	ctx := context.New()
	ctx.Suppress("ambiguous-unit:h")

	col := NewCollector(ctx)
	col.AddSuppressible(calctypes.HintAmbiguousUnit, "ambiguous-unit:h", "suppressed")
	col.AddSuppressible(calctypes.HintAmbiguousUnit, "ambiguous-unit:min", "visible")

	hs := col.Hints()
	assert.Len(t, hs, 1)
	assert.Equal(t, "visible", hs[0].Message)
}

func TestCollector_MandatoryOnce(t *testing.T) {
	ctx := context.New()
	// User suppressed the key before ever seeing it; the first occurrence in
	// a session must still surface.
	ctx.Suppress("temperature-offset")

	col := NewCollector(ctx)
	col.AddMandatoryOnce(calctypes.HintTemperatureOffset, "temperature-offset", "offset scale arithmetic")
	hs := col.Hints()
	assert.Len(t, hs, 1)
	assert.False(t, hs[0].Suppressible)

	// Second occurrence is an ordinary suppressible hint and gets filtered.
	col2 := NewCollector(ctx)
	col2.AddMandatoryOnce(calctypes.HintTemperatureOffset, "temperature-offset", "offset scale arithmetic")
	assert.Empty(t, col2.Hints())
}

func TestCollector_Merge(t *testing.T) {
	ctx := context.New()
	col := NewCollector(ctx)
	col.AddSuppressible(calctypes.HintNumericSolution, "numeric-solution", "numeric")

	col2 := NewCollector(ctx)
	col2.Merge(col.Hints())
	col2.AddSuppressible(calctypes.HintNumericSolution, "numeric-solution", "numeric")

	assert.Len(t, col2.Hints(), 1)
}

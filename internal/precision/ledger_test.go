package precision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/pkg/calctypes"
)

func TestSignificantDigits(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"1.50", 3},
		{"12", 2},
		{"1200", 4},
		{"0.0012", 2},
		{"0.00120", 3},
		{"-3.14159", 6},
		{"1.5e10", 2},
		{"2.50E-3", 3},
		{"0", 1},
		{"0.00", 3},
		{"7", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, SignificantDigits(tt.text))
		})
	}
}

func TestDerive_SpecExample(t *testing.T) {
	// Literal "1.50" (precision 3) with output precision 5 and a guard of 10
	// must yield a working precision of at least 15.
	lits := []calctypes.Literal{{Text: "1.50", Precision: 3}}
	ledger, err := Derive(lits, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), ledger.Working)
	assert.Equal(t, 5, ledger.Requested)
}

func TestDerive_LiteralPrecisionDominates(t *testing.T) {
	lits := []calctypes.Literal{
		{Text: "1.5", Precision: 2},
		{Text: "3.14159265358979", Precision: 15},
	}
	ledger, err := Derive(lits, 8, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(25), ledger.Working)
}

func TestDerive_InvalidPrecision(t *testing.T) {
	_, err := Derive(nil, 0, 10)
	var perr *calctypes.InvalidPrecisionError
	require.ErrorAs(t, err, &perr)

	_, err = Derive(nil, -1, 10)
	require.ErrorAs(t, err, &perr)
}

func TestDerive_Cap(t *testing.T) {
	ledger, err := Derive(nil, 98, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxWorkingPrecision), ledger.Working)
}

func TestNumContext_UsesWorkingPrecision(t *testing.T) {
	ledger, err := Derive(nil, 5, 10)
	require.NoError(t, err)
	ctx := ledger.NumContext()
	assert.Equal(t, uint32(15), ctx.Precision)
}

func TestTolerance(t *testing.T) {
	ledger, err := Derive(nil, 8, 10)
	require.NoError(t, err)
	// W = 18 -> tolerance 1e-15.
	assert.Equal(t, "1E-15", ledger.Tolerance().Text('E'))
}

package units

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/internal/context"
	"unitcalc/internal/hints"
	"unitcalc/pkg/calctypes"
)

func mustLoad(t *testing.T) *Registry {
	t.Helper()
	r, err := Load()
	require.NoError(t, err)
	return r
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestResolve_CanonicalNameNeverHints(t *testing.T) {
	r := mustLoad(t)
	col := hints.NewCollector(context.New())

	def, err := r.Resolve("hour", col)
	require.NoError(t, err)
	assert.Equal(t, "hour", def.Name)
	assert.Empty(t, col.Hints())
}

func TestResolve_AmbiguousTokenDefaultsWithHint(t *testing.T) {
	r := mustLoad(t)
	col := hints.NewCollector(context.New())

	// "h" defaults to the Planck constant; the hint names the alternative.
	def, err := r.Resolve("h", col)
	require.NoError(t, err)
	assert.Equal(t, "planck_constant", def.Name)

	hs := col.Hints()
	require.Len(t, hs, 1)
	assert.Equal(t, calctypes.HintAmbiguousUnit, hs[0].Kind)
	assert.Equal(t, "ambiguous-unit:h", hs[0].SuppressKey)
	assert.Contains(t, hs[0].Message, "hour")
	assert.True(t, hs[0].Suppressible)
}

func TestResolve_AmbiguousHintSuppressed(t *testing.T) {
	r := mustLoad(t)
	ctx := context.New()
	ctx.Suppress("ambiguous-unit:h")
	col := hints.NewCollector(ctx)

	_, err := r.Resolve("h", col)
	require.NoError(t, err)
	assert.Empty(t, col.Hints())
}

func TestResolve_Symbol(t *testing.T) {
	r := mustLoad(t)
	def, err := r.Resolve("km", nil)
	require.NoError(t, err)
	assert.Equal(t, "kilometer", def.Name)
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 1}, def.Dim)
}

func TestResolve_Unknown(t *testing.T) {
	r := mustLoad(t)
	_, err := r.Resolve("furlongs_per_fortnight", nil)
	var uerr *calctypes.UnknownUnitError
	require.ErrorAs(t, err, &uerr)
}

func TestToBase_Kilometer(t *testing.T) {
	r := mustLoad(t)
	def, err := r.Resolve("km", nil)
	require.NoError(t, err)

	ctx := apd.BaseContext.WithPrecision(20)
	base, err := r.ToBase(ctx, def, dec(t, "12"))
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(dec(t, "12000")))
}

func TestToBase_CelsiusOffset(t *testing.T) {
	r := mustLoad(t)
	def, err := r.Resolve("degC", nil)
	require.NoError(t, err)
	require.True(t, def.IsAbsoluteTemperature())

	ctx := apd.BaseContext.WithPrecision(20)
	base, err := r.ToBase(ctx, def, dec(t, "0"))
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(dec(t, "273.15")))
}

func TestFahrenheit_FractionFactorAtPrecision(t *testing.T) {
	r := mustLoad(t)
	def, err := r.Resolve("degF", nil)
	require.NoError(t, err)

	// 32 degF is exactly 273.15 K; the 5/9 factor is parsed at working
	// precision, not frozen into a float64.
	ctx := apd.BaseContext.WithPrecision(30)
	base, err := r.ToBase(ctx, def, dec(t, "32"))
	require.NoError(t, err)
	diff := new(apd.Decimal)
	_, err = ctx.Sub(diff, base, dec(t, "273.15"))
	require.NoError(t, err)
	assert.True(t, diff.Abs(diff).Cmp(dec(t, "1e-25")) < 0, "got %s", base)
}

func TestConvert_IncompatibleDimensions(t *testing.T) {
	r := mustLoad(t)
	meter, err := r.Resolve("m", nil)
	require.NoError(t, err)
	second, err := r.Resolve("s", nil)
	require.NoError(t, err)

	ctx := apd.BaseContext.WithPrecision(20)
	_, err = r.Convert(ctx, dec(t, "1"), meter.Dim, second)
	var ierr *calctypes.IncompatibleDimensionsError
	require.ErrorAs(t, err, &ierr)
}

func TestConvert_RoundTripThroughBase(t *testing.T) {
	r := mustLoad(t)
	km, err := r.Resolve("km", nil)
	require.NoError(t, err)

	ctx := apd.BaseContext.WithPrecision(25)
	base, err := r.ToBase(ctx, km, dec(t, "1.5"))
	require.NoError(t, err)
	back, err := r.Convert(ctx, base, km.Dim, km)
	require.NoError(t, err)
	assert.Equal(t, 0, back.Cmp(dec(t, "1.5")))
}

func TestBestUnit(t *testing.T) {
	r := mustLoad(t)
	lengthDim := calctypes.Dimension{calctypes.DimLength: 1}

	best := r.BestUnit(dec(t, "12000"), lengthDim)
	require.NotNil(t, best)
	assert.Equal(t, "kilometer", best.Name)

	best = r.BestUnit(dec(t, "0.004"), lengthDim)
	require.NotNil(t, best)
	assert.Equal(t, "millimeter", best.Name)

	assert.Nil(t, r.BestUnit(dec(t, "0"), lengthDim))
}

func TestBaseUnit(t *testing.T) {
	r := mustLoad(t)
	def := r.BaseUnit(calctypes.Dimension{calctypes.DimLength: 1})
	require.NotNil(t, def)
	assert.Equal(t, "meter", def.Name)

	// Temperature base unit must be kelvin, not an offset scale.
	def = r.BaseUnit(calctypes.Dimension{calctypes.DimTemperature: 1})
	require.NotNil(t, def)
	assert.Equal(t, "kelvin", def.Name)
}

func TestCheckAdditive_DimensionMismatch(t *testing.T) {
	a := calctypes.Quantity{Dim: calctypes.Dimension{calctypes.DimLength: 1}}
	b := calctypes.Quantity{Dim: calctypes.Dimension{calctypes.DimTime: 1}}

	_, err := CheckAdditive("+", a, b, nil)
	var derr *calctypes.DimensionError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "+", derr.Op)
}

func TestCheckAdditive_TemperatureRules(t *testing.T) {
	tempDim := calctypes.Dimension{calctypes.DimTemperature: 1}
	abs := calctypes.Quantity{Dim: tempDim, Temperature: calctypes.TempAbsolute}
	delta := calctypes.Quantity{Dim: tempDim, Temperature: calctypes.TempDelta}

	t.Run("absolute plus absolute rejected with mandatory hint", func(t *testing.T) {
		col := hints.NewCollector(context.New())
		_, err := CheckAdditive("+", abs, abs, col)
		var terr *calctypes.TemperatureOffsetError
		require.ErrorAs(t, err, &terr)

		hs := col.Hints()
		require.Len(t, hs, 1)
		assert.False(t, hs[0].Suppressible, "first occurrence must not be suppressible")
	})

	t.Run("absolute minus absolute yields delta", func(t *testing.T) {
		col := hints.NewCollector(context.New())
		kind, err := CheckAdditive("-", abs, abs, col)
		require.NoError(t, err)
		assert.Equal(t, calctypes.TempDelta, kind)
		require.Len(t, col.Hints(), 1)
	})

	t.Run("absolute plus delta stays absolute", func(t *testing.T) {
		col := hints.NewCollector(context.New())
		kind, err := CheckAdditive("+", abs, delta, col)
		require.NoError(t, err)
		assert.Equal(t, calctypes.TempAbsolute, kind)
	})

	t.Run("second occurrence in a session is suppressible", func(t *testing.T) {
		ctx := context.New()
		col := hints.NewCollector(ctx)
		_, err := CheckAdditive("-", abs, abs, col)
		require.NoError(t, err)
		require.False(t, col.Hints()[0].Suppressible)

		col2 := hints.NewCollector(ctx)
		_, err = CheckAdditive("-", abs, abs, col2)
		require.NoError(t, err)
		require.True(t, col2.Hints()[0].Suppressible)
	})

	t.Run("delta plus delta is plain delta arithmetic", func(t *testing.T) {
		col := hints.NewCollector(context.New())
		kind, err := CheckAdditive("+", delta, delta, col)
		require.NoError(t, err)
		assert.Equal(t, calctypes.TempDelta, kind)
		assert.Empty(t, col.Hints())
	})
}

func TestCombineMultiplicative(t *testing.T) {
	km := calctypes.Quantity{Dim: calctypes.Dimension{calctypes.DimLength: 1}}
	s := calctypes.Quantity{Dim: calctypes.Dimension{calctypes.DimTime: 1}}

	speed := CombineMultiplicative("/", km, s)
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 1, calctypes.DimTime: -1}, speed)

	area := CombineMultiplicative("*", km, km)
	assert.Equal(t, calctypes.Dimension{calctypes.DimLength: 2}, area)

	// Same-dimension division cancels to dimensionless.
	ratio := CombineMultiplicative("/", km, km)
	assert.True(t, ratio.IsDimensionless())
}

func TestKnownTokens(t *testing.T) {
	r := mustLoad(t)
	tokens := r.KnownTokens()
	assert.Contains(t, tokens, "km")
	assert.Contains(t, tokens, "h")
	assert.Contains(t, tokens, "hour")
	assert.Contains(t, tokens, "delta_degC")
}

package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/internal/algebra"
	"unitcalc/internal/context"
	"unitcalc/internal/evaluator"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

func newFixture(t *testing.T) (*Formatter, *evaluator.Evaluator) {
	t.Helper()
	reg, err := units.Load()
	require.NoError(t, err)
	engine := algebra.New()
	ev := evaluator.New(engine, reg, context.New())
	return NewFormatter(engine, reg), ev
}

func render(t *testing.T, f *Formatter, ev *evaluator.Evaluator, input string) string {
	t.Helper()
	res, err := ev.Evaluate(input)
	require.NoError(t, err)
	s, err := f.FormatResult(res)
	require.NoError(t, err)
	return s
}

func TestFormatResult_Numbers(t *testing.T) {
	f, ev := newFixture(t)

	assert.Equal(t, "3000", render(t, f, ev, "12 km / 4 m"))
	assert.Equal(t, "0.66666667", render(t, f, ev, "2/3"))
	assert.Equal(t, "true", render(t, f, ev, "1 + 1 = 2"))
}

func TestFormatResult_Units(t *testing.T) {
	f, ev := newFixture(t)

	assert.Equal(t, "2000 m", render(t, f, ev, "2 km to m"))
	assert.Equal(t, "12 m^2", render(t, f, ev, "3 m * 4 m"))
	assert.Equal(t, "1.5 km", render(t, f, ev, "1500 m to best"))
	assert.Equal(t, "1500 m", render(t, f, ev, "1.5 km to base"))
}

func TestFormatResult_Symbolic(t *testing.T) {
	f, ev := newFixture(t)
	s := render(t, f, ev, "x + x + 1")
	assert.Contains(t, s, "x")
}

func TestFormatResult_Matrix(t *testing.T) {
	f, ev := newFixture(t)
	s := render(t, f, ev, "[1, 2; 3, 4] + [1, 1; 1, 1]")
	assert.Equal(t, "[[2, 3], [4, 5]]", s)
}

func TestFormatOutcome_Statuses(t *testing.T) {
	f, ev := newFixture(t)
	res, err := ev.Evaluate("1 + 1")
	require.NoError(t, err)
	ledger := res.Ledger

	truth := true
	s, err := f.FormatOutcome(&calctypes.SolveOutcome{Status: calctypes.StatusTruth, Truth: &truth}, ledger)
	require.NoError(t, err)
	assert.Equal(t, "true", s)

	s, err = f.FormatOutcome(&calctypes.SolveOutcome{
		Status:   calctypes.StatusUnsolvable,
		Variable: "x",
	}, ledger)
	require.NoError(t, err)
	assert.Contains(t, s, "starting point")

	s, err = f.FormatOutcome(&calctypes.SolveOutcome{
		Status:   calctypes.StatusNoConvergence,
		Variable: "x",
		Attempts: []calctypes.AttemptReport{
			{Start: calctypes.StartingPoint{Value: "1.0"}, Terminal: calctypes.TerminalDiverged, Iterations: 2},
		},
	}, ledger)
	require.NoError(t, err)
	assert.Contains(t, s, "Diverged")
	assert.Contains(t, s, "1.0")
}

func TestFormatHints(t *testing.T) {
	f, _ := newFixture(t)
	lines := f.FormatHints([]calctypes.Hint{
		{Kind: calctypes.HintAmbiguousUnit, Message: "ambiguous", SuppressKey: "k", Suppressible: true},
		{Kind: calctypes.HintTemperatureOffset, Message: "offset"},
	})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], ":suppress k")
	assert.NotContains(t, lines[1], ":suppress")
}

func TestPrinter_PlainMode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(WithWriter(&buf), WithPlain())
	p.Result("42")
	p.Hint("hint: something")
	out := buf.String()
	assert.Equal(t, "42\nhint: something\n", out)
	assert.False(t, strings.Contains(out, "\x1b["))
}

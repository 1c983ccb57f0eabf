package shell

import (
	"bytes"
	gocontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/internal/context"
	"unitcalc/internal/output"
	"unitcalc/internal/services"
)

func setupShell(t *testing.T) *bytes.Buffer {
	t.Helper()
	old := services.GetGlobalRegistry()
	services.SetGlobalRegistry(services.NewRegistry())
	context.ResetGlobalContext()
	t.Cleanup(func() { services.SetGlobalRegistry(old) })

	registry := services.GetGlobalRegistry()
	require.NoError(t, registry.RegisterService(services.NewCalcService()))
	require.NoError(t, registry.RegisterService(services.NewSolveService()))
	require.NoError(t, registry.InitializeAll())

	return &bytes.Buffer{}
}

func process(t *testing.T, buf *bytes.Buffer, line string) string {
	t.Helper()
	buf.Reset()
	p := output.NewPrinter(output.WithWriter(buf), output.WithPlain())
	ProcessLine(gocontext.Background(), line, p)
	return buf.String()
}

func TestProcessLine_Evaluate(t *testing.T) {
	buf := setupShell(t)
	assert.Contains(t, process(t, buf, "12 km / 4 m"), "3000")
	assert.Contains(t, process(t, buf, "2 km to m"), "2000 m")
}

func TestProcessLine_OpenEquationGoesToSolver(t *testing.T) {
	buf := setupShell(t)
	out := process(t, buf, "2*x = 8")
	assert.Contains(t, out, "x = 4")
}

func TestProcessLine_SolveCommand(t *testing.T) {
	buf := setupShell(t)
	out := process(t, buf, "solve sin(x) = exp(x) from -3.0")
	assert.Contains(t, out, "≈ -3.183063")
}

func TestProcessLine_SessionCommands(t *testing.T) {
	buf := setupShell(t)

	out := process(t, buf, ":precision 4")
	assert.Contains(t, out, "4")
	assert.Equal(t, 4, context.GetGlobalContext().OutputPrecision())

	assert.Contains(t, process(t, buf, "2/3"), "0.6667")

	out = process(t, buf, ":precision nope")
	assert.Contains(t, out, "bad precision")

	out = process(t, buf, ":bogus")
	assert.Contains(t, out, "unknown command")
}

func TestProcessLine_SuppressionRoundTrip(t *testing.T) {
	buf := setupShell(t)

	// "1 h" resolves ambiguously and hints; after suppression it stays quiet.
	out := process(t, buf, "1 h")
	assert.Contains(t, out, "hint:")

	process(t, buf, ":suppress ambiguous-unit:h")
	out = process(t, buf, "1 h")
	assert.NotContains(t, out, "hint:")
}

func TestProcessLine_HintsSurviveEvaluationError(t *testing.T) {
	buf := setupShell(t)
	out := process(t, buf, "0 degC + 5 degC")
	assert.Contains(t, out, "absolute temperatures")
	assert.Contains(t, out, "hint:")
}

func TestProcessLine_ErrorsDoNotPanic(t *testing.T) {
	buf := setupShell(t)
	out := process(t, buf, "1 m + 1 s")
	assert.Contains(t, out, "incompatible dimensions")

	out = process(t, buf, "solve")
	assert.Contains(t, out, "usage")
}

func TestParseSolveArgs(t *testing.T) {
	eq, variable, start, err := parseSolveArgs("x^2 = 4 for x from -1.5")
	require.NoError(t, err)
	assert.Equal(t, "x^2 = 4", eq)
	assert.Equal(t, "x", variable)
	require.NotNil(t, start)
	assert.Equal(t, "-1.5", start.Value)
	assert.Zero(t, start.Imag)

	eq, variable, start, err = parseSolveArgs("a*x = 1")
	require.NoError(t, err)
	assert.Equal(t, "a*x = 1", eq)
	assert.Empty(t, variable)
	assert.Nil(t, start)

	_, _, start, err = parseSolveArgs("x^2 = -4 from 1+2i")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.Equal(t, "1", start.Value)
	assert.Equal(t, 2.0, start.Imag)

	_, _, start, err = parseSolveArgs("x = 300 K from 200 K")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.Equal(t, "200", start.Value)
	assert.Equal(t, "K", start.Unit)

	_, _, _, err = parseSolveArgs("")
	assert.Error(t, err)
}

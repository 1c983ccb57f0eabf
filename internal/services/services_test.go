package services

import (
	gocontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/internal/context"
	"unitcalc/pkg/calctypes"
)

func withFreshRegistry(t *testing.T) *Registry {
	t.Helper()
	old := GetGlobalRegistry()
	reg := NewRegistry()
	SetGlobalRegistry(reg)
	context.ResetGlobalContext()
	t.Cleanup(func() { SetGlobalRegistry(old) })
	return reg
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	svc := NewCalcService()
	require.NoError(t, reg.RegisterService(svc))

	got, err := reg.GetService("calc")
	require.NoError(t, err)
	assert.Equal(t, svc, got)

	assert.Error(t, reg.RegisterService(NewCalcService()), "duplicate registration must fail")

	_, err = reg.GetService("missing")
	assert.Error(t, err)
}

func TestCalcService_Evaluate(t *testing.T) {
	reg := withFreshRegistry(t)
	calc := NewCalcService()
	require.NoError(t, reg.RegisterService(calc))
	require.NoError(t, reg.InitializeAll())

	res, err := calc.Evaluate("2 + 3")
	require.NoError(t, err)
	require.NotNil(t, res.Value.Quantity)

	s, err := calc.Formatter().FormatResult(res)
	require.NoError(t, err)
	assert.Equal(t, "5", s)
}

func TestSolveService_SolvesEquation(t *testing.T) {
	reg := withFreshRegistry(t)
	calc := NewCalcService()
	solve := NewSolveService()
	require.NoError(t, reg.RegisterService(calc))
	require.NoError(t, reg.RegisterService(solve))
	require.NoError(t, reg.InitializeAll())

	outcome, ledger, err := solve.SolveInput(gocontext.Background(), "2*x = 8", "", nil)
	require.NoError(t, err)
	require.NotNil(t, ledger)
	assert.Equal(t, calctypes.StatusAnalytic, outcome.Status)
	require.Len(t, outcome.Solutions, 1)

	s, err := calc.Formatter().FormatOutcome(outcome, ledger)
	require.NoError(t, err)
	assert.Equal(t, "x = 4", s)
}

func TestSolveService_RejectsNonEquation(t *testing.T) {
	reg := withFreshRegistry(t)
	calc := NewCalcService()
	solve := NewSolveService()
	require.NoError(t, reg.RegisterService(calc))
	require.NoError(t, reg.RegisterService(solve))
	require.NoError(t, reg.InitializeAll())

	_, _, err := solve.SolveInput(gocontext.Background(), "2 + 2", "", nil)
	assert.Error(t, err)
}

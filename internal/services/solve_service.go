package services

import (
	gocontext "context"
	"fmt"

	"unitcalc/internal/context"
	"unitcalc/internal/parser"
	"unitcalc/internal/precision"
	"unitcalc/internal/solver"
	"unitcalc/pkg/calctypes"
)

// SolveService runs equation solving on top of the calc service's engine and
// evaluator.
type SolveService struct {
	initialized bool
	solver      *solver.Solver
	calc        *CalcService
}

// NewSolveService creates an uninitialized solve service.
func NewSolveService() *SolveService {
	return &SolveService{}
}

// Name returns "solver" for registration.
func (s *SolveService) Name() string {
	return "solver"
}

// Initialize locates the calc service and builds the solver over its shared
// components.
func (s *SolveService) Initialize() error {
	if s.initialized {
		return nil
	}
	svc, err := GetGlobalRegistry().GetService("calc")
	if err != nil {
		return fmt.Errorf("solve service requires the calc service: %w", err)
	}
	calc, ok := svc.(*CalcService)
	if !ok {
		return fmt.Errorf("unexpected calc service type %T", svc)
	}
	s.calc = calc
	s.solver = solver.New(calc.Engine(), calc.Evaluator(), calc.Units(), context.GetGlobalContext())
	s.initialized = true
	return nil
}

// SetMaxIterations forwards the configured iteration cap to the solver.
func (s *SolveService) SetMaxIterations(n int) error {
	if !s.initialized {
		return fmt.Errorf("solve service not initialized")
	}
	return s.solver.SetMaxIterations(n)
}

// SolveInput parses an equation line and solves it. The returned ledger is
// the one the solve ran under; the formatter needs it to round solutions.
func (s *SolveService) SolveInput(goCtx gocontext.Context, input, variable string, start *calctypes.StartingPoint) (*calctypes.SolveOutcome, *precision.Ledger, error) {
	if !s.initialized {
		return nil, nil, fmt.Errorf("solve service not initialized")
	}
	root, err := parser.Parse(input)
	if err != nil {
		return nil, nil, err
	}
	if root.Kind != calctypes.NodeBinary || root.Op != "=" {
		return nil, nil, fmt.Errorf("input is not an equation: %q", input)
	}
	return s.SolveTree(goCtx, root, variable, start)
}

// SolveTree solves an already parsed equation tree. The shell uses this when
// an evaluation reports an open equation.
func (s *SolveService) SolveTree(goCtx gocontext.Context, root *calctypes.ExpressionNode, variable string, start *calctypes.StartingPoint) (*calctypes.SolveOutcome, *precision.Ledger, error) {
	if !s.initialized {
		return nil, nil, fmt.Errorf("solve service not initialized")
	}
	ledger, err := s.calc.Evaluator().DeriveLedger(root)
	if err != nil {
		return nil, nil, err
	}
	req := calctypes.SolveRequest{
		LHS:      root.Children[0],
		RHS:      root.Children[1],
		Variable: variable,
		Start:    start,
	}
	outcome, err := s.solver.Solve(goCtx, req)
	if err != nil {
		return nil, nil, err
	}
	return outcome, ledger, nil
}

package services

import (
	"fmt"

	"unitcalc/internal/algebra"
	"unitcalc/internal/context"
	"unitcalc/internal/evaluator"
	"unitcalc/internal/output"
	"unitcalc/internal/units"
	"unitcalc/pkg/calctypes"
)

// CalcService owns the evaluation pipeline: the algebra engine, the unit
// registry, the evaluator, and the result formatter. Other services borrow
// these components instead of building their own, so one session sees one
// consistent unit table.
type CalcService struct {
	initialized bool
	engine      calctypes.AlgebraEngine
	units       *units.Registry
	evaluator   *evaluator.Evaluator
	formatter   *output.Formatter
}

// NewCalcService creates an uninitialized calc service.
func NewCalcService() *CalcService {
	return &CalcService{}
}

// Name returns "calc" for registration.
func (c *CalcService) Name() string {
	return "calc"
}

// Initialize builds the engine, loads the unit table, and wires the
// evaluator against the global session context.
func (c *CalcService) Initialize() error {
	if c.initialized {
		return nil
	}
	reg, err := units.Load()
	if err != nil {
		return fmt.Errorf("failed to load unit table: %w", err)
	}
	c.engine = algebra.New()
	c.units = reg
	c.evaluator = evaluator.New(c.engine, reg, context.GetGlobalContext())
	c.formatter = output.NewFormatter(c.engine, reg)
	c.initialized = true
	return nil
}

// Evaluate runs the evaluation pipeline on one input line.
func (c *CalcService) Evaluate(input string) (*evaluator.Result, error) {
	if !c.initialized {
		return nil, fmt.Errorf("calc service not initialized")
	}
	return c.evaluator.Evaluate(input)
}

// Engine exposes the shared algebra engine.
func (c *CalcService) Engine() calctypes.AlgebraEngine { return c.engine }

// Units exposes the shared unit registry.
func (c *CalcService) Units() *units.Registry { return c.units }

// Evaluator exposes the shared evaluator.
func (c *CalcService) Evaluator() *evaluator.Evaluator { return c.evaluator }

// Formatter exposes the shared result formatter.
func (c *CalcService) Formatter() *output.Formatter { return c.formatter }

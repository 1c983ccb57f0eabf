package calctypes

import "fmt"

// InvalidPrecisionError reports a requested output precision that is not a
// positive number of significant digits.
type InvalidPrecisionError struct {
	Requested int
}

func (e *InvalidPrecisionError) Error() string {
	return fmt.Sprintf("invalid precision: %d (must be a positive number of significant digits)", e.Requested)
}

// DimensionError reports incompatible dimensions in addition, subtraction, or
// comparison. Node identifies the offending subtree when known.
type DimensionError struct {
	Op    string
	Left  Dimension
	Right Dimension
	Node  *ExpressionNode
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("incompatible dimensions for %q: %s vs %s", e.Op, e.Left.Describe(), e.Right.Describe())
}

// IncompatibleDimensionsError reports a failed explicit unit conversion.
type IncompatibleDimensionsError struct {
	From       Dimension
	To         Dimension
	TargetUnit string
}

func (e *IncompatibleDimensionsError) Error() string {
	return fmt.Sprintf("cannot convert %s to %q (%s)", e.From.Describe(), e.TargetUnit, e.To.Describe())
}

// AmbiguousUnitSyntaxError reports adjacent unit tokens that could be read
// either as a product of units or as a single combined unit token.
type AmbiguousUnitSyntaxError struct {
	Tokens   []string
	Combined string
}

func (e *AmbiguousUnitSyntaxError) Error() string {
	return fmt.Sprintf("ambiguous unit syntax: %v could mean the single unit %q or a product of units", e.Tokens, e.Combined)
}

// TemperatureOffsetError reports an arithmetic operation on absolute
// (offset-scale) temperatures that has no well-defined meaning, e.g. adding
// two absolute temperatures. Re-express one operand with a temperature
// difference unit (delta_degC, delta_degF) to proceed.
type TemperatureOffsetError struct {
	Op string
}

func (e *TemperatureOffsetError) Error() string {
	return fmt.Sprintf("operation %q is undefined for absolute temperatures; use a temperature difference unit (e.g. delta_degC)", e.Op)
}

// UnknownUnitError reports an unresolvable unit token.
type UnknownUnitError struct {
	Token string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit: %s", e.Token)
}

// UnknownFunctionError reports a call to a function that is not registered.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function: %s", e.Name)
}

// UnknownConstantError reports an identifier that is neither a constant, a
// unit, nor an allowed free variable.
type UnknownConstantError struct {
	Name string
}

func (e *UnknownConstantError) Error() string {
	return fmt.Sprintf("unknown constant or variable: %s", e.Name)
}

// WrongNumberOfArgumentsError reports a function call with an argument count
// outside the registered arity range.
type WrongNumberOfArgumentsError struct {
	Name string
	Got  int
	Min  int
	Max  int
}

func (e *WrongNumberOfArgumentsError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("function %s takes %d argument(s), got %d", e.Name, e.Min, e.Got)
	}
	return fmt.Sprintf("function %s takes %d to %d arguments, got %d", e.Name, e.Min, e.Max, e.Got)
}

// VariableLengthRowsError reports a matrix literal whose rows differ in length.
type VariableLengthRowsError struct {
	Rows []int
}

func (e *VariableLengthRowsError) Error() string {
	return fmt.Sprintf("rows of matrix have different lengths: %v", e.Rows)
}

// ShapeError reports a matrix operation on incompatible shapes.
type ShapeError struct {
	Op                   string
	LeftRows, LeftCols   int
	RightRows, RightCols int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch for %q: %dx%d vs %dx%d", e.Op, e.LeftRows, e.LeftCols, e.RightRows, e.RightCols)
}

// EvalError tags any evaluation failure with the offending subtree so the
// caller can surface the exact operation that failed rather than a generic
// evaluation error.
type EvalError struct {
	Node *ExpressionNode
	Err  error
}

func (e *EvalError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("%v (in %q)", e.Err, e.Node.Source())
	}
	return e.Err.Error()
}

func (e *EvalError) Unwrap() error { return e.Err }

package calctypes

// TemperatureKind distinguishes offset-scale temperature quantities from the
// offset-free temperature difference family. Arithmetic rules differ: only
// differences behave like ordinary linear quantities.
type TemperatureKind int

const (
	// TempNone marks a quantity that is not temperature-like, or a plain
	// kelvin value produced by multiplicative arithmetic.
	TempNone TemperatureKind = iota
	// TempAbsolute marks a value entered in an offset scale (degC, degF).
	TempAbsolute
	// TempDelta marks an explicit temperature difference (delta_degC, ...).
	TempDelta
)

// Quantity is a symbolic or numeric value with an attached dimension vector
// and a provenance precision. The magnitude is always held in base units;
// display conversion happens at the presentation layer.
type Quantity struct {
	Magnitude Expr
	Dim       Dimension
	// Precision is the number of significant digits implied by the inputs
	// that produced this value. Zero means exact (no literal provenance).
	Precision int
	// Temperature tracks the offset-scale bookkeeping for this value.
	Temperature TemperatureKind
}

// IsSymbolic reports whether the magnitude still contains free variables.
func (q Quantity) IsSymbolic() bool {
	return q.Magnitude != nil && len(q.Magnitude.FreeSymbols()) > 0
}

// String renders the magnitude followed by the base-unit symbols.
func (q Quantity) String() string {
	if q.Magnitude == nil {
		return ""
	}
	if q.Dim.IsDimensionless() {
		return q.Magnitude.String()
	}
	return q.Magnitude.String() + " " + q.Dim.String()
}

// Matrix is a rectangular value of quantities. Row-vector literals are
// matrices with a single row.
type Matrix struct {
	Rows, Cols int
	Cells      []Quantity // row-major
}

// At returns the cell at row r, column c.
func (m *Matrix) At(r, c int) Quantity {
	return m.Cells[r*m.Cols+c]
}

// IsRowVector reports whether the matrix has exactly one row.
func (m *Matrix) IsRowVector() bool { return m.Rows == 1 }

// Value is the result of one evaluation: exactly one of the fields is set.
// Bool results come from equality tests that reduce to a truth value.
type Value struct {
	Quantity *Quantity
	Matrix   *Matrix
	Bool     *bool
}

package evaluator

import (
	"fmt"

	"unitcalc/internal/hints"
	"unitcalc/internal/precision"
	"unitcalc/pkg/calctypes"
)

// evalMatrix builds a matrix value from a literal. All rows must have the
// same length; cells may carry units and free variables.
func (ev *Evaluator) evalMatrix(node *calctypes.ExpressionNode, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	rows := len(node.Children)
	lengths := make([]int, rows)
	for i, row := range node.Children {
		lengths[i] = len(row.Children)
	}
	for _, l := range lengths[1:] {
		if l != lengths[0] {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.VariableLengthRowsError{Rows: lengths}}
		}
	}

	m := &calctypes.Matrix{Rows: rows, Cols: lengths[0]}
	for _, row := range node.Children {
		for _, cellNode := range row.Children {
			v, err := ev.evalNode(cellNode, ledger, col)
			if err != nil {
				return calctypes.Value{}, err
			}
			if v.Quantity == nil {
				return calctypes.Value{}, &calctypes.EvalError{Node: cellNode, Err: fmt.Errorf("matrix cells must be scalar quantities")}
			}
			m.Cells = append(m.Cells, *v.Quantity)
		}
	}
	return calctypes.Value{Matrix: m}, nil
}

func (ev *Evaluator) evalMatrixBinary(node *calctypes.ExpressionNode, left, right calctypes.Value, ledger *precision.Ledger, col *hints.Collector) (calctypes.Value, error) {
	switch node.Op {
	case "+", "-":
		if left.Matrix == nil || right.Matrix == nil {
			return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("cannot add a matrix and a scalar")}
		}
		return ev.addMatrices(node, left.Matrix, right.Matrix, col)
	case "*":
		if left.Matrix != nil && right.Matrix != nil {
			return ev.mulMatrices(node, left.Matrix, right.Matrix, ledger)
		}
		if left.Matrix != nil {
			return ev.scaleMatrix(node, left.Matrix, *right.Quantity)
		}
		return ev.scaleMatrix(node, right.Matrix, *left.Quantity)
	case "/":
		if left.Matrix != nil && right.Matrix == nil {
			return ev.scaleMatrix(node, left.Matrix, *right.Quantity)
		}
	}
	return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: fmt.Errorf("unsupported matrix operation %q", node.Op)}
}

func (ev *Evaluator) addMatrices(node *calctypes.ExpressionNode, a, b *calctypes.Matrix, col *hints.Collector) (calctypes.Value, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.ShapeError{
			Op:       node.Op,
			LeftRows: a.Rows, LeftCols: a.Cols,
			RightRows: b.Rows, RightCols: b.Cols,
		}}
	}
	out := &calctypes.Matrix{Rows: a.Rows, Cols: a.Cols, Cells: make([]calctypes.Quantity, len(a.Cells))}
	for i := range a.Cells {
		v, err := ev.addQuantities(node, a.Cells[i], b.Cells[i], col)
		if err != nil {
			return calctypes.Value{}, err
		}
		out.Cells[i] = *v.Quantity
	}
	return calctypes.Value{Matrix: out}, nil
}

// scaleMatrix applies a scalar to every cell; node.Op decides between
// multiplication and division.
func (ev *Evaluator) scaleMatrix(node *calctypes.ExpressionNode, m *calctypes.Matrix, s calctypes.Quantity) (calctypes.Value, error) {
	out := &calctypes.Matrix{Rows: m.Rows, Cols: m.Cols, Cells: make([]calctypes.Quantity, len(m.Cells))}
	for i, cell := range m.Cells {
		v, err := ev.mulQuantities(node, cell, s)
		if err != nil {
			return calctypes.Value{}, err
		}
		out.Cells[i] = *v.Quantity
	}
	return calctypes.Value{Matrix: out}, nil
}

func (ev *Evaluator) scaleMatrixCells(m *calctypes.Matrix, f func(calctypes.Expr) calctypes.Expr) calctypes.Value {
	out := &calctypes.Matrix{Rows: m.Rows, Cols: m.Cols, Cells: make([]calctypes.Quantity, len(m.Cells))}
	for i, cell := range m.Cells {
		cell.Magnitude = f(cell.Magnitude)
		out.Cells[i] = cell
	}
	return calctypes.Value{Matrix: out}
}

// mulMatrices multiplies two matrices. When both operands are row-vector
// literals of equal length, the left one is read as a column vector, so the
// product is the n-by-n outer product. This matches handwritten vector
// notation, where "[a] * [b]" of two row vectors means a column times a row.
func (ev *Evaluator) mulMatrices(node *calctypes.ExpressionNode, a, b *calctypes.Matrix, ledger *precision.Ledger) (calctypes.Value, error) {
	if a.Cols != b.Rows {
		if a.IsRowVector() && b.IsRowVector() && a.Cols == b.Cols && bothMatrixLiterals(node) {
			return ev.outerProduct(node, a, b, ledger)
		}
		return calctypes.Value{}, &calctypes.EvalError{Node: node, Err: &calctypes.ShapeError{
			Op:       "*",
			LeftRows: a.Rows, LeftCols: a.Cols,
			RightRows: b.Rows, RightCols: b.Cols,
		}}
	}

	out := &calctypes.Matrix{Rows: a.Rows, Cols: b.Cols, Cells: make([]calctypes.Quantity, a.Rows*b.Cols)}
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			cell, err := ev.dotProduct(node, a, b, i, j, ledger)
			if err != nil {
				return calctypes.Value{}, err
			}
			out.Cells[i*b.Cols+j] = cell
		}
	}
	return calctypes.Value{Matrix: out}, nil
}

func bothMatrixLiterals(node *calctypes.ExpressionNode) bool {
	return len(node.Children) == 2 &&
		node.Children[0].Kind == calctypes.NodeMatrix &&
		node.Children[1].Kind == calctypes.NodeMatrix
}

func (ev *Evaluator) outerProduct(node *calctypes.ExpressionNode, a, b *calctypes.Matrix, ledger *precision.Ledger) (calctypes.Value, error) {
	n := a.Cols
	out := &calctypes.Matrix{Rows: n, Cols: n, Cells: make([]calctypes.Quantity, n*n)}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v, err := ev.mulQuantities(node, a.At(0, i), b.At(0, j))
			if err != nil {
				return calctypes.Value{}, err
			}
			q := *v.Quantity
			q.Magnitude = ev.engine.Simplify(q.Magnitude, ledger.Working)
			out.Cells[i*n+j] = q
		}
	}
	return calctypes.Value{Matrix: out}, nil
}

// dotProduct computes one cell of a matrix product. Every term must land on
// the same dimension vector or the product has no meaning.
func (ev *Evaluator) dotProduct(node *calctypes.ExpressionNode, a, b *calctypes.Matrix, i, j int, ledger *precision.Ledger) (calctypes.Quantity, error) {
	var acc calctypes.Quantity
	for k := 0; k < a.Cols; k++ {
		v, err := ev.mulQuantities(node, a.At(i, k), b.At(k, j))
		if err != nil {
			return calctypes.Quantity{}, err
		}
		term := *v.Quantity
		if k == 0 {
			acc = term
			continue
		}
		if term.Dim != acc.Dim {
			return calctypes.Quantity{}, &calctypes.EvalError{Node: node, Err: &calctypes.DimensionError{
				Op: "+", Left: acc.Dim, Right: term.Dim,
			}}
		}
		acc.Magnitude = ev.engine.Add(acc.Magnitude, term.Magnitude)
		acc.Precision = maxPrecision(acc.Precision, term.Precision)
	}
	acc.Magnitude = ev.engine.Simplify(acc.Magnitude, ledger.Working)
	return acc, nil
}

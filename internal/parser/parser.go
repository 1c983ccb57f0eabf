package parser

import (
	"fmt"
	"strings"

	"unitcalc/pkg/calctypes"
)

// ParseError wraps a syntax failure with the original input line.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse turns one input line into an expression tree. An input containing
// "=" yields a NodeBinary "=" root; a conversion suffix yields a NodeConvert
// node on the affected side.
func Parse(input string) (*calctypes.ExpressionNode, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Input: input, Err: fmt.Errorf("empty input")}
	}
	ast, err := lineParser.ParseString("", input)
	if err != nil {
		return nil, &ParseError{Input: input, Err: err}
	}
	return convertLine(ast), nil
}

func convertLine(l *line) *calctypes.ExpressionNode {
	left := convertConversion(l.Left)
	if l.Right == nil {
		return left
	}
	right := convertConversion(l.Right)
	return &calctypes.ExpressionNode{
		Kind:     calctypes.NodeBinary,
		Op:       "=",
		Children: []*calctypes.ExpressionNode{left, right},
		Offset:   left.Offset,
	}
}

func convertConversion(c *conversion) *calctypes.ExpressionNode {
	expr := convertAdd(c.Expr)
	if c.Target == nil {
		return expr
	}
	t := c.Target
	node := &calctypes.ExpressionNode{
		Kind:   calctypes.NodeConvert,
		Offset: expr.Offset,
	}
	switch {
	case t.Base:
		node.Op = "base"
		node.Children = []*calctypes.ExpressionNode{expr, {
			Kind: calctypes.NodeIdent, Text: "base", Offset: t.Pos.Offset,
		}}
	case t.Best:
		node.Op = "best"
		node.Children = []*calctypes.ExpressionNode{expr, {
			Kind: calctypes.NodeIdent, Text: "best", Offset: t.Pos.Offset,
		}}
	default:
		node.Op = "unit"
		node.Children = []*calctypes.ExpressionNode{expr, convertUnitExpr(t.Unit)}
	}
	return node
}

func convertUnitExpr(u *unitExpr) *calctypes.ExpressionNode {
	out := convertUnitFactor(u.First)
	for _, op := range u.Rest {
		o := op.Op
		if o == "" || o == "·" {
			o = "*"
		}
		out = &calctypes.ExpressionNode{
			Kind:     calctypes.NodeBinary,
			Op:       o,
			Children: []*calctypes.ExpressionNode{out, convertUnitFactor(op.Term)},
			Offset:   out.Offset,
		}
	}
	return out
}

func convertUnitFactor(f *unitFactor) *calctypes.ExpressionNode {
	ident := &calctypes.ExpressionNode{
		Kind:   calctypes.NodeIdent,
		Text:   f.Name,
		Offset: f.Pos.Offset,
	}
	if f.Exp == nil {
		return ident
	}
	return &calctypes.ExpressionNode{
		Kind: calctypes.NodeBinary,
		Op:   "^",
		Children: []*calctypes.ExpressionNode{ident, {
			Kind: calctypes.NodeLiteral, Text: *f.Exp, Offset: f.Pos.Offset,
		}},
		Offset: f.Pos.Offset,
	}
}

func convertAdd(a *addExpr) *calctypes.ExpressionNode {
	out := convertMul(a.Left)
	for _, op := range a.Rest {
		out = &calctypes.ExpressionNode{
			Kind:     calctypes.NodeBinary,
			Op:       op.Op,
			Children: []*calctypes.ExpressionNode{out, convertMul(op.Term)},
			Offset:   out.Offset,
		}
	}
	return out
}

// implicitProduct marks juxtaposed factors ("12 km") so the evaluator can
// flag adjacent unit tokens whose concatenation is itself a unit.
const implicitProduct = "implicit"

func convertMul(m *mulExpr) *calctypes.ExpressionNode {
	out := convertJuxta(m.Left)
	for _, op := range m.Rest {
		o := op.Op
		if o == "·" {
			o = "*"
		}
		if o == "÷" {
			o = "/"
		}
		out = &calctypes.ExpressionNode{
			Kind:     calctypes.NodeBinary,
			Op:       o,
			Children: []*calctypes.ExpressionNode{out, convertJuxta(op.Term)},
			Offset:   out.Offset,
		}
	}
	return out
}

// convertJuxta folds "12 km" or "5 m s" left to right into implicit products
// that bind tighter than any explicit multiplicative operator.
func convertJuxta(j *juxtaExpr) *calctypes.ExpressionNode {
	out := convertUnary(j.Left)
	for _, factor := range j.Rest {
		out = &calctypes.ExpressionNode{
			Kind:     calctypes.NodeBinary,
			Op:       "*",
			Text:     implicitProduct,
			Children: []*calctypes.ExpressionNode{out, convertPow(factor)},
			Offset:   out.Offset,
		}
	}
	return out
}

func convertUnary(u *unary) *calctypes.ExpressionNode {
	inner := convertPow(u.Expr)
	if u.Sign != "-" {
		return inner
	}
	return &calctypes.ExpressionNode{
		Kind:     calctypes.NodeUnary,
		Op:       "-",
		Children: []*calctypes.ExpressionNode{inner},
		Offset:   u.Pos.Offset,
	}
}

func convertPow(p *powExpr) *calctypes.ExpressionNode {
	base := convertPostfix(p.Base)
	if p.Exp == nil {
		return base
	}
	return &calctypes.ExpressionNode{
		Kind:     calctypes.NodeBinary,
		Op:       "^",
		Children: []*calctypes.ExpressionNode{base, convertUnary(p.Exp)},
		Offset:   base.Offset,
	}
}

func convertPostfix(p *postfix) *calctypes.ExpressionNode {
	out := convertPrimary(p.Primary)
	for range p.Bangs {
		out = &calctypes.ExpressionNode{
			Kind:     calctypes.NodePostfix,
			Op:       "!",
			Children: []*calctypes.ExpressionNode{out},
			Offset:   out.Offset,
		}
	}
	return out
}

func convertPrimary(p *primary) *calctypes.ExpressionNode {
	switch {
	case p.Number != nil:
		return &calctypes.ExpressionNode{
			Kind:   calctypes.NodeLiteral,
			Text:   *p.Number,
			Offset: p.Pos.Offset,
		}
	case p.Call != nil:
		args := make([]*calctypes.ExpressionNode, len(p.Call.Args))
		for i, a := range p.Call.Args {
			args[i] = convertAdd(a)
		}
		return &calctypes.ExpressionNode{
			Kind:     calctypes.NodeCall,
			Op:       p.Call.Name,
			Children: args,
			Offset:   p.Call.Pos.Offset,
		}
	case p.Ident != nil:
		return &calctypes.ExpressionNode{
			Kind:   calctypes.NodeIdent,
			Text:   *p.Ident,
			Offset: p.Pos.Offset,
		}
	case p.Paren != nil:
		return convertAdd(p.Paren)
	default:
		rows := make([]*calctypes.ExpressionNode, len(p.Matrix.Rows))
		for i, r := range p.Matrix.Rows {
			cells := make([]*calctypes.ExpressionNode, len(r.Cells))
			for j, c := range r.Cells {
				cells[j] = convertAdd(c)
			}
			rows[i] = &calctypes.ExpressionNode{
				Kind:     calctypes.NodeRow,
				Children: cells,
				Offset:   p.Matrix.Pos.Offset,
			}
		}
		return &calctypes.ExpressionNode{
			Kind:     calctypes.NodeMatrix,
			Children: rows,
			Offset:   p.Matrix.Pos.Offset,
		}
	}
}

// IsImplicitProduct reports whether a binary node came from juxtaposition
// rather than an explicit operator.
func IsImplicitProduct(n *calctypes.ExpressionNode) bool {
	return n.Kind == calctypes.NodeBinary && n.Op == "*" && n.Text == implicitProduct
}

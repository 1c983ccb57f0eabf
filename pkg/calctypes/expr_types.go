package calctypes

import "strings"

// NodeKind tags an ExpressionNode with the construct it represents.
type NodeKind int

// Expression node kinds.
const (
	NodeLiteral NodeKind = iota // numeric literal, Text holds the raw token
	NodeIdent                   // identifier: constant, unit token, or free variable
	NodeBinary                  // Op in + - * / // ^ =
	NodeUnary                   // Op in + -
	NodePostfix                 // Op is !
	NodeCall                    // function call, Op is the function name
	NodeMatrix                  // matrix literal; children are rows (NodeRow)
	NodeRow                     // one matrix row; children are the cells
	NodeConvert                 // "<expr> to <unit-expr>"; children[0] expr, children[1] target
)

// ExpressionNode is the annotated parse tree consumed by the evaluator. For
// literals, Text carries the exact token as typed so the number of written
// significant digits can be recovered. For identifiers, Text carries the
// token; whether it names a constant, a unit, or a free variable is decided
// during evaluation, not during parsing.
type ExpressionNode struct {
	Kind     NodeKind
	Op       string
	Text     string
	Children []*ExpressionNode

	// Offset is the rune offset of the node's first token in the input,
	// used to report the offending subtree on failure.
	Offset int
}

// Source reconstructs a compact textual form of the subtree for error
// messages and hints. It is not guaranteed to round-trip through the parser.
func (n *ExpressionNode) Source() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case NodeLiteral, NodeIdent:
		return n.Text
	case NodeUnary:
		return n.Op + n.Children[0].Source()
	case NodePostfix:
		return n.Children[0].Source() + n.Op
	case NodeBinary:
		return "(" + n.Children[0].Source() + " " + n.Op + " " + n.Children[1].Source() + ")"
	case NodeCall:
		args := make([]string, len(n.Children))
		for i, c := range n.Children {
			args[i] = c.Source()
		}
		return n.Op + "(" + strings.Join(args, ", ") + ")"
	case NodeConvert:
		return n.Children[0].Source() + " to " + n.Children[1].Source()
	case NodeMatrix:
		rows := make([]string, len(n.Children))
		for i, r := range n.Children {
			rows[i] = r.Source()
		}
		return "[" + strings.Join(rows, "; ") + "]"
	case NodeRow:
		cells := make([]string, len(n.Children))
		for i, c := range n.Children {
			cells[i] = c.Source()
		}
		return strings.Join(cells, ", ")
	}
	return ""
}

// Walk visits the subtree in depth-first pre-order. The visit function
// returning false prunes descent into the node's children.
func (n *ExpressionNode) Walk(visit func(*ExpressionNode) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Literal is a numeric token exactly as typed by the user, with its inferred
// decimal precision (number of significant digits written) and optional unit
// tag attached by the parser. Immutable once parsed.
type Literal struct {
	Text      string
	Precision int
	UnitToken string
}

// Expr is the narrow view of a backing-engine expression that the core needs:
// printable and introspectable for free symbols. Concrete representations
// live behind the AlgebraEngine interface.
type Expr interface {
	String() string
	// FreeSymbols returns the free variables in first-appearance order.
	FreeSymbols() []string
}

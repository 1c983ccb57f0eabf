package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitcalc/pkg/calctypes"
)

func parse(t *testing.T, input string) *calctypes.ExpressionNode {
	t.Helper()
	node, err := Parse(input)
	require.NoError(t, err, "input %q", input)
	return node
}

func TestParse_LiteralKeepsTypedDigits(t *testing.T) {
	node := parse(t, "1.50 + 2")
	require.Equal(t, calctypes.NodeBinary, node.Kind)
	assert.Equal(t, "+", node.Op)
	assert.Equal(t, "1.50", node.Children[0].Text)
	assert.Equal(t, "2", node.Children[1].Text)
}

func TestParse_JuxtaposedUnits(t *testing.T) {
	node := parse(t, "12 km / 4 m")
	require.Equal(t, "/", node.Op)

	left, right := node.Children[0], node.Children[1]
	assert.True(t, IsImplicitProduct(left))
	assert.True(t, IsImplicitProduct(right))
	assert.Equal(t, "12", left.Children[0].Text)
	assert.Equal(t, "km", left.Children[1].Text)
	assert.Equal(t, "4", right.Children[0].Text)
	assert.Equal(t, "m", right.Children[1].Text)
}

func TestParse_JuxtapositionBindsTighterThanExplicitOperators(t *testing.T) {
	node := parse(t, "2 km * 3 s")
	require.Equal(t, "*", node.Op)
	assert.False(t, IsImplicitProduct(node))
	assert.True(t, IsImplicitProduct(node.Children[0]))
	assert.True(t, IsImplicitProduct(node.Children[1]))
}

func TestParse_JuxtapositionDoesNotEatSubtraction(t *testing.T) {
	node := parse(t, "a - b")
	require.Equal(t, calctypes.NodeBinary, node.Kind)
	assert.Equal(t, "-", node.Op)
	assert.Equal(t, "a", node.Children[0].Text)
	assert.Equal(t, "b", node.Children[1].Text)
}

func TestParse_PowerIsRightAssociative(t *testing.T) {
	node := parse(t, "2^3^2")
	require.Equal(t, "^", node.Op)
	assert.Equal(t, "2", node.Children[0].Text)

	inner := node.Children[1]
	require.Equal(t, "^", inner.Op)
	assert.Equal(t, "3", inner.Children[0].Text)
	assert.Equal(t, "2", inner.Children[1].Text)
}

func TestParse_UnaryMinusBindsLooserThanPower(t *testing.T) {
	node := parse(t, "-2^2")
	require.Equal(t, calctypes.NodeUnary, node.Kind)
	assert.Equal(t, "^", node.Children[0].Op)
}

func TestParse_NegativeExponent(t *testing.T) {
	node := parse(t, "2^-3")
	require.Equal(t, "^", node.Op)
	assert.Equal(t, calctypes.NodeUnary, node.Children[1].Kind)
}

func TestParse_OperatorSpellings(t *testing.T) {
	for input, op := range map[string]string{
		"6 · 7":  "*",
		"6 ÷ 7":  "/",
		"2 ** 3": "^",
		"7 // 2": "//",
	} {
		node := parse(t, input)
		assert.Equal(t, op, node.Op, "input %q", input)
		assert.False(t, IsImplicitProduct(node), "input %q", input)
	}
}

func TestParse_Factorial(t *testing.T) {
	node := parse(t, "5!")
	require.Equal(t, calctypes.NodePostfix, node.Kind)
	assert.Equal(t, "!", node.Op)
	assert.Equal(t, "5", node.Children[0].Text)

	// Postfix binds tighter than addition.
	node = parse(t, "3! + 1")
	require.Equal(t, "+", node.Op)
	assert.Equal(t, calctypes.NodePostfix, node.Children[0].Kind)
}

func TestParse_FunctionCalls(t *testing.T) {
	node := parse(t, "sin(x)")
	require.Equal(t, calctypes.NodeCall, node.Kind)
	assert.Equal(t, "sin", node.Op)
	require.Len(t, node.Children, 1)
	assert.Equal(t, "x", node.Children[0].Text)

	node = parse(t, "atan2(1, 2)")
	require.Equal(t, calctypes.NodeCall, node.Kind)
	require.Len(t, node.Children, 2)
}

func TestParse_MatrixLiteral(t *testing.T) {
	node := parse(t, "[1, 2; 3, 4]")
	require.Equal(t, calctypes.NodeMatrix, node.Kind)
	require.Len(t, node.Children, 2)
	require.Len(t, node.Children[0].Children, 2)
	assert.Equal(t, "1", node.Children[0].Children[0].Text)
	assert.Equal(t, "4", node.Children[1].Children[1].Text)

	// A single row is a row vector.
	node = parse(t, "[1, 2, 3]")
	require.Len(t, node.Children, 1)
	require.Len(t, node.Children[0].Children, 3)
}

func TestParse_Equation(t *testing.T) {
	node := parse(t, "x + 1 = 2 m")
	require.Equal(t, "=", node.Op)
	assert.Equal(t, "+", node.Children[0].Op)
	assert.True(t, IsImplicitProduct(node.Children[1]))
}

func TestParse_ConversionTargets(t *testing.T) {
	node := parse(t, "12 m to km")
	require.Equal(t, calctypes.NodeConvert, node.Kind)
	assert.Equal(t, "unit", node.Op)
	assert.Equal(t, "km", node.Children[1].Text)

	node = parse(t, "x to base")
	require.Equal(t, calctypes.NodeConvert, node.Kind)
	assert.Equal(t, "base", node.Op)

	node = parse(t, "x to best")
	require.Equal(t, calctypes.NodeConvert, node.Kind)
	assert.Equal(t, "best", node.Op)
}

func TestParse_CompoundConversionTarget(t *testing.T) {
	// "to m s^-2": juxtaposed unit factors with an integer exponent.
	node := parse(t, "9.8 to m s^-2")
	require.Equal(t, calctypes.NodeConvert, node.Kind)

	target := node.Children[1]
	require.Equal(t, "*", target.Op)
	assert.Equal(t, "m", target.Children[0].Text)
	require.Equal(t, "^", target.Children[1].Op)
	assert.Equal(t, "s", target.Children[1].Children[0].Text)
	assert.Equal(t, "-2", target.Children[1].Children[1].Text)

	node = parse(t, "100 km/hr to m/s")
	require.Equal(t, calctypes.NodeConvert, node.Kind)
	assert.Equal(t, "/", node.Children[1].Op)
}

func TestParse_ToIsReserved(t *testing.T) {
	// Identifiers merely starting with "to" are still plain identifiers.
	node := parse(t, "tower + 1")
	assert.Equal(t, "tower", node.Children[0].Text)
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "1 +", "(1", "[1, 2; 3", "1 to"} {
		_, err := Parse(input)
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "input %q", input)
	}
}

func TestParse_OffsetsPointAtTokens(t *testing.T) {
	node := parse(t, "1 + foo")
	assert.Equal(t, 0, node.Offset)
	assert.Equal(t, 4, node.Children[1].Offset)
}

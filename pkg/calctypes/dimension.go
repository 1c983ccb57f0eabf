// Package calctypes defines the core types and architectural interfaces for
// unitcalc. It contains the data model shared between the evaluator, the unit
// algebra layer, and the solver: dimension vectors, quantities, expression
// nodes, hints, and solve requests/outcomes.
package calctypes

import (
	"fmt"
	"strings"
)

// Base dimension indices for the dimension vector. The order is fixed and is
// part of the public contract: exponents are compared positionally.
const (
	DimLength = iota
	DimMass
	DimTime
	DimCurrent
	DimTemperature
	DimAmount
	DimLuminosity
	NumBaseDimensions
)

var baseDimensionSymbols = [NumBaseDimensions]string{
	"m", "kg", "s", "A", "K", "mol", "cd",
}

var baseDimensionNames = [NumBaseDimensions]string{
	"length", "mass", "time", "current", "temperature", "amount", "luminosity",
}

// Dimension is a vector of exponents over the base physical dimensions.
// Quantities are dimension-compatible for addition and comparison exactly
// when their dimension vectors are equal.
type Dimension [NumBaseDimensions]int

// Dimensionless is the zero dimension vector.
var Dimensionless = Dimension{}

// IsDimensionless reports whether every exponent is zero.
func (d Dimension) IsDimensionless() bool {
	return d == Dimensionless
}

// Mul returns the dimension of a product: exponents are summed.
func (d Dimension) Mul(other Dimension) Dimension {
	var out Dimension
	for i := range d {
		out[i] = d[i] + other[i]
	}
	return out
}

// Div returns the dimension of a quotient: exponents are subtracted.
func (d Dimension) Div(other Dimension) Dimension {
	var out Dimension
	for i := range d {
		out[i] = d[i] - other[i]
	}
	return out
}

// Pow returns the dimension raised to an integer power.
func (d Dimension) Pow(n int) Dimension {
	var out Dimension
	for i := range d {
		out[i] = d[i] * n
	}
	return out
}

// Root divides every exponent by n. It fails when any exponent is not evenly
// divisible, e.g. sqrt of a quantity with an odd length exponent.
func (d Dimension) Root(n int) (Dimension, error) {
	var out Dimension
	for i := range d {
		if d[i]%n != 0 {
			return Dimension{}, fmt.Errorf("dimension %s^%d has no integer %dth root", baseDimensionNames[i], d[i], n)
		}
		out[i] = d[i] / n
	}
	return out, nil
}

// String renders the dimension in base SI symbols, e.g. "m/s" as "m s^-1".
// Dimensionless renders as "1".
func (d Dimension) String() string {
	if d.IsDimensionless() {
		return "1"
	}
	parts := make([]string, 0, NumBaseDimensions)
	for i, exp := range d {
		switch {
		case exp == 0:
		case exp == 1:
			parts = append(parts, baseDimensionSymbols[i])
		default:
			parts = append(parts, fmt.Sprintf("%s^%d", baseDimensionSymbols[i], exp))
		}
	}
	return strings.Join(parts, " ")
}

// Describe renders the dimension in base dimension names, for error messages
// and hints, e.g. "length^1 time^-1".
func (d Dimension) Describe() string {
	if d.IsDimensionless() {
		return "dimensionless"
	}
	parts := make([]string, 0, NumBaseDimensions)
	for i, exp := range d {
		if exp != 0 {
			parts = append(parts, fmt.Sprintf("%s^%d", baseDimensionNames[i], exp))
		}
	}
	return strings.Join(parts, " ")
}

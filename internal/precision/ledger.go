// Package precision implements the precision ledger: it tracks the minimum
// precision implied by user input and the requested output precision, and
// derives the fixed working precision used for every reduction within one
// evaluation.
package precision

import (
	"strings"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/pkg/calctypes"
)

// MaxWorkingPrecision caps the working precision. The constant registry
// stores roughly 110 digits per constant, so working above this limit would
// silently degrade constant accuracy instead of preserving it.
const MaxWorkingPrecision = 100

// Float64Digits is the number of decimal digits a float64 round trip is
// guaranteed to preserve. Results produced through a float fallback carry a
// precision-loss hint when the working precision exceeds this.
const Float64Digits = 15

// Ledger fixes the precisions for a single evaluation. Working is derived
// once, before the evaluation starts, and must not be recomputed
// mid-evaluation: a fixed W is what makes algebraically equal re-groupings
// round to identical visible digits.
type Ledger struct {
	Requested int
	Guard     int
	Working   uint32
}

// Derive computes the ledger for one evaluation:
//
//	W = max(requested, max literal precision) + guard
//
// capped at MaxWorkingPrecision. A non-positive requested precision fails
// with InvalidPrecisionError.
func Derive(literals []calctypes.Literal, requested, guard int) (*Ledger, error) {
	if requested <= 0 {
		return nil, &calctypes.InvalidPrecisionError{Requested: requested}
	}
	w := requested
	for _, lit := range literals {
		if lit.Precision > w {
			w = lit.Precision
		}
	}
	w += guard
	if w > MaxWorkingPrecision {
		w = MaxWorkingPrecision
	}
	return &Ledger{Requested: requested, Guard: guard, Working: uint32(w)}, nil
}

// NumContext returns a fresh decimal context at the working precision. Every
// arithmetic reduction of the evaluation must go through a context with
// precision >= Working; only the final presentation step rounds down to
// Requested.
func (l *Ledger) NumContext() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(l.Working)
	return ctx
}

// Tolerance returns the convergence tolerance for numeric solving derived
// from the working precision: 10^-(W-3). Three digits of slack keep the
// tolerance reachable by an iteration that itself computes at W.
func (l *Ledger) Tolerance() *apd.Decimal {
	exp := int32(l.Working) - 3
	if exp < 1 {
		exp = 1
	}
	return apd.New(1, -exp)
}

// SignificantDigits infers the decimal precision of a literal from its exact
// text: leading zeros never count, every written digit after the first
// non-zero one does, including trailing zeros ("1.50" has three significant
// digits). Exponent markers do not contribute.
func SignificantDigits(text string) int {
	s := strings.TrimLeft(text, "+-")
	// Cut the exponent part.
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	digits := 0
	seenNonZero := false
	for _, r := range s {
		switch {
		case r >= '1' && r <= '9':
			seenNonZero = true
			digits++
		case r == '0':
			if seenNonZero {
				digits++
			}
		}
	}
	if digits == 0 {
		// "0", "0.0" and friends: the written zeros are all there is.
		for _, r := range s {
			if r == '0' {
				digits++
			}
		}
	}
	return digits
}

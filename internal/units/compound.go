package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"unitcalc/pkg/calctypes"
)

// CompoundPart is one unit token with an integer exponent inside a conversion
// target such as "m s^-2".
type CompoundPart struct {
	Def *UnitDef
	Exp int
}

// Compound is a resolved conversion target built from one or more unit
// factors. Offset scales are only legal as a lone factor with exponent 1;
// "degC^2" or "degC/s" has no meaning.
type Compound struct {
	Label string
	Dim   calctypes.Dimension
	parts []CompoundPart
}

// NewCompound combines resolved unit factors into a conversion target.
func NewCompound(parts []CompoundPart) (*Compound, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty conversion target")
	}
	dim := calctypes.Dimensionless
	var label []string
	for _, p := range parts {
		if p.Def.IsAbsoluteTemperature() && (len(parts) > 1 || p.Exp != 1) {
			return nil, fmt.Errorf("offset scale %s cannot be combined or exponentiated in a conversion target", p.Def.Name)
		}
		dim = dim.Mul(p.Def.Dim.Pow(p.Exp))
		if p.Exp == 1 {
			label = append(label, p.Def.DisplaySymbol())
		} else {
			label = append(label, p.Def.DisplaySymbol()+"^"+strconv.Itoa(p.Exp))
		}
	}
	return &Compound{Label: strings.Join(label, " "), Dim: dim, parts: parts}, nil
}

// IsAbsoluteTemperature reports whether the target is a lone offset scale.
func (c *Compound) IsAbsoluteTemperature() bool {
	return len(c.parts) == 1 && c.parts[0].Def.IsAbsoluteTemperature()
}

// Single returns the lone unit definition of a one-factor target, or nil.
func (c *Compound) Single() *UnitDef {
	if len(c.parts) == 1 && c.parts[0].Exp == 1 {
		return c.parts[0].Def
	}
	return nil
}

// FromBase converts a base-unit magnitude into the compound target at the
// precision of ctx.
func (c *Compound) FromBase(reg *Registry, ctx *apd.Context, base *apd.Decimal) (*apd.Decimal, error) {
	if single := c.Single(); single != nil {
		return reg.FromBase(ctx, single, base)
	}
	out := new(apd.Decimal).Set(base)
	for _, p := range c.parts {
		factor, err := parseFactor(ctx, p.Def.Factor)
		if err != nil {
			return nil, err
		}
		scaled := new(apd.Decimal)
		if _, err := ctx.Pow(scaled, factor, apd.New(int64(p.Exp), 0)); err != nil {
			return nil, err
		}
		if _, err := ctx.Quo(out, out, scaled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

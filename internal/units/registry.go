// Package units implements the unit algebra layer: token resolution with the
// fixed ambiguity priority table, dimensional combination rules, the
// offset-temperature policy, and unit conversion at working precision.
package units

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"gopkg.in/yaml.v3"

	"unitcalc/internal/hints"
	"unitcalc/pkg/calctypes"
)

//go:embed data/units.yaml
var unitTableYAML []byte

// UnitDef is a canonical unit definition. Factor and Offset are decimal
// strings (or exact fractions such as "5/9") converting one unit into base
// SI units: base = magnitude*Factor + Offset. String storage lets the factor
// be re-parsed at any working precision instead of being frozen into a
// float64.
type UnitDef struct {
	Name      string         `yaml:"name"`
	Symbols   []string       `yaml:"symbols"`
	DimMap    map[string]int `yaml:"dimension"`
	Factor    string         `yaml:"factor"`
	Offset    string         `yaml:"offset"`
	Delta     bool           `yaml:"delta"`
	Preferred bool           `yaml:"preferred"`

	Dim calctypes.Dimension `yaml:"-"`
}

// IsAbsoluteTemperature reports whether the unit is an offset scale.
func (u *UnitDef) IsAbsoluteTemperature() bool { return u.Offset != "" }

// DisplaySymbol returns the short form used in output, falling back to the
// canonical name for units without a symbol.
func (u *UnitDef) DisplaySymbol() string {
	if len(u.Symbols) > 0 {
		return u.Symbols[0]
	}
	return u.Name
}

// Ambiguity is one entry of the fixed priority table for deliberately
// overloaded tokens.
type Ambiguity struct {
	Default    string   `yaml:"default"`
	Alternates []string `yaml:"alternates"`
}

type unitTable struct {
	Units     []*UnitDef           `yaml:"units"`
	Ambiguous map[string]Ambiguity `yaml:"ambiguous"`
}

// Registry maps textual tokens to canonical unit definitions.
type Registry struct {
	byName    map[string]*UnitDef
	bySymbol  map[string]*UnitDef
	ambiguous map[string]Ambiguity
	preferred []*UnitDef
	ordered   []*UnitDef
}

var dimNames = map[string]int{
	"length":      calctypes.DimLength,
	"mass":        calctypes.DimMass,
	"time":        calctypes.DimTime,
	"current":     calctypes.DimCurrent,
	"temperature": calctypes.DimTemperature,
	"amount":      calctypes.DimAmount,
	"luminosity":  calctypes.DimLuminosity,
}

// Load builds the registry from the embedded unit table.
func Load() (*Registry, error) {
	var table unitTable
	if err := yaml.Unmarshal(unitTableYAML, &table); err != nil {
		return nil, fmt.Errorf("failed to parse unit table: %w", err)
	}

	r := &Registry{
		byName:    make(map[string]*UnitDef),
		bySymbol:  make(map[string]*UnitDef),
		ambiguous: table.Ambiguous,
		ordered:   table.Units,
	}
	if r.ambiguous == nil {
		r.ambiguous = make(map[string]Ambiguity)
	}

	for _, def := range table.Units {
		for name, exp := range def.DimMap {
			idx, ok := dimNames[name]
			if !ok {
				return nil, fmt.Errorf("unit %s: unknown base dimension %q", def.Name, name)
			}
			def.Dim[idx] = exp
		}
		if _, exists := r.byName[def.Name]; exists {
			return nil, fmt.Errorf("duplicate unit name %q", def.Name)
		}
		r.byName[def.Name] = def
		for _, sym := range def.Symbols {
			if _, exists := r.bySymbol[sym]; exists {
				return nil, fmt.Errorf("duplicate unit symbol %q", sym)
			}
			r.bySymbol[sym] = def
		}
		if def.Preferred {
			r.preferred = append(r.preferred, def)
		}
	}

	// The ambiguity table must reference known units; fail loudly at load
	// time rather than at resolution time.
	for token, amb := range r.ambiguous {
		if _, ok := r.byName[amb.Default]; !ok {
			return nil, fmt.Errorf("ambiguous token %q: unknown default unit %q", token, amb.Default)
		}
		for _, alt := range amb.Alternates {
			if _, ok := r.byName[alt]; !ok {
				return nil, fmt.Errorf("ambiguous token %q: unknown alternate unit %q", token, alt)
			}
		}
	}

	return r, nil
}

// Resolve maps a textual token to a unit definition. Resolution order is a
// fixed, load-bearing policy:
//
//  1. an exact canonical unit name always wins and never hints;
//  2. a token in the ambiguity table resolves to its default and emits one
//     suppressible hint naming every interpretation and the choice made;
//  3. otherwise the token is looked up as a plain unit symbol.
func (r *Registry) Resolve(token string, col *hints.Collector) (*UnitDef, error) {
	if def, ok := r.byName[token]; ok {
		return def, nil
	}
	if amb, ok := r.ambiguous[token]; ok {
		def := r.byName[amb.Default]
		if col != nil {
			col.AddSuppressible(
				calctypes.HintAmbiguousUnit,
				"ambiguous-unit:"+token,
				fmt.Sprintf("%q read as %s; it could also mean %s (spell out the full name to pick one)",
					token, amb.Default, strings.Join(amb.Alternates, " or ")),
			)
		}
		return def, nil
	}
	if def, ok := r.bySymbol[token]; ok {
		return def, nil
	}
	return nil, &calctypes.UnknownUnitError{Token: token}
}

// HasToken reports whether the token would resolve without error.
func (r *Registry) HasToken(token string) bool {
	if _, ok := r.byName[token]; ok {
		return true
	}
	if _, ok := r.ambiguous[token]; ok {
		return true
	}
	_, ok := r.bySymbol[token]
	return ok
}

// KnownTokens enumerates all resolvable tokens in sorted order.
func (r *Registry) KnownTokens() []string {
	set := make(map[string]bool)
	for name := range r.byName {
		set[name] = true
	}
	for sym := range r.bySymbol {
		set[sym] = true
	}
	for token := range r.ambiguous {
		set[token] = true
	}
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// parseFactor parses a decimal string or an exact fraction "p/q" at the
// precision of ctx.
func parseFactor(ctx *apd.Context, s string) (*apd.Decimal, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, _, err := apd.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return nil, fmt.Errorf("bad factor %q: %w", s, err)
		}
		d, _, err := apd.NewFromString(strings.TrimSpace(den))
		if err != nil {
			return nil, fmt.Errorf("bad factor %q: %w", s, err)
		}
		out := new(apd.Decimal)
		if _, err := ctx.Quo(out, n, d); err != nil {
			return nil, err
		}
		return out, nil
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("bad factor %q: %w", s, err)
	}
	return d, nil
}

// ScaleParts returns the conversion factor and offset of a unit as decimals
// at the precision of ctx. offset is nil for offset-free units.
func (r *Registry) ScaleParts(ctx *apd.Context, def *UnitDef) (factor, offset *apd.Decimal, err error) {
	factor, err = parseFactor(ctx, def.Factor)
	if err != nil {
		return nil, nil, err
	}
	if def.Offset != "" {
		offset, err = parseFactor(ctx, def.Offset)
		if err != nil {
			return nil, nil, err
		}
	}
	return factor, offset, nil
}

// ToBase converts a magnitude expressed in this unit into base units at the
// precision of ctx.
func (r *Registry) ToBase(ctx *apd.Context, def *UnitDef, mag *apd.Decimal) (*apd.Decimal, error) {
	factor, err := parseFactor(ctx, def.Factor)
	if err != nil {
		return nil, err
	}
	out := new(apd.Decimal)
	if _, err := ctx.Mul(out, mag, factor); err != nil {
		return nil, err
	}
	if def.Offset != "" {
		offset, err := parseFactor(ctx, def.Offset)
		if err != nil {
			return nil, err
		}
		if _, err := ctx.Add(out, out, offset); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FromBase converts a base-unit magnitude into this unit at the precision of
// ctx. The offset is applied only for absolute temperature targets.
func (r *Registry) FromBase(ctx *apd.Context, def *UnitDef, base *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal).Set(base)
	if def.Offset != "" {
		offset, err := parseFactor(ctx, def.Offset)
		if err != nil {
			return nil, err
		}
		if _, err := ctx.Sub(out, out, offset); err != nil {
			return nil, err
		}
	}
	factor, err := parseFactor(ctx, def.Factor)
	if err != nil {
		return nil, err
	}
	if _, err := ctx.Quo(out, out, factor); err != nil {
		return nil, err
	}
	return out, nil
}

// Convert converts a base-unit magnitude with the given dimension into the
// target unit, failing with IncompatibleDimensionsError on a dimension
// mismatch.
func (r *Registry) Convert(ctx *apd.Context, base *apd.Decimal, dim calctypes.Dimension, target *UnitDef) (*apd.Decimal, error) {
	if dim != target.Dim {
		return nil, &calctypes.IncompatibleDimensionsError{
			From:       dim,
			To:         target.Dim,
			TargetUnit: target.Name,
		}
	}
	return r.FromBase(ctx, target, base)
}

// BestUnit selects, from the preferred set, the unit of matching dimension
// whose converted magnitude is closest to 1 (in log distance). It returns
// nil when no preferred unit matches the dimension; the caller then falls
// back to base units. Mutually exclusive with to-base-units at the
// presentation layer.
func (r *Registry) BestUnit(base *apd.Decimal, dim calctypes.Dimension) *UnitDef {
	mag, err := base.Float64()
	if err != nil || mag == 0 || math.IsInf(mag, 0) || math.IsNaN(mag) {
		return nil
	}
	mag = math.Abs(mag)

	var best *UnitDef
	bestDist := math.Inf(1)
	for _, def := range r.preferred {
		if def.Dim != dim || def.IsAbsoluteTemperature() || def.Delta {
			continue
		}
		factor, ferr := parseFactor(apd.BaseContext.WithPrecision(20), def.Factor)
		if ferr != nil {
			continue
		}
		f, ferr2 := factor.Float64()
		if ferr2 != nil || f == 0 {
			continue
		}
		dist := math.Abs(math.Log10(mag / f))
		if dist < bestDist {
			bestDist = dist
			best = def
		}
	}
	return best
}

// BaseUnit returns the canonical base unit (factor 1, no offset) for a
// dimension, when the table has one.
func (r *Registry) BaseUnit(dim calctypes.Dimension) *UnitDef {
	for _, def := range r.ordered {
		if def.Dim == dim && def.Factor == "1" && def.Offset == "" && !def.Delta {
			return def
		}
	}
	return nil
}

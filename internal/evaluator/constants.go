package evaluator

import (
	"unitcalc/pkg/calctypes"
)

// constantDef is a physical constant: an exact decimal magnitude expressed in
// base SI units plus its dimension vector. Values follow the 2019 SI
// redefinition where the constant is exact by definition.
type constantDef struct {
	text string
	dim  calctypes.Dimension
}

var physicalConstants = map[string]constantDef{
	// speed of light, exact
	"c": {"299792458", calctypes.Dimension{calctypes.DimLength: 1, calctypes.DimTime: -1}},
	// reduced Planck constant, J s
	"hbar": {"1.054571817e-34", calctypes.Dimension{calctypes.DimMass: 1, calctypes.DimLength: 2, calctypes.DimTime: -1}},
	// Avogadro constant, exact
	"N_A": {"6.02214076e23", calctypes.Dimension{calctypes.DimAmount: -1}},
	// Boltzmann constant, exact, J/K
	"k_B": {"1.380649e-23", calctypes.Dimension{calctypes.DimMass: 1, calctypes.DimLength: 2, calctypes.DimTime: -2, calctypes.DimTemperature: -1}},
	// gravitational constant, CODATA 2018
	"G": {"6.6743e-11", calctypes.Dimension{calctypes.DimLength: 3, calctypes.DimMass: -1, calctypes.DimTime: -2}},
	// standard gravity, exact by convention
	"g_0": {"9.80665", calctypes.Dimension{calctypes.DimLength: 1, calctypes.DimTime: -2}},
	// molar gas constant, exact via N_A * k_B
	"R": {"8.31446261815324", calctypes.Dimension{calctypes.DimMass: 1, calctypes.DimLength: 2, calctypes.DimTime: -2, calctypes.DimTemperature: -1, calctypes.DimAmount: -1}},
	// elementary charge, exact, coulomb
	"q_e": {"1.602176634e-19", calctypes.Dimension{calctypes.DimCurrent: 1, calctypes.DimTime: 1}},
}

// IsMathConstant reports whether name is one of the built-in mathematical
// constants (pi, e, i) that resolve before unit tokens.
func IsMathConstant(name string) bool {
	switch name {
	case "pi", "π", "e", "i":
		return true
	}
	return false
}

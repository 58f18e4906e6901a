package remodel

import "math"

// nutrientScale converts a flow in m^3/s to the nl/min scale of the
// metabolic reference.
const nutrientScale = 6e13

// WallShearStress returns 4 mu |q| / (pi r^3).
func WallShearStress(viscosity, radius, flow float64) float64 {
	return 4 * viscosity / (math.Pi * radius * radius * radius) * math.Abs(flow)
}

// ShearStimulus is log10(10 tau + tauRef).
func ShearStimulus(tau, tauRef float64) float64 {
	return math.Log10(10*tau + tauRef)
}

// SetPointStress returns the wall stress expected at a mean intravascular
// pressure given in Pa.
func SetPointStress(pressure float64) float64 {
	p := math.Max(pressure/133, 10.1)
	return 0.1 * (100 - 86*math.Exp(-5000*math.Pow(math.Log10(math.Log10(p)), 5.4)))
}

// PressureStimulus is -kp log10(10 tauE).
func PressureStimulus(pressure, kp float64) float64 {
	return -kp * math.Log10(10*SetPointStress(pressure))
}

// DirectMetabolicStimulus grows with the red-cell deficit of the vessel
// relative to the target flow. It is 0 for vessels carrying almost no cells.
func DirectMetabolicStimulus(flowRate, flow, hd, km float64) float64 {
	if hd <= 0.001 {
		return 0
	}
	return km * math.Log10(flowRate/(math.Abs(flow)*hd*0.45)+1)
}

// ConvectedMetabolicStimulus converts the accumulated convected signal.
func ConvectedMetabolicStimulus(conv, flow, qref, km float64) float64 {
	if conv <= 0 {
		return 0
	}
	return km * math.Log10(1+conv/(math.Abs(flow*nutrientScale)+qref*nutrientScale))
}

// ConductedMetabolicStimulus saturates the conducted signal at kc.
func ConductedMetabolicStimulus(cond, km, kc, j0 float64) float64 {
	return km * kc * (cond / (cond + j0))
}

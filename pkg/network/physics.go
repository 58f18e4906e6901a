package network

import "math"

const (
	// CircleShapeFactor is A/P^2 of a circular cross-section.
	CircleShapeFactor = 1 / (4 * math.Pi)
	// CircleShapeFactorConstant scales the Poiseuille conductance of a circle.
	CircleShapeFactorConstant = 0.5

	// DischargeHaematocrit converts a normalised concentration into a
	// red-cell volume fraction.
	DischargeHaematocrit = 0.45

	initialPlasmaViscosity = 1.2e-3
)

// VesselVolume returns r^2 L / (4G).
func VesselVolume(v *Vessel) float64 {
	return v.Radius * v.Radius * v.Length / (4 * v.ShapeFactor)
}

// Conductance returns k r^4 / (16 G mu L).
func Conductance(v *Vessel) float64 {
	r2 := v.Radius * v.Radius
	return v.ShapeFactorConstant * r2 * r2 / (16 * v.ShapeFactor) / (v.Viscosity * v.Length)
}

// InitialViscosity is the in-vitro blood viscosity law evaluated with the
// radius in micrometres throughout and a fixed plasma viscosity.
func InitialViscosity(radius, hd float64) float64 {
	r := radius * 1e6
	h := hd * DischargeHaematocrit
	d := 2 * r
	shape := 1 / (1 + 1e-11*math.Pow(d, 12))
	c := (0.8+math.Exp(-0.15*r))*(-1+shape) + shape
	f := (math.Pow(1-h, c) - 1) / (math.Pow(1-DischargeHaematocrit, c) - 1)
	mu45 := 6*math.Exp(-0.17*r) + 3.2 - 2.44*math.Exp(-0.06*math.Pow(d, 0.645))
	g := d / (d - 1.1)
	rel := (1 + (mu45-1)*f*g*g) * g * g
	return initialPlasmaViscosity * rel
}

// Viscosity is the per-iteration law. The haematocrit exponent uses the
// radius in metres while the relative viscosity terms use micrometres.
func Viscosity(radius, hd, plasma float64) float64 {
	h := hd * DischargeHaematocrit
	dm := 2 * radius
	shape := 1 / (1 + 1e-11*math.Pow(dm, 12))
	c := (0.8+math.Exp(-0.15*radius))*(-1+shape) + shape
	f := (math.Pow(1-h, c) - 1) / (math.Pow(1-DischargeHaematocrit, c) - 1)
	r := radius * 1e6
	d := 2 * r
	mu45 := 6*math.Exp(-0.17*r) + 3.2 - 2.44*math.Exp(-0.06*math.Pow(d, 0.645))
	g := d / (d - 1.1)
	rel := (1 + (mu45-1)*f*g*g) * g * g
	return plasma * rel
}

// AssignInitialViscosities applies InitialViscosity to every open vessel.
func (n *Network) AssignInitialViscosities() {
	for _, v := range n.Vessels {
		if !v.Closed {
			v.Viscosity = InitialViscosity(v.Radius, v.HD)
		}
	}
}

// AssignViscosities applies Viscosity to open vessels other than the parent.
func (n *Network) AssignViscosities(plasma float64) {
	for _, v := range n.Vessels {
		if !v.Closed && !v.Parent {
			v.Viscosity = Viscosity(v.Radius, v.HD, plasma)
		}
	}
}

// AssignVolumes recomputes vessel volumes and returns the open total.
func (n *Network) AssignVolumes() float64 {
	var total float64
	for _, v := range n.Vessels {
		if v.Closed {
			continue
		}
		v.Volume = VesselVolume(v)
		total += v.Volume
	}
	return total
}

// AssignConductances recomputes conductances. Closed and pruned vessels are
// pinned to ClosedConductance.
func (n *Network) AssignConductances() {
	for _, v := range n.Vessels {
		if !v.Conducting() {
			v.Conductance = ClosedConductance
			continue
		}
		v.Conductance = Conductance(v)
	}
}

// ResetExistence marks every open vessel as existing again before pruning.
func (n *Network) ResetExistence() {
	for _, v := range n.Vessels {
		v.Exists = !v.Closed
	}
}

// Prune pins a vessel that dropped out of the conducting set.
func (v *Vessel) Prune() {
	v.Exists = false
	v.Conductance = ClosedConductance
}

// Close permanently removes a vessel from the flow problem.
func (v *Vessel) Close() {
	v.Closed = true
	v.Prune()
}

// TotalVolume sums the volume of open vessels.
func (n *Network) TotalVolume() float64 {
	var total float64
	for _, v := range n.Vessels {
		if !v.Closed {
			total += v.Volume
		}
	}
	return total
}

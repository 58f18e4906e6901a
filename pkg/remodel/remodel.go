// Package remodel adapts vessel radii to the haemodynamic and metabolic
// stimuli acting on their walls.
package remodel

import (
	"math"

	"github.com/ritzau/angioflow/pkg/hemo"
	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
	"github.com/ritzau/angioflow/pkg/transport"
)

// Params configures the stimuli and the adaptation loop.
type Params struct {
	Kp     float64 `koanf:"kp"`      // pressure sensitivity
	Km     float64 `koanf:"km"`      // metabolic sensitivity
	Kc     float64 `koanf:"kc"`      // conducted signal saturation
	Ks     float64 `koanf:"ks"`      // shrinking tendency
	Qref   float64 `koanf:"qref"`    // reference flow, m^3/s
	QHDref float64 `koanf:"qhdref"`  // reference red-cell flow, m^3/s
	TauRef float64 `koanf:"tau-ref"` // Pa
	J0     float64 `koanf:"j0"`

	DecayConv float64 `koanf:"decay-conv"`
	DecayCond float64 `koanf:"decay-cond"`

	ShuntPrevention bool `koanf:"shunt-prevention"` // convected/conducted signals instead of the direct one

	MinRadius       float64 `koanf:"min-radius"`
	MaxRadius       float64 `koanf:"max-radius"`
	MinHaematocrit  float64 `koanf:"min-haematocrit"`  // vessels below are not adapted
	RadiusTolerance float64 `koanf:"radius-tolerance"` // m
	TimeStep        float64 `koanf:"-"`                // radius update step, the run's time step

	InjectPoreVolumes float64 `koanf:"inject-pore-volumes"` // transported between adaptations
	MaxPoreVolumes    float64 `koanf:"max-pore-volumes"`
	MaxRadiusSweeps   int     `koanf:"max-radius-sweeps"`
}

// DefaultParams returns the published adaptation constants.
func DefaultParams() Params {
	return Params{
		Kp:                0.68,
		Km:                0.70,
		Kc:                2.45,
		Ks:                1.72,
		Qref:              3.3e-15,
		QHDref:            3.3e-15,
		TauRef:            0.103,
		J0:                27.9,
		DecayConv:         0.1,
		DecayCond:         0.1,
		ShuntPrevention:   true,
		MinRadius:         2e-6,
		MaxRadius:         12e-6,
		MinHaematocrit:    0.05,
		RadiusTolerance:   1e-9,
		TimeStep:          0.005,
		InjectPoreVolumes: 2,
		MaxPoreVolumes:    50,
		MaxRadiusSweeps:   10000,
	}
}

// Stimuli breaks down the adaptation signal of one vessel.
type Stimuli struct {
	WSS       float64
	Shear     float64
	Pressure  float64
	Metabolic float64
}

// Total is the net growth signal after the shrinking tendency.
func (s Stimuli) Total(ks float64) float64 {
	return s.Shear + s.Pressure + s.Metabolic - ks
}

// Eligible reports whether a vessel takes part in adaptation.
func Eligible(v *network.Vessel, p Params) bool {
	return !v.Closed && !v.Parent && v.HasFlow() && v.HD > p.MinHaematocrit
}

// VesselStimuli evaluates every stimulus acting on v.
func VesselStimuli(v *network.Vessel, p Params, flowRate float64) Stimuli {
	var s Stimuli
	s.WSS = WallShearStress(v.Viscosity, v.Radius, v.Flow)
	s.Shear = ShearStimulus(s.WSS, p.TauRef)
	s.Pressure = PressureStimulus(v.AveragePressure, p.Kp)
	if p.ShuntPrevention {
		s.Metabolic = ConvectedMetabolicStimulus(v.ConvectedStimulus, v.Flow, p.Qref, p.Km) +
			ConductedMetabolicStimulus(v.ConductedStimulus, p.Km, p.Kc, p.J0)
	} else {
		s.Metabolic = DirectMetabolicStimulus(flowRate, v.Flow, v.HD, p.Km)
	}
	return s
}

// UpdateRadii applies one adaptation sweep and stores each vessel's WSS. The
// radius change is divided by damping unless damping is 0. It reports
// whether any radius moved by more than RadiusTolerance.
func UpdateRadii(net *network.Network, p Params, dt, damping, flowRate float64) bool {
	changed := false
	for _, v := range net.Vessels {
		if !Eligible(v, p) {
			continue
		}
		s := VesselStimuli(v, p, flowRate)
		v.WSS = s.WSS

		dr := s.Total(p.Ks) * v.Radius * dt
		if damping != 0 {
			dr /= damping
		}
		r := math.Min(p.MaxRadius, math.Max(p.MinRadius, v.Radius+dr))
		if math.Abs(r-v.Radius) > p.RadiusTolerance {
			changed = true
		}
		v.Radius = r
	}
	return changed
}

// Report summarises one remodeling call.
type Report struct {
	Iterations     int
	Solves         int
	Sweeps         int
	TransportSteps int
	PoreVolumes    float64
	Closed         int     // vessels shunted closed by phase separation
	InletPressure  float64 // Pa, after the last solve
}

// Remodeler runs the adaptation loop of one simulation.
type Remodeler struct {
	params    Params
	flow      *hemo.Flow
	transport transport.Params
}

// New returns a remodeler. The transport weighting follows the flow
// solver's phase-separation setting.
func New(p Params, flow *hemo.Flow, tp transport.Params) *Remodeler {
	tp.UseFQE = flow.Params().PhaseSeparation
	if p.MaxRadiusSweeps <= 0 {
		p.MaxRadiusSweeps = 1
	}
	return &Remodeler{params: p, flow: flow, transport: tp}
}

// Params returns the configuration.
func (r *Remodeler) Params() Params { return r.params }

// Remodel alternates transport, stimulus evaluation, radius adaptation and
// flow re-solves until the pressure field settles. The loop gives up after
// MaxPoreVolumes have been injected or when the run stops.
func (r *Remodeler) Remodel(sc *simctx.Context, net *network.Network) (Report, error) {
	var rep Report
	p := r.params
	flowRate := r.flow.Params().FlowRate

	res, err := r.flow.Solve(sc, net)
	rep.Solves++
	rep.Closed += res.Closed
	if err != nil {
		return rep, err
	}
	rep.InletPressure = res.Boundary.PIn

	damping := 1.0
	for moved := true; moved; {
		rep.Iterations++
		inj := transport.Inject(sc, net, r.transport, p.InjectPoreVolumes)
		rep.TransportSteps += inj.Steps
		if total := net.TotalVolume(); total > 0 {
			rep.PoreVolumes += inj.Injected / total
		}
		if sc.Stopped() {
			break
		}

		if p.ShuntPrevention {
			CalculateConvectedStimuli(net, p)
			CalculateConductedStimuli(net, p)
		}

		sweeps := 0
		for UpdateRadii(net, p, p.TimeStep, damping, flowRate) {
			sweeps++
			if sweeps >= p.MaxRadiusSweeps {
				logging.Warn("radii did not settle", "sweeps", sweeps)
				break
			}
			if sc.Stopped() {
				break
			}
		}
		rep.Sweeps += sweeps + 1
		damping += 0.1

		res, err = r.flow.Solve(sc, net)
		rep.Solves++
		rep.Closed += res.Closed
		if err != nil {
			return rep, err
		}
		rep.InletPressure = res.Boundary.PIn
		moved = res.PressureMoved

		if rep.PoreVolumes > p.MaxPoreVolumes {
			logging.Warn("remodeling stopped at pore volume cap", "poreVolumes", rep.PoreVolumes)
			break
		}
		if sc.Stopped() {
			break
		}
	}
	logging.Debug("remodeled",
		"iterations", rep.Iterations,
		"sweeps", rep.Sweeps,
		"poreVolumes", rep.PoreVolumes)
	return rep, nil
}

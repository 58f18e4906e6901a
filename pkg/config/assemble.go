package config

import (
	"fmt"

	"github.com/ritzau/angioflow/pkg/hemo"
	"github.com/ritzau/angioflow/pkg/lattice"
	"github.com/ritzau/angioflow/pkg/remodel"
	"github.com/ritzau/angioflow/pkg/sim"
	"github.com/ritzau/angioflow/pkg/solver"
)

// NewController builds the initial network and wires the stages of a run.
func (p Params) NewController() (*sim.Controller, error) {
	net, err := lattice.Build(p.Network, p.Lattice)
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	s, err := solver.New(p.Solver)
	if err != nil {
		return nil, err
	}
	var r *remodel.Remodeler
	if p.Run.Remodel {
		r = remodel.New(p.remodelParams(), hemo.New(p.Hemo, s), p.Transport)
	}
	ap := p.Angio
	if lattice.Kind(p.Lattice.Kind) == lattice.Retina {
		ap.CircularDomain = true
	}
	return sim.New(net, p.Run, ap, r), nil
}

// remodelParams returns the adaptation parameters with the radius update
// step taken from the run, which advances radii on the same clock as the
// sprouting.
func (p Params) remodelParams() remodel.Params {
	rp := p.Remodel
	rp.TimeStep = p.Run.TimeStep
	return rp
}

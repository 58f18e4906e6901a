// Package lattice builds the initial vessel graphs a run starts from and seeds
// the tissue chemical fields of the tumour and retina set-ups.
package lattice

import (
	"fmt"
	"math"

	"github.com/ritzau/angioflow/pkg/network"
)

// Kind selects the initial geometry.
type Kind string

const (
	// Tumour is a straight parent vessel along x=0 feeding a tumour at x=1.
	Tumour Kind = "tumour"
	// Retina is a parent vessel through the lattice centre.
	Retina Kind = "retina"
	// Grid is a fully connected regular lattice with inlets on x=0 and
	// outlets on x=Nx-1.
	Grid Kind = "grid"
)

// Params configures the initial geometry.
type Params struct {
	Kind           string  `koanf:"kind"`
	ParentRadius   float64 `koanf:"parent-radius"`
	GridRadius     float64 `koanf:"grid-radius"`
	InitialTips    int     `koanf:"initial-tips"`
	CircularTumour bool    `koanf:"circular-tumour"` // circular TAF profile instead of linear
}

// DefaultParams returns the tumour set-up.
func DefaultParams() Params {
	return Params{
		Kind:           string(Tumour),
		ParentRadius:   14e-6,
		GridRadius:     5e-6,
		InitialTips:    5,
		CircularTumour: true,
	}
}

// Build creates the network, seeds its chemical fields and initial tips and
// assigns the initial viscosities and conductances.
func Build(np network.Params, p Params) (*network.Network, error) {
	var net *network.Network
	var err error
	switch Kind(p.Kind) {
	case Tumour:
		net, err = ParentVessel(np, p.ParentRadius, 0)
		if err == nil {
			SeedTumour(net, p.CircularTumour)
			err = SeedTips(net, p.InitialTips, 0)
		}
	case Retina:
		net, err = ParentVessel(np, p.ParentRadius, np.Nx/2)
		if err == nil {
			SeedRetina(net)
			err = SeedTips(net, p.InitialTips, np.Nx/2)
		}
	case Grid:
		net, err = RegularGrid(np, p.GridRadius)
	default:
		err = fmt.Errorf("unknown network kind %q", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	net.UpdateRanking()
	net.AssignInitialViscosities()
	net.AssignVolumes()
	net.AssignConductances()
	return net, nil
}

// ParentVessel lays a straight vessel along y at lattice column x, fed by an
// inlet stub at y=0 and drained by an outlet stub at y=Ny-1. Its segments
// are parent vessels with full haematocrit.
func ParentVessel(np network.Params, radius float64, x int) (*network.Network, error) {
	net, err := network.New(np)
	if err != nil {
		return nil, err
	}
	k := np.Nz / 2
	for j := 0; j < np.Ny; j++ {
		if _, err := net.AddNodeAt(x, j, k); err != nil {
			return nil, err
		}
	}
	in, err := net.AddBoundaryVessel(0, true, radius, np.Spacing)
	if err != nil {
		return nil, err
	}
	out, err := net.AddBoundaryVessel(np.Ny-1, false, radius, np.Spacing)
	if err != nil {
		return nil, err
	}
	vessels := []*network.Vessel{in, out}
	for j := 0; j+1 < np.Ny; j++ {
		v, err := net.AddVesselWithRadius(j, j+1, radius)
		if err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	for _, v := range vessels {
		v.Parent = true
		v.HD = 1
	}
	return net, nil
}

// RegularGrid connects every lattice site to its axis neighbours.
func RegularGrid(np network.Params, radius float64) (*network.Network, error) {
	net, err := network.New(np)
	if err != nil {
		return nil, err
	}
	for k := 0; k < np.Nz; k++ {
		for j := 0; j < np.Ny; j++ {
			for i := 0; i < np.Nx; i++ {
				if _, err := net.AddNodeAt(i, j, k); err != nil {
					return nil, err
				}
			}
		}
	}
	link := func(a, b *network.Node) error {
		if a == nil || b == nil {
			return nil
		}
		_, err := net.AddVesselWithRadius(a.ID, b.ID, radius)
		return err
	}
	for _, n := range net.Nodes {
		for _, d := range [][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
			if err := link(n, net.NodeAt(n.I+d[0], n.J+d[1], n.K+d[2])); err != nil {
				return nil, err
			}
		}
	}
	for _, n := range net.Nodes {
		if n.I == 0 {
			if _, err := net.AddBoundaryVessel(n.ID, true, radius, np.Spacing); err != nil {
				return nil, err
			}
		}
		if n.I == np.Nx-1 {
			if _, err := net.AddBoundaryVessel(n.ID, false, radius, np.Spacing); err != nil {
				return nil, err
			}
		}
	}
	for _, v := range net.Vessels {
		v.HD = 1
	}
	return net, nil
}

// SeedTumour sets the TAF and FN profiles of a tumour placed beyond x=1.
func SeedTumour(net *network.Network, circular bool) {
	np := net.Params
	lx, ly, lz := edges(np)
	mu := (math.Sqrt(5) - 0.1) / (math.Sqrt(5) - 1)
	for _, b := range net.Blocks {
		if b.Closed {
			continue
		}
		var taf float64
		if circular {
			dx, dy := b.X/lx-1, b.Y/ly-0.5
			r2 := dx*dx + dy*dy
			if !np.Planar() {
				dz := b.Z/lz - 0.5
				r2 += dz * dz
			}
			r := math.Sqrt(r2)
			switch {
			case r > 0.1:
				taf = math.Pow((mu-r)/(mu-0.1), 2)
			case r > 0:
				taf = 1
			}
		} else {
			d := 1 - b.X/lx
			taf = math.Exp(-d * d / 0.45)
		}
		b.TAF = taf
		x := b.X / lx
		b.FN = 0.75 * math.Exp(-x*x/0.45)
	}
}

// SeedRetina sets a TAF field rising away from the optic disc at the centre
// and a uniform FN background.
func SeedRetina(net *network.Network) {
	lx, ly, _ := edges(net.Params)
	for _, b := range net.Blocks {
		if b.Closed {
			continue
		}
		dx, dy := b.X/lx-0.5, b.Y/ly-0.5
		r := math.Sqrt(dx*dx + dy*dy)
		b.TAF = 1 - 0.45*math.Exp(-4*r*r/0.45)
		b.FN = 0.1
	}
}

// SeedTips marks count evenly spaced parent nodes on column x as sprout tips.
func SeedTips(net *network.Network, count, x int) error {
	np := net.Params
	for i := 1; i <= count; i++ {
		j := i * np.Ny / (count + 1)
		if n := net.NodeAt(x, j, np.Nz/2); n != nil {
			n.Tip = true
		}
	}
	if len(net.Tips()) == 0 && count > 0 {
		return fmt.Errorf("no parent node found for %d tips on column %d", count, x)
	}
	return nil
}

func edges(np network.Params) (float64, float64, float64) {
	return float64(np.Nx) * np.Spacing, float64(np.Ny) * np.Spacing, float64(np.Nz) * np.Spacing
}

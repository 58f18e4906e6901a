// Package output prints the end-of-run report for the command line.
package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/sim"
)

// PrintRunReport writes a colourised summary of a finished run to w.
func PrintRunReport(w io.Writer, res sim.Result, net *network.Network) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Fprintln(w, "angioflow - Run Report")
	bold.Fprintln(w, "======================")
	fmt.Fprintf(w, "Run: %s\n", res.RunID)
	np := net.Params
	fmt.Fprintf(w, "Lattice: %dx%dx%d, spacing %gm\n", np.Nx, np.Ny, np.Nz, np.Spacing)
	fmt.Fprintf(w, "Steps: %d (t = %.3f, %s)\n", res.Steps, res.Time, res.Elapsed.Round(1e6))
	fmt.Fprintln(w)

	cyan.Fprintf(w, "Nodes: %d\n", res.Nodes)
	cyan.Fprintf(w, "Vessels: %d\n", res.Vessels)
	cyan.Fprintf(w, "Tips: %d\n", res.Tips)
	fmt.Fprintf(w, "Branches: %d\n", res.Branches)
	fmt.Fprintf(w, "Remodels: %d\n", res.Remodels)
	if res.Remodels > 0 {
		printFlow(w, net)
		fmt.Fprintf(w, "Longest transit: %.3g s\n", res.MaxTransitTime)
	}
	fmt.Fprintln(w)

	switch res.Outcome {
	case sim.Completed:
		green.Fprintln(w, "✓ Run completed")
	case sim.Cancelled:
		yellow.Fprintln(w, "Run cancelled")
	case sim.Aborted:
		red.Fprintf(w, "Run aborted: %s\n", res.AbortReason)
	default:
		red.Fprintf(w, "Run %s\n", res.Outcome)
	}
}

// printFlow summarises the radii and haematocrit of the perfused vessels.
func printFlow(w io.Writer, net *network.Network) {
	var perfused int
	var rMin, rMax, hd float64
	for _, v := range net.Vessels {
		if !v.Conducting() || !v.HasFlow() {
			continue
		}
		if perfused == 0 || v.Radius < rMin {
			rMin = v.Radius
		}
		if v.Radius > rMax {
			rMax = v.Radius
		}
		hd += v.HD
		perfused++
	}
	if perfused == 0 {
		color.New(color.FgYellow).Fprintln(w, "No perfused vessels")
		return
	}
	fmt.Fprintf(w, "Perfused: %d vessels, radius %.2f-%.2f um, mean HD %.3f\n",
		perfused, rMin*1e6, rMax*1e6, hd/float64(perfused)*network.DischargeHaematocrit)
}

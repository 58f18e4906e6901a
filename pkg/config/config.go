// Package config loads run parameters and CLI settings from defaults, an
// optional TOML, YAML or JSON file, ANGIOFLOW_ environment variables and
// flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/angioflow/pkg/angio"
	"github.com/ritzau/angioflow/pkg/hemo"
	"github.com/ritzau/angioflow/pkg/lattice"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/remodel"
	"github.com/ritzau/angioflow/pkg/sim"
	"github.com/ritzau/angioflow/pkg/solver"
	"github.com/ritzau/angioflow/pkg/transport"
)

// DefaultFile is read when no --config flag is given. It may be missing.
const DefaultFile = "angioflow.toml"

const envPrefix = "ANGIOFLOW_"

// Params groups the parameters of every simulation stage, one TOML table each.
type Params struct {
	Network   network.Params   `koanf:"network"`
	Lattice   lattice.Params   `koanf:"lattice"`
	Solver    solver.Params    `koanf:"solver"`
	Hemo      hemo.Params      `koanf:"hemo"`
	Transport transport.Params `koanf:"transport"`
	Remodel   remodel.Params   `koanf:"remodel"`
	Angio     angio.Params     `koanf:"angio"`
	Run       sim.Params       `koanf:"run"`
}

// Config holds all configuration for the application
type Config struct {
	File      string `koanf:"config"`
	WebMode   bool   `koanf:"web"`
	Port      int    `koanf:"port"`
	Watch     bool   `koanf:"watch"`
	Verbosity string `koanf:"verbosity"`
	JSONLogs  bool   `koanf:"json-logs"`

	Params `koanf:",squash"`
}

// DefaultParams returns the default parameters of every stage.
func DefaultParams() Params {
	return Params{
		Network:   network.DefaultParams(),
		Lattice:   lattice.DefaultParams(),
		Solver:    solver.DefaultParams(),
		Hemo:      hemo.DefaultParams(),
		Transport: transport.DefaultParams(),
		Remodel:   remodel.DefaultParams(),
		Angio:     angio.DefaultParams(),
		Run:       sim.DefaultParams(),
	}
}

func surfaceDefaults() map[string]interface{} {
	return map[string]interface{}{
		"config":    "",
		"web":       false,
		"port":      8080,
		"watch":     false,
		"verbosity": "info",
		"json-logs": false,
	}
}

// RegisterFlags adds the command-line flags Load understands to f. Dotted
// names address a parameter table, e.g. --run.seed.
func RegisterFlags(f *pflag.FlagSet) {
	d := DefaultParams()
	f.String("config", "", "parameter file (default "+DefaultFile+" if present)")
	f.Bool("web", false, "serve the run over HTTP with live updates")
	f.Int("port", 8080, "web server port")
	f.Bool("watch", false, "re-run when the parameter file changes")
	f.String("verbosity", "info", "log level: trace, debug, info, warn, error")
	f.Bool("json-logs", false, "log as JSON")

	f.String("lattice.kind", d.Lattice.Kind, "initial network: tumour, retina or grid")
	f.Int("network.nx", d.Network.Nx, "lattice sites along x")
	f.Int("network.ny", d.Network.Ny, "lattice sites along y")
	f.Int("network.nz", d.Network.Nz, "lattice sites along z")
	f.String("solver.method", d.Solver.Method, "pressure solver: direct or bicgstab")
	f.Int("solver.max-band-entries", d.Solver.MaxBandEntries, "band storage limit of the direct solver before it falls back to bicgstab")
	f.Bool("hemo.phase-separation", d.Hemo.PhaseSeparation, "apply the red-cell bifurcation law")
	f.Bool("remodel.shunt-prevention", d.Remodel.ShuntPrevention, "propagate metabolic stimuli along the flow")
	f.Bool("angio.branch-on-shear", d.Angio.BranchOnShear, "let high-shear vessels sprout")
	f.Int64("run.seed", d.Run.Seed, "random seed")
	f.Float64("run.duration", d.Run.Duration, "simulated time in units of 1.5 days")
	f.Bool("run.remodel", d.Run.Remodel, "remodel the vessel radii")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(surfaceDefaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, explicit := DefaultFile, false
	if f != nil {
		if v, err := f.GetString("config"); err == nil && v != "" {
			path, explicit = v, true
		}
	}
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// ANGIOFLOW_PORT=9090, ANGIOFLOW_REMODEL__MAX_RADIUS=1e-5
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Config{Params: DefaultParams()}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.File == "" {
		cfg.File = path
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parserFor picks the file parser from the extension; TOML is the default.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	}
	return toml.Parser()
}

// envKey maps ANGIOFLOW_SECTION__SOME_KEY to section.some-key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.Split(s, "__")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "_", "-")
	}
	return strings.Join(parts, ".")
}

// Validate checks the parameters that would otherwise fail deep inside a run.
func (p Params) Validate() error {
	if err := p.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	switch lattice.Kind(p.Lattice.Kind) {
	case lattice.Tumour, lattice.Retina, lattice.Grid:
	default:
		return fmt.Errorf("lattice: unknown kind %q", p.Lattice.Kind)
	}
	if p.Run.TimeStep <= 0 {
		return fmt.Errorf("run: time step must be positive, got %g", p.Run.TimeStep)
	}
	if p.Remodel.MinRadius <= 0 || p.Remodel.MinRadius >= p.Remodel.MaxRadius {
		return fmt.Errorf("remodel: radius bounds [%g, %g] are invalid", p.Remodel.MinRadius, p.Remodel.MaxRadius)
	}
	return nil
}

// mapProvider serves an in-memory map as a koanf provider.
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

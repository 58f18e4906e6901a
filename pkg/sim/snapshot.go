package sim

import "github.com/ritzau/angioflow/pkg/network"

// VesselState is the per-vessel part of a snapshot.
type VesselState struct {
	ID     int     `json:"id"`
	In     int     `json:"in"`
	Out    int     `json:"out"`
	Radius float64 `json:"radius"`
	Flow   float64 `json:"flow"`
	HD     float64 `json:"hd"`
	FQE    float64 `json:"fqe"`
	WSS    float64 `json:"wss"`
	Closed bool    `json:"closed"`
}

// NodeState is the per-node part of a snapshot. I, J, K is the lattice
// site and X, Y, Z the jittered position in metres.
type NodeState struct {
	ID          int     `json:"id"`
	I           int     `json:"i"`
	J           int     `json:"j"`
	K           int     `json:"k"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Pressure    float64 `json:"pressure"`
	HD          float64 `json:"hd"`
	TransitTime float64 `json:"transit_time"`
	Tip         bool    `json:"tip"`
}

// BlockState is the per-block part of a snapshot.
type BlockState struct {
	ID  int     `json:"id"`
	TAF float64 `json:"taf"`
	FN  float64 `json:"fn"`
	MDE float64 `json:"mde"`
	HD  float64 `json:"hd"`
}

// Snapshot is an immutable copy of the network after a macro step.
type Snapshot struct {
	RunID   string        `json:"run_id"`
	Step    int           `json:"step"`
	Time    float64       `json:"time"`
	Tips    []int         `json:"tips"`
	Vessels []VesselState `json:"vessels"`
	Nodes   []NodeState   `json:"nodes"`
	Blocks  []BlockState  `json:"blocks"`
}

// Capture copies the state of net. Closed nodes and blocks are skipped;
// closed vessels are kept so that shunts stay visible.
func Capture(runID string, step int, time float64, net *network.Network) *Snapshot {
	s := &Snapshot{
		RunID:   runID,
		Step:    step,
		Time:    time,
		Tips:    net.Tips(),
		Vessels: make([]VesselState, 0, len(net.Vessels)),
		Nodes:   make([]NodeState, 0, len(net.Nodes)),
		Blocks:  make([]BlockState, 0, len(net.Blocks)),
	}
	for _, v := range net.Vessels {
		s.Vessels = append(s.Vessels, VesselState{
			ID: v.ID, In: v.In, Out: v.Out,
			Radius: v.Radius, Flow: v.Flow, HD: v.HD, FQE: v.FQE, WSS: v.WSS,
			Closed: v.Closed,
		})
	}
	for _, n := range net.Nodes {
		if n.Closed {
			continue
		}
		s.Nodes = append(s.Nodes, NodeState{
			ID: n.ID, I: n.I, J: n.J, K: n.K,
			X: n.X, Y: n.Y, Z: n.Z,
			Pressure: n.Pressure, HD: n.HD, TransitTime: n.TransitTime, Tip: n.Tip,
		})
	}
	for _, b := range net.Blocks {
		if b.Closed {
			continue
		}
		s.Blocks = append(s.Blocks, BlockState{ID: b.ID, TAF: b.TAF, FN: b.FN, MDE: b.MDE, HD: b.HD})
	}
	return s
}

// Observer receives a snapshot after every emitted macro step. It runs on
// the simulation goroutine and must not block.
type Observer interface {
	Observe(s *Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s *Snapshot)

// Observe calls f(s).
func (f ObserverFunc) Observe(s *Snapshot) { f(s) }

// MultiObserver fans a snapshot out to several observers in order.
type MultiObserver []Observer

// Observe forwards s to every non-nil observer.
func (m MultiObserver) Observe(s *Snapshot) {
	for _, o := range m {
		if o != nil {
			o.Observe(s)
		}
	}
}

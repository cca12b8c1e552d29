package game

import (
	"fmt"
)

// TestSim is a headless simulation harness used by tests and the replay
// report. It drives a Scene exactly like Game.Update but has no window and
// supports deterministic seeding and structured logging.
type TestSim struct {
	Scene    *Scene
	SimLog   *SimLog
	Reporter *SimReporter
	StepMs   float64

	cfg    SceneConfig
	placed []placedAgent
}

type placedAgent struct {
	id, name string
	at       *Tile // nil = assigned station, else the entry
}

// simOptionKind controls the pass in which an option is applied.
type simOptionKind int

const (
	simOptInfra simOptionKind = iota // grid, stations, seed, tuning, verbose; applied first
	simOptAgent                      // add agents; applied after the scene is built
)

// SimOption is a builder function applied to a TestSim during construction.
type SimOption struct {
	kind simOptionKind
	fn   func(*TestSim)
}

// DefaultSimConfig is a small walled workshop with four stations along the
// top wall, four cots in the bottom-left corner and a door in the bottom
// wall.
func DefaultSimConfig() SceneConfig {
	const ts = 32
	grid := []string{
		"####################",
		"#..................#",
		"#..................#",
		"#..................#",
		"#..................#",
		"#.......##.........#",
		"#.......##.........#",
		"#..................#",
		"#..................#",
		"#..................#",
		"#..................#",
		"#########.##########",
	}
	cfg := SceneConfig{
		TileSize:     ts,
		Grid:         grid,
		Entry:        Tile{9, 10},
		Door:         Tile{9, 11},
		Cots:         []Tile{{2, 9}, {3, 9}, {4, 9}, {5, 9}},
		RestArea:     Tile{3, 8},
		ConveyorFrom: Vec2{12 * ts, 8*ts + ts/2},
		ConveyorTo:   Vec2{18 * ts, 8*ts + ts/2},
		ViewportW:    640,
		ViewportH:    384,
		Seed:         1,
		Areas: []NamedArea{
			{Kind: AreaMemory, Label: "Memory", Bounds: TileRect(Tile{13, 3}, 3, 2, ts)},
			{Kind: AreaSkills, Label: "Skills", Bounds: TileRect(Tile{16, 3}, 3, 2, ts)},
		},
	}
	for i, col := range []int{3, 7, 11, 15} {
		t := Tile{col, 2}
		cfg.Stations = append(cfg.Stations, Station{
			ID:     fmt.Sprintf("bench-%d", i+1),
			Name:   fmt.Sprintf("Bench %d", i+1),
			Tile:   t,
			Bounds: TileRect(Tile{col, 1}, 1, 1, ts),
		})
	}
	return cfg
}

// WithConfig replaces the whole scene configuration.
func WithConfig(cfg SceneConfig) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg = cfg
	}}
}

// WithGrid replaces the walkability rows.
func WithGrid(rows ...string) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg.Grid = rows
	}}
}

// WithStations replaces the station list.
func WithStations(stations ...Station) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg.Stations = stations
	}}
}

// WithSeed sets the RNG seed for deterministic runs.
func WithSeed(seed int64) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg.Seed = seed
	}}
}

// WithVerbose enables per-tick verbose logging.
func WithVerbose(v bool) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg.Verbose = v
	}}
}

// WithTuning overrides tuning; zero fields keep the defaults.
func WithTuning(t Tuning) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.cfg.Tuning = t
	}}
}

// WithStepMs sets the simulated frame length.
func WithStepMs(ms float64) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.StepMs = ms
	}}
}

// WithAgent places an idle agent at the first free station, skipping the
// entrance walk.
func WithAgent(id, name string) SimOption {
	return SimOption{simOptAgent, func(ts *TestSim) {
		ts.placed = append(ts.placed, placedAgent{id: id, name: name})
	}}
}

// WithAgentAt places an idle agent on tile t without a station.
func WithAgentAt(id string, t Tile) SimOption {
	return SimOption{simOptAgent, func(ts *TestSim) {
		ts.placed = append(ts.placed, placedAgent{id: id, name: id, at: &t})
	}}
}

// NewTestSim constructs a TestSim from the given options in ordered passes:
//  1. Infrastructure (grid, stations, seed, tuning, verbose)
//  2. Build the Scene
//  3. Agents
func NewTestSim(opts ...SimOption) (*TestSim, error) {
	ts := &TestSim{cfg: DefaultSimConfig(), StepMs: 1000.0 / 60}
	for _, o := range opts {
		if o.kind == simOptInfra {
			o.fn(ts)
		}
	}
	sc, err := NewScene(ts.cfg)
	if err != nil {
		return nil, err
	}
	ts.Scene = sc
	ts.SimLog = sc.SimLog()
	ts.Reporter = NewSimReporter(reportWindowTicks)
	for _, o := range opts {
		if o.kind == simOptAgent {
			o.fn(ts)
		}
	}
	for _, p := range ts.placed {
		ts.place(p)
	}
	return ts, nil
}

func (ts *TestSim) place(p placedAgent) {
	sc := ts.Scene
	tile := sc.cfg.Entry
	var opts []TransitionOption
	if p.at != nil {
		tile = *p.at
	} else if st, ok := sc.stations.AssignFirstFree(p.id); ok {
		tile = st.Tile
		opts = append(opts, WithStation(st.ID))
	}
	a := NewAgent(p.id, p.name, TileToPixel(tile, sc.cfg.TileSize), &sc.tuning)
	sc.AddAgent(a)
	a.Transition(StateIdle, opts...)
	sc.logSim(a.id, "agent", "placed", fmt.Sprintf("%d,%d", tile.Col, tile.Row))
}

// Emit applies events as one batch.
func (ts *TestSim) Emit(evs ...Event) {
	ts.Scene.HandleEvents(evs)
}

// Step advances the simulation one frame. A report snapshot is collected
// every reportEveryTicks frames.
func (ts *TestSim) Step() {
	ts.Scene.Update(ts.StepMs)
	if ts.Scene.Tick()%reportEveryTicks == 0 {
		ts.Reporter.Collect(ts.Scene)
	}
}

// RunTicks advances the simulation n frames.
func (ts *TestSim) RunTicks(n int) {
	for i := 0; i < n; i++ {
		ts.Step()
	}
}

// RunMs advances the simulation by at least ms of simulated time.
func (ts *TestSim) RunMs(ms float64) {
	for end := ts.Scene.ClockMs() + ms; ts.Scene.ClockMs() < end; {
		ts.Step()
	}
}

// RunUntil advances the simulation up to maxTicks, stopping early if predicate
// returns true. Returns the tick at which the predicate was satisfied, or -1.
func (ts *TestSim) RunUntil(predicate func(*TestSim) bool, maxTicks int) int {
	for i := 0; i < maxTicks; i++ {
		ts.Step()
		if predicate(ts) {
			return ts.Scene.Tick()
		}
	}
	return -1
}

// Agent returns the agent with id, or nil.
func (ts *TestSim) Agent(id string) *Agent {
	a, _ := ts.Scene.Agent(id)
	return a
}

// CurrentTick returns the current simulation tick.
func (ts *TestSim) CurrentTick() int {
	return ts.Scene.Tick()
}

// SimSnapshot captures a lightweight state summary.
type SimSnapshot struct {
	Tick   int
	Agents []AgentSnapshot
}

// AgentSnapshot is a lightweight copy of an agent's state at a tick.
type AgentSnapshot struct {
	ID      string
	Name    string
	X, Y    float64
	State   AgentState
	Anim    WorkAnim
	Station string
	Active  bool
}

// Snapshot returns the current state of all agents.
func (ts *TestSim) Snapshot() SimSnapshot {
	snap := SimSnapshot{Tick: ts.Scene.Tick()}
	for _, a := range ts.Scene.order {
		snap.Agents = append(snap.Agents, AgentSnapshot{
			ID:      a.id,
			Name:    a.name,
			X:       a.pos.X,
			Y:       a.pos.Y,
			State:   a.state,
			Anim:    a.workAnim,
			Station: a.stationID,
			Active:  a.active,
		})
	}
	return snap
}

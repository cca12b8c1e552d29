package game

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// SceneConfig is the host-provided static configuration of a workshop.
type SceneConfig struct {
	TileSize int
	// Grid rows; '#' is blocked, anything else walkable.
	Grid     []string
	Stations []Station
	Areas    []NamedArea
	Entry    Tile
	Door     Tile
	Cots     []Tile
	RestArea Tile

	// Conveyor belt end points in world pixels.
	ConveyorFrom Vec2
	ConveyorTo   Vec2

	ViewportW int
	ViewportH int
	Snow      bool
	Seed      int64

	// Tuning overrides; zero fields keep the defaults.
	Tuning  Tuning
	Verbose bool
}

// Validate fails fast on configuration that cannot produce a scene.
func (c SceneConfig) Validate() error {
	if c.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", c.TileSize)
	}
	if len(c.Grid) == 0 || len(c.Grid[0]) == 0 {
		return errors.New("grid is empty")
	}
	if c.ViewportW <= 0 || c.ViewportH <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportW, c.ViewportH)
	}
	cols, rows := len(c.Grid[0]), len(c.Grid)
	in := func(t Tile) bool { return t.Col >= 0 && t.Row >= 0 && t.Col < cols && t.Row < rows }
	if !in(c.Entry) {
		return fmt.Errorf("entry %v outside %dx%d grid", c.Entry, cols, rows)
	}
	if !in(c.Door) {
		return fmt.Errorf("door %v outside %dx%d grid", c.Door, cols, rows)
	}
	for _, s := range c.Stations {
		if !in(s.Tile) {
			return fmt.Errorf("station %q at %v outside %dx%d grid", s.ID, s.Tile, cols, rows)
		}
	}
	return nil
}

// ConveyorItem is one output travelling along the belt.
type ConveyorItem struct {
	ID       int
	AgentID  string
	Label    string
	Progress float64 // 0..1 along the belt
	Age      float64 // ms
}

// Door is the binary entrance animation state.
type Door struct {
	Open     bool
	progress float32 // 0 closed .. 1 open
	tween    *gween.Tween
}

// Progress returns the open fraction used for drawing.
func (d *Door) Progress() float64 { return float64(d.progress) }

func (d *Door) update(near bool, animMs, dtMs float64) {
	if near != d.Open {
		d.Open = near
		to := float32(0)
		if near {
			to = 1
		}
		d.tween = gween.New(d.progress, to, float32(animMs/1000), ease.OutQuad)
	}
	if d.tween == nil {
		return
	}
	v, done := d.tween.Update(float32(dtMs / 1000))
	d.progress = v
	if done {
		d.tween = nil
	}
}

// Scene owns every agent and subsystem and runs the per-frame sequence.
type Scene struct {
	cfg    SceneConfig
	tuning Tuning

	nav      *NavGrid
	stations *StationRegistry
	agents   map[string]*Agent
	order    []*Agent
	exiting  map[string]bool

	seq       *Sequencer
	particles *ParticleSystem
	camera    *Camera
	rng       *rand.Rand
	w         World

	conveyor []ConveyorItem
	nextItem int
	door     Door

	seen      map[string]struct{}
	zzzTimer  float64
	snowTimer float64
	clock     float64 // ms since start
	tick      int

	activity *ThoughtLog
	simLog   *SimLog
	states   map[string]AgentState // last logged state per agent

	selected string
	worldBuf *ebiten.Image
}

// NewScene builds a scene from cfg.
func NewScene(cfg SceneConfig) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scene config: %w", err)
	}
	sc := &Scene{
		cfg:      cfg,
		tuning:   DefaultTuning().Merge(cfg.Tuning),
		nav:      NewNavGridFromRows(cfg.Grid),
		stations: NewStationRegistry(cfg.Stations),
		agents:   make(map[string]*Agent),
		exiting:  make(map[string]bool),
		seq:      NewSequencer(),
		rng:      rand.New(rand.NewSource(cfg.Seed)), // #nosec G404 -- deterministic replay
		seen:     make(map[string]struct{}),
		activity: NewThoughtLog(),
		simLog:   NewSimLog(cfg.Verbose),
		states:   make(map[string]AgentState),
	}
	sc.particles = NewParticleSystem(sc.rng)
	worldW, worldH := sc.WorldSize()
	sc.camera = NewCamera(float64(cfg.ViewportW), float64(cfg.ViewportH), worldW/2, worldH/2)
	sc.w = World{
		Agents:    sc.agents,
		Nav:       sc.nav,
		TileSize:  cfg.TileSize,
		Stations:  sc.stations,
		Cots:      cfg.Cots,
		RestArea:  cfg.RestArea,
		Particles: sc.particles,
		Rng:       sc.rng,
		Tuning:    &sc.tuning,
	}
	sc.seq.Log = func(agentID, category, key, value string) {
		sc.logSim(agentID, category, key, value)
	}
	return sc, nil
}

// WorldSize returns the grid extent in pixels.
func (sc *Scene) WorldSize() (w, h float64) {
	ts := float64(sc.cfg.TileSize)
	return float64(sc.nav.Cols()) * ts, float64(sc.nav.Rows()) * ts
}

func (sc *Scene) Config() SceneConfig { return sc.cfg }
func (sc *Scene) Tuning() Tuning { return sc.tuning }
func (sc *Scene) Nav() *NavGrid { return sc.nav }
func (sc *Scene) Stations() *StationRegistry { return sc.stations }
func (sc *Scene) Areas() []NamedArea { return sc.cfg.Areas }
func (sc *Scene) Sequencer() *Sequencer { return sc.seq }
func (sc *Scene) Particles() *ParticleSystem { return sc.particles }
func (sc *Scene) Camera() *Camera { return sc.camera }
func (sc *Scene) ActivityLog() *ThoughtLog { return sc.activity }
func (sc *Scene) SimLog() *SimLog { return sc.simLog }
func (sc *Scene) Door() *Door { return &sc.door }
func (sc *Scene) Tick() int { return sc.tick }
func (sc *Scene) ClockMs() float64 { return sc.clock }
func (sc *Scene) World() *World { return &sc.w }

// SetSelected highlights agent id; empty clears the highlight.
func (sc *Scene) SetSelected(id string) { sc.selected = id }

// Selected returns the highlighted agent id.
func (sc *Scene) Selected() string { return sc.selected }

// Conveyor returns a copy of the items on the belt.
func (sc *Scene) Conveyor() []ConveyorItem {
	return append([]ConveyorItem(nil), sc.conveyor...)
}

// Agent looks an agent up by id.
func (sc *Scene) Agent(id string) (*Agent, bool) {
	a, ok := sc.agents[id]
	return a, ok
}

// Agents returns the agents in insertion order.
func (sc *Scene) Agents() []*Agent {
	return append([]*Agent(nil), sc.order...)
}

// AddAgent inserts a; an agent with the same id is replaced.
func (sc *Scene) AddAgent(a *Agent) {
	if a == nil || a.id == "" {
		return
	}
	if _, ok := sc.agents[a.id]; ok {
		sc.RemoveAgent(a.id)
	}
	sc.agents[a.id] = a
	sc.order = append(sc.order, a)
}

// RemoveAgent deletes an agent and frees its station. Sequences that
// reference it end on their next tick.
func (sc *Scene) RemoveAgent(id string) {
	if _, ok := sc.agents[id]; !ok {
		return
	}
	delete(sc.agents, id)
	delete(sc.exiting, id)
	delete(sc.states, id)
	sc.stations.Release(id)
	for i, a := range sc.order {
		if a.id == id {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
	sc.logSim(id, "agent", "removed", "")
}

// HandleEvents applies a batch of events in order. Events whose id was
// already seen are skipped.
func (sc *Scene) HandleEvents(evs []Event) {
	if len(evs) == 0 {
		return
	}
	RefreshDynamicBlocks(sc.nav, sc.cfg.TileSize, sc.order)
	for _, ev := range evs {
		if ev.ID != "" {
			if _, dup := sc.seen[ev.ID]; dup {
				continue
			}
			sc.seen[ev.ID] = struct{}{}
		}
		sc.logSim(ev.AgentID, "event", ev.Kind.String(), ev.ID)
		sc.processEvent(ev)
	}
}

// HandleEvent applies a single event.
func (sc *Scene) HandleEvent(ev Event) { sc.HandleEvents([]Event{ev}) }

// Update advances the simulation by dtMs in the fixed frame order.
func (sc *Scene) Update(dtMs float64) {
	if dtMs < 0 {
		dtMs = 0
	}
	sc.tick++
	sc.clock += dtMs

	RefreshDynamicBlocks(sc.nav, sc.cfg.TileSize, sc.order)

	for _, a := range sc.order {
		a.Update(dtMs)
	}
	sc.reapExiting()
	sc.logStateChanges()

	sc.seq.Update(&sc.w, dtMs)

	sc.particles.Update(dtMs)
	sc.updateAmbient(dtMs)

	sc.UpdateView(dtMs)

	sc.updateConveyor(dtMs)
	sc.door.update(sc.agentNearDoor(), sc.tuning.DoorAnimMs, dtMs)
}

// UpdateView eases the camera only. A paused host calls it instead of
// Update so panning and zooming stay responsive.
func (sc *Scene) UpdateView(dtMs float64) {
	sc.camera.Update(dtMs, func(id string) (Vec2, bool) {
		a, ok := sc.agents[id]
		if !ok {
			return Vec2{}, false
		}
		return a.pos, true
	})
}

// reapExiting removes departing agents once they reach the door.
func (sc *Scene) reapExiting() {
	for _, id := range sortedKeys(sc.exiting) {
		a, ok := sc.agents[id]
		if !ok || a.state != StateExiting {
			sc.RemoveAgent(id)
		}
	}
}

func (sc *Scene) logStateChanges() {
	for _, a := range sc.order {
		prev, seen := sc.states[a.id]
		if seen && prev == a.state {
			continue
		}
		sc.states[a.id] = a.state
		sc.simLog.Add(sc.tick, a.id, "state", "change", a.state.String(), 0)
	}
	if !sc.simLog.Verbose() {
		return
	}
	for _, a := range sc.order {
		if a.state.Moves() {
			sc.simLog.AddVerbose(sc.tick, a.id, "pos", "at", fmt.Sprintf("%.0f,%.0f", a.pos.X, a.pos.Y), a.pos.Len())
		}
	}
}

func (sc *Scene) updateAmbient(dtMs float64) {
	sc.zzzTimer += dtMs
	if sc.zzzTimer >= sc.tuning.ZzzEveryMs {
		sc.zzzTimer = 0
		for _, a := range sc.order {
			if a.state == StateSleeping {
				sc.particles.AddBurst(a.pos.Add(Vec2{4, -agentRadius - 4}), ParticleZzz, 1)
			}
		}
	}
	if !sc.cfg.Snow {
		return
	}
	sc.snowTimer += dtMs
	if sc.snowTimer >= sc.tuning.SnowEveryMs {
		sc.snowTimer = 0
		w, _ := sc.WorldSize()
		sc.particles.AddBurst(Vec2{sc.rng.Float64() * w, -4}, ParticleSnow, 1)
	}
}

func (sc *Scene) pushConveyor(agentID, label string) {
	sc.nextItem++
	sc.conveyor = append(sc.conveyor, ConveyorItem{
		ID:      sc.nextItem,
		AgentID: agentID,
		Label:   Excerpt(label, 24),
	})
	if limit := sc.tuning.ConveyorMax; limit > 0 && len(sc.conveyor) > limit {
		sc.conveyor = sc.conveyor[len(sc.conveyor)-limit:]
	}
}

func (sc *Scene) updateConveyor(dtMs float64) {
	kept := sc.conveyor[:0]
	for _, it := range sc.conveyor {
		it.Age += dtMs
		it.Progress += sc.tuning.ConveyorSpeed * dtMs / 1000
		if it.Progress < 1 {
			kept = append(kept, it)
		}
	}
	sc.conveyor = kept
}

func (sc *Scene) agentNearDoor() bool {
	door := TileToPixel(sc.cfg.Door, sc.cfg.TileSize)
	r := sc.tuning.DoorRadius * float64(sc.cfg.TileSize)
	for _, a := range sc.order {
		if a.pos.Dist(door) <= r {
			return true
		}
	}
	return false
}

// HitTest resolves a world point against the scene's agents, stations and
// named areas.
func (sc *Scene) HitTest(p Vec2) Hit {
	return HitTest(p, sc.order, sc.stations, sc.cfg.Areas)
}

// FitPoints returns every agent position, or every station when empty.
func (sc *Scene) FitPoints() []Vec2 {
	pts := make([]Vec2, 0, len(sc.order))
	for _, a := range sc.order {
		pts = append(pts, a.pos)
	}
	if len(pts) == 0 {
		for _, s := range sc.stations.All() {
			pts = append(pts, TileToPixel(s.Tile, sc.cfg.TileSize))
		}
	}
	return pts
}

// StationFocus returns the pixel centre of the i-th station.
func (sc *Scene) StationFocus(i int) (Vec2, bool) {
	s, ok := sc.stations.At(i)
	if !ok {
		return Vec2{}, false
	}
	return TileToPixel(s.Tile, sc.cfg.TileSize), true
}

// note records agent activity in both logs.
func (sc *Scene) note(a *Agent, kind, text string) {
	sc.activity.Add(sc.clock, a.name, kind, Excerpt(text, 40))
	sc.logSim(a.id, "activity", kind, text)
}

func (sc *Scene) logSim(agentID, category, key, value string) {
	if agentID == "" {
		agentID = "--"
	}
	sc.simLog.Add(sc.tick, agentID, category, key, value, 0)
}

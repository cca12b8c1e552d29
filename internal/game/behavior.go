package game

import (
	"math/rand"
	"sort"
)

// wanderPickAttempts bounds the random candidate search per wander step.
const wanderPickAttempts = 12

// World is the set of scene-owned collections lent to the sequencer for
// the duration of one call. Nothing in it is retained across frames.
type World struct {
	Agents    map[string]*Agent
	Nav       *NavGrid
	TileSize  int
	Stations  *StationRegistry
	Cots      []Tile
	RestArea  Tile
	Particles *ParticleSystem
	Rng       *rand.Rand
	Tuning    *Tuning
}

func (w *World) agent(id string) (*Agent, bool) {
	a, ok := w.Agents[id]
	return a, ok && a != nil
}

// pathTo plans a route from a's position to the nearest walkable tile at
// or around target.
func (w *World) pathTo(a *Agent, target Tile) []Vec2 {
	if PixelToTile(a.pos, w.TileSize) == target {
		return nil
	}
	t, ok := w.Nav.FindNearestWalkable(target)
	if !ok {
		return nil
	}
	return ComputePath(w.Nav, w.TileSize, a.pos, TileToPixel(t, w.TileSize))
}

// stationTile returns the standing tile of a's assigned station.
func (w *World) stationTile(a *Agent) (Tile, bool) {
	if w.Stations == nil || a.stationID == "" {
		return Tile{}, false
	}
	st, ok := w.Stations.Get(a.stationID)
	if !ok {
		return Tile{}, false
	}
	return st.Tile, true
}

func (w *World) isCot(t Tile) bool {
	for _, c := range w.Cots {
		if c == t {
			return true
		}
	}
	return false
}

func randBetween(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func randIntBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// DeliveryPhase is a step of a delivery walk.
type DeliveryPhase int

const (
	PhasePickup DeliveryPhase = iota
	PhaseWalkingToReceiver
	PhaseShowingMessage
	PhaseReceiverNod
	PhaseWalkingBack
)

func (p DeliveryPhase) String() string {
	switch p {
	case PhasePickup:
		return "pickup"
	case PhaseWalkingToReceiver:
		return "walking_to_receiver"
	case PhaseShowingMessage:
		return "showing_message"
	case PhaseReceiverNod:
		return "receiver_nod"
	case PhaseWalkingBack:
		return "walking_back"
	default:
		return "unknown"
	}
}

// DeliveryWalk carries one message from a sender to a receiver.
type DeliveryWalk struct {
	SenderID   string
	ReceiverID string
	Message    string
	Phase      DeliveryPhase
	PhaseTime  float64

	// Pending holds work handed to the sender mid-delivery. It is queued
	// on the sender once the delivery ends.
	Pending []Action
}

// CeremonyPhase is a step of the session-end ceremony.
type CeremonyPhase int

const (
	CeremonyCelebrate CeremonyPhase = iota
	CeremonySparkleBurst
	CeremonyWalkToCots
	CeremonySleep
)

func (p CeremonyPhase) String() string {
	switch p {
	case CeremonyCelebrate:
		return "celebrate"
	case CeremonySparkleBurst:
		return "sparkle_burst"
	case CeremonyWalkToCots:
		return "walk_to_cots"
	case CeremonySleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// Ceremony is the single global session-end sequence.
type Ceremony struct {
	Phase        CeremonyPhase
	PhaseTime    float64
	Participants []string
}

// WanderState tracks one idle agent's autonomous walk cycle.
type WanderState struct {
	PauseTimer float64
	WalkCount  int
	WalkLimit  int
	Resting    bool
	RestTimer  float64
}

// Sequencer orchestrates choreographies spanning several agents and
// frames. All timers are explicit fields advanced by Update.
type Sequencer struct {
	deliveries map[string]*DeliveryWalk // keyed by sender id
	ceremony   *Ceremony
	idle       map[string]float64
	wander     map[string]*WanderState

	// Log, when set, receives phase changes for the structured sim log.
	Log func(agentID, category, key, value string)
}

// NewSequencer returns an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{
		deliveries: make(map[string]*DeliveryWalk),
		idle:       make(map[string]float64),
		wander:     make(map[string]*WanderState),
	}
}

func (sq *Sequencer) log(agentID, category, key, value string) {
	if sq.Log != nil {
		sq.Log(agentID, category, key, value)
	}
}

// InDelivery reports whether id is the sender or receiver of a delivery.
func (sq *Sequencer) InDelivery(id string) bool {
	if _, ok := sq.deliveries[id]; ok {
		return true
	}
	for _, d := range sq.deliveries {
		if d.ReceiverID == id {
			return true
		}
	}
	return false
}

// InCeremony reports whether id participates in the active ceremony.
func (sq *Sequencer) InCeremony(id string) bool {
	if sq.ceremony == nil {
		return false
	}
	for _, p := range sq.ceremony.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Delivery returns a copy of the delivery sent by senderID.
func (sq *Sequencer) Delivery(senderID string) (DeliveryWalk, bool) {
	d, ok := sq.deliveries[senderID]
	if !ok {
		return DeliveryWalk{}, false
	}
	return *d, true
}

// DeliveryCount returns the number of active deliveries.
func (sq *Sequencer) DeliveryCount() int { return len(sq.deliveries) }

// Ceremony returns a copy of the active ceremony.
func (sq *Sequencer) Ceremony() (Ceremony, bool) {
	if sq.ceremony == nil {
		return Ceremony{}, false
	}
	c := *sq.ceremony
	c.Participants = append([]string(nil), c.Participants...)
	return c, true
}

// Wander returns a copy of id's wander state.
func (sq *Sequencer) Wander(id string) (WanderState, bool) {
	ws, ok := sq.wander[id]
	if !ok {
		return WanderState{}, false
	}
	return *ws, true
}

// IdleTime returns how long id has been continuously idle.
func (sq *Sequencer) IdleTime(id string) float64 { return sq.idle[id] }

// Update runs the four passes in their fixed order.
func (sq *Sequencer) Update(w *World, dtMs float64) {
	sq.updateDeliveries(w, dtMs)
	sq.updateCeremony(w, dtMs)
	sq.updateIdle(w, dtMs)
	sq.updateWander(w, dtMs)
}

// ---------------------------------------------------------------------------
// Deliveries
// ---------------------------------------------------------------------------

// StartDelivery begins a delivery walk. Self-delivery, unknown agents, a
// sender already delivering and ceremony participants are rejected.
func (sq *Sequencer) StartDelivery(w *World, senderID, receiverID, message string) bool {
	if senderID == receiverID {
		return false
	}
	sender, ok := w.agent(senderID)
	if !ok {
		return false
	}
	if _, ok := w.agent(receiverID); !ok {
		return false
	}
	if _, busy := sq.deliveries[senderID]; busy || sq.InCeremony(senderID) {
		return false
	}
	sender.ClearQueue()
	sender.Transition(StateCarrying, WithItem(ItemLetter))
	// Pickup happens in place, even when a walk was under way.
	sender.path = nil
	sq.deliveries[senderID] = &DeliveryWalk{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    message,
		Phase:      PhasePickup,
	}
	sq.log(senderID, "delivery", "start", receiverID)
	return true
}

// CancelDelivery drops senderID's delivery along with any work deferred
// behind it. A waiting receiver is released.
func (sq *Sequencer) CancelDelivery(w *World, senderID string) {
	d, ok := sq.deliveries[senderID]
	if !ok {
		return
	}
	sq.releaseReceiver(w, d)
	delete(sq.deliveries, senderID)
}

// DeferWork parks act on senderID's delivery until it ends. It reports
// false when senderID is not delivering.
func (sq *Sequencer) DeferWork(senderID string, act Action) bool {
	d, ok := sq.deliveries[senderID]
	if !ok {
		return false
	}
	d.Pending = append(d.Pending, act)
	sq.log(senderID, "delivery", "defer", act.State.String())
	return true
}

func (sq *Sequencer) updateDeliveries(w *World, dtMs float64) {
	for _, id := range sortedKeys(sq.deliveries) {
		d := sq.deliveries[id]
		sender, ok := w.agent(d.SenderID)
		if !ok {
			sq.log(d.SenderID, "delivery", "abort", "sender gone")
			sq.releaseReceiver(w, d)
			delete(sq.deliveries, id)
			continue
		}
		d.PhaseTime += dtMs
		if sq.stepDelivery(w, d, sender) {
			sq.log(d.SenderID, "delivery", "complete", d.ReceiverID)
			delete(sq.deliveries, id)
			if sender.active {
				for _, act := range d.Pending {
					sender.Enqueue(act)
				}
			}
		}
	}
}

// releaseReceiver returns a receiver still waiting on d to idle.
func (sq *Sequencer) releaseReceiver(w *World, d *DeliveryWalk) {
	if r, ok := w.agent(d.ReceiverID); ok && r.state == StateWaiting {
		r.Transition(StateIdle)
	}
}

// stepDelivery advances d by at most one phase and reports completion.
func (sq *Sequencer) stepDelivery(w *World, d *DeliveryWalk, sender *Agent) bool {
	t := w.Tuning
	receiver, haveReceiver := w.agent(d.ReceiverID)

	switch d.Phase {
	case PhasePickup:
		if d.PhaseTime < t.DeliveryPickupMs {
			return false
		}
		if !haveReceiver {
			sq.enterWalkingBack(w, d, sender)
			return false
		}
		path := w.pathTo(sender, PixelToTile(receiver.pos, w.TileSize))
		if !sender.WalkTo(path, StateCarrying) {
			// Already beside the receiver.
			sender.Transition(StateDelivering)
		}
		sq.setPhase(d, PhaseWalkingToReceiver)

	case PhaseWalkingToReceiver:
		if s := sender.state; s == StateCarrying || s == StateWalking {
			return false
		}
		if !haveReceiver {
			sq.enterWalkingBack(w, d, sender)
			return false
		}
		sender.Transition(StateDelivering)
		sender.faceToward(receiver.pos)
		sender.Say(d.Message, BubbleChat, t.DeliveryMessageMs)
		if receiver.state == StateIdle && !receiver.active {
			receiver.Transition(StateWaiting)
		}
		sq.setPhase(d, PhaseShowingMessage)

	case PhaseShowingMessage:
		if d.PhaseTime < t.DeliveryMessageMs {
			return false
		}
		if !haveReceiver {
			sq.enterWalkingBack(w, d, sender)
			return false
		}
		receiver.faceToward(sender.pos)
		receiver.Say("Got it!", BubbleSpeech, t.DeliveryNodMs)
		sq.setPhase(d, PhaseReceiverNod)

	case PhaseReceiverNod:
		if d.PhaseTime < t.DeliveryNodMs {
			return false
		}
		sq.enterWalkingBack(w, d, sender)

	case PhaseWalkingBack:
		// Any state other than the return walk ends the delivery; an
		// event that took the sender over must not leave it stuck.
		return sender.state != StateWalking
	}
	return false
}

func (sq *Sequencer) enterWalkingBack(w *World, d *DeliveryWalk, sender *Agent) {
	sq.releaseReceiver(w, d)
	sender.Transition(StateIdle, WithItem(ItemNone))
	if st, ok := w.stationTile(sender); ok {
		sender.WalkTo(w.pathTo(sender, st), StateWalking)
	}
	sq.setPhase(d, PhaseWalkingBack)
}

func (sq *Sequencer) setPhase(d *DeliveryWalk, p DeliveryPhase) {
	d.Phase = p
	d.PhaseTime = 0
	sq.log(d.SenderID, "delivery", "phase", p.String())
}

// ---------------------------------------------------------------------------
// Ceremony
// ---------------------------------------------------------------------------

// StartCeremony puts the given agents through the session-end sequence.
// It is a no-op while another ceremony runs or when no id is known.
func (sq *Sequencer) StartCeremony(w *World, ids []string) bool {
	if sq.ceremony != nil {
		return false
	}
	var participants []string
	for _, id := range ids {
		a, ok := w.agent(id)
		if !ok {
			continue
		}
		delete(sq.deliveries, id)
		delete(sq.wander, id)
		sq.idle[id] = 0
		a.ClearQueue()
		a.Transition(StateCelebrating, WithItem(ItemNone))
		if w.Particles != nil {
			w.Particles.AddBurst(a.pos, ParticleCelebrate, 14)
		}
		participants = append(participants, id)
	}
	if len(participants) == 0 {
		return false
	}
	sq.ceremony = &Ceremony{Phase: CeremonyCelebrate, Participants: participants}
	sq.log("--", "ceremony", "start", "")
	return true
}

func (sq *Sequencer) updateCeremony(w *World, dtMs float64) {
	c := sq.ceremony
	if c == nil {
		return
	}
	alive := c.Participants[:0]
	for _, id := range c.Participants {
		if _, ok := w.agent(id); ok {
			alive = append(alive, id)
		}
	}
	c.Participants = alive
	if len(alive) == 0 {
		sq.ceremony = nil
		sq.log("--", "ceremony", "abort", "no participants")
		return
	}

	c.PhaseTime += dtMs
	t := w.Tuning
	switch c.Phase {
	case CeremonyCelebrate:
		if c.PhaseTime < t.CeremonyCelebrateMs {
			return
		}
		for _, id := range alive {
			if a, ok := w.agent(id); ok && w.Particles != nil {
				w.Particles.AddBurst(a.pos, ParticleSparkle, 10)
			}
		}
		sq.setCeremonyPhase(CeremonySparkleBurst)

	case CeremonySparkleBurst:
		if c.PhaseTime < t.CeremonySparkleMs {
			return
		}
		for i, id := range alive {
			a, _ := w.agent(id)
			target := w.RestArea
			if len(w.Cots) > 0 {
				target = w.Cots[i%len(w.Cots)]
			}
			a.Transition(StateIdle)
			a.WalkTo(w.pathTo(a, target), StateWalking)
		}
		sq.setCeremonyPhase(CeremonyWalkToCots)

	case CeremonyWalkToCots:
		for _, id := range alive {
			if a, _ := w.agent(id); a.state != StateIdle {
				return
			}
		}
		for _, id := range alive {
			a, _ := w.agent(id)
			a.Transition(StateSleeping)
		}
		sq.setCeremonyPhase(CeremonySleep)

	case CeremonySleep:
		if c.PhaseTime < t.CeremonySleepMs {
			return
		}
		sq.ceremony = nil
		sq.log("--", "ceremony", "complete", "")
	}
}

func (sq *Sequencer) setCeremonyPhase(p CeremonyPhase) {
	sq.ceremony.Phase = p
	sq.ceremony.PhaseTime = 0
	sq.log("--", "ceremony", "phase", p.String())
}

// ---------------------------------------------------------------------------
// Idle timers
// ---------------------------------------------------------------------------

func (sq *Sequencer) updateIdle(w *World, dtMs float64) {
	for id := range sq.idle {
		if _, ok := w.agent(id); !ok {
			delete(sq.idle, id)
		}
	}
	for _, id := range sortedKeys(w.Agents) {
		a := w.Agents[id]
		if a.state != StateIdle || sq.InDelivery(id) || sq.InCeremony(id) {
			sq.idle[id] = 0
			continue
		}
		sq.idle[id] += dtMs
		if sq.idle[id] <= w.Tuning.IdleSleepMs {
			continue
		}
		sq.idle[id] = 0
		sq.log(id, "idle", "sleep", "")
		if a.WalkTo(w.pathTo(a, w.RestArea), StateWalking) {
			a.Enqueue(Action{Kind: ActionTransition, State: StateSleeping})
		} else {
			a.Transition(StateSleeping)
		}
	}
}

// ---------------------------------------------------------------------------
// Wander
// ---------------------------------------------------------------------------

// StartWander enrols id in the autonomous wander cycle.
func (sq *Sequencer) StartWander(w *World, id string) bool {
	if _, ok := w.agent(id); !ok {
		return false
	}
	if _, ok := sq.wander[id]; ok {
		return true
	}
	t := w.Tuning
	sq.wander[id] = &WanderState{
		PauseTimer: randBetween(w.Rng, t.WanderPauseMinMs, t.WanderPauseMaxMs),
		WalkLimit:  randIntBetween(w.Rng, t.WanderMovesMin, t.WanderMovesMax),
	}
	return true
}

// StopWander removes id from the wander cycle. An agent caught mid-walk is
// sent to its station (or the centre of its current tile) instead of
// freezing between tiles.
func (sq *Sequencer) StopWander(w *World, id string) {
	if _, ok := sq.wander[id]; !ok {
		return
	}
	delete(sq.wander, id)
	a, ok := w.agent(id)
	if !ok || a.state != StateWandering {
		return
	}
	if st, ok := w.stationTile(a); ok && a.WalkTo(w.pathTo(a, st), StateWalking) {
		return
	}
	centre := TileToPixel(PixelToTile(a.pos, w.TileSize), w.TileSize)
	if !a.WalkTo([]Vec2{centre}, StateWalking) {
		a.Transition(StateIdle)
	}
}

// LeaveCeremony drops id from the active ceremony, typically because an
// event handed it new work.
func (sq *Sequencer) LeaveCeremony(id string) {
	c := sq.ceremony
	if c == nil {
		return
	}
	kept := c.Participants[:0]
	for _, p := range c.Participants {
		if p != id {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	if len(kept) == 0 {
		sq.ceremony = nil
	}
}

// Wandering reports whether id is enrolled in the wander cycle.
func (sq *Sequencer) Wandering(id string) bool {
	_, ok := sq.wander[id]
	return ok
}

func (sq *Sequencer) updateWander(w *World, dtMs float64) {
	t := w.Tuning
	for _, id := range sortedKeys(sq.wander) {
		ws := sq.wander[id]
		a, ok := w.agent(id)
		if !ok {
			delete(sq.wander, id)
			continue
		}
		if a.active || a.state != StateIdle || sq.InDelivery(id) || sq.InCeremony(id) {
			continue
		}

		if ws.Resting {
			ws.RestTimer -= dtMs
			if ws.RestTimer > 0 {
				continue
			}
			ws.Resting = false
			ws.WalkCount = 0
			ws.WalkLimit = randIntBetween(w.Rng, t.WanderMovesMin, t.WanderMovesMax)
			ws.PauseTimer = randBetween(w.Rng, t.WanderPauseMinMs, t.WanderPauseMaxMs)
			continue
		}

		ws.PauseTimer -= dtMs
		if ws.PauseTimer > 0 {
			continue
		}
		ws.PauseTimer = randBetween(w.Rng, t.WanderPauseMinMs, t.WanderPauseMaxMs)

		if ws.WalkCount >= ws.WalkLimit {
			if st, ok := w.stationTile(a); ok {
				a.WalkTo(w.pathTo(a, st), StateWalking)
			}
			ws.Resting = true
			ws.RestTimer = randBetween(w.Rng, t.WanderRestMinMs, t.WanderRestMaxMs)
			sq.log(id, "wander", "rest", "")
			continue
		}

		target, ok := sq.pickWanderTile(w)
		if !ok {
			continue
		}
		path := ComputePath(w.Nav, w.TileSize, a.pos, TileToPixel(target, w.TileSize))
		if len(path) == 0 || len(path) > t.WanderHopLimit {
			continue
		}
		a.WalkTo(path, StateWandering)
		ws.WalkCount++
		sq.log(id, "wander", "walk", "")
	}
}

func (sq *Sequencer) pickWanderTile(w *World) (Tile, bool) {
	cols, rows := w.Nav.Cols(), w.Nav.Rows()
	if cols == 0 || rows == 0 {
		return Tile{}, false
	}
	for range wanderPickAttempts {
		t := Tile{w.Rng.Intn(cols), w.Rng.Intn(rows)}
		if !w.Nav.IsWalkable(t.Col, t.Row) || w.isCot(t) {
			continue
		}
		if w.Stations != nil && w.Stations.IsStationTile(t) {
			continue
		}
		return t, true
	}
	return Tile{}, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package game

import (
	"math/rand"
	"testing"
)

const testTile = 16

// seqRig is a bare World + Sequencer, stepped the way Scene.Update does.
type seqRig struct {
	w     *World
	sq    *Sequencer
	order []*Agent
	log   []SimLogEntry
	tick  int
}

func newSeqRig(t *testing.T, tuning Tuning, stations ...Station) *seqRig {
	t.Helper()
	rng := rand.New(rand.NewSource(7)) // #nosec G404 -- test determinism
	tu := DefaultTuning().Merge(tuning)
	r := &seqRig{sq: NewSequencer()}
	r.w = &World{
		Agents:    make(map[string]*Agent),
		Nav:       NewNavGrid(12, 6, nil),
		TileSize:  testTile,
		Stations:  NewStationRegistry(stations),
		Cots:      []Tile{{1, 5}, {2, 5}},
		RestArea:  Tile{4, 5},
		Particles: NewParticleSystem(rng),
		Rng:       rng,
		Tuning:    &tu,
	}
	r.sq.Log = func(agentID, category, key, value string) {
		r.log = append(r.log, SimLogEntry{Tick: r.tick, Agent: agentID, Category: category, Key: key, Value: value})
	}
	return r
}

func (r *seqRig) add(id string, at Tile) *Agent {
	a := NewAgent(id, id, TileToPixel(at, testTile), r.w.Tuning)
	if st, ok := r.w.Stations.AssignFirstFree(id); ok {
		a.Transition(StateIdle, WithStation(st.ID))
	}
	r.w.Agents[id] = a
	r.order = append(r.order, a)
	return a
}

func (r *seqRig) remove(id string) {
	delete(r.w.Agents, id)
	for i, a := range r.order {
		if a.id == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *seqRig) step(dtMs float64) {
	r.tick++
	RefreshDynamicBlocks(r.w.Nav, testTile, r.order)
	for _, a := range r.order {
		a.Update(dtMs)
	}
	r.sq.Update(r.w, dtMs)
}

// run steps until done reports true, failing after maxSteps.
func (r *seqRig) run(t *testing.T, maxSteps int, done func() bool) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		r.step(16)
		if done() {
			return
		}
	}
	t.Fatalf("condition not reached after %d steps", maxSteps)
}

func (r *seqRig) keys(category, key string) []string {
	var out []string
	for _, e := range r.log {
		if e.Category == category && e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

// --- Deliveries ---

func TestDelivery_PhasesInOrder(t *testing.T) {
	r := newSeqRig(t, Tuning{}, Station{ID: "s1", Tile: Tile{1, 1}})
	sender := r.add("a", Tile{1, 1})
	receiver := r.add("b", Tile{8, 1})

	if !r.sq.StartDelivery(r.w, "a", "b", "please review") {
		t.Fatal("delivery should start")
	}
	if sender.State() != StateCarrying || sender.Carried() != ItemLetter {
		t.Fatalf("sender should be carrying a letter, got %s/%s", sender.State(), sender.Carried())
	}
	if !r.sq.InDelivery("b") {
		t.Fatal("receiver should count as in a delivery")
	}

	sawMessage := false
	r.run(t, 3000, func() bool {
		if d, ok := r.sq.Delivery("a"); ok && d.Phase == PhaseShowingMessage && !sawMessage {
			sawMessage = true
			if sender.State() != StateDelivering {
				t.Fatalf("sender should be delivering, got %s", sender.State())
			}
			if b := sender.Bubble(); b == nil || b.Text != "please review" {
				t.Fatal("sender should show the message")
			}
			if d := sender.Pos().Dist(receiver.Pos()); d > testTile*1.5 {
				t.Fatalf("sender should stand beside the receiver, %.1fpx away", d)
			}
		}
		return r.sq.DeliveryCount() == 0
	})

	want := []string{"walking_to_receiver", "showing_message", "receiver_nod", "walking_back"}
	got := r.keys("delivery", "phase")
	if len(got) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phase %d: expected %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
	if !sawMessage {
		t.Fatal("showing_message was never observed")
	}
	if sender.Carried() != ItemNone {
		t.Fatalf("letter should be handed over, still carrying %s", sender.Carried())
	}
	if sender.Pos() != TileToPixel(Tile{1, 1}, testTile) {
		t.Fatalf("sender should be back at its station, at %v", sender.Pos())
	}
	if len(r.keys("delivery", "complete")) != 1 {
		t.Fatal("expected one completion entry")
	}
}

func TestDelivery_ReceiverNods(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{1, 1})
	receiver := r.add("b", Tile{5, 1})
	r.sq.StartDelivery(r.w, "a", "b", "hi")
	r.run(t, 3000, func() bool {
		d, ok := r.sq.Delivery("a")
		return ok && d.Phase == PhaseReceiverNod
	})
	if b := receiver.Bubble(); b == nil || b.Text != "Got it!" {
		t.Fatal("receiver should acknowledge the message")
	}
	// The sender stops on the first free ring tile, diagonally up-left.
	if receiver.Facing() != FacingUp {
		t.Fatalf("receiver should face the sender, got %s", receiver.Facing())
	}
}

func TestDelivery_ReceiverRemovedDuringMessage(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	sender := r.add("a", Tile{1, 1})
	r.add("b", Tile{6, 3})
	r.sq.StartDelivery(r.w, "a", "b", "hello")
	r.run(t, 3000, func() bool {
		d, ok := r.sq.Delivery("a")
		return ok && d.Phase == PhaseShowingMessage
	})

	r.remove("b")
	r.run(t, 3000, func() bool { return r.sq.DeliveryCount() == 0 })

	phases := r.keys("delivery", "phase")
	if phases[len(phases)-1] != "walking_back" {
		t.Fatalf("expected to skip to walking_back, got %v", phases)
	}
	for _, p := range phases {
		if p == "receiver_nod" {
			t.Fatal("receiver_nod must be skipped when the receiver is gone")
		}
	}
	if sender.Carried() != ItemNone {
		t.Fatal("sender should drop the letter")
	}
	if sender.State() != StateIdle {
		t.Fatalf("sender without a station should end idle, got %s", sender.State())
	}
}

func TestDelivery_SenderRemovedAborts(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{1, 1})
	r.add("b", Tile{6, 1})
	r.sq.StartDelivery(r.w, "a", "b", "x")
	r.remove("a")
	r.step(16)
	if r.sq.DeliveryCount() != 0 {
		t.Fatal("delivery should end when the sender disappears")
	}
	if len(r.keys("delivery", "abort")) != 1 {
		t.Fatal("expected an abort entry")
	}
}

func TestDelivery_PickupHappensInPlace(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	sender := r.add("a", Tile{1, 1})
	r.add("b", Tile{8, 3})
	sender.WalkTo([]Vec2{TileToPixel(Tile{5, 1}, testTile), TileToPixel(Tile{6, 1}, testTile)}, StateWandering)

	r.sq.StartDelivery(r.w, "a", "b", "x")
	start := sender.Pos()
	for i := 0; i < 5; i++ {
		r.step(16)
	}
	if d, _ := r.sq.Delivery("a"); d.Phase != PhasePickup {
		t.Fatalf("expected to still be picking up, got %s", d.Phase)
	}
	if sender.Pos() != start || len(sender.Path()) != 0 {
		t.Fatalf("sender should pick up in place, moved %v -> %v", start, sender.Pos())
	}
}

func TestDelivery_ReceiverWaitsForMessage(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{1, 1})
	receiver := r.add("b", Tile{5, 1})
	r.sq.StartDelivery(r.w, "a", "b", "hi")
	r.run(t, 3000, func() bool {
		d, ok := r.sq.Delivery("a")
		return ok && d.Phase == PhaseShowingMessage
	})
	if receiver.State() != StateWaiting {
		t.Fatalf("receiver should wait while the message shows, got %s", receiver.State())
	}
	r.run(t, 3000, func() bool {
		d, ok := r.sq.Delivery("a")
		return ok && d.Phase == PhaseWalkingBack
	})
	if receiver.State() != StateIdle {
		t.Fatalf("receiver should be released after the nod, got %s", receiver.State())
	}
}

func TestDelivery_CancelReleasesReceiver(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{1, 1})
	receiver := r.add("b", Tile{5, 1})
	r.sq.StartDelivery(r.w, "a", "b", "hi")
	r.run(t, 3000, func() bool { return receiver.State() == StateWaiting })
	r.sq.CancelDelivery(r.w, "a")
	if r.sq.DeliveryCount() != 0 || receiver.State() != StateIdle {
		t.Fatalf("cancel should end the delivery and free the receiver, got %s", receiver.State())
	}
}

func TestDelivery_DeferredWorkQueuedOnCompletion(t *testing.T) {
	r := newSeqRig(t, Tuning{}, Station{ID: "s1", Tile: Tile{1, 1}})
	sender := r.add("a", Tile{1, 1})
	r.add("b", Tile{6, 1})
	work := Action{Kind: ActionTransition, State: StateWorking, Opts: []TransitionOption{WithAnim(AnimSearch)}}

	if r.sq.DeferWork("a", work) {
		t.Fatal("no delivery, nothing to defer onto")
	}
	r.sq.StartDelivery(r.w, "a", "b", "x")
	sender.SetActive(true)
	if !r.sq.DeferWork("a", work) || r.sq.DeferWork("b", work) {
		t.Fatal("only the sender can defer work")
	}
	r.run(t, 3000, func() bool { return r.sq.DeliveryCount() == 0 })
	if sender.QueueLen() != 1 {
		t.Fatalf("deferred work should be queued on completion, got %d", sender.QueueLen())
	}
	r.step(16)
	if sender.State() != StateWorking || sender.WorkAnim() != AnimSearch {
		t.Fatalf("sender should start the deferred work, got %s/%s", sender.State(), sender.WorkAnim())
	}
}

func TestDelivery_Rejections(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{1, 1})
	r.add("b", Tile{6, 1})
	r.add("c", Tile{6, 3})

	if r.sq.StartDelivery(r.w, "a", "a", "x") {
		t.Fatal("self-delivery should be rejected")
	}
	if r.sq.StartDelivery(r.w, "a", "zz", "x") || r.sq.StartDelivery(r.w, "zz", "a", "x") {
		t.Fatal("unknown agents should be rejected")
	}
	if !r.sq.StartDelivery(r.w, "a", "b", "x") {
		t.Fatal("first delivery should start")
	}
	if r.sq.StartDelivery(r.w, "a", "c", "x") {
		t.Fatal("a sender may only run one delivery")
	}
	r.sq.StartCeremony(r.w, []string{"c"})
	if r.sq.StartDelivery(r.w, "c", "b", "x") {
		t.Fatal("ceremony participants cannot start deliveries")
	}
}

// --- Ceremony ---

func TestCeremony_AllParticipantsSleep(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		r.add(id, Tile{3 + i*2, 1})
	}
	r.sq.StartWander(r.w, "b")

	if !r.sq.StartCeremony(r.w, ids) {
		t.Fatal("ceremony should start")
	}
	for _, id := range ids {
		if a := r.w.Agents[id]; a.State() != StateCelebrating {
			t.Fatalf("%s should celebrate, got %s", id, a.State())
		}
	}
	if r.sq.Wandering("b") {
		t.Fatal("ceremony should cancel wander")
	}
	if r.w.Particles.CountType(ParticleCelebrate) == 0 {
		t.Fatal("expected celebrate particles")
	}
	if r.sq.StartCeremony(r.w, []string{"a"}) {
		t.Fatal("a second ceremony must be a no-op")
	}

	sleptTogether := false
	r.sq.Log = func(agentID, category, key, value string) {
		if category == "ceremony" && key == "phase" && value == "sleep" {
			sleptTogether = true
			for _, id := range ids {
				if s := r.w.Agents[id].State(); s != StateSleeping {
					sleptTogether = false
				}
			}
		}
	}
	r.run(t, 5000, func() bool {
		_, ok := r.sq.Ceremony()
		return !ok
	})
	if !sleptTogether {
		t.Fatal("all participants should be sleeping when the sleep phase starts")
	}
	for _, id := range ids {
		if s := r.w.Agents[id].State(); s != StateSleeping {
			t.Fatalf("%s should still be sleeping after the ceremony, got %s", id, s)
		}
	}
}

func TestCeremony_PrunesMissingParticipants(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{2, 1})
	r.add("b", Tile{4, 1})
	r.sq.StartCeremony(r.w, []string{"a", "b", "ghost"})
	c, _ := r.sq.Ceremony()
	if len(c.Participants) != 2 {
		t.Fatalf("unknown ids should be skipped, got %v", c.Participants)
	}
	r.remove("a")
	r.remove("b")
	r.step(16)
	if _, ok := r.sq.Ceremony(); ok {
		t.Fatal("ceremony with no participants left should end")
	}
}

func TestCeremony_LeaveCeremony(t *testing.T) {
	r := newSeqRig(t, Tuning{})
	r.add("a", Tile{2, 1})
	r.add("b", Tile{4, 1})
	r.sq.StartCeremony(r.w, []string{"a", "b"})
	r.sq.LeaveCeremony("a")
	if r.sq.InCeremony("a") || !r.sq.InCeremony("b") {
		t.Fatal("only a should leave")
	}
	r.sq.LeaveCeremony("b")
	if _, ok := r.sq.Ceremony(); ok {
		t.Fatal("empty ceremony should clear")
	}
}

// --- Idle ---

func TestIdle_LongIdleWalksToRestAndSleeps(t *testing.T) {
	r := newSeqRig(t, Tuning{IdleSleepMs: 500})
	a := r.add("a", Tile{8, 1})
	r.run(t, 2000, func() bool { return a.State() == StateSleeping })
	if got := PixelToTile(a.Pos(), testTile); got != r.w.RestArea {
		t.Fatalf("should sleep at the rest area, at %v", got)
	}
}

func TestIdle_TimerResetsWhenBusy(t *testing.T) {
	r := newSeqRig(t, Tuning{IdleSleepMs: 500})
	a := r.add("a", Tile{8, 1})
	for i := 0; i < 20; i++ {
		r.step(16)
	}
	if r.sq.IdleTime("a") < 300 {
		t.Fatalf("idle timer should accumulate, got %.0f", r.sq.IdleTime("a"))
	}
	a.Transition(StateWorking)
	r.step(16)
	if r.sq.IdleTime("a") != 0 {
		t.Fatal("working should reset the idle timer")
	}
}

// --- Wander ---

func wanderTuning() Tuning {
	return Tuning{
		WanderPauseMinMs: 100,
		WanderPauseMaxMs: 100,
		WanderMovesMin:   2,
		WanderMovesMax:   2,
		WanderRestMinMs:  5000,
		WanderRestMaxMs:  5000,
	}
}

func TestWander_RestsAfterExactLimit(t *testing.T) {
	r := newSeqRig(t, wanderTuning(), Station{ID: "s1", Tile: Tile{1, 1}})
	a := r.add("a", Tile{1, 1})
	if !r.sq.StartWander(r.w, "a") {
		t.Fatal("wander should start")
	}
	r.run(t, 3000, func() bool { return len(r.keys("wander", "rest")) > 0 })

	walks := 0
	for _, e := range r.log {
		if e.Category != "wander" {
			continue
		}
		if e.Key == "rest" {
			break
		}
		walks++
	}
	if walks != 2 {
		t.Fatalf("expected exactly 2 walks before resting, got %d", walks)
	}
	ws, _ := r.sq.Wander("a")
	if !ws.Resting {
		t.Fatal("wander state should be resting")
	}

	// The rest walk leads back to the station.
	r.run(t, 2000, func() bool { return a.State() == StateIdle })
	if got := PixelToTile(a.Pos(), testTile); got != (Tile{1, 1}) {
		t.Fatalf("should rest at the station, at %v", got)
	}
}

func TestWander_AvoidsCotsAndStations(t *testing.T) {
	r := newSeqRig(t, wanderTuning(), Station{ID: "s1", Tile: Tile{3, 3}})
	for i := 0; i < 200; i++ {
		tile, ok := r.sq.pickWanderTile(r.w)
		if !ok {
			continue
		}
		if r.w.isCot(tile) || tile == (Tile{3, 3}) {
			t.Fatalf("picked forbidden tile %v", tile)
		}
	}
}

func TestWander_SkipsActiveAgents(t *testing.T) {
	r := newSeqRig(t, wanderTuning())
	a := r.add("a", Tile{5, 2})
	a.SetActive(true)
	r.sq.StartWander(r.w, "a")
	for i := 0; i < 100; i++ {
		r.step(16)
	}
	if len(r.keys("wander", "walk")) != 0 {
		t.Fatal("active agents must not wander")
	}
}

func TestStopWander_RedirectsMidWalk(t *testing.T) {
	r := newSeqRig(t, wanderTuning(), Station{ID: "s1", Tile: Tile{1, 1}})
	a := r.add("a", Tile{1, 1})
	r.sq.StartWander(r.w, "a")
	r.run(t, 1000, func() bool { return a.State() == StateWandering && len(a.Path()) > 0 })

	r.sq.StopWander(r.w, "a")
	if r.sq.Wandering("a") {
		t.Fatal("agent should leave the wander cycle")
	}
	if a.State() == StateWandering {
		t.Fatal("a wandering agent must be redirected, not left wandering")
	}
	r.run(t, 2000, func() bool { return a.State() == StateIdle })
	if got := PixelToTile(a.Pos(), testTile); got != (Tile{1, 1}) {
		t.Fatalf("should return to the station, at %v", got)
	}
}

func TestStopWander_NoStationSnapsToTileCentre(t *testing.T) {
	r := newSeqRig(t, wanderTuning())
	a := r.add("a", Tile{5, 2})
	r.sq.StartWander(r.w, "a")
	r.run(t, 1000, func() bool { return a.State() == StateWandering && len(a.Path()) > 0 })
	// Land between tiles.
	a.pos = a.pos.Add(Vec2{3, 0})

	r.sq.StopWander(r.w, "a")
	r.run(t, 200, func() bool { return a.State() == StateIdle })
	centre := TileToPixel(PixelToTile(a.Pos(), testTile), testTile)
	if a.Pos() != centre {
		t.Fatalf("should settle on a tile centre, at %v (centre %v)", a.Pos(), centre)
	}
}

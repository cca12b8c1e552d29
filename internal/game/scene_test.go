package game

import (
	"fmt"
	"strings"
	"testing"
)

func newSim(t *testing.T, opts ...SimOption) *TestSim {
	t.Helper()
	ts, err := NewTestSim(opts...)
	if err != nil {
		t.Fatalf("NewTestSim: %v", err)
	}
	return ts
}

func ev(id, agent string, kind EventKind, payload map[string]any) Event {
	return Event{ID: id, AgentID: agent, Kind: kind, Payload: payload}
}

func tileOf(ts *TestSim, a *Agent) Tile {
	return PixelToTile(a.Pos(), ts.Scene.Config().TileSize)
}

func TestNewScene_RejectsBadConfig(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.TileSize = 0
	if _, err := NewScene(cfg); err == nil {
		t.Fatal("zero tile size should be rejected")
	}
	cfg = DefaultSimConfig()
	cfg.Door = Tile{99, 0}
	if _, err := NewScene(cfg); err == nil {
		t.Fatal("door outside the grid should be rejected")
	}
	cfg = DefaultSimConfig()
	cfg.Stations = append(cfg.Stations, Station{ID: "lost", Tile: Tile{-1, 3}})
	if _, err := NewScene(cfg); err == nil {
		t.Fatal("station outside the grid should be rejected")
	}
}

func TestScene_SpawnWalksToStation(t *testing.T) {
	ts := newSim(t)
	ts.Emit(Event{ID: "1", AgentID: "elf-1", AgentName: "Jingle", Kind: EventSpawn, Payload: map[string]any{"hatColor": "green"}})

	a := ts.Agent("elf-1")
	if a == nil {
		t.Fatal("spawn should add the agent")
	}
	if a.State() != StateEntering {
		t.Fatalf("new agent should be entering, got %s", a.State())
	}
	if a.StationID() != "bench-1" || a.HatColor() != "green" || a.Name() != "Jingle" {
		t.Fatalf("unexpected agent fields: station=%q hat=%q name=%q", a.StationID(), a.HatColor(), a.Name())
	}
	if a.Active() || !ts.Scene.Sequencer().Wandering("elf-1") {
		t.Fatal("spawned agents start inactive and enrolled in wander")
	}

	tick := ts.RunUntil(func(ts *TestSim) bool { return a.State() == StateIdle }, 900)
	if tick < 0 {
		t.Fatalf("agent never arrived:\n%s", ts.SimLog.Format())
	}
	if got := tileOf(ts, a); got != (Tile{3, 2}) {
		t.Fatalf("agent should stand at its bench, at %v", got)
	}
}

func TestScene_SpawnTwiceUpdatesLook(t *testing.T) {
	ts := newSim(t)
	ts.Emit(ev("1", "elf-1", EventSpawn, nil))
	ts.Emit(ev("2", "elf-1", EventSpawn, map[string]any{"accessory": "scarf"}))
	if n := len(ts.Scene.Agents()); n != 1 {
		t.Fatalf("respawn must not duplicate the agent, got %d", n)
	}
	if ts.Agent("elf-1").Accessory() != "scarf" {
		t.Fatal("respawn should refresh the look")
	}
}

func TestScene_StationsFillInOrder(t *testing.T) {
	ts := newSim(t)
	for i := 1; i <= 5; i++ {
		ts.Emit(ev(fmt.Sprint(i), fmt.Sprintf("elf-%d", i), EventSpawn, nil))
	}
	for i := 1; i <= 4; i++ {
		if got := ts.Agent(fmt.Sprintf("elf-%d", i)).StationID(); got != fmt.Sprintf("bench-%d", i) {
			t.Fatalf("elf-%d should get bench-%d, got %q", i, i, got)
		}
	}
	if got := ts.Agent("elf-5").StationID(); got != "" {
		t.Fatalf("fifth elf has no free bench, got %q", got)
	}
}

func TestScene_ToolCallStartsWorkAtStation(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	a := ts.Agent("elf-1")
	before := ts.Scene.Particles().CountType(ParticleSparkle)

	ts.Emit(ev("t1", "elf-1", EventToolCall, map[string]any{"tool": "Write", "input": "workshop.go"}))
	if a.State() != StateWorking || a.WorkAnim() != AnimType {
		t.Fatalf("expected working/type, got %s/%s", a.State(), a.WorkAnim())
	}
	if !a.Active() {
		t.Fatal("tool call should mark the agent active")
	}
	if b := a.Bubble(); b == nil || b.Kind != BubbleTool || b.Text != "Write: workshop.go" {
		t.Fatalf("unexpected bubble %+v", a.Bubble())
	}
	if ts.Scene.Particles().CountType(ParticleSparkle) <= before {
		t.Fatal("tool call should emit sparkles")
	}
}

func TestScene_WorkAwayFromStationWalksFirst(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	a := ts.Agent("elf-1")
	a.pos = TileToPixel(Tile{10, 8}, 32)

	ts.Emit(ev("t1", "elf-1", EventThinking, map[string]any{"text": "hmm"}))
	if a.State() != StateWalking {
		t.Fatalf("agent away from its bench should walk there first, got %s", a.State())
	}
	if ts.RunUntil(func(*TestSim) bool { return a.State() == StateWorking }, 900) < 0 {
		t.Fatal("agent never started working")
	}
	if a.WorkAnim() != AnimThink || tileOf(ts, a) != (Tile{3, 2}) {
		t.Fatalf("expected think at the bench, got %s at %v", a.WorkAnim(), tileOf(ts, a))
	}
}

func TestScene_EventsDedupedByID(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	e := ev("same", "elf-1", EventOutput, map[string]any{"output": "gift wrapped"})
	ts.Emit(e, e)
	ts.Emit(e)
	if n := len(ts.Scene.Conveyor()); n != 1 {
		t.Fatalf("duplicate ids must be applied once, got %d conveyor items", n)
	}
	// Events without an id are never deduplicated.
	anon := ev("", "elf-1", EventOutput, map[string]any{"output": "bow tied"})
	ts.Emit(anon, anon)
	if n := len(ts.Scene.Conveyor()); n != 3 {
		t.Fatalf("id-less events should each apply, got %d", n)
	}
}

func TestScene_UnknownAgentAndKindIgnored(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Emit(
		ev("a", "ghost", EventToolCall, map[string]any{"tool": "Read"}),
		ev("b", "elf-1", EventUnknown, nil),
	)
	if ts.Agent("ghost") != nil {
		t.Fatal("non-spawn events must not create agents")
	}
	if a := ts.Agent("elf-1"); a.State() != StateIdle {
		t.Fatalf("unknown kind should not touch the agent, got %s", a.State())
	}
}

func TestScene_OutputFeedsConveyor(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithTuning(Tuning{ConveyorMax: 3}))
	for i := 0; i < 5; i++ {
		ts.Emit(ev(fmt.Sprint(i), "elf-1", EventOutput, map[string]any{"output": fmt.Sprintf("toy %d", i)}))
	}
	items := ts.Scene.Conveyor()
	if len(items) != 3 {
		t.Fatalf("conveyor should cap at 3, got %d", len(items))
	}
	if items[0].Label != "toy 2" || items[2].Label != "toy 4" {
		t.Fatalf("oldest items should drop first, got %q..%q", items[0].Label, items[2].Label)
	}

	ts.RunMs(1000)
	if p := ts.Scene.Conveyor()[0].Progress; p < 0.1 || p > 0.14 {
		t.Fatalf("expected ~0.12 progress after a second, got %.3f", p)
	}
	ts.RunMs(9000)
	if n := len(ts.Scene.Conveyor()); n != 0 {
		t.Fatalf("items should leave the belt, %d left", n)
	}
}

func TestScene_ErrorShakesThenRecovers(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	a := ts.Agent("elf-1")
	ts.Emit(ev("w", "elf-1", EventToolCall, map[string]any{"tool": "Bash"}))
	ts.Emit(ev("e", "elf-1", EventError, map[string]any{"message": "tests failed"}))
	if a.State() != StateError || a.Active() {
		t.Fatalf("expected inactive error state, got %s active=%t", a.State(), a.Active())
	}
	if b := a.Bubble(); b == nil || b.Kind != BubbleError || b.Text != "tests failed" {
		t.Fatal("error should show an error bubble")
	}
	if ts.Scene.Particles().CountType(ParticleSmoke) == 0 {
		t.Fatal("error should puff smoke")
	}
	ts.RunMs(ts.Scene.Tuning().ErrorMs + 100)
	if s := a.State(); s == StateError {
		t.Fatal("error state should expire")
	}
}

func TestScene_TaskUpdateStatuses(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	a := ts.Agent("elf-1")

	ts.Emit(ev("1", "elf-1", EventTaskUpdate, map[string]any{"status": "in_progress"}))
	if a.State() != StateWorking || a.WorkAnim() != AnimGeneric {
		t.Fatalf("in_progress should start generic work, got %s/%s", a.State(), a.WorkAnim())
	}

	ts.Emit(ev("2", "elf-1", EventTaskUpdate, map[string]any{"status": "completed"}))
	if a.State() != StateCelebrating || a.Active() {
		t.Fatalf("completed should celebrate and deactivate, got %s active=%t", a.State(), a.Active())
	}
	if !ts.Scene.Sequencer().Wandering("elf-1") {
		t.Fatal("a finished agent should rejoin the wander cycle")
	}
	ts.RunMs(ts.Scene.Tuning().CelebrateMs + 100)
	if a.State() == StateCelebrating {
		t.Fatal("celebration should end")
	}

	ts.Emit(ev("3", "elf-1", EventTaskUpdate, map[string]any{"status": "blocked", "text": "waiting on review"}))
	if b := a.Bubble(); b == nil || b.Text != "waiting on review" {
		t.Fatal("other statuses should only show a status bubble")
	}
}

func TestScene_PermissionFlow(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	a := ts.Agent("elf-1")
	ts.Emit(ev("p", "elf-1", EventPermissionRequest, nil))
	if a.State() != StatePermission {
		t.Fatalf("expected permission, got %s", a.State())
	}
	if b := a.Bubble(); b == nil || b.Kind != BubblePermission || b.Text != "May I?" {
		t.Fatal("permission request should ask")
	}
	ts.RunMs(2000)
	if a.State() != StatePermission {
		t.Fatal("permission state waits for a grant")
	}
	ts.Emit(ev("g", "elf-1", EventPermissionGranted, nil))
	if a.State() != StateWorking {
		t.Fatalf("grant should resume work, got %s", a.State())
	}
}

func TestScene_ChatWithTargetStartsDelivery(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	ts.Emit(ev("c", "elf-1", EventChat, map[string]any{"targetAgentId": "elf-2", "message": "Need more ribbon"}))
	if !ts.Scene.Sequencer().InDelivery("elf-2") {
		t.Fatal("chat with a target should start a delivery")
	}
	if ts.RunUntil(func(ts *TestSim) bool { return ts.Scene.Sequencer().DeliveryCount() == 0 }, 1500) < 0 {
		t.Fatalf("delivery never completed:\n%s", ts.SimLog.Format())
	}
	if !ts.SimLog.HasEntry("delivery", "phase", "receiver_nod") {
		t.Fatal("receiver should have nodded")
	}
	if got := tileOf(ts, ts.Agent("elf-1")); got != (Tile{3, 2}) {
		t.Fatalf("sender should be back at its bench, at %v", got)
	}
}

func TestScene_ChatWithoutTargetJustSpeaks(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Emit(ev("c", "elf-1", EventChat, map[string]any{"text": "hello"}))
	a := ts.Agent("elf-1")
	if b := a.Bubble(); b == nil || b.Kind != BubbleChat {
		t.Fatal("untargeted chat should show a chat bubble")
	}
	if ts.Scene.Sequencer().DeliveryCount() != 0 {
		t.Fatal("no delivery without a target")
	}
}

func TestScene_WorkDuringDeliveryRunsAfterIt(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	ts.Emit(ev("c", "elf-1", EventChat, map[string]any{"targetAgentId": "elf-2", "message": "hi"}))
	ts.Emit(ev("w", "elf-1", EventToolCall, map[string]any{"tool": "Read"}))
	a := ts.Agent("elf-1")
	if a.State() != StateCarrying {
		t.Fatalf("delivery should keep the sender carrying, got %s", a.State())
	}
	d, _ := ts.Scene.Sequencer().Delivery("elf-1")
	if len(d.Pending) != 1 {
		t.Fatalf("work should wait on the delivery, got %d pending", len(d.Pending))
	}

	if ts.RunUntil(func(ts *TestSim) bool { return ts.Scene.Sequencer().DeliveryCount() == 0 }, 1500) < 0 {
		t.Fatalf("delivery never completed:\n%s", ts.SimLog.Format())
	}
	ts.RunMs(3000)
	if a.State() != StateWorking || a.WorkAnim() != AnimRead || !a.Active() {
		t.Fatalf("deferred work should run after the delivery, got %s/%s active=%t queue=%d",
			a.State(), a.WorkAnim(), a.Active(), a.QueueLen())
	}
	if got := tileOf(ts, a); got != (Tile{3, 2}) {
		t.Fatalf("sender should work at its bench, at %v", got)
	}
}

func TestScene_DeliveryKeepsSenderWandering(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	seq := ts.Scene.Sequencer()
	ts.Emit(ev("d", "elf-1", EventTaskUpdate, map[string]any{"status": "done"}))
	if !seq.Wandering("elf-1") {
		t.Fatal("a finished agent should wander")
	}
	ts.RunMs(ts.Scene.Tuning().CelebrateMs + 100)

	ts.Emit(ev("c", "elf-1", EventChat, map[string]any{"targetAgentId": "elf-2", "message": "all yours"}))
	if seq.DeliveryCount() != 1 {
		t.Fatal("chat with a target should start a delivery")
	}
	if ts.RunUntil(func(ts *TestSim) bool { return seq.DeliveryCount() == 0 }, 1500) < 0 {
		t.Fatalf("delivery never completed:\n%s", ts.SimLog.Format())
	}
	ts.RunMs(2000)
	a := ts.Agent("elf-1")
	if a.Active() || !seq.Wandering("elf-1") {
		t.Fatalf("an idle sender should stay in the wander cycle, active=%t state=%s", a.Active(), a.State())
	}
}

func TestScene_SessionCompleteEndsWithEveryoneAsleep(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"), WithAgent("elf-3", "Holly"))
	ts.Emit(ev("w", "elf-2", EventToolCall, map[string]any{"tool": "Edit"}))
	ts.Emit(ev("done", "", EventSessionComplete, nil))
	for _, a := range ts.Scene.Agents() {
		if a.State() != StateCelebrating || a.Active() {
			t.Fatalf("%s should celebrate inactive, got %s active=%t", a.ID(), a.State(), a.Active())
		}
	}
	tick := ts.RunUntil(func(ts *TestSim) bool {
		_, running := ts.Scene.Sequencer().Ceremony()
		return !running
	}, 3000)
	if tick < 0 {
		t.Fatalf("ceremony never finished:\n%s", ts.SimLog.Format())
	}
	for _, a := range ts.Scene.Agents() {
		if a.State() != StateSleeping {
			t.Fatalf("%s should be asleep, got %s", a.ID(), a.State())
		}
		if !ts.Scene.w.isCot(tileOf(ts, a)) {
			t.Fatalf("%s should sleep on a cot, at %v", a.ID(), tileOf(ts, a))
		}
	}
	if ts.SimLog.CountCategory("ceremony", "complete") != 1 {
		t.Fatal("expected one ceremony completion")
	}
}

func TestScene_WorkPullsAgentOutOfCeremony(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	ts.Emit(ev("done", "", EventSessionComplete, nil))
	ts.Emit(ev("w", "elf-1", EventToolCall, map[string]any{"tool": "Grep"}))
	seq := ts.Scene.Sequencer()
	if seq.InCeremony("elf-1") || !seq.InCeremony("elf-2") {
		t.Fatal("new work should pull only that agent out of the ceremony")
	}
	if a := ts.Agent("elf-1"); a.State() != StateWorking || a.WorkAnim() != AnimSearch {
		t.Fatalf("expected search work, got %s/%s", a.State(), a.WorkAnim())
	}
}

func TestScene_DespawnLeavesThroughDoor(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Emit(ev("bye", "elf-1", EventDespawn, nil))
	a := ts.Agent("elf-1")
	if a == nil || a.State() != StateExiting {
		t.Fatal("despawned agent should walk out first")
	}
	if _, ok := ts.Scene.Stations().AssignedTo("elf-1"); ok {
		t.Fatal("station should be released at once")
	}

	sawDoorOpen := false
	tick := ts.RunUntil(func(ts *TestSim) bool {
		if ts.Scene.Door().Open {
			sawDoorOpen = true
		}
		return ts.Agent("elf-1") == nil
	}, 1200)
	if tick < 0 {
		t.Fatalf("agent never left:\n%s", ts.SimLog.Format())
	}
	if !sawDoorOpen {
		t.Fatal("door should open as the agent reaches it")
	}
	if !ts.SimLog.HasEntry("agent", "removed", "") {
		t.Fatal("removal should be logged")
	}

	// The freed bench goes to the next arrival.
	ts.Emit(ev("hi", "elf-9", EventSpawn, nil))
	if got := ts.Agent("elf-9").StationID(); got != "bench-1" {
		t.Fatalf("freed bench should be reused, got %q", got)
	}
}

func TestScene_DoorClosesAgain(t *testing.T) {
	ts := newSim(t)
	ts.Emit(ev("1", "elf-1", EventSpawn, nil))
	ts.Step()
	if !ts.Scene.Door().Open {
		t.Fatal("door should open for an agent at the entry")
	}
	ts.RunMs(ts.Scene.Tuning().DoorAnimMs + 50)
	if p := ts.Scene.Door().Progress(); p < 0.99 {
		t.Fatalf("door should finish opening, progress %.2f", p)
	}
	ts.RunUntil(func(ts *TestSim) bool { return !ts.Scene.Door().Open }, 600)
	ts.RunMs(ts.Scene.Tuning().DoorAnimMs + 50)
	if p := ts.Scene.Door().Progress(); p > 0.01 {
		t.Fatalf("door should close once the agent walks away, progress %.2f", p)
	}
}

func TestScene_SleepingAgentsEmitZzz(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Agent("elf-1").Transition(StateSleeping)
	ts.RunMs(ts.Scene.Tuning().ZzzEveryMs + 50)
	if ts.Scene.Particles().CountType(ParticleZzz) == 0 {
		t.Fatal("sleeping agents should emit zzz")
	}
}

func TestScene_DeterministicReplay(t *testing.T) {
	run := func() []AgentSnapshot {
		ts := newSim(t, WithSeed(42))
		for i := 1; i <= 3; i++ {
			ts.Emit(ev(fmt.Sprint(i), fmt.Sprintf("elf-%d", i), EventSpawn, nil))
		}
		ts.RunMs(20000)
		return ts.Snapshot().Agents
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("agent counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replays diverge: %+v vs %+v", a[i], b[i])
		}
	}
}

func TestScene_ActivityLogRecordsEvents(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Emit(ev("1", "elf-1", EventFileChange, map[string]any{"action": "create", "path": "sleigh.go"}))
	recent := ts.Scene.ActivityLog().Recent()
	if len(recent) == 0 {
		t.Fatal("expected an activity entry")
	}
	last := recent[len(recent)-1]
	if last.Label != "Jingle" || last.Kind != "file_change" || last.Message != "create sleigh.go" {
		t.Fatalf("unexpected activity %+v", last)
	}
}

func TestScene_StateChangesLogged(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	ts.Step()
	ts.Emit(ev("1", "elf-1", EventToolCall, map[string]any{"tool": "Read"}))
	ts.Step()
	var states []string
	for _, e := range ts.SimLog.FilterAgent("elf-1") {
		if e.Category == "state" {
			states = append(states, e.Value)
		}
	}
	if strings.Join(states, ",") != "idle,working" {
		t.Fatalf("expected idle,working transitions, got %v", states)
	}
}

func TestScene_VerboseLogsPositions(t *testing.T) {
	ts := newSim(t, WithVerbose(true))
	ts.Emit(ev("1", "elf-1", EventSpawn, nil))
	ts.RunTicks(5)
	if ts.SimLog.CountCategory("pos", "at") == 0 {
		t.Fatal("verbose mode should record positions of moving agents")
	}

	quiet := newSim(t)
	quiet.Emit(ev("1", "elf-1", EventSpawn, nil))
	quiet.RunTicks(5)
	if quiet.SimLog.CountCategory("pos", "at") != 0 {
		t.Fatal("positions are only logged in verbose mode")
	}
}

func TestScene_DebugReport(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"))
	if r := ts.Scene.AgentDebugReport("nobody", 0); r != "" {
		t.Fatal("unknown agent should give an empty report")
	}
	ts.Step()
	ts.Emit(ev("1", "elf-1", EventToolCall, map[string]any{"tool": "Bash", "input": "make"}))
	ts.RunTicks(10)

	r := ts.Scene.AgentDebugReport("elf-1", 0)
	for _, want := range []string{
		"selected=Jingle id=elf-1 station=bench-1 active=true",
		"state=working anim=run",
		"summary:",
		"event tool_call 1",
		"activity tool_call Bash",
		"stages:",
		"idle",
		"working",
	} {
		if !strings.Contains(r, want) {
			t.Fatalf("report missing %q:\n%s", want, r)
		}
	}
}

func TestScene_SimLogSummary(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	ts.Emit(ev("1", "elf-1", EventToolCall, map[string]any{"tool": "Read"}))
	s := ts.SimLog.Summary(ts.CurrentTick(), ts.Scene.Agents(), ts.Scene.Sequencer())
	for _, want := range []string{"working=1", "idle=1", "Agents: 2  active=1", "Ceremony: none"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestTestSim_Snapshot(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgentAt("elf-2", Tile{10, 8}))
	snap := ts.Snapshot()
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(snap.Agents))
	}
	if snap.Agents[0].Station != "bench-1" || snap.Agents[1].Station != "" {
		t.Fatalf("unexpected stations %+v", snap.Agents)
	}
	if snap.Agents[1].X != 10*32+16 || snap.Agents[1].Y != 8*32+16 {
		t.Fatalf("WithAgentAt should place on the tile centre, got (%.0f,%.0f)", snap.Agents[1].X, snap.Agents[1].Y)
	}
}

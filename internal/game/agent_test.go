package game

import (
	"math"
	"testing"
)

func newTestAgent(pos Vec2) *Agent {
	tu := DefaultTuning()
	return NewAgent("elf-1", "Jingle", pos, &tu)
}

func TestAgent_StartsIdle(t *testing.T) {
	a := newTestAgent(Vec2{})
	if a.State() != StateIdle {
		t.Fatalf("new agent should be idle, got %s", a.State())
	}
	if a.Name() != "Jingle" {
		t.Fatalf("name not kept: %q", a.Name())
	}
	if b := NewAgent("x", "", Vec2{}, nil); b.Name() != "x" {
		t.Fatalf("empty name should fall back to id, got %q", b.Name())
	}
}

func TestAgent_SingleWaypointWalk(t *testing.T) {
	a := newTestAgent(Vec2{0, 0})
	if !a.WalkTo([]Vec2{{10, 0}}, StateWalking) {
		t.Fatal("WalkTo with a path should succeed")
	}
	if a.State() != StateWalking {
		t.Fatalf("expected walking, got %s", a.State())
	}
	// 96 px/s for 200ms covers 19px, enough for the 10px hop.
	a.Update(200)
	if a.Pos() != (Vec2{10, 0}) {
		t.Fatalf("expected to arrive at (10,0), got %v", a.Pos())
	}
	if a.State() != StateIdle {
		t.Fatalf("walking should end idle, got %s", a.State())
	}
	if a.Facing() != FacingRight {
		t.Fatalf("expected facing right, got %s", a.Facing())
	}
	if len(a.Path()) != 0 {
		t.Fatal("path should be empty on arrival")
	}
}

func TestAgent_PartialStepKeepsWalking(t *testing.T) {
	a := newTestAgent(Vec2{0, 0})
	a.WalkTo([]Vec2{{0, 100}}, StateWalking)
	a.Update(500) // 48px
	if a.State() != StateWalking {
		t.Fatalf("expected still walking, got %s", a.State())
	}
	if math.Abs(a.Pos().Y-48) > 1e-6 {
		t.Fatalf("expected y=48, got %.3f", a.Pos().Y)
	}
	if a.Facing() != FacingDown {
		t.Fatalf("expected facing down, got %s", a.Facing())
	}
}

func TestAgent_ArrivalFollowUps(t *testing.T) {
	cases := []struct {
		moving AgentState
		want   AgentState
	}{
		{StateWalking, StateIdle},
		{StateWandering, StateIdle},
		{StateEntering, StateIdle},
		{StateExiting, StateIdle},
		{StateCarrying, StateDelivering},
	}
	for _, c := range cases {
		a := newTestAgent(Vec2{})
		a.WalkTo([]Vec2{{4, 0}}, c.moving)
		a.Update(100)
		if a.State() != c.want {
			t.Fatalf("%s arrival: expected %s, got %s", c.moving, c.want, a.State())
		}
	}
}

func TestAgent_WalkToRejectsEmptyPathAndStillStates(t *testing.T) {
	a := newTestAgent(Vec2{})
	if a.WalkTo(nil, StateWalking) {
		t.Fatal("empty path should be rejected")
	}
	if a.WalkTo([]Vec2{{5, 5}}, StateWorking) {
		t.Fatal("non-moving state should be rejected")
	}
	if a.State() != StateIdle {
		t.Fatalf("rejected walk must not change state, got %s", a.State())
	}
}

func TestAgent_CarryingInPlaceStaysPut(t *testing.T) {
	a := newTestAgent(Vec2{3, 3})
	a.Transition(StateCarrying, WithItem(ItemLetter))
	a.Update(500)
	if a.State() != StateCarrying || a.Pos() != (Vec2{3, 3}) {
		t.Fatalf("carrying without a path should hold still, got %s at %v", a.State(), a.Pos())
	}
	if a.Carried() != ItemLetter {
		t.Fatalf("expected letter, got %s", a.Carried())
	}
}

func TestAgent_TransitionResets(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Transition(StateWorking, WithAnim(AnimType), WithStation("bench-1"))
	a.Update(300)
	if a.StateTime() != 300 {
		t.Fatalf("state time should accumulate, got %.0f", a.StateTime())
	}
	a.Transition(StateCelebrating)
	if a.StateTime() != 0 {
		t.Fatal("transition should reset the state timer")
	}
	if a.WorkAnim() != AnimNone {
		t.Fatalf("leaving working should clear the animation, got %s", a.WorkAnim())
	}
	if a.StationID() != "bench-1" {
		t.Fatal("station assignment should survive transitions")
	}
}

func TestAgent_DurationReturnsToIdle(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Transition(StateError, WithDuration(1000))
	a.Update(500)
	if a.State() != StateError {
		t.Fatalf("expected error before the limit, got %s", a.State())
	}
	a.Update(600)
	if a.State() != StateIdle {
		t.Fatalf("expected idle after the limit, got %s", a.State())
	}
	if a.Shake() != 0 {
		t.Fatal("shake should reset on transition")
	}
}

func TestAgent_QueueRunsOneActionPerUpdate(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Enqueue(Action{Kind: ActionTransition, State: StateWorking, Opts: []TransitionOption{WithAnim(AnimRead)}})
	a.Enqueue(Action{Kind: ActionTransition, State: StateSleeping})
	a.Update(16)
	if a.State() != StateWorking || a.WorkAnim() != AnimRead {
		t.Fatalf("expected working/read, got %s/%s", a.State(), a.WorkAnim())
	}
	if a.QueueLen() != 1 {
		t.Fatalf("expected 1 queued action left, got %d", a.QueueLen())
	}
	// Working is not interruptible, so the sleep waits.
	a.Update(16)
	if a.State() != StateWorking {
		t.Fatalf("queue should not run while working, got %s", a.State())
	}
}

func TestAgent_QueueWaitsForWalkToFinish(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.WalkTo([]Vec2{{50, 0}}, StateWalking)
	a.Enqueue(Action{Kind: ActionTransition, State: StateWorking, Opts: []TransitionOption{WithAnim(AnimType)}})
	a.Update(100)
	if a.State() != StateWalking {
		t.Fatalf("expected walking, got %s", a.State())
	}
	for i := 0; i < 60 && a.State() != StateWorking; i++ {
		a.Update(16)
	}
	if a.State() != StateWorking {
		t.Fatalf("queued work should start on arrival, got %s", a.State())
	}
	if a.Pos() != (Vec2{50, 0}) {
		t.Fatalf("expected to be at the waypoint, got %v", a.Pos())
	}
}

func TestAgent_QueueDelay(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Enqueue(Action{Kind: ActionTransition, State: StateSleeping, Delay: 100})
	a.Update(60)
	if a.State() != StateIdle {
		t.Fatalf("delay not elapsed, expected idle, got %s", a.State())
	}
	a.Update(60)
	if a.State() != StateSleeping {
		t.Fatalf("delay elapsed, expected sleeping, got %s", a.State())
	}
}

func TestAgent_ClearQueue(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Transition(StateWorking)
	a.Enqueue(Action{Kind: ActionTransition, State: StateSleeping})
	a.ClearQueue()
	if a.QueueLen() != 0 {
		t.Fatal("queue should be empty")
	}
}

func TestAgent_BubbleExpires(t *testing.T) {
	a := newTestAgent(Vec2{})
	a.Say("hello there", BubbleSpeech, 500)
	if a.Bubble() == nil || a.Bubble().Text != "hello there" {
		t.Fatal("expected a bubble")
	}
	a.Update(400)
	if a.Bubble() == nil {
		t.Fatal("bubble should still show before its duration")
	}
	a.Update(200)
	if a.Bubble() != nil {
		t.Fatal("bubble should expire after its duration")
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 10); got != "short" {
		t.Fatalf("short text should be untouched, got %q", got)
	}
	got := Excerpt("a fairly long sentence about elves", 10)
	if n := len([]rune(got)); n > 10 {
		t.Fatalf("excerpt too long: %q (%d runes)", got, n)
	}
}

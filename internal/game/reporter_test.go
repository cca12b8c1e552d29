package game

import (
	"strings"
	"testing"
)

func TestReporter_CollectsEverySecond(t *testing.T) {
	ts := newSim(t, WithAgent("elf-1", "Jingle"), WithAgent("elf-2", "Tinsel"))
	ts.Emit(ev("w", "elf-1", EventToolCall, map[string]any{"tool": "Grep"}))
	ts.RunTicks(2*reportEveryTicks + 5)

	hist := ts.Reporter.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(hist))
	}
	if hist[0].Tick != reportEveryTicks || hist[1].Tick != 2*reportEveryTicks {
		t.Fatalf("snapshot ticks %d,%d", hist[0].Tick, hist[1].Tick)
	}
	last := ts.Reporter.Latest()
	if last.Agents != 2 || last.Active != 1 {
		t.Fatalf("expected 2 agents with 1 active, got %+v", last)
	}
	if last.States[StateWorking] != 1 || last.Anims[AnimSearch] != 1 {
		t.Fatalf("expected one searching worker, got states=%v anims=%v", last.States, last.Anims)
	}
	if !strings.Contains(ts.Reporter.FormatLatest(), "search=1") {
		t.Fatalf("FormatLatest missing anim count:\n%s", ts.Reporter.FormatLatest())
	}
}

func TestReporter_WindowSummary(t *testing.T) {
	r := NewSimReporter(100)
	if r.WindowSummary() != nil {
		t.Fatal("empty reporter should have no summary")
	}
	r.history = []SimReport{
		{Tick: 0, Agents: 9, States: map[AgentState]int{StateIdle: 9}},
		{Tick: 100, Agents: 2, Active: 2, States: map[AgentState]int{StateWorking: 2}, Deliveries: 1},
		{Tick: 200, Agents: 2, States: map[AgentState]int{StateWorking: 1, StateSleeping: 1}, Ceremony: true},
	}
	wr := r.WindowSummary()
	if wr.SampleCount != 2 || wr.FromTick != 100 || wr.ToTick != 200 {
		t.Fatalf("window should hold the last two samples, got %+v", wr)
	}
	if wr.StatePct[StateWorking] != 75 || wr.StatePct[StateSleeping] != 25 {
		t.Fatalf("unexpected distribution %v", wr.StatePct)
	}
	if wr.AvgActive != 1 || wr.AvgDeliveries != 0.5 || wr.CeremonySamples != 1 {
		t.Fatalf("unexpected averages %+v", wr)
	}
	out := wr.Format()
	for _, want := range []string{"T=100..200", "working", "75.0%", "ceremony in 1/2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Format missing %q:\n%s", want, out)
		}
	}
	var nilReport *WindowReport
	if nilReport.Format() != "No data collected yet.\n" {
		t.Fatal("nil report should format as no data")
	}
}

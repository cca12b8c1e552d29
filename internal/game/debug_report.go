package game

import (
	"fmt"
	"strings"
)

const maxStoryEvents = 24

// AgentDebugReport renders the recent history of one agent as plain text,
// suitable for pasting into a bug report.
func (sc *Scene) AgentDebugReport(id string, lastTicks int) string {
	a, ok := sc.agents[id]
	if !ok {
		return ""
	}
	if lastTicks <= 0 {
		lastTicks = 600
	}

	toTick := sc.tick
	fromTick := toTick - lastTicks + 1
	if fromTick < 0 {
		fromTick = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- elves debug report ---\n")
	fmt.Fprintf(&b, "seed=%d tick_range=[%d..%d] ticks=%d clock=%.0fms\n", sc.cfg.Seed, fromTick, toTick, toTick-fromTick+1, sc.clock)
	fmt.Fprintf(&b, "selected=%s id=%s station=%s active=%t\n", a.name, a.id, stationLabel(a.stationID), a.active)
	fmt.Fprintf(&b, "now: state=%s anim=%s carried=%s facing=%s pos=%.0f,%.0f queue=%d path=%d\n",
		a.state, a.workAnim, a.carried, a.facing, a.pos.X, a.pos.Y, len(a.queue), len(a.path))
	fmt.Fprintf(&b, "sequences: %s\n\n", sc.sequenceLabel(a.id))

	var entries []SimLogEntry
	for _, e := range sc.simLog.FilterAgent(id) {
		if e.Tick >= fromTick && e.Tick <= toTick {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		b.WriteString("(no log entries recorded yet)\n")
		return b.String()
	}

	stages := buildStages(entries, toTick)
	sum := summarizeStages(stages)
	b.WriteString("summary:")
	for s := StateEntering; s <= StateExiting; s++ {
		if n := sum[s]; n > 0 {
			fmt.Fprintf(&b, " %s=%dt", s, n)
		}
	}
	b.WriteByte('\n')

	events := storyEvents(entries)
	if len(events) > 0 {
		b.WriteString("events:\n")
		for _, e := range events {
			b.WriteString("  - ")
			b.WriteString(e)
			b.WriteByte('\n')
		}
	}

	b.WriteString("stages:\n")
	for i, st := range stages {
		tag := ""
		if st.state == StateIdle && st.count() > 300 {
			tag = " [IDLE-RUN]"
		}
		fmt.Fprintf(&b, "  %02d) T=%d..%d (%dt)%s %s\n", i+1, st.startTick, st.endTick, st.count(), tag, st.state)
	}
	return b.String()
}

func stationLabel(id string) string {
	if id == "" {
		return "<none>"
	}
	return id
}

// sequenceLabel lists the multi-agent sequences id currently takes part in.
func (sc *Scene) sequenceLabel(id string) string {
	var parts []string
	if d, ok := sc.seq.Delivery(id); ok {
		parts = append(parts, fmt.Sprintf("delivery(%s->%s %s)", d.SenderID, d.ReceiverID, d.Phase))
	} else if sc.seq.InDelivery(id) {
		parts = append(parts, "delivery(receiver)")
	}
	if sc.seq.InCeremony(id) {
		c, _ := sc.seq.Ceremony()
		parts = append(parts, "ceremony("+c.Phase.String()+")")
	}
	if w, ok := sc.seq.Wander(id); ok {
		parts = append(parts, fmt.Sprintf("wander(%d/%d rest=%t)", w.WalkCount, w.WalkLimit, w.Resting))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// reportStage is a run of ticks spent in one state.
type reportStage struct {
	startTick int
	endTick   int
	state     AgentState
}

func (st reportStage) count() int { return st.endTick - st.startTick + 1 }

// buildStages splits the state-change entries into contiguous runs ending at
// toTick.
func buildStages(entries []SimLogEntry, toTick int) []reportStage {
	stages := make([]reportStage, 0, 16)
	for _, e := range entries {
		if e.Category != "state" || e.Key != "change" {
			continue
		}
		s, ok := parseAgentState(e.Value)
		if !ok {
			continue
		}
		if n := len(stages); n > 0 {
			if stages[n-1].state == s {
				continue
			}
			stages[n-1].endTick = e.Tick - 1
			if stages[n-1].endTick < stages[n-1].startTick {
				stages[n-1].endTick = stages[n-1].startTick
			}
		}
		stages = append(stages, reportStage{startTick: e.Tick, endTick: toTick, state: s})
	}
	return stages
}

func summarizeStages(stages []reportStage) map[AgentState]int {
	res := make(map[AgentState]int, len(stages))
	for _, st := range stages {
		res[st.state] += st.count()
	}
	return res
}

// storyEvents keeps the entries that explain why the agent moved between
// states: inbound events, sequence phases and activity notes.
func storyEvents(entries []SimLogEntry) []string {
	var out []string
	for _, e := range entries {
		switch e.Category {
		case "state", "pos":
			continue
		}
		line := fmt.Sprintf("T=%d %s %s", e.Tick, e.Category, e.Key)
		if e.Value != "" {
			line += " " + Excerpt(e.Value, 60)
		}
		out = append(out, line)
	}
	if len(out) > maxStoryEvents {
		dropped := len(out) - maxStoryEvents
		out = append([]string{fmt.Sprintf("... (%d earlier events)", dropped)}, out[dropped:]...)
	}
	return out
}

func parseAgentState(s string) (AgentState, bool) {
	for st := StateEntering; st <= StateExiting; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

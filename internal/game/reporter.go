package game

import (
	"fmt"
	"strings"
)

// reportWindowTicks is the default sliding window for recent-behaviour reports (~10s at 60TPS).
const reportWindowTicks = 600

// reportEveryTicks is how often the headless harness collects a snapshot.
const reportEveryTicks = 60

// SimReport is a snapshot of the workshop at one tick.
type SimReport struct {
	Tick int

	// Agents per state.
	States map[AgentState]int
	// Working agents per animation.
	Anims map[WorkAnim]int

	Agents     int
	Active     int
	Carrying   int // agents holding an item
	Deliveries int
	Ceremony   bool
	Conveyor   int
}

// SimReporter collects periodic reports from the scene and can produce
// summaries over sliding time windows.
type SimReporter struct {
	history     []SimReport
	windowTicks int
}

// NewSimReporter creates a reporter with the given window size.
func NewSimReporter(windowTicks int) *SimReporter {
	if windowTicks <= 0 {
		windowTicks = reportWindowTicks
	}
	return &SimReporter{windowTicks: windowTicks}
}

// Collect gathers a snapshot from the current scene state.
// Call this periodically (e.g. every 60 ticks / 1s).
func (r *SimReporter) Collect(sc *Scene) {
	report := SimReport{
		Tick:       sc.tick,
		States:     make(map[AgentState]int),
		Anims:      make(map[WorkAnim]int),
		Agents:     len(sc.order),
		Deliveries: sc.seq.DeliveryCount(),
		Conveyor:   len(sc.conveyor),
	}
	for _, a := range sc.order {
		report.States[a.state]++
		if a.state == StateWorking {
			report.Anims[a.workAnim]++
		}
		if a.active {
			report.Active++
		}
		if a.carried != ItemNone {
			report.Carrying++
		}
	}
	_, report.Ceremony = sc.seq.Ceremony()
	r.history = append(r.history, report)
}

// Latest returns the most recent report, or nil.
func (r *SimReporter) Latest() *SimReport {
	if len(r.history) == 0 {
		return nil
	}
	return &r.history[len(r.history)-1]
}

// History returns all collected reports.
func (r *SimReporter) History() []SimReport {
	return r.history
}

// WindowReport is an aggregated summary over a time window.
type WindowReport struct {
	FromTick, ToTick int
	SampleCount      int

	// State distribution as percentages (0-100) of agent-samples.
	StatePct map[AgentState]float64

	// Averages over the window.
	AvgAgents, AvgActive, AvgCarrying float64
	AvgDeliveries, AvgConveyor        float64

	// Samples taken while a ceremony ran.
	CeremonySamples int
}

// WindowSummary returns an aggregated summary over the recent time window.
func (r *SimReporter) WindowSummary() *WindowReport {
	if len(r.history) == 0 {
		return nil
	}

	latestTick := r.history[len(r.history)-1].Tick
	cutoff := latestTick - r.windowTicks
	var window []SimReport
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Tick < cutoff {
			break
		}
		window = append(window, r.history[i])
	}

	n := float64(len(window))
	wr := &WindowReport{
		FromTick:    window[len(window)-1].Tick,
		ToTick:      window[0].Tick,
		SampleCount: len(window),
		StatePct:    make(map[AgentState]float64),
	}

	stateTotal := make(map[AgentState]float64)
	var total float64
	for _, rpt := range window {
		for s, c := range rpt.States {
			stateTotal[s] += float64(c)
			total += float64(c)
		}
		wr.AvgAgents += float64(rpt.Agents)
		wr.AvgActive += float64(rpt.Active)
		wr.AvgCarrying += float64(rpt.Carrying)
		wr.AvgDeliveries += float64(rpt.Deliveries)
		wr.AvgConveyor += float64(rpt.Conveyor)
		if rpt.Ceremony {
			wr.CeremonySamples++
		}
	}
	if total > 0 {
		for s, c := range stateTotal {
			wr.StatePct[s] = c / total * 100
		}
	}
	wr.AvgAgents /= n
	wr.AvgActive /= n
	wr.AvgCarrying /= n
	wr.AvgDeliveries /= n
	wr.AvgConveyor /= n
	return wr
}

// Format returns a human-readable multi-line string of the window summary.
func (wr *WindowReport) Format() string {
	if wr == nil {
		return "No data collected yet.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Behaviour Report (T=%d..%d, %d samples) ===\n",
		wr.FromTick, wr.ToTick, wr.SampleCount)

	sb.WriteString("--- State Distribution ---\n")
	for s := StateEntering; s <= StateExiting; s++ {
		if pct, ok := wr.StatePct[s]; ok && pct > 0.5 {
			fmt.Fprintf(&sb, "  %-12s %5.1f%%\n", s, pct)
		}
	}
	fmt.Fprintf(&sb, "avg: agents=%.1f active=%.1f carrying=%.1f deliveries=%.1f belt=%.1f\n",
		wr.AvgAgents, wr.AvgActive, wr.AvgCarrying, wr.AvgDeliveries, wr.AvgConveyor)
	if wr.CeremonySamples > 0 {
		fmt.Fprintf(&sb, "ceremony in %d/%d samples\n", wr.CeremonySamples, wr.SampleCount)
	}
	return sb.String()
}

// FormatLatest returns a concise snapshot of the most recent collected report.
func (r *SimReporter) FormatLatest() string {
	rpt := r.Latest()
	if rpt == nil {
		return "No data.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Snapshot T=%d ---\n", rpt.Tick)
	fmt.Fprintf(&sb, "agents=%d active=%d carrying=%d deliveries=%d belt=%d ceremony=%t\n",
		rpt.Agents, rpt.Active, rpt.Carrying, rpt.Deliveries, rpt.Conveyor, rpt.Ceremony)
	sb.WriteString("states: ")
	for s := StateEntering; s <= StateExiting; s++ {
		if c := rpt.States[s]; c > 0 {
			fmt.Fprintf(&sb, "%s=%d ", s, c)
		}
	}
	if len(rpt.Anims) > 0 {
		sb.WriteString("\nanims:  ")
		for anim := AnimType; anim <= AnimGeneric; anim++ {
			if c := rpt.Anims[anim]; c > 0 {
				fmt.Fprintf(&sb, "%s=%d ", anim, c)
			}
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

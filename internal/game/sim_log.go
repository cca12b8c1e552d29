package game

import (
	"fmt"
	"strings"
)

// SimLogEntry is one recorded event during a simulation run.
type SimLogEntry struct {
	Tick     int
	Agent    string  // agent id, or "--" for global events
	Category string  // event, state, delivery, ceremony, wander, idle
	Key      string  // specific event name within the category
	Value    string  // human-readable detail
	NumVal   float64 // optional numeric value for threshold checks
}

// String formats the entry as a fixed-width log line.
//
//	[T=042] elf-1    delivery  phase            showing_message
func (e SimLogEntry) String() string {
	return fmt.Sprintf("[T=%03d] %-8s %-9s %-16s %s",
		e.Tick, e.Agent, e.Category, e.Key, e.Value)
}

// SimLog collects structured events during a simulation run.
// Unlike ThoughtLog (UI ring-buffer), SimLog is unbounded and machine-readable.
type SimLog struct {
	entries []SimLogEntry
	verbose bool
}

// NewSimLog creates a SimLog. If verbose is true, per-tick state changes are
// also recorded (useful for detailed debugging).
func NewSimLog(verbose bool) *SimLog {
	return &SimLog{verbose: verbose}
}

// Add records a new entry.
func (sl *SimLog) Add(tick int, agent, category, key, value string, numVal float64) {
	sl.entries = append(sl.entries, SimLogEntry{
		Tick:     tick,
		Agent:    agent,
		Category: category,
		Key:      key,
		Value:    value,
		NumVal:   numVal,
	})
}

// AddVerbose records an entry only when verbose mode is on.
func (sl *SimLog) AddVerbose(tick int, agent, category, key, value string, numVal float64) {
	if !sl.verbose {
		return
	}
	sl.Add(tick, agent, category, key, value, numVal)
}

// Verbose reports whether per-tick entries are recorded.
func (sl *SimLog) Verbose() bool { return sl.verbose }

// Entries returns all recorded entries.
func (sl *SimLog) Entries() []SimLogEntry {
	return sl.entries
}

// Filter returns entries matching the given category and/or key.
// Pass empty string to match any value for that field.
func (sl *SimLog) Filter(category, key string) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FilterAgent returns entries for a specific agent id.
func (sl *SimLog) FilterAgent(id string) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if e.Agent == id {
			out = append(out, e)
		}
	}
	return out
}

// FilterTickRange returns entries within [fromTick, toTick] inclusive.
func (sl *SimLog) FilterTickRange(fromTick, toTick int) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if e.Tick >= fromTick && e.Tick <= toTick {
			out = append(out, e)
		}
	}
	return out
}

// CountCategory returns how many entries match the given category and key.
func (sl *SimLog) CountCategory(category, key string) int {
	return len(sl.Filter(category, key))
}

// LastOf returns the most recent entry matching category+key, or false if none.
func (sl *SimLog) LastOf(category, key string) (SimLogEntry, bool) {
	entries := sl.Filter(category, key)
	if len(entries) == 0 {
		return SimLogEntry{}, false
	}
	return entries[len(entries)-1], true
}

// HasEntry returns true if at least one entry matches category, key, and value substring.
func (sl *SimLog) HasEntry(category, key, valueSubstr string) bool {
	for _, e := range sl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		if valueSubstr != "" && !strings.Contains(e.Value, valueSubstr) {
			continue
		}
		return true
	}
	return false
}

// Format returns the full log as a single string for t.Log output.
func (sl *SimLog) Format() string {
	var sb strings.Builder
	for _, e := range sl.entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatRange returns a log string filtered to a tick range.
func (sl *SimLog) FormatRange(fromTick, toTick int) string {
	var sb strings.Builder
	for _, e := range sl.FilterTickRange(fromTick, toTick) {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Summary returns a short human-readable summary of the scene state.
func (sl *SimLog) Summary(tick int, agents []*Agent, seq *Sequencer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Summary at T=%03d ---\n", tick)

	counts := map[AgentState]int{}
	for _, a := range agents {
		counts[a.state]++
	}
	sb.WriteString("States: ")
	if len(agents) == 0 {
		sb.WriteString("none")
	}
	for s := StateEntering; s <= StateExiting; s++ {
		if n := counts[s]; n > 0 {
			fmt.Fprintf(&sb, "%s=%d  ", s, n)
		}
	}
	sb.WriteByte('\n')

	active := 0
	for _, a := range agents {
		if a.active {
			active++
		}
	}
	fmt.Fprintf(&sb, "Agents: %d  active=%d\n", len(agents), active)

	if seq != nil {
		fmt.Fprintf(&sb, "Deliveries: %d\n", seq.DeliveryCount())
		if c, ok := seq.Ceremony(); ok {
			fmt.Fprintf(&sb, "Ceremony: %s (%d participants)\n", c.Phase, len(c.Participants))
		} else {
			sb.WriteString("Ceremony: none\n")
		}
	}
	return sb.String()
}

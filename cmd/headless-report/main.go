package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mvmcode/elves-sub000/internal/feed"
	"github.com/mvmcode/elves-sub000/internal/game"
	"github.com/mvmcode/elves-sub000/internal/layout"
)

type runStats struct {
	runIndex int
	seed     int64
	ticks    int

	firstWorkTick     int
	firstDeliveryTick int
	ceremonyTick      int
	allAsleepTick     int

	events        map[string]int
	stateChanges  int
	deliveries    int
	completed     int
	wanders       int
	idleSleeps    int
	statesAtEnd   map[game.AgentState]int
	perAgentState map[string]int

	summary string
	window  string
}

type options struct {
	eventsPath string
	dbPath     string
	session    string
	layoutPath string
	runs       int
	seedBase   int64
	seedStep   int64
	settleMs   float64
	verbose    bool
	logRange   string
	exportPath string
}

func main() {
	var o options
	flag.StringVar(&o.eventsPath, "events", "", "JSONL event log (.jsonl or .jsonl.zst)")
	flag.StringVar(&o.dbPath, "db", "", "session database to replay instead of -events")
	flag.StringVar(&o.session, "session", "", "session id in -db (default: most recent)")
	flag.StringVar(&o.layoutPath, "layout", "", "workshop layout YAML (default: built-in)")
	flag.IntVar(&o.runs, "runs", 1, "number of headless replays")
	flag.Int64Var(&o.seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&o.seedStep, "seed-step", 1, "seed increment between runs")
	flag.Float64Var(&o.settleMs, "settle-ms", 20000, "simulated time to keep running after the last event")
	flag.BoolVar(&o.verbose, "v", false, "print the full sim log of every run")
	flag.StringVar(&o.logRange, "range", "", "print the sim log of every run between ticks FROM:TO")
	flag.StringVar(&o.exportPath, "export", "", "also write the loaded events as JSONL (.zst compresses)")
	flag.Parse()

	logger := log.New(os.Stderr, "[headless-report] ", log.LstdFlags)
	if err := run(context.Background(), o, os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, o options, w io.Writer) error {
	if o.runs <= 0 {
		return fmt.Errorf("-runs must be > 0")
	}
	if (o.eventsPath == "") == (o.dbPath == "") {
		return fmt.Errorf("exactly one of -events or -db is required")
	}
	from, to := 0, -1
	if o.logRange != "" {
		var err error
		if from, to, err = parseRange(o.logRange); err != nil {
			return err
		}
	}

	l := layout.Default()
	if o.layoutPath != "" {
		var err error
		if l, err = layout.Load(o.layoutPath); err != nil {
			return err
		}
	}
	evs, source, err := loadEvents(ctx, o)
	if err != nil {
		return err
	}
	if o.exportPath != "" {
		if err := feed.WriteJSONL(o.exportPath, evs); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	fmt.Fprintf(w, "=== Headless Workshop Report ===\n")
	fmt.Fprintf(w, "source=%s events=%d runs=%d seed_base=%d seed_step=%d\n\n", source, len(evs), o.runs, o.seedBase, o.seedStep)

	all := make([]runStats, 0, o.runs)
	for i := 0; i < o.runs; i++ {
		seed := o.seedBase + int64(i)*o.seedStep
		rs, sim, err := replay(l.SceneConfig(), evs, seed, o.settleMs)
		if err != nil {
			return err
		}
		rs.runIndex = i + 1
		all = append(all, rs)
		printRun(w, rs)
		switch {
		case o.verbose:
			fmt.Fprint(w, sim.SimLog.Format())
			fmt.Fprintln(w)
		case to >= 0:
			fmt.Fprintf(w, "sim_log T=%d..%d:\n", from, to)
			fmt.Fprint(w, sim.SimLog.FormatRange(from, to))
			fmt.Fprintln(w)
		}
	}
	printAggregate(w, all)
	return nil
}

// parseRange reads a FROM:TO tick range.
func parseRange(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("-range %q: want FROM:TO", s)
	}
	from, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("-range %q: %w", s, err)
	}
	to, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("-range %q: %w", s, err)
	}
	if from < 0 || to < from {
		return 0, 0, fmt.Errorf("-range %q: want 0 <= FROM <= TO", s)
	}
	return from, to, nil
}

func loadEvents(ctx context.Context, o options) ([]game.Event, string, error) {
	d, err := feed.NewDecoder(nil)
	if err != nil {
		return nil, "", err
	}
	if o.eventsPath != "" {
		evs, err := feed.LoadFile(o.eventsPath, d)
		return evs, o.eventsPath, err
	}
	db, err := feed.OpenDB(ctx, o.dbPath)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()
	id := o.session
	if id == "" {
		if id, err = feed.LatestSession(ctx, db); err != nil {
			return nil, "", err
		}
	}
	evs, err := feed.LoadSession(ctx, db, id, d)
	return evs, o.dbPath + "#" + id, err
}

// replay feeds evs into a headless scene at their recorded pace and then
// lets it settle. Gaps between events are capped like the live replay.
func replay(cfg game.SceneConfig, evs []game.Event, seed int64, settleMs float64) (runStats, *game.TestSim, error) {
	ts, err := game.NewTestSim(game.WithConfig(cfg), game.WithSeed(seed))
	if err != nil {
		return runStats{}, nil, err
	}
	due := make([]float64, len(evs))
	var at float64
	for i, d := range feed.ReplayDelays(evs, 1) {
		at += float64(d.Milliseconds())
		due[i] = at
	}
	for i := 0; i < len(evs); {
		if wait := due[i] - ts.Scene.ClockMs(); wait > 0 {
			ts.RunMs(wait)
		}
		j := i + 1
		for j < len(evs) && due[j] <= ts.Scene.ClockMs() {
			j++
		}
		ts.Emit(evs[i:j]...)
		i = j
	}
	ts.RunMs(settleMs)
	return collect(ts, seed), ts, nil
}

func collect(ts *game.TestSim, seed int64) runStats {
	sl := ts.SimLog
	entries := sl.Entries()
	rs := runStats{
		seed:              seed,
		ticks:             ts.CurrentTick(),
		firstWorkTick:     firstTick(entries, "state", "change", "working"),
		firstDeliveryTick: firstTick(entries, "delivery", "start", ""),
		ceremonyTick:      firstTick(entries, "ceremony", "start", ""),
		allAsleepTick:     firstTick(entries, "ceremony", "phase", "sleep"),
		events:            map[string]int{},
		stateChanges:      sl.CountCategory("state", "change"),
		deliveries:        sl.CountCategory("delivery", "start"),
		completed:         sl.CountCategory("delivery", "complete"),
		wanders:           sl.CountCategory("wander", "walk"),
		idleSleeps:        sl.CountCategory("idle", "sleep"),
		statesAtEnd:       map[game.AgentState]int{},
		perAgentState:     map[string]int{},
	}
	for _, e := range sl.Filter("event", "") {
		rs.events[e.Key]++
	}
	for _, e := range sl.Filter("state", "change") {
		rs.perAgentState[e.Agent]++
	}
	agents := ts.Scene.Agents()
	for _, a := range agents {
		rs.statesAtEnd[a.State()]++
	}
	rs.summary = sl.Summary(ts.CurrentTick(), agents, ts.Scene.Sequencer())
	rs.window = ts.Reporter.WindowSummary().Format()
	return rs
}

func firstTick(entries []game.SimLogEntry, category, key, contains string) int {
	for _, e := range entries {
		if e.Category != category || e.Key != key {
			continue
		}
		if contains == "" || strings.Contains(e.Value, contains) {
			return e.Tick
		}
	}
	return -1
}

func printRun(w io.Writer, rs runStats) {
	fmt.Fprintf(w, "--- Run %d (seed=%d ticks=%d) ---\n", rs.runIndex, rs.seed, rs.ticks)
	fmt.Fprintf(w, "phase_markers: first_work=%d first_delivery=%d ceremony=%d all_asleep=%d\n",
		rs.firstWorkTick, rs.firstDeliveryTick, rs.ceremonyTick, rs.allAsleepTick)
	fmt.Fprintf(w, "event_totals: %s\n", joinCounts(rs.events))
	fmt.Fprintf(w, "behaviour_totals: state_change=%d delivery=%d delivery_complete=%d wander=%d idle_sleep=%d\n",
		rs.stateChanges, rs.deliveries, rs.completed, rs.wanders, rs.idleSleeps)
	fmt.Fprintf(w, "state_changes_by_agent: %s\n", joinCounts(rs.perAgentState))
	fmt.Fprint(w, rs.summary)
	fmt.Fprint(w, rs.window)
	fmt.Fprintln(w)
}

func printAggregate(w io.Writer, all []runStats) {
	totalState := 0
	totalDeliveries := 0
	totalWanders := 0
	asleepTicks := make([]int, 0, len(all))
	endStates := map[string]int{}
	for _, rs := range all {
		totalState += rs.stateChanges
		totalDeliveries += rs.deliveries
		totalWanders += rs.wanders
		if rs.allAsleepTick >= 0 {
			asleepTicks = append(asleepTicks, rs.allAsleepTick)
		}
		for s, n := range rs.statesAtEnd {
			endStates[s.String()] += n
		}
	}

	fmt.Fprintln(w, "=== Aggregate ===")
	fmt.Fprintf(w, "runs=%d\n", len(all))
	fmt.Fprintf(w, "avg_per_run: state_change=%.1f delivery=%.1f wander=%.1f\n",
		avg(totalState, len(all)), avg(totalDeliveries, len(all)), avg(totalWanders, len(all)))
	fmt.Fprintf(w, "avg_all_asleep_tick=%s\n", avgTickString(asleepTicks))
	fmt.Fprintf(w, "end_states: %s\n", joinCounts(endStates))
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}

func joinCounts(m map[string]int) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

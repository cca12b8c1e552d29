package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mvmcode/elves-sub000/internal/feed"
	"github.com/mvmcode/elves-sub000/internal/game"
	"github.com/mvmcode/elves-sub000/internal/layout"
)

var logger = log.New(os.Stderr, "[elves] ", log.LstdFlags)

type flags struct {
	layoutPath  string
	eventsPath  string
	dbPath      string
	session     string
	wsURL       string
	speed       float64
	metricsAddr string
	seed        int64
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "elves",
		Short: "Elf workshop viewer for agent sessions",
		Long: `Runs the workshop scene in a window and feeds it lifecycle events from
a recorded JSONL log, a session database or a live websocket.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.layoutPath, "layout", "", "workshop layout YAML (default: built-in)")
	fl.StringVar(&f.eventsPath, "events", "", "replay a JSONL event log (.jsonl or .jsonl.zst)")
	fl.StringVar(&f.dbPath, "db", "", "replay a session database")
	fl.StringVar(&f.session, "session", "", "session id in --db (default: most recent)")
	fl.StringVar(&f.wsURL, "ws", "", "stream live events from a websocket URL")
	fl.Float64Var(&f.speed, "speed", 1, "replay speed multiplier for --events and --db")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fl.Int64Var(&f.seed, "seed", 0, "RNG seed (0 keeps the layout's seed)")
	fl.BoolVar(&f.verbose, "verbose", false, "record per-tick positions in the sim log")
	cmd.MarkFlagsMutuallyExclusive("events", "db", "ws")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, f flags) error {
	l := layout.Default()
	if f.layoutPath != "" {
		var err error
		if l, err = layout.Load(f.layoutPath); err != nil {
			return err
		}
	}
	cfg := l.SceneConfig()
	if f.seed != 0 {
		cfg.Seed = f.seed
	}
	cfg.Verbose = f.verbose

	sc, err := game.NewScene(cfg)
	if err != nil {
		return fmt.Errorf("scene: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := feed.NewMetrics(reg)
	sm := newSceneMetrics(reg)
	if f.metricsAddr != "" {
		serveMetrics(f.metricsAddr, reg)
	}

	d, err := feed.NewDecoder(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := startSource(ctx, f, d)
	if err != nil {
		return err
	}

	g := game.NewGame(sc, events)
	w, h := g.WindowSize()
	ebiten.SetWindowTitle("Elf Workshop")
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(&meteredGame{Game: g, ctx: ctx, metrics: sm})
}

// startSource launches the selected event source. It returns a nil channel
// when no source is configured.
func startSource(ctx context.Context, f flags, d *feed.Decoder) (<-chan game.Event, error) {
	out := make(chan game.Event, 256)
	switch {
	case f.wsURL != "":
		go func() {
			defer close(out)
			if err := feed.Stream(ctx, f.wsURL, d, out); err != nil {
				logger.Printf("stream ended: %v", err)
			}
		}()
		logger.Printf("streaming events from %s", f.wsURL)
		return out, nil

	case f.eventsPath != "" || f.dbPath != "":
		evs, err := loadRecorded(ctx, f, d)
		if err != nil {
			return nil, err
		}
		logger.Printf("replaying %d events at %gx", len(evs), f.speed)
		go func() {
			defer close(out)
			if err := feed.Replay(ctx, evs, f.speed, out); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("replay stopped: %v", err)
			}
		}()
		return out, nil
	}
	return nil, nil
}

func loadRecorded(ctx context.Context, f flags, d *feed.Decoder) ([]game.Event, error) {
	if f.eventsPath != "" {
		return feed.LoadFile(f.eventsPath, d)
	}
	db, err := feed.OpenDB(ctx, f.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	id := f.session
	if id == "" {
		if id, err = feed.LatestSession(ctx, db); err != nil {
			return nil, err
		}
	}
	return feed.LoadSession(ctx, db, id, d)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Printf("metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()
}

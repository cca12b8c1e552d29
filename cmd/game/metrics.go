package main

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mvmcode/elves-sub000/internal/game"
)

type sceneMetrics struct {
	agents     *prometheus.GaugeVec
	deliveries prometheus.Gauge
	ticks      prometheus.Counter
}

func newSceneMetrics(reg prometheus.Registerer) *sceneMetrics {
	m := &sceneMetrics{
		agents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "elves_scene_agents",
				Help: "Agents in the scene, by state",
			},
			[]string{"state"},
		),
		deliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elves_scene_deliveries_active",
			Help: "Delivery walks in progress",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elves_scene_ticks_total",
			Help: "Simulation ticks run",
		}),
	}
	reg.MustRegister(m.agents, m.deliveries, m.ticks)
	return m
}

func (m *sceneMetrics) observe(sc *game.Scene, prevTick int) {
	counts := map[game.AgentState]int{}
	for _, a := range sc.Agents() {
		counts[a.State()]++
	}
	for s := game.StateEntering; s <= game.StateExiting; s++ {
		m.agents.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	m.deliveries.Set(float64(sc.Sequencer().DeliveryCount()))
	if d := sc.Tick() - prevTick; d > 0 {
		m.ticks.Add(float64(d))
	}
}

// meteredGame updates the scene gauges after every frame and stops the
// window loop once the feed context is cancelled.
type meteredGame struct {
	*game.Game
	ctx     context.Context
	metrics *sceneMetrics
}

func (g *meteredGame) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	prev := g.Scene().Tick()
	if err := g.Game.Update(); err != nil {
		return err
	}
	g.metrics.observe(g.Scene(), prev)
	return nil
}

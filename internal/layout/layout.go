// Package layout loads the static workshop description (grid, stations,
// named areas, door and cots) and timing overrides from YAML.
package layout

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mvmcode/elves-sub000/internal/game"
)

//go:embed default.yaml
var defaultYAML []byte

// Cell is a [col, row] grid coordinate.
type Cell [2]int

// Tile converts c to a game tile.
func (c Cell) Tile() game.Tile { return game.Tile{Col: c[0], Row: c[1]} }

// Center returns the pixel centre of c.
func (c Cell) Center(tileSize int) game.Vec2 { return game.TileToPixel(c.Tile(), tileSize) }

// RectSpec is a tile-aligned rectangle.
type RectSpec struct {
	Col int `yaml:"col"`
	Row int `yaml:"row"`
	W   int `yaml:"w"`
	H   int `yaml:"h"`
}

func (r RectSpec) pixels(tileSize int) game.Rect {
	return game.TileRect(game.Tile{Col: r.Col, Row: r.Row}, r.W, r.H, tileSize)
}

type StationSpec struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Theme string `yaml:"theme"`
	Tile  Cell   `yaml:"tile"`
	// Bounds defaults to the single tile behind the standing tile.
	Bounds *RectSpec `yaml:"bounds,omitempty"`
}

type AreaSpec struct {
	Kind  string   `yaml:"kind"`
	Label string   `yaml:"label"`
	Rect  RectSpec `yaml:"rect"`
}

type ConveyorSpec struct {
	From Cell `yaml:"from"`
	To   Cell `yaml:"to"`
}

type ViewportSpec struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Layout is the YAML document.
type Layout struct {
	TileSize int          `yaml:"tile_size"`
	Viewport ViewportSpec `yaml:"viewport"`
	Seed     int64        `yaml:"seed"`
	Snow     bool         `yaml:"snow"`

	Grid     []string `yaml:"grid"`
	Entry    Cell     `yaml:"entry"`
	Door     Cell     `yaml:"door"`
	RestArea Cell     `yaml:"rest_area"`
	Cots     []Cell   `yaml:"cots"`

	Conveyor ConveyorSpec  `yaml:"conveyor"`
	Stations []StationSpec `yaml:"stations"`
	Areas    []AreaSpec    `yaml:"areas"`

	// Tuning overrides; zero fields keep the defaults.
	Tuning game.Tuning `yaml:"tuning"`
}

// Load reads and validates a layout file.
func Load(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	l, err := Parse(raw)
	if err != nil {
		return Layout{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes and validates a layout document. Unknown keys are errors.
func Parse(raw []byte) (Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return Layout{}, fmt.Errorf("layout yaml: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Default returns the built-in workshop.
func Default() Layout {
	l, err := Parse(defaultYAML)
	if err != nil {
		panic("layout: built-in workshop is invalid: " + err.Error())
	}
	return l
}

func (l Layout) cols() int {
	n := 0
	for _, r := range l.Grid {
		n = max(n, len(r))
	}
	return n
}

func (l Layout) inGrid(c Cell) bool {
	return c[0] >= 0 && c[1] >= 0 && c[0] < l.cols() && c[1] < len(l.Grid)
}

func (l Layout) floor(c Cell) bool {
	if !l.inGrid(c) {
		return false
	}
	row := l.Grid[c[1]]
	return c[0] < len(row) && row[c[0]] != '#'
}

// Validate reports every problem found, joined.
func (l Layout) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if l.TileSize <= 0 {
		bad("tile_size must be positive, got %d", l.TileSize)
	}
	if l.Viewport.Width <= 0 || l.Viewport.Height <= 0 {
		bad("viewport must be positive, got %dx%d", l.Viewport.Width, l.Viewport.Height)
	}
	if len(l.Grid) == 0 || l.cols() == 0 {
		bad("grid is empty")
		return errors.Join(errs...)
	}

	if !l.floor(l.Entry) {
		bad("entry %v is not a floor tile", l.Entry)
	}
	if !l.floor(l.Door) {
		bad("door %v is not a floor tile", l.Door)
	}
	if !l.floor(l.RestArea) {
		bad("rest_area %v is not a floor tile", l.RestArea)
	}
	for _, c := range l.Cots {
		if !l.floor(c) {
			bad("cot %v is not a floor tile", c)
		}
	}

	seen := make(map[string]bool, len(l.Stations))
	for _, s := range l.Stations {
		switch {
		case s.ID == "":
			bad("station at %v has no id", s.Tile)
		case seen[s.ID]:
			bad("duplicate station id %q", s.ID)
		}
		seen[s.ID] = true
		if !l.floor(s.Tile) {
			bad("station %q tile %v is not a floor tile", s.ID, s.Tile)
		}
	}

	for _, a := range l.Areas {
		if _, ok := game.ParseAreaKind(a.Kind); !ok {
			bad("area %q has unknown kind %q", a.Label, a.Kind)
		}
		if a.Rect.W <= 0 || a.Rect.H <= 0 {
			bad("area %q has an empty rect", a.Label)
		}
	}
	return errors.Join(errs...)
}

// SceneConfig converts l into the scene's static configuration.
func (l Layout) SceneConfig() game.SceneConfig {
	ts := l.TileSize
	cfg := game.SceneConfig{
		TileSize:     ts,
		Grid:         append([]string(nil), l.Grid...),
		Entry:        l.Entry.Tile(),
		Door:         l.Door.Tile(),
		RestArea:     l.RestArea.Tile(),
		ConveyorFrom: l.Conveyor.From.Center(ts),
		ConveyorTo:   l.Conveyor.To.Center(ts),
		ViewportW:    l.Viewport.Width,
		ViewportH:    l.Viewport.Height,
		Snow:         l.Snow,
		Seed:         l.Seed,
		Tuning:       l.Tuning,
	}
	for _, c := range l.Cots {
		cfg.Cots = append(cfg.Cots, c.Tile())
	}
	for _, s := range l.Stations {
		bounds := RectSpec{Col: s.Tile[0], Row: s.Tile[1] - 1, W: 1, H: 1}
		if s.Bounds != nil {
			bounds = *s.Bounds
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		cfg.Stations = append(cfg.Stations, game.Station{
			ID:     s.ID,
			Name:   name,
			Theme:  s.Theme,
			Tile:   s.Tile.Tile(),
			Bounds: bounds.pixels(ts),
		})
	}
	for _, a := range l.Areas {
		kind, _ := game.ParseAreaKind(a.Kind)
		cfg.Areas = append(cfg.Areas, game.NamedArea{Kind: kind, Label: a.Label, Bounds: a.Rect.pixels(ts)})
	}
	return cfg
}

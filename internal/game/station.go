package game

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Center returns the midpoint of r.
func (r Rect) Center() Vec2 {
	return Vec2{r.X + r.W/2, r.Y + r.H/2}
}

// TileRect returns the pixel rectangle covering w×h tiles starting at t.
func TileRect(t Tile, w, h, tileSize int) Rect {
	ts := float64(tileSize)
	return Rect{float64(t.Col) * ts, float64(t.Row) * ts, float64(w) * ts, float64(h) * ts}
}

// Station is a named workbench an agent can be assigned to.
type Station struct {
	ID    string
	Name  string
	Theme string
	// Tile is where the assigned agent stands while working.
	Tile   Tile
	Bounds Rect
	// AssignedTo is the agent id occupying the station, empty when free.
	AssignedTo string
}

// Free reports whether no agent is assigned.
func (s *Station) Free() bool { return s.AssignedTo == "" }

// StationRegistry is the scene-owned, ordered set of stations.
type StationRegistry struct {
	stations []*Station
	byID     map[string]*Station
}

// NewStationRegistry builds a registry; later duplicates of an id are ignored.
func NewStationRegistry(stations []Station) *StationRegistry {
	r := &StationRegistry{byID: make(map[string]*Station, len(stations))}
	for i := range stations {
		s := stations[i]
		if s.ID == "" || r.byID[s.ID] != nil {
			continue
		}
		r.stations = append(r.stations, &s)
		r.byID[s.ID] = &s
	}
	return r
}

// Len returns the number of stations.
func (r *StationRegistry) Len() int { return len(r.stations) }

// All returns the stations in configuration order.
func (r *StationRegistry) All() []*Station { return r.stations }

// Get looks a station up by id.
func (r *StationRegistry) Get(id string) (*Station, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// At returns the i-th station (0-based), used by numbered focus keys.
func (r *StationRegistry) At(i int) (*Station, bool) {
	if i < 0 || i >= len(r.stations) {
		return nil, false
	}
	return r.stations[i], true
}

// AssignFirstFree gives agentID the first free station. An agent that
// already holds a station keeps it.
func (r *StationRegistry) AssignFirstFree(agentID string) (*Station, bool) {
	if s, ok := r.AssignedTo(agentID); ok {
		return s, true
	}
	for _, s := range r.stations {
		if s.Free() {
			s.AssignedTo = agentID
			return s, true
		}
	}
	return nil, false
}

// Assign moves agentID to station id, releasing any station it held. It
// fails when the station is unknown or held by another agent.
func (r *StationRegistry) Assign(id, agentID string) bool {
	s, ok := r.byID[id]
	if !ok || (!s.Free() && s.AssignedTo != agentID) {
		return false
	}
	r.Release(agentID)
	s.AssignedTo = agentID
	return true
}

// Release frees every station held by agentID.
func (r *StationRegistry) Release(agentID string) {
	for _, s := range r.stations {
		if s.AssignedTo == agentID {
			s.AssignedTo = ""
		}
	}
}

// AssignedTo returns the station held by agentID.
func (r *StationRegistry) AssignedTo(agentID string) (*Station, bool) {
	if agentID == "" {
		return nil, false
	}
	for _, s := range r.stations {
		if s.AssignedTo == agentID {
			return s, true
		}
	}
	return nil, false
}

// IsStationTile reports whether t is any station's standing tile.
func (r *StationRegistry) IsStationTile(t Tile) bool {
	for _, s := range r.stations {
		if s.Tile == t {
			return true
		}
	}
	return false
}

// AreaKind is one of the five fixed clickable workshop areas.
type AreaKind int

const (
	AreaMemory AreaKind = iota
	AreaSkills
	AreaMCP
	AreaTemplates
	AreaHistory
)

func (k AreaKind) String() string {
	switch k {
	case AreaMemory:
		return "memory"
	case AreaSkills:
		return "skills"
	case AreaMCP:
		return "mcp"
	case AreaTemplates:
		return "templates"
	case AreaHistory:
		return "history"
	default:
		return "unknown"
	}
}

// ParseAreaKind maps a config name to an AreaKind.
func ParseAreaKind(s string) (AreaKind, bool) {
	for k := AreaMemory; k <= AreaHistory; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// NamedArea is a clickable region of the workshop.
type NamedArea struct {
	Kind   AreaKind
	Label  string
	Bounds Rect
}

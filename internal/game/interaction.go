package game

import "math"

const (
	agentHitRadius   = 14.0  // world pixels
	doubleClickMs    = 400.0 // second click on the same agent within this window
	dragDeadZone     = 4.0   // screen pixels before a press becomes a pan
	stationFocusZoom = 2.0
)

// Key is a keyboard shortcut the interaction handler understands. The
// ebiten adapter in game.go maps physical keys onto it.
type Key int

const (
	KeyNone Key = iota
	KeyFitAll
	KeyReset
	KeyReleaseFollow
	KeyViewMode
	KeyCopyReport
	KeyStation1
	KeyStation2
	KeyStation3
	KeyStation4
	KeyStation5
	KeyStation6
	KeyStation7
	KeyStation8
	KeyStation9
)

// InputState is one frame of pointer and keyboard input in screen space.
// Pressed/Released flags are edges; Down flags are levels.
type InputState struct {
	CursorX, CursorY float64

	LeftPressed  bool
	LeftDown     bool
	LeftReleased bool

	MiddlePressed bool
	MiddleDown    bool

	WheelY float64
	Keys   []Key // pressed this frame
}

// HitKind is what a hit test found under the cursor.
type HitKind int

const (
	HitNone HitKind = iota
	HitAgent
	HitStation
	HitArea
)

func (k HitKind) String() string {
	switch k {
	case HitAgent:
		return "agent"
	case HitStation:
		return "station"
	case HitArea:
		return "area"
	default:
		return "none"
	}
}

// Hit is the result of a hit test.
type Hit struct {
	Kind      HitKind
	AgentID   string
	StationID string
	Area      AreaKind
}

// HitTest resolves a world point with priority agent (nearest within
// agentHitRadius) > station bounds > named area > none.
func HitTest(p Vec2, agents []*Agent, stations *StationRegistry, areas []NamedArea) Hit {
	best := ""
	bestD := math.Inf(1)
	for _, a := range agents {
		if d := a.pos.Dist(p); d <= agentHitRadius && d < bestD {
			best, bestD = a.id, d
		}
	}
	if best != "" {
		return Hit{Kind: HitAgent, AgentID: best}
	}
	if stations != nil {
		for _, s := range stations.All() {
			if s.Bounds.Contains(p) {
				return Hit{Kind: HitStation, StationID: s.ID}
			}
		}
	}
	for _, a := range areas {
		if a.Bounds.Contains(p) {
			return Hit{Kind: HitArea, Area: a.Kind}
		}
	}
	return Hit{}
}

// Targets is the read-only view of the scene the handler needs.
type Targets interface {
	HitTest(world Vec2) Hit
	FitPoints() []Vec2
	StationFocus(i int) (Vec2, bool)
}

// Callbacks are the outbound notifications for the host UI. Nil entries
// are skipped.
type Callbacks struct {
	OnAgentSelected   func(id string) // empty id clears the selection
	OnStationSelected func(id string)
	OnAreaClicked     func(kind AreaKind)
	OnViewModeToggle  func()
	OnCopyReport      func(agentID string)
}

// InteractionHandler routes pointer and keyboard input to the camera and
// the host callbacks.
type InteractionHandler struct {
	cam     *Camera
	targets Targets
	cb      Callbacks

	clock float64

	dragging     bool
	dragMoved    bool
	dragFromLeft bool
	pressX       float64
	pressY       float64
	lastX        float64
	lastY        float64

	lastClickID string
	lastClickAt float64
	selectedID  string
}

// NewInteractionHandler wires a handler to a camera and a scene view.
func NewInteractionHandler(cam *Camera, targets Targets, cb Callbacks) *InteractionHandler {
	return &InteractionHandler{cam: cam, targets: targets, cb: cb, lastClickAt: math.Inf(-1)}
}

// Selected returns the selected agent id, if any.
func (h *InteractionHandler) Selected() string { return h.selectedID }

// Dragging reports whether a pan drag is in progress.
func (h *InteractionHandler) Dragging() bool { return h.dragging }

// Handle processes one frame of input.
func (h *InteractionHandler) Handle(in InputState, dtMs float64) {
	h.clock += dtMs

	if in.WheelY != 0 {
		h.cam.ZoomToward(in.WheelY, in.CursorX, in.CursorY)
	}

	switch {
	case in.MiddlePressed:
		h.beginDrag(in, false)
	case in.LeftPressed:
		hit := h.targets.HitTest(h.cam.ScreenToWorld(Vec2{in.CursorX, in.CursorY}))
		if hit.Kind == HitNone {
			h.beginDrag(in, true)
		} else {
			h.click(hit)
		}
	}

	if h.dragging {
		h.updateDrag(in)
	}

	for _, k := range in.Keys {
		h.key(k)
	}
}

func (h *InteractionHandler) beginDrag(in InputState, fromLeft bool) {
	h.dragging = true
	h.dragMoved = false
	h.dragFromLeft = fromLeft
	h.pressX, h.pressY = in.CursorX, in.CursorY
	h.lastX, h.lastY = in.CursorX, in.CursorY
}

func (h *InteractionHandler) updateDrag(in InputState) {
	held := in.MiddleDown
	if h.dragFromLeft {
		held = in.LeftDown && !in.LeftReleased
	}
	if !held {
		if h.dragFromLeft && !h.dragMoved {
			// A plain click on empty floor clears the selection.
			h.selectedID = ""
			if h.cb.OnAgentSelected != nil {
				h.cb.OnAgentSelected("")
			}
		}
		h.dragging = false
		return
	}
	if !h.dragMoved && math.Hypot(in.CursorX-h.pressX, in.CursorY-h.pressY) < dragDeadZone {
		return
	}
	h.dragMoved = true
	h.cam.Pan(in.CursorX-h.lastX, in.CursorY-h.lastY)
	h.lastX, h.lastY = in.CursorX, in.CursorY
}

func (h *InteractionHandler) click(hit Hit) {
	switch hit.Kind {
	case HitAgent:
		if hit.AgentID == h.lastClickID && h.clock-h.lastClickAt <= doubleClickMs {
			if h.cam.FollowID() == hit.AgentID {
				h.cam.ClearFollow()
			} else {
				h.cam.Follow(hit.AgentID)
			}
			h.lastClickID = ""
		} else {
			h.lastClickID = hit.AgentID
			h.lastClickAt = h.clock
		}
		h.selectedID = hit.AgentID
		if h.cb.OnAgentSelected != nil {
			h.cb.OnAgentSelected(hit.AgentID)
		}
	case HitStation:
		h.lastClickID = ""
		if h.cb.OnStationSelected != nil {
			h.cb.OnStationSelected(hit.StationID)
		}
	case HitArea:
		h.lastClickID = ""
		if h.cb.OnAreaClicked != nil {
			h.cb.OnAreaClicked(hit.Area)
		}
	case HitNone:
	}
}

func (h *InteractionHandler) key(k Key) {
	switch {
	case k == KeyFitAll:
		h.cam.FitAll(h.targets.FitPoints())
	case k == KeyReset:
		h.cam.Reset()
	case k == KeyReleaseFollow:
		h.cam.ClearFollow()
	case k == KeyViewMode:
		if h.cb.OnViewModeToggle != nil {
			h.cb.OnViewModeToggle()
		}
	case k == KeyCopyReport:
		if h.selectedID != "" && h.cb.OnCopyReport != nil {
			h.cb.OnCopyReport(h.selectedID)
		}
	case k >= KeyStation1 && k <= KeyStation9:
		if p, ok := h.targets.StationFocus(int(k - KeyStation1)); ok {
			h.cam.FocusOn(p.X, p.Y, stationFocusZoom)
		}
	}
}

package game

import "math"

const (
	agentRadius     = 9
	waypointEpsilon = 0.75 // pixels; closer than this snaps to the waypoint
)

// AgentState represents the high-level behaviour state of a sprite.
type AgentState int

const (
	StateEntering    AgentState = iota // walking in from the door
	StateIdle                          // standing, interruptible
	StateWalking                       // following a path
	StateWandering                     // autonomous idle walk
	StateWorking                       // at the station, animating WorkAnim
	StateCarrying                      // holding an item, possibly walking
	StateDelivering                    // handing the item over
	StateWaiting                       // receiver listening to a delivered message
	StateCelebrating                   // jumping about
	StateSleeping                      // resting on a cot
	StateError                         // shaking, red
	StatePermission                    // waiting for a permission grant
	StateArguing                       // exchanging words with another agent
	StateExiting                       // walking out through the door
)

func (s AgentState) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateWandering:
		return "wandering"
	case StateWorking:
		return "working"
	case StateCarrying:
		return "carrying"
	case StateDelivering:
		return "delivering"
	case StateWaiting:
		return "waiting"
	case StateCelebrating:
		return "celebrating"
	case StateSleeping:
		return "sleeping"
	case StateError:
		return "error"
	case StatePermission:
		return "permission"
	case StateArguing:
		return "arguing"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Moves reports whether the state may hold a non-empty walk path.
func (s AgentState) Moves() bool {
	switch s {
	case StateWalking, StateWandering, StateCarrying, StateEntering, StateExiting:
		return true
	case StateIdle, StateWorking, StateDelivering, StateWaiting, StateCelebrating,
		StateSleeping, StateError, StatePermission, StateArguing:
		return false
	default:
		return false
	}
}

// Interruptible reports whether queued actions may run in this state.
func (s AgentState) Interruptible() bool {
	return s == StateIdle || s == StateDelivering
}

// Facing is the 4-way direction a sprite looks.
type Facing int

const (
	FacingDown Facing = iota
	FacingUp
	FacingLeft
	FacingRight
)

func (f Facing) String() string {
	switch f {
	case FacingUp:
		return "up"
	case FacingLeft:
		return "left"
	case FacingRight:
		return "right"
	default:
		return "down"
	}
}

// facingFor picks the dominant axis of a movement vector.
func facingFor(d Vec2) Facing {
	if math.Abs(d.X) > math.Abs(d.Y) {
		if d.X < 0 {
			return FacingLeft
		}
		return FacingRight
	}
	if d.Y < 0 {
		return FacingUp
	}
	return FacingDown
}

// WorkAnim selects the animation played while working.
type WorkAnim int

const (
	AnimNone    WorkAnim = iota
	AnimType             // writing / editing
	AnimRead             // reading files
	AnimSearch           // grep, glob, web search
	AnimRun              // shell commands
	AnimThink            // reasoning
	AnimGeneric          // anything else
)

func (w WorkAnim) String() string {
	switch w {
	case AnimType:
		return "type"
	case AnimRead:
		return "read"
	case AnimSearch:
		return "search"
	case AnimRun:
		return "run"
	case AnimThink:
		return "think"
	case AnimGeneric:
		return "generic"
	default:
		return "none"
	}
}

// ItemKind is something an agent can carry.
type ItemKind int

const (
	ItemNone ItemKind = iota
	ItemLetter
	ItemScroll
	ItemPackage
)

func (k ItemKind) String() string {
	switch k {
	case ItemLetter:
		return "letter"
	case ItemScroll:
		return "scroll"
	case ItemPackage:
		return "package"
	default:
		return "none"
	}
}

// TransitionOption applies an optional sub-parameter during Transition.
type TransitionOption func(*Agent)

// WithItem sets the carried item.
func WithItem(k ItemKind) TransitionOption { return func(a *Agent) { a.carried = k } }

// WithAnim sets the work animation.
func WithAnim(w WorkAnim) TransitionOption { return func(a *Agent) { a.workAnim = w } }

// WithStation sets the station the agent belongs to.
func WithStation(id string) TransitionOption { return func(a *Agent) { a.stationID = id } }

// WithFacing turns the agent.
func WithFacing(f Facing) TransitionOption { return func(a *Agent) { a.facing = f } }

// WithDuration makes the state return to idle after ms milliseconds.
func WithDuration(ms float64) TransitionOption { return func(a *Agent) { a.stateLimit = ms } }

// ActionKind distinguishes queued actions.
type ActionKind int

const (
	ActionWalkTo     ActionKind = iota // set path, become walking
	ActionDeliver                      // set path, become carrying
	ActionTransition                   // arbitrary state change
)

// Action is a deferred step in an agent's FIFO queue.
type Action struct {
	Kind  ActionKind
	Path  []Vec2
	State AgentState
	Opts  []TransitionOption
	Delay float64 // ms; decays while the agent is interruptible
}

// Agent is one on-screen worker sprite, representing a running agent.
type Agent struct {
	id        string
	name      string
	hatColor  string
	accessory string

	pos       Vec2
	facing    Facing
	state     AgentState
	workAnim  WorkAnim
	carried   ItemKind
	stationID string
	active    bool

	bubble *SpeechBubble
	queue  []Action
	path   []Vec2

	stateTime  float64 // ms spent in the current state
	stateLimit float64 // auto-return to idle after this many ms; 0 = never
	shake      float64 // horizontal render offset

	tuning *Tuning
}

// NewAgent creates an idle agent at pos.
func NewAgent(id, name string, pos Vec2, tuning *Tuning) *Agent {
	if tuning == nil {
		t := DefaultTuning()
		tuning = &t
	}
	if name == "" {
		name = id
	}
	return &Agent{
		id:     id,
		name:   name,
		pos:    pos,
		state:  StateIdle,
		tuning: tuning,
	}
}

func (a *Agent) ID() string { return a.id }
func (a *Agent) Name() string { return a.name }
func (a *Agent) HatColor() string { return a.hatColor }
func (a *Agent) Accessory() string { return a.accessory }
func (a *Agent) Pos() Vec2 { return a.pos }
func (a *Agent) Facing() Facing { return a.facing }
func (a *Agent) State() AgentState { return a.state }
func (a *Agent) WorkAnim() WorkAnim { return a.workAnim }
func (a *Agent) Carried() ItemKind { return a.carried }
func (a *Agent) StationID() string { return a.stationID }
func (a *Agent) Active() bool { return a.active }
func (a *Agent) Bubble() *SpeechBubble { return a.bubble }
func (a *Agent) StateTime() float64 { return a.stateTime }
func (a *Agent) Shake() float64 { return a.shake }
func (a *Agent) QueueLen() int { return len(a.queue) }

// Path returns a copy of the remaining waypoints.
func (a *Agent) Path() []Vec2 {
	return append([]Vec2(nil), a.path...)
}

// SetLook updates the cosmetic spawn attributes.
func (a *Agent) SetLook(hatColor, accessory string) {
	a.hatColor = hatColor
	a.accessory = accessory
}

// SetActive marks the agent as doing assigned work (true) or idling (false).
func (a *Agent) SetActive(v bool) { a.active = v }

// Transition switches state, resetting the state timer and shake offset and
// applying any options. Non-moving states drop the walk path.
func (a *Agent) Transition(s AgentState, opts ...TransitionOption) {
	a.state = s
	a.stateTime = 0
	a.stateLimit = 0
	a.shake = 0
	if !s.Moves() {
		a.path = nil
	}
	if s != StateWorking {
		a.workAnim = AnimNone
	}
	for _, o := range opts {
		o(a)
	}
}

// WalkTo starts following path immediately in the given moving state.
// An empty path is a no-op and returns false.
func (a *Agent) WalkTo(path []Vec2, s AgentState) bool {
	if len(path) == 0 || !s.Moves() {
		return false
	}
	a.Transition(s)
	a.path = append([]Vec2(nil), path...)
	return true
}

// Enqueue appends an action to the FIFO queue.
func (a *Agent) Enqueue(act Action) {
	a.queue = append(a.queue, act)
}

// ClearQueue drops every pending action.
func (a *Agent) ClearQueue() {
	a.queue = nil
}

// Say shows a speech bubble for ms milliseconds (BubbleMs when ms <= 0).
func (a *Agent) Say(text string, kind BubbleKind, ms float64) {
	if ms <= 0 {
		ms = a.tuning.BubbleMs
	}
	a.bubble = newSpeechBubble(Excerpt(text, a.tuning.BubbleChars), kind, ms)
}

// faceToward turns the agent toward p without changing its state.
func (a *Agent) faceToward(p Vec2) {
	if d := p.Sub(a.pos); d.Len() > 1e-9 {
		a.facing = facingFor(d)
	}
}

// ClearBubble removes the active speech bubble.
func (a *Agent) ClearBubble() {
	a.bubble = nil
}

// Update advances the bubble, the state logic, and the action queue by dtMs.
func (a *Agent) Update(dtMs float64) {
	a.stateTime += dtMs

	if a.bubble != nil && a.bubble.advance(dtMs) {
		a.bubble = nil
	}

	switch a.state {
	case StateEntering, StateWalking, StateWandering, StateCarrying, StateExiting:
		a.moveAlongPath(dtMs)
	case StateError:
		// Decaying shake so the error is noticeable without jittering forever.
		decay := math.Max(0, 1-a.stateTime/1500)
		a.shake = math.Sin(a.stateTime/35) * 3 * decay
	case StateArguing:
		a.shake = math.Sin(a.stateTime/90) * 1.5
	case StateIdle, StateWorking, StateDelivering, StateWaiting, StateCelebrating,
		StateSleeping, StatePermission:
	}

	if a.stateLimit > 0 && a.stateTime >= a.stateLimit {
		a.Transition(StateIdle)
	}

	a.runQueue(dtMs)
}

// moveAlongPath advances along the current path at WalkSpeed and handles
// arrival once the last waypoint is reached.
// A moving state with no path (carrying in place) stays put.
func (a *Agent) moveAlongPath(dtMs float64) {
	if len(a.path) == 0 {
		return
	}
	remaining := a.tuning.WalkSpeed * dtMs / 1000
	for remaining > 0 && len(a.path) > 0 {
		wp := a.path[0]
		d := wp.Sub(a.pos)
		dist := d.Len()
		if dist > 1e-9 {
			a.facing = facingFor(d)
		}
		if dist <= remaining || dist <= waypointEpsilon {
			a.pos = wp
			remaining -= dist
			a.path = a.path[1:]
			continue
		}
		a.pos.X += d.X / dist * remaining
		a.pos.Y += d.Y / dist * remaining
		remaining = 0
	}
	if len(a.path) == 0 {
		a.path = nil
		a.arrive()
	}
}

// arrive picks the follow-up state once the path is exhausted.
func (a *Agent) arrive() {
	switch a.state {
	case StateCarrying:
		a.Transition(StateDelivering)
	case StateEntering, StateExiting, StateWalking, StateWandering:
		a.Transition(StateIdle)
	default:
		a.Transition(StateIdle)
	}
}

// runQueue pops the head action once the agent is interruptible and the
// head's delay has run out. At most one action runs per update.
func (a *Agent) runQueue(dtMs float64) {
	if len(a.queue) == 0 || !a.state.Interruptible() {
		return
	}
	head := &a.queue[0]
	head.Delay -= dtMs
	if head.Delay > 0 {
		return
	}
	act := a.queue[0]
	a.queue = a.queue[1:]
	if len(a.queue) == 0 {
		a.queue = nil
	}
	a.apply(act)
}

func (a *Agent) apply(act Action) {
	switch act.Kind {
	case ActionWalkTo:
		a.WalkTo(act.Path, StateWalking)
	case ActionDeliver:
		a.WalkTo(act.Path, StateCarrying)
	case ActionTransition:
		a.Transition(act.State, act.Opts...)
	}
}

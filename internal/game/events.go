package game

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the closed set of lifecycle event kinds the scene reacts to.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSpawn
	EventThinking
	EventToolCall
	EventToolResult
	EventOutput
	EventChat
	EventTaskUpdate
	EventPermissionRequest
	EventPermissionGranted
	EventFileChange
	EventError
	EventSessionComplete
	EventDespawn
)

var eventKindNames = [...]string{
	EventUnknown:           "unknown",
	EventSpawn:             "spawn",
	EventThinking:          "thinking",
	EventToolCall:          "tool_call",
	EventToolResult:        "tool_result",
	EventOutput:            "output",
	EventChat:              "chat",
	EventTaskUpdate:        "task_update",
	EventPermissionRequest: "permission_request",
	EventPermissionGranted: "permission_granted",
	EventFileChange:        "file_change",
	EventError:             "error",
	EventSessionComplete:   "session_complete",
	EventDespawn:           "despawn",
}

// kindAliases maps legacy runtime event names onto the canonical kinds.
var kindAliases = map[string]EventKind{
	"plan":            EventThinking,
	"exec":            EventToolCall,
	"function_call":   EventToolCall,
	"tool_use":        EventToolCall,
	"function_result": EventToolResult,
	"patch":           EventFileChange,
	"apply":           EventFileChange,
	"file_edit":       EventFileChange,
	"message":         EventOutput,
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// ParseEventKind resolves a canonical or legacy kind name.
func ParseEventKind(s string) (EventKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := EventSpawn; k <= EventDespawn; k++ {
		if eventKindNames[k] == s {
			return k, true
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k, true
	}
	return EventUnknown, false
}

// MarshalText encodes the canonical name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any name; unrecognised kinds decode to
// EventUnknown and are ignored by the scene.
func (k *EventKind) UnmarshalText(b []byte) error {
	*k, _ = ParseEventKind(string(b))
	return nil
}

// Event is one inbound lifecycle record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	AgentID   string         `json:"agentId"`
	AgentName string         `json:"agentName,omitempty"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// textKeys is the precedence order for a payload's display text.
var textKeys = []string{"message", "text", "content", "output", "result", "funnyStatus"}

// MessageText returns the first non-empty text field of p in precedence
// order: message, text, content, output, result, funnyStatus.
func MessageText(p map[string]any) string {
	return payloadString(p, textKeys...)
}

// payloadString returns the first key of p holding a non-empty value.
// Non-string values are rendered as compact JSON.
func payloadString(p map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case fmt.Stringer:
			s = t.String()
		default:
			b, err := json.Marshal(t)
			if err != nil {
				continue
			}
			s = string(b)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

var toolAnimRules = []struct {
	anim  WorkAnim
	needs []string
}{
	{AnimType, []string{"write", "edit", "create", "patch"}},
	{AnimRead, []string{"read", "view", "cat", "open"}},
	{AnimSearch, []string{"grep", "search", "find", "glob", "web"}},
	{AnimRun, []string{"bash", "exec", "run", "shell", "terminal", "command"}},
}

// ToolAnimation maps a tool name to a work animation by substring, falling
// back to AnimGeneric.
func ToolAnimation(tool string) WorkAnim {
	tool = strings.ToLower(tool)
	for _, r := range toolAnimRules {
		for _, n := range r.needs {
			if strings.Contains(tool, n) {
				return r.anim
			}
		}
	}
	return AnimGeneric
}

// toolLabel builds the bubble text of a tool call.
func toolLabel(p map[string]any) string {
	tool := payloadString(p, "tool", "name")
	if tool == "" {
		tool = "tool"
	}
	if in := payloadString(p, "input", "args"); in != "" {
		return tool + ": " + in
	}
	return tool
}

func fileChangeLabel(p map[string]any) string {
	action := payloadString(p, "action")
	if action == "" {
		action = "edit"
	}
	if path := payloadString(p, "path", "file"); path != "" {
		return action + " " + path
	}
	return action
}

// processEvent applies one event. Unknown kinds and unknown agents are
// ignored.
func (sc *Scene) processEvent(ev Event) {
	switch ev.Kind {
	case EventSpawn:
		sc.spawnAgent(ev)
		return
	case EventSessionComplete:
		sc.startSessionCeremony()
		return
	case EventUnknown:
		return
	}

	a, ok := sc.agents[ev.AgentID]
	if !ok {
		return
	}
	w := &sc.w
	t := &sc.tuning
	text := MessageText(ev.Payload)

	switch ev.Kind {
	case EventThinking:
		sc.activate(a)
		sc.beginWork(a, AnimThink)
		if text != "" {
			a.Say(text, BubbleThought, 0)
		}
		sc.note(a, "thinking", text)

	case EventToolCall:
		tool := payloadString(ev.Payload, "tool", "name")
		sc.activate(a)
		sc.beginWork(a, ToolAnimation(tool))
		a.Say(toolLabel(ev.Payload), BubbleTool, 0)
		sc.particles.AddBurst(a.pos, ParticleSparkle, 8)
		sc.note(a, "tool_call", tool)

	case EventToolResult:
		if text != "" {
			a.Say(text, BubbleStatus, 0)
		}
		sc.note(a, "tool_result", text)

	case EventOutput:
		label := text
		if label == "" {
			label = "output"
		}
		sc.pushConveyor(a.id, label)
		a.Say(label, BubbleSpeech, 0)
		sc.note(a, "output", label)

	case EventChat:
		target := payloadString(ev.Payload, "targetAgentId")
		if target != "" && sc.seq.StartDelivery(w, a.id, target, text) {
			sc.note(a, "chat", "→ "+target)
			return
		}
		if text != "" {
			a.Say(text, BubbleChat, 0)
		}
		sc.note(a, "chat", text)

	case EventTaskUpdate:
		status := strings.ToLower(payloadString(ev.Payload, "status"))
		switch status {
		case "completed", "complete", "done":
			sc.deactivate(a)
			a.ClearQueue()
			a.Transition(StateCelebrating, WithDuration(t.CelebrateMs), WithItem(ItemNone))
			sc.particles.AddBurst(a.pos, ParticleCelebrate, 16)
		case "in_progress", "started", "running":
			sc.activate(a)
			sc.beginWork(a, AnimGeneric)
		case "failed", "error":
			sc.fail(a, text)
		default:
			if text == "" {
				text = status
			}
			if text != "" {
				a.Say(text, BubbleStatus, 0)
			}
		}
		sc.note(a, "task_update", status)

	case EventPermissionRequest:
		sc.activate(a)
		sc.seq.LeaveCeremony(a.id)
		a.ClearQueue()
		a.Transition(StatePermission)
		if text == "" {
			text = "May I?"
		}
		a.Say(text, BubblePermission, 0)
		sc.note(a, "permission", "requested")

	case EventPermissionGranted:
		if a.state == StatePermission {
			sc.beginWork(a, AnimGeneric)
		}
		sc.note(a, "permission", "granted")

	case EventFileChange:
		sc.activate(a)
		sc.beginWork(a, AnimType)
		a.Say(fileChangeLabel(ev.Payload), BubbleTool, 0)
		sc.note(a, "file_change", fileChangeLabel(ev.Payload))

	case EventError:
		sc.fail(a, text)

	case EventDespawn:
		sc.departAgent(a)
	}
}

// activate marks a as doing assigned work and stops its wander cycle.
func (sc *Scene) activate(a *Agent) {
	a.SetActive(true)
	sc.seq.StopWander(&sc.w, a.id)
}

// deactivate marks a as idle and enrols it in the wander cycle.
func (sc *Scene) deactivate(a *Agent) {
	a.SetActive(false)
	sc.seq.StartWander(&sc.w, a.id)
}

func (sc *Scene) fail(a *Agent, text string) {
	sc.deactivate(a)
	sc.seq.LeaveCeremony(a.id)
	a.ClearQueue()
	a.Transition(StateError, WithDuration(sc.tuning.ErrorMs), WithItem(ItemNone))
	if text == "" {
		text = "Something went wrong"
	}
	a.Say(text, BubbleError, sc.tuning.ErrorMs)
	sc.particles.AddBurst(a.pos, ParticleSmoke, 10)
	sc.note(a, "error", text)
}

// beginWork sends a to its station and starts the work animation there.
// A sender mid-delivery picks the work up once the delivery ends.
func (sc *Scene) beginWork(a *Agent, anim WorkAnim) {
	work := Action{Kind: ActionTransition, State: StateWorking, Opts: []TransitionOption{WithAnim(anim)}}
	if sc.seq.DeferWork(a.id, work) {
		return
	}
	sc.seq.LeaveCeremony(a.id)
	a.ClearQueue()
	if st, ok := sc.w.stationTile(a); ok {
		if a.WalkTo(sc.w.pathTo(a, st), StateWalking) {
			a.Enqueue(work)
			return
		}
	}
	a.Transition(StateWorking, WithAnim(anim))
}

func (sc *Scene) spawnAgent(ev Event) {
	if ev.AgentID == "" {
		return
	}
	hat := payloadString(ev.Payload, "hatColor", "color")
	acc := payloadString(ev.Payload, "accessory")
	if a, ok := sc.agents[ev.AgentID]; ok {
		a.SetLook(hat, acc)
		return
	}
	name := ev.AgentName
	if name == "" {
		name = payloadString(ev.Payload, "name")
	}
	a := NewAgent(ev.AgentID, name, TileToPixel(sc.cfg.Entry, sc.cfg.TileSize), &sc.tuning)
	a.SetLook(hat, acc)
	sc.AddAgent(a)

	var opts []TransitionOption
	if st, ok := sc.stations.AssignFirstFree(a.id); ok {
		opts = append(opts, WithStation(st.ID))
	}
	a.Transition(StateEntering, opts...)
	if st, ok := sc.w.stationTile(a); !ok || !a.WalkTo(sc.w.pathTo(a, st), StateEntering) {
		a.Transition(StateIdle)
	}
	sc.deactivate(a)
	sc.note(a, "spawn", a.stationID)
}

// departAgent walks a out through the door; it is removed on arrival.
func (sc *Scene) departAgent(a *Agent) {
	sc.seq.StopWander(&sc.w, a.id)
	sc.seq.CancelDelivery(&sc.w, a.id)
	sc.seq.LeaveCeremony(a.id)
	sc.stations.Release(a.id)
	a.ClearQueue()
	a.SetActive(false)
	a.Transition(StateIdle, WithStation(""), WithItem(ItemNone))
	sc.note(a, "despawn", "")
	if a.WalkTo(sc.w.pathTo(a, sc.cfg.Door), StateExiting) {
		sc.exiting[a.id] = true
		return
	}
	sc.RemoveAgent(a.id)
}

func (sc *Scene) startSessionCeremony() {
	ids := make([]string, 0, len(sc.order))
	for _, a := range sc.order {
		if sc.exiting[a.id] {
			continue
		}
		a.SetActive(false)
		ids = append(ids, a.id)
	}
	if sc.seq.StartCeremony(&sc.w, ids) {
		sc.logSim("--", "ceremony", "session_complete", fmt.Sprintf("%d agents", len(ids)))
	}
}

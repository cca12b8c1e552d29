package game

import (
	"fmt"
	"image/color"

	"github.com/atotto/clipboard"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// hudScale is the integer upscale factor applied to all HUD text.
const hudScale = 2

// statusMs is how long a status line stays on screen.
const statusMs = 2500

// keyMap binds physical keys to the interaction handler's shortcuts.
var keyMap = map[ebiten.Key]Key{
	ebiten.KeyF:      KeyFitAll,
	ebiten.KeyR:      KeyReset,
	ebiten.KeyEscape: KeyReleaseFollow,
	ebiten.KeyV:      KeyViewMode,
	ebiten.KeyC:      KeyCopyReport,
	ebiten.Key1:      KeyStation1,
	ebiten.Key2:      KeyStation2,
	ebiten.Key3:      KeyStation3,
	ebiten.Key4:      KeyStation4,
	ebiten.Key5:      KeyStation5,
	ebiten.Key6:      KeyStation6,
	ebiten.Key7:      KeyStation7,
	ebiten.Key8:      KeyStation8,
	ebiten.Key9:      KeyStation9,
}

// Game adapts a Scene to ebiten: it drains the event feed, turns ebiten
// input into InputState and draws the HUD panels around the world view.
type Game struct {
	width  int
	height int

	scene  *Scene
	input  *InteractionHandler
	events <-chan Event

	prevKeys map[ebiten.Key]bool
	showHUD  bool
	showLog  bool

	inspector Inspector
	inspBuf   *ebiten.Image
	hudBuf    *ebiten.Image

	// Simulation speed control.
	simSpeed  float64 // multiplier: 0=paused, 0.5, 1, 2, 4
	tickAccum float64

	status    string
	statusAge float64

	copyText func(string) error
}

// NewGame wraps sc. Events received on events are applied before each
// simulation step; a nil channel means the scene is driven elsewhere.
func NewGame(sc *Scene, events <-chan Event) *Game {
	vpW, vpH := sc.Camera().Viewport()
	g := &Game{
		width:    int(vpW) + logPanelWidth,
		height:   int(vpH),
		scene:    sc,
		events:   events,
		prevKeys: make(map[ebiten.Key]bool),
		showHUD:  true,
		showLog:  true,
		simSpeed: 1,
		copyText: clipboard.WriteAll,
	}
	g.hudBuf = ebiten.NewImage(g.width/hudScale, g.height/hudScale)
	g.inspBuf = ebiten.NewImage(inspBufW, inspBufH)
	g.input = NewInteractionHandler(sc.Camera(), sc, Callbacks{
		OnAgentSelected: func(id string) {
			g.inspector.selected = id
			sc.SetSelected(id)
		},
		OnStationSelected: func(id string) {
			if st, ok := sc.Stations().Get(id); ok {
				g.setStatus(fmt.Sprintf("station %s (%s)", st.Name, assignee(st)))
			}
		},
		OnAreaClicked: func(kind AreaKind) {
			g.setStatus("area: " + kind.String())
		},
		OnViewModeToggle: g.toggleLog,
		OnCopyReport:     g.copyReport,
	})
	return g
}

// Scene returns the wrapped scene.
func (g *Game) Scene() *Scene { return g.scene }

func assignee(st *Station) string {
	if st.Free() {
		return "free"
	}
	return st.AssignedTo
}

func (g *Game) setStatus(s string) {
	g.status = s
	g.statusAge = 0
}

func (g *Game) toggleLog() {
	g.showLog = !g.showLog
	w := g.width
	if g.showLog {
		w -= logPanelWidth
	}
	g.scene.Camera().SetViewport(float64(w), float64(g.height))
}

func (g *Game) copyReport(id string) {
	report := g.scene.AgentDebugReport(id, 0)
	if report == "" {
		return
	}
	if err := g.copyText(report); err != nil {
		g.setStatus("copy failed: " + err.Error())
		return
	}
	g.setStatus("debug report copied")
}

func (g *Game) Update() error {
	frameMs := 1000 / float64(ebiten.TPS())

	// Handle input every frame regardless of sim speed.
	g.handleInput(frameMs)
	g.drainEvents()
	g.statusAge += frameMs

	if g.simSpeed <= 0 {
		g.scene.UpdateView(frameMs)
		return nil
	}

	// For speeds > 1 run multiple sim steps per frame.
	// For speeds < 1 accumulate fractions.
	g.tickAccum += g.simSpeed
	for g.tickAccum >= 1.0 {
		g.tickAccum -= 1.0
		g.scene.Update(frameMs)
	}
	return nil
}

// drainEvents applies every event already waiting on the feed without
// blocking the frame.
func (g *Game) drainEvents() {
	if g.events == nil {
		return
	}
	var batch []Event
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				g.events = nil
				g.scene.HandleEvents(batch)
				return
			}
			batch = append(batch, ev)
		default:
			g.scene.HandleEvents(batch)
			return
		}
	}
}

func (g *Game) handleInput(frameMs float64) {
	currentKeys := map[ebiten.Key]bool{}
	pressed := func(k ebiten.Key) bool {
		currentKeys[k] = ebiten.IsKeyPressed(k)
		return currentKeys[k] && !g.prevKeys[k]
	}

	in := InputState{}
	cx, cy := ebiten.CursorPosition()
	in.CursorX, in.CursorY = float64(cx), float64(cy)
	in.LeftPressed = inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft)
	in.LeftDown = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	in.LeftReleased = inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft)
	in.MiddlePressed = inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonMiddle)
	in.MiddleDown = ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle)
	_, in.WheelY = ebiten.Wheel()

	// Clicks on the activity panel never reach the world.
	if g.showLog && cx >= g.width-logPanelWidth {
		in.LeftPressed = false
		in.MiddlePressed = false
		in.WheelY = 0
	}

	for k, mapped := range keyMap {
		if pressed(k) {
			in.Keys = append(in.Keys, mapped)
		}
	}
	g.input.Handle(in, frameMs)

	// Camera pan: WASD or arrow keys.
	panSpeed := 6.0
	if ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		g.scene.Camera().Pan(0, panSpeed)
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		g.scene.Camera().Pan(0, -panSpeed)
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		g.scene.Camera().Pan(panSpeed, 0)
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		g.scene.Camera().Pan(-panSpeed, 0)
	}

	// H: toggle HUD key legend.
	if pressed(ebiten.KeyH) {
		g.showHUD = !g.showHUD
	}
	// I: toggle inspector raw/curated view.
	if pressed(ebiten.KeyI) {
		g.inspector.rawView = !g.inspector.rawView
	}

	// Sim speed controls: P=pause/resume, ,=slower, .=faster.
	speeds := []float64{0, 0.5, 1, 2, 4}
	if pressed(ebiten.KeyP) {
		if g.simSpeed > 0 {
			g.simSpeed = 0
		} else {
			g.simSpeed = 1
		}
	}
	if pressed(ebiten.KeyComma) {
		for i, s := range speeds {
			if s >= g.simSpeed && i > 0 {
				g.simSpeed = speeds[i-1]
				break
			}
		}
	}
	if pressed(ebiten.KeyPeriod) {
		for i, s := range speeds {
			if s > g.simSpeed {
				g.simSpeed = speeds[i]
				break
			}
		}
	}

	g.prevKeys = currentKeys
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 20, G: 16, B: 22, A: 255})
	g.scene.Render(screen)

	if g.showLog {
		g.scene.ActivityLog().Draw(screen, g.width-logPanelWidth, g.height)
	}
	if g.showHUD {
		g.drawHUD(screen)
	}
	if cam := g.scene.Camera(); cam.Zoom() != 1.0 {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("zoom: %.1fx", cam.Zoom()), 6, 6)
	}
	g.drawInspector(screen)
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	speedStr := "1x"
	switch {
	case g.simSpeed == 0:
		speedStr = "PAUSED"
	case g.simSpeed != 1:
		speedStr = fmt.Sprintf("%gx", g.simSpeed)
	}

	sc := g.scene
	lines := []string{
		fmt.Sprintf("SIM: %s  P=pause  ,/. speed", speedStr),
		fmt.Sprintf("elves: %d  deliveries: %d  belt: %d", len(sc.order), sc.seq.DeliveryCount(), len(sc.conveyor)),
	}
	if c, ok := sc.seq.Ceremony(); ok {
		lines = append(lines, "ceremony: "+c.Phase.String())
	}
	if id := sc.camera.FollowID(); id != "" {
		lines = append(lines, "following: "+id+"  Esc=release")
	}
	lines = append(lines,
		"[H] HUD  [V] activity  [I] inspector view",
		"WASD/drag=pan  scroll=zoom  F=fit  R=reset",
		"click=select  dbl-click=follow  C=copy report",
	)
	if g.status != "" && g.statusAge < statusMs {
		lines = append(lines, g.status)
	}

	// Render into hudBuf at 1x, then scale up.
	const lineH = 12 // debug font line height at 1x
	const charW = 6  // debug font char width at 1x
	const padX = 5
	const padY = 4

	maxLen := 0
	for _, l := range lines {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	boxW := float32(maxLen*charW + padX*2)
	boxH := float32(len(lines)*lineH + padY*2)

	bufH := float32(g.height / hudScale)
	bx := float32(4)
	by := bufH - boxH - 4

	g.hudBuf.Clear()
	vector.FillRect(g.hudBuf, bx, by, boxW, boxH, color.RGBA{R: 14, G: 10, B: 20, A: 210}, false)
	vector.StrokeRect(g.hudBuf, bx, by, boxW, boxH, 1.0, color.RGBA{R: 100, G: 80, B: 130, A: 180}, false)
	// Inner highlight line along top edge.
	vector.StrokeLine(g.hudBuf, bx+1, by+1, bx+boxW-1, by+1, 1.0, color.RGBA{R: 150, G: 120, B: 190, A: 80}, false)

	for i, line := range lines {
		ebitenutil.DebugPrintAt(g.hudBuf, line, int(bx)+padX, int(by)+padY+i*lineH)
	}

	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Scale(float64(hudScale), float64(hudScale))
	screen.DrawImage(g.hudBuf, opts)
}

func (g *Game) Layout(_, _ int) (int, int) {
	return g.width, g.height
}

// WindowSize returns the size the host window should open at.
func (g *Game) WindowSize() (int, int) {
	return g.width, g.height
}

package game

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Inspector panel: rendered into an offscreen buffer at 1x then blitted at inspScale.
const (
	inspScale = 2   // scale factor for inspector text rendering
	inspBufW  = 220 // buffer width in pixels (~36 chars at debug font)
	inspBufH  = 230 // buffer height in pixels
	inspPad   = 4   // padding in buffer-space pixels
	inspLineH = 13  // line height in buffer-space pixels
)

// Inspector holds the selected agent and view toggle state.
type Inspector struct {
	selected string
	rawView  bool // false = curated, true = raw dump
}

// drawInspector renders the inspector panel into an offscreen buffer at 1x,
// then blits it onto the screen at inspScale for readability.
func (g *Game) drawInspector(screen *ebiten.Image) {
	a, ok := g.scene.Agent(g.inspector.selected)
	if !ok {
		return
	}

	g.inspBuf.Clear()

	buf := g.inspBuf
	bw := float32(inspBufW)
	bh := float32(inspBufH)

	panelBg := color.RGBA{R: 16, G: 12, B: 22, A: 230}
	panelBorder := color.RGBA{R: 90, G: 70, B: 120, A: 255}
	vector.FillRect(buf, 0, 0, bw, bh, panelBg, false)
	vector.StrokeRect(buf, 0, 0, bw, bh, 1.0, panelBorder, false)
	// Inner highlight along top edge.
	vector.StrokeLine(buf, 1, 1, bw-1, 1, 1.0, color.RGBA{R: 150, G: 120, B: 190, A: 60}, false)

	lx := inspPad
	ly := inspPad

	ebitenutil.DebugPrintAt(buf, fmt.Sprintf("[ %s ]", Excerpt(a.name, 28)), lx, ly)
	ly += inspLineH + 2

	viewName := "CURATED"
	if g.inspector.rawView {
		viewName = "RAW"
	}
	ebitenutil.DebugPrintAt(buf, fmt.Sprintf("view: %s  [I] toggle", viewName), lx, ly)
	ly += inspLineH + 4

	vector.StrokeLine(buf, float32(lx), float32(ly), bw-float32(inspPad), float32(ly), 1.0, panelBorder, false)
	ly += 4

	if g.inspector.rawView {
		g.drawInspectorRaw(buf, a, lx, ly)
	} else {
		g.drawInspectorCurated(buf, a, lx, ly)
	}

	// Bottom-right of the world view, clear of the activity panel.
	right := g.width
	if g.showLog {
		right -= logPanelWidth
	}
	px := right - inspBufW*inspScale - 12
	py := g.height - inspBufH*inspScale - 8
	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Scale(float64(inspScale), float64(inspScale))
	opts.GeoM.Translate(float64(px), float64(py))
	screen.DrawImage(buf, opts)
}

// drawInspectorCurated draws the organised, human-readable inspector view.
func (g *Game) drawInspectorCurated(buf *ebiten.Image, a *Agent, lx, ly int) {
	sc := g.scene
	line := func(text string) {
		ebitenutil.DebugPrintAt(buf, text, lx, ly)
		ly += inspLineH
	}
	section := func(title string) {
		ly += 3
		ebitenutil.DebugPrintAt(buf, "-- "+title+" --", lx, ly)
		ly += inspLineH
	}

	section("NOW")
	status := "idle"
	if a.active {
		status = "working"
	}
	line(fmt.Sprintf("state: %-11s %s", a.state, status))
	if a.workAnim != AnimNone {
		line("doing: " + a.workAnim.String())
	}
	if a.carried != ItemNone {
		line("carrying: " + a.carried.String())
	}
	line("station: " + stationLabel(a.stationID))

	section("SAYING")
	if b := a.bubble; b != nil {
		for _, l := range wrapText(b.Text, 34, 3) {
			line(l)
		}
	} else {
		line("...")
	}

	section("ROUTINE")
	line(sc.sequenceLabel(a.id))
	if idle := sc.seq.IdleTime(a.id); idle > 0 {
		line(fmt.Sprintf("idle for %.1fs", idle/1000))
	}
	if sc.camera.FollowID() == a.id {
		line("camera: following")
	}
}

// drawInspectorRaw dumps every agent field verbatim.
func (g *Game) drawInspectorRaw(buf *ebiten.Image, a *Agent, lx, ly int) {
	line := func(text string) {
		ebitenutil.DebugPrintAt(buf, text, lx, ly)
		ly += inspLineH
	}

	line(fmt.Sprintf("id=%s", Excerpt(a.id, 30)))
	line(fmt.Sprintf("pos=(%.0f,%.0f) face=%s", a.pos.X, a.pos.Y, a.facing))
	line(fmt.Sprintf("tile=%v", PixelToTile(a.pos, g.scene.cfg.TileSize)))
	line(fmt.Sprintf("st=%s t=%.0f lim=%.0f", a.state, a.stateTime, a.stateLimit))
	line(fmt.Sprintf("anim=%s item=%s", a.workAnim, a.carried))
	line(fmt.Sprintf("stn=%s act=%t", a.stationID, a.active))
	line(fmt.Sprintf("hat=%s acc=%s", a.hatColor, a.accessory))
	line(fmt.Sprintf("path=%d queue=%d shake=%.1f", len(a.path), len(a.queue), a.shake))
	for i, act := range a.queue {
		if i >= 3 {
			line(fmt.Sprintf("  +%d more", len(a.queue)-3))
			break
		}
		line(fmt.Sprintf("  q%d kind=%d st=%s d=%.0f", i, act.Kind, act.State, act.Delay))
	}
	if b := a.bubble; b != nil {
		line(fmt.Sprintf("bubble=%s age=%.0f/%.0f", b.Kind, b.Elapsed, b.Max))
	}
}

// wrapText splits s into at most maxLines lines of width runes.
func wrapText(s string, width, maxLines int) []string {
	var lines []string
	cur := ""
	for _, w := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = w
		case len([]rune(cur))+1+len([]rune(w)) <= width:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
		if len(lines) == maxLines {
			break
		}
	}
	if cur != "" && len(lines) < maxLines {
		lines = append(lines, cur)
	}
	for i, l := range lines {
		lines[i] = Excerpt(l, width)
	}
	return lines
}

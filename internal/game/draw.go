package game

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

const bubbleFontSize = 9

var (
	faceOnce sync.Once
	faceSrc  *text.GoTextFaceSource
)

// bubbleFace returns the font used for speech bubbles, falling back to the
// fixed basic face if the embedded TTF cannot be parsed.
func bubbleFace() text.Face {
	faceOnce.Do(func() {
		src, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
		if err == nil {
			faceSrc = src
		}
	})
	if faceSrc == nil {
		return text.NewGoXFace(basicfont.Face7x13)
	}
	return &text.GoTextFace{Source: faceSrc, Size: bubbleFontSize}
}

var hatPalette = []color.RGBA{
	{R: 200, G: 50, B: 60, A: 255},
	{R: 40, G: 140, B: 80, A: 255},
	{R: 60, G: 100, B: 200, A: 255},
	{R: 210, G: 150, B: 40, A: 255},
	{R: 140, G: 70, B: 180, A: 255},
	{R: 30, G: 160, B: 170, A: 255},
}

// parseHexColor parses "#rgb" or "#rrggbb".
func parseHexColor(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

// hatColorOf picks the configured hat colour or a stable palette entry.
func hatColorOf(a *Agent) color.RGBA {
	if c, ok := parseHexColor(a.hatColor); ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(a.id))
	return hatPalette[h.Sum32()%uint32(len(hatPalette))]
}

// Render draws the scene onto dst through the camera transform.
func (sc *Scene) Render(dst *ebiten.Image) {
	w, h := sc.WorldSize()
	if sc.worldBuf == nil {
		sc.worldBuf = ebiten.NewImage(int(w), int(h))
	}
	sc.worldBuf.Clear()
	sc.drawWorld(sc.worldBuf)

	op := &ebiten.DrawImageOptions{GeoM: sc.camera.GeoM()}
	dst.DrawImage(sc.worldBuf, op)
}

func (sc *Scene) drawWorld(dst *ebiten.Image) {
	ts := sc.cfg.TileSize
	w, h := sc.WorldSize()

	vector.FillRect(dst, 0, 0, float32(w), float32(h), color.RGBA{R: 92, G: 70, B: 52, A: 255}, false)
	wall := color.RGBA{R: 52, G: 40, B: 34, A: 255}
	for row := 0; row < sc.nav.Rows(); row++ {
		for col := 0; col < sc.nav.Cols(); col++ {
			if !sc.nav.IsStaticWalkable(col, row) {
				vector.FillRect(dst, float32(col*ts), float32(row*ts), float32(ts), float32(ts), wall, false)
			}
		}
	}
	drawGridOffset(dst, 0, 0, int(w), int(h), ts, color.NRGBA{R: 255, G: 255, B: 255, A: 14})

	for _, ar := range sc.cfg.Areas {
		b := ar.Bounds
		vector.FillRect(dst, float32(b.X), float32(b.Y), float32(b.W), float32(b.H), color.NRGBA{R: 70, G: 90, B: 120, A: 90}, false)
		vector.StrokeRect(dst, float32(b.X), float32(b.Y), float32(b.W), float32(b.H), 1, color.NRGBA{R: 150, G: 180, B: 220, A: 160}, false)
		label := ar.Label
		if label == "" {
			label = ar.Kind.String()
		}
		ebitenutil.DebugPrintAt(dst, label, int(b.X)+3, int(b.Y)+2)
	}

	for _, s := range sc.stations.All() {
		b := s.Bounds
		fill := color.RGBA{R: 150, G: 110, B: 70, A: 255}
		if !s.Free() {
			fill = color.RGBA{R: 170, G: 130, B: 80, A: 255}
		}
		vector.FillRect(dst, float32(b.X), float32(b.Y), float32(b.W), float32(b.H), fill, false)
		vector.StrokeRect(dst, float32(b.X), float32(b.Y), float32(b.W), float32(b.H), 1, color.RGBA{R: 60, G: 40, B: 20, A: 255}, false)
		ebitenutil.DebugPrintAt(dst, s.Name, int(b.X)+2, int(b.Y)-14)
	}

	for _, c := range sc.cfg.Cots {
		p := TileToPixel(c, ts)
		half := float32(ts) / 2
		vector.FillRect(dst, float32(p.X)-half+2, float32(p.Y)-half/2, float32(ts)-4, half, color.RGBA{R: 120, G: 150, B: 200, A: 255}, false)
	}

	sc.drawConveyor(dst)
	sc.drawDoor(dst)

	for _, a := range sc.order {
		sc.drawAgent(dst, a)
	}
	sc.particles.Draw(dst)
	sc.drawSpeechBubbles(dst)
}

func (sc *Scene) drawConveyor(dst *ebiten.Image) {
	from, to := sc.cfg.ConveyorFrom, sc.cfg.ConveyorTo
	if from == to {
		return
	}
	belt := color.RGBA{R: 60, G: 60, B: 66, A: 255}
	vector.StrokeLine(dst, float32(from.X), float32(from.Y), float32(to.X), float32(to.Y), 8, belt, false)
	for _, it := range sc.conveyor {
		x := from.X + (to.X-from.X)*it.Progress
		y := from.Y + (to.Y-from.Y)*it.Progress
		vector.FillRect(dst, float32(x)-4, float32(y)-4, 8, 8, color.RGBA{R: 235, G: 215, B: 150, A: 255}, false)
	}
}

func (sc *Scene) drawDoor(dst *ebiten.Image) {
	ts := float32(sc.cfg.TileSize)
	p := TileToPixel(sc.cfg.Door, sc.cfg.TileSize)
	x, y := float32(p.X)-ts/2, float32(p.Y)-ts/2
	vector.FillRect(dst, x, y, ts, ts, color.RGBA{R: 30, G: 24, B: 20, A: 255}, false)
	// The leaf slides aside as the door opens.
	leaf := ts * (1 - float32(sc.door.Progress()))
	vector.FillRect(dst, x, y, leaf, ts, color.RGBA{R: 130, G: 80, B: 40, A: 255}, false)
}

func (sc *Scene) drawAgent(dst *ebiten.Image, a *Agent) {
	x := float32(a.pos.X + a.shake)
	y := float32(a.pos.Y)

	// Bob while working or celebrating.
	switch a.state {
	case StateWorking:
		y -= float32(math.Abs(math.Sin(a.stateTime/180))) * 2
	case StateCelebrating:
		y -= float32(math.Abs(math.Sin(a.stateTime/120))) * 6
	}

	body := color.RGBA{R: 80, G: 160, B: 90, A: 255}
	switch a.state {
	case StateError:
		body = color.RGBA{R: 210, G: 70, B: 70, A: 255}
	case StatePermission, StateWaiting:
		body = color.RGBA{R: 220, G: 190, B: 70, A: 255}
	}

	if a.state == StateSleeping {
		vector.FillRect(dst, x-agentRadius, y-agentRadius/2, agentRadius*2, agentRadius, body, true)
		return
	}

	vector.FillCircle(dst, x, y+2, agentRadius*0.55, color.RGBA{A: 60}, true) // shadow
	vector.FillCircle(dst, x, y, agentRadius*0.7, body, true)

	hat := hatColorOf(a)
	var path vector.Path
	path.MoveTo(x-agentRadius*0.7, y-agentRadius*0.4)
	path.LineTo(x+agentRadius*0.7, y-agentRadius*0.4)
	path.LineTo(x, y-agentRadius*1.6)
	path.Close()
	hatOpts := &vector.DrawPathOptions{AntiAlias: true}
	hatOpts.ColorScale.ScaleWithColor(hat)
	vector.FillPath(dst, &path, &vector.FillOptions{}, hatOpts)

	// Eyes show the facing.
	ex, ey := float32(0), float32(0)
	switch a.facing {
	case FacingLeft:
		ex = -2
	case FacingRight:
		ex = 2
	case FacingUp:
		ey = -2
	case FacingDown:
		ey = 1
	}
	if a.facing != FacingUp {
		eye := color.RGBA{R: 20, G: 20, B: 20, A: 255}
		vector.FillCircle(dst, x-2+ex, y-1+ey, 1, eye, false)
		vector.FillCircle(dst, x+2+ex, y-1+ey, 1, eye, false)
	}

	if a.carried != ItemNone {
		vector.FillRect(dst, x+agentRadius*0.5, y-2, 5, 4, color.RGBA{R: 250, G: 245, B: 230, A: 255}, false)
	}
	if a.id == sc.selected {
		vector.StrokeCircle(dst, x, y, agentRadius+3, 1.5, color.NRGBA{R: 255, G: 255, B: 255, A: 200}, true)
	}
}

// agentLabel is the short name line drawn in the HUD.
func agentLabel(a *Agent) string {
	if a.workAnim != AnimNone {
		return fmt.Sprintf("%s (%s: %s)", a.name, a.state, a.workAnim)
	}
	return fmt.Sprintf("%s (%s)", a.name, a.state)
}

func drawGridOffset(screen *ebiten.Image, offX, offY, w, h, spacing int, c color.Color) {
	if spacing <= 0 {
		return
	}
	ox, oy := float32(offX), float32(offY)
	for x := 0; x <= w; x += spacing {
		xf := ox + float32(x)
		vector.StrokeLine(screen, xf, oy, xf, oy+float32(h), 1.0, c, false)
	}
	for y := 0; y <= h; y += spacing {
		yf := oy + float32(y)
		vector.StrokeLine(screen, ox, yf, ox+float32(w), yf, 1.0, c, false)
	}
}

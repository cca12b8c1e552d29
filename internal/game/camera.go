package game

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	camMinZoom    = 0.5
	camMaxZoom    = 3.0
	camZoomStep   = 0.15
	camSmoothTau  = 90.0 // ms; time constant of the exponential smoothing
	camFitPadding = 64.0 // world pixels around the fitted bounding box
	camSnapEps    = 1e-4
)

// Camera maps world pixels to the viewport. (x, y) is the world point at
// the viewport centre:
//
//	screen = (world - cam) * zoom + viewport/2
//
// Callers move only the target; Update eases the current values toward it.
type Camera struct {
	x, y, zoom    float64
	tx, ty, tzoom float64

	vpW, vpH float64
	homeX    float64
	homeY    float64
	followID string
}

// NewCamera creates a camera centred on (homeX, homeY) at zoom 1.
func NewCamera(vpW, vpH, homeX, homeY float64) *Camera {
	return &Camera{
		x: homeX, y: homeY, zoom: 1,
		tx: homeX, ty: homeY, tzoom: 1,
		vpW: vpW, vpH: vpH,
		homeX: homeX, homeY: homeY,
	}
}

func (c *Camera) X() float64 { return c.x }
func (c *Camera) Y() float64 { return c.y }
func (c *Camera) Zoom() float64 { return c.zoom }
func (c *Camera) FollowID() string { return c.followID }
func (c *Camera) Viewport() (w, h float64) { return c.vpW, c.vpH }

// Target returns the values the camera is easing toward.
func (c *Camera) Target() (x, y, zoom float64) { return c.tx, c.ty, c.tzoom }

// SetViewport updates the viewport size after a window resize.
func (c *Camera) SetViewport(w, h float64) {
	if w > 0 && h > 0 {
		c.vpW, c.vpH = w, h
	}
}

func clampZoom(z float64) float64 {
	return math.Max(camMinZoom, math.Min(camMaxZoom, z))
}

// Update re-aims at the follow target, then smooths toward the target with
// a frame-rate independent factor. lookup resolves an agent id to its live
// position; a vanished follow target is released.
func (c *Camera) Update(dtMs float64, lookup func(id string) (Vec2, bool)) {
	if c.followID != "" {
		if p, ok := lookup(c.followID); ok {
			c.tx, c.ty = p.X, p.Y
		} else {
			c.followID = ""
		}
	}
	if dtMs <= 0 {
		return
	}
	k := 1 - math.Exp(-dtMs/camSmoothTau)
	c.x += (c.tx - c.x) * k
	c.y += (c.ty - c.y) * k
	c.zoom += (c.tzoom - c.zoom) * k
	if math.Abs(c.tx-c.x) < camSnapEps && math.Abs(c.ty-c.y) < camSnapEps && math.Abs(c.tzoom-c.zoom) < camSnapEps {
		c.Snap()
	}
}

// Snap jumps the current values to the target.
func (c *Camera) Snap() {
	c.x, c.y, c.zoom = c.tx, c.ty, c.tzoom
}

// ZoomToward steps the target zoom in (dir > 0) or out (dir < 0), keeping
// the world point under screen position (sx, sy) fixed.
func (c *Camera) ZoomToward(dir, sx, sy float64) {
	if dir == 0 {
		return
	}
	step := camZoomStep
	if dir < 0 {
		step = -step
	}
	wx := (sx-c.vpW/2)/c.tzoom + c.tx
	wy := (sy-c.vpH/2)/c.tzoom + c.ty
	c.tzoom = clampZoom(c.tzoom + step)
	c.tx = wx - (sx-c.vpW/2)/c.tzoom
	c.ty = wy - (sy-c.vpH/2)/c.tzoom
}

// Pan moves the view by a screen-space drag delta and releases follow.
func (c *Camera) Pan(dx, dy float64) {
	wx, wy := dx/c.zoom, dy/c.zoom
	c.x -= wx
	c.y -= wy
	c.tx -= wx
	c.ty -= wy
	c.followID = ""
}

// FitAll frames every point with padding, clamped to the zoom limits.
func (c *Camera) FitAll(points []Vec2) {
	if len(points) == 0 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	w := maxX - minX + 2*camFitPadding
	h := maxY - minY + 2*camFitPadding
	c.tzoom = clampZoom(math.Min(c.vpW/w, c.vpH/h))
	c.tx = (minX + maxX) / 2
	c.ty = (minY + maxY) / 2
	c.followID = ""
}

// Follow keeps the target on agent id until released.
func (c *Camera) Follow(id string) { c.followID = id }

// ClearFollow releases the follow target.
func (c *Camera) ClearFollow() { c.followID = "" }

// Reset eases back to the home position at zoom 1.
func (c *Camera) Reset() {
	c.tx, c.ty, c.tzoom = c.homeX, c.homeY, 1
	c.followID = ""
}

// FocusOn eases toward world point (x, y) at the given zoom.
func (c *Camera) FocusOn(x, y, zoom float64) {
	c.tx, c.ty = x, y
	c.tzoom = clampZoom(zoom)
	c.followID = ""
}

// WorldToScreen converts a world position using the current values.
func (c *Camera) WorldToScreen(p Vec2) Vec2 {
	return Vec2{(p.X-c.x)*c.zoom + c.vpW/2, (p.Y-c.y)*c.zoom + c.vpH/2}
}

// ScreenToWorld is the exact inverse of WorldToScreen.
func (c *Camera) ScreenToWorld(s Vec2) Vec2 {
	return Vec2{(s.X-c.vpW/2)/c.zoom + c.x, (s.Y-c.vpH/2)/c.zoom + c.y}
}

// GeoM returns the world-to-screen transform for ebiten draw calls.
func (c *Camera) GeoM() ebiten.GeoM {
	var m ebiten.GeoM
	m.Translate(-c.x, -c.y)
	m.Scale(c.zoom, c.zoom)
	m.Translate(c.vpW/2, c.vpH/2)
	return m
}

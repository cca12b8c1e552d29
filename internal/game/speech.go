package game

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// ellipsis marks a truncated bubble excerpt.
const ellipsis = "…"

// bubblePopSeconds is how long a new bubble takes to scale in.
const bubblePopSeconds = 0.18

// BubbleKind selects the styling of a speech bubble.
type BubbleKind int

const (
	BubbleSpeech BubbleKind = iota
	BubbleThought
	BubbleTool
	BubbleChat
	BubbleError
	BubblePermission
	BubbleStatus
)

func (k BubbleKind) String() string {
	switch k {
	case BubbleThought:
		return "thought"
	case BubbleTool:
		return "tool"
	case BubbleChat:
		return "chat"
	case BubbleError:
		return "error"
	case BubblePermission:
		return "permission"
	case BubbleStatus:
		return "status"
	default:
		return "speech"
	}
}

// SpeechBubble holds an active speech line above an agent.
type SpeechBubble struct {
	Text    string
	Kind    BubbleKind
	Elapsed float64 // ms
	Max     float64 // ms

	pop   *gween.Tween
	scale float32
}

func newSpeechBubble(text string, kind BubbleKind, maxMs float64) *SpeechBubble {
	return &SpeechBubble{
		Text:  text,
		Kind:  kind,
		Max:   maxMs,
		pop:   gween.New(0.4, 1, bubblePopSeconds, ease.OutBack),
		scale: 0.4,
	}
}

// advance ages the bubble and reports whether it has expired.
func (b *SpeechBubble) advance(dtMs float64) bool {
	b.Elapsed += dtMs
	if b.pop != nil {
		v, done := b.pop.Update(float32(dtMs / 1000))
		b.scale = v
		if done {
			b.pop = nil
			b.scale = 1
		}
	}
	return b.Elapsed >= b.Max
}

// Remaining returns the ms left before the bubble disappears.
func (b *SpeechBubble) Remaining() float64 {
	return b.Max - b.Elapsed
}

// alpha fades the bubble out over the final 30% of its lifetime.
func (b *SpeechBubble) alpha() float32 {
	if b.Max <= 0 {
		return 0
	}
	progress := b.Elapsed / b.Max
	if progress <= 0.70 {
		return 1
	}
	return float32(1 - (progress-0.70)/0.30)
}

// Excerpt collapses whitespace and bounds s to max runes, ending truncated
// text with an ellipsis.
func Excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := max - utf8.RuneCountInString(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " ") + ellipsis
}

// bubbleAccent maps a bubble kind to its stripe colour.
func bubbleAccent(k BubbleKind) color.RGBA {
	switch k {
	case BubbleThought:
		return color.RGBA{R: 150, G: 130, B: 230, A: 255}
	case BubbleTool:
		return color.RGBA{R: 255, G: 150, B: 60, A: 255}
	case BubbleChat:
		return color.RGBA{R: 80, G: 170, B: 255, A: 255}
	case BubbleError:
		return color.RGBA{R: 235, G: 70, B: 70, A: 255}
	case BubblePermission:
		return color.RGBA{R: 255, G: 210, B: 60, A: 255}
	case BubbleStatus:
		return color.RGBA{R: 110, G: 200, B: 120, A: 255}
	default:
		return color.RGBA{R: 200, G: 200, B: 200, A: 255}
	}
}

// drawSpeechBubbles renders active speech bubbles above each agent in
// world space.
func (sc *Scene) drawSpeechBubbles(dst *ebiten.Image) {
	face := bubbleFace()
	const padX, padY = 5, 3

	for _, a := range sc.order {
		b := a.bubble
		if b == nil {
			continue
		}
		alpha := b.alpha()
		if alpha < 0.05 {
			continue
		}
		tw, th := text.Measure(b.Text, face, 0)
		bgW := float32(tw)*b.scale + padX*2
		bgH := float32(th)*b.scale + padY*2

		sx := float32(a.pos.X + a.shake)
		bgX := sx - bgW/2
		bgY := float32(a.pos.Y) - agentRadius - bgH - 10

		bg := color.RGBA{R: 250, G: 248, B: 240, A: uint8(230 * alpha)}
		if b.Kind == BubbleThought {
			bg = color.RGBA{R: 236, G: 232, B: 255, A: uint8(220 * alpha)}
		}
		vector.FillRect(dst, bgX, bgY, bgW, bgH, bg, false)

		accent := bubbleAccent(b.Kind)
		accent.A = uint8(float32(accent.A) * alpha)
		vector.FillRect(dst, bgX, bgY, 3, bgH, accent, false)
		vector.StrokeRect(dst, bgX, bgY, bgW, bgH, 0.75,
			color.RGBA{R: 60, G: 60, B: 60, A: uint8(160 * alpha)}, false)

		// Tail pointing at the agent.
		vector.StrokeLine(dst, sx, bgY+bgH, sx, float32(a.pos.Y)-agentRadius-2,
			1, color.RGBA{R: 60, G: 60, B: 60, A: uint8(140 * alpha)}, false)

		op := &text.DrawOptions{}
		op.GeoM.Scale(float64(b.scale), float64(b.scale))
		op.GeoM.Translate(float64(bgX+padX+1), float64(bgY+padY))
		op.ColorScale.ScaleWithColor(color.RGBA{R: 30, G: 30, B: 36, A: 255})
		op.ColorScale.ScaleAlpha(alpha)
		text.Draw(dst, b.Text, face, op)
	}
}

package game

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	logPanelWidth = 320
	logMaxEntries = 60
	logLineHeight = 11
	logLineChars  = 50 // DebugPrint glyphs are 6px wide
)

// ThoughtEntry is a single line in the activity log.
type ThoughtEntry struct {
	ClockMs float64
	Label   string // agent display name
	Kind    string // event kind or sequence name
	Message string
}

// ThoughtLog is a ring buffer of agent activity rendered on-screen.
type ThoughtLog struct {
	entries []ThoughtEntry
	head    int
	count   int
}

// NewThoughtLog creates a thought log with a fixed capacity.
func NewThoughtLog() *ThoughtLog {
	return &ThoughtLog{
		entries: make([]ThoughtEntry, logMaxEntries),
	}
}

// Add appends an entry to the log.
func (tl *ThoughtLog) Add(clockMs float64, label, kind, msg string) {
	tl.entries[tl.head] = ThoughtEntry{
		ClockMs: clockMs,
		Label:   label,
		Kind:    kind,
		Message: msg,
	}
	tl.head = (tl.head + 1) % logMaxEntries
	if tl.count < logMaxEntries {
		tl.count++
	}
}

// Recent returns entries in chronological order (oldest first).
func (tl *ThoughtLog) Recent() []ThoughtEntry {
	result := make([]ThoughtEntry, tl.count)
	for i := 0; i < tl.count; i++ {
		idx := (tl.head - tl.count + i + logMaxEntries) % logMaxEntries
		result[i] = tl.entries[idx]
	}
	return result
}

// Len returns the number of retained entries.
func (tl *ThoughtLog) Len() int { return tl.count }

// Draw renders the activity panel on the right side of the screen.
func (tl *ThoughtLog) Draw(screen *ebiten.Image, panelX int, panelH int) {
	// Panel background.
	vector.FillRect(screen, float32(panelX), 0, float32(logPanelWidth), float32(panelH), color.RGBA{R: 18, G: 16, B: 24, A: 240}, false)
	// Left separator line.
	vector.StrokeLine(screen, float32(panelX), 0, float32(panelX), float32(panelH), 1.0, color.RGBA{R: 70, G: 60, B: 90, A: 255}, false)

	// Title bar background.
	vector.FillRect(screen, float32(panelX), 0, float32(logPanelWidth), 16, color.RGBA{R: 34, G: 28, B: 48, A: 255}, false)
	ebitenutil.DebugPrintAt(screen, "WORKSHOP ACTIVITY", panelX+8, 2)
	// Title separator.
	vector.StrokeLine(screen, float32(panelX), 16, float32(panelX+logPanelWidth), 16, 1.0, color.RGBA{R: 90, G: 70, B: 120, A: 200}, false)

	entries := tl.Recent()

	// Draw from bottom up so newest is at bottom.
	maxVisible := (panelH - 24) / logLineHeight
	startIdx := 0
	if len(entries) > maxVisible {
		startIdx = len(entries) - maxVisible
	}

	visible := entries[startIdx:]
	recent := 3 // how many latest entries to highlight

	y := 20
	for i, e := range visible {
		if i >= len(visible)-recent {
			vector.FillRect(screen, float32(panelX+2), float32(y), float32(logPanelWidth-4), float32(logLineHeight), color.RGBA{R: 44, G: 36, B: 60, A: 160}, false)
		}
		vector.FillRect(screen, float32(panelX+5), float32(y+3), 3, 5, kindColor(e.Kind), false)

		secs := int(e.ClockMs / 1000)
		line := fmt.Sprintf("%02d:%02d %s %s", secs/60, secs%60, e.Label, e.Message)
		ebitenutil.DebugPrintAt(screen, Excerpt(line, logLineChars), panelX+12, y)
		y += logLineHeight
	}
}

// kindColor tints the marker dot by activity kind.
func kindColor(kind string) color.RGBA {
	switch kind {
	case "error":
		return color.RGBA{R: 230, G: 70, B: 70, A: 255}
	case "tool_call", "file_change":
		return color.RGBA{R: 255, G: 150, B: 60, A: 255}
	case "thinking":
		return color.RGBA{R: 150, G: 130, B: 230, A: 255}
	case "chat", "delivery":
		return color.RGBA{R: 80, G: 170, B: 255, A: 255}
	case "ceremony", "task_update":
		return color.RGBA{R: 110, G: 200, B: 120, A: 255}
	default:
		return color.RGBA{R: 170, G: 170, B: 170, A: 255}
	}
}

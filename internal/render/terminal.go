// Package render provides avatar renderers: a terminal view, a websocket
// broadcast hub for browser avatars, and a fan-out combinator.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/sign"
)

// Border colors: amber flags an uncertain translation.
var (
	ColorNeutral   = lipgloss.Color("#888888")
	ColorUncertain = lipgloss.Color("#F59E0B")
	ColorRole      = lipgloss.Color("#10B981")
	ColorMotion    = lipgloss.Color("#8B5CF6")
)

// defaultHand is drawn for a hand with no specified shape.
const defaultHand = "5"

// Terminal draws each distinct frame as a bordered card. Repeated renders of
// the same frame are skipped, so it can sit behind a 60Hz scheduler.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	last  string
	drawn bool

	card      lipgloss.Style
	gloss     lipgloss.Style
	semantic  lipgloss.Style
	role      lipgloss.Style
	motion    lipgloss.Style
	uncertain lipgloss.Style
}

var _ playback.Renderer = (*Terminal)(nil)

// NewTerminal writes cards to w.
func NewTerminal(w io.Writer) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		w: w,
		card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNeutral).
			Padding(0, 1).
			Width(36),
		gloss:     r.NewStyle().Bold(true),
		semantic:  r.NewStyle().Faint(true),
		role:      r.NewStyle().Foreground(ColorRole),
		motion:    r.NewStyle().Foreground(ColorMotion),
		uncertain: r.NewStyle().Foreground(ColorUncertain),
	}
}

// Render implements playback.Renderer.
func (t *Terminal) Render(frame *sign.Frame, uncertain bool) {
	key := frameKey(frame, uncertain)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn && key == t.last {
		return
	}
	t.last, t.drawn = key, true

	fmt.Fprintln(t.w, t.View(frame, uncertain))
}

// View returns the card for frame without writing it.
func (t *Terminal) View(frame *sign.Frame, uncertain bool) string {
	card := t.card
	if uncertain {
		card = card.BorderForeground(ColorUncertain)
	}
	if frame == nil {
		return card.Render(t.semantic.Render("(idle)"))
	}

	lines := []string{
		t.gloss.Render(frame.Gloss) + "  " + t.semantic.Render("["+frame.Semantic+"]"),
	}

	head := string(frame.NMM.Head)
	if frame.NMM.Head != sign.HeadStill && frame.NMM.Head != "" {
		head = t.motion.Render(head)
	}
	face := fmt.Sprintf("brows %s  head %s", frame.NMM.Brows, head)
	if frame.NMM.Mouth != "" {
		face += "  mouth " + frame.NMM.Mouth
	}
	lines = append(lines, face)

	hands := fmt.Sprintf("hands L:%s R:%s", handOrDefault(frame.Handshape.Left), handOrDefault(frame.Handshape.Right))
	if frame.Location != "" {
		hands += "  @" + frame.Location
	}
	lines = append(lines, hands)

	if frame.RoleShift != "" {
		lines = append(lines, t.role.Render("role: "+frame.RoleShift))
	}
	if frame.Fingerspell != "" {
		lines = append(lines, "spell: "+frame.Fingerspell)
	}
	if uncertain {
		lines = append(lines, t.uncertain.Render("? uncertain"))
	}
	return card.Render(strings.Join(lines, "\n"))
}

func handOrDefault(h string) string {
	if h == "" {
		return defaultHand
	}
	return h
}

func frameKey(frame *sign.Frame, uncertain bool) string {
	if frame == nil {
		return fmt.Sprintf("idle|%t", uncertain)
	}
	return fmt.Sprintf("%+v|%t", *frame, uncertain)
}

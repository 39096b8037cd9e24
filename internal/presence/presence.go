// Package presence shows what is currently playing.
package presence

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/himanishpuri/songid/internal/recognize"
)

// Presence receives the result of every listen cycle.
type Presence interface {
	Update(song *recognize.Song)
	Clear()
}

// Theme holds the colors used by the terminal card.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

type styles struct {
	card   lipgloss.Style
	title  lipgloss.Style
	artist lipgloss.Style
	dim    lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
		title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		artist: lipgloss.NewStyle().Bold(true),
		dim:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Terminal prints a now-playing card whenever the track changes and a single
// idle line when playback stops.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	styles  styles
	now     func() time.Time
	current string
	idle    bool
}

func NewTerminal(w io.Writer) *Terminal {
	return NewTerminalWithTheme(w, DefaultTheme)
}

func NewTerminalWithTheme(w io.Writer, t Theme) *Terminal {
	return &Terminal{w: w, styles: newStyles(t), now: time.Now}
}

func (t *Terminal) Update(song *recognize.Song) {
	if song == nil {
		t.Clear()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.idle = false
	if song.TrackKey != "" && song.TrackKey == t.current {
		pos, ok := song.Position(t.now())
		if ok {
			fmt.Fprintln(t.w, t.styles.dim.Render("  still playing, "+clock(pos)))
		}
		return
	}
	t.current = song.TrackKey
	fmt.Fprintln(t.w, t.card(song))
}

func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.idle {
		return
	}
	t.idle = true
	t.current = ""
	fmt.Fprintln(t.w, t.styles.dim.Render("Nothing playing"))
}

// Card renders song as a bordered block.
func Card(song *recognize.Song, now time.Time) string {
	return newStyles(DefaultTheme).render(song, now)
}

func (t *Terminal) card(song *recognize.Song) string {
	return t.styles.render(song, t.now())
}

func (s styles) render(song *recognize.Song, now time.Time) string {
	lines := []string{
		s.title.Render(song.Title),
		s.artist.Render(song.Artist),
	}

	var meta []string
	if song.Album != "" {
		meta = append(meta, song.Album)
	}
	if song.Released != "" {
		meta = append(meta, song.Released)
	}
	if song.Genre != "" {
		meta = append(meta, song.Genre)
	}
	if len(meta) > 0 {
		lines = append(lines, s.dim.Render(strings.Join(meta, " · ")))
	}
	if pos, ok := song.Position(now); ok {
		lines = append(lines, s.dim.Render("at "+clock(pos)))
	}
	if song.CoverArt != "" {
		lines = append(lines, s.dim.Render(song.CoverArt))
	}

	return s.card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func clock(d time.Duration) string {
	sec := int(d / time.Second)
	if sec >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", sec/3600, sec/60%60, sec%60)
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

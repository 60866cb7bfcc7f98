// Package sectorview draws a full-screen map of the loader file's sectors
// while an installation runs.
//
// The view only renders what it is told through the install.Progress
// methods. Keys are read and discarded; the installation cannot be stopped
// from the terminal once it has started.
package sectorview

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/mapcollab/syslinux/install"
)

const (
	glyphStaged    = '░'
	glyphPatched   = '▒'
	glyphRewritten = '█'
)

// rows below the map: phase header, phases, status header, status lines
const footerRows = 7

type cell uint8

const (
	cellStaged cell = iota
	cellPatched
	cellRewritten
)

// View is an install.Progress that renders to a terminal screen.
type View struct {
	mu      sync.Mutex
	s       tcell.Screen
	restore bool
	title   string

	phase   install.Phase
	running bool
	done    map[install.Phase]bool

	sectors   []uint64
	cells     []cell
	current   int
	rewritten int
}

var _ install.Progress = (*View)(nil)

// New opens the controlling terminal.
func New(title string) (*View, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	v, err := NewWithScreen(s, title)
	if err != nil {
		return nil, err
	}
	v.restore = true
	return v, nil
}

// NewWithScreen draws on s, which must not be initialized yet.
func NewWithScreen(s tcell.Screen, title string) (*View, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	v := &View{
		s:     s,
		title: title,
		done:  make(map[install.Phase]bool),
	}
	go v.eventLoop(s)
	v.mu.Lock()
	v.draw()
	v.mu.Unlock()
	return v, nil
}

// Close restores the terminal. It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	s := v.s
	v.s = nil
	v.mu.Unlock()
	if s == nil {
		return
	}
	s.PostEvent(tcell.NewEventInterrupt(nil))
	s.Fini()
	if v.restore {
		fmt.Print("\033[?1049l\033[?25h")
	}
}

func (v *View) Phase(p install.Phase, done bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.phase = p
	v.running = !done
	if done {
		v.done[p] = true
	}
	v.draw()
}

func (v *View) Mapped(sectors []uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sectors = append([]uint64(nil), sectors...)
	v.cells = make([]cell, len(sectors))
	v.draw()
}

func (v *View) Patched(count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := 0; i < count && i < len(v.cells); i++ {
		v.cells[i] = cellPatched
	}
	v.draw()
}

func (v *View) Rewritten(i int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.cells) {
		return
	}
	if v.cells[i] != cellRewritten {
		v.rewritten++
	}
	v.cells[i] = cellRewritten
	v.current = i
	v.draw()
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		if x+i >= w {
			break
		}
		s.SetContent(x+i, y, r, nil, tcell.StyleDefault)
	}
}

// mapLines lays cells out row by row, w to a row, in at most rows rows.
// When the cells do not fit the window scrolls to keep current visible.
func mapLines(cells []cell, w, rows, current int) []string {
	if len(cells) == 0 || w <= 0 || rows <= 0 {
		return nil
	}
	// scroll whole rows so a sector keeps its column
	start := 0
	if n := (len(cells) + w - 1) / w; n > rows {
		top := min(max(current/w-rows+1, 0), n-rows)
		start = top * w
	}

	var lines []string
	for row := 0; row < rows; row++ {
		var b strings.Builder
		for col := 0; col < w; col++ {
			idx := start + row*w + col
			if idx >= len(cells) {
				break
			}
			switch cells[idx] {
			case cellRewritten:
				b.WriteRune(glyphRewritten)
			case cellPatched:
				b.WriteRune(glyphPatched)
			default:
				b.WriteRune(glyphStaged)
			}
		}
		if b.Len() == 0 {
			break
		}
		lines = append(lines, b.String())
	}
	return lines
}

func (v *View) statusLines() []string {
	lines := []string{"Current: " + v.phase.String()}
	if !v.running && v.done[v.phase] {
		lines[0] += " (done)"
	}
	if len(v.sectors) > 0 {
		lines = append(lines,
			fmt.Sprintf("Sectors: %d   First LBA: %d   Last LBA: %d", len(v.sectors), v.sectors[0], v.sectors[len(v.sectors)-1]),
			fmt.Sprintf("Rewritten: %d / %d", v.rewritten, len(v.sectors)))
	}
	return lines
}

// draw redraws the whole screen. v.mu must be held.
func (v *View) draw() {
	if v.s == nil {
		return
	}
	s := v.s
	s.Clear()
	w, h := s.Size()
	y := 0

	putStr(s, 0, y, strings.Repeat("═", w))
	putStr(s, (w-len([]rune(v.title)))/2, y, v.title)
	y++
	putStr(s, 0, y, fmt.Sprintf("%c staged  %c patched  %c rewritten", glyphStaged, glyphPatched, glyphRewritten))
	y++

	rows := h - y - footerRows
	if rows < 1 {
		rows = 1
	}
	for _, line := range mapLines(v.cells, w, rows, v.current) {
		putStr(s, 0, y, line)
		y++
	}

	putStr(s, 0, y, strings.Repeat("─", w))
	putStr(s, 2, y, " Phase ")
	y++
	var b strings.Builder
	for i, p := range install.Phases() {
		if i > 0 {
			b.WriteByte(' ')
		}
		mark := ' '
		if v.done[p] {
			mark = '✓'
		}
		fmt.Fprintf(&b, "[%c]%s", mark, p)
	}
	putStr(s, 0, y, b.String())
	y++

	putStr(s, 0, y, strings.Repeat("─", w))
	putStr(s, 2, y, " Status ")
	y++
	for _, line := range v.statusLines() {
		if y >= h {
			break
		}
		putStr(s, 0, y, line)
		y++
	}
	s.Show()
}

func (v *View) eventLoop(s tcell.Screen) {
	for {
		switch s.PollEvent().(type) {
		case *tcell.EventResize:
			v.mu.Lock()
			if v.s != nil {
				v.s.Sync()
				v.draw()
			}
			v.mu.Unlock()
		case *tcell.EventInterrupt, nil:
			return
		}
	}
}

package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rephrase/overlay"
)

// palette holds pre-rendered half-block styles so the render loop never
// allocates. Index 0 is transparent.
type palette struct {
	fg [16]lipgloss.Style
	bg [16][16]lipgloss.Style
}

func newPalette(colors []string) *palette {
	p := &palette{}
	for i, fg := range colors {
		if fg == "" {
			continue
		}
		p.fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
		for j, bg := range colors {
			if bg != "" {
				p.bg[i][j] = p.fg[i].Background(lipgloss.Color(bg))
			}
		}
	}
	return p
}

var (
	paletteListening = newPalette([]string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"})
	paletteBusy      = newPalette([]string{"", "231", "229", "222", "215", "208", "172", "130", "94", "58", "236", "236", "236", "236", "255", "249"})
	paletteIdle      = newPalette([]string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"})
	paletteError     = newPalette([]string{"", "252", "248", "245", "242", "239", "238", "237", "236", "235", "234", "234", "234", "234", "250", "245"})
)

type ring struct {
	radius     float64
	breatheAmt float64
	colorIdx   int
}

var eyeRings = []ring{
	{0.6, 0.10, 1},
	{1.3, 0.12, 2},
	{2.0, 0.15, 3},
	{2.8, 0.35, 4},
	{3.5, 0.40, 5},
	{4.2, 0.38, 6},
	{5.0, 0.30, 7},
	{5.8, 0.15, 8},
	{6.5, 0.03, 9},
	{7.2, 0.0, 10},
	{8.0, 0.0, 11},
	{10.0, 0.0, 12},
	{12.0, 0.0, 13},
}

// glint is a glass reflection drawn as an ellipse tangent to its radius.
type glint struct {
	ox, oy float64
	radius float64
	color  int
}

var eyeGlints = func() []glint {
	const d, d2, top, top2 = 9.0, 7.2, 10.0, 8.2
	const diag = 0.707
	return []glint{
		{-d * diag, -d * diag, 0.7, 14},
		{-d2 * diag, -d2 * diag, 0.4, 15},
		{0, -top, 0.8, 14},
		{0, -top2, 0.6, 15},
		{d * diag, -d * diag, 0.7, 14},
		{d2 * diag, -d2 * diag, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
}()

// breath is how far the rings swell on this frame. Listening follows the
// mic level, transcribing pulses quickly, everything else idles.
func breath(frame int, level float64, status overlay.Status) float64 {
	f := float64(frame)
	switch status {
	case overlay.Listening:
		return math.Sin(f*0.10)*0.03 + level*10.0 - 0.05
	case overlay.Transcribing:
		return math.Sin(f*0.35)*0.06 - 0.03
	case overlay.Error:
		return -0.08
	}
	return math.Sin(f*0.08)*0.02 - 0.05
}

func paletteFor(status overlay.Status) *palette {
	switch status {
	case overlay.Listening:
		return paletteListening
	case overlay.Transcribing, overlay.Done:
		return paletteBusy
	case overlay.Error:
		return paletteError
	}
	return paletteIdle
}

func renderEye(frame int, level float64, status overlay.Status) string {
	const charsW, charsH = 44, 15
	const pixW, pixH = charsW, charsH * 2
	cx, cy := float64(pixW)/2, float64(pixH)/2
	swell := breath(frame, level, status) * 20

	var pixels [pixH][pixW]int
	for y := range pixH {
		for x := range pixW {
			px, py := float64(x)-cx, float64(y)-cy
			dist := math.Hypot(px, py)
			for _, r := range eyeRings {
				if dist < min(r.radius+swell*r.breatheAmt, 10.0) {
					pixels[y][x] = r.colorIdx
					break
				}
			}
			for _, g := range eyeGlints {
				rLen := math.Hypot(g.ox, g.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -g.oy/rLen, g.ox/rLen
				dx, dy := px-g.ox, py-g.oy
				dt := dx*tx + dy*ty
				dn := -dx*ty + dy*tx
				if dt*dt/9.0+dn*dn < g.radius*g.radius {
					pixels[y][x] = g.color
				}
			}
		}
	}

	pal := paletteFor(status)
	var b strings.Builder
	for row := range charsH {
		for col := range charsW {
			top, bot := pixels[row*2][col], pixels[row*2+1][col]
			switch {
			case top == 0 && bot == 0:
				b.WriteString(" ")
			case top == bot:
				b.WriteString(pal.fg[top].Render("█"))
			case bot == 0:
				b.WriteString(pal.fg[top].Render("▀"))
			case top == 0:
				b.WriteString(pal.fg[bot].Render("▄"))
			default:
				b.WriteString(pal.bg[top][bot].Render("▀"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rephrase/autofix"
	"rephrase/overlay"
	"rephrase/pipeline"
	"rephrase/safety"
	"rephrase/store"
)

// TUI message types
type overlayMsg struct{ View overlay.View }
type iconMsg struct{ Set bool }
type AudioLevelMsg struct{ Level float64 }
type transcriptMsg struct{ T store.Transcript }
type composerMsg struct{ Parts []string }
type autofixMsg struct{ Status autofix.Status }
type verdictMsg struct{ V safety.Verdict }
type statusMsg struct {
	Text string
	Err  bool
}
type hotkeysMsg struct{ Hotkeys []string }
type featuresMsg struct{ AutoFix, Safety bool }
type ModeLineMsg struct{ Text string }   // engine | model
type DeviceLineMsg struct{ Text string } // microphone device name
type tickMsg time.Time

// actions are what the keyboard can ask of the app.
type actions interface {
	Dismiss()
	Generate(kind pipeline.DocKind)
	ClearComposer()
	ToggleAutoFix()
	ToggleSafety()
}

type tuiModel struct {
	act actions

	frame         int
	width, height int
	now           time.Time

	view       overlay.View
	hasIcon    bool
	listenedAt time.Time
	audioLevel float64
	peakLevel  float64

	modeLine   string
	deviceLine string
	hotkeys    []string
	status     statusMsg

	autoFix      bool
	autoFixState autofix.Status
	safety       bool
	verdict      *safety.Verdict

	composer []string
	last     *store.Transcript
	count    int
}

func NewTUIProgram(act actions) *tea.Program {
	return tea.NewProgram(tuiModel{act: act}, tea.WithAltScreen())
}

// tuiSurface is the overlay surface drawn by the TUI.
type tuiSurface struct{ s sink }

func (t tuiSurface) Show(v overlay.View) { t.s.Send(overlayMsg{View: v}) }
func (t tuiSurface) Icon(b64 string)     { t.s.Send(iconMsg{Set: b64 != ""}) }

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.key(msg)

	case tickMsg:
		m.frame++
		m.now = time.Time(msg)
		return m, tuiTick()

	case overlayMsg:
		if msg.View.Status == overlay.Listening && m.view.Status != overlay.Listening {
			m.listenedAt = m.now
			m.audioLevel = 0
			m.peakLevel = 0
		}
		m.view = msg.View

	case iconMsg:
		m.hasIcon = msg.Set

	case AudioLevelMsg:
		if m.view.Status == overlay.Listening {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			m.peakLevel = max(m.peakLevel, msg.Level)
		}

	case transcriptMsg:
		m.count++
		t := msg.T
		m.last = &t

	case composerMsg:
		m.composer = msg.Parts

	case autofixMsg:
		m.autoFixState = msg.Status

	case verdictMsg:
		v := msg.V
		m.verdict = &v

	case statusMsg:
		m.status = msg

	case hotkeysMsg:
		m.hotkeys = msg.Hotkeys

	case featuresMsg:
		m.autoFix = msg.AutoFix
		m.safety = msg.Safety

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "d":
		m.act.Dismiss()
	case "e":
		m.act.Generate(pipeline.Email)
	case "g":
		m.act.Generate(pipeline.Document)
	case "x":
		m.act.ClearComposer()
	case "a":
		m.act.ToggleAutoFix()
	case "s":
		m.act.ToggleSafety()
	}
	return m, nil
}

var (
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleFaint  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleMode   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleTitle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	styleText   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleRec    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleBusy   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	styleHelpKW = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

// statusLine renders the overlay view as one line.
func (m tuiModel) statusLine() []string {
	app := ""
	if m.view.App != "" {
		app = " · " + m.view.App
		if m.hasIcon {
			app += " ◆"
		}
	}
	switch m.view.Status {
	case overlay.Listening:
		secs := 0.0
		if !m.listenedAt.IsZero() {
			secs = m.now.Sub(m.listenedAt).Seconds()
		}
		lines := []string{styleRec.Render(fmt.Sprintf("● REC %.1fs", secs)) + styleDim.Render(app)}
		if secs > 1.0 && m.peakLevel < 0.02 {
			lines = append(lines, styleWarn.Render("  ⚠ no voice detected"))
		}
		return lines
	case overlay.Transcribing:
		return []string{styleBusy.Render("◐ TRANSCRIBING") + styleDim.Render(app)}
	case overlay.Done:
		return []string{styleOK.Render("✓ DONE") + styleDim.Render(app)}
	case overlay.Error:
		return []string{styleErr.Render("✗ " + m.view.Message)}
	}
	return []string{styleDim.Render("○ STANDBY")}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	level := 0.0
	if m.view.Status == overlay.Listening {
		level = m.audioLevel
	}
	eye := renderEye(m.frame, level, m.view.Status)

	info := m.statusLine()
	if m.modeLine != "" {
		info = append(info, styleMode.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		info = append(info, styleDim.Render(m.deviceLine))
	}
	for _, hk := range m.hotkeys {
		info = append(info, styleDim.Render(hk))
	}
	fix := "autofix: " + onOff(m.autoFix)
	if m.autoFix && (m.autoFixState == autofix.Fixing || m.autoFixState == autofix.Fixed) {
		fix += " (" + m.autoFixState.String() + ")"
	}
	info = append(info, styleDim.Render(fix+"   safety: "+onOff(m.safety)))
	if m.status.Text != "" {
		st := styleMode
		if m.status.Err {
			st = styleWarn
		}
		info = append(info, st.Render(m.status.Text))
	}

	info = append(info, "")
	help := []string{"d dismiss", "e email", "g document", "x clear", "a autofix", "s safety", "q quit"}
	var hl []string
	for _, h := range help {
		k, rest, _ := strings.Cut(h, " ")
		hl = append(hl, styleHelpKW.Render(k)+styleFaint.Render(" "+rest))
	}
	info = append(info, strings.Join(hl[:4], styleFaint.Render(" · ")))
	info = append(info, strings.Join(hl[4:], styleFaint.Render(" · ")))
	info = append(info, styleFaint.Render("rephrase "+version))

	eye += strings.Join(info, "\n")
	eyeLines := strings.Split(eye, "\n")

	logWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(logWidth-2, 10)
	panel := m.panel(wrapWidth)

	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(panel)

	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}
	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

// panel is the right-hand column: composer buffer, last transcript and
// the most recent URL verdict.
func (m tuiModel) panel(width int) string {
	var b strings.Builder
	writeWrapped := func(st lipgloss.Style, text string) {
		for _, line := range wrapText(text, width) {
			b.WriteString(st.Render(line) + "\n")
		}
	}

	if len(m.composer) > 0 {
		b.WriteString(styleTitle.Render(fmt.Sprintf("Composer (%d)", len(m.composer))) + "\n\n")
		for _, part := range m.composer {
			writeWrapped(styleMode, "• "+part)
		}
		b.WriteString("\n")
	}

	if m.last != nil {
		b.WriteString(styleTitle.Render(fmt.Sprintf("Last transcript (#%d, %s)", m.count, m.last.Mode)) + "\n\n")
		writeWrapped(styleText, m.last.Text)
		if m.last.Raw != "" && m.last.Raw != m.last.Text {
			b.WriteString("\n")
			writeWrapped(styleDim, "heard: "+m.last.Raw)
		}
	} else {
		b.WriteString(styleDim.Render("No transcripts yet") + "\n")
	}

	if v := m.verdict; v != nil {
		b.WriteString("\n")
		st := styleDim
		switch v.Status {
		case safety.Safe:
			st = styleOK
		case safety.Scam:
			st = styleErr
		}
		line := v.Status.String() + " " + v.URL
		if v.Analysis != "" {
			line += " (" + v.Analysis + ")"
		}
		writeWrapped(st, line)
	}
	return b.String()
}

// wrapText breaks text at spaces so no line is wider than width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

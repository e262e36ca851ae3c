package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/progress"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type fileState struct {
	StartedAt time.Time
}

type eventMsg struct {
	event progress.Event
	ok    bool
}

type uiModel struct {
	events <-chan progress.Event

	runID      string
	runStatus  string
	runError   string
	startedAt  time.Time
	finishedAt time.Time
	findings   int

	filesTotal    int
	filesAnalyzed int
	filesSkipped  int
	filesErrored  int

	showDetails bool
	done        bool

	inFlight map[string]fileState

	logLines []string
	tick     int
}

func newModel(events <-chan progress.Event) uiModel {
	return uiModel{
		events:      events,
		runStatus:   "running",
		inFlight:    make(map[string]fileState),
		showDetails: true,
		logLines:    make([]string, 0, 24),
	}
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

type tickMsg time.Time

func nextTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), nextTick())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "d":
			m.showDetails = !m.showDetails
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
		}
		return m, nil
	case eventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.applyEvent(msg.event)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, nextTick()
	default:
		return m, nil
	}
}

func (m uiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Warden Audit"))
	b.WriteString("\n")
	if m.runStatus == "running" {
		b.WriteString(fmt.Sprintf("Active: %s\n", runningStyle.Render(m.runningFrame())))
	}
	b.WriteString(fmt.Sprintf("Run: %s\n", valueOrDash(m.runID)))
	b.WriteString(fmt.Sprintf("Status: %s\n", styleStatus(m.runStatus).Render(strings.ToUpper(valueOrDash(m.runStatus)))))
	b.WriteString(fmt.Sprintf("Files: %s\n", m.filesLine()))
	b.WriteString(fmt.Sprintf("Findings: %d\n", m.findings))
	b.WriteString(fmt.Sprintf("Elapsed: %s\n", m.elapsedString()))
	b.WriteString("\n")

	if tracks := m.orderedInFlight(); len(tracks) > 0 {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-48s %-12s", "Analyzing", "Running")))
		b.WriteString("\n")
		for idx, file := range tracks {
			st := m.inFlight[file]
			line := fmt.Sprintf("%-48s %-12s", truncateLeft(file, 48), m.fileRunningDisplay(st, idx))
			b.WriteString(runningStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString(headerStyle.Render("Recent Events"))
		b.WriteString("\n")
		if len(m.logLines) == 0 {
			b.WriteString(idleStyle.Render("No events yet."))
			b.WriteString("\n")
		} else {
			for _, line := range m.logLines {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(helpStyle.Render("Press q to close"))
	} else {
		b.WriteString(helpStyle.Render("d toggle details"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m *uiModel) applyEvent(e progress.Event) {
	switch e.Type {
	case progress.EventRunStarted:
		m.runID = e.RunID
		m.runStatus = "running"
		if !e.At.IsZero() {
			m.startedAt = e.At
		}
		m.appendEventLine(e, fmt.Sprintf("run started (%s)", valueOrDash(e.RunID)))
	case progress.EventStagingFinished:
		m.filesTotal = e.FilesTotal
		m.appendEventLine(e, fmt.Sprintf("staged %d files", e.FilesTotal))
	case progress.EventRunWarning:
		m.appendEventLine(e, fmt.Sprintf("warning: %s", firstNonEmpty(e.Message, e.Error)))
	case progress.EventFileStarted:
		if e.File != "" {
			at := e.At
			if at.IsZero() {
				at = time.Now().UTC()
			}
			m.inFlight[e.File] = fileState{StartedAt: at}
		}
	case progress.EventFileFinished:
		delete(m.inFlight, e.File)
		switch {
		case strings.TrimSpace(e.Error) != "":
			m.filesErrored++
			m.appendEventLine(e, fmt.Sprintf("%s error: %s", e.File, strings.TrimSpace(e.Error)))
		case e.Status == model.FileSkipped:
			m.filesSkipped++
		default:
			m.filesAnalyzed++
			if e.FindingCount > 0 {
				m.appendEventLine(e, fmt.Sprintf("%s findings=%d duration=%s", e.File, e.FindingCount, durationString(e.DurationMS)))
			}
		}
	case progress.EventRunFinished:
		m.runStatus = firstNonEmpty(e.Status, "success")
		m.runError = strings.TrimSpace(e.Error)
		m.findings = e.FindingCount
		if !e.At.IsZero() {
			m.finishedAt = e.At
		}
		m.done = true
		msg := fmt.Sprintf("run finished status=%s findings=%d duration=%s", firstNonEmpty(e.Status, "unknown"), e.FindingCount, durationString(e.DurationMS))
		if m.runError != "" {
			msg += " error=" + m.runError
		}
		m.appendEventLine(e, msg)
	}
}

func (m uiModel) filesLine() string {
	done := m.filesAnalyzed + m.filesSkipped + m.filesErrored
	line := fmt.Sprintf("%d/%d", done, m.filesTotal)
	extras := []string{}
	if m.filesSkipped > 0 {
		extras = append(extras, fmt.Sprintf("skipped=%d", m.filesSkipped))
	}
	if m.filesErrored > 0 {
		extras = append(extras, fmt.Sprintf("errors=%d", m.filesErrored))
	}
	if len(extras) > 0 {
		line += " (" + strings.Join(extras, ", ") + ")"
	}
	return line
}

func (m uiModel) orderedInFlight() []string {
	out := make([]string, 0, len(m.inFlight))
	for file := range m.inFlight {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := m.inFlight[out[i]], m.inFlight[out[j]]
		if a.StartedAt.Equal(b.StartedAt) {
			return out[i] < out[j]
		}
		return a.StartedAt.Before(b.StartedAt)
	})
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

func (m uiModel) elapsedString() string {
	if m.startedAt.IsZero() {
		return "0s"
	}
	end := time.Now().UTC()
	if !m.finishedAt.IsZero() {
		end = m.finishedAt
	}
	return end.Sub(m.startedAt).Round(time.Second).String()
}

func (m *uiModel) appendEventLine(e progress.Event, text string) {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	line := fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), strings.TrimSpace(text))
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > 12 {
		m.logLines = m.logLines[len(m.logLines)-12:]
	}
}

func durationString(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func truncateLeft(v string, width int) string {
	if len(v) <= width {
		return v
	}
	return "…" + v[len(v)-width+1:]
}

func styleStatus(status string) lipgloss.Style {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return okStyle
	case "warning", "partial":
		return warnStyle
	case "failed":
		return errorStyle
	case "running":
		return runningStyle
	default:
		return idleStyle
	}
}

func (m uiModel) runningFrame() string {
	frames := []string{"-", "\\", "|", "/"}
	return frames[m.tick%len(frames)]
}

func (m uiModel) fileRunningDisplay(st fileState, idx int) string {
	frame := []string{"-", "\\", "|", "/"}[(m.tick+idx)%4]
	elapsed := "0s"
	if !st.StartedAt.IsZero() {
		elapsed = time.Since(st.StartedAt).Round(time.Second).String()
	}
	return frame + " " + elapsed
}

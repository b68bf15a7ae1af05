// Package progress renders a live terminal view of a pipeline run,
// consuming the structured progress-event stream C8 emits as each
// episode moves through transcript lookup, download, transcription and
// summarization.
package progress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"digestpipe/internal/pipeline"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	stageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	retryingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type episodeKey struct {
	podcast string
	title   string
}

type episodeStatus struct {
	stage   string
	state   pipeline.State
	attempt int
	err     error
}

// eventMsg wraps one progress event as a bubbletea message.
type eventMsg pipeline.ProgressEvent

// doneMsg signals that the event channel has closed; the run is over.
type doneMsg struct{}

type model struct {
	events    <-chan pipeline.ProgressEvent
	order     []episodeKey
	status    map[episodeKey]episodeStatus
	done      bool
	succeed   int
	fail      int
	filter    textinput.Model
	filtering bool
}

func newModel(events <-chan pipeline.ProgressEvent) model {
	fi := textinput.New()
	fi.Placeholder = "filter by podcast or title"
	fi.Prompt = "/ "
	fi.CharLimit = 128
	fi.Width = 60

	return model{
		events: events,
		status: make(map[episodeKey]episodeStatus),
		filter: fi,
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan pipeline.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(evt)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			switch msg.Type {
			case tea.KeyCtrlC:
				return m, tea.Quit
			case tea.KeyEsc:
				m.filtering = false
				m.filter.SetValue("")
				m.filter.Blur()
				return m, nil
			case tea.KeyEnter:
				m.filtering = false
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		if msg.String() == "/" {
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		}
	case eventMsg:
		m.apply(pipeline.ProgressEvent(msg))
		return m, waitForEvent(m.events)
	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) apply(evt pipeline.ProgressEvent) {
	key := episodeKey{podcast: evt.Podcast, title: evt.Title}
	if _, seen := m.status[key]; !seen {
		m.order = append(m.order, key)
	}
	m.status[key] = episodeStatus{stage: evt.Stage, state: evt.State, attempt: evt.Attempt, err: evt.Err}

	switch evt.State {
	case pipeline.StateSucceeded:
		if evt.Stage == pipeline.StageSummarize {
			m.succeed++
		}
	case pipeline.StateFailed:
		m.fail++
	}
}

func (m model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Processing %d episode(s)", len(m.order))
	if m.done {
		title += " — finished"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("succeeded: %d  failed: %d", m.succeed, m.fail)))
	b.WriteString("\n\n")

	keys := append([]episodeKey(nil), m.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].podcast+keys[i].title < keys[j].podcast+keys[j].title
	})

	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	for _, key := range keys {
		if needle != "" && !strings.Contains(strings.ToLower(key.podcast+" "+key.title), needle) {
			continue
		}
		status := m.status[key]
		b.WriteString(renderLine(key, status))
		b.WriteString("\n")
	}

	if m.filtering {
		b.WriteString("\n")
		b.WriteString(m.filter.View())
	} else if !m.done {
		b.WriteString("\n")
		hint := "ctrl+c to stop watching (does not cancel the run) · / to filter"
		if m.filter.Value() != "" {
			hint = fmt.Sprintf("filtering on %q · esc to clear · %s", m.filter.Value(), hint)
		}
		b.WriteString(dimStyle.Render(hint))
	}

	return b.String()
}

func renderLine(key episodeKey, status episodeStatus) string {
	var style lipgloss.Style
	label := string(status.state)

	switch status.state {
	case pipeline.StateSucceeded:
		style = succeededStyle
	case pipeline.StateFailed:
		style = failedStyle
		if status.err != nil {
			label = fmt.Sprintf("%s: %v", label, status.err)
		}
	case pipeline.StateRetrying:
		style = retryingStyle
		label = fmt.Sprintf("%s (attempt %d)", label, status.attempt)
	case pipeline.StateCancelled:
		style = cancelledStyle
	default:
		style = dimStyle
	}

	return fmt.Sprintf("  %s %s %s", stageStyle.Render(fmt.Sprintf("[%-16s]", status.stage)), style.Render(label), dimStyle.Render(key.podcast+" · "+key.title))
}

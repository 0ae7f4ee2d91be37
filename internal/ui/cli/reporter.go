package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"amdpack/internal/core/ports"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	themeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

// lineReporter prints one line per task start and end.
type lineReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newLineReporter(out io.Writer) *lineReporter {
	return &lineReporter{out: out}
}

func (r *lineReporter) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

func (r *lineReporter) Start(themeID, message string) ports.TaskEnd {
	r.println(fmt.Sprintf("%s %s", themeStyle.Render(themeID), statusStyle.Render(message+"...")))
	start := time.Now()
	return func(done string) {
		elapsed := time.Since(start).Round(time.Millisecond)
		r.println(fmt.Sprintf("%s %s %s %s", themeStyle.Render(themeID), successStyle.Render("✓"), done, statusStyle.Render("("+elapsed.String()+")")))
	}
}

func (r *lineReporter) Warn(themeID, message string) {
	r.println(fmt.Sprintf("%s %s", themeStyle.Render(themeID), warnStyle.Render("⚠ "+message)))
}

type taskMsg struct {
	themeID string
	message string
	done    bool
}

type warnMsg struct {
	themeID string
	message string
}

type stopMsg struct{}

// progressModel shows one spinner line per theme with a running task.
type progressModel struct {
	spinner spinner.Model
	active  map[string]string
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = themeStyle
	return progressModel{spinner: s, active: make(map[string]string)}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskMsg:
		if !msg.done {
			m.active[msg.themeID] = msg.message
			return m, nil
		}
		delete(m.active, msg.themeID)
		return m, tea.Println(fmt.Sprintf("%s %s %s", themeStyle.Render(msg.themeID), successStyle.Render("✓"), msg.message))
	case warnMsg:
		return m, tea.Println(fmt.Sprintf("%s %s", themeStyle.Render(msg.themeID), warnStyle.Render("⚠ "+msg.message)))
	case stopMsg:
		m.active = map[string]string{}
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if len(m.active) == 0 {
		return ""
	}
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(), themeStyle.Render(id), statusStyle.Render(m.active[id]))
	}
	return b.String()
}

// spinnerReporter forwards progress to a running bubbletea program.
type spinnerReporter struct {
	program *tea.Program
	done    chan struct{}
}

// startSpinnerReporter runs the program without reading input, so an
// interrupt reaches the process signal handler.
func startSpinnerReporter(out io.Writer) *spinnerReporter {
	r := &spinnerReporter{done: make(chan struct{})}
	r.program = tea.NewProgram(newProgressModel(), tea.WithOutput(out), tea.WithInput(nil))
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return r
}

func (r *spinnerReporter) Start(themeID, message string) ports.TaskEnd {
	r.program.Send(taskMsg{themeID: themeID, message: message})
	return func(done string) {
		r.program.Send(taskMsg{themeID: themeID, message: done, done: true})
	}
}

func (r *spinnerReporter) Warn(themeID, message string) {
	r.program.Send(warnMsg{themeID: themeID, message: message})
}

// Stop ends the program and waits until its final frame is drawn.
func (r *spinnerReporter) Stop() {
	r.program.Send(stopMsg{})
	<-r.done
}

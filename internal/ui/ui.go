package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/formatter"
	"github.com/desertthunder/stemdeck/internal/mixer"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/desertthunder/stemdeck/internal/tasks"
)

const (
	tickInterval = 250 * time.Millisecond
	seekStep     = 5.0
	scanLogLines = 8
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LibraryView ViewState = iota
	ScanView
	DetailView
)

// Opts contains the dependencies of [NewModel]. Engine and NewMixer are required.
type Opts struct {
	Engine   *tasks.IngestEngine
	NewMixer func() *mixer.Synchronizer
	AudioURL func(filename string) string
	Model    string                          // model used by the analyze prompt
	Ping     func(ctx context.Context) error // optional backend probe shown in the library header
	Logger   *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	engine   *tasks.IngestEngine
	newMixer func() *mixer.Synchronizer
	audioURL func(string) string
	model    string
	ping     func(context.Context) error
	backend  string
	logger   *log.Logger
	width    int
	height   int

	library   list.Model
	input     textinput.Model
	inputting bool

	spinner      spinner.Model
	bar          progress.Model
	scanning     bool
	scanTarget   string
	scanReturn   ViewState
	scanLog      []string
	scanCancel   context.CancelFunc
	progressChan <-chan tasks.ProgressUpdate
	scanDone     <-chan scanResult
	lastRun      *models.AnalysisRun
	scanErr      error

	track        *models.TrackRecord
	sync         *mixer.Synchronizer
	snapshot     mixer.Snapshot
	mixReady     bool
	detailCancel context.CancelFunc
	tickGen      int
	notice       string

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model showing the engine's library.
func NewModel(ctx context.Context, opts Opts) *Model {
	if opts.Model == "" {
		opts.Model = shared.ModelSixStem
	}
	if opts.AudioURL == nil {
		opts.AudioURL = func(f string) string { return f }
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	library := list.New(trackItems(opts.Engine.Tracks().List()), list.NewDefaultDelegate(), 0, 0)
	library.Title = "Library"
	library.SetShowHelp(false)

	input := textinput.New()
	input.Placeholder = "/path/to/track.mp3"
	input.Prompt = "analyze › "
	input.CharLimit = 512

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:      ctx,
		view:     LibraryView,
		engine:   opts.Engine,
		newMixer: opts.NewMixer,
		audioURL: opts.AudioURL,
		model:    opts.Model,
		ping:     opts.Ping,
		logger:   shared.WithLogger(opts.Logger, "component", "tui"),
		library:  library,
		input:    input,
		spinner:  s,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

func (m *Model) Init() tea.Cmd {
	title := tea.SetWindowTitle("stemdeck")
	if m.ping == nil {
		return title
	}
	ctx, ping := m.ctx, m.ping
	return tea.Batch(title, func() tea.Msg { return backendStatusMsg(ping(ctx)) })
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.library.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = min(max(msg.Width-12, 10), 60)
		m.input.Width = max(msg.Width-16, 20)
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)

	case tea.KeyMsg:
		switch m.view {
		case LibraryView:
			return m.handleLibraryKeys(msg)
		case ScanView:
			return m.handleScanKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}
	}

	if m.view == LibraryView {
		var cmd tea.Cmd
		if m.inputting {
			m.input, cmd = m.input.Update(msg)
		} else {
			m.library, cmd = m.library.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		if update.Message != "" && update.Phase != tasks.Progress {
			m.scanLog = append(m.scanLog, update.Message)
			if len(m.scanLog) > scanLogLines {
				m.scanLog = m.scanLog[len(m.scanLog)-scanLogLines:]
			}
		}
		return m, waitForProgress(m.progressChan, m.scanDone)

	case MsgScanDone:
		res := msg.data.(scanResult)
		m.scanning = false
		m.lastRun, m.scanErr = res.run, res.err
		if m.scanCancel != nil {
			m.scanCancel()
			m.scanCancel = nil
		}
		m.progressChan, m.scanDone = nil, nil
		m.refreshLibrary()
		return m, nil

	case MsgMixerOpened:
		res := msg.data.(mixerOpened)
		if res.sync != m.sync {
			return m, nil
		}
		m.mixReady = true
		if res.err != nil {
			m.notice = res.err.Error()
			m.logger.Warn("mixer failed to open", "filename", m.track.Filename(), "error", res.err)
		}
		m.snapshot = m.sync.Snapshot()
		return m, nil

	case MsgTick:
		if gen := msg.data.(int); gen != m.tickGen || m.sync == nil {
			return m, nil
		}
		if err := m.sync.Tick(); err != nil {
			m.logger.Debug("reconcile skipped", "error", err)
		}
		m.snapshot = m.sync.Snapshot()
		return m, m.tick()

	case MsgBackendStatus:
		if err, _ := msg.data.(error); err != nil {
			m.backend = "offline"
			m.logger.Warn("backend not reachable", "error", err)
		} else {
			m.backend = "online"
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LibraryView:
		return m.renderLibrary()
	case ScanView:
		return m.renderScan()
	case DetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.inputting {
		switch msg.Type {
		case tea.KeyEnter:
			path := strings.TrimSpace(m.input.Value())
			if path == "" {
				return m, nil
			}
			m.inputting = false
			m.input.Reset()
			m.input.Blur()
			return m, m.startAnalyze(path)
		case tea.KeyEsc:
			m.inputting = false
			m.input.Blur()
			return m, nil
		}
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.library.FilterState() == list.Filtering {
		m.library, cmd = m.library.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.analyze):
		m.inputting = true
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.library.SelectedItem().(trackItem); ok {
			return m, m.enterDetail(item.track)
		}
		return m, nil
	}

	m.library, cmd = m.library.Update(msg)
	return m, cmd
}

func (m *Model) handleScanKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		if m.scanCancel != nil {
			m.scanCancel()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.enter):
		if m.scanning {
			if key.Matches(msg, m.keys.back) && m.scanCancel != nil {
				m.scanCancel()
				m.notice = "CANCELING..."
			}
			return m, nil
		}
		m.notice = ""
		if m.scanReturn == DetailView {
			if track, ok := m.engine.Tracks().Get(m.scanTarget); ok {
				return m, m.enterDetail(track)
			}
		}
		m.view = LibraryView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.sync == nil {
		m.view = LibraryView
		return m, nil
	}

	var err error
	switch {
	case key.Matches(msg, m.keys.quit):
		m.leaveDetail()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.leaveDetail()
		m.view = LibraryView
		return m, nil
	case key.Matches(msg, m.keys.again):
		filename := m.track.Filename()
		m.leaveDetail()
		return m, m.startReAnalyze(filename, shared.ModelHighFidelity)
	case key.Matches(msg, m.keys.play):
		err = m.sync.Toggle()
	case key.Matches(msg, m.keys.main):
		m.sync.SelectMain()
	case key.Matches(msg, m.keys.stems):
		idx := int(msg.String()[0] - '1')
		err = m.sync.SelectStem(models.Stems[idx])
	case key.Matches(msg, m.keys.rewind):
		err = m.sync.SeekBy(-seekStep)
	case key.Matches(msg, m.keys.forward):
		err = m.sync.SeekBy(seekStep)
	default:
		return m, nil
	}

	m.notice = ""
	if err != nil {
		m.notice = err.Error()
	}
	m.snapshot = m.sync.Snapshot()
	return m, nil
}

// enterDetail shows track and creates its synchronizer. Loading runs in the background.
func (m *Model) enterDetail(track *models.TrackRecord) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	sync := m.newMixer()
	sources := mixer.TrackSources(track, m.audioURL)

	m.view = DetailView
	m.track = track
	m.sync = sync
	m.snapshot = sync.Snapshot()
	m.mixReady = false
	m.detailCancel = cancel
	m.notice = ""
	m.tickGen++

	open := func() tea.Msg {
		return mixerOpenedMsg(sync, sync.Open(ctx, sources))
	}
	return tea.Batch(open, m.tick())
}

// leaveDetail cancels any in-flight load and closes the synchronizer.
func (m *Model) leaveDetail() {
	if m.detailCancel != nil {
		m.detailCancel()
		m.detailCancel = nil
	}
	if m.sync != nil {
		if err := m.sync.Close(); err != nil {
			m.logger.Warn("failed to close mixer", "error", err)
		}
		m.sync = nil
	}
	m.tickGen++
}

func (m *Model) tick() tea.Cmd {
	gen := m.tickGen
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg(gen) })
}

func (m *Model) startAnalyze(path string) tea.Cmd {
	return m.startScan(path, LibraryView, func(ctx context.Context, ch chan<- tasks.ProgressUpdate) (*models.AnalysisRun, error) {
		return m.engine.Analyze(ctx, path, m.model, ch)
	})
}

func (m *Model) startReAnalyze(filename, model string) tea.Cmd {
	return m.startScan(filename, DetailView, func(ctx context.Context, ch chan<- tasks.ProgressUpdate) (*models.AnalysisRun, error) {
		return m.engine.ReAnalyze(ctx, filename, model, ch)
	})
}

// startScan runs one engine invocation in the background. One scan runs at a time.
func (m *Model) startScan(
	target string,
	back ViewState,
	run func(context.Context, chan<- tasks.ProgressUpdate) (*models.AnalysisRun, error),
) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	progressChan := make(chan tasks.ProgressUpdate, 64)
	done := make(chan scanResult, 1)

	m.view = ScanView
	m.scanning = true
	m.scanTarget = target
	m.scanReturn = back
	m.scanLog = nil
	m.lastRun, m.scanErr = nil, nil
	m.scanCancel = cancel
	m.progressChan, m.scanDone = progressChan, done
	m.notice = ""

	go func() {
		r, err := run(ctx, progressChan)
		done <- scanResult{r, err}
		close(progressChan)
	}()

	return tea.Batch(m.spinner.Tick, waitForProgress(progressChan, done))
}

func waitForProgress(progressChan <-chan tasks.ProgressUpdate, done <-chan scanResult) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}
		update, ok := <-progressChan
		if !ok {
			r := <-done
			return scanDoneMsg(r.run, r.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) refreshLibrary() {
	m.library.SetItems(trackItems(m.engine.Tracks().List()))
}

func (m *Model) renderLibrary() string {
	var b strings.Builder
	if len(m.library.Items()) == 0 {
		b.WriteString(styles.title.Render("Library"))
		b.WriteString("\n")
		b.WriteString(styles.help.Render("No tracks yet. Press a to analyze a file."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.library.View())
	}

	if m.inputting {
		fmt.Fprintf(&b, "\n\n%s", m.input.View())
	}

	switch m.backend {
	case "online":
		fmt.Fprintf(&b, "\n\n%s", styles.ok.Render("● backend online"))
	case "offline":
		fmt.Fprintf(&b, "\n\n%s", styles.err.Render("● backend offline"))
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.analyze, m.keys.quit}
	fmt.Fprintf(&b, "\n\n%s", m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderScan() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Scanning " + m.scanTarget))
	b.WriteString("\n")

	if m.scanning {
		status, _ := m.engine.Status().Get()
		if status == "" {
			status = tasks.ScanStartMessage
		}
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), status)
		if pct := m.engine.Status().Percent(); pct >= 0 {
			fmt.Fprintf(&b, "%s %3d%%\n", m.bar.ViewAs(float64(pct)/100), pct)
		}
	} else {
		b.WriteString(m.renderScanResult())
	}

	if len(m.scanLog) > 0 {
		b.WriteString("\n")
		for _, line := range m.scanLog {
			style := styles.help
			if strings.HasPrefix(line, "ERR: ") || strings.HasPrefix(line, "✗") {
				style = styles.err
			}
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
	}

	if m.notice != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(m.notice))
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	if !m.scanning {
		helpKeys = []key.Binding{m.keys.enter, m.keys.quit}
	}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderScanResult() string {
	if m.scanErr != nil {
		return styles.err.Render(fmt.Sprintf("Scan failed: %v", m.scanErr)) + "\n"
	}
	if m.lastRun == nil {
		return ""
	}

	run := m.lastRun
	var b strings.Builder
	if len(run.Completed) > 0 {
		b.WriteString(styles.ok.Render(fmt.Sprintf("✓ %d track(s) ready", len(run.Completed))))
	} else {
		b.WriteString(styles.warn.Render("No track returned"))
	}
	fmt.Fprintf(&b, " in %s\n", run.Duration().Round(time.Millisecond))
	if len(run.Errors) > 0 {
		b.WriteString(styles.err.Render(fmt.Sprintf("%d error(s) reported", len(run.Errors))))
		b.WriteString("\n")
	}
	if run.Skipped > 0 {
		b.WriteString(styles.warn.Render(fmt.Sprintf("%d malformed line(s) dropped", run.Skipped)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderDetail() string {
	t := m.track
	width := max(m.width-4, 40)
	snap := m.snapshot

	var b strings.Builder
	b.WriteString(styles.title.Render(t.DisplayTitle()))
	b.WriteString("\n")
	if byline := strings.Trim(t.Meta.Artist+" · "+t.Meta.Album, " ·"); byline != "" {
		b.WriteString(styles.help.Render(byline))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%s%s\n", styles.label.Render(label), value)
	}
	row("BPM", fmt.Sprintf("%.1f", t.BPM))
	row("Key", t.Key)
	row("Energy", t.EnergyLevel)
	row("Genre", t.Genre)
	row("Mood", t.Descriptors.Mood)
	row("Danceability", formatter.RenderBar(t.Danceability, 20))
	row("Loudness", fmt.Sprintf("%.1f dB", t.Loudness))
	row("Mix in/drop/out", strings.Join([]string{
		formatter.FormatTime(t.MixPoints.IntroEnd),
		formatter.FormatTime(t.MixPoints.Drop),
		formatter.FormatTime(t.MixPoints.OutroStart),
	}, " / "))
	b.WriteString("\n")

	if wave := formatter.Sparkline(t.Waveform, width); wave != "" {
		b.WriteString(wave)
		b.WriteString("\n")
		b.WriteString(formatter.Playhead(snap.Position, snap.Duration, len([]rune(wave))))
		b.WriteString("\n")
	}

	state := strings.ToUpper(snap.Transport.String())
	switch {
	case snap.Fatal != nil:
		state = styles.err.Render("ERROR: " + snap.Fatal.Error())
	case !m.mixReady || snap.Loading:
		state = m.spinner.View() + " LOADING..."
	}
	fmt.Fprintf(&b, "%s / %s  %s\n\n",
		formatter.FormatSeconds(snap.Position), durationLabel(snap.Duration), state)

	b.WriteString(m.renderMixer(snap))
	b.WriteString("\n")

	if len(t.Cues) > 0 {
		b.WriteString("\n")
		for _, c := range t.Cues {
			fmt.Fprintf(&b, "%s%s\n", styles.label.Render(formatter.FormatCueTime(c)), c.Label)
		}
	}

	if m.notice != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(m.notice))
	}

	helpKeys := []key.Binding{m.keys.play, m.keys.main, m.keys.stems, m.keys.rewind, m.keys.forward, m.keys.again, m.keys.back}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderMixer(snap mixer.Snapshot) string {
	available := make(map[models.StemID]bool, len(snap.Available))
	for _, id := range snap.Available {
		available[id] = true
	}

	tiles := []string{styles.stemTile("m "+models.StemMain.Label(), models.StemMain, true, snap.Mix.MainActive)}
	for i, id := range models.Stems {
		label := fmt.Sprintf("%d %s", i+1, id.Label())
		tiles = append(tiles, styles.stemTile(label, id, available[id], snap.Mix.Audible(id)))
	}
	return strings.Join(tiles, "")
}

func durationLabel(d float64) string {
	if d <= 0 {
		return formatter.MissingTime
	}
	return formatter.FormatSeconds(d)
}

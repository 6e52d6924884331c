// Package tui is the terminal dashboard served over SSH.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-desk/internal/analysis"
	"signal-desk/internal/domain"
	"signal-desk/internal/narrator"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const requestTimeout = 20 * time.Second

var intervalCycle = []string{"15m", "1h", "4h", "1d"}

type Analyzer interface {
	Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error)
	Patterns(ctx context.Context, symbol, interval string) ([]domain.PatternMatch, error)
	Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error)
}

type Asker interface {
	Ask(ctx context.Context, chatID int64, question string) (string, error)
}

// Services is what one SSH session's dashboard reads from. Asker may be nil.
type Services struct {
	Analyses  Analyzer
	Asker     Asker
	Symbols   []string
	Interval  string
	Username  string
	SessionID int64
}

type mode int

const (
	modeList mode = iota
	modeDetail
	modeAddSymbol
	modeAsk
)

type analysisMsg struct {
	symbol   string
	interval string
	result   *domain.SymbolAnalysis
	err      error
}

type detailMsg struct {
	symbol   string
	interval string
	levels   []domain.KeyLevel
	patterns []domain.PatternMatch
	err      error
}

type answerMsg struct {
	answer string
	err    error
}

// AppModel is the bubbletea model behind the dashboard.
type AppModel struct {
	svc      Services
	symbols  []string
	interval string
	cursor   int
	mode     mode
	width    int
	height   int

	results map[string]*domain.SymbolAnalysis
	errs    map[string]error
	pending int

	levels        []domain.KeyLevel
	patterns      []domain.PatternMatch
	detailErr     error
	detailLoading bool

	question  string
	answer    string
	answerErr error
	asking    bool

	input   textinput.Model
	spinner spinner.Model
	help    help.Model
}

func NewAppModel(svc Services) *AppModel {
	interval := svc.Interval
	if interval == "" {
		interval = "1h"
	}

	ti := textinput.New()
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &AppModel{
		svc:      svc,
		symbols:  append([]string(nil), svc.Symbols...),
		interval: interval,
		results:  make(map[string]*domain.SymbolAnalysis),
		errs:     make(map[string]error),
		input:    ti,
		spinner:  sp,
		help:     help.New(),
	}
}

func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshAll())
}

func (m *AppModel) loading() bool {
	return m.pending > 0 || m.detailLoading || m.asking
}

func (m *AppModel) selected() string {
	if m.cursor < 0 || m.cursor >= len(m.symbols) {
		return ""
	}
	return m.symbols[m.cursor]
}

func (m *AppModel) refreshAll() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.symbols))
	for _, s := range m.symbols {
		cmds = append(cmds, m.fetchAnalysis(s))
	}
	m.pending = len(cmds)
	return tea.Batch(cmds...)
}

func (m *AppModel) fetchAnalysis(symbol string) tea.Cmd {
	svc, interval := m.svc.Analyses, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := svc.Analyze(ctx, symbol, interval)
		return analysisMsg{symbol: symbol, interval: interval, result: res, err: err}
	}
}

func (m *AppModel) fetchDetail(symbol string) tea.Cmd {
	svc, interval := m.svc.Analyses, m.interval
	m.detailLoading = true
	m.levels, m.patterns, m.detailErr = nil, nil, nil
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		levels, err := svc.Levels(ctx, symbol, interval)
		if err != nil {
			return detailMsg{symbol: symbol, interval: interval, err: err}
		}
		patterns, err := svc.Patterns(ctx, symbol, interval)
		return detailMsg{symbol: symbol, interval: interval, levels: levels, patterns: patterns, err: err}
	}
}

func (m *AppModel) ask(question string) tea.Cmd {
	asker, chatID := m.svc.Asker, m.svc.SessionID
	m.asking = true
	m.question = question
	m.answer, m.answerErr = "", nil
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*requestTimeout)
		defer cancel()
		answer, err := asker.Ask(ctx, chatID, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case analysisMsg:
		if msg.interval != m.interval {
			return m, nil
		}
		if m.pending > 0 {
			m.pending--
		}
		if msg.err != nil {
			m.errs[msg.symbol] = msg.err
			delete(m.results, msg.symbol)
		} else {
			m.results[msg.symbol] = msg.result
			delete(m.errs, msg.symbol)
		}
		return m, nil

	case detailMsg:
		if msg.symbol != m.selected() || msg.interval != m.interval {
			return m, nil
		}
		m.detailLoading = false
		m.levels, m.patterns, m.detailErr = msg.levels, msg.patterns, msg.err
		return m, nil

	case answerMsg:
		m.asking = false
		m.answer, m.answerErr = msg.answer, msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeAddSymbol || m.mode == modeAsk {
		return m.handleInput(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		m.mode = modeList
		return m, nil
	case key.Matches(msg, keys.Refresh):
		if m.mode == modeDetail {
			if s := m.selected(); s != "" {
				m.pending++
				return m, tea.Batch(m.fetchAnalysis(s), m.fetchDetail(s), m.spinner.Tick)
			}
		}
		return m, tea.Batch(m.refreshAll(), m.spinner.Tick)
	}

	if m.mode != modeList {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.symbols)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Open):
		if s := m.selected(); s != "" {
			m.mode = modeDetail
			return m, tea.Batch(m.fetchDetail(s), m.spinner.Tick)
		}
	case key.Matches(msg, keys.Interval):
		m.interval = nextInterval(m.interval)
		m.results = make(map[string]*domain.SymbolAnalysis)
		m.errs = make(map[string]error)
		return m, tea.Batch(m.refreshAll(), m.spinner.Tick)
	case key.Matches(msg, keys.Add):
		m.mode = modeAddSymbol
		m.input.Placeholder = "symbol, e.g. SOLUSDT"
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, keys.Ask):
		if m.svc.Asker == nil {
			return m, nil
		}
		m.mode = modeAsk
		m.input.Placeholder = "ask about the market"
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *AppModel) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.mode = modeList
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		if m.mode == modeAsk {
			if value == "" || m.asking {
				return m, nil
			}
			return m, tea.Batch(m.ask(value), m.spinner.Tick)
		}
		m.input.Blur()
		m.mode = modeList
		return m, m.addSymbol(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *AppModel) addSymbol(raw string) tea.Cmd {
	symbol := strings.ToUpper(raw)
	if symbol == "" {
		return nil
	}
	for i, s := range m.symbols {
		if s == symbol {
			m.cursor = i
			return nil
		}
	}
	m.symbols = append(m.symbols, symbol)
	m.cursor = len(m.symbols) - 1
	m.pending++
	return tea.Batch(m.fetchAnalysis(symbol), m.spinner.Tick)
}

func nextInterval(current string) string {
	for i, iv := range intervalCycle {
		if iv == current {
			return intervalCycle[(i+1)%len(intervalCycle)]
		}
	}
	return intervalCycle[0]
}

func (m *AppModel) View() string {
	var body string
	switch m.mode {
	case modeDetail:
		body = m.detailView()
	case modeAsk:
		body = m.askView()
	default:
		body = m.listView()
		if m.mode == modeAddSymbol {
			body += "\n\n" + m.input.View()
		}
	}

	status := mutedStyle.Render(fmt.Sprintf(" %s · %s", m.svc.Username, m.interval))
	if m.loading() {
		status += " " + m.spinner.View()
	}
	header := titleStyle.Render("Signal Desk") + status

	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", m.help.View(keys))
}

func (m *AppModel) listView() string {
	if len(m.symbols) == 0 {
		return mutedStyle.Render("Watchlist is empty. Press / to add a symbol.")
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("  %-12s %14s  %-15s %6s  %s", "SYMBOL", "PRICE", "TREND", "RSI", "SUGGESTION")))
	for i, s := range m.symbols {
		sb.WriteString("\n")
		line := m.row(s)
		if i == m.cursor {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString("  " + line)
		}
	}
	return sb.String()
}

func (m *AppModel) row(symbol string) string {
	if err, ok := m.errs[symbol]; ok {
		return fmt.Sprintf("%-12s %s", symbol, errorStyle.Render(err.Error()))
	}
	a, ok := m.results[symbol]
	if !ok {
		return fmt.Sprintf("%-12s %s", symbol, mutedStyle.Render("loading"))
	}
	rec := a.Analysis
	suggestion := "-"
	if a.Suggestion != nil {
		suggestion = string(a.Suggestion.Type())
	}
	return fmt.Sprintf("%-12s %14.*f  %-15s %6.2f  %s",
		symbol,
		rec.Price.Precision, rec.Price.Value,
		directionStyle(string(rec.Trend)).Render(fmt.Sprintf("%-15s", rec.Trend)),
		rec.Indicators.RSI.Value,
		directionStyle(suggestion).Render(suggestion),
	)
}

func (m *AppModel) detailView() string {
	symbol := m.selected()
	var sb strings.Builder

	if err, ok := m.errs[symbol]; ok {
		sb.WriteString(errorStyle.Render(err.Error()))
	} else if a, ok := m.results[symbol]; ok {
		sb.WriteString(analysisPanel(a))
	} else {
		sb.WriteString(mutedStyle.Render("loading " + symbol))
	}
	sb.WriteString("\n\n")

	switch {
	case m.detailLoading:
		sb.WriteString(mutedStyle.Render("loading levels and patterns"))
	case m.detailErr != nil:
		sb.WriteString(errorStyle.Render(m.detailErr.Error()))
	default:
		sb.WriteString(levelsBlock(m.levels))
		sb.WriteString("\n\n")
		sb.WriteString(patternsBlock(m.patterns))
	}
	return sb.String()
}

func analysisPanel(a *domain.SymbolAnalysis) string {
	rec := a.Analysis
	p := rec.Price.Precision
	ind := rec.Indicators

	lines := []string{
		fmt.Sprintf("%s %s  %.*f  %s", a.Symbol, a.Interval, p, rec.Price.Value,
			directionStyle(string(rec.Trend)).Render(string(rec.Trend))),
		rec.Analysis.Summary,
		"",
		fmt.Sprintf("EMA 21/50/200  %.*f / %.*f / %.*f", p, ind.EMA.EMA21, p, ind.EMA.EMA50, p, ind.EMA.EMA200),
		fmt.Sprintf("RSI            %.2f (%s)", ind.RSI.Value, rec.Analysis.RSI),
		fmt.Sprintf("Bollinger      %.*f / %.*f / %.*f (%s)", p, ind.BollingerBands.Upper, p, ind.BollingerBands.Middle, p, ind.BollingerBands.Lower, rec.Analysis.Bollinger),
		fmt.Sprintf("MACD           %s", rec.Analysis.MACD),
		fmt.Sprintf("ATR            %.*f", p, ind.ATR),
	}
	if len(rec.Patterns) > 0 {
		lines = append(lines, "Patterns       "+strings.Join(rec.Patterns, ", "))
	}
	if a.Suggestion != nil {
		label := string(a.Suggestion.Type())
		lines = append(lines, "", directionStyle(label).Render(narrator.FormatSuggestion(a.Suggestion, p)))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func levelsBlock(levels []domain.KeyLevel) string {
	if len(levels) == 0 {
		return mutedStyle.Render("No key levels")
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("KEY LEVELS"))
	for _, l := range levels {
		p := analysis.PricePrecision(l.Price)
		sb.WriteString("\n")
		sb.WriteString(directionStyle(string(l.Type)).Render(fmt.Sprintf("%-10s", l.Type)))
		sb.WriteString(fmt.Sprintf(" %.*f  touches %d", p, l.Price, l.Touches))
	}
	return sb.String()
}

func patternsBlock(matches []domain.PatternMatch) string {
	if len(matches) == 0 {
		return mutedStyle.Render("No candlestick patterns")
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("PATTERNS"))
	for _, pm := range matches {
		ts := time.UnixMilli(pm.Time).UTC().Format("2006-01-02 15:04")
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s  %s ", ts, pm.Name))
		sb.WriteString(directionStyle(string(pm.Direction)).Render("(" + string(pm.Direction) + ")"))
	}
	return sb.String()
}

func (m *AppModel) askView() string {
	var sb strings.Builder
	if m.question != "" {
		sb.WriteString(headerStyle.Render("Q: ") + m.question + "\n\n")
	}
	switch {
	case m.asking:
		sb.WriteString(mutedStyle.Render("thinking"))
	case m.answerErr != nil:
		sb.WriteString(errorStyle.Render(m.answerErr.Error()))
	case m.answer != "":
		sb.WriteString(m.answer)
	}
	sb.WriteString("\n\n" + m.input.View())
	return sb.String()
}

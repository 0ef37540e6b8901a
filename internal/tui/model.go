// Package tui renders host state: a live dashboard and static tables for the
// command line.
package tui

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/marksidell/dynips/internal/lifecycle"
	"github.com/marksidell/dynips/internal/tui/theme"
	"github.com/marksidell/dynips/internal/utils"
)

// FetchFunc loads the current host records.
type FetchFunc func(ctx context.Context) ([]lifecycle.HostRecord, error)

// Options describes what the dashboard header shows and how often it refreshes.
type Options struct {
	Account    string
	DomainRoot string
	MaxAge     time.Duration
	Refresh    time.Duration
}

// Messages
type hostsMsg struct {
	records []lifecycle.HostRecord
	at      time.Time
}
type errMsg struct{ err error }
type tickMsg time.Time

// Model holds the dashboard state.
type Model struct {
	fetch   FetchFunc
	opts    Options
	records []lifecycle.HostRecord
	updated time.Time
	err     error
	loading bool
	spinner spinner.Model
	table   table.Model
	width   int
	height  int
	now     func() time.Time

	// non-empty = showing one host's markers
	detail string
}

func NewModel(fetch FetchFunc, opts Options) Model {
	t := table.New(
		table.WithColumns(hostColumns(80)),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithWidth(80),
	)
	t.SetStyles(theme.DefaultTableStyles())

	return Model{
		fetch:   fetch,
		opts:    opts,
		loading: true,
		spinner: theme.NewSpinner(),
		table:   t,
		width:   80,
		height:  24,
		now:     time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchHosts(), m.tick())
}

func (m Model) fetchHosts() tea.Cmd {
	fetch, now := m.fetch, m.now
	return func() tea.Msg {
		records, err := fetch(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return hostsMsg{records: records, at: now()}
	}
}

func (m Model) tick() tea.Cmd {
	if m.opts.Refresh <= 0 {
		return nil
	}
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.fetchHosts())
		case "esc":
			if m.detail != "" {
				m.detail = ""
				return m, nil
			}
		case "enter":
			if m.detail == "" {
				if row := m.table.SelectedRow(); len(row) > 0 {
					m.detail = row[0]
					return m, nil
				}
			}
		}

	case hostsMsg:
		m.records = msg.records
		m.updated = msg.at
		m.loading = false
		m.err = nil
		m.table.SetRows(m.buildRows())
		return m, nil

	case errMsg:
		m.err = msg.err
		m.loading = false
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchHosts(), m.tick())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.resizeTable()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func hostColumns(width int) []table.Column {
	fixed := 16 + 12 + 18 + 10 + 8
	hostWidth := max(width-fixed-4, 16)
	return []table.Column{
		{Title: "Host", Width: hostWidth},
		{Title: "IP", Width: 16},
		{Title: "State", Width: 12},
		{Title: "Last Seen", Width: 18},
		{Title: "Age", Width: 10},
		{Title: "Errors", Width: 8},
	}
}

func (m Model) buildRows() []table.Row {
	now := m.now()
	rows := make([]table.Row, 0, len(m.records))
	for _, r := range m.records {
		rows = append(rows, table.Row{
			r.Name,
			orDash(r.IP),
			string(r.State(now, m.opts.MaxAge)),
			utils.TimeOrDash(r.LastModified.Local(), utils.DateTime),
			utils.AgeOrDash(r.LastModified, now),
			fmt.Sprint(r.Errors),
		})
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (m Model) resizeTable() Model {
	contentWidth := m.width - 4 // dashboardStyle Padding(1,2)
	m.table.SetColumns(hostColumns(contentWidth))
	m.table.SetWidth(contentWidth)

	tableHeight := m.height - 10 // header+summary+help
	tableHeight = max(tableHeight, 3)
	m.table.SetHeight(tableHeight)
	return m
}

func (m Model) renderHeader() string {
	parts := []string{titleStyle.Render("dynips hosts"), "   "}
	if m.opts.DomainRoot != "" {
		parts = append(parts, labelStyle.Render("domain: ")+valueStyle.Render(m.opts.DomainRoot), "   ")
	}
	if m.opts.Account != "" {
		parts = append(parts, labelStyle.Render("account: ")+valueStyle.Render(m.opts.Account), "   ")
	}
	if !m.updated.IsZero() {
		parts = append(parts, labelStyle.Render("updated: ")+valueStyle.Render(utils.TimeOrDash(m.updated.Local(), utils.TimeOnly)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderSummary counts hosts per state.
func (m Model) renderSummary() string {
	now := m.now()
	counts := make(map[lifecycle.State]int)
	for _, r := range m.records {
		counts[r.State(now, m.opts.MaxAge)]++
	}

	var parts []string
	for _, s := range []lifecycle.State{
		lifecycle.StateActive, lifecycle.StateHeld, lifecycle.StateStale,
		lifecycle.StateExpired, lifecycle.StateLocked,
	} {
		style := countStyle.Foreground(theme.StatusColor(string(s)))
		parts = append(parts, labelStyle.Render(string(s)+": ")+style.Render(fmt.Sprint(counts[s])), "    ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderDetail() string {
	for _, r := range m.records {
		if r.Name != m.detail {
			continue
		}
		now := m.now()
		db := utils.NewDetail(14, labelStyle)
		db.Section(r.Name)
		db.Row("State", theme.RenderStatus(string(r.State(now, m.opts.MaxAge))))
		db.Row("IP", orDash(r.IP))
		db.Row("Last seen", utils.TimeOrDash(r.LastModified.Local(), utils.DateTimeSec))
		db.Row("Age", utils.AgeOrDash(r.LastModified, now))
		db.Blank()
		db.Section("Markers")
		db.Row("Heartbeat", yesNo(r.Heartbeat))
		db.Row("Hold", yesNo(r.Held))
		db.Row("Expired", yesNo(r.Expired))
		db.Row("Lock", yesNo(r.Locked))
		db.Row("Errors", fmt.Sprint(r.Errors))
		return db.String()
	}
	return labelStyle.Render("No record for "+m.detail) + "\n"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (m Model) View() tea.View {
	header := m.renderHeader()

	var content string
	switch {
	case m.loading && m.records == nil:
		content = dashboardStyle.Render(
			header + "\n\n" + m.spinner.View() + " Fetching hosts...\n",
		)
	case m.err != nil:
		content = dashboardStyle.Render(
			header + "\n\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) +
				"\n\n" + helpStyle.Render("Press r to retry • q to quit"),
		)
	case m.detail != "":
		content = dashboardStyle.Render(
			headerStyle.Render(header) + "\n\n" +
				m.renderDetail() +
				helpStyle.Render("Esc back • q quit"),
		)
	default:
		content = dashboardStyle.Render(
			headerStyle.Render(header) + "\n\n" +
				m.renderSummary() + "\n\n" +
				m.table.View() + "\n" +
				helpStyle.Render("Enter details • r refresh • q quit"),
		)
	}

	v := tea.NewView(content)
	v.AltScreen = true
	return v
}

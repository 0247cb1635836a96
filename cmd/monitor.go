// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live sensor view",
	Long: `Continuously display the device's sensor channels in a terminal UI.

Each refresh reads every channel from the session cache; devices with an
on-demand protocol are polled when the cache goes stale, passive devices
update as their unsolicited reports arrive. The footer tracks protocol
health: report counts, CRC failures, timeouts and cross-talk.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Refresh interval")
	rootCmd.AddCommand(monitorCmd)
}

// Messages
type monitorTickMsg time.Time
type monitorDataMsg struct {
	rows  []table.Row
	stats cooling.StatisticsSnapshot
}

type monitorModel struct {
	session  *cooling.Session
	table    table.Model
	stats    cooling.StatisticsSnapshot
	interval time.Duration
	width    int
	quitting bool
}

func newMonitorModel(session *cooling.Session, interval time.Duration) monitorModel {
	columns := []table.Column{
		{Title: "Channel", Width: 8},
		{Title: "Label", Width: 24},
		{Title: "Value", Width: 14},
		{Title: "Age", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(len(session.Channels())+1),
		table.WithFocused(true),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return monitorModel{session: session, table: t, interval: interval}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.readChannels(), m.tick())
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// readChannels snapshots every channel off the session. Runs in its own
// goroutine under bubbletea, so a stale on-demand read may block for one
// device timeout without freezing the UI.
func (m monitorModel) readChannels() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		now := time.Now()
		var rows []table.Row
		for _, info := range session.Channels() {
			reading, err := session.Read(ctx, info.Kind, info.Index)
			value := "-"
			age := "-"
			switch {
			case errors.Is(err, cooling.ErrStale):
				value = "stale"
			case err != nil:
				value = "error"
			default:
				value = formatValue(info.Kind, reading.Value)
				age = now.Sub(reading.Updated).Truncate(100 * time.Millisecond).String()
			}
			rows = append(rows, table.Row{channelName(info), info.Label, value, age})
		}
		return monitorDataMsg{rows: rows, stats: session.Stats()}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.readChannels()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case monitorTickMsg:
		return m, tea.Batch(m.readChannels(), m.tick())

	case monitorDataMsg:
		m.table.SetRows(msg.rows)
		m.stats = msg.stats
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

var (
	monitorTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	monitorStatsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	monitorHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Italic(true)
)

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}

	title := monitorTitleStyle.Render(fmt.Sprintf("Liquidtux Monitor - %s", m.session.Name()))
	stats := monitorStatsStyle.Render(fmt.Sprintf(
		"reports: %d valid, %d ignored, %d foreign | errors: %d crc, %d decode | timeouts: %d",
		m.stats.ValidReports, m.stats.IgnoredReports, m.stats.ForeignReports,
		m.stats.CRCErrors, m.stats.DecodeErrors, m.stats.Timeouts,
	))
	help := monitorHelpStyle.Render("r: refresh  q: quit")

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s\n", title, m.table.View(), stats, help)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	session, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p := tea.NewProgram(newMonitorModel(session, monitorInterval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

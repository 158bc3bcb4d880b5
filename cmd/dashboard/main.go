// The dashboard is a terminal view for operators: active auctions with their
// bid and lock state in one table, recent logs in a viewport.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/goodbids/auction-server/configs"
	"github.com/goodbids/auction-server/internal/database"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
	"github.com/goodbids/auction-server/pkg/utils"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Every(15*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	db        database.Service
	table     table.Model
	viewport  viewport.Model
	logBuffer *bytes.Buffer
	logs      []string
	showTable bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return tick()
}

func auctionRows(db database.Service) []table.Row {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	auctions, err := db.ListAuctions(ctx, types.AuctionActive)
	if err != nil {
		log.Error("Error getting auctions: ", err)
		return nil
	}

	rows := make([]table.Row, 0, len(auctions))
	for _, auction := range auctions {
		latestBidder := "-"
		if auction.LatestBidderID != nil {
			latestBidder = *auction.LatestBidderID
		}

		lockState := "free"
		lock, err := db.GetLock(ctx, auction.ID)
		switch {
		case err == nil:
			lockState = fmt.Sprintf("held by %s", lock.BidderID)
		case !errors.Is(err, apperrors.ErrNotFound):
			lockState = "?"
		}

		lastBid := "-"
		bid, err := db.LatestBid(ctx, auction.ID)
		switch {
		case err == nil:
			lastBid = fmt.Sprintf("%d %s", bid.Amount, bid.Status)
		case !errors.Is(err, apperrors.ErrNotFound):
			lastBid = "?"
		}

		rows = append(rows, table.Row{
			auction.ID,
			fmt.Sprintf("%d %s", auction.HighBidValue, auction.Currency),
			lastBid,
			latestBidder,
			auction.Status,
			lockState,
		})
	}
	return rows
}

func newDashboard(db database.Service) model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 36},
		{Title: "HIGH BID", Width: 12},
		{Title: "LAST BID", Width: 16},
		{Title: "LATEST BIDDER", Width: 36},
		{Title: "STATUS", Width: 8},
		{Title: "LOCK", Width: 44},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(auctionRows(db)),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(140, 15)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	return model{db: db, table: t, showTable: true, viewport: vp}
}

func (m model) refreshLogs() model {
	m.logs = strings.Split(m.logBuffer.String(), "\n")
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table.SetRows(auctionRows(m.db))
		} else {
			m = m.refreshLogs()
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if !m.showTable {
				m.viewport.LineUp(1)
			}
		case "down":
			if !m.showTable {
				m.viewport.LineDown(1)
			}
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				m = m.refreshLogs()
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}

	styledLogs := make([]string, len(m.logs))
	copy(styledLogs, m.logs)
	styledLogs = utils.ColorizeLogs(styledLogs)

	// only show last 15 lines of logs
	if len(styledLogs) > 15 {
		styledLogs = styledLogs[len(styledLogs)-15:]
	}

	m.viewport.SetContent(strings.Join(styledLogs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	// Redirect logs to buffer so the logs view can show them
	logBuffer := new(bytes.Buffer)
	log.SetOutput(logBuffer)

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	defer db.Close()

	m := newDashboard(db)
	m.logBuffer = logBuffer
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running dashboard: %v", err)
	}
}

package view

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reims-io/docflow/internal/api"
	"github.com/reims-io/docflow/internal/document"
	"github.com/reims-io/docflow/internal/registry"
)

const refreshInterval = time.Second

type DocumentsModel struct {
	CommonModel
	reg         *registry.Registry
	client      *api.Client
	downloadDir string

	table  table.Model
	docs   []document.Record
	status string
}

func NewDocumentsModel(reg *registry.Registry, client *api.Client, downloadDir string) DocumentsModel {
	columns := []table.Column{
		{Title: "Uploaded", Width: 17},
		{Title: "File", Width: 32},
		{Title: "Category", Width: 20},
		{Title: "State", Width: 12},
		{Title: "Metrics", Width: 8},
		{Title: "Size", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
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

	return DocumentsModel{
		reg:         reg,
		client:      client,
		downloadDir: downloadDir,
		table:       t,
	}
}

func (m DocumentsModel) Title() string { return "Documents" }

func (m DocumentsModel) ShortHelp() string {
	return "Esc: back | d: remove | s: save file | r: refresh"
}

func (m DocumentsModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

func (m DocumentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case docsLoadedMsg:
		m.docs = msg.docs
		m.refreshTable()
		return m, nil

	case docsTickMsg:
		// Processing state changes arrive via the pollers; re-read the
		// registry on a cadence so the table tracks them.
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case docSavedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Save failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Saved to %s", msg.path)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			return m, m.refreshCmd()
		case "d":
			if rec, ok := m.selected(); ok {
				m.reg.Remove(rec.ID)
				m.status = fmt.Sprintf("Removed %s", rec.FileName)
				return m, m.refreshCmd()
			}
			return m, nil
		case "s":
			if rec, ok := m.selected(); ok {
				m.status = fmt.Sprintf("Saving %s...", rec.FileName)
				return m, m.saveCmd(rec)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m DocumentsModel) selected() (document.Record, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.docs) {
		return document.Record{}, false
	}
	return m.docs[idx], true
}

func (m DocumentsModel) View() string {
	if len(m.docs) == 0 {
		return lipgloss.NewStyle().Padding(2).Render(
			"No documents uploaded yet.\n\nUpload one from the main menu.",
		)
	}

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := tableView

	if rec, ok := m.selected(); ok && rec.Error != "" {
		content = lipgloss.JoinVertical(lipgloss.Left,
			content,
			styleFailed.Render("Error: "+rec.Error),
		)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *DocumentsModel) refreshTable() {
	cursor := m.table.Cursor()

	rows := make([]table.Row, 0, len(m.docs))
	for _, d := range m.docs {
		metrics := "-"
		if d.State == document.StateProcessed {
			metrics = strconv.Itoa(d.MetricsCount)
		}

		rows = append(rows, table.Row{
			FormatTime(d.UploadedAt),
			d.FileName,
			string(d.Category),
			RenderState(d.State),
			metrics,
			FormatBytes(d.Size),
		})
	}
	m.table.SetRows(rows)

	if cursor >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// Messages

type docsLoadedMsg struct {
	docs []document.Record
}

type docsTickMsg time.Time

type docSavedMsg struct {
	path string
	err  error
}

func (m DocumentsModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return docsLoadedMsg{docs: m.reg.List()}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return docsTickMsg(t)
	})
}

func (m DocumentsModel) saveCmd(rec document.Record) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		path, err := m.client.Download(ctx, rec.ID, m.downloadDir, rec.FileName)
		return docSavedMsg{path: path, err: err}
	}
}

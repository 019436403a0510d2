package main

import (
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/reims-io/docflow/cmd/tui/internal/view"
	"github.com/reims-io/docflow/internal/api"
	"github.com/reims-io/docflow/internal/classify"
	"github.com/reims-io/docflow/internal/config"
	"github.com/reims-io/docflow/internal/poller"
	"github.com/reims-io/docflow/internal/registry"
	"github.com/reims-io/docflow/internal/uploader"
)

type model struct {
	cfg    *config.Config
	client *api.Client
	svc    *uploader.Service
	reg    *registry.Registry

	currentView View

	uploadView    view.UploadModel
	documentsView view.DocumentsModel
}

type View int

const (
	ViewMenu      View = 0
	ViewUpload    View = 1
	ViewDocuments View = 2
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	reg := registry.New()
	svc := uploader.NewService(client, reg, classify.New(), poller.Config{
		Interval:    cfg.Poll.Interval,
		MaxAttempts: cfg.Poll.MaxAttempts,
	})

	return model{
		cfg:           cfg,
		client:        client,
		svc:           svc,
		reg:           reg,
		currentView:   ViewMenu,
		uploadView:    view.NewUploadModel(svc, cfg.Upload.PropertyID),
		documentsView: view.NewDocumentsModel(reg, client, cfg.Upload.DownloadDir),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewUpload
				m.uploadView = view.NewUploadModel(m.svc, m.cfg.Upload.PropertyID)

				return m, m.uploadView.Init()
			case "2":
				m.currentView = ViewDocuments
				m.documentsView = view.NewDocumentsModel(m.reg, m.client, m.cfg.Upload.DownloadDir)

				return m, m.documentsView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewUpload:
		var newModel tea.Model
		newModel, cmd = m.uploadView.Update(msg)
		m.uploadView = newModel.(view.UploadModel)
	case ViewDocuments:
		var newModel tea.Model
		newModel, cmd = m.documentsView.Update(msg)
		m.documentsView = newModel.(view.DocumentsModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"REIMS Document Workflow\n\n" +
				"1. Upload Document\n" +
				"2. Documents\n\n" +
				"q. Quit",
		)
	case ViewUpload:
		return m.uploadView.View()
	case ViewDocuments:
		return m.documentsView.View()
	}

	return "Unknown View"
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}

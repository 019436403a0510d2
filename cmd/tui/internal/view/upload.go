package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/reims-io/docflow/internal/document"
	"github.com/reims-io/docflow/internal/uploader"
)

const submitTimeout = 5 * time.Minute

type uploadState int

const (
	uploadStateFilePick uploadState = iota
	uploadStateDetails
	uploadStateUploading
	uploadStateResult
)

type UploadModel struct {
	CommonModel
	svc *uploader.Service

	state      uploadState
	filePicker filepicker.Model
	form       *huh.Form
	spinner    spinner.Model

	path       string
	fileName   string
	category   string
	propertyID string

	progressCh chan int
	progress   int

	status string
	err    error
}

func NewUploadModel(svc *uploader.Service, defaultPropertyID string) UploadModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.AllowedTypes = []string{".pdf", ".xlsx", ".xls", ".csv"}
	fp.Height = 15

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return UploadModel{
		svc:        svc,
		filePicker: fp,
		spinner:    s,
		propertyID: defaultPropertyID,
	}
}

func (m UploadModel) Title() string { return "Upload Document" }

func (m UploadModel) ShortHelp() string {
	switch m.state {
	case uploadStateDetails:
		return "Navigate form | Esc: back"
	case uploadStateUploading:
		return "Uploading..."
	case uploadStateResult:
		return "Esc: back | Enter: upload another"
	}

	return "Esc: back | Enter: select file"
}

func (m UploadModel) Init() tea.Cmd {
	return m.filePicker.Init()
}

func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

	case uploadProgressMsg:
		if int(msg) > m.progress {
			m.progress = int(msg)
		}

		return m, m.waitProgressCmd()

	case uploadResultMsg:
		m.state = uploadStateResult
		if msg.err != nil {
			m.err = msg.err
			m.status = fmt.Sprintf("Upload failed: %v", msg.err)

			return m, nil
		}

		m.err = nil
		m.status = fmt.Sprintf("Uploaded %s, queued as %s", msg.rec.FileName, msg.rec.ID)

		return m, nil

	case spinner.TickMsg:
		if m.state != uploadStateUploading {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	switch m.state {
	case uploadStateFilePick:
		return m.updateFilePick(msg)
	case uploadStateDetails:
		return m.updateDetails(msg)
	case uploadStateResult:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
			return m.reset()
		}
	}

	return m, nil
}

func (m UploadModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case uploadStateDetails:
		m.state = uploadStateFilePick
		m.form = nil

		return m, m.filePicker.Init()
	case uploadStateResult:
		return m.reset()
	case uploadStateUploading:
		// The submission is already in flight; let it finish.
		return m, nil
	}

	return m, Back
}

func (m UploadModel) reset() (tea.Model, tea.Cmd) {
	m.state = uploadStateFilePick
	m.form = nil
	m.err = nil
	m.status = ""
	m.progress = 0
	m.path = ""

	return m, m.filePicker.Init()
}

func (m UploadModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.path = path
		m.fileName = filepath.Base(path)
		m.category = string(m.svc.SuggestCategory(m.fileName))
		m.form = m.buildDetailsForm()
		m.state = uploadStateDetails

		return m, m.form.Init()
	}

	return m, cmd
}

func (m *UploadModel) buildDetailsForm() *huh.Form {
	options := make([]huh.Option[string], 0, len(document.Categories))
	for _, c := range document.Categories {
		options = append(options, huh.NewOption(string(c), string(c)))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("category").
				Title("Document Type").
				Options(options...).
				Value(&m.category),

			huh.NewInput().
				Key("property_id").
				Title("Property").
				Placeholder("prop-...").
				Value(&m.propertyID).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("property is required")
					}
					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)
}

func (m UploadModel) updateDetails(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.category = m.form.GetString("category")
	m.propertyID = m.form.GetString("property_id")

	m.state = uploadStateUploading
	m.progress = 0
	m.progressCh = make(chan int, 1)

	return m, tea.Batch(m.spinner.Tick, m.submitCmd(), m.waitProgressCmd())
}

func (m UploadModel) View() string {
	switch m.state {
	case uploadStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select a document to upload:\n\n%s", m.filePicker.View()),
		)
	case uploadStateDetails:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Uploading %s\n\n%s", m.path, m.form.View()),
		)
	case uploadStateUploading:
		return lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("%s Uploading %s... %d%%", m.spinner.View(), m.path, m.progress),
		)
	case uploadStateResult:
		return m.viewResult()
	}

	return ""
}

func (m UploadModel) viewResult() string {
	style := lipgloss.NewStyle().Padding(2)

	if m.err != nil {
		return style.Render(
			styleFailed.Render(m.status) + "\n\n(Enter to retry with another file, Esc to go back)",
		)
	}

	return style.Render(
		styleProcessed.Render(m.status) + "\n\nProcessing continues in the background;" +
			" check the Documents screen for status.\n\n(Enter to upload another, Esc to go back)",
	)
}

// Messages

type uploadProgressMsg int

type uploadResultMsg struct {
	rec *document.Record
	err error
}

func (m UploadModel) submitCmd() tea.Cmd {
	path := m.path
	category := document.Category(m.category)
	propertyID := m.propertyID
	progressCh := m.progressCh

	return func() tea.Msg {
		cand, err := document.CandidateFromFile(path, category)
		if err != nil {
			close(progressCh)
			return uploadResultMsg{err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		rec, err := m.svc.Submit(ctx, uploader.SubmitParams{
			Candidate:  cand,
			PropertyID: propertyID,
			Progress: func(pct int) {
				select {
				case progressCh <- pct:
				default:
				}
			},
		})

		close(progressCh)

		return uploadResultMsg{rec: rec, err: err}
	}
}

// waitProgressCmd forwards progress values from the submission
// goroutine into the update loop. It re-arms itself until the channel
// closes.
func (m UploadModel) waitProgressCmd() tea.Cmd {
	ch := m.progressCh

	return func() tea.Msg {
		pct, ok := <-ch
		if !ok {
			return nil
		}

		return uploadProgressMsg(pct)
	}
}

package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reims-io/docflow/internal/api"
	"github.com/reims-io/docflow/internal/classify"
	"github.com/reims-io/docflow/internal/document"
	"github.com/reims-io/docflow/internal/encoding"
	"github.com/reims-io/docflow/internal/poller"
	"github.com/reims-io/docflow/internal/registry"
)

//go:generate mockgen -source=service.go -destination=backend_mock.go -package=uploader

// Backend is the slice of the document service the uploader depends
// on. *api.Client satisfies it.
type Backend interface {
	Ingest(ctx context.Context, params api.IngestParams) (string, error)
	GetStatus(ctx context.Context, id string) (*api.Status, error)
}

// Service turns validated upload candidates into registered, polled
// document records. It owns nothing UI-facing: display collaborators
// subscribe to the registry.
type Service struct {
	backend    Backend
	reg        *registry.Registry
	classifier *classify.Classifier
	pollCfg    poller.Config
}

func NewService(backend Backend, reg *registry.Registry, classifier *classify.Classifier, pollCfg poller.Config) *Service {
	return &Service{
		backend:    backend,
		reg:        reg,
		classifier: classifier,
		pollCfg:    pollCfg,
	}
}

// Registry exposes the upload registry for display collaborators.
func (s *Service) Registry() *registry.Registry { return s.reg }

// SuggestCategory proposes a category for a filename so the form can
// pre-select it. The user's explicit choice always wins.
func (s *Service) SuggestCategory(filename string) document.Category {
	return s.classifier.Suggest(filename)
}

// SubmitParams describes one submission.
type SubmitParams struct {
	Candidate  *document.Candidate
	PropertyID string

	// Progress receives upload percentages in [0, 100]; optional.
	Progress func(pct int)

	// Callbacks receive the terminal polling outcome; optional.
	Callbacks poller.Callbacks
}

// Submit validates the candidate, streams it to the ingestion
// endpoint, registers the resulting record in state queued, and starts
// the status poller bound to it. On any failure no record is created
// and no poller started; validation failures surface before a single
// byte leaves the machine.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*document.Record, error) {
	cand := params.Candidate
	if cand == nil {
		return nil, fmt.Errorf("no candidate to submit")
	}
	defer cand.Discard()

	if cand.Category == "" || !cand.Category.Valid() {
		cand.Category = s.classifier.Suggest(cand.Name)
	}

	if err := cand.Validate(); err != nil {
		return nil, err
	}

	payload, err := cand.Consume()
	if err != nil {
		return nil, err
	}

	// CSV exports arrive in whatever encoding the source system used;
	// normalize to UTF-8 so the backend parser sees clean text.
	if cand.ContentType == "text/csv" {
		payload, err = encoding.NewUTF8Reader(payload)
		if err != nil {
			return nil, fmt.Errorf("normalizing csv encoding: %w", err)
		}
	}

	id, err := s.backend.Ingest(ctx, api.IngestParams{
		FileName:    cand.Name,
		ContentType: cand.ContentType,
		Size:        cand.Size,
		Category:    cand.Category,
		PropertyID:  params.PropertyID,
		Payload:     payload,
		Progress:    params.Progress,
	})
	if err != nil {
		return nil, err
	}

	rec := document.Record{
		ID:         id,
		FileName:   cand.Name,
		Size:       cand.Size,
		Category:   cand.Category,
		State:      document.StateQueued,
		UploadedAt: time.Now(),
	}

	if !s.reg.Register(rec) {
		// The backend issued an id we already track; do not start a
		// second poller for it.
		return nil, fmt.Errorf("document %s is already tracked", id)
	}

	// The poller outlives the submit call; its lifetime is bound to
	// the registry entry, not to the submission context.
	p := poller.Start(context.Background(), id, s.backend, s.reg, s.pollCfg, params.Callbacks)
	s.reg.Bind(id, p.Stop)

	slog.Info("document submitted", "id", id, "file", cand.Name, "category", cand.Category)

	return &rec, nil
}

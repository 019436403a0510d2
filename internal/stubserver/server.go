// Package stubserver is an in-memory stand-in for the REIMS document
// service, used by the dev server binary and by tests. It implements
// the same contract the production service exposes: multipart
// ingestion, per-document status, view/download pass-throughs, and
// delete. Documents advance queued → processing → processed on a fixed
// schedule; metrics are derived from the uploaded content so repeated
// runs behave identically.
package stubserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/reims-io/docflow/internal/document"
)

const maxMultipartMemory = 64 << 20

// Server holds the in-memory document store and the processing
// schedule.
type Server struct {
	mu              sync.RWMutex
	docs            map[string]*storedDocument
	processingDelay time.Duration
	timers          []*time.Timer
	closed          bool
}

type storedDocument struct {
	id          string
	fileName    string
	contentType string
	category    document.Category
	propertyID  string
	state       document.State
	errMsg      string
	metrics     map[string]any
	data        []byte
	uploadedAt  time.Time
}

// New builds a stub server whose documents take processingDelay to
// move from queued to processing and the same again to finish.
func New(processingDelay time.Duration) *Server {
	return &Server{
		docs:            make(map[string]*storedDocument),
		processingDelay: processingDelay,
	}
}

// Close stops all pending state transitions.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
}

// Router returns the HTTP handler implementing the service contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.ingest)
			r.Get("/{id}/status", s.status)
			r.Get("/{id}/view", s.serveFile(false))
			r.Get("/{id}/download", s.serveFile(true))
			r.Delete("/{id}", s.delete)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form: "+err.Error())
		return
	}

	docType := r.FormValue("document_type")
	if docType == "" {
		writeError(w, http.StatusUnprocessableEntity, "document_type is required")
		return
	}

	category := document.Category(docType)
	if !category.Valid() {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown document_type %q", docType))
		return
	}

	propertyID := r.FormValue("property_id")
	if propertyID == "" {
		writeError(w, http.StatusUnprocessableEntity, "property_id is required")
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		writeError(w, http.StatusInternalServerError, "reading upload: "+err.Error())
		return
	}

	doc := &storedDocument{
		id:          uuid.New().String(),
		fileName:    hdr.Filename,
		contentType: hdr.Header.Get("Content-Type"),
		category:    category,
		propertyID:  propertyID,
		state:       document.StateQueued,
		data:        buf.Bytes(),
		uploadedAt:  time.Now(),
	}

	s.mu.Lock()
	s.docs[doc.id] = doc
	s.mu.Unlock()

	s.scheduleProcessing(doc.id)

	slog.Info("document ingested", "id", doc.id, "file", doc.fileName,
		"category", doc.category, "property", doc.propertyID, "bytes", len(doc.data))

	writeJSON(w, http.StatusCreated, map[string]string{"id": doc.id})
}

// scheduleProcessing arms the two state transitions for a fresh
// document. Filenames containing "corrupt" fail instead of completing,
// which gives the upload flow a reproducible failure path to exercise.
func (s *Server) scheduleProcessing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.timers = append(s.timers,
		time.AfterFunc(s.processingDelay, func() {
			s.transition(id, document.StateProcessing)
		}),
		time.AfterFunc(2*s.processingDelay, func() {
			s.finish(id)
		}),
	)
}

func (s *Server) transition(id string, next document.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || !doc.state.CanTransition(next) {
		return
	}

	doc.state = next
}

func (s *Server) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || doc.state.Terminal() {
		return
	}

	if strings.Contains(strings.ToLower(doc.fileName), "corrupt") {
		doc.state = document.StateFailed
		doc.errMsg = "unable to parse document"

		return
	}

	doc.state = document.StateProcessed
	doc.metrics = extractMetrics(doc)
}

// extractMetrics derives a deterministic metrics payload from the
// uploaded bytes. CSV files zip the header row against the first data
// row, which makes a rent roll upload round-trip its own columns as
// metrics; everything else reports its size.
func extractMetrics(doc *storedDocument) map[string]any {
	if strings.HasSuffix(strings.ToLower(doc.fileName), ".csv") {
		if m := csvMetrics(doc.data); len(m) > 0 {
			return m
		}
	}

	return map[string]any{"byte_count": len(doc.data)}
}

func csvMetrics(data []byte) map[string]any {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil
	}

	header := strings.Split(scanner.Text(), ",")

	if !scanner.Scan() {
		return nil
	}

	values := strings.Split(scanner.Text(), ",")

	metrics := make(map[string]any, len(header))
	for i, key := range header {
		key = strings.TrimSpace(key)
		if key == "" || i >= len(values) {
			continue
		}

		metrics[key] = strings.TrimSpace(values[i])
	}

	return metrics
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.RUnlock()
		writeError(w, http.StatusNotFound, "document not found")

		return
	}

	resp := map[string]any{"status": wireStatus(doc.state)}

	if doc.state == document.StateProcessed && doc.metrics != nil {
		resp["metrics"] = doc.metrics
	}

	if doc.state == document.StateFailed && doc.errMsg != "" {
		resp["error"] = doc.errMsg
	}

	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

// wireStatus reports queued documents as "pending", matching the
// production service's status endpoint vocabulary.
func wireStatus(state document.State) string {
	if state == document.StateQueued {
		return "pending"
	}

	return string(state)
}

func (s *Server) serveFile(attachment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		s.mu.RLock()
		doc, ok := s.docs[id]
		s.mu.RUnlock()

		if !ok {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}

		disposition := "inline"
		if attachment {
			disposition = "attachment"
		}

		contentType := doc.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.fileName))
		w.Write(doc.data)
	}
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reims-io/docflow/internal/document"
)

// Client consumes the REIMS document service contract: multipart
// ingestion, per-document status, and the view/download pass-throughs.
// The service owns the other side; this client never invents document
// ids or states.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client for the service at baseURL. token is
// optional; when set it is attached as a bearer token to every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SubmissionError is a network or server rejection during ingestion.
// StatusCode is zero when the request never reached the server.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submission failed: %s", e.Message)
	}

	return fmt.Sprintf("submission failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// IngestParams carries everything the ingestion endpoint needs.
type IngestParams struct {
	FileName    string
	ContentType string
	Size        int64
	Category    document.Category
	PropertyID  string
	Payload     io.Reader

	// Progress, when non-nil, receives monotonically non-decreasing
	// percentages in [0, 100]. 100 is emitted only after the server
	// has acknowledged the upload.
	Progress func(pct int)
}

type ingestResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Ingest streams the payload to the ingestion endpoint as a multipart
// request and returns the server-issued document id.
func (c *Client) Ingest(ctx context.Context, params IngestParams) (string, error) {
	body := params.Payload
	if params.Progress != nil {
		body = newProgressReader(params.Payload, params.Size, params.Progress)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeIngestForm(mw, params, body)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", pr)
	if err != nil {
		return "", &SubmissionError{Message: fmt.Sprintf("creating request: %v", err)}
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &SubmissionError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	var ir ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return "", &SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decoding response: %v", err),
		}
	}

	id := ir.ID
	if id == "" {
		id = ir.DocumentID
	}

	if id == "" {
		return "", &SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    "response carried no document id",
		}
	}

	if params.Progress != nil {
		params.Progress(100)
	}

	return id, nil
}

func writeIngestForm(mw *multipart.Writer, params IngestParams, body io.Reader) error {
	if err := mw.WriteField("document_type", string(params.Category)); err != nil {
		return fmt.Errorf("writing document_type: %w", err)
	}

	if err := mw.WriteField("property_id", params.PropertyID); err != nil {
		return fmt.Errorf("writing property_id: %w", err)
	}

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, params.FileName)}
	hdr["Content-Type"] = []string{params.ContentType}

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}

	return nil
}

// Status is one status poll response for a document.
type Status struct {
	State   document.State
	Metrics map[string]json.RawMessage
	Error   string
}

type statusResponse struct {
	Status  string                     `json:"status"`
	Metrics map[string]json.RawMessage `json:"metrics,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// GetStatus fetches the current processing state of a document.
func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	url := fmt.Sprintf("%s/api/v1/documents/%s/status", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating status request: %w", err)
	}

	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned HTTP %d: %s", resp.StatusCode, readErrorMessage(resp.Body))
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}

	state, ok := document.ParseState(sr.Status)
	if !ok {
		return nil, fmt.Errorf("unknown document status %q", sr.Status)
	}

	return &Status{State: state, Metrics: sr.Metrics, Error: sr.Error}, nil
}

// ViewURL returns the inline-view link for a document.
func (c *Client) ViewURL(id string) string {
	return fmt.Sprintf("%s/api/v1/documents/%s/view", c.baseURL, id)
}

// DownloadURL returns the attachment link for a document.
func (c *Client) DownloadURL(id string) string {
	return fmt.Sprintf("%s/api/v1/documents/%s/download", c.baseURL, id)
}

// Download saves the original file for a document into dir and returns
// the written path. The filename comes from Content-Disposition when
// the server supplies one, with fallback as the fallback name.
func (c *Client) Download(ctx context.Context, id, dir, fallback string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(id), nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}

	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d downloading document %s", resp.StatusCode, id)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, determineFilename(resp, fallback))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	return path, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func determineFilename(resp *http.Response, fallback string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if filename, ok := params["filename"]; ok && filename != "" {
				return strings.ReplaceAll(filepath.Base(filename), " ", "_")
			}
		}
	}

	if fallback != "" {
		return filepath.Base(fallback)
	}

	return "document"
}

// readErrorMessage extracts a human-readable message from an error
// body, which the service emits either as {"error": "..."} JSON or as
// plain text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail provided"
	}

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		if er.Error != "" {
			return er.Error
		}

		if er.Message != "" {
			return er.Message
		}
	}

	return strings.TrimSpace(string(raw))
}

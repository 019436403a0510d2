package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the ingestion ceiling enforced before any network call.
const MaxUploadSize = 50 << 20 // 50 MiB

// acceptedExtensions maps the accepted upload extensions (without dot) to
// the content type declared on the multipart part.
var acceptedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"csv":  "text/csv",
}

// ValidationReason identifies why a candidate was rejected locally.
type ValidationReason string

const (
	ReasonTooLarge        ValidationReason = "too_large"
	ReasonUnsupportedType ValidationReason = "unsupported_type"
)

// ValidationError is a local pre-submission rejection. It is always
// recoverable by choosing a different file and is never a server error.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload candidate (%s): %s", e.Reason, e.Detail)
}

// Candidate is a file chosen for upload but not yet submitted. It owns
// its payload until Consume is called; a consumed candidate is inert.
type Candidate struct {
	Name        string
	Size        int64
	Category    Category
	ContentType string

	payload  io.ReadSeeker
	closer   io.Closer
	consumed bool
}

// NewCandidate wraps an in-memory or seekable payload. Category may be
// adjusted by the caller before submission.
func NewCandidate(name string, size int64, category Category, payload io.ReadSeeker) *Candidate {
	return &Candidate{
		Name:     name,
		Size:     size,
		Category: category,
		payload:  payload,
	}
}

// CandidateFromFile opens path and builds a candidate from it. The
// caller owns the candidate and must Discard it if it is never
// submitted.
func CandidateFromFile(path string, category Category) (*Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candidate: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stating candidate: %w", err)
	}

	c := NewCandidate(filepath.Base(path), info.Size(), category, f)
	c.closer = f

	return c, nil
}

// Validate applies the local acceptance rules: the size ceiling and the
// accepted extension set, cross-checked against the sniffed content.
// It fills in ContentType on success.
func (c *Candidate) Validate() error {
	if c.consumed {
		return fmt.Errorf("candidate %q already consumed", c.Name)
	}

	if c.Size > MaxUploadSize {
		return &ValidationError{
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("%s is %d bytes, limit is %d", c.Name, c.Size, MaxUploadSize),
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(c.Name)), ".")

	declared, ok := acceptedExtensions[ext]
	if !ok {
		return &ValidationError{
			Reason: ReasonUnsupportedType,
			Detail: fmt.Sprintf("extension %q is not accepted (pdf, xlsx, xls, csv)", ext),
		}
	}

	if err := c.checkContent(ext); err != nil {
		return err
	}

	c.ContentType = declared

	return nil
}

// checkContent sniffs the payload magic bytes so a renamed binary does
// not slip past the extension check. CSV has no magic signature, so any
// text-like detection passes for it.
func (c *Candidate) checkContent(ext string) error {
	mtype, err := mimetype.DetectReader(c.payload)
	if err != nil {
		return fmt.Errorf("sniffing candidate content: %w", err)
	}

	if _, err := c.payload.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding candidate: %w", err)
	}

	ok := false

	switch ext {
	case "pdf":
		ok = mtype.Is("application/pdf")
	case "xlsx":
		ok = mtype.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") ||
			mtype.Is("application/zip")
	case "xls":
		ok = mtype.Is("application/vnd.ms-excel") || mtype.Is("application/x-ole-storage")
	case "csv":
		ok = mtype.Is("text/csv") || mtype.Is("text/plain") ||
			strings.HasPrefix(mtype.String(), "text/")
		// Spreadsheet exports with odd encodings sniff as octet-stream.
		if !ok && mtype.Is("application/octet-stream") {
			ok = true
		}
	}

	if !ok {
		return &ValidationError{
			Reason: ReasonUnsupportedType,
			Detail: fmt.Sprintf("%s content looks like %s, which does not match .%s", c.Name, mtype.String(), ext),
		}
	}

	return nil
}

// Consume hands the payload to the submitter and marks the candidate
// used. It can succeed only once.
func (c *Candidate) Consume() (io.Reader, error) {
	if c.consumed {
		return nil, fmt.Errorf("candidate %q already consumed", c.Name)
	}

	c.consumed = true

	return c.payload, nil
}

// Consumed reports whether the payload has been handed off.
func (c *Candidate) Consumed() bool { return c.consumed }

// Discard releases the underlying file handle, if any. Call it when
// the user cancels the candidate, and after a submission finishes.
func (c *Candidate) Discard() error {
	if c.closer == nil {
		return nil
	}

	closer := c.closer
	c.closer = nil

	return closer.Close()
}

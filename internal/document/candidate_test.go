package document_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reims-io/docflow/internal/document"
)

// %PDF-1.4 header is enough for content sniffing.
var pdfStub = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func newTestCandidate(name string, size int64, payload []byte) *document.Candidate {
	return document.NewCandidate(name, size, document.CategoryOther, bytes.NewReader(payload))
}

func TestCandidate_Validate(t *testing.T) {
	type testCase struct {
		name       string
		file       string
		size       int64
		payload    []byte
		wantReason document.ValidationReason
	}

	csvPayload := []byte("period,noi,occupancy\n2024-01,123,0.95\n")

	tests := []testCase{
		{name: "ValidCSV", file: "rent_roll_2024.csv", size: 2_000_000, payload: csvPayload},
		{name: "ValidPDF", file: "balance.pdf", size: int64(len(pdfStub)), payload: pdfStub},
		{
			name:       "TooLarge",
			file:       "huge.pdf",
			size:       60_000_000,
			payload:    pdfStub,
			wantReason: document.ReasonTooLarge,
		},
		{
			name:       "UnsupportedExtension",
			file:       "notes.txt",
			size:       10,
			payload:    []byte("plain text"),
			wantReason: document.ReasonUnsupportedType,
		},
		{
			name:       "NoExtension",
			file:       "README",
			size:       10,
			payload:    []byte("plain text"),
			wantReason: document.ReasonUnsupportedType,
		},
		{
			name:       "RenamedBinaryAsPDF",
			file:       "sneaky.pdf",
			size:       8,
			payload:    []byte{0x7f, 'E', 'L', 'F', 0x02, 0x01, 0x01, 0x00},
			wantReason: document.ReasonUnsupportedType,
		},
		{name: "ExtensionCaseInsensitive", file: "REPORT.PDF", size: int64(len(pdfStub)), payload: pdfStub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCandidate(tt.file, tt.size, tt.payload)
			err := c.Validate()

			if tt.wantReason == "" {
				assert.NoError(t, err)
				assert.NotEmpty(t, c.ContentType)

				return
			}

			var verr *document.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantReason, verr.Reason)
		})
	}
}

func TestCandidate_ValidateRewindsPayload(t *testing.T) {
	c := newTestCandidate("data.csv", 30, []byte("period,noi\n2024-01,123\n"))

	require.NoError(t, c.Validate())

	r, err := c.Consume()
	require.NoError(t, err)

	b := make([]byte, 10)
	n, _ := r.Read(b)
	assert.Equal(t, "period,noi", string(b[:n]))
}

func TestCandidate_ConsumeOnce(t *testing.T) {
	c := newTestCandidate("data.csv", 10, []byte("a,b\n1,2\n"))

	_, err := c.Consume()
	require.NoError(t, err)
	assert.True(t, c.Consumed())

	_, err = c.Consume()
	assert.Error(t, err)

	// A consumed candidate can no longer be validated either.
	assert.Error(t, c.Validate())
}

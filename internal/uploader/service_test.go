package uploader_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/reims-io/docflow/internal/api"
	"github.com/reims-io/docflow/internal/classify"
	"github.com/reims-io/docflow/internal/document"
	"github.com/reims-io/docflow/internal/poller"
	"github.com/reims-io/docflow/internal/registry"
	"github.com/reims-io/docflow/internal/uploader"
)

func newService(t *testing.T) (*uploader.Service, *uploader.MockBackend, *registry.Registry) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	backend := uploader.NewMockBackend(ctrl)
	reg := registry.New()

	svc := uploader.NewService(backend, reg, classify.New(), poller.Config{
		Interval:    time.Millisecond,
		MaxAttempts: 30,
	})

	return svc, backend, reg
}

func csvCandidate(name string, size int64, payload []byte) *document.Candidate {
	return document.NewCandidate(name, size, "", bytes.NewReader(payload))
}

func TestService_SubmitHappyPath(t *testing.T) {
	svc, backend, reg := newService(t)

	payload := []byte("period,noi,occupancy\n2024-01,123,0.95\n")
	cand := csvCandidate("rent_roll_2024.csv", 2_000_000, payload)

	metrics := map[string]json.RawMessage{
		"noi":       json.RawMessage(`123`),
		"occupancy": json.RawMessage(`0.95`),
	}

	backend.EXPECT().
		Ingest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params api.IngestParams) (string, error) {
			assert.Equal(t, "rent_roll_2024.csv", params.FileName)
			assert.Equal(t, document.CategoryRentRoll, params.Category) // suggested from filename
			assert.Equal(t, "prop-9", params.PropertyID)
			assert.Equal(t, "text/csv", params.ContentType)

			return "doc-123", nil
		})

	gomock.InOrder(
		backend.EXPECT().
			GetStatus(gomock.Any(), "doc-123").
			Return(&api.Status{State: document.StateProcessing}, nil),
		backend.EXPECT().
			GetStatus(gomock.Any(), "doc-123").
			Return(&api.Status{State: document.StateProcessed, Metrics: metrics}, nil),
	)

	done := make(chan int, 1)

	rec, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
		Callbacks: poller.Callbacks{
			OnComplete: func(id string, m map[string]json.RawMessage) { done <- len(m) },
			OnError:    func(id string, err error) { t.Errorf("unexpected OnError: %v", err) },
		},
	})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "doc-123", rec.ID)
	assert.Equal(t, document.StateQueued, rec.State)
	assert.Equal(t, 1, reg.Len())

	select {
	case metricsCount := <-done:
		assert.Equal(t, 2, metricsCount)
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete never fired")
	}

	got, ok := reg.Get("doc-123")
	require.True(t, ok)
	assert.Equal(t, document.StateProcessed, got.State)
	assert.Equal(t, 2, got.MetricsCount)
}

func TestService_SubmitTooLargeNeverCallsBackend(t *testing.T) {
	svc, _, reg := newService(t)

	// No EXPECT on the mock: any backend call fails the test.
	cand := csvCandidate("huge.pdf", 60_000_000, []byte("%PDF-1.4\n"))

	rec, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
	})

	var verr *document.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, document.ReasonTooLarge, verr.Reason)
	assert.Nil(t, rec)
	assert.Equal(t, 0, reg.Len())
}

func TestService_SubmitUnsupportedType(t *testing.T) {
	svc, _, reg := newService(t)

	cand := csvCandidate("notes.txt", 10, []byte("plain text"))

	_, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
	})

	var verr *document.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, document.ReasonUnsupportedType, verr.Reason)
	assert.Equal(t, 0, reg.Len())
}

func TestService_SubmissionFailureCreatesNoRecord(t *testing.T) {
	svc, backend, reg := newService(t)

	cand := csvCandidate("rent_roll.csv", 30, []byte("period,noi\n2024-01,123\n"))

	backend.EXPECT().
		Ingest(gomock.Any(), gomock.Any()).
		Return("", &api.SubmissionError{StatusCode: 503, Message: "ingestion offline"})

	rec, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
	})

	var serr *api.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 503, serr.StatusCode)
	assert.Nil(t, rec)
	assert.Equal(t, 0, reg.Len())
}

func TestService_DuplicateServerIDNotTrackedTwice(t *testing.T) {
	svc, backend, reg := newService(t)

	require.True(t, reg.Register(document.Record{ID: "doc-123", FileName: "old.pdf", State: document.StateProcessing}))

	backend.EXPECT().
		Ingest(gomock.Any(), gomock.Any()).
		Return("doc-123", nil)

	cand := csvCandidate("rent_roll.csv", 30, []byte("period,noi\n2024-01,123\n"))

	_, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
	})

	require.Error(t, err)
	assert.Equal(t, 1, reg.Len())

	got, _ := reg.Get("doc-123")
	assert.Equal(t, "old.pdf", got.FileName)
}

func TestService_SubmitNormalizesCSVEncoding(t *testing.T) {
	svc, backend, reg := newService(t)

	// Windows-1252 "Muñoz" (ñ = 0xF1).
	payload := []byte{
		'u', 'n', 'i', 't', ',', 't', 'e', 'n', 'a', 'n', 't', '\n',
		'1', '0', '1', ',', 'M', 'u', 0xF1, 'o', 'z', '\n',
	}

	cand := csvCandidate("rent_roll.csv", int64(len(payload)), payload)

	var uploaded []byte

	backend.EXPECT().
		Ingest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params api.IngestParams) (string, error) {
			var err error
			uploaded, err = io.ReadAll(params.Payload)
			require.NoError(t, err)

			return "doc-1", nil
		})

	backend.EXPECT().
		GetStatus(gomock.Any(), "doc-1").
		Return(&api.Status{State: document.StateProcessed}, nil).
		AnyTimes()

	_, err := svc.Submit(context.Background(), uploader.SubmitParams{
		Candidate:  cand,
		PropertyID: "prop-9",
	})

	require.NoError(t, err)
	assert.Equal(t, "unit,tenant\n101,Muñoz\n", string(uploaded))

	// Let the poller reach the terminal state so it stops cleanly
	// before the mock controller is finished.
	require.Eventually(t, func() bool {
		rec, ok := reg.Get("doc-1")
		return ok && rec.State == document.StateProcessed
	}, 5*time.Second, time.Millisecond)
}

func TestService_NilCandidate(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Submit(context.Background(), uploader.SubmitParams{PropertyID: "prop-9"})
	assert.Error(t, err)
	assert.False(t, errors.As(err, new(*document.ValidationError)))
}

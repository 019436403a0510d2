package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reims-io/docflow/internal/document"
)

func TestParseState(t *testing.T) {
	type testCase struct {
		name   string
		input  string
		want   document.State
		wantOK bool
	}

	tests := []testCase{
		{name: "Queued", input: "queued", want: document.StateQueued, wantOK: true},
		{name: "PendingAlias", input: "pending", want: document.StateQueued, wantOK: true},
		{name: "Processing", input: "processing", want: document.StateProcessing, wantOK: true},
		{name: "Processed", input: "processed", want: document.StateProcessed, wantOK: true},
		{name: "Failed", input: "failed", want: document.StateFailed, wantOK: true},
		{name: "Unknown", input: "exploded", wantOK: false},
		{name: "Empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := document.ParseState(tt.input)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestState_CanTransition(t *testing.T) {
	type testCase struct {
		name string
		from document.State
		to   document.State
		want bool
	}

	tests := []testCase{
		{name: "QueuedToProcessing", from: document.StateQueued, to: document.StateProcessing, want: true},
		{name: "QueuedSkipsToProcessed", from: document.StateQueued, to: document.StateProcessed, want: true},
		{name: "QueuedToFailed", from: document.StateQueued, to: document.StateFailed, want: true},
		{name: "ProcessingToProcessed", from: document.StateProcessing, to: document.StateProcessed, want: true},
		{name: "ProcessingToFailed", from: document.StateProcessing, to: document.StateFailed, want: true},
		{name: "ProcessingBackToQueued", from: document.StateProcessing, to: document.StateQueued, want: false},
		{name: "ProcessedIsSticky", from: document.StateProcessed, to: document.StateProcessing, want: false},
		{name: "FailedIsSticky", from: document.StateFailed, to: document.StateQueued, want: false},
		{name: "FailedToProcessed", from: document.StateFailed, to: document.StateProcessed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, document.StateQueued.Terminal())
	assert.False(t, document.StateProcessing.Terminal())
	assert.True(t, document.StateProcessed.Terminal())
	assert.True(t, document.StateFailed.Terminal())
}

func TestPatch_Apply(t *testing.T) {
	state := func(s document.State) *document.State { return &s }
	count := func(n int) *int { return &n }
	msg := func(s string) *string { return &s }

	t.Run("StateChange", func(t *testing.T) {
		rec := document.Record{ID: "doc-1", State: document.StateQueued}

		changed := document.Patch{State: state(document.StateProcessing)}.Apply(&rec)

		assert.True(t, changed)
		assert.Equal(t, document.StateProcessing, rec.State)
		assert.NotNil(t, rec.UpdatedAt)
	})

	t.Run("NoChangeOnSameState", func(t *testing.T) {
		rec := document.Record{ID: "doc-1", State: document.StateProcessing}

		changed := document.Patch{State: state(document.StateProcessing)}.Apply(&rec)

		assert.False(t, changed)
		assert.Nil(t, rec.UpdatedAt)
	})

	t.Run("TerminalStateIsNeverLeft", func(t *testing.T) {
		rec := document.Record{ID: "doc-1", State: document.StateProcessed, MetricsCount: 4}

		changed := document.Patch{State: state(document.StateQueued)}.Apply(&rec)

		assert.False(t, changed)
		assert.Equal(t, document.StateProcessed, rec.State)
		assert.Equal(t, 4, rec.MetricsCount)
	})

	t.Run("PartialMergeKeepsOtherFields", func(t *testing.T) {
		rec := document.Record{
			ID:       "doc-1",
			FileName: "rent_roll_2024.csv",
			Size:     2_000_000,
			Category: document.CategoryRentRoll,
			State:    document.StateProcessing,
		}

		changed := document.Patch{
			State:        state(document.StateProcessed),
			MetricsCount: count(2),
		}.Apply(&rec)

		assert.True(t, changed)
		assert.Equal(t, document.StateProcessed, rec.State)
		assert.Equal(t, 2, rec.MetricsCount)
		assert.Equal(t, "rent_roll_2024.csv", rec.FileName)
		assert.Equal(t, int64(2_000_000), rec.Size)
	})

	t.Run("FailureMessage", func(t *testing.T) {
		rec := document.Record{ID: "doc-1", State: document.StateProcessing}

		changed := document.Patch{
			State: state(document.StateFailed),
			Error: msg("unreadable spreadsheet"),
		}.Apply(&rec)

		assert.True(t, changed)
		assert.Equal(t, document.StateFailed, rec.State)
		assert.Equal(t, "unreadable spreadsheet", rec.Error)
	})
}

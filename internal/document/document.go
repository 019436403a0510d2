package document

import (
	"time"
)

// Category classifies a document within the closed REIMS taxonomy.
type Category string

const (
	CategoryBalanceSheet      Category = "balance_sheet"
	CategoryIncomeStatement   Category = "income_statement"
	CategoryCashFlowStatement Category = "cash_flow_statement"
	CategoryRentRoll          Category = "rent_roll"
	CategoryOther             Category = "other"
)

// Categories lists every valid category, in display order.
var Categories = []Category{
	CategoryBalanceSheet,
	CategoryIncomeStatement,
	CategoryCashFlowStatement,
	CategoryRentRoll,
	CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBalanceSheet, CategoryIncomeStatement, CategoryCashFlowStatement,
		CategoryRentRoll, CategoryOther:
		return true
	}

	return false
}

// State represents the backend processing state of a document.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateFailed     State = "failed"
)

// ParseState normalizes a wire status string into a State. The backend
// reports "pending" for freshly enqueued documents on some endpoints;
// it is an alias of queued.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateQueued, StateProcessing, StateProcessed, StateFailed:
		return State(s), true
	}

	if s == "pending" {
		return StateQueued, true
	}

	return "", false
}

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
// The state graph is queued → processing → {processed | failed}, with
// skips forward permitted (a fast document may go queued → processed
// between two polls). Terminal states never transition.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case StateQueued:
		return next == StateProcessing || next == StateProcessed || next == StateFailed
	case StateProcessing:
		return next == StateProcessed || next == StateFailed
	}

	return false
}

// Record is the client-side representation of a document the backend is
// processing. The ID is issued by the backend and treated as opaque.
type Record struct {
	ID           string
	FileName     string
	Size         int64
	Category     Category
	State        State
	MetricsCount int    // meaningful only once State == StateProcessed
	Error        string // backend failure message, set on StateFailed
	UploadedAt   time.Time
	UpdatedAt    *time.Time
}

// Patch carries a partial update for a Record. Nil fields are left
// untouched so a status poll never clobbers unrelated data.
type Patch struct {
	State        *State
	MetricsCount *int
	Error        *string
}

// Apply merges p into r and reports whether anything changed. A state
// change that would leave a terminal state is refused: terminal states
// are sticky for the rest of the session.
func (p Patch) Apply(r *Record) bool {
	changed := false

	if p.State != nil && *p.State != r.State && r.State.CanTransition(*p.State) {
		r.State = *p.State
		changed = true
	}

	if p.MetricsCount != nil && *p.MetricsCount != r.MetricsCount {
		r.MetricsCount = *p.MetricsCount
		changed = true
	}

	if p.Error != nil && *p.Error != r.Error {
		r.Error = *p.Error
		changed = true
	}

	if changed {
		now := time.Now()
		r.UpdatedAt = &now
	}

	return changed
}

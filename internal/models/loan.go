package models

import "time"

// LoanStatus enumerates the loan request state machine.
// PENDING is the initial state; REJECTED and FINALIZED are terminal.
type LoanStatus string

const (
	LoanPending   LoanStatus = "PENDING"
	LoanApproved  LoanStatus = "APPROVED"
	LoanRejected  LoanStatus = "REJECTED"
	LoanFinalized LoanStatus = "FINALIZED"
)

// ValidLoanStatus reports whether the status belongs to the known set.
func ValidLoanStatus(s LoanStatus) bool {
	switch s {
	case LoanPending, LoanApproved, LoanRejected, LoanFinalized:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s LoanStatus) Terminal() bool {
	return s == LoanRejected || s == LoanFinalized
}

// LoanRequest is a user's booking of a projector over a time window.
// ProjectorID is populated exactly while the request is APPROVED or
// FINALIZED; it stays NULL in every other state.
type LoanRequest struct {
	ID                string     `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"user_id"`
	StartsAt          time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt            time.Time  `db:"ends_at" json:"ends_at"`
	Reason            string     `db:"reason" json:"reason"`
	Shift             Shift      `db:"shift" json:"shift"`
	Status            LoanStatus `db:"status" json:"status"`
	ProjectorID       *string    `db:"projector_id" json:"projector_id,omitempty"`
	FeedbackRequested bool       `db:"feedback_requested" json:"feedback_requested"`
	CalendarEventID   *string    `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// LoanHistoryRow flattens a loan with requester and projector identity,
// used by the export pipeline.
type LoanHistoryRow struct {
	ID            string     `db:"id"`
	RequesterName string     `db:"requester_name"`
	ProjectorCode *string    `db:"projector_code"`
	StartsAt      time.Time  `db:"starts_at"`
	EndsAt        time.Time  `db:"ends_at"`
	Shift         Shift      `db:"shift"`
	Status        LoanStatus `db:"status"`
	Reason        string     `db:"reason"`
	CreatedAt     time.Time  `db:"created_at"`
}

// LoanFilter narrows loan request listings.
type LoanFilter struct {
	UserID    string
	Status    *LoanStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

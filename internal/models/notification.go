package models

import "time"

// NotificationKind tags an inbox message.
type NotificationKind string

const (
	NotificationSuccess        NotificationKind = "success"
	NotificationError          NotificationKind = "error"
	NotificationWarning        NotificationKind = "warning"
	NotificationInfo           NotificationKind = "info"
	NotificationCommentRequest NotificationKind = "comment_request"
)

// Notification is a transient message addressed to a single user,
// optionally correlated with a loan request. The lifecycle core only
// writes these; it never reads them back.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	LoanID    *string          `db:"loan_id" json:"loan_id,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

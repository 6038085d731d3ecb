package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CommentStatus tracks whether an incident report has been handled.
type CommentStatus string

const (
	CommentPending  CommentStatus = "PENDING"
	CommentResolved CommentStatus = "RESOLVED"
)

// IssueTag labels a reported projector problem. The vocabulary is fixed;
// free text goes into the comment body.
type IssueTag string

const (
	IssueHDMI     IssueTag = "hdmi"
	IssuePower    IssueTag = "power"
	IssueImage    IssueTag = "image"
	IssueSound    IssueTag = "sound"
	IssueOverheat IssueTag = "overheat"
	IssueRemote   IssueTag = "remote"
	IssueFocus    IssueTag = "focus"
	IssueOther    IssueTag = "other"
)

// ValidIssueTag reports whether the tag belongs to the fixed vocabulary.
func ValidIssueTag(t IssueTag) bool {
	switch t {
	case IssueHDMI, IssuePower, IssueImage, IssueSound, IssueOverheat, IssueRemote, IssueFocus, IssueOther:
		return true
	}
	return false
}

// MaxCommentLength bounds the free-text body of an incident report.
const MaxCommentLength = 500

// ProjectorComment is a post-return incident report tied to a finalized
// loan and the projector that served it.
type ProjectorComment struct {
	ID          string        `db:"id" json:"id"`
	LoanID      string        `db:"loan_id" json:"loan_id"`
	ProjectorID string        `db:"projector_id" json:"projector_id"`
	UserID      string        `db:"user_id" json:"user_id"`
	Tags        IssueTagList  `db:"tags" json:"tags"`
	Comment     string        `db:"comment" json:"comment"`
	Status      CommentStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IssueTagList stores the tag set as a JSONB column.
type IssueTagList []IssueTag

// Value marshals the tag list for persistence.
func (l IssueTagList) Value() (driver.Value, error) {
	if l == nil {
		l = IssueTagList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal issue tags: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the tag list.
func (l *IssueTagList) Scan(value interface{}) error {
	if value == nil {
		*l = IssueTagList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for IssueTagList", value)
	}
	if len(data) == 0 {
		*l = IssueTagList{}
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshal issue tags: %w", err)
	}
	return nil
}

// CommentFilter narrows incident report listings.
type CommentFilter struct {
	Status      *CommentStatus
	ProjectorID string
	Page        int
	PageSize    int
}

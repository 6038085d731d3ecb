package models

import "time"

// ProjectorStatus enumerates the lifecycle states of a physical unit.
type ProjectorStatus string

const (
	ProjectorAvailable   ProjectorStatus = "AVAILABLE"
	ProjectorInUse       ProjectorStatus = "IN_USE"
	ProjectorMaintenance ProjectorStatus = "MAINTENANCE"
)

// ValidProjectorStatus reports whether the status belongs to the known set.
func ValidProjectorStatus(s ProjectorStatus) bool {
	switch s {
	case ProjectorAvailable, ProjectorInUse, ProjectorMaintenance:
		return true
	}
	return false
}

// Projector models a loanable physical unit. Status flips between
// AVAILABLE and IN_USE are owned by the loan lifecycle; MAINTENANCE is
// an admin override.
type Projector struct {
	ID        string          `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Grade     string          `db:"grade" json:"grade"`
	Group     string          `db:"group_name" json:"group"`
	Shift     Shift           `db:"shift" json:"shift"`
	Status    ProjectorStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ProjectorFilter narrows projector listings.
type ProjectorFilter struct {
	Status   *ProjectorStatus
	Grade    string
	Group    string
	Shift    *Shift
	Page     int
	PageSize int
}

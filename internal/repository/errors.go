package repository

import "errors"

// Sentinel errors surfaced by conditional writes. Services translate
// them into the API error taxonomy.
var (
	// ErrProjectorUnavailable means the compare-and-swap on
	// projectors.status found the unit no longer AVAILABLE.
	ErrProjectorUnavailable = errors.New("projector is not available")

	// ErrLoanNotPending means a transition expected a PENDING loan and
	// found another state (or no row).
	ErrLoanNotPending = errors.New("loan request is not pending")

	// ErrLoanNotApproved means finalization expected an APPROVED loan.
	ErrLoanNotApproved = errors.New("loan request is not approved")

	// ErrDuplicateCode means a projector code collided with an existing unit.
	ErrDuplicateCode = errors.New("projector code already exists")
)

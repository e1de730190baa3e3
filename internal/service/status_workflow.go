package service

import (
	"strings"

	"github.com/noah-isme/campus-grievance-api/internal/models"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
)

// StatusWorkflow validates grievance status transitions. The workflow is
// deliberately unordered: any state may move to any state, including
// backwards and to itself. Resolved and Closed are end states by convention
// only. LockClosed optionally forbids leaving Closed; it defaults to off.
type StatusWorkflow struct {
	lockClosed bool
}

// NewStatusWorkflow constructs the workflow.
func NewStatusWorkflow(lockClosed bool) StatusWorkflow {
	return StatusWorkflow{lockClosed: lockClosed}
}

// Validate checks a transition and its remark. A status change always
// carries exactly one remark; an empty remark rejects the whole call and
// nothing is mutated.
func (w StatusWorkflow) Validate(current, next models.GrievanceStatus, remark string) error {
	if !models.ValidGrievanceStatus(next) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown grievance status")
	}
	if strings.TrimSpace(remark) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "a status change requires a remark")
	}
	if w.lockClosed && current == models.GrievanceStatusClosed && next != models.GrievanceStatusClosed {
		return appErrors.Clone(appErrors.ErrStatusLocked, "grievance is closed")
	}
	return nil
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-grievance-api/internal/models"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
)

func TestStatusWorkflowAllTransitionsOpen(t *testing.T) {
	workflow := NewStatusWorkflow(false)
	for _, from := range models.GrievanceStatuses {
		for _, to := range models.GrievanceStatuses {
			assert.NoError(t, workflow.Validate(from, to, "handled"), "%s -> %s", from, to)
		}
	}
}

func TestStatusWorkflowRejectsEmptyRemark(t *testing.T) {
	workflow := NewStatusWorkflow(false)

	err := workflow.Validate(models.GrievanceStatusSubmitted, models.GrievanceStatusUnderReview, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = workflow.Validate(models.GrievanceStatusSubmitted, models.GrievanceStatusUnderReview, "   ")
	require.Error(t, err)
}

func TestStatusWorkflowRejectsUnknownStatus(t *testing.T) {
	workflow := NewStatusWorkflow(false)
	err := workflow.Validate(models.GrievanceStatusSubmitted, models.GrievanceStatus("Escalated"), "remark")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStatusWorkflowLockClosed(t *testing.T) {
	workflow := NewStatusWorkflow(true)

	err := workflow.Validate(models.GrievanceStatusClosed, models.GrievanceStatusSubmitted, "reopening")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStatusLocked.Code, appErrors.FromError(err).Code)

	// Closed -> Closed is still fine; only leaving the state is blocked.
	assert.NoError(t, workflow.Validate(models.GrievanceStatusClosed, models.GrievanceStatusClosed, "noting"))
	assert.NoError(t, workflow.Validate(models.GrievanceStatusResolved, models.GrievanceStatusSubmitted, "reopening"))
}

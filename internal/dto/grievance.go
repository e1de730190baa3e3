package dto

// CreateGrievanceRequest is the submission payload. The submitter identity is
// taken from the actor, never from the body.
type CreateGrievanceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required,grievance_category"`
	Priority    string `json:"priority" validate:"omitempty,grievance_priority"`
	Location    string `json:"location"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// ChangeStatusRequest carries a status transition and its mandatory remark.
// The two fields are a single operation; neither is accepted alone.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,grievance_status"`
	Remark string `json:"remark" validate:"required"`
}

// AssignRequest sets or clears the responsible authority. A null assigned_to
// is an explicit unassignment.
type AssignRequest struct {
	AssignedTo *string `json:"assigned_to"`
}

// GrievanceListQuery captures optional query filters. Only admins may apply
// them; for other roles they are ignored.
type GrievanceListQuery struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Category string `form:"category"`
	Page     int    `form:"page"`
	PageSize int    `form:"limit"`
}

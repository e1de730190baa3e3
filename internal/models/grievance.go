package models

import "time"

// GrievanceStatus is the workflow state of a grievance. The values are the
// exact strings stored and served on the wire.
type GrievanceStatus string

const (
	GrievanceStatusSubmitted   GrievanceStatus = "Submitted"
	GrievanceStatusUnderReview GrievanceStatus = "Under Review"
	GrievanceStatusInProgress  GrievanceStatus = "In Progress"
	GrievanceStatusResolved    GrievanceStatus = "Resolved"
	GrievanceStatusClosed      GrievanceStatus = "Closed"
)

// GrievanceStatuses lists every workflow state.
var GrievanceStatuses = []GrievanceStatus{
	GrievanceStatusSubmitted,
	GrievanceStatusUnderReview,
	GrievanceStatusInProgress,
	GrievanceStatusResolved,
	GrievanceStatusClosed,
}

// ValidGrievanceStatus reports membership in the status enum.
func ValidGrievanceStatus(s GrievanceStatus) bool {
	switch s {
	case GrievanceStatusSubmitted, GrievanceStatusUnderReview, GrievanceStatusInProgress,
		GrievanceStatusResolved, GrievanceStatusClosed:
		return true
	default:
		return false
	}
}

// GrievanceCategory classifies the subject of a complaint.
type GrievanceCategory string

const (
	GrievanceCategoryInfrastructure GrievanceCategory = "Infrastructure"
	GrievanceCategoryAcademic       GrievanceCategory = "Academic"
	GrievanceCategoryHostel         GrievanceCategory = "Hostel"
	GrievanceCategoryOther          GrievanceCategory = "Other"
	GrievanceCategoryIT             GrievanceCategory = "IT"
	GrievanceCategoryMess           GrievanceCategory = "Mess"
)

// ValidGrievanceCategory reports membership in the category enum.
func ValidGrievanceCategory(c GrievanceCategory) bool {
	switch c {
	case GrievanceCategoryInfrastructure, GrievanceCategoryAcademic, GrievanceCategoryHostel,
		GrievanceCategoryOther, GrievanceCategoryIT, GrievanceCategoryMess:
		return true
	default:
		return false
	}
}

// GrievancePriority indicates urgency. Defaults to Low at creation.
type GrievancePriority string

const (
	GrievancePriorityLow    GrievancePriority = "Low"
	GrievancePriorityMedium GrievancePriority = "Medium"
	GrievancePriorityHigh   GrievancePriority = "High"
	GrievancePriorityUrgent GrievancePriority = "Urgent"
)

// ValidGrievancePriority reports membership in the priority enum.
func ValidGrievancePriority(p GrievancePriority) bool {
	switch p {
	case GrievancePriorityLow, GrievancePriorityMedium, GrievancePriorityHigh, GrievancePriorityUrgent:
		return true
	default:
		return false
	}
}

// Grievance is a single complaint ticket tracked through the workflow.
// SubmittedBy is written once at creation and never changes. AssignedTo is
// mutated only through the assignment path. Remarks are append-only.
type Grievance struct {
	ID          string            `db:"id" json:"id"`
	Title       string            `db:"title" json:"title"`
	Description string            `db:"description" json:"description"`
	Category    GrievanceCategory `db:"category" json:"category"`
	Priority    GrievancePriority `db:"priority" json:"priority"`
	Location    string            `db:"location" json:"location,omitempty"`
	IsAnonymous bool              `db:"is_anonymous" json:"is_anonymous"`
	SubmittedBy string            `db:"submitted_by" json:"submitted_by"`
	AssignedTo  *string           `db:"assigned_to" json:"assigned_to"`
	Status      GrievanceStatus   `db:"status" json:"status"`
	Remarks     []Remark          `db:"-" json:"remarks"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Remark is an immutable timestamped note appended when a grievance changes
// status. Entries are never edited or reordered; the stored order is
// insertion order.
type Remark struct {
	ID          string    `db:"id" json:"id"`
	GrievanceID string    `db:"grievance_id" json:"grievance_id"`
	Text        string    `db:"text" json:"text"`
	AddedBy     string    `db:"added_by" json:"added_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GrievanceFilter captures the query scope for listing grievances. The
// ownership fields come from the access policy, never from the caller.
type GrievanceFilter struct {
	SubmittedBy string
	AssignedTo  string
	Status      *GrievanceStatus
	Priority    *GrievancePriority
	Category    *GrievanceCategory
	Page        int
	PageSize    int
}

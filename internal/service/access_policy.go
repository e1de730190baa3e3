package service

import (
	"github.com/noah-isme/campus-grievance-api/internal/models"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
)

// GrievanceOp enumerates the operations the access policy rules over.
type GrievanceOp string

const (
	OpCreate       GrievanceOp = "create"
	OpRead         GrievanceOp = "read"
	OpChangeStatus GrievanceOp = "change_status"
	OpAssign       GrievanceOp = "assign"
	OpDelete       GrievanceOp = "delete"
)

// AccessPolicy decides whether an actor may perform an operation on a
// grievance. It is a pure decision table with no I/O and no caching; every
// call evaluates the record as passed, so a reassignment is visible to the
// very next authorization check.
type AccessPolicy struct{}

// NewAccessPolicy constructs the policy.
func NewAccessPolicy() AccessPolicy {
	return AccessPolicy{}
}

// CanRead reports whether the actor may see the record at all.
func (AccessPolicy) CanRead(actor models.Actor, g *models.Grievance) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleAuthority:
		return g.AssignedTo != nil && *g.AssignedTo == actor.ID
	case models.RoleStudent, models.RoleFaculty:
		return g.SubmittedBy == actor.ID
	default:
		return false
	}
}

// Authorize checks a write operation against the role/ownership table. The
// record may be nil only for OpCreate.
func (p AccessPolicy) Authorize(actor models.Actor, op GrievanceOp, g *models.Grievance) error {
	switch op {
	case OpCreate:
		if actor.Role == models.RoleStudent || actor.Role == models.RoleFaculty {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only students and faculty may submit grievances")
	case OpRead:
		if p.CanRead(actor, g) {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "grievance is not visible to this user")
	case OpChangeStatus:
		switch actor.Role {
		case models.RoleAdmin:
			return nil
		case models.RoleAuthority:
			if g.AssignedTo != nil && *g.AssignedTo == actor.ID {
				return nil
			}
			return appErrors.Clone(appErrors.ErrForbidden, "grievance is not assigned to this authority")
		default:
			return appErrors.Clone(appErrors.ErrForbidden, "role may not change grievance status")
		}
	case OpAssign:
		if actor.Role == models.RoleAdmin {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may assign grievances")
	case OpDelete:
		if actor.Role == models.RoleAdmin {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete grievances")
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "unknown operation")
	}
}

// ListScope returns the ownership constraints a list query must carry for
// the actor. Admin listings are unconstrained; an authority sees only
// records assigned to them; students and faculty see only their own
// submissions. An empty result for a scoped role is not an error.
func (AccessPolicy) ListScope(actor models.Actor) (models.GrievanceFilter, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return models.GrievanceFilter{}, nil
	case models.RoleAuthority:
		return models.GrievanceFilter{AssignedTo: actor.ID}, nil
	case models.RoleStudent, models.RoleFaculty:
		return models.GrievanceFilter{SubmittedBy: actor.ID}, nil
	default:
		return models.GrievanceFilter{}, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
}

// FiltersAllowed reports whether the actor may apply query-time filters to a
// listing. Only admins may; filters from other roles are ignored.
func (AccessPolicy) FiltersAllowed(actor models.Actor) bool {
	return actor.Role == models.RoleAdmin
}

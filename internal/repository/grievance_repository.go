package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-grievance-api/internal/models"
)

const grievanceColumns = "id, title, description, category, priority, location, is_anonymous, submitted_by, assigned_to, status, created_at, updated_at"

// GrievanceRepository manages persistence for grievances and their remark
// timeline. Status and assignment updates lock the target row so two
// concurrent writers cannot silently overwrite each other; remarks are
// appended as child rows and never rewritten.
type GrievanceRepository struct {
	db *sqlx.DB
}

// NewGrievanceRepository constructs a new repository.
func NewGrievanceRepository(db *sqlx.DB) *GrievanceRepository {
	return &GrievanceRepository{db: db}
}

// Create inserts a new grievance. The remark timeline starts empty.
func (r *GrievanceRepository) Create(ctx context.Context, g *models.Grievance) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	query := `INSERT INTO grievances (id, title, description, category, priority, location, is_anonymous, submitted_by, assigned_to, status, created_at, updated_at)
VALUES (:id, :title, :description, :category, :priority, :location, :is_anonymous, :submitted_by, :assigned_to, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, g); err != nil {
		return fmt.Errorf("create grievance: %w", err)
	}
	return nil
}

// List returns grievances matching the filter, newest first. Remark
// timelines are not loaded for listings.
func (r *GrievanceRepository) List(ctx context.Context, filter models.GrievanceFilter) ([]models.Grievance, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SubmittedBy != "" {
		where = append(where, fmt.Sprintf("submitted_by = $%d", len(args)+1))
		args = append(args, filter.SubmittedBy)
	}
	if filter.AssignedTo != "" {
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, string(*filter.Priority))
	}
	if filter.Category != nil {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, string(*filter.Category))
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT %s FROM grievances WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		grievanceColumns, whereClause, size, offset)
	var items []models.Grievance
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grievances: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM grievances WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grievances: %w", err)
	}
	return items, total, nil
}

// GetByID fetches a single grievance with its full remark timeline in
// insertion order. Returns sql.ErrNoRows when the id does not exist.
func (r *GrievanceRepository) GetByID(ctx context.Context, id string) (*models.Grievance, error) {
	var g models.Grievance
	query := fmt.Sprintf("SELECT %s FROM grievances WHERE id = $1", grievanceColumns)
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get grievance: %w", err)
	}
	remarks, err := r.listRemarks(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	g.Remarks = remarks
	return &g, nil
}

// StatusUpdateParams carries a status transition and its remark. Both are
// written in one transaction: either the status moves and the remark lands,
// or neither does.
type StatusUpdateParams struct {
	GrievanceID string
	Status      models.GrievanceStatus
	RemarkText  string
	ActorID     string
}

// UpdateStatusWithRemark applies a status change and appends the remark
// under a row lock. Returns sql.ErrNoRows when the grievance is gone.
func (r *GrievanceRepository) UpdateStatusWithRemark(ctx context.Context, p StatusUpdateParams) (*models.Grievance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var g models.Grievance
	lockQuery := fmt.Sprintf("SELECT %s FROM grievances WHERE id = $1 FOR UPDATE", grievanceColumns)
	if err := tx.GetContext(ctx, &g, lockQuery, p.GrievanceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock grievance: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "UPDATE grievances SET status = $1, updated_at = $2 WHERE id = $3",
		string(p.Status), now, p.GrievanceID); err != nil {
		return nil, fmt.Errorf("update grievance status: %w", err)
	}

	remark := models.Remark{
		ID:          uuid.NewString(),
		GrievanceID: p.GrievanceID,
		Text:        p.RemarkText,
		AddedBy:     p.ActorID,
		CreatedAt:   now,
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO grievance_remarks (id, grievance_id, text, added_by, created_at)
VALUES (:id, :grievance_id, :text, :added_by, :created_at)`, remark); err != nil {
		return nil, fmt.Errorf("append remark: %w", err)
	}

	remarks, err := r.listRemarks(ctx, tx, p.GrievanceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}

	g.Status = p.Status
	g.UpdatedAt = now
	g.Remarks = remarks
	return &g, nil
}

// UpdateAssignment sets or clears assigned_to under a row lock. The remark
// timeline is untouched. Returns sql.ErrNoRows when the grievance is gone.
func (r *GrievanceRepository) UpdateAssignment(ctx context.Context, id string, assignedTo *string) (*models.Grievance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assignment update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var g models.Grievance
	lockQuery := fmt.Sprintf("SELECT %s FROM grievances WHERE id = $1 FOR UPDATE", grievanceColumns)
	if err := tx.GetContext(ctx, &g, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock grievance: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "UPDATE grievances SET assigned_to = $1, updated_at = $2 WHERE id = $3",
		assignedTo, now, id); err != nil {
		return nil, fmt.Errorf("update grievance assignment: %w", err)
	}

	remarks, err := r.listRemarks(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment update: %w", err)
	}

	g.AssignedTo = assignedTo
	g.UpdatedAt = now
	g.Remarks = remarks
	return &g, nil
}

// Delete hard-deletes a grievance and its remark timeline. Returns
// sql.ErrNoRows when the id does not exist.
func (r *GrievanceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM grievance_remarks WHERE grievance_id = $1", id); err != nil {
		return fmt.Errorf("delete remarks: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM grievances WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete grievance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grievance rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *GrievanceRepository) listRemarks(ctx context.Context, q sqlx.QueryerContext, grievanceID string) ([]models.Remark, error) {
	var remarks []models.Remark
	query := "SELECT id, grievance_id, text, added_by, created_at FROM grievance_remarks WHERE grievance_id = $1 ORDER BY created_at, id"
	if err := sqlx.SelectContext(ctx, q, &remarks, query, grievanceID); err != nil {
		return nil, fmt.Errorf("list remarks: %w", err)
	}
	return remarks, nil
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-grievance-api/internal/dto"
	"github.com/noah-isme/campus-grievance-api/internal/models"
	"github.com/noah-isme/campus-grievance-api/internal/repository"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
	"github.com/noah-isme/campus-grievance-api/pkg/export"
)

type grievanceRepository interface {
	Create(ctx context.Context, g *models.Grievance) error
	List(ctx context.Context, filter models.GrievanceFilter) ([]models.Grievance, int, error)
	GetByID(ctx context.Context, id string) (*models.Grievance, error)
	UpdateStatusWithRemark(ctx context.Context, p repository.StatusUpdateParams) (*models.Grievance, error)
	UpdateAssignment(ctx context.Context, id string, assignedTo *string) (*models.Grievance, error)
	Delete(ctx context.Context, id string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const grievanceCachePrefix = "grievances:"

// maxListPageSize bounds a single listing page. The repository clamps to the
// same ceiling, so the reported PageSize always matches the rows fetched.
const maxListPageSize = 200

// GrievanceService orchestrates the grievance workflow: it loads records
// through the repository, authorizes every operation through the access
// policy, validates transitions through the status workflow, and records an
// audit entry per mutation. Admin listings are cached; every write
// invalidates the cache so stale scopes are never served.
type GrievanceService struct {
	repo      grievanceRepository
	policy    AccessPolicy
	workflow  StatusWorkflow
	audit     auditRecorder
	cache     listCache
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGrievanceService constructs the service and registers the enum
// validators used by the request payloads.
func NewGrievanceService(repo grievanceRepository, policy AccessPolicy, workflow StatusWorkflow, audit auditRecorder, cache listCache, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GrievanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &GrievanceService{
		repo:      repo,
		policy:    policy,
		workflow:  workflow,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
	svc.validator.RegisterValidation("grievance_category", func(fl validator.FieldLevel) bool {
		return models.ValidGrievanceCategory(models.GrievanceCategory(fl.Field().String()))
	})
	svc.validator.RegisterValidation("grievance_priority", func(fl validator.FieldLevel) bool {
		return models.ValidGrievancePriority(models.GrievancePriority(fl.Field().String()))
	})
	svc.validator.RegisterValidation("grievance_status", func(fl validator.FieldLevel) bool {
		return models.ValidGrievanceStatus(models.GrievanceStatus(fl.Field().String()))
	})
	return svc
}

// Create submits a new grievance. SubmittedBy is forced to the acting user
// regardless of anything the client supplied; the record starts in Submitted
// with an empty timeline and no assignee.
func (s *GrievanceService) Create(ctx context.Context, req dto.CreateGrievanceRequest, actor models.Actor) (*models.Grievance, error) {
	if err := s.policy.Authorize(actor, OpCreate, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grievance payload")
	}

	priority := models.GrievancePriority(req.Priority)
	if req.Priority == "" {
		priority = models.GrievancePriorityLow
	}

	g := &models.Grievance{
		Title:       req.Title,
		Description: req.Description,
		Category:    models.GrievanceCategory(req.Category),
		Priority:    priority,
		Location:    req.Location,
		IsAnonymous: req.IsAnonymous,
		SubmittedBy: actor.ID,
		AssignedTo:  nil,
		Status:      models.GrievanceStatusSubmitted,
		Remarks:     []models.Remark{},
	}
	start := time.Now()
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grievance")
	}
	s.metrics.ObserveDBQuery("grievance_create", time.Since(start))

	s.recordAudit(ctx, actor, models.AuditActionGrievanceCreate, g.ID, map[string]interface{}{
		"category": g.Category,
		"priority": g.Priority,
	})
	s.invalidateListings(ctx)
	return g, nil
}

// ListForActor returns the grievances visible to the actor. Query filters
// are honored for admins only and silently ignored for everyone else.
func (s *GrievanceService) ListForActor(ctx context.Context, q dto.GrievanceListQuery, actor models.Actor) ([]models.Grievance, *models.Pagination, error) {
	filter, err := s.policy.ListScope(actor)
	if err != nil {
		return nil, nil, err
	}
	filter.Page = q.Page
	filter.PageSize = q.PageSize
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > maxListPageSize {
		filter.PageSize = maxListPageSize
	}

	if s.policy.FiltersAllowed(actor) {
		if q.Status != "" {
			st := models.GrievanceStatus(q.Status)
			if !models.ValidGrievanceStatus(st) {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
			}
			filter.Status = &st
		}
		if q.Priority != "" {
			pr := models.GrievancePriority(q.Priority)
			if !models.ValidGrievancePriority(pr) {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority filter")
			}
			filter.Priority = &pr
		}
		if q.Category != "" {
			cat := models.GrievanceCategory(q.Category)
			if !models.ValidGrievanceCategory(cat) {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown category filter")
			}
			filter.Category = &cat
		}
	}

	type cachedListing struct {
		Items []models.Grievance `json:"items"`
		Total int                `json:"total"`
	}

	cacheKey := ""
	if actor.Role == models.RoleAdmin && s.cache != nil {
		cacheKey = s.listingCacheKey(filter)
		var cached cachedListing
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}
			return cached.Items, pagination, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("grievance listing cache read failed", zap.Error(err))
		}
	}

	start := time.Now()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grievances")
	}
	s.metrics.ObserveDBQuery("grievance_list", time.Since(start))
	if items == nil {
		items = []models.Grievance{}
	}

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, cachedListing{Items: items, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("grievance listing cache write failed", zap.Error(err))
		}
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return items, pagination, nil
}

// GetByID loads one grievance. A record that exists but is outside the
// actor's visibility yields a forbidden error, not a not-found.
func (s *GrievanceService) GetByID(ctx context.Context, id string, actor models.Actor) (*models.Grievance, error) {
	g, err := s.loadGrievance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpRead, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ChangeStatus moves a grievance to the requested status and appends the
// mandatory remark in one atomic step. Authorization is evaluated against
// the current assignment on every call.
func (s *GrievanceService) ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor models.Actor) (*models.Grievance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status and remark are both required")
	}

	g, err := s.loadGrievance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpChangeStatus, g); err != nil {
		return nil, err
	}

	next := models.GrievanceStatus(req.Status)
	if err := s.workflow.Validate(g.Status, next, req.Remark); err != nil {
		return nil, err
	}

	start := time.Now()
	updated, err := s.repo.UpdateStatusWithRemark(ctx, repository.StatusUpdateParams{
		GrievanceID: id,
		Status:      next,
		RemarkText:  req.Remark,
		ActorID:     actor.ID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grievance status")
	}
	s.metrics.ObserveDBQuery("grievance_status_update", time.Since(start))

	s.recordAudit(ctx, actor, models.AuditActionGrievanceStatus, id, map[string]interface{}{
		"from": g.Status,
		"to":   next,
	})
	s.invalidateListings(ctx)
	return updated, nil
}

// Assign sets or clears the responsible authority. Admin only. Assigning the
// same target twice is a harmless repeat that still bumps updated_at, and no
// remark is written; callers wanting an assignment trail add one themselves.
func (s *GrievanceService) Assign(ctx context.Context, id string, req dto.AssignRequest, actor models.Actor) (*models.Grievance, error) {
	g, err := s.loadGrievance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpAssign, g); err != nil {
		return nil, err
	}

	start := time.Now()
	updated, err := s.repo.UpdateAssignment(ctx, id, req.AssignedTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grievance assignment")
	}
	s.metrics.ObserveDBQuery("grievance_assignment_update", time.Since(start))

	s.recordAudit(ctx, actor, models.AuditActionGrievanceAssign, id, map[string]interface{}{
		"assigned_to": req.AssignedTo,
	})
	s.invalidateListings(ctx)
	return updated, nil
}

// Delete removes a grievance and its timeline permanently. Admin only; no
// tombstone remains.
func (s *GrievanceService) Delete(ctx context.Context, id string, actor models.Actor) error {
	g, err := s.loadGrievance(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, OpDelete, g); err != nil {
		return err
	}

	start := time.Now()
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grievance")
	}
	s.metrics.ObserveDBQuery("grievance_delete", time.Since(start))

	s.recordAudit(ctx, actor, models.AuditActionGrievanceDelete, id, nil)
	s.invalidateListings(ctx)
	return nil
}

// Export renders the full grievance register as CSV or PDF. Admin only.
func (s *GrievanceService) Export(ctx context.Context, format string, actor models.Actor) ([]byte, string, error) {
	if actor.Role != models.RoleAdmin {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "only admins may export grievances")
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Title", "Category", "Priority", "Status", "Submitted By", "Assigned To", "Created At"},
	}
	page := 1
	for {
		start := time.Now()
		items, total, err := s.repo.List(ctx, models.GrievanceFilter{Page: page, PageSize: maxListPageSize})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grievances for export")
		}
		s.metrics.ObserveDBQuery("grievance_list", time.Since(start))
		for _, g := range items {
			assigned := ""
			if g.AssignedTo != nil {
				assigned = *g.AssignedTo
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"ID":           g.ID,
				"Title":        g.Title,
				"Category":     string(g.Category),
				"Priority":     string(g.Priority),
				"Status":       string(g.Status),
				"Submitted By": g.SubmittedBy,
				"Assigned To":  assigned,
				"Created At":   g.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(dataset.Rows) >= total || len(items) == 0 {
			break
		}
		page++
	}

	switch format {
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Grievance Register")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown export format")
	}
}

func (s *GrievanceService) loadGrievance(ctx context.Context, id string) (*models.Grievance, error) {
	start := time.Now()
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grievance")
	}
	s.metrics.ObserveDBQuery("grievance_get", time.Since(start))
	return g, nil
}

func (s *GrievanceService) listingCacheKey(filter models.GrievanceFilter) string {
	status, priority, category := "", "", ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	if filter.Priority != nil {
		priority = string(*filter.Priority)
	}
	if filter.Category != nil {
		category = string(*filter.Category)
	}
	return fmt.Sprintf("%sadmin:%s:%s:%s:%d:%d", grievanceCachePrefix, status, priority, category, filter.Page, filter.PageSize)
}

func (s *GrievanceService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, grievanceCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate grievance listings", zap.Error(err))
	}
}

func (s *GrievanceService) recordAudit(ctx context.Context, actor models.Actor, action, grievanceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	actorID := actor.ID
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "grievance",
		ResourceID: &grievanceID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record grievance audit log", zap.Error(err), zap.String("action", action))
	}
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-grievance-api/internal/dto"
	"github.com/noah-isme/campus-grievance-api/internal/models"
	"github.com/noah-isme/campus-grievance-api/internal/repository"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
)

type grievanceRepoStub struct {
	records    map[string]*models.Grievance
	listItems  []models.Grievance
	listTotal  int
	listErr    error
	createErr  error
	lastFilter models.GrievanceFilter
	listCalls  int
}

func newGrievanceRepoStub(records ...*models.Grievance) *grievanceRepoStub {
	stub := &grievanceRepoStub{records: map[string]*models.Grievance{}}
	for _, g := range records {
		stub.records[g.ID] = g
	}
	return stub
}

func (s *grievanceRepoStub) Create(ctx context.Context, g *models.Grievance) error {
	if s.createErr != nil {
		return s.createErr
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	s.records[g.ID] = g
	return nil
}

func (s *grievanceRepoStub) List(ctx context.Context, filter models.GrievanceFilter) ([]models.Grievance, int, error) {
	s.listCalls++
	s.lastFilter = filter
	return s.listItems, s.listTotal, s.listErr
}

func (s *grievanceRepoStub) GetByID(ctx context.Context, id string) (*models.Grievance, error) {
	g, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *g
	copied.Remarks = append([]models.Remark(nil), g.Remarks...)
	return &copied, nil
}

func (s *grievanceRepoStub) UpdateStatusWithRemark(ctx context.Context, p repository.StatusUpdateParams) (*models.Grievance, error) {
	g, ok := s.records[p.GrievanceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	now := time.Now().UTC()
	g.Status = p.Status
	g.UpdatedAt = now
	g.Remarks = append(g.Remarks, models.Remark{
		ID:          uuid.NewString(),
		GrievanceID: p.GrievanceID,
		Text:        p.RemarkText,
		AddedBy:     p.ActorID,
		CreatedAt:   now,
	})
	copied := *g
	copied.Remarks = append([]models.Remark(nil), g.Remarks...)
	return &copied, nil
}

func (s *grievanceRepoStub) UpdateAssignment(ctx context.Context, id string, assignedTo *string) (*models.Grievance, error) {
	g, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	g.AssignedTo = assignedTo
	g.UpdatedAt = time.Now().UTC()
	copied := *g
	copied.Remarks = append([]models.Remark(nil), g.Remarks...)
	return &copied, nil
}

func (s *grievanceRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.records, id)
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

type cacheStub struct {
	store       map[string][]byte
	sets        int
	invalidated int
}

func newCacheStub() *cacheStub {
	return &cacheStub{store: map[string][]byte{}}
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	b, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = b
	s.sets++
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.invalidated++
	s.store = map[string][]byte{}
	return nil
}

func newTestService(repo *grievanceRepoStub, audit *auditStub, cache *cacheStub) *GrievanceService {
	var c listCache
	if cache != nil {
		c = cache
	}
	return NewGrievanceService(repo, NewAccessPolicy(), NewStatusWorkflow(false), audit, c, nil, time.Minute, nil, zap.NewNop())
}

var (
	student   = models.Actor{ID: "student-1", Role: models.RoleStudent}
	student2  = models.Actor{ID: "student-2", Role: models.RoleStudent}
	faculty   = models.Actor{ID: "faculty-1", Role: models.RoleFaculty}
	authority = models.Actor{ID: "authority-1", Role: models.RoleAuthority}
	admin     = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func TestGrievanceServiceCreateForcesSubmitter(t *testing.T) {
	repo := newGrievanceRepoStub()
	audit := &auditStub{}
	svc := newTestService(repo, audit, nil)

	g, err := svc.Create(context.Background(), dto.CreateGrievanceRequest{
		Title:       "Broken AC",
		Description: "AC not working in hostel room",
		Category:    "Hostel",
		Priority:    "High",
	}, student)
	require.NoError(t, err)

	assert.Equal(t, "student-1", g.SubmittedBy)
	assert.Equal(t, models.GrievanceStatusSubmitted, g.Status)
	assert.Equal(t, models.GrievancePriorityHigh, g.Priority)
	assert.Nil(t, g.AssignedTo)
	assert.Empty(t, g.Remarks)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionGrievanceCreate, audit.logs[0].Action)
}

func TestGrievanceServiceCreateDefaultsPriorityLow(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	g, err := svc.Create(context.Background(), dto.CreateGrievanceRequest{
		Title:       "Projector broken",
		Description: "Room 204 projector does not start",
		Category:    "IT",
	}, faculty)
	require.NoError(t, err)
	assert.Equal(t, models.GrievancePriorityLow, g.Priority)
	assert.Equal(t, "faculty-1", g.SubmittedBy)
}

func TestGrievanceServiceCreateRejectsRoles(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	for _, actor := range []models.Actor{authority, admin} {
		_, err := svc.Create(context.Background(), dto.CreateGrievanceRequest{
			Title:       "x",
			Description: "y",
			Category:    "Other",
		}, actor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.records)
}

func TestGrievanceServiceCreateValidation(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	cases := []dto.CreateGrievanceRequest{
		{Description: "no title", Category: "Hostel"},
		{Title: "no description", Category: "Hostel"},
		{Title: "bad category", Description: "d", Category: "Garden"},
		{Title: "bad priority", Description: "d", Category: "Mess", Priority: "Critical"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req, student)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.records)
}

func TestGrievanceServiceGetByIDVisibility(t *testing.T) {
	g := sampleGrievance("student-1", strPtr("authority-1"))
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	got, err := svc.GetByID(context.Background(), "grv-1", student)
	require.NoError(t, err)
	assert.Equal(t, "grv-1", got.ID)

	_, err = svc.GetByID(context.Background(), "grv-1", student2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetByID(context.Background(), "grv-1", authority)
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), "grv-1", models.Actor{ID: "authority-2", Role: models.RoleAuthority})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetByID(context.Background(), "grv-1", admin)
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), "missing", admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGrievanceServiceChangeStatusAppendsOneRemark(t *testing.T) {
	g := sampleGrievance("student-1", strPtr("authority-1"))
	repo := newGrievanceRepoStub(g)
	audit := &auditStub{}
	svc := newTestService(repo, audit, nil)

	updated, err := svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Under Review",
		Remark: "Inspecting the unit",
	}, authority)
	require.NoError(t, err)

	assert.Equal(t, models.GrievanceStatusUnderReview, updated.Status)
	require.Len(t, updated.Remarks, 1)
	assert.Equal(t, "Inspecting the unit", updated.Remarks[0].Text)
	assert.Equal(t, "authority-1", updated.Remarks[0].AddedBy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionGrievanceStatus, audit.logs[0].Action)
}

func TestGrievanceServiceChangeStatusEmptyRemarkNoMutation(t *testing.T) {
	g := sampleGrievance("student-1", strPtr("authority-1"))
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Resolved",
	}, authority)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Remark: "remark without status",
	}, authority)
	require.Error(t, err)

	unchanged := repo.records["grv-1"]
	assert.Equal(t, models.GrievanceStatusSubmitted, unchanged.Status)
	assert.Empty(t, unchanged.Remarks)
}

func TestGrievanceServiceChangeStatusAuthorizationIsFresh(t *testing.T) {
	g := sampleGrievance("student-1", strPtr("authority-1"))
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Under Review",
		Remark: "Inspecting the unit",
	}, authority)
	require.NoError(t, err)

	// Admin moves the assignment away; the former authority is rejected on
	// the very next call.
	_, err = svc.Assign(context.Background(), "grv-1", dto.AssignRequest{AssignedTo: strPtr("authority-2")}, admin)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Resolved",
		Remark: "done",
	}, authority)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Resolved",
		Remark: "AC repaired",
	}, models.Actor{ID: "authority-2", Role: models.RoleAuthority})
	require.NoError(t, err)
	require.Len(t, updated.Remarks, 2)
	assert.Equal(t, "Inspecting the unit", updated.Remarks[0].Text)
	assert.Equal(t, "AC repaired", updated.Remarks[1].Text)
}

func TestGrievanceServiceChangeStatusStudentForbidden(t *testing.T) {
	g := sampleGrievance("student-1", nil)
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "grv-1", dto.ChangeStatusRequest{
		Status: "Closed",
		Remark: "closing my own ticket",
	}, student)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGrievanceServiceAssignIdempotent(t *testing.T) {
	g := sampleGrievance("student-1", nil)
	repo := newGrievanceRepoStub(g)
	audit := &auditStub{}
	svc := newTestService(repo, audit, nil)

	first, err := svc.Assign(context.Background(), "grv-1", dto.AssignRequest{AssignedTo: strPtr("authority-1")}, admin)
	require.NoError(t, err)
	require.NotNil(t, first.AssignedTo)
	assert.Equal(t, "authority-1", *first.AssignedTo)
	assert.Empty(t, first.Remarks)

	second, err := svc.Assign(context.Background(), "grv-1", dto.AssignRequest{AssignedTo: strPtr("authority-1")}, admin)
	require.NoError(t, err)
	require.NotNil(t, second.AssignedTo)
	assert.Equal(t, "authority-1", *second.AssignedTo)
	assert.Empty(t, second.Remarks)
	assert.Len(t, audit.logs, 2)
}

func TestGrievanceServiceAssignNullUnassigns(t *testing.T) {
	g := sampleGrievance("student-1", strPtr("authority-1"))
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	updated, err := svc.Assign(context.Background(), "grv-1", dto.AssignRequest{AssignedTo: nil}, admin)
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedTo)
}

func TestGrievanceServiceAssignAdminOnly(t *testing.T) {
	g := sampleGrievance("student-1", nil)
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	for _, actor := range []models.Actor{student, faculty, authority} {
		_, err := svc.Assign(context.Background(), "grv-1", dto.AssignRequest{AssignedTo: strPtr("authority-1")}, actor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
	assert.Nil(t, repo.records["grv-1"].AssignedTo)
}

func TestGrievanceServiceDelete(t *testing.T) {
	g := sampleGrievance("student-1", nil)
	repo := newGrievanceRepoStub(g)
	audit := &auditStub{}
	svc := newTestService(repo, audit, nil)

	_, err := svc.GetByID(context.Background(), "grv-1", student)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "grv-1", admin))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionGrievanceDelete, audit.logs[0].Action)

	// Even the former owner now gets a not-found, not a visibility denial.
	_, err = svc.GetByID(context.Background(), "grv-1", student)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "grv-1", admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGrievanceServiceDeleteAdminOnly(t *testing.T) {
	g := sampleGrievance("student-1", nil)
	repo := newGrievanceRepoStub(g)
	svc := newTestService(repo, &auditStub{}, nil)

	err := svc.Delete(context.Background(), "grv-1", student)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.records, "grv-1")
}

func TestGrievanceServiceListScopes(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	_, _, err := svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, student)
	require.NoError(t, err)
	assert.Equal(t, "student-1", repo.lastFilter.SubmittedBy)
	assert.Empty(t, repo.lastFilter.AssignedTo)

	_, _, err = svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, authority)
	require.NoError(t, err)
	assert.Equal(t, "authority-1", repo.lastFilter.AssignedTo)
	assert.Empty(t, repo.lastFilter.SubmittedBy)

	_, _, err = svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, admin)
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.SubmittedBy)
	assert.Empty(t, repo.lastFilter.AssignedTo)
}

func TestGrievanceServiceListFiltersAdminOnly(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	q := dto.GrievanceListQuery{Status: "Resolved", Priority: "High", Category: "Hostel"}

	_, _, err := svc.ListForActor(context.Background(), q, admin)
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.Status)
	assert.Equal(t, models.GrievanceStatusResolved, *repo.lastFilter.Status)
	require.NotNil(t, repo.lastFilter.Priority)
	assert.Equal(t, models.GrievancePriorityHigh, *repo.lastFilter.Priority)
	require.NotNil(t, repo.lastFilter.Category)
	assert.Equal(t, models.GrievanceCategoryHostel, *repo.lastFilter.Category)

	// The same filters from an authority are ignored, not rejected.
	_, _, err = svc.ListForActor(context.Background(), q, authority)
	require.NoError(t, err)
	assert.Nil(t, repo.lastFilter.Status)
	assert.Nil(t, repo.lastFilter.Priority)
	assert.Nil(t, repo.lastFilter.Category)
}

func TestGrievanceServiceListClampsPageSize(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	_, pagination, err := svc.ListForActor(context.Background(), dto.GrievanceListQuery{PageSize: 500}, admin)
	require.NoError(t, err)
	assert.Equal(t, 200, repo.lastFilter.PageSize)
	assert.Equal(t, 200, pagination.PageSize)

	_, pagination, err = svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, admin)
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastFilter.PageSize)
	assert.Equal(t, 50, pagination.PageSize)
}

func TestGrievanceServiceListRejectsUnknownAdminFilter(t *testing.T) {
	repo := newGrievanceRepoStub()
	svc := newTestService(repo, &auditStub{}, nil)

	_, _, err := svc.ListForActor(context.Background(), dto.GrievanceListQuery{Status: "Escalated"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.listCalls)
}

func TestGrievanceServiceWritesInvalidateListingCache(t *testing.T) {
	repo := newGrievanceRepoStub()
	cache := newCacheStub()
	svc := newTestService(repo, &auditStub{}, cache)

	_, _, err := svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// A repeat of the same admin listing is served from cache.
	_, _, err = svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(context.Background(), dto.CreateGrievanceRequest{
		Title:       "Leaky tap",
		Description: "Mess hall tap leaking",
		Category:    "Mess",
	}, student)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	_, _, err = svc.ListForActor(context.Background(), dto.GrievanceListQuery{}, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestGrievanceServiceExport(t *testing.T) {
	repo := newGrievanceRepoStub()
	repo.listItems = []models.Grievance{*sampleGrievance("student-1", strPtr("authority-1"))}
	repo.listTotal = 1
	svc := newTestService(repo, &auditStub{}, nil)

	payload, contentType, err := svc.Export(context.Background(), "csv", admin)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "Broken AC")

	_, contentType, err = svc.Export(context.Background(), "pdf", admin)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)

	_, _, err = svc.Export(context.Background(), "xml", admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = svc.Export(context.Background(), "csv", authority)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

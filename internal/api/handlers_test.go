package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/pipeline/internal/control"
	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/queue"
)

type stubCampaignStore struct {
	campaign *domain.Campaign
}

func (s *stubCampaignStore) Create(_ context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = "c-1"
	}
	s.campaign = c
	return nil
}

func (s *stubCampaignStore) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return nil, domain.ErrNotFound
	}
	return s.campaign, nil
}

func (s *stubCampaignStore) SetActive(_ context.Context, id string, active bool) (bool, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return false, nil
	}
	changed := s.campaign.IsActive != active
	s.campaign.IsActive = active
	return changed, nil
}

func (s *stubCampaignStore) Delete(_ context.Context, id string) error {
	if s.campaign == nil || s.campaign.ID != id {
		return domain.ErrNotFound
	}
	s.campaign = nil
	return nil
}

type stubJobStore struct {
	hasRunning bool
	latest     *domain.CampaignJob
}

func (s *stubJobStore) Create(_ context.Context, j *domain.CampaignJob) error {
	if j.ID == "" {
		j.ID = "j-1"
	}
	return nil
}

func (s *stubJobStore) LatestForCampaign(_ context.Context, _ string) (*domain.CampaignJob, error) {
	if s.latest == nil {
		return nil, domain.ErrNotFound
	}
	return s.latest, nil
}

func (s *stubJobStore) HasRunning(_ context.Context, _ string) (bool, error) {
	return s.hasRunning, nil
}

func (s *stubJobStore) CancelOpenForCampaign(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

type stubAttemptStore struct{}

func (stubAttemptStore) Latest(_ context.Context, _ string) (*domain.JobAttempt, error) {
	return nil, domain.ErrNotFound
}

func (stubAttemptStore) CancelOpenForCampaign(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

type stubLeadStore struct{ count int64 }

func (s stubLeadStore) CountForCampaign(_ context.Context, _ string) (int64, error) {
	return s.count, nil
}

type stubQueue struct{}

func (stubQueue) Enqueue(_ context.Context, _ queue.Task, _ time.Duration) error { return nil }

func (stubQueue) RemovePendingForCampaign(_ context.Context, _ string) (int, error) { return 0, nil }

func newTestRouter(campaigns *stubCampaignStore, jobs *stubJobStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := control.NewService(control.Deps{
		Campaigns:  campaigns,
		Jobs:       jobs,
		Attempts:   stubAttemptStore{},
		Leads:      stubLeadStore{count: 7},
		LeadQueue:  stubQueue{},
		EmailQueue: stubQueue{},
		Logger:     logger.NewNopLogger(),
	})
	h := NewHandlers(svc, logger.NewNopLogger())

	router := gin.New()
	campaignsGroup := router.Group("/api/v1/campaigns")
	campaignsGroup.POST("", h.CreateCampaign)
	campaignsGroup.GET("/:id/status", h.GetStatus)
	campaignsGroup.POST("/:id/retry", h.Retry)
	campaignsGroup.POST("/:id/pause", h.Pause)
	campaignsGroup.POST("/:id/resume", h.Resume)
	campaignsGroup.DELETE("/:id", h.Delete)
	return router
}

func seededCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:       "c-1",
		UserID:   "u-1",
		Name:     "outreach",
		IsActive: true,
	}
}

func TestCreateCampaignEndpoint(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{}, &stubJobStore{})

	body := `{"user_id":"u-1","name":"outreach","sheet_id":"sheet-1","titles":["VP Sales"],"max_leads":100}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Campaign domain.Campaign `json:"campaign"`
		JobID    string          `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "outreach", resp.Campaign.Name)
	assert.Equal(t, 100, resp.Campaign.MaxLeads)
	assert.Equal(t, []string{"VP Sales"}, resp.Campaign.Titles)
}

func TestCreateCampaignEndpointValidation(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{}, &stubJobStore{})

	// user_id is required.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(`{"name":"outreach"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryEndpointConflictWhileRunning(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{campaign: seededCampaign()}, &stubJobStore{hasRunning: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/retry", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRetryEndpointAccepted(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{campaign: seededCampaign()}, &stubJobStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
}

func TestStatusEndpoint(t *testing.T) {
	jobs := &stubJobStore{latest: &domain.CampaignJob{
		ID:         "j-1",
		CampaignID: "c-1",
		Status:     domain.JobStatusSucceeded,
	}}
	router := newTestRouter(&stubCampaignStore{campaign: seededCampaign()}, jobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c-1/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var st control.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "c-1", st.Campaign.ID)
	require.NotNil(t, st.LatestJob)
	assert.Equal(t, domain.JobStatusSucceeded, st.LatestJob.Status)
	assert.Equal(t, int64(7), st.TotalLeads)
}

func TestStatusEndpointNotFound(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{}, &stubJobStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/missing/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPauseEndpoint(t *testing.T) {
	store := &stubCampaignStore{campaign: seededCampaign()}
	router := newTestRouter(store, &stubJobStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/pause", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.campaign.IsActive)
}

func TestDeleteEndpointNotFound(t *testing.T) {
	router := newTestRouter(&stubCampaignStore{}, &stubJobStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/campaigns/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

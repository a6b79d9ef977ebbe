package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadforge/pipeline/internal/control"
	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
)

// Handlers provides the campaign control endpoints.
type Handlers struct {
	service *control.Service
	logger  logger.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(service *control.Service, log logger.Logger) *Handlers {
	return &Handlers{service: service, logger: log}
}

type createCampaignRequest struct {
	UserID        string   `json:"user_id" binding:"required"`
	Name          string   `json:"name" binding:"required"`
	SheetID       string   `json:"sheet_id"`
	Titles        []string `json:"titles"`
	Locations     []string `json:"locations"`
	Keywords      []string `json:"keywords"`
	DomainFilters []string `json:"domain_filters"`
	MaxLeads      int      `json:"max_leads"`
	PageSize      int      `json:"page_size"`
	SearchMode    string   `json:"search_mode"`
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handlers) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := domain.NewCampaign(req.UserID, req.Name, req.SheetID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Titles) > 0 {
		campaign.Titles = req.Titles
	}
	if len(req.Locations) > 0 {
		campaign.Locations = req.Locations
	}
	if len(req.Keywords) > 0 {
		campaign.Keywords = req.Keywords
	}
	if len(req.DomainFilters) > 0 {
		campaign.DomainFilters = req.DomainFilters
	}
	if req.MaxLeads > 0 {
		campaign.MaxLeads = req.MaxLeads
	}
	if req.PageSize > 0 {
		campaign.PageSize = req.PageSize
	}
	if req.SearchMode != "" {
		campaign.SearchMode = domain.SearchMode(req.SearchMode)
	}

	job, err := h.service.CreateCampaign(c.Request.Context(), campaign)
	if err != nil {
		h.logger.Error("create campaign failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"campaign": campaign,
		"job_id":   job.ID,
	})
}

// GetStatus handles GET /api/v1/campaigns/:id/status. Safe to poll at
// seconds-level frequency.
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// Retry handles POST /api/v1/campaigns/:id/retry. Returns 409 while a job
// for the campaign is running.
func (h *Handlers) Retry(c *gin.Context) {
	job, err := h.service.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to schedule retry")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// Pause handles POST /api/v1/campaigns/:id/pause and /cancel. Idempotent.
func (h *Handlers) Pause(c *gin.Context) {
	if err := h.service.Pause(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "failed to pause campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// Resume handles POST /api/v1/campaigns/:id/resume.
func (h *Handlers) Resume(c *gin.Context) {
	if err := h.service.Resume(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "failed to resume campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// Delete handles DELETE /api/v1/campaigns/:id.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handlers) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "a job for this campaign is already running"})
	default:
		h.logger.Error(fallback,
			logger.Error(err),
			logger.String("path", c.Request.URL.Path),
			logger.String("method", c.Request.Method),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/entities"
	"github.com/vesseldocs/drivesync/internal/syncer"
)

// SyncController exposes sync job control: start, progress, cancel and
// per-file history.
type SyncController struct {
	registry     *connections.Registry
	orchestrator *syncer.Orchestrator
	jobs         *syncer.Jobs
	store        *syncer.Store
}

func NewSyncController(registry *connections.Registry, orchestrator *syncer.Orchestrator, jobs *syncer.Jobs, store *syncer.Store) *SyncController {
	return &SyncController{
		registry:     registry,
		orchestrator: orchestrator,
		jobs:         jobs,
		store:        store,
	}
}

type startSyncRequest struct {
	Folders []string `json:"folders"`
}

// Start launches a sync job for the tenant's active connection.
// Responds 202 with the job id; 409 when a job is already running.
func (s *SyncController) Start(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := s.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	var req startSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	job, err := s.orchestrator.Start(conn.ID, req.Folders)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		respondConflict(c, "a sync is already running for this connection")
		return
	}
	if errors.Is(err, connections.ErrConnectionInactive) {
		respondError(c, http.StatusConflict, "connection is not active")
		return
	}
	if err != nil {
		respondInternalError(c, err, "start sync")
		return
	}

	respondAccepted(c, "sync started", gin.H{
		"job_id":        job.ID,
		"connection_id": job.ConnectionID,
		"status":        job.Status,
	})
}

// Status reports a job's progress counters.
func (s *SyncController) Status(c *gin.Context) {
	jobID := c.Param("id")

	job, err := s.jobs.Get(jobID)
	if errors.Is(err, syncer.ErrJobNotFound) {
		respondNotFound(c, "sync job")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get sync job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel requests cooperative cancellation of the tenant's running job.
func (s *SyncController) Cancel(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := s.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	if !s.orchestrator.Cancel(conn.ID) {
		respondNotFound(c, "running sync job")
		return
	}

	respondAccepted(c, "cancellation requested", nil)
}

// History lists the tenant's sync jobs, newest first.
func (s *SyncController) History(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := s.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	limit := parseLimit(c, 20)
	jobs, err := s.jobs.ListByConnection(conn.ID, limit)
	if err != nil {
		respondInternalError(c, err, "list sync jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Files lists per-file sync records for the tenant's connection,
// optionally filtered by status.
func (s *SyncController) Files(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := s.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	status := entities.RecordStatus(c.Query("status"))
	limit := parseLimit(c, 100)

	records, err := s.store.ListByConnection(conn.ID, status, limit)
	if err != nil {
		respondInternalError(c, err, "list sync records")
		return
	}

	counts, err := s.store.CountByStatus(conn.ID)
	if err != nil {
		respondInternalError(c, err, "count sync records")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":  records,
		"counts": counts,
	})
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

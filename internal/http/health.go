package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/database"
)

// HealthController answers liveness probes. A connector that cannot
// reach its own database cannot track sync state, so the database ping
// is the dependency the probe covers; the Graph API and ingest service
// are deliberately excluded, their outages surface on sync records.
type HealthController struct {
	db      *database.Database
	version string
}

func NewHealthController(db *database.Database, version string) *HealthController {
	return &HealthController{db: db, version: version}
}

type healthReport struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// Status responds 200 when every check passes and 503 otherwise.
func (h *HealthController) Status(c *gin.Context) {
	checks := map[string]string{
		"database": h.databaseCheck(),
	}

	status, code := "healthy", http.StatusOK
	for _, result := range checks {
		if result != "ok" && result != "not configured" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	c.IndentedJSON(code, healthReport{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	})
}

func (h *HealthController) databaseCheck() string {
	if h.db == nil {
		return "not configured"
	}
	sqlDB, err := h.db.DB.DB()
	if err != nil {
		return "error: " + err.Error()
	}
	if err := sqlDB.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

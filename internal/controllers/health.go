package controllers

import (
	"net/http"

	"github.com/rsharda/pharmagenie/internal/models"
)

// HealthController reports service liveness and database reachability.
type HealthController struct {
	db *models.Database
}

func NewHealthController(db *models.Database) *HealthController {
	return &HealthController{db: db}
}

// GetHealth reports overall service health. Returns 503 when the
// configured database is unreachable; a service with no database
// configured is healthy on its own.
func (c *HealthController) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}

	if c.db != nil {
		if err := c.db.Health(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rsharda/pharmagenie/internal/progress"
)

// ProgressController upgrades websocket connections for live run progress.
type ProgressController struct {
	hub *progress.Hub
}

func NewProgressController(hub *progress.Hub) *ProgressController {
	return &ProgressController{hub: hub}
}

// Connect upgrades the request and registers the client with the hub. The
// client id ties the socket to subsequent POST /api/analyze calls.
func (c *ProgressController) Connect(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "missing client id")
		return
	}
	c.hub.ServeHTTP(w, r, clientID)
}

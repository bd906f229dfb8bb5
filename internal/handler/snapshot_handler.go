package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type snapshotAdmin interface {
	Current(ctx context.Context) (*models.Snapshot, error)
	Reload(ctx context.Context) (*models.Snapshot, error)
	Info() (models.SnapshotInfo, bool)
}

// SnapshotHandler exposes snapshot metadata and manual reloads.
type SnapshotHandler struct {
	snapshots snapshotAdmin
}

// NewSnapshotHandler constructs SnapshotHandler.
func NewSnapshotHandler(snapshots snapshotAdmin) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// Info godoc
// @Summary Snapshot metadata
// @Tags Snapshot
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /snapshot [get]
func (h *SnapshotHandler) Info(c *gin.Context) {
	info, ok := h.snapshots.Info()
	if !ok {
		snap, err := h.snapshots.Current(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		info = snap.Info()
	}
	response.JSON(c, http.StatusOK, info)
}

// Reload godoc
// @Summary Reload the snapshot from the backend
// @Tags Snapshot
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /snapshot/reload [post]
func (h *SnapshotHandler) Reload(c *gin.Context) {
	snap, err := h.snapshots.Reload(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snap.Info())
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"airdropbot/internal/models"
)

// SessionAdmin is the engine surface the admin API needs.
type SessionAdmin interface {
	Session(ctx context.Context, userID int64) (*models.Session, error)
	Remove(ctx context.Context, userID int64) error
	Stats(ctx context.Context) (map[models.SessionState]int, error)
}

type SessionHandler struct {
	admin SessionAdmin
	log   *zap.Logger
}

func NewSessionHandler(admin SessionAdmin, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{admin: admin, log: log.Named("admin")}
}

// GET /admin/sessions/:user_id
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := parseUserIDParam(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	sess, err := h.admin.Session(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("load session failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load session"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DELETE /admin/sessions/:user_id
func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := parseUserIDParam(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	if err := h.admin.Remove(c.Request.Context(), userID); err != nil {
		h.log.Error("remove session failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot remove session"})
		return
	}
	h.log.Info("session removed via admin API",
		zap.Int64("user_id", userID), zap.String("by", getAdminSubject(c)))
	c.Status(http.StatusNoContent)
}

// GET /admin/stats
func (h *SessionHandler) Stats(c *gin.Context) {
	counts, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot count sessions"})
		return
	}

	byState := make(map[string]int, len(models.AllStates))
	total := 0
	for _, st := range models.AllStates {
		if st == models.StateIdle {
			continue
		}
		byState[string(st)] = counts[st]
		total += counts[st]
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_state": byState})
}

// GET /healthz
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airdropbot/internal/authz"
	"airdropbot/internal/handlers"
	"airdropbot/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	integrationsHandler *handlers.IntegrationsHandler, // nil в режиме polling
	adminSecret string,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", handlers.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Telegram webhook публикуем только в режиме webhook
	if integrationsHandler != nil {
		r.POST("/integrations/telegram/webhook", integrationsHandler.Webhook)
	}

	// ---- admin (JWT)
	admin := r.Group("/admin",
		middleware.AdminAuth(adminSecret),
		middleware.RequireRoles(authz.RoleViewer, authz.RoleAdmin),
		middleware.ReadOnlyGuard(),
	)
	{
		admin.GET("/stats", sessionHandler.Stats)
		admin.GET("/sessions/:user_id", sessionHandler.Get)
		admin.DELETE("/sessions/:user_id", sessionHandler.Delete)
	}

	return r
}

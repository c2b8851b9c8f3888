package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-user-service/internal/core/auth"
	"go-user-service/internal/transport/http/handler"
	mdw "go-user-service/internal/transport/http/middleware"
)

// NewAdminEngine mounts the admin maintenance API under /admin/v1.
// The whole group requires the configured admin role (exact match on
// the role claim).
func NewAdminEngine(l *zap.Logger, jwter *auth.JWTer, adminRole string, admin *handler.AdminHandler) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		ginzap.Ginzap(l, time.RFC3339, true),
		ginzap.RecoveryWithZap(l, true),
		cors.Default(),
		mdw.Metrics(),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })

	g := r.Group("/admin/v1")
	g.Use(mdw.AuthJWT(jwter, adminRole))
	g.PUT("/users", admin.Update)
	g.PUT("/users/:id/role", admin.UpdateRole)
	g.POST("/roles/flush", admin.FlushSubroles)
	g.POST("/roles/remove", admin.RemoveSubroles)

	return r
}

package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-user-service/internal/core/auth"
	"go-user-service/internal/transport/http/handler"
	mdw "go-user-service/internal/transport/http/middleware"
)

// NewAPIEngine mounts the public and authenticated user API under
// /api/v1. The JWT middleware attaches the acting principal; each
// handler does its own authorization against it.
func NewAPIEngine(l *zap.Logger, jwter *auth.JWTer, users *handler.UserHandler, authH *handler.AuthHandler) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(10*time.Second),
		mdw.SimpleRecovery(),
		mdw.Metrics(),
		mdw.AccessLog(l),
		cors.Default(),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	// 公共接口（无需登录）
	api.POST("/auth/register", authH.Register)
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/forgot", authH.RequestPasswordReset)
	api.POST("/auth/reset", authH.ResetPassword)
	api.POST("/auth/verify/:token", authH.VerifyEmail)
	api.GET("/users/lookup", users.Lookup)

	// 鉴权分组
	authed := api.Group("")
	authed.Use(mdw.AuthJWT(jwter, ""))
	authed.GET("/me", users.Me)
	authed.GET("/users", users.List)
	authed.GET("/users/:id", users.Read)
	authed.POST("/users", users.Create)
	authed.PUT("/users", users.Update)
	authed.DELETE("/users/:id", users.Delete)
	authed.POST("/auth/password", authH.ChangePassword)
	authed.POST("/auth/verify/resend", authH.ResendVerification)

	return r
}

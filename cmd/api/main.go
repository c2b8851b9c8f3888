package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-user-service/internal/core/auth"
	"go-user-service/internal/core/cache"
	"go-user-service/internal/core/config"
	"go-user-service/internal/core/database"
	"go-user-service/internal/core/logger"
	"go-user-service/internal/core/mail"
	"go-user-service/internal/core/server"
	"go-user-service/internal/feature/user"
	"go-user-service/internal/repo"
	"go-user-service/internal/roles"
	"go-user-service/internal/transport/http/handler"
	"go-user-service/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.New(cfg.Log.Level, cfg.Log.JSON)
	defer cleanup()

	db := mustOpenDB(cfg, log)
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(&user.Model{}); err != nil {
			log.Fatal("automigrate failed", zap.Error(err))
		}
		log.Info("automigrate done")
	}

	jwter := &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
	}

	reg := roles.New(cfg.Auth.DefaultRole, cfg.Auth.AdminRole, cfg.Auth.Roles)

	policy, err := user.NewPolicy(cfg.Auth.PasswordPattern, cfg.Auth.PasswordMessage)
	if err != nil {
		log.Fatal("bad password pattern", zap.Error(err))
	}

	mailer, err := mail.NewClient(mail.Opts{
		Host:          cfg.Mail.Host,
		User:          cfg.Mail.User,
		Password:      cfg.Mail.Password,
		SenderAddress: cfg.Mail.SenderAddress,
		SkipVerify:    cfg.Mail.SkipVerify,
		WebAddress:    cfg.Mail.WebAddress,
	})
	if err != nil {
		log.Fatal("mail setup failed", zap.Error(err))
	}
	if !mailer.IsEnabled() {
		log.Warn("mail disabled, verification and reset emails will not be sent")
	}

	var ca *cache.Cache
	if cfg.Redis.Addr != "" {
		ca = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}

	store := repo.NewUserRepo(db)
	users := handler.NewUserHandler(store, reg, ca, log, cfg.Avatar.Host)
	authH := handler.NewAuthHandler(store, reg, mailer, policy, jwter, log, handler.AuthOpts{
		RegisterEnabled:     cfg.Auth.RegisterEnabled,
		RequireVerification: cfg.Auth.RequireVerification,
		TokenTTL:            time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		AvatarHost:          cfg.Avatar.Host,
	})

	r := router.NewAPIEngine(log, jwter, users, authH)

	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	log.Info("user api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("user api start FAILED", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("user api stopped gracefully")
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}

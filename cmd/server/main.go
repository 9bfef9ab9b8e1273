package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/sujalbistaa/drops/internal/config"
	"github.com/sujalbistaa/drops/internal/db"
	"github.com/sujalbistaa/drops/internal/drops"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/gating"
	routes "github.com/sujalbistaa/drops/internal/http"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/moderation"
	"github.com/sujalbistaa/drops/internal/polls"
	"github.com/sujalbistaa/drops/internal/presence"
	"github.com/sujalbistaa/drops/internal/ranking"
	"github.com/sujalbistaa/drops/internal/votes"
	"github.com/sujalbistaa/drops/internal/ws"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}
	if cfg.AdminToken == "" {
		log.Warn("X_ADMIN_TOKEN not set, admin routes are disabled")
	}

	database, err := db.Init(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	log.Info("running database migrations")
	if err := db.Migrate(database); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log.WithField("component", "ws"))
	go hub.Run(ctx)

	cadence := lifecycle.NewCadenceGuard(cfg.PostInterval)
	go cadence.Run(ctx, 10*time.Minute)

	tracker := newTracker(ctx, cfg, log)
	ledger := economy.NewLedger(database)

	env := &routes.Env{
		Drops: &drops.Service{
			DB:      database,
			Ledger:  ledger,
			Cadence: cadence,
			Scanner: moderation.NewKeywordFilter(cfg.Blocklist, cfg.CrisisTerms),
			Log:     log.WithField("component", "drops"),
		},
		Votes:     &votes.Ledger{DB: database, Log: log.WithField("component", "votes")},
		Gate:      &gating.Gate{DB: database, Ledger: ledger, Log: log.WithField("component", "gating")},
		Polls:     &polls.Engine{DB: database, Ledger: ledger, Log: log.WithField("component", "polls")},
		Feed:      &ranking.Feed{DB: database, Mix: ranking.Mix{HotRatio: cfg.HotRatio, Hook: ranking.DefaultMix.Hook}},
		Presence:  tracker,
		Ledger:    ledger,
		Hub:       hub,
		Log:       log.WithField("component", "http"),
		FeedLimit: cfg.FeedLimit,
	}

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupRoutes(ctx, router, env, routes.Options{
		CORSOrigin: cfg.CORSOrigin,
		AdminToken: cfg.AdminToken,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server exiting")
}

func newTracker(ctx context.Context, cfg config.Config, log logrus.FieldLogger) presence.Tracker {
	if cfg.PresenceBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).WithField("addr", cfg.RedisAddr).Fatal("redis unreachable")
		}
		log.WithField("addr", cfg.RedisAddr).Info("presence backed by redis")
		return presence.NewRedisTracker(rdb, cfg.PresenceTTL)
	}

	m := presence.NewMemoryTracker(cfg.PresenceTTL)
	go m.Run(ctx, cfg.PresenceTTL)
	return m
}

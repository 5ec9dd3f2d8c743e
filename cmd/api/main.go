package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"meetsign/internal/attendance"
	"meetsign/internal/backup"
	"meetsign/internal/config"
	"meetsign/internal/directory"
	"meetsign/internal/events"
	"meetsign/internal/exam"
	"meetsign/internal/handler"
	"meetsign/internal/hostaddr"
	"meetsign/internal/httpmiddleware"
	"meetsign/internal/meeting"
	"meetsign/internal/metrics"
	"meetsign/internal/store"
	"meetsign/internal/token"
)

func main() {
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	roster := directory.NewRepository(db.Client)
	tokens := token.NewManager(db.Client, hostaddr.First, cfg.PublicPort)
	ledger := attendance.NewLedger(db.Client, roster)
	meetings := meeting.NewService(db.Client, tokens, ledger)
	recorder := events.NewRecorder(db.Client, roster)
	exams := exam.NewRepository(db.Client, roster)

	h := handler.New(log, roster, meetings, ledger, recorder, tokens, exams)

	var limiter httpmiddleware.Limiter
	var redisClient *redis.Client
	if cfg.RateBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		limiter = httpmiddleware.NewRedisFixedWindow(redisClient, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(metrics.GinMiddleware())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		healthy := db.Client.PingContext(c.Request.Context()) == nil
		redisHealthy := true
		if redisClient != nil {
			redisHealthy = redisClient.Ping(c.Request.Context()).Err() == nil
		}
		if !healthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": healthy, "redis": redisHealthy})
	})

	h.RegisterRoutes(r)

	// Sign-in landing page and admin frontend.
	r.Static("/static", cfg.FrontendDir+"/static")
	r.StaticFile("/", cfg.FrontendDir+"/index.html")
	r.GET("/sign-in/:id", func(c *gin.Context) {
		c.File(cfg.FrontendDir + "/sign-in.html")
	})

	if cfg.BackupEnabled {
		runner := backup.New(log, cfg.DBPath, cfg.BackupDir, cfg.BackupSchedule, cfg.BackupKeep)
		if err := runner.Start(); err != nil {
			return err
		}
		defer runner.Stop()
	} else {
		log.Info("scheduled backup disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

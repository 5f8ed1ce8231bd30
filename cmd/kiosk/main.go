package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mesbahamin/timebook/internal/attendance"
	"github.com/mesbahamin/timebook/internal/auth"
	"github.com/mesbahamin/timebook/internal/clock"
	"github.com/mesbahamin/timebook/internal/config"
	"github.com/mesbahamin/timebook/internal/httpmiddleware"
	"github.com/mesbahamin/timebook/internal/metrics"
	"github.com/mesbahamin/timebook/internal/queue"
	"github.com/mesbahamin/timebook/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("kiosk server failed")
	}
}

func run(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.NewSystem(loc)

	// The ledger must be durable; refusing to start without Postgres is
	// the one fatal condition.
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var feed queue.Feed
	if cfg.QueueBackend == "memory" {
		feed = queue.NewInMemory(64)
	} else {
		feed = queue.NewRedisFeed(redisClient.Client, queue.DefaultKey)
	}

	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, repo, clk, feed, log.Logger)
	reconciler := attendance.NewReconciler(repo, clk, cfg.ClosingTime, feed, log.Logger)

	// Entries forgotten while the process was down get remediated
	// before the first toggle.
	runReconciliation(ctx, reconciler)
	go reconcileLoop(ctx, reconciler, cfg.ReconcileInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/kiosks/register", func(c *gin.Context) {
		var req struct {
			KioskID string `json:"kiosk_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.RegisterKiosk(c.Request.Context(), req.KioskID); err != nil {
			respondError(c, err)
			return
		}

		tokens, err := auth.Issue(req.KioskID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		if err := repo.SaveRefreshToken(c.Request.Context(), req.KioskID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Warn().Err(err).Msg("refresh token save failed")
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.KioskAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/toggle", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.Toggle(c.Request.Context(), req.UserID, attendance.Role(req.Role))
		if err != nil {
			metrics.Toggles.WithLabelValues(errorCode(err)).Inc()
			respondError(c, err)
			return
		}
		metrics.Toggles.WithLabelValues(string(result.Status)).Inc()
		c.JSON(http.StatusOK, result)
	})

	authGroup.GET("/present", func(c *gin.Context) {
		present, err := svc.CurrentlyPresent(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if present == nil {
			present = []attendance.Presence{}
		}
		c.JSON(http.StatusOK, gin.H{"present": present})
	})

	authGroup.GET("/users/:user_id/entries", func(c *gin.Context) {
		from, ok := dateQuery(c, "from")
		if !ok {
			return
		}
		to, ok := dateQuery(c, "to")
		if !ok {
			return
		}

		entries, err := svc.HistoryFor(c.Request.Context(), c.Param("user_id"), from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		if entries == nil {
			entries = []attendance.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	// Administrative provisioning: the external write path into the
	// identity store.
	authGroup.POST("/admin/users", func(c *gin.Context) {
		var u attendance.User
		if err := c.ShouldBindJSON(&u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if u.UserID == "" || u.DateJoined.IsZero() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and date_joined required"})
			return
		}
		if err := repo.UpsertUser(c.Request.Context(), u); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	authGroup.POST("/admin/users/:user_id/deactivate", func(c *gin.Context) {
		var req struct {
			DateLeft string `json:"date_left" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dateLeft, err := time.ParseInLocation("2006-01-02", req.DateLeft, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_left must be YYYY-MM-DD"})
			return
		}
		if err := repo.DeactivateUser(c.Request.Context(), c.Param("user_id"), dateLeft); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "date_left": req.DateLeft})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("kiosk server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func runReconciliation(ctx context.Context, reconciler *attendance.Reconciler) {
	closed, err := reconciler.Run(ctx)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("reconciliation scan failed")
		return
	}
	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	metrics.ForgottenEntries.Add(float64(closed))
	if closed > 0 {
		log.Info().Int("closed", closed).Msg("reconciliation pass finished")
	}
}

func reconcileLoop(ctx context.Context, reconciler *attendance.Reconciler, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runReconciliation(ctx, reconciler)
		case <-ctx.Done():
			return
		}
	}
}

// dateQuery parses an optional YYYY-MM-DD query parameter. On a malformed
// value it writes a 400 and reports false.
func dateQuery(c *gin.Context, key string) (time.Time, bool) {
	val := c.Query(key)
	if val == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}

// respondError maps domain errors to distinct HTTP statuses and
// machine-readable codes so kiosks can render the right message.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrUnknownUser):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrInactiveUser),
		errors.Is(err, attendance.ErrAmbiguousRole),
		errors.Is(err, attendance.ErrInvalidRole):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrDuplicateOpenEntry),
		errors.Is(err, attendance.ErrNoOpenEntry),
		errors.Is(err, attendance.ErrClockSkew):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errorCode(err)})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, attendance.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, attendance.ErrInactiveUser):
		return "inactive_user"
	case errors.Is(err, attendance.ErrAmbiguousRole):
		return "ambiguous_role"
	case errors.Is(err, attendance.ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, attendance.ErrDuplicateOpenEntry):
		return "duplicate_open_entry"
	case errors.Is(err, attendance.ErrNoOpenEntry):
		return "no_open_entry"
	case errors.Is(err, attendance.ErrClockSkew):
		return "clock_skew"
	case errors.Is(err, attendance.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// CORS middleware for browser-based kiosk frontends.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

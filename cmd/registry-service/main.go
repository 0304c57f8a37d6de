package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/middlewares"
	"bitbucket.org/mohealth/registry_backend/models"
	"bitbucket.org/mohealth/registry_backend/registrysync"
	"bitbucket.org/mohealth/registry_backend/utils"
	"bitbucket.org/mohealth/registry_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("REGISTRY_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	registryCfg, err := config.LoadRegistryConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(func(c *gin.Context) {
		if c.GetHeader("token") == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token := strings.TrimSpace(auth[7:])
				if token != "" {
					c.Request.Header.Set("token", token)
				}
			}
		}
		c.Next()
	})
	r.Use(middlewares.SessionMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	syncService, err := registrysync.NewService(registryCfg, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "upstreams"}).Fatal(err)
	}
	provisioner := workflow.NewProvisioner(syncService.OpenMRS, workflow.NewStore(), registryCfg, logger)
	recoverer := &workflow.Recoverer{
		Provisioner: provisioner,
		Store:       workflow.NewStore(),
		Concurrency: registryCfg.RecoveryConcurrency,
		Logger:      logger,
		Locker:      config.GetRedisLock(),
	}

	// API endpoints (registry)
	r.POST("/api/registry/login", workflow.LoginHandler())
	r.POST("/api/registry/sync/:collection", registrysync.TriggerSyncHandler(syncService))
	r.GET("/api/registry/sync-runs", registrysync.ListSyncRunsHandler())
	r.GET("/api/registry/members", workflow.ListMembersHandler())
	r.POST("/api/registry/accounts", workflow.ProvisionHandler(provisioner))
	r.POST("/api/registry/recovery/accounts", workflow.EnqueueRecoveryHandler())
	r.POST("/api/registry/recovery/run", workflow.RecoveryRunHandler(recoverer))

	// Pub/Sub push endpoint for sync worker.
	r.POST("/pubsub/registry-sync", registrysync.PubSubPushHandler(syncService))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if startupSyncs := splitAndTrim(os.Getenv("SYNC_ON_START")); len(startupSyncs) > 0 {
		go func() {
			for _, collection := range startupSyncs {
				if _, err := syncService.QueueRun(context.Background(), collection, models.SyncTriggeredSystem); err != nil {
					logger.WithFields(logrus.Fields{
						"field":      "startupSync",
						"collection": collection,
					}).Error(err)
				}
			}
		}()
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		fields := logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}
		if username, ok := utils.GetUsernameFromContext(c.Request.Context()); ok {
			fields["username"] = username
		}
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
			fields["user_id"] = userId
		}
		if role, ok := utils.GetRoleFromContext(c.Request.Context()); ok {
			fields["role"] = role
		}
		logger.WithFields(fields).Info("request")
	}
}

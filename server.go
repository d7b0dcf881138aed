package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/ingestion"
	"github.com/contabilhub/contabil_backend/middlewares"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/workflow"
)

const defaultPort = "8080"

// documentStore is the blob gateway used by the upload and ingestion
// handlers. Production is GCS; tests swap in the in-memory store.
var documentStore ingestion.ObjectStore = ingestion.NewGCSStore()

func newOrchestrator() *ingestion.Orchestrator {
	return ingestion.NewOrchestrator(config.GetDB(), documentStore)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs request errors collected by gin.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func buildCorsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist; anything else allows all
	// for developer convenience.
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
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Client-Id", "X-Correlation-Id", "Last-Event-ID")
	corsConfig.AddExposeHeaders("Content-Length", "X-Correlation-Id")
	corsConfig.AllowCredentials = true
	return corsConfig
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

// registerValidators adds the domain validations used by binding tags.
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("doctype", func(fl validator.FieldLevel) bool {
			return models.DocumentType(fl.Field().String()).IsValid()
		})
	}
}

func buildRouter(logger *logrus.Logger) *gin.Engine {
	registerValidators()
	r := gin.New()

	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Cloud Run startup probe must always succeed.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// App endpoints return 503 until the database is connected.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.Use(cors.New(buildCorsConfig()))
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/pubsub", documentEventPushHandler())

	api := r.Group("/api", middlewares.RequireAuth(), middlewares.TenantMiddleware())
	api.POST("/documents", uploadDocumentHandler())
	api.GET("/documents", listDocumentsHandler())
	api.GET("/documents/:id", getDocumentHandler())
	api.DELETE("/documents/:id", deleteDocumentHandler())
	api.POST("/documents/:id/reprocess", reprocessDocumentHandler())
	api.POST("/ingest", ingestDocumentHandler())
	api.POST("/payroll/parse", payrollParseHandler())
	api.GET("/payroll/export", payrollExportHandler())
	api.POST("/assistant", assistantHandler())

	r.NoRoute(customNotFoundHandler)
	return r
}

// directPublishFunc short-circuits Pub/Sub for local development: the event
// is handled in-process as if it had been pushed back by the subscription.
func directPublishFunc(logger *logrus.Logger) workflow.PublishFunc {
	return func(ctx context.Context, clientId string, msg config.DocumentEventMessage) (string, error) {
		messageId := "direct:" + uuid.NewString()
		if err := handleDocumentEvent(ctx, logger, messageId, msg); err != nil {
			return "", err
		}
		return messageId, nil
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for a
	// graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := buildRouter(logger)

	// Start listening immediately (Cloud Run startup probe is TCP based);
	// dependencies connect afterwards behind the readiness gate.
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

	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Outbox dispatcher publishes committed document events. With direct
	// processing enabled the events are handled in-process instead.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	dispatcher := workflow.NewOutboxDispatcher(db, logger)
	if config.OutboxDirectProcessing() {
		logger.WithFields(logrus.Fields{"field": "outbox"}).Warn("OUTBOX_DIRECT_PROCESSING=true; events are handled in-process, not published")
		dispatcher.Publish = directPublishFunc(logger)
	}
	go dispatcher.Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"port": port,
	}).Info("server started")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't pick up new work while
	// requests drain.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
)

// Scanner records URL scans and serves the activity history.
type Scanner interface {
	Scan(ctx context.Context, userID, url string) (*activity.ScanResult, error)
	Recent(ctx context.Context, userID string, limit int) ([]*models.ActivityLog, error)
	Filter(ctx context.Context, userID string, risk models.URLRisk) ([]*models.ActivityLog, error)
	Dashboard(ctx context.Context, userID string) (*activity.Dashboard, error)
}

// Messages drives the SMS lifecycle.
type Messages interface {
	Send(ctx context.Context, sender, receiver, text string) (*models.Message, error)
	Get(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, receiver string, level models.RiskLevel) ([]*models.Message, error)
	Delete(ctx context.Context, id string) error
	ReportAndDelete(ctx context.Context, id string) (*reputation.ReportResult, error)
}

// Reputation files reports and answers block queries.
type Reputation interface {
	IsBlocked(ctx context.Context, sender, receiver string) (bool, error)
	ReportSender(ctx context.Context, sender, reporter string) (*reputation.ReportResult, error)
}

// Views opens live views for streaming.
type Views interface {
	Open(ctx context.Context, kind liveview.Kind, phone string, onChange func(liveview.State)) (*liveview.View, error)
}

// Coach is the safety assistant.
type Coach interface {
	Reply(ctx context.Context, userID, text string) (string, error)
	Advice(ctx context.Context, userID string) (string, error)
	History(userID string) []models.ChatMessage
	Reset(userID string)
}

type Deps struct {
	Scanner     Scanner
	Messages    Messages
	Reputation  Reputation
	Views       Views
	Coach       Coach
	Metrics     http.Handler
	MetricsPath string
}

type Router struct {
	engine *gin.Engine
	deps   Deps
	logger *zap.Logger
}

func NewRouter(deps Deps, logger *zap.Logger) *Router {
	r := &Router{
		engine: gin.New(),
		deps:   deps,
		logger: logger.Named("api"),
	}

	r.engine.Use(gin.Recovery(), requestID(), r.accessLog())

	r.engine.GET("/health", r.handleHealth)
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(deps.Metrics))
	}
	r.engine.NoRoute(r.handleNotFound)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/scans", r.handleScan)
		v1.GET("/users/:user_id/activity", r.handleActivity)
		v1.GET("/users/:user_id/dashboard", r.handleDashboard)

		v1.POST("/messages", r.handleSendMessage)
		v1.POST("/messages/template", r.handleSendTemplate)
		v1.GET("/messages", r.handleListMessages)
		v1.GET("/messages/:id", r.handleGetMessage)
		v1.DELETE("/messages/:id", r.handleDeleteMessage)
		v1.POST("/messages/:id/report", r.handleReportMessage)
		v1.GET("/templates", r.handleTemplates)

		v1.POST("/reports", r.handleReport)
		v1.GET("/reports/blocked", r.handleIsBlocked)

		v1.GET("/views/:kind/:phone/stream", r.handleStream)

		v1.POST("/coach/:user_id/chat", r.handleChat)
		v1.POST("/coach/:user_id/advice", r.handleAdvice)
		v1.GET("/coach/:user_id/history", r.handleHistory)
		v1.DELETE("/coach/:user_id/history", r.handleResetHistory)

		v1.GET("/tips", r.handleTips)
		v1.GET("/tips/random", r.handleRandomTip)
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (r *Router) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

// requestID adds a unique ID to each request
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("RequestID", rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func (r *Router) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		rid, _ := c.Get("RequestID")
		r.logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Any("request_id", rid))
	}
}

package facade

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	bridgeerrors "github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/runtime"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

type CreateRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Priority    string `json:"priority" form:"priority"`
}

type ChangeStatusRequest struct {
	ID       string `json:"id" form:"id"`
	Status   string `json:"status" form:"status"`
	Assignee string `json:"assignee" form:"assignee"`
	Comment  string `json:"comment" form:"comment"`
}

// Server serves the facade over HTTP.
type Server struct {
	facade *Facade
	handle *runtime.Handle
	logger *zap.Logger
	router *gin.Engine
	http   *http.Server
}

type ServerOption func(*Server)

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

func NewServer(addr string, f *Facade, h *runtime.Handle, opts ...ServerOption) *Server {
	s := &Server{
		facade: f,
		handle: h,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(s.logger))
	router.POST("/incident/create", s.createIncident)
	router.POST("/incident/change_status", s.changeStatus)
	router.GET("/healthz", s.health)
	s.router = router

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) createIncident(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBind(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	id, err := s.facade.CreateRecord(c.Request.Context(), req.Title, req.Description, req.Priority)
	s.respond(c, id, err)
}

func (s *Server) changeStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBind(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	status, err := s.facade.ChangeStatus(c.Request.Context(), req.ID, req.Status, req.Assignee, req.Comment)
	s.respond(c, status, err)
}

func (s *Server) respond(c *gin.Context, body string, err error) {
	if err != nil {
		s.logger.Warn("bridge call failed",
			zap.String(requestIDKey, c.GetString(requestIDKey)),
			zap.String("kind", string(bridgeerrors.KindOf(err))),
			zap.Error(err))
		c.String(http.StatusInternalServerError, "bridge error: %s", err.Error())
		return
	}
	c.String(http.StatusOK, "%s", body)
}

func (s *Server) health(c *gin.Context) {
	pool := s.facade.Pool()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"api_version": runtime.APIVersion.String(),
		"attachments": s.handle.Attached(),
		"services":    s.handle.Engine().Services(),
		"workers":     pool.Workers(),
		"pending":     pool.Pending(),
	})
}

// RequestID propagates or assigns the X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := zap.InfoLevel
		if status >= 500 {
			level = zap.ErrorLevel
		} else if status >= 400 {
			level = zap.WarnLevel
		}

		logger.Log(level, "http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
			zap.String(requestIDKey, c.GetString(requestIDKey)))
	}
}

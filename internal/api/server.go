// Package api serves the docchat HTTP API with echo.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/config"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/metrics"
	"github.com/Aman-CERP/docchat/internal/store"
)

// Routes
const (
	RouteRoot      = "/"
	RouteHealth    = "/health"
	RouteMetrics   = "/metrics"
	RouteUpload    = "/api/upload"
	RouteChat      = "/api/chat"
	RouteHistory   = "/api/history"
	RouteReset     = "/api/reset"
	RouteDocuments = "/api/documents"
)

// Rate limiter bookkeeping.
const (
	limiterIdleTTL       = time.Hour
	limiterSweepInterval = 10 * time.Minute
)

// Service is the application behaviour behind the HTTP API.
type Service interface {
	Ingest(ctx context.Context, name string, data []byte) (*chat.IngestResult, error)
	Chat(ctx context.Context, message string) (*chat.Reply, error)
	History(ctx context.Context) ([]store.Message, error)
	Reset(ctx context.Context) (int64, error)
	Documents(ctx context.Context) ([]store.FileInfo, error)
	Status(ctx context.Context) (*chat.Status, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigins    []string
	MaxUploadBytes int64

	// Rate limits per client IP. Upload and Chat replace Default on their
	// routes; nil slices disable limiting.
	RateLimitEnabled bool
	DefaultLimits    []config.RateRule
	UploadLimits     []config.RateRule
	ChatLimits       []config.RateRule
}

// ConfigFrom builds a server Config from the application configuration.
func ConfigFrom(cfg *config.Config) (Config, error) {
	out := Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		CORSOrigins:      cfg.Server.CORSOrigins,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes(),
		RateLimitEnabled: cfg.RateLimit.Enabled,
	}
	var err error
	if out.DefaultLimits, err = config.ParseRateLimits(cfg.RateLimit.Default); err != nil {
		return out, err
	}
	if out.UploadLimits, err = config.ParseRateLimits(cfg.RateLimit.Upload); err != nil {
		return out, err
	}
	if out.ChatLimits, err = config.ParseRateLimits(cfg.RateLimit.Chat); err != nil {
		return out, err
	}
	return out, nil
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	svc     Service
	metrics *metrics.Metrics
	config  Config

	defaultLimits *clientLimiters
	uploadLimits  *clientLimiters
	chatLimits    *clientLimiters
}

// NewServer creates a server; m may be nil.
func NewServer(svc Service, m *metrics.Metrics, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 5000
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, svc: svc, metrics: m, config: cfg}
	e.HTTPErrorHandler = s.handleError

	if cfg.RateLimitEnabled {
		s.defaultLimits = newClientLimiters(cfg.DefaultLimits)
		s.uploadLimits = newClientLimiters(cfg.UploadLimits)
		s.chatLimits = newClientLimiters(cfg.ChatLimits)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.observe)
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: origins}))
	if cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", max(1, cfg.MaxUploadBytes/1024))))
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET(RouteHealth, s.handleHealth)
	s.echo.GET(RouteMetrics, echo.WrapHandler(s.metrics.Handler()))

	s.echo.GET(RouteRoot, s.handleRoot, s.limit(s.defaultLimits))
	s.echo.POST(RouteUpload, s.handleUpload, s.limit(s.uploadLimits))
	s.echo.POST(RouteChat, s.handleChat, s.limit(s.chatLimits))
	s.echo.GET(RouteHistory, s.handleHistory, s.limit(s.defaultLimits))
	s.echo.POST(RouteReset, s.handleReset, s.limit(s.defaultLimits))
	s.echo.GET(RouteDocuments, s.handleDocuments, s.limit(s.defaultLimits))
}

// observe logs and measures every request.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)
		status := c.Response().Status

		s.metrics.RecordHTTP(c.Path(), status, duration)
		slog.Debug("http_request",
			slog.String("method", c.Request().Method),
			slog.String("uri", c.Request().RequestURI),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
		return nil
	}
}

// limit rejects clients over any rule of l with 429.
func (s *Server) limit(l *clientLimiters) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				s.metrics.RecordRateLimited(c.Path())
				return dcerrors.New(dcerrors.ErrCodeRateLimited, "rate limit exceeded", nil)
			}
			return next(c)
		}
	}
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Status  string `json:"status"`
	Files   int    `json:"files"`
	Vectors int    `json:"vectors"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// UploadResponse is the body of POST /api/upload.
type UploadResponse struct {
	Status    string `json:"status"`
	Chunks    int    `json:"chunks"`
	FileName  string `json:"file_name"`
	FirstSlot int    `json:"first_slot"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// StatusResponse is the body of POST /api/reset.
type StatusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRoot(c echo.Context) error {
	resp := RootResponse{Status: "docchat backend. Use the frontend to chat."}
	if st, err := s.svc.Status(c.Request().Context()); err == nil {
		resp.Files = st.Files
		resp.Vectors = st.Vectors
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return dcerrors.New(dcerrors.ErrCodeNoFile, "no file uploaded", err)
	}
	f, err := fh.Open()
	if err != nil {
		return dcerrors.IOError("failed to read upload", err)
	}
	defer func() { _ = f.Close() }()

	reader := io.Reader(f)
	if s.config.MaxUploadBytes > 0 {
		reader = io.LimitReader(f, s.config.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return dcerrors.IOError("failed to read upload", err)
	}

	res, err := s.svc.Ingest(c.Request().Context(), fh.Filename, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UploadResponse{
		Status:    "ok",
		Chunks:    res.Chunks,
		FileName:  res.FileName,
		FirstSlot: res.FirstSlot,
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return dcerrors.New(dcerrors.ErrCodeInvalidInput, "invalid request body", err)
	}
	reply, err := s.svc.Chat(c.Request().Context(), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleHistory(c echo.Context) error {
	msgs, err := s.svc.History(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleReset(c echo.Context) error {
	if _, err := s.svc.Reset(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleDocuments(c echo.Context) error {
	files, err := s.svc.Documents(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, files)
}

// Handler exposes the router (tests, embedding in another server).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	slog.Info("http_server_starting", slog.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SweepLimiters drops idle clients from the rate limiters until ctx is done.
func (s *Server) SweepLimiters(ctx context.Context) error {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, l := range []*clientLimiters{s.defaultLimits, s.uploadLimits, s.chatLimits} {
				if l != nil {
					l.Sweep(limiterIdleTTL)
				}
			}
		}
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http_server_stopping")
	return s.echo.Shutdown(ctx)
}

// Package httpserver exposes the dashboard engine as a local JSON API for UI
// drivers.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/templates"
	"github.com/tinytelemetry/canopy/internal/visibility"
	"go.uber.org/zap"
)

// HealthChecker reports storage row counts for /api/health.
type HealthChecker interface {
	TableRowCounts(ctx context.Context) (map[string]int64, error)
}

// Server provides the HTTP API.
type Server struct {
	addr      string
	engine    *dashboard.Engine
	health    HealthChecker
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHealthChecker adds storage stats to /api/health.
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, engine *dashboard.Engine, opts ...Option) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		engine:    engine,
		logger:    zap.NewNop(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")
	return s
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)

	api.GET("/templates", s.handleListTemplates)
	api.POST("/templates", s.handleCreateTemplate)
	api.POST("/templates/bootstrap", s.handleBootstrap)
	api.GET("/templates/:id", s.handleGetTemplate)
	api.PATCH("/templates/:id", s.handleUpdateTemplate)
	api.DELETE("/templates/:id", s.handleDeleteTemplate)
	api.POST("/templates/:id/duplicate", s.handleDuplicateTemplate)
	api.POST("/templates/:id/toggle", s.handleToggleTemplate)
	api.POST("/templates/:id/select", s.handleSelectTemplate)

	api.GET("/visibility", s.handleGetVisibility)
	api.PUT("/visibility", s.handleSetVisibility)
	api.POST("/visibility/all", s.handleToggleAllVisibility)
	api.POST("/visibility/:kind/toggle", s.handleToggleVisibility)

	api.GET("/dashboard", s.handleDashboard)
	api.POST("/overview", s.handleOverview)

	api.POST("/refresh", s.handleRefreshNow)
	api.PUT("/refresh", s.handleSetRefresh)
	api.DELETE("/refresh", s.handleStopRefresh)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	s.logger.Info("api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalid), errors.Is(err, visibility.ErrUnknownKind):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"refresh": s.engine.RefreshState(),
	}
	if s.health != nil {
		counts, err := s.health.TableRowCounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		body["row_counts"] = counts
	}
	c.JSON(http.StatusOK, body)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleListTemplates(c *gin.Context) {
	rows, err := s.engine.Repository().Search(c.Request.Context(), templates.Filter{
		Text:   c.Query("q"),
		Status: templates.StatusFilter(c.Query("status")),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if rows == nil {
		rows = []model.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": rows, "count": len(rows)})
}

func (s *Server) handleCreateTemplate(c *gin.Context) {
	draft := model.NewTemplateDraft()
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	id, err := s.engine.Repository().Create(c.Request.Context(), draft)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleBootstrap(c *gin.Context) {
	n, err := s.engine.Repository().BootstrapDefaults(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": n})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := s.engine.Repository().Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var patch templates.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	t, err := s.engine.Repository().Update(c.Request.Context(), id, patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.Repository().Remove(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDuplicateTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}
	newID, err := s.engine.Repository().Duplicate(c.Request.Context(), id, req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": newID})
}

func (s *Server) handleToggleTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.Repository().ToggleActive(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSelectTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := s.engine.SelectTemplate(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type visibilityResponse struct {
	State     map[model.ComponentKind]bool `json:"state"`
	Visible   []model.ComponentKind        `json:"visible"`
	Stats     visibility.Stats             `json:"stats"`
	SelectAll visibility.SelectAllState    `json:"selectAll"`
}

func (s *Server) visibilityBody() visibilityResponse {
	vis := s.engine.Visibility()
	st := vis.Stats()
	visible := vis.VisibleKinds()
	if visible == nil {
		visible = []model.ComponentKind{}
	}
	return visibilityResponse{State: vis.State(), Visible: visible, Stats: st, SelectAll: st.SelectAll()}
}

func (s *Server) handleGetVisibility(c *gin.Context) {
	c.JSON(http.StatusOK, s.visibilityBody())
}

func (s *Server) handleSetVisibility(c *gin.Context) {
	var req struct {
		Kinds []model.ComponentKind `json:"kinds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.engine.Visibility().SetExact(req.Kinds); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.visibilityBody())
}

func (s *Server) handleToggleAllVisibility(c *gin.Context) {
	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"visible\": bool}"})
		return
	}
	if err := s.engine.Visibility().ToggleAll(*req.Visible); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.visibilityBody())
}

func (s *Server) handleToggleVisibility(c *gin.Context) {
	kind := model.ComponentKind(c.Param("kind"))
	visible, err := s.engine.Visibility().Toggle(kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "visible": visible})
}

func (s *Server) handleDashboard(c *gin.Context) {
	frame, err := s.engine.Render(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, frame)
}

func (s *Server) handleOverview(c *gin.Context) {
	if err := s.engine.SelectOverview(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.visibilityBody())
}

type roundResponse struct {
	Round     string                     `json:"round,omitempty"`
	Succeeded []model.ChartKind          `json:"succeeded"`
	Failed    map[model.ChartKind]string `json:"failed"`
}

func (s *Server) handleRefreshNow(c *gin.Context) {
	resp := roundResponse{Succeeded: []model.ChartKind{}, Failed: map[model.ChartKind]string{}}
	add := func(res charts.Result) {
		if res.OK() {
			resp.Succeeded = append(resp.Succeeded, res.Kind)
		} else {
			resp.Failed[res.Kind] = res.Err.Error()
		}
	}

	if kind := c.Query("kind"); kind != "" {
		res, err := s.engine.RefreshKind(c.Request.Context(), model.ChartKind(kind))
		if err != nil {
			s.writeError(c, err)
			return
		}
		add(res)
		c.JSON(http.StatusOK, resp)
		return
	}

	round := s.engine.RefreshNow(c.Request.Context())
	resp.Round = round.ID.String()
	for _, res := range round.Results {
		add(res)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSetRefresh(c *gin.Context) {
	var req struct {
		IntervalMs int `json:"intervalMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.engine.SetRefreshInterval(time.Duration(req.IntervalMs) * time.Millisecond); err != nil {
		s.writeError(c, err)
		return
	}
	if !s.engine.RefreshState().Running {
		if err := s.engine.ResumeRefresh(); err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.engine.RefreshState())
}

func (s *Server) handleStopRefresh(c *gin.Context) {
	s.engine.PauseRefresh()
	c.JSON(http.StatusOK, s.engine.RefreshState())
}

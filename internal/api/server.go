package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arblog/internal/config"
	"arblog/internal/database"
	"arblog/internal/model"
)

const defaultPageSize = 100

// StateChecker reports whether the log is provisioned.
type StateChecker interface {
	State(ctx context.Context) (model.LogState, error)
}

// Server exposes the attempt log over HTTP.
type Server struct {
	logger *slog.Logger
	repo   database.Repository
	state  StateChecker
	stream http.HandlerFunc
	cfg    config.ServerConfig

	httpServer *http.Server
}

// NewServer creates a new Server. stream may be nil to disable /api/stream.
func NewServer(logger *slog.Logger, repo database.Repository, state StateChecker, stream http.HandlerFunc, cfg config.ServerConfig) *Server {
	s := &Server{
		logger: logger,
		repo:   repo,
		state:  state,
		stream: stream,
		cfg:    cfg,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.health)

	g := router.Group("/api")
	g.POST("/attempts", s.appendAttempt)
	g.GET("/attempts", s.listAttempts)
	g.GET("/attempts/:id", s.getAttempt)
	g.GET("/stats", s.stats)
	if s.stream != nil {
		g.GET("/stream", gin.WrapF(s.stream))
	}
	return router
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Server: starting HTTP API", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Server: shutting down HTTP API")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()
		s.logger.Debug("Server: request handled",
			"requestID", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type appendResponse struct {
	ID int64 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

func (s *Server) appendAttempt(c *gin.Context) {
	var attempt model.ArbitrageAttempt
	if err := c.ShouldBindJSON(&attempt); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	// Identifiers are assigned by the store.
	attempt.ID = 0

	id, err := s.repo.Append(c.Request.Context(), attempt)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appendResponse{ID: id})
}

func (s *Server) getAttempt(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a positive integer", Field: "id", Value: c.Param("id")})
		return
	}
	a, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) listAttempts(c *gin.Context) {
	filter, err := s.parseFilter(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}

	attempts := make([]model.ArbitrageAttempt, 0, filter.Limit)
	for a, err := range s.repo.Query(c.Request.Context(), filter) {
		if err != nil {
			s.writeError(c, err)
			return
		}
		attempts = append(attempts, a)
	}
	c.JSON(http.StatusOK, attempts)
}

func (s *Server) stats(c *gin.Context) {
	filter, err := s.parseFilter(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if hours := c.Query("hours"); hours != "" {
		h, err := strconv.Atoi(hours)
		if err != nil || h <= 0 {
			s.writeError(c, &model.ValidationError{Field: "hours", Value: hours, Reason: "must be a positive integer"})
			return
		}
		filter.From = time.Now().Add(-time.Duration(h) * time.Hour)
	}

	st, err := s.repo.Stats(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) health(c *gin.Context) {
	state, err := s.state.State(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	if state != model.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": state.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": state.String()})
}

func (s *Server) parseFilter(c *gin.Context) (model.Filter, error) {
	var f model.Filter

	if v := c.Query("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, &model.ValidationError{Field: "id", Value: v, Reason: "must be an integer"}
		}
		f.ID = &id
	}
	for _, tf := range []struct {
		name string
		dst  *time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	} {
		if v := c.Query(tf.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, &model.ValidationError{Field: tf.name, Value: v, Reason: "must be an RFC 3339 timestamp"}
			}
			*tf.dst = t
		}
	}
	if v := c.Query("executed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, &model.ValidationError{Field: "executed", Value: v, Reason: "must be a boolean"}
		}
		f.Executed = &b
	}
	f.BaseToken = c.Query("base_token")
	if v := c.Query("min_profit"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, &model.ValidationError{Field: "min_profit", Value: v, Reason: "must be a decimal"}
		}
		if f.MinProfit, err = model.CheckAmount("min_profit", model.Amount(d)); err != nil {
			return f, err
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.cfg.MaxPageSize {
			return f, &model.ValidationError{Field: "limit", Value: v, Reason: "must be between 1 and " + strconv.Itoa(s.cfg.MaxPageSize)}
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &model.ValidationError{Field: "offset", Value: v, Reason: "must be a non-negative integer"}
		}
		f.Offset = n
	}
	switch order := c.DefaultQuery("order", "asc"); order {
	case "asc":
	case "desc":
		f.Descending = true
	default:
		return f, &model.ValidationError{Field: "order", Value: order, Reason: "must be asc or desc"}
	}
	return f, nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: vErr.Error(), Field: vErr.Field, Value: vErr.Value})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, database.ErrConstraintViolation):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, database.ErrStorageUnavailable):
		s.logger.Error("Server: storage unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("Server: request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// Package server exposes the service over a local JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/service"
)

const (
	minQueryLength    = 2
	assetCacheControl = "private, max-age=86400"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Options struct {
	Logger *slog.Logger
}

type Server struct {
	svc    *service.Service
	log    *slog.Logger
	engine *gin.Engine
}

func New(svc *service.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{svc: svc, log: logger, engine: engine}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)

	api := s.engine.Group("/api")
	api.GET("/conversations", s.listConversations)
	api.GET("/conversations/:provider/:id/messages", s.messages)
	api.GET("/activity", s.activity)
	api.GET("/activity/day", s.activityDay)
	api.GET("/statistics", s.statistics)
	api.GET("/ai-cost", s.tokenStatistics)
	api.GET("/search", s.search)
	api.GET("/assets/:provider/:asset_id", s.asset)
	api.POST("/toggle_favorite", s.toggleFavorite)
	api.POST("/reload", s.reload)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled. ready is called with the
// bound address once the listener is open.
func (s *Server) Run(ctx context.Context, addr string, ready func(addr string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.ListConversations())
}

func (s *Server) messages(c *gin.Context) {
	p, ok := model.ParseProvider(c.Param("provider"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "Invalid conversation ID")
		return
	}
	view, err := s.svc.Messages(p, c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusNotFound, "Invalid conversation ID")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) activity(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Activity())
}

func (s *Server) activityDay(c *gin.Context) {
	date := c.Query("date")
	if !datePattern.MatchString(date) {
		errorJSON(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	var p model.Provider
	if raw := c.Query("provider"); raw != "" {
		parsed, ok := model.ParseProvider(raw)
		if !ok {
			errorJSON(c, http.StatusBadRequest, "unknown provider")
			return
		}
		p = parsed
	}
	c.JSON(http.StatusOK, s.svc.ActivityDay(date, p))
}

func (s *Server) statistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Statistics())
}

func (s *Server) tokenStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.TokenStatistics())
}

func (s *Server) search(c *gin.Context) {
	q := c.Query("query")
	if utf8.RuneCountInString(q) < minQueryLength {
		errorJSON(c, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}
	c.JSON(http.StatusOK, s.svc.Search(c.Request.Context(), q, service.DefaultSearchLimit))
}

func (s *Server) asset(c *gin.Context) {
	p, ok := model.ParseProvider(c.Param("provider"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "Asset not found")
		return
	}
	r, err := s.svc.Asset(p, c.Param("asset_id"))
	if err != nil {
		errorJSON(c, http.StatusNotFound, "Asset not found")
		return
	}
	c.Header("Cache-Control", assetCacheControl)
	c.Header("Content-Type", r.MediaType)
	c.File(r.Path)
}

func (s *Server) toggleFavorite(c *gin.Context) {
	rawProvider, id := c.Query("provider"), c.Query("conv_id")
	p, ok := model.ParseProvider(rawProvider)
	if !ok || id == "" {
		errorJSON(c, http.StatusBadRequest, "provider and conv_id are required")
		return
	}
	on, err := s.svc.ToggleFavorite(p, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "Invalid conversation ID")
		return
	case err != nil:
		s.log.Error("toggle favorite", "provider", p, "id", id, "err", err)
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":        p,
		"conversation_id": id,
		"is_favorite":     on,
	})
}

func (s *Server) reload(c *gin.Context) {
	if err := s.svc.Reload(c.Request.Context()); err != nil {
		s.log.Error("reload", "err", err)
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"conversations": len(s.svc.Conversations()),
	})
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

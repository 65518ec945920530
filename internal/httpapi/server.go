// Package httpapi serves the story collection and refresh controls over a
// JSON API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
	"github.com/HarrisAD/ai-marketing-news/internal/pipeline"
	"github.com/HarrisAD/ai-marketing-news/internal/reader"
	"github.com/HarrisAD/ai-marketing-news/internal/store"
)

const (
	defaultStoryLimit = 50
	maxStoryLimit     = 500
	previewMaxChars   = 8000
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RunDomains restricts refresh runs started over the API; empty means
	// every registered source.
	RunDomains []string
}

type Server struct {
	store  *store.Store
	runner *pipeline.Runner
	logger zerolog.Logger
	opts   Options
}

func NewServer(st *store.Store, runner *pipeline.Runner, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8000
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  st,
		runner: runner,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			RunDomains:      opts.RunDomains,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil || s.runner == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/stories", s.handleStories)
	api.GET("/stories/:id", s.handleStoryDetail)
	api.GET("/stories/:id/preview", s.handleStoryPreview)
	api.DELETE("/stories", s.handleDeleteAll)
	api.DELETE("/stories/:id", s.handleDeleteStory)
	api.POST("/refresh", s.handleRefresh)
	api.GET("/refresh/status", s.handleRefreshStatus)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "ai-marketing-news",
		"time":    globaltime.UTC(),
	})
}

type storyListFilter struct {
	MinScore      int
	SourceDomain  string
	Tag           string
	DaysBack      int
	Limit         int
	CanonicalOnly bool
}

func (s *Server) handleStories(c echo.Context) error {
	minScore, err := parsePositiveInt(c.QueryParam("min_score"), 0, 0, 100)
	if err != nil {
		return failValidation(c, map[string]string{"min_score": err.Error()})
	}
	daysBack, err := parsePositiveInt(c.QueryParam("days_back"), 0, 0, 3650)
	if err != nil {
		return failValidation(c, map[string]string{"days_back": err.Error()})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultStoryLimit, 1, maxStoryLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	canonicalOnly, err := parseBool(c.QueryParam("canonical_only"), true)
	if err != nil {
		return failValidation(c, map[string]string{"canonical_only": err.Error()})
	}

	filter := storyListFilter{
		MinScore:      minScore,
		SourceDomain:  strings.TrimSpace(strings.ToLower(c.QueryParam("source"))),
		Tag:           strings.TrimSpace(strings.ToLower(c.QueryParam("tag"))),
		DaysBack:      daysBack,
		Limit:         limit,
		CanonicalOnly: canonicalOnly,
	}

	stories, err := s.store.LoadAll()
	if err != nil {
		s.logger.Error().Err(err).Msg("load stories failed")
		return internalError(c, "Failed to load stories")
	}

	items := filterStories(stories, filter)
	return success(c, map[string]any{
		"items": items,
		"total": len(items),
		"filters": map[string]any{
			"min_score":      filter.MinScore,
			"source":         filter.SourceDomain,
			"tag":            filter.Tag,
			"days_back":      filter.DaysBack,
			"limit":          filter.Limit,
			"canonical_only": filter.CanonicalOnly,
		},
	})
}

func filterStories(stories []model.Story, filter storyListFilter) []model.Story {
	var cutoff time.Time
	if filter.DaysBack > 0 {
		cutoff = globaltime.UTC().AddDate(0, 0, -filter.DaysBack)
	}

	items := make([]model.Story, 0, len(stories))
	for _, story := range stories {
		if filter.CanonicalOnly && !story.IsCanonical {
			continue
		}
		if filter.MinScore > 0 && story.CompositeScore() < filter.MinScore {
			continue
		}
		if filter.SourceDomain != "" && story.SourceDomain != filter.SourceDomain {
			continue
		}
		if filter.Tag != "" && !hasTag(story.Tags, filter.Tag) {
			continue
		}
		if !cutoff.IsZero() {
			reference := story.PublishedDate
			if reference.IsZero() {
				reference = story.FetchedDate
			}
			if reference.Before(cutoff) {
				continue
			}
		}
		items = append(items, story)
		if len(items) >= filter.Limit {
			break
		}
	}
	return items
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

func (s *Server) handleStoryDetail(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return failValidation(c, map[string]string{"id": "is required"})
	}

	story, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failNotFound(c, "Story not found")
		}
		s.logger.Error().Err(err).Str("id", id).Msg("load story failed")
		return internalError(c, "Failed to load story")
	}
	return success(c, story)
}

// handleStoryPreview fetches the article behind a story on demand and returns
// its readable text, clipped to previewMaxChars.
func (s *Server) handleStoryPreview(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return failValidation(c, map[string]string{"id": "is required"})
	}

	story, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failNotFound(c, "Story not found")
		}
		s.logger.Error().Err(err).Str("id", id).Msg("load story failed")
		return internalError(c, "Failed to load story")
	}

	text, err := reader.Extract(c.Request().Context(), story.CanonicalURL, reader.Options{})
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id).Str("url", story.CanonicalURL).Msg("preview extraction failed")
		return fail(c, http.StatusBadGateway, "Failed to extract preview", nil)
	}

	clipped, truncated := reader.Truncate(text, previewMaxChars)
	return success(c, map[string]any{
		"id":        story.ID,
		"url":       story.CanonicalURL,
		"text":      clipped,
		"truncated": truncated,
	})
}

func (s *Server) handleDeleteStory(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return failValidation(c, map[string]string{"id": "is required"})
	}

	removed, err := s.store.Delete([]string{id})
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("delete story failed")
		return internalError(c, "Failed to delete story")
	}
	if removed == 0 {
		return failNotFound(c, "Story not found")
	}
	return success(c, map[string]any{"deleted": removed})
}

func (s *Server) handleDeleteAll(c echo.Context) error {
	removed, err := s.store.DeleteAll()
	if err != nil {
		s.logger.Error().Err(err).Msg("delete all stories failed")
		return internalError(c, "Failed to delete stories")
	}
	return success(c, map[string]any{"deleted": removed})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.Error().Err(err).Msg("load stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

type refreshRequest struct {
	Sources []string `json:"sources"`
}

func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object"})
	}

	domains := req.Sources
	if len(domains) == 0 {
		domains = s.opts.RunDomains
	}

	if err := s.runner.Start(context.Background(), domains); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			return fail(c, http.StatusConflict, "A refresh is already running", s.runner.Status())
		}
		s.logger.Error().Err(err).Msg("start refresh failed")
		return internalError(c, "Failed to start refresh")
	}

	return successWithStatus(c, http.StatusAccepted, s.runner.Status())
}

func (s *Server) handleRefreshStatus(c echo.Context) error {
	return success(c, s.runner.Status())
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseBool(raw string, defaultValue bool) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, fmt.Errorf("must be a boolean")
	}
	return value, nil
}

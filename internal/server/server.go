package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"salesdash/internal"
	"salesdash/internal/analytics"
	"salesdash/internal/export"
	"salesdash/internal/logger"
	"salesdash/internal/provider"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Runner interface {
	Run(ctx context.Context, tenant string, f analytics.Filters) (*analytics.Result, error)
}

type RunLister interface {
	ListRuns(tenant string, limit int) ([]internal.RunRecord, error)
}

type Server struct {
	runner        Runner
	runs          RunLister
	defaultTenant string
	log           zerolog.Logger
}

func New(runner Runner, runs RunLister, defaultTenant string) *Server {
	return &Server{
		runner:        runner,
		runs:          runs,
		defaultTenant: defaultTenant,
		log:           logger.WithComponent("server"),
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/analytics", s.handleAnalytics)
	api.GET("/analytics/export", s.handleExport)
	if s.runs != nil {
		api.GET("/runs", s.handleRuns)
	}
	return r
}

func (s *Server) tenant(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader("Xero-Tenant-Id")); t != "" {
		return t
	}
	if t := strings.TrimSpace(c.Query("tenant")); t != "" {
		return t
	}
	return s.defaultTenant
}

func (s *Server) run(c *gin.Context) (*analytics.Result, bool) {
	var f analytics.Filters
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	res, err := s.runner.Run(c.Request.Context(), s.tenant(c), f)
	if err != nil {
		_ = c.Error(err)
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return nil, false
	}
	return res, true
}

func (s *Server) handleAnalytics(c *gin.Context) {
	res, ok := s.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleExport(c *gin.Context) {
	res, ok := s.run(c)
	if !ok {
		return
	}
	body, err := export.Bytes(res)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	filename := fmt.Sprintf("sales_%s_%s.xlsx", res.Filters.Start, res.Filters.End)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, body)
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	runs, err := s.runs.ListRuns(s.tenant(c), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// errorStatus maps provider failures onto HTTP statuses. Auth problems are
// surfaced as 401 so the caller can reconnect; other upstream failures keep
// their status in the message.
func errorStatus(err error) (int, string) {
	switch {
	case provider.IsNoSession(err):
		return http.StatusUnauthorized, "not connected to the accounting provider"
	case provider.IsUnauthorized(err):
		return http.StatusUnauthorized, "accounting provider rejected the session"
	}
	if status := provider.StatusOf(err); status != 0 {
		return http.StatusBadGateway, fmt.Sprintf("accounting provider request failed with status %d", status)
	}
	return http.StatusInternalServerError, "analytics failed"
}

// Package server exposes the job lifecycle over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ytdlserver/internal/adapters/localstorage"
	"ytdlserver/internal/core/domain"
	"ytdlserver/internal/core/ports"
	"ytdlserver/internal/service"
	"ytdlserver/internal/worker"
)

// Server wires the job manager to the HTTP surface.
type Server struct {
	manager      *service.Manager
	pool         *worker.Pool
	artifacts    *localstorage.Artifacts
	authToken    string
	ytdlpVersion string
	log          *logrus.Logger
}

// New creates a Server. authToken enables bearer auth on /api when
// non-empty; ytdlpVersion is reported on the health endpoint.
func New(
	manager *service.Manager,
	pool *worker.Pool,
	artifacts *localstorage.Artifacts,
	authToken, ytdlpVersion string,
	log *logrus.Logger,
) *Server {
	return &Server{
		manager:      manager,
		pool:         pool,
		artifacts:    artifacts,
		authToken:    authToken,
		ytdlpVersion: ytdlpVersion,
		log:          log,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	if s.authToken != "" {
		api.Use(BearerAuth(s.authToken))
	}
	api.POST("/download", s.handleDownload)
	api.GET("/status/:job_id", s.handleStatus)

	// Artifact retrieval is deliberately left unauthenticated: the
	// unguessable job id in the filename is the access control.
	r.GET("/downloads/:filename", s.handleArtifact)
	r.GET("/health", s.handleHealth)

	return r
}

type downloadRequest struct {
	URL     string `json:"url"`
	Webhook string `json:"webhook" binding:"omitempty,url"`
}

type downloadResponse struct {
	Success  bool   `json:"success"`
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

type statusResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Filename    string `json:"filename"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (s *Server) handleDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	job, err := s.manager.Submit(c.Request.Context(), req.URL, req.Webhook)
	switch {
	case errors.Is(err, service.ErrEmptyURL):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing url"})
	case errors.Is(err, worker.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "job queue is full"})
	case err != nil:
		s.log.WithError(err).Error("submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	default:
		c.JSON(http.StatusOK, downloadResponse{Success: true, JobID: job.ID, Filename: job.Filename})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	job, err := s.manager.Status(c.Param("job_id"))
	if errors.Is(err, ports.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).Error("status lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	resp := statusResponse{
		JobID:    job.ID,
		Status:   job.Status.String(),
		Filename: job.Filename,
		Error:    job.Error,
	}
	if job.Status == domain.StatusCompleted {
		resp.DownloadURL = service.DownloadURL(job.Filename)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleArtifact(c *gin.Context) {
	name := c.Param("filename")
	path, err := s.artifacts.PathFor(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid filename"})
		return
	}
	if !s.artifacts.Exists(name) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "file not found"})
		return
	}
	c.File(path)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"ytdlp_version": s.ytdlpVersion,
		"workers":       s.pool.Snapshot(),
	})
}

package api

import (
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foiahub/internal/blob"
	"foiahub/internal/core"
	"foiahub/pkg/domain"
)

// handleAgencies lists agencies, optionally filtered by ?query=.
func (s *Server) handleAgencies(c *gin.Context) {
	agencies, err := s.svc.ListAgencies(c.Request.Context(), c.Query("query"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, agencies)
}

func (s *Server) handleAgency(c *gin.Context) {
	detail, err := s.svc.AgencyDetail(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleOffice(c *gin.Context) {
	detail, err := s.svc.OfficeDetail(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleRequests(c *gin.Context) {
	receipts, err := s.svc.ListRequests(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}

// handleCreateRequest files a FOIA request and answers 201 with its tracking id.
func (s *Server) handleCreateRequest(c *gin.Context) {
	var in core.RequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	receipt, err := s.svc.SubmitRequest(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (s *Server) handleDocuments(c *gin.Context) {
	docs, err := s.svc.SearchDocuments(c.Request.Context(), c.Query("query"), c.Query("agency"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) handleDocument(c *gin.Context) {
	doc, err := s.svc.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleDocumentFile redirects to a signed URL when the blob backend can
// produce one and streams the file otherwise.
func (s *Server) handleDocumentFile(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	url, err := s.svc.DocumentFileURL(ctx, id)
	if err == nil {
		c.Redirect(http.StatusFound, url)
		return
	}
	if !errors.Is(err, blob.ErrUnsupported) {
		s.fail(c, err)
		return
	}
	info, rc, err := s.svc.OpenDocumentFile(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer func() { _ = rc.Close() }()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Content-Disposition": `inline; filename="` + path.Base(info.Key) + `"`,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := handleError(c, err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
}

// handleError writes the {"error": message} envelope and returns the status used.
func handleError(c *gin.Context, err error) int {
	code, msg := statusFor(err)
	c.JSON(code, gin.H{"error": msg})
	return code
}

func statusFor(err error) (int, string) {
	var (
		validation core.ValidationError
		notFound   domain.ErrNotFound
		violation  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &violation):
		return http.StatusBadRequest, violation.Error()
	case errors.Is(err, core.ErrNoFile), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "file not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

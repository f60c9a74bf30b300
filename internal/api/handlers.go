package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/service"
)

const (
	defaultFeedbackLimit = 50
	maxFeedbackLimit     = 500
)

// AnalyzeResponse is the body of a successful POST /analyze.
type AnalyzeResponse struct {
	PatientID string                   `json:"patient_id"`
	Count     int                      `json:"count"`
	Results   []*domain.AnalysisResult `json:"results"`
}

// DrugInfo describes one supported drug.
type DrugInfo struct {
	Drug          string   `json:"drug"`
	RequiredGenes []string `json:"required_genes"`
	Alternative   string   `json:"alternative,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":               "healthy",
		"timestamp":            time.Now().UTC(),
		"version":              Version,
		"explanation_provider": s.deps.Provider,
		"persistence":          s.deps.Reports != nil,
	}

	if s.deps.DatabaseHealth != nil {
		if err := s.deps.DatabaseHealth(c.Request.Context()); err != nil {
			s.log.WithError(err).Warn("Database health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}

	c.JSON(status, body)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	limit := s.config.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	header, err := formFile(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, http.StatusBadRequest, domain.ErrFileTooLarge, "VCF exceeds upload limit", "")
			return
		}
		s.fail(c, http.StatusBadRequest, domain.ErrNoFile, "No file part", "expected multipart field vcf_file or file")
		return
	}
	if header.Size > limit {
		s.fail(c, http.StatusBadRequest, domain.ErrFileTooLarge, "VCF exceeds upload limit",
			strconv.FormatInt(header.Size, 10)+" bytes")
		return
	}

	drugs := service.ParseDrugList(c.PostForm("drugs"))
	if len(drugs) == 0 {
		s.fail(c, http.StatusBadRequest, domain.ErrNoDrugs, "No drugs provided", "")
		return
	}

	supported, unsupported := s.deps.Analyzer.SelectSupported(drugs)
	if len(supported) == 0 {
		s.fail(c, http.StatusBadRequest, domain.ErrNoSupportedDrugs, "No supported drugs requested",
			"supported: "+strings.Join(s.deps.Analyzer.KnowledgeBase().SupportedDrugs(), ", "))
		return
	}

	content, err := readUpload(header)
	if err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, "Could not read uploaded file", err.Error())
		return
	}

	ctx := c.Request.Context()
	results, err := s.deps.Analyzer.Analyze(ctx, content, drugs)
	if err != nil {
		_ = c.Error(err)
		if ctx.Err() != nil {
			// The timeout middleware answers once the handler returns.
			return
		}
		s.fail(c, http.StatusInternalServerError, domain.ErrInternalServer, "Analysis failed", "")
		return
	}

	s.persist(c, results)

	resp := AnalyzeResponse{Count: len(results), Results: results}
	if len(results) > 0 {
		resp.PatientID = results[0].PatientID
	}
	if len(unsupported) > 0 {
		c.Header("X-Unsupported-Drugs", strings.Join(unsupported, ","))
	}
	c.JSON(http.StatusOK, resp)
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	header, err := c.FormFile("vcf_file")
	if err == nil {
		return header, nil
	}
	if errors.Is(err, http.ErrMissingFile) {
		return c.FormFile("file")
	}
	return nil, err
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// persist stores each result when a repository is configured. Failures are
// logged and the analysis is still returned.
func (s *Server) persist(c *gin.Context, results []*domain.AnalysisResult) {
	if s.deps.Reports == nil {
		return
	}
	for _, r := range results {
		if _, err := s.deps.Reports.Create(c.Request.Context(), r); err != nil {
			s.log.WithFields(logrus.Fields{
				"patient_id": r.PatientID,
				"drug":       r.Drug,
				"error":      err,
			}).Warn("Failed to persist report")
		}
	}
}

func (s *Server) handleDrugs(c *gin.Context) {
	kb := s.deps.Analyzer.KnowledgeBase()
	drugs := make([]DrugInfo, 0, len(kb.SupportedDrugs()))
	for _, d := range kb.SupportedDrugs() {
		genes, _ := kb.RequiredGenes(d)
		alt, _ := kb.Alternative(d)
		drugs = append(drugs, DrugInfo{Drug: d, RequiredGenes: genes, Alternative: alt})
	}
	c.JSON(http.StatusOK, gin.H{"drugs": drugs, "count": len(drugs)})
}

func (s *Server) handleGetReport(c *gin.Context) {
	if s.deps.Reports == nil {
		s.fail(c, http.StatusServiceUnavailable, domain.ErrStorageDisabled, "Report storage is disabled", "")
		return
	}

	report, err := s.deps.Reports.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.fail(c, http.StatusNotFound, domain.ErrReportNotFound, "Report not found", "")
			return
		}
		_ = c.Error(err)
		s.fail(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to load report", "")
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListReports(c *gin.Context) {
	if s.deps.Reports == nil {
		s.fail(c, http.StatusServiceUnavailable, domain.ErrStorageDisabled, "Report storage is disabled", "")
		return
	}

	patientID := strings.TrimSpace(c.Query("patient_id"))
	if patientID == "" {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, "patient_id is required", "")
		return
	}

	reports, err := s.deps.Reports.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		_ = c.Error(err)
		s.fail(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to list reports", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"patient_id": patientID, "reports": reports, "count": len(reports)})
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.fail(c, http.StatusServiceUnavailable, domain.ErrStorageDisabled, "Feedback storage is disabled", "")
		return
	}

	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid feedback payload", err.Error())
		return
	}
	fb.ID = 0

	if err := s.deps.Feedback.Save(c.Request.Context(), &fb); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.fail(c, http.StatusBadRequest, domain.ErrValidation, vErr.Message, vErr.Field)
			return
		}
		_ = c.Error(err)
		s.fail(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to save feedback", "")
		return
	}

	c.JSON(http.StatusCreated, &fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.fail(c, http.StatusServiceUnavailable, domain.ErrStorageDisabled, "Feedback storage is disabled", "")
		return
	}

	limit := queryInt(c, "limit", defaultFeedbackLimit)
	if limit <= 0 || limit > maxFeedbackLimit {
		limit = defaultFeedbackLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	entries, err := s.deps.Feedback.List(ctx, limit, offset)
	if err != nil {
		_ = c.Error(err)
		s.fail(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to list feedback", "")
		return
	}
	total, err := s.deps.Feedback.Count(ctx)
	if err != nil {
		_ = c.Error(err)
		s.fail(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to count feedback", "")
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"count":    len(entries),
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

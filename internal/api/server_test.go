package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/knowledge"
	"github.com/pharmguard-mcp-server/internal/service"
)

const codeinePoorVCF = "##fileformat=VCFv4.2\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
	"chr22\t42522613\trs3892097\tA\tG\t.\t.\tGENE=CYP2D6\n"

func init() {
	gin.SetMode(gin.TestMode)
}

// memoryReports is an in-memory domain.ReportRepository.
type memoryReports struct {
	mu      sync.Mutex
	reports map[string]*domain.StoredReport
	failing bool
}

func newMemoryReports() *memoryReports {
	return &memoryReports{reports: map[string]*domain.StoredReport{}}
}

func (m *memoryReports) Create(_ context.Context, r *domain.AnalysisResult) (*domain.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errors.New("database unavailable")
	}
	r.ID = uuid.NewString()
	stored := &domain.StoredReport{
		ID:        r.ID,
		PatientID: r.PatientID,
		Drug:      r.Drug,
		RiskLabel: r.RiskAssessment.RiskLabel,
		Severity:  r.RiskAssessment.Severity,
		Report:    r,
		CreatedAt: time.Now().UTC(),
	}
	m.reports[r.ID] = stored
	return stored, nil
}

func (m *memoryReports) GetByID(_ context.Context, id string) (*domain.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (m *memoryReports) ListByPatient(_ context.Context, patientID string) ([]*domain.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.StoredReport{}
	for _, r := range m.reports {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() domain.ServerConfig {
	return domain.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		RequestTimeout: 5 * time.Second,
		MaxUploadBytes: 5 * 1024 * 1024,
	}
}

func newTestServer(t *testing.T, cfg domain.ServerConfig, mutate func(*Dependencies)) *Server {
	t.Helper()
	logger := quietLogger()
	kb := knowledge.MustDefault()
	deps := Dependencies{
		Analyzer: service.NewAnalyzer(kb, service.NewExplanationAdapter(nil, logger), logger),
		Provider: "none",
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer(cfg, deps)
}

func multipartBody(t *testing.T, field, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		check      HealthCheck
		wantStatus int
		wantBody   string
	}{
		{name: "no database", check: nil, wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "database ok", check: func(context.Context) error { return nil }, wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "database down", check: func(context.Context) error { return errors.New("refused") }, wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(), func(d *Dependencies) { d.DatabaseHealth = tt.check })

			w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
			assert.Equal(t, Version, body["version"])
		})
	}
}

func TestHandleAnalyze(t *testing.T) {
	reports := newMemoryReports()
	s := newTestServer(t, testConfig(), func(d *Dependencies) { d.Reports = reports })

	body, contentType := multipartBody(t, "vcf_file", "patient.vcf", codeinePoorVCF,
		map[string]string{"drugs": "codeine, clopidogrel, aspirin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)

	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Regexp(t, `^PATIENT_[0-9A-F]{6}$`, resp.PatientID)
	assert.Equal(t, "ASPIRIN", w.Header().Get("X-Unsupported-Drugs"))

	codeine := resp.Results[0]
	assert.Equal(t, "CODEINE", codeine.Drug)
	assert.Equal(t, domain.RiskToxic, codeine.RiskAssessment.RiskLabel)
	assert.Equal(t, "*4/*4", codeine.PharmacogenomicProfile.Diplotype)
	assert.NotEmpty(t, codeine.ID, "persisted reports carry an id")
	require.NotNil(t, codeine.Comparison)
	assert.Equal(t, "CLOPIDOGREL", codeine.Comparison.RecommendedFirstLine)

	stored, err := reports.ListByPatient(context.Background(), resp.PatientID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestHandleAnalyze_FileFieldAlias(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	body, contentType := multipartBody(t, "file", "patient.vcf", codeinePoorVCF, map[string]string{"drugs": "WARFARIN"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)

	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, domain.RiskSafe, resp.Results[0].RiskAssessment.RiskLabel)
	assert.Empty(t, resp.Results[0].ID, "no repository, no id")
}

func TestHandleAnalyze_PersistFailureIsNotFatal(t *testing.T) {
	reports := newMemoryReports()
	reports.failing = true
	s := newTestServer(t, testConfig(), func(d *Dependencies) { d.Reports = reports })

	body, contentType := multipartBody(t, "vcf_file", "patient.vcf", codeinePoorVCF, map[string]string{"drugs": "CODEINE"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)

	w := do(s, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleAnalyze_Rejections(t *testing.T) {
	small := testConfig()
	small.MaxUploadBytes = 64

	tests := []struct {
		name     string
		cfg      domain.ServerConfig
		field    string
		content  string
		drugs    map[string]string
		wantCode string
	}{
		{name: "no file", cfg: testConfig(), field: "", drugs: map[string]string{"drugs": "CODEINE"}, wantCode: domain.ErrNoFile},
		{name: "wrong field", cfg: testConfig(), field: "upload", content: codeinePoorVCF, drugs: map[string]string{"drugs": "CODEINE"}, wantCode: domain.ErrNoFile},
		{name: "no drugs", cfg: testConfig(), field: "vcf_file", content: codeinePoorVCF, drugs: nil, wantCode: domain.ErrNoDrugs},
		{name: "only separators", cfg: testConfig(), field: "vcf_file", content: codeinePoorVCF, drugs: map[string]string{"drugs": " , ,"}, wantCode: domain.ErrNoDrugs},
		{name: "too large", cfg: small, field: "vcf_file", content: codeinePoorVCF, drugs: map[string]string{"drugs": "CODEINE"}, wantCode: domain.ErrFileTooLarge},
		{name: "no supported drug", cfg: testConfig(), field: "vcf_file", content: codeinePoorVCF, drugs: map[string]string{"drugs": "ASPIRIN"}, wantCode: domain.ErrNoSupportedDrugs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.cfg, nil)
			body, contentType := multipartBody(t, tt.field, "patient.vcf", tt.content, tt.drugs)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
			req.Header.Set("Content-Type", contentType)

			w := do(s, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestHandleAnalyze_NotMultipart(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"drugs":"CODEINE"}`))
	req.Header.Set("Content-Type", "application/json")

	w := do(s, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrNoFile, decodeError(t, w).Code)
}

func TestHandleDrugs(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Drugs []DrugInfo `json:"drugs"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 6, body.Count)

	byDrug := map[string]DrugInfo{}
	for _, d := range body.Drugs {
		byDrug[d.Drug] = d
	}
	assert.Equal(t, []string{"CYP2C9", "VKORC1"}, byDrug["WARFARIN"].RequiredGenes)
	assert.Equal(t, []string{"CYP2D6"}, byDrug["CODEINE"].RequiredGenes)
}

func TestHandleReports(t *testing.T) {
	reports := newMemoryReports()
	stored, err := reports.Create(context.Background(), &domain.AnalysisResult{PatientID: "PATIENT_ABC123", Drug: "CODEINE"})
	require.NoError(t, err)

	s := newTestServer(t, testConfig(), func(d *Dependencies) { d.Reports = reports })

	t.Run("get", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+stored.ID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "PATIENT_ABC123")
	})

	t.Run("missing", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, domain.ErrReportNotFound, decodeError(t, w).Code)
	})

	t.Run("by patient", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/reports?patient_id=PATIENT_ABC123", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
	})

	t.Run("patient id required", func(t *testing.T) {
		w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStorageDisabled(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/reports/abc"},
		{http.MethodGet, "/api/v1/reports?patient_id=PATIENT_ABC123"},
		{http.MethodGet, "/api/v1/feedback"},
		{http.MethodPost, "/api/v1/feedback"},
	}
	for _, p := range paths {
		w := do(s, httptest.NewRequest(p.method, p.path, strings.NewReader("{}")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, p.path)
		assert.Equal(t, domain.ErrStorageDisabled, decodeError(t, w).Code, p.path)
	}
}

func TestHandleFeedback(t *testing.T) {
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer store.Close()

	s := newTestServer(t, testConfig(), func(d *Dependencies) { d.Feedback = store })

	post := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return do(s, req)
	}

	w := post(`{"drug":"codeine","primary_gene":"CYP2D6","diplotype":"*4/*4","phenotype":"PM","suggested_risk":"Toxic","clinician_risk":"Adjust Dosage"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var saved feedback.Feedback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "CODEINE", saved.Drug)
	assert.False(t, saved.Agreed)

	w = post(`{"drug":"CODEINE","diplotype":"*4/*4","suggested_risk":"Harmless"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, domain.ErrValidation, apiErr.Code)
	assert.Equal(t, "suggested_risk", apiErr.Details)

	w = post(`{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidInput, decodeError(t, w).Code)

	w = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/feedback?limit=10&offset=0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Feedback []feedback.Feedback `json:"feedback"`
		Total    int64               `json:"total"`
		Limit    int                 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 10, list.Limit)
	require.Len(t, list.Feedback, 1)
	assert.Equal(t, domain.RiskAdjustDosage, list.Feedback[0].ClinicianRisk)
}

func TestQueryLimitBounds(t *testing.T) {
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer store.Close()

	s := newTestServer(t, testConfig(), func(d *Dependencies) { d.Feedback = store })

	for _, q := range []string{"limit=0", "limit=100000", "limit=abc"} {
		w := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/feedback?"+q, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"limit":50`, q)
	}
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"https://a.example", "*"}).AllowAllOrigins)

	cfg := corsConfig([]string{"https://clinic.example"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://clinic.example"}, cfg.AllowOrigins)
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

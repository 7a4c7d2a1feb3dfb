package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foiahub/internal/blob"
	"foiahub/internal/core"
	"foiahub/internal/metrics"
	"foiahub/pkg/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	pdfKey = "documents/federal-bureau-of-investigation/20150301/roswell/record.pdf"
	pdf    = "%PDF-1.4 roswell"
)

type fixture struct {
	srv   *Server
	svc   *core.Service
	reg   *prometheus.Registry
	docID string
}

func newFixture(t *testing.T, blobs blob.Store) fixture {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithBlobStore(blobs))
	_, err := blobs.Put(ctx, pdfKey, strings.NewReader(pdf), blob.PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)

	var docID string
	_, err = svc.Store().RunInTransaction(ctx, func(tx core.Transaction) error {
		if _, err := tx.CreateAgency(domain.Agency{
			Name:        "Federal Bureau of Investigation",
			Slug:        "federal-bureau-of-investigation",
			Description: "Investigates federal crimes.",
			Contact:     domain.ContactInfo{Emails: []string{"foiparequest@ic.fbi.gov"}},
		}); err != nil {
			return err
		}
		if _, err := tx.CreateAgency(domain.Agency{Name: "Peace Corps", Slug: "peace-corps"}); err != nil {
			return err
		}
		if _, err := tx.CreateOffice(domain.Office{
			AgencySlug: "federal-bureau-of-investigation",
			Name:       "Records Management Division",
			OfficeSlug: "records-management-division",
			Contact:    domain.ContactInfo{Emails: []string{"rmd@ic.fbi.gov"}},
		}); err != nil {
			return err
		}
		doc, err := tx.UpsertDocument(domain.Document{
			Title:             "Roswell incident report",
			ReleaseAgencySlug: "federal-bureau-of-investigation",
			BatchDirectory:    "20150301",
			DocLocation:       "roswell",
			Text:              "A flying disc was recovered.",
			FileType:          "pdf",
			FileKey:           pdfKey,
			ContentType:       "application/pdf",
		})
		docID = doc.ID
		return err
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv := NewServer(svc, WithMetrics(metrics.NewHTTP(reg), reg))
	return fixture{srv: srv, svc: svc, reg: reg, docID: docID}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, blob.NewMemory())
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAgencyEndpoints(t *testing.T) {
	f := newFixture(t, blob.NewMemory())

	w := f.do(t, http.MethodGet, "/api/agency/", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "Federal Bureau of Investigation", list[0]["name"])

	w = f.do(t, http.MethodGet, "/api/agency/?query=peace", "")
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "peace-corps", list[0]["slug"])

	w = f.do(t, http.MethodGet, "/api/agency/federal-bureau-of-investigation/", "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w)
	assert.Equal(t, "agency", detail["is_a"])
	assert.Equal(t, "federal-bureau-of-investigation", detail["agency_slug"])
	assert.Equal(t, []any{"foiparequest@ic.fbi.gov"}, detail["emails"])
	assert.Nil(t, detail["simple_processing_time"])
	offices, ok := detail["offices"].([]any)
	require.True(t, ok)
	require.Len(t, offices, 1)
	assert.Equal(t, "federal-bureau-of-investigation--records-management-division", offices[0].(map[string]any)["slug"])

	w = f.do(t, http.MethodGet, "/api/agency/ministry-of-magic/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "not found")
}

func TestOfficeEndpoint(t *testing.T) {
	f := newFixture(t, blob.NewMemory())

	w := f.do(t, http.MethodGet, "/api/office/federal-bureau-of-investigation--records-management-division/", "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w)
	assert.Equal(t, "office", detail["is_a"])
	assert.Equal(t, "records-management-division", detail["office_slug"])
	assert.Equal(t, "Federal Bureau of Investigation", detail["agency_name"])

	w = f.do(t, http.MethodGet, "/api/office/nope/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestEndpoints(t *testing.T) {
	f := newFixture(t, blob.NewMemory())

	body := `{"agency":"federal-bureau-of-investigation","office":"records-management-division",
		"first_name":"Fox","last_name":"Mulder","email":"fox@example.com",
		"documents_start":"January 1, 1947","body":"Roswell records"}`
	w := f.do(t, http.MethodPost, "/api/request/", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decode[map[string]string](t, w)
	assert.Equal(t, "O", receipt["status"])
	assert.NotEmpty(t, receipt["tracking_id"])

	w = f.do(t, http.MethodGet, "/api/request/", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]string](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, receipt["tracking_id"], list[0]["tracking_id"])

	cases := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"malformed", `{"agency":`, http.StatusBadRequest, "invalid request body"},
		{"no target", `{"first_name":"a","last_name":"b","email":"c","body":"d"}`, http.StatusBadRequest, "no agency or office given"},
		{"no emails", `{"agency":"peace-corps","first_name":"a","last_name":"b","email":"c","body":"d"}`, http.StatusBadRequest, core.NoSubmissionEmailMessage},
		{"unknown agency", `{"agency":"nope","first_name":"a","last_name":"b","email":"c","body":"d"}`, http.StatusNotFound, "agency nope not found"},
		{"bad date", `{"agency":"peace-corps","first_name":"a","last_name":"b","email":"c","body":"d","documents_end":"2015"}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/request/", tc.body)
			assert.Equal(t, tc.code, w.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decode[map[string]string](t, w)["error"])
			}
		})
	}
}

func TestDocumentEndpoints(t *testing.T) {
	f := newFixture(t, blob.NewMemory())

	w := f.do(t, http.MethodGet, "/api/documents/?query=flying+disc", "")
	require.Equal(t, http.StatusOK, w.Code)
	docs := decode[[]domain.Document](t, w)
	require.Len(t, docs, 1)
	assert.Equal(t, f.docID, docs[0].ID)
	assert.Empty(t, docs[0].Text)

	w = f.do(t, http.MethodGet, "/api/documents/?query=disc&agency=peace-corps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/documents/"+f.docID+"/", "")
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[domain.Document](t, w)
	assert.Equal(t, "A flying disc was recovered.", doc.Text)

	w = f.do(t, http.MethodGet, "/api/documents/missing/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentFileStreamsWithoutSignedURLs(t *testing.T) {
	f := newFixture(t, blob.NewMemory())

	w := f.do(t, http.MethodGet, "/api/documents/"+f.docID+"/file", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdf, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="record.pdf"`, w.Header().Get("Content-Disposition"))
}

func TestDocumentFileRedirectsToSignedURL(t *testing.T) {
	blobs, err := blob.NewFilesystem(t.TempDir(), "https://files.example.org")
	require.NoError(t, err)
	f := newFixture(t, blobs)

	w := f.do(t, http.MethodGet, "/api/documents/"+f.docID+"/file", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.org/"+pdfKey, w.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, blob.NewMemory())
	f.do(t, http.MethodGet, "/api/agency/", "")
	f.do(t, http.MethodGet, "/api/agency/nope/", "")

	count, err := testutil.GatherAndCount(f.reg, "foiahub_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `foiahub_http_requests_total{code="404",method="GET",route="/api/agency/:slug/"} 1`)
}

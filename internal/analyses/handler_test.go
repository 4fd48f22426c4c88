package analyses_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bloodtest-backend/internal/bootstrap"
	"bloodtest-backend/internal/shared/config"
)

func buildTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:              "0",
		Env:               "dev",
		CORSAllowOrigin:   []string{"http://localhost:5173"},
		QueueBroker:       "memory",
		ObjectStoreType:   "local",
		DataDir:           t.TempDir(),
		RetentionDays:     30,
		TaskTimeLimit:     30 * time.Minute,
		TaskSoftTimeLimit: 25 * time.Minute,
		WorkerConcurrency: 2,
		SweepInterval:     time.Hour,
	}

	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func uploadPDF(t *testing.T, router *gin.Engine, fileName, query string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("%PDF-1.4 test payload")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if query != "" {
		if err := writer.WriteField("query", query); err != nil {
			t.Fatalf("write query field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestAnalyzeAcceptsUploadAndStatusReflectsIt(t *testing.T) {
	app := buildTestApp(t)

	resp := uploadPDF(t, app.Router, "blood_results.pdf", "Summarise my iron levels")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}

	var accepted struct {
		Status        string `json:"status"`
		AnalysisID    string `json:"analysis_id"`
		TaskID        string `json:"task_id"`
		FileProcessed string `json:"file_processed"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.Status != "accepted" || accepted.AnalysisID == "" || accepted.TaskID == "" {
		t.Fatalf("unexpected accept payload: %+v", accepted)
	}
	if accepted.FileProcessed != "blood_results.pdf" {
		t.Fatalf("unexpected file name: %q", accepted.FileProcessed)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/status/"+accepted.AnalysisID, nil)
	statusResp := httptest.NewRecorder()
	app.Router.ServeHTTP(statusResp, statusReq)
	if statusResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", statusResp.Code)
	}

	var status struct {
		AnalysisID string `json:"analysis_id"`
		Status     string `json:"status"`
		Query      string `json:"query"`
		Result     string `json:"result"`
	}
	if err := json.Unmarshal(statusResp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "pending" {
		t.Fatalf("expected pending, got %q", status.Status)
	}
	if status.Query != "Summarise my iron levels" {
		t.Fatalf("unexpected query: %q", status.Query)
	}
	if status.Result != "" {
		t.Fatalf("pending status must not expose a result")
	}
}

func TestAnalyzeRequiresFile(t *testing.T) {
	app := buildTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Detail == "" {
		t.Fatalf("error body missing detail")
	}
}

func TestAnalyzeRejectsNonPDF(t *testing.T) {
	app := buildTestApp(t)

	resp := uploadPDF(t, app.Router, "results.txt", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestStatusValidatesAnalysisID(t *testing.T) {
	app := buildTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/status/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.Code)
	}
}

func TestStatusUnknownRecordIs404(t *testing.T) {
	app := buildTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/status/7f2d6c80-0000-4000-8000-000000000000", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListPaginatesAndValidates(t *testing.T) {
	app := buildTestApp(t)

	for i := 0; i < 3; i++ {
		if resp := uploadPDF(t, app.Router, "report.pdf", ""); resp.Code != http.StatusAccepted {
			t.Fatalf("upload %d failed: %d", i, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/analyses?skip=1&limit=2", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var page struct {
		Analyses []map[string]any `json:"analyses"`
		Total    int              `json:"total"`
		Skip     int              `json:"skip"`
		Limit    int              `json:"limit"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 3 || len(page.Analyses) != 2 || page.Skip != 1 || page.Limit != 2 {
		t.Fatalf("unexpected page: total=%d len=%d skip=%d limit=%d", page.Total, len(page.Analyses), page.Skip, page.Limit)
	}

	bad := httptest.NewRequest(http.MethodGet, "/analyses?status=bogus", nil)
	badResp := httptest.NewRecorder()
	app.Router.ServeHTTP(badResp, bad)
	if badResp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", badResp.Code)
	}

	negative := httptest.NewRequest(http.MethodGet, "/analyses?skip=-1", nil)
	negResp := httptest.NewRecorder()
	app.Router.ServeHTTP(negResp, negative)
	if negResp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative skip, got %d", negResp.Code)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	app := buildTestApp(t)

	resp := uploadPDF(t, app.Router, "report.pdf", "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d", resp.Code)
	}
	var accepted struct {
		AnalysisID string `json:"analysis_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	del := httptest.NewRequest(http.MethodDelete, "/analyses/"+accepted.AnalysisID, nil)
	delResp := httptest.NewRecorder()
	app.Router.ServeHTTP(delResp, del)
	if delResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp.Code)
	}

	again := httptest.NewRequest(http.MethodDelete, "/analyses/"+accepted.AnalysisID, nil)
	againResp := httptest.NewRecorder()
	app.Router.ServeHTTP(againResp, again)
	if againResp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", againResp.Code)
	}
}

func TestHealthAndRootEndpoints(t *testing.T) {
	app := buildTestApp(t)

	root := httptest.NewRequest(http.MethodGet, "/", nil)
	rootResp := httptest.NewRecorder()
	app.Router.ServeHTTP(rootResp, root)
	if rootResp.Code != http.StatusOK {
		t.Fatalf("expected 200 at root, got %d", rootResp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var health struct {
		Status   string `json:"status"`
		API      string `json:"api"`
		Database string `json:"database"`
		Queue    string `json:"queue"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || health.API != "healthy" {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.Queue != "healthy" {
		t.Fatalf("in-process queue should report healthy, got %q", health.Queue)
	}
}

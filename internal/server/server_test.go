package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ytdlserver/internal/adapters/localstorage"
	"ytdlserver/internal/adapters/memstore"
	"ytdlserver/internal/core/domain"
	"ytdlserver/internal/core/ports"
	"ytdlserver/internal/service"
	"ytdlserver/internal/worker"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubExtractor struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
}

func (s *stubExtractor) Download(ctx context.Context, url, outputPath string) error {
	s.mu.Lock()
	block := s.block
	err := s.err
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (s *stubExtractor) Version(ctx context.Context) (string, error) { return "2026.01.01", nil }
func (s *stubExtractor) Update(ctx context.Context) error            { return nil }

type stubNotifier struct{}

func (stubNotifier) Notify(ctx context.Context, url string, payload ports.NotifyPayload) ports.Delivery {
	return ports.Delivery{StatusCode: 200}
}

type testEnv struct {
	router    *gin.Engine
	store     *memstore.Store
	extractor *stubExtractor
	artifacts *localstorage.Artifacts
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memstore.New()
	t.Cleanup(store.Close)

	pool := worker.NewPool(worker.Config{MaxWorkers: 2, QueueSize: 10})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Stop(ctx)
	})

	extractor := &stubExtractor{}
	artifacts := localstorage.New(t.TempDir())
	manager := service.NewManager(store, extractor, stubNotifier{}, pool, artifacts, log)
	srv := New(manager, pool, artifacts, authToken, "2026.01.01", log)

	return &testEnv{
		router:    srv.Router(),
		store:     store,
		extractor: extractor,
		artifacts: artifacts,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("Decoding response %q failed: %v", w.Body.String(), err)
	}
	return m
}

func (e *testEnv) pollTerminal(t *testing.T, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := e.do(t, http.MethodGet, "/api/status/"+jobID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Status returned %d: %s", w.Code, w.Body.String())
		}
		resp := decode(t, w)
		if s := resp["status"]; s == "completed" || s == "failed" {
			return resp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Job never reached a terminal state")
	return nil
}

func TestSubmitAndPollLifecycle(t *testing.T) {
	e := newTestEnv(t, "")
	e.extractor.block = make(chan struct{})

	w := e.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/v/1"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Submit returned %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["success"] != true {
		t.Errorf("Expected success:true, got %v", resp)
	}
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatal("Expected a job_id")
	}
	if resp["filename"] != jobID+".mp4" {
		t.Errorf("Expected filename %s.mp4, got %v", jobID, resp["filename"])
	}

	// Immediate poll: pending or downloading, never terminal, no download_url.
	w = e.do(t, http.MethodGet, "/api/status/"+jobID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status returned %d", w.Code)
	}
	status := decode(t, w)
	if s := status["status"]; s != "pending" && s != "downloading" {
		t.Errorf("Expected pending or downloading, got %v", s)
	}
	if _, ok := status["download_url"]; ok {
		t.Errorf("download_url present before completion: %v", status)
	}

	close(e.extractor.block)
	final := e.pollTerminal(t, jobID)
	if final["status"] != "completed" {
		t.Fatalf("Expected completed, got %v", final)
	}
	if final["download_url"] != "/downloads/"+jobID+".mp4" {
		t.Errorf("Expected download_url /downloads/%s.mp4, got %v", jobID, final["download_url"])
	}
	if _, ok := final["error"]; ok {
		t.Errorf("error present on completed job: %v", final)
	}
}

func TestSubmitFailingURL(t *testing.T) {
	e := newTestEnv(t, "")
	e.extractor.err = context.DeadlineExceeded

	w := e.do(t, http.MethodPost, "/api/download", `{"url":"https://example.invalid/v/1"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Submit returned %d", w.Code)
	}
	jobID := decode(t, w)["job_id"].(string)

	final := e.pollTerminal(t, jobID)
	if final["status"] != "failed" {
		t.Fatalf("Expected failed, got %v", final)
	}
	if errText, _ := final["error"].(string); errText == "" {
		t.Errorf("Expected non-empty error, got %v", final)
	}
	if _, ok := final["download_url"]; ok {
		t.Errorf("download_url present on failed job: %v", final)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url": `},
		{"empty body", `{}`},
		{"empty url", `{"url":""}`},
		{"whitespace url", `{"url":"   "}`},
		{"bad webhook", `{"url":"https://example.com/v/1","webhook":"not a url"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/download", test.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	if e.store.Len() != 0 {
		t.Errorf("Rejected submissions created %d jobs", e.store.Len())
	}
}

func TestStatusUnknownJob(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodGet, "/api/status/does-not-exist", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t, "sekrit")

	tests := []struct {
		name   string
		header map[string]string
		code   int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong scheme", map[string]string{"Authorization": "Basic sekrit"}, http.StatusUnauthorized},
		{"wrong token", map[string]string{"Authorization": "Bearer wrong"}, http.StatusUnauthorized},
		{"token prefix", map[string]string{"Authorization": "Bearer sekri"}, http.StatusUnauthorized},
		{"correct token", map[string]string{"Authorization": "Bearer sekrit"}, http.StatusOK},
	}

	for _, test := range tests {
		t.Run("submit "+test.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/v/1"}`, test.header)
			if w.Code != test.code {
				t.Errorf("Expected %d, got %d: %s", test.code, w.Code, w.Body.String())
			}
		})
	}

	// Only the authorized submission may have created a job.
	if e.store.Len() != 1 {
		t.Errorf("Expected exactly 1 job, have %d", e.store.Len())
	}

	w := e.do(t, http.MethodGet, "/api/status/whatever", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status without token: expected 401, got %d", w.Code)
	}
}

func TestArtifactRetrieval(t *testing.T) {
	e := newTestEnv(t, "sekrit")

	path, err := e.artifacts.PathFor("j1.mp4")
	if err != nil {
		t.Fatalf("PathFor failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("video-bytes"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// No auth required on the downloads surface.
	w := e.do(t, http.MethodGet, "/downloads/j1.mp4", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != "video-bytes" {
		t.Errorf("Unexpected artifact body: %q", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/downloads/missing.mp4", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing artifact, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "sekrit")

	w := e.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp)
	}
	if resp["ytdlp_version"] != "2026.01.01" {
		t.Errorf("Expected ytdlp_version, got %v", resp)
	}
}

func TestStatusMonotonicOnceTerminal(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/v/1"}`, nil)
	jobID := decode(t, w)["job_id"].(string)
	e.pollTerminal(t, jobID)

	for i := 0; i < 10; i++ {
		w := e.do(t, http.MethodGet, "/api/status/"+jobID, "", nil)
		if s := decode(t, w)["status"]; s != "completed" {
			t.Fatalf("Terminal state regressed to %v", s)
		}
	}
}

func TestJobStatusVisibleOnOtherRecords(t *testing.T) {
	e := newTestEnv(t, "")

	// A pre-existing downloading record must never be reported as a default job.
	job := domain.Job{ID: "fixed", Filename: "fixed.mp4", Status: domain.StatusDownloading, URL: "https://example.com"}
	if err := e.store.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := e.do(t, http.MethodGet, "/api/status/fixed", "", nil)
	resp := decode(t, w)
	if resp["status"] != "downloading" || resp["filename"] != "fixed.mp4" {
		t.Errorf("Unexpected status payload: %v", resp)
	}
}

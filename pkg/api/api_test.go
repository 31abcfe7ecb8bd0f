package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/graph"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

type fakeService struct {
	agents    []*agent.Record
	report    *findings.Report
	lastQuery orchestrator.FindingsQuery
	statusErr error
}

func (f *fakeService) Status(_ context.Context, includeAgents bool) (*orchestrator.StatusReport, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	r := &orchestrator.StatusReport{StateDir: "/state", Counts: map[agent.Status]int{}}
	for _, a := range f.agents {
		r.Counts[a.Status]++
	}
	if includeAgents {
		r.Agents = f.agents
	}
	return r, nil
}

func (f *fakeService) Agent(_ context.Context, id string) (*agent.Record, error) {
	for _, a := range f.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "agent %q not found", id)
}

func (f *fakeService) Findings(_ context.Context, q orchestrator.FindingsQuery) (*findings.Report, error) {
	f.lastQuery = q
	return f.report, nil
}

func (f *fakeService) CacheStatus(context.Context) (cache.Stats, error) {
	return cache.Stats{Backend: "file", Entries: 3, Bytes: 1024}, nil
}

func (f *fakeService) Graph(context.Context) (*graph.Artifact, error) {
	return &graph.Artifact{Levels: [][]string{{"a"}, {"b"}}, Edges: []graph.ArtifactEdge{{From: "b", To: "a", Via: "a"}}}, nil
}

func newTestServer(t *testing.T) (*fakeService, http.Handler) {
	t.Helper()
	svc := &fakeService{
		agents: []*agent.Record{
			{ID: "api-security-1", Resource: "api", Status: agent.StatusRunning, StartedAt: time.Now()},
			{ID: "web-all-2", Resource: "web", Status: agent.StatusCompleted, StartedAt: time.Now()},
		},
		report: &findings.Report{
			Findings: []findings.Finding{
				{Resource: "api", Severity: findings.High, Category: "security", Description: "x"},
				{Resource: "api", Severity: findings.Low, Category: "quality", Description: "y"},
			},
			Resources: []string{"api"},
		},
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "stackscan_test_total", Help: "test"}))
	return svc, NewHandler(svc, Options{Logger: log.New(io.Discard), Gatherer: reg})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	w := get(t, h, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[healthResponse](t, w); got.Status != "ok" || got.Build.Version == "" {
		t.Errorf("body = %+v", got)
	}
}

func TestAgents(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/agents", 2},
		{"/agents?status=running", 1},
		{"/agents?status=failed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, h, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if got := decode[agentsResponse](t, w); len(got.Agents) != tt.want {
				t.Errorf("agents = %d, want %d", len(got.Agents), tt.want)
			}
		})
	}
}

func TestGetAgent(t *testing.T) {
	_, h := newTestServer(t)

	w := get(t, h, "/agents/web-all-2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if rec := decode[agent.Record](t, w); rec.Resource != "web" {
		t.Errorf("record = %+v", rec)
	}

	w = get(t, h, "/agents/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if e := decode[errorResponse](t, w); e.Code != "NOT_FOUND" || !strings.Contains(e.Message, "missing") {
		t.Errorf("error = %+v", e)
	}
}

func TestFindings(t *testing.T) {
	svc, h := newTestServer(t)

	w := get(t, h, "/findings?resource=api&min_severity=medium")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if svc.lastQuery.Resource != "api" || svc.lastQuery.MinSeverity != findings.Medium {
		t.Errorf("query = %+v", svc.lastQuery)
	}
	body := decode[map[string]json.RawMessage](t, w)
	var summary map[string]int
	if err := json.Unmarshal(body["summary"], &summary); err != nil {
		t.Fatal(err)
	}
	if summary["high"] != 1 || summary["low"] != 1 {
		t.Errorf("summary = %v", summary)
	}
	if _, ok := body["findings"]; !ok {
		t.Errorf("findings missing from %s", w.Body)
	}

	w = get(t, h, "/findings?min_severity=urgent")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if e := decode[errorResponse](t, w); e.Code != "INVALID_SEVERITY" {
		t.Errorf("error = %+v", e)
	}
}

func TestCacheAndGraph(t *testing.T) {
	_, h := newTestServer(t)

	w := get(t, h, "/cache")
	if stats := decode[cache.Stats](t, w); stats.Entries != 3 || stats.Backend != "file" {
		t.Errorf("cache = %+v", stats)
	}
	w = get(t, h, "/graph")
	if a := decode[graph.Artifact](t, w); len(a.Levels) != 2 || len(a.Edges) != 1 {
		t.Errorf("graph = %+v", a)
	}
}

func TestInternalErrorHidden(t *testing.T) {
	svc, h := newTestServer(t)
	svc.statusErr = io.ErrUnexpectedEOF

	w := get(t, h, "/status")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decode[errorResponse](t, w); e.Code != "INTERNAL_ERROR" || strings.Contains(e.Message, "EOF") {
		t.Errorf("error = %+v", e)
	}
}

func TestMetricsAndRouting(t *testing.T) {
	_, h := newTestServer(t)

	w := get(t, h, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "stackscan_test_total") {
		t.Errorf("/metrics = %d %s", w.Code, w.Body)
	}

	if w := get(t, h, "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/agents", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestServeShutdown(t *testing.T) {
	_, h := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", h, log.New(io.Discard), ready) }()

	addr := <-ready
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

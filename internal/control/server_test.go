package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/falcorrus/bao-tg-importer/internal/metrics"
	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
	"github.com/falcorrus/bao-tg-importer/internal/scheduler"
)

type mockRunner struct {
	triggers int
	err      error
	status   scheduler.Status
}

func (m *mockRunner) Trigger() error {
	m.triggers++
	return m.err
}

func (m *mockRunner) Status() scheduler.Status { return m.status }

func setupServer(runner *mockRunner) *Server {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.EventsWritten(3)
	return NewServer(runner, reg)
}

func do(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := do(setupServer(&mockRunner{}), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestSyncTriggers(t *testing.T) {
	runner := &mockRunner{}
	w := do(setupServer(runner), http.MethodPost, "/sync")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	if runner.triggers != 1 {
		t.Errorf("expected 1 trigger, got %d", runner.triggers)
	}
}

func TestSyncWhileBusy(t *testing.T) {
	w := do(setupServer(&mockRunner{err: scheduler.ErrBusy}), http.MethodPost, "/sync")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestSyncRejectsGet(t *testing.T) {
	w := do(setupServer(&mockRunner{}), http.MethodGet, "/sync")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	runner := &mockRunner{status: scheduler.Status{
		Schedule: "@every 15m",
		Last:     &pipeline.Summary{Status: pipeline.StatusSuccess, EventsImported: 4},
	}}
	w := do(setupServer(runner), http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	last, _ := resp["last_run"].(map[string]any)
	if resp["schedule"] != "@every 15m" || last["events_imported"] != float64(4) {
		t.Errorf("unexpected status %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(setupServer(&mockRunner{}), http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bao_importer_events_written_total 3") {
		t.Errorf("metrics output missing counter:\n%s", w.Body.String())
	}
}

package flip

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

func TestDepsValidate(t *testing.T) {
	deps := &FlipDeps{Config: FlipConfig{PricingURL: "http://x"}}
	if err := deps.Validate(); err == nil {
		t.Fatal("expected missing logger error")
	}
	deps.Logger = testLogger{}
	if err := deps.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.HTTPClient == nil {
		t.Fatal("expected default http client")
	}
	deps = &FlipDeps{Logger: testLogger{}}
	if err := deps.Validate(); err == nil {
		t.Fatal("expected missing pricing url error")
	}
}

func TestRegisterFlipRoutesEndToEnd(t *testing.T) {
	pricing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"outcome":"lose","final_price":12}`)
	}))
	defer pricing.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("items:\n  - id: solo\n    title: Solo\n    price: \"10\"\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	deps := &FlipDeps{
		Logger: testLogger{},
		Config: FlipConfig{
			PricingURL:     pricing.URL,
			PricingTimeout: time.Second,
			FlipWait:       2 * time.Second,
			ViewerIdleTTL:  time.Minute,
			ViewerSweep:    time.Minute,
			CatalogPath:    path,
		},
	}
	mux := http.NewServeMux()
	if err := RegisterFlipRoutes(mux, deps); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := StartFlipWorkers(ctx, deps); err != nil {
		t.Fatalf("workers: %v", err)
	}

	server := httptest.NewServer(mux)
	defer server.Close()

	steps := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/api/v1/items/solo/mode", `{"mode":"flip"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/items/solo/terms", "", http.StatusOK},
		{http.MethodPost, "/api/v1/items/solo/consent", "", http.StatusOK},
		{http.MethodPost, "/api/v1/items/solo/flip?wait=1", "", http.StatusOK},
	}
	var last []byte
	for _, st := range steps {
		req, err := http.NewRequest(st.method, server.URL+st.path, strings.NewReader(st.body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-Viewer-ID", "e2e")
		resp, err := server.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", st.method, st.path, err)
		}
		last, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != st.status {
			t.Fatalf("%s %s: expected %d, got %d: %s", st.method, st.path, st.status, resp.StatusCode, last)
		}
	}
	var snap struct {
		Request string `json:"request"`
		Outcome struct {
			Kind string `json:"kind"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(last, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Request != "resolved" || snap.Outcome.Kind != "surcharge" {
		t.Fatalf("unexpected final snapshot %s", last)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/purchases", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Viewer-ID", "e2e")
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database, got %d", resp.StatusCode)
	}
}

package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/james-livefront/ai-paywall/pkg/config"
	"github.com/james-livefront/ai-paywall/pkg/paywall"
	"github.com/james-livefront/ai-paywall/pkg/store"
)

func testEnv(t *testing.T, mode string) Env {
	t.Helper()

	cfg := config.Load()
	cfg.Mode = mode
	cfg.Storage = config.StorageMemory

	log := logrus.New()
	log.SetOutput(io.Discard)

	pw, err := paywall.New(context.Background(), cfg, paywall.WithLogger(log))
	if err != nil {
		t.Fatalf("paywall.New() failed: %v", err)
	}
	t.Cleanup(func() { pw.Close() })

	content := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("article content"))
	})

	return Env{Cfg: cfg, PW: pw, Log: log, Next: content}
}

func botRequest(path string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; GPTBot/1.0)")
	return req
}

func browserRequest(path string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	return req
}

func TestHealthz(t *testing.T) {
	mux := NewMux(testEnv(t, config.ModeDetect))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	mux := NewMux(testEnv(t, config.ModeDetect))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	env := testEnv(t, config.ModeDetect)
	mux := NewMux(env)

	mux.ServeHTTP(httptest.NewRecorder(), botRequest("/article"))
	mux.ServeHTTP(httptest.NewRecorder(), browserRequest("/article"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var stats store.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats failed: %v", err)
	}
	if stats.TotalRequests != 2 || stats.BotRequests != 1 {
		t.Errorf("stats = %+v, want total 2, bots 1", stats)
	}
	if stats.BotTypes["openai"] != 1 {
		t.Errorf("BotTypes = %v, want openai once", stats.BotTypes)
	}

	t.Run("rejects POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/stats", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestExportHandler(t *testing.T) {
	env := testEnv(t, config.ModeDetect)
	mux := NewMux(env)

	mux.ServeHTTP(httptest.NewRecorder(), botRequest("/article"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("export lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ts,id,is_bot") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "openai") {
		t.Errorf("row = %q, want openai detection", lines[1])
	}
}

func TestPatternsHandler(t *testing.T) {
	env := testEnv(t, config.ModeBlock)
	mux := NewMux(env)

	scraper := httptest.NewRequest("GET", "/article", nil)
	scraper.Header.Set("User-Agent", "Mozilla/5.0 AcmeScraper/2.1 (+https://acme.example)")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, scraper)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown scraper should pass before the pattern exists, status = %d", rec.Code)
	}

	body := `[{"name":"acme","user_agents":["AcmeScraper"],"confidence":0.9}]`
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/patterns", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("patterns status = %d, want 202, body %q", rec.Code, rec.Body.String())
	}

	var resp struct {
		Added int `json:"added"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	if resp.Added != 1 {
		t.Errorf("added = %d, want 1", resp.Added)
	}

	scraper = httptest.NewRequest("GET", "/article", nil)
	scraper.Header.Set("User-Agent", "Mozilla/5.0 AcmeScraper/2.1 (+https://acme.example)")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, scraper)
	if rec.Code != http.StatusForbidden {
		t.Errorf("scraper status after install = %d, want 403", rec.Code)
	}

	t.Run("rejects malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/patterns", strings.NewReader("{not json")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects invalid specs", func(t *testing.T) {
		body := `[{"name":"broken","ip_ranges":["not-a-cidr"]}]`
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/patterns", strings.NewReader(body)))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("rejects GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/patterns", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

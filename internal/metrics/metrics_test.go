package metrics

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestDetectionRecorded(t *testing.T) {
	m := newTestMetrics(t)

	m.DetectionRecorded(detect.Result{
		IsBot:      true,
		BotType:    "openai",
		Confidence: 0.9,
		Method:     detect.MethodUAPattern,
	})
	m.DetectionRecorded(detect.Result{
		IsBot:      true,
		BotType:    "openai",
		Confidence: 0.95,
		Method:     detect.MethodUAExact,
	})
	m.DetectionRecorded(detect.Result{
		IsBot:  false,
		Method: detect.MethodNone,
	})

	got := testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("openai", "user_agent_pattern"))
	if got != 1 {
		t.Errorf("openai/user_agent_pattern = %v, want 1", got)
	}
	got = testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("openai", "user_agent_exact"))
	if got != 1 {
		t.Errorf("openai/user_agent_exact = %v, want 1", got)
	}
	got = testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("human", "none"))
	if got != 1 {
		t.Errorf("human/none = %v, want 1", got)
	}
}

func TestStoreError(t *testing.T) {
	m := newTestMetrics(t)

	m.StoreError("redis", context.DeadlineExceeded)
	m.StoreError("redis", context.DeadlineExceeded)

	got := testutil.ToFloat64(m.StoreErrors.WithLabelValues("redis"))
	if got != 2 {
		t.Errorf("store errors = %v, want 2", got)
	}
}

func TestHTTPHelpers(t *testing.T) {
	m := newTestMetrics(t)

	m.IncrementHTTPRequests("/stats", "GET", "200")
	m.ObserveHTTPDuration("/stats", "GET", 15*time.Millisecond)

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/stats", "GET", "200"))
	if got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}

	count := testutil.CollectAndCount(m.HTTPDuration)
	if count != 1 {
		t.Errorf("duration series = %d, want 1", count)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("returns defaults when env not set", func(t *testing.T) {
		envVars := []string{"METRICS_ENABLED", "METRICS_ADDR"}
		oldValues := make(map[string]string)
		for _, key := range envVars {
			oldValues[key] = os.Getenv(key)
			os.Unsetenv(key)
		}
		defer func() {
			for key, val := range oldValues {
				if val != "" {
					os.Setenv(key, val)
				}
			}
		}()

		cfg := LoadConfig()
		if cfg.Enabled {
			t.Error("Enabled should be false by default")
		}
		if cfg.Addr != "127.0.0.1:9090" {
			t.Errorf("Addr = %q, want 127.0.0.1:9090", cfg.Addr)
		}
	})

	t.Run("loads custom values from environment", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "true")
		os.Setenv("METRICS_ADDR", ":9191")
		defer os.Unsetenv("METRICS_ENABLED")
		defer os.Unsetenv("METRICS_ADDR")

		cfg := LoadConfig()
		if !cfg.Enabled {
			t.Error("Enabled = false, want true")
		}
		if cfg.Addr != ":9191" {
			t.Errorf("Addr = %q, want :9191", cfg.Addr)
		}
	})
}

func TestServerHealthz(t *testing.T) {
	s := NewServer(Config{Enabled: true, Addr: ":0"})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("healthz body = %q, want OK", rec.Body.String())
	}
}

func TestServerDisabled(t *testing.T) {
	s := NewServer(Config{Enabled: false, Addr: ":0"})

	if err := s.Start(context.Background()); err != nil {
		t.Errorf("Start() on disabled server failed: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on disabled server failed: %v", err)
	}
}

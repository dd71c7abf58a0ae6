package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/james-livefront/ai-paywall/internal/assets"
	"github.com/james-livefront/ai-paywall/internal/metrics"
	"github.com/james-livefront/ai-paywall/pkg/config"
)

// Protect classifies every request before it reaches the protected
// content. The verdict always travels in response headers; whether a
// bot still gets the content depends on the configured mode.
func (e Env) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := e.PW.Check(r.Context(), r)

		h := w.Header()
		h.Set("X-AI-Paywall-Bot", strconv.FormatBool(res.IsBot))
		if res.IsBot {
			h.Set("X-AI-Paywall-Bot-Type", res.BotType)
			h.Set("X-AI-Paywall-Confidence", strconv.FormatFloat(res.Confidence, 'f', -1, 64))
			h.Set("X-AI-Paywall-Method", string(res.Method))
		}

		if res.IsBot {
			switch e.Cfg.Mode {
			case config.ModeBlock:
				h.Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write(assets.BlockedHTML)
				return
			case config.ModePaywall:
				h.Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = w.Write(assets.PaywallHTML)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"ua":       r.UserAgent(),
				"duration": time.Since(start).String(),
			}).Debug("request handled")
		})
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.IncrementHTTPRequests(r.URL.Path, r.Method, strconv.Itoa(rec.status))
			m.ObserveHTTPDuration(r.URL.Path, r.Method, time.Since(start))
		})
	}
}

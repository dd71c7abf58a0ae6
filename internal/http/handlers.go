package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/james-livefront/ai-paywall/internal/metrics"
	"github.com/james-livefront/ai-paywall/pkg/config"
	"github.com/james-livefront/ai-paywall/pkg/pattern"
	"github.com/james-livefront/ai-paywall/pkg/paywall"
)

const maxPatternsBody = 1 << 20

func decodePatterns(r *http.Request) ([]pattern.Spec, error) {
	defer r.Body.Close()
	var specs []pattern.Spec
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxPatternsBody))
	if err := dec.Decode(&specs); err != nil {
		return nil, err
	}
	return specs, nil
}

type Env struct {
	Cfg     config.Config
	PW      *paywall.Paywall
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	// Next serves the protected content when the server runs
	// standalone; middleware mode replaces it with a proxy.
	Next http.Handler
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	// Ready means the storage backend answers.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := e.PW.Stats(ctx); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// GET /stats returns aggregate detection counters as JSON.
func (e Env) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := e.PW.Stats(r.Context())
	if err != nil {
		e.Log.WithError(err).Error("reading stats failed")
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// GET /export streams retained detection history as a CSV download.
func (e Env) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="detections.csv"`)
	if err := e.PW.ExportLogs(r.Context(), w); err != nil {
		// Headers may already be out; log and cut the response short.
		e.Log.WithError(err).Error("export failed")
	}
}

// POST /patterns installs custom signatures at runtime.
func (e Env) PatternsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	specs, err := decodePatterns(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := e.PW.AddPatterns(specs); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"added": len(specs),
		"total": e.PW.Patterns(),
	})
}

func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/stats", e.StatsHandler)
	mux.HandleFunc("/export", e.ExportHandler)
	mux.HandleFunc("/patterns", e.PatternsHandler)

	protected := e.Next
	if e.Cfg.ForwardDestination != "" {
		if _, err := url.Parse(e.Cfg.ForwardDestination); err != nil {
			e.Log.WithError(err).Warn("invalid FORWARD_DESTINATION, middleware mode disabled")
		} else {
			e.Log.WithField("destination", e.Cfg.ForwardDestination).Info("middleware mode enabled")
			protected = NewProxyHandler(e.Cfg.ForwardDestination)
		}
	}
	if protected == nil {
		protected = http.NotFoundHandler()
	}
	mux.Handle("/", e.Protect(protected))

	return RequestLogger(e.Log)(MetricsMiddleware(e.Metrics)(mux))
}

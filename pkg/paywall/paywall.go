// Package paywall ties pattern matching, request normalization,
// detection, and persistence into one embeddable front door. Callers
// construct a Paywall once and feed it raw requests; everything past
// construction is non-fatal to the caller's request path.
package paywall

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/james-livefront/ai-paywall/pkg/config"
	"github.com/james-livefront/ai-paywall/pkg/detect"
	"github.com/james-livefront/ai-paywall/pkg/pattern"
	"github.com/james-livefront/ai-paywall/pkg/request"
	"github.com/james-livefront/ai-paywall/pkg/store"
)

// Observer receives detection lifecycle callbacks. The metrics layer
// implements it; embedders can supply their own.
type Observer interface {
	DetectionRecorded(res detect.Result)
	StoreError(storeName string, err error)
}

type options struct {
	logger   logrus.FieldLogger
	store    store.Store
	observer Observer
	patterns []pattern.Spec
}

type Option func(*options)

// WithLogger replaces the default logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore bypasses backend selection and uses the given store.
// Start is still called on it during construction.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithObserver registers a detection observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithPatterns appends custom signatures on top of the bundled set
// during construction. Invalid specs fail construction.
func WithPatterns(specs []pattern.Spec) Option {
	return func(o *options) { o.patterns = append(o.patterns, specs...) }
}

// Paywall is the façade. Safe for concurrent use.
type Paywall struct {
	cfg    config.Config
	log    logrus.FieldLogger
	norm   request.Normalizer
	db     *pattern.Database
	engine *detect.Engine
	store  store.Store
	obs    Observer

	// throttles store failure warnings so a dead backend does not
	// flood the log on every request
	warnLimit *rate.Limiter
}

// New validates the configuration, loads the bundled patterns, and
// starts the selected storage backend. Any failure here is fatal;
// after New returns the paywall never fails the caller's requests.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Paywall, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := pattern.NewWithDefaults()
	if err != nil {
		return nil, err
	}
	if len(o.patterns) > 0 {
		if err := db.Add(o.patterns); err != nil {
			return nil, err
		}
		warnDefaultedConfidence(o.logger, o.patterns)
	}

	engine, err := detect.New(db, cfg.ConfidenceThreshold, detect.Heuristic{
		Enabled:    cfg.HeuristicEnabled,
		Confidence: cfg.HeuristicConfidence,
	})
	if err != nil {
		return nil, err
	}

	st := o.store
	if st == nil {
		st = newStore(cfg, o.logger)
	}
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting %s store: %w", st.Name(), err)
	}

	return &Paywall{
		cfg:       cfg,
		log:       o.logger,
		norm:      request.Normalizer{TrustProxy: cfg.TrustProxy},
		db:        db,
		engine:    engine,
		store:     st,
		obs:       o.observer,
		warnLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}, nil
}

func newStore(cfg config.Config, logger logrus.FieldLogger) store.Store {
	switch cfg.Storage {
	case config.StorageFile:
		return store.NewFileStoreFromEnv()
	case config.StorageRedis:
		return store.NewRedisStoreFromEnv()
	case config.StoragePostgres:
		return store.NewPGStoreFromEnv()
	case config.StorageKafka:
		return store.NewKafkaStoreFromEnv(logger)
	default:
		return store.NewMemoryStore(cfg.MemoryCapacity)
	}
}

func warnDefaultedConfidence(log logrus.FieldLogger, specs []pattern.Spec) {
	for _, spec := range specs {
		if spec.Confidence == nil {
			log.WithFields(logrus.Fields{
				"pattern":    spec.Name,
				"confidence": pattern.DefaultConfidence,
			}).Warn("pattern has no confidence, using default")
		}
	}
}

// Check classifies a raw request. It accepts *http.Request,
// *fasthttp.RequestCtx, request.Carrier, http.Header, or
// map[string]string. Unrecognized inputs and internal faults are
// answered with a non-bot result rather than an error; callers on the
// hot path never have to branch on failure.
func (p *Paywall) Check(ctx context.Context, raw any) (res detect.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("detection panicked, treating request as human")
			res = p.humanFallback()
		}
	}()

	n, err := p.norm.Normalize(raw)
	if err != nil {
		p.log.WithError(err).Debug("unsupported request shape, treating as human")
		return p.humanFallback()
	}

	res = p.engine.Classify(n)
	p.record(ctx, res)
	if p.obs != nil {
		p.obs.DetectionRecorded(res)
	}
	return res
}

func (p *Paywall) humanFallback() detect.Result {
	return detect.Result{
		IsBot:     false,
		Method:    detect.MethodNone,
		Timestamp: time.Now().UTC(),
	}
}

// record persists best effort under a bounded timeout. Failures are
// observable but never surface to the request path.
func (p *Paywall) record(ctx context.Context, res detect.Result) {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.RecordTimeout)
	defer cancel()

	if err := p.store.Record(rctx, res); err != nil {
		if p.warnLimit.Allow() {
			p.log.WithError(err).WithField("store", p.store.Name()).Warn("failed to record detection")
		}
		if p.obs != nil {
			p.obs.StoreError(p.store.Name(), err)
		}
	}
}

// AddPatterns validates and installs custom signatures at runtime.
// The batch is atomic; in-flight Check calls keep the old set until
// the swap completes.
func (p *Paywall) AddPatterns(specs []pattern.Spec) error {
	if err := p.db.Add(specs); err != nil {
		return err
	}
	warnDefaultedConfidence(p.log, specs)
	p.log.WithFields(logrus.Fields{
		"added": len(specs),
		"total": p.db.Len(),
	}).Info("pattern database updated")
	return nil
}

// Stats reads aggregate counters from the storage backend.
func (p *Paywall) Stats(ctx context.Context) (store.Stats, error) {
	return p.store.Stats(ctx)
}

// ExportLogs streams the retained detection history as CSV.
func (p *Paywall) ExportLogs(ctx context.Context, w io.Writer) error {
	return p.store.Export(ctx, w)
}

// Threshold reports the active confidence threshold.
func (p *Paywall) Threshold() float64 { return p.engine.Threshold() }

// Patterns reports the number of installed signatures.
func (p *Paywall) Patterns() int { return p.db.Len() }

// Close shuts the storage backend down.
func (p *Paywall) Close() error {
	return p.store.Close()
}

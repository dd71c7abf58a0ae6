package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	httpx "github.com/james-livefront/ai-paywall/internal/http"
	"github.com/james-livefront/ai-paywall/internal/metrics"
	"github.com/james-livefront/ai-paywall/pkg/config"
	"github.com/james-livefront/ai-paywall/pkg/paywall"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	cfg := config.Load()
	if path := os.Getenv("PAYWALL_CONFIG"); path != "" {
		var err error
		cfg, err = config.LoadFile(path)
		if err != nil {
			log.WithError(err).Fatal("loading config file failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	metricsServer := metrics.NewServer(metrics.LoadConfig())
	if err := metricsServer.Start(ctx); err != nil {
		log.WithError(err).Fatal("starting metrics server failed")
	}

	pw, err := paywall.New(ctx, cfg,
		paywall.WithLogger(log),
		paywall.WithObserver(m),
	)
	if err != nil {
		log.WithError(err).Fatal("starting paywall failed")
	}

	env := httpx.Env{
		Cfg:     cfg,
		PW:      pw,
		Log:     log,
		Metrics: m,
	}

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: httpx.NewMux(env),
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.ServerAddr,
			"mode":    cfg.Mode,
			"storage": cfg.Storage,
		}).Info("ai-paywall listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := pw.Close(); err != nil {
		log.WithError(err).Warn("closing store failed")
	}
}

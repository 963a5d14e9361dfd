package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neuralfoundry-coder/generative-img-serving/audit"
	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwconfig"
	"github.com/neuralfoundry-coder/generative-img-serving/gwlog"
	"github.com/neuralfoundry-coder/generative-img-serving/gwrouter"
	"github.com/neuralfoundry-coder/generative-img-serving/healthcheck"
	"github.com/neuralfoundry-coder/generative-img-serving/httpapi"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
	"github.com/neuralfoundry-coder/generative-img-serving/modelsync"
	"github.com/neuralfoundry-coder/generative-img-serving/requestqueue"
	"github.com/neuralfoundry-coder/generative-img-serving/storage"
)

// modelSyncSchedule is the default cron expression for the model-sync
// job: every 5 minutes, matching provider/modelsync.go's original
// 5-minute ticker interval.
const modelSyncSchedule = "*/5 * * * *"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := gwconfig.Load(gatewayConfigPath, backendsConfigPath)
	if err != nil {
		return err
	}

	log := gwlog.New(os.Getenv("GATEWAY_ENV"), cfg.Logging.Level)
	log.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("gateway starting")

	imageRegistry := backend.NewImageRegistry(log)
	textRegistry := backend.NewTextRegistry(log)
	loadBackendConfigs(cfg.AllBackendConfigs(), imageRegistry, textRegistry, log)

	lb := loadbalancer.New(imageRegistry)
	lb.SetStrategy(loadbalancer.ParseStrategy(cfg.Routing.DefaultStrategy))
	router := gwrouter.New(gwrouter.Config{
		DefaultBackend:  cfg.Routing.DefaultBackend,
		FallbackEnabled: cfg.Routing.FallbackEnabled,
	}, imageRegistry, lb)
	queue := requestqueue.New(router, lb)

	imageHealth := healthcheck.New(healthcheck.ImageSource(imageRegistry), log)
	textHealth := healthcheck.New(healthcheck.TextSource(textRegistry), log)

	syncer := modelsync.New(textRegistry, log, 10*time.Second)
	if err := syncer.Start(modelSyncSchedule); err != nil {
		log.Warn().Err(err).Msg("model sync schedule failed to start")
	}
	defer syncer.Stop()

	urls := storage.NewUrlHandler(cfg.Storage.URLPrefix)

	var auditLog *audit.Log
	if cfg.Storage.BasePath != "" {
		if err := os.MkdirAll(cfg.Storage.BasePath, 0o755); err == nil {
			auditLog, err = audit.Open(filepath.Join(cfg.Storage.BasePath, "audit.db"))
			if err != nil {
				log.Warn().Err(err).Msg("audit log unavailable — continuing without it")
				auditLog = nil
			}
		}
	}
	if auditLog != nil {
		defer auditLog.Close()
		imageHealth.OnTransition(auditHealthTransition(auditLog))
		textHealth.OnTransition(auditHealthTransition(auditLog))
	}

	// Probe at the smallest configured health-check interval (30s when no
	// backend is configured); Start floors it at 1s.
	healthInterval := 30 * time.Second
	for i, c := range cfg.AllBackendConfigs() {
		secs := c.HealthCheck.IntervalSecs
		if secs == 0 {
			secs = c.HealthCheckIntervalSecs
		}
		if secs == 0 {
			secs = 30
		}
		if d := time.Duration(secs) * time.Second; i == 0 || d < healthInterval {
			healthInterval = d
		}
	}
	imageHealth.Start(healthInterval)
	textHealth.Start(healthInterval)
	defer imageHealth.Stop()
	defer textHealth.Stop()

	if backendsConfigPath != "" {
		watcher, err := gwconfig.NewWatcher(backendsConfigPath, log, func(groups gwconfig.BackendGroups) {
			reconcileBackends(groups, imageRegistry, textRegistry, log)
		})
		if err != nil {
			log.Warn().Err(err).Msg("backends file watcher failed to start")
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      httpapi.NewServer(cfg, imageRegistry, textRegistry, lb, router, queue, imageHealth, textHealth, syncer, urls, auditLog, log).NewRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-sig:
	}

	log.Info().Msg("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	log.Info().Msg("gateway stopped gracefully")
	return nil
}

// auditHealthTransition records every backend health flip to the audit
// log, so an operator can later correlate a dispatch failure with when
// a backend went unhealthy.
func auditHealthTransition(auditLog *audit.Log) func(name string, healthy bool) {
	return func(name string, healthy bool) {
		detail := "unhealthy"
		if healthy {
			detail = "healthy"
		}
		_ = auditLog.Record(context.Background(), name, audit.EventHealthTransition, detail)
	}
}

// loadBackendConfigs routes each backend config to the image or text
// registry by its declared type, registering multi-capable backends in
// both (spec §3's Type enum distinguishes image/text/multi).
func loadBackendConfigs(cfgs []backend.Config, imageRegistry *backend.ImageRegistry, textRegistry *backend.TextRegistry, log zerolog.Logger) {
	for _, c := range cfgs {
		switch backend.ParseType(c.BackendType) {
		case backend.TypeText:
			if err := textRegistry.AddBackend(c); err != nil {
				log.Error().Err(err).Str("backend", c.Name).Msg("failed to register text backend")
			}
		case backend.TypeMulti:
			if err := imageRegistry.AddBackend(c); err != nil {
				log.Error().Err(err).Str("backend", c.Name).Msg("failed to register multi backend (image)")
			}
			if err := textRegistry.AddBackend(c); err != nil {
				log.Error().Err(err).Str("backend", c.Name).Msg("failed to register multi backend (text)")
			}
		default:
			if err := imageRegistry.AddBackend(c); err != nil {
				log.Error().Err(err).Str("backend", c.Name).Msg("failed to register image backend")
			}
		}
	}
}

// reconcileBackends applies a freshly re-read backends file to the live
// registries: new names are added, names no longer present are removed.
// Existing names are left untouched (spec doesn't define in-place config
// updates, only add/remove).
func reconcileBackends(groups gwconfig.BackendGroups, imageRegistry *backend.ImageRegistry, textRegistry *backend.TextRegistry, log zerolog.Logger) {
	desired := make(map[string]backend.Config)
	for _, c := range groups.Image {
		c.BackendType = string(backend.TypeImage)
		desired[c.Name] = c
	}
	for _, c := range groups.Text {
		c.BackendType = string(backend.TypeText)
		desired[c.Name] = c
	}
	for _, c := range groups.GRPC {
		if c.BackendType == "" {
			c.BackendType = string(backend.TypeImage)
		}
		desired[c.Name] = c
	}

	for name := range imageRegistry.GetAll() {
		if _, ok := desired[name]; !ok {
			if err := imageRegistry.RemoveBackend(name); err != nil {
				log.Error().Err(err).Str("backend", name).Msg("failed to remove stale image backend")
			} else {
				log.Info().Str("backend", name).Msg("removed image backend no longer in backends file")
			}
		}
	}
	for name := range textRegistry.GetAllBackends() {
		if _, ok := desired[name]; !ok {
			if err := textRegistry.RemoveBackend(name); err != nil {
				log.Error().Err(err).Str("backend", name).Msg("failed to remove stale text backend")
			} else {
				log.Info().Str("backend", name).Msg("removed text backend no longer in backends file")
			}
		}
	}

	for name, c := range desired {
		_, inText := textRegistry.GetBackend(name)
		if !imageRegistry.Contains(name) && !inText {
			loadBackendConfigs([]backend.Config{c}, imageRegistry, textRegistry, log)
		}
	}
}

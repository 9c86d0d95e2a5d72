// Command astrashield runs the conjunction screening and alerting service:
// TLE ingest, SGP4 propagation, periodic all-pairs screening, risk rating,
// alert lifecycle, webhook dispatch, and the HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/api"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/engine"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/notify"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/scorer"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/ws"
)

var version = "dev"

// Exit codes. 130 mirrors the shell convention for SIGINT.
const (
	exitOK       = 0
	exitConfig   = 1
	exitIngest   = 2
	exitInternal = 3
	exitSignal   = 130
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfig)
	}
	os.Exit(exitOK)
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "astrashield",
		Short:         "Space situational awareness: conjunction screening and re-entry alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, "configuration error:", err)
				return &exitError{code: exitConfig, err: err}
			}
			return serve(cfg)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("astrashield", version)
		},
	})
	return root
}

// config is everything the service reads at boot. Values come from the YAML
// file (if given) and ASTRASHIELD_* environment variables, with the file
// losing to the environment.
type config struct {
	Addr     string
	LogLevel slog.Level
	DataDir  string

	TLESourceURL string
	TLEExtraURLs []string
	TLECacheDir  string
	FetchOnBoot  bool
	MetadataPath string

	Screening       screening.Config
	ScanInterval    time.Duration
	ReentryInterval time.Duration

	EndpointsPath string
	FlushInterval time.Duration
	WSMaxPerIP    int
}

func loadConfig(configFile string) (config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASTRASHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	scrDefaults := screening.DefaultConfig()
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("data.dir", "/var/lib/astrashield")
	v.SetDefault("tle.source_url", "")
	v.SetDefault("tle.extra_urls", []string{})
	v.SetDefault("tle.cache_dir", "/var/lib/astrashield/tle")
	v.SetDefault("tle.fetch_on_boot", true)
	v.SetDefault("tle.metadata_path", "")
	v.SetDefault("screening.window", scrDefaults.Window)
	v.SetDefault("screening.coarse_step", scrDefaults.CoarseStep)
	v.SetDefault("screening.threshold_km", scrDefaults.ThresholdKm)
	v.SetDefault("screening.workers", 0)
	v.SetDefault("engine.scan_interval", time.Hour)
	v.SetDefault("engine.reentry_interval", 30*time.Minute)
	v.SetDefault("notify.endpoints_path", "")
	v.SetDefault("store.flush_interval", 30*time.Second)
	v.SetDefault("ws.max_per_ip", 10)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return config{}, fmt.Errorf("log.level: %w", err)
	}

	cfg := config{
		Addr:         v.GetString("http.addr"),
		LogLevel:     level,
		DataDir:      v.GetString("data.dir"),
		TLESourceURL: v.GetString("tle.source_url"),
		TLEExtraURLs: v.GetStringSlice("tle.extra_urls"),
		TLECacheDir:  v.GetString("tle.cache_dir"),
		FetchOnBoot:  v.GetBool("tle.fetch_on_boot"),
		MetadataPath: v.GetString("tle.metadata_path"),
		Screening: screening.Config{
			Window:      v.GetDuration("screening.window"),
			CoarseStep:  v.GetDuration("screening.coarse_step"),
			ThresholdKm: v.GetFloat64("screening.threshold_km"),
			Workers:     v.GetInt("screening.workers"),
		},
		ScanInterval:    v.GetDuration("engine.scan_interval"),
		ReentryInterval: v.GetDuration("engine.reentry_interval"),
		EndpointsPath:   v.GetString("notify.endpoints_path"),
		FlushInterval:   v.GetDuration("store.flush_interval"),
		WSMaxPerIP:      v.GetInt("ws.max_per_ip"),
	}
	if cfg.Addr == "" {
		return config{}, errors.New("http.addr must not be empty")
	}
	if cfg.Screening.Window <= 0 || cfg.Screening.CoarseStep <= 0 {
		return config{}, errors.New("screening.window and screening.coarse_step must be positive")
	}
	return cfg, nil
}

func serve(cfg config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Info("starting", "version", version, "addr", cfg.Addr)

	catalog := tle.NewCatalog(logger)
	if cfg.MetadataPath != "" {
		meta, err := tle.LoadMetadataFile(cfg.MetadataPath)
		if err != nil {
			logger.Error("metadata file unusable", "path", cfg.MetadataPath, "error", err)
			return &exitError{code: exitConfig, err: err}
		}
		catalog.ApplyMetadata(meta)
	}

	tleCache := tle.NewCache(cfg.TLECacheDir, 5)
	var fetcher *tle.Fetcher
	if cfg.FetchOnBoot || cfg.TLESourceURL != "" {
		fetcher = tle.NewFetcher(cfg.TLESourceURL, logger, cfg.TLEExtraURLs...)
	}

	st, err := store.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		logger.Error("opening store", "dir", cfg.DataDir, "error", err)
		return &exitError{code: exitInternal, err: err}
	}

	var endpoints []notify.Endpoint
	if cfg.EndpointsPath != "" {
		endpoints, err = notify.LoadEndpoints(cfg.EndpointsPath)
		if err != nil {
			logger.Error("endpoint config unusable", "path", cfg.EndpointsPath, "error", err)
			return &exitError{code: exitConfig, err: err}
		}
	}

	prop := propagation.NewPropagator(catalog, propagation.PropConfig{Workers: cfg.Screening.Workers}, logger)
	alerts := alert.NewManager(alert.DefaultConfig(), logger)

	var notifier *notify.Notifier
	if len(endpoints) > 0 {
		notifier, err = notify.New(notify.Config{}, endpoints, alerts, logger)
		if err != nil {
			logger.Error("building notifier", "error", err)
			return &exitError{code: exitConfig, err: err}
		}
	}

	hub := ws.NewHub(cfg.WSMaxPerIP, logger)
	registry := reentry.NewRegistry(func(e reentry.Event) {
		hub.BroadcastReentry(e)
		if notifier != nil {
			notifier.HandleReentryEvent(e)
		}
	}, logger)

	alerts.Subscribe(func(e alert.Event) {
		hub.BroadcastAlert(e)
		if notifier != nil {
			notifier.HandleAlertEvent(e)
		}
	})

	eng := engine.New(engine.Config{
		Screening:       cfg.Screening,
		ScanInterval:    cfg.ScanInterval,
		ReentryInterval: cfg.ReentryInterval,
	}, engine.Deps{
		Catalog:    catalog,
		Fetcher:    fetcher,
		TLECache:   tleCache,
		Propagator: prop,
		Risk:       risk.NewEngine(risk.DefaultConfig()),
		Alerts:     alerts,
		Predictor:  reentry.NewPredictor(reentry.DefaultConfig(), logger),
		Registry:   registry,
		Scorer:     scorer.NewTrendScorer(),
		Store:      st,
		Notifier:   notifier,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the catalog before serving: persisted data first, a live fetch if
	// the catalog is still empty and fetching is enabled.
	if _, err := eng.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		return &exitError{code: exitInternal, err: err}
	}
	if catalog.Len() == 0 && cfg.FetchOnBoot && fetcher != nil {
		if _, err := eng.RefreshTLE(ctx); err != nil {
			logger.Error("initial TLE ingest failed", "error", err)
			return &exitError{code: exitIngest, err: err}
		}
	}

	srv, err := api.NewServer(cfg.Addr, api.Deps{
		Catalog:    catalog,
		Propagator: prop,
		Engine:     eng,
		Alerts:     alerts,
		Reentry:    registry,
		Hub:        hub,
	}, logger)
	if err != nil {
		return &exitError{code: exitInternal, err: err}
	}

	go hub.Run(ctx)
	go registry.Run(ctx)
	go alerts.RunEscalations(ctx)
	go st.Run(ctx, cfg.FlushInterval)
	go eng.Run(ctx)
	if notifier != nil {
		go notifier.Run(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := exitOK
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		if sig == syscall.SIGINT {
			exitCode = exitSignal
		}
	case err := <-serverErr:
		logger.Error("server listen error", "error", err)
		cancel()
		return &exitError{code: exitInternal, err: err}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("final store flush failed", "error", err)
	}

	logger.Info("stopped")
	if exitCode != exitOK {
		return &exitError{code: exitCode, err: errors.New("interrupted")}
	}
	return nil
}

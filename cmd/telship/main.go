package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/telship/internal/adapters/log"
	"github.com/bft-labs/telship/internal/cliconfig"
	"github.com/bft-labs/telship/pkg/telship"
	"github.com/bft-labs/telship/plugins/configwatcher"
	"github.com/bft-labs/telship/plugins/retrycleanup"
)

const helpDescription = `
Ship newline-delimited JSON telemetry to an ingest endpoint.

Highlights:
  - Batches records and compresses each batch (gzip, zstd or lz4).
  - Keeps batches the endpoint could not take on disk and replays them with backoff.
  - Developer mode sends every record on its own; toggle it live in the config file.
  - Configure via file, env (TELSHIP_*), or flags.
`

var exampleUsage = strings.TrimSpace(`
  app | telship --auth-key <api-key>
  telship --config $HOME/.telship/config.toml events.ndjson
  telship --follow --metrics-addr :9464 < /var/run/app.pipe
`)

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var verbose bool

	log := cliconfig.Logger(false)

	root := &cobra.Command{
		Use:     "telship [file ...]",
		Short:   "Ship newline-delimited JSON telemetry to an ingest endpoint",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", telship.Version, runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Config file first (default $HOME/.telship/config.toml), then env, then flags.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			hasFile := cfgFile != "" && cliconfig.FileExists(cfgFile)
			if hasFile {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log = cliconfig.Logger(verbose || cfg.DeveloperMode)

			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			log.Info().Interface("config", logCfg).Msg("configuration")

			return run(cmd.Context(), cfg, cfgFile, hasFile, args, os.Stdin, log)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.telship/config.toml)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.Flags().StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "ingest endpoint URL")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key sent as a bearer token")
	root.Flags().BoolVar(&cfg.DeveloperMode, "developer-mode", cfg.DeveloperMode, "send every record on its own and log it")
	root.Flags().StringVar(&cfg.BackoffPolicy, "backoff-policy", cfg.BackoffPolicy, "replay backoff: exponential or static")
	root.Flags().StringVar(&cfg.Compression, "compression", cfg.Compression, "batch compression: gzip, zstd or lz4")

	root.Flags().StringVar(&cfg.RetryDir, "retry-dir", cfg.RetryDir, "directory for undelivered batches")
	root.Flags().Int64Var(&cfg.RetryDirCapacity, "retry-dir-capacity", cfg.RetryDirCapacity, "maximum bytes kept in the retry directory")

	root.Flags().IntVar(&cfg.MaxBatchSize, "max-batch-size", cfg.MaxBatchSize, "records per batch")
	root.Flags().DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "send a partial batch after this long")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "HTTP timeout per delivery")

	root.Flags().IntVar(&cfg.LoaderWorkers, "loader-workers", cfg.LoaderWorkers, "retry directory replay workers (1-9)")
	root.Flags().DurationVar(&cfg.LoaderIdleInterval, "loader-idle-interval", cfg.LoaderIdleInterval, "poll interval when the retry directory is empty")

	root.Flags().IntVar(&cfg.NetworkMinWorkers, "network-min-workers", cfg.NetworkMinWorkers, "minimum delivery workers")
	root.Flags().IntVar(&cfg.NetworkMaxWorkers, "network-max-workers", cfg.NetworkMaxWorkers, "maximum delivery workers")
	root.Flags().IntVar(&cfg.NetworkQueueSize, "network-queue-size", cfg.NetworkQueueSize, "delivery queue size")
	root.Flags().DurationVar(&cfg.NetworkIdleTimeout, "network-idle-timeout", cfg.NetworkIdleTimeout, "idle time before an extra delivery worker exits")
	root.Flags().IntVar(&cfg.FileSystemMinWorkers, "filesystem-min-workers", cfg.FileSystemMinWorkers, "minimum persistence workers")
	root.Flags().IntVar(&cfg.FileSystemMaxWorkers, "filesystem-max-workers", cfg.FileSystemMaxWorkers, "maximum persistence workers")
	root.Flags().IntVar(&cfg.FileSystemQueueSize, "filesystem-queue-size", cfg.FileSystemQueueSize, "persistence queue size")
	root.Flags().DurationVar(&cfg.FileSystemIdleTimeout, "filesystem-idle-timeout", cfg.FileSystemIdleTimeout, "idle time before an extra persistence worker exits")
	for _, name := range []string{
		"network-min-workers", "network-max-workers", "network-queue-size", "network-idle-timeout",
		"filesystem-min-workers", "filesystem-max-workers", "filesystem-queue-size", "filesystem-idle-timeout",
	} {
		if err := root.Flags().MarkHidden(name); err != nil {
			log.Info().Err(err).Str("flag", name).Msg("failed to hide flag")
		}
	}

	root.Flags().Int64Var(&cfg.CleanupHighWatermark, "cleanup-high-watermark", cfg.CleanupHighWatermark, "retry directory size that triggers cleanup (0 disables)")
	root.Flags().Int64Var(&cfg.CleanupLowWatermark, "cleanup-low-watermark", cfg.CleanupLowWatermark, "retry directory size cleanup trims down to")
	root.Flags().DurationVar(&cfg.CleanupMaxAge, "cleanup-max-age", cfg.CleanupMaxAge, "drop undelivered batches older than this (0 disables)")
	root.Flags().DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "retry directory cleanup interval")

	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9464)")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed to flush on exit")
	root.Flags().BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep running after input ends until interrupted")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("telship")
		os.Exit(1)
	}
}

// run starts a channel, feeds it the inputs and stops it when the inputs end,
// or on a signal when following.
func run(parent context.Context, cfg cliconfig.Config, cfgFile string, watchFile bool, args []string, stdin io.Reader, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []telship.Option{
		telship.WithLogger(logAdapter.NewZerologAdapterWithLogger(log)),
		telship.WithRegisterer(reg),
		telship.WithEventHandler(&droppedLogger{log: log}),
		retrycleanup.WithRetryCleanup(cleanupConfig(cfg)),
	}
	if watchFile {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}))
	}

	ch, err := telship.New(libConfig(cfg), opts...)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}

	// Reading stdin cannot be interrupted, so it runs on its own goroutine.
	type result struct {
		stats inputStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := readInputs(ctx, args, stdin, ch.Send)
		done <- result{stats, err}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, stopping...")
	case r := <-done:
		if r.err != nil && !errors.Is(r.err, context.Canceled) {
			log.Error().Err(r.err).Msg("input failed")
		}
		log.Info().Int("sent", r.stats.Sent).Int("invalid", r.stats.Invalid).Msg("input complete")
		if cfg.Follow && ctx.Err() == nil {
			log.Info().Msg("following; waiting for signal")
			<-ctx.Done()
			log.Info().Msg("received signal, stopping...")
		}
	}

	if err := ch.Stop(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("stop channel: %w", err)
	}
	return nil
}

// droppedLogger logs every lost batch.
type droppedLogger struct {
	telship.NopEventHandler
	log zerolog.Logger
}

func (d *droppedLogger) OnDropped(e telship.DroppedEvent) {
	d.log.Warn().Err(e.Err).Str("reason", e.Reason).Int("bytes", e.Bytes).Msg("transmission dropped")
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/docketcache/audit"
	"github.com/jonwraymond/docketcache/cache"
	"github.com/jonwraymond/docketcache/config"
	"github.com/jonwraymond/docketcache/observe"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	configPath string
	root       string
	debug      bool
	traces     string
	metrics    string

	cfg      config.Config
	logger   observe.Logger
	observer observe.Observer
	cache    *cache.Cache
}

// NewRootCmd creates the docketcache command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "docketcache",
		Short:         "Inspect and maintain a docket cache store",
		Long:          "docketcache reads and writes entries in a file-backed object cache store and reports on its health.",
		Version:       version,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.root, "root", "", "store directory (overrides config)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.traces, "traces", "", "trace exporter: stdout, otlp or none (overrides config)")
	cmd.PersistentFlags().StringVar(&a.metrics, "metrics", "", "metrics exporter: stdout, otlp, prometheus or none (overrides config)")

	cmd.AddCommand(
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newCounterCmd(a, "incr"),
		newCounterCmd(a, "decr"),
		newFlushCmd(a),
		newStatsCmd(a),
		newHealthCmd(a),
	)
	return cmd
}

const rootCmdExample = `  # Read an entry
  docketcache get alloptions --group options

  # Store a JSON value for an hour
  docketcache set settings '{"theme":"dark"}' --json --ttl 1h

  # Empty the store
  docketcache flush

  # Serve health endpoints
  docketcache health --listen :8080`

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.root != "" {
		cfg.Root = a.root
	}
	if a.traces != "" {
		cfg.Telemetry.Traces = a.traces
	}
	if a.metrics != "" {
		cfg.Telemetry.Metrics = a.metrics
	}

	level := cfg.Log.Level
	if a.debug {
		level = "debug"
	}
	a.logger = observe.NewConsoleLogger(level, cmd.ErrOrStderr()).With(observe.F("cmd", cmd.Name()))

	opts := []cache.Option{cache.WithLogger(a.logger)}
	if cfg.Telemetry.Enabled() {
		obs, err := observe.NewObserver(contextOf(cmd), observe.Config{
			ServiceName: config.AppName,
			Version:     cmd.Root().Version,
			Tracing:     observe.TracingConfig{Enabled: cfg.Telemetry.TracesOn(), Exporter: cfg.Telemetry.Traces, SamplePct: cfg.Telemetry.SampleRate},
			Metrics:     observe.MetricsConfig{Enabled: cfg.Telemetry.MetricsOn(), Exporter: cfg.Telemetry.Metrics},
			Output:      cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		a.observer = obs
		opts = append(opts, cache.WithObserver(obs))
	}

	c, err := cache.New(cfg, opts...)
	if err != nil {
		return errors.Join(err, a.close())
	}
	a.cfg = cfg
	a.cache = c

	cmd.SetContext(audit.WithRequest(contextOf(cmd), cmd.CommandPath()))
	a.logger.Debug(cmd.Context(), "cache opened", observe.F("root", c.Root()), observe.F("memory_only", c.MemoryOnly()))
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.observer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.observer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// entryKey validates key and applies the tenant prefix for group.
func (a *app) entryKey(key, group string) (string, error) {
	if err := cache.ValidateKey(key); err != nil {
		return "", fmt.Errorf("key %q: %w", key, err)
	}
	return a.cache.Policy().Qualify(group, key), nil
}

// ErrNotFound is returned by commands that found no live entry.
var ErrNotFound = errors.New("not found")

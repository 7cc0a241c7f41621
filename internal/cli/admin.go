package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/docketcache/health"
	"github.com/jonwraymond/docketcache/observe"
)

// ErrFlushIncomplete is returned when the sentinel is gone after a flush.
var ErrFlushIncomplete = errors.New("flush incomplete")

// ErrUnhealthy is returned by the health command when the store is unhealthy.
var ErrUnhealthy = errors.New("unhealthy")

func newFlushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every entry in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.cache.Flush(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "removed %s files", humanize.Comma(int64(res.Removed)))
			if res.Skipped > 0 {
				fmt.Fprintf(out, ", skipped %s", humanize.Comma(int64(res.Skipped)))
			}
			fmt.Fprintln(out)
			if !res.OK {
				return ErrFlushIncomplete
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store usage and policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.cache.Stats()
			p := a.cache.Policy()

			const tabPadding = 2
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, tabPadding, ' ', 0)
			fmt.Fprintf(w, "Root\t%s\n", a.cache.Root())
			fmt.Fprintf(w, "Mode\t%s\n", modeName(s.MemoryOnly))
			fmt.Fprintf(w, "Entries\t%s\n", humanize.Comma(int64(s.Disk.Entries)))
			fmt.Fprintf(w, "Size\t%s\n", humanize.IBytes(uint64(s.Disk.Bytes)))
			fmt.Fprintf(w, "Max TTL\t%s\n", ttlName(a.cfg.MaxTTL))
			fmt.Fprintf(w, "Global groups\t%d\n", len(p.GlobalGroups()))
			fmt.Fprintf(w, "Memory-only groups\t%d\n", len(p.NonPersistentGroups()))
			fmt.Fprintf(w, "Audit log\t%s\n", auditName(a.cfg.Audit.Enabled, a.cfg.Audit.Path))
			return w.Flush()
		},
	}
}

func modeName(memoryOnly bool) string {
	if memoryOnly {
		return "memory-only"
	}
	return "disk"
}

func ttlName(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}

func auditName(enabled bool, path string) string {
	if !enabled {
		return "off"
	}
	return path
}

func newHealthCmd(a *app) *cobra.Command {
	var (
		listen      string
		minHitRatio float64
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the store, or serve health endpoints",
		Example: `  docketcache health
  docketcache health --listen :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agg := health.NewAggregator()
			agg.Register(
				health.NewStoreChecker(a.cache),
				health.NewFrontChecker(a.cache, health.FrontCheckerConfig{MinHitRatio: minHitRatio}),
			)

			if listen != "" {
				return a.serveHealth(cmd.Context(), listen, agg)
			}

			report := agg.Report(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy.String() {
				return ErrUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "serve /healthz, /readyz and /health on this address")
	cmd.Flags().Float64Var(&minHitRatio, "min-hit-ratio", 0, "report degraded below this hit ratio")
	return cmd
}

func (a *app) serveHealth(ctx context.Context, addr string, agg *health.Aggregator) error {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.logger.Info(ctx, "serving health", observe.F("addr", addr), observe.F("checks", sortedNames(agg)))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func sortedNames(agg *health.Aggregator) []string {
	names := agg.CheckerNames()
	sort.Strings(names)
	return names
}

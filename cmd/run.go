package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/auditlog/csvlog"
	"github.com/FranksOps/magpie/internal/auditlog/jsonlog"
	"github.com/FranksOps/magpie/internal/auditlog/postgres"
	"github.com/FranksOps/magpie/internal/auditlog/sqlitelog"
	"github.com/FranksOps/magpie/internal/catalog"
	"github.com/FranksOps/magpie/internal/download"
	"github.com/FranksOps/magpie/internal/engine"
	"github.com/FranksOps/magpie/internal/fingerprint"
	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/internal/pipeline"
	"github.com/FranksOps/magpie/internal/publish"
	"github.com/FranksOps/magpie/internal/report"
	"github.com/FranksOps/magpie/internal/sourcer"
	"github.com/FranksOps/magpie/internal/status"
	"github.com/FranksOps/magpie/pkg/pacing"
	"github.com/FranksOps/magpie/pkg/proxy"
	"github.com/FranksOps/magpie/pkg/useragent"
)

// dryRunLimit caps a smoke-test run to the first few catalog rows.
const dryRunLimit = 5

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <catalog file>",
	Short: "Source images for every catalog item without one",
	Long: `Reads a CSV or XLSX catalog, skips rows that already carry an image,
and processes the rest strictly in order. Status events stream to
stdout, one JSON block per transition; a run summary lands on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlags(cmd.Flags())
		return runPipeline(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("output", "o", "product_images", "Directory for downloaded images")
	runCmd.Flags().String("store", "csv", "Audit log backend: csv, json, sqlite, postgres")
	runCmd.Flags().String("audit-log", "audit_log.csv", "Audit log path (csv/json/sqlite) or DSN (postgres)")
	runCmd.Flags().String("resume-policy", string(auditlog.ResumeSuccessOnly), "Which prior outcomes block reprocessing: success-only or any-terminal")
	runCmd.Flags().Bool("publish", false, "Publish downloaded images to WordPress (WP_URL, WP_USER, WP_APP_PASSWORD)")
	runCmd.Flags().Bool("dry-run", false, fmt.Sprintf("Process only the first %d items", dryRunLimit))
	runCmd.Flags().String("proxies", "", "File with proxy URLs, one per line")
	runCmd.Flags().String("fingerprint", "chrome", "TLS fingerprint profile: chrome, firefox, go")
	runCmd.Flags().Int("metrics-port", 0, "Expose Prometheus /metrics on this port (0 disables)")
}

func runPipeline(parent context.Context, catalogPath string) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// Rows that already have an image never reach the runner
	pending := items[:0]
	skipped := 0
	for _, item := range items {
		if item.HasImage {
			skipped++
			continue
		}
		pending = append(pending, item)
	}
	logger.Info("catalog loaded", "total", len(items), "with_image", skipped, "to_process", len(pending))

	if viper.GetBool("dry-run") {
		pending = catalog.Truncate(pending, dryRunLimit)
		logger.Info("dry run, input truncated", "items", len(pending))
	}

	store, err := openStore(ctx, viper.GetString("store"), viper.GetString("audit-log"), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	uaPool := useragent.NewPool(nil)

	var proxyPool *proxy.Pool
	if path := viper.GetString("proxies"); path != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(path); err != nil {
			return fmt.Errorf("loading proxies: %w", err)
		}
	}

	engineCfg := engine.ClientConfig{
		UAPool:      uaPool,
		ProxyPool:   proxyPool,
		Fingerprint: fingerprint.Profile(viper.GetString("fingerprint")),
	}
	primary, err := engine.NewDuckDuckGo("", engineCfg)
	if err != nil {
		return fmt.Errorf("creating primary engine: %w", err)
	}
	fallback, err := engine.NewBing("", engineCfg)
	if err != nil {
		return fmt.Errorf("creating fallback engine: %w", err)
	}

	dl, err := download.New(download.Config{
		OutputDir: viper.GetString("output"),
		UAPool:    uaPool,
	})
	if err != nil {
		return fmt.Errorf("creating downloader: %w", err)
	}

	var publisher *publish.Client
	if viper.GetBool("publish") {
		publisher, err = publish.New(publish.FromEnv())
		if err != nil {
			return fmt.Errorf("configuring publish step: %w", err)
		}
	}

	if port := viper.GetInt("metrics-port"); port > 0 {
		srv := metrics.Start(port)
		defer srv.Stop(context.Background())
		logger.Info("metrics server started", "port", port)
	}

	runner := pipeline.New(pipeline.Config{
		Sourcer: sourcer.New(sourcer.Config{
			Primary:        primary,
			Fallback:       fallback,
			Downloader:     dl,
			BeforeSearch:   pacing.BeforeSearch,
			BeforeDownload: pacing.BeforeDownload,
			Logger:         logger,
		}),
		Store:        store,
		Policy:       auditlog.ResumePolicy(viper.GetString("resume-policy")),
		Publisher:    publisher,
		BetweenItems: pacing.BetweenItems,
		Logger:       logger,
	})

	logger.Info("run starting", "run_id", runner.RunID(), "items", len(pending))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	events := runner.Run(gctx, pending)
	g.Go(func() error {
		return status.NewStreamWriter(os.Stdout).Drain(events)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("streaming events: %w", err)
	}

	if ctx.Err() != nil {
		logger.Warn("run cancelled", "after", time.Since(start).Round(time.Second))
	}

	return writeSummary(store, runner.RunID())
}

// openStore picks the audit log backend. target is a file path for the
// file and sqlite backends and a DSN for postgres.
func openStore(ctx context.Context, kind, target string, logger *slog.Logger) (auditlog.Store, error) {
	switch kind {
	case "csv":
		return csvlog.New(target, logger)
	case "json":
		return jsonlog.New(target, logger)
	case "sqlite":
		return sqlitelog.New(target)
	case "postgres":
		return postgres.New(ctx, target)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// writeSummary reports this run's outcomes on stderr.
func writeSummary(store auditlog.Store, runID string) error {
	entries, err := store.Entries(context.Background())
	if err != nil {
		return fmt.Errorf("reading audit log for summary: %w", err)
	}

	var ours []*auditlog.Entry
	for _, e := range entries {
		if e.RunID == runID {
			ours = append(ours, e)
		}
	}

	return report.WriteText(os.Stderr, report.GenerateSummary(ours))
}

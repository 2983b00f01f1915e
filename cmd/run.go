package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lvcoi/igfetch/internal/actor"
	"github.com/lvcoi/igfetch/internal/app"
	"github.com/lvcoi/igfetch/internal/config"
	"github.com/lvcoi/igfetch/internal/engine"
	"github.com/lvcoi/igfetch/internal/logger"
)

type runFlags struct {
	input       string
	urls        []string
	mode        string
	quality     string
	maxItems    int
	cookiesFile string
	proxies     []string
	local       bool
	metricsFile string
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the run input and store records and media",
		Long: `Reads the run input, processes every URL in order and pushes one record per
media item to the dataset. On the Apify platform input, dataset and key-value store
come from the actor environment; elsewhere the local storage directory is used.
Flags override the matching input fields.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.input, "input", "", "input JSON file for local runs")
	flags.StringSliceVar(&f.urls, "url", nil, "Instagram URL to process (repeatable)")
	flags.StringVar(&f.mode, "mode", "", "download mode: videos or metadata_only")
	flags.StringVar(&f.quality, "quality", "", "quality tier: best, 1080p, 720p, audio_only")
	flags.IntVar(&f.maxItems, "max-items", 0, "maximum items per URL (0 = unbounded)")
	flags.StringVar(&f.cookiesFile, "cookies-file", "", "cookies as JSON export or Netscape text")
	flags.StringSliceVar(&f.proxies, "proxy", nil, "proxy URL, rotated per URL (repeatable)")
	flags.BoolVar(&f.local, "local", false, "force the local runtime even on the platform")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	return cmd
}

func runBatch(cmd *cobra.Command, f runFlags) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	binary, err := engine.Locate(cfg.Engine.Binary)
	if err != nil {
		return err
	}
	if f.metricsFile != "" {
		cfg.Metrics.File = f.metricsFile
	}

	overrides, err := f.overrides(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg, f, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("closing runtime", logger.Error(err))
		}
	}()

	batch := &app.Batch{
		Config:    cfg,
		Runtime:   rt,
		Engine:    engine.NewYtDlp(binary, cfg.Engine.Timeout, log),
		Logger:    log,
		Overrides: overrides,
		Summary:   cmd.ErrOrStderr(),
	}
	counters, err := batch.Execute(ctx)
	if err != nil {
		return err
	}
	if counters.Cancelled {
		return fmt.Errorf("run interrupted after %d urls: %w", counters.Processed, context.Canceled)
	}
	return nil
}

func newRuntime(cfg *config.Config, f runFlags, log logger.Logger) (*actor.Runtime, error) {
	if cfg.OnPlatform() && !f.local {
		log.Info("using apify runtime")
		return actor.NewApify(cfg.Apify, nil, log)
	}
	log.Info("using local runtime", logger.String("storage", cfg.Storage.Dir))
	return actor.NewLocal(cfg.Storage, cfg.Apify, f.input, log)
}

// overrides maps explicitly set flags onto input keys.
func (f runFlags) overrides(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	out := map[string]any{}
	if flags.Changed("url") {
		out["urls"] = f.urls
	}
	if flags.Changed("mode") {
		out["downloadMode"] = f.mode
	}
	if flags.Changed("quality") {
		out["quality"] = f.quality
	}
	if flags.Changed("max-items") {
		out["maxItems"] = f.maxItems
	}
	if flags.Changed("proxy") {
		out["proxyConfiguration"] = map[string]any{"proxyUrls": f.proxies}
	}
	if f.cookiesFile != "" {
		data, err := os.ReadFile(f.cookiesFile)
		if err != nil {
			return nil, fmt.Errorf("reading cookies file: %w", err)
		}
		out["cookies"] = string(data)
	}
	return out, nil
}

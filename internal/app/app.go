// Package app runs one batch: it reads the run input, builds the extraction
// pipeline and processes every URL in order.
package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/lvcoi/igfetch/internal/actor"
	"github.com/lvcoi/igfetch/internal/config"
	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/engine"
	"github.com/lvcoi/igfetch/internal/logger"
)

// Batch wires everything a run needs.
type Batch struct {
	Config  *config.Config
	Runtime *actor.Runtime
	Engine  engine.Engine
	Logger  logger.Logger
	// Overrides replace keys of the runtime input, e.g. from command-line flags.
	Overrides map[string]any
	// Summary receives the end-of-run table; nil disables it.
	Summary io.Writer
	// TempDir is the parent of scratch directories.
	TempDir string
}

// Execute runs the batch. Only setup failures are returned; per-URL failures
// end up in the dataset.
func (b *Batch) Execute(ctx context.Context) (Counters, error) {
	log := b.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("run_id", uuid.NewString()), logger.String("runtime", b.Runtime.Name))
	start := time.Now()

	raw, err := b.Runtime.Input.Input(ctx)
	if err != nil {
		return Counters{}, fmt.Errorf("reading input: %w", err)
	}
	merged := maps.Clone(raw)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, b.Overrides)

	in, err := ParseInput(merged)
	if err != nil {
		return Counters{}, fmt.Errorf("parsing input: %w", err)
	}
	if len(in.URLs) == 0 {
		log.Error("no URLs provided in input, expected 'urls' as a string or a list of Instagram URLs")
		return Counters{}, nil
	}
	targets := ValidTargets(in.URLs, log)
	if len(targets) == 0 {
		log.Error("no valid Instagram URLs found, supported: posts (/p/), reels (/reel/), IGTV (/tv/), stories (/stories/)")
		return Counters{}, nil
	}
	log.Info("run configured",
		logger.String("mode", in.Mode),
		logger.String("quality", in.Quality),
		logger.Int("max_items", in.MaxItems),
		logger.Int("urls", len(targets)),
		logger.Bool("cookies", in.Cookies != ""),
	)

	provider, err := b.Runtime.Proxy(in.Proxy)
	if err != nil {
		log.Warn("proxy configuration unavailable, continuing without proxy", logger.Error(err))
		provider = nil
	}

	cfg := b.Config
	caps := downloader.DetectCapabilities(cfg.Engine.Transcoder, cfg.Stealth.Enabled)
	log.Info("capabilities", logger.Bool("transcoder", caps.Transcoder), logger.Bool("stealth", caps.Stealth))

	metrics := NewMetrics()
	pipeline := downloader.NewPipeline(downloader.PipelineConfig{
		Engine:       b.Engine,
		Store:        b.Runtime.Store,
		Prefetcher:   downloader.NewStealthFetcher(cfg.Stealth.Timeout),
		Transcoder:   downloader.NewFFmpegTranscoder(cfg.Engine.Transcoder),
		Observer:     metrics,
		Logger:       log,
		Capabilities: caps,
		Primary: downloader.Backoff{
			Attempts:  cfg.Retry.PrimaryAttempts,
			BaseDelay: cfg.Retry.PrimaryBaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		},
		Fallback: downloader.Backoff{
			Attempts:  cfg.Retry.FallbackAttempts,
			BaseDelay: cfg.Retry.FallbackBaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		},
		EngineRetries:         cfg.Engine.Retries,
		EngineFragmentRetries: cfg.Engine.FragmentRetries,
		CheckCertificates:     cfg.Engine.CheckCertificates,
		APIBaseURL:            b.Runtime.APIBaseURL,
		TempDir:               b.TempDir,
	})

	runner := &Runner{
		Pipeline: pipeline,
		Sink:     b.Runtime.Sink,
		Proxy:    provider,
		Limiter: RateLimiter{
			Base:      cfg.RateLimit.Base,
			PerItem:   cfg.RateLimit.PerItem,
			Max:       cfg.RateLimit.Max,
			JitterMin: cfg.RateLimit.JitterMin,
			JitterMax: cfg.RateLimit.JitterMax,
		},
		Metrics: metrics,
		Logger:  log,
	}
	counters := runner.Run(ctx, targets, in.Request())

	if b.Summary != nil {
		NewPrinter(b.Summary).Summary(counters)
	}
	if cfg.Metrics.File != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.File); err != nil {
			log.Warn("writing metrics file failed", logger.String("path", cfg.Metrics.File), logger.Error(err))
		}
	}
	log.Info("run finished", logger.Duration("elapsed", time.Since(start)))
	return counters, nil
}

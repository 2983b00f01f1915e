package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/lvcoi/igfetch/internal/actor"
	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/logger"
	"github.com/lvcoi/igfetch/internal/proxy"
)

// Processor runs the per-URL pipeline.
type Processor interface {
	Process(ctx context.Context, target downloader.Target, req downloader.Request) downloader.URLResult
}

// URLOutcome summarizes one input URL for the end-of-run report.
type URLOutcome struct {
	URL       string
	Records   int
	Succeeded int
	Err       string
}

// Counters are created per Run.
type Counters struct {
	// Processed counts input URLs, Succeeded counts records without an error.
	Processed int
	Succeeded int
	Failed    int
	Cancelled bool
	URLs      []URLOutcome
}

// RateLimiter spaces consecutive URLs: min(Base+PerItem*total, Max) * U(JitterMin, JitterMax).
type RateLimiter struct {
	Base      time.Duration
	PerItem   time.Duration
	Max       time.Duration
	JitterMin float64
	JitterMax float64
	// Rand returns a value in [0,1).
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay is the pause before the next URL of a batch of total URLs.
func (l RateLimiter) Delay(total int) time.Duration {
	base := l.Base + time.Duration(total)*l.PerItem
	if l.Max > 0 && base > l.Max {
		base = l.Max
	}
	r := l.Rand
	if r == nil {
		r = rand.Float64 //nolint:gosec
	}
	factor := l.JitterMin + (l.JitterMax-l.JitterMin)*r()
	return time.Duration(float64(base) * factor)
}

// Wait sleeps for Delay(total) or until ctx is done.
func (l RateLimiter) Wait(ctx context.Context, total int) (time.Duration, error) {
	d := l.Delay(total)
	sleep := l.Sleep
	if sleep == nil {
		sleep = downloader.SleepContext
	}
	return d, sleep(ctx, d)
}

// Runner processes a batch strictly in input order.
type Runner struct {
	Pipeline Processor
	Sink     actor.Sink
	// Proxy is asked for a fresh endpoint before every URL; nil keeps Request.Proxy.
	Proxy   proxy.Provider
	Limiter RateLimiter
	Metrics *Metrics
	Logger  logger.Logger
	Now     func() time.Time
}

// Run processes targets one by one. Failures are recorded, never returned;
// cancellation stops the batch after the current URL.
func (r *Runner) Run(ctx context.Context, targets []downloader.Target, req downloader.Request) Counters {
	log := r.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	metrics := r.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	var counters Counters
	for i, target := range targets {
		if ctx.Err() != nil {
			counters.Cancelled = true
			break
		}
		req.Proxy = r.nextProxy(ctx, req.Proxy, metrics, log)

		result := r.Pipeline.Process(ctx, target, req)
		if ctx.Err() != nil {
			log.Warn("run cancelled, dropping unfinished result", logger.String("url", target.URL()))
			counters.Cancelled = true
			break
		}

		outcome := URLOutcome{URL: target.URL()}
		if result.Err != nil {
			outcome.Err = result.Err.Error()
			log.Error("failed to process url", logger.String("url", target.URL()), logger.Error(result.Err))
		}
		for _, record := range result.Records(req.Quality, now()) {
			if err := r.Sink.Push(ctx, record); err != nil {
				metrics.PushFailures.Inc()
				log.Error("dataset push failed", logger.String("url", record.SourceURL()), logger.Error(err))
			}
			metrics.recordProduced(record.Failed())
			outcome.Records++
			if record.Failed() {
				counters.Failed++
				continue
			}
			outcome.Succeeded++
			counters.Succeeded++
		}
		log.Info("processed url", logger.String("url", target.URL()), logger.Int("records", outcome.Records))

		counters.Processed++
		counters.URLs = append(counters.URLs, outcome)
		metrics.URLsProcessed.Inc()

		if i < len(targets)-1 {
			d, err := r.Limiter.Wait(ctx, len(targets))
			log.Debug("rate limiting", logger.Duration("delay", d))
			if err != nil {
				counters.Cancelled = true
				break
			}
		}
	}

	log.Info("processing complete",
		logger.Int("processed", counters.Processed),
		logger.Int("succeeded", counters.Succeeded),
		logger.Int("failed", counters.Failed),
	)
	return counters
}

func (r *Runner) nextProxy(ctx context.Context, current string, metrics *Metrics, log logger.Logger) string {
	if r.Proxy == nil {
		return current
	}
	fresh, err := r.Proxy.NewURL(ctx)
	if err != nil || fresh == "" {
		metrics.ProxyFailures.Inc()
		log.Warn("unable to obtain fresh proxy url, keeping previous", logger.Error(err))
		return current
	}
	return fresh
}

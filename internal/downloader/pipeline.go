package downloader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lvcoi/igfetch/internal/engine"
	"github.com/lvcoi/igfetch/internal/logger"
)

// Download modes.
const (
	ModeVideos   = "videos"
	ModeMetadata = "metadata_only"
)

// Extraction tiers, as reported to observers.
const (
	TierPrimary  = "primary"
	TierFallback = "fallback"
)

// Request holds the per-batch settings applied to every URL.
type Request struct {
	Mode     string
	Quality  string
	MaxItems int
	Proxy    string
	// Cookies is the raw cookie material from input, JSON or Netscape text.
	Cookies string
}

// Downloads reports whether media files should be fetched.
func (r Request) Downloads() bool {
	return r.Mode != ModeMetadata
}

// BlobStore receives downloaded media.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// ID identifies the store on the platform; empty when records are not reachable by URL.
	ID() string
}

// Observer is notified of pipeline events.
type Observer interface {
	RetryScheduled(tier string)
	TierFinished(tier string, ok bool)
	MediaStored(bytes int64)
}

type nopObserver struct{}

func (nopObserver) RetryScheduled(string)     {}
func (nopObserver) TierFinished(string, bool) {}
func (nopObserver) MediaStored(int64)         {}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Engine       engine.Engine
	Store        BlobStore
	Prefetcher   Prefetcher
	Transcoder   Transcoder
	Classifier   Classifier
	Observer     Observer
	Logger       logger.Logger
	Capabilities Capabilities
	Primary      Backoff
	Fallback     Backoff
	// EngineRetries and EngineFragmentRetries feed the engine's own retry
	// loop on every call. Zero keeps the engine option defaults.
	EngineRetries         int
	EngineFragmentRetries int
	CheckCertificates     bool
	// APIBaseURL prefixes retrieval URLs, e.g. https://api.apify.com.
	APIBaseURL string
	// TempDir is the parent of scratch directories; empty uses the system default.
	TempDir string
	Now     func() time.Time
}

// Pipeline processes one URL at a time: prefetch, extract with two tiers,
// fan out container results and optionally download each item.
type Pipeline struct {
	cfg PipelineConfig
	log logger.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Classifier == nil {
		cfg.Classifier = defaultClassifier
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if !cfg.Capabilities.Stealth {
		cfg.Prefetcher = nil
	}
	if !cfg.Capabilities.Transcoder {
		cfg.Transcoder = nil
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}
}

// ItemResult is the outcome for one media item.
type ItemResult struct {
	VideoID  string
	URL      string
	Metadata *ItemMetadata
	Err      error
}

// URLResult is the outcome for one input URL: either items or a URL-level error.
type URLResult struct {
	Target Target
	Items  []ItemResult
	Err    error
}

// Records collapses the result into dataset rows.
func (r URLResult) Records(quality string, now time.Time) []Record {
	if r.Err != nil {
		return []Record{NewURLFailure(r.Target.URL(), quality, r.Err, now)}
	}
	records := make([]Record, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Err != nil {
			records = append(records, NewItemFailure(item.VideoID, item.URL, quality, item.Err, now))
			continue
		}
		records = append(records, *item.Metadata)
	}
	return records
}

// Process runs the whole per-URL flow. Failures are returned inside the result.
func (p *Pipeline) Process(ctx context.Context, target Target, req Request) URLResult {
	url := target.URL()
	log := p.log.With(logger.String("url", url))
	log.Info("processing")

	var hints Hints
	if p.cfg.Prefetcher != nil {
		h, err := p.cfg.Prefetcher.Prefetch(ctx, url, req.Proxy)
		if err != nil {
			log.Warn("stealth prefetch failed", logger.Error(err))
		} else {
			hints = h
			log.Debug("stealth prefetch succeeded", logger.String("title", h.Title))
		}
	}

	cookies := p.prepareCookies(req.Cookies, log)
	authDir, err := os.MkdirTemp(p.cfg.TempDir, "igfetch-auth-")
	if err != nil {
		return URLResult{Target: target, Err: wrapCategory(CategoryFilesystem, fmt.Errorf("creating auth directory: %w", err))}
	}
	defer os.RemoveAll(authDir)

	base := p.baseOptions(url, req.Proxy).WithPlaylistEnd(req.MaxItems)
	primary := p.withCookies(base, authDir, cookies, log)

	info, err := p.extractTier(ctx, TierPrimary, p.cfg.Primary, url, primary, log)
	if err != nil && ctx.Err() == nil {
		log.Warn("primary extraction failed, trying alternate authentication", logger.Error(err))
		// Fresh headers and a re-written jar; the primary value is left as it was.
		fallback := p.withCookies(p.baseOptions(url, req.Proxy).WithPlaylistEnd(req.MaxItems), authDir, cookies, log)
		info, err = p.extractTier(ctx, TierFallback, p.cfg.Fallback, url, fallback, log)
	}
	if err != nil {
		log.Error("all extraction attempts failed", logger.Error(err))
		return URLResult{Target: target, Err: p.categorize(err)}
	}

	entries := []*engine.Info{info}
	if info.IsContainer() {
		entries = entries[:0]
		skipped := 0
		for _, entry := range info.Entries {
			if entry == nil {
				skipped++
				continue
			}
			entries = append(entries, entry)
		}
		log.Info("container result", logger.Int("items", len(entries)), logger.Int("skipped", skipped))
	}

	result := URLResult{Target: target, Items: make([]ItemResult, 0, len(entries))}
	for _, entry := range entries {
		result.Items = append(result.Items, p.processItem(ctx, entry, req, cookies, hints, log))
	}
	return result
}

func (p *Pipeline) processItem(ctx context.Context, info *engine.Info, req Request, cookies string, hints Hints, log logger.Logger) ItemResult {
	meta := buildItemMetadata(info, req.Quality, hints, p.cfg.Now())
	item := ItemResult{VideoID: info.ID, URL: info.PageURL(), Metadata: &meta}
	if !req.Downloads() {
		return item
	}

	art, err := p.download(ctx, info, req, cookies, meta, log)
	if err != nil {
		log.Error("item download failed", logger.String("video_id", info.ID), logger.Error(err))
		item.Metadata = nil
		item.Err = err
		return item
	}
	meta.FileSize = &art.Size
	meta.FileExtension = &art.Extension
	meta.FilePath = &art.Key
	meta.DownloadedFormat = &art.Format
	meta.DownloadURL = optString(art.DownloadURL)
	item.Metadata = &meta
	return item
}

func (p *Pipeline) extractTier(ctx context.Context, tier string, backoff Backoff, url string, opts engine.Options, log logger.Logger) (*engine.Info, error) {
	info, err := Retry(ctx, backoff, p.cfg.Classifier,
		func(ctx context.Context) (*engine.Info, error) {
			info, err := p.cfg.Engine.Extract(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			if info == nil {
				return nil, fmt.Errorf("%w for %s", ErrNoInfo, url)
			}
			return info, nil
		},
		func(ev RetryEvent) {
			p.cfg.Observer.RetryScheduled(tier)
			log.Warn("extraction attempt failed, retrying",
				logger.String("tier", tier),
				logger.Int("attempt", ev.Attempt),
				logger.Duration("delay", ev.Delay),
				logger.Error(ev.Err),
			)
		},
	)
	p.cfg.Observer.TierFinished(tier, err == nil)
	return info, err
}

func (p *Pipeline) categorize(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapCategory(CategoryCancelled, err)
	}
	return wrapCategory(p.cfg.Classifier.Classify(err).Category, err)
}

// baseOptions returns a fresh option value with stealth headers and the proxy.
func (p *Pipeline) baseOptions(url, proxy string) engine.Options {
	opts := engine.NewOptions().
		WithHeaders(StealthHeaders(url)).
		WithProxy(proxy).
		WithFormatSort(FormatSort(p.cfg.Capabilities.Transcoder)).
		WithCertificateCheck(p.cfg.CheckCertificates)
	if p.cfg.EngineRetries > 0 || p.cfg.EngineFragmentRetries > 0 {
		opts = opts.WithRetries(
			cmp.Or(p.cfg.EngineRetries, opts.Retries()),
			cmp.Or(p.cfg.EngineFragmentRetries, opts.FragmentRetries()),
		)
	}
	if p.cfg.Capabilities.Transcoder {
		opts = opts.WithMergeOutputFormat(mergeContainer)
	}
	return opts
}

// prepareCookies converts raw cookie input once per URL.
func (p *Pipeline) prepareCookies(raw string, log logger.Logger) string {
	if raw == "" {
		return ""
	}
	netscape, err := ConvertCookies(raw)
	if err != nil {
		log.Warn("cookie conversion failed", logger.Error(err))
	}
	return netscape
}

// withCookies materializes the jar into dir and points opts at it. A write
// failure leaves opts without authentication.
func (p *Pipeline) withCookies(opts engine.Options, dir, netscape string, log logger.Logger) engine.Options {
	if netscape == "" {
		return opts
	}
	path, err := writeCookieJar(dir, netscape)
	if err != nil {
		log.Warn("could not write cookie jar, continuing without authentication", logger.Error(err))
		return opts
	}
	return opts.WithCookieFile(path)
}

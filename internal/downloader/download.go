package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvcoi/igfetch/internal/engine"
	"github.com/lvcoi/igfetch/internal/logger"
)

const defaultAPIBaseURL = "https://api.apify.com"

type artifact struct {
	Size        int64
	Extension   string
	Key         string
	Format      string
	DownloadURL string
}

// download fetches one item into a scratch directory, stores it and
// returns where it went. The scratch directory never outlives the call.
func (p *Pipeline) download(ctx context.Context, info *engine.Info, req Request, cookies string, meta ItemMetadata, log logger.Logger) (artifact, error) {
	pageURL := info.PageURL()
	if pageURL == "" {
		return artifact{}, wrapCategory(CategoryExtraction, errors.New("media URL missing from info"))
	}
	if p.cfg.Store == nil {
		return artifact{}, wrapCategory(CategoryStorage, errors.New("no blob store configured"))
	}

	dir, err := os.MkdirTemp(p.cfg.TempDir, "igfetch-dl-")
	if err != nil {
		return artifact{}, wrapCategory(CategoryFilesystem, fmt.Errorf("creating download directory: %w", err))
	}
	defer os.RemoveAll(dir)
	if err := clearDirectory(dir); err != nil {
		return artifact{}, wrapCategory(CategoryFilesystem, fmt.Errorf("clearing download directory: %w", err))
	}

	format := FormatCandidates(req.Quality, p.cfg.Capabilities.Transcoder)[0]
	opts := p.withCookies(p.baseOptions(pageURL, req.Proxy), dir, cookies, log).
		WithOutput(filepath.Join(dir, "%(id)s.%(ext)s")).
		WithWorkDir(dir).
		WithFormat(format)
	audio := IsAudioQuality(req.Quality)
	if audio && p.cfg.Capabilities.Transcoder {
		opts = opts.WithAudioExtraction(audioCodec, audioBitrateLabel).WithMergeOutputFormat("")
	}

	log.Info("downloading", logger.String("video_id", info.ID), logger.String("format", format))
	if err := p.cfg.Engine.Download(ctx, pageURL, opts); err != nil {
		if ctx.Err() != nil {
			return artifact{}, p.categorize(err)
		}
		// The best selector ignores the requested tier.
		log.Warn("download failed, retrying with best format",
			logger.String("format", format), logger.Error(err))
		if err := clearDirectory(dir, cookieJarFileName); err != nil {
			return artifact{}, wrapCategory(CategoryFilesystem, fmt.Errorf("clearing download directory: %w", err))
		}
		format = bestFormat
		if err := p.cfg.Engine.Download(ctx, pageURL, opts.WithFormat(format)); err != nil {
			return artifact{}, p.categorize(fmt.Errorf("download with format %q: %w", format, err))
		}
	}

	path, err := newestMedia(dir)
	if err != nil {
		return artifact{}, err
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	if audio && p.cfg.Transcoder != nil && ext != audioCodec {
		converted, err := p.cfg.Transcoder.ToMP3(ctx, path)
		if err != nil {
			log.Warn("audio normalization failed, keeping original", logger.Error(err))
		} else {
			path, ext = converted, audioCodec
		}
	}
	if err := tagAudio(path, meta); err != nil {
		log.Warn("audio tagging failed", logger.String("path", filepath.Base(path)), logger.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return artifact{}, wrapCategory(CategoryFilesystem, fmt.Errorf("reading downloaded media: %w", err))
	}
	key := StorageKey(info.ID, ext)
	if err := p.cfg.Store.Put(ctx, key, data, ContentType(ext)); err != nil {
		return artifact{}, wrapCategory(CategoryStorage, fmt.Errorf("storing %s: %w", key, err))
	}
	p.cfg.Observer.MediaStored(int64(len(data)))

	art := artifact{
		Size:      int64(len(data)),
		Extension: ext,
		Key:       key,
		Format:    format,
	}
	if id := p.cfg.Store.ID(); id != "" {
		art.DownloadURL = RecordURL(p.cfg.APIBaseURL, id, key)
		log.Info("stored", logger.String("key", key), logger.Int64("bytes", art.Size), logger.String("download_url", art.DownloadURL))
	} else {
		log.Info("stored", logger.String("key", key), logger.Int64("bytes", art.Size))
	}
	return art, nil
}

// RecordURL is the direct retrieval URL of a key-value store record.
func RecordURL(apiBaseURL, storeID, key string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	return fmt.Sprintf("%s/v2/key-value-stores/%s/records/%s?raw=1",
		base, url.PathEscape(storeID), url.PathEscape(key))
}

package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/igfetch/internal/engine"
)

type extractCall struct {
	url  string
	opts engine.Options
}

// fakeEngine scripts Extract results and writes a file for every Download.
type fakeEngine struct {
	mu            sync.Mutex
	extractErrs   []error
	info          *engine.Info
	extractCalls  []extractCall
	downloadCalls []engine.Options
	downloadErrs  []error
	cookieData    []string
	writeExt      string
	writeNothing  bool
}

func (f *fakeEngine) Extract(_ context.Context, url string, opts engine.Options) (*engine.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls = append(f.extractCalls, extractCall{url: url, opts: opts})
	if opts.CookieFile() != "" {
		data, _ := os.ReadFile(opts.CookieFile())
		f.cookieData = append(f.cookieData, string(data))
	}
	if len(f.extractErrs) > 0 {
		err := f.extractErrs[0]
		f.extractErrs = f.extractErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.info, nil
}

func (f *fakeEngine) Download(_ context.Context, url string, opts engine.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls = append(f.downloadCalls, opts)
	if len(f.downloadErrs) > 0 {
		err := f.downloadErrs[0]
		f.downloadErrs = f.downloadErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.writeNothing {
		return nil
	}
	ext := f.writeExt
	if ext == "" {
		ext = "mp4"
	}
	id := url[strings.LastIndex(strings.TrimSuffix(url, "/"), "/")+1:]
	id = strings.TrimSuffix(id, "/")
	name := strings.NewReplacer("%(id)s", id, "%(ext)s", ext).Replace(opts.Output())
	return os.WriteFile(name, []byte("media-bytes-"+id), 0o644)
}

type memStore struct {
	id      string
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemStore(id string) *memStore {
	return &memStore{id: id, objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if s.err != nil {
		return s.err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStore) ID() string { return s.id }

type countingObserver struct {
	retries  map[string]int
	finished map[string][]bool
	stored   int64
}

func newCountingObserver() *countingObserver {
	return &countingObserver{retries: map[string]int{}, finished: map[string][]bool{}}
}

func (o *countingObserver) RetryScheduled(tier string) { o.retries[tier]++ }
func (o *countingObserver) TierFinished(tier string, ok bool) {
	o.finished[tier] = append(o.finished[tier], ok)
}
func (o *countingObserver) MediaStored(n int64) { o.stored += n }

type stubPrefetcher struct {
	hints Hints
	err   error
	calls int
}

func (s *stubPrefetcher) Prefetch(context.Context, string, string) (Hints, error) {
	s.calls++
	return s.hints, s.err
}

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestPipeline(t *testing.T, eng engine.Engine, store BlobStore, obs Observer, caps Capabilities) *Pipeline {
	t.Helper()
	return NewPipeline(PipelineConfig{
		Engine:       eng,
		Store:        store,
		Observer:     obs,
		Capabilities: caps,
		Primary:      Backoff{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep},
		Fallback:     Backoff{Attempts: 2, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep},
		APIBaseURL:   "https://api.apify.com",
		TempDir:      t.TempDir(),
		Now:          func() time.Time { return fixedNow },
	})
}

func mustTarget(t *testing.T, raw string) Target {
	t.Helper()
	target, ok := ParseTarget(raw)
	require.True(t, ok, raw)
	return target
}

func int64p(v int64) *int64 { return &v }

func TestProcessMetadataOnly(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{
		ID: "C1", Title: "", Uploader: "someone", UploadDate: "20240102",
		LikeCount: int64p(7), WebpageURL: "https://www.instagram.com/reel/C1/",
	}}
	pre := &stubPrefetcher{hints: Hints{Title: "Reel by someone", Image: "https://cdn/t.jpg"}}
	p := NewPipeline(PipelineConfig{
		Engine:       eng,
		Prefetcher:   pre,
		Capabilities: Capabilities{Stealth: true},
		Primary:      Backoff{Attempts: 3, Sleep: noSleep},
		Now:          func() time.Time { return fixedNow },
		TempDir:      t.TempDir(),
	})

	res := p.Process(context.Background(), mustTarget(t, "instagram.com/reel/C1/"), Request{Mode: ModeMetadata, Quality: "best", MaxItems: 10, Proxy: "http://proxy:1"})
	require.NoError(t, res.Err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, pre.calls)

	meta := res.Items[0].Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "C1", *meta.VideoID)
	assert.Equal(t, "Reel by someone", *meta.Title)
	assert.Equal(t, "https://cdn/t.jpg", *meta.Thumbnail)
	assert.Equal(t, "someone", *meta.Author)
	assert.Nil(t, meta.FileSize)
	assert.Nil(t, meta.DownloadURL)
	assert.Equal(t, "2025-03-04T05:06:07Z", meta.CollectedAt)

	require.Len(t, eng.extractCalls, 1)
	opts := eng.extractCalls[0].opts
	assert.Equal(t, "http://proxy:1", opts.Proxy())
	assert.Equal(t, 10, opts.PlaylistEnd())
	assert.Equal(t, "https://www.instagram.com/", opts.Header("Referer"))
	assert.Empty(t, eng.downloadCalls)

	data, err := json.Marshal(res.Records("best", fixedNow)[0])
	require.NoError(t, err)
	var row map[string]any
	require.NoError(t, json.Unmarshal(data, &row))
	assert.Contains(t, row, "file_size")
	assert.Nil(t, row["file_size"])
	assert.NotContains(t, row, "error")
}

func TestProcessPrefetchFailureIsIgnored(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{ID: "X", WebpageURL: "https://www.instagram.com/p/X/"}}
	pre := &stubPrefetcher{err: errors.New("blocked")}
	p := NewPipeline(PipelineConfig{
		Engine: eng, Prefetcher: pre, Capabilities: Capabilities{Stealth: true},
		Primary: Backoff{Attempts: 1, Sleep: noSleep}, TempDir: t.TempDir(),
	})
	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/X/"), Request{Mode: ModeMetadata})
	require.NoError(t, res.Err)
	assert.Len(t, res.Items, 1)
}

func TestProcessStealthDisabledSkipsPrefetch(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{ID: "X"}}
	pre := &stubPrefetcher{}
	p := NewPipeline(PipelineConfig{Engine: eng, Prefetcher: pre, Primary: Backoff{Attempts: 1}, TempDir: t.TempDir()})
	p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/X/"), Request{Mode: ModeMetadata})
	assert.Zero(t, pre.calls)
}

func TestProcessFallsBackToAlternateAuth(t *testing.T) {
	rateLimited := errors.New("HTTP Error 429: Too Many Requests")
	eng := &fakeEngine{
		extractErrs: []error{rateLimited, rateLimited, rateLimited, rateLimited},
		info:        &engine.Info{ID: "A", WebpageURL: "https://www.instagram.com/p/A/"},
	}
	obs := newCountingObserver()
	p := newTestPipeline(t, eng, nil, obs, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/A/"),
		Request{Mode: ModeMetadata, Cookies: `[{"name":"sessionid","value":"v"}]`})
	require.NoError(t, res.Err)
	require.Len(t, res.Items, 1)

	assert.Len(t, eng.extractCalls, 5)
	assert.Equal(t, 2, obs.retries[TierPrimary])
	assert.Equal(t, 1, obs.retries[TierFallback])
	assert.Equal(t, []bool{false}, obs.finished[TierPrimary])
	assert.Equal(t, []bool{true}, obs.finished[TierFallback])

	for _, call := range eng.extractCalls {
		assert.NotEmpty(t, call.opts.CookieFile())
	}
	for _, data := range eng.cookieData {
		assert.Contains(t, data, "\tsessionid\tv")
	}
}

func TestProcessBothTiersFail(t *testing.T) {
	private := errors.New("ERROR: This account is private")
	eng := &fakeEngine{extractErrs: []error{private, private, private, private, private}}
	p := newTestPipeline(t, eng, nil, nil, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/B/"), Request{Mode: ModeVideos, Quality: "720p"})
	require.Error(t, res.Err)
	assert.Empty(t, res.Items)
	assert.Len(t, eng.extractCalls, 5)
	assert.Equal(t, CategoryRestricted, CategoryOf(res.Err))

	records := res.Records("720p", fixedNow)
	require.Len(t, records, 1)
	row, ok := records[0].(URLFailure)
	require.True(t, ok)
	assert.True(t, row.Failed())
	assert.Equal(t, "https://www.instagram.com/p/B/", row.URL)
	assert.Equal(t, "ERROR: This account is private", row.Error)
	assert.Equal(t, "720p", row.QualityRequested)
}

func TestProcessNonRetryableSkipsBackoff(t *testing.T) {
	unsupported := errors.New("Unsupported URL")
	eng := &fakeEngine{extractErrs: []error{unsupported, unsupported}}
	obs := newCountingObserver()
	p := newTestPipeline(t, eng, nil, obs, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/C/"), Request{Mode: ModeMetadata})
	require.Error(t, res.Err)
	assert.Len(t, eng.extractCalls, 2)
	assert.Zero(t, obs.retries[TierPrimary])
}

func TestProcessNilInfoIsFailure(t *testing.T) {
	eng := &fakeEngine{}
	p := newTestPipeline(t, eng, nil, nil, Capabilities{})
	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/p/D/"), Request{Mode: ModeMetadata})
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrNoInfo)
	assert.Contains(t, res.Err.Error(), "https://www.instagram.com/p/D/")
}

func TestProcessContainerFanOut(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{
		ID: "story", Type: "playlist",
		Entries: []*engine.Info{
			{ID: "s1", WebpageURL: "https://www.instagram.com/stories/u/s1/"},
			nil,
			{ID: "s2", WebpageURL: "https://www.instagram.com/stories/u/s2/"},
		},
	}}
	store := newMemStore("kvs1")
	obs := newCountingObserver()
	p := newTestPipeline(t, eng, store, obs, Capabilities{Transcoder: true})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/stories/u/"), Request{Mode: ModeVideos, Quality: "1080p"})
	require.NoError(t, res.Err)
	require.Len(t, res.Items, 2)

	for i, id := range []string{"s1", "s2"} {
		meta := res.Items[i].Metadata
		require.NotNil(t, meta, id)
		assert.Equal(t, id+".mp4", *meta.FilePath)
		assert.Equal(t, "mp4", *meta.FileExtension)
		assert.Equal(t, int64(len("media-bytes-"+id)), *meta.FileSize)
		assert.Equal(t, "bestvideo*[height<=1080][fps<=60]+bestaudio/best[height<=1080]", *meta.DownloadedFormat)
		assert.Equal(t, "https://api.apify.com/v2/key-value-stores/kvs1/records/"+id+".mp4?raw=1", *meta.DownloadURL)
		assert.Equal(t, "video/mp4", store.types[id+".mp4"])
	}
	assert.Equal(t, int64(len("media-bytes-s1")+len("media-bytes-s2")), obs.stored)

	require.Len(t, eng.downloadCalls, 2)
	assert.Equal(t, "mp4", eng.downloadCalls[0].MergeFormat())
	assert.Equal(t, 0, eng.downloadCalls[0].PlaylistEnd())
}

func TestProcessDownloadFormatFallback(t *testing.T) {
	eng := &fakeEngine{
		info:         &engine.Info{ID: "F", WebpageURL: "https://www.instagram.com/reel/F/"},
		downloadErrs: []error{errors.New("Requested format is not available")},
	}
	store := newMemStore("")
	p := newTestPipeline(t, eng, store, nil, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/F/"), Request{Mode: ModeVideos, Quality: "720p"})
	require.NoError(t, res.Err)
	meta := res.Items[0].Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "best", *meta.DownloadedFormat)
	assert.Nil(t, meta.DownloadURL)

	require.Len(t, eng.downloadCalls, 2)
	assert.Equal(t, "best[height<=720]", eng.downloadCalls[0].Format())
	assert.Equal(t, "best", eng.downloadCalls[1].Format())
}

func TestProcessDownloadFailsOnBothFormats(t *testing.T) {
	eng := &fakeEngine{
		info:         &engine.Info{ID: "G", WebpageURL: "https://www.instagram.com/reel/G/"},
		downloadErrs: []error{errors.New("boom"), errors.New("boom again")},
	}
	p := newTestPipeline(t, eng, newMemStore("s"), nil, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/G/"), Request{Mode: ModeVideos, Quality: "best"})
	require.NoError(t, res.Err)
	require.Len(t, res.Items, 1)
	require.Error(t, res.Items[0].Err)
	assert.Nil(t, res.Items[0].Metadata)

	records := res.Records("best", fixedNow)
	row, ok := records[0].(ItemFailure)
	require.True(t, ok)
	assert.Equal(t, "G", *row.VideoID)
	assert.Nil(t, row.DownloadedFormat)

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"downloaded_format":null`)
	assert.Contains(t, string(data), `"download_url":null`)
}

func TestProcessMissingArtifactIsNotRetried(t *testing.T) {
	eng := &fakeEngine{
		info:         &engine.Info{ID: "H", WebpageURL: "https://www.instagram.com/reel/H/"},
		writeNothing: true,
	}
	p := newTestPipeline(t, eng, newMemStore("s"), nil, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/H/"), Request{Mode: ModeVideos})
	require.Len(t, res.Items, 1)
	assert.ErrorIs(t, res.Items[0].Err, ErrNoMediaProduced)
	assert.Len(t, eng.downloadCalls, 1)
}

func TestProcessStoreFailure(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{ID: "S", WebpageURL: "https://www.instagram.com/reel/S/"}}
	store := newMemStore("s")
	store.err = errors.New("quota exceeded")
	p := newTestPipeline(t, eng, store, nil, Capabilities{})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/S/"), Request{Mode: ModeVideos})
	require.Len(t, res.Items, 1)
	assert.Equal(t, CategoryStorage, CategoryOf(res.Items[0].Err))
}

type fakeTranscoder struct{ calls int }

func (f *fakeTranscoder) ToMP3(_ context.Context, in string) (string, error) {
	f.calls++
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".mp3"
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	return out, os.WriteFile(out, data, 0o644)
}

func TestProcessAudioOnlyWithTranscoder(t *testing.T) {
	eng := &fakeEngine{
		info:     &engine.Info{ID: "AU", WebpageURL: "https://www.instagram.com/reel/AU/"},
		writeExt: "m4a",
	}
	store := newMemStore("kv")
	tr := &fakeTranscoder{}
	p := NewPipeline(PipelineConfig{
		Engine: eng, Store: store, Transcoder: tr,
		Capabilities: Capabilities{Transcoder: true},
		Primary:      Backoff{Attempts: 1}, TempDir: t.TempDir(),
	})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/AU/"), Request{Mode: ModeVideos, Quality: "audio_only"})
	require.Len(t, res.Items, 1)
	require.NoError(t, res.Items[0].Err)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, "AU.mp3", *res.Items[0].Metadata.FilePath)
	assert.Equal(t, "audio/mpeg", store.types["AU.mp3"])

	opts := eng.downloadCalls[0]
	assert.True(t, opts.ExtractAudio())
	assert.Equal(t, "mp3", opts.AudioFormat())
	assert.Equal(t, "192K", opts.AudioQuality())
	assert.Equal(t, "bestaudio/best", opts.Format())
	assert.Empty(t, opts.MergeFormat())
}

func TestProcessScratchDirectoriesAreRemoved(t *testing.T) {
	tmp := t.TempDir()
	eng := &fakeEngine{info: &engine.Info{ID: "R", WebpageURL: "https://www.instagram.com/reel/R/"}}
	p := NewPipeline(PipelineConfig{Engine: eng, Store: newMemStore(""), Primary: Backoff{Attempts: 1}, TempDir: tmp})

	p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/R/"), Request{Mode: ModeVideos, Cookies: `{"name":"a","value":"b"}`})

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessPassesEngineSettings(t *testing.T) {
	eng := &fakeEngine{info: &engine.Info{ID: "E", WebpageURL: "https://www.instagram.com/reel/E/"}}
	p := NewPipeline(PipelineConfig{
		Engine:                eng,
		Store:                 newMemStore(""),
		Primary:               Backoff{Attempts: 1},
		EngineRetries:         7,
		EngineFragmentRetries: 0,
		CheckCertificates:     true,
		TempDir:               t.TempDir(),
	})

	res := p.Process(context.Background(), mustTarget(t, "https://www.instagram.com/reel/E/"), Request{Mode: ModeVideos})
	require.NoError(t, res.Err)

	require.Len(t, eng.extractCalls, 1)
	extract := eng.extractCalls[0].opts
	assert.Equal(t, 7, extract.Retries())
	assert.Equal(t, 5, extract.FragmentRetries())
	assert.True(t, extract.CertificateCheck())
	assert.NotEmpty(t, extract.Header("User-Agent"))
	assert.Equal(t, "https://www.instagram.com/", extract.Header("Referer"))
	assert.Equal(t, len(StealthHeaders("https://www.instagram.com/reel/E/")), len(extract.HeaderLines()))

	require.Len(t, eng.downloadCalls, 1)
	download := eng.downloadCalls[0]
	assert.NotEmpty(t, download.WorkDir())
	assert.Equal(t, download.WorkDir(), filepath.Dir(download.Output()))
	assert.Equal(t, 7, download.Retries())
}

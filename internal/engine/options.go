package engine

import (
	"maps"
	"sort"
)

// Options is an immutable set of engine settings. Every With method returns
// a modified copy and leaves the receiver untouched, so a base value can be
// shared between extraction tiers and attempts.
type Options struct {
	format          string
	output          string
	proxy           string
	cookieFile      string
	headers         map[string]string
	formatSort      string
	mergeFormat     string
	playlistEnd     int
	extractAudio    bool
	audioFormat     string
	audioQuality    string
	retries         int
	fragmentRetries int
	checkCerts      bool
	workDir         string
}

// NewOptions returns the base settings every call starts from.
func NewOptions() Options {
	return Options{
		retries:         3,
		fragmentRetries: 5,
		output:          "%(id)s.%(ext)s",
	}
}

func (o Options) WithFormat(selector string) Options {
	o.format = selector
	return o
}

func (o Options) WithOutput(template string) Options {
	o.output = template
	return o
}

func (o Options) WithProxy(endpoint string) Options {
	o.proxy = endpoint
	return o
}

func (o Options) WithCookieFile(path string) Options {
	o.cookieFile = path
	return o
}

// WithHeaders merges headers over the existing set.
func (o Options) WithHeaders(headers map[string]string) Options {
	merged := make(map[string]string, len(o.headers)+len(headers))
	maps.Copy(merged, o.headers)
	maps.Copy(merged, headers)
	o.headers = merged
	return o
}

func (o Options) WithFormatSort(order string) Options {
	o.formatSort = order
	return o
}

func (o Options) WithMergeOutputFormat(container string) Options {
	o.mergeFormat = container
	return o
}

// WithPlaylistEnd caps container results to the first n entries. n <= 0 removes the cap.
func (o Options) WithPlaylistEnd(n int) Options {
	if n < 0 {
		n = 0
	}
	o.playlistEnd = n
	return o
}

// WithAudioExtraction asks the engine to post-process the download into codec at quality.
func (o Options) WithAudioExtraction(codec, quality string) Options {
	o.extractAudio = true
	o.audioFormat = codec
	o.audioQuality = quality
	return o
}

func (o Options) WithRetries(retries, fragmentRetries int) Options {
	o.retries = retries
	o.fragmentRetries = fragmentRetries
	return o
}

// WithCertificateCheck toggles TLS verification. It is off by default.
func (o Options) WithCertificateCheck(enabled bool) Options {
	o.checkCerts = enabled
	return o
}

func (o Options) WithWorkDir(dir string) Options {
	o.workDir = dir
	return o
}

func (o Options) Format() string { return o.format }
func (o Options) Output() string { return o.output }
func (o Options) Proxy() string { return o.proxy }
func (o Options) CookieFile() string { return o.cookieFile }
func (o Options) FormatSort() string { return o.formatSort }
func (o Options) MergeFormat() string { return o.mergeFormat }
func (o Options) PlaylistEnd() int { return o.playlistEnd }
func (o Options) ExtractAudio() bool { return o.extractAudio }
func (o Options) AudioFormat() string { return o.audioFormat }
func (o Options) AudioQuality() string { return o.audioQuality }
func (o Options) Retries() int { return o.retries }
func (o Options) FragmentRetries() int { return o.fragmentRetries }
func (o Options) CertificateCheck() bool { return o.checkCerts }
func (o Options) WorkDir() string { return o.workDir }

// Header returns a single header value.
func (o Options) Header(name string) string {
	return o.headers[name]
}

// HeaderLines returns headers as sorted "Name:Value" pairs.
func (o Options) HeaderLines() []string {
	lines := make([]string, 0, len(o.headers))
	for k, v := range o.headers {
		lines = append(lines, k+":"+v)
	}
	sort.Strings(lines)
	return lines
}

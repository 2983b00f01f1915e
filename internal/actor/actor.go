// Package actor provides the runtime an igfetch batch runs in: where input
// comes from, where records and media go, and which proxies are available.
package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/proxy"
)

// InputSource yields the raw run input.
type InputSource interface {
	Input(ctx context.Context) (map[string]any, error)
}

// Sink appends records to the run's dataset.
type Sink interface {
	Push(ctx context.Context, records ...downloader.Record) error
}

// ProxySettings is the proxy part of the run input.
type ProxySettings struct {
	URLs     []string
	UseApify bool
	Groups   []string
	Country  string
}

// Runtime bundles the capabilities a batch needs.
type Runtime struct {
	Name  string
	Input InputSource
	Sink  Sink
	Store downloader.BlobStore
	// APIBaseURL prefixes record retrieval URLs.
	APIBaseURL string

	rotating proxy.RotatingConfig
	closers  []func() error
}

// ErrApifyProxyUnavailable means Apify Proxy was requested without proxy credentials.
var ErrApifyProxyUnavailable = errors.New("apify proxy requested but no proxy password is configured")

// Proxy builds the provider the input asks for. It returns nil when the run
// uses no proxy. Explicit URLs win over Apify Proxy.
func (r *Runtime) Proxy(settings ProxySettings) (proxy.Provider, error) {
	if len(settings.URLs) > 0 {
		p, err := proxy.NewStatic(settings.URLs...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if !settings.UseApify {
		return nil, nil
	}
	cfg := r.rotating
	cfg.Groups = settings.Groups
	cfg.Country = settings.Country
	p, err := proxy.NewRotating(cfg)
	if errors.Is(err, proxy.ErrNoPassword) {
		return nil, ErrApifyProxyUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("apify proxy: %w", err)
	}
	return p, nil
}

// Close releases whatever the runtime opened.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

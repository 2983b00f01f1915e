// Package proxy hands out proxy endpoints, one per batch item.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gocolly/colly/v2"
	collyproxy "github.com/gocolly/colly/v2/proxy"
	"github.com/google/uuid"
)

// Provider returns a fresh proxy endpoint URL.
type Provider interface {
	NewURL(ctx context.Context) (string, error)
}

// ErrNoPassword is returned when a rotating provider has no credentials.
var ErrNoPassword = errors.New("proxy password not configured")

// Static rotates through a fixed list of proxy URLs.
type Static struct {
	next colly.ProxyFunc
	// pick is only used to drive the switcher.
	pick *http.Request
}

// NewStatic validates urls and returns a round-robin provider over them.
func NewStatic(urls ...string) (*Static, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	switcher, err := collyproxy.RoundRobinProxySwitcher(cleaned...)
	if err != nil {
		return nil, fmt.Errorf("building proxy rotation: %w", err)
	}
	pick, err := http.NewRequest(http.MethodGet, "https://www.instagram.com/", nil)
	if err != nil {
		return nil, err
	}
	return &Static{next: switcher, pick: pick}, nil
}

func (s *Static) NewURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := s.next(s.pick.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// RotatingConfig describes an Apify Proxy connection.
type RotatingConfig struct {
	Password string
	Hostname string
	Port     int
	Groups   []string
	Country  string
}

// Rotating builds Apify Proxy URLs with a new session id on every call, so
// each item leaves through a different IP.
type Rotating struct {
	cfg       RotatingConfig
	sessionID func() string
}

func NewRotating(cfg RotatingConfig) (*Rotating, error) {
	if cfg.Password == "" {
		return nil, ErrNoPassword
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "proxy.apify.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	return &Rotating{cfg: cfg, sessionID: newSessionID}, nil
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (r *Rotating) NewURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "http",
		User:   url.UserPassword(r.username(r.sessionID()), r.cfg.Password),
		Host:   r.cfg.Hostname + ":" + strconv.Itoa(r.cfg.Port),
	}
	return u.String(), nil
}

// username encodes groups, session and country as Apify Proxy expects.
func (r *Rotating) username(session string) string {
	var parts []string
	if len(r.cfg.Groups) > 0 {
		parts = append(parts, "groups-"+strings.Join(r.cfg.Groups, "+"))
	}
	parts = append(parts, "session-"+session)
	if r.cfg.Country != "" {
		parts = append(parts, "country-"+strings.ToUpper(r.cfg.Country))
	}
	return strings.Join(parts, ",")
}

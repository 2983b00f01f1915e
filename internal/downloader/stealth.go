package downloader

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// desktopUserAgents is rotated per request so consecutive calls do not share a fingerprint.
var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

func randomUserAgent() string {
	return desktopUserAgents[rand.Intn(len(desktopUserAgents))] //nolint:gosec
}

// StealthHeaders returns browser-like request headers with a random user agent.
// Platform URLs also get the platform referer.
func StealthHeaders(url string) map[string]string {
	headers := map[string]string{
		"User-Agent":                randomUserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"sec-ch-ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"Windows"`,
	}
	if isPlatformURL(url) {
		headers["Referer"] = platformOrigin + "/"
	}
	return headers
}

// Prefetcher loads a page before extraction and reports what it could read from it.
type Prefetcher interface {
	Prefetch(ctx context.Context, url, proxy string) (Hints, error)
}

// StealthFetcher requests the page the way a desktop browser would.
type StealthFetcher struct {
	timeout     time.Duration
	maxBodySize int
}

func NewStealthFetcher(timeout time.Duration) *StealthFetcher {
	return &StealthFetcher{timeout: timeout, maxBodySize: 4 << 20}
}

func (s *StealthFetcher) Prefetch(ctx context.Context, url, proxy string) (Hints, error) {
	headers := StealthHeaders(url)
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(headers["User-Agent"]),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(s.maxBodySize),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}
	if proxy != "" {
		if err := c.SetProxy(proxy); err != nil {
			return Hints{}, fmt.Errorf("stealth proxy: %w", err)
		}
	}

	var hints Hints
	var fetchErr error
	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		hints = parseHints(e.DOM)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return Hints{}, fmt.Errorf("stealth fetch: %w", err)
	}
	c.Wait()
	if fetchErr != nil {
		return Hints{}, fmt.Errorf("stealth fetch: %w", fetchErr)
	}
	return hints, nil
}

// parseHints reads Open Graph tags, falling back to the document title and description.
func parseHints(sel *goquery.Selection) Hints {
	meta := func(attr, name string) string {
		v, _ := sel.Find(fmt.Sprintf(`meta[%s=%q]`, attr, name)).First().Attr("content")
		return strings.TrimSpace(v)
	}
	return Hints{
		Title:       firstNonEmpty(meta("property", "og:title"), strings.TrimSpace(sel.Find("title").First().Text())),
		Description: firstNonEmpty(meta("property", "og:description"), meta("name", "description")),
		Image:       meta("property", "og:image"),
	}
}

package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/lvcoi/igfetch/internal/actor"
	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/logger"
)

const defaultMaxItems = 10

// Input is the decoded run input.
type Input struct {
	URLs     []string
	Mode     string
	Quality  string
	MaxItems int
	Cookies  string
	Proxy    actor.ProxySettings
}

// Request converts the input into the per-batch pipeline settings.
func (in Input) Request() downloader.Request {
	return downloader.Request{
		Mode:     in.Mode,
		Quality:  in.Quality,
		MaxItems: in.MaxItems,
		Cookies:  in.Cookies,
	}
}

type proxyInput struct {
	ProxyURLs         []string `mapstructure:"proxyUrls"`
	UseApifyProxy     bool     `mapstructure:"useApifyProxy"`
	ApifyProxyGroups  []string `mapstructure:"apifyProxyGroups"`
	ApifyProxyCountry string   `mapstructure:"apifyProxyCountry"`
}

// ParseInput decodes the raw input object. Unknown keys are ignored.
func ParseInput(raw map[string]any) (Input, error) {
	in := Input{
		URLs:     parseURLs(raw["urls"]),
		Mode:     stringOr(raw["downloadMode"], downloader.ModeVideos),
		Quality:  stringOr(raw["quality"], downloader.QualityBest),
		MaxItems: defaultMaxItems,
		// Without an explicit configuration the platform proxy is used when available.
		Proxy: actor.ProxySettings{UseApify: true},
	}

	if v, ok := raw["maxItems"]; ok && v != nil {
		n, err := parseInt(v)
		if err != nil {
			return Input{}, fmt.Errorf("maxItems: %w", err)
		}
		if n < 0 {
			return Input{}, fmt.Errorf("maxItems must not be negative, got %d", n)
		}
		in.MaxItems = n
	}

	cookies, err := cookieString(raw["cookies"])
	if err != nil {
		return Input{}, fmt.Errorf("cookies: %w", err)
	}
	in.Cookies = cookies

	if v, ok := raw["proxyConfiguration"]; ok && v != nil {
		var p proxyInput
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &p,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Input{}, err
		}
		if err := dec.Decode(v); err != nil {
			return Input{}, fmt.Errorf("proxyConfiguration: %w", err)
		}
		in.Proxy = actor.ProxySettings{
			URLs:     p.ProxyURLs,
			UseApify: p.UseApifyProxy,
			Groups:   p.ApifyProxyGroups,
			Country:  p.ApifyProxyCountry,
		}
	}
	return in, nil
}

// parseURLs accepts a list, a JSON array or string, a newline or comma separated list, or one URL.
func parseURLs(v any) []string {
	switch t := v.(type) {
	case []string:
		return nonEmpty(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return nonEmpty(out)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			switch p := parsed.(type) {
			case []any:
				return parseURLs(p)
			case string:
				return nonEmpty([]string{p})
			default:
				return []string{s}
			}
		}
		if lines := splitNonEmpty(s, "\n"); len(lines) > 1 {
			return lines
		}
		if parts := splitNonEmpty(s, ","); len(parts) > 1 {
			return parts
		}
		return []string{s}
	default:
		return nil
	}
}

func splitNonEmpty(s, sep string) []string {
	return nonEmpty(strings.Split(s, sep))
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func stringOr(v any, fallback string) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

func parseInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// cookieString keeps text as given and re-encodes structured cookies as JSON.
func cookieString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// ValidTargets normalizes and validates urls, logging every skipped entry.
func ValidTargets(urls []string, log logger.Logger) []downloader.Target {
	targets := make([]downloader.Target, 0, len(urls))
	for _, raw := range urls {
		target, ok := downloader.ParseTarget(raw)
		if !ok {
			log.Warn("skipping invalid or unsupported URL", logger.String("url", raw))
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

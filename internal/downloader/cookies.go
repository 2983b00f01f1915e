package downloader

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	netscapeHeader       = "# Netscape HTTP Cookie File"
	sessionCookieExpiry  = 2147483647
	defaultCookieDomain  = ".instagram.com"
	cookieJarFileName    = "cookies.txt"
	httpOnlyCookiePrefix = "#HttpOnly_"
)

var netscapePreamble = []string{
	netscapeHeader,
	"# https://curl.se/docs/http-cookies.html",
	"# This file was generated by igfetch",
	"",
}

// Cookie is one record of a browser cookie export. Both the camelCase names
// used by browser extensions and their snake_case variants are accepted.
type Cookie struct {
	Name           string `mapstructure:"name"`
	Value          any    `mapstructure:"value"`
	Domain         string `mapstructure:"domain"`
	Path           string `mapstructure:"path"`
	Secure         bool   `mapstructure:"secure"`
	HostOnly       bool   `mapstructure:"hostOnly"`
	HostOnlyAlt    bool   `mapstructure:"host_only"`
	HTTPOnly       bool   `mapstructure:"httpOnly"`
	HTTPOnlyAlt    bool   `mapstructure:"http_only"`
	ExpirationDate any    `mapstructure:"expirationDate"`
	Expires        any    `mapstructure:"expires"`
}

// ConvertCookies turns a structured cookie export (JSON) into the Netscape
// cookie file format the engine reads. Input already in that format is
// returned as is. Input that cannot be parsed is returned unchanged together
// with a non-nil error the caller should log as a warning.
func ConvertCookies(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	if strings.Contains(raw, netscapeHeader) {
		return raw, nil
	}

	// Numbers stay json.Number so numeric values keep their exact digits.
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return raw, fmt.Errorf("cookies are not JSON, assuming Netscape format: %w", err)
	}
	if dec.More() {
		return raw, errors.New("cookies contain trailing data after the JSON document, assuming Netscape format")
	}

	var records []map[string]any
	switch v := parsed.(type) {
	case []any:
		records = cookieObjects(v, "")
	case map[string]any:
		if _, single := v["name"]; single {
			records = []map[string]any{v}
		} else {
			for _, domain := range slices.Sorted(maps.Keys(v)) {
				if items, ok := v[domain].([]any); ok {
					records = append(records, cookieObjects(items, domain)...)
				}
			}
		}
	default:
		return raw, fmt.Errorf("unsupported cookie document of type %T, assuming Netscape format", parsed)
	}

	lines := append([]string(nil), netscapePreamble...)
	for _, record := range records {
		var c Cookie
		if err := decodeCookie(record, &c); err != nil {
			continue
		}
		if line, ok := c.netscapeLine(); ok {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func cookieObjects(items []any, domain string) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if domain != "" {
			obj["domain"] = domain
		}
		out = append(out, obj)
	}
	return out
}

func decodeCookie(record map[string]any, c *Cookie) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	return dec.Decode(record)
}

func (c Cookie) netscapeLine() (string, bool) {
	if c.Name == "" || c.Value == nil {
		return "", false
	}

	domain := c.Domain
	if domain == "" {
		domain = defaultCookieDomain
	}
	includeSubdomains := "TRUE"
	if c.HostOnly || c.HostOnlyAlt {
		includeSubdomains = "FALSE"
		domain = strings.TrimLeft(domain, ".")
	} else if !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}

	path := c.Path
	if path == "" {
		path = "/"
	}
	secure := "FALSE"
	if c.Secure {
		secure = "TRUE"
	}
	prefix := ""
	if c.HTTPOnly || c.HTTPOnlyAlt {
		prefix = httpOnlyCookiePrefix
	}

	return fmt.Sprintf("%s%s\t%s\t%s\t%s\t%d\t%s\t%s",
		prefix, domain, includeSubdomains, path, secure, c.expiry(), c.Name, cookieValue(c.Value)), true
}

// cookieValue renders scalar values without exponent notation.
func cookieValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// expiry returns the first usable expiry as whole seconds. Missing, zero and
// unparseable values yield the session sentinel.
func (c Cookie) expiry() int64 {
	for _, candidate := range []any{c.ExpirationDate, c.Expires} {
		if n, ok := expirySeconds(candidate); ok {
			return n
		}
	}
	return sessionCookieExpiry
}

func expirySeconds(v any) (int64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f == 0 {
		return 0, false
	}
	return int64(f), true
}

// writeCookieJar materializes the Netscape cookie text inside dir and returns its path.
func writeCookieJar(dir, netscape string) (string, error) {
	path := filepath.Join(dir, cookieJarFileName)
	if err := os.WriteFile(path, []byte(netscape), 0o600); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("writing cookie jar: %w", err))
	}
	return path, nil
}

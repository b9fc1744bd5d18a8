package http

import (
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// originPolicy decides which browser origins may call the API and open sockets.
type originPolicy struct {
	allowAll bool
	origins  map[string]struct{}
	hosts    []string
}

func newOriginPolicy(origins []string, logger *zerolog.Logger) originPolicy {
	p := originPolicy{origins: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, host, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		if _, dup := p.origins[normalized]; dup {
			continue
		}
		p.origins[normalized] = struct{}{}
		p.hosts = append(p.hosts, host)
	}
	return p
}

func normalizeOrigin(origin string) (normalized, host string, ok bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", false
	}
	host = strings.ToLower(parsed.Host)
	return strings.ToLower(parsed.Scheme) + "://" + host, host, true
}

// allows reports whether a browser Origin header value is permitted.
func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAll {
		return true
	}
	normalized, _, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, exists := p.origins[normalized]
	return exists
}

// acceptOptions maps the policy onto the websocket handshake check.
// Same-host and origin-less requests are always accepted by the library.
func (p originPolicy) acceptOptions() *websocket.AcceptOptions {
	if p.allowAll {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: append([]string(nil), p.hosts...)}
}

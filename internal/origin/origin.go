// Package origin implements the browser Origin policy shared by the REST API
// and the WebSocket handshake.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Permitted reports whether the browser Origin header may access the host in
// the incoming request's Host header. It returns the normalized origin
// (scheme://host[:port], or "null") for logging.
//
// When the allowlist is non-empty, each entry must be "*" or a normalized
// origin string; the header passes when it normalizes to a listed entry.
// Otherwise the policy is same-host only: host[:port] must match the request
// host, with default ports treated as equivalent. Scheme is intentionally not
// compared because the relay may sit behind a TLS-terminating reverse proxy
// and see the request as HTTP while the browser Origin is HTTPS.
//
// Requests without an Origin header (non-browser clients) are for callers to
// decide; Permitted rejects an empty header.
func Permitted(header, requestHost string, allowlist []string) (string, bool) {
	normalized, originHost, ok := normalize(header)
	if !ok {
		return "", false
	}

	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if allowed == "*" || allowed == normalized {
				return normalized, true
			}
		}
		return "", false
	}

	scheme := ""
	switch {
	case strings.HasPrefix(normalized, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalized, "https://"):
		scheme = "https"
	default:
		// "null" cannot match a host-based request.
		return "", false
	}

	reqHost, ok := canonicalHostPort(strings.TrimSpace(requestHost), scheme)
	if !ok || originHost != reqHost {
		return "", false
	}
	return normalized, true
}

// Normalize validates a single origin value and returns its normalized form.
// Configuration allowlists pass through this so request-time checks reduce to
// exact string comparison.
func Normalize(header string) (string, bool) {
	normalized, _, ok := normalize(header)
	return normalized, ok
}

// normalize validates an Origin header and returns the normalized origin plus
// its host[:port] portion. The special value "null" is allowed and returned
// as-is with an empty host.
func normalize(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHostPort(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// canonicalHostPort lowercases the hostname, re-brackets IPv6 literals, and
// drops the port when it is the scheme's default.
func canonicalHostPort(rawHost, scheme string) (string, bool) {
	hostname, rawPort, ok := splitAuthority(rawHost)
	if !ok {
		return "", false
	}

	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitAuthority splits host[:port]. IPv6 literals come back unbracketed, and
// the port is returned unvalidated (empty when absent).
func splitAuthority(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		parts := strings.SplitN(rawHost, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		// Unbracketed IPv6 literals are not valid in the authority component.
		return "", "", false
	}
}

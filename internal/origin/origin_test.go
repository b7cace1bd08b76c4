package origin

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{"simple https", "https://app.example.com", "https://app.example.com", true},
		{"uppercase scheme and host", "HTTPS://App.Example.COM", "https://app.example.com", true},
		{"default https port stripped", "https://app.example.com:443", "https://app.example.com", true},
		{"default http port stripped", "http://app.example.com:80", "http://app.example.com", true},
		{"non-default port kept", "https://app.example.com:8443", "https://app.example.com:8443", true},
		{"surrounding whitespace", "  https://app.example.com \t", "https://app.example.com", true},
		{"ipv4 literal", "http://10.0.0.1:3000", "http://10.0.0.1:3000", true},
		{"ipv6 literal", "http://[::1]:3000", "http://[::1]:3000", true},
		{"ipv6 lowercased", "http://[::FFFF:192.0.2.1]", "http://[::ffff:192.0.2.1]", true},
		{"null origin", "null", "null", true},
		{"root path tolerated", "https://app.example.com/", "https://app.example.com", true},

		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"missing scheme", "app.example.com", "", false},
		{"unsupported scheme", "ftp://app.example.com", "", false},
		{"ws scheme", "ws://app.example.com", "", false},
		{"path", "https://app.example.com/login", "", false},
		{"query", "https://app.example.com?x=1", "", false},
		{"fragment", "https://app.example.com#frag", "", false},
		{"userinfo", "https://user@app.example.com", "", false},
		{"port zero", "https://app.example.com:0", "", false},
		{"port out of range", "https://app.example.com:70000", "", false},
		{"unbracketed ipv6", "https://::1:3000", "", false},
		{"header smuggling", "https://a.example.com,https://b.example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Permitted(tt.header, "ignored.example.com", []string{"*"})
			if ok != tt.wantOK {
				t.Fatalf("Permitted(%q) ok = %v, want %v", tt.header, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("Permitted(%q) normalized = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestPermittedAllowlist(t *testing.T) {
	allowlist := []string{"https://app.example.com", "http://localhost:3000", "null"}

	tests := []struct {
		header string
		want   bool
	}{
		{"https://app.example.com", true},
		{"HTTPS://APP.EXAMPLE.COM:443", true},
		{"http://localhost:3000", true},
		{"null", true},
		{"https://evil.example.com", false},
		{"http://app.example.com", false},
		{"http://localhost:3001", false},
	}

	for _, tt := range tests {
		if _, got := Permitted(tt.header, "api.example.com", allowlist); got != tt.want {
			t.Errorf("Permitted(%q, allowlist) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestPermittedSameHostDefault(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		requestHost string
		want        bool
	}{
		{"exact match", "https://app.example.com", "app.example.com", true},
		{"case-insensitive host", "https://App.Example.com", "APP.EXAMPLE.COM", true},
		{"default port on request host", "https://app.example.com", "app.example.com:443", true},
		{"default port on origin", "http://app.example.com:80", "app.example.com", true},
		{"non-default port match", "http://app.example.com:8080", "app.example.com:8080", true},
		{"scheme ignored behind proxy", "https://app.example.com:8443", "app.example.com:8443", true},

		{"different host", "https://evil.example.com", "app.example.com", false},
		{"different port", "http://app.example.com:8080", "app.example.com:9090", false},
		{"null rejected", "null", "app.example.com", false},
		{"empty request host", "https://app.example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := Permitted(tt.header, tt.requestHost, nil); got != tt.want {
				t.Fatalf("Permitted(%q, %q, nil) = %v, want %v", tt.header, tt.requestHost, got, tt.want)
			}
		})
	}
}

func FuzzPermitted(f *testing.F) {
	f.Add("HTTPS://Example.COM:443", "example.com")
	f.Add("http://[::FFFF:192.0.2.1]", "[::ffff:192.0.2.1]")
	f.Add("null", "app.example.com")
	f.Add("https://example.com/path", "example.com")
	f.Add("https://a.example.com,https://b.example.com", "a.example.com")
	f.Add("", "")

	f.Fuzz(func(t *testing.T, header, requestHost string) {
		n1, ok1 := Permitted(header, requestHost, nil)
		n2, ok2 := Permitted(header, requestHost, nil)
		if ok1 != ok2 || n1 != n2 {
			t.Fatalf("non-deterministic result for (%q, %q)", header, requestHost)
		}

		normalized, ok := Permitted(header, requestHost, []string{"*"})
		if !ok {
			return
		}
		if strings.ContainsAny(normalized, " \t\r\n") {
			t.Fatalf("normalized origin contains whitespace: %q", normalized)
		}
		if normalized != "null" && !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
			t.Fatalf("normalized origin missing scheme: %q", normalized)
		}

		// Accepted origins must be stable under re-normalization.
		again, ok := Permitted(normalized, requestHost, []string{"*"})
		if !ok || again != normalized {
			t.Fatalf("normalization not idempotent: %q -> %q (ok=%v)", normalized, again, ok)
		}

		// An exact allowlist entry must match its own normalized form.
		if _, ok := Permitted(header, requestHost, []string{normalized}); !ok {
			t.Fatalf("expected exact allowlist match for %q", normalized)
		}
	})
}

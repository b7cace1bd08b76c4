package httpserver

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/parley/parley/internal/turnrest"
)

// withTURNRESTCredentials copies the configured ICE servers with the minted
// ephemeral credentials filled in on every TURN entry. STUN entries pass
// through untouched.
func withTURNRESTCredentials(servers []webrtc.ICEServer, creds turnrest.Credentials) []webrtc.ICEServer {
	if len(servers) == 0 {
		// Preserve empty (non-nil) slices so JSON responses consistently
		// encode as `[]` rather than `null`.
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if hasSchemeFold(url, "turn:") || hasSchemeFold(url, "turns:") {
			return true
		}
	}
	return false
}

func hasSchemeFold(url, scheme string) bool {
	return len(url) >= len(scheme) && strings.EqualFold(url[:len(scheme)], scheme)
}

package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/parley/parley/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.ClientIDCollision == config.CollisionEvict {
		logger.Warn("startup security warning: PARLEY_CLIENT_ID_COLLISION=evict lets a connection presenting a duplicate clientId displace the live one (session takeover risk on an unauthenticated signaling plane)",
			"warning_code", "client_id_collision_evict_in_prod",
			"client_id_collision", cfg.ClientIDCollision,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && staticTURNCredentialsConfigured(cfg) {
		logger.Warn("startup security warning: static TURN credentials are handed to every client via /api/ice (prefer TURN REST ephemeral credentials)",
			"warning_code", "static_turn_credentials_in_prod",
			"turn_rest_enabled", cfg.TURNREST.Enabled(),
			"mode", cfg.Mode,
		)
	}

	// Warn if the inbound message cap is unusually large, since this weakens
	// the relay's oversized message DoS hardening.
	if cfg.MaxMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: PARLEY_MAX_MESSAGE_BYTES is very large (weakens oversized message DoS hardening; increases per-message allocation risk)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}
	if cfg.WSIdleTimeout > 5*time.Minute {
		logger.Warn("startup security warning: PARLEY_WS_IDLE_TIMEOUT is very large (increases idle connection resource exposure)",
			"warning_code", "ws_idle_timeout_large",
			"ws_idle_timeout", cfg.WSIdleTimeout,
			"mode", cfg.Mode,
		)
	}
}

// staticTURNCredentialsConfigured reports whether any TURN server in the
// client-facing ICE list carries a long-lived username/credential pair.
func staticTURNCredentialsConfigured(cfg config.Config) bool {
	for _, server := range cfg.ICEServers {
		if !iceServerHasTURNURL(server) {
			continue
		}
		cred, _ := server.Credential.(string)
		if strings.TrimSpace(server.Username) != "" && strings.TrimSpace(cred) != "" {
			return true
		}
	}
	return false
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}

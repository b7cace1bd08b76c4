package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478", "turns:turn.example.com:5349"], "username": "u", "credential": "p"}
	]`

	servers, err := parseICEServersJSON(raw, false)
	if err != nil {
		t.Fatalf("parseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("servers[0]=%+v", servers[0])
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "u" {
		t.Fatalf("servers[1]=%+v", servers[1])
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "p" {
		t.Fatalf("credential=%v", servers[1].Credential)
	}
}

func TestParseICEServersJSONEmptyList(t *testing.T) {
	servers, err := parseICEServersJSON("[]", false)
	if err != nil {
		t.Fatalf("parseICEServersJSON: %v", err)
	}
	if servers == nil || len(servers) != 0 {
		t.Fatalf("servers=%v, want empty non-nil", servers)
	}
}

func TestParseICEServersJSONErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantSub string
	}{
		{"not json", "{oops", "invalid character"},
		{"missing urls", `[{"username": "u"}]`, "missing urls"},
		{"bad scheme", `[{"urls": "https://example.com"}]`, "unsupported url scheme"},
		{"turn without username", `[{"urls": "turn:t.example.com"}]`, "turn urls require username"},
		{"turn without credential", `[{"urls": "turn:t.example.com", "username": "u"}]`, "turn urls require credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseICEServersJSON(tt.raw, false)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err=%v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseICEServersJSONAllowsBareTURNForREST(t *testing.T) {
	servers, err := parseICEServersJSON(`[{"urls": "turn:t.example.com"}]`, true)
	if err != nil {
		t.Fatalf("parseICEServersJSON: %v", err)
	}
	if len(servers) != 1 || servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("servers=%+v", servers)
	}
}

func TestConvenienceEnvSTUNOnly(t *testing.T) {
	servers, err := parseICEServersFromConvenienceEnv("stun:a.example.com, stun:b.example.com", "", "", "", false)
	if err != nil {
		t.Fatalf("parseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 1 || len(servers[0].URLs) != 2 {
		t.Fatalf("servers=%+v", servers)
	}
}

func TestConvenienceEnvTURNRequiresCreds(t *testing.T) {
	if _, err := parseICEServersFromConvenienceEnv("", "turn:t.example.com", "", "", false); err == nil {
		t.Fatalf("expected error for TURN without creds")
	}
	if _, err := parseICEServersFromConvenienceEnv("", "turn:t.example.com", "u", "", false); err == nil {
		t.Fatalf("expected error for TURN without credential")
	}

	servers, err := parseICEServersFromConvenienceEnv("", "turn:t.example.com", "u", "p", false)
	if err != nil {
		t.Fatalf("parseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 1 || servers[0].Username != "u" {
		t.Fatalf("servers=%+v", servers)
	}
}

func TestJSONWinsOverConvenienceEnv(t *testing.T) {
	servers, err := parseICEServers(
		`[{"urls": "stun:json.example.com"}]`,
		"stun:conv.example.com",
		"", "", "",
		false,
	)
	if err != nil {
		t.Fatalf("parseICEServers: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("servers=%+v, want the JSON server only", servers)
	}
}

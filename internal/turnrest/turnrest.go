// Package turnrest mints coturn-compatible ephemeral TURN credentials.
//
// Algorithm (see https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest
// and the coturn wiki):
//
//	username   = <unix_expiry_timestamp>:<username_prefix>:<opaque_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// Expiry is computed from the server clock in UTC: now + TTL seconds. The
// TURN server recomputes the HMAC from the same shared secret and rejects
// allocations once the embedded timestamp has passed, so credentials handed
// to browsers stay useless after the TTL without any server-side state.
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config configures a Generator. Now and RandomID exist for deterministic
// tests and default to time.Now and a crypto/rand hex string.
type Config struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	Now      func() time.Time
	RandomID func() (string, error)
}

// Generator mints credentials for one shared secret.
type Generator struct {
	secret []byte
	ttl    int64
	prefix string

	now      func() time.Time
	randomID func() (string, error)
}

func New(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.ContainsRune(cfg.UsernamePrefix, ':') {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandomID == nil {
		cfg.RandomID = randomHexID
	}
	return &Generator{
		secret:   []byte(cfg.SharedSecret),
		ttl:      cfg.TTLSeconds,
		prefix:   cfg.UsernamePrefix,
		now:      cfg.Now,
		randomID: cfg.RandomID,
	}, nil
}

// Credentials is one minted username/credential pair. ExpiresAt is the unix
// timestamp embedded in the username.
type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  int64
}

// Mint issues credentials tied to a fresh opaque id.
func (g *Generator) Mint() (Credentials, error) {
	id, err := g.randomID()
	if err != nil {
		return Credentials{}, err
	}
	return g.MintFor(id)
}

// MintFor issues credentials whose username ends in the given id. The id must
// be non-empty and colon-free so the TURN server can split the username.
func (g *Generator) MintFor(id string) (Credentials, error) {
	if id == "" {
		return Credentials{}, errors.New("id is required")
	}
	if strings.ContainsRune(id, ':') {
		return Credentials{}, errors.New("id must not contain ':'")
	}
	expiresAt := g.now().UTC().Unix() + g.ttl
	username := fmt.Sprintf("%d:%s:%s", expiresAt, g.prefix, id)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		ExpiresAt:  expiresAt,
	}, nil
}

func randomHexID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

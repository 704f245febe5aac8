package redact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"
)

// KeyEnv is the environment variable consulted when no key is given explicitly.
const KeyEnv = "RECEIPTS_REDACTION_KEY"

// DevKey is the publicly known development key. Output redacted with it is
// reversible by anyone with this source code.
const DevKey = "receipts-development-key-not-private"

// ErrNoKey is returned when a redacting profile is requested without a key
// and the development key was not allowed.
var ErrNoKey = errors.New("no redaction key: pass --redaction-key, set " + KeyEnv + ", or allow the development key")

// KeySource records where a key came from.
type KeySource string

const (
	KeySourceExplicit KeySource = "explicit"
	KeySourceEnv      KeySource = "env"
	KeySourceDev      KeySource = "development"
)

// Key is secret material for keyed aliasing.
// Its String form is a fingerprint so it is safe to log.
type Key struct {
	secret []byte
	Source KeySource
}

// NewKey wraps secret material.
func NewKey(secret string, source KeySource) Key {
	return Key{secret: []byte(secret), Source: source}
}

// IsZero reports whether k carries no secret.
func (k Key) IsZero() bool { return len(k.secret) == 0 }

// IsDev reports whether k is the development key.
func (k Key) IsDev() bool { return k.Source == KeySourceDev }

// Fingerprint identifies a key without revealing it.
func (k Key) Fingerprint() string {
	if k.IsZero() {
		return ""
	}
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte("receipts.key-fingerprint"))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

func (k Key) String() string {
	if k.IsZero() {
		return "Key(none)"
	}
	return "Key(" + k.Fingerprint() + ")"
}

// KeyOptions controls ResolveKey.
type KeyOptions struct {
	// Explicit takes precedence over the environment.
	Explicit string
	// AllowDev permits falling back to DevKey with a warning.
	AllowDev bool
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	Logger *slog.Logger
}

// ResolveKey picks the redaction key: explicit value, then KeyEnv, then the
// development key when allowed. Otherwise it returns ErrNoKey.
func ResolveKey(opts KeyOptions) (Key, error) {
	if s := strings.TrimSpace(opts.Explicit); s != "" {
		return NewKey(s, KeySourceExplicit), nil
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if s := strings.TrimSpace(getenv(KeyEnv)); s != "" {
		return NewKey(s, KeySourceEnv), nil
	}
	if !opts.AllowDev {
		return Key{}, ErrNoKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("USING THE DEVELOPMENT REDACTION KEY: redacted profiles are NOT private and must not be shared",
		"env", KeyEnv)
	return NewKey(DevKey, KeySourceDev), nil
}

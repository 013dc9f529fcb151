package authcore

import (
	"errors"
	"time"
)

// Config defines engine behavior. Configure it before Build and treat it
// as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Token    TokenConfig
	Password PasswordConfig
	Audit    AuditConfig
	Events   EventsConfig
	Metrics  MetricsConfig

	// Clock supplies the current time for every token decision: issuance,
	// expiry checks, rotation, revocation stamps. Defaults to time.Now.
	// Tests substitute a fixed clock to make expiry deterministic.
	Clock func() time.Time
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// KeyID is stamped into the kid header of newly signed tokens.
	// VerifyKeys maps kid values to verification keys, letting old
	// signing keys stay verifiable during a key rotation.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures refresh token lifetime and rotation behavior.
type TokenConfig struct {
	RefreshTTL time.Duration

	// RecheckSubjectOnRefresh makes Refresh re-consult the UserProvider
	// and reject rotation for deactivated subjects. Requires a provider
	// whose SubjectActive is cheap, since it runs on every refresh.
	RecheckSubjectOnRefresh bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost parameters, in the same units
// as golang.org/x/crypto/argon2.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// EventsConfig configures domain event publication.
type EventsConfig struct {
	// Source identifies this service in event metadata.
	Source string
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Token: TokenConfig{
			RefreshTTL:              7 * 24 * time.Hour,
			RecheckSubjectOnRefresh: false,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Events: EventsConfig{
			Source: "authcore",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Clock: time.Now,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if len(cfg.JWT.VerifyKeys) > 0 {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Build calls
// it, so manual invocation is only needed when constructing configs
// dynamically.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Token RefreshTTL must exceed JWT AccessTTL")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
		return errors.New("ed25519 requires PublicKey or VerifyKeys")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Clock == nil {
		return errors.New("Clock must not be nil")
	}

	return nil
}

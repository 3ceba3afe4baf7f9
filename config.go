package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/ids"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/permission"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	JWT      JWTConfig
	Redis    RedisConfig
	Password PasswordConfig
	IDS      IDSConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Roles    RolesConfig
	Security SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	TTL time.Duration
	// RefreshWindow bounds a non-persistent refresh chain, measured from the
	// first token's issue time.
	RefreshWindow time.Duration
	// ConfirmTTL is the lifetime of signup confirmation tokens.
	ConfirmTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig controls key layout and the local revoke-before layer.
type RedisConfig struct {
	Prefix string
	// LocalTTL keeps revoke-before values in process for this long. Zero
	// disables the local layer.
	LocalTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hash algorithm and cost.
type PasswordConfig struct {
	Algorithm      string // "argon2id" (default) or "bcrypt"
	MinLength      int
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	BcryptCost     int
	UpgradeOnLogin bool
}

/*
====================================
IDS CONFIG
====================================
*/

// IDSConfig tunes request inspection.
type IDSConfig struct {
	Enabled             bool
	Whitelist           []string
	WhitelistPaths      []string
	Methods             []string
	Headers             []string
	SuspiciousThreshold int
	MaliciousThreshold  int
	BanTTL              time.Duration
	Bruteforce          RateProfile
	Socket              RateProfile
}

/*
====================================
AUDIT CONFIG
====================================
*/

// ActivityAudit selects which activity events are recorded.
type ActivityAudit string

const (
	ActivityAll      ActivityAudit = "all"
	ActivityNone     ActivityAudit = "none"
	ActivityAuthOnly ActivityAudit = "authOnly"
)

// AuditConfig controls the audit pipeline.
type AuditConfig struct {
	Enabled       bool
	FlushInterval time.Duration
	QueueSize     int
	DropIfFull    bool
	Activity      ActivityAudit
	// Demo replaces recorded request and response bodies.
	Demo bool
	// MemoryInterval is the memory watcher sample period. Zero disables it.
	MemoryInterval  time.Duration
	MemorySamples   int
	MemoryMinGrowth uint64
}

/*
====================================
METRICS / ROLES / SECURITY
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// RolesConfig names the built-in roles.
type RolesConfig struct {
	Admin string
}

// SecurityConfig holds cross-cutting switches.
type SecurityConfig struct {
	// StrictSchemaStrike records a suspicious strike for requests that
	// fail their route validator.
	StrictSchemaStrike bool
}

// DemoPlaceholder replaces bodies in demo mode.
const DemoPlaceholder = "Data removed for demo"

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. A signing key must still be
// supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	idsDefaults := ids.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			TTL:           3600 * time.Second,
			RefreshWindow: 7200 * time.Second,
			ConfirmTTL:    1800 * time.Second,
			SigningMethod: "hs256",
		},
		Redis: RedisConfig{
			Prefix:   "gg:",
			LocalTTL: 0,
		},
		Password: PasswordConfig{
			Algorithm:      string(pw.Algorithm),
			MinLength:      pw.MinLength,
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			BcryptCost:     pw.BcryptCost,
			UpgradeOnLogin: true,
		},
		IDS: IDSConfig{
			Enabled:             true,
			Whitelist:           idsDefaults.Whitelist,
			WhitelistPaths:      []string{"/api/audit/clientlog"},
			Methods:             idsDefaults.Methods,
			Headers:             idsDefaults.Headers,
			SuspiciousThreshold: idsDefaults.Thresholds.Suspicious,
			MaliciousThreshold:  idsDefaults.Thresholds.Malicious,
			BanTTL:              idsDefaults.BanTTL,
			Bruteforce:          idsDefaults.Bruteforce,
			Socket:              idsDefaults.Socket,
		},
		Audit: AuditConfig{
			Enabled:         true,
			FlushInterval:   500 * time.Millisecond,
			QueueSize:       1024,
			DropIfFull:      true,
			Activity:        ActivityAll,
			MemoryInterval:  time.Minute,
			MemorySamples:   5,
			MemoryMinGrowth: 8 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Roles: RolesConfig{
			Admin: permission.RoleAdmins,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.IDS.Whitelist = cloneStrings(cfg.IDS.Whitelist)
	out.IDS.WhitelistPaths = cloneStrings(cfg.IDS.WhitelistPaths)
	out.IDS.Methods = cloneStrings(cfg.IDS.Methods)
	out.IDS.Headers = cloneStrings(cfg.IDS.Headers)
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

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	if c.JWT.RefreshWindow <= 0 {
		return errors.New("JWT RefreshWindow must be > 0")
	}
	if c.JWT.ConfirmTTL <= 0 {
		return errors.New("JWT ConfirmTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Redis
	if c.Redis.LocalTTL < 0 {
		return errors.New("Redis LocalTTL must be >= 0")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.Argon2id, password.Bcrypt:
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// IDS
	if c.IDS.Enabled {
		if err := c.idsConfig().Validate(); err != nil {
			return err
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.FlushInterval <= 0 {
			return errors.New("Audit FlushInterval must be > 0")
		}
		if c.Audit.QueueSize <= 0 {
			return errors.New("Audit QueueSize must be > 0")
		}
		switch c.Audit.Activity {
		case ActivityAll, ActivityNone, ActivityAuthOnly:
		default:
			return errors.New("Audit Activity must be 'all', 'none' or 'authOnly'")
		}
		if c.Audit.MemoryInterval < 0 {
			return errors.New("Audit MemoryInterval must be >= 0")
		}
	}

	if strings.TrimSpace(c.Roles.Admin) == "" {
		return errors.New("Roles Admin must be set")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Algorithm:   password.Algorithm(c.Password.Algorithm),
		MinLength:   c.Password.MinLength,
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		BcryptCost:  c.Password.BcryptCost,
	}
}

func (c *Config) idsConfig() ids.Config {
	return ids.Config{
		Prefix:         c.Redis.Prefix,
		Whitelist:      c.IDS.Whitelist,
		WhitelistPaths: c.IDS.WhitelistPaths,
		Methods:        c.IDS.Methods,
		Headers:        c.IDS.Headers,
		Thresholds: ids.Thresholds{
			Suspicious: c.IDS.SuspiciousThreshold,
			Malicious:  c.IDS.MaliciousThreshold,
		},
		BanTTL:     c.IDS.BanTTL,
		Bruteforce: c.IDS.Bruteforce,
		Socket:     c.IDS.Socket,
	}
}

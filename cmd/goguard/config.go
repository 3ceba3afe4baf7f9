package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/mailer"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GOGUARD_"

type fileConfig struct {
	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PurgeInterval   time.Duration `yaml:"purge_interval"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	} `yaml:"server"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		LocalTTL time.Duration `yaml:"local_ttl"`
	} `yaml:"redis"`

	Postgres struct {
		URL             string        `yaml:"url"`
		MaxConns        int32         `yaml:"max_conns"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	} `yaml:"postgres"`

	JWT struct {
		TTL           time.Duration `yaml:"ttl"`
		RefreshWindow time.Duration `yaml:"refresh_window"`
		ConfirmTTL    time.Duration `yaml:"confirm_ttl"`
		Leeway        time.Duration `yaml:"leeway"`
		SigningMethod string        `yaml:"signing_method"`
		Issuer        string        `yaml:"issuer"`
		KeyID         string        `yaml:"key_id"`
		PrivateKey    string        `yaml:"private_key"`
		PublicKey     string        `yaml:"public_key"`
	} `yaml:"jwt"`

	Password struct {
		Algorithm string `yaml:"algorithm"`
		MinLength int    `yaml:"min_length"`
	} `yaml:"password"`

	IDS struct {
		Enabled             *bool         `yaml:"enabled"`
		Whitelist           []string      `yaml:"whitelist"`
		WhitelistPaths      []string      `yaml:"whitelist_paths"`
		SuspiciousThreshold int           `yaml:"suspicious_threshold"`
		MaliciousThreshold  int           `yaml:"malicious_threshold"`
		BanTTL              time.Duration `yaml:"ban_ttl"`
	} `yaml:"ids"`

	Audit struct {
		Enabled       *bool         `yaml:"enabled"`
		Activity      string        `yaml:"activity"`
		Demo          bool          `yaml:"demo"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"audit"`

	Security struct {
		StrictSchemaStrike bool `yaml:"strict_schema_strike"`
	} `yaml:"security"`

	Mail mailer.Config `yaml:"mail"`

	Policies []policyConfig `yaml:"policies"`
}

type policyConfig struct {
	Method string   `yaml:"method"`
	Route  string   `yaml:"route"`
	Roles  []string `yaml:"roles"`
	Public bool     `yaml:"public"`
	// BruteForce puts the route behind the per-IP brute-force limiter.
	BruteForce bool `yaml:"brute_force"`
	// Required and Optional turn on strict body validation when either is set.
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

func defaultFileConfig() *fileConfig {
	fc := &fileConfig{}
	fc.Log.Env = "prod"
	fc.Log.Level = "info"
	fc.Server.Addr = ":8080"
	fc.Server.ShutdownTimeout = 10 * time.Second
	fc.Server.PurgeInterval = time.Hour
	fc.Redis.Addr = "localhost:6379"
	return fc
}

// loadConfig reads path (optional), then .env, then GOGUARD_* variables.
// Environment values win over the file.
func loadConfig(path string) (*fileConfig, error) {
	fc := defaultFileConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, fc); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(fc); err != nil {
		return nil, err
	}
	return fc, nil
}

func applyEnv(fc *fileConfig) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	str("LOG_ENV", &fc.Log.Env)
	str("LOG_LEVEL", &fc.Log.Level)
	str("HTTP_ADDR", &fc.Server.Addr)
	str("REDIS_ADDR", &fc.Redis.Addr)
	str("REDIS_PASSWORD", &fc.Redis.Password)
	str("REDIS_PREFIX", &fc.Redis.Prefix)
	str("DATABASE_URL", &fc.Postgres.URL)
	str("JWT_SIGNING_METHOD", &fc.JWT.SigningMethod)
	str("JWT_PRIVATE_KEY", &fc.JWT.PrivateKey)
	str("JWT_PUBLIC_KEY", &fc.JWT.PublicKey)
	str("JWT_ISSUER", &fc.JWT.Issuer)
	str("SMTP_HOST", &fc.Mail.Host)
	str("SMTP_USERNAME", &fc.Mail.Username)
	str("SMTP_PASSWORD", &fc.Mail.Password)
	str("SMTP_FROM", &fc.Mail.From)
	str("CONFIRM_URL", &fc.Mail.ConfirmURL)

	if v, ok := os.LookupEnv(envPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", envPrefix, err)
		}
		fc.Redis.DB = n
	}
	if v, ok := os.LookupEnv(envPrefix + "SMTP_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSMTP_PORT: %w", envPrefix, err)
		}
		fc.Mail.Port = n
	}
	if v, ok := os.LookupEnv(envPrefix + "AUDIT_DEMO"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sAUDIT_DEMO: %w", envPrefix, err)
		}
		fc.Audit.Demo = b
	}
	return nil
}

// engineConfig overlays the file settings on the engine defaults.
func (fc *fileConfig) engineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()

	if fc.Redis.Prefix != "" {
		cfg.Redis.Prefix = fc.Redis.Prefix
	}
	cfg.Redis.LocalTTL = fc.Redis.LocalTTL

	if fc.JWT.TTL > 0 {
		cfg.JWT.TTL = fc.JWT.TTL
	}
	if fc.JWT.RefreshWindow > 0 {
		cfg.JWT.RefreshWindow = fc.JWT.RefreshWindow
	}
	if fc.JWT.ConfirmTTL > 0 {
		cfg.JWT.ConfirmTTL = fc.JWT.ConfirmTTL
	}
	if fc.JWT.SigningMethod != "" {
		cfg.JWT.SigningMethod = strings.ToLower(fc.JWT.SigningMethod)
	}
	cfg.JWT.Leeway = fc.JWT.Leeway
	cfg.JWT.Issuer = fc.JWT.Issuer
	cfg.JWT.KeyID = fc.JWT.KeyID
	if fc.JWT.PrivateKey != "" {
		cfg.JWT.PrivateKey = []byte(fc.JWT.PrivateKey)
	}
	if fc.JWT.PublicKey != "" {
		cfg.JWT.PublicKey = []byte(fc.JWT.PublicKey)
	}

	if fc.Password.Algorithm != "" {
		cfg.Password.Algorithm = fc.Password.Algorithm
	}
	if fc.Password.MinLength > 0 {
		cfg.Password.MinLength = fc.Password.MinLength
	}

	if fc.IDS.Enabled != nil {
		cfg.IDS.Enabled = *fc.IDS.Enabled
	}
	if len(fc.IDS.Whitelist) > 0 {
		cfg.IDS.Whitelist = fc.IDS.Whitelist
	}
	if len(fc.IDS.WhitelistPaths) > 0 {
		cfg.IDS.WhitelistPaths = fc.IDS.WhitelistPaths
	}
	if fc.IDS.SuspiciousThreshold > 0 {
		cfg.IDS.SuspiciousThreshold = fc.IDS.SuspiciousThreshold
	}
	if fc.IDS.MaliciousThreshold > 0 {
		cfg.IDS.MaliciousThreshold = fc.IDS.MaliciousThreshold
	}
	if fc.IDS.BanTTL > 0 {
		cfg.IDS.BanTTL = fc.IDS.BanTTL
	}

	if fc.Audit.Enabled != nil {
		cfg.Audit.Enabled = *fc.Audit.Enabled
	}
	if fc.Audit.Activity != "" {
		cfg.Audit.Activity = goGuard.ActivityAudit(fc.Audit.Activity)
	}
	if fc.Audit.FlushInterval > 0 {
		cfg.Audit.FlushInterval = fc.Audit.FlushInterval
	}
	cfg.Audit.Demo = fc.Audit.Demo
	cfg.Security.StrictSchemaStrike = fc.Security.StrictSchemaStrike

	return cfg
}

// registry returns the server's own routes plus the configured ones.
func (fc *fileConfig) registry() (*permission.Registry, error) {
	reg := permission.NewRegistry()
	for _, p := range serverPolicies() {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	for _, pc := range fc.Policies {
		p := permission.Policy{
			Method:     strings.ToUpper(pc.Method),
			Route:      pc.Route,
			Roles:      pc.Roles,
			Public:     pc.Public,
			BruteForce: pc.BruteForce,
		}
		if len(pc.Required) > 0 || len(pc.Optional) > 0 {
			p.Validate = permission.Strict(pc.Required, pc.Optional...)
		}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("policy %s %s: %w", p.Method, p.Route, err)
		}
	}
	return reg, nil
}

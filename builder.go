package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/ids"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/revocation"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it once during initialization and
// call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store      CredentialStore
	roles      RoleStore
	policies   *permission.Registry
	auditStore AuditStore
	notifier   Notifier
	geo        GeoLocator
	logger     *zap.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared cache. A *redis.Client or *redis.ClusterClient
// both work.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the durable user store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRoleStore overrides the Redis-backed role store.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roles = store
	return b
}

// WithPolicies sets the route policy registry. Build freezes it.
func (b *Builder) WithPolicies(registry *permission.Registry) *Builder {
	b.policies = registry
	return b
}

// WithAuditStore enables durable audit persistence.
func (b *Builder) WithAuditStore(store AuditStore) *Builder {
	b.auditStore = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithGeoLocator(g GeoLocator) *Builder {
	b.geo = g
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance, revocation and rate
// limiting.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.policies == nil {
		return nil, errors.New("route policies must be provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- ROUTE POLICIES --------
	b.policies.Freeze()

	roles := b.roles
	if roles == nil {
		roles = permission.NewRedisRoleStore(b.redis, cfg.Redis.Prefix)
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		redis:    b.redis,
		store:    b.store,
		roles:    roles,
		policies: b.policies,
		notifier: b.notifier,
		geo:      b.geo,
		logger:   logger,
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
	}
	if engine.notifier == nil {
		engine.notifier = noopNotifier{}
	}
	if engine.geo == nil {
		engine.geo = noopGeo{}
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	engine.revocations = revocation.New(b.redis, revocation.Config{
		Prefix:   cfg.Redis.Prefix,
		LocalTTL: cfg.Redis.LocalTTL,
	})

	// -------- IDS --------
	if cfg.IDS.Enabled {
		idsCfg := cfg.idsConfig()
		idsCfg.Now = now
		engine.detector = ids.New(b.redis, idsCfg, logger.Named("ids"))
	}

	// -------- AUDIT --------
	if cfg.Audit.Enabled && b.auditStore != nil {
		pipeline, err := audit.NewPipeline(b.redis, b.auditStore, audit.Config{
			Prefix:     cfg.Redis.Prefix,
			Interval:   cfg.Audit.FlushInterval,
			QueueSize:  cfg.Audit.QueueSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, logger.Named("audit"))
		if err != nil {
			return nil, err
		}
		engine.audit = pipeline
		engine.auditStore = b.auditStore

		if cfg.Audit.MemoryInterval > 0 {
			engine.watcher = audit.NewWatcher(audit.WatcherConfig{
				Interval:  cfg.Audit.MemoryInterval,
				Samples:   cfg.Audit.MemorySamples,
				MinGrowth: cfg.Audit.MemoryMinGrowth,
			}, engine.onMemoryLeak)
		}
	} else if cfg.Audit.Enabled {
		logger.Info("audit enabled without a store; events are discarded", zap.String("component", "audit"))
	}

	engine.flows = flows.Deps{
		Verify: flows.VerifyDeps{
			Tokens:      jm,
			Revocations: engine.revocations,
		},
		Refresh: flows.RefreshDeps{
			Tokens:            jm,
			Revocations:       engine.revocations,
			Issue:             jm.Issue,
			LoadUser:          engine.loadRefreshUser,
			ReplacePersistent: b.store.ReplacePersistentToken,
			RefreshWindow:     cfg.JWT.RefreshWindow,
			Now:               now,
		},
		Revoke: flows.RevokeDeps{
			Tokens:           jm,
			Revocations:      engine.revocations,
			DeletePersistent: b.store.DeletePersistentToken,
			RefreshWindow:    cfg.JWT.RefreshWindow,
			Now:              now,
		},
		Login: flows.LoginDeps{
			FindUser:       engine.findLoginUser,
			VerifyPassword: hasher.Verify,
			Rehash:         engine.rehash,
			Warn:           logger.Sugar().Warnw,
		},
	}
	if cfg.Password.UpgradeOnLogin {
		engine.flows.Login.NeedsRehash = hasher.NeedsRehash
	}

	b.built = true

	return engine, nil
}

package goGuard

import (
	"context"
	"errors"
	"sync"
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

// Engine is the token, authorization, intrusion-detection and audit core.
// It is safe for concurrent use once built.
type Engine struct {
	config      Config
	redis       redis.UniversalClient
	store       CredentialStore
	roles       RoleStore
	policies    *permission.Registry
	tokens      *jwt.Manager
	hasher      *password.Hasher
	revocations *revocation.Cache
	detector    *ids.Detector
	audit       *audit.Pipeline
	auditStore  AuditStore
	watcher     *audit.Watcher
	notifier    Notifier
	geo         GeoLocator
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
	flows       flows.Deps

	stop      context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// Start launches the audit flusher and memory watcher. They stop on Close
// or when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		e.stop = cancel
		if e.audit != nil {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.audit.Run(ctx)
			}()
		}
		if e.watcher != nil {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.watcher.Run(ctx)
			}()
		}
	})
}

// Close drains queued audit events into Redis, runs a final flush and
// waits for background goroutines.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.audit != nil {
			e.audit.Close()
		}
		if e.stop != nil {
			e.stop()
		}
		e.wg.Wait()
	})
}

// Policies returns the frozen route registry.
func (e *Engine) Policies() *permission.Registry {
	if e == nil {
		return nil
	}
	return e.policies
}

// AuditDropped reports events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Stats().Dropped
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.tokens == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return nil
}

// storageError passes classified errors through and wraps everything else
// as a storage failure.
func storageError(err error) error {
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return wrapError(KindStorageUnavailable, "Storage unavailable", err)
}

// strike records a strike for ip. Failures are logged, never returned.
func (e *Engine) strike(ctx context.Context, ip string, kind StrikeKind) {
	if e.detector == nil || ip == "" || kind == StrikeNone {
		return
	}
	k := ids.Suspicious
	metric := MetricStrikeSuspicious
	if kind == StrikeMalicious {
		k = ids.Malicious
		metric = MetricStrikeMalicious
	}
	if _, err := e.detector.LogStrike(ctx, ip, k); err != nil {
		e.logger.Warn("strike write failed", zap.String("component", "ids"), zap.String("ip", ip), zap.Error(err))
		return
	}
	e.metricInc(metric)
}

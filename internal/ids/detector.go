package ids

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stage names the pipeline step that produced a finding.
type Stage uint8

const (
	StageBanned Stage = iota + 1
	StageMethod
	StageHeaders
	StageSignature
	StageRateLimit
)

// Rejection messages.
const (
	MsgBanned          = "IP blacklisted"
	MsgMethod          = "Method not allowed"
	MsgHeaders         = "Headers missing"
	MsgXSS             = "XSS attack detected"
	MsgSQLi            = "SQLi attack detected"
	MsgRateLimited     = "Too many requests"
	DescBannedSuffix   = " has been banned due to suspicious or malicious activity"
	DescRateLimitedPre = "Rate limit exceeded by IP "
	DescSuspicious     = "Suspicious activity has been logged"
	DescMalicious      = "Malicious activity has been logged"
)

// Finding is a rejection produced by the pipeline.
type Finding struct {
	Stage      Stage
	Msg        string
	Desc       string
	Strike     Kind
	RetryAfter time.Duration
}

// Request is the transport-neutral view the detector needs. Message
// traffic always goes through the socket profile; request/reply traffic
// only hits the brute-force profile when BruteForce is set.
type Request struct {
	IP         string
	Method     string
	URL        string
	Header     func(name string) string
	Body       []byte
	Message    bool
	BruteForce bool
}

// Config tunes the detector.
type Config struct {
	Prefix         string
	Whitelist      []string
	WhitelistPaths []string
	Methods        []string
	Headers        []string
	Thresholds     Thresholds
	BanTTL         time.Duration
	Bruteforce     rate.Profile
	Socket         rate.Profile
	Now            func() time.Time
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Whitelist:  []string{"127.0.0.1", "::ffff:127.0.0.1", "::1"},
		Methods:    []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		Headers:    []string{"host", "user-agent"},
		Thresholds: Thresholds{Suspicious: 50, Malicious: 5},
		BanTTL:     20 * 24 * time.Hour,
		Bruteforce: rate.BruteforceProfile(),
		Socket:     rate.SocketProfile(),
	}
}

// Validate reports misconfiguration.
func (c Config) Validate() error {
	if c.Thresholds.Suspicious <= 0 || c.Thresholds.Malicious <= 0 {
		return errors.New("ids thresholds must be > 0")
	}
	if c.BanTTL <= 0 {
		return errors.New("ids ban TTL must be > 0")
	}
	if len(c.Methods) == 0 {
		return errors.New("ids method allow-list cannot be empty")
	}
	if err := c.Bruteforce.Validate(); err != nil {
		return err
	}
	return c.Socket.Validate()
}

// Detector runs the inspection pipeline.
type Detector struct {
	cfg       Config
	whitelist map[string]struct{}
	paths     map[string]struct{}
	methods   map[string]struct{}
	strikes   *Store
	limiter   *rate.Limiter
	scanner   Scanner
	logger    *zap.Logger
}

// New builds a Detector over client.
func New(client redis.UniversalClient, cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		cfg:       cfg,
		whitelist: toSet(cfg.Whitelist, false),
		paths:     toSet(cfg.WhitelistPaths, false),
		methods:   toSet(cfg.Methods, true),
		strikes:   NewStore(client, cfg.Prefix, cfg.BanTTL),
		limiter:   rate.New(client, cfg.Prefix, cfg.Now),
		logger:    logger,
	}
	return d
}

// Strikes exposes the strike store.
func (d *Detector) Strikes() *Store {
	return d.strikes
}

// Scans returns how many signature scans have run.
func (d *Detector) Scans() uint64 {
	return d.scanner.Scans()
}

// Inspect runs the pipeline for req. A nil finding and nil error mean the
// request may proceed. Storage failures are returned as errors; a strike
// that cannot be written is logged and the rejection still stands.
func (d *Detector) Inspect(ctx context.Context, req Request) (*Finding, error) {
	if _, ok := d.whitelist[req.IP]; ok {
		return nil, nil
	}
	if _, ok := d.paths[pathOnly(req.URL)]; ok {
		return nil, nil
	}

	rec, err := d.strikes.Get(ctx, req.IP)
	if err != nil {
		if errors.Is(err, ErrCorruptRecord) {
			d.logger.Warn("strike record unreadable, rejecting", zap.String("component", "ids"), zap.String("ip", req.IP), zap.Error(err))
		}
		return nil, err
	}
	if rec.Banned(d.cfg.Thresholds) {
		return &Finding{Stage: StageBanned, Msg: MsgBanned, Desc: req.IP + DescBannedSuffix}, nil
	}

	if f := d.checkShape(req); f != nil {
		d.strike(ctx, req.IP, f.Strike)
		return f, nil
	}

	if f := d.scanner.Scan(req.URL, req.Body); f != nil {
		f.Desc = DescMalicious
		d.strike(ctx, req.IP, f.Strike)
		return f, nil
	}

	var profile rate.Profile
	switch {
	case req.Message:
		profile = d.cfg.Socket
	case req.BruteForce:
		profile = d.cfg.Bruteforce
	default:
		return nil, nil
	}
	res, err := d.limiter.Hit(ctx, profile, req.IP)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		if err := d.strikes.SetMarker(ctx, req.IP, Marker{Key: profile.Name, Hash: res.Hash}, profile.MarkerTTL); err != nil {
			d.logger.Warn("rate-limit marker write failed", zap.String("component", "ids"), zap.String("ip", req.IP), zap.Error(err))
		}
		return &Finding{
			Stage:      StageRateLimit,
			Msg:        MsgRateLimited,
			Desc:       DescRateLimitedPre + req.IP,
			RetryAfter: res.RetryAfter,
		}, nil
	}

	return nil, nil
}

func (d *Detector) checkShape(req Request) *Finding {
	if !req.Message {
		if _, ok := d.methods[strings.ToUpper(req.Method)]; !ok {
			return &Finding{Stage: StageMethod, Msg: MsgMethod, Desc: DescSuspicious, Strike: Suspicious}
		}
	}
	for _, h := range d.cfg.Headers {
		if req.Header == nil || strings.TrimSpace(req.Header(h)) == "" {
			return &Finding{Stage: StageHeaders, Msg: MsgHeaders, Desc: DescSuspicious, Strike: Suspicious}
		}
	}
	return nil
}

// LogStrike records a strike outside the pipeline, e.g. for a forged token.
// Whitelisted and empty IPs are ignored.
func (d *Detector) LogStrike(ctx context.Context, ip string, kind Kind) (Record, error) {
	if ip == "" {
		return Record{}, nil
	}
	if _, ok := d.whitelist[ip]; ok {
		return Record{}, nil
	}
	return d.strikes.LogStrike(ctx, ip, kind)
}

func (d *Detector) strike(ctx context.Context, ip string, kind Kind) {
	if kind == "" {
		return
	}
	if _, err := d.strikes.LogStrike(ctx, ip, kind); err != nil {
		d.logger.Warn("strike write failed", zap.String("component", "ids"), zap.String("ip", ip), zap.Error(err))
	}
}

// Unban clears every ban state for ip, including the brute-force counter
// referenced by its rate-limit marker.
func (d *Detector) Unban(ctx context.Context, ip string) error {
	m, err := d.strikes.Clear(ctx, ip)
	if err != nil {
		return err
	}
	if m != nil {
		return d.limiter.Reset(ctx, m.Hash)
	}
	return nil
}

// Banned lists IPs with strike records or rate-limit markers.
func (d *Detector) Banned(ctx context.Context) ([]Entry, error) {
	return d.strikes.List(ctx)
}

// Thresholds returns the configured ban thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.cfg.Thresholds
}

func toSet(values []string, upper bool) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if upper {
			v = strings.ToUpper(v)
		}
		out[v] = struct{}{}
	}
	return out
}

func pathOnly(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}

package goGuard

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goGuard/internal/ids"
)

// Inspect runs the intrusion-detection pipeline for req. Rejections have
// already recorded their strike when returned.
func (e *Engine) Inspect(ctx context.Context, req *Request) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.detector == nil || req == nil {
		return nil
	}

	var bruteForce bool
	if e.policies != nil {
		policy, ok := e.policies.Lookup(req.Method, req.Route)
		bruteForce = ok && policy.BruteForce
	}

	finding, err := e.detector.Inspect(ctx, ids.Request{
		IP:         req.IP,
		Method:     req.Method,
		URL:        req.Path,
		Header:     req.Header,
		Body:       req.Body,
		Message:    req.Protocol == ProtocolMessage,
		BruteForce: bruteForce,
	})
	if err != nil {
		return storageError(err)
	}
	if finding == nil {
		return nil
	}

	out := findingError(finding)
	e.metricInc(MetricIDSRejected)
	switch finding.Stage {
	case ids.StageBanned:
		e.metricInc(MetricIDSBanned)
	case ids.StageRateLimit:
		e.metricInc(MetricRateLimited)
	case ids.StageSignature:
		if finding.Msg == ids.MsgXSS {
			e.metricInc(MetricXSSDetected)
		} else {
			e.metricInc(MetricSQLiDetected)
		}
	}
	if finding.Strike == ids.Suspicious {
		e.metricInc(MetricStrikeSuspicious)
	} else if finding.Strike == ids.Malicious {
		e.metricInc(MetricStrikeMalicious)
	}
	if finding.Stage != ids.StageBanned {
		e.recordSecurityError(WithClientIP(ctx, req.IP), "ids", out)
	}
	return out
}

func findingError(f *ids.Finding) *Error {
	switch f.Stage {
	case ids.StageBanned:
		return newError(KindBanned, f.Msg, f.Desc)
	case ids.StageRateLimit:
		return newError(KindRateLimited, f.Msg, f.Desc)
	}

	err := newError(KindForbidden, f.Msg, f.Desc).withStatus(http.StatusForbidden)
	switch f.Strike {
	case ids.Malicious:
		err.Strike = StrikeMalicious
	case ids.Suspicious:
		err.Strike = StrikeSuspicious
	}
	return err
}

// LogStrike records a strike against ip outside the request pipeline.
func (e *Engine) LogStrike(ctx context.Context, ip string, kind StrikeKind) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.detector == nil || kind == StrikeNone {
		return nil
	}
	k := ids.Suspicious
	if kind == StrikeMalicious {
		k = ids.Malicious
	}
	if _, err := e.detector.LogStrike(ctx, ip, k); err != nil {
		return storageError(err)
	}
	return nil
}

// Unban clears the strike record, the rate-limit marker and the brute-force
// counter for ip.
func (e *Engine) Unban(ctx context.Context, ip string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.detector == nil {
		return nil
	}
	if err := e.detector.Unban(ctx, ip); err != nil {
		return storageError(err)
	}
	return nil
}

// Banned lists every IP with a strike record or rate-limit marker.
func (e *Engine) Banned(ctx context.Context) ([]BanEntry, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.detector == nil {
		return nil, nil
	}
	entries, err := e.detector.Banned(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	out := make([]BanEntry, 0, len(entries))
	for _, en := range entries {
		be := BanEntry{
			IP:         en.IP,
			Suspicious: en.Suspicious,
			Malicious:  en.Malicious,
			TTL:        en.TTL,
		}
		if en.RateLimit != nil {
			be.RateLimitKey = en.RateLimit.Key
			be.Hash = en.RateLimit.Hash
		}
		out = append(out, be)
	}
	return out, nil
}

// ScanCount reports how many signature scans the detector has run.
func (e *Engine) ScanCount() uint64 {
	if e == nil || e.detector == nil {
		return 0
	}
	return e.detector.Scans()
}

package goGuard

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// TargetParam is the parameter naming the user a request acts on.
const TargetParam = "userId"

// Guard runs inspect, validate, authenticate and authorize for req and
// stops at the first failure. Routes without a registered policy are
// inspected and then denied.
func (e *Engine) Guard(ctx context.Context, req *Request) (*GuardResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, newError(KindValidationFailed, "Validation failed", "Empty request")
	}

	if ClientIPFromContext(ctx) == "" && req.IP != "" {
		ctx = WithClientIP(ctx, req.IP)
	}
	if ua := req.Header("user-agent"); ua != "" && userAgentFromContext(ctx) == "" {
		ctx = WithUserAgent(ctx, ua)
	}

	policy, found := e.policies.Lookup(req.Method, req.Route)
	var claims *Claims

	deps := flows.GuardDeps{
		Inspect: func(ctx context.Context) error {
			return e.Inspect(ctx, req)
		},
		Public: found && policy.Public,
		Authenticate: func(ctx context.Context) (string, error) {
			token := req.BearerToken()
			if token == "" {
				return "", newError(KindInvalid, "No token", "")
			}
			c, err := e.Verify(ctx, token)
			if err != nil {
				return "", err
			}
			claims = c
			return c.UID, nil
		},
		Authorize: func(ctx context.Context, subject string) error {
			if !found {
				e.metricInc(MetricAuthzDenied)
				return newError(KindForbidden, "ACL permission denied", "")
			}
			return e.Check(ctx, subject, requestTarget(req), req.Route, req.Method)
		},
	}
	if found && policy.Validate != nil {
		deps.Validate = func(ctx context.Context) error {
			return e.validateBody(ctx, req, policy)
		}
	}

	res := flows.RunGuard(ctx, deps)
	if res.Err != nil {
		return nil, res.Err
	}

	e.metricInc(MetricGuardPassed)
	return &GuardResult{
		Subject: res.Subject,
		Claims:  claims,
		Policy:  policy,
		Public:  deps.Public,
	}, nil
}

func (e *Engine) validateBody(ctx context.Context, req *Request, policy Policy) error {
	err := policy.Validate(req.Body)
	if err == nil {
		return nil
	}
	out := wrapError(KindValidationFailed, "Validation failed", err)
	out.Desc = err.Error()
	if e.config.Security.StrictSchemaStrike {
		out.Strike = StrikeSuspicious
		e.strike(ctx, req.IP, StrikeSuspicious)
		e.recordSecurityError(ctx, "schema", out)
	}
	return out
}

// requestTarget returns the user id a request acts on: path parameter,
// then body field, then query parameter.
func requestTarget(req *Request) string {
	if v := req.Params[TargetParam]; v != "" {
		return v
	}
	if v := bodyTarget(req.Body); v != "" {
		return v
	}
	return req.Query[TargetParam]
}

func bodyTarget(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	raw, ok := payload[TargetParam]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	// Anything else still counts as a target so it cannot match a subject.
	return string(raw)
}

package goGuard

import (
	"context"
)

// IsAllowed reports whether userID may perform action (an HTTP method) on
// resourceKey (a route template). Admins are always allowed; unknown routes
// never are.
func (e *Engine) IsAllowed(ctx context.Context, userID, resourceKey, action string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	roles, err := e.roles.Roles(ctx, userID)
	if err != nil {
		return false, storageError(err)
	}
	return e.allowed(roles, resourceKey, action), nil
}

func (e *Engine) allowed(roles []string, resourceKey, action string) bool {
	if e.isAdmin(roles) {
		return true
	}
	policy, ok := e.policies.Lookup(action, resourceKey)
	if !ok {
		return false
	}
	return policy.AllowsAny(roles...)
}

func (e *Engine) isAdmin(roles []string) bool {
	for _, r := range roles {
		if r == e.config.Roles.Admin {
			return true
		}
	}
	return false
}

// Check authorizes subject against target and the route policy. A
// non-admin subject may only act on its own id when target is set.
func (e *Engine) Check(ctx context.Context, subject, target, resourceKey, action string) error {
	if err := e.ready(); err != nil {
		return err
	}
	roles, err := e.roles.Roles(ctx, subject)
	if err != nil {
		return storageError(err)
	}
	if e.isAdmin(roles) {
		return nil
	}
	if target != "" && target != subject {
		e.metricInc(MetricAuthzDenied)
		return newError(KindForbidden, "ACL permission denied", "Bad UID")
	}
	if !e.allowed(roles, resourceKey, action) {
		e.metricInc(MetricAuthzDenied)
		return newError(KindForbidden, "ACL permission denied", "")
	}
	return nil
}

// AddRoles grants roles to userID. Granting a held role is a no-op.
func (e *Engine) AddRoles(ctx context.Context, userID string, roles ...string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	if err := e.roles.AddRoles(ctx, userID, roles...); err != nil {
		return storageError(err)
	}
	return nil
}

// Roles lists the roles held by userID.
func (e *Engine) Roles(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	roles, err := e.roles.Roles(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	return roles, nil
}

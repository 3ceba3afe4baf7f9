package permission

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

const (
	// RoleEveryone is granted to every account at creation.
	RoleEveryone = "everyone"
	// RoleMembers is granted once an account is confirmed.
	RoleMembers = "members"
	// RoleAdmins short-circuits every authorization check.
	RoleAdmins = "admins"
)

// Validator checks a request body against the route's expected shape.
type Validator func(body []byte) error

// Policy describes who may call one route.
//
// A Public policy needs no token; Roles is ignored for it. BruteForce puts
// the route behind the per-IP brute-force limiter; other request/reply
// routes are not rate limited.
type Policy struct {
	Method     string
	Route      string
	Roles      []string
	Public     bool
	BruteForce bool
	Validate   Validator
}

// Key returns the canonical "METHOD route" identity of the policy.
func (p Policy) Key() string {
	return routeKey(p.Method, p.Route)
}

// AllowsAny reports whether any of roles is listed by the policy.
func (p Policy) AllowsAny(roles ...string) bool {
	if p.Public {
		return true
	}
	for _, have := range roles {
		for _, want := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Registry maps (method, route template) pairs to policies.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
	frozen   bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Policy),
	}
}

// Register adds p. Must be called before [Registry.Freeze].
func (r *Registry) Register(p Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	p.Route = strings.TrimSpace(p.Route)
	if p.Method == "" || p.Route == "" {
		return errors.New("policy method and route cannot be empty")
	}
	if !p.Public && len(p.Roles) == 0 {
		return errors.New("policy " + p.Key() + " lists no roles")
	}

	key := p.Key()
	if _, exists := r.policies[key]; exists {
		return errors.New("policy already registered: " + key)
	}
	p.Roles = append([]string(nil), p.Roles...)
	r.policies[key] = p

	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(policies ...Policy) {
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the policy for method and route template.
func (r *Registry) Lookup(method, route string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[routeKey(method, route)]
	return p, ok
}

// Policies returns all policies ordered by key.
func (r *Registry) Policies() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Count returns the number of registered policies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

func routeKey(method, route string) string {
	return strings.ToUpper(method) + " " + route
}

package goGuard

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/permission"
)

// User is the account record held by the CredentialStore.
//
// Local accounts may log in only once ConfirmedAt is set. PasswordHash
// is empty for accounts created through an external provider.
type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	ConfirmedAt  *time.Time
	RevokeBefore time.Time
	Enabled      bool
	Provider     string
	ProviderID   string
	CreatedAt    time.Time
}

// Confirmed reports whether the signup was confirmed.
func (u *User) Confirmed() bool {
	return u != nil && u.ConfirmedAt != nil
}

// NewUser is the input to CredentialStore.CreateUser.
type NewUser struct {
	DisplayName  string
	Email        string
	PasswordHash string
	Provider     string
	ProviderID   string
	Confirmed    bool
	Enabled      bool
	RevokeBefore time.Time
}

// PersistentToken is the stored row backing a persist=true token. Refresh
// only succeeds while the row still holds the presented token.
type PersistentToken struct {
	ID                   string
	UserID               string
	Token                string
	UserAgent            string
	ExternalRefreshToken string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ExternalProfile is a verified identity handed over by an OAuth
// collaborator.
type ExternalProfile struct {
	Provider     string
	ProviderID   string
	DisplayName  string
	Email        string
	RefreshToken string
}

// CredentialStore is the durable user and persistent-token store.
//
// Lookups of missing rows return an error matching ErrNotFound. Driver
// failures return an error matching ErrStorageUnavailable.
type CredentialStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, providerID string) (*User, error)
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	UpdatePassword(ctx context.Context, userID, hash string, revokeBefore time.Time) error
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	SetRevokeBefore(ctx context.Context, userID string, at time.Time) error
	ConfirmUser(ctx context.Context, userID string, at time.Time) error
	RevokeBeforeAll(ctx context.Context) (map[string]time.Time, error)
	PurgeUnconfirmed(ctx context.Context, createdBefore time.Time) (int64, error)

	CreatePersistentToken(ctx context.Context, t PersistentToken) error
	// ReplacePersistentToken swaps oldToken for newToken only if the row for
	// (userID, oldToken) still exists.
	ReplacePersistentToken(ctx context.Context, userID, oldToken, newToken string) (bool, error)
	DeletePersistentToken(ctx context.Context, userID, token string) error
	DeletePersistentTokenByID(ctx context.Context, userID, id string) (bool, error)
	DeletePersistentTokens(ctx context.Context, userID string) error
	ListPersistentTokens(ctx context.Context, userID string) ([]PersistentToken, error)
}

// RoleStore resolves and grants role memberships.
type RoleStore = permission.RoleStore

// Notifier delivers signup confirmation tokens.
type Notifier interface {
	SendConfirmation(ctx context.Context, user *User, token string) error
}

// GeoLocator resolves an IP to a display location for audit records.
type GeoLocator interface {
	Lookup(ip string) string
}

type noopNotifier struct{}

func (noopNotifier) SendConfirmation(context.Context, *User, string) error { return nil }

type noopGeo struct{}

func (noopGeo) Lookup(string) string { return "" }

// Claims is the verified token payload.
type Claims = jwt.Claims

// Policy is a route policy.
type Policy = permission.Policy

// RateProfile tunes one brute-force limiter flavour.
type RateProfile = rate.Profile

// BruteforceProfile is the default request/reply limiter profile.
func BruteforceProfile() RateProfile { return rate.BruteforceProfile() }

// SocketProfile is the default message limiter profile.
func SocketProfile() RateProfile { return rate.SocketProfile() }

// AuditEvent is one record of an audit stream.
type AuditEvent = audit.Event

// AuditStream names an audit stream.
type AuditStream = audit.Stream

// AuditMemory is the memory snapshot attached to audit events.
type AuditMemory = audit.Memory

const (
	StreamActivity  = audit.StreamActivity
	StreamSecurity  = audit.StreamSecurity
	StreamClientLog = audit.StreamClientLog
)

// AuditStore persists drained audit batches and serves them back.
type AuditStore interface {
	InsertEvents(ctx context.Context, stream AuditStream, events []AuditEvent) error
	QueryEvents(ctx context.Context, stream AuditStream, from, to time.Time, limit int) ([]AuditEvent, error)
}

// Protocol distinguishes request/reply traffic from socket messages.
type Protocol uint8

const (
	ProtocolRequest Protocol = iota
	ProtocolMessage
)

// Request is the transport-neutral view of an inbound request. Header keys
// are lower-case. Route is the registered template, Path the resolved URL
// including its query string.
type Request struct {
	IP       string
	Headers  map[string]string
	Method   string
	Route    string
	Path     string
	Params   map[string]string
	Query    map[string]string
	Body     []byte
	Protocol Protocol
}

// Header returns the named header, case-insensitively.
func (r *Request) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// BearerToken returns the Authorization header with any "Bearer " prefix
// removed.
func (r *Request) BearerToken() string {
	v := strings.TrimSpace(r.Header("authorization"))
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

// GuardResult describes a request that passed the guard.
type GuardResult struct {
	Subject string
	Claims  *Claims
	Policy  Policy
	Public  bool
}

// BanEntry is one row of the banned-IP listing.
type BanEntry struct {
	IP           string
	Suspicious   int
	Malicious    int
	RateLimitKey string
	Hash         string
	TTL          time.Duration
}

// IssueResult carries a freshly signed token.
type IssueResult struct {
	Token     string
	UserID    string
	Persist   bool
	ExpiresAt time.Time
}

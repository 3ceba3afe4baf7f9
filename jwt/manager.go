package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// PurposeConfirm marks a signup confirmation token.
const PurposeConfirm = "confirm"

var (
	// ErrTokenExpired is returned by Parse when the signature verifies but
	// the token is past its expiry. The claims are returned alongside it.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any signature, format or claim failure
	// other than expiry.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds signer settings.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string
	// Now overrides the clock used for issuing and validating. Defaults to
	// time.Now.
	Now func() time.Time
}

// Claims is the bearer token payload.
//
// Origin is the issued-at of the first token in a refresh chain; refreshed
// tokens keep it while IssuedAt moves forward. IssuedMS repeats iat in
// milliseconds so revocation can order tokens within one second.
type Claims struct {
	UID      string `json:"uid"`
	Persist  bool   `json:"persist"`
	Origin   int64  `json:"oat"`
	IssuedMS int64  `json:"iat_ms,omitempty"`
	Purpose  string `json:"pur,omitempty"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the issue instant at millisecond precision when the
// token carries iat_ms, else iat. Zero when both are absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c == nil {
		return time.Time{}
	}
	if c.IssuedMS > 0 {
		return time.UnixMilli(c.IssuedMS)
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// OriginTime returns the refresh chain origin.
func (c *Claims) OriginTime() time.Time {
	if c == nil || c.Origin == 0 {
		return c.IssuedAtTime()
	}
	return time.Unix(c.Origin, 0)
}

// Manager signs and parses tokens.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 16 {
			return nil, errors.New("hs256 secret must be at least 16 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.TTL
}

// Issue signs a bearer token for uid. A zero origin starts a new refresh
// chain at the current time.
func (j *Manager) Issue(uid string, persist bool, origin time.Time) (string, *Claims, error) {
	now := j.config.Now()
	if origin.IsZero() {
		origin = now
	}
	claims := &Claims{
		UID:      uid,
		Persist:  persist,
		Origin:   origin.Unix(),
		IssuedMS: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TTL)),
			Issuer:    j.config.Issuer,
		},
	}

	token, err := j.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// IssuePurpose signs a single-purpose token such as a signup confirmation.
func (j *Manager) IssuePurpose(uid, purpose string, ttl time.Duration) (string, error) {
	if purpose == "" || ttl <= 0 {
		return "", errors.New("purpose token requires purpose and ttl")
	}
	now := j.config.Now()
	claims := &Claims{
		UID:     uid,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    j.config.Issuer,
		},
	}
	return j.sign(claims)
}

func (j *Manager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Parse verifies the signature and claims of a bearer token.
//
// Expired tokens with a good signature return their claims together with
// ErrTokenExpired. Purpose tokens are rejected here.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr)
	if claims != nil && claims.Purpose != "" {
		return nil, ErrTokenInvalid
	}
	return claims, err
}

// ParsePurpose verifies a single-purpose token and returns its subject.
func (j *Manager) ParsePurpose(tokenStr, purpose string) (string, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.Purpose != purpose {
		return "", ErrTokenInvalid
	}
	return claims.UID, nil
}

func (j *Manager) parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.getVerifyKey()
	})
	if err != nil {
		// The parser verifies the signature before validating claims, so an
		// expiry-only failure carries trustworthy claims.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) && claims.UID != "" {
			return claims, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.UID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 private key not configured")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

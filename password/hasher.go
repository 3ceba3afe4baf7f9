package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a supported hash family.
type Algorithm string

const (
	// Argon2id is used for every new hash unless configured otherwise.
	Argon2id Algorithm = "argon2id"
	// Bcrypt is accepted for verification of imported accounts and may be
	// selected for new hashes.
	Bcrypt Algorithm = "bcrypt"
)

var (
	// ErrTooShort is returned by Hash for passwords below MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrUnknownFormat is returned for stored hashes no algorithm claims.
	ErrUnknownFormat = errors.New("unknown password hash format")
)

// Config selects the algorithm and its cost parameters.
type Config struct {
	Algorithm   Algorithm
	MinLength   int
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

// DefaultConfig returns interactive-login argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Algorithm:   Argon2id,
		MinLength:   8,
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

// Hasher hashes new passwords with the configured algorithm and verifies
// stored hashes of either family.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = Argon2id
	}
	if cfg.MinLength <= 0 {
		return nil, errors.New("password min length must be > 0")
	}
	switch cfg.Algorithm {
	case Argon2id:
		if err := validateArgon2(cfg); err != nil {
			return nil, err
		}
	case Bcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, errors.New("bcrypt cost out of range")
		}
	default:
		return nil, errors.New("unsupported password algorithm")
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns an encoded hash of password. The bytes are used exactly as
// provided, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.config.MinLength {
		return "", ErrTooShort
	}
	if h.config.Algorithm == Bcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(password), h.config.BcryptCost)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return hashArgon2(password, h.config)
}

// Verify reports whether password matches encoded. A malformed hash is an
// error, a mismatch is not.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch detect(encoded) {
	case Argon2id:
		return verifyArgon2(password, encoded)
	case Bcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownFormat
	}
}

// NeedsRehash reports whether encoded was produced by another algorithm or
// with weaker parameters than the current configuration.
func (h *Hasher) NeedsRehash(encoded string) bool {
	algo := detect(encoded)
	if algo != h.config.Algorithm {
		return true
	}
	if algo == Bcrypt {
		cost, err := bcrypt.Cost([]byte(encoded))
		return err != nil || cost < h.config.BcryptCost
	}
	parsed, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != parsed.keyLength
}

func detect(encoded string) Algorithm {
	switch {
	case strings.HasPrefix(encoded, "$"+string(Argon2id)+"$"):
		return Argon2id
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return Bcrypt
	default:
		return ""
	}
}

package goGuard

import (
	"errors"
	"net/http"
)

// ErrorKind classifies every failure the engine returns to callers.
type ErrorKind uint8

const (
	// KindInternal marks a fault that matches no other kind.
	KindInternal ErrorKind = iota
	// KindInvalid marks a malformed or unverifiable credential.
	KindInvalid
	// KindExpired marks a credential past its lifetime.
	KindExpired
	// KindRevoked marks a credential invalidated by revoke-before or logout.
	KindRevoked
	// KindDisabled marks a disabled account.
	KindDisabled
	// KindForbidden marks an authorization denial, including subject/target mismatch.
	KindForbidden
	// KindNotFound marks an unknown resource.
	KindNotFound
	// KindRateLimited marks a request rejected by the brute-force limiter.
	KindRateLimited
	// KindBanned marks a request from a banned source IP.
	KindBanned
	// KindStorageUnavailable marks a cache or database failure.
	KindStorageUnavailable
	// KindValidationFailed marks a request shape violation.
	KindValidationFailed
)

var kindNames = [...]string{
	KindInternal:           "internal",
	KindInvalid:            "invalid",
	KindExpired:            "expired",
	KindRevoked:            "revoked",
	KindDisabled:           "disabled",
	KindForbidden:          "forbidden",
	KindNotFound:           "not_found",
	KindRateLimited:        "rate_limited",
	KindBanned:             "banned",
	KindStorageUnavailable: "storage_unavailable",
	KindValidationFailed:   "validation_failed",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Status returns the default protocol status for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalid, KindExpired, KindRevoked, KindDisabled:
		return http.StatusUnauthorized
	case KindForbidden, KindBanned:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// StrikeKind identifies the strike counter an event increments.
type StrikeKind uint8

const (
	// StrikeNone means the failure is not strike-worthy.
	StrikeNone StrikeKind = iota
	// StrikeSuspicious increments the suspicious counter.
	StrikeSuspicious
	// StrikeMalicious increments the malicious counter.
	StrikeMalicious
)

func (s StrikeKind) String() string {
	switch s {
	case StrikeSuspicious:
		return "suspicious"
	case StrikeMalicious:
		return "malicious"
	default:
		return "none"
	}
}

// Error is the single error type surfaced by engine operations.
//
// Msg, Status and Desc map one-to-one onto the response contract. errors.Is
// matches two *Error values by Kind, so callers test against the Err*
// sentinels below.
type Error struct {
	Kind   ErrorKind
	Msg    string
	Status int
	Desc   string
	Strike StrikeKind
	cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Desc != "" {
		msg += ": " + e.Desc
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports kind equality with another *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, msg, desc string) *Error {
	return &Error{
		Kind:   kind,
		Msg:    msg,
		Status: kind.Status(),
		Desc:   desc,
	}
}

func wrapError(kind ErrorKind, msg string, cause error) *Error {
	e := newError(kind, msg, "")
	e.cause = cause
	return e
}

func (e *Error) withStrike(s StrikeKind) *Error {
	e.Strike = s
	return e
}

func (e *Error) withStatus(status int) *Error {
	e.Status = status
	return e
}

var (
	// ErrInvalid matches any KindInvalid error.
	ErrInvalid = newError(KindInvalid, "Invalid token", "")
	// ErrExpired matches any KindExpired error.
	ErrExpired = newError(KindExpired, "Expired token", "")
	// ErrRevoked matches any KindRevoked error.
	ErrRevoked = newError(KindRevoked, "Revoked token", "")
	// ErrDisabled matches any KindDisabled error.
	ErrDisabled = newError(KindDisabled, "Account disabled", "")
	// ErrForbidden matches any KindForbidden error.
	ErrForbidden = newError(KindForbidden, "ACL permission denied", "")
	// ErrNotFound matches any KindNotFound error. Stores return it wrapped
	// for missing rows.
	ErrNotFound = newError(KindNotFound, "Not found", "")
	// ErrRateLimited matches any KindRateLimited error.
	ErrRateLimited = newError(KindRateLimited, "Too many requests", "")
	// ErrBanned matches any KindBanned error.
	ErrBanned = newError(KindBanned, "IP blacklisted", "")
	// ErrStorageUnavailable matches any KindStorageUnavailable error. Stores
	// wrap driver failures with it.
	ErrStorageUnavailable = newError(KindStorageUnavailable, "Storage unavailable", "")
	// ErrValidationFailed matches any KindValidationFailed error.
	ErrValidationFailed = newError(KindValidationFailed, "Validation failed", "")

	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorItem is one entry of the response error list.
type ErrorItem struct {
	Msg    string `json:"msg"`
	Status int    `json:"status"`
	Desc   string `json:"desc,omitempty"`
}

// ErrorList maps any error returned by the engine onto the response
// contract. Errors that are not *Error collapse into a generic internal
// failure so no detail leaks to clients.
func ErrorList(err error) []ErrorItem {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return []ErrorItem{{Msg: "Internal error", Status: http.StatusInternalServerError}}
	}
	status := e.Status
	if status == 0 {
		status = e.Kind.Status()
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Kind == KindStorageUnavailable {
		return []ErrorItem{{Msg: msg, Status: status}}
	}
	return []ErrorItem{{Msg: msg, Status: status, Desc: e.Desc}}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StrikeOf returns the strike classification carried by err.
func StrikeOf(err error) StrikeKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Strike
	}
	return StrikeNone
}

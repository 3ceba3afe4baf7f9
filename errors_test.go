package goGuard

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := newError(KindRevoked, "Revoked token", "User logged out")
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected kind match")
	}
	if errors.Is(err, ErrExpired) {
		t.Fatalf("different kinds must not match")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindRevoked {
		t.Fatalf("KindOf must see through wrapping")
	}
}

func TestErrorListContract(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []ErrorItem
	}{
		{"nil", nil, nil},
		{"plain", errors.New("boom"), []ErrorItem{{Msg: "Internal error", Status: http.StatusInternalServerError}}},
		{
			"forbidden",
			newError(KindForbidden, "ACL permission denied", "Bad UID"),
			[]ErrorItem{{Msg: "ACL permission denied", Status: http.StatusForbidden, Desc: "Bad UID"}},
		},
		{
			"storage hides detail",
			wrapError(KindStorageUnavailable, "Storage unavailable", errors.New("dial tcp 10.0.0.1:5432")),
			[]ErrorItem{{Msg: "Storage unavailable", Status: http.StatusServiceUnavailable}},
		},
		{
			"ids status override",
			newError(KindBanned, "IP blacklisted", "1.2.3.4 has been banned").withStatus(http.StatusUnauthorized),
			[]ErrorItem{{Msg: "IP blacklisted", Status: http.StatusUnauthorized, Desc: "1.2.3.4 has been banned"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ErrorList(tc.err)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("item %d: expected %+v, got %+v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestKindStatusMapping(t *testing.T) {
	cases := map[ErrorKind]int{
		KindInvalid:            http.StatusUnauthorized,
		KindExpired:            http.StatusUnauthorized,
		KindRevoked:            http.StatusUnauthorized,
		KindDisabled:           http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindBanned:             http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindRateLimited:        http.StatusTooManyRequests,
		KindStorageUnavailable: http.StatusServiceUnavailable,
		KindValidationFailed:   http.StatusBadRequest,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestStorageErrorPassesClassifiedErrors(t *testing.T) {
	nf := fmt.Errorf("%w: user", ErrNotFound)
	if KindOf(storageError(nf)) != KindNotFound {
		t.Fatalf("classified errors must pass through")
	}
	if KindOf(storageError(errors.New("eof"))) != KindStorageUnavailable {
		t.Fatalf("unclassified errors must become storage failures")
	}
}

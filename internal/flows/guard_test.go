package flows

import (
	"context"
	"errors"
	"testing"
)

func TestRunGuardStopsAtFirstFailure(t *testing.T) {
	var calls []string
	fail := errors.New("no")
	step := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			calls = append(calls, name)
			return err
		}
	}

	deps := GuardDeps{
		Inspect:  step("inspect", nil),
		Validate: step("validate", fail),
		Authenticate: func(context.Context) (string, error) {
			calls = append(calls, "authenticate")
			return "u1", nil
		},
		Authorize: func(context.Context, string) error {
			calls = append(calls, "authorize")
			return nil
		},
	}

	res := RunGuard(context.Background(), deps)
	if res.Step != GuardStepValidate || !errors.Is(res.Err, fail) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(calls) != 2 {
		t.Fatalf("later steps ran: %v", calls)
	}
}

func TestRunGuardPublicSkipsAuth(t *testing.T) {
	deps := GuardDeps{
		Inspect: func(context.Context) error { return nil },
		Public:  true,
		Authenticate: func(context.Context) (string, error) {
			t.Fatal("authenticate called for public route")
			return "", nil
		},
	}
	if res := RunGuard(context.Background(), deps); res.Step != GuardStepNone || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunGuardPassesSubjectToAuthorize(t *testing.T) {
	var got string
	deps := GuardDeps{
		Inspect:      func(context.Context) error { return nil },
		Authenticate: func(context.Context) (string, error) { return "u7", nil },
		Authorize: func(_ context.Context, subject string) error {
			got = subject
			return nil
		},
	}
	res := RunGuard(context.Background(), deps)
	if res.Err != nil || res.Subject != "u7" || got != "u7" {
		t.Fatalf("unexpected result %+v (authorize saw %q)", res, got)
	}
}

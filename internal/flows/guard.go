package flows

import "context"

// GuardStep names the stage of the request guard that stopped a request.
type GuardStep int

const (
	GuardStepNone GuardStep = iota
	GuardStepInspect
	GuardStepValidate
	GuardStepAuthenticate
	GuardStepAuthorize
)

func (s GuardStep) String() string {
	switch s {
	case GuardStepInspect:
		return "inspect"
	case GuardStepValidate:
		return "validate"
	case GuardStepAuthenticate:
		return "authenticate"
	case GuardStepAuthorize:
		return "authorize"
	default:
		return "none"
	}
}

// GuardDeps are the four request checks. Validate may be nil when the
// route declares no body validator.
type GuardDeps struct {
	Inspect      func(ctx context.Context) error
	Validate     func(ctx context.Context) error
	Public       bool
	Authenticate func(ctx context.Context) (subject string, err error)
	Authorize    func(ctx context.Context, subject string) error
}

// GuardResult reports where the request stopped, if it did.
type GuardResult struct {
	Step    GuardStep
	Err     error
	Subject string
}

// RunGuard runs inspect, validate, authenticate and authorize in order and
// stops at the first failure. Public routes skip the last two.
func RunGuard(ctx context.Context, deps GuardDeps) GuardResult {
	if err := deps.Inspect(ctx); err != nil {
		return GuardResult{Step: GuardStepInspect, Err: err}
	}
	if deps.Validate != nil {
		if err := deps.Validate(ctx); err != nil {
			return GuardResult{Step: GuardStepValidate, Err: err}
		}
	}
	if deps.Public {
		return GuardResult{}
	}

	subject, err := deps.Authenticate(ctx)
	if err != nil {
		return GuardResult{Step: GuardStepAuthenticate, Err: err}
	}
	if err := deps.Authorize(ctx, subject); err != nil {
		return GuardResult{Step: GuardStepAuthorize, Err: err, Subject: subject}
	}
	return GuardResult{Subject: subject}
}

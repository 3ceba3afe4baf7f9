package permission

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedBody is returned when a body is not a JSON object.
	ErrMalformedBody = errors.New("malformed body")
	// ErrUnknownField is returned when a body carries a property the route
	// does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrMissingField is returned when a required property is absent.
	ErrMissingField = errors.New("missing field")
)

// Strict builds a Validator accepting only JSON objects whose top-level
// properties are all listed in allowed and which contain every required
// property. An empty body is accepted when nothing is required.
func Strict(required []string, allowed ...string) Validator {
	known := make(map[string]struct{}, len(allowed)+len(required))
	for _, f := range allowed {
		known[f] = struct{}{}
	}
	for _, f := range required {
		known[f] = struct{}{}
	}

	return func(body []byte) error {
		if len(body) == 0 {
			if len(required) > 0 {
				return fmt.Errorf("%w: %s", ErrMissingField, required[0])
			}
			return nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return ErrMalformedBody
		}
		for name := range obj {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownField, name)
			}
		}
		for _, name := range required {
			if _, ok := obj[name]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingField, name)
			}
		}
		return nil
	}
}

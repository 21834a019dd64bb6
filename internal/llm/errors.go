package llm

import (
	"errors"
	"fmt"
)

// ProviderError reports a failed generation call. Status is the upstream HTTP
// status when one was received, 0 otherwise.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm: %s/%s failed with status %d: %s", e.Provider, e.Model, e.Status, e.Message)
	}
	return fmt.Sprintf("llm: %s/%s failed: %s", e.Provider, e.Model, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) HTTPStatusCode() int {
	return e.Status
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// StatusCode extracts an upstream HTTP status from err, if any.
func StatusCode(err error) (int, bool) {
	var sc httpStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	if sc.HTTPStatusCode() == 0 {
		return 0, false
	}
	return sc.HTTPStatusCode(), true
}

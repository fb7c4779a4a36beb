package ipam

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the failure class surfaced to the API layer.
type Code string

const (
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeBadPolicy      Code = "BAD_POLICY"
	CodeNoSpace        Code = "NO_SPACE"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Failure is the structured error every allocator-internal problem is
// resolved into before it reaches a caller. Raw store errors never cross
// the package boundary.
type Failure struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// HTTPStatus maps the failure class to the status the HTTP layer writes.
func (f *Failure) HTTPStatus() int {
	switch f.Code {
	case CodeBadRequest, CodeBadPolicy, CodeNoSpace:
		return http.StatusBadRequest
	case CodeRetryExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsFailure unwraps err into a *Failure when one is in the chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func badRequest(format string, args ...any) *Failure {
	return &Failure{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func badPolicy(message string) *Failure {
	return &Failure{Code: CodeBadPolicy, Message: message}
}

func noSpace(poolName, pool string, prefixLen int) *Failure {
	return &Failure{
		Code:    CodeNoSpace,
		Message: fmt.Sprintf("No available /%d in %s", prefixLen, pool),
		Details: map[string][]string{poolName + "_conflicts": {"exhausted"}},
	}
}

func internalFailure(err error) *Failure {
	return &Failure{Code: CodeInternal, Message: "Internal error", Details: err.Error()}
}

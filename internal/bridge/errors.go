package bridge

import "fmt"

// Error codes returned to the UI layer.
const (
	CodeRouteRequestFailed = "RouteRequestFailed"
	CodeInvalidArguments   = "InvalidArguments"
	CodeNotImplemented     = "NotImplemented"
	CodeRateLimited        = "RateLimited"
)

// MethodError is the error half of a reply envelope.
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *MethodError) Error() string { return e.Code + ": " + e.Message }

func routeFailed(err error) *MethodError {
	return &MethodError{Code: CodeRouteRequestFailed, Message: err.Error()}
}

func invalidArgs(format string, args ...any) *MethodError {
	return &MethodError{Code: CodeInvalidArguments, Message: fmt.Sprintf(format, args...)}
}

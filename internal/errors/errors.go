package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is the wire-level error kind returned to clients.
type ErrorCode string

const (
	ErrBadRequest           ErrorCode = "bad_request"            // 400
	ErrForbidden            ErrorCode = "forbidden"              // 403
	ErrMethodNotAllowed     ErrorCode = "method_not_allowed"     // 405
	ErrUnsupportedMediaType ErrorCode = "unsupported_media_type" // 415
	ErrRateLimit            ErrorCode = "rate_limit"             // 429
	ErrServerError          ErrorCode = "server_error"           // 500
	ErrTimeout              ErrorCode = "timeout"                // 504
	ErrShareTooLarge        ErrorCode = "share_data_too_large"   // 413
	ErrInvalidShare         ErrorCode = "invalid_share_data"     // 400
)

// Category groups error codes by who is at fault and what the caller should do.
type Category string

const (
	CategoryClientInput      Category = "client_input_error"
	CategoryAuthorization    Category = "authorization_error"
	CategoryRateLimit        Category = "rate_limit_error"
	CategoryTimeout          Category = "timeout_error"
	CategoryMisconfiguration Category = "server_misconfiguration"
	CategoryUpstream         Category = "upstream_failure"
	CategoryCodec            Category = "codec_error"
)

// MiroyoError is a structured error with a client-facing code and HTTP status.
// Message and Err are for logs only and never leave the process.
type MiroyoError struct {
	Code     ErrorCode
	Status   int
	Category Category
	Message  string
	Err      error

	// fromModel marks causes returned by the model provider. Their text
	// may echo user input.
	fromModel bool
}

// Error implements the error interface.
func (e *MiroyoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *MiroyoError) Unwrap() error {
	return e.Err
}

// NewBadRequest creates a 400 error for an invalid request body.
func NewBadRequest(msg string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrBadRequest,
		Status:   400,
		Category: CategoryClientInput,
		Message:  msg,
	}
}

// NewMethodNotAllowed creates a 405 error for a non-POST request.
func NewMethodNotAllowed(method string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrMethodNotAllowed,
		Status:   405,
		Category: CategoryClientInput,
		Message:  fmt.Sprintf("method %s not allowed", method),
	}
}

// NewUnsupportedMediaType creates a 415 error for a non-JSON content type.
func NewUnsupportedMediaType(contentType string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrUnsupportedMediaType,
		Status:   415,
		Category: CategoryClientInput,
		Message:  fmt.Sprintf("unsupported content type %q", contentType),
	}
}

// NewForbidden creates a 403 error for a cross-site request.
func NewForbidden(msg string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrForbidden,
		Status:   403,
		Category: CategoryAuthorization,
		Message:  msg,
	}
}

// NewRateLimited creates a 429 error raised by the local limiter.
func NewRateLimited(identity string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrRateLimit,
		Status:   429,
		Category: CategoryRateLimit,
		Message:  fmt.Sprintf("rate limit exceeded for %s", identity),
	}
}

// NewUpstreamRateLimited creates a 429 error raised by the model provider.
func NewUpstreamRateLimited(err error) *MiroyoError {
	return &MiroyoError{
		Code:      ErrRateLimit,
		Status:    429,
		Category:  CategoryRateLimit,
		Message:   "model provider rate limited the request",
		Err:       err,
		fromModel: true,
	}
}

// NewTimeout creates a 504 error when the model does not answer in time.
func NewTimeout(err error) *MiroyoError {
	return &MiroyoError{
		Code:      ErrTimeout,
		Status:    504,
		Category:  CategoryTimeout,
		Message:   "model call timed out",
		Err:       err,
		fromModel: true,
	}
}

// NewMisconfigured creates a 500 error for operator misconfiguration.
func NewMisconfigured(msg string) *MiroyoError {
	return &MiroyoError{
		Code:     ErrServerError,
		Status:   500,
		Category: CategoryMisconfiguration,
		Message:  msg,
	}
}

// NewUpstream creates a 500 error for an unexpected model failure.
func NewUpstream(err error) *MiroyoError {
	return &MiroyoError{
		Code:      ErrServerError,
		Status:    500,
		Category:  CategoryUpstream,
		Message:   "model call failed",
		Err:       err,
		fromModel: true,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The cause is kept in Err for logging; Message stays generic.
func NewInternal(err error) *MiroyoError {
	return &MiroyoError{
		Code:     ErrServerError,
		Status:   500,
		Category: CategoryUpstream,
		Message:  "an internal error occurred",
		Err:      err,
	}
}

// NewShareTooLarge creates a 413 error when a Result is too big to share.
func NewShareTooLarge(max, actual int) *MiroyoError {
	return &MiroyoError{
		Code:     ErrShareTooLarge,
		Status:   413,
		Category: CategoryCodec,
		Message:  fmt.Sprintf("share data exceeds maximum size: %d bytes (max %d)", actual, max),
	}
}

// NewInvalidShare creates a 400 error for an unreadable share token.
func NewInvalidShare(err error) *MiroyoError {
	return &MiroyoError{
		Code:     ErrInvalidShare,
		Status:   400,
		Category: CategoryCodec,
		Message:  "invalid share data",
		Err:      err,
	}
}

// LoggableCause returns the cause to log, or nil when it came from the
// model provider. Model failures are logged once, by status and message,
// where the call is made.
func (e *MiroyoError) LoggableCause() error {
	if e.fromModel {
		return nil
	}
	return e.Err
}

// Is checks if an error is (or wraps) a MiroyoError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MiroyoError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// From returns err as a MiroyoError, wrapping unknown errors as internal.
func From(err error) *MiroyoError {
	var mErr *MiroyoError
	if stderrors.As(err, &mErr) {
		return mErr
	}
	return NewInternal(err)
}

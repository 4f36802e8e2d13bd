package unifiedllm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind names the class of a model call failure. It labels logs and
// metrics and decides whether a call is retried.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAccessDenied   ErrorKind = "access_denied"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindRateLimit      ErrorKind = "rate_limit"
	KindServer         ErrorKind = "server"
	KindContentFilter  ErrorKind = "content_filter"
	KindContextLength  ErrorKind = "context_length"
	KindProvider       ErrorKind = "provider"
	KindTimeout        ErrorKind = "timeout"
	KindAbort          ErrorKind = "aborted"
	KindNetwork        ErrorKind = "network"
	KindConfiguration  ErrorKind = "configuration"
	KindEmptyResponse  ErrorKind = "empty_response"
	KindCancelled      ErrorKind = "cancelled"
	KindUnknown        ErrorKind = "unknown"
)

// retryableKinds lists the kinds worth another attempt. KindProvider defers
// to ProviderError.Retryable.
var retryableKinds = map[ErrorKind]bool{
	KindRateLimit: true,
	KindServer:    true,
	KindNetwork:   true,
	KindTimeout:   true,
	KindUnknown:   true,
}

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError is a failure reported by the model provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// EmptyResponseError is returned by ExtractText when the model produced no text.
type EmptyResponseError struct{ SDKError }

// kinded is implemented by every error type of this package.
type kinded interface {
	error
	kind() ErrorKind
}

func (*ProviderError) kind() ErrorKind       { return KindProvider }
func (*AuthenticationError) kind() ErrorKind { return KindAuthentication }
func (*AccessDeniedError) kind() ErrorKind   { return KindAccessDenied }
func (*NotFoundError) kind() ErrorKind       { return KindNotFound }
func (*InvalidRequestError) kind() ErrorKind { return KindInvalidRequest }
func (*RateLimitError) kind() ErrorKind      { return KindRateLimit }
func (*ServerError) kind() ErrorKind         { return KindServer }
func (*ContentFilterError) kind() ErrorKind  { return KindContentFilter }
func (*ContextLengthError) kind() ErrorKind  { return KindContextLength }
func (*SDKError) kind() ErrorKind            { return KindUnknown }
func (*RequestTimeoutError) kind() ErrorKind { return KindTimeout }
func (*AbortError) kind() ErrorKind          { return KindAbort }
func (*NetworkError) kind() ErrorKind        { return KindNetwork }
func (*ConfigurationError) kind() ErrorKind  { return KindConfiguration }
func (*EmptyResponseError) kind() ErrorKind  { return KindEmptyResponse }

// KindOf classifies err by the outermost error of this package in its chain.
// Bare context errors are cancellations; anything else is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// IsRetryable reports whether err is safe to retry.
func IsRetryable(err error) bool {
	switch kind := KindOf(err); kind {
	case "":
		return false
	case KindProvider:
		var pe *ProviderError
		return errors.As(err, &pe) && pe.Retryable
	default:
		return retryableKinds[kind]
	}
}

// ErrorFromStatusCode maps an HTTP status code to the matching error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// attemptError converts an expired per-attempt deadline into a retryable
// RequestTimeoutError while the caller's context is still live.
func attemptError(parent context.Context, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && KindOf(err) == KindCancelled {
		return &RequestTimeoutError{SDKError: SDKError{Message: "llm request timed out", Cause: err}}
	}
	return err
}

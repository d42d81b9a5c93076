package nanofetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	// KindRedirection is a 3xx response that persisted for every attempt.
	KindRedirection Kind = iota + 1
	// KindClientError is a 4xx response. It is never retried.
	KindClientError
	// KindServerError is a 5xx response that persisted for every attempt.
	KindServerError
	// KindUnexpected is any status outside 2xx-5xx that persisted for every attempt.
	KindUnexpected
	// KindTimeoutExhausted means every attempt ran into the per-attempt timeout.
	KindTimeoutExhausted
	// KindNetworkExhausted means the last attempt failed at the transport layer.
	KindNetworkExhausted
	// KindMalformedResponse is either a non UTF-8 response (never retried)
	// or a 2xx response without the required field on every attempt.
	KindMalformedResponse
	// KindCanceled means the caller's context ended before a result was reached.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindRedirection:       "Redirection",
	KindClientError:       "ClientError",
	KindServerError:       "ServerError",
	KindUnexpected:        "Unexpected",
	KindTimeoutExhausted:  "TimeoutExhausted",
	KindNetworkExhausted:  "NetworkExhausted",
	KindMalformedResponse: "MalformedResponse",
	KindCanceled:          "Canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	// ErrRedirection is matched by errors.Is for KindRedirection failures.
	ErrRedirection = errors.New("redirection error")
	// ErrClientError is matched by errors.Is for KindClientError failures.
	ErrClientError = errors.New("client error")
	// ErrServerError is matched by errors.Is for KindServerError failures.
	ErrServerError = errors.New("server error")
	// ErrUnexpected is matched by errors.Is for KindUnexpected failures.
	ErrUnexpected = errors.New("unexpected error")
	// ErrTimeoutExhausted is matched by errors.Is for KindTimeoutExhausted failures.
	ErrTimeoutExhausted = errors.New("request timed out")
	// ErrNetworkExhausted is matched by errors.Is for KindNetworkExhausted failures.
	ErrNetworkExhausted = errors.New("network error")
	// ErrMalformedResponse is matched by errors.Is for KindMalformedResponse failures.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrCanceled is matched by errors.Is for KindCanceled failures.
	ErrCanceled = errors.New("fetch canceled")
)

var kindSentinels = map[Kind]error{
	KindRedirection:       ErrRedirection,
	KindClientError:       ErrClientError,
	KindServerError:       ErrServerError,
	KindUnexpected:        ErrUnexpected,
	KindTimeoutExhausted:  ErrTimeoutExhausted,
	KindNetworkExhausted:  ErrNetworkExhausted,
	KindMalformedResponse: ErrMalformedResponse,
	KindCanceled:          ErrCanceled,
}

const noMessage = "No message"

// FetchError is the failure half of a Result.
// It supports errors.Is against the Err* sentinel of its Kind and errors.As.
type FetchError struct {
	// Kind is the classification of the failure.
	Kind Kind
	// StatusCode is the HTTP status of the classified response, 0 for transport failures.
	StatusCode int
	// Message is the server-supplied message, when the body carried one.
	Message string
	// Detail is the human-readable description surfaced to callers.
	Detail string
	// Underlying is the transport or decoding error, if any.
	Underlying error

	retryable bool
}

func (e *FetchError) Error() string {
	if e.Detail == "" {
		return kindSentinels[e.Kind].Error()
	}
	return fmt.Sprintf("%s: %s", kindSentinels[e.Kind], e.Detail)
}

// Unwrap returns the underlying error, preserving the error chain.
func (e *FetchError) Unwrap() error {
	return e.Underlying
}

// Is enables errors.Is() compatibility with the sentinel of the error's kind.
func (e *FetchError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Transient reports whether another attempt could change the outcome.
func (e *FetchError) Transient() bool {
	return e.retryable
}

// Equal reports whether two failures carry the same classification.
// The underlying transport error is not compared.
func (e *FetchError) Equal(other *FetchError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Kind == other.Kind &&
		e.StatusCode == other.StatusCode &&
		e.Message == other.Message &&
		e.Detail == other.Detail
}

func newStatusError(kind Kind, status int, message string, retryable bool) *FetchError {
	if message == "" {
		message = noMessage
	}
	return &FetchError{
		Kind:       kind,
		StatusCode: status,
		Message:    message,
		Detail:     fmt.Sprintf("%d %s", status, message),
		retryable:  retryable,
	}
}

// KindOf returns the Kind of err, or 0 if err is not a *FetchError.
func KindOf(err error) Kind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return 0
}

// StatusForError maps a fetch failure to the HTTP status a request/response
// boundary should answer with.
//   - TimeoutExhausted: 504 Gateway Timeout
//   - ClientError: 400 Bad Request
//   - Canceled: 503 Service Unavailable
//   - anything else: 500 Internal Server Error
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch KindOf(err) {
	case KindTimeoutExhausted:
		return http.StatusGatewayTimeout
	case KindClientError:
		return http.StatusBadRequest
	case KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package nanofetch

import (
	"errors"
	"time"
)

const (
	// DefaultTimeout is the per-attempt timeout used by NewFetchRequest.
	DefaultTimeout = 3 * time.Second
	// DefaultMaxAttempts is the attempt budget used by NewFetchRequest.
	DefaultMaxAttempts = 3
	// DefaultDelay is the inter-attempt pause used by NewFetchRequest.
	DefaultDelay = 2 * time.Second
)

// FetchRequest describes one fetch call. It is passed by value and never mutated.
type FetchRequest struct {
	// Query is the resource identifier sent as the q parameter (e.g. a city name).
	Query string
	// Credential is the static API token sent as the appid parameter.
	Credential string
	// Timeout bounds each individual attempt, including reading the body.
	Timeout time.Duration
	// MaxAttempts is the attempt budget. One means no retries.
	MaxAttempts int
	// Delay is the pause between attempts.
	Delay time.Duration
}

// NewFetchRequest returns a request for query with the default timeout, budget and delay.
func NewFetchRequest(query, credential string) FetchRequest {
	return FetchRequest{
		Query:       query,
		Credential:  credential,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// Validate checks the request invariants.
func (r FetchRequest) Validate() error {
	var errs []error
	if r.Query == "" {
		errs = append(errs, errors.New("query cannot be empty"))
	}
	if r.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if r.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if r.Delay < 0 {
		errs = append(errs, errors.New("delay cannot be negative"))
	}
	return errors.Join(errs...)
}

// Result is the outcome of one fetch call: a Record on success, a *FetchError otherwise.
type Result struct {
	// Record holds the extracted fields when Err is nil.
	Record Record
	// Err holds the classified failure, nil on success.
	Err *FetchError
	// Attempts is the number of transport calls made.
	Attempts int
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// AsError returns the failure as an error, or nil on success.
// Unlike returning r.Err directly it never yields a typed nil.
func (r Result) AsError() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Equal reports whether two results carry the same outcome.
func (r Result) Equal(other Result) bool {
	if r.Attempts != other.Attempts || !r.Err.Equal(other.Err) || len(r.Record) != len(other.Record) {
		return false
	}
	for i := range r.Record {
		if r.Record[i] != other.Record[i] {
			return false
		}
	}
	return true
}

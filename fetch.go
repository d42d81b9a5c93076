package nanofetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/retry"
)

const (
	queryParam      = "q"
	credentialParam = "appid"

	successOutcome = "Success"

	detailInvalidEncoding = "Invalid encoding format"
	detailDataMissing     = "data not received"
	detailTimedOut        = "API call timed out"
)

// Fetch runs up to req.MaxAttempts attempts and returns the first success or the final classified failure.
//
// Timeouts, transport errors, 3xx, 5xx, other statuses and 2xx responses
// lacking the required field are retried while the budget lasts. A 4xx
// response or a response that is not UTF-8 ends the call immediately.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) Result {
	logger := log.FromContextOr(ctx, f.logger)
	start := time.Now()

	if err := req.Validate(); err != nil {
		result := Result{Err: &FetchError{
			Kind:       KindUnexpected,
			Detail:     fmt.Sprintf("invalid request: %v", err),
			Underlying: err,
		}}
		f.finish(logger, req, result, start)
		return result
	}

	delay := f.delay
	if delay == nil {
		delay = retry.Fixed(req.Delay)
	}
	retrier := retry.NewFixedDelayRetrier().
		WithMaxAttempts(req.MaxAttempts).
		WithDelayFunc(delay).
		WithSleep(f.sleep)
	ctx = retry.ToContext(ctx, retrier)

	var attempts int
	record, err := retry.Do(ctx, func(attempt int) (Record, error) {
		attempts = attempt
		logger.Debug("Fetch attempt", "query", req.Query, "attempt", attempt, "maxAttempts", req.MaxAttempts)

		record, err := f.attempt(ctx, req)
		if err != nil {
			f.observer.ObserveAttempt(err.Kind.String())
			logger.Warn("Fetch attempt failed",
				"query", req.Query,
				"attempt", attempt,
				"maxAttempts", req.MaxAttempts,
				"kind", err.Kind.String(),
				"status", err.StatusCode,
				"retryable", err.Transient(),
				"error", err.Error())
			return nil, err
		}

		f.observer.ObserveAttempt(successOutcome)
		return record, nil
	})

	result := Result{Record: record, Attempts: attempts}
	if err != nil {
		result.Record = nil
		result.Err = toFetchError(err)
	}

	f.finish(logger, req, result, start)
	return result
}

// FetchRecord is Fetch for callers that prefer a plain (value, error) pair.
func (f *Fetcher) FetchRecord(ctx context.Context, req FetchRequest) (Record, error) {
	result := f.Fetch(ctx, req)
	return result.Record, result.AsError()
}

func (f *Fetcher) finish(logger log.Logger, req FetchRequest, result Result, start time.Time) {
	elapsed := time.Since(start)
	if result.OK() {
		f.observer.ObserveResult(successOutcome, result.Attempts, elapsed)
		logger.Info("Fetch succeeded", "query", req.Query, "attempts", result.Attempts, "duration", elapsed)
		return
	}

	f.observer.ObserveResult(result.Err.Kind.String(), result.Attempts, elapsed)
	logger.Error("Fetch failed",
		"query", req.Query,
		"attempts", result.Attempts,
		"kind", result.Err.Kind.String(),
		"error", result.Err.Error(),
		"duration", elapsed)
}

// toFetchError converts whatever retry.Do returned into a *FetchError.
// Anything other than a *FetchError can only come from an interrupted wait.
func toFetchError(err error) *FetchError {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	return &FetchError{Kind: KindCanceled, Detail: err.Error(), Underlying: err}
}

// attempt performs a single bounded HTTP call and classifies its outcome.
func (f *Fetcher) attempt(ctx context.Context, req FetchRequest) (Record, *FetchError) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := f.newRequest(attemptCtx, req)
	if err != nil {
		return nil, &FetchError{Kind: KindUnexpected, Detail: fmt.Sprintf("building request: %v", err), Underlying: err}
	}

	res, err := f.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err, req.MaxAttempts)
	}
	defer res.Body.Close()

	if !isUTF8(res.Header.Get("Content-Type")) {
		return nil, &FetchError{
			Kind:       KindMalformedResponse,
			StatusCode: res.StatusCode,
			Detail:     detailInvalidEncoding,
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(ctx, err, req.MaxAttempts)
	}

	return f.classify(req, res.StatusCode, body)
}

// classify maps a decoded response to success or a failure kind.
// Families are checked in order 2xx, 3xx, 4xx, 5xx, then everything else.
func (f *Fetcher) classify(req FetchRequest, status int, body []byte) (Record, *FetchError) {
	var doc gjson.Result
	if gjson.ValidBytes(body) {
		doc = gjson.ParseBytes(body)
	}
	message := doc.Get("message").String()

	switch {
	case status >= 200 && status < 300:
		if record, ok := extractRecord(req.Query, doc, f.requiredField); ok {
			return record, nil
		}
		return nil, &FetchError{
			Kind:       KindMalformedResponse,
			StatusCode: status,
			Message:    message,
			Detail:     detailDataMissing,
			retryable:  true,
		}
	case status >= 300 && status < 400:
		return nil, newStatusError(KindRedirection, status, message, true)
	case status >= 400 && status < 500:
		return nil, newStatusError(KindClientError, status, message, false)
	case status >= 500 && status < 600:
		return nil, newStatusError(KindServerError, status, message, true)
	default:
		return nil, newStatusError(KindUnexpected, status, message, true)
	}
}

func (f *Fetcher) newRequest(ctx context.Context, req FetchRequest) (*http.Request, error) {
	u := *f.endpoint
	query := u.Query()
	for key, values := range f.params {
		query[key] = append(query[key], values...)
	}
	query.Set(queryParam, req.Query)
	query.Set(credentialParam, req.Credential)
	u.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, f.method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.userAgent)

	return httpReq, nil
}

// transportError classifies a failed round trip or body read.
// parent is the caller's context, not the per-attempt one: its
// cancellation ends the fetch instead of counting as a timeout.
func transportError(parent context.Context, err error, maxAttempts int) *FetchError {
	if parent.Err() != nil {
		return &FetchError{Kind: KindCanceled, Detail: parent.Err().Error(), Underlying: err}
	}

	if isTimeout(err) {
		return &FetchError{Kind: KindTimeoutExhausted, Detail: detailTimedOut, Underlying: err, retryable: true}
	}

	return &FetchError{
		Kind:       KindNetworkExhausted,
		Detail:     fmt.Sprintf("after maximum retries: %d", maxAttempts),
		Underlying: err,
		retryable:  true,
	}
}

// isTimeout checks for deadline expiry, including net.Error timeouts wrapped in url.Error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	return false
}

// isUTF8 reports whether a Content-Type header declares a UTF-8 charset.
func isUTF8(contentType string) bool {
	if contentType == "" {
		return false
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	charset := strings.ToLower(params["charset"])
	return charset == "utf-8" || charset == "utf8"
}

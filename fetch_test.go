package nanofetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/nanofetch/mocks"
)

const (
	jsonUTF8 = "application/json; charset=utf-8"

	weatherBody = `{
		"coord": {"lon": 77.6, "lat": 12.98},
		"weather": [{"id": 803, "main": "Clouds", "description": "broken clouds"}],
		"main": {"temp": 299.5, "feels_like": 299.6, "temp_min": 298.2, "temp_max": 300.1, "pressure": 1012, "humidity": 65},
		"name": "Bengaluru"
	}`
)

// step is one scripted transport outcome.
type step struct {
	status      int
	contentType string
	body        string
	err         error
	hang        bool
}

func respond(status int, body string) step {
	return step{status: status, contentType: jsonUTF8, body: body}
}

// scriptedTransport replays steps in order, repeating the last one once the script runs out.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	requests []*http.Request
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	st := s.steps[idx]
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if st.hang {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	if st.err != nil {
		return nil, st.err
	}

	header := http.Header{}
	if st.contentType != "" {
		header.Set("Content-Type", st.contentType)
	}
	return &http.Response{
		StatusCode: st.status,
		Status:     http.StatusText(st.status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(st.body)),
		Request:    req,
	}, nil
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = append(r.pauses, d)
	return ctx.Err()
}

func newTestFetcher(t *testing.T, transport http.RoundTripper, sleeper *sleepRecorder, opts ...Option) *Fetcher {
	t.Helper()

	options := append([]Option{
		WithEndpoint("https://weather.example.com/data/2.5/weather"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleeper(sleeper.Sleep),
	}, opts...)

	f, err := NewFetcher(options...)
	require.NoError(t, err)
	return f
}

func testRequest(maxAttempts int) FetchRequest {
	return FetchRequest{
		Query:       "Bengaluru",
		Credential:  "secret",
		Timeout:     time.Second,
		MaxAttempts: maxAttempts,
		Delay:       0,
	}
}

func TestFetch_Scenarios(t *testing.T) {
	t.Parallel()

	timeoutErr := &net.OpError{Op: "read", Net: "tcp", Err: &timeoutError{}}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name        string
		steps       []step
		maxAttempts int
		timeout     time.Duration
		wantKind    Kind
		wantDetail  string
		wantCalls   int
		wantPauses  int
	}{
		{
			name:        "server errors then success",
			steps:       []step{respond(500, `{}`), respond(500, `{}`), respond(200, weatherBody)},
			maxAttempts: 3,
			wantCalls:   3,
			wantPauses:  2,
		},
		{
			name:        "redirection exhausts budget",
			steps:       []step{respond(301, `{"message": "moved"}`)},
			maxAttempts: 2,
			wantKind:    KindRedirection,
			wantDetail:  "301 moved",
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "client error is terminal",
			steps:       []step{respond(401, `{"cod": 401, "message": "Invalid API key"}`)},
			maxAttempts: 3,
			wantKind:    KindClientError,
			wantDetail:  "401 Invalid API key",
			wantCalls:   1,
		},
		{
			name:        "not found without message",
			steps:       []step{respond(404, `not json`)},
			maxAttempts: 3,
			wantKind:    KindClientError,
			wantDetail:  "404 No message",
			wantCalls:   1,
		},
		{
			name:        "server error exhausts budget",
			steps:       []step{respond(503, `{"message": "down"}`)},
			maxAttempts: 3,
			wantKind:    KindServerError,
			wantDetail:  "503 down",
			wantCalls:   3,
			wantPauses:  2,
		},
		{
			name:        "server error with html body keeps retrying",
			steps:       []step{respond(503, `<html>`)},
			maxAttempts: 2,
			wantKind:    KindServerError,
			wantDetail:  "503 No message",
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "success html body on every attempt",
			steps:       []step{respond(200, `<html>`)},
			maxAttempts: 2,
			wantKind:    KindMalformedResponse,
			wantDetail:  detailDataMissing,
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "unexpected status",
			steps:       []step{respond(600, `{}`)},
			maxAttempts: 2,
			wantKind:    KindUnexpected,
			wantDetail:  "600 No message",
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "informational status is unexpected",
			steps:       []step{respond(199, `{}`), respond(200, weatherBody)},
			maxAttempts: 2,
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "required field missing on every attempt",
			steps:       []step{respond(200, `{"name": "Bengaluru"}`)},
			maxAttempts: 3,
			wantKind:    KindMalformedResponse,
			wantDetail:  detailDataMissing,
			wantCalls:   3,
			wantPauses:  2,
		},
		{
			name:        "success body that is not json counts as missing field",
			steps:       []step{respond(200, `<html>`), respond(200, weatherBody)},
			maxAttempts: 2,
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "invalid encoding is terminal",
			steps:       []step{{status: 200, contentType: "application/json", body: weatherBody}},
			maxAttempts: 3,
			wantKind:    KindMalformedResponse,
			wantDetail:  detailInvalidEncoding,
			wantCalls:   1,
		},
		{
			name:        "missing content type is terminal",
			steps:       []step{{status: 500, body: `{}`}},
			maxAttempts: 3,
			wantKind:    KindMalformedResponse,
			wantDetail:  detailInvalidEncoding,
			wantCalls:   1,
		},
		{
			name:        "transport timeout on every call",
			steps:       []step{{err: timeoutErr}},
			maxAttempts: 2,
			wantKind:    KindTimeoutExhausted,
			wantDetail:  detailTimedOut,
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "per-attempt deadline expires",
			steps:       []step{{hang: true}},
			maxAttempts: 2,
			timeout:     20 * time.Millisecond,
			wantKind:    KindTimeoutExhausted,
			wantDetail:  detailTimedOut,
			wantCalls:   2,
			wantPauses:  1,
		},
		{
			name:        "network error exhausts budget",
			steps:       []step{{err: refused}},
			maxAttempts: 3,
			wantKind:    KindNetworkExhausted,
			wantDetail:  "after maximum retries: 3",
			wantCalls:   3,
			wantPauses:  2,
		},
		{
			name:        "network error then success",
			steps:       []step{{err: refused}, respond(200, weatherBody)},
			maxAttempts: 3,
			wantCalls:   2,
			wantPauses:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := &scriptedTransport{steps: tt.steps}
			sleeper := &sleepRecorder{}
			f := newTestFetcher(t, transport, sleeper)

			req := testRequest(tt.maxAttempts)
			if tt.timeout > 0 {
				req.Timeout = tt.timeout
			}

			result := f.Fetch(context.Background(), req)

			require.Equal(t, tt.wantCalls, transport.Calls(), "transport calls")
			require.Equal(t, tt.wantCalls, result.Attempts, "reported attempts")
			require.Len(t, sleeper.pauses, tt.wantPauses, "pauses between attempts")

			if tt.wantKind == 0 {
				require.True(t, result.OK(), "unexpected failure: %v", result.AsError())
				require.NoError(t, result.AsError())
				require.Equal(t, "Bengaluru", result.Record.String("city"))
				return
			}

			require.False(t, result.OK())
			require.Nil(t, result.Record)
			require.Equal(t, tt.wantKind, result.Err.Kind)
			require.Equal(t, tt.wantDetail, result.Err.Detail)
		})
	}
}

func TestFetch_SingleAttemptNeverPauses(t *testing.T) {
	t.Parallel()

	transient := []step{
		respond(500, `{}`),
		respond(302, `{}`),
		respond(700, `{}`),
		respond(200, `{}`),
		{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}},
		{err: &net.OpError{Op: "read", Net: "tcp", Err: &timeoutError{}}},
	}

	for _, st := range transient {
		transport := &scriptedTransport{steps: []step{st}}
		sleeper := &sleepRecorder{}
		f := newTestFetcher(t, transport, sleeper)

		result := f.Fetch(context.Background(), testRequest(1))

		require.False(t, result.OK())
		require.Equal(t, 1, transport.Calls())
		require.Empty(t, sleeper.pauses)
	}
}

func TestFetch_ClientErrorsNeverRetry(t *testing.T) {
	t.Parallel()

	for status := 400; status < 500; status++ {
		transport := &scriptedTransport{steps: []step{respond(status, `{"message": "nope"}`)}}
		f := newTestFetcher(t, transport, &sleepRecorder{})

		result := f.Fetch(context.Background(), testRequest(5))

		require.Equal(t, 1, transport.Calls(), "status %d", status)
		require.Equal(t, KindClientError, result.Err.Kind, "status %d", status)
		require.ErrorIs(t, result.AsError(), ErrClientError)
	}
}

func TestFetch_ServerErrorsThenSuccessUseWholeBudget(t *testing.T) {
	t.Parallel()

	for maxAttempts := 1; maxAttempts <= 5; maxAttempts++ {
		steps := make([]step, 0, maxAttempts)
		for i := 0; i < maxAttempts-1; i++ {
			steps = append(steps, respond(502, `{}`))
		}
		steps = append(steps, respond(200, weatherBody), respond(500, `{}`))

		transport := &scriptedTransport{steps: steps}
		f := newTestFetcher(t, transport, &sleepRecorder{})

		result := f.Fetch(context.Background(), testRequest(maxAttempts))

		require.True(t, result.OK(), "maxAttempts %d", maxAttempts)
		require.Equal(t, maxAttempts, transport.Calls())
	}
}

func TestFetch_Idempotent(t *testing.T) {
	t.Parallel()

	scripts := [][]step{
		{respond(500, `{}`), respond(200, weatherBody)},
		{respond(301, `{"message": "moved"}`)},
		{respond(401, `{"message": "Invalid API key"}`)},
	}

	for _, script := range scripts {
		first := newTestFetcher(t, &scriptedTransport{steps: script}, &sleepRecorder{}).
			Fetch(context.Background(), testRequest(3))
		second := newTestFetcher(t, &scriptedTransport{steps: script}, &sleepRecorder{}).
			Fetch(context.Background(), testRequest(3))

		require.True(t, first.Equal(second))
	}
}

func TestFetch_FixedDelay(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(500, `{}`)}}
	sleeper := &sleepRecorder{}
	f := newTestFetcher(t, transport, sleeper)

	req := testRequest(3)
	req.Delay = 2 * time.Second
	f.Fetch(context.Background(), req)

	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.pauses)
}

func TestFetch_DelayFuncOverridesRequestDelay(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(500, `{}`)}}
	sleeper := &sleepRecorder{}
	f := newTestFetcher(t, transport, sleeper, WithDelayFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Second
	}))

	f.Fetch(context.Background(), testRequest(3))

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.pauses)
}

func TestFetch_RecordExtraction(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(200, weatherBody)}}
	f := newTestFetcher(t, transport, &sleepRecorder{})

	record, err := f.FetchRecord(context.Background(), testRequest(1))
	require.NoError(t, err)

	require.Equal(t, []string{"city", "weather", "temp", "feels_like", "temp_min", "temp_max", "pressure", "humidity"}, record.Names())
	require.Equal(t, "broken clouds", record.String("weather"))
	temp, ok := record.Float("temp")
	require.True(t, ok)
	require.InDelta(t, 299.5, temp, 0.0001)
	require.Equal(t, "1012", record.String("pressure"))
}

func TestFetch_RequiredFieldOption(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(200, `{"data": {"symbol": "ACME", "price": 12.5}}`)}}
	f := newTestFetcher(t, transport, &sleepRecorder{}, WithRequiredField("data"))

	record, err := f.FetchRecord(context.Background(), testRequest(1))
	require.NoError(t, err)
	require.Equal(t, []string{"city", "symbol", "price"}, record.Names())
}

func TestFetch_RequestShape(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(200, weatherBody)}}
	f := newTestFetcher(t, transport, &sleepRecorder{},
		WithQueryParam("units", "metric"),
		WithUserAgent("weather-job/1.0"),
		WithMethod("post"),
	)

	_, err := f.FetchRecord(context.Background(), testRequest(1))
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bengaluru", req.URL.Query().Get("q"))
	assert.Equal(t, "secret", req.URL.Query().Get("appid"))
	assert.Equal(t, "metric", req.URL.Query().Get("units"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "weather-job/1.0", req.Header.Get("User-Agent"))
}

func TestFetch_InvalidRequest(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{respond(200, weatherBody)}}
	f := newTestFetcher(t, transport, &sleepRecorder{})

	req := testRequest(0)
	result := f.Fetch(context.Background(), req)

	require.False(t, result.OK())
	require.Equal(t, KindUnexpected, result.Err.Kind)
	require.Contains(t, result.Err.Detail, "max attempts must be at least 1")
	require.Zero(t, transport.Calls())
}

func TestFetch_CallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	transport := &scriptedTransport{steps: []step{respond(500, `{}`)}}
	f := newTestFetcher(t, transport, &sleepRecorder{}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	result := f.Fetch(ctx, testRequest(3))

	require.False(t, result.OK())
	require.Equal(t, KindCanceled, result.Err.Kind)
	require.ErrorIs(t, result.AsError(), ErrCanceled)
	require.Equal(t, 1, transport.Calls())
}

func TestFetch_LogsAttempts(t *testing.T) {
	t.Parallel()

	logger := &mocks.FakeLogger{}
	transport := &scriptedTransport{steps: []step{respond(500, `{}`), respond(200, weatherBody)}}
	f := newTestFetcher(t, transport, &sleepRecorder{}, WithLogger(logger))

	result := f.Fetch(context.Background(), testRequest(3))
	require.True(t, result.OK())

	require.Equal(t, 2, logger.DebugCallCount())
	require.Equal(t, 1, logger.WarnCallCount())
	msg, kv := logger.WarnArgsForCall(0)
	require.Equal(t, "Fetch attempt failed", msg)
	require.Contains(t, kv, "ServerError")
	require.Equal(t, 1, logger.InfoCallCount())
	require.Zero(t, logger.ErrorCallCount())
}

type recordingObserver struct {
	attempts []string
	results  []string
}

func (o *recordingObserver) ObserveAttempt(outcome string) {
	o.attempts = append(o.attempts, outcome)
}

func (o *recordingObserver) ObserveResult(outcome string, attempts int, elapsed time.Duration) {
	o.results = append(o.results, outcome)
}

func TestFetch_Observer(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	transport := &scriptedTransport{steps: []step{respond(500, `{}`), respond(301, `{}`)}}
	f := newTestFetcher(t, transport, &sleepRecorder{}, WithObserver(observer))

	f.Fetch(context.Background(), testRequest(2))

	require.Equal(t, []string{"ServerError", "Redirection"}, observer.attempts)
	require.Equal(t, []string{"Redirection"}, observer.results)
}

func TestIsUTF8(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"application/json; charset=utf-8":  true,
		"application/json; charset=UTF-8":  true,
		"application/json;charset=utf8":    true,
		"text/plain; charset=utf-8":        true,
		"application/json":                 false,
		"application/json; charset=latin1": false,
		"":                                 false,
		"garbage;;;":                       false,
	}

	for contentType, want := range tests {
		assert.Equal(t, want, isUTF8(contentType), contentType)
	}
}

// timeoutError implements net.Error with Timeout() returning true.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

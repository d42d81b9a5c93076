package nanofetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/retry"
)

// DefaultEndpoint is the current-weather endpoint queried when none is configured.
const DefaultEndpoint = "https://api.openweathermap.org/data/2.5/weather"

// DefaultRequiredField is the top-level body field whose presence marks a successful response.
const DefaultRequiredField = "main"

const defaultUserAgent = "nanofetch/0"

// Observer receives the outcome of every attempt and of every fetch call.
// Outcome labels are "Success" or a Kind name.
type Observer interface {
	ObserveAttempt(outcome string)
	ObserveResult(outcome string, attempts int, elapsed time.Duration)
}

// Option is a function that configures a Fetcher during creation.
type Option func(*Fetcher) error

// Fetcher performs resilient fetches against one JSON endpoint.
// It holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	// Endpoint queried on every attempt
	endpoint *url.URL
	// HTTP client used for making requests
	client *http.Client
	// HTTP method, GET unless configured
	method string
	// User-Agent header value for requests
	userAgent string
	// Top-level body field required for success
	requiredField string
	// Extra query parameters sent with every attempt
	params url.Values

	logger   log.Logger
	observer Observer
	sleep    retry.SleepFunc
	delay    retry.DelayFunc
}

// NewFetcher creates a Fetcher for DefaultEndpoint unless WithEndpoint says otherwise.
//
// Example:
//
//	fetcher, err := nanofetch.NewFetcher(
//	    nanofetch.WithQueryParam("units", "metric"),
//	    nanofetch.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	result := fetcher.Fetch(ctx, nanofetch.NewFetchRequest("Bengaluru", apiKey))
func NewFetcher(options ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:        newDefaultHTTPClient(),
		method:        http.MethodGet,
		userAgent:     defaultUserAgent,
		requiredField: DefaultRequiredField,
		params:        url.Values{},
		logger:        log.Noop(),
		observer:      noopObserver{},
		sleep:         retry.TimerSleep,
	}

	if err := WithEndpoint(DefaultEndpoint)(f); err != nil {
		return nil, err
	}

	for _, option := range options {
		if option == nil { // allow for easy optional options
			continue
		}
		if err := option(f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// newDefaultHTTPClient returns a client that dials a fresh connection for every attempt.
func newDefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   true,
		},
	}
}

// WithEndpoint sets the URL queried on every attempt. Only HTTP and HTTPS are supported.
func WithEndpoint(endpoint string) Option {
	return func(f *Fetcher) error {
		if endpoint == "" {
			return errors.New("endpoint cannot be empty")
		}

		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("parsing url: %w", err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("only HTTP and HTTPS URLs are supported")
		}

		f.endpoint = u
		return nil
	}
}

// WithHTTPClient configures a custom HTTP client for making requests.
// Per-attempt timeouts are applied through the request context, so the
// client's own Timeout only needs to be set if a hard upper bound is wanted.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) error {
		if client == nil {
			return errors.New("httpClient is nil")
		}

		f.client = client
		return nil
	}
}

// WithMethod sets the HTTP method used for every attempt.
func WithMethod(method string) Option {
	return func(f *Fetcher) error {
		switch method = strings.ToUpper(method); method {
		case http.MethodGet, http.MethodPost:
			f.method = method
			return nil
		default:
			return fmt.Errorf("unsupported method %q", method)
		}
	}
}

// WithUserAgent configures a custom User-Agent header for HTTP requests.
func WithUserAgent(agent string) Option {
	return func(f *Fetcher) error {
		f.userAgent = agent
		return nil
	}
}

// WithRequiredField sets the top-level body field that must be present for a 2xx response to count as success.
func WithRequiredField(field string) Option {
	return func(f *Fetcher) error {
		if field == "" {
			return errors.New("required field cannot be empty")
		}
		f.requiredField = field
		return nil
	}
}

// WithQueryParam adds a query parameter sent with every attempt, e.g. units=metric.
// The q and appid parameters are reserved for the request's query and credential.
func WithQueryParam(key, value string) Option {
	return func(f *Fetcher) error {
		if key == queryParam || key == credentialParam {
			return fmt.Errorf("query parameter %q is reserved", key)
		}
		f.params.Add(key, value)
		return nil
	}
}

// WithLogger configures the logger used when the context carries none.
func WithLogger(logger log.Logger) Option {
	return func(f *Fetcher) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		f.logger = logger
		return nil
	}
}

// WithObserver registers an Observer, typically the Prometheus instrumentation.
func WithObserver(observer Observer) Option {
	return func(f *Fetcher) error {
		if observer == nil {
			return errors.New("observer cannot be nil")
		}
		f.observer = observer
		return nil
	}
}

// WithSleeper replaces the function used to pause between attempts.
func WithSleeper(sleep retry.SleepFunc) Option {
	return func(f *Fetcher) error {
		if sleep == nil {
			return errors.New("sleeper cannot be nil")
		}
		f.sleep = sleep
		return nil
	}
}

// WithDelayFunc overrides the request's fixed Delay with a function of the attempt index.
func WithDelayFunc(delay retry.DelayFunc) Option {
	return func(f *Fetcher) error {
		f.delay = delay
		return nil
	}
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string)                    {}
func (noopObserver) ObserveResult(string, int, time.Duration) {}

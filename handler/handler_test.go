package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/config"
	"github.com/grafana/nanofetch/handler"
	"github.com/grafana/nanofetch/internal/testhelpers"
	"github.com/grafana/nanofetch/metrics"
	"github.com/grafana/nanofetch/mocks"
	"github.com/grafana/nanofetch/pipeline"
)

type fakeRunner struct {
	requests []nanofetch.FetchRequest
	report   pipeline.Report
	err      error
}

func (f *fakeRunner) Run(_ context.Context, req nanofetch.FetchRequest) (pipeline.Report, error) {
	f.requests = append(f.requests, req)
	f.report.Query = req.Query
	return f.report, f.err
}

var record = nanofetch.Record{
	{Name: "city", Value: "Bengaluru"},
	{Name: "weather", Value: "haze"},
	{Name: "temp", Value: 298.5},
}

var _ = Describe("Handler", func() {
	var (
		cfg    *config.Config
		runner *fakeRunner
		h      *handler.Handler
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.DefaultConfig()
		cfg.API.Key = "secret"
		runner = &fakeRunner{report: pipeline.Report{
			RunID:      "run-1",
			Record:     record,
			CSVPath:    "/tmp/weather.csv",
			ObjectPath: "oss://weather-bucket/weather.csv",
		}}
		h = handler.New(cfg, runner, testhelpers.NewTestLogger())
	})

	Context("when the run succeeds", func() {
		It("should return 200 with the record and object path", func() {
			resp := h.Handle(ctx, handler.Event{City: "Bengaluru"})

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Body).To(Equal("Weather data for Bengaluru saved to oss://weather-bucket/weather.csv"))
			Expect(resp.Data).To(Equal(record))
			Expect(resp.ObjectPath).To(Equal("oss://weather-bucket/weather.csv"))
			Expect(resp.RunID).To(Equal("run-1"))
		})

		It("should use the configured city when the event names none", func() {
			h.Handle(ctx, handler.Event{})

			Expect(runner.requests).To(HaveLen(1))
			Expect(runner.requests[0].Query).To(Equal("Bengaluru"))
			Expect(runner.requests[0].Credential).To(Equal("secret"))
			Expect(runner.requests[0].Timeout).To(Equal(nanofetch.DefaultTimeout))
		})

		It("should report the CSV path when nothing was uploaded", func() {
			runner.report.ObjectPath = ""

			resp := h.Handle(ctx, handler.Event{City: "Mysuru"})

			Expect(resp.Body).To(Equal("Weather data for Mysuru saved to /tmp/weather.csv"))
			Expect(resp.ObjectPath).To(BeEmpty())
		})
	})

	Context("when the API key is missing", func() {
		It("should return 500 without running", func() {
			cfg.API.Key = ""

			resp := h.Handle(ctx, handler.Event{City: "Bengaluru"})

			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(resp.Body).To(ContainSubstring("API key not set"))
			Expect(runner.requests).To(BeEmpty())
		})
	})

	DescribeTable("failure status mapping",
		func(err error, wantStatus int, wantBody string) {
			runner.err = err

			resp := h.Handle(ctx, handler.Event{City: "Bengaluru"})

			Expect(resp.StatusCode).To(Equal(wantStatus))
			Expect(resp.Body).To(Equal(wantBody))
			Expect(resp.Data).To(BeNil())
		},
		Entry("timeout", &nanofetch.FetchError{Kind: nanofetch.KindTimeoutExhausted, Detail: "API call timed out"},
			http.StatusGatewayTimeout, "API call timed out"),
		Entry("client error", &nanofetch.FetchError{Kind: nanofetch.KindClientError, StatusCode: 404, Detail: "404 city not found"},
			http.StatusBadRequest, "404 city not found"),
		Entry("server error", &nanofetch.FetchError{Kind: nanofetch.KindServerError, StatusCode: 503, Detail: "503 No message"},
			http.StatusInternalServerError, "503 No message"),
		Entry("network", &nanofetch.FetchError{Kind: nanofetch.KindNetworkExhausted, Detail: "after maximum retries: 3"},
			http.StatusInternalServerError, "after maximum retries: 3"),
		Entry("canceled", &nanofetch.FetchError{Kind: nanofetch.KindCanceled},
			http.StatusServiceUnavailable, "fetch canceled"),
		Entry("persistence failure", errors.New("save record: disk full"),
			http.StatusInternalServerError, "save record: disk full"),
	)

	Context("when failures are logged", func() {
		It("should warn with the mapped status", func() {
			logger := &mocks.FakeLogger{}
			h = handler.New(cfg, runner, logger)
			runner.err = &nanofetch.FetchError{Kind: nanofetch.KindClientError, StatusCode: 401, Detail: "401 Invalid API key"}

			h.Handle(ctx, handler.Event{City: "Bengaluru"})

			Expect(logger.WarnCallCount()).To(Equal(1))
			msg, args := logger.WarnArgsForCall(0)
			Expect(msg).To(Equal("Event failed"))
			Expect(args).To(ContainElement(http.StatusBadRequest))
		})
	})

	Describe("HTTP surface", func() {
		var (
			server *httptest.Server
			reg    *prometheus.Registry
		)

		BeforeEach(func() {
			reg = prometheus.NewRegistry()
			metrics.NewMetrics(reg).ObserveRun("success")
			server = httptest.NewServer(handler.NewMux(h, reg))
			DeferCleanup(server.Close)
		})

		post := func(body string) (*http.Response, handler.Response) {
			resp, err := http.Post(server.URL+"/fetch", "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var decoded handler.Response
			Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
			return resp, decoded
		}

		It("should decode the event and mirror the status code", func() {
			resp, decoded := post(`{"city":"Chennai"}`)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))
			Expect(decoded.StatusCode).To(Equal(http.StatusOK))
			Expect(decoded.Data).To(Equal(record))
			Expect(decoded.RunID).To(Equal("run-1"))
			Expect(runner.requests[0].Query).To(Equal("Chennai"))
		})

		It("should keep record field order in the JSON body", func() {
			resp, err := http.Post(server.URL+"/fetch", "application/json", strings.NewReader(`{}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"data":{"city":"Bengaluru","weather":"haze","temp":298.5}`))
		})

		It("should treat an empty body as the empty event", func() {
			resp, _ := post("")

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(runner.requests[0].Query).To(Equal(cfg.API.City))
		})

		It("should reject malformed events", func() {
			resp, decoded := post(`{"city":`)

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decoded.Body).To(HavePrefix("invalid event"))
			Expect(runner.requests).To(BeEmpty())
		})

		It("should only accept POST on /fetch", func() {
			resp, err := http.Get(server.URL + "/fetch")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})

		It("should serve health and metrics", func() {
			resp, err := http.Get(server.URL + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal("ok"))

			resp, err = http.Get(server.URL + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			body, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(string(body)).To(ContainSubstring(`nanofetch_pipeline_runs_total{status="success"} 1`))
		})
	})
})

// Package apisession implements the API Session (Request Lifecycle
// Engine): who-am-i, optional news, submit, poll-to-complete, download,
// best-effort delete.
package apisession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ecmwf-go/retriever/internal/errs"
	"github.com/ecmwf-go/retriever/internal/httpclient"
	"github.com/ecmwf-go/retriever/internal/logsink"
	"github.com/ecmwf-go/retriever/internal/rangedl"
	"github.com/ecmwf-go/retriever/internal/tracing"
)

const (
	apiRetries     = 7
	apiRetryDelay  = time.Second
	apiCallTimeout = 30 * time.Second

	defaultRetryAfter = 5

	instrumentationName = "github.com/ecmwf-go/retriever/internal/apisession"
)

// LogFunc matches the log callback contract from spec.md §1: the core
// only depends on this signature, not on how the sink is constructed.
type LogFunc func(message string, level logsink.Level, requestID int)

// Session is the stateful per-request conversation with the remote API.
type Session struct {
	baseURL   string
	service   string
	email     string
	key       string
	requestID int

	log    LogFunc
	client *httpclient.Client
	tracer trace.Tracer

	disableSSLValidation bool
	reportNews           bool
	retryAfter           int
	location             string
	messageOffset        int
	status               string
	done                 bool
}

// Option configures a Session at construction.
type Option func(*Session)

func WithRequestID(id int) Option { return func(s *Session) { s.requestID = id } }
func WithDisableSSLValidation(v bool) Option {
	return func(s *Session) { s.disableSSLValidation = v }
}

// WithNews controls whether the constructor fetches and logs the
// service's news feed (default true, per the original's report_news).
func WithNews(enabled bool) Option {
	return func(s *Session) { s.reportNews = enabled }
}

// WithRetryAfterOverride sets the initial poll interval, overriding the
// default of 5 seconds (still subject to later Retry-After updates).
func WithRetryAfterOverride(seconds int) Option {
	return func(s *Session) { s.retryAfter = seconds }
}

// WithTracer attaches an OpenTelemetry tracer; every apiRequest call is
// then wrapped in a retriever.api.request span. Defaults to a no-op
// tracer when not supplied.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// New constructs a Session, performing the who-am-i call (and, unless
// disabled, the news call) immediately.
func New(ctx context.Context, baseURL, service, email, key string, log LogFunc, opts ...Option) (*Session, error) {
	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		service:    service,
		email:      email,
		key:        key,
		log:        log,
		client:     httpclient.New(false),
		retryAfter: defaultRetryAfter,
		reportNews: true,
		tracer:     noop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.disableSSLValidation {
		s.client = httpclient.New(true)
	}

	s.logf("Connecting to ECMWF API at %s", logsink.Info, s.baseURL)

	_, whoAmI, err := s.apiRequest(ctx, fmt.Sprintf("%s/who-am-i", s.baseURL), "GET", nil)
	if err != nil {
		return nil, err
	}
	s.logf("Registered as %s", logsink.Info, whoAmIName(whoAmI))

	if s.reportNews {
		_, news, err := s.apiRequest(ctx, fmt.Sprintf("%s/%s/news", s.baseURL, s.service), "GET", nil)
		if err == nil {
			if text, ok := news["news"].(string); ok {
				for _, line := range strings.Split(text, "\n") {
					if len(line) > 0 {
						s.logf("News: %s", logsink.Info, line)
					}
				}
			}
		}
	}

	return s, nil
}

func whoAmIName(body map[string]any) string {
	if fullName, ok := body["full_name"].(string); ok && fullName != "" {
		return fullName
	}
	if uid, ok := body["uid"].(string); ok {
		return fmt.Sprintf("user '%s'", uid)
	}
	return "unknown user"
}

// TransferRequest submits request, polls until complete, and — if target
// is non-empty — downloads the completed artifact there.
func (s *Session) TransferRequest(ctx context.Context, request map[string]string, target string) error {
	body, err := json.Marshal(request)
	if err != nil {
		return errs.NewApiError("failed to encode request", err)
	}

	_, content, err := s.apiRequest(ctx, fmt.Sprintf("%s/%s/requests", s.baseURL, s.service), "POST", body)
	if err != nil {
		return err
	}
	s.logf("Request submitted", logsink.Info)
	s.logf(fmt.Sprintf("Request id: %v", content["name"]), logsink.Info)

	status, _ := content["status"].(string)
	if status != s.status {
		s.status = status
		s.logf("Request is %s", logsink.Info, status)
	}

	for !s.done {
		select {
		case <-ctx.Done():
			return errs.NewApiError("context cancelled while polling", ctx.Err())
		case <-time.After(time.Duration(s.retryAfter) * time.Second):
		}

		_, polled, err := s.apiRequest(ctx, s.location, "GET", nil)
		if err != nil {
			return err
		}
		content = polled
		newStatus, _ := content["status"].(string)
		if newStatus != s.status {
			s.status = newStatus
			s.logf("Request is %s", logsink.Info, s.status)
		}
		if newStatus == "complete" {
			s.done = true
		}
	}

	if target != "" {
		if err := s.download(ctx, content, target); err != nil {
			return err
		}
	}

	// Best-effort cleanup: errors are swallowed per the propagation policy.
	_, _, _ = s.apiRequest(ctx, s.location, "DELETE", nil)

	return nil
}

func (s *Session) download(ctx context.Context, content map[string]any, target string) error {
	href, _ := content["href"].(string)
	if href == "" {
		return errs.NewApiError("completed job body missing href", nil)
	}

	f, err := os.Create(target)
	if err != nil {
		return errs.NewHttpError("opening target file", err)
	}
	defer f.Close()

	start := time.Now()
	dl := rangedl.New(s.disableSSLValidation).WithTracer(s.tracer)
	size, err := dl.DownloadSerial(ctx, href, f, 1_048_576, 20)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if elapsed > 0 {
		rate := float64(size) / elapsed.Seconds()
		s.logf("Transfer rate %s/s", logsink.Info, humanize.Bytes(uint64(rate)))
	}

	sniffTransferredType(f, s.logf)

	return nil
}

// sniffTransferredType peeks the first 261 bytes of the downloaded
// artifact and logs a best-effort content-type guess.
func sniffTransferredType(f *os.File, logf func(string, logsink.Level, ...any)) {
	buf := make([]byte, 261)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return
	}
	kind, err := filetype.Match(buf)
	if err != nil || kind == filetype.Unknown {
		return
	}
	logf("Detected artifact type %s (%s)", logsink.Info, kind.Extension, kind.MIME.Value)
}

func (s *Session) logf(format string, level logsink.Level, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if s.log != nil {
		s.log(msg, level, s.requestID)
	}
}

// apiRequest wraps the HTTP client, appends the offset/limit suffix,
// decodes the UTF-8 JSON body, and updates session state from the
// response (location, retry-after, message offset) per spec.md §4.3.
func (s *Session) apiRequest(ctx context.Context, url, method string, payload []byte) (headersOut map[string][]string, content map[string]any, err error) {
	headers := map[string]string{
		"Accept":      "application/json",
		"From":        s.email,
		"X-ECMWF-KEY": s.key,
	}

	fullURL := fmt.Sprintf("%s/?offset=%d&limit=500", url, s.messageOffset)

	ctx, span := tracing.StartAPIRequest(ctx, s.tracer, fullURL, s.requestID)
	defer func() { tracing.End(span, err) }()

	var resp *httpclient.Response
	var lastErr error
	for attempt := 0; attempt < apiRetries; attempt++ {
		switch method {
		case "GET":
			resp, lastErr = s.client.Get(ctx, fullURL, headers, apiCallTimeout)
		case "POST":
			if len(payload) == 0 {
				return nil, nil, errs.NewApiError(fmt.Sprintf("no payload given with POST request to %s", url), nil)
			}
			resp, lastErr = s.client.Post(ctx, fullURL, payload, headers, apiCallTimeout)
		case "DELETE":
			resp, lastErr = s.client.Delete(ctx, fullURL, headers, apiCallTimeout)
		default:
			return nil, nil, errs.NewApiError(fmt.Sprintf("unknown API request type %s", method), nil)
		}

		if lastErr == nil {
			break
		}
		s.logf("Api request failed: %v", logsink.Warning, lastErr)
		time.Sleep(apiRetryDelay)
	}
	if lastErr != nil {
		return nil, nil, errs.NewApiError("failed to complete API request", lastErr)
	}

	if err := json.Unmarshal(resp.Body, &content); err != nil {
		return nil, nil, errs.NewApiError("failed to decode result", err)
	}

	if apiErr, ok := content["error"]; ok {
		return nil, nil, errs.NewApiError(fmt.Sprintf("API reported error: %v", apiErr), nil)
	}

	if messages, ok := content["messages"].([]any); ok {
		for _, m := range messages {
			s.logf("API message: %v", logsink.Info, m)
			s.messageOffset++
		}
	}

	if retryAfter := resp.Headers.Get("Retry-After"); retryAfter != "" {
		if n, err := strconv.Atoi(retryAfter); err == nil {
			s.retryAfter = n
		}
	}

	if resp.Status == 201 || resp.Status == 202 {
		s.location = resp.Headers.Get("Location")
	}

	return resp.Headers, content, nil
}

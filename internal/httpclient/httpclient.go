// Package httpclient is the thin HTTP Client Façade: GET/POST/DELETE that
// produce (headers, status, body), never follow redirects, and translate
// every transport failure into an *errs.HttpError so the API Session can
// tell transport problems apart from application-level ones.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ecmwf-go/retriever/internal/errs"
)

// Client wraps an *http.Client configured to never follow redirects, with
// an optional insecure-skip-verify toggle matching the original's
// disable_ssl_validation flag.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client. disableSSLValidation mirrors
// httplib2's disable_ssl_certificate_validation.
func New(disableSSLValidation bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if disableSSLValidation {
		transport.TLSClientConfig = insecureTLSConfig()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Response is the façade's normalized (headers, status, body) tuple.
type Response struct {
	Headers http.Header
	Status  int
	Body    []byte
}

// Get issues a GET with no redirect-following.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, headers, timeout)
}

// Post issues a POST. Unless the caller sets Content-Type explicitly, it
// defaults to application/x-www-form-urlencoded.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, headers map[string]string, timeout time.Duration) (*Response, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return c.do(ctx, http.MethodPost, rawURL, body, headers, timeout)
}

// Delete issues a DELETE with no redirect-following.
func (c *Client) Delete(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodDelete, rawURL, nil, headers, timeout)
}

// Head issues a HEAD with no redirect-following.
func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, nil, headers, timeout)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string, timeout time.Duration) (*Response, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, errs.NewHttpError(method+" "+rawURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		reqBody = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, errs.NewHttpError(method+" "+rawURL, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewHttpError(fmt.Sprintf("%s %s: reading body", method, rawURL), err)
	}

	return &Response{Headers: resp.Header, Status: resp.StatusCode, Body: data}, nil
}

// classify turns a net/http transport error into an *errs.HttpError whose
// message matches the taxonomy: name resolution, refused/reset/aborted,
// timeout, or an unknown transport exception — same buckets as
// custom_http.py's except clauses.
func classify(method, rawURL string, err error) *errs.HttpError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errs.NewHttpError(fmt.Sprintf("%s %s: could not resolve host", method, rawURL), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.NewHttpError(fmt.Sprintf("%s %s: request timed out", method, rawURL), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errs.NewHttpError(fmt.Sprintf("%s %s: connection error", method, rawURL), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.NewHttpError(fmt.Sprintf("%s %s: request timed out", method, rawURL), err)
	}

	return errs.NewHttpError(fmt.Sprintf("%s %s: other unknown exception", method, rawURL), err)
}

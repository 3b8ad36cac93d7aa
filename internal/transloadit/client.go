package transloadit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// Static errors for Transloadit client operations.
var (
	// ErrKeyNotSet is returned when no auth key is configured.
	ErrKeyNotSet = errors.New("transloadit: TRANSLOADIT_KEY is not set")
	// ErrSecretNotSet is returned when no auth secret is configured.
	ErrSecretNotSet = errors.New("transloadit: TRANSLOADIT_SECRET is not set")
	// ErrRemoteProcessing is returned when the service reports a failed assembly
	// or rejects the request outright.
	ErrRemoteProcessing = errors.New("transloadit: remote processing failed")
	// ErrJobTimeout is returned when the attempt or poll budget is exhausted.
	ErrJobTimeout = errors.New("transloadit: retry budget exhausted")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("transloadit: server error")
	// ErrRateLimited is returned when the service asks the caller to slow down.
	ErrRateLimited = errors.New("transloadit: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("transloadit: request failed")
	// ErrNoAssemblyURL is returned when an accepted assembly has no status URL to poll.
	ErrNoAssemblyURL = errors.New("transloadit: response has no assembly URL")
)

// Client defines the interface for creating assemblies.
type Client interface {
	// Create submits the assembly and blocks until it completes, fails,
	// or the retry budget is exhausted. The returned Execution is never nil.
	Create(ctx context.Context, a *Assembly) (*Execution, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	key          string
	secret       string
	baseURL      string
	httpClient   *http.Client
	maxAttempts  int
	baseBackoff  time.Duration
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
	now          func() time.Time
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAuth sets the key and secret used to sign requests.
func WithAuth(key, secret string) ClientOption {
	return func(hc *HTTPClient) {
		hc.key = key
		hc.secret = secret
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithMaxAttempts sets how many retryable failures are tolerated before giving up.
func WithMaxAttempts(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxAttempts = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.pollInterval = d
	}
}

// WithMaxPolls bounds the number of status polls per assembly.
func WithMaxPolls(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxPolls = n
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		hc.logger = l
	}
}

// NewClient creates a new Transloadit HTTP client.
// Credentials can be set via the WithAuth option. If not provided,
// they are read from TRANSLOADIT_KEY and TRANSLOADIT_SECRET.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:      "https://api2.transloadit.com",
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		maxAttempts:  5,
		baseBackoff:  1 * time.Second,
		pollInterval: 1 * time.Second,
		maxPolls:     600,
		logger:       slog.Default(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.key == "" {
		c.key = os.Getenv("TRANSLOADIT_KEY")
	}
	if c.secret == "" {
		c.secret = os.Getenv("TRANSLOADIT_SECRET")
	}

	if c.key == "" {
		return nil, ErrKeyNotSet
	}
	if c.secret == "" {
		return nil, ErrSecretNotSet
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// Create submits the assembly and waits for it to finish.
func (c *HTTPClient) Create(ctx context.Context, a *Assembly) (*Execution, error) {
	exec := newExecution()

	resp, err := c.submit(ctx, a, exec)
	if err != nil {
		return exec, err
	}

	if resp.Completed() {
		c.move(exec, StateSucceeded)
		return exec, nil
	}

	return exec, c.await(ctx, resp, exec)
}

// submit sends the create request, retrying transient failures.
func (c *HTTPClient) submit(ctx context.Context, a *Assembly, exec *Execution) (*Response, error) {
	backoff := c.baseBackoff

	for {
		exec.Attempts++
		resp, err := c.post(ctx, a)
		if err == nil {
			exec.Response = resp
			if resp.Failed() {
				c.move(exec, StateFailed)
				return nil, fmt.Errorf("%w: %s", ErrRemoteProcessing, describe(resp))
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			c.move(exec, StateFailed)
			return nil, err
		}
		if !isRetryable(err) {
			c.move(exec, StateFailed)
			return nil, fmt.Errorf("%w: %w", ErrRemoteProcessing, err)
		}

		exec.Failures++
		if exec.Failures >= c.maxAttempts {
			c.move(exec, StateRetriesExhausted)
			return nil, fmt.Errorf("%w: create failed after %d attempts: %w", ErrJobTimeout, exec.Attempts, err)
		}

		c.logger.Warn("assembly create failed, retrying",
			slog.String("template_id", a.TemplateID()),
			slog.Int("attempt", exec.Attempts),
			slog.String("error", err.Error()),
		)

		if err := sleep(ctx, retryDelay(err, backoff)); err != nil {
			c.move(exec, StateFailed)
			return nil, err
		}
		backoff *= 2
		c.move(exec, StateSubmitted)
	}
}

// await polls the assembly status URL until a terminal status is reached.
func (c *HTTPClient) await(ctx context.Context, resp *Response, exec *Execution) error {
	c.move(exec, StatePolling)

	statusURL := resp.AssemblySSLURL
	if statusURL == "" {
		c.move(exec, StateFailed)
		return fmt.Errorf("%w: %w", ErrRemoteProcessing, ErrNoAssemblyURL)
	}

	backoff := c.baseBackoff
	for {
		if exec.Polls >= c.maxPolls {
			c.move(exec, StateRetriesExhausted)
			return fmt.Errorf("%w: assembly %s still %s after %d polls", ErrJobTimeout, resp.AssemblyID, exec.Response.OK, exec.Polls)
		}

		if err := sleep(ctx, c.pollInterval); err != nil {
			c.move(exec, StateFailed)
			return err
		}

		exec.Polls++
		status, err := c.get(ctx, statusURL)
		if err != nil {
			if ctx.Err() != nil {
				c.move(exec, StateFailed)
				return err
			}
			if !isRetryable(err) {
				c.move(exec, StateFailed)
				return fmt.Errorf("%w: %w", ErrRemoteProcessing, err)
			}
			exec.Failures++
			if exec.Failures >= c.maxAttempts {
				c.move(exec, StateRetriesExhausted)
				return fmt.Errorf("%w: polling failed after %d failures: %w", ErrJobTimeout, exec.Failures, err)
			}
			if err := sleep(ctx, retryDelay(err, backoff)); err != nil {
				c.move(exec, StateFailed)
				return err
			}
			backoff *= 2
			c.move(exec, StatePolling)
			continue
		}

		exec.Response = status
		switch {
		case status.Failed():
			c.move(exec, StateFailed)
			return fmt.Errorf("%w: %s", ErrRemoteProcessing, describe(status))
		case status.Completed():
			c.move(exec, StateSucceeded)
			return nil
		default:
			c.move(exec, StatePolling)
		}
	}
}

// move transitions the execution and logs the change.
func (c *HTTPClient) move(exec *Execution, to State) {
	from := exec.State
	if err := exec.transition(to); err != nil {
		c.logger.Error("rejected assembly state transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return
	}
	c.logger.Debug("assembly state",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("transitions", exec.Transitions),
	)
}

// post sends one create request.
func (c *HTTPClient) post(ctx context.Context, a *Assembly) (*Response, error) {
	paramsJSON, signature, err := a.signedParams(c.key, c.secret, c.now())
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := a.writeMultipart(mw, paramsJSON, signature); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assemblies", &body)
	if err != nil {
		return nil, fmt.Errorf("transloadit: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

// get fetches an assembly status document.
func (c *HTTPClient) get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transloadit: create request: %w", err)
	}
	return c.do(req)
}

// do performs a single HTTP request and decodes the status document.
func (c *HTTPClient) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("transloadit: context cancelled: %w", ctxErr)
		}
		return nil, &retryableError{err: fmt.Errorf("transloadit: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("transloadit: read response: %w", err)}
	}

	var doc Response
	decodeErr := json.Unmarshal(respBody, &doc)

	if decodeErr == nil && doc.rateLimited() {
		return nil, &retryableError{
			err:     fmt.Errorf("%w: %s", ErrRateLimited, doc.Message),
			retryIn: time.Duration(doc.Info.RetryIn * float64(time.Second)),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		if decodeErr == nil && doc.Error != "" {
			return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, describe(&doc))
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("transloadit: unmarshal response: %w", decodeErr)
	}

	return &doc, nil
}

// describe renders the error part of a status document.
func describe(r *Response) string {
	switch {
	case r.Error != "" && r.Message != "":
		return r.Error + ": " + r.Message
	case r.Error != "":
		return r.Error
	default:
		return string(r.OK)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("transloadit: context cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err     error
	retryIn time.Duration
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// retryDelay prefers the service's retry hint over the local backoff.
func retryDelay(err error, backoff time.Duration) time.Duration {
	var re *retryableError
	if errors.As(err, &re) && re.retryIn > 0 {
		return re.retryIn
	}
	return backoff
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the narrow surface the sync engine and workflows use to talk to
// one upstream system. Implementations translate every non-2xx response and
// network failure into an *APIError.
type Client interface {
	Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error)
	Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// APIError carries the upstream system name, HTTP-equivalent status and the
// upstream message body.
type APIError struct {
	System  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.System, e.Status, e.Message)
}

func (e *APIError) IsConflict() bool {
	return e.Status == http.StatusConflict
}

func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// AsAPIError unwraps err to an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type restClient struct {
	system   string
	baseURL  string
	username string
	password string
	token    string
	tokenHdr string
	http     *http.Client
	limiter  <-chan time.Time
}

type Option func(*restClient)

// WithBasicAuth sets basic-auth credentials on every request.
func WithBasicAuth(username, password string) Option {
	return func(c *restClient) {
		c.username = username
		c.password = password
	}
}

// WithTokenAuth sets a static token header on every request.
func WithTokenAuth(header, token string) Option {
	return func(c *restClient) {
		c.tokenHdr = header
		c.token = token
	}
}

// WithRateLimit throttles requests to n per minute.
func WithRateLimit(perMinute int64) Option {
	return func(c *restClient) {
		if perMinute > 0 {
			c.limiter = time.Tick(time.Minute / time.Duration(perMinute))
		}
	}
}

func NewClient(system string, baseURL string, opts ...Option) (Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New(system + " base url is empty")
	}
	c := &restClient{
		system:  system,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *restClient) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *restClient) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+path, body)
}

func (c *restClient) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, c.baseURL+path, body)
}

func (c *restClient) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, c.baseURL+path, nil)
}

func (c *restClient) do(ctx context.Context, method string, endpoint string, body interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		<-c.limiter
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.token != "" {
		hdr := c.tokenHdr
		if hdr == "" {
			hdr = "Authorization"
		}
		req.Header.Set(hdr, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{System: c.system, Status: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			System:  c.system,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(respBody)),
		}
	}

	return json.RawMessage(respBody), nil
}

func rateLimitFromEnv(key string) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

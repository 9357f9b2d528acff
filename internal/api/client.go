// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sushi/internal/auth"
	"github.com/jason-s-yu/sushi/internal/middleware"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNetwork covers transport failures, timeouts and 5xx responses. It is
	// always recoverable.
	ErrNetwork = errors.New("network failure")
	// ErrAuth means the credential is missing, expired or refused. The caller
	// must re-authenticate.
	ErrAuth = errors.New("authentication failure")
	// ErrRejected means the server understood the request and refused it.
	ErrRejected = errors.New("request rejected")
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// RejectedError carries the server's result_message for a refused request.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("request rejected: %s", e.Message)
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Config configures a Client.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	Logger    *logrus.Logger
	Transport http.RoundTripper
}

// Client talks to the game service's request/response API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// NewClient builds a client. Requests are logged through the middleware
// transport when a logger is set.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rt := cfg.Transport
	if cfg.Logger != nil {
		rt = middleware.LogTransport(cfg.Logger, rt)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout, Transport: rt},
		now:     time.Now,
	}
}

// Token returns the bearer credential the client sends.
func (c *Client) Token() string {
	return c.token
}

// envelope is the part every response shares.
type envelope struct {
	Success       bool   `json:"success"`
	ResultMessage string `json:"result_message"`
	Error         string `json:"error"`
}

func (e envelope) message() string {
	if e.ResultMessage != "" {
		return e.ResultMessage
	}
	return e.Error
}

// raw performs the request and returns the body of a 2xx response. Status
// codes are classified; the success flag is left to the caller.
func (c *Client) raw(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := auth.Validate(c.token, c.now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("x-token", c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrNetwork, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned %d", ErrAuth, path, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrNetwork, path, resp.StatusCode, snippet(data))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var env envelope
		_ = json.Unmarshal(data, &env)
		return nil, &RejectedError{Status: resp.StatusCode, Message: env.message()}
	}
	return data, nil
}

// do performs the request, requires success=true and decodes into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrNetwork, path, err)
	}
	if !env.Success {
		return &RejectedError{Status: http.StatusOK, Message: env.message()}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrNetwork, path, err)
	}
	return nil
}

func snippet(b []byte) string {
	const n = 200
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Package client talks to the proctor API on behalf of the taker CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ErrNotLoggedIn is returned by calls that need a token before Login succeeded.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx reply decoded from the response envelope.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// Client is a small JSON client for the /api/v1 surface.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithToken starts the client with an existing bearer token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// New builds a client for baseURL (scheme and host, no trailing /api/v1).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates and keeps the issued token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: email, Password: password}, &out, false); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return &out, nil
}

// ListTests returns every test visible to the caller.
func (c *Client) ListTests(ctx context.Context) ([]model.TestSummary, error) {
	var out struct {
		Tests []model.TestSummary `json:"tests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tests", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Tests, nil
}

// GetTest fetches the taker-facing payload of a test.
func (c *Client) GetTest(ctx context.Context, id uuid.UUID) (*model.TakerTest, error) {
	var out struct {
		Test model.TakerTest `json:"test"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tests/"+id.String(), nil, &out, true); err != nil {
		return nil, err
	}
	return &out.Test, nil
}

// Submit sends the final answer map for grading. It is called exactly once per attempt.
func (c *Client) Submit(ctx context.Context, testID uuid.UUID, answers map[string]string, status model.SubmissionStatus) (*model.SubmitResult, error) {
	var out model.SubmitResult
	req := model.SubmitRequest{Answers: answers, Status: status}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tests/"+testID.String()+"/submit", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResult fetches one of the caller's graded submissions.
func (c *Client) GetResult(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error) {
	var out struct {
		Submission model.SubmissionDetail `json:"submission"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/results/"+id.String(), nil, &out, true); err != nil {
		return nil, err
	}
	return &out.Submission, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.Token()
		if token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

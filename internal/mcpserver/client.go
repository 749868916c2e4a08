package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for reaching a facegate service.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration // per request; zero means 30s
}

// FacegateClient is a pure HTTP client for the facegate session API.
type FacegateClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFacegateClient creates a new client for the facegate API.
func NewFacegateClient(cfg Config) *FacegateClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FacegateClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError represents an error response from the service.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the service and returns the response body.
func (c *FacegateClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CreateSession opens a capture session; empty scenario takes the server default.
func (c *FacegateClient) CreateSession(ctx context.Context, scenario string) (json.RawMessage, error) {
	var body any
	if scenario != "" {
		body = map[string]string{"scenario": scenario}
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions", nil, body)
}

// GetSession returns a session snapshot.
func (c *FacegateClient) GetSession(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// SubmitFrame posts one frame observation.
func (c *FacegateClient) SubmitFrame(ctx context.Context, id string, frame map[string]any) (json.RawMessage, error) {
	path := "/v1/sessions/" + url.PathEscape(id) + "/frames"
	return c.doRequest(ctx, http.MethodPost, path, nil, frame)
}

// SendSignal posts an out-of-band client signal.
func (c *FacegateClient) SendSignal(ctx context.Context, id, signal string) (json.RawMessage, error) {
	path := "/v1/sessions/" + url.PathEscape(id) + "/signals"
	return c.doRequest(ctx, http.MethodPost, path, nil, map[string]string{"signal": signal})
}

// ListAttempts returns recorded attempts, optionally for one session.
func (c *FacegateClient) ListAttempts(ctx context.Context, sessionID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session", sessionID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/attempts", q, nil)
}

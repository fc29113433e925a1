// Package chatapi is the HTTP client for the conversational backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ChatRequest is the canonical request body for the chat endpoint.
type ChatRequest struct {
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	MimeType   string `json:"mime_type,omitempty"`
	FileBase64 string `json:"file_base64,omitempty"`
}

// ChatResponse is the backend's reply. Reply is the canonical field; Answer
// is still read for backends that predate the standardization.
type ChatResponse struct {
	Reply         string `json:"reply"`
	Answer        string `json:"answer"`
	UserIntention string `json:"userintention,omitempty"`
}

// Text returns the populated reply field, preferring the canonical one.
func (r *ChatResponse) Text() string {
	if r.Reply != "" {
		return r.Reply
	}
	return r.Answer
}

// Client talks to the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a backend client for the given endpoint URL.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat posts one message and returns the parsed response. Transient failures
// (network errors and 5xx statuses) are retried with a doubling delay; any
// other non-2xx status fails immediately since a retry cannot change it.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %v", err)
	}

	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if attempt < c.maxRetries {
			c.logger.Printf("Chat backend call failed (attempt %d/%d): %v", attempt, c.maxRetries, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request: %v", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &statusError{
			status: httpResp.StatusCode,
			msg:    fmt.Sprintf("backend returned %s: %s", httpResp.Status, truncate(respBody, 200)),
		}
	}

	var resp ChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %v", err)
	}
	return &resp, nil
}

// statusError marks a completed HTTP exchange with a non-2xx status.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

// retryable reports whether another attempt could succeed: transport errors
// and server-side 5xx qualify, client errors like 400 or 404 do not.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package client provides an HTTP client for the sheetcast server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/service"
)

// DefaultServerURL is used when no server URL is configured.
const DefaultServerURL = "http://localhost:8000"

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Detail)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the REST API under /api/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. An empty baseURL selects DefaultServerURL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + "/api/v1" + path
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, target string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", c.baseURL+"/health", nil, nil)
}

// Submit creates a transcription job.
func (c *Client) Submit(ctx context.Context, source string, isolatePiano bool) (*models.Job, error) {
	body := map[string]any{"url": source, "isolate_piano": isolatePiano}
	var job models.Job
	if err := c.do(ctx, "POST", c.apiURL("/transcribe"), body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Status returns the progress view of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*service.StatusView, error) {
	var v service.StatusView
	if err := c.do(ctx, "GET", c.apiURL("/status/"+url.PathEscape(jobID)), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Result returns the full job record.
func (c *Client) Result(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, "GET", c.apiURL("/result/"+url.PathEscape(jobID)), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PianoRoll returns the visualization projection of a finished job.
func (c *Client) PianoRoll(ctx context.Context, jobID string) (*models.PianoRoll, error) {
	var roll models.PianoRoll
	if err := c.do(ctx, "GET", c.apiURL("/piano-roll/"+url.PathEscape(jobID)), nil, &roll); err != nil {
		return nil, err
	}
	return &roll, nil
}

// Stats returns pipeline statistics.
func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var s service.Stats
	if err := c.do(ctx, "GET", c.apiURL("/stats"), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Download streams an artifact into w and returns the server's file name.
func (c *Client) Download(ctx context.Context, jobID, format string, w io.Writer) (string, error) {
	u := c.apiURL(fmt.Sprintf("/download/%s/%s", url.PathEscape(jobID), url.PathEscape(format)))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}

	filename := fmt.Sprintf("%s.%s", jobID, format)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, nil
}

// StreamStatus follows the job's status stream, calling onUpdate for every
// change until the server closes the stream after a terminal state. Return
// an error from onUpdate to stop early.
func (c *Client) StreamStatus(ctx context.Context, jobID string, onUpdate func(service.StatusView) error) error {
	wsEndpoint := c.apiURL("/status/" + url.PathEscape(jobID) + "/stream")
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return readAPIError(resp)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var v service.StatusView
		if err := conn.ReadJSON(&v); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onUpdate(v); err != nil {
			return err
		}
	}
}

// Package client talks to a running devdeck API.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/mattjoyce/devdeck/internal/api"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

// DefaultAddr matches the server's default listen address.
const DefaultAddr = "http://127.0.0.1:8765"

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is a thin HTTP client for the control API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for addr ("host:port" or a full http URL).
func New(addr, token string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the normalised API address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Health(ctx context.Context) (api.HealthzResponse, error) {
	var out api.HealthzResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

// Projects rescans and lists every known project.
func (c *Client) Projects(ctx context.Context) ([]supervisor.Project, error) {
	var out []supervisor.Project
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out)
	return out, err
}

func (c *Client) Project(ctx context.Context, id string) (supervisor.Project, error) {
	var out supervisor.Project
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Start starts a project. A zero port reuses the project's last port.
func (c *Client) Start(ctx context.Context, id string, port int) (api.StartResponse, error) {
	path := "/api/projects/" + url.PathEscape(id) + "/start"
	if port != 0 {
		path += "?port=" + strconv.Itoa(port)
	}
	var out api.StartResponse
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *Client) Stop(ctx context.Context, id string) error {
	var out api.StopResponse
	return c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(id)+"/stop", nil, &out)
}

// Logs returns the retained lines from cursor since onward.
func (c *Client) Logs(ctx context.Context, id string, since uint64) (api.LogsResponse, error) {
	path := fmt.Sprintf("/api/projects/%s/logs?since=%d", url.PathEscape(id), since)
	var out api.LogsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Runs returns the recorded runs of a project, newest first.
func (c *Client) Runs(ctx context.Context, id string, limit int) ([]history.Run, error) {
	path := "/api/projects/" + url.PathEscape(id) + "/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out api.RunsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// FollowLogs streams a project's output over the WebSocket, calling fn for
// every line, until ctx ends or the server closes the stream.
func (c *Client) FollowLogs(ctx context.Context, id string, fn func(line string)) error {
	wsURL, err := c.wsURL("/api/ws/" + url.PathEscape(id))
	if err != nil {
		return err
	}
	cfg, err := websocket.NewConfig(wsURL, c.baseURL)
	if err != nil {
		return err
	}
	if c.token != "" {
		cfg.Header.Set("Authorization", "Bearer "+c.token)
	}

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return fmt.Errorf("dial log stream: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var line string
		if err := websocket.Message.Receive(conn, &line); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fn(line)
	}
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// Events reads the SSE stream, resuming after lastID, and calls fn for
// every event until ctx ends or the connection drops.
func (c *Client) Events(ctx context.Context, lastID int64, fn func(events.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	// The stream is long-lived; the client timeout would cut it.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var er api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}

	err = readSSE(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func readSSE(r io.Reader, fn func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current events.Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				current.Data = json.RawMessage(data.String())
				if current.At.IsZero() {
					current.At = time.Now()
				}
				fn(current)
			}
			current = events.Event{}
			data.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}

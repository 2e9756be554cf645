package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/livebridge/internal/api"
	"github.com/mattjoyce/livebridge/internal/events"
)

// Client reads a host's status API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL (e.g.
// http://127.0.0.1:9878). token may be empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return nil, fmt.Errorf("GET %s: %s", path, e.Error)
	}
	return resp, nil
}

// Health fetches GET /healthz.
func (c *Client) Health(ctx context.Context) (api.HealthzResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var h api.HealthzResponse
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return h, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

// Stream follows GET /events/stream from after lastID, sending each event
// to out until the stream ends or ctx is done. It returns the ID of the
// last event delivered.
func (c *Client) Stream(ctx context.Context, lastID int64, out chan<- events.Event) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events/stream", nil)
	if err != nil {
		return lastID, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))

	resp, err := c.http.Do(req)
	if err != nil {
		return lastID, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return lastID, fmt.Errorf("event stream: %s", resp.Status)
	}
	return readSSE(ctx, resp.Body, lastID, out)
}

// readSSE parses Server-Sent Events. Comments, retry hints and blocks
// without data are skipped.
func readSSE(ctx context.Context, r io.Reader, lastID int64, out chan<- events.Event) (int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var ev events.Event
	for sc.Scan() {
		line := sc.Text()
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch {
		case line == "":
			if len(ev.Data) > 0 {
				ev.At = time.Now()
				select {
				case out <- ev:
				case <-ctx.Done():
					return lastID, ctx.Err()
				}
				if ev.ID > 0 {
					lastID = ev.ID
				}
			}
			ev = events.Event{}
		case field == "":
			// comment
		case field == "id":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				ev.ID = id
			}
		case field == "event":
			ev.Type = value
		case field == "data":
			ev.Data = append(ev.Data, value...)
		}
	}
	if err := sc.Err(); err != nil {
		return lastID, err
	}
	return lastID, io.EOF
}

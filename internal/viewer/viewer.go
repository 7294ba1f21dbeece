package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeffypooo/lanmon/internal/metrics"
)

// ErrUnauthorized is returned when the agent rejects the token.
var ErrUnauthorized = errors.New("agent rejected token")

const closeInvalidToken = 4401

// Client talks to a running agent.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

// New returns a client for the agent at addr ("host:port" or a full
// http(s) URL).
func New(addr, token string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid agent address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid agent address %q: missing host", addr)
	}
	return &Client{
		base:   u,
		token:  token,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) endpoint(scheme, path string) string {
	u := *c.base
	u.Scheme = scheme
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String()
}

// Pull fetches one snapshot from /metrics.
func (c *Client) Pull(ctx context.Context) (metrics.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.base.Scheme, "/metrics"), nil)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("pulling metrics: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return metrics.Snapshot{}, ErrUnauthorized
	default:
		return metrics.Snapshot{}, fmt.Errorf("pulling metrics: unexpected status %s", resp.Status)
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// Watch subscribes to /ws and calls fn for every snapshot until ctx is done,
// the agent closes the stream or fn returns an error. A nil return means the
// stream ended normally.
func (c *Client) Watch(ctx context.Context, fn func(metrics.Snapshot) error) error {
	scheme := "ws"
	if c.base.Scheme == "https" {
		scheme = "wss"
	}
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint(scheme, "/ws"), nil)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, closeInvalidToken) {
				return ErrUnauthorized
			}
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading snapshot: %w", err)
		}
		var snap metrics.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decoding snapshot: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

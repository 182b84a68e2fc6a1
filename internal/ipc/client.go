package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Client is the IPC client used by the admin CLI to talk to a running daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// Send sends a request to the daemon and waits for the response
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.Type != MessageTypeResponse {
		return nil, fmt.Errorf("invalid response type: %s", resp.Type)
	}

	return &resp, nil
}

// ListSessions returns summaries of the daemon's live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	resp, err := c.Send(ctx, &Request{Type: MessageTypeListSessions})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, errors.New(resp.Error)
	}
	return resp.Sessions, nil
}

// RevokeSession deletes the session whose ID starts with prefix and returns
// the short ID of the revoked session.
func (c *Client) RevokeSession(ctx context.Context, prefix string) (string, error) {
	resp, err := c.Send(ctx, &Request{Type: MessageTypeRevokeSession, IDPrefix: prefix})
	if err != nil {
		return "", err
	}
	if resp.Status != StatusOK {
		return "", errors.New(resp.Error)
	}
	return resp.Revoked, nil
}

// SetTimeout sets the connection timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

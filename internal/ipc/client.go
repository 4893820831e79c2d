package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
)

const (
	// ConnectTimeout decides daemon availability.
	ConnectTimeout = 200 * time.Millisecond
	// RequestTimeout bounds one request/response round trip before the
	// caller falls back to local execution.
	RequestTimeout = 5 * time.Second
)

// Client talks to the daemon over its Unix socket. All methods are safe to
// call when no daemon runs; they return an IoError the caller treats as
// "fall back to local".
type Client struct {
	socketPath     string
	connectTimeout time.Duration
	requestTimeout time.Duration
}

// NewClient creates a client for the default socket path.
func NewClient() *Client {
	return NewClientAt(xdg.SocketPath())
}

// NewClientAt creates a client for an explicit socket path.
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath:     socketPath,
		connectTimeout: ConnectTimeout,
		requestTimeout: RequestTimeout,
	}
}

// Probe reports whether a daemon is accepting connections.
func (c *Client) Probe() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.connectTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Do sends one request line and reads one response line.
func (c *Client) Do(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.connectTimeout)
	if err != nil {
		return nil, ierr.Wrap(ierr.KindIO, "connect to daemon", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.requestTimeout)); err != nil {
		return nil, ierr.Wrap(ierr.KindIO, "set deadline", err)
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, ierr.Wrap(ierr.KindProtocol, "encode request", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return nil, ierr.Wrap(ierr.KindIO, "send request", err)
	}

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return nil, ierr.Wrap(ierr.KindIO, "read response", err)
		}
		return nil, ierr.New(ierr.KindIO, "connection closed without response")
	}

	var resp Response
	if err := json.Unmarshal(reader.Bytes(), &resp); err != nil {
		return nil, ierr.Wrap(ierr.KindProtocol, "decode response", err)
	}
	return &resp, nil
}

// Status fetches the daemon status.
func (c *Client) Status() (*Response, error) {
	return c.expect(Request{Cmd: CmdStatus}, TypeStatus)
}

// Warmup asks the daemon to pre-build the index for roots.
func (c *Client) Warmup(roots []string, respectTryExec bool) error {
	_, err := c.expect(Request{Cmd: CmdWarmup, Roots: roots, RespectTryExec: respectTryExec}, TypeOK)
	return err
}

// Search runs a ranked query through the daemon.
func (c *Client) Search(roots []string, query string, limit int, emptyMode string, respectTryExec bool) ([]Entry, error) {
	req := Request{
		Cmd:            CmdSearch,
		Roots:          roots,
		Query:          query,
		EmptyMode:      emptyMode,
		RespectTryExec: respectTryExec,
	}
	if limit > 0 {
		req.Limit = &limit
	}
	resp, err := c.expect(req, TypeEntries)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// List fetches all listable entries through the daemon.
func (c *Client) List(roots []string, respectTryExec bool) ([]Entry, error) {
	resp, err := c.expect(Request{Cmd: CmdList, Roots: roots, RespectTryExec: respectTryExec}, TypeEntries)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Launch asks the daemon to launch a desktop entry.
func (c *Client) Launch(roots []string, desktopID, action string, respectTryExec bool) error {
	req := Request{
		Cmd:            CmdLaunch,
		Roots:          roots,
		DesktopID:      desktopID,
		RespectTryExec: respectTryExec,
	}
	if action != "" {
		req.Action = &action
	}
	_, err := c.expect(req, TypeOK)
	return err
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	_, err := c.expect(Request{Cmd: CmdShutdown}, TypeOK)
	return err
}

func (c *Client) expect(req Request, wantType string) (*Response, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Type != wantType {
		return nil, ierr.Protocol("unexpected response type %q to cmd %q", resp.Type, req.Cmd)
	}
	return resp, nil
}

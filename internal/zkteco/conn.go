// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package zkteco

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/models"
)

// DefaultTimeout bounds each request/reply round trip.
const DefaultTimeout = 5 * time.Second

// DefaultPort is the terminals' factory UDP port.
const DefaultPort = 4370

// DefaultLogWindow is the fetch window used when no start is given.
const DefaultLogWindow = 7 * 24 * time.Hour

var (
	// ErrNotConnected is returned by commands issued before Connect.
	ErrNotConnected = errors.New("zkteco: not connected")

	// ErrUnauthorized means the terminal no longer recognises the session,
	// typically after a reboot. The caller should reconnect.
	ErrUnauthorized = errors.New("zkteco: session not authorized")

	// ErrRejected means the terminal answered ACK_ERROR.
	ErrRejected = errors.New("zkteco: command rejected")
)

// Options tunes a Conn. Zero values select defaults.
type Options struct {
	Timeout        time.Duration
	ReadBufferSize int
	Location       *time.Location
}

// Conn is a session with one terminal.
type Conn struct {
	host    string
	port    int
	timeout time.Duration
	bufSize int
	loc     *time.Location

	mu        sync.Mutex
	conn      net.Conn
	sessionID uint32
	replyID   uint32
}

// NewConn returns an unconnected session for host:port.
func NewConn(host string, port int, opts Options) *Conn {
	c := &Conn{
		host:    host,
		port:    port,
		timeout: opts.Timeout,
		bufSize: opts.ReadBufferSize,
		loc:     opts.Location,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.bufSize <= 0 {
		c.bufSize = DefaultReadBufferSize
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	return c
}

// Addr returns host:port.
func (c *Conn) Addr() string {
	return models.DeviceAddress(c.host, c.port)
}

// Connected reports whether the socket is open and a session adopted.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SessionID returns the session id assigned by the terminal.
func (c *Conn) SessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect opens the socket and performs the CONNECT handshake. On any
// failure the socket is closed and the Conn stays unconnected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "udp", c.Addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.Addr(), err)
	}
	c.conn = conn
	c.sessionID = 0
	c.replyID = 0

	h, _, err := c.exchangeLocked(ctx, CmdConnect, nil)
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("connect %s: %w", c.Addr(), err)
	}
	switch h.Command {
	case CmdAckUnauth:
		c.closeLocked()
		return fmt.Errorf("connect %s: %w", c.Addr(), ErrUnauthorized)
	case CmdAckError:
		c.closeLocked()
		return fmt.Errorf("connect %s: %w", c.Addr(), ErrRejected)
	}

	c.sessionID = h.SessionID
	logging.Debug().
		Str("device", c.Addr()).
		Uint32("session_id", c.sessionID).
		Msg("Terminal session established")
	return nil
}

// SendCommand sends one command and returns the raw reply packet.
//
// Timeouts, socket errors and replies without the magic prefix are
// returned as errors but leave the session usable.
func (c *Conn) SendCommand(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.roundTripLocked(ctx, command, payload)
}

func (c *Conn) exchangeLocked(ctx context.Context, command uint16, payload []byte) (Header, []byte, error) {
	reply, err := c.roundTripLocked(ctx, command, payload)
	if err != nil {
		return Header{}, nil, err
	}
	return ParseHeader(reply)
}

func (c *Conn) roundTripLocked(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	// Cancelling ctx unblocks an in-flight read instead of waiting out
	// the full timeout.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c.replyID = (c.replyID + 1) % 0x10000
	packet := BuildCommand(command, c.sessionID, c.replyID, payload)
	if _, err := c.conn.Write(packet); err != nil {
		return nil, fmt.Errorf("send %s: %w", CommandName(command), c.ctxErr(ctx, err))
	}

	buf := make([]byte, c.bufSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", CommandName(command), c.ctxErr(ctx, err))
	}
	reply := buf[:n]

	if _, _, err := ParseHeader(reply); err != nil {
		return nil, fmt.Errorf("%s reply: %w", CommandName(command), err)
	}
	return reply, nil
}

// ctxErr prefers the context error when cancellation caused err.
func (c *Conn) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// command sends and decodes, mapping ACK_UNAUTH and ACK_ERROR to errors.
func (c *Conn) command(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	reply, err := c.SendCommand(ctx, command, payload)
	if err != nil {
		return nil, err
	}
	h, body, err := ParseHeader(reply)
	if err != nil {
		return nil, err
	}
	switch h.Command {
	case CmdAckUnauth:
		return nil, fmt.Errorf("%s: %w", CommandName(command), ErrUnauthorized)
	case CmdAckError:
		return nil, fmt.Errorf("%s: %w", CommandName(command), ErrRejected)
	}
	return body, nil
}

// GetDeviceInfo probes the terminal. Only reachability is reported.
func (c *Conn) GetDeviceInfo(ctx context.Context) (*models.DeviceInfo, error) {
	if _, err := c.command(ctx, CmdGetFreeSizes, nil); err != nil {
		return nil, err
	}
	return &models.DeviceInfo{
		Host:        c.host,
		Port:        c.port,
		Status:      "online",
		RespondedAt: time.Now(),
	}, nil
}

// GetAttendanceLogs fetches punches between start and end. A nil end
// means now; a nil start means DefaultLogWindow before end.
func (c *Conn) GetAttendanceLogs(ctx context.Context, start, end *time.Time) ([]models.RawPunch, error) {
	to := time.Now()
	if end != nil {
		to = *end
	}
	from := to.Add(-DefaultLogWindow)
	if start != nil {
		from = *start
	}

	body, err := c.command(ctx, CmdAttLogRRQ, EncodeTimeRange(from, to))
	if err != nil {
		return nil, err
	}

	records := ParseAttendanceLogs(body, c.loc)
	addr := c.Addr()
	for i := range records {
		records[i].DeviceAddress = addr
	}
	return records, nil
}

// GetUsers returns the enrollment numbers stored on the terminal.
func (c *Conn) GetUsers(ctx context.Context) ([]string, error) {
	body, err := c.command(ctx, CmdUserTempRRQ, nil)
	if err != nil {
		return nil, err
	}
	return ParseUserIDs(body), nil
}

// Disconnect sends EXIT without waiting for a reply and closes the
// socket. Errors are ignored; calling it twice is harmless.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	c.replyID = (c.replyID + 1) % 0x10000
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, _ = c.conn.Write(BuildCommand(CmdExit, c.sessionID, c.replyID, nil))
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.sessionID = 0
}

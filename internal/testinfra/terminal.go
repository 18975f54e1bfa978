// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package testinfra

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/punchsync/internal/models"
	"github.com/tomtom215/punchsync/internal/zkteco"
)

// FakeTerminal is a UDP ZKTeco terminal bound to 127.0.0.1.
type FakeTerminal struct {
	conn *net.UDPConn
	done chan struct{}
	wg   sync.WaitGroup

	silent  atomic.Bool
	garbled atomic.Bool

	mu            sync.Mutex
	records       []models.RawPunch
	users         []string
	declaredCount int
	sessionID     uint32
	nextSession   uint32
	commands      []uint16
	lastStart     uint32
	lastEnd       uint32
}

// NewFakeTerminal starts a terminal and stops it when the test ends.
func NewFakeTerminal(t testing.TB) *FakeTerminal {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	ft := &FakeTerminal{
		conn:        conn,
		done:        make(chan struct{}),
		nextSession: 0x2A00,
	}
	ft.wg.Add(1)
	go ft.serve()

	t.Cleanup(ft.Close)
	return ft
}

// Host returns the listen IP.
func (f *FakeTerminal) Host() string {
	return f.conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Port returns the listen port.
func (f *FakeTerminal) Port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

// Addr returns host:port.
func (f *FakeTerminal) Addr() string {
	return models.DeviceAddress(f.Host(), f.Port())
}

// Close stops the terminal. Safe to call more than once.
func (f *FakeTerminal) Close() {
	select {
	case <-f.done:
		return
	default:
	}
	close(f.done)
	_ = f.conn.Close()
	f.wg.Wait()
}

// SetRecords replaces the stored attendance log.
func (f *FakeTerminal) SetRecords(records ...models.RawPunch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append([]models.RawPunch(nil), records...)
}

// SetUsers replaces the stored enrollment numbers.
func (f *FakeTerminal) SetUsers(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append([]string(nil), ids...)
}

// SetDeclaredCount overrides the record count written in log replies.
// 0 restores the real count.
func (f *FakeTerminal) SetDeclaredCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declaredCount = n
}

// SetSilent makes the terminal drop every datagram, so clients time out.
func (f *FakeTerminal) SetSilent(silent bool) {
	f.silent.Store(silent)
}

// SetGarbled makes replies carry a wrong magic number.
func (f *FakeTerminal) SetGarbled(garbled bool) {
	f.garbled.Store(garbled)
}

// Reboot forgets the current session; the next command on it is
// answered with ACK_UNAUTH.
func (f *FakeTerminal) Reboot() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionID = 0
}

// Commands returns every command received, in order.
func (f *FakeTerminal) Commands() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.commands...)
}

// CommandCount returns how often cmd was received.
func (f *FakeTerminal) CommandCount(cmd uint16) int {
	n := 0
	for _, c := range f.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// LastRange returns the UNIX start/end of the last log request.
func (f *FakeTerminal) LastRange() (start, end uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastStart, f.lastEnd
}

func (f *FakeTerminal) serve() {
	defer f.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, peer, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-f.done:
				return
			default:
				continue
			}
		}

		packet := append([]byte(nil), buf[:n]...)
		h, payload, err := zkteco.ParseHeader(packet)
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.commands = append(f.commands, h.Command)
		f.mu.Unlock()

		if f.silent.Load() {
			continue
		}

		reply := f.handle(h, payload)
		if reply == nil {
			continue
		}
		if f.garbled.Load() {
			binary.LittleEndian.PutUint32(reply[0:4], 0xDEADBEEF)
		}
		_, _ = f.conn.WriteToUDP(reply, peer)
	}
}

func (f *FakeTerminal) handle(h zkteco.Header, payload []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h.Command == zkteco.CmdConnect {
		f.nextSession++
		f.sessionID = f.nextSession
		return zkteco.BuildCommand(zkteco.CmdAckOK, f.sessionID, h.ReplyID, nil)
	}
	if h.Command == zkteco.CmdExit {
		f.sessionID = 0
		return nil
	}
	if f.sessionID == 0 || h.SessionID != f.sessionID {
		return zkteco.BuildCommand(zkteco.CmdAckUnauth, h.SessionID, h.ReplyID, nil)
	}

	switch h.Command {
	case zkteco.CmdGetFreeSizes:
		return zkteco.BuildCommand(zkteco.CmdAckOK, f.sessionID, h.ReplyID, make([]byte, 80))

	case zkteco.CmdAttLogRRQ:
		var start, end uint32
		if len(payload) >= 8 {
			start = binary.LittleEndian.Uint32(payload[0:4])
			end = binary.LittleEndian.Uint32(payload[4:8])
		}
		f.lastStart, f.lastEnd = start, end

		var matched []models.RawPunch
		for _, r := range f.records {
			if r.Timestamp >= int64(start) && r.Timestamp <= int64(end) {
				matched = append(matched, r)
			}
		}
		body := zkteco.EncodeAttendanceLogs(matched)
		if f.declaredCount > 0 {
			binary.LittleEndian.PutUint32(body[0:4], uint32(f.declaredCount))
		}
		return zkteco.BuildCommand(zkteco.CmdAckData, f.sessionID, h.ReplyID, body)

	case zkteco.CmdUserTempRRQ:
		body := make([]byte, 4+4*len(f.users))
		binary.LittleEndian.PutUint32(body[0:4], uint32(len(f.users)))
		for i, id := range f.users {
			var v uint64
			for _, ch := range id {
				v = v*10 + uint64(ch-'0')
			}
			binary.LittleEndian.PutUint32(body[4+i*4:8+i*4], uint32(v))
		}
		return zkteco.BuildCommand(zkteco.CmdAckData, f.sessionID, h.ReplyID, body)

	default:
		return zkteco.BuildCommand(zkteco.CmdAckError, f.sessionID, h.ReplyID, nil)
	}
}

// Punch builds a raw record for the fake terminal's log.
func Punch(userID string, at time.Time, status uint8) models.RawPunch {
	return models.RawPunch{
		UserID:    userID,
		Timestamp: at.Unix(),
		PunchTime: at,
		Direction: models.DirectionFromStatus(status),
		Status:    status,
	}
}

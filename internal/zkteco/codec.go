// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package zkteco

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/tomtom215/punchsync/internal/models"
)

// Magic opens every packet. On the wire: 50 50 82 7D.
const Magic uint32 = 0x7D825050

const (
	// HeaderSize is the fixed packet header length.
	HeaderSize = 20

	// DefaultReadBufferSize caps a single reply datagram.
	DefaultReadBufferSize = 1024

	// MaxAttendanceRecords bounds how many records one reply may yield.
	MaxAttendanceRecords = 1000

	// AttendanceRecordSize is the fixed size of one log record.
	AttendanceRecordSize = 16

	// MaxUserRecords bounds how many enrollment ids one reply may yield.
	MaxUserRecords = 1000

	checksumOffset = 10
)

var (
	// ErrShortPacket is returned for datagrams smaller than a header.
	ErrShortPacket = errors.New("zkteco: packet shorter than header")

	// ErrBadMagic is returned when a reply does not start with Magic.
	ErrBadMagic = errors.New("zkteco: bad magic")
)

// Header is a decoded packet header.
type Header struct {
	Magic     uint32
	Length    uint32
	Command   uint16
	Checksum  uint16
	SessionID uint32
	ReplyID   uint32
}

// BuildCommand assembles a packet and splices in its checksum.
func BuildCommand(command uint16, sessionID, replyID uint32, payload []byte) []byte {
	packet := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(packet[0:4], Magic)
	binary.LittleEndian.PutUint32(packet[4:8], uint32(len(packet)))
	binary.LittleEndian.PutUint16(packet[8:10], command)
	binary.LittleEndian.PutUint32(packet[12:16], sessionID)
	binary.LittleEndian.PutUint32(packet[16:20], replyID)
	copy(packet[HeaderSize:], payload)

	binary.LittleEndian.PutUint16(packet[checksumOffset:checksumOffset+2], Checksum(packet))
	return packet
}

// Checksum returns the low 16 bits of the byte sum of packet, with the
// checksum field itself counted as zero.
func Checksum(packet []byte) uint16 {
	var sum uint32
	for i, b := range packet {
		if i == checksumOffset || i == checksumOffset+1 {
			continue
		}
		sum += uint32(b)
	}
	return uint16(sum & 0xFFFF)
}

// VerifyChecksum reports whether the checksum field matches the packet.
func VerifyChecksum(packet []byte) bool {
	if len(packet) < HeaderSize {
		return false
	}
	return binary.LittleEndian.Uint16(packet[checksumOffset:checksumOffset+2]) == Checksum(packet)
}

// ParseHeader decodes the header of packet and returns the payload.
//
// The declared length is informational only: a reply larger than the
// read buffer arrives truncated, and the payload parsers cope with that.
func ParseHeader(packet []byte) (Header, []byte, error) {
	if len(packet) < HeaderSize {
		return Header{}, nil, ErrShortPacket
	}
	h := Header{
		Magic:     binary.LittleEndian.Uint32(packet[0:4]),
		Length:    binary.LittleEndian.Uint32(packet[4:8]),
		Command:   binary.LittleEndian.Uint16(packet[8:10]),
		Checksum:  binary.LittleEndian.Uint16(packet[10:12]),
		SessionID: binary.LittleEndian.Uint32(packet[12:16]),
		ReplyID:   binary.LittleEndian.Uint32(packet[16:20]),
	}
	if h.Magic != Magic {
		return h, nil, ErrBadMagic
	}
	return h, packet[HeaderSize:], nil
}

// EncodeTimeRange packs start and end as two UNIX uint32 values.
func EncodeTimeRange(start, end time.Time) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], unixUint32(start))
	binary.LittleEndian.PutUint32(buf[4:8], unixUint32(end))
	return buf
}

func unixUint32(t time.Time) uint32 {
	s := t.Unix()
	switch {
	case s < 0:
		return 0
	case s > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(s)
	}
}

// ParseAttendanceLogs decodes a log reply payload: a uint32 count then
// 16-byte records (uint32 user id, uint32 UNIX time, uint8 punch type,
// 7 bytes padding).
//
// At most min(count, MaxAttendanceRecords) records are returned. A
// payload shorter than declared yields the records that fit; it is not
// an error. Punch times are rendered in loc.
func ParseAttendanceLogs(payload []byte, loc *time.Location) []models.RawPunch {
	if len(payload) < 4 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	// Clamp before converting so a hostile count cannot go negative on
	// 32-bit platforms.
	n := binary.LittleEndian.Uint32(payload[0:4])
	if n > MaxAttendanceRecords {
		n = MaxAttendanceRecords
	}
	count := int(n)

	records := make([]models.RawPunch, 0, min(count, (len(payload)-4)/AttendanceRecordSize))
	offset := 4
	for i := 0; i < count; i++ {
		if offset+AttendanceRecordSize > len(payload) {
			break
		}
		rec := payload[offset : offset+AttendanceRecordSize]
		userID := binary.LittleEndian.Uint32(rec[0:4])
		ts := binary.LittleEndian.Uint32(rec[4:8])
		status := rec[8]

		records = append(records, models.RawPunch{
			UserID:    strconv.FormatUint(uint64(userID), 10),
			Timestamp: int64(ts),
			PunchTime: time.Unix(int64(ts), 0).In(loc),
			Direction: models.DirectionFromStatus(status),
			Status:    status,
		})
		offset += AttendanceRecordSize
	}
	return records
}

// EncodeAttendanceLogs is the inverse of ParseAttendanceLogs. The count
// written is len(records); tests and the fake terminal use it.
func EncodeAttendanceLogs(records []models.RawPunch) []byte {
	buf := make([]byte, 4+len(records)*AttendanceRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(records)))
	for i, r := range records {
		off := 4 + i*AttendanceRecordSize
		uid, _ := strconv.ParseUint(r.UserID, 10, 32)
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(uid))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(r.Timestamp))
		buf[off+8] = r.Status
	}
	return buf
}

// ParseUserIDs decodes a user list payload: a uint32 count then one
// uint32 enrollment number per user, capped at MaxUserRecords.
func ParseUserIDs(payload []byte) []string {
	if len(payload) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	if n > MaxUserRecords {
		n = MaxUserRecords
	}
	count := int(n)

	ids := make([]string, 0, min(count, (len(payload)-4)/4))
	for i := 0; i < count; i++ {
		off := 4 + i*4
		if off+4 > len(payload) {
			break
		}
		ids = append(ids, strconv.FormatUint(uint64(binary.LittleEndian.Uint32(payload[off:off+4])), 10))
	}
	return ids
}

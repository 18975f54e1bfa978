// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package zkteco

import "fmt"

// Request commands.
const (
	CmdConnect      uint16 = 1000
	CmdExit         uint16 = 1001
	CmdGetFreeSizes uint16 = 50
	CmdUserTempRRQ  uint16 = 9
	CmdAttLogRRQ    uint16 = 13
)

// Reply commands.
const (
	CmdAckOK     uint16 = 2000
	CmdAckError  uint16 = 2001
	CmdAckData   uint16 = 2002
	CmdAckUnauth uint16 = 2005
)

// CommandName returns a readable name for logs.
func CommandName(cmd uint16) string {
	switch cmd {
	case CmdConnect:
		return "CONNECT"
	case CmdExit:
		return "EXIT"
	case CmdGetFreeSizes:
		return "GET_FREE_SIZES"
	case CmdUserTempRRQ:
		return "USER_TEMP_RRQ"
	case CmdAttLogRRQ:
		return "ATTLOG_RRQ"
	case CmdAckOK:
		return "ACK_OK"
	case CmdAckError:
		return "ACK_ERROR"
	case CmdAckData:
		return "ACK_DATA"
	case CmdAckUnauth:
		return "ACK_UNAUTH"
	default:
		return fmt.Sprintf("CMD_%d", cmd)
	}
}

// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDeviceFetch(t *testing.T) {
	const dev = "10.9.9.1:4370"

	beforeOK := testutil.ToFloat64(DeviceFetchResults.WithLabelValues(dev, "ok"))
	beforeRecords := testutil.ToFloat64(RecordsFetched.WithLabelValues(dev))

	RecordDeviceFetch(dev, "ok", 12, 30*time.Millisecond)

	if got := testutil.ToFloat64(DeviceFetchResults.WithLabelValues(dev, "ok")); got != beforeOK+1 {
		t.Errorf("ok results = %v, want %v", got, beforeOK+1)
	}
	if got := testutil.ToFloat64(RecordsFetched.WithLabelValues(dev)); got != beforeRecords+12 {
		t.Errorf("records fetched = %v, want %v", got, beforeRecords+12)
	}
	if got := testutil.ToFloat64(DeviceOnline.WithLabelValues(dev)); got != 1 {
		t.Errorf("device_online = %v, want 1", got)
	}

	RecordDeviceFetch(dev, "offline", 0, time.Second)
	if got := testutil.ToFloat64(DeviceOnline.WithLabelValues(dev)); got != 0 {
		t.Errorf("device_online after offline = %v, want 0", got)
	}
}

func TestRecordDeviceFetch_SkippedDoesNotTouchOnline(t *testing.T) {
	const dev = "10.9.9.2:4370"

	RecordDeviceFetch(dev, "ok", 1, time.Millisecond)
	RecordDeviceFetch(dev, "skipped", 0, 0)

	if got := testutil.ToFloat64(DeviceOnline.WithLabelValues(dev)); got != 1 {
		t.Errorf("skipped fetch changed device_online to %v", got)
	}
}

func TestRecordSyncResult(t *testing.T) {
	before := map[string]float64{}
	for _, o := range []string{"synced", "duplicate", "unmatched", "error"} {
		before[o] = testutil.ToFloat64(SyncRecords.WithLabelValues(o))
	}

	RecordSyncResult(3, 2, 1, 4)

	want := map[string]float64{"synced": 3, "duplicate": 2, "unmatched": 1, "error": 4}
	for o, delta := range want {
		if got := testutil.ToFloat64(SyncRecords.WithLabelValues(o)); got != before[o]+delta {
			t.Errorf("%s = %v, want %v", o, got, before[o]+delta)
		}
	}
}

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "attendance_logs"))

	RecordDBQuery("INSERT", "attendance_logs", time.Millisecond, nil)
	RecordDBQuery("INSERT", "attendance_logs", time.Millisecond, errors.New("constraint"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "attendance_logs")); got != before+1 {
		t.Errorf("errors = %v, want %v", got, before+1)
	}
}

func TestRecordPollCycle(t *testing.T) {
	before := testutil.ToFloat64(PollCycles.WithLabelValues("manual"))

	RecordPollCycle("manual", 2*time.Second)

	if got := testutil.ToFloat64(PollCycles.WithLabelValues("manual")); got != before+1 {
		t.Errorf("manual cycles = %v, want %v", got, before+1)
	}
	if testutil.ToFloat64(PollLastCycle) == 0 {
		t.Error("poll_last_cycle_timestamp not set")
	}
}

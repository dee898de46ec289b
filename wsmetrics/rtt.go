// Package wsmetrics records latency statistics for a WebSocket connection,
// in particular the Ping/Pong round-trip time, using an HDR histogram so
// that percentile queries stay cheap regardless of sample count.
package wsmetrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RTTRecorder accumulates Ping/Pong round-trip-time samples for a single
// connection. It is safe for concurrent use, since a Pong can arrive on a
// reader goroutine while a report is being taken on another.
type RTTRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// rttMin/rttMax bound the histogram in microseconds: a sub-microsecond RTT
// is not meaningful, and anything past a minute indicates the peer is gone,
// not that it is merely slow.
const (
	rttMin = 1
	rttMax = int64(60 * time.Second / time.Microsecond)
)

// NewRTTRecorder returns an empty RTTRecorder.
func NewRTTRecorder() *RTTRecorder {
	return &RTTRecorder{hist: hdrhistogram.New(rttMin, rttMax, 3)}
}

// Record adds one round-trip-time sample. Samples outside [rttMin, rttMax]
// are clamped rather than dropped, so a single abnormal sample cannot hide a
// real outlier by vanishing from the histogram entirely.
func (r *RTTRecorder) Record(d time.Duration) {
	us := d.Microseconds()
	if us < rttMin {
		us = rttMin
	}
	if us > rttMax {
		us = rttMax
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist.RecordValue(us)
}

// Reset discards all recorded samples.
func (r *RTTRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist.Reset()
}

// Snapshot is a point-in-time read of the recorded distribution.
type Snapshot struct {
	Count          int64
	Min, Mean, Max time.Duration
	P50, P90, P95  time.Duration
	P99            time.Duration
}

// Snapshot returns the current distribution. The zero Snapshot (Count == 0)
// means no samples have been recorded yet.
func (r *RTTRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hist.TotalCount() == 0 {
		return Snapshot{}
	}

	us := time.Microsecond
	return Snapshot{
		Count: r.hist.TotalCount(),
		Min:   time.Duration(r.hist.Min()) * us,
		Mean:  time.Duration(r.hist.Mean()) * us,
		Max:   time.Duration(r.hist.Max()) * us,
		P50:   time.Duration(r.hist.ValueAtPercentile(50)) * us,
		P90:   time.Duration(r.hist.ValueAtPercentile(90)) * us,
		P95:   time.Duration(r.hist.ValueAtPercentile(95)) * us,
		P99:   time.Duration(r.hist.ValueAtPercentile(99)) * us,
	}
}

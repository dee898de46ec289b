package wsmetrics

import (
	"fmt"
	"io"
)

// WriteReport prints a human-readable percentile summary of the recorder's
// current distribution to w, labeled name. It is meant for the same kind of
// ad-hoc terminal reporting a latency-test client prints between runs.
func (r *RTTRecorder) WriteReport(w io.Writer, name string) {
	snap := r.Snapshot()
	if snap.Count == 0 {
		fmt.Fprintf(w, "%s: no samples\n", name)
		return
	}

	fmt.Fprintf(w, "%s rtt samples=%d\n", name, snap.Count)
	fmt.Fprintf(w, "  min/mean/max = %s/%s/%s\n", snap.Min, snap.Mean, snap.Max)
	fmt.Fprintf(w, "  p50=%s p90=%s p95=%s p99=%s\n", snap.P50, snap.P90, snap.P95, snap.P99)
}

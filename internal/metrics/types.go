package metrics

import "time"

// Snapshot is one point-in-time reading of the host counters. It is a value
// type; every Sample call returns a fresh one.
type Snapshot struct {
	CPUPercent   float64 `json:"cpu_percent"`
	RAMUsedMB    float64 `json:"ram_used_mb"`
	RAMTotalMB   float64 `json:"ram_total_mb"`
	DiskUsedGB   float64 `json:"disk_used_gb"`
	DiskTotalGB  float64 `json:"disk_total_gb"`
	ProcessCount int     `json:"process_count"`
	NetBytesSent uint64  `json:"net_bytes_sent"`
	NetBytesRecv uint64  `json:"net_bytes_recv"`
	Timestamp    float64 `json:"timestamp"` // seconds since epoch
}

// Time returns the snapshot timestamp as a time.Time.
func (s Snapshot) Time() time.Time {
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// NetDelta is the network throughput between two snapshots.
type NetDelta struct {
	TxRate  float64 // Bytes/sec
	RxRate  float64 // Bytes/sec
	Elapsed time.Duration
	// Reset is set when a counter went backwards (host reboot or interface
	// reset). Rates are then computed from the new counter values alone.
	Reset bool
}

// Diff computes network rates from prev to cur.
func Diff(prev, cur Snapshot) NetDelta {
	elapsed := cur.Time().Sub(prev.Time())
	d := NetDelta{Elapsed: elapsed}
	if elapsed <= 0 {
		return d
	}

	sent, sentReset := counterDelta(prev.NetBytesSent, cur.NetBytesSent)
	recv, recvReset := counterDelta(prev.NetBytesRecv, cur.NetBytesRecv)
	d.Reset = sentReset || recvReset

	secs := elapsed.Seconds()
	d.TxRate = float64(sent) / secs
	d.RxRate = float64(recv) / secs
	return d
}

func counterDelta(prev, cur uint64) (uint64, bool) {
	if cur < prev {
		return cur, true
	}
	return cur - prev, false
}

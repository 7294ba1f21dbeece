package metrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	mb = 1024 * 1024
	gb = 1024 * 1024 * 1024

	// Samples closer together than this reuse the previous CPU percentage.
	minCPUWindow = 100 * time.Millisecond
)

// CPUTimes are aggregated CPU times in seconds across all cores.
type CPUTimes struct {
	Busy  float64
	Total float64
}

// DiskUsage is the usage of one mount point in bytes.
type DiskUsage struct {
	Used  uint64
	Total uint64
}

// MemUsage is virtual memory usage in bytes.
type MemUsage struct {
	Used  uint64
	Total uint64
}

// NetCounters are host-wide network byte counters since boot.
type NetCounters struct {
	BytesSent uint64
	BytesRecv uint64
}

// Source reads raw OS counters. Every method may fail independently.
type Source interface {
	CPUTimes(ctx context.Context) (CPUTimes, error)
	Memory(ctx context.Context) (MemUsage, error)
	Disk(ctx context.Context, path string) (DiskUsage, error)
	ProcessCount(ctx context.Context) (int, error)
	Net(ctx context.Context) (NetCounters, error)
}

// HostSource reads counters from the running host through gopsutil.
type HostSource struct{}

func (HostSource) CPUTimes(ctx context.Context) (CPUTimes, error) {
	times, err := cpu.TimesWithContext(ctx, false) // false = aggregated
	if err != nil {
		return CPUTimes{}, fmt.Errorf("error getting CPU times: %w", err)
	}
	if len(times) == 0 {
		return CPUTimes{}, fmt.Errorf("error getting CPU times: no data")
	}
	t := times[0]
	idle := t.Idle + t.Iowait
	total := t.User + t.System + t.Nice + t.Irq + t.Softirq + t.Steal + idle
	return CPUTimes{Busy: total - idle, Total: total}, nil
}

func (HostSource) Memory(ctx context.Context) (MemUsage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemUsage{}, fmt.Errorf("error getting memory usage: %w", err)
	}
	return MemUsage{Used: vm.Used, Total: vm.Total}, nil
}

func (HostSource) Disk(ctx context.Context, path string) (DiskUsage, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("error getting disk usage for %s: %w", path, err)
	}
	return DiskUsage{Used: usage.Used, Total: usage.Total}, nil
}

func (HostSource) ProcessCount(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("error getting processes: %w", err)
	}
	return len(pids), nil
}

func (HostSource) Net(ctx context.Context) (NetCounters, error) {
	stats, err := net.IOCountersWithContext(ctx, false) // false = aggregated
	if err != nil {
		return NetCounters{}, fmt.Errorf("error getting network usage: %w", err)
	}
	if len(stats) == 0 {
		return NetCounters{}, fmt.Errorf("error getting network usage: no interfaces")
	}
	return NetCounters{BytesSent: stats[0].BytesSent, BytesRecv: stats[0].BytesRecv}, nil
}

// Sampler produces Snapshots. It is safe for concurrent use; the only state
// it keeps is the CPU baseline needed to turn CPU times into a percentage.
type Sampler struct {
	source Source
	disk   string
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastCPU  CPUTimes
	lastAt   time.Time
	lastPct  float64
	baseline bool
}

// NewSampler returns a Sampler reporting on the given disk mount point.
func NewSampler(source Source, diskPath string, logger *zap.Logger) *Sampler {
	if source == nil {
		source = HostSource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		source: source,
		disk:   diskPath,
		logger: logger,
		now:    time.Now,
	}
}

// Sample reads the host counters. It never fails: a counter that cannot be
// read is reported as zero.
func (s *Sampler) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{CPUPercent: s.cpuPercent(ctx)}

	if m, err := s.source.Memory(ctx); err != nil {
		s.degraded("memory", err)
	} else {
		snap.RAMUsedMB = round(float64(m.Used)/mb, 1)
		snap.RAMTotalMB = round(float64(m.Total)/mb, 1)
	}

	if d, err := s.source.Disk(ctx, s.disk); err != nil {
		s.degraded("disk", err)
	} else {
		snap.DiskUsedGB = round(float64(d.Used)/gb, 2)
		snap.DiskTotalGB = round(float64(d.Total)/gb, 2)
	}

	if n, err := s.source.ProcessCount(ctx); err != nil {
		s.degraded("processes", err)
	} else {
		snap.ProcessCount = n
	}

	if n, err := s.source.Net(ctx); err != nil {
		s.degraded("network", err)
	} else {
		snap.NetBytesSent = n.BytesSent
		snap.NetBytesRecv = n.BytesRecv
	}

	snap.Timestamp = float64(s.now().UnixNano()) / float64(time.Second)
	return snap
}

func (s *Sampler) cpuPercent(ctx context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.baseline && now.Sub(s.lastAt) < minCPUWindow {
		return s.lastPct
	}

	cur, err := s.source.CPUTimes(ctx)
	if err != nil {
		s.degraded("cpu", err)
		return 0
	}

	if !s.baseline {
		// First measurement of the process: nothing to compare against yet.
		s.lastCPU, s.lastAt, s.baseline = cur, now, true
		return 0
	}

	busy := cur.Busy - s.lastCPU.Busy
	total := cur.Total - s.lastCPU.Total
	s.lastCPU, s.lastAt = cur, now

	var pct float64
	switch {
	case total <= 0:
		pct = 0
	case busy <= 0:
		pct = 0
	case busy >= total:
		pct = 100
	default:
		pct = busy / total * 100
	}
	s.lastPct = round(pct, 1)
	return s.lastPct
}

func (s *Sampler) degraded(counter string, err error) {
	s.logger.Debug("host counter unavailable, reporting zero",
		zap.String("counter", counter),
		zap.Error(err))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu       sync.Mutex
	cpu      []CPUTimes
	cpuCalls int
	mem      MemUsage
	disk     DiskUsage
	diskPath string
	procs    int
	net      NetCounters
	fail     map[string]bool
}

var errUnreadable = errors.New("counter unreadable")

func (f *fakeSource) CPUTimes(context.Context) (CPUTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail["cpu"] {
		return CPUTimes{}, errUnreadable
	}
	i := f.cpuCalls
	if i >= len(f.cpu) {
		i = len(f.cpu) - 1
	}
	f.cpuCalls++
	return f.cpu[i], nil
}

func (f *fakeSource) Memory(context.Context) (MemUsage, error) {
	if f.fail["memory"] {
		return MemUsage{}, errUnreadable
	}
	return f.mem, nil
}

func (f *fakeSource) Disk(_ context.Context, path string) (DiskUsage, error) {
	f.mu.Lock()
	f.diskPath = path
	f.mu.Unlock()
	if f.fail["disk"] {
		return DiskUsage{}, errUnreadable
	}
	return f.disk, nil
}

func (f *fakeSource) ProcessCount(context.Context) (int, error) {
	if f.fail["processes"] {
		return 0, errUnreadable
	}
	return f.procs, nil
}

func (f *fakeSource) Net(context.Context) (NetCounters, error) {
	if f.fail["network"] {
		return NetCounters{}, errUnreadable
	}
	return f.net, nil
}

func newFake() *fakeSource {
	return &fakeSource{
		cpu: []CPUTimes{
			{Busy: 100, Total: 400},
			{Busy: 150, Total: 600}, // 50 of 200 busy
		},
		mem:   MemUsage{Used: 3 * mb / 2, Total: 8 * mb},
		disk:  DiskUsage{Used: 5 * gb / 4, Total: 100 * gb},
		procs: 42,
		net:   NetCounters{BytesSent: 1000, BytesRecv: 2000},
		fail:  map[string]bool{},
	}
}

// fakeClock returns a clock that advances by step on every call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestSampleConvertsUnits(t *testing.T) {
	src := newFake()
	s := NewSampler(src, "/data", nil)

	snap := s.Sample(context.Background())

	if snap.RAMUsedMB != 1.5 || snap.RAMTotalMB != 8 {
		t.Fatalf("ram = %v / %v; want 1.5 / 8", snap.RAMUsedMB, snap.RAMTotalMB)
	}
	if snap.DiskUsedGB != 1.25 || snap.DiskTotalGB != 100 {
		t.Fatalf("disk = %v / %v; want 1.25 / 100", snap.DiskUsedGB, snap.DiskTotalGB)
	}
	if snap.ProcessCount != 42 {
		t.Fatalf("process_count = %d; want 42", snap.ProcessCount)
	}
	if snap.NetBytesSent != 1000 || snap.NetBytesRecv != 2000 {
		t.Fatalf("net = %d / %d", snap.NetBytesSent, snap.NetBytesRecv)
	}
	if src.diskPath != "/data" {
		t.Fatalf("disk sampled at %q; want /data", src.diskPath)
	}
	if snap.Timestamp <= 0 {
		t.Fatalf("timestamp not set")
	}
}

func TestSampleCPUBaseline(t *testing.T) {
	s := NewSampler(newFake(), "/", nil)
	s.now = fakeClock(time.Unix(1_700_000_000, 0), time.Second)

	first := s.Sample(context.Background())
	if first.CPUPercent != 0 {
		t.Fatalf("first cpu_percent = %v; want 0", first.CPUPercent)
	}
	second := s.Sample(context.Background())
	if second.CPUPercent != 25 {
		t.Fatalf("second cpu_percent = %v; want 25", second.CPUPercent)
	}
}

func TestSampleCPUReusesShortWindow(t *testing.T) {
	src := newFake()
	src.cpu = append(src.cpu, CPUTimes{Busy: 600, Total: 700})
	s := NewSampler(src, "/", nil)
	s.now = fakeClock(time.Unix(1_700_000_000, 0), 10*time.Millisecond)

	s.Sample(context.Background())
	s.Sample(context.Background())
	if src.cpuCalls != 1 {
		t.Fatalf("cpu times read %d times inside the minimum window; want 1", src.cpuCalls)
	}
}

func TestSampleDegradesOnCounterFailure(t *testing.T) {
	for _, counter := range []string{"cpu", "memory", "disk", "processes", "network"} {
		t.Run(counter, func(t *testing.T) {
			src := newFake()
			src.fail[counter] = true
			s := NewSampler(src, "/", nil)

			snap := s.Sample(context.Background())

			switch counter {
			case "memory":
				if snap.RAMUsedMB != 0 || snap.RAMTotalMB != 0 {
					t.Fatalf("ram not zeroed: %+v", snap)
				}
				if snap.ProcessCount != 42 {
					t.Fatalf("unrelated counter lost: %+v", snap)
				}
			case "disk":
				if snap.DiskUsedGB != 0 || snap.DiskTotalGB != 0 {
					t.Fatalf("disk not zeroed: %+v", snap)
				}
			case "processes":
				if snap.ProcessCount != 0 {
					t.Fatalf("process_count not zeroed: %+v", snap)
				}
			case "network":
				if snap.NetBytesSent != 0 || snap.NetBytesRecv != 0 {
					t.Fatalf("net not zeroed: %+v", snap)
				}
			case "cpu":
				if snap.CPUPercent != 0 {
					t.Fatalf("cpu not zeroed: %+v", snap)
				}
			}
			if snap.Timestamp == 0 {
				t.Fatalf("timestamp missing on degraded snapshot")
			}
		})
	}
}

func TestSampleConcurrent(t *testing.T) {
	s := NewSampler(newFake(), "/", nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := s.Sample(context.Background())
				if snap.RAMUsedMB > snap.RAMTotalMB {
					t.Errorf("ram_used_mb %v > ram_total_mb %v", snap.RAMUsedMB, snap.RAMTotalMB)
				}
				if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
					t.Errorf("cpu_percent out of range: %v", snap.CPUPercent)
				}
			}
		}()
	}
	wg.Wait()
}

func TestSnapshotJSONKeys(t *testing.T) {
	data, err := json.Marshal(Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"cpu_percent", "ram_used_mb", "ram_total_mb", "disk_used_gb", "disk_total_gb",
		"process_count", "net_bytes_sent", "net_bytes_recv", "timestamp",
	}
	if len(m) != len(want) {
		t.Fatalf("got %d keys; want %d: %v", len(m), len(want), m)
	}
	for _, k := range want {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q", k)
		}
	}
}

func TestDiff(t *testing.T) {
	prev := Snapshot{NetBytesSent: 1000, NetBytesRecv: 5000, Timestamp: 100}

	t.Run("steady", func(t *testing.T) {
		cur := Snapshot{NetBytesSent: 3000, NetBytesRecv: 9000, Timestamp: 102}
		d := Diff(prev, cur)
		if d.Reset {
			t.Fatalf("unexpected reset")
		}
		if d.TxRate != 1000 || d.RxRate != 2000 {
			t.Fatalf("rates = %v / %v; want 1000 / 2000", d.TxRate, d.RxRate)
		}
		if d.Elapsed != 2*time.Second {
			t.Fatalf("elapsed = %s", d.Elapsed)
		}
	})

	t.Run("counter reset", func(t *testing.T) {
		cur := Snapshot{NetBytesSent: 400, NetBytesRecv: 9000, Timestamp: 101}
		d := Diff(prev, cur)
		if !d.Reset {
			t.Fatalf("decrease not reported as reset")
		}
		if d.TxRate != 400 {
			t.Fatalf("tx rate after reset = %v; want 400", d.TxRate)
		}
	})

	t.Run("no elapsed time", func(t *testing.T) {
		d := Diff(prev, prev)
		if d.TxRate != 0 || d.RxRate != 0 {
			t.Fatalf("rates without elapsed time: %+v", d)
		}
	})
}

func TestHostSourceSample(t *testing.T) {
	if testing.Short() {
		t.Skip("reads live host counters")
	}
	s := NewSampler(HostSource{}, "/", nil)
	s.Sample(context.Background())
	snap := s.Sample(context.Background())

	if snap.RAMUsedMB > snap.RAMTotalMB {
		t.Fatalf("ram_used_mb %v > ram_total_mb %v", snap.RAMUsedMB, snap.RAMTotalMB)
	}
	if snap.ProcessCount < 0 {
		t.Fatalf("process_count = %d", snap.ProcessCount)
	}
}

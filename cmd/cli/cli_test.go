package main

import (
	"sort"
	"testing"

	"github.com/jeffypooo/lanmon/internal/config"
)

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1536, "1.5KiB"},
		{10 * 1024 * 1024, "10.0MiB"},
		{3 * 1024 * 1024 * 1024, "3.0GiB"},
	}
	for _, tc := range cases {
		if got := humanBytes(tc.in); got != tc.want {
			t.Fatalf("humanBytes(%v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	want := []string{"pull", "snapshot", "watch"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v; want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("commands = %v; want %v", names, want)
		}
	}
}

func TestSnapshotDiskDefault(t *testing.T) {
	f := newSnapshotCmd().Flags().Lookup("disk")
	if f == nil {
		t.Fatalf("snapshot has no --disk flag")
	}
	if f.DefValue != config.DefaultDisk() {
		t.Fatalf("--disk default = %q; want %q", f.DefValue, config.DefaultDisk())
	}
}

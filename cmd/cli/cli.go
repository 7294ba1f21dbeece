package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/jeffypooo/lanmon/internal/config"
	"github.com/jeffypooo/lanmon/internal/metrics"
	"github.com/jeffypooo/lanmon/internal/viewer"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lanmon",
		Short:         "Inspect a lanmon agent or the local host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSnapshotCmd(), newPullCmd(), newWatchCmd())
	return root
}

type remoteFlags struct {
	addr  string
	token string
}

func (f *remoteFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:8765", "Agent address (host:port or URL)")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("AGENT_TOKEN"), "Shared secret (defaults to AGENT_TOKEN)")
}

func (f *remoteFlags) client() (*viewer.Client, error) {
	return viewer.New(f.addr, f.token)
}

func newSnapshotCmd() *cobra.Command {
	var diskPath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Sample the local host once and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := metrics.NewSampler(metrics.HostSource{}, diskPath, nil)
			// The first CPU reading only sets a baseline.
			s.Sample(cmd.Context())
			time.Sleep(500 * time.Millisecond)
			return printJSON(s.Sample(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&diskPath, "disk", config.DefaultDisk(), "Mount point to report disk usage for")
	return cmd
}

func newPullCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch one snapshot from an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rf.client()
			if err != nil {
				return err
			}
			snap, err := c.Pull(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	rf.bind(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to an agent and print snapshots as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rf.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var prev *metrics.Snapshot
			err = c.Watch(ctx, func(s metrics.Snapshot) error {
				printLine(s, prev)
				prev = &s
				return nil
			})
			if errors.Is(err, viewer.ErrUnauthorized) {
				return fmt.Errorf("agent at %s rejected the token", rf.addr)
			}
			return err
		},
	}
	rf.bind(cmd)
	return cmd
}

func printJSON(s metrics.Snapshot) error {
	out, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return fmt.Errorf("error marshalling metrics: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

var (
	label = color.New(color.Faint)
	value = color.New(color.FgCyan)
	warn  = color.New(color.FgYellow)
)

func printLine(s metrics.Snapshot, prev *metrics.Snapshot) {
	label.Print(s.Time().Format("15:04:05"), " ")
	label.Print("cpu ")
	value.Printf("%5.1f%% ", s.CPUPercent)
	label.Print("ram ")
	value.Printf("%.0f/%.0fMB ", s.RAMUsedMB, s.RAMTotalMB)
	label.Print("disk ")
	value.Printf("%.1f/%.1fGB ", s.DiskUsedGB, s.DiskTotalGB)
	label.Print("procs ")
	value.Printf("%d ", s.ProcessCount)

	if prev != nil {
		d := metrics.Diff(*prev, s)
		label.Print("net ")
		value.Printf("↑%s/s ↓%s/s", humanBytes(d.TxRate), humanBytes(d.RxRate))
		if d.Reset {
			warn.Print(" (counter reset)")
		}
	}
	fmt.Println()
}

func humanBytes(b float64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%.0fB", b)
	}
	div, exp := float64(unit), 0
	for n := b / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", b/div, "KMGTP"[exp])
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffypooo/lanmon/internal/config"
	"github.com/jeffypooo/lanmon/internal/daemon"
	"github.com/jeffypooo/lanmon/internal/hostaddr"
	"github.com/jeffypooo/lanmon/internal/logger"
	"github.com/jeffypooo/lanmon/internal/metrics"
	"github.com/jeffypooo/lanmon/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lanmon-agent:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:           "lanmon-agent",
		Short:         "Serve local system metrics to viewers on the LAN",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "Path to an optional YAML config file (overrides AGENT_CONFIG)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	return cmd
}

func run(opts config.Options) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel(), cfg.LogFile())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting lanmon-agent", zap.String("version", version))

	sampler := metrics.NewSampler(metrics.HostSource{}, cfg.Disk(), log.Named("sampler"))
	srv := server.New(cfg, sampler, hostaddr.NewResolver(), log.Named("http"))

	return daemon.New(cfg, srv, log).Run()
}

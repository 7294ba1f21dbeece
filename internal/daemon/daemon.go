package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	kardianos "github.com/kardianos/service"
	"go.uber.org/zap"

	"github.com/jeffypooo/lanmon/internal/config"
	"github.com/jeffypooo/lanmon/internal/server"
)

const (
	ServiceName        = "lanmon-agent"
	ServiceDisplayName = "LAN System Monitor Agent"
	ServiceDescription = "Streams local CPU, memory, disk, process and network usage to viewers on the LAN"

	shutdownTimeout = 5 * time.Second
)

// Agent runs the HTTP server under kardianos/service, which handles
// SIGINT/SIGTERM when run interactively and the service manager otherwise.
type Agent struct {
	cfg    *config.Config
	srv    *server.Server
	logger *zap.Logger
	out    io.Writer

	mu     sync.Mutex
	served chan error
}

func New(cfg *config.Config, srv *server.Server, logger *zap.Logger) *Agent {
	return &Agent{cfg: cfg, srv: srv, logger: logger, out: os.Stdout}
}

// Start binds the listening port and serves in the background. A bind
// failure is returned so startup aborts.
func (a *Agent) Start(kardianos.Service) error {
	ln, err := a.srv.Listen()
	if err != nil {
		return err
	}

	a.printBanner()
	a.logger.Info("agent listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("disk", a.cfg.Disk()),
		zap.Duration("interval", a.cfg.Interval()))

	served := make(chan error, 1)
	a.mu.Lock()
	a.served = served
	a.mu.Unlock()

	go func() {
		err := a.srv.Serve(ln)
		if err != nil {
			a.logger.Error("http server stopped", zap.Error(err))
		}
		served <- err
	}()
	return nil
}

// Stop shuts the server down and closes every subscription.
func (a *Agent) Stop(kardianos.Service) error {
	a.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}

	a.mu.Lock()
	served := a.served
	a.mu.Unlock()
	if served != nil {
		select {
		case <-served:
		case <-ctx.Done():
		}
	}
	_ = a.logger.Sync()
	return nil
}

// Run blocks until the agent is stopped by a signal or the service manager.
func (a *Agent) Run() error {
	svc, err := kardianos.New(a, &kardianos.Config{
		Name:        ServiceName,
		DisplayName: ServiceDisplayName,
		Description: ServiceDescription,
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	return svc.Run()
}

func (a *Agent) printBanner() {
	lan := a.srv.LANAddress(context.Background())
	bold := color.New(color.Bold)
	url := color.New(color.FgCyan, color.Bold)

	bold.Fprint(a.out, "Agent URL:   ")
	url.Fprintf(a.out, "http://%s:%d\n", lan, a.cfg.Port())
	bold.Fprint(a.out, "Auth token:  ")
	fmt.Fprintf(a.out, "%q\n", a.cfg.Token())

	if a.cfg.DefaultTokenInUse() {
		color.New(color.FgYellow, color.Bold).Fprintf(a.out,
			"WARNING: using the default token %q, set AGENT_TOKEN to your own secret\n", config.DefaultToken)
		a.logger.Warn("default token in use; set AGENT_TOKEN")
	}
}

// Command ccphost runs a CCP host process: it listens for incoming
// connections from external client processes, and dispatches them to a
// small set of demo plugins by name.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/ccpnet/ccp/internal/logger"
	"github.com/ccpnet/ccp/internal/xdgpath"
	"github.com/ccpnet/ccp/pkg/ccp"
)

const (
	appDirName = "ccp"
	configName = "ccphost.toml"
)

func main() {
	cmd := &cli.Command{
		Name:  "ccphost",
		Usage: "run a CCP host listening for game-server addon connections",
		Flags: flags(configFile()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			initLog(cmd.Bool("dev"))
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.FatalError("ccphost exited with an error", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	addr := net.JoinHostPort(cmd.String("listen-host"), fmt.Sprintf("%d", cmd.Int("listen-port")))
	whitelist := parseWhitelist(cmd.StringSlice("whitelist"))

	registry := ccp.NewRegistry()
	registerDemoHandlers(registry)

	ctx = logger.InContext(ctx, slog.Default())
	l, err := ccp.NewListener(ctx, addr, whitelist, registry)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve() }()

	slog.Info("ccphost listening", slog.String("addr", l.Addr().String()), slog.Int("whitelisted_peers", len(whitelist)))

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return l.Close()
	case err := <-errCh:
		return err
	}
}

// registerDemoHandlers wires two illustrative plugins: "echo", a
// request-based handler that returns whatever it's sent, and "tee", a raw
// handler that logs every byte stream it receives.
func registerDemoHandlers(registry *ccp.Registry) {
	if err := registry.RegisterRequestBased("echo", func(peerAddr string, data []byte) ([]byte, error) {
		slog.Debug("echo handler invoked", slog.String("peer", peerAddr), slog.Int("bytes", len(data)))
		return data, nil
	}); err != nil {
		logger.FatalError("failed to register echo handler", err)
	}

	if err := registry.RegisterRaw("tee", func(peerAddr string, _ *ccp.SessionHandle) (ccp.RawHandler, error) {
		return newTeeHandler(peerAddr), nil
	}); err != nil {
		logger.FatalError("failed to register tee handler", err)
	}
}

func initLog(devMode bool) {
	var h slog.Handler
	if devMode {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(h))
}

func configFile() altsrc.StringSourcer {
	path, err := xdgpath.EnsureConfigFile(appDirName, configName)
	if err != nil {
		logger.FatalError("failed to resolve config file path", err)
	}
	return altsrc.StringSourcer(path)
}

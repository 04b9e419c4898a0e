// Command ccpclient is a thin external-process harness that dials a CCP
// host, starts a request-based session under a given plugin name, and
// relays stdin lines to it as DATA frames, printing replies to stdout. It
// exists to exercise pkg/ccp.Transmitter end to end, the way an addon
// process embedding the protocol would.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ccpnet/ccp/pkg/ccp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:40000", "CCP host address")
	plugin := flag.String("plugin", "echo", "plugin name to start a session under")
	raw := flag.Bool("raw", false, "start a raw session instead of a request-based one")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	done := make(chan struct{})
	tr := ccp.NewTransmitter(*addr, *plugin, logger,
		ccp.WithConnectedHandler(func() {
			logger.Info("connected", slog.String("addr", *addr))
		}),
		ccp.WithConnectionErrorHandler(func(err error) {
			logger.Error("connection failed", slog.Any("error", err))
			close(done)
		}),
		ccp.WithCommAcceptedHandler(func() {
			logger.Info("session accepted", slog.String("plugin", *plugin))
		}),
		ccp.WithNobodyHomeHandler(func() {
			logger.Warn("host has no handler for this plugin", slog.String("plugin", *plugin))
			close(done)
		}),
		ccp.WithProtocolErrorHandler(func() {
			logger.Error("protocol error")
			close(done)
		}),
		ccp.WithCommErrorHandler(func() {
			logger.Error("host-side handler error")
			close(done)
		}),
		ccp.WithCommEndHandler(func() {
			logger.Info("session ended")
			close(done)
		}),
		ccp.WithConnectionAbortHandler(func() {
			logger.Warn("connection aborted")
			close(done)
		}),
		ccp.WithDataReceivedHandler(func(data []byte) {
			fmt.Println(string(data))
		}),
	)

	if err := tr.Start(context.Background()); err != nil {
		logger.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	defer tr.Close()

	mode := ccp.ModeRequestBased
	if *raw {
		mode = ccp.ModeRaw
	}
	if err := tr.SetMode(mode); err != nil {
		logger.Error("failed to start session", slog.Any("error", err))
		os.Exit(1)
	}

	go relayStdin(tr, logger)

	<-done
}

func relayStdin(tr *ccp.Transmitter, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := tr.SendData(scanner.Bytes()); err != nil {
			logger.Error("failed to send data", slog.Any("error", err))
			return
		}
	}
	_ = tr.Stop()
}

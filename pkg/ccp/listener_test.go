package ccp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ccpnet/ccp/internal/logger"
)

func testCtx() context.Context {
	return logger.InContext(context.Background(), discardLogger())
}

func TestListenerRejectsNonWhitelistedPeer(t *testing.T) {
	registry := NewRegistry()
	l, err := NewListener(testCtx(), "127.0.0.1:0", []string{"203.0.113.5"}, registry)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	go l.Serve()

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer nc.Close()

	_ = nc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := nc.Read(buf); err == nil {
		t.Fatal("expected connection to be closed by the listener")
	}
}

func TestListenerAcceptsWhitelistedPeerEndToEnd(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterRequestBased("echo", func(_ string, data []byte) ([]byte, error) {
		return data, nil
	}); err != nil {
		t.Fatalf("RegisterRequestBased: %v", err)
	}

	l, err := NewListener(testCtx(), "127.0.0.1:0", []string{"127.0.0.1"}, registry)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	go l.Serve()

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer nc.Close()

	if err := WriteFrame(nc, startFrame(CommStartRequestBased, "echo")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got := readFrameWithTimeout(t, nc, time.Second)
	if len(got) != 1 || Code(got[0]) != CommAccepted {
		t.Fatalf("got %v, want [CommAccepted]", got)
	}

	if err := WriteFrame(nc, append([]byte{byte(Data)}, []byte("ping")...)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got = readFrameWithTimeout(t, nc, time.Second)
	if Code(got[0]) != Data || string(got[1:]) != "ping" {
		t.Fatalf("got %v, want echoed DATA ping", got)
	}
}

func TestListenerCloseStopsServe(t *testing.T) {
	registry := NewRegistry()
	l, err := NewListener(testCtx(), "127.0.0.1:0", nil, registry)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve() }()

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve returned %v, want nil after Close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

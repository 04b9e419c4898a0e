package ccp

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnReadLoopDeliversFrames(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()

	c := newConn(host, discardLogger())

	received := make(chan []byte, 1)
	closed := make(chan struct{})
	aborted := make(chan error, 1)

	go c.readLoop(
		func(payload []byte) { received <- payload },
		func() { close(closed) },
		func(err error) { aborted <- err },
	)

	want := []byte{byte(Data), 'h', 'i'}
	if err := WriteFrame(client, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}

	_ = client.Close()

	select {
	case <-closed:
	case err := <-aborted:
		t.Fatalf("expected clean close, got abort: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close callback")
	}
}

func TestConnSelfStopSwallowsReadError(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()

	c := newConn(host, discardLogger())

	closeCalled := make(chan struct{}, 1)
	abortCalled := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		c.readLoop(
			func([]byte) {},
			func() { closeCalled <- struct{}{} },
			func(error) { abortCalled <- struct{}{} },
		)
		close(done)
	}()

	c.stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readLoop did not exit after self-stop")
	}

	select {
	case <-closeCalled:
		t.Error("onClose must not fire on self-initiated stop")
	case <-abortCalled:
		t.Error("onAbort must not fire on self-initiated stop")
	default:
	}
}

func TestConnDispatchRecoversPanic(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()

	c := newConn(host, discardLogger())
	aborted := make(chan error, 1)

	go c.readLoop(
		func([]byte) { panic("boom") },
		func() {},
		func(err error) { aborted <- err },
	)

	if err := WriteFrame(client, []byte{byte(Data)}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case err := <-aborted:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("got %v, want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for abort after panic")
	}
}

func TestConnWriteFrameIsSerialized(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()
	defer host.Close()

	c := newConn(host, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _ = ReadFrame(client)
		}
	}()

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			errs <- c.writeFrame([]byte{byte(Data), 'x'})
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-errs; err != nil {
			t.Errorf("writeFrame: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for concurrent writes to be read back")
	}
}

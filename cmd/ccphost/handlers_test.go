package main

import (
	"testing"

	"github.com/ccpnet/ccp/pkg/ccp"
)

func TestRegisterDemoHandlers(t *testing.T) {
	registry := ccp.NewRegistry()
	registerDemoHandlers(registry)

	// Registering a second time must fail: registerDemoHandlers should
	// only ever be called once per registry.
	if err := registry.RegisterRequestBased("echo", func(_ string, data []byte) ([]byte, error) {
		return data, nil
	}); err == nil {
		t.Error("expected echo to already be registered")
	}
	if err := registry.RegisterRaw("tee", func(_ string, _ *ccp.SessionHandle) (ccp.RawHandler, error) {
		return nil, nil
	}); err == nil {
		t.Error("expected tee to already be registered")
	}
}

func TestTeeHandlerDoesNotPanic(t *testing.T) {
	h := newTeeHandler("127.0.0.1:12345")
	h.OnDataReceived([]byte("hello"))
	h.OnConnectionAbort()
}

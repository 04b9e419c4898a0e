package ccp

import (
	"errors"
	"testing"
)

func TestRegistryRequestBased(t *testing.T) {
	r := NewRegistry()
	fn := func(_ string, data []byte) ([]byte, error) { return data, nil }

	if err := r.RegisterRequestBased("echo", fn); err != nil {
		t.Fatalf("RegisterRequestBased: %v", err)
	}
	if _, ok := r.lookupRequestBased("echo"); !ok {
		t.Error("expected echo to be registered")
	}
	if _, ok := r.lookupRaw("echo"); ok {
		t.Error("echo should not resolve as a raw handler")
	}

	if err := r.RegisterRequestBased("echo", fn); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("got %v, want ErrAlreadyRegistered", err)
	}

	r.UnregisterRequestBased("echo")
	if _, ok := r.lookupRequestBased("echo"); ok {
		t.Error("expected echo to be unregistered")
	}
}

func TestRegistryRaw(t *testing.T) {
	r := NewRegistry()
	factory := func(_ string, _ *SessionHandle) (RawHandler, error) { return nil, nil }

	if err := r.RegisterRaw("tee", factory); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}
	if _, ok := r.lookupRaw("tee"); !ok {
		t.Error("expected tee to be registered")
	}

	r.UnregisterRaw("tee")
	if _, ok := r.lookupRaw("tee"); ok {
		t.Error("expected tee to be unregistered")
	}
}

func TestRegistryUnregisterWrongKindIsNoop(t *testing.T) {
	r := NewRegistry()
	fn := func(_ string, data []byte) ([]byte, error) { return data, nil }
	if err := r.RegisterRequestBased("echo", fn); err != nil {
		t.Fatalf("RegisterRequestBased: %v", err)
	}

	// UnregisterRaw must only ever touch the raw table, preserving the
	// asymmetry of the original protocol's plugin-unload listener.
	r.UnregisterRaw("echo")

	if _, ok := r.lookupRequestBased("echo"); !ok {
		t.Error("UnregisterRaw must not remove a request-based binding")
	}
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.UnregisterRequestBased("nope")
	r.UnregisterRaw("nope")
}

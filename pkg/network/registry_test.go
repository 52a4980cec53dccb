package network

import (
	"context"
	"errors"
	"testing"
)

type closingDriver struct {
	recordingDriver
	closed bool
	err    error
}

func (d *closingDriver) Close(context.Context) error {
	d.closed = true
	return d.err
}

func TestRegistryAddAndList(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Add(Node{Address: "10.0.0.10", Driver: &recordingDriver{addr: "10.0.0.10"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(Node{Address: "10.0.0.9", Role: "spine", Driver: &recordingDriver{addr: "10.0.0.9"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if reg.Len() != 2 {
		t.Errorf("expected 2 nodes, got %d", reg.Len())
	}

	nodes := reg.List()
	if nodes[0].Address != "10.0.0.9" {
		t.Errorf("expected natural order, got %s first", nodes[0].Address)
	}
}

func TestRegistryRejects(t *testing.T) {
	reg := NewRegistry()

	_ = reg.Add(Node{Address: "s1", Driver: &recordingDriver{}})
	if err := reg.Add(Node{Address: "s1", Driver: &recordingDriver{}}); err == nil {
		t.Error("expected error for duplicate node")
	}
	if err := reg.Add(Node{Address: "s2"}); err == nil {
		t.Error("expected error for node without driver")
	}
	if err := reg.Add(Node{Driver: &recordingDriver{}}); err == nil {
		t.Error("expected error for node without address")
	}
}

func TestRegistryDriverFor(t *testing.T) {
	reg := NewRegistry()
	drv := &recordingDriver{addr: "s1"}
	_ = reg.Add(Node{Address: "s1", Driver: drv})

	got, err := reg.DriverFor("s1")
	if err != nil {
		t.Fatalf("DriverFor: %v", err)
	}
	if got.Address() != "s1" {
		t.Errorf("expected s1, got %s", got.Address())
	}

	if _, err := reg.DriverFor("missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("expected ErrUnknownDevice, got %v", err)
	}

	reg.Remove("s1")
	if _, err := reg.Get("s1"); err == nil {
		t.Error("expected error after remove")
	}
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry()
	a := &closingDriver{}
	b := &closingDriver{err: errors.New("session gone")}
	_ = reg.Add(Node{Address: "a", Driver: a})
	_ = reg.Add(Node{Address: "b", Driver: b})
	_ = reg.Add(Node{Address: "c", Driver: &recordingDriver{}})

	err := reg.Close(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !a.closed || !b.closed {
		t.Error("expected every session driver to be closed")
	}
}

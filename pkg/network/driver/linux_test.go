//go:build linux

package driver

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/network"
)

func TestLinuxIdentity(t *testing.T) {
	d := NewLinux("10.0.0.5", "", zap.NewNop().Sugar())

	if d.Backend() != "linux" {
		t.Errorf("expected backend linux, got %q", d.Backend())
	}
	if d.Address() != "10.0.0.5" {
		t.Errorf("expected address 10.0.0.5, got %q", d.Address())
	}
	if d.bridge != "br0" {
		t.Errorf("expected default bridge br0, got %q", d.bridge)
	}

	var _ network.DeviceDriver = d
}

func TestLinuxMissingBridge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping netlink test in short mode")
	}

	d := NewLinux("10.0.0.5", "vlanfabric-absent0", zap.NewNop().Sugar())
	if err := d.CreateVLANs(context.Background(), []int{10}, false); err == nil {
		t.Error("expected error for missing bridge")
	}
	if err := d.DeleteVLANs(context.Background(), nil); err != nil {
		t.Errorf("empty delete should be a no-op, got %v", err)
	}
	if err := d.ProgramTrunks(context.Background(), nil); err != nil {
		t.Errorf("no entries should be a no-op, got %v", err)
	}
}

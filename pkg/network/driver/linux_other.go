//go:build !linux

package driver

import (
	"context"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// Linux is unavailable off Linux; every operation reports ErrNotSupported.
type Linux struct {
	address string
	bridge  string
}

func NewLinux(address, bridge string, _ *zap.SugaredLogger) *Linux {
	if bridge == "" {
		bridge = "br0"
	}
	return &Linux{address: address, bridge: bridge}
}

func (d *Linux) CreateVLANs(context.Context, []int, bool) error { return network.ErrNotSupported }

func (d *Linux) DeleteVLANs(context.Context, []int) error { return network.ErrNotSupported }

func (d *Linux) ProgramTrunks(context.Context, []network.TrunkEntry) error {
	return network.ErrNotSupported
}

func (d *Linux) Address() string { return d.address }

func (d *Linux) Backend() string { return "linux" }

var _ network.DeviceDriver = (*Linux)(nil)

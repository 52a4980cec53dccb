//go:build linux

package driver

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// Linux implements network.DeviceDriver against a VLAN-filtering Linux
// bridge on the local host. Leaf and spine ports are bridge member
// interfaces; the bridge itself carries the device's VLAN table.
type Linux struct {
	address string
	bridge  string
	log     *zap.SugaredLogger
}

// NewLinux returns a DeviceDriver backed by Linux netlink.
func NewLinux(address, bridge string, log *zap.SugaredLogger) *Linux {
	if bridge == "" {
		bridge = "br0"
	}
	return &Linux{
		address: address,
		bridge:  bridge,
		log:     log.Named("linux-driver").With("device", address, "bridge", bridge),
	}
}

func (d *Linux) bridgeLink() (netlink.Link, error) {
	link, err := netlink.LinkByName(d.bridge)
	if err != nil {
		return nil, fmt.Errorf("netlink lookup bridge %s: %w", d.bridge, err)
	}
	return link, nil
}

// vlansOn returns the VLANs configured on the link with the given index.
func vlansOn(index int) (sets.Set[int], error) {
	all, err := netlink.BridgeVlanList()
	if err != nil {
		return nil, fmt.Errorf("netlink bridge vlan list: %w", err)
	}
	out := sets.New[int]()
	for _, info := range all[int32(index)] {
		out.Insert(int(info.Vid))
	}
	return out, nil
}

// ─── VLAN Operations ─────────────────────────────────────────────────────────

func (d *Linux) CreateVLANs(ctx context.Context, ids []int, overlap bool) error {
	br, err := d.bridgeLink()
	if err != nil {
		return err
	}

	if overlap {
		have, err := vlansOn(br.Attrs().Index)
		if err != nil {
			return err
		}
		extra := have.Difference(sets.New(ids...))
		extra.Delete(defaultVLAN)
		for _, vid := range sets.List(extra) {
			if err := netlink.BridgeVlanDel(br, uint16(vid), false, false, true, false); err != nil {
				return fmt.Errorf("netlink bridge vlan del vid=%d on %s: %w", vid, d.bridge, err)
			}
		}
	}

	for _, vid := range ids {
		if err := netlink.BridgeVlanAdd(br, uint16(vid), false, false, true, false); err != nil {
			return fmt.Errorf("netlink bridge vlan add vid=%d on %s: %w", vid, d.bridge, err)
		}
	}
	d.log.Infow("VLANs created", "vlans", permitList(ids), "overlap", overlap)
	return nil
}

func (d *Linux) DeleteVLANs(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	br, err := d.bridgeLink()
	if err != nil {
		return err
	}
	for _, vid := range ids {
		if err := netlink.BridgeVlanDel(br, uint16(vid), false, false, true, false); err != nil {
			return fmt.Errorf("netlink bridge vlan del vid=%d on %s: %w", vid, d.bridge, err)
		}
	}
	d.log.Infow("VLANs deleted", "vlans", permitList(ids))
	return nil
}

// ─── Trunk Operations ────────────────────────────────────────────────────────

// ProgramTrunks replaces each port's tagged VLAN list with the permitted set.
func (d *Linux) ProgramTrunks(ctx context.Context, entries []network.TrunkEntry) error {
	ports, perms := trunkPorts(entries)
	for _, port := range ports {
		if err := d.programPort(port, sets.New(perms[port]...)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Linux) programPort(port string, want sets.Set[int]) error {
	link, err := netlink.LinkByName(port)
	if err != nil {
		return fmt.Errorf("netlink lookup %s: %w", port, err)
	}
	have, err := vlansOn(link.Attrs().Index)
	if err != nil {
		return err
	}

	stale := have.Difference(want)
	stale.Delete(defaultVLAN)
	for _, vid := range sets.List(stale) {
		if err := netlink.BridgeVlanDel(link, uint16(vid), false, false, false, true); err != nil {
			return fmt.Errorf("netlink bridge vlan del vid=%d on %s: %w", vid, port, err)
		}
	}
	for _, vid := range sets.List(want.Difference(have)) {
		if err := netlink.BridgeVlanAdd(link, uint16(vid), false, false, false, true); err != nil {
			return fmt.Errorf("netlink bridge vlan add vid=%d on %s: %w", vid, port, err)
		}
	}
	d.log.Infow("trunk programmed", "port", port, "vlans", permitList(sets.List(want)))
	return nil
}

// ─── Introspection ───────────────────────────────────────────────────────────

func (d *Linux) Address() string { return d.address }

func (d *Linux) Backend() string { return "linux" }

// Ensure Linux implements DeviceDriver at compile time.
var _ network.DeviceDriver = (*Linux)(nil)

package network

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/network/topology"
)

// OwnerDHCP is the device owner of DHCP agent ports.
const OwnerDHCP = "network:dhcp"

// Options tunes a Manager.
type Options struct {
	// SyncOverlap makes full sync replace the VLAN set on each device
	// instead of merging into it.
	SyncOverlap bool
	Metrics     *Metrics
}

// Manager reacts to network and port lifecycle events by computing deltas
// and pushing them to the switches of the fabric.
type Manager struct {
	fabric   *topology.Fabric
	store    AssignmentStore
	registry *Registry
	engine   *Engine
	gate     *Gate
	metrics  *Metrics
	watchdog *Watchdog
	log      *zap.SugaredLogger

	syncOverlap bool
}

// NewManager wires a Manager over the fabric, store and driver registry.
func NewManager(fabric *topology.Fabric, store AssignmentStore, registry *Registry, opts Options, log *zap.SugaredLogger) *Manager {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.RegisteredDev.Set(float64(registry.Len()))

	return &Manager{
		fabric:      fabric,
		store:       store,
		registry:    registry,
		engine:      NewEngine(fabric, store),
		gate:        NewGate(metrics),
		metrics:     metrics,
		log:         log,
		syncOverlap: opts.SyncOverlap,
	}
}

// Engine returns the delta engine used by the manager.
func (m *Manager) Engine() *Engine { return m.engine }

// Metrics returns the manager's collectors.
func (m *Manager) Metrics() *Metrics { return m.metrics }

func managedOwner(owner string) bool {
	return strings.HasPrefix(owner, "compute") || owner == OwnerDHCP
}

// ─── Network lifecycle ──────────────────────────────────────────────────────

// OnNetworkCreated records the network's first segment. Repeated
// notifications for a known network are ignored.
func (m *Manager) OnNetworkCreated(ctx context.Context, tenantID, networkID string, segments []Segment) error {
	log := m.log.With("tenant", tenantID, "network", networkID)

	if len(segments) == 0 {
		log.Warnw("network has no segments, not recording")
		m.metrics.Events.WithLabelValues("network_create", "ignored").Inc()
		return nil
	}

	return m.gate.Do(ctx, func(ctx context.Context) error {
		known, err := m.store.IsNetworkKnown(tenantID, networkID)
		if err != nil {
			return fmt.Errorf("checking network %s: %w", networkID, err)
		}
		if known {
			log.Infow("network already recorded")
			m.metrics.Events.WithLabelValues("network_create", "duplicate").Inc()
			return nil
		}

		seg := segments[0]
		seg.TenantID = tenantID
		seg.NetworkID = networkID
		if err := m.store.CreateNetwork(seg); err != nil {
			return fmt.Errorf("recording network %s: %w", networkID, err)
		}

		log.Infow("network recorded", "segmentation_id", seg.SegmentationID, "type", seg.SegmentationType)
		m.metrics.Events.WithLabelValues("network_create", "recorded").Inc()
		return nil
	})
}

// OnNetworkDeleted forgets the network. Switches are not touched; VLANs are
// withdrawn as the network's ports go away.
func (m *Manager) OnNetworkDeleted(ctx context.Context, tenantID, networkID string) error {
	return m.gate.Do(ctx, func(ctx context.Context) error {
		known, err := m.store.IsNetworkKnown(tenantID, networkID)
		if err != nil {
			return fmt.Errorf("checking network %s: %w", networkID, err)
		}
		if !known {
			m.log.Debugw("delete for unknown network", "tenant", tenantID, "network", networkID)
			m.metrics.Events.WithLabelValues("network_delete", "ignored").Inc()
			return nil
		}
		if err := m.store.DeleteNetwork(tenantID, networkID); err != nil {
			return fmt.Errorf("removing network %s: %w", networkID, err)
		}

		m.log.Infow("network removed", "tenant", tenantID, "network", networkID)
		m.metrics.Events.WithLabelValues("network_delete", "removed").Inc()
		return nil
	})
}

// ─── Port lifecycle ─────────────────────────────────────────────────────────

// OnPortCreated records the port and, if it is the first port of its
// network on the host, provisions the VLAN across the fabric.
func (m *Manager) OnPortCreated(ctx context.Context, ev PortEvent) error {
	if !managedOwner(ev.DeviceOwner) {
		m.log.Debugw("ignoring port with unmanaged owner", "port", ev.PortID, "owner", ev.DeviceOwner)
		m.metrics.Events.WithLabelValues("port_create", "ignored").Inc()
		return nil
	}
	return m.gate.Do(ctx, func(ctx context.Context) error {
		return m.createPort(ctx, ev)
	})
}

// OnPortUpdated handles host migration: the old host is torn down and the
// new one provisioned within a single gate hold.
func (m *Manager) OnPortUpdated(ctx context.Context, ev PortEvent) error {
	if !managedOwner(ev.DeviceOwner) {
		m.metrics.Events.WithLabelValues("port_update", "ignored").Inc()
		return nil
	}

	return m.gate.Do(ctx, func(ctx context.Context) error {
		oldHost, err := m.store.PortHost(ev.TenantID, ev.NetworkID, ev.DeviceID, ev.PortID)
		if err != nil {
			return fmt.Errorf("looking up port %s: %w", ev.PortID, err)
		}
		if oldHost == "" || oldHost == ev.HostID {
			m.log.Debugw("port update without host change", "port", ev.PortID, "host", ev.HostID)
			m.metrics.Events.WithLabelValues("port_update", "unchanged").Inc()
			return nil
		}

		m.log.Infow("port migrating", "port", ev.PortID, "from", oldHost, "to", ev.HostID)
		m.metrics.Events.WithLabelValues("port_update", "migrated").Inc()

		old := ev
		old.HostID = oldHost
		if err := m.deletePort(ctx, old); err != nil {
			return err
		}
		return m.createPort(ctx, ev)
	})
}

// OnPortDeleted withdraws the VLAN when the last port of the network
// leaves the host, then forgets the port.
func (m *Manager) OnPortDeleted(ctx context.Context, ev PortEvent) error {
	if !managedOwner(ev.DeviceOwner) {
		m.metrics.Events.WithLabelValues("port_delete", "ignored").Inc()
		return nil
	}
	return m.gate.Do(ctx, func(ctx context.Context) error {
		return m.deletePort(ctx, ev)
	})
}

// createPort must be called with the gate held.
func (m *Manager) createPort(ctx context.Context, ev PortEvent) error {
	log := m.log.With("port", ev.PortID, "network", ev.NetworkID, "host", ev.HostID)

	known, err := m.store.IsPortKnown(ev.Assignment)
	if err != nil {
		return fmt.Errorf("checking port %s: %w", ev.PortID, err)
	}
	if known {
		log.Infow("port already recorded")
		m.metrics.Events.WithLabelValues("port_create", "duplicate").Inc()
		return nil
	}
	if err := m.store.CreatePort(ev.Assignment); err != nil {
		return fmt.Errorf("recording port %s: %w", ev.PortID, err)
	}

	count, err := m.store.PortCount(ev.NetworkID, ev.HostID)
	if err != nil {
		return fmt.Errorf("counting ports of %s on %s: %w", ev.NetworkID, ev.HostID, err)
	}
	if count != 1 {
		log.Infow("network already present on host", "ports", count)
		m.metrics.Events.WithLabelValues("port_create", "present").Inc()
		return nil
	}

	seg, err := m.segmentFor(ev)
	if err != nil {
		return err
	}
	if seg == nil || !seg.IsVLAN() {
		log.Infow("network is not vlan backed, nothing to program")
		m.metrics.Events.WithLabelValues("port_create", "unsupported").Inc()
		return nil
	}

	delta, err := m.engine.CreateDelta(ev.NetworkID, ev.HostID, seg.SegmentationID)
	if err != nil {
		return fmt.Errorf("computing create delta: %w", err)
	}
	m.metrics.Deltas.WithLabelValues("create").Inc()
	m.metrics.Events.WithLabelValues("port_create", "provisioned").Inc()

	res := m.apply(ctx, delta, false)
	log.Infow("vlan provisioned", "vlan", seg.SegmentationID,
		"applied", len(res.Applied), "failed", len(res.Failed), "skipped", len(res.Skipped))
	return nil
}

// deletePort must be called with the gate held.
func (m *Manager) deletePort(ctx context.Context, ev PortEvent) error {
	log := m.log.With("port", ev.PortID, "network", ev.NetworkID, "host", ev.HostID)

	known, err := m.store.IsPortKnown(ev.Assignment)
	if err != nil {
		return fmt.Errorf("checking port %s: %w", ev.PortID, err)
	}
	if !known {
		log.Infow("port not recorded")
		m.metrics.Events.WithLabelValues("port_delete", "unknown").Inc()
		return nil
	}

	count, err := m.store.PortCount(ev.NetworkID, ev.HostID)
	if err != nil {
		return fmt.Errorf("counting ports of %s on %s: %w", ev.NetworkID, ev.HostID, err)
	}

	if count == 1 {
		seg, err := m.segmentFor(ev)
		if err != nil {
			return err
		}
		if seg != nil && seg.IsVLAN() {
			delta, err := m.engine.DeleteDelta(ev.NetworkID, ev.HostID, seg.SegmentationID)
			if err != nil {
				return fmt.Errorf("computing delete delta: %w", err)
			}
			m.metrics.Deltas.WithLabelValues("delete").Inc()
			m.metrics.Events.WithLabelValues("port_delete", "withdrawn").Inc()

			res := m.apply(ctx, delta, false)
			log.Infow("vlan withdrawn", "vlan", seg.SegmentationID,
				"applied", len(res.Applied), "failed", len(res.Failed), "skipped", len(res.Skipped))
		} else {
			log.Infow("network is not vlan backed, nothing to withdraw")
		}
	} else {
		log.Infow("other ports of the network remain on host", "ports", count)
		m.metrics.Events.WithLabelValues("port_delete", "retained").Inc()
	}

	if err := m.store.DeletePort(ev.Assignment); err != nil {
		return fmt.Errorf("removing port %s: %w", ev.PortID, err)
	}
	return nil
}

// segmentFor prefers the segment carried on the event and falls back to
// the one recorded for the network.
func (m *Manager) segmentFor(ev PortEvent) (*Segment, error) {
	if len(ev.Segments) > 0 {
		seg := ev.Segments[0]
		return &seg, nil
	}
	seg, err := m.store.GetSegment(ev.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("loading segment of %s: %w", ev.NetworkID, err)
	}
	return seg, nil
}

// ─── Apply ──────────────────────────────────────────────────────────────────

// apply pushes a delta device by device. A failing or unknown device is
// logged and skipped; the others are still programmed. Per device the order
// is create, trunk, delete, stopping at the first failure.
func (m *Manager) apply(ctx context.Context, delta Delta, overlap bool) ApplyResult {
	res := ApplyResult{}

	for _, ip := range delta.Devices() {
		dd := delta[ip]
		if dd.Empty() {
			continue
		}

		drv, err := m.registry.DriverFor(ip)
		if err != nil {
			m.log.Warnw("no driver for device, skipping", "device", ip, "error", err)
			res.Skipped = append(res.Skipped, ip)
			continue
		}

		if err := m.applyDevice(ctx, ip, drv, dd, overlap); err != nil {
			m.log.Warnw("device programming failed", "device", ip, "error", err)
			res.Failed = append(res.Failed, ip)
			continue
		}
		res.Applied = append(res.Applied, ip)
	}

	return res
}

func (m *Manager) applyDevice(ctx context.Context, ip string, drv DeviceDriver, dd *DeviceDelta, overlap bool) error {
	if dd.VLANCreate.Len() > 0 {
		err := drv.CreateVLANs(ctx, sortedVLANs(dd.VLANCreate), overlap)
		m.metrics.deviceOp(ip, "create_vlans", err)
		if err != nil {
			return fmt.Errorf("creating vlans: %w", err)
		}
	}

	if len(dd.Trunks) > 0 {
		err := drv.ProgramTrunks(ctx, dd.Trunks)
		m.metrics.deviceOp(ip, "program_trunks", err)
		if err != nil {
			return fmt.Errorf("programming trunks: %w", err)
		}
	}

	if dd.VLANDelete.Len() > 0 {
		err := drv.DeleteVLANs(ctx, sortedVLANs(dd.VLANDelete))
		m.metrics.deviceOp(ip, "delete_vlans", err)
		if err != nil {
			return fmt.Errorf("deleting vlans: %w", err)
		}
	}

	m.log.Debugw("device programmed", "device", ip, "backend", drv.Backend())
	return nil
}

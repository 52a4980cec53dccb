package network

import (
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/glennswest/vlanfabric/pkg/network/topology"
)

// Engine computes per-switch deltas from the fabric and the assignment
// store. It never talks to devices.
type Engine struct {
	fabric *topology.Fabric
	store  AssignmentStore
}

// NewEngine returns an Engine over the given fabric and store.
func NewEngine(fabric *topology.Fabric, store AssignmentStore) *Engine {
	return &Engine{fabric: fabric, store: store}
}

// vlanLookup memoises ActiveVLANs for the duration of one computation.
type vlanLookup struct {
	store AssignmentStore
	cache map[string][]int
}

func (l *vlanLookup) get(host string) ([]int, error) {
	if v, ok := l.cache[host]; ok {
		return v, nil
	}
	v, err := l.store.ActiveVLANs(host)
	if err != nil {
		return nil, fmt.Errorf("active vlans for host %s: %w", host, err)
	}
	l.cache[host] = v
	return v, nil
}

func (e *Engine) lookup() *vlanLookup {
	return &vlanLookup{store: e.store, cache: make(map[string][]int)}
}

// ─── Create ─────────────────────────────────────────────────────────────────

// CreateDelta computes the changes needed after the first port of a network
// lands on a host. The assignment is expected to be recorded already.
func (e *Engine) CreateDelta(networkID, hostID string, vlanID int) (Delta, error) {
	vlans := e.lookup()

	active, err := vlans.get(hostID)
	if err != nil {
		return nil, err
	}
	hostVLANs := sets.New(active...).Insert(vlanID)

	carrying, err := e.store.HostsCarrying(networkID)
	if err != nil {
		return nil, fmt.Errorf("hosts carrying network %s: %w", networkID, err)
	}
	carriers := sets.New(carrying...)

	delta := Delta{}
	leafRef := make(map[string]sets.Set[int])
	affected := sets.New[string]()

	for _, link := range e.fabric.HostLinks() {
		ref, ok := leafRef[link.LeafIP]
		if !ok {
			ref = sets.New[int]()
			leafRef[link.LeafIP] = ref
		}

		if carriers.Has(link.Host) {
			v, err := vlans.get(link.Host)
			if err != nil {
				return nil, err
			}
			ref.Insert(v...)
		}

		if link.Host == hostID {
			ref.Insert(vlanID)
			dd := delta.device(link.LeafIP)
			dd.VLANCreate.Insert(hostVLANs.UnsortedList()...)
			dd.Trunks = append(dd.Trunks, newTrunkEntry(link.Ports, hostVLANs))
			affected.Insert(link.LeafIP)
		}
	}

	// Every uplink of an affected leaf is reprogrammed, so a spine
	// reaching the leaf over several links gets an entry per link.
	for _, link := range e.fabric.LeafLinks() {
		if !affected.Has(link.LeafIP) {
			continue
		}
		ref := leafRef[link.LeafIP]

		sd := delta.device(link.SpineIP)
		sd.VLANCreate.Insert(ref.UnsortedList()...)
		sd.Trunks = append(sd.Trunks, newTrunkEntry(link.SpinePorts, ref))

		ld := delta[link.LeafIP]
		ld.Trunks = append(ld.Trunks, newTrunkEntry(link.LeafPorts, ref))
	}

	return delta, nil
}

// ─── Delete ─────────────────────────────────────────────────────────────────

// DeleteDelta computes the changes needed when the last port of a network
// leaves a host. The assignment is expected to still be recorded.
func (e *Engine) DeleteDelta(networkID, hostID string, vlanID int) (Delta, error) {
	vlans := e.lookup()

	active, err := vlans.get(hostID)
	if err != nil {
		return nil, err
	}
	remaining := sets.New(active...)
	remaining.Delete(vlanID)

	carrying, err := e.store.HostsCarrying(networkID)
	if err != nil {
		return nil, fmt.Errorf("hosts carrying network %s: %w", networkID, err)
	}
	carriers := sets.New(carrying...)

	delta := Delta{}
	leafRef := make(map[string]sets.Set[int])
	stillReferenced := make(map[string]bool)
	affected := sets.New[string]()

	for _, link := range e.fabric.HostLinks() {
		ref, ok := leafRef[link.LeafIP]
		if !ok {
			ref = sets.New[int]()
			leafRef[link.LeafIP] = ref
		}

		v, err := vlans.get(link.Host)
		if err != nil {
			return nil, err
		}
		if carriers.Has(link.Host) {
			ref.Insert(v...)
		}

		if link.Host == hostID {
			dd := delta.device(link.LeafIP)
			dd.Trunks = append(dd.Trunks, newTrunkEntry(link.Ports, remaining))
			affected.Insert(link.LeafIP)
			// Only the first link of the departing host feeds leafRef.
			carriers.Delete(link.Host)
		} else if slices.Contains(v, vlanID) {
			stillReferenced[link.LeafIP] = true
		}
	}

	for leaf := range affected {
		if stillReferenced[leaf] {
			continue
		}
		leafRef[leaf].Delete(vlanID)
		delta[leaf].VLANDelete.Insert(vlanID)
	}

	// A spine keeps the VLAN while any of its leaves still references it.
	spineScore := make(map[string]int)
	for _, link := range e.fabric.LeafLinks() {
		if _, known := leafRef[link.LeafIP]; known {
			if _, ok := spineScore[link.SpineIP]; !ok {
				spineScore[link.SpineIP] = 0
			}
			if stillReferenced[link.LeafIP] {
				spineScore[link.SpineIP]++
			}
		}

		if !affected.Has(link.LeafIP) {
			continue
		}
		ref := leafRef[link.LeafIP]

		sd := delta.device(link.SpineIP)
		sd.Trunks = append(sd.Trunks, newTrunkEntry(link.SpinePorts, ref))

		ld := delta[link.LeafIP]
		if ld.VLANDelete.Len() > 0 {
			ld.Trunks = append(ld.Trunks, newTrunkEntry(link.LeafPorts, ref))
		}
	}

	for spine, score := range spineScore {
		if score != 0 {
			continue
		}
		if sd, ok := delta[spine]; ok {
			sd.VLANDelete.Insert(vlanID)
		}
	}

	return delta, nil
}

// ─── Full sync ──────────────────────────────────────────────────────────────

// FullSyncDelta computes the add-only delta that brings every switch in line
// with all recorded assignments. VLANs unknown to the store are left alone.
func (e *Engine) FullSyncDelta() (Delta, error) {
	hostVLANs, err := e.store.AllHostVLANs()
	if err != nil {
		return nil, fmt.Errorf("loading host vlans: %w", err)
	}

	delta := Delta{}
	if len(hostVLANs) == 0 {
		return delta, nil
	}

	leafRef := make(map[string]sets.Set[int])

	for _, link := range e.fabric.HostLinks() {
		v, ok := hostVLANs[link.Host]
		if !ok {
			continue
		}
		host := sets.New(v...)

		ref, ok := leafRef[link.LeafIP]
		if !ok {
			ref = sets.New[int]()
			leafRef[link.LeafIP] = ref
		}
		ref.Insert(v...)

		dd := delta.device(link.LeafIP)
		dd.Trunks = append(dd.Trunks, newTrunkEntry(link.Ports, host))
	}

	for leaf, ref := range leafRef {
		delta[leaf].VLANCreate.Insert(ref.UnsortedList()...)
	}

	for _, link := range e.fabric.LeafLinks() {
		ref, ok := leafRef[link.LeafIP]
		if !ok {
			continue
		}

		sd := delta.device(link.SpineIP)
		sd.VLANCreate.Insert(ref.UnsortedList()...)
		sd.Trunks = append(sd.Trunks, newTrunkEntry(link.SpinePorts, ref))

		ld := delta[link.LeafIP]
		ld.Trunks = append(ld.Trunks, newTrunkEntry(link.LeafPorts, ref))
	}

	return delta, nil
}

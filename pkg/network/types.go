package network

import (
	"encoding/json"
	"slices"
	"sort"

	"github.com/maruel/natural"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"
)

// SegmentTypeVLAN is the only segmentation type the fabric programs.
const SegmentTypeVLAN = "vlan"

// Segment is the network-to-VLAN binding recorded when a network is created.
type Segment struct {
	TenantID         string `json:"tenantID" yaml:"tenantID"`
	NetworkID        string `json:"networkID" yaml:"networkID"`
	SegmentationID   int    `json:"segmentationID" yaml:"segmentationID"`
	SegmentationType string `json:"segmentationType" yaml:"segmentationType"`
}

// IsVLAN reports whether the segment is VLAN-backed.
func (s Segment) IsVLAN() bool { return s.SegmentationType == SegmentTypeVLAN }

// Assignment records that a port of a network sits on a host.
type Assignment struct {
	TenantID  string `json:"tenantID" yaml:"tenantID"`
	NetworkID string `json:"networkID" yaml:"networkID"`
	HostID    string `json:"hostID" yaml:"hostID"`
	DeviceID  string `json:"deviceID" yaml:"deviceID"`
	PortID    string `json:"portID" yaml:"portID"`
}

// PortEvent is a port lifecycle notification from the cloud controller.
type PortEvent struct {
	Assignment
	DeviceOwner string    `json:"deviceOwner"`
	Segments    []Segment `json:"segments,omitempty"`
}

// TrunkEntry sets the permitted VLAN list on a group of switch ports.
// The list replaces whatever the ports carried before.
type TrunkEntry struct {
	Ports []string `json:"ports"`
	VLANs []int    `json:"vlans"`
}

func newTrunkEntry(ports []string, vlans sets.Set[int]) TrunkEntry {
	p := slices.Clone(ports)
	sort.SliceStable(p, func(i, j int) bool { return natural.Less(p[i], p[j]) })
	return TrunkEntry{Ports: p, VLANs: sets.List(vlans)}
}

// DeviceDelta is the set of changes computed for one switch.
type DeviceDelta struct {
	VLANCreate sets.Set[int]
	VLANDelete sets.Set[int]
	Trunks     []TrunkEntry
}

func newDeviceDelta() *DeviceDelta {
	return &DeviceDelta{
		VLANCreate: sets.New[int](),
		VLANDelete: sets.New[int](),
	}
}

// Empty reports whether applying the delta would touch the device.
func (d *DeviceDelta) Empty() bool {
	return d.VLANCreate.Len() == 0 && d.VLANDelete.Len() == 0 && len(d.Trunks) == 0
}

// MarshalJSON renders the VLAN sets as sorted lists.
func (d *DeviceDelta) MarshalJSON() ([]byte, error) {
	trunks := d.Trunks
	if trunks == nil {
		trunks = []TrunkEntry{}
	}
	return json.Marshal(struct {
		VLANCreate []int        `json:"vlanCreate"`
		VLANDelete []int        `json:"vlanDelete"`
		Trunks     []TrunkEntry `json:"trunks"`
	}{sets.List(d.VLANCreate), sets.List(d.VLANDelete), trunks})
}

func sortedVLANs(s sets.Set[int]) []int { return sets.List(s) }

// Delta maps switch IPs to the changes computed for them.
type Delta map[string]*DeviceDelta

func (d Delta) device(ip string) *DeviceDelta {
	dd, ok := d[ip]
	if !ok {
		dd = newDeviceDelta()
		d[ip] = dd
	}
	return dd
}

// Devices returns the switch IPs in the delta in natural order.
func (d Delta) Devices() []string {
	ips := lo.Keys(d)
	sort.Slice(ips, func(i, j int) bool { return natural.Less(ips[i], ips[j]) })
	return ips
}

// ApplyResult summarises what happened to each device during an apply.
type ApplyResult struct {
	Applied []string `json:"applied"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
}

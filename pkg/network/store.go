package network

// AssignmentStore persists network segments and port placements. Absence is
// reported with zero values (false, "", nil), not errors; errors mean the
// backend itself failed.
type AssignmentStore interface {
	IsNetworkKnown(tenantID, networkID string) (bool, error)
	CreateNetwork(seg Segment) error
	DeleteNetwork(tenantID, networkID string) error
	// GetSegment returns nil when the network is unknown.
	GetSegment(networkID string) (*Segment, error)

	IsPortKnown(a Assignment) (bool, error)
	CreatePort(a Assignment) error
	DeletePort(a Assignment) error
	// PortHost returns the host currently recorded for the port, or "".
	PortHost(tenantID, networkID, deviceID, portID string) (string, error)
	// PortCount returns how many ports of the network sit on the host.
	PortCount(networkID, hostID string) (int, error)
	// HostsCarrying returns the distinct hosts with a port in the network.
	HostsCarrying(networkID string) ([]string, error)

	// ActiveVLANs returns the sorted VLAN IDs of VLAN-typed networks that
	// have at least one port on the host.
	ActiveVLANs(hostID string) ([]int, error)
	// AllHostVLANs is ActiveVLANs for every host with a port.
	AllHostVLANs() (map[string][]int, error)
}

package network

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/glennswest/vlanfabric/pkg/network/topology"
	"go.uber.org/zap"
)

// fakeStore is an in-memory AssignmentStore for exercising the engine and
// manager without a database.
type fakeStore struct {
	mu       sync.Mutex
	networks map[string]Segment
	ports    []Assignment
	failOn   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{networks: make(map[string]Segment)}
}

var errFakeStore = errors.New("fake store failure")

func (s *fakeStore) fail(op string) error {
	if s.failOn == op {
		return errFakeStore
	}
	return nil
}

func (s *fakeStore) IsNetworkKnown(tenantID, networkID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.networks[networkID]
	return ok && seg.TenantID == tenantID, s.fail("IsNetworkKnown")
}

func (s *fakeStore) CreateNetwork(seg Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateNetwork"); err != nil {
		return err
	}
	s.networks[seg.NetworkID] = seg
	return nil
}

func (s *fakeStore) DeleteNetwork(tenantID, networkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.networks, networkID)
	return nil
}

func (s *fakeStore) GetSegment(networkID string) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.networks[networkID]
	if !ok {
		return nil, nil
	}
	return &seg, nil
}

func (s *fakeStore) IsPortKnown(a Assignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.ports, a), nil
}

func (s *fakeStore) CreatePort(a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePort"); err != nil {
		return err
	}
	s.ports = append(s.ports, a)
	return nil
}

func (s *fakeStore) DeletePort(a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = slices.DeleteFunc(s.ports, func(p Assignment) bool { return p == a })
	return nil
}

func (s *fakeStore) PortHost(tenantID, networkID, deviceID, portID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ports {
		if p.TenantID == tenantID && p.NetworkID == networkID && p.DeviceID == deviceID && p.PortID == portID {
			return p.HostID, nil
		}
	}
	return "", nil
}

func (s *fakeStore) PortCount(networkID, hostID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.ports {
		if p.NetworkID == networkID && p.HostID == hostID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) HostsCarrying(networkID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.ports {
		if p.NetworkID == networkID && !slices.Contains(out, p.HostID) {
			out = append(out, p.HostID)
		}
	}
	return out, nil
}

func (s *fakeStore) ActiveVLANs(hostID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ActiveVLANs"); err != nil {
		return nil, err
	}
	return s.activeVLANsLocked(hostID), nil
}

func (s *fakeStore) activeVLANsLocked(hostID string) []int {
	var out []int
	for _, p := range s.ports {
		if p.HostID != hostID {
			continue
		}
		seg, ok := s.networks[p.NetworkID]
		if !ok || !seg.IsVLAN() || slices.Contains(out, seg.SegmentationID) {
			continue
		}
		out = append(out, seg.SegmentationID)
	}
	sort.Ints(out)
	return out
}

func (s *fakeStore) AllHostVLANs() (map[string][]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AllHostVLANs"); err != nil {
		return nil, err
	}
	out := make(map[string][]int)
	for _, p := range s.ports {
		if _, done := out[p.HostID]; done {
			continue
		}
		if v := s.activeVLANsLocked(p.HostID); len(v) > 0 {
			out[p.HostID] = v
		}
	}
	return out, nil
}

// seed records a VLAN network with one port per listed host.
func (s *fakeStore) seed(networkID string, vlan int, hosts ...string) {
	s.networks[networkID] = Segment{TenantID: "t1", NetworkID: networkID, SegmentationID: vlan, SegmentationType: SegmentTypeVLAN}
	for _, h := range hosts {
		s.ports = append(s.ports, Assignment{TenantID: "t1", NetworkID: networkID, HostID: h, DeviceID: "vm-" + h, PortID: networkID + "-" + h})
	}
}

// call is one recorded driver invocation.
type call struct {
	Op      string
	VLANs   []int
	Overlap bool
	Trunks  []TrunkEntry
}

// recordingDriver is a DeviceDriver that remembers what it was asked to do.
type recordingDriver struct {
	mu     sync.Mutex
	addr   string
	calls  []call
	failOp string
}

var _ DeviceDriver = (*recordingDriver)(nil)

func (d *recordingDriver) record(c call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	if d.failOp == c.Op {
		return errors.New("device refused " + c.Op)
	}
	return nil
}

func (d *recordingDriver) CreateVLANs(_ context.Context, ids []int, overlap bool) error {
	return d.record(call{Op: "create", VLANs: ids, Overlap: overlap})
}

func (d *recordingDriver) DeleteVLANs(_ context.Context, ids []int) error {
	return d.record(call{Op: "delete", VLANs: ids})
}

func (d *recordingDriver) ProgramTrunks(_ context.Context, entries []TrunkEntry) error {
	return d.record(call{Op: "trunk", Trunks: entries})
}

func (d *recordingDriver) Address() string { return d.addr }
func (d *recordingDriver) Backend() string { return "recording" }

func (d *recordingDriver) ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Op
	}
	return out
}

// twoLeafFabric is leaves L1 (h1) and L2 (h2) under spine S1.
func twoLeafFabric() *topology.Fabric {
	f, err := topology.New(
		[]topology.LeafSwitch{
			{IP: "L1", Connections: []topology.HostLink{{Host: "h1", Ports: []string{"g1/0/1"}}}},
			{IP: "L2", Connections: []topology.HostLink{{Host: "h2", Ports: []string{"g1/0/1"}}}},
		},
		[]topology.SpineSwitch{
			{IP: "S1", Connections: []topology.LeafLink{
				{LeafIP: "L1", LeafPorts: []string{"g1/0/1"}, SpinePorts: []string{"g1/0/1"}},
				{LeafIP: "L2", LeafPorts: []string{"g1/0/1"}, SpinePorts: []string{"g1/0/2"}},
			}},
		},
		"",
	)
	if err != nil {
		panic(err)
	}
	return f
}

// newTestManager wires a Manager with a recording driver per fabric device.
func newTestManager(f *topology.Fabric, s AssignmentStore) (*Manager, map[string]*recordingDriver) {
	reg := NewRegistry()
	drivers := make(map[string]*recordingDriver)
	for _, d := range f.Devices() {
		drv := &recordingDriver{addr: d.IP}
		drivers[d.IP] = drv
		if err := reg.Add(Node{Address: d.IP, OEM: d.OEM, Role: d.Role, Driver: drv}); err != nil {
			panic(err)
		}
	}
	return NewManager(f, s, reg, Options{}, zap.NewNop().Sugar()), drivers
}

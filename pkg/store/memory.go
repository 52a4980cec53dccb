package store

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// State is the persisted form of a MemoryStore.
type State struct {
	Networks map[string]network.Segment `yaml:"networks"`
	Ports    []network.Assignment       `yaml:"ports"`
}

// NewState returns an empty initialized state.
func NewState() *State {
	return &State{Networks: make(map[string]network.Segment)}
}

// MemoryStore keeps assignments in memory. When created with a path every
// mutation is written back to that YAML file.
type MemoryStore struct {
	mu   sync.RWMutex
	path string
	data *State
}

// NewMemoryStore returns a store with no persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: NewState()}
}

// NewFileStore loads the YAML state at path, starting empty when the file
// does not exist yet. The parent directory is created if needed.
func NewFileStore(path string) (*MemoryStore, error) {
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	s := &MemoryStore{path: path, data: NewState()}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var state State
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("parsing fabric state: %w", err)
	}
	if state.Networks == nil {
		state.Networks = make(map[string]network.Segment)
	}

	s.mu.Lock()
	s.data = &state
	s.mu.Unlock()
	return nil
}

// clone returns a copy of the state that can be mutated independently.
func (st *State) clone() *State {
	return &State{
		Networks: maps.Clone(st.Networks),
		Ports:    slices.Clone(st.Ports),
	}
}

// commitLocked persists next and only then makes it the live state, so a
// failed write leaves memory untouched. Must be called with s.mu held.
func (s *MemoryStore) commitLocked(next *State) error {
	if err := s.save(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *MemoryStore) save(state *State) error {
	if s.path == "" {
		return nil
	}

	raw, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling fabric state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing fabric state to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing fabric state %s: %w", s.path, err)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// ─── Networks ───────────────────────────────────────────────────────────────

func (s *MemoryStore) IsNetworkKnown(tenantID, networkID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.data.Networks[networkID]
	return ok && seg.TenantID == tenantID, nil
}

func (s *MemoryStore) CreateNetwork(seg network.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	next.Networks[seg.NetworkID] = seg
	return s.commitLocked(next)
}

func (s *MemoryStore) DeleteNetwork(tenantID, networkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.data.Networks[networkID]
	if !ok || seg.TenantID != tenantID {
		return nil
	}
	next := s.data.clone()
	delete(next.Networks, networkID)
	return s.commitLocked(next)
}

func (s *MemoryStore) GetSegment(networkID string) (*network.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.data.Networks[networkID]
	if !ok {
		return nil, nil
	}
	return &seg, nil
}

// ─── Ports ──────────────────────────────────────────────────────────────────

func (s *MemoryStore) IsPortKnown(a network.Assignment) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.data.Ports, a), nil
}

func (s *MemoryStore) CreatePort(a network.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	next.Ports = append(next.Ports, a)
	return s.commitLocked(next)
}

func (s *MemoryStore) DeletePort(a network.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.data.Ports, a) {
		return nil
	}
	next := s.data.clone()
	next.Ports = slices.DeleteFunc(next.Ports, func(p network.Assignment) bool { return p == a })
	return s.commitLocked(next)
}

func (s *MemoryStore) PortHost(tenantID, networkID, deviceID, portID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.Ports {
		if p.TenantID == tenantID && p.NetworkID == networkID && p.DeviceID == deviceID && p.PortID == portID {
			return p.HostID, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) PortCount(networkID, hostID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.data.Ports {
		if p.NetworkID == networkID && p.HostID == hostID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) HostsCarrying(networkID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, p := range s.data.Ports {
		if p.NetworkID == networkID && !slices.Contains(out, p.HostID) {
			out = append(out, p.HostID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ─── VLAN views ─────────────────────────────────────────────────────────────

func (s *MemoryStore) ActiveVLANs(hostID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostVLANsLocked()[hostID], nil
}

func (s *MemoryStore) AllHostVLANs() (map[string][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostVLANsLocked(), nil
}

func (s *MemoryStore) hostVLANsLocked() map[string][]int {
	out := make(map[string][]int)
	for _, p := range s.data.Ports {
		seg, ok := s.data.Networks[p.NetworkID]
		if !ok || !seg.IsVLAN() {
			continue
		}
		if !slices.Contains(out[p.HostID], seg.SegmentationID) {
			out[p.HostID] = append(out[p.HostID], seg.SegmentationID)
		}
	}
	for _, v := range out {
		sort.Ints(v)
	}
	return out
}

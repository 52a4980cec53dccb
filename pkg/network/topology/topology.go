package topology

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultOEM is the vendor tag applied to switches that do not name one.
const DefaultOEM = "hp"

// Device roles.
const (
	RoleLeaf  = "leaf"
	RoleSpine = "spine"
)

// HostLink records which leaf ports a compute host is cabled to.
type HostLink struct {
	Host  string   `json:"host" yaml:"host"`
	Ports []string `json:"ports" yaml:"ports"`
}

// LeafSwitch is a top-of-rack switch and the hosts attached to it.
type LeafSwitch struct {
	IP          string     `json:"ip" yaml:"ip"`
	OEM         string     `json:"oem" yaml:"oem"`
	Connections []HostLink `json:"connections" yaml:"hosts"`
}

// LeafLink is an uplink between a spine and a leaf. LeafPorts live on the
// leaf, SpinePorts on the spine.
type LeafLink struct {
	LeafIP     string   `json:"leafIP" yaml:"leafIP"`
	LeafPorts  []string `json:"leafPorts" yaml:"leafPorts"`
	SpinePorts []string `json:"spinePorts" yaml:"spinePorts"`
}

// SpineSwitch is an aggregation switch and its leaf uplinks.
type SpineSwitch struct {
	IP          string     `json:"ip" yaml:"ip"`
	OEM         string     `json:"oem" yaml:"oem"`
	Connections []LeafLink `json:"connections" yaml:"leaves"`
}

// LeafHostLink is a HostLink annotated with the leaf it hangs off.
type LeafHostLink struct {
	LeafIP string
	HostLink
}

// SpineLeafLink is a LeafLink annotated with the spine it hangs off.
type SpineLeafLink struct {
	SpineIP string
	LeafLink
}

// Device is a managed switch of either role.
type Device struct {
	IP   string `json:"ip"`
	OEM  string `json:"oem"`
	Role string `json:"role"`
}

// Fabric is the static cabling model. It is built once by New and never
// mutated afterwards, so it is safe for concurrent readers.
type Fabric struct {
	leaves     []LeafSwitch
	spines     []SpineSwitch
	hostLinks  []LeafHostLink
	leafLinks  []SpineLeafLink
	leafIndex  map[string]int
	spineIndex map[string]int
}

// New builds a Fabric from leaf and spine descriptions. Switches listed
// twice under the same IP have their connections merged. Empty OEM tags
// default to defaultOEM, or DefaultOEM when that is empty too.
func New(leaves []LeafSwitch, spines []SpineSwitch, defaultOEM string) (*Fabric, error) {
	if defaultOEM == "" {
		defaultOEM = DefaultOEM
	}

	f := &Fabric{
		leafIndex:  make(map[string]int),
		spineIndex: make(map[string]int),
	}

	for _, l := range leaves {
		if l.IP == "" {
			return nil, errors.New("leaf switch with empty ip")
		}
		if _, isSpine := f.spineIndex[l.IP]; isSpine {
			return nil, fmt.Errorf("switch %s declared as both leaf and spine", l.IP)
		}
		for _, hl := range l.Connections {
			if hl.Host == "" {
				return nil, fmt.Errorf("leaf %s: host link with empty host", l.IP)
			}
		}

		idx, seen := f.leafIndex[l.IP]
		if !seen {
			idx = len(f.leaves)
			f.leafIndex[l.IP] = idx
			f.leaves = append(f.leaves, LeafSwitch{IP: l.IP, OEM: l.OEM})
		}
		leaf := &f.leaves[idx]
		if leaf.OEM == "" {
			leaf.OEM = l.OEM
		}
		for _, hl := range l.Connections {
			leaf.Connections = append(leaf.Connections, HostLink{Host: hl.Host, Ports: slices.Clone(hl.Ports)})
		}
	}

	for _, s := range spines {
		if s.IP == "" {
			return nil, errors.New("spine switch with empty ip")
		}
		if _, isLeaf := f.leafIndex[s.IP]; isLeaf {
			return nil, fmt.Errorf("switch %s declared as both leaf and spine", s.IP)
		}
		for _, ll := range s.Connections {
			if ll.LeafIP == "" {
				return nil, fmt.Errorf("spine %s: leaf link with empty leafIP", s.IP)
			}
		}

		idx, seen := f.spineIndex[s.IP]
		if !seen {
			idx = len(f.spines)
			f.spineIndex[s.IP] = idx
			f.spines = append(f.spines, SpineSwitch{IP: s.IP, OEM: s.OEM})
		}
		spine := &f.spines[idx]
		if spine.OEM == "" {
			spine.OEM = s.OEM
		}
		for _, ll := range s.Connections {
			spine.Connections = append(spine.Connections, LeafLink{
				LeafIP:     ll.LeafIP,
				LeafPorts:  slices.Clone(ll.LeafPorts),
				SpinePorts: slices.Clone(ll.SpinePorts),
			})
		}
	}

	for i := range f.leaves {
		if f.leaves[i].OEM == "" {
			f.leaves[i].OEM = defaultOEM
		}
		for _, hl := range f.leaves[i].Connections {
			f.hostLinks = append(f.hostLinks, LeafHostLink{LeafIP: f.leaves[i].IP, HostLink: hl})
		}
	}
	for i := range f.spines {
		if f.spines[i].OEM == "" {
			f.spines[i].OEM = defaultOEM
		}
		for _, ll := range f.spines[i].Connections {
			f.leafLinks = append(f.leafLinks, SpineLeafLink{SpineIP: f.spines[i].IP, LeafLink: ll})
		}
	}

	return f, nil
}

// HostLinks returns every (leaf, host) link in declaration order.
func (f *Fabric) HostLinks() []LeafHostLink {
	return cloneHostLinks(f.hostLinks)
}

// LeafLinks returns every (spine, leaf) link in declaration order.
func (f *Fabric) LeafLinks() []SpineLeafLink {
	out := make([]SpineLeafLink, len(f.leafLinks))
	for i, l := range f.leafLinks {
		out[i] = SpineLeafLink{SpineIP: l.SpineIP, LeafLink: LeafLink{
			LeafIP:     l.LeafIP,
			LeafPorts:  slices.Clone(l.LeafPorts),
			SpinePorts: slices.Clone(l.SpinePorts),
		}}
	}
	return out
}

// Leaf returns the leaf with the given management IP.
func (f *Fabric) Leaf(ip string) (LeafSwitch, bool) {
	idx, ok := f.leafIndex[ip]
	if !ok {
		return LeafSwitch{}, false
	}
	l := f.leaves[idx]
	conns := make([]HostLink, len(l.Connections))
	for i, hl := range l.Connections {
		conns[i] = HostLink{Host: hl.Host, Ports: slices.Clone(hl.Ports)}
	}
	l.Connections = conns
	return l, true
}

// Spine returns the spine with the given management IP.
func (f *Fabric) Spine(ip string) (SpineSwitch, bool) {
	idx, ok := f.spineIndex[ip]
	if !ok {
		return SpineSwitch{}, false
	}
	s := f.spines[idx]
	conns := make([]LeafLink, len(s.Connections))
	for i, ll := range s.Connections {
		conns[i] = LeafLink{LeafIP: ll.LeafIP, LeafPorts: slices.Clone(ll.LeafPorts), SpinePorts: slices.Clone(ll.SpinePorts)}
	}
	s.Connections = conns
	return s, true
}

// Devices lists every switch, leaves first, each in declaration order.
func (f *Fabric) Devices() []Device {
	out := make([]Device, 0, len(f.leaves)+len(f.spines))
	for _, l := range f.leaves {
		out = append(out, Device{IP: l.IP, OEM: l.OEM, Role: RoleLeaf})
	}
	for _, s := range f.spines {
		out = append(out, Device{IP: s.IP, OEM: s.OEM, Role: RoleSpine})
	}
	return out
}

// LeavesFor returns the IPs of the leaves a host is cabled to.
func (f *Fabric) LeavesFor(host string) []string {
	var out []string
	for _, hl := range f.hostLinks {
		if hl.Host == host && !slices.Contains(out, hl.LeafIP) {
			out = append(out, hl.LeafIP)
		}
	}
	return out
}

// LeafCount returns the number of distinct leaves.
func (f *Fabric) LeafCount() int { return len(f.leaves) }

// SpineCount returns the number of distinct spines.
func (f *Fabric) SpineCount() int { return len(f.spines) }

func cloneHostLinks(in []LeafHostLink) []LeafHostLink {
	out := make([]LeafHostLink, len(in))
	for i, l := range in {
		out[i] = LeafHostLink{LeafIP: l.LeafIP, HostLink: HostLink{Host: l.Host, Ports: slices.Clone(l.Ports)}}
	}
	return out
}

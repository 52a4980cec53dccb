package driver

import (
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// defaultVLAN is never removed from a switch, bridge or port.
const defaultVLAN = 1

// permitList renders VLAN IDs the way switches expect a permitted list:
// ascending, comma separated, no spaces.
func permitList(vlans []int) string {
	sorted := slices.Clone(vlans)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// trunkPorts flattens entries into port -> permitted VLANs. A port listed in
// more than one entry keeps the last list, matching replace semantics.
func trunkPorts(entries []network.TrunkEntry) ([]string, map[string][]int) {
	var order []string
	perms := make(map[string][]int)
	for _, e := range entries {
		for _, p := range e.Ports {
			if _, seen := perms[p]; !seen {
				order = append(order, p)
			}
			perms[p] = e.VLANs
		}
	}
	return order, perms
}

// hostPort returns the host:port a URL connects to, filling in the
// scheme's default port.
func hostPort(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

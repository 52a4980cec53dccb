package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/config"
	"github.com/glennswest/vlanfabric/pkg/network/topology"
)

func testFabric(t *testing.T) *topology.Fabric {
	t.Helper()
	f, err := topology.New(
		[]topology.LeafSwitch{{IP: "10.0.0.11", OEM: "h3c", Connections: []topology.HostLink{{Host: "h1", Ports: []string{"1"}}}}},
		[]topology.SpineSwitch{{IP: "10.0.0.1", Connections: []topology.LeafLink{{LeafIP: "10.0.0.11", LeafPorts: []string{"48"}, SpinePorts: []string{"1"}}}}},
		"hp",
	)
	require.NoError(t, err)
	return f
}

func TestNewPicksBackend(t *testing.T) {
	log := zap.NewNop().Sugar()
	dev := topology.Device{IP: "10.0.0.11", OEM: "h3c", Role: topology.RoleLeaf}

	tests := []struct {
		backend string
		want    string
	}{
		{"", "netconf"},
		{config.BackendNetConf, "netconf"},
		{config.BackendRestful, "restful"},
		{config.BackendLinux, "linux"},
	}
	for _, tt := range tests {
		drv, err := New(dev, config.DevicesConfig{Backend: tt.backend}, log)
		require.NoError(t, err, tt.backend)
		require.Equal(t, tt.want, drv.Backend())
		require.Equal(t, "10.0.0.11", drv.Address())
	}

	_, err := New(dev, config.DevicesConfig{Backend: "snmp"}, log)
	require.Error(t, err)
}

func TestNewUsesDeviceOEM(t *testing.T) {
	drv, err := New(topology.Device{IP: "10.0.0.11", OEM: "h3c"}, config.DevicesConfig{OEM: "hp", Schema: "http"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	nc := drv.(*NetConf)
	require.Equal(t, "h3c", nc.oem)
	require.Equal(t, "http://10.0.0.11:832/soap/netconf/", nc.url)
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(config.DevicesConfig{Backend: config.BackendRestful}, testFabric(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	n, err := reg.Get("10.0.0.11")
	require.NoError(t, err)
	require.Equal(t, topology.RoleLeaf, n.Role)
	require.Equal(t, "h3c", n.OEM)

	n, err = reg.Get("10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, topology.RoleSpine, n.Role)
	require.Equal(t, "hp", n.OEM)
	require.Equal(t, "restful", n.Driver.Backend())
}

func TestProbeAddr(t *testing.T) {
	log := zap.NewNop().Sugar()

	nc := NewNetConf(NetConfConfig{Address: "10.0.0.2"}, log)
	require.Equal(t, "10.0.0.2:832", nc.ProbeAddr())

	rs := NewRestful(RestfulConfig{Address: "10.0.0.3"}, log)
	require.Equal(t, "10.0.0.3:443", rs.ProbeAddr())

	rs = NewRestful(RestfulConfig{Address: "10.0.0.3", Schema: "http"}, log)
	require.Equal(t, "10.0.0.3:80", rs.ProbeAddr())
}

package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func portEvent(network, host, port string) PortEvent {
	return PortEvent{
		Assignment:  Assignment{TenantID: "t1", NetworkID: network, HostID: host, DeviceID: "vm-" + port, PortID: port},
		DeviceOwner: "compute:nova",
	}
}

func TestManagedOwner(t *testing.T) {
	tests := []struct {
		owner string
		want  bool
	}{
		{"compute:nova", true},
		{"compute:az1", true},
		{"network:dhcp", true},
		{"network:router_interface", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := managedOwner(tt.owner); got != tt.want {
			t.Errorf("managedOwner(%q) = %v, want %v", tt.owner, got, tt.want)
		}
	}
}

func TestOnNetworkCreatedIgnoresDuplicate(t *testing.T) {
	s := newFakeStore()
	m, _ := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	segs := []Segment{{SegmentationID: 10, SegmentationType: SegmentTypeVLAN}}
	require.NoError(t, m.OnNetworkCreated(ctx, "t1", "N", segs))
	require.NoError(t, m.OnNetworkCreated(ctx, "t1", "N", []Segment{{SegmentationID: 99, SegmentationType: SegmentTypeVLAN}}))

	seg, err := s.GetSegment("N")
	require.NoError(t, err)
	require.Equal(t, 10, seg.SegmentationID)
	require.Equal(t, "t1", seg.TenantID)
}

func TestOnNetworkCreatedWithoutSegments(t *testing.T) {
	s := newFakeStore()
	m, _ := newTestManager(twoLeafFabric(), s)

	require.NoError(t, m.OnNetworkCreated(context.Background(), "t1", "N", nil))
	known, _ := s.IsNetworkKnown("t1", "N")
	require.False(t, known)
}

func TestOnNetworkDeleted(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)

	require.NoError(t, m.OnNetworkDeleted(context.Background(), "t1", "N"))
	known, _ := s.IsNetworkKnown("t1", "N")
	require.False(t, known)
	require.Empty(t, drivers["L1"].ops(), "network delete must not touch switches")
}

func TestPortCreateProvisionsFirstPortOnly(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	require.NoError(t, m.OnPortCreated(ctx, portEvent("N", "h1", "p1")))
	require.Equal(t, []string{"create", "trunk"}, drivers["L1"].ops())
	require.Equal(t, []string{"create", "trunk"}, drivers["S1"].ops())
	require.Empty(t, drivers["L2"].ops())

	require.NoError(t, m.OnPortCreated(ctx, portEvent("N", "h1", "p2")))
	require.Len(t, drivers["L1"].ops(), 2, "second port on the same host must not reprogram")

	n, _ := s.PortCount("N", "h1")
	require.Equal(t, 2, n)
}

func TestPortCreateDuplicateIgnored(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	ev := portEvent("N", "h1", "p1")
	require.NoError(t, m.OnPortCreated(ctx, ev))
	require.NoError(t, m.OnPortCreated(ctx, ev))

	require.Len(t, drivers["L1"].ops(), 2)
	n, _ := s.PortCount("N", "h1")
	require.Equal(t, 1, n)
}

func TestPortCreateUnmanagedOwner(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)

	ev := portEvent("N", "h1", "p1")
	ev.DeviceOwner = "network:router_interface"
	require.NoError(t, m.OnPortCreated(context.Background(), ev))

	require.Empty(t, drivers["L1"].ops())
	known, _ := s.IsPortKnown(ev.Assignment)
	require.False(t, known)
}

func TestPortCreateNonVLANSegment(t *testing.T) {
	s := newFakeStore()
	s.networks["N"] = Segment{TenantID: "t1", NetworkID: "N", SegmentationID: 5000, SegmentationType: "vxlan"}
	m, drivers := newTestManager(twoLeafFabric(), s)

	ev := portEvent("N", "h1", "p1")
	require.NoError(t, m.OnPortCreated(context.Background(), ev))

	require.Empty(t, drivers["L1"].ops())
	known, _ := s.IsPortKnown(ev.Assignment)
	require.True(t, known, "port is recorded even when nothing is programmed")
}

func TestPortCreateUsesEventSegment(t *testing.T) {
	s := newFakeStore()
	m, drivers := newTestManager(twoLeafFabric(), s)

	ev := portEvent("N", "h1", "p1")
	ev.Segments = []Segment{{SegmentationID: 42, SegmentationType: SegmentTypeVLAN}}
	require.NoError(t, m.OnPortCreated(context.Background(), ev))

	calls := drivers["L1"].calls
	require.NotEmpty(t, calls)
	require.Equal(t, []int{42}, calls[0].VLANs)
}

func TestPortCreateStoreFailureAborts(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	s.failOn = "CreatePort"
	m, drivers := newTestManager(twoLeafFabric(), s)

	err := m.OnPortCreated(context.Background(), portEvent("N", "h1", "p1"))
	require.ErrorIs(t, err, errFakeStore)
	require.Empty(t, drivers["L1"].ops())
}

func TestPortDeleteWithdrawsLastPort(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	p1, p2 := portEvent("N", "h1", "p1"), portEvent("N", "h1", "p2")
	require.NoError(t, m.OnPortCreated(ctx, p1))
	require.NoError(t, m.OnPortCreated(ctx, p2))

	require.NoError(t, m.OnPortDeleted(ctx, p1))
	require.Equal(t, []string{"create", "trunk"}, drivers["L1"].ops(), "other port still on host")

	require.NoError(t, m.OnPortDeleted(ctx, p2))
	require.Equal(t, []string{"create", "trunk", "trunk", "delete"}, drivers["L1"].ops())
	require.Equal(t, []string{"create", "trunk", "trunk", "delete"}, drivers["S1"].ops())

	n, _ := s.PortCount("N", "h1")
	require.Zero(t, n)
}

func TestPortDeleteUnknownPort(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)

	require.NoError(t, m.OnPortDeleted(context.Background(), portEvent("N", "h1", "ghost")))
	require.Empty(t, drivers["L1"].ops())
}

func TestPortUpdateMigrates(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	require.NoError(t, m.OnPortCreated(ctx, portEvent("N", "h1", "p1")))
	require.NoError(t, m.OnPortUpdated(ctx, portEvent("N", "h2", "p1")))

	require.Equal(t, []string{"create", "trunk", "trunk", "delete"}, drivers["L1"].ops())
	require.Equal(t, []string{"create", "trunk"}, drivers["L2"].ops())

	host, err := s.PortHost("t1", "N", "vm-p1", "p1")
	require.NoError(t, err)
	require.Equal(t, "h2", host)
}

func TestPortUpdateSameHost(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	ctx := context.Background()

	require.NoError(t, m.OnPortCreated(ctx, portEvent("N", "h1", "p1")))
	require.NoError(t, m.OnPortUpdated(ctx, portEvent("N", "h1", "p1")))
	require.Len(t, drivers["L1"].ops(), 2)
}

func TestApplySkipsUnknownAndFailedDevices(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	f := twoLeafFabric()

	reg := NewRegistry()
	spine := &recordingDriver{addr: "S1"}
	require.NoError(t, reg.Add(Node{Address: "S1", Driver: spine}))
	m := NewManager(f, s, reg, Options{}, zap.NewNop().Sugar())

	require.NoError(t, m.OnPortCreated(context.Background(), portEvent("N", "h1", "p1")))
	require.Equal(t, []string{"create", "trunk"}, spine.ops(), "spine programmed despite leaf having no driver")
}

func TestApplyStopsDeviceAtFirstFailure(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10)
	m, drivers := newTestManager(twoLeafFabric(), s)
	drivers["L1"].failOp = "create"

	require.NoError(t, m.OnPortCreated(context.Background(), portEvent("N", "h1", "p1")))
	require.Equal(t, []string{"create"}, drivers["L1"].ops())
	require.Equal(t, []string{"create", "trunk"}, drivers["S1"].ops())
}

func TestApplyResult(t *testing.T) {
	s := newFakeStore()
	s.seed("N", 10, "h1", "h2")
	m, drivers := newTestManager(twoLeafFabric(), s)
	drivers["L2"].failOp = "trunk"
	m.registry.Remove("S1")

	delta, err := m.engine.FullSyncDelta()
	require.NoError(t, err)

	res := m.apply(context.Background(), delta, true)
	require.Equal(t, []string{"L1"}, res.Applied)
	require.Equal(t, []string{"L2"}, res.Failed)
	require.Equal(t, []string{"S1"}, res.Skipped)
	require.True(t, drivers["L1"].calls[0].Overlap)
}

package network

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSyncEmptyStoreMakesNoCalls(t *testing.T) {
	m, drivers := newTestManager(twoLeafFabric(), newFakeStore())

	res, err := m.Sync(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Applied)
	for ip, d := range drivers {
		require.Empty(t, d.ops(), "device %s was called", ip)
	}
}

func TestSyncPushesRecordedState(t *testing.T) {
	s := newFakeStore()
	s.seed("A", 10, "h1")
	s.seed("B", 20, "h2")
	m, drivers := newTestManager(twoLeafFabric(), s)

	res, err := m.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"L1", "L2", "S1"}, res.Applied)

	for _, ip := range []string{"L1", "L2", "S1"} {
		require.Equal(t, []string{"create", "trunk"}, drivers[ip].ops(), ip)
	}
	require.Equal(t, []int{10, 20}, drivers["S1"].calls[0].VLANs)
	require.False(t, drivers["S1"].calls[0].Overlap)

	require.Equal(t, float64(1), testutil.ToFloat64(m.metrics.Deltas.WithLabelValues("sync")))
}

func TestSyncOverlapOption(t *testing.T) {
	s := newFakeStore()
	s.seed("A", 10, "h1")
	m, drivers := newTestManager(twoLeafFabric(), s)
	m.syncOverlap = true

	_, err := m.Sync(context.Background())
	require.NoError(t, err)
	require.True(t, drivers["L1"].calls[0].Overlap)
}

func TestSyncStoreFailure(t *testing.T) {
	s := newFakeStore()
	s.seed("A", 10, "h1")
	s.failOn = "AllHostVLANs"
	m, drivers := newTestManager(twoLeafFabric(), s)

	_, err := m.Sync(context.Background())
	require.ErrorIs(t, err, errFakeStore)
	require.Empty(t, drivers["L1"].ops())
}

func TestRunReconcilerTicks(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newFakeStore()
	s.seed("A", 10, "h1")
	m, drivers := newTestManager(twoLeafFabric(), s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunReconciler(ctx, ReconcilerOpts{Interval: 5 * time.Millisecond}) }()

	require.Eventually(t, func() bool { return len(drivers["L1"].ops()) >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestRunReconcilerBadSchedule(t *testing.T) {
	m, _ := newTestManager(twoLeafFabric(), newFakeStore())

	err := m.RunReconciler(context.Background(), ReconcilerOpts{Schedule: "not a schedule"})
	require.Error(t, err)
}

func TestRunReconcilerScheduleStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, _ := newTestManager(twoLeafFabric(), newFakeStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunReconciler(ctx, ReconcilerOpts{Schedule: "@every 1h"}) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled reconciler did not stop")
	}
}

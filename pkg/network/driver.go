package network

import (
	"context"
	"errors"
)

// ErrNotSupported is returned when a driver does not support an operation.
var ErrNotSupported = errors.New("operation not supported by this driver")

// ErrUnknownDevice is returned when no driver is registered for a switch IP.
var ErrUnknownDevice = errors.New("no driver registered for device")

// DeviceDriver abstracts the VLAN programming surface of one switch
// (Comware REST, NETCONF over SOAP, Linux bridge). The Manager calls these
// methods instead of talking to a specific client directly.
type DeviceDriver interface {
	// CreateVLANs ensures the VLANs exist. With overlap set, VLANs not in
	// ids are removed so the device ends up with exactly ids.
	CreateVLANs(ctx context.Context, ids []int, overlap bool) error
	// DeleteVLANs removes the VLANs. An empty list is a no-op.
	DeleteVLANs(ctx context.Context, ids []int) error
	// ProgramTrunks switches each port to trunk mode and replaces its
	// permitted VLAN list.
	ProgramTrunks(ctx context.Context, entries []TrunkEntry) error

	// Introspection
	Address() string
	Backend() string
}

// SessionCloser is implemented by drivers that hold a login session.
type SessionCloser interface {
	Close(ctx context.Context) error
}

// Prober is implemented by drivers reachable over TCP. ProbeAddr is the
// host:port the watchdog dials to tell whether the switch is up.
type Prober interface {
	ProbeAddr() string
}

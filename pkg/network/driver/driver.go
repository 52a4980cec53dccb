// Package driver holds the switch bindings the fabric manager programs:
// REST/JSON, NETCONF over SOAP, and a local Linux bridge.
package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/config"
	"github.com/glennswest/vlanfabric/pkg/network"
	"github.com/glennswest/vlanfabric/pkg/network/topology"
)

// New returns the driver for one fabric device using the shared device
// settings. The device's own OEM wins over the configured default.
func New(dev topology.Device, cfg config.DevicesConfig, log *zap.SugaredLogger) (network.DeviceDriver, error) {
	oem := dev.OEM
	if oem == "" {
		oem = cfg.OEM
	}

	switch cfg.Backend {
	case config.BackendNetConf, "":
		return NewNetConf(NetConfConfig{
			Address:            dev.IP,
			OEM:                oem,
			Username:           cfg.Username,
			Password:           cfg.Password,
			Schema:             cfg.Schema,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}, log), nil
	case config.BackendRestful:
		return NewRestful(RestfulConfig{
			Address:            dev.IP,
			Username:           cfg.Username,
			Password:           cfg.Password,
			Schema:             cfg.Schema,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}, log), nil
	case config.BackendLinux:
		return NewLinux(dev.IP, cfg.Bridge, log), nil
	default:
		return nil, fmt.Errorf("device %s: unknown backend %q", dev.IP, cfg.Backend)
	}
}

// BuildRegistry creates a driver for every leaf and spine in the fabric.
func BuildRegistry(cfg config.DevicesConfig, fabric *topology.Fabric, log *zap.SugaredLogger) (*network.Registry, error) {
	reg := network.NewRegistry()
	for _, dev := range fabric.Devices() {
		drv, err := New(dev, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(network.Node{Address: dev.IP, OEM: dev.OEM, Role: dev.Role, Driver: drv}); err != nil {
			return nil, err
		}
		log.Debugw("device registered", "device", dev.IP, "role", dev.Role, "backend", drv.Backend())
	}
	return reg, nil
}

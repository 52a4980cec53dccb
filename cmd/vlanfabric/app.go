package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/config"
	"github.com/glennswest/vlanfabric/pkg/logging"
	"github.com/glennswest/vlanfabric/pkg/network"
	"github.com/glennswest/vlanfabric/pkg/network/driver"
	"github.com/glennswest/vlanfabric/pkg/network/topology"
	"github.com/glennswest/vlanfabric/pkg/store"
)

// app is the wired controller shared by serve and sync.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	fabric   *topology.Fabric
	store    store.Store
	registry *network.Registry
	manager  *network.Manager
}

func (o *rootOpts) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path(o.configPath))
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// newApp opens the store and builds a driver for every switch. Drivers
// connect lazily, so no device is contacted here.
func newApp(cfg *config.Config) (*app, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	fabric, err := cfg.Topology()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	reg, err := driver.BuildRegistry(cfg.Devices, fabric, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mgr := network.NewManager(fabric, st, reg, network.Options{SyncOverlap: cfg.Sync.Overlap}, log)

	log.Infow("fabric loaded",
		"leaves", fabric.LeafCount(),
		"spines", fabric.SpineCount(),
		"backend", cfg.Devices.Backend,
		"store", cfg.Store.Backend,
	)

	return &app{cfg: cfg, log: log, fabric: fabric, store: st, registry: reg, manager: mgr}, nil
}

// Close ends device sessions and releases the store.
func (a *app) Close(ctx context.Context) error {
	err := errors.Join(a.registry.Close(ctx), a.store.Close())
	_ = a.log.Sync()
	return err
}

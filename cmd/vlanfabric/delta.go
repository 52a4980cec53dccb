package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/glennswest/vlanfabric/pkg/network"
	"github.com/glennswest/vlanfabric/pkg/store"
)

type deltaOpts struct {
	network string
	host    string
	vlan    int
	asJSON  bool
}

func newDeltaCmd(opts *rootOpts) *cobra.Command {
	dopts := &deltaOpts{}
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Show the switch changes an event would cause, without applying them",
	}
	cmd.PersistentFlags().BoolVar(&dopts.asJSON, "json", false, "print the delta as JSON")

	eventCmd := func(use, short string, compute func(e *network.Engine) (network.Delta, error)) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDelta(cmd, opts, dopts, compute)
			},
		}
		dopts.addEventFlags(c.Flags())
		_ = c.MarkFlagRequired("network")
		_ = c.MarkFlagRequired("host")
		_ = c.MarkFlagRequired("vlan")
		return c
	}

	cmd.AddCommand(
		eventCmd("create", "Delta for the first port of a network on a host", func(e *network.Engine) (network.Delta, error) {
			return e.CreateDelta(dopts.network, dopts.host, dopts.vlan)
		}),
		eventCmd("delete", "Delta for the last port of a network leaving a host", func(e *network.Engine) (network.Delta, error) {
			return e.DeleteDelta(dopts.network, dopts.host, dopts.vlan)
		}),
		&cobra.Command{
			Use:   "sync",
			Short: "Delta a full sync would push",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDelta(cmd, opts, dopts, (*network.Engine).FullSyncDelta)
			},
		},
	)
	return cmd
}

func (o *deltaOpts) addEventFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.network, "network", "", "network ID")
	fs.StringVar(&o.host, "host", "", "host the port is bound to")
	fs.IntVar(&o.vlan, "vlan", 0, "segmentation ID")
}

func runDelta(cmd *cobra.Command, opts *rootOpts, dopts *deltaOpts, compute func(*network.Engine) (network.Delta, error)) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	fabric, err := cfg.Topology()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	delta, err := compute(network.NewEngine(fabric, st))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if dopts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(delta)
	}
	printDelta(w, delta)
	return nil
}

func printDelta(w io.Writer, delta network.Delta) {
	if len(delta) == 0 {
		fmt.Fprintln(w, "no changes")
		return
	}

	rows := [][]string{}
	for _, ip := range delta.Devices() {
		dd := delta[ip]
		create := createStyle(joinVLANs(sets.List(dd.VLANCreate)))
		remove := deleteStyle(joinVLANs(sets.List(dd.VLANDelete)))
		if len(dd.Trunks) == 0 {
			rows = append(rows, []string{ip, create, remove, "", ""})
			continue
		}
		for i, t := range dd.Trunks {
			row := []string{"", "", "", strings.Join(t.Ports, ","), joinVLANs(t.VLANs)}
			if i == 0 {
				row[0], row[1], row[2] = ip, create, remove
			}
			rows = append(rows, row)
		}
	}
	fmt.Fprint(w, renderTable([]string{"Device", "Create", "Delete", "Trunk Ports", "Permit"}, rows))
}

func joinVLANs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

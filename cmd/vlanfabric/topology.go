package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTopologyCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the configured fabric cabling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			fabric, err := cfg.Topology()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			hosts := [][]string{}
			for _, l := range fabric.HostLinks() {
				hosts = append(hosts, []string{l.LeafIP, l.Host, strings.Join(l.Ports, ",")})
			}
			fmt.Fprintf(w, "Leaves (%d)\n", fabric.LeafCount())
			fmt.Fprint(w, renderTable([]string{"Leaf", "Host", "Ports"}, hosts))

			uplinks := [][]string{}
			for _, l := range fabric.LeafLinks() {
				uplinks = append(uplinks, []string{l.SpineIP, strings.Join(l.SpinePorts, ","), l.LeafIP, strings.Join(l.LeafPorts, ",")})
			}
			fmt.Fprintf(w, "\nSpines (%d)\n", fabric.SpineCount())
			fmt.Fprint(w, renderTable([]string{"Spine", "Spine Ports", "Leaf", "Leaf Ports"}, uplinks))
			return nil
		},
	}
}

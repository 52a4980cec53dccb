// vlanfabric keeps VLANs and trunk permit lists on a leaf/spine switch
// fabric in step with the networks and ports an orchestrator reports.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootOpts are the flags shared by every subcommand.
type rootOpts struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "VLAN provisioning for leaf/spine switch fabrics",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default $VLANFABRIC_CONFIG or /etc/vlanfabric/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newTopologyCmd(opts),
		newDeltaCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vlanfabric version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vlanfabric %s\n", version)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/glennswest/vlanfabric/pkg/network"
)

func newSyncCmd(opts *rootOpts) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push the recorded VLAN state to every switch once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := a.manager.Sync(ctx)
			if cerr := a.Close(context.Background()); cerr != nil {
				a.log.Warnw("closing devices and store", "error", cerr)
			}
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d device(s) failed", len(res.Failed))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting for the fabric lock after this long")
	return cmd
}

func printResult(w io.Writer, res network.ApplyResult) {
	rows := make([][]string, 0, len(res.Applied)+len(res.Failed)+len(res.Skipped))
	for _, ip := range res.Applied {
		rows = append(rows, []string{ip, okStyle("applied")})
	}
	for _, ip := range res.Failed {
		rows = append(rows, []string{ip, failStyle("failed")})
	}
	for _, ip := range res.Skipped {
		rows = append(rows, []string{ip, "skipped (not registered)"})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "nothing to push")
		return
	}
	fmt.Fprint(w, renderTable([]string{"Device", "Result"}, rows))
	fmt.Fprintf(w, "%d applied, %d failed, %d skipped\n", len(res.Applied), len(res.Failed), len(res.Skipped))
}

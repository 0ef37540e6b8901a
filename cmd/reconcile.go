package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/tui"
)

func newReconcileCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bring security groups in line with the policy and live hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedDNS | config.NeedPolicy); err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := a.services(ctx)
			if err != nil {
				return err
			}
			mgr, err := a.manager(svc, a.directory(svc))
			if err != nil {
				return err
			}

			res, err := mgr.Run(ctx, dryRun)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tui.ChangesTable(res))
			if failed := res.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d security groups failed to reconcile", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the changes without applying them")

	return cmd
}

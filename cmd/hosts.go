package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	awsclient "github.com/marksidell/dynips/internal/aws"
	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/lifecycle"
	"github.com/marksidell/dynips/internal/store"
	"github.com/marksidell/dynips/internal/tui"
)

func newHostsCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Show every known host and its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedStore); err != nil {
				return err
			}
			// Log lines on stderr would tear the dashboard.
			if watch && a.cfg.LogFile == "" {
				a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
				slog.SetDefault(a.log)
			}

			ctx := cmd.Context()
			svc, err := a.services(ctx)
			if err != nil {
				return err
			}
			objects, release, err := a.objects(ctx, svc)
			if err != nil {
				return err
			}
			defer release()

			fetch := func(ctx context.Context) ([]lifecycle.HostRecord, error) {
				bucket, err := store.Open(ctx, objects)
				if err != nil {
					return nil, err
				}
				return lifecycle.Records(ctx, bucket), nil
			}

			if !watch {
				records, err := fetch(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tui.HostsTable(records, time.Now(), a.cfg.MaxAgeDuration()))
				return nil
			}

			model := tui.NewModel(fetch, tui.Options{
				Account:    awsclient.GetAccountID(ctx, svc.Config),
				DomainRoot: a.cfg.DomainRoot,
				MaxAge:     a.cfg.MaxAgeDuration(),
				Refresh:    a.cfg.RefreshInterval(),
			})
			if _, err := tea.NewProgram(model).Run(); err != nil {
				return fmt.Errorf("running dashboard: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "open the live dashboard")

	return cmd
}

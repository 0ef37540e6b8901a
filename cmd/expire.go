package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/lifecycle"
)

func newExpireCmd(a *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire hosts that stopped checking in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedStore | config.NeedDNS); err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = a.cfg.MaxAgeDuration()
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

			res, err := lifecycle.NewExpirer(objects, a.directory(svc), a.log).ExpireHosts(ctx, maxAge)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, host := range res.Expired {
				fmt.Fprintln(out, host)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d hosts failed to expire", len(res.Failed))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "heartbeat age after which a host expires (default from config)")

	return cmd
}

package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	awsclient "github.com/marksidell/dynips/internal/aws"
	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/constants"
	"github.com/marksidell/dynips/internal/lifecycle"
	"github.com/marksidell/dynips/internal/registrar"
	"github.com/marksidell/dynips/internal/scheduler"
	"github.com/marksidell/dynips/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen string
		debug  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registration endpoint with periodic expiry and reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedStore | config.NeedDNS); err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.services(ctx)
			if err != nil {
				return err
			}
			objects, release, err := a.objects(ctx, svc)
			if err != nil {
				return err
			}
			defer release()
			dir := a.directory(svc)

			sched := scheduler.New(a.log)
			kick := func() { sched.Kick(constants.JobReconcile) }

			expirer := lifecycle.NewExpirer(objects, dir, a.log)
			maxAge := a.cfg.MaxAgeDuration()
			err = sched.Add(constants.JobExpire, a.cfg.ExpireEvery(), func(ctx context.Context) error {
				res, err := expirer.ExpireHosts(ctx, maxAge)
				if err != nil {
					return err
				}
				if len(res.Expired) > 0 {
					kick()
				}
				return nil
			})
			if err != nil {
				return err
			}

			if a.cfg.PolicyKey == "" {
				a.log.Warn("policy_key not set, security groups will not be reconciled")
			} else {
				mgr, err := a.manager(svc, dir)
				if err != nil {
					return err
				}
				err = sched.Add(constants.JobReconcile, a.cfg.ReconcileEvery(), func(ctx context.Context) error {
					_, err := mgr.Run(ctx, false)
					return err
				})
				if err != nil {
					return err
				}
			}

			reg := registrar.New(objects, dir, registrar.Options{
				MaxErrors: a.cfg.MaxErrors,
				Kick:      kick,
			}, a.log)
			router, err := server.NewRouter(server.NewHandler(reg, a.log), a.log, debug, a.cfg.TrustedProxies)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			a.log.Info("starting",
				"account", awsclient.GetAccountID(ctx, svc.Config),
				"store", a.cfg.Store,
				"domain_root", a.cfg.DomainRoot,
			)

			sched.Start(ctx)
			err = server.Serve(ctx, srv, a.log)
			stop()
			sched.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "run gin in debug mode")

	return cmd
}

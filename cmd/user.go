package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/registrar"
	"github.com/marksidell/dynips/internal/store"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage registration users",
	}
	cmd.AddCommand(newUserAddCmd(a))
	cmd.AddCommand(newUserListCmd(a))
	return cmd
}

func newUserAddCmd(a *app) *cobra.Command {
	var (
		key    string
		rounds int
	)

	cmd := &cobra.Command{
		Use:   "add <user>",
		Short: "Create or replace a user's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedStore); err != nil {
				return err
			}
			user := strings.ToLower(args[0])
			generated := key == ""
			if generated {
				key = strings.ReplaceAll(uuid.NewString(), "-", "")
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

			if err := registrar.AddUser(ctx, objects, user, key, rounds); err != nil {
				return err
			}
			a.log.Info("user written", "user", user)
			if generated {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", user, key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "key to hash (generated and printed when empty)")
	cmd.Flags().IntVar(&rounds, "rounds", registrar.DefaultRounds, "pbkdf2 iterations")

	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registration users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.NeedStore); err != nil {
				return err
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

			bucket, err := store.Open(ctx, objects)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, user := range bucket.Users() {
				locked := ""
				if bucket.IsLocked(user) {
					locked = " (locked)"
				}
				fmt.Fprintf(out, "%s%s\n", user, locked)
			}
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wiredberlin/boxoffice/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		sub   string
		email string
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for door staff or admins",
		Long: `Mint a signed session token with AUTH_SECRET. Send it as
"Authorization: Bearer <token>" or in the session cookie.`,
		Example: `  boxofficectl token --sub door-1 --email door@wired.berlin --role staff --ttl 18h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("AUTH_SECRET")
			if secret == "" {
				return fmt.Errorf("AUTH_SECRET is not set")
			}

			r := auth.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q (want user, staff or admin)", role)
			}

			tok, exp, err := auth.New(secret, ttl).Issue(auth.Identity{Subject: sub, Email: email, Role: r})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&sub, "sub", "", "subject (stable user id)")
	cmd.Flags().StringVar(&email, "email", "", "email shown in check-in logs")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleStaff), "role: user, staff or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/auth"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the providers, leads and zip_centroids tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := svc.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrate complete")
		return nil
	},
}

var hashCost int

var hashPasswordCmd = &cobra.Command{
	Use:         "hash-password <password>",
	Short:       "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipDB: "1"},
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.PasswordHasher{Cost: hashCost}.Hash(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var reissueClaimCmd = &cobra.Command{
	Use:   "reissue-claim <provider-id>",
	Short: "Issue a fresh claim token and print its verification link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := svc.Auth.ReissueClaim(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reissue claim: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

var routeLimit int

var routeOpenCmd = &cobra.Command{
	Use:   "route-open",
	Short: "Route OPEN leads, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		routed, attempted, err := svc.LeadSvc.RouteOpen(cmd.Context(), routeLimit)
		logger.Infow("route-open finished", "attempted", attempted, "routed", routed)
		if err != nil {
			return fmt.Errorf("route open leads: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "routed %d of %d open leads\n", routed, attempted)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default bcrypt.DefaultCost)")
	routeOpenCmd.Flags().IntVar(&routeLimit, "limit", 100, "maximum number of leads to route (capped at 500)")
	rootCmd.AddCommand(migrateCmd, hashPasswordCmd, reissueClaimCmd, routeOpenCmd)
}

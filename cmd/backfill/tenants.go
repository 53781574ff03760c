package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	masterdatadomain "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/spf13/cobra"
)

func newTenantsCmd() *cobra.Command {
	tenantsCmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants",
	}

	var slug string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, d deps) error {
				tenant, err := d.MasterData.CreateTenant(ctx, masterdatadomain.CreateTenantRequest{
					Name: args[0],
					Slug: slug,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tenant.ID, tenant.Slug)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&slug, "slug", "", "url slug, derived from the name when empty")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, d deps) error {
				tenants, err := d.MasterData.ListActiveTenants(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tNAME")
				for _, t := range tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
				}
				return w.Flush()
			})
		},
	}

	tenantsCmd.AddCommand(createCmd, listCmd)
	return tenantsCmd
}

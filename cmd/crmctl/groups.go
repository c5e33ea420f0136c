package main

import (
	"fmt"
	"text/tabwriter"

	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Resolve economic groups and list their members",
}

var groupsResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Find a group by case-insensitive name, creating it when absent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := service.ResolveGroup(cmd.Context(), partnerapp.ResolveGroupRequest{Name: args[0]})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, group)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", group.ID, group.Name)
		return nil
	},
}

var groupsMembersCmd = &cobra.Command{
	Use:   "members <group-id>",
	Short: "List the clients that belong to a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid group id %q: %w", args[0], err)
		}
		members, err := service.ListGroupMembers(cmd.Context(), id)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, members)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDOCUMENT")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Document)
		}
		return w.Flush()
	},
}

func init() {
	groupsCmd.AddCommand(groupsResolveCmd)
	groupsCmd.AddCommand(groupsMembersCmd)
}

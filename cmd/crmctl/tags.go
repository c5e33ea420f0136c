package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List, rename and delete client tags",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tags with the number of clients carrying each",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		usage, err := service.ListTagsWithUsage(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, usage)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TAG\tCLIENTS")
		for _, u := range usage {
			fmt.Fprintf(w, "%s\t%d\n", u.Name, u.Count)
		}
		return w.Flush()
	},
}

var tagsRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a tag in the registry and on every client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := service.RenameTag(cmd.Context(), args[0], partnerapp.RenameTagRequest{NewName: args[1]})
		return printCascade(cmd, report, err)
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a tag from every client, then from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := service.DeleteTag(cmd.Context(), args[0])
		return printCascade(cmd, report, err)
	},
}

func init() {
	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsRenameCmd)
	tagsCmd.AddCommand(tagsDeleteCmd)
}

// printCascade shows what a cascade touched. A partial cascade still prints
// its report and then fails the command.
func printCascade(cmd *cobra.Command, report *shared.CascadeReport, err error) error {
	var partial *shared.PartialCascadeError
	if report == nil && errors.As(err, &partial) {
		report = &shared.CascadeReport{
			Operation: partial.Operation,
			Succeeded: partial.Succeeded,
			Failed:    partial.Failed,
		}
	}
	if report == nil {
		return err
	}

	if flagJSON {
		if perr := printJSON(cmd, report); perr != nil {
			return perr
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d updated, %d failed\n", report.Operation, len(report.Succeeded), len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  failed %s: %s\n", f.Target, f.Reason)
	}
	return err
}

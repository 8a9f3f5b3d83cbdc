package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/jobs"
)

var importCmd = &cobra.Command{
	Use:       "import <booking|member|contacts>",
	Short:     "Import one record family from the CRM",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"booking", "member", "contacts"},
	RunE:      runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	deps, err := setup(true)
	if err != nil {
		return err
	}
	defer closeDeps(deps)
	if args[0] != "contacts" {
		if err := requireFieldMap(deps); err != nil {
			return err
		}
	}

	var res *jobs.ImportResult
	switch args[0] {
	case "contacts":
		res, err = deps.Jobs.Contacts.Run(cmd.Context())
	default:
		res, err = deps.Jobs.Importer.Run(cmd.Context(), jobs.Pipeline(args[0]))
	}
	if res != nil {
		printImportResult(cmd.OutOrStdout(), args[0], res)
	}
	if err != nil {
		return &ExitError{Code: 1, Msg: err.Error()}
	}
	return nil
}

func printImportResult(w io.Writer, name string, res *jobs.ImportResult) {
	fmt.Fprintf(w, "%s import %s after %d page(s): fetched %d, created %d, updated %d, failed %d\n",
		name, res.Status, res.Pages,
		res.Counts.Fetched, res.Counts.Created, res.Counts.Updated, res.Counts.Failed)
	if res.Cancelled {
		fmt.Fprintln(w, "cancelled; committed pages were kept")
	}
	fmt.Fprintf(w, "run %s\n", res.RunID)
}

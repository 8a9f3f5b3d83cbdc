package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/jobs"
	"tripbuilder/crmsync/internal/models/gorm"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"ck"},
	Short:   "Verify the field map against the local schema and show recent runs (alias: ck)",
	Args:    cobra.NoArgs,
	RunE:    runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	deps, err := setup(false)
	if err != nil {
		return err
	}
	defer closeDeps(deps)

	out := cmd.OutOrStdout()
	registry, err := jobs.LoadRegistry(cmd.Context(), deps.DB)
	if err != nil {
		fmt.Fprintf(out, "field map: NOT USABLE\n  %v\n", err)
		return &ExitError{Code: 1, Msg: "field map inconsistent"}
	}
	fmt.Fprintf(out, "field map: ok, %d entries (bookings %d, members %d)\n",
		registry.Len(), len(registry.Columns(constants.TableBookings)), len(registry.Columns(constants.TableMembers)))

	gaps, err := deps.Repo.Members.CountWithoutContact(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "members whose contact is not cached: %d\n", gaps)

	runs, err := deps.Services.Ledger.Recent(cmd.Context(), "", 10)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []gorm.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "\nNo sync runs recorded yet.")
		return
	}

	fmt.Fprintf(w, "\n%-20s  %-16s  %-11s  %8s  %8s  %s\n", "STARTED", "KIND", "STATUS", "FETCHED", "FAILED", "ERROR")
	for _, r := range runs {
		errText := ""
		if r.ErrorText != nil {
			errText = *r.ErrorText
		}
		fmt.Fprintf(w, "%-20s  %-16s  %-11s  %8d  %8d  %s\n",
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Kind, r.Status, r.RecordsFetched, r.RecordsFailed, errText)
	}
}

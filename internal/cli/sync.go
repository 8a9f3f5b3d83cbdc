package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/jobs"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run discovery, all imports, vendor sync and the link pass",
	Long: `Run one full sync. The command exits non-zero when any critical
step (discovery, an import or the link pass) did not succeed.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	deps, err := setup(true)
	if err != nil {
		return err
	}
	defer closeDeps(deps)

	report, err := deps.Jobs.FullSync.Run(cmd.Context())
	if report != nil {
		printFullSyncReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("full sync aborted: %v", err)}
	}
	if code := report.ExitCode(); code != 0 {
		return &ExitError{Code: code, Msg: "full sync finished with failed steps"}
	}
	return nil
}

func printFullSyncReport(w io.Writer, r *jobs.FullSyncReport) {
	fmt.Fprintf(w, "%-16s  %-11s  %s\n", "STEP", "STATUS", "DETAIL")
	for _, s := range r.Steps {
		detail := s.Error
		if detail == "" && s.RunID != "" {
			detail = "run " + s.RunID
		}
		fmt.Fprintf(w, "%-16s  %-11s  %s\n", s.Name, s.Status, detail)
	}
	fmt.Fprintf(w, "\nfetched %d, created %d, updated %d, failed %d in %s\n",
		r.Counts.Fetched, r.Counts.Created, r.Counts.Updated, r.Counts.Failed, r.Duration)
	if r.Link != nil {
		fmt.Fprintf(w, "linked %d, unmatched %d, unlinkable %d\n",
			r.Link.Linked, len(r.Link.Unmatched), len(r.Link.Unlinkable))
	}
}

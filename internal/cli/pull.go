package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/jobs"
)

var missingBookingNames bool

var pullCmd = &cobra.Command{
	Use:   "pull [booking|member <remote-id>]",
	Short: "Refresh single records from the CRM",
	Long: `Refresh single records from the CRM without a full import.

With --missing-booking-names every member stored without a booking name is
pulled again, so a later link run can place it.`,
	Args: validatePullArgs,
	RunE: runPull,
}

func init() {
	pullCmd.Flags().BoolVar(&missingBookingNames, "missing-booking-names", false, "re-pull members without a booking name")
}

func validatePullArgs(cmd *cobra.Command, args []string) error {
	backfill, _ := cmd.Flags().GetBool("missing-booking-names")
	if backfill {
		if len(args) != 0 {
			return fmt.Errorf("--missing-booking-names takes no arguments")
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("expected <booking|member> <remote-id>")
	}
	if args[0] != string(jobs.PipelineBooking) && args[0] != string(jobs.PipelineMember) {
		return fmt.Errorf("unknown record family %q", args[0])
	}
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	deps, err := setup(true)
	if err != nil {
		return err
	}
	defer closeDeps(deps)
	if err := requireFieldMap(deps); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if missingBookingNames {
		counts, err := deps.Jobs.Importer.BackfillBookingNames(cmd.Context(), 0)
		fmt.Fprintf(out, "booking name backfill: pulled %d, failed %d\n", counts.Fetched-counts.Failed, counts.Failed)
		if err != nil {
			return err
		}
		if counts.Failed > 0 {
			return &ExitError{Code: 1, Msg: "some members could not be pulled"}
		}
		return nil
	}

	counts, err := deps.Jobs.Importer.PullOne(cmd.Context(), jobs.Pipeline(args[0]), args[1])
	if err != nil {
		return &ExitError{Code: 1, Msg: err.Error()}
	}
	verb := "updated"
	if counts.Created > 0 {
		verb = "created"
	}
	fmt.Fprintf(out, "%s %s %s\n", args[0], args[1], verb)
	return nil
}

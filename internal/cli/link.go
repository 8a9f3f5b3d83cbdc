package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/jobs"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link members to bookings by booking name",
	Args:  cobra.NoArgs,
	RunE:  runLink,
}

func runLink(cmd *cobra.Command, args []string) error {
	deps, err := setup(false)
	if err != nil {
		return err
	}
	defer closeDeps(deps)

	report, err := deps.Jobs.Linker.Run(cmd.Context())
	if err != nil {
		return err
	}
	printLinkReport(cmd.OutOrStdout(), report)
	return nil
}

func printLinkReport(w io.Writer, r *jobs.LinkReport) {
	fmt.Fprintf(w, "linked %d (exact %d, case-insensitive %d, contains %d)\n",
		r.Linked, r.ByTier[jobs.TierExact], r.ByTier[jobs.TierCaseInsensitive], r.ByTier[jobs.TierContains])

	if len(r.Ambiguities) > 0 {
		fmt.Fprintf(w, "\nAmbiguous (%d), lowest booking id chosen:\n", len(r.Ambiguities))
		for _, a := range r.Ambiguities {
			fmt.Fprintf(w, "  %s  %q -> %d of %v\n", a.MemberID, a.BookingName, a.ChosenID, a.CandidateIDs)
		}
	}

	if len(r.Unmatched) > 0 {
		width := len("MEMBER")
		for _, u := range r.Unmatched {
			if len(u.ID) > width {
				width = len(u.ID)
			}
		}
		fmt.Fprintf(w, "\nUnmatched (%d):\n", len(r.Unmatched))
		fmt.Fprintf(w, "  %-*s  BOOKING NAME\n", width, "MEMBER")
		fmt.Fprintf(w, "  %s\n", strings.Repeat("-", width+2+30))
		for _, u := range r.Unmatched {
			fmt.Fprintf(w, "  %-*s  %s\n", width, u.ID, u.BookingName)
		}
	}

	if len(r.Unlinkable) > 0 {
		fmt.Fprintf(w, "\nWithout booking name (%d): %s\n", len(r.Unlinkable), strings.Join(r.Unlinkable, ", "))
	}
	if r.Errors > 0 {
		fmt.Fprintf(w, "\n%d link writes failed, see logs\n", r.Errors)
	}
}

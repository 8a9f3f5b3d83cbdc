package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/constants"
)

var pushPendingCmd = &cobra.Command{
	Use:   "push-pending",
	Short: "Retry every push that did not reach the CRM",
	Args:  cobra.NoArgs,
	RunE:  runPushPending,
}

func runPushPending(cmd *cobra.Command, args []string) error {
	deps, err := setup(true)
	if err != nil {
		return err
	}
	defer closeDeps(deps)
	if err := requireFieldMap(deps); err != nil {
		return err
	}

	res, err := deps.Jobs.Pending.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "push batch %s: attempted %d, created %d, updated %d, deleted %d, failed %d\n",
		res.Status, res.Counts.Fetched, res.Counts.Created, res.Counts.Updated,
		res.Counts.ByKind["deleted"], res.Counts.Failed)
	if res.Status != constants.SyncStatusSuccess {
		return &ExitError{Code: 1, Msg: "some pushes are still pending"}
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Learn remote pipelines and custom field ids, then rebuild the field map",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	deps, err := setup(true)
	if err != nil {
		return err
	}
	defer closeDeps(deps)

	res, err := deps.Jobs.Discovery.Run(cmd.Context())
	if res != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "pipelines %d, fields mapped %d, unknown %d, type conflicts %d\n",
			res.Pipelines, res.FieldsMapped, res.FieldsUnknown, res.TypeConflicts)
	}
	if err != nil {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("discovery failed: %v", err)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "field map installed with %d entries\n", res.RegistrySize)
	return nil
}

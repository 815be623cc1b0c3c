package cmd

import (
	"fmt"

	"github.com/endorses/trustpeer/internal/pkg/output"
	"github.com/endorses/trustpeer/internal/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		asJSON, _ := cmd.Flags().GetBool("json")
		if !asJSON {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tp %s\n", info)
			return err
		}
		data, err := output.MarshalJSON(info)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

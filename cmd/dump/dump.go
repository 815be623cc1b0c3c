package dump

import (
	"fmt"

	"github.com/endorses/trustpeer/internal/pkg/cmdutil"
	"github.com/endorses/trustpeer/internal/pkg/loader"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DumpCmd prints the trusted table.
var DumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the trusted table",
	Long: `Load the trusted table and print it bucket by bucket, one entry per line:

  <bucket> <source, protocol code, pattern or NULL, tag or NULL>

With --rows the source rows are printed as YAML instead, suitable for
--trusted-file. This converts a database table into a file.

Examples:
  tp dump --trusted-file trusted.yaml
  tp dump --trusted-db perm.db --rows > trusted.yaml`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

var rowsOutput bool

func init() {
	DumpCmd.Flags().BoolVar(&rowsOutput, "rows", false, "Print source rows as YAML instead of the table")
}

func runDump(cmd *cobra.Command, args []string) error {
	settings := cmdutil.LoadSettings(viper.GetViper())

	if rowsOutput {
		src, closeSrc, err := settings.Source()
		if err != nil {
			return err
		}
		defer closeSrc()

		rows, err := src.Rows(cmd.Context())
		if err != nil {
			return err
		}
		data, err := loader.WriteYAML(rows)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	rt, report, err := cmdutil.NewRuntime(cmd.Context(), settings, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Debug("Trusted table loaded",
		"source", report.Source,
		"generation", report.Generation,
		"inserted", report.Inserted,
		"skipped", report.Skipped)

	table := rt.Store.Current()
	if table == nil {
		return fmt.Errorf("no trusted table loaded from %s", rt.Source.Describe())
	}
	return table.Dump(cmd.OutOrStdout())
}

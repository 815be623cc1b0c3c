package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/endorses/trustpeer/cmd/check"
	"github.com/endorses/trustpeer/cmd/dump"
	"github.com/endorses/trustpeer/cmd/scan"
	"github.com/endorses/trustpeer/cmd/serve"
	"github.com/endorses/trustpeer/internal/pkg/cmdutil"
	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "tp decides which SIP peers are trusted",
	Long: `tp loads a trusted peer table from a YAML file or a SQLite database and
checks SIP requests against it by source address, transport and From URI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.SetLevel(viper.GetString(cmdutil.KeyLogLevel))
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func addSubCommands() {
	rootCmd.AddCommand(check.CheckCmd)
	rootCmd.AddCommand(dump.DumpCmd)
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(scan.ScanCmd)
	rootCmd.AddCommand(versionCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	addSubCommands()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/trustpeer/config.yaml)")
	pf.String("trusted-file", "", "YAML file holding the trusted table")
	pf.String("trusted-db", "", "SQLite database holding the trusted table (takes precedence over --trusted-file)")
	pf.String("db-table", "trusted", "Table name inside --trusted-db")
	pf.String("tag-avp", "", "Attribute the matched tag is written to, e.g. s:peer_tag or i:42")
	pf.Int("max-uri-size", constants.MaxURISize, "Longest From URI accepted for matching")
	pf.Bool("strict-patterns", false, "Reject rows with invalid patterns at load time")
	pf.Bool("lenient", false, "Skip rejected rows instead of failing the load")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")

	_ = viper.BindPFlag(cmdutil.KeyTrustedFile, pf.Lookup("trusted-file"))
	_ = viper.BindPFlag(cmdutil.KeyTrustedDB, pf.Lookup("trusted-db"))
	_ = viper.BindPFlag(cmdutil.KeyTrustedDBTable, pf.Lookup("db-table"))
	_ = viper.BindPFlag(cmdutil.KeyTagAVP, pf.Lookup("tag-avp"))
	_ = viper.BindPFlag(cmdutil.KeyMaxURISize, pf.Lookup("max-uri-size"))
	_ = viper.BindPFlag(cmdutil.KeyStrictPatterns, pf.Lookup("strict-patterns"))
	_ = viper.BindPFlag(cmdutil.KeyLenientLoad, pf.Lookup("lenient"))
	_ = viper.BindPFlag(cmdutil.KeyLogLevel, pf.Lookup("log-level"))

	cmdutil.SetDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "trustpeer"))
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TRUSTPEER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debug("Using config file", "path", viper.ConfigFileUsed())
	}
}

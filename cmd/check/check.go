package check

import (
	"errors"
	"fmt"
	"io"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"github.com/endorses/trustpeer/internal/pkg/cmdutil"
	"github.com/endorses/trustpeer/internal/pkg/output"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrUntrusted is returned when the request does not come from a trusted
// peer, so scripts can rely on the exit status.
var ErrUntrusted = errors.New("request is not trusted")

// CheckCmd checks a single request against the trusted table.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one request against the trusted table",
	Long: `Check whether a request from the given source address, transport and
From URI would be treated as coming from a trusted peer.

Exits non-zero when the request is not trusted.

Examples:
  tp check --trusted-file trusted.yaml -s 10.0.0.5 -u sip:alice@example.com
  tp check --trusted-db perm.db -s 10.0.0.8 -p tls -u sips:gw@example.com --json`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var (
	srcAddr    string
	transport  string
	fromURI    string
	jsonOutput bool
	failOpen   bool
)

func init() {
	CheckCmd.Flags().StringVarP(&srcAddr, "src", "s", "", "Source address of the request (required)")
	CheckCmd.Flags().StringVarP(&transport, "proto", "p", "udp", "Transport the request arrived on: udp, tcp, tls or sctp")
	CheckCmd.Flags().StringVarP(&fromURI, "uri", "u", "", "From URI of the request")
	CheckCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	CheckCmd.Flags().BoolVar(&failOpen, "fail-open", false, "Treat a match as trusted even when the tag could not be stored")
	_ = CheckCmd.MarkFlagRequired("src")

	_ = viper.BindPFlag(cmdutil.KeyFailOpen, CheckCmd.Flags().Lookup("fail-open"))
}

func runCheck(cmd *cobra.Command, args []string) error {
	proto, err := trusted.ParseTransport(transport)
	if err != nil {
		return err
	}

	settings := cmdutil.LoadSettings(viper.GetViper())
	rt, _, err := cmdutil.NewRuntime(cmd.Context(), settings, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := rt.Checker.Check(trusted.Query{Source: srcAddr, Protocol: proto, IdentityURI: fromURI})
	if err := writeDecision(cmd.OutOrStdout(), d, jsonOutput, settings.FailOpen); err != nil {
		return err
	}
	if d.Err != nil && !errors.Is(d.Err, trusted.ErrTagForward) {
		return d.Err
	}
	if !d.Trusted(settings.FailOpen) {
		return ErrUntrusted
	}
	return nil
}

func writeDecision(w io.Writer, d checker.Decision, asJSON, failOpen bool) error {
	if asJSON {
		data, err := output.MarshalJSON(output.FromDecision(d))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	verdict := "untrusted"
	if d.Trusted(failOpen) {
		verdict = "trusted"
	}
	line := fmt.Sprintf("%s src=%s proto=%s uri=%q", verdict, d.Query.Source, d.Query.Protocol, d.Query.IdentityURI)
	if d.Tag != "" {
		line += " tag=" + d.Tag
	}
	if d.Attribute != "" {
		line += " attribute=" + d.Attribute
	}
	if d.Err != nil {
		line += fmt.Sprintf(" error=%q", d.Err)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

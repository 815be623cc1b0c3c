package scan

import (
	"fmt"
	"io"

	"github.com/endorses/trustpeer/internal/pkg/cmdutil"
	"github.com/endorses/trustpeer/internal/pkg/output"
	"github.com/endorses/trustpeer/internal/pkg/pcapwriter"
	"github.com/endorses/trustpeer/internal/pkg/scan"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ScanCmd replays a capture file through the trust check.
var ScanCmd = &cobra.Command{
	Use:   "scan <capture.pcap>",
	Short: "Check every SIP request in a capture file",
	Long: `Read a pcap or pcapng file, parse each SIP request carried over UDP, TCP
or SCTP and check its source address, transport and From URI against the
trusted table. Prints one line per request followed by a summary.

Examples:
  tp scan --trusted-file trusted.yaml capture.pcap
  tp scan --trusted-db perm.db --trusted-only --json capture.pcapng
  tp scan --trusted-file trusted.yaml --trusted-only --write trusted.pcap capture.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	jsonOutput  bool
	trustedOnly bool
	writeFile   string
)

func init() {
	ScanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output one JSON object per request")
	ScanCmd.Flags().BoolVar(&trustedOnly, "trusted-only", false, "Only print requests from trusted peers")
	ScanCmd.Flags().StringVarP(&writeFile, "write", "w", "", "Save the packets of printed requests to a pcap file")
}

func runScan(cmd *cobra.Command, args []string) error {
	settings := cmdutil.LoadSettings(viper.GetViper())
	rt, _, err := cmdutil.NewRuntime(cmd.Context(), settings, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	var pw *pcapwriter.Writer
	if writeFile != "" {
		pw, err = pcapwriter.New(pcapwriter.Config{FilePath: writeFile})
		if err != nil {
			return err
		}
		defer pw.Close()
	}

	w := cmd.OutOrStdout()
	var writeErr error
	stats, err := scan.File(cmd.Context(), args[0], rt.Checker, func(r scan.Result) {
		if writeErr != nil || (trustedOnly && !r.Decision.Trusted(settings.FailOpen)) {
			return
		}
		if writeErr = writeResult(w, r, jsonOutput); writeErr != nil {
			return
		}
		if pw != nil {
			writeErr = pw.WritePacket(r.LinkType, r.CaptureInfo, r.Data)
		}
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	if pw != nil {
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if jsonOutput {
		return nil
	}
	_, err = fmt.Fprintf(w, "packets=%d requests=%d trusted=%d untrusted=%d errors=%d unparsed=%d\n",
		stats.Packets, stats.SIPRequests, stats.Matched, stats.Unmatched, stats.Errors, stats.Unparsed)
	return err
}

func writeResult(w io.Writer, r scan.Result, asJSON bool) error {
	d := r.Decision
	if asJSON {
		data, err := output.MarshalJSONPretty(struct {
			Timestamp string `json:"ts"`
			Method    string `json:"method"`
			output.Decision
		}{
			Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
			Method:    r.Method,
			Decision:  output.FromDecision(d),
		}, false)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	verdict := "untrusted"
	switch {
	case d.Err != nil:
		verdict = "error"
	case d.Matched:
		verdict = "trusted"
	}
	line := fmt.Sprintf("%s %-9s %-8s %s %s %s",
		r.Timestamp.UTC().Format("15:04:05.000"), verdict, r.Method, d.Query.Source, d.Query.Protocol, d.Query.IdentityURI)
	if d.Tag != "" {
		line += " tag=" + d.Tag
	}
	if d.Err != nil {
		line += fmt.Sprintf(" error=%q", d.Err)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

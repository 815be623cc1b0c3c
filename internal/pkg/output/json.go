// Package output provides utilities for consistent CLI and admin output.
package output

import (
	"encoding/json"
	"os"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"golang.org/x/term"
)

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// MarshalJSON marshals v to JSON, pretty-printed when stdout is a TTY and
// compact when piped.
func MarshalJSON(v any) ([]byte, error) {
	return MarshalJSONPretty(v, IsTTY())
}

// MarshalJSONPretty marshals v to JSON with explicit formatting control.
func MarshalJSONPretty(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Decision is the wire form of a trust check.
type Decision struct {
	Source    string `json:"src"`
	Protocol  string `json:"proto"`
	URI       string `json:"uri"`
	Matched   bool   `json:"matched"`
	Tag       string `json:"tag,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FromDecision converts a checker decision for output.
func FromDecision(d checker.Decision) Decision {
	out := Decision{
		Source:    d.Query.Source,
		Protocol:  d.Query.Protocol.String(),
		URI:       d.Query.IdentityURI,
		Matched:   d.Matched,
		Tag:       d.Tag,
		Attribute: d.Attribute,
	}
	if d.Err != nil {
		out.Error = d.Err.Error()
	}
	return out
}

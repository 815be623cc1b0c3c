// Package sipmsg extracts the fields a trust check needs from a raw SIP
// message: the request method and the caller identity URI from the From
// header.
package sipmsg

import (
	"errors"
	"strings"

	"github.com/endorses/trustpeer/internal/pkg/constants"
)

var (
	// ErrNotSIP is returned when the payload does not start with a SIP
	// request or status line.
	ErrNotSIP = errors.New("sipmsg: not a SIP message")

	// ErrNoFrom is returned when the message has no From header.
	ErrNoFrom = errors.New("sipmsg: missing From header")

	// ErrMalformedFrom is returned when the From header has no usable URI.
	ErrMalformedFrom = errors.New("sipmsg: malformed From header")
)

var methods = []string{
	"INVITE", "ACK", "BYE", "CANCEL", "OPTIONS", "REGISTER",
	"PRACK", "SUBSCRIBE", "NOTIFY", "PUBLISH", "INFO", "REFER",
	"MESSAGE", "UPDATE",
}

// Message is a parsed SIP message. Header names are lower-cased and compact
// forms are expanded; for repeated headers the first occurrence is kept.
type Message struct {
	StartLine string
	Method    string
	Headers   map[string]string
}

// IsRequest reports whether the message is a request rather than a response.
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// Parse reads the start line and headers of a SIP message. The body is
// ignored. Input beyond the size limit is not inspected.
func Parse(data []byte) (*Message, error) {
	if len(data) > constants.MaxSIPMessageSize {
		data = data[:constants.MaxSIPMessageSize]
	}
	text := string(data)

	first, rest, _ := strings.Cut(text, "\n")
	startLine := strings.TrimSpace(first)
	method, ok := parseStartLine(startLine)
	if !ok {
		return nil, ErrNotSIP
	}

	msg := &Message{
		StartLine: startLine,
		Method:    method,
		Headers:   make(map[string]string),
	}

	var last string
	for _, raw := range strings.Split(rest, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			break // end of headers
		}
		// Folded continuation of the previous header
		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				msg.Headers[last] += " " + strings.TrimSpace(line)
			}
			continue
		}
		if len(msg.Headers) >= constants.MaxSIPHeaders {
			break
		}
		key, val := parseHeaderLine(line)
		if key == "" {
			last = ""
			continue
		}
		if _, seen := msg.Headers[key]; seen {
			last = ""
			continue
		}
		msg.Headers[key] = val
		last = key
	}
	return msg, nil
}

// parseStartLine returns the request method, empty for a response.
func parseStartLine(line string) (string, bool) {
	if strings.HasPrefix(line, "SIP/2.0 ") {
		return "", true
	}
	if !strings.HasSuffix(line, " SIP/2.0") {
		return "", false
	}
	for _, m := range methods {
		if strings.HasPrefix(line, m+" ") {
			return m, true
		}
	}
	return "", false
}

func parseHeaderLine(line string) (string, string) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", ""
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", ""
	}
	return normalizeHeaderName(key), strings.TrimSpace(value)
}

// compactForms maps RFC 3261 compact header names to full names.
var compactForms = map[string]string{
	"i": "call-id",
	"f": "from",
	"t": "to",
	"v": "via",
	"m": "contact",
	"l": "content-length",
	"c": "content-type",
	"e": "content-encoding",
	"s": "subject",
	"k": "supported",
	"r": "refer-to",
	"b": "referred-by",
	"o": "event",
	"u": "allow-events",
}

func normalizeHeaderName(name string) string {
	if full, ok := compactForms[name]; ok {
		return full
	}
	return name
}

// FromURI returns the URI of the From header without display name, angle
// brackets or header parameters.
func (m *Message) FromURI() (string, error) {
	from, ok := m.Headers["from"]
	if !ok {
		return "", ErrNoFrom
	}
	return ExtractURI(from)
}

// ExtractURI pulls the URI out of a name-addr or addr-spec header value.
func ExtractURI(value string) (string, error) {
	v := strings.TrimSpace(value)

	// A quoted display name may itself contain '<'
	if strings.HasPrefix(v, `"`) {
		end := closingQuote(v)
		if end < 0 {
			return "", ErrMalformedFrom
		}
		v = v[end+1:]
	}

	if open := strings.IndexByte(v, '<'); open >= 0 {
		end := strings.IndexByte(v[open:], '>')
		if end < 0 {
			return "", ErrMalformedFrom
		}
		uri := strings.TrimSpace(v[open+1 : open+end])
		if uri == "" {
			return "", ErrMalformedFrom
		}
		return uri, nil
	}

	// addr-spec form: parameters after ';' belong to the header
	uri, _, _ := strings.Cut(v, ";")
	uri = strings.TrimSpace(uri)
	if uri == "" || !strings.Contains(uri, ":") {
		return "", ErrMalformedFrom
	}
	return uri, nil
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

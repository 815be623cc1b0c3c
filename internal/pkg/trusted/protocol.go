package trusted

import (
	"fmt"
	"strings"
)

// Protocol is the transport a trust entry is restricted to.
// Numeric values are the codes printed by Dump.
type Protocol int

const (
	ProtoAny Protocol = iota
	ProtoUDP
	ProtoTCP
	ProtoTLS
	ProtoSCTP
)

// protoNone is the row token that asks Insert to skip the row.
const protoNone = "none"

func (p Protocol) String() string {
	switch p {
	case ProtoAny:
		return "any"
	case ProtoUDP:
		return "udp"
	case ProtoTCP:
		return "tcp"
	case ProtoTLS:
		return "tls"
	case ProtoSCTP:
		return "sctp"
	default:
		return fmt.Sprintf("proto(%d)", int(p))
	}
}

// Code returns the numeric protocol code.
func (p Protocol) Code() int {
	return int(p)
}

// Matches reports whether an entry restricted to p accepts a request that
// arrived over transport.
func (p Protocol) Matches(transport Protocol) bool {
	return p == ProtoAny || p == transport
}

// parseRowProtocol maps a loader token to a protocol. Tokens are exact,
// lower-case. skip is true for the "none" sentinel.
func parseRowProtocol(token string) (p Protocol, skip bool, err error) {
	switch token {
	case "any":
		return ProtoAny, false, nil
	case "udp":
		return ProtoUDP, false, nil
	case "tcp":
		return ProtoTCP, false, nil
	case "tls":
		return ProtoTLS, false, nil
	case "sctp":
		return ProtoSCTP, false, nil
	case protoNone:
		return ProtoAny, true, nil
	default:
		return ProtoAny, false, fmt.Errorf("%w: %q", ErrUnknownProtocol, token)
	}
}

// ParseTransport parses the transport of an inbound request as reported by
// a message parser or typed by an operator. Unlike row tokens it is case
// insensitive and rejects the "none" sentinel.
func ParseTransport(s string) (Protocol, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == protoNone {
		return ProtoAny, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
	p, _, err := parseRowProtocol(t)
	return p, err
}

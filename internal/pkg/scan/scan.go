// Package scan replays SIP requests from a capture file through the trust
// check, reporting which peers would have been treated as trusted.
package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/endorses/trustpeer/internal/pkg/sipmsg"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the section header block type that opens a pcapng file.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Result is the check performed for one SIP request in the capture.
type Result struct {
	Timestamp time.Time
	Method    string
	Decision  checker.Decision

	// Packet carrying the request, for re-writing to a capture.
	LinkType    layers.LinkType
	CaptureInfo gopacket.CaptureInfo
	Data        []byte
}

// Stats summarizes a scan.
type Stats struct {
	Packets     int
	SIPRequests int
	Matched     int
	Unmatched   int
	Errors      int
	// Unparsed counts SIP requests without a usable From URI.
	Unparsed int
}

// Checker is the part of checker.Checker a scan needs.
type Checker interface {
	Check(q trusted.Query) checker.Decision
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// File scans a pcap or pcapng file, calling fn for every SIP request.
func File(ctx context.Context, path string, chk Checker, fn func(Result)) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	return Reader(ctx, f, chk, fn)
}

// Reader scans a capture stream.
func Reader(ctx context.Context, r io.Reader, chk Checker, fn func(Result)) (Stats, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read capture header: %w", err)
	}

	var src packetReader
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open capture: %w", err)
	}

	var stats Stats
	packets := gopacket.NewPacketSource(src, src.LinkType())
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A truncated trailing record ends the capture
			logger.Debug("Stopping capture scan on read error", "error", err)
			break
		}
		stats.Packets++

		q, payload, ok := extract(packet)
		if !ok {
			continue
		}
		msg, err := sipmsg.Parse(payload)
		if err != nil || !msg.IsRequest() {
			continue
		}
		stats.SIPRequests++

		uri, err := msg.FromURI()
		if err != nil {
			stats.Unparsed++
			logger.Debug("SIP request without usable From URI", "source", q.Source, "error", err)
			continue
		}
		q.IdentityURI = uri

		d := chk.Check(q)
		switch {
		case d.Err != nil:
			stats.Errors++
		case d.Matched:
			stats.Matched++
		default:
			stats.Unmatched++
		}
		if fn != nil {
			md := packet.Metadata()
			fn(Result{
				Timestamp:   md.Timestamp,
				Method:      msg.Method,
				Decision:    d,
				LinkType:    src.LinkType(),
				CaptureInfo: md.CaptureInfo,
				Data:        packet.Data(),
			})
		}
	}
	return stats, nil
}

// extract returns the source address, transport and payload of a packet
// carrying UDP, TCP or SCTP data.
func extract(packet gopacket.Packet) (trusted.Query, []byte, bool) {
	var q trusted.Query
	switch nl := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		q.Source = nl.SrcIP.String()
	case *layers.IPv6:
		q.Source = nl.SrcIP.String()
	default:
		return q, nil, false
	}

	if data, ok := packet.Layer(layers.LayerTypeSCTPData).(*layers.SCTPData); ok {
		q.Protocol = trusted.ProtoSCTP
		return q, data.Payload, len(data.Payload) > 0
	}

	// The transport payload is the whole SIP message. gopacket decodes
	// port 5060 into its own SIP layer whose payload is only the body.
	var payload []byte
	switch tl := packet.TransportLayer().(type) {
	case *layers.UDP:
		q.Protocol = trusted.ProtoUDP
		payload = tl.Payload
	case *layers.TCP:
		q.Protocol = trusted.ProtoTCP
		payload = tl.Payload
	default:
		return q, nil, false
	}
	return q, payload, len(payload) > 0
}

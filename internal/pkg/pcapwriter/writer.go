package pcapwriter

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	// ErrClosed is returned by WritePacket after Close.
	ErrClosed = errors.New("pcap writer is closed")
	// ErrLinkTypeMismatch is returned when a packet's link type differs from
	// the one the file header was written with.
	ErrLinkTypeMismatch = errors.New("link type differs from capture header")
)

// Writer writes packets to a PCAP file. It is safe for concurrent use.
type Writer struct {
	filePath     string
	snaplen      uint32
	mu           sync.Mutex
	file         *os.File
	writer       *pcapgo.Writer
	headerDone   bool
	linkType     layers.LinkType
	closed       bool
	packetCount  int64
	bytesWritten int64
}

// Config for PCAP writer
type Config struct {
	FilePath string // Path to PCAP file
	Snaplen  uint32 // Snapshot length written to the header, 65536 if zero
}

// New creates the file. The header is written with the first packet so that
// it carries that packet's link type.
func New(config Config) (*Writer, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if config.Snaplen == 0 {
		config.Snaplen = 65536
	}

	file, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create PCAP file: %w", err)
	}

	logger.Debug("Created PCAP writer", "file", config.FilePath)
	return &Writer{
		filePath: config.FilePath,
		snaplen:  config.Snaplen,
		file:     file,
		writer:   pcapgo.NewWriter(file),
	}, nil
}

// WritePacket appends one packet.
func (w *Writer) WritePacket(linkType layers.LinkType, ci gopacket.CaptureInfo, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if !w.headerDone {
		if err := w.writer.WriteFileHeader(w.snaplen, linkType); err != nil {
			return fmt.Errorf("failed to write PCAP header: %w", err)
		}
		w.headerDone = true
		w.linkType = linkType
	} else if linkType != w.linkType {
		return fmt.Errorf("%w: %s, header has %s", ErrLinkTypeMismatch, linkType, w.linkType)
	}

	if err := w.writer.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	w.packetCount++
	w.bytesWritten += int64(len(data))
	return nil
}

// Close syncs and closes the file. An empty capture still gets a header so
// that readers accept it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if !w.headerDone {
		if err := w.writer.WriteFileHeader(w.snaplen, layers.LinkTypeEthernet); err != nil {
			logger.Warn("Failed to write PCAP header", "error", err, "file", w.filePath)
		}
	}
	if err := w.file.Sync(); err != nil {
		logger.Warn("Failed to sync PCAP file", "error", err, "file", w.filePath)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close PCAP file: %w", err)
	}

	logger.Debug("Closed PCAP writer",
		"file", w.filePath,
		"packets", w.packetCount,
		"bytes", w.bytesWritten)
	return nil
}

// Stats returns current writer statistics
func (w *Writer) Stats() (packetCount, bytesWritten int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packetCount, w.bytesWritten
}

// FilePath returns the file path being written to
func (w *Writer) FilePath() string {
	return w.filePath
}

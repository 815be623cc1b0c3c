// Package constants provides shared constants used across trustpeer components.
package constants

import "time"

// Trusted table sizing
const (
	// TrustedBucketCount is the number of hash buckets in a trusted table.
	// It matches the size of the request-routing permission tables so that
	// all address-keyed tables in a deployment hash the same way.
	TrustedBucketCount = 128

	// MaxURISize is the default upper bound on an identity URI length.
	// Longer URIs are rejected before pattern matching.
	MaxURISize = 1024

	// PatternCacheSize bounds the number of compiled patterns kept per table
	// generation.
	PatternCacheSize = 1024

	// BloomFPRate is the target false positive rate of the address prefilter.
	BloomFPRate = 0.001

	// BloomMinCapacity is the minimum number of addresses the prefilter is
	// sized for, so that small tables still get a useful filter.
	BloomMinCapacity = 1024
)

// SIP message limits
const (
	// MaxSIPMessageSize caps the bytes inspected when parsing a SIP message.
	MaxSIPMessageSize = 64 * 1024

	// MaxSIPHeaders caps the number of headers collected from one message.
	MaxSIPHeaders = 100
)

// Reload and shutdown timing
const (
	// ReloadDebounce is the quiet period after the last file event before a
	// reload is started. Editors often emit several writes per save.
	ReloadDebounce = 500 * time.Millisecond

	// GracefulShutdownTimeout is the time to wait for the admin server to drain
	GracefulShutdownTimeout = 2 * time.Second

	// AdminReadTimeout and AdminWriteTimeout bound admin HTTP requests
	AdminReadTimeout  = 10 * time.Second
	AdminWriteTimeout = 10 * time.Second
)

// Channel buffer sizes
//
// Single-item buffers are used for signals and reload triggers that must
// never block the sender; a pending trigger already covers any later one.
const (
	// SignalChannelBuffer is the buffer size for OS signal channels
	SignalChannelBuffer = 1

	// ReloadTriggerBuffer is the buffer size for reload trigger channels
	ReloadTriggerBuffer = 1
)

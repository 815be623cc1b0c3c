package trusted

import "errors"

var (
	// ErrAllocation is returned when a table or entry cannot be allocated,
	// either because the configuration is unusable or the table is full.
	ErrAllocation = errors.New("trusted: allocation failure")

	// ErrUnknownProtocol is returned by Insert for a protocol token outside
	// any|udp|tcp|tls|sctp|none.
	ErrUnknownProtocol = errors.New("trusted: unknown protocol")

	// ErrEmptyAddress is returned by Insert when the source address is empty.
	ErrEmptyAddress = errors.New("trusted: empty source address")

	// ErrInvalidPattern is returned when an entry pattern is not a valid
	// extended regular expression.
	ErrInvalidPattern = errors.New("trusted: invalid pattern")

	// ErrURITooLong is returned by Lookup before matching when the identity
	// URI exceeds the configured maximum.
	ErrURITooLong = errors.New("trusted: identity URI too long")

	// ErrTagForward is returned by Lookup when an entry matched but the tag
	// could not be written to the attribute store.
	ErrTagForward = errors.New("trusted: tag forward failure")

	// ErrDestroyed is returned by every operation on a destroyed table.
	ErrDestroyed = errors.New("trusted: table destroyed")
)

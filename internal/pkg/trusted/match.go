package trusted

import (
	"fmt"

	"github.com/endorses/trustpeer/internal/pkg/constants"
)

// Query describes one inbound request as seen by the message parser.
type Query struct {
	Source      string
	Protocol    Protocol
	IdentityURI string
}

// Result is the outcome of a lookup. Entry is only meaningful when Matched.
type Result struct {
	Matched bool
	Entry   Entry
}

// Tag returns the matched entry's tag, empty when there is none.
func (r Result) Tag() string {
	if !r.Matched || !r.Entry.HasTag {
		return ""
	}
	return r.Entry.Tag
}

// TagSink receives the tag of a matched entry.
type TagSink interface {
	Forward(tag string) error
}

// Match scans the bucket for q.Source and returns the first entry whose
// address, protocol and pattern all accept the query. A pattern that fails
// to compile aborts the scan with ErrInvalidPattern. Match does not check
// the URI length; see Matcher.
func (t *Table) Match(q Query) (Result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return Result{}, ErrDestroyed
	}

	key := lowerASCII(q.Source)
	if !t.filter.TestString(key) {
		return Result{}, nil
	}

	for n := t.heads[t.bucket(key)]; n != noEntry; n = t.entries[n].next {
		e := &t.entries[n]
		if e.key != key || !e.Protocol.Matches(q.Protocol) {
			continue
		}
		if !e.HasPattern {
			return Result{Matched: true, Entry: e.Entry}, nil
		}
		re, err := t.compile(e.Pattern)
		if err != nil {
			return Result{}, err
		}
		if re.MatchString(q.IdentityURI) {
			return Result{Matched: true, Entry: e.Entry}, nil
		}
	}
	return Result{}, nil
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	// MaxURISize is the longest identity URI accepted; zero means the
	// default limit.
	MaxURISize int
}

// Matcher answers trust queries against the current generation of a Store.
type Matcher struct {
	store  *Store
	maxURI int
}

// NewMatcher returns a matcher reading tables from store.
func NewMatcher(store *Store, cfg MatcherConfig) *Matcher {
	if cfg.MaxURISize <= 0 {
		cfg.MaxURISize = constants.MaxURISize
	}
	return &Matcher{store: store, maxURI: cfg.MaxURISize}
}

// Lookup finds the first entry accepting q. On a match, a non-empty tag is
// handed to sink; sink may be nil when the caller has no attribute store.
// A failed forward is an error even though the entry matched, so callers
// can choose whether to trust the request anyway.
func (m *Matcher) Lookup(q Query, sink TagSink) (Result, error) {
	if len(q.IdentityURI) > m.maxURI {
		return Result{}, fmt.Errorf("%w: %d bytes, limit %d", ErrURITooLong, len(q.IdentityURI), m.maxURI)
	}

	t := m.store.Current()
	if t == nil {
		return Result{}, nil
	}
	res, err := t.Match(q)
	if err != nil || !res.Matched {
		return res, err
	}

	if tag := res.Tag(); tag != "" && sink != nil {
		if err := sink.Forward(tag); err != nil {
			return res, fmt.Errorf("%w: %v", ErrTagForward, err)
		}
	}
	return res, nil
}

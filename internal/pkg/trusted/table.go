// Package trusted implements the trusted-peer table consulted for every
// inbound SIP request: a fixed-bucket hash of trust entries keyed by source
// address, each optionally restricted by transport and by a POSIX extended
// regular expression over the caller's From URI.
//
// Entries live in a per-table arena and reference each other by index, so a
// table generation is released as a whole once nothing references it. The
// safe reload pattern is to build a new table with New+Insert and publish it
// through Store.Swap; the table's own lock only protects in-place Empty and
// re-population against concurrent readers.
package trusted

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twmb/murmur3"
)

// noEntry terminates a bucket chain.
const noEntry = -1

// InsertResult is the outcome of a successful or failed Insert.
type InsertResult int

const (
	// Failed means the row was rejected and the table is unchanged.
	Failed InsertResult = iota
	// Inserted means one entry was added.
	Inserted
	// Skipped means the row carried the "none" protocol sentinel.
	Skipped
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Config controls how a table is built.
type Config struct {
	// Buckets is the bucket count, fixed for the lifetime of the table.
	Buckets int

	// MaxEntries caps the arena. Zero means unbounded.
	MaxEntries int

	// StrictPatterns compiles patterns at insert time and rejects invalid
	// ones. When false, an invalid pattern is reported by Lookup instead.
	StrictPatterns bool

	// PatternCacheSize bounds the compiled-pattern cache.
	PatternCacheSize int
}

// DefaultConfig returns the configuration used for production tables.
func DefaultConfig() Config {
	return Config{
		Buckets:          constants.TrustedBucketCount,
		PatternCacheSize: constants.PatternCacheSize,
	}
}

// Entry is a read-only view of one trust rule.
type Entry struct {
	Source   string
	Protocol Protocol
	// Pattern and Tag are empty when absent; HasPattern/HasTag disambiguate
	// an absent value from an empty one.
	Pattern    string
	HasPattern bool
	Tag        string
	HasTag     bool
}

// entry is an arena slot. next indexes the following entry in the bucket.
type entry struct {
	Entry
	key  string // ASCII lower-cased Source
	next int
}

// compiled caches the outcome of compiling one pattern, failures included.
type compiled struct {
	re  *regexp.Regexp
	err error
}

// Table is the trusted-peer hash table.
type Table struct {
	mu        sync.RWMutex
	cfg       Config
	heads     []int
	entries   []entry
	filter    *bloom.BloomFilter
	patterns  *lru.Cache[string, compiled]
	gen       string
	builtAt   time.Time
	destroyed bool
}

// New allocates an empty table. It fails with ErrAllocation when the
// configuration cannot produce a usable table.
func New(cfg Config) (*Table, error) {
	if cfg.Buckets <= 0 {
		return nil, fmt.Errorf("%w: bucket count must be positive, got %d", ErrAllocation, cfg.Buckets)
	}
	if cfg.MaxEntries < 0 {
		return nil, fmt.Errorf("%w: negative entry limit %d", ErrAllocation, cfg.MaxEntries)
	}
	if cfg.PatternCacheSize <= 0 {
		cfg.PatternCacheSize = constants.PatternCacheSize
	}

	patterns, err := lru.New[string, compiled](cfg.PatternCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern cache: %v", ErrAllocation, err)
	}

	capacity := uint(constants.BloomMinCapacity)
	if cfg.MaxEntries > constants.BloomMinCapacity {
		capacity = uint(cfg.MaxEntries)
	}

	t := &Table{
		cfg:      cfg,
		heads:    make([]int, cfg.Buckets),
		filter:   bloom.NewWithEstimates(capacity, constants.BloomFPRate),
		patterns: patterns,
	}
	t.reset()
	return t, nil
}

// reset empties buckets and arena and starts a new generation. Caller holds
// the write lock or owns the table exclusively.
func (t *Table) reset() {
	for i := range t.heads {
		t.heads[i] = noEntry
	}
	clear(t.entries)
	t.entries = t.entries[:0]
	t.filter.ClearAll()
	t.patterns.Purge()
	t.gen = uuid.NewString()
	t.builtAt = time.Now()
}

// lowerASCII folds A-Z only, matching the byte-wise case-insensitive
// comparison used for textual addresses.
func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

func (t *Table) bucket(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(t.heads)))
}

// Insert adds one trust entry built from a loader row. protocol must be one
// of any, udp, tcp, tls, sctp or none; none succeeds with Skipped and leaves
// the table untouched. pattern and tag are nil when absent.
//
// No uniqueness check is done. The newest entry is placed first in its
// bucket and therefore wins over older entries for the same address.
func (t *Table) Insert(source, protocol string, pattern, tag *string) (InsertResult, error) {
	proto, skip, err := parseRowProtocol(protocol)
	if err != nil {
		return Failed, err
	}
	if skip {
		return Skipped, nil
	}
	if source == "" {
		return Failed, ErrEmptyAddress
	}

	e := entry{
		Entry: Entry{Source: source, Protocol: proto},
		key:   lowerASCII(source),
	}
	if pattern != nil {
		e.Pattern, e.HasPattern = *pattern, true
	}
	if tag != nil {
		e.Tag, e.HasTag = *tag, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return Failed, ErrDestroyed
	}
	if t.cfg.MaxEntries > 0 && len(t.entries) >= t.cfg.MaxEntries {
		return Failed, fmt.Errorf("%w: table full at %d entries", ErrAllocation, t.cfg.MaxEntries)
	}
	if t.cfg.StrictPatterns && e.HasPattern {
		if _, err := t.compile(e.Pattern); err != nil {
			return Failed, err
		}
	}

	b := t.bucket(e.key)
	e.next = t.heads[b]
	t.entries = append(t.entries, e)
	t.heads[b] = len(t.entries) - 1
	t.filter.AddString(e.key)
	return Inserted, nil
}

// compile returns the compiled form of pattern, caching both successes and
// failures for the lifetime of this generation.
func (t *Table) compile(pattern string) (*regexp.Regexp, error) {
	if c, ok := t.patterns.Get(pattern); ok {
		return c.re, c.err
	}
	re, err := regexp.CompilePOSIX(pattern)
	if err != nil {
		err = fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	t.patterns.Add(pattern, compiled{re: re, err: err})
	return re, err
}

// Empty releases every entry and resets all buckets. The table stays usable
// and keeps its bucket count. Emptying an empty table is a no-op apart from
// starting a new generation.
func (t *Table) Empty() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	t.reset()
	return nil
}

// Destroy empties the table and releases the bucket array. Every later call
// on the table returns ErrDestroyed. Destroying twice is harmless.
func (t *Table) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.reset()
	t.heads = nil
	t.entries = nil
	t.destroyed = true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Buckets returns the bucket count, or zero once destroyed.
func (t *Table) Buckets() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.heads)
}

// Generation identifies the current contents of the table. It changes on
// every Empty.
func (t *Table) Generation() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen
}

// BuiltAt is when the current generation was started.
func (t *Table) BuiltAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.builtAt
}

// Dump writes every entry, bucket by bucket and newest first within a
// bucket, one line each:
//
//	<bucket> <source, protocol code, pattern or NULL, tag or NULL>
func (t *Table) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return ErrDestroyed
	}
	for i, head := range t.heads {
		for n := head; n != noEntry; n = t.entries[n].next {
			e := &t.entries[n]
			pattern, tag := "NULL", "NULL"
			if e.HasPattern {
				pattern = e.Pattern
			}
			if e.HasTag && e.Tag != "" {
				tag = e.Tag
			}
			if _, err := fmt.Fprintf(w, "%4d <%s, %d, %s, %s>\n", i, e.Source, e.Protocol.Code(), pattern, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

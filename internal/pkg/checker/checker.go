// Package checker runs a trust query the way the proxy does for each
// request: look up the peer, forward the tag into the request's attribute
// store, and record the outcome.
package checker

import (
	"time"

	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/tagsink"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
)

// Decision is the outcome of one check.
type Decision struct {
	Query   trusted.Query
	Matched bool
	Tag     string
	// Attribute holds the value written to the bound attribute slot, if any.
	Attribute string
	Err       error
}

// Trusted reports whether the request should be treated as coming from a
// trusted peer. A forward failure after a match leaves the decision to the
// caller's fail-open policy.
func (d Decision) Trusted(failOpen bool) bool {
	if d.Err != nil {
		return d.Matched && failOpen
	}
	return d.Matched
}

// Checker is safe for concurrent use.
type Checker struct {
	matcher *trusted.Matcher
	binding tagsink.Binding
	metrics *metrics.Collector
}

// New returns a checker. collector may be nil.
func New(matcher *trusted.Matcher, binding tagsink.Binding, collector *metrics.Collector) *Checker {
	return &Checker{matcher: matcher, binding: binding, metrics: collector}
}

// Check evaluates q with a fresh per-request attribute store.
func (c *Checker) Check(q trusted.Query) Decision {
	attrs := tagsink.NewMemoryStore(0)
	start := time.Now()
	res, err := c.matcher.Lookup(q, tagsink.NewAdapter(c.binding, attrs))
	c.metrics.ObserveLookup(start, res.Matched, err)

	d := Decision{Query: q, Matched: res.Matched, Tag: res.Tag(), Err: err}
	if v, ok := attrs.Get(c.binding); ok && c.binding.IsSet() {
		d.Attribute = v
	}
	return d
}

// Package tagsink forwards the tag of a matched trust entry into a
// per-request attribute store, under the attribute slot named once at
// startup by a binding spec such as "peer_tag", "s:peer_tag" or "$avp(i:42)".
package tagsink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidBinding is returned by ParseBinding for a malformed spec.
var ErrInvalidBinding = errors.New("tagsink: invalid binding spec")

// Kind discriminates how an attribute is keyed.
type Kind int

const (
	// KindString attributes are keyed by name.
	KindString Kind = iota
	// KindInt attributes are keyed by a positive integer ID.
	KindInt
)

func (k Kind) String() string {
	if k == KindInt {
		return "i"
	}
	return "s"
}

// Key names one attribute slot. Only the field matching the kind is set.
type Key struct {
	ID   int
	Name string
}

// Binding is the immutable attribute slot that receives matched tags. The
// zero Binding is unset and makes forwarding a no-op.
type Binding struct {
	kind Kind
	key  Key
	set  bool
}

// ParseBinding parses a startup binding spec. An empty spec yields the unset
// binding.
func ParseBinding(spec string) (Binding, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Binding{}, nil
	}
	if strings.HasPrefix(s, "$avp(") {
		if !strings.HasSuffix(s, ")") {
			return Binding{}, fmt.Errorf("%w: unterminated %q", ErrInvalidBinding, spec)
		}
		s = strings.TrimSpace(s[len("$avp(") : len(s)-1])
	}

	kind, name := KindString, s
	if len(s) >= 2 && s[1] == ':' {
		switch s[0] {
		case 'i', 'I':
			kind = KindInt
		case 's', 'S':
			kind = KindString
		default:
			return Binding{}, fmt.Errorf("%w: unknown type prefix in %q", ErrInvalidBinding, spec)
		}
		name = s[2:]
	}

	if name == "" {
		return Binding{}, fmt.Errorf("%w: empty attribute name in %q", ErrInvalidBinding, spec)
	}
	if kind == KindInt {
		id, err := strconv.Atoi(name)
		if err != nil || id <= 0 {
			return Binding{}, fmt.Errorf("%w: attribute id must be a positive integer in %q", ErrInvalidBinding, spec)
		}
		return Binding{kind: KindInt, key: Key{ID: id}, set: true}, nil
	}
	return Binding{kind: KindString, key: Key{Name: name}, set: true}, nil
}

// IsSet reports whether the binding names a slot.
func (b Binding) IsSet() bool { return b.set }

// Kind returns the attribute type discriminator.
func (b Binding) Kind() Kind { return b.kind }

// Key returns the attribute key.
func (b Binding) Key() Key { return b.key }

func (b Binding) String() string {
	if !b.set {
		return ""
	}
	if b.kind == KindInt {
		return fmt.Sprintf("$avp(i:%d)", b.key.ID)
	}
	return fmt.Sprintf("$avp(s:%s)", b.key.Name)
}

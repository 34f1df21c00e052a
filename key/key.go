package key

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the structural variant of a cache key. The kind tag is
// part of the canonical form, so a primary key and a composite key with an
// empty location chain never collide.
type Kind string

const (
	// KindPrimary is a key addressing an entity by id alone.
	KindPrimary Kind = "primary"

	// KindComposite is a key addressing an entity by id plus an ordered
	// chain of enclosing location ids.
	KindComposite Kind = "composite"
)

// Sentinel errors for key construction and parsing.
var (
	ErrMalformedKey = errors.New("key: malformed key")
	ErrCyclicKey    = errors.New("key: cyclic key structure")
)

// Locator is one element of a composite key's location chain: the type of
// the enclosing container and its normalized id.
type Locator struct {
	Type string
	ID   string
}

// Key is a normalized cache key. The zero value is not a valid key; use
// Primary or Composite.
//
// Contract:
// - Immutability: a Key is a value; callers must not mutate Locs after
//   construction.
// - Equality: two Keys address the same logical entity iff their canonical
//   forms (Normalize) are equal.
type Key struct {
	entity string
	id     string
	locs   []Locator
}

// Primary builds a primary key for the given entity type and id. The id may
// be a string or any numeric type; numeric and textual encodings of the same
// value produce the same key.
func Primary(entity string, id any) (Key, error) {
	if entity == "" {
		return Key{}, fmt.Errorf("%w: empty entity type", ErrMalformedKey)
	}
	nid, err := normalizeID(id)
	if err != nil {
		return Key{}, err
	}
	return Key{entity: entity, id: nid}, nil
}

// Composite builds a composite key: a primary id plus an ordered chain of
// enclosing locations. Location order is significant and preserved verbatim.
func Composite(entity string, id any, locs ...Locator) (Key, error) {
	k, err := Primary(entity, id)
	if err != nil {
		return Key{}, err
	}
	for _, l := range locs {
		if l.Type == "" || l.ID == "" {
			return Key{}, fmt.Errorf("%w: location with empty type or id", ErrMalformedKey)
		}
	}
	k.locs = append([]Locator(nil), locs...)
	return k, nil
}

// Loc builds a Locator, normalizing the id the same way Primary does.
func Loc(locType string, id any) (Locator, error) {
	if locType == "" {
		return Locator{}, fmt.Errorf("%w: empty location type", ErrMalformedKey)
	}
	nid, err := normalizeID(id)
	if err != nil {
		return Locator{}, err
	}
	return Locator{Type: locType, ID: nid}, nil
}

// Kind returns the structural variant of the key.
func (k Key) Kind() Kind {
	if len(k.locs) > 0 {
		return KindComposite
	}
	return KindPrimary
}

// Entity returns the entity type of the key.
func (k Key) Entity() string { return k.entity }

// ID returns the normalized primary id of the key.
func (k Key) ID() string { return k.id }

// Locations returns a copy of the location chain, outermost first.
func (k Key) Locations() []Locator {
	if len(k.locs) == 0 {
		return nil
	}
	out := make([]Locator, len(k.locs))
	copy(out, k.locs)
	return out
}

// IsZero reports whether k is the zero (invalid) key.
func (k Key) IsZero() bool { return k.entity == "" && k.id == "" }

// normalizeID canonicalizes an id value. Integers and integral floats render
// without a fraction, so 42, 42.0, json.Number("42") and "42" all collapse
// to "42". Non-integral floats use the shortest round-trip form.
func normalizeID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty id", ErrMalformedKey)
		}
		// A string that parses as a number canonicalizes through the
		// numeric path so "42" and 42 compare equal. Integer strings go
		// through the integer path; the float path would round ids above
		// 2^53 to a different value than their int64 encoding.
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return strconv.FormatUint(n, 10), nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return formatNumber(f), nil
		}
		return v, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatNumber(float64(v)), nil
	case float64:
		return formatNumber(v), nil
	case fmt.Stringer:
		return normalizeID(v.String())
	case nil:
		return "", fmt.Errorf("%w: nil id", ErrMalformedKey)
	default:
		return "", fmt.Errorf("%w: unsupported id type %T", ErrMalformedKey, id)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MatchLocation reports whether a location filter matches a key's location
// chain. Matching uses prefix semantics: the filter must be an exact-length,
// element-wise prefix of locs. An empty filter matches only an empty chain.
func MatchLocation(filter, locs []Locator) bool {
	if len(filter) == 0 {
		return len(locs) == 0
	}
	if len(filter) > len(locs) {
		return false
	}
	for i, f := range filter {
		if locs[i].Type != f.Type || locs[i].ID != f.ID {
			return false
		}
	}
	return true
}

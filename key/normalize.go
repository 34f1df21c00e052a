package key

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
)

// maxKeyDepth bounds recursion when parsing raw key structures. Real keys
// are two levels deep; anything deeper is malformed.
const maxKeyDepth = 16

// Normalize returns the canonical string form of the key. The form is a
// JSON object with fixed field order, so it is deterministic and safe to use
// as a map key. The kind tag is part of the form.
func Normalize(k Key) (string, error) {
	if k.IsZero() {
		return "", fmt.Errorf("%w: zero key", ErrMalformedKey)
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"kind":`...)
	buf = appendJSONString(buf, string(k.Kind()))
	buf = append(buf, `,"entity":`...)
	buf = appendJSONString(buf, k.entity)
	buf = append(buf, `,"id":`...)
	buf = appendJSONString(buf, k.id)
	if len(k.locs) > 0 {
		buf = append(buf, `,"loc":[`...)
		for i, l := range k.locs {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, `{"type":`...)
			buf = appendJSONString(buf, l.Type)
			buf = append(buf, `,"id":`...)
			buf = appendJSONString(buf, l.ID)
			buf = append(buf, '}')
		}
		buf = append(buf, ']')
	}
	buf = append(buf, '}')
	return string(buf), nil
}

// Fingerprint returns a compact hash form of the key.
// Format: key:<kind>:<hash> where hash is the first 16 hex characters of
// SHA-256 over the canonical form.
func Fingerprint(k Key) (string, error) {
	canonical, err := Normalize(k)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("key:%s:%s", k.Kind(), hex.EncodeToString(sum[:8])), nil
}

func appendJSONString(buf []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(buf, b...)
}

// ParseValue builds a Key from a raw decoded structure, typically the result
// of unmarshalling JSON into map[string]any. Recognized fields:
//
//	{"type": <entity>, "pk": <id>, "loc": [{"type": ..., "lk": <id>}, ...]}
//
// "id" is accepted as an alias for "pk" and for "lk". Structurally invalid
// input returns ErrMalformedKey; self-referential structures return
// ErrCyclicKey rather than recursing forever.
func ParseValue(v any) (Key, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Key{}, fmt.Errorf("%w: expected object, got %T", ErrMalformedKey, v)
	}
	if err := checkCycles(v, make(map[uintptr]bool), 0); err != nil {
		return Key{}, err
	}

	entity, _ := m["type"].(string)
	if entity == "" {
		return Key{}, fmt.Errorf("%w: missing entity type", ErrMalformedKey)
	}
	id, ok := firstField(m, "pk", "id")
	if !ok {
		return Key{}, fmt.Errorf("%w: missing primary id", ErrMalformedKey)
	}

	rawLocs, present := m["loc"]
	if !present {
		return Primary(entity, id)
	}
	list, ok := rawLocs.([]any)
	if !ok {
		return Key{}, fmt.Errorf("%w: loc must be an array, got %T", ErrMalformedKey, rawLocs)
	}
	locs := make([]Locator, 0, len(list))
	for i, raw := range list {
		lm, ok := raw.(map[string]any)
		if !ok {
			return Key{}, fmt.Errorf("%w: loc[%d] must be an object, got %T", ErrMalformedKey, i, raw)
		}
		locType, _ := lm["type"].(string)
		locID, ok := firstField(lm, "lk", "id")
		if !ok {
			return Key{}, fmt.Errorf("%w: loc[%d] missing id", ErrMalformedKey, i)
		}
		l, err := Loc(locType, locID)
		if err != nil {
			return Key{}, fmt.Errorf("loc[%d]: %w", i, err)
		}
		locs = append(locs, l)
	}
	return Composite(entity, id, locs...)
}

func firstField(m map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// checkCycles walks maps and slices looking for self-reference. Containers
// are tracked by pointer identity on the way down and released on the way
// back up, so shared (diamond) references stay legal while true cycles fail.
func checkCycles(v any, seen map[uintptr]bool, depth int) error {
	if depth > maxKeyDepth {
		return fmt.Errorf("%w: nesting exceeds %d levels", ErrCyclicKey, maxKeyDepth)
	}
	switch val := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return ErrCyclicKey
		}
		seen[ptr] = true
		for _, child := range val {
			if err := checkCycles(child, seen, depth+1); err != nil {
				return err
			}
		}
		delete(seen, ptr)
	case []any:
		if len(val) == 0 {
			return nil
		}
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return ErrCyclicKey
		}
		seen[ptr] = true
		for _, child := range val {
			if err := checkCycles(child, seen, depth+1); err != nil {
				return err
			}
		}
		delete(seen, ptr)
	}
	return nil
}

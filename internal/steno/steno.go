// Package steno defines the primitive key codes of the English stenotype
// layout and the Stroke set built from them.
package steno

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Key is one primitive steno key. Keys are numbered in steno order.
type Key uint8

// Primitive keys in steno order.
const (
	Number Key = iota
	LeftS
	LeftT
	LeftK
	LeftP
	LeftW
	LeftH
	LeftR
	A
	O
	Star
	E
	U
	RightF
	RightR
	RightP
	RightB
	RightL
	RightG
	RightT
	RightS
	RightD
	RightZ

	// NumKeys is the number of primitive keys.
	NumKeys = iota
)

// keyNames are the canonical names, with a hyphen marking the bank of
// letters that appear on both sides of the keyboard.
var keyNames = [NumKeys]string{
	"#",
	"S-", "T-", "K-", "P-", "W-", "H-", "R-",
	"A-", "O-", "*", "-E", "-U",
	"-F", "-R", "-P", "-B", "-L", "-G", "-T", "-S", "-D", "-Z",
}

// ErrUnknownKey is returned when a key name is not part of the layout.
var ErrUnknownKey = errors.New("steno: unknown key")

// ErrBadOrder is returned when steno notation lists keys out of order.
var ErrBadOrder = errors.New("steno: keys out of steno order")

// Name returns the canonical key name, e.g. "S-", "*", "-Z".
func (k Key) Name() string {
	if k >= NumKeys {
		return fmt.Sprintf("Key(%d)", uint8(k))
	}
	return keyNames[k]
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Name()
}

// Letter returns the key's letter without bank marker.
func (k Key) Letter() string {
	return strings.Trim(k.Name(), "-")
}

// IsLeft reports whether the key belongs to the left bank.
func (k Key) IsLeft() bool {
	return k >= LeftS && k <= LeftR
}

// IsMiddle reports whether the key is a vowel or the asterisk.
func (k Key) IsMiddle() bool {
	return k >= A && k <= U
}

// IsRight reports whether the key belongs to the right bank.
func (k Key) IsRight() bool {
	return k >= RightF && k < NumKeys
}

// ParseKey resolves a canonical key name. Vowels and the asterisk are also
// accepted without hyphen ("A", "E", "*").
func ParseKey(name string) (Key, error) {
	for i, n := range keyNames {
		if n == name {
			return Key(i), nil
		}
	}
	switch name {
	case "A":
		return A, nil
	case "O":
		return O, nil
	case "E":
		return E, nil
	case "U":
		return U, nil
	case "-A":
		return A, nil
	case "-O":
		return O, nil
	case "E-":
		return E, nil
	case "U-":
		return U, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// Stroke is a set of primitive keys. The zero value is the empty stroke.
// Union is commutative and idempotent.
type Stroke uint32

// Of builds a stroke from keys.
func Of(keys ...Key) Stroke {
	var s Stroke
	for _, k := range keys {
		s = s.With(k)
	}
	return s
}

// With returns s with k added.
func (s Stroke) With(k Key) Stroke {
	if k >= NumKeys {
		return s
	}
	return s | 1<<k
}

// Union returns the set union of s and o.
func (s Stroke) Union(o Stroke) Stroke {
	return s | o
}

// Has reports whether k is part of s.
func (s Stroke) Has(k Key) bool {
	return k < NumKeys && s&(1<<k) != 0
}

// Contains reports whether every key of o is in s.
func (s Stroke) Contains(o Stroke) bool {
	return s&o == o
}

// IsEmpty reports whether s has no keys.
func (s Stroke) IsEmpty() bool {
	return s == 0
}

// Len returns the number of keys in s.
func (s Stroke) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Keys returns the keys of s in steno order.
func (s Stroke) Keys() []Key {
	keys := make([]Key, 0, s.Len())
	for k := Key(0); k < NumKeys; k++ {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// KeyNames returns the canonical names of s's keys in steno order. This is the
// form steno engines accept for raw stroke submission.
func (s Stroke) KeyNames() []string {
	keys := s.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name()
	}
	return names
}

// String formats s in steno notation: "STKPW", "A*", "-FRPBLG", "#T-Z".
// A hyphen separates the banks when no vowel or asterisk does.
func (s Stroke) String() string {
	if s.IsEmpty() {
		return ""
	}
	var b strings.Builder
	middle := false
	for _, k := range s.Keys() {
		if k.IsMiddle() {
			middle = true
		}
		if k.IsRight() && !middle {
			b.WriteByte('-')
			middle = true
		}
		b.WriteString(k.Letter())
	}
	return b.String()
}

// ParseStroke parses steno notation as produced by String. Keys must appear in
// steno order; a hyphen moves parsing to the right bank, which starts at -E.
func ParseStroke(notation string) (Stroke, error) {
	var s Stroke
	next := Key(0)
	for _, r := range notation {
		if r == '-' {
			next = max(next, E)
			continue
		}
		k, ok := matchLetter(string(r), next)
		if !ok {
			return 0, fmt.Errorf("%w: %q in %q", ErrBadOrder, r, notation)
		}
		s = s.With(k)
		next = k + 1
	}
	return s, nil
}

// matchLetter finds the first key at or after from whose letter is l.
func matchLetter(l string, from Key) (Key, bool) {
	for k := from; k < NumKeys; k++ {
		if k.Letter() == l {
			return k, true
		}
	}
	return 0, false
}

// ParseKeyNames builds a stroke from canonical key names in any order.
func ParseKeyNames(names []string) (Stroke, error) {
	var s Stroke
	for _, n := range names {
		k, err := ParseKey(n)
		if err != nil {
			return 0, err
		}
		s = s.With(k)
	}
	return s, nil
}

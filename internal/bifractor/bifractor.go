// Package bifractor implements infinite-precision fractions in (0, 1) that
// compare correctly with a plain byte comparison, so they can be stored as a
// SQLite BLOB and used directly as an index key.
//
// A Bifractor is a base-256 string where trailing zero bytes are implied.
// The single byte 0xff stands for 1 (an infinite run of 0xff), and no other
// value may start with 0xff. Bisecting two values does not take the exact
// midpoint; it picks a short value strictly between them, which keeps keys
// small when many siblings are inserted at the same spot.
package bifractor

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"
)

// Bifractor is an immutable ordering key. The zero value is invalid; use
// Zero, One, FromFraction or Bisect.
type Bifractor struct {
	b []byte
}

// Zero returns the smallest Bifractor.
func Zero() Bifractor { return Bifractor{b: []byte{0x00}} }

// One returns the largest Bifractor.
func One() Bifractor { return Bifractor{b: []byte{0xff}} }

// FromFraction returns a one-byte Bifractor approximating f. It is meant for
// fixed starting positions when there are no neighbors to bisect between.
func FromFraction(f float64) Bifractor {
	switch {
	case f <= 0:
		return Zero()
	case f >= 1:
		return One()
	}
	v := int(f * 256)
	if v < 1 {
		v = 1
	}
	if v > 0xfe {
		v = 0xfe
	}
	return Bifractor{b: []byte{byte(v)}}
}

// FromBytes copies raw bytes into a Bifractor, rejecting non-canonical input.
func FromBytes(raw []byte) (Bifractor, error) {
	f := Bifractor{b: bytes.Clone(raw)}
	if !f.Valid() {
		return Bifractor{}, fmt.Errorf("invalid bifractor %x", raw)
	}
	return f, nil
}

// Valid reports whether f is in canonical form.
func (f Bifractor) Valid() bool {
	n := len(f.b)
	switch {
	case n == 0:
		return false
	case n == 1:
		return true
	}
	return f.b[0] != 0xff && f.b[n-1] != 0x00
}

// Bytes returns a copy of the underlying bytes.
func (f Bifractor) Bytes() []byte { return bytes.Clone(f.b) }

// Len returns the encoded length in bytes.
func (f Bifractor) Len() int { return len(f.b) }

// Hex returns the upper-case hex encoding, e.g. "3F".
func (f Bifractor) Hex() string { return strings.ToUpper(hex.EncodeToString(f.b)) }

func (f Bifractor) String() string { return f.Hex() }

// Compare returns -1, 0 or +1. A value that is a byte prefix of another is
// the smaller of the two, which matches the implied trailing zeros.
func Compare(a, b Bifractor) int { return bytes.Compare(a.b, b.b) }

func (f Bifractor) Less(o Bifractor) bool { return Compare(f, o) < 0 }
func (f Bifractor) Equal(o Bifractor) bool { return Compare(f, o) == 0 }

// Between is Bisect with no bias.
func Between(a, b Bifractor) Bifractor { return Bisect(a, b, 0.5) }

// Bisect returns a value strictly between a and b. bias in [0, 1] moves the
// result toward a (0) or b (1). It panics unless a < b.
func Bisect(a, b Bifractor, bias float64) Bifractor {
	if !a.Valid() || !b.Valid() {
		panic(fmt.Sprintf("bifractor: bisect of invalid value %q, %q", a.Hex(), b.Hex()))
	}
	if !a.Less(b) {
		panic(fmt.Sprintf("bifractor: bisect requires a < b, got %s >= %s", a.Hex(), b.Hex()))
	}
	w := int(bias * 256)
	if w < 0 {
		w = 0
	}
	if w > 0xff {
		w = 0xff
	}

	size := max(len(a.b), len(b.b))
	out := make([]byte, 0, size+1)
	// carry is how far b is ahead of the emitted prefix, in units of the
	// current byte position.
	carry := 0
	for i := 0; ; i++ {
		av := at(a.b, i)
		bv := at(b.b, i) + carry
		if av > bv {
			panic(fmt.Sprintf("bifractor: bisect ran past b at byte %d", i))
		}
		if av == 0xff || bv-av < 2 {
			// No byte strictly between at this position.
			out = append(out, byte(av))
			// Anything past 0x10000 behaves the same and would overflow
			// after a long run of 0xff in a.
			carry = min((bv-av)<<8, 0x10000)
			if i >= size && carry == 0 {
				panic("bifractor: tried to bisect two equal values")
			}
			continue
		}
		hi := min(bv, 0x100)
		mid := (av*(0x100-w) + hi*w) >> 8
		if mid <= av {
			mid = av + 1
		}
		if mid >= hi {
			mid = hi - 1
		}
		out = append(out, byte(mid))
		return Bifractor{b: out}
	}
}

func at(b []byte, i int) int {
	if i < len(b) {
		return int(b[i])
	}
	return 0
}

// Value implements driver.Valuer so positions are stored as BLOBs.
func (f Bifractor) Value() (driver.Value, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("store invalid bifractor %x", f.b)
	}
	return bytes.Clone(f.b), nil
}

// Scan implements sql.Scanner.
func (f *Bifractor) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan bifractor from %T", src)
	}
	parsed, err := FromBytes(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Package field provides the canonical 32-byte encoding of BN254 scalar
// field elements used by every trust record on the overlay. Elements are
// written little-endian, least significant byte first.
package field

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Size is the length in bytes of an encoded element.
const Size = fr.Bytes

// ErrInvalidFieldEncoding is returned when bytes do not hold a canonical
// field element (wrong length, or a value not below the modulus).
var ErrInvalidFieldEncoding = errors.New("invalid field element encoding")

// topMask clears the bits above the modulus bit length in the most
// significant byte.
const topMask = byte(1<<(fr.Bits%8) - 1)

// Element is a value in the BN254 scalar field.
type Element struct {
	v fr.Element
}

// NewElement returns the element with the given small integer value.
func NewElement(x uint64) Element {
	var e Element
	e.v.SetUint64(x)
	return e
}

// Modulus returns a copy of the field modulus.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Bytes returns the canonical little-endian encoding.
func (e Element) Bytes() [Size]byte {
	var b [Size]byte
	fr.LittleEndian.PutElement(&b, e.v)
	return b
}

// BigInt returns the integer value of e.
func (e Element) BigInt() *big.Int {
	return e.v.BigInt(new(big.Int))
}

// Equal reports whether e and o are the same element.
func (e Element) Equal(o Element) bool {
	return e.v.Equal(&o.v)
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool {
	return e.v.IsZero()
}

// String returns the hex form of the canonical encoding.
func (e Element) String() string {
	b := e.Bytes()
	return hex.EncodeToString(b[:])
}

// FromBytes decodes a canonical encoding. It never reduces: any value at or
// above the modulus is rejected.
func FromBytes(b []byte) (Element, error) {
	if len(b) != Size {
		return Element{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFieldEncoding, len(b), Size)
	}
	v, err := fr.LittleEndian.Element((*[Size]byte)(b))
	if err != nil {
		return Element{}, fmt.Errorf("%w: %v", ErrInvalidFieldEncoding, err)
	}
	return Element{v: v}, nil
}

// Random draws an element from r by rejection sampling over the modulus.
func Random(r io.Reader) (Element, error) {
	var buf [Size]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Element{}, fmt.Errorf("read entropy: %w", err)
		}
		buf[Size-1] &= topMask
		e, err := FromBytes(buf[:])
		if err == nil {
			return e, nil
		}
	}
}

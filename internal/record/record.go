// Package record implements the wire format of the records a node publishes
// on the overlay: the IdentityKey used as the DHT lookup key and the
// TrustValue attestation stored under it.
package record

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/spacedatanetwork/sdn-trust/internal/field"
)

const (
	// KeySize is the encoded length of an IdentityKey.
	KeySize = 2 * field.Size

	// ScoreSize is the encoded length of a single score.
	ScoreSize = 4

	// ValueSize is the encoded length of a TrustValue.
	ValueSize = 5*field.Size + 2*ScoreSize
)

var (
	// ErrMalformedKey is returned when key bytes are not exactly KeySize long.
	ErrMalformedKey = errors.New("malformed identity key")

	// ErrMalformedValue is returned when value bytes are not exactly ValueSize long.
	ErrMalformedValue = errors.New("malformed trust value")
)

// IdentityKey is a node's DHT lookup key.
type IdentityKey struct {
	X field.Element
	Y field.Element
}

// NewIdentityKey builds a key from its coordinates.
func NewIdentityKey(x, y field.Element) IdentityKey {
	return IdentityKey{X: x, Y: y}
}

// Bytes returns the 64-byte encoding X || Y.
func (k IdentityKey) Bytes() []byte {
	out := make([]byte, 0, KeySize)
	out = appendElement(out, k.X)
	out = appendElement(out, k.Y)
	return out
}

// String returns the hex encoding of the key.
func (k IdentityKey) String() string {
	return hex.EncodeToString(k.Bytes())
}

// DecodeIdentityKey parses a 64-byte key encoding.
func DecodeIdentityKey(b []byte) (IdentityKey, error) {
	if len(b) != KeySize {
		return IdentityKey{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedKey, len(b), KeySize)
	}
	d := decoder{buf: b}
	k := IdentityKey{
		X: d.element("x"),
		Y: d.element("y"),
	}
	if d.err != nil {
		return IdentityKey{}, d.err
	}
	return k, nil
}

// ParseIdentityKeyHex decodes a hex string produced by IdentityKey.String.
func ParseIdentityKeyHex(s string) (IdentityKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return IdentityKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return DecodeIdentityKey(b)
}

// TrustValue is a signed attestation about two neighbours. Neighbours[i] is
// scored by Scores[i].
type TrustValue struct {
	SigRX      field.Element
	SigRY      field.Element
	SigS       field.Element
	Neighbours [2]field.Element
	Scores     [2]uint32
}

// NewTrustValue builds a value from its parts.
func NewTrustValue(sigRX, sigRY, sigS field.Element, neighbours [2]field.Element, scores [2]uint32) TrustValue {
	return TrustValue{
		SigRX:      sigRX,
		SigRY:      sigRY,
		SigS:       sigS,
		Neighbours: neighbours,
		Scores:     scores,
	}
}

// Bytes returns the 168-byte encoding of v.
func (v TrustValue) Bytes() []byte {
	out := make([]byte, 0, ValueSize)
	out = appendElement(out, v.SigRX)
	out = appendElement(out, v.SigRY)
	out = appendElement(out, v.SigS)
	for _, n := range v.Neighbours {
		out = appendElement(out, n)
	}
	for _, s := range v.Scores {
		out = binary.BigEndian.AppendUint32(out, s)
	}
	return out
}

// String returns the hex encoding of the value.
func (v TrustValue) String() string {
	return hex.EncodeToString(v.Bytes())
}

// DecodeTrustValue parses a 168-byte value encoding.
func DecodeTrustValue(b []byte) (TrustValue, error) {
	if len(b) != ValueSize {
		return TrustValue{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedValue, len(b), ValueSize)
	}
	d := decoder{buf: b}
	var v TrustValue
	v.SigRX = d.element("sig_r_x")
	v.SigRY = d.element("sig_r_y")
	v.SigS = d.element("sig_s")
	v.Neighbours[0] = d.element("neighbours[0]")
	v.Neighbours[1] = d.element("neighbours[1]")
	v.Scores[0] = d.uint32()
	v.Scores[1] = d.uint32()
	if d.err != nil {
		return TrustValue{}, d.err
	}
	return v, nil
}

// ParseTrustValueHex decodes a hex string produced by TrustValue.String.
func ParseTrustValueHex(s string) (TrustValue, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return TrustValue{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	return DecodeTrustValue(b)
}

// Record is the unit exchanged with the overlay. Publisher and Expires are
// overlay metadata and are carried for reporting only.
type Record struct {
	Key       []byte
	Value     []byte
	Publisher peer.ID
	Expires   time.Time
}

// NewRecord encodes a key/value pair into an overlay record.
func NewRecord(k IdentityKey, v TrustValue) Record {
	return Record{Key: k.Bytes(), Value: v.Bytes()}
}

// Decode parses both halves of the record.
func (r Record) Decode() (IdentityKey, TrustValue, error) {
	k, err := DecodeIdentityKey(r.Key)
	if err != nil {
		return IdentityKey{}, TrustValue{}, err
	}
	v, err := DecodeTrustValue(r.Value)
	if err != nil {
		return IdentityKey{}, TrustValue{}, err
	}
	return k, v, nil
}

func appendElement(dst []byte, e field.Element) []byte {
	b := e.Bytes()
	return append(dst, b[:]...)
}

// decoder walks a buffer whose length has already been checked. The first
// error sticks and later reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) element(name string) field.Element {
	if d.err != nil {
		return field.Element{}
	}
	e, err := field.FromBytes(d.buf[d.off : d.off+field.Size])
	d.off += field.Size
	if err != nil {
		d.err = fmt.Errorf("%s: %w", name, err)
	}
	return e
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	s := binary.BigEndian.Uint32(d.buf[d.off : d.off+ScoreSize])
	d.off += ScoreSize
	return s
}

package record

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/spacedatanetwork/sdn-trust/internal/field"
)

// RandomIdentityKey draws both coordinates independently from r.
func RandomIdentityKey(r io.Reader) (IdentityKey, error) {
	x, err := field.Random(r)
	if err != nil {
		return IdentityKey{}, fmt.Errorf("identity key x: %w", err)
	}
	y, err := field.Random(r)
	if err != nil {
		return IdentityKey{}, fmt.Errorf("identity key y: %w", err)
	}
	return IdentityKey{X: x, Y: y}, nil
}

// RandomTrustValue draws every field of a TrustValue from r. The signature
// fields are placeholders; nothing is signed.
func RandomTrustValue(r io.Reader) (TrustValue, error) {
	var v TrustValue
	elems := []*field.Element{&v.SigRX, &v.SigRY, &v.SigS, &v.Neighbours[0], &v.Neighbours[1]}
	for i, dst := range elems {
		e, err := field.Random(r)
		if err != nil {
			return TrustValue{}, fmt.Errorf("trust value element %d: %w", i, err)
		}
		*dst = e
	}
	var buf [ScoreSize]byte
	for i := range v.Scores {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return TrustValue{}, fmt.Errorf("trust value score %d: %w", i, err)
		}
		v.Scores[i] = binary.BigEndian.Uint32(buf[:])
	}
	return v, nil
}

// NewDerivedSource returns a deterministic entropy stream expanded from seed
// with HKDF-SHA256. The same seed and info always produce the same records.
func NewDerivedSource(seed []byte, info string) io.Reader {
	return hkdf.New(sha256.New, seed, nil, []byte(info))
}

// Generate builds a fresh identity key and trust value from r.
func Generate(r io.Reader) (IdentityKey, TrustValue, error) {
	k, err := RandomIdentityKey(r)
	if err != nil {
		return IdentityKey{}, TrustValue{}, err
	}
	v, err := RandomTrustValue(r)
	if err != nil {
		return IdentityKey{}, TrustValue{}, err
	}
	return k, v, nil
}

package field

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytes_RoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		e, err := Random(rand.Reader)
		require.NoError(t, err)

		b := e.Bytes()
		got, err := FromBytes(b[:])
		require.NoError(t, err)
		assert.True(t, got.Equal(e))
		assert.Equal(t, e, got)

		again := got.Bytes()
		assert.Equal(t, b, again)
	}
}

// leBytes returns the 32-byte little-endian form of n, without any range check.
func leBytes(n *big.Int) []byte {
	b := n.FillBytes(make([]byte, Size))
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

func TestFromBytes_SmallValues(t *testing.T) {
	e := NewElement(10)
	b := e.Bytes()

	want := make([]byte, Size)
	want[0] = 10
	assert.Equal(t, want, b[:], "encoding is little-endian")

	got, err := FromBytes(want)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.BigInt().Int64())
}

func TestFromBytes_RejectsModulusAndAbove(t *testing.T) {
	q := Modulus()
	tests := []struct {
		name  string
		value *big.Int
	}{
		{"modulus", q},
		{"modulus plus one", new(big.Int).Add(q, big.NewInt(1))},
		{"all ones", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBytes(leBytes(tt.value))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFieldEncoding))
		})
	}
}

func TestFromBytes_AcceptsModulusMinusOne(t *testing.T) {
	max := new(big.Int).Sub(Modulus(), big.NewInt(1))
	e, err := FromBytes(leBytes(max))
	require.NoError(t, err)
	assert.Equal(t, 0, e.BigInt().Cmp(max))
}

func TestFromBytes_WrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 31, 33, 64} {
		_, err := FromBytes(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidFieldEncoding, "length %d", n)
	}
}

func TestRandom_RejectsOutOfRange(t *testing.T) {
	// First draw masks to a value above the modulus, second is zero.
	high := bytes.Repeat([]byte{0xff}, Size)
	zero := make([]byte, Size)
	r := bytes.NewReader(append(high, zero...))

	e, err := Random(r)
	require.NoError(t, err)
	assert.True(t, e.IsZero())
}

func TestRandom_ShortEntropy(t *testing.T) {
	_, err := Random(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	e := NewElement(1)
	s := e.String()
	assert.Len(t, s, 2*Size)
	assert.Equal(t, "01", s[:2])
}

func TestFromBytes_MultiLimbLayout(t *testing.T) {
	// 0x0102...1f20 read least significant byte first.
	buf := make([]byte, Size)
	for i := range buf {
		buf[i] = byte(i + 1)
	}
	buf[Size-1] = 0x01

	e, err := FromBytes(buf)
	require.NoError(t, err)

	rev := make([]byte, Size)
	for i := range buf {
		rev[Size-1-i] = buf[i]
	}
	assert.Equal(t, 0, e.BigInt().Cmp(new(big.Int).SetBytes(rev)))

	out := e.Bytes()
	assert.Equal(t, buf, out[:])
}

package overlay

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedatanetwork/sdn-trust/internal/field"
	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

func testRecord(t *testing.T) record.Record {
	t.Helper()
	k, v, err := record.Generate(rand.Reader)
	require.NoError(t, err)
	return record.NewRecord(k, v)
}

func TestDHTKey_RoundTrip(t *testing.T) {
	raw := []byte{0x00, '/', 0xff, 'a'}
	k := DHTKey(raw)
	assert.Equal(t, "/trust/", k[:7])

	got, err := SplitDHTKey(k)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = SplitDHTKey("/pk/abc")
	assert.Error(t, err)
	_, err = SplitDHTKey("no-slash")
	assert.Error(t, err)
}

func TestValidator_Validate(t *testing.T) {
	rec := testRecord(t)
	v := Validator{}

	assert.NoError(t, v.Validate(DHTKey(rec.Key), rec.Value))

	tests := []struct {
		name  string
		key   string
		value []byte
		is    error
	}{
		{"short key", DHTKey(rec.Key[:10]), rec.Value, record.ErrMalformedKey},
		{"short value", DHTKey(rec.Key), rec.Value[:100], record.ErrMalformedValue},
		{"wrong namespace", "/pk/" + string(rec.Key), rec.Value, errWrongNamespace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.key, tt.value)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	bad := append([]byte(nil), rec.Value...)
	field.Modulus().FillBytes(bad[:field.Size])
	assert.ErrorIs(t, v.Validate(DHTKey(rec.Key), bad), field.ErrInvalidFieldEncoding)
}

func TestValidator_Select(t *testing.T) {
	rec := testRecord(t)
	other := testRecord(t)
	key := DHTKey(rec.Key)
	v := Validator{}

	i, err := v.Select(key, [][]byte{rec.Value, other.Value})
	require.NoError(t, err)
	assert.Equal(t, 0, i, "incoming value supersedes the stored one")

	i, err = v.Select(key, [][]byte{[]byte("junk"), other.Value})
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = v.Select(key, [][]byte{[]byte("junk")})
	assert.Error(t, err)
}

func TestProviderCID_Deterministic(t *testing.T) {
	rec := testRecord(t)

	c1, err := ProviderCID(rec.Key)
	require.NoError(t, err)
	c2, err := ProviderCID(rec.Key)
	require.NoError(t, err)
	assert.True(t, c1.Equals(c2))

	c3, err := ProviderCID(testRecord(t).Key)
	require.NoError(t, err)
	assert.False(t, c1.Equals(c3))
}

func TestQuorum_String(t *testing.T) {
	assert.Equal(t, "one", QuorumOne.String())
	assert.Equal(t, "majority", QuorumMajority.String())
	assert.Equal(t, "all", QuorumAll.String())
	assert.Equal(t, "unknown", Quorum(0).String())
}

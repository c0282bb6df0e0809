package recordlog

import (
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "data", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func randomRecord(t *testing.T) record.Record {
	t.Helper()
	k, v, err := record.Generate(rand.Reader)
	require.NoError(t, err)
	return record.NewRecord(k, v)
}

func TestArchive_ObserveAndGet(t *testing.T) {
	a := openTestArchive(t)
	rec := randomRecord(t)

	require.NoError(t, a.Observe(rec, "lookup"))

	e, err := a.Get(rec.Key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, rec.Value, e.Value)
	assert.Equal(t, "lookup", e.Source)
	assert.True(t, e.Valid)
	assert.Equal(t, int64(1), e.SeenCount)
	assert.False(t, e.FirstSeen.IsZero())
}

func TestArchive_ObserveSupersedes(t *testing.T) {
	a := openTestArchive(t)
	first := randomRecord(t)
	second := randomRecord(t)
	second.Key = first.Key

	require.NoError(t, a.Observe(first, "lookup"))
	require.NoError(t, a.Observe(second, "local"))

	e, err := a.Get(first.Key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, second.Value, e.Value)
	assert.Equal(t, "local", e.Source)
	assert.Equal(t, int64(2), e.SeenCount)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestArchive_MarksMalformed(t *testing.T) {
	a := openTestArchive(t)
	rec := record.Record{Key: []byte("short"), Value: []byte("junk")}

	require.NoError(t, a.Observe(rec, "lookup"))

	e, err := a.Get(rec.Key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.Valid)
}

func TestArchive_GetMissing(t *testing.T) {
	a := openTestArchive(t)
	e, err := a.Get([]byte("absent"))
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestArchive_Recent(t *testing.T) {
	a := openTestArchive(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Observe(randomRecord(t), "lookup"))
	}

	entries, err := a.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = a.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

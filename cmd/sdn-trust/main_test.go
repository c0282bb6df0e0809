package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

func runWithOutput(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	err := fn(cmd, args)
	return buf.String(), err
}

func TestDecode_KeyAndValue(t *testing.T) {
	key, value, err := record.Generate(rand.Reader)
	require.NoError(t, err)

	out, err := runWithOutput(t, runDecode, key.String(), value.String())
	require.NoError(t, err)
	assert.Contains(t, out, "x: "+key.X.String())
	assert.Contains(t, out, "y: "+key.Y.String())
	assert.Contains(t, out, "neighbour[1]: "+value.Neighbours[1].String())
}

func TestDecode_RejectsShortKey(t *testing.T) {
	_, err := runWithOutput(t, runDecode, "abcd")
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrMalformedKey)
}

func TestKeygen_PrintsDecodablePair(t *testing.T) {
	out, err := runWithOutput(t, runKeygen)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	_, err = record.ParseIdentityKeyHex(strings.TrimSpace(strings.TrimPrefix(lines[0], "key:")))
	assert.NoError(t, err)
	_, err = record.ParseTrustValueHex(strings.TrimSpace(strings.TrimPrefix(lines[1], "value:")))
	assert.NoError(t, err)
}

func TestStopRun_WaitsForLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool
	runErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		runErr <- ctx.Err()
	}()

	require.NoError(t, stopRun(cancel, runErr))
	assert.True(t, finished.Load(), "returned before the loop finished")
}

func TestRunResult(t *testing.T) {
	assert.NoError(t, runResult(nil))
	assert.NoError(t, runResult(context.Canceled))
	assert.Error(t, runResult(errors.New("events closed badly")))
}

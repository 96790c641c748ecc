package main

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcpfb/pkg/rtcpfb"
)

func TestRoundTrip_RandomBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		batch := randomBatch(rng)
		mtu := minMTU + rng.Intn(rtcpfb.DefaultMTU-minMTU+1)
		datagrams, err := roundTrip(batch, mtu)
		require.NoError(t, err, "batch %d mtu %d", i, mtu)
		assert.GreaterOrEqual(t, datagrams, 1)
	}
}

func TestRoundTrip_SplitsAtMTU(t *testing.T) {
	batch := make([]rtcpfb.Packet, 10)
	for i := range batch {
		batch[i] = &rtcpfb.Pli{SenderSSRC: 1, MediaSSRC: uint32(i)}
	}
	datagrams, err := roundTrip(batch, minMTU)
	require.NoError(t, err)
	assert.Equal(t, 2, datagrams, "six 12 byte PLIs fit in 80 bytes")
}

func TestRunSoakTest_Short(t *testing.T) {
	result := runSoakTest(context.Background(), 100*time.Millisecond, rand.New(rand.NewSource(2)))
	assert.Equal(t, "PASS", result.Status)
	assert.Greater(t, result.Batches, 0)
	assert.Equal(t, 0, result.Mismatches)

	var out bytes.Buffer
	printSummary(&out, result)
	assert.Contains(t, out.String(), "Status:            PASS")
}

func TestRunSoakTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := runSoakTest(ctx, time.Hour, rand.New(rand.NewSource(3)))
	assert.Equal(t, "PASS", result.Status)
	assert.Less(t, result.Duration, time.Second)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "01:02:03", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "00:00:00", formatDuration(0))
}

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T) (*StreamPlayer, *MockPlayback) {
	t.Helper()
	device := NewMockPlayback()
	player := NewStreamPlayer(device)
	require.NoError(t, player.Connect())
	t.Cleanup(func() { player.Close() })
	return player, device
}

func pcmOf(b byte, samples int) []byte {
	out := make([]byte, samples*2)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestPlayerRequiresConnect(t *testing.T) {
	player := NewStreamPlayer(NewMockPlayback())
	err := player.Add16BitPCM([]byte{0, 0}, "item-1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPlayerPreservesQueueOrder(t *testing.T) {
	player, device := newTestPlayer(t)

	require.NoError(t, player.Add16BitPCM(pcmOf(0xAA, 4), "item-1"))
	require.NoError(t, player.Add16BitPCM(pcmOf(0xBB, 4), "item-2"))

	out := device.Pump(8)
	require.Len(t, out, 8)
	assert.Equal(t, byte(0xAA), out[0])

	out = device.Pump(8)
	require.Len(t, out, 8)
	assert.Equal(t, byte(0xBB), out[0])
}

func TestPlayerReturnsSilenceWhenDrained(t *testing.T) {
	player, device := newTestPlayer(t)

	require.NoError(t, player.Add16BitPCM(pcmOf(0xAA, 2), "item-1"))
	device.Pump(4)

	out := device.Pump(4)
	require.Len(t, out, 4)
	for _, b := range out {
		assert.Zero(t, b)
	}
	_ = player
}

func TestInterruptReportsFrameAccurateOffset(t *testing.T) {
	player, device := newTestPlayer(t)

	require.NoError(t, player.Add16BitPCM(pcmOf(0xAA, 1000), "item-1"))

	// The device pulls 600 bytes, which is 300 samples.
	device.Pump(600)

	off, ok := player.Interrupt()
	require.True(t, ok)
	assert.Equal(t, "item-1", off.TrackID)
	assert.Equal(t, 300, off.Offset)
	assert.Equal(t, 1, device.Resets())

	// Queue is gone: the device now reads silence.
	out := device.Pump(4)
	for _, b := range out {
		assert.Zero(t, b)
	}
}

func TestInterruptOffsetTracksCurrentTrack(t *testing.T) {
	player, device := newTestPlayer(t)

	require.NoError(t, player.Add16BitPCM(pcmOf(0xAA, 100), "item-1"))
	require.NoError(t, player.Add16BitPCM(pcmOf(0xBB, 100), "item-2"))

	// Drain all of item-1 plus 50 samples of item-2.
	device.Pump(300)

	off, ok := player.Interrupt()
	require.True(t, ok)
	assert.Equal(t, "item-2", off.TrackID)
	assert.Equal(t, 50, off.Offset)
}

func TestInterruptWhenIdleIsHarmless(t *testing.T) {
	player, _ := newTestPlayer(t)

	_, ok := player.Interrupt()
	assert.False(t, ok)
}

func TestInterruptBeforeFirstPull(t *testing.T) {
	player, _ := newTestPlayer(t)

	require.NoError(t, player.Add16BitPCM(pcmOf(0xAA, 100), "item-1"))

	off, ok := player.Interrupt()
	require.True(t, ok)
	assert.Equal(t, "item-1", off.TrackID)
	assert.Zero(t, off.Offset)
}

func TestPlayerFrequenciesZeroWhenIdle(t *testing.T) {
	player, _ := newTestPlayer(t)

	spec := player.Frequencies(BandFull)
	require.Len(t, spec, SpectrumBins)
	for _, v := range spec {
		assert.Zero(t, v)
	}
}

func TestPlayerCloseIsIdempotent(t *testing.T) {
	player, _ := newTestPlayer(t)
	assert.NoError(t, player.Close())
	assert.NoError(t, player.Close())
	assert.ErrorIs(t, player.Add16BitPCM([]byte{0, 0}, "item-1"), ErrClosed)
}

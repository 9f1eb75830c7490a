package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationOrdering(t *testing.T) {
	conv := newConversation()

	conv.appendTranscript("item-1", "assistant", "Hello")
	conv.appendTranscript("item-2", "user", "Hi")
	conv.appendTranscript("item-1", "assistant", " there")

	items := conv.snapshot()
	require.Len(t, items, 2)
	assert.Equal(t, "item-1", items[0].ID)
	assert.Equal(t, "Hello there", items[0].Formatted.Transcript)
	assert.Equal(t, "item-2", items[1].ID)
}

func TestConversationSnapshotIsDeepCopy(t *testing.T) {
	conv := newConversation()
	conv.appendAudio("item-1", "assistant", []byte{1, 2, 3, 4})

	snap := conv.snapshot()
	require.Len(t, snap, 1)
	snap[0].Formatted.Audio[0] = 99
	snap[0].Formatted.Transcript = "mutated"

	again := conv.snapshot()
	assert.Equal(t, byte(1), again[0].Formatted.Audio[0])
	assert.Empty(t, again[0].Formatted.Transcript)
}

func TestConversationAudioAccumulates(t *testing.T) {
	conv := newConversation()
	conv.appendAudio("item-1", "assistant", []byte{1, 2})
	item := conv.appendAudio("item-1", "assistant", []byte{3, 4})

	assert.Equal(t, []byte{1, 2, 3, 4}, item.Formatted.Audio)
}

func TestConversationCompleteReportsChangeOnce(t *testing.T) {
	conv := newConversation()
	conv.appendTranscript("item-1", "assistant", "done soon")

	item, changed := conv.complete("item-1")
	assert.True(t, changed)
	assert.Equal(t, ItemCompleted, item.Status)

	_, changed = conv.complete("item-1")
	assert.False(t, changed)
}

func TestConversationRoleBackfill(t *testing.T) {
	conv := newConversation()

	// Audio can arrive before the created event names the role.
	conv.appendAudio("item-1", "", []byte{0, 0})
	item := conv.create("item-1", "assistant")

	assert.Equal(t, "assistant", item.Role)
	require.Len(t, conv.snapshot(), 1)
}

func TestConversationClear(t *testing.T) {
	conv := newConversation()
	conv.appendTranscript("item-1", "user", "hello")
	conv.clear()

	assert.Empty(t, conv.snapshot())
}

package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStream runs a scripted websocket peer for client tests. Every
// message the client sends lands on sent; events pushed through Push
// arrive at the client.
type testStream struct {
	srv  *httptest.Server
	sent chan map[string]any

	connMu   chan *websocket.Conn
	connOnce *websocket.Conn
}

func newTestStream(t *testing.T) *testStream {
	t.Helper()

	ts := &testStream{
		sent:   make(chan map[string]any, 64),
		connMu: make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.connMu <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil {
				ts.sent <- msg
			}
		}
	}))
	t.Cleanup(ts.srv.Close)

	return ts
}

func (ts *testStream) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

// Push delivers a server event to the connected client.
func (ts *testStream) Push(t *testing.T, event map[string]any) {
	t.Helper()
	if ts.connOnce == nil {
		select {
		case ts.connOnce = <-ts.connMu:
		case <-time.After(2 * time.Second):
			t.Fatal("no client connection")
		}
	}
	require.NoError(t, ts.connOnce.WriteJSON(event))
}

// Expect waits for the next client message of the given type,
// discarding others.
func (ts *testStream) Expect(t *testing.T, eventType string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ts.sent:
			if msg["type"] == eventType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func newTestClient(t *testing.T, ts *testStream, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithURL(ts.url())}, opts...)
	client, err := NewClient(opts...)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestConnectFailsAgainstDeadEndpoint(t *testing.T) {
	client, err := NewClient(WithURL("ws://127.0.0.1:1/v1/realtime"))
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.False(t, client.IsConnected())
}

func TestDisconnectWithoutConnect(t *testing.T) {
	client, err := NewClient(WithURL("ws://127.0.0.1:1/v1/realtime"))
	require.NoError(t, err)
	assert.NoError(t, client.Disconnect())
	assert.NoError(t, client.Disconnect())
}

func TestAppendInputAudioRequiresConnection(t *testing.T) {
	client, err := NewClient(WithURL("ws://127.0.0.1:1/v1/realtime"))
	require.NoError(t, err)

	err = client.AppendInputAudio([]byte{0, 0})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestUpdateSessionSendsMergedConfig(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	require.NoError(t, client.UpdateSession(SessionConfig{
		Instructions:       "You are interviewing a candidate.",
		TranscriptionModel: "whisper-1",
		TurnDetection:      ServerVAD(),
	}))

	msg := ts.Expect(t, "session.update")
	session := msg["session"].(map[string]any)
	assert.Equal(t, "You are interviewing a candidate.", session["instructions"])
	assert.Equal(t, "pcm16", session["input_audio_format"])

	td := session["turn_detection"].(map[string]any)
	assert.Equal(t, "server_vad", td["type"])
	assert.Equal(t, 0.5, td["threshold"])

	// A later partial update keeps earlier fields.
	require.NoError(t, client.UpdateSession(SessionConfig{Voice: "alloy"}))
	msg = ts.Expect(t, "session.update")
	session = msg["session"].(map[string]any)
	assert.Equal(t, "You are interviewing a candidate.", session["instructions"])
	assert.Equal(t, "alloy", session["voice"])
}

func TestSendUserMessageContent(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	require.NoError(t, client.SendUserMessageContent([]ContentPart{
		{Type: "input_text", Text: "Hello!"},
	}))

	msg := ts.Expect(t, "conversation.item.create")
	item := msg["item"].(map[string]any)
	assert.Equal(t, "user", item["role"])

	content := item["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "Hello!", content[0].(map[string]any)["text"])

	ts.Expect(t, "response.create")
}

func TestAppendInputAudioEncodesBase64(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	frame := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, client.AppendInputAudio(frame))

	msg := ts.Expect(t, "input_audio_buffer.append")
	decoded, err := base64.StdEncoding.DecodeString(msg["audio"].(string))
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
}

func TestCancelResponseTruncatesAtSampleOffset(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts, WithSampleRate(24000))

	// 12000 samples at 24kHz is half a second of audio.
	require.NoError(t, client.CancelResponse("item-7", 12000))

	ts.Expect(t, "response.cancel")
	msg := ts.Expect(t, "conversation.item.truncate")
	assert.Equal(t, "item-7", msg["item_id"])
	assert.Equal(t, float64(500), msg["audio_end_ms"])
}

func TestCancelResponseWithoutTrackSkipsTruncate(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	require.NoError(t, client.CancelResponse("", 0))
	ts.Expect(t, "response.cancel")

	select {
	case msg := <-ts.sent:
		t.Fatalf("unexpected message %v", msg["type"])
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAudioDeltaUpdatesConversation(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	updates := make(chan ConversationUpdate, 8)
	client.OnConversationUpdated(func(u ConversationUpdate) { updates <- u })

	pcm := []byte{0x10, 0x20, 0x30, 0x40}
	ts.Push(t, map[string]any{
		"type":    "response.audio.delta",
		"item_id": "item-1",
		"delta":   base64.StdEncoding.EncodeToString(pcm),
	})

	select {
	case u := <-updates:
		assert.Equal(t, "item-1", u.Item.ID)
		assert.Equal(t, pcm, u.Delta.Audio)
		assert.Equal(t, pcm, u.Item.Formatted.Audio)
	case <-time.After(2 * time.Second):
		t.Fatal("no conversation update")
	}
}

func TestTranscriptDeltasAccumulate(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	updates := make(chan ConversationUpdate, 8)
	client.OnConversationUpdated(func(u ConversationUpdate) { updates <- u })

	ts.Push(t, map[string]any{"type": "response.audio_transcript.delta", "item_id": "item-1", "delta": "Tell me "})
	ts.Push(t, map[string]any{"type": "response.audio_transcript.delta", "item_id": "item-1", "delta": "about yourself."})

	var last ConversationUpdate
	for i := 0; i < 2; i++ {
		select {
		case last = <-updates:
		case <-time.After(2 * time.Second):
			t.Fatal("missing conversation update")
		}
	}
	assert.Equal(t, "Tell me about yourself.", last.Item.Formatted.Transcript)

	items := client.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "assistant", items[0].Role)
}

func TestUserTranscriptionCompleted(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	updates := make(chan ConversationUpdate, 8)
	client.OnConversationUpdated(func(u ConversationUpdate) { updates <- u })

	ts.Push(t, map[string]any{
		"type":       "conversation.item.input_audio_transcription.completed",
		"item_id":    "item-9",
		"transcript": "I worked five years in data engineering.",
	})

	select {
	case u := <-updates:
		assert.Equal(t, "user", u.Item.Role)
		assert.Equal(t, "I worked five years in data engineering.", u.Item.Formatted.Transcript)
	case <-time.After(2 * time.Second):
		t.Fatal("no conversation update")
	}
}

func TestSpeechStartedFiresInterrupted(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	interrupted := make(chan struct{}, 1)
	client.OnInterrupted(func() { interrupted <- struct{}{} })

	ts.Push(t, map[string]any{"type": "input_audio_buffer.speech_started"})

	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("interruption not signaled")
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	err := client.AddTool(ToolSpec{
		Name:        "set_memory",
		Description: "Stores a key/value pair.",
		Parameters:  map[string]any{"type": "object"},
	}, func(args map[string]any) (any, error) {
		return map[string]any{"ok": true, "key": args["key"]}, nil
	})
	require.NoError(t, err)
	ts.Expect(t, "session.update")

	ts.Push(t, map[string]any{
		"type":      "response.function_call_arguments.done",
		"call_id":   "call-1",
		"name":      "set_memory",
		"arguments": `{"key":"strength","value":"SQL"}`,
	})

	msg := ts.Expect(t, "conversation.item.create")
	item := msg["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call-1", item["call_id"])
	assert.Contains(t, item["output"], "strength")

	ts.Expect(t, "response.create")
}

func TestToolPanicBecomesFailureResult(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	errs := make(chan error, 1)
	client.OnError(func(err error) { errs <- err })

	err := client.AddTool(ToolSpec{Name: "boom", Parameters: map[string]any{"type": "object"}},
		func(map[string]any) (any, error) { panic("handler exploded") })
	require.NoError(t, err)
	ts.Expect(t, "session.update")

	ts.Push(t, map[string]any{
		"type":      "response.function_call_arguments.done",
		"call_id":   "call-2",
		"name":      "boom",
		"arguments": `{}`,
	})

	msg := ts.Expect(t, "conversation.item.create")
	item := msg["item"].(map[string]any)
	assert.Contains(t, item["output"], "handler exploded")

	select {
	case err := <-errs:
		var toolErr *ToolExecutionError
		assert.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "boom", toolErr.Tool)
	case <-time.After(2 * time.Second):
		t.Fatal("tool failure not reported")
	}
}

func TestDuplicateToolRejected(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	spec := ToolSpec{Name: "set_memory", Parameters: map[string]any{"type": "object"}}
	handler := func(map[string]any) (any, error) { return nil, nil }

	require.NoError(t, client.AddTool(spec, handler))
	assert.ErrorIs(t, client.AddTool(spec, handler), ErrDuplicateTool)
}

func TestRawEventsMirrorBothDirections(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	raw := make(chan RawEvent, 8)
	client.OnEvent(func(e RawEvent) { raw <- e })

	require.NoError(t, client.UpdateSession(SessionConfig{Voice: "alloy"}))
	ts.Push(t, map[string]any{"type": "session.updated"})

	seen := map[EventSource]string{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-raw:
			seen[e.Source] = e.EventType()
		case <-time.After(2 * time.Second):
			t.Fatal("missing raw event")
		}
	}
	assert.Equal(t, "session.update", seen[SourceClient])
	assert.Equal(t, "session.updated", seen[SourceServer])
}

func TestServerErrorEventIsNonFatal(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	errs := make(chan error, 1)
	client.OnError(func(err error) { errs <- err })

	ts.Push(t, map[string]any{
		"type":  "error",
		"error": map[string]any{"code": "invalid_request", "message": "bad event"},
	})

	select {
	case err := <-errs:
		var protoErr *ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Equal(t, "invalid_request", protoErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("error event not surfaced")
	}
	assert.True(t, client.IsConnected())
}

func TestResetClearsItemsKeepsSession(t *testing.T) {
	ts := newTestStream(t)
	client := newTestClient(t, ts)

	ts.Push(t, map[string]any{"type": "response.audio_transcript.delta", "item_id": "item-1", "delta": "hi"})

	require.Eventually(t, func() bool { return len(client.Items()) == 1 },
		2*time.Second, 10*time.Millisecond)

	client.Reset()
	assert.Empty(t, client.Items())
	assert.True(t, client.IsConnected())
}

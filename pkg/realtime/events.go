package realtime

import (
	"encoding/json"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Wire-level protocol messages exchanged with the realtime backend.
// The protocol is fixed and external; these structs mirror it, they
// do not redesign it.

// AudioFormat identifies a PCM encoding on the wire.
type AudioFormat string

// AudioFormatPCM16 is 16-bit little-endian mono PCM.
const AudioFormatPCM16 AudioFormat = "pcm16"

// EventSource identifies which side of the stream produced an event.
type EventSource string

const (
	// SourceClient marks events sent by this process.
	SourceClient EventSource = "client"
	// SourceServer marks events received from the backend.
	SourceServer EventSource = "server"
)

// BaseEvent carries the fields common to every protocol message.
type BaseEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

// NewBaseEvent creates a BaseEvent with a fresh event id.
func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		// nanoid only fails when the system RNG is broken
		panic(err)
	}
	return BaseEvent{EventID: id, Type: eventType}
}

// TurnDetection holds the voice-activity-detection configuration.
// Live mode (server-driven VAD) is the only supported mode.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// ServerVAD returns the live-mode turn detection settings.
func ServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
}

// InputAudioTranscription selects the server-side transcription model.
type InputAudioTranscription struct {
	Model string `json:"model"`
}

// ToolSpec describes a callable function offered to the backend.
type ToolSpec struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionPayload is the body of a session.update message.
type SessionPayload struct {
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Tools                   []ToolSpec               `json:"tools,omitempty"`
	ToolChoice              string                   `json:"tool_choice,omitempty"`
}

// SessionUpdateEvent applies session configuration.
type SessionUpdateEvent struct {
	BaseEvent
	Session SessionPayload `json:"session"`
}

// ContentPart is one part of a user message.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ItemPayload is the item body of a conversation.item.create message.
type ItemPayload struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// ItemCreateEvent enqueues a conversation item.
type ItemCreateEvent struct {
	BaseEvent
	Item ItemPayload `json:"item"`
}

// InputAudioAppendEvent streams one frame of user audio.
type InputAudioAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

// ResponseCreateEvent asks the backend to start generating.
type ResponseCreateEvent struct {
	BaseEvent
}

// ResponseCancelEvent stops the in-progress response.
type ResponseCancelEvent struct {
	BaseEvent
}

// ItemTruncateEvent tells the backend where local playback of an
// item's audio was cut off, so generation state stays consistent.
type ItemTruncateEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

// Server-to-client event shapes. Only the fields the console consumes
// are declared; unknown fields are ignored by encoding/json.

// ServerItem is the item object embedded in server events.
type ServerItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Status  string        `json:"status"`
	Content []ContentPart `json:"content"`
}

// ItemCreatedEvent announces a new conversation item.
type ItemCreatedEvent struct {
	BaseEvent
	Item ServerItem `json:"item"`
}

// OutputItemDoneEvent announces an item reaching a terminal status.
type OutputItemDoneEvent struct {
	BaseEvent
	Item ServerItem `json:"item"`
}

// AudioDeltaEvent carries a base64 PCM fragment for an item.
type AudioDeltaEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// TranscriptDeltaEvent carries an incremental transcript fragment.
type TranscriptDeltaEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// TranscriptionCompletedEvent carries the final user transcription.
type TranscriptionCompletedEvent struct {
	BaseEvent
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// FunctionCallDoneEvent announces completed function-call arguments.
type FunctionCallDoneEvent struct {
	BaseEvent
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ErrorEvent is the backend's protocol-level error report.
type ErrorEvent struct {
	BaseEvent
	ErrorDetail struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseEvent unmarshals raw bytes into a typed event.
func parseEvent[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}

// RawEvent is one protocol message as seen by the event log: the
// opaque payload plus direction and arrival time.
type RawEvent struct {
	Time   time.Time      `json:"time"`
	Source EventSource    `json:"source"`
	Event  map[string]any `json:"event"`
}

// EventType returns the protocol type of the raw payload, or "".
func (e RawEvent) EventType() string {
	t, _ := e.Event["type"].(string)
	return t
}

// Package realtime maintains the duplex event stream to the
// conversational AI backend used during a live interview. It tracks
// session configuration, the conversation item list, tool calls and
// interruption bookkeeping, and surfaces protocol traffic through a
// small set of typed callbacks.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc/panics"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	pingInterval     = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// ConnectionState represents the stream connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ToolHandler executes a tool invocation from the backend. It runs
// asynchronously; its settled value is serialized and returned to the
// backend as the tool result. Errors and panics are caught and
// reported as a failure result, never crashing the session.
type ToolHandler func(args map[string]any) (any, error)

type registeredTool struct {
	spec    ToolSpec
	handler ToolHandler
}

// SessionConfig is the client-side view of session configuration.
// Zero-valued fields leave the corresponding setting untouched, so
// re-applying a config is idempotent.
type SessionConfig struct {
	// Instructions is the system instruction text. Apply it before
	// the first user utterance.
	Instructions string

	// TranscriptionModel enables server-side user transcription.
	TranscriptionModel string

	// TurnDetection selects the voice-activity-detection mode.
	TurnDetection *TurnDetection

	// Voice selects the backend speech voice.
	Voice string
}

// ConversationUpdate describes one item's change: the updated item
// snapshot plus the delta that produced it.
type ConversationUpdate struct {
	Item  Item
	Delta Delta
}

// Config holds client configuration.
type Config struct {
	// URL is the websocket endpoint: either the provider endpoint
	// with the model query parameter, or a local relay that holds
	// the credential server-side.
	URL string

	// APIKey authenticates against the provider. Leave empty when
	// dialing a relay. There is no built-in default.
	APIKey string

	// SampleRate of the PCM audio on the wire, in Hz.
	SampleRate int

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithURL sets the websocket endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithSampleRate sets the wire sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Client maintains the duplex event stream to the realtime backend.
type Client struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	state     ConnectionState
	cancelCtx context.CancelFunc
	session   SessionPayload
	tools     map[string]registeredTool

	conv *conversation

	// Callbacks. At most one handler per event kind; setting a new
	// handler replaces the previous one.
	onEvent       func(RawEvent)
	onUpdated     func(ConversationUpdate)
	onInterrupted func()
	onError       func(err error)

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewClient creates a realtime client. The URL must be set; the API
// key may be empty only when the URL points at a relay.
func NewClient(opts ...Option) (*Client, error) {
	cfg := &Config{
		SampleRate: 24000,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.URL == "" {
		return nil, ErrMissingAPIKey
	}

	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "realtime.client"),
		state:  StateDisconnected,
		tools:  make(map[string]registeredTool),
		conv:   newConversation(),
		session: SessionPayload{
			Modalities:        []string{"text", "audio"},
			InputAudioFormat:  AudioFormatPCM16,
			OutputAudioFormat: AudioFormatPCM16,
		},
	}, nil
}

// OnEvent sets the handler for every raw protocol message, inbound
// and outbound. Used for logging and inspection only.
func (c *Client) OnEvent(fn func(RawEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// OnConversationUpdated sets the handler fired whenever any item's
// content changes. The update carries enough information to refresh
// exactly one item.
func (c *Client) OnConversationUpdated(fn func(ConversationUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdated = fn
}

// OnInterrupted sets the handler fired when the user starts speaking
// over an in-progress response. Handle it before queueing any further
// output audio.
func (c *Client) OnInterrupted(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInterrupted = fn
}

// OnError sets the handler for protocol-level failures. These are
// reported, never fatal to the session.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Connect establishes the duplex stream. It fails with a
// ConnectionError if the transport cannot be established; the caller
// decides whether to retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	headers := http.Header{}
	if c.config.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.config.APIKey)
		headers.Set("OpenAI-Beta", "realtime=v1")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	c.logger.Info("connecting to realtime backend", "url", c.config.URL)

	conn, resp, err := dialer.DialContext(ctx, c.config.URL, headers)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		if resp != nil {
			return NewConnectionError("dial failed with status "+resp.Status, err)
		}
		return NewConnectionError("dial failed", err)
	}

	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	msgCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.cancelCtx = cancel
	c.mu.Unlock()

	go c.readLoop(msgCtx)
	go c.keepAlive(msgCtx, conn)

	c.logger.Info("connected to realtime backend")

	return nil
}

// Disconnect tears down the stream. Safe to call even if the client
// was never connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return nil
	}

	if c.cancelCtx != nil {
		c.cancelCtx()
		c.cancelCtx = nil
	}

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		c.conn.Close()
		c.conn = nil
	}

	c.state = StateDisconnected
	c.logger.Info("disconnected from realtime backend")

	return nil
}

// IsConnected returns true while the stream is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// Items returns a snapshot of the conversation item list in arrival
// order. The snapshot is a deep copy; mutating it has no effect on
// client state.
func (c *Client) Items() []Item {
	return c.conv.snapshot()
}

// Reset clears the conversation item list wholesale. Session
// configuration and registered tools are kept.
func (c *Client) Reset() {
	c.conv.clear()
}

// Stats reports the number of protocol messages sent and received.
func (c *Client) Stats() (sent, received int64) {
	return c.messagesSent.Load(), c.messagesReceived.Load()
}

// UpdateSession merges cfg into the held session configuration and
// applies it immediately. Safe to call repeatedly.
func (c *Client) UpdateSession(cfg SessionConfig) error {
	c.mu.Lock()
	if cfg.Instructions != "" {
		c.session.Instructions = cfg.Instructions
	}
	if cfg.TranscriptionModel != "" {
		c.session.InputAudioTranscription = &InputAudioTranscription{Model: cfg.TranscriptionModel}
	}
	if cfg.TurnDetection != nil {
		c.session.TurnDetection = cfg.TurnDetection
	}
	if cfg.Voice != "" {
		c.session.Voice = cfg.Voice
	}
	payload := c.sessionPayloadLocked()
	c.mu.Unlock()

	return c.send(SessionUpdateEvent{
		BaseEvent: NewBaseEvent("session.update"),
		Session:   payload,
	})
}

// sessionPayloadLocked builds the full session.update payload,
// including the registered tool specs. Caller holds c.mu.
func (c *Client) sessionPayloadLocked() SessionPayload {
	payload := c.session
	if len(c.tools) > 0 {
		specs := make([]ToolSpec, 0, len(c.tools))
		for _, t := range c.tools {
			specs = append(specs, t.spec)
		}
		payload.Tools = specs
		payload.ToolChoice = "auto"
	}
	return payload
}

// AddTool registers a callable function the backend may invoke during
// the session. When already connected the updated registry is applied
// immediately; otherwise it rides along with the next session update.
func (c *Client) AddTool(spec ToolSpec, handler ToolHandler) error {
	c.mu.Lock()
	if _, exists := c.tools[spec.Name]; exists {
		c.mu.Unlock()
		return ErrDuplicateTool
	}
	if spec.Type == "" {
		spec.Type = "function"
	}
	c.tools[spec.Name] = registeredTool{spec: spec, handler: handler}
	payload := c.sessionPayloadLocked()
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(SessionUpdateEvent{
		BaseEvent: NewBaseEvent("session.update"),
		Session:   payload,
	})
}

// SendUserMessageContent enqueues a user turn and asks the backend to
// respond to it.
func (c *Client) SendUserMessageContent(parts []ContentPart) error {
	err := c.send(ItemCreateEvent{
		BaseEvent: NewBaseEvent("conversation.item.create"),
		Item: ItemPayload{
			ID:      uuid.NewString(),
			Type:    "message",
			Role:    "user",
			Content: parts,
		},
	})
	if err != nil {
		return err
	}
	return c.send(ResponseCreateEvent{BaseEvent: NewBaseEvent("response.create")})
}

// AppendInputAudio streams one frame of raw PCM user audio. Must only
// be called while connected.
func (c *Client) AppendInputAudio(frame []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.send(InputAudioAppendEvent{
		BaseEvent: NewBaseEvent("input_audio_buffer.append"),
		Audio:     base64.StdEncoding.EncodeToString(frame),
	})
}

// CancelResponse stops the in-progress response and truncates the
// named track at the given sample offset, so server-side state
// matches what was actually heard. An empty trackID skips the
// truncation.
func (c *Client) CancelResponse(trackID string, sampleOffset int) error {
	if err := c.send(ResponseCancelEvent{BaseEvent: NewBaseEvent("response.cancel")}); err != nil {
		return err
	}
	if trackID == "" {
		return nil
	}
	audioEndMs := sampleOffset * 1000 / c.config.SampleRate
	return c.send(ItemTruncateEvent{
		BaseEvent:    NewBaseEvent("conversation.item.truncate"),
		ItemID:       trackID,
		ContentIndex: 0,
		AudioEndMs:   audioEndMs,
	})
}

// send marshals and writes an outbound event, mirroring it into the
// raw event stream.
func (c *Client) send(evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		return NewConnectionError("send failed", err)
	}

	c.messagesSent.Add(1)
	c.emitRaw(SourceClient, data)
	return nil
}

// keepAlive pings the peer periodically so idle sessions survive
// intermediary timeouts.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop processes incoming protocol messages until the connection
// is torn down.
func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("stream closed normally")
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("read error", "error", err)
			c.emitError(NewConnectionError("read failed", err))
			return
		}

		c.messagesReceived.Add(1)
		c.emitRaw(SourceServer, data)
		c.handleServerEvent(data)
	}
}

// handleServerEvent dispatches one inbound message by type.
func (c *Client) handleServerEvent(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.logger.Warn("unparseable server event", "error", err)
		c.emitError(&ProtocolError{Message: "unparseable server event: " + err.Error()})
		return
	}

	switch head.Type {
	case "session.created", "session.updated":
		c.logger.Debug("session event", "type", head.Type)

	case "input_audio_buffer.speech_started":
		c.emitInterrupted()

	case "conversation.item.created":
		evt, err := parseEvent[ItemCreatedEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		item := c.conv.create(evt.Item.ID, evt.Item.Role)
		c.emitUpdated(ConversationUpdate{Item: item})

	case "response.audio.delta":
		evt, err := parseEvent[AudioDeltaEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		item := c.conv.appendAudio(evt.ItemID, "assistant", pcm)
		c.emitUpdated(ConversationUpdate{Item: item, Delta: Delta{Audio: pcm}})

	case "response.audio_transcript.delta":
		evt, err := parseEvent[TranscriptDeltaEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		item := c.conv.appendTranscript(evt.ItemID, "assistant", evt.Delta)
		c.emitUpdated(ConversationUpdate{Item: item, Delta: Delta{Transcript: evt.Delta}})

	case "conversation.item.input_audio_transcription.completed":
		evt, err := parseEvent[TranscriptionCompletedEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		item := c.conv.setTranscript(evt.ItemID, "user", evt.Transcript)
		c.emitUpdated(ConversationUpdate{Item: item, Delta: Delta{Transcript: evt.Transcript}})

	case "response.output_item.done":
		evt, err := parseEvent[OutputItemDoneEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		item, changed := c.conv.complete(evt.Item.ID)
		c.emitUpdated(ConversationUpdate{Item: item, Delta: Delta{StatusChanged: changed}})

	case "response.function_call_arguments.done":
		evt, err := parseEvent[FunctionCallDoneEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		go c.executeTool(evt)

	case "error":
		evt, err := parseEvent[ErrorEvent](data)
		if err != nil {
			c.protocolError(head.Type, err)
			return
		}
		c.emitError(&ProtocolError{
			Code:    evt.ErrorDetail.Code,
			Message: evt.ErrorDetail.Message,
		})

	default:
		// Other event types carry no state the console tracks.
	}
}

// executeTool runs a tool handler and returns its settled value to
// the backend. Handler errors and panics become a failure result; the
// session continues.
func (c *Client) executeTool(evt *FunctionCallDoneEvent) {
	c.mu.RLock()
	tool, ok := c.tools[evt.Name]
	c.mu.RUnlock()

	var args map[string]any
	if err := json.Unmarshal([]byte(evt.Arguments), &args); err != nil {
		args = make(map[string]any)
	}

	output := func() string {
		if !ok {
			d, _ := json.Marshal(map[string]any{"error": "unknown tool: " + evt.Name})
			return string(d)
		}

		var (
			res        any
			handlerErr error
		)
		recovered := panics.Try(func() {
			res, handlerErr = tool.handler(args)
		})
		if recovered != nil {
			handlerErr = recovered.AsError()
		}

		if handlerErr != nil {
			c.logger.Error("tool handler failed", "tool", evt.Name, "error", handlerErr)
			c.emitError(&ToolExecutionError{Tool: evt.Name, Cause: handlerErr})
			d, _ := json.Marshal(map[string]any{"error": handlerErr.Error()})
			return string(d)
		}

		if res == nil {
			d, _ := json.Marshal(map[string]any{"ok": true})
			return string(d)
		}
		d, err := json.Marshal(res)
		if err != nil {
			d, _ = json.Marshal(map[string]any{"error": "unserializable tool result"})
		}
		return string(d)
	}()

	if err := c.send(ItemCreateEvent{
		BaseEvent: NewBaseEvent("conversation.item.create"),
		Item: ItemPayload{
			Type:   "function_call_output",
			CallID: evt.CallID,
			Output: output,
		},
	}); err != nil {
		c.logger.Warn("tool result not delivered", "tool", evt.Name, "error", err)
		return
	}
	if err := c.send(ResponseCreateEvent{BaseEvent: NewBaseEvent("response.create")}); err != nil {
		c.logger.Warn("response request after tool not delivered", "error", err)
	}
}

func (c *Client) protocolError(eventType string, err error) {
	c.logger.Warn("malformed server event", "type", eventType, "error", err)
	c.emitError(&ProtocolError{EventType: eventType, Message: err.Error()})
}

func (c *Client) emitRaw(source EventSource, data []byte) {
	c.mu.RLock()
	fn := c.onEvent
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	fn(RawEvent{Time: time.Now(), Source: source, Event: payload})
}

func (c *Client) emitUpdated(update ConversationUpdate) {
	c.mu.RLock()
	fn := c.onUpdated
	c.mu.RUnlock()
	if fn != nil {
		fn(update)
	}
}

func (c *Client) emitInterrupted() {
	c.mu.RLock()
	fn := c.onInterrupted
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

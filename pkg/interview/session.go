// Package interview orchestrates one live interview session: the
// realtime conversation client, microphone and playback adapters,
// the protocol event log, agent memory, and the closing report flow.
package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/marcussrh/interview-console/pkg/audio"
	"github.com/marcussrh/interview-console/pkg/realtime"
	"github.com/marcussrh/interview-console/pkg/report"
)

// State is the session lifecycle state.
type State string

const (
	// StateIdle means no session is active.
	StateIdle State = "idle"
	// StateConnecting means resources are being acquired.
	StateConnecting State = "connecting"
	// StateLive means the conversation is running.
	StateLive State = "live"
	// StateDisconnecting means teardown has begun.
	StateDisconnecting State = "disconnecting"
	// StateReportPending means the closing report is being built.
	StateReportPending State = "report_pending"
	// StateEnded means the session finished and handed off.
	StateEnded State = "ended"
)

// ErrSessionActive indicates Connect was called while a session was
// already running.
var ErrSessionActive = errors.New("interview: session already active")

// ErrNotLive indicates Disconnect was called with no live session.
var ErrNotLive = errors.New("interview: no live session")

// Handoff is what the closing flow receives when the session ends.
type Handoff struct {
	InterviewID       string
	FullTranscription string

	// Report is the persisted record, nil when generation or
	// persistence failed. A failed report never blocks the handoff.
	Report *report.Record
}

// Client is the slice of the realtime client the orchestrator uses.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	UpdateSession(cfg realtime.SessionConfig) error
	SendUserMessageContent(parts []realtime.ContentPart) error
	AppendInputAudio(frame []byte) error
	CancelResponse(trackID string, sampleOffset int) error
	AddTool(spec realtime.ToolSpec, handler realtime.ToolHandler) error
	Items() []realtime.Item
	Reset()
	IsConnected() bool
	OnEvent(fn func(realtime.RawEvent))
	OnConversationUpdated(fn func(realtime.ConversationUpdate))
	OnInterrupted(fn func())
	OnError(fn func(err error))
}

// Recorder is the slice of the capture adapter the orchestrator uses.
type Recorder interface {
	Begin() error
	Record(onFrame func(pcm []byte)) error
	Status() audio.Status
	Frequencies(band audio.Band) []float64
	End() error
}

// Player is the slice of the playback adapter the orchestrator uses.
type Player interface {
	Connect() error
	Add16BitPCM(pcm []byte, trackID string) error
	Interrupt() (audio.TrackOffset, bool)
	Frequencies(band audio.Band) []float64
}

// Reporter runs the closing report flow.
type Reporter interface {
	GenerateAndPersist(ctx context.Context, interviewID, transcript string) (report.Record, error)
}

// CandidateSource provides the applicant briefing.
type CandidateSource interface {
	CandidateProfile(ctx context.Context, interviewID string) (Candidate, error)
}

// Session drives one interview end to end.
type Session struct {
	interviewID string
	logger      *slog.Logger

	client     Client
	recorder   Recorder
	player     Player
	reporter   Reporter
	candidates CandidateSource

	events *EventLog
	memory *MemoryKV

	mu        sync.Mutex
	state     State
	onState   func(State)
	onHandoff func(Handoff)
	wired     bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the structured logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession assembles an orchestrator. Nothing connects until
// Connect.
func NewSession(interviewID string, client Client, recorder Recorder, player Player,
	reporter Reporter, candidates CandidateSource, opts ...SessionOption) *Session {
	s := &Session{
		interviewID: interviewID,
		logger:      slog.Default(),
		client:      client,
		recorder:    recorder,
		player:      player,
		reporter:    reporter,
		candidates:  candidates,
		events:      NewEventLog(),
		memory:      NewMemoryKV(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "interview_id", interviewID)
	return s
}

// OnStateChange sets the observer notified on every state
// transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// OnHandoff sets the consumer of the closing handoff.
func (s *Session) OnHandoff(fn func(Handoff)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHandoff = fn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the protocol event log.
func (s *Session) Events() *EventLog {
	return s.events
}

// Memory returns the agent memory store.
func (s *Session) Memory() *MemoryKV {
	return s.memory
}

// Items returns the current conversation snapshot.
func (s *Session) Items() []realtime.Item {
	return s.client.Items()
}

// InterviewID returns the interview being conducted.
func (s *Session) InterviewID() string {
	return s.interviewID
}

// InputFrequencies exposes the microphone spectrum for the
// visualizer.
func (s *Session) InputFrequencies() []float64 {
	return s.recorder.Frequencies(audio.BandVoice)
}

// OutputFrequencies exposes the playback spectrum for the
// visualizer.
func (s *Session) OutputFrequencies() []float64 {
	return s.player.Frequencies(audio.BandVoice)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	fn := s.onState
	s.mu.Unlock()

	s.logger.Info("session state", "state", string(next))
	if fn != nil {
		fn(next)
	}
}

// Connect starts the session: fresh logs and memory, devices and
// stream up, session configured, live mode on, greeting sent. On any
// failure every partially acquired resource is released, the state
// returns to idle, and the error is returned so the caller can
// retry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateEnded {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.setState(StateConnecting)

	s.events.Clear()
	s.memory.Clear()
	s.client.Reset()

	if err := s.connectPipeline(ctx); err != nil {
		s.releasePartial()
		s.setState(StateIdle)
		return err
	}

	s.setState(StateLive)
	return nil
}

func (s *Session) connectPipeline(ctx context.Context) error {
	if err := s.recorder.Begin(); err != nil {
		return err
	}
	if err := s.player.Connect(); err != nil {
		return err
	}
	// Handlers go in before the stream opens so the first server
	// events already reach the event log.
	s.wireHandlers()
	if err := s.client.Connect(ctx); err != nil {
		return err
	}

	// Session configuration happens strictly before any user audio:
	// instructions, transcription, memory tool, then live VAD mode.
	profile, err := s.candidates.CandidateProfile(ctx, s.interviewID)
	if err != nil {
		return err
	}
	if err := s.client.UpdateSession(realtime.SessionConfig{
		Instructions: ComposeInstructions(profile),
	}); err != nil {
		return err
	}
	if err := s.client.UpdateSession(realtime.SessionConfig{
		TranscriptionModel: "whisper-1",
	}); err != nil {
		return err
	}
	spec, handler := SetMemoryTool(s.memory)
	if err := s.client.AddTool(spec, handler); err != nil && !errors.Is(err, realtime.ErrDuplicateTool) {
		return err
	}
	if err := s.enableLiveMode(); err != nil {
		return err
	}

	// The agent speaks first.
	return s.client.SendUserMessageContent([]realtime.ContentPart{
		{Type: "input_text", Text: "Hello!"},
	})
}

// enableLiveMode switches turn detection to server VAD and starts
// streaming microphone frames. Re-entry while already recording does
// not duplicate the stream.
func (s *Session) enableLiveMode() error {
	if err := s.client.UpdateSession(realtime.SessionConfig{
		TurnDetection: realtime.ServerVAD(),
	}); err != nil {
		return err
	}
	if s.client.IsConnected() && s.recorder.Status() != audio.StatusRecording {
		return s.recorder.Record(func(pcm []byte) {
			if err := s.client.AppendInputAudio(pcm); err != nil && !realtime.IsNotConnected(err) {
				s.logger.Warn("audio frame not delivered", "error", err)
			}
		})
	}
	return nil
}

// wireHandlers connects client callbacks once per session object.
func (s *Session) wireHandlers() {
	s.mu.Lock()
	if s.wired {
		s.mu.Unlock()
		return
	}
	s.wired = true
	s.mu.Unlock()

	s.client.OnEvent(func(evt realtime.RawEvent) {
		s.events.Append(evt)
	})

	s.client.OnConversationUpdated(func(u realtime.ConversationUpdate) {
		if len(u.Delta.Audio) > 0 {
			if err := s.player.Add16BitPCM(u.Delta.Audio, u.Item.ID); err != nil {
				s.logger.Warn("playback enqueue failed", "error", err)
			}
		}
	})

	s.client.OnInterrupted(func() {
		off, ok := s.player.Interrupt()
		if !ok {
			return
		}
		if err := s.client.CancelResponse(off.TrackID, off.Offset); err != nil {
			s.logger.Warn("response cancel failed", "error", err)
		}
	})

	s.client.OnError(func(err error) {
		s.logger.Error("realtime error", "error", err)
	})
}

// releasePartial unwinds whatever Connect managed to acquire.
func (s *Session) releasePartial() {
	if err := s.client.Disconnect(); err != nil {
		s.logger.Warn("client release failed", "error", err)
	}
	if err := s.recorder.End(); err != nil {
		s.logger.Warn("recorder release failed", "error", err)
	}
	s.player.Interrupt()
}

// Disconnect ends the session: display state cleared, stream and
// devices released, transcript assembled, report generated and
// persisted, handoff delivered. The session always reaches Ended; a
// failed report results in a handoff without one.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return ErrNotLive
	}
	s.mu.Unlock()
	s.setState(StateDisconnecting)

	// The transcript comes from the item list as it stood at
	// teardown, before anything is cleared.
	transcript := AssembleTranscript(s.client.Items())

	s.events.Clear()
	s.client.Reset()

	if err := s.client.Disconnect(); err != nil {
		s.logger.Warn("client disconnect failed", "error", err)
	}
	if err := s.recorder.End(); err != nil {
		s.logger.Warn("recorder end failed", "error", err)
	}
	s.player.Interrupt()

	s.setState(StateReportPending)

	handoff := Handoff{
		InterviewID:       s.interviewID,
		FullTranscription: transcript,
	}
	record, err := s.reporter.GenerateAndPersist(ctx, s.interviewID, transcript)
	if err != nil {
		s.logger.Error("closing report failed", "error", err)
	} else {
		handoff.Report = &record
	}

	s.mu.Lock()
	fn := s.onHandoff
	s.mu.Unlock()
	if fn != nil {
		fn(handoff)
	}

	s.setState(StateEnded)
	return nil
}

// AssembleTranscript joins the non-empty transcripts of the item
// list, in order, one line per item.
func AssembleTranscript(items []realtime.Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if t := item.Formatted.Transcript; t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Package report turns a finished interview transcript into a scored
// assessment and persists it to the interview backend.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/marcussrh/interview-console/internal/httpc"
)

// The assessment prompt asks for a written evaluation that ends with
// a mark out of ten; the score is recovered from that closing mark.
const promptPrefix = "Genera un informe de esta conversación de entrevista de trabajo: \n"
const promptSuffix = " para ver si califica para el cargo y al final puntualo del 1/10"

var scorePattern = regexp.MustCompile(`(\d+)/10`)

var (
	// ErrEmptyTranscript indicates there was nothing to evaluate.
	ErrEmptyTranscript = errors.New("report: empty transcript")

	// ErrNoContent indicates the model response carried no choices.
	ErrNoContent = errors.New("report: response contained no content")
)

// GenerationError wraps a failure to obtain the assessment text.
type GenerationError struct {
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("report: generation failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("report: generation failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error { return e.Cause }

// PersistError wraps a failure to store the finished report.
type PersistError struct {
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("report: persistence failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("report: persistence failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PersistError) Unwrap() error { return e.Cause }

// Report is a generated assessment. Score is nil when the text did
// not contain a mark; a scored zero and an absent score stay
// distinguishable.
type Report struct {
	Analysis string
	Score    *int
}

// Record is the payload persisted to the interview backend.
type Record struct {
	ID            string `json:"id"`
	Analysis      string `json:"analisis"`
	Transcription string `json:"transcripcion"`
	Score         *int   `json:"calificacion"`
}

// Config holds generator configuration.
type Config struct {
	// CompletionsURL is the chat-completions endpoint.
	CompletionsURL string

	// APIKey authenticates the completion request. Injected, never
	// defaulted.
	APIKey string

	// Model names the completion model.
	Model string

	// BackendURL is the interview backend base URL for persistence.
	BackendURL string

	// HTTPClient defaults to the shared client.
	HTTPClient *http.Client

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// Generator produces and persists interview reports.
type Generator struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(cfg Config) *Generator {
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.Client
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{config: cfg, http: client, logger: logger.With("component", "report")}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate obtains the assessment for a transcript. It returns a
// typed error on any failure and never panics.
func (g *Generator) Generate(ctx context.Context, transcript string) (Report, error) {
	if transcript == "" {
		return Report{}, ErrEmptyTranscript
	}

	body, err := json.Marshal(chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: promptPrefix + transcript + promptSuffix},
		},
	})
	if err != nil {
		return Report{}, &GenerationError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.CompletionsURL, bytes.NewReader(body))
	if err != nil {
		return Report{}, &GenerationError{Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return Report{}, &GenerationError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Report{}, &GenerationError{StatusCode: resp.StatusCode}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Report{}, &GenerationError{Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return Report{}, &GenerationError{Cause: ErrNoContent}
	}

	analysis := parsed.Choices[0].Message.Content
	report := Report{Analysis: analysis, Score: ExtractScore(analysis)}
	if report.Score == nil {
		g.logger.Warn("assessment carried no mark out of ten")
	}
	return report, nil
}

// Persist stores the finished report for an interview.
func (g *Generator) Persist(ctx context.Context, interviewID, transcript string, rep Report) (Record, error) {
	record := Record{
		ID:            interviewID,
		Analysis:      rep.Analysis,
		Transcription: transcript,
		Score:         rep.Score,
	}

	body, err := json.Marshal(record)
	if err != nil {
		return Record{}, &PersistError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BackendURL+"/guardar", bytes.NewReader(body))
	if err != nil {
		return Record{}, &PersistError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return Record{}, &PersistError{Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Record{}, &PersistError{StatusCode: resp.StatusCode}
	}

	g.logger.Info("report persisted", "interview_id", interviewID, "scored", rep.Score != nil)
	return record, nil
}

// GenerateAndPersist runs the whole closing flow: assessment, score
// extraction, storage. The returned record is what was persisted.
func (g *Generator) GenerateAndPersist(ctx context.Context, interviewID, transcript string) (Record, error) {
	rep, err := g.Generate(ctx, transcript)
	if err != nil {
		return Record{}, err
	}
	return g.Persist(ctx, interviewID, transcript, rep)
}

// ExtractScore pulls the first mark of the form "n/10" out of an
// assessment. Absent marks yield nil, which callers must keep
// distinct from a real zero.
func ExtractScore(analysis string) *int {
	match := scorePattern.FindStringSubmatch(analysis)
	if match == nil {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}

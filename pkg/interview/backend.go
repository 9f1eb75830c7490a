package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/marcussrh/interview-console/internal/httpc"
)

// ErrCandidateNotFound indicates the backend has no record for the
// interview id.
var ErrCandidateNotFound = errors.New("interview: candidate not found")

// BackendError wraps a failed call to the interview backend.
type BackendError struct {
	Route      string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("interview: backend %s returned status %d", e.Route, e.StatusCode)
	}
	return fmt.Sprintf("interview: backend %s failed: %v", e.Route, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error { return e.Cause }

// Candidate is the interview backend's record for one applicant.
// Field names follow the backend's wire contract.
type Candidate struct {
	FirstName     string `json:"nombre"`
	LastName      string `json:"apellido"`
	Position      string `json:"cargo_al_que_se_postula"`
	ResumeSummary string `json:"analisis_de_su_curriculo"`
}

// BackendClient talks to the interview backend that holds candidate
// records and finished reports.
type BackendClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewBackendClient creates a client for the given base URL.
func NewBackendClient(baseURL string, logger *slog.Logger) *BackendClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendClient{
		baseURL: baseURL,
		http:    httpc.Client,
		logger:  logger.With("component", "backend"),
	}
}

// CandidateData fetches the applicant's basic record from /data.
// The backend returns a list; only the first record is used.
func (c *BackendClient) CandidateData(ctx context.Context, interviewID string) (Candidate, error) {
	return c.fetchFirst(ctx, "/data", interviewID)
}

// CandidateProfile fetches the applicant's full profile from
// /informes, including the résumé assessment used to brief the
// interviewer. The backend returns a list; only the first record is
// used even when several are present.
func (c *BackendClient) CandidateProfile(ctx context.Context, interviewID string) (Candidate, error) {
	return c.fetchFirst(ctx, "/informes", interviewID)
}

func (c *BackendClient) fetchFirst(ctx context.Context, route, interviewID string) (Candidate, error) {
	endpoint := fmt.Sprintf("%s%s?id=%s", c.baseURL, route, url.QueryEscape(interviewID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Candidate{}, &BackendError{Route: route, Cause: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Candidate{}, &BackendError{Route: route, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Candidate{}, &BackendError{Route: route, StatusCode: resp.StatusCode}
	}

	var records []Candidate
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return Candidate{}, &BackendError{Route: route, Cause: err}
	}
	if len(records) == 0 {
		return Candidate{}, ErrCandidateNotFound
	}
	if len(records) > 1 {
		c.logger.Warn("multiple candidate records, using the first",
			"route", route, "interview_id", interviewID, "records", len(records))
	}
	return records[0], nil
}

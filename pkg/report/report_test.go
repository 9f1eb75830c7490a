package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractScore(t *testing.T) {
	cases := []struct {
		name     string
		analysis string
		want     *int
	}{
		{"present", "Buen desempeño general. Calificación: 7/10", intPtr(7)},
		{"zero is a score", "Sin experiencia relevante. 0/10", intPtr(0)},
		{"first match wins", "Parcial: 4/10, luego dice 9/10", intPtr(4)},
		{"absent", "El candidato mostró solidez técnica.", nil},
		{"bare slash ten without digits", "puntaje /10 pendiente", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractScore(tc.analysis)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func completionsServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NotEmpty(t, r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]any)
		prompt := msgs[0].(map[string]any)["content"].(string)
		assert.Contains(t, prompt, "entrevista de trabajo")

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateParsesScore(t *testing.T) {
	srv := completionsServer(t, "El candidato califica para el cargo. 8/10")

	gen := NewGenerator(Config{
		CompletionsURL: srv.URL,
		APIKey:         "test-key",
		Model:          "gpt-4o-mini",
	})

	rep, err := gen.Generate(context.Background(), "ENTREVISTADOR: hola\nCANDIDATO: hola")
	require.NoError(t, err)
	assert.Contains(t, rep.Analysis, "califica")
	require.NotNil(t, rep.Score)
	assert.Equal(t, 8, *rep.Score)
}

func TestGenerateWithoutScoreStillSucceeds(t *testing.T) {
	srv := completionsServer(t, "Informe sin puntuación explícita.")

	gen := NewGenerator(Config{CompletionsURL: srv.URL, APIKey: "k", Model: "m"})

	rep, err := gen.Generate(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Nil(t, rep.Score)
}

func TestGenerateEmptyTranscript(t *testing.T) {
	gen := NewGenerator(Config{CompletionsURL: "http://unused", APIKey: "k"})
	_, err := gen.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestGenerateUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	gen := NewGenerator(Config{CompletionsURL: srv.URL, APIKey: "k", Model: "m"})

	_, err := gen.Generate(context.Background(), "transcript")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, http.StatusTooManyRequests, genErr.StatusCode)
}

func TestPersistSendsRecord(t *testing.T) {
	var got Record
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/guardar", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(backend.Close)

	gen := NewGenerator(Config{BackendURL: backend.URL})

	score := 6
	record, err := gen.Persist(context.Background(), "abc123", "full transcript",
		Report{Analysis: "informe 6/10", Score: &score})
	require.NoError(t, err)

	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "informe 6/10", got.Analysis)
	assert.Equal(t, "full transcript", got.Transcription)
	require.NotNil(t, got.Score)
	assert.Equal(t, 6, *got.Score)
	assert.Equal(t, record, got)
}

func TestPersistNilScoreSerializesAsNull(t *testing.T) {
	var raw string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := r.Body.Read(buf)
			sb.Write(buf[:n])
			if err != nil {
				break
			}
		}
		raw = sb.String()
	}))
	t.Cleanup(backend.Close)

	gen := NewGenerator(Config{BackendURL: backend.URL})
	_, err := gen.Persist(context.Background(), "abc123", "t", Report{Analysis: "sin nota"})
	require.NoError(t, err)

	assert.Contains(t, raw, `"calificacion":null`)
}

func TestPersistBackendFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)

	gen := NewGenerator(Config{BackendURL: backend.URL})
	_, err := gen.Persist(context.Background(), "abc123", "t", Report{Analysis: "x"})

	var perErr *PersistError
	require.ErrorAs(t, err, &perErr)
	assert.Equal(t, http.StatusInternalServerError, perErr.StatusCode)
}

func TestGenerateAndPersist(t *testing.T) {
	srv := completionsServer(t, "Cumple el perfil. 9/10")

	var got Record
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	t.Cleanup(backend.Close)

	gen := NewGenerator(Config{
		CompletionsURL: srv.URL,
		APIKey:         "k",
		Model:          "gpt-4o-mini",
		BackendURL:     backend.URL,
	})

	record, err := gen.GenerateAndPersist(context.Background(), "abc123", "transcript")
	require.NoError(t, err)
	require.NotNil(t, record.Score)
	assert.Equal(t, 9, *record.Score)
	assert.Equal(t, "abc123", got.ID)
}

func intPtr(n int) *int { return &n }

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/medsketch/medsketch/internal/imagegen"
	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/prompt"
)

type stubCompleter struct {
	out        string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

type stubModels struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (s *stubModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return s.resp, s.err
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "here is your image"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
				},
			},
		}},
	}
}

// newTestServer builds a direct-mode server around the given stubs.
func newTestServer(t *testing.T, completer prompt.Completer, models imagegen.ContentGenerator) (*Server, string) {
	t.Helper()

	logger := log.NewNop()
	pipeline := prompt.NewPipeline(nil, nil, prompt.NewSynthesizer(completer), 6, 0, logger)

	dir := t.TempDir()
	images, err := imagegen.New(models, "image-model", dir, logger)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:   logger,
		Pipeline: pipeline,
		Images:   images,
	})
	require.NoError(t, err)
	return srv, dir
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresPipeline(t *testing.T) {
	_, err := NewServer(ServerConfig{Images: &imagegen.Generator{}})
	require.Error(t, err)
}

func TestGeneratePrompt_Success(t *testing.T) {
	completer := &stubCompleter{out: "A cinematic cross-section of the human heart"}
	srv, _ := newTestServer(t, completer, &stubModels{})

	rec := postJSON(t, srv.Handler(), "/generate-prompt",
		`{"system_instruction": "You write image prompts.", "user_question": "show a heart"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp generatePromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "A cinematic cross-section of the human heart", resp.Prompt)
	assert.Equal(t, prompt.PathDirect, resp.Path)
	assert.Contains(t, completer.lastUser, "show a heart")
}

func TestGeneratePrompt_MissingInstruction(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{out: "x"}, &stubModels{})

	rec := postJSON(t, srv.Handler(), "/generate-prompt", `{"user_question": "anything"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "system_instruction")
}

func TestGeneratePrompt_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{out: "x"}, &stubModels{})

	rec := postJSON(t, srv.Handler(), "/generate-prompt", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratePrompt_DefaultQuestion(t *testing.T) {
	completer := &stubCompleter{out: "a prompt"}
	srv, _ := newTestServer(t, completer, &stubModels{})

	rec := postJSON(t, srv.Handler(), "/generate-prompt",
		`{"system_instruction": "You write image prompts."}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, completer.lastUser, defaultQuestion)
}

func TestGeneratePrompt_SynthesisFailure(t *testing.T) {
	completer := &stubCompleter{err: assert.AnError}
	srv, _ := newTestServer(t, completer, &stubModels{})

	rec := postJSON(t, srv.Handler(), "/generate-prompt",
		`{"system_instruction": "You write image prompts."}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Error, assert.AnError.Error())
}

func TestGenerateImage_Success(t *testing.T) {
	srv, dir := newTestServer(t, &stubCompleter{}, &stubModels{resp: imageResponse(pngBytes)})

	rec := postJSON(t, srv.Handler(), "/generate-image", `{"prompt": "a heart diagram"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp generateImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "/images/"+resp.Filename, resp.ImageURL)

	saved, err := os.ReadFile(filepath.Join(dir, resp.Filename))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, saved)
}

func TestGenerateImage_MissingPrompt(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{resp: imageResponse(pngBytes)})

	rec := postJSON(t, srv.Handler(), "/generate-image", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateImage_NoImageInResponse(t *testing.T) {
	textOnly := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "no image, sorry"}}},
		}},
	}
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{resp: textOnly})

	rec := postJSON(t, srv.Handler(), "/generate-image", `{"prompt": "a heart diagram"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeImage_RoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{resp: imageResponse(pngBytes)})

	rec := postJSON(t, srv.Handler(), "/generate-image", `{"prompt": "a heart diagram"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generateImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, resp.ImageURL, nil)
	get := httptest.NewRecorder()
	srv.Handler().ServeHTTP(get, req)

	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "image/png", get.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, get.Body.Bytes())
}

func TestServeImage_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/images/image_20250101_000000_deadbeef.png", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeImage_RejectsNonPNG(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/images/config.yaml", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestReady_WithoutPool(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp["retrieval"])
}

func TestRequestID_Assigned(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	_, err := uuid.Parse(got)
	assert.NoError(t, err, "X-Request-ID should be a valid UUID, got %q", got)
}

func TestRequestID_ReusesValid(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	want := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", want)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, want, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_ReplacesInvalid(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	assert.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	logger := log.NewNop()
	pipeline := prompt.NewPipeline(nil, nil, prompt.NewSynthesizer(&stubCompleter{out: "x"}), 6, 0, logger)
	images, err := imagegen.New(&stubModels{}, "image-model", t.TempDir(), logger)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:    logger,
		Pipeline:  pipeline,
		Images:    images,
		RateRPS:   0.001,
		RateBurst: 1,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:4321"

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	logger := log.NewNop()
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(logger)(panicking)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, &stubCompleter{}, &stubModels{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

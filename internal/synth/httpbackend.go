package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiListVoices     = "/v1/voices"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errTextCannotBeEmpty       = "text cannot be empty"
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceErrorWithCode = "synthesis service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "synthesis service returned non-OK status: %s, body: %s"
)

// HTTPBackend is a client for the standalone speech synthesis HTTP service.
// It implements core.SpeechSynthesizer.
type HTTPBackend struct {
	httpClient *http.Client
	baseURL    string
}

// speechRequest is the JSON payload for a generation request.
type speechRequest struct {
	// Text contains the input text to convert to speech.
	Text string `json:"text"`

	// Voice selects the backend speaker; empty means the backend default.
	Voice string `json:"voice,omitempty"`

	// Language specifies the target language code (e.g., "en", "es").
	Language string `json:"language"`
}

// serviceError is a structured error response from the synthesis service.
type serviceError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPBackend creates a client for the synthesis service. The baseURL
// includes protocol and port (e.g., "http://localhost:8880"); timeout applies
// to every request made by this client.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends one chunk to the backend and returns the raw WAV bytes.
func (b *HTTPBackend) Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error) {
	if text == "" {
		return nil, errors.New(errTextCannotBeEmpty)
	}

	requestBody, err := json.Marshal(speechRequest{
		Text:     text,
		Voice:    voiceID,
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.baseURL + apiGenerateSpeech

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to send request to synthesis service at %s: %w",
			b.baseURL,
			err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, b.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: backend returned no bytes", core.ErrEmptyAudio)
	}

	return audioData, nil
}

// ListVoices fetches the backend's voice catalog.
func (b *HTTPBackend) ListVoices(ctx context.Context) ([]core.VoiceProfile, error) {
	url := b.baseURL + apiListVoices

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list voices from service at %s: %w",
			b.baseURL,
			err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, b.parseErrorResponse(resp)
	}

	var voices []core.VoiceProfile

	err = json.NewDecoder(resp.Body).Decode(&voices)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice catalog: %w", err)
	}

	if len(voices) == 0 {
		return nil, fmt.Errorf("%w: backend catalog is empty", core.ErrNoVoices)
	}

	return voices, nil
}

// HealthCheck verifies the synthesis service is running before a workload
// starts, to fail fast when it is unavailable.
func (b *HTTPBackend) HealthCheck(ctx context.Context) error {
	url := b.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"health check failed for service at %s: %w",
			b.baseURL,
			err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw
// body so diagnostics are never lost.
func (b *HTTPBackend) parseErrorResponse(resp *http.Response) error {
	var errorResp serviceError

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		errFmtServiceNonOKStatus,
		resp.Status,
		string(body),
	)
}

package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neuravox/internal/config"
	"neuravox/internal/logging"
	"neuravox/internal/services"
)

// APIClient talks to an OpenAI-compatible transcription endpoint. Each chunk
// is uploaded as a multipart request against /audio/transcriptions.
type APIClient struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewAPIClient builds the HTTP provider from configuration.
func NewAPIClient(cfg *config.Config, model string, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second
	return &APIClient{
		baseURL: strings.TrimRight(cfg.Transcription.BaseURL, "/"),
		apiKey:  cfg.Transcription.APIKey,
		model:   model,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger.With(logging.String(logging.FieldComponent, "transcription-api")),
	}
}

// Model returns the model tag sent with each request.
func (c *APIClient) Model() string { return c.model }

// Available reports whether the endpoint is configured and reachable.
func (c *APIClient) Available(ctx context.Context) bool {
	if c.baseURL == "" || c.apiKey == "" {
		return false
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

type apiResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one chunk and returns the recognized text.
func (c *APIClient) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "transcribing", "api", "base_url is not configured", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := c.buildRequestBody(chunkPath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", services.Wrap(services.ErrProcessing, "transcribing", "api", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if classified := services.ClassifyTimeout(err, "transcribing", "api"); classified != err {
			return "", classified
		}
		return "", services.Wrap(services.ErrExternalService, "transcribing", "api", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "transcribing", "api", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrExternalService, "transcribing", "api",
			fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalService, "transcribing", "api", "decode response", err)
	}
	return parsed.Text, nil
}

// buildRequestBody assembles the multipart form for one chunk. The whole
// form is buffered in memory; chunks are short audio slices, not full files.
func (c *APIClient) buildRequestBody(chunkPath string) (io.Reader, string, error) {
	file, err := os.Open(chunkPath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcribing", "api", "open chunk", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return nil, "", services.Wrap(services.ErrProcessing, "transcribing", "api", "build form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", services.Wrap(services.ErrProcessing, "transcribing", "api", "copy chunk into form", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, "", services.Wrap(services.ErrProcessing, "transcribing", "api", "build form", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", services.Wrap(services.ErrProcessing, "transcribing", "api", "finish form", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PromptToVideo-server/config"
	"PromptToVideo-server/timeline"
)

// RenderClient submits edit documents to a Shotstack-style render API and
// polls job status until a terminal state.
type RenderClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func NewRenderClient(cfg *config.Config) *RenderClient {
	return &RenderClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type renderSubmitResponse struct {
	Success  bool `json:"success"`
	Response struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"response"`
}

type renderPollResponse struct {
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		URL    string `json:"url"`
		Error  string `json:"error"`
	} `json:"response"`
}

// Submit sends the edit document and returns the provider-assigned render id.
func (c *RenderClient) Submit(ctx context.Context, edit *timeline.EditDocument) (string, error) {
	bodyBytes, err := json.Marshal(edit)
	if err != nil {
		return "", fmt.Errorf("marshal edit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Render.Addr+"/render", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.Render.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: status %d: %s", kindErr, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var submitResp renderSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if submitResp.Response.ID == "" {
		return "", fmt.Errorf("%w: submit response missing render id", ErrMalformed)
	}
	return submitResp.Response.ID, nil
}

// Poll reads the current status of a render job. A plain idempotent GET; safe
// to call repeatedly.
func (c *RenderClient) Poll(ctx context.Context, renderID string) (*RenderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Render.Addr+"/render/"+renderID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.Render.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return nil, fmt.Errorf("%w: status %d", kindErr, resp.StatusCode)
	}

	var pollResp renderPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pollResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &RenderStatus{
		ID:     pollResp.Response.ID,
		Status: pollResp.Response.Status,
		URL:    pollResp.Response.URL,
		Error:  pollResp.Response.Error,
	}, nil
}

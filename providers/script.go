package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"PromptToVideo-server/config"
)

const scriptSystemPrompt = `You are a professional video scriptwriter for short explainer videos.

You MUST respond with ONLY valid JSON, no preamble, no markdown, no explanation.

The JSON object must have:
- "title": a short video title
- "sections": an array of 3-8 sections, each with:
  - "narration": the exact words to be spoken (2-4 sentences)
  - "duration": how many seconds this section should last
  - "visual_cues": a one-line description of what is on screen
  - "keywords": 2-4 search keywords for stock footage matching the visuals

The section durations must add up to approximately the requested total duration.`

// ScriptClient generates a structured script from a free-text prompt via an
// OpenAI-compatible chat completion API.
type ScriptClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func NewScriptClient(cfg *config.Config) *ScriptClient {
	return &ScriptClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces a script targeting the given duration in seconds. The
// provider emits natural language, so the JSON is extracted defensively; on
// unparseable output the call fails with ErrMalformed unless the configured
// single-section fallback is enabled, in which case the raw prompt becomes
// the narration of one full-length section (documented degradation, never a
// silent substitute).
func (c *ScriptClient) Generate(ctx context.Context, prompt string, targetDuration int) (*Script, error) {
	userPrompt := fmt.Sprintf("Write a script for a %d second video about: %s", targetDuration, prompt)

	reqBody := chatRequest{
		Model: c.cfg.Script.Model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Script.Temperature,
		MaxTokens:   4096,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Script.Addr+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Script.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script request failed: %w", err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: status %d: %s", kindErr, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decode completion: %v", ErrMalformed, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion has no choices", ErrMalformed)
	}

	script, err := parseScriptJSON(chatResp.Choices[0].Message.Content)
	if err != nil {
		if c.cfg.Script.FallbackSingleSection {
			log.Printf("[Script] unparseable model output, degrading to single-section script: %v", err)
			return fallbackScript(prompt, targetDuration), nil
		}
		return nil, err
	}
	return script, nil
}

// parseScriptJSON extracts the script object from the model's free-text
// reply. Models occasionally wrap JSON in markdown fences or prepend prose,
// so the parse slices from the first '{' to the last '}'.
func parseScriptJSON(content string) (*Script, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrMalformed)
	}

	var script Script
	if err := json.Unmarshal([]byte(content[start:end+1]), &script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(script.Sections) == 0 {
		return nil, fmt.Errorf("%w: script has no sections", ErrMalformed)
	}
	return &script, nil
}

func fallbackScript(prompt string, targetDuration int) *Script {
	// Truncate on a rune boundary; prompts are not always ASCII.
	title := prompt
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60])
	}
	return &Script{
		Title: title,
		Sections: []Section{{
			Narration:  prompt,
			Duration:   targetDuration,
			VisualCues: prompt,
			Keywords:   strings.Fields(prompt),
		}},
	}
}

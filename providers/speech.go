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
)

// voiceover mp3s come back at a fixed bitrate; used to estimate duration
// without decoding the audio.
const mp3BitrateBps = 128000

// SpeechClient synthesizes narration audio via an ElevenLabs-style API.
type SpeechClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func NewSpeechClient(cfg *config.Config) *SpeechClient {
	return &SpeechClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize converts text to speech and returns the raw mp3 bytes plus an
// estimated duration in seconds. Voice tuning comes from the configured
// profile, not per-call parameters. Failures carry a distinguishable kind:
// ErrAuth, ErrRateLimited, ErrBadRequest or ErrUnavailable.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, float64, error) {
	profile := c.cfg.Speech.Profile
	reqBody := speechRequest{
		Text:    text,
		ModelID: c.cfg.Speech.Model,
		VoiceSettings: voiceSettings{
			Stability:       profile.Stability,
			SimilarityBoost: profile.SimilarityBoost,
			Style:           profile.Style,
			UseSpeakerBoost: profile.SpeakerBoost,
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.cfg.Speech.Addr, c.cfg.Speech.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.Speech.APIKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, 0, fmt.Errorf("%w: status %d: %s", kindErr, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read audio body: %w", err)
	}
	if len(audio) == 0 {
		return nil, 0, fmt.Errorf("%w: empty audio response", ErrMalformed)
	}

	duration := float64(len(audio)) * 8 / mp3BitrateBps
	return audio, duration, nil
}

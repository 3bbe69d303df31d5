package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"PromptToVideo-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptTestConfig(addr string) *config.Config {
	cfg := &config.Config{}
	cfg.Script.Addr = addr
	cfg.Script.APIKey = "test-key"
	cfg.Script.Model = "gpt-4o-mini"
	return cfg
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	require.NoError(t, err)
	return b
}

const validScriptJSON = `{
  "title": "Benefits of Renewable Energy",
  "sections": [
    {"narration": "Solar power is everywhere.", "duration": 20, "visual_cues": "solar farm", "keywords": ["solar", "panels"]},
    {"narration": "Wind turbines never sleep.", "duration": 20, "visual_cues": "wind farm", "keywords": ["wind", "turbine"]},
    {"narration": "The future is clean.", "duration": 20, "visual_cues": "city skyline", "keywords": ["city", "green"]}
  ]
}`

func TestScriptClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(completionBody(t, validScriptJSON))
	}))
	defer srv.Close()

	client := NewScriptClient(scriptTestConfig(srv.URL))
	script, err := client.Generate(context.Background(), "Benefits of renewable energy", 60)
	require.NoError(t, err)
	assert.Equal(t, "Benefits of Renewable Energy", script.Title)
	require.Len(t, script.Sections, 3)
	assert.Equal(t, []string{"solar", "panels"}, script.Sections[0].Keywords)

	total := 0
	for _, s := range script.Sections {
		total += s.Duration
	}
	assert.Equal(t, 60, total)
}

func TestScriptClient_StripsMarkdownFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "Here is your script:\n```json\n"+validScriptJSON+"\n```"))
	}))
	defer srv.Close()

	client := NewScriptClient(scriptTestConfig(srv.URL))
	script, err := client.Generate(context.Background(), "anything", 60)
	require.NoError(t, err)
	assert.Len(t, script.Sections, 3)
}

func TestScriptClient_MalformedOutputFailsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "Sorry, I cannot write that script."))
	}))
	defer srv.Close()

	client := NewScriptClient(scriptTestConfig(srv.URL))
	_, err := client.Generate(context.Background(), "anything", 60)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestScriptClient_FallbackSingleSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "not json at all"))
	}))
	defer srv.Close()

	cfg := scriptTestConfig(srv.URL)
	cfg.Script.FallbackSingleSection = true

	client := NewScriptClient(cfg)
	script, err := client.Generate(context.Background(), "Benefits of renewable energy", 60)
	require.NoError(t, err)
	require.Len(t, script.Sections, 1)
	assert.Equal(t, "Benefits of renewable energy", script.Sections[0].Narration)
	assert.Equal(t, 60, script.Sections[0].Duration)
}

func TestFallbackScript_TitleTruncatesOnRuneBoundary(t *testing.T) {
	prompt := strings.Repeat("возобновляемая энергия ", 5) // well past 60 runes, all multi-byte
	script := fallbackScript(prompt, 60)

	title := []rune(script.Title)
	assert.Len(t, title, 60)
	assert.True(t, utf8.ValidString(script.Title))
	assert.Equal(t, string([]rune(prompt)[:60]), script.Title)

	// Short prompts pass through untouched.
	script = fallbackScript("solar power", 60)
	assert.Equal(t, "solar power", script.Title)
}

func TestScriptClient_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewScriptClient(scriptTestConfig(srv.URL))
	_, err := client.Generate(context.Background(), "anything", 60)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestParseScriptJSON_EmptySections(t *testing.T) {
	_, err := parseScriptJSON(`{"title": "x", "sections": []}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"PromptToVideo-server/config"
)

// NotifyCompletion relays a finished production to the configured downstream
// consumer. Best effort: failures are logged, never propagated, and nothing
// happens when no notify URL is configured.
func NotifyCompletion(ctx context.Context, projectID, outputURL string) {
	notifyURL := config.AppConfig.Server.NotifyURL
	if notifyURL == "" {
		return
	}

	body, err := json.Marshal(map[string]string{
		"projectId": projectID,
		"status":    "complete",
		"url":       outputURL,
	})
	if err != nil {
		log.Printf("[Notify] marshal failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Notify] build request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("[Notify] post to %s failed: %v", notifyURL, err)
		return
	}
	defer resp.Body.Close()
	log.Printf("[Notify] project %s relayed to consumer, status %d", projectID, resp.StatusCode)
}

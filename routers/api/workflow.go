package api

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"PromptToVideo-server/models"
	"PromptToVideo-server/providers"
	"PromptToVideo-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Store and queue calls behind package vars so handler behavior around
// claim/enqueue failures is testable without MySQL or Redis.
var (
	getProjectByID       = models.GetProjectByID
	claimProjectRun      = models.ClaimProjectRun
	releaseProjectRun    = models.ReleaseProjectRun
	resetProjectForRetry = models.ResetProjectForRetry
	enqueueRun           = service.EnqueueRun
)

// StartProduction claims the project's run token and enqueues the pipeline.
// The caller is expected to have created the project row already.
func StartProduction(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId" binding:"required"`
		Prompt    string `json:"prompt"`
		Duration  int    `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := getProjectByID(req.ProjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	if err := claimProjectRun(req.ProjectID, runID); err != nil {
		if errors.Is(err, models.ErrRunConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "project already has an active run"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := enqueueRun(req.ProjectID, runID); err != nil {
		log.Printf("[API] enqueue run failed: %v", err)
		// The claim must not outlive a run that never reached the queue,
		// or the project wedges with no retry path.
		if relErr := releaseProjectRun(req.ProjectID, runID, "enqueue failed: "+err.Error()); relErr != nil {
			log.Printf("[API] release run %s failed: %v", runID, relErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflowId": runID})
}

// GetStatus reports the last successfully completed pipeline stage.
func GetStatus(c *gin.Context) {
	projectID := c.Param("project_id")
	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	resp := gin.H{"status": project.Status}
	if project.WorkflowID != "" {
		resp["workflowId"] = project.WorkflowID
	}
	if project.ErrorMessage != "" {
		resp["error"] = project.ErrorMessage
	}
	if project.OutputURL != "" {
		resp["outputUrl"] = project.OutputURL
	}
	c.JSON(http.StatusOK, resp)
}

// RenderWebhook receives the render provider's asynchronous completion
// callback. The body carries the provider's render id; the owning project is
// resolved through the run that submitted it. Always answers 200; a non-200
// here only provokes an upstream retry storm.
func RenderWebhook(c *gin.Context) {
	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		URL    string `json:"url"`
		Error  string `json:"error"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Printf("[Webhook] unreadable body: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": false})
		return
	}
	log.Printf("[Webhook] render %s reported %s", body.ID, body.Status)

	switch body.Status {
	case providers.RenderStatusDone:
		if err := completeFromWebhook(c.Request.Context(), body.ID, body.URL); err != nil {
			log.Printf("[Webhook] completion processing failed: %v", err)
		}
	case providers.RenderStatusFailed:
		if err := failFromWebhook(body.ID, body.Error); err != nil {
			log.Printf("[Webhook] failure processing failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func completeFromWebhook(ctx context.Context, renderID, sourceURL string) error {
	project, err := models.FindProjectByRenderID(renderID)
	if err != nil {
		return err
	}
	if project.Status == models.ProjectStatusComplete {
		return nil // poll loop got there first
	}
	url, err := service.DownloadAndStore(ctx, sourceURL, service.OutputObjectName(project.ID), map[string]string{
		"render_id": renderID,
	})
	if err != nil {
		return err
	}
	if err := models.UpdateProjectStatus(project.ID, models.ProjectStatusComplete, map[string]interface{}{
		"output_url": url,
	}); err != nil {
		return err
	}
	service.NotifyCompletion(ctx, project.ID, url)
	return nil
}

func failFromWebhook(renderID, message string) error {
	project, err := models.FindProjectByRenderID(renderID)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(project.Status) {
		return nil
	}
	return models.UpdateProjectStatus(project.ID, models.ProjectStatusFailed, map[string]interface{}{
		"error_message": "render failed: " + message,
	})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProjectProgressWebSocket pushes project status changes to the client. The
// database is the source of truth: the socket polls the row and forwards
// diffs until a terminal status.
func ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	project, err := getProjectByID(projectID)
	if err != nil {
		conn.WriteJSON(map[string]interface{}{"error": "project not found"})
		return
	}
	_ = conn.WriteJSON(project)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := project.Status
	for range ticker.C {
		cur, err := getProjectByID(projectID)
		if err != nil {
			continue
		}
		if cur.Status != prevStatus {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
		} else if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			// Idle tick: the ping is the only traffic that surfaces a
			// vanished peer on a project parked in one status.
			break
		}
		if models.IsTerminalStatus(cur.Status) {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}

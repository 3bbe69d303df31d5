package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"PromptToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateProject inserts the project row. Production does not start here; the
// caller triggers it with POST /start (or the retry endpoint later).
func CreateProject(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id"`
		Prompt   string `json:"prompt" binding:"required"`
		Duration int    `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Duration <= 0 {
		req.Duration = 60
	}

	project := models.Project{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Prompt:    req.Prompt,
		Status:    models.ProjectStatusStarting,
		Duration:  req.Duration,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := models.CreateProject(&project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create project failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")
	project, err := models.GetProjectByID(projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func ListProjects(c *gin.Context) {
	projects, err := models.ListProjects(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := models.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": projectID})
}

// RetryProject starts a fresh run for a project whose previous run reached a
// terminal failure (or completion). The reset clears every downstream
// artifact URL before the new run is enqueued; the atomic token swap inside
// the reset rejects a second concurrent retry.
func RetryProject(c *gin.Context) {
	projectID := c.Param("project_id")
	project, err := getProjectByID(projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !models.IsTerminalStatus(project.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "project run still in progress"})
		return
	}

	runID := uuid.NewString()
	if err := resetProjectForRetry(projectID, runID); err != nil {
		if errors.Is(err, models.ErrRunConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "another run already claimed this project"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := enqueueRun(projectID, runID); err != nil {
		log.Printf("[API] enqueue retry run failed: %v", err)
		if relErr := releaseProjectRun(projectID, runID, "enqueue failed: "+err.Error()); relErr != nil {
			log.Printf("[API] release run %s failed: %v", runID, relErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflowId": runID})
}

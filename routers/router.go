package routers

import (
	"PromptToVideo-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()

	// Open endpoints: the render provider's callback and liveness checks
	// carry no shared secret.
	r.POST("/webhook", api.RenderWebhook)
	r.GET("/health", api.Health)
	r.GET("/projects/:project_id/wss", api.ProjectProgressWebSocket)

	v1 := r.Group("/v1/api", api.AuthMiddleware())
	{
		v1.POST("/start", api.StartProduction)
		v1.GET("/status/:project_id", api.GetStatus)

		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects", api.ListProjects)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.POST("/projects/:project_id/retry", api.RetryProject)
	}
	return r
}

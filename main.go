package main

import (
	"fmt"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
	"PromptToVideo-server/routers"
	"PromptToVideo-server/service"

	"github.com/joho/godotenv"
)

func main() {
	// .env is local-dev convenience; deployed environments inject real env vars.
	_ = godotenv.Load()

	config.InitConfig()
	fmt.Println("Server starting on port", config.AppConfig.Server.Port)
	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	service.InitMinIO()
	fmt.Println("MinIO initialized")

	processor := service.NewProcessor(models.GormDB)
	processor.StartProcessor(5)

	r := routers.InitRouter()
	r.Run(config.AppConfig.Server.Port)
}

package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PromptToVideo-server/config"

	"github.com/hibiken/asynq"
)

const TypePipelineRun = "pipeline:run"

// RunPayload is the asynq task body for one pipeline run.
type RunPayload struct {
	ProjectID string `json:"project_id"`
	RunID     string `json:"run_id"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueRun schedules a pipeline run. The asynq task id is the run id, so a
// duplicate enqueue for the same run is rejected by the queue itself.
func EnqueueRun(projectID, runID string) error {
	payload, err := json.Marshal(RunPayload{ProjectID: projectID, RunID: runID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypePipelineRun, payload,
		asynq.TaskID(runID),
		asynq.MaxRetry(3),             // re-delivery resumes at the first incomplete step
		asynq.Timeout(45*time.Minute), // external providers are slow; renders especially
		asynq.Retention(24*time.Hour),
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] run enqueued: project=%s run=%s queue_id=%s", projectID, runID, info.ID)
	return nil
}

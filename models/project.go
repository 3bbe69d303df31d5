package models

import "time"

// Project status values, in pipeline order. Transitions are monotonic along
// this order; "failed" is reachable from any non-terminal state. "complete"
// and "failed" are terminal until an explicit retry resets to "starting".
const (
	ProjectStatusStarting           = "starting"            // run claimed, nothing produced yet
	ProjectStatusProcessing         = "processing"          // script generation in flight
	ProjectStatusScriptGenerated    = "script_generated"    // script.json persisted
	ProjectStatusVoiceoverGenerated = "voiceover_generated" // voiceover audio persisted
	ProjectStatusTimelineAssembled  = "timeline_assembled"  // timeline.json persisted, render submitted
	ProjectStatusComplete           = "complete"            // output video available
	ProjectStatusFailed             = "failed"              // run aborted, see ErrorMessage
)

// IsTerminalStatus reports whether no further automatic transition happens.
func IsTerminalStatus(status string) bool {
	return status == ProjectStatusComplete || status == ProjectStatusFailed
}

type Project struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID       string    `json:"userId"`
	Prompt       string    `json:"prompt"`
	Status       string    `json:"status"`
	Duration     int       `json:"duration"` // target duration in seconds
	ScriptURL    string    `json:"scriptUrl"`
	VoiceoverURL string    `json:"voiceoverUrl"`
	TimelineURL  string    `json:"timelineUrl"`
	OutputURL    string    `json:"outputUrl"`
	WorkflowID   string    `json:"workflowId"` // id of the active (or last) run
	ErrorMessage string    `json:"errorMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"PromptToVideo-server/workflow"
)

// WorkflowStep is the durable checkpoint of one step within one run. The
// engine writes a row before it advances so a re-entered run resumes at the
// first not-yet-done step.
type WorkflowStep struct {
	RunID     string          `gorm:"primaryKey;type:varchar(64);column:run_id" json:"runId"`
	Name      string          `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	Result    json.RawMessage `gorm:"type:json" json:"result"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (WorkflowStep) TableName() string {
	return "workflow_step"
}

// GormStepStore backs workflow.Store with the workflow_step table.
type GormStepStore struct {
	DB *gorm.DB
}

func NewGormStepStore(db *gorm.DB) *GormStepStore {
	return &GormStepStore{DB: db}
}

func (s *GormStepStore) Load(runID, name string) (*workflow.StepRecord, error) {
	var row WorkflowStep
	err := s.DB.First(&row, "run_id = ? AND name = ?", runID, name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow.StepRecord{
		RunID:    row.RunID,
		Name:     row.Name,
		Status:   row.Status,
		Attempts: row.Attempts,
		Result:   row.Result,
		Error:    row.Error,
	}, nil
}

func (s *GormStepStore) Save(rec *workflow.StepRecord) error {
	row := WorkflowStep{
		RunID:     rec.RunID,
		Name:      rec.Name,
		Status:    rec.Status,
		Attempts:  rec.Attempts,
		Result:    rec.Result,
		Error:     rec.Error,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "result", "error", "updated_at"}),
	}).Create(&row).Error
}

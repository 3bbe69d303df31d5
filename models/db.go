package models

import (
	"database/sql"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"PromptToVideo-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

// ErrRunConflict is returned when a run token cannot be claimed because
// another run is still active for the project.
var ErrRunConflict = errors.New("project already has an active run")

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("gorm init failed: %v", err)
	}

	log.Println("database connected (native SQL + GORM)")

	// Bootstrap tables from doc/sql/schema.sql when present.
	b, err := os.ReadFile("doc/sql/schema.sql")
	if err != nil {
		log.Printf("schema file not readable (skipping bootstrap): %v", err)
		return
	}
	for _, s := range strings.Split(string(b), ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := DB.Exec(s); err != nil {
			log.Printf("schema statement failed: %v ; sql: %s", err, s)
		}
	}
}

// Project CRUD

func CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := DB.Exec(
		`INSERT INTO project (id, user_id, prompt, status, duration, script_url, voiceover_url, timeline_url, output_url, workflow_id, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Prompt, p.Status, p.Duration, p.ScriptURL, p.VoiceoverURL, p.TimelineURL, p.OutputURL, p.WorkflowID, p.ErrorMessage, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func GetProjectByID(id string) (Project, error) {
	var p Project
	row := DB.QueryRow(`SELECT id, user_id, prompt, status, duration, script_url, voiceover_url, timeline_url, output_url, workflow_id, error_message, created_at, updated_at FROM project WHERE id = ?`, id)
	if err := row.Scan(&p.ID, &p.UserID, &p.Prompt, &p.Status, &p.Duration, &p.ScriptURL, &p.VoiceoverURL, &p.TimelineURL, &p.OutputURL, &p.WorkflowID, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	return p, nil
}

func ListProjects(userID string) ([]Project, error) {
	query := `SELECT id, user_id, prompt, status, duration, script_url, voiceover_url, timeline_url, output_url, workflow_id, error_message, created_at, updated_at FROM project`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Prompt, &p.Status, &p.Duration, &p.ScriptURL, &p.VoiceoverURL, &p.TimelineURL, &p.OutputURL, &p.WorkflowID, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func DeleteProjectByID(id string) error {
	_, err := DB.Exec(`DELETE FROM project WHERE id = ?`, id)
	return err
}

// UpdateProjectStatus advances the pipeline status and, per step, the single
// field set that the step produced. Only the executor calls this.
func UpdateProjectStatus(id, status string, fields map[string]interface{}) error {
	sets := []string{"status = ?"}
	args := []interface{}{status}
	for _, col := range []string{"script_url", "voiceover_url", "timeline_url", "output_url", "error_message"} {
		if v, ok := fields[col]; ok {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now(), id)
	query := "UPDATE project SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	_, err := DB.Exec(query, args...)
	return err
}

// ClaimProjectRun atomically installs a new run token on the project. The
// claim succeeds only when no run was ever started or the previous run
// reached a terminal status, so two concurrent starts (or a double-clicked
// retry) cannot both win.
func ClaimProjectRun(id, runID string) error {
	res, err := DB.Exec(
		`UPDATE project SET workflow_id = ?, status = ?, error_message = '', updated_at = ?
         WHERE id = ? AND (workflow_id = '' OR status IN (?, ?))`,
		runID, ProjectStatusStarting, time.Now(), id, ProjectStatusComplete, ProjectStatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunConflict
	}
	return nil
}

// ReleaseProjectRun undoes a claim whose run never made it onto the queue.
// The project lands in "failed" with the enqueue error recorded, so both
// start and retry stay reachable. Guarded by the run id: a newer claim is
// left untouched.
func ReleaseProjectRun(id, runID, message string) error {
	_, err := DB.Exec(
		`UPDATE project SET workflow_id = '', status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND workflow_id = ?`,
		ProjectStatusFailed, message, time.Now(), id, runID,
	)
	return err
}

// ResetProjectForRetry clears every downstream artifact reference and puts
// the project back at the initial pipeline state. Observed behavior carried
// over as-is: artifacts are cleared rather than preserved on retry.
func ResetProjectForRetry(id, runID string) error {
	res, err := DB.Exec(
		`UPDATE project SET workflow_id = ?, status = ?, script_url = '', voiceover_url = '', timeline_url = '', output_url = '', error_message = '', updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		runID, ProjectStatusStarting, time.Now(), id, ProjectStatusComplete, ProjectStatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunConflict
	}
	return nil
}

// FindProjectByRenderID resolves the project a render callback belongs to.
// The provider-assigned render id is the persisted result of the active
// run's submit-render step.
func FindProjectByRenderID(renderID string) (Project, error) {
	var p Project
	row := DB.QueryRow(
		`SELECT p.id, p.user_id, p.prompt, p.status, p.duration, p.script_url, p.voiceover_url, p.timeline_url, p.output_url, p.workflow_id, p.error_message, p.created_at, p.updated_at
         FROM project p
         JOIN workflow_step s ON s.run_id = p.workflow_id
         WHERE s.name = 'submit-render' AND JSON_UNQUOTE(s.result) = ?`,
		renderID,
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Prompt, &p.Status, &p.Duration, &p.ScriptURL, &p.VoiceoverURL, &p.TimelineURL, &p.OutputURL, &p.WorkflowID, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	return p, nil
}

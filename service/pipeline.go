package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
	"PromptToVideo-server/providers"
	"PromptToVideo-server/timeline"
	"PromptToVideo-server/workflow"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// Narrow views of the provider adapters so the pipeline can be exercised
// with stubs in tests.
type ScriptProvider interface {
	Generate(ctx context.Context, prompt string, targetDuration int) (*providers.Script, error)
}

type SpeechProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, float64, error)
}

type StockProvider interface {
	Search(ctx context.Context, keywords []string, minDuration, maxDuration int) ([]providers.MediaItem, error)
}

type RenderProvider interface {
	Submit(ctx context.Context, edit *timeline.EditDocument) (string, error)
	Poll(ctx context.Context, renderID string) (*providers.RenderStatus, error)
}

// Stock search window around a section's target duration; clips a bit
// shorter or considerably longer than the section are still usable.
const (
	stockWindowBelow = 10
	stockWindowAbove = 30
	stockWindowFloor = 4
)

// narrationSeparator joins section narrations into one voiceover text.
const narrationSeparator = "\n\n"

// Processor consumes pipeline runs from the queue and drives the step
// sequence for one project per run.
type Processor struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Script ScriptProvider
	Speech SpeechProvider
	Stock  StockProvider
	Render RenderProvider
	Steps  workflow.Store

	// UpdateStatus writes a project's status row; an indirection so the
	// step sequence can be exercised without MySQL.
	UpdateStatus func(id, status string, fields map[string]interface{}) error
}

func NewProcessor(db *gorm.DB) *Processor {
	cfg := config.AppConfig
	return &Processor{
		DB:           db,
		Cfg:          cfg,
		Script:       providers.NewScriptClient(cfg),
		Speech:       providers.NewSpeechClient(cfg),
		Stock:        providers.NewStockClient(cfg),
		Render:       providers.NewRenderClient(cfg),
		Steps:        models.NewGormStepStore(db),
		UpdateStatus: models.UpdateProjectStatus,
	}
}

// StartProcessor starts the queue consumer. Each run occupies one worker
// slot while its steps execute sequentially; runs for different projects
// proceed concurrently and share nothing but the database.
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     p.Cfg.Redis.Addr,
			Password: p.Cfg.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePipelineRun, p.HandlePipelineRun)

	log.Printf("Starting pipeline processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run queue server: %v", err)
		}
	}()
}

// runState is the explicit, serializable context threaded between steps.
// Each step hydrates the fields it needs from persisted step results, so a
// resumed run rebuilds the same state without re-calling providers.
type runState struct {
	Script    *providers.Script       `json:"script"`
	ScriptURL string                  `json:"script_url"`
	Voiceover *providers.Voiceover    `json:"voiceover"`
	Media     [][]providers.MediaItem `json:"media"`
	Timeline  *timeline.Timeline      `json:"timeline"`
	RenderID  string                  `json:"render_id"`
	OutputURL string                  `json:"output_url"`
}

// HandlePipelineRun executes (or resumes) one pipeline run. Any error
// escaping a step marks the project failed and is returned so the queue's
// own failure bookkeeping sees it too; a re-delivered run resumes at the
// first incomplete step.
func (p *Processor) HandlePipelineRun(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	project, err := models.GetProjectByID(payload.ProjectID)
	if err != nil {
		return fmt.Errorf("project not found: %v: %w", err, asynq.SkipRetry)
	}
	// The run token on the project row names the single active run. A stale
	// queue entry (e.g. superseded by a retry) must not touch the project.
	if project.WorkflowID != payload.RunID {
		log.Printf("[Pipeline] run %s superseded by %s, dropping", payload.RunID, project.WorkflowID)
		return nil
	}

	log.Printf("[Pipeline] project %s: run %s starting", project.ID, payload.RunID)
	engine := workflow.NewEngine(payload.RunID, p.Steps)

	if err := p.runPipeline(ctx, engine, &project); err != nil {
		log.Printf("[Pipeline] project %s: run failed: %v", project.ID, err)
		if dbErr := p.UpdateStatus(project.ID, models.ProjectStatusFailed, map[string]interface{}{
			"error_message": err.Error(),
		}); dbErr != nil {
			log.Printf("[Pipeline] project %s: persist failure status: %v", project.ID, dbErr)
		}
		if isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Printf("[Pipeline] project %s: run %s complete", project.ID, payload.RunID)
	return nil
}

// isPermanent reports whether re-delivering the run could not possibly help.
func isPermanent(err error) bool {
	return errors.Is(err, providers.ErrAuth) ||
		errors.Is(err, providers.ErrBadRequest) ||
		errors.Is(err, providers.ErrMalformed)
}

// runPipeline is the fixed step sequence. Step results are durably persisted
// before the next step starts; business writes inside steps (artifact
// uploads, status updates) are keyed by project id and tolerate re-invocation.
func (p *Processor) runPipeline(ctx context.Context, engine *workflow.Engine, project *models.Project) error {
	state := &runState{}

	// Only a fresh run regresses to "processing". A re-delivered run replays
	// completed steps without re-running their status writes, so the row must
	// keep reflecting the furthest completed stage.
	if project.Status == models.ProjectStatusStarting {
		if err := p.UpdateStatus(project.ID, models.ProjectStatusProcessing, nil); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	}

	// Step 1: generate-script
	raw, err := engine.Execute(ctx, "generate-script", nil, func(ctx context.Context) (interface{}, error) {
		script, err := p.Script.Generate(ctx, project.Prompt, project.Duration)
		if err != nil {
			return nil, err
		}
		scriptJSON, err := json.Marshal(script)
		if err != nil {
			return nil, err
		}
		url, err := UploadArtifact(ctx, ScriptObjectName(project.ID), scriptJSON, map[string]string{
			"model": p.Cfg.Script.Model,
		})
		if err != nil {
			return nil, err
		}
		if err := p.UpdateStatus(project.ID, models.ProjectStatusScriptGenerated, map[string]interface{}{
			"script_url": url,
		}); err != nil {
			return nil, err
		}
		return scriptStepResult{Script: script, URL: url}, nil
	})
	if err != nil {
		return err
	}
	var scriptResult scriptStepResult
	if err := json.Unmarshal(raw, &scriptResult); err != nil {
		return fmt.Errorf("decode generate-script result: %w", err)
	}
	state.Script = scriptResult.Script
	state.ScriptURL = scriptResult.URL

	// Step 2: generate-voiceover. Speech providers rate-limit aggressively,
	// hence the exponential backoff.
	raw, err = engine.Execute(ctx, "generate-voiceover", &workflow.Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Backoff:      workflow.BackoffExponential,
		Timeout:      90 * time.Second,
	}, func(ctx context.Context) (interface{}, error) {
		narrations := make([]string, 0, len(state.Script.Sections))
		for _, s := range state.Script.Sections {
			narrations = append(narrations, s.Narration)
		}
		audio, duration, err := p.Speech.Synthesize(ctx, strings.Join(narrations, narrationSeparator))
		if err != nil {
			return nil, err
		}
		url, err := UploadArtifact(ctx, VoiceoverObjectName(project.ID), audio, map[string]string{
			"voice": p.Cfg.Speech.VoiceID,
			"model": p.Cfg.Speech.Model,
		})
		if err != nil {
			return nil, err
		}
		if err := p.UpdateStatus(project.ID, models.ProjectStatusVoiceoverGenerated, map[string]interface{}{
			"voiceover_url": url,
		}); err != nil {
			return nil, err
		}
		return &providers.Voiceover{URL: url, DurationSeconds: duration}, nil
	})
	if err != nil {
		return err
	}
	state.Voiceover = &providers.Voiceover{}
	if err := json.Unmarshal(raw, state.Voiceover); err != nil {
		return fmt.Errorf("decode generate-voiceover result: %w", err)
	}

	// Step 3: gather-stock-media. Per-section failures degrade to an empty
	// list for that section; the step itself never fails.
	raw, err = engine.Execute(ctx, "gather-stock-media", nil, func(ctx context.Context) (interface{}, error) {
		return p.gatherMedia(ctx, state.Script), nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &state.Media); err != nil {
		return fmt.Errorf("decode gather-stock-media result: %w", err)
	}

	// Step 4: assemble-timeline. Pure construction, no external calls.
	raw, err = engine.Execute(ctx, "assemble-timeline", nil, func(ctx context.Context) (interface{}, error) {
		tl := BuildTimeline(state.Script, state.Voiceover, state.Media)
		tlJSON, err := json.Marshal(tl)
		if err != nil {
			return nil, err
		}
		url, err := UploadArtifact(ctx, TimelineObjectName(project.ID), tlJSON, nil)
		if err != nil {
			return nil, err
		}
		if err := p.UpdateStatus(project.ID, models.ProjectStatusTimelineAssembled, map[string]interface{}{
			"timeline_url": url,
		}); err != nil {
			return nil, err
		}
		return tl, nil
	})
	if err != nil {
		return err
	}
	state.Timeline = &timeline.Timeline{}
	if err := json.Unmarshal(raw, state.Timeline); err != nil {
		return fmt.Errorf("decode assemble-timeline result: %w", err)
	}

	// Step 5: submit-render
	raw, err = engine.Execute(ctx, "submit-render", nil, func(ctx context.Context) (interface{}, error) {
		edit := timeline.Convert(state.Timeline, timeline.Options{
			FPS:         state.Timeline.FPS,
			CallbackURL: p.callbackURL(),
		})
		return p.Render.Submit(ctx, edit)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &state.RenderID); err != nil {
		return fmt.Errorf("decode submit-render result: %w", err)
	}

	// Step 6: wait-for-render
	raw, err = engine.Execute(ctx, "wait-for-render", nil, func(ctx context.Context) (interface{}, error) {
		return p.waitForRender(ctx, project.ID, state.RenderID)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &state.OutputURL); err != nil {
		return fmt.Errorf("decode wait-for-render result: %w", err)
	}

	// Step 7: update-complete-status
	_, err = engine.Execute(ctx, "update-complete-status", nil, func(ctx context.Context) (interface{}, error) {
		if err := p.UpdateStatus(project.ID, models.ProjectStatusComplete, map[string]interface{}{
			"output_url": state.OutputURL,
		}); err != nil {
			return nil, err
		}
		return state.OutputURL, nil
	})
	return err
}

type scriptStepResult struct {
	Script *providers.Script `json:"script"`
	URL    string            `json:"url"`
}

// gatherMedia issues one stock search per script section. Sub-calls run
// concurrently; a failure for one section is logged and replaced by an empty
// list so siblings are unaffected. The merged result preserves section
// index order and its length always equals the section count.
func (p *Processor) gatherMedia(ctx context.Context, script *providers.Script) [][]providers.MediaItem {
	results := make([][]providers.MediaItem, len(script.Sections))

	var wg sync.WaitGroup
	for i, section := range script.Sections {
		wg.Add(1)
		go func(i int, section providers.Section) {
			defer wg.Done()
			minDur := section.Duration - stockWindowBelow
			if minDur < stockWindowFloor {
				minDur = stockWindowFloor
			}
			maxDur := section.Duration + stockWindowAbove

			items, err := p.Stock.Search(ctx, section.Keywords, minDur, maxDur)
			if err != nil {
				log.Printf("[Pipeline] stock search for section %d failed, continuing without media: %v", i, err)
				items = nil
			}
			if items == nil {
				items = []providers.MediaItem{}
			}
			results[i] = items
		}(i, section)
	}
	wg.Wait()
	return results
}

// waitForRender polls the render job at a fixed interval up to the
// configured attempt bound. Exceeding the bound is reported as a timeout,
// distinct from a provider-reported failure.
func (p *Processor) waitForRender(ctx context.Context, projectID, renderID string) (string, error) {
	interval := time.Duration(p.Cfg.Render.PollIntervalSec) * time.Second
	attempts := p.Cfg.Render.PollAttempts

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := p.Render.Poll(ctx, renderID)
		if err != nil {
			log.Printf("[Pipeline] render poll error (continuing): %v", err)
			continue
		}
		switch status.Status {
		case providers.RenderStatusDone:
			url, err := DownloadAndStore(ctx, status.URL, OutputObjectName(projectID), map[string]string{
				"render_id": renderID,
			})
			if err != nil {
				return "", fmt.Errorf("store render output: %w", err)
			}
			return url, nil
		case providers.RenderStatusFailed:
			return "", fmt.Errorf("render failed: %s", status.Error)
		}
		// queued/fetching/rendering/saving: keep polling
	}
	return "", fmt.Errorf("render timed out after %d poll attempts", attempts)
}

func (p *Processor) callbackURL() string {
	if p.Cfg.Server.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(p.Cfg.Server.PublicURL, "/") + "/webhook"
}

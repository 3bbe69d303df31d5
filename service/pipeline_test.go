package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"PromptToVideo-server/config"
	"PromptToVideo-server/models"
	"PromptToVideo-server/providers"
	"PromptToVideo-server/timeline"
	"PromptToVideo-server/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStock fails for the section indexes listed in failFor and returns one
// canned item per call otherwise.
type stubStock struct {
	failFor map[string]bool // keyed by first keyword
	calls   int
}

func (s *stubStock) Search(ctx context.Context, keywords []string, minDuration, maxDuration int) ([]providers.MediaItem, error) {
	s.calls++
	if len(keywords) > 0 && s.failFor[keywords[0]] {
		return nil, errors.New("stock provider exploded")
	}
	return []providers.MediaItem{{
		ID:   fmt.Sprintf("item-%s", keywords[0]),
		Kind: "video",
		URL:  fmt.Sprintf("https://cdn.example.com/%s.mp4", keywords[0]),
	}}, nil
}

func testScript(n int) *providers.Script {
	script := &providers.Script{Title: "Benefits of Renewable Energy"}
	for i := 0; i < n; i++ {
		script.Sections = append(script.Sections, providers.Section{
			Narration:  fmt.Sprintf("Narration %d.", i+1),
			Duration:   20,
			VisualCues: fmt.Sprintf("Cue %d", i+1),
			Keywords:   []string{fmt.Sprintf("kw%d", i)},
		})
	}
	return script
}

func TestGatherMedia_PartialFailureDoesNotAbortSiblings(t *testing.T) {
	stock := &stubStock{failFor: map[string]bool{"kw1": true}}
	p := &Processor{Stock: stock}

	script := testScript(3)
	media := p.gatherMedia(context.Background(), script)

	require.Len(t, media, 3, "merged list length equals section count")
	assert.Len(t, media[0], 1)
	assert.Empty(t, media[1], "failed section degrades to an empty list")
	assert.Len(t, media[2], 1)
	assert.Equal(t, 3, stock.calls)

	// Order preserved by section index.
	assert.Equal(t, "https://cdn.example.com/kw0.mp4", media[0][0].URL)
	assert.Equal(t, "https://cdn.example.com/kw2.mp4", media[2][0].URL)
}

func TestGatherMedia_DurationWindow(t *testing.T) {
	var gotMin, gotMax int
	p := &Processor{Stock: stockFunc(func(ctx context.Context, kw []string, minD, maxD int) ([]providers.MediaItem, error) {
		gotMin, gotMax = minD, maxD
		return nil, nil
	})}

	script := &providers.Script{Sections: []providers.Section{{Duration: 20, Keywords: []string{"a"}}}}
	p.gatherMedia(context.Background(), script)
	assert.Equal(t, 10, gotMin)
	assert.Equal(t, 50, gotMax)

	// Short sections floor the lower bound.
	script.Sections[0].Duration = 6
	p.gatherMedia(context.Background(), script)
	assert.Equal(t, 4, gotMin)
	assert.Equal(t, 36, gotMax)
}

type stockFunc func(ctx context.Context, keywords []string, minDuration, maxDuration int) ([]providers.MediaItem, error)

func (f stockFunc) Search(ctx context.Context, keywords []string, minDuration, maxDuration int) ([]providers.MediaItem, error) {
	return f(ctx, keywords, minDuration, maxDuration)
}

func testVoiceover() *providers.Voiceover {
	return &providers.Voiceover{URL: "https://cdn.example.com/voiceover.mp3", DurationSeconds: 58.4}
}

func fullMedia(n int) [][]providers.MediaItem {
	media := make([][]providers.MediaItem, n)
	for i := range media {
		media[i] = []providers.MediaItem{{
			ID:  fmt.Sprintf("m%d", i),
			URL: fmt.Sprintf("https://cdn.example.com/m%d.mp4", i),
		}}
	}
	return media
}

func TestBuildTimeline_OverlayCounts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8} {
		t.Run(fmt.Sprintf("%d sections", n), func(t *testing.T) {
			tl := BuildTimeline(testScript(n), testVoiceover(), fullMedia(n))

			require.Len(t, tl.OverlayTracks, 1)
			// One opening title, one label per section after the first,
			// one closing call-to-action.
			assert.Len(t, tl.OverlayTracks[0].Clips, 1+(n-1)+1)
			assert.Equal(t, "Benefits of Renewable Energy", tl.OverlayTracks[0].Clips[0].Text)
			assert.Equal(t, closingText, tl.OverlayTracks[0].Clips[n].Text)
		})
	}
}

func TestBuildTimeline_SectionWithoutMediaLeavesGap(t *testing.T) {
	media := fullMedia(3)
	media[1] = []providers.MediaItem{}

	tl := BuildTimeline(testScript(3), testVoiceover(), media)

	require.Len(t, tl.VideoTracks, 1)
	clips := tl.VideoTracks[0].Clips
	require.Len(t, clips, 2, "a section without media contributes no clip")
	assert.Equal(t, 0.0, clips[0].Start)
	assert.Equal(t, 40.0, clips[1].Start, "gap left where section 1 would be")
}

func TestBuildTimeline_VideoClipCountNeverExceedsSectionCount(t *testing.T) {
	tl := BuildTimeline(testScript(4), testVoiceover(), fullMedia(4))
	assert.LessOrEqual(t, len(tl.VideoTracks[0].Clips), 4)
}

func TestBuildTimeline_SoundtrackFadeOut(t *testing.T) {
	tl := BuildTimeline(testScript(2), testVoiceover(), fullMedia(2))
	require.NotNil(t, tl.Soundtrack)
	assert.Equal(t, "https://cdn.example.com/voiceover.mp3", tl.Soundtrack.Src)
	assert.False(t, tl.Soundtrack.FadeIn)
	assert.True(t, tl.Soundtrack.FadeOut)
}

func TestBuildTimeline_DurationFromMeasuredVoiceover(t *testing.T) {
	// Voiceover duration is measured, not assumed equal to the section sum.
	tl := BuildTimeline(testScript(3), testVoiceover(), fullMedia(3))
	assert.Equal(t, 58.4, tl.Duration)

	tl = BuildTimeline(testScript(3), nil, fullMedia(3))
	assert.Equal(t, 60.0, tl.Duration, "section sum used when no voiceover")
}

func TestBuildTimeline_Idempotent(t *testing.T) {
	script := testScript(3)
	vo := testVoiceover()
	media := fullMedia(3)
	media[2] = nil

	a, err := json.Marshal(BuildTimeline(script, vo, media))
	require.NoError(t, err)
	b, err := json.Marshal(BuildTimeline(script, vo, media))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuildTimeline_MediaShorterThanSectionCapsClip(t *testing.T) {
	media := fullMedia(1)
	media[0][0].Duration = 12.5

	tl := BuildTimeline(testScript(1), testVoiceover(), media)
	require.Len(t, tl.VideoTracks[0].Clips, 1)
	assert.Equal(t, 12.5, tl.VideoTracks[0].Clips[0].Length)
}

type memStepStore struct {
	recs map[string]*workflow.StepRecord
}

func newMemStepStore() *memStepStore {
	return &memStepStore{recs: map[string]*workflow.StepRecord{}}
}

func (s *memStepStore) Load(runID, name string) (*workflow.StepRecord, error) {
	return s.recs[runID+"/"+name], nil
}

func (s *memStepStore) Save(rec *workflow.StepRecord) error {
	s.recs[rec.RunID+"/"+rec.Name] = rec
	return nil
}

func markStepDone(t *testing.T, store *memStepStore, runID, name string, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, store.Save(&workflow.StepRecord{
		RunID:  runID,
		Name:   name,
		Status: workflow.StepStatusDone,
		Result: raw,
	}))
}

// seedCompletedSteps records steps 1-6 as done, leaving only the final
// status update to execute.
func seedCompletedSteps(t *testing.T, store *memStepStore, runID string) {
	t.Helper()
	script := testScript(2)
	markStepDone(t, store, runID, "generate-script", scriptStepResult{Script: script, URL: "https://cdn.example.com/script.json"})
	markStepDone(t, store, runID, "generate-voiceover", testVoiceover())
	markStepDone(t, store, runID, "gather-stock-media", fullMedia(2))
	markStepDone(t, store, runID, "assemble-timeline", BuildTimeline(script, testVoiceover(), fullMedia(2)))
	markStepDone(t, store, runID, "submit-render", "render-1")
	markStepDone(t, store, runID, "wait-for-render", "https://cdn.example.com/output.mp4")
}

type statusRecorder struct {
	statuses []string
}

func (r *statusRecorder) update(id, status string, fields map[string]interface{}) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func TestRunPipeline_ResumeDoesNotRegressStatus(t *testing.T) {
	store := newMemStepStore()
	seedCompletedSteps(t, store, "run-1")

	rec := &statusRecorder{}
	p := &Processor{Cfg: &config.Config{}, Steps: store, UpdateStatus: rec.update}
	project := models.Project{ID: "proj-1", WorkflowID: "run-1", Status: models.ProjectStatusTimelineAssembled}

	err := p.runPipeline(context.Background(), workflow.NewEngine("run-1", store), &project)
	require.NoError(t, err)

	// Replayed steps write nothing; the only status write re-asserts
	// completion. In particular no regression to "processing".
	assert.Equal(t, []string{models.ProjectStatusComplete}, rec.statuses)
}

func TestRunPipeline_FreshRunMarksProcessing(t *testing.T) {
	store := newMemStepStore()
	seedCompletedSteps(t, store, "run-2")

	rec := &statusRecorder{}
	p := &Processor{Cfg: &config.Config{}, Steps: store, UpdateStatus: rec.update}
	project := models.Project{ID: "proj-2", WorkflowID: "run-2", Status: models.ProjectStatusStarting}

	err := p.runPipeline(context.Background(), workflow.NewEngine("run-2", store), &project)
	require.NoError(t, err)

	require.NotEmpty(t, rec.statuses)
	assert.Equal(t, models.ProjectStatusProcessing, rec.statuses[0])
}

func TestBuildTimeline_ConvertsCleanly(t *testing.T) {
	tl := BuildTimeline(testScript(2), testVoiceover(), fullMedia(2))
	doc := timeline.Convert(tl, timeline.Options{})
	// Overlay track first, then video; the voiceover rides as soundtrack.
	require.Len(t, doc.Timeline.Tracks, 2)
	assert.Equal(t, "title", doc.Timeline.Tracks[0].Clips[0].Asset.Type)
	assert.Equal(t, "video", doc.Timeline.Tracks[1].Clips[0].Asset.Type)
	require.NotNil(t, doc.Timeline.Soundtrack)
	assert.Equal(t, "fadeOut", doc.Timeline.Soundtrack.Effect)
}

package providers

// Script is the structured scriptwriting output. Immutable once produced;
// persisted as projects/{id}/script.json.
type Script struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Narration  string   `json:"narration"`
	Duration   int      `json:"duration"` // seconds; soft target, sum approximates project duration
	VisualCues string   `json:"visual_cues"`
	Keywords   []string `json:"keywords"`
}

// MediaItem is one candidate stock asset for a script section.
type MediaItem struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"` // video|image
	URL        string  `json:"url"`
	PreviewURL string  `json:"preview_url"`
	Duration   float64 `json:"duration,omitempty"` // zero for images
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Voiceover is the synthesized audio artifact.
type Voiceover struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Render job status values as reported by the render provider.
const (
	RenderStatusQueued    = "queued"
	RenderStatusFetching  = "fetching"
	RenderStatusRendering = "rendering"
	RenderStatusSaving    = "saving"
	RenderStatusDone      = "done"
	RenderStatusFailed    = "failed"
)

// RenderStatus is one poll observation of an in-flight render.
type RenderStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

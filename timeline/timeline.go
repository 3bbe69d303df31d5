// Package timeline holds the renderer-agnostic description of a video's
// tracks and clips, and the conversion into the render provider's edit
// document format.
package timeline

// Clip kinds used on internal tracks.
const (
	ClipKindVideo = "video"
	ClipKindAudio = "audio"
	ClipKindText  = "text"
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Style carries per-clip presentation. X/Y are normalized [0,1] coordinates
// of a text overlay's anchor; nil means centered.
type Style struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	FontSize int      `json:"fontSize,omitempty"`
	Color    string   `json:"color,omitempty"`
}

type Clip struct {
	Kind   string  `json:"kind"`
	Start  float64 `json:"start"`
	Length float64 `json:"length"`
	Src    string  `json:"src,omitempty"`  // video/audio source URL
	Text   string  `json:"text,omitempty"` // text overlay content
	Volume float64 `json:"volume,omitempty"`
	Style  *Style  `json:"style,omitempty"`
}

type Track struct {
	Clips []Clip `json:"clips"`
}

// Soundtrack is the single full-length audio bed (the voiceover).
type Soundtrack struct {
	Src     string  `json:"src"`
	Volume  float64 `json:"volume,omitempty"`
	FadeIn  bool    `json:"fadeIn,omitempty"`
	FadeOut bool    `json:"fadeOut,omitempty"`
}

// Timeline is produced once per project from script + voiceover + media
// items and is immutable afterwards. Overlay text clips may overlap video
// clips; a section without stock media leaves a gap in the video track.
type Timeline struct {
	Duration      float64     `json:"duration"`
	Resolution    Resolution  `json:"resolution"`
	FPS           int         `json:"fps"`
	VideoTracks   []Track     `json:"videoTracks"`
	AudioTracks   []Track     `json:"audioTracks"`
	OverlayTracks []Track     `json:"overlayTracks"`
	Soundtrack    *Soundtrack `json:"soundtrack,omitempty"`
}

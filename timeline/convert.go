package timeline

// Default output settings applied when Options leaves them unset.
const (
	DefaultFormat     = "mp4"
	DefaultResolution = "hd"
)

// Options select the output block of the edit document and an optional
// callback URL the provider hits when the render reaches a terminal state.
type Options struct {
	Format      string
	Resolution  string
	FPS         int
	CallbackURL string
}

// EditDocument is the render provider's native job-submission format.
type EditDocument struct {
	Timeline EditTimeline `json:"timeline"`
	Output   EditOutput   `json:"output"`
	Callback string       `json:"callback,omitempty"`
}

type EditTimeline struct {
	Soundtrack *EditSoundtrack `json:"soundtrack,omitempty"`
	Tracks     []EditTrack     `json:"tracks"`
}

type EditSoundtrack struct {
	Src    string  `json:"src"`
	Effect string  `json:"effect,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

type EditTrack struct {
	Clips []EditClip `json:"clips"`
}

type EditClip struct {
	Asset  EditAsset `json:"asset"`
	Start  float64   `json:"start"`
	Length float64   `json:"length"`
}

type EditAsset struct {
	Type     string  `json:"type"`
	Src      string  `json:"src,omitempty"`
	Text     string  `json:"text,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Position string  `json:"position,omitempty"`
}

type EditOutput struct {
	Format     string `json:"format"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps,omitempty"`
}

// Convert maps an internal timeline into the provider edit document. Pure
// and deterministic: same timeline + options in, byte-identical document out.
// Track order in the document is overlay tracks first (topmost layer), then
// video, then audio, preserving relative order within each category.
func Convert(tl *Timeline, opts Options) *EditDocument {
	doc := &EditDocument{
		Output: EditOutput{
			Format:     opts.Format,
			Resolution: opts.Resolution,
			FPS:        opts.FPS,
		},
		Callback: opts.CallbackURL,
	}
	if doc.Output.Format == "" {
		doc.Output.Format = DefaultFormat
	}
	if doc.Output.Resolution == "" {
		doc.Output.Resolution = DefaultResolution
	}

	if tl.Soundtrack != nil {
		doc.Timeline.Soundtrack = &EditSoundtrack{
			Src:    tl.Soundtrack.Src,
			Effect: soundtrackEffect(tl.Soundtrack),
			Volume: tl.Soundtrack.Volume,
		}
	}

	tracks := make([]EditTrack, 0, len(tl.OverlayTracks)+len(tl.VideoTracks)+len(tl.AudioTracks))
	for _, group := range [][]Track{tl.OverlayTracks, tl.VideoTracks, tl.AudioTracks} {
		for _, t := range group {
			tracks = append(tracks, convertTrack(t))
		}
	}
	doc.Timeline.Tracks = tracks
	return doc
}

func convertTrack(t Track) EditTrack {
	out := EditTrack{Clips: make([]EditClip, 0, len(t.Clips))}
	for _, c := range t.Clips {
		out.Clips = append(out.Clips, EditClip{
			Asset:  convertAsset(c),
			Start:  c.Start,
			Length: c.Length,
		})
	}
	return out
}

func convertAsset(c Clip) EditAsset {
	switch c.Kind {
	case ClipKindText:
		return EditAsset{
			Type:     "title",
			Text:     c.Text,
			Position: positionFromStyle(c.Style),
		}
	case ClipKindAudio:
		return EditAsset{Type: "audio", Src: c.Src, Volume: c.Volume}
	default:
		return EditAsset{Type: "video", Src: c.Src, Volume: c.Volume}
	}
}

func soundtrackEffect(s *Soundtrack) string {
	switch {
	case s.FadeIn && s.FadeOut:
		return "fadeInFadeOut"
	case s.FadeIn:
		return "fadeIn"
	case s.FadeOut:
		return "fadeOut"
	default:
		return ""
	}
}

// positionFromStyle quantizes normalized (x, y) coordinates into the
// provider's 3x3 anchor grid: below a third maps low, above two thirds maps
// high, the middle band maps to the central row/column. Absent coordinates
// default to center.
func positionFromStyle(s *Style) string {
	col, row := 1, 1
	if s != nil && s.X != nil {
		col = gridCell(*s.X)
	}
	if s != nil && s.Y != nil {
		row = gridCell(*s.Y)
	}
	return positionGrid[row][col]
}

func gridCell(v float64) int {
	switch {
	case v < 1.0/3.0:
		return 0
	case v > 2.0/3.0:
		return 2
	default:
		return 1
	}
}

// positionGrid[row][col], row 0 is the top of the frame.
var positionGrid = [3][3]string{
	{"topLeft", "top", "topRight"},
	{"left", "center", "right"},
	{"bottomLeft", "bottom", "bottomRight"},
}

package service

import (
	"fmt"

	"PromptToVideo-server/providers"
	"PromptToVideo-server/timeline"
)

// Output canvas defaults for assembled timelines.
const (
	assembleWidth  = 1920
	assembleHeight = 1080
	assembleFPS    = 25

	openingTitleLength = 4.0
	sectionLabelLength = 3.0
	closingLength      = 4.0
	closingText        = "Thanks for watching! Subscribe for more"
)

var (
	labelY   = 0.9
	centerXY = 0.5
)

// BuildTimeline assembles the internal timeline from the script, the
// voiceover and the per-section media candidates. Pure and deterministic:
// identical inputs produce a byte-identical timeline.
//
// Overlays are built unconditionally: one opening title card, one short
// label for every section after the first, and one closing call-to-action.
// Each section contributes at most one video clip (its first media item);
// a section without media leaves a gap in the video track, which is valid.
// The voiceover becomes the single soundtrack with a fade-out.
func BuildTimeline(script *providers.Script, voiceover *providers.Voiceover, media [][]providers.MediaItem) *timeline.Timeline {
	var sectionsTotal float64
	for _, s := range script.Sections {
		sectionsTotal += float64(s.Duration)
	}
	duration := sectionsTotal
	if voiceover != nil && voiceover.DurationSeconds > 0 {
		duration = voiceover.DurationSeconds
	}

	overlay := timeline.Track{}
	video := timeline.Track{}

	overlay.Clips = append(overlay.Clips, timeline.Clip{
		Kind:   timeline.ClipKindText,
		Start:  0,
		Length: openingTitleLength,
		Text:   script.Title,
		Style:  &timeline.Style{X: &centerXY, Y: &centerXY},
	})

	start := 0.0
	for i, section := range script.Sections {
		sectionLen := float64(section.Duration)

		if i > 0 {
			label := section.VisualCues
			if label == "" {
				label = fmt.Sprintf("Part %d", i+1)
			}
			overlay.Clips = append(overlay.Clips, timeline.Clip{
				Kind:   timeline.ClipKindText,
				Start:  start,
				Length: sectionLabelLength,
				Text:   label,
				Style:  &timeline.Style{X: &centerXY, Y: &labelY},
			})
		}

		if i < len(media) && len(media[i]) > 0 {
			item := media[i][0]
			clipLen := sectionLen
			if item.Duration > 0 && item.Duration < clipLen {
				clipLen = item.Duration
			}
			video.Clips = append(video.Clips, timeline.Clip{
				Kind:   timeline.ClipKindVideo,
				Start:  start,
				Length: clipLen,
				Src:    item.URL,
				Volume: 0,
			})
		}

		start += sectionLen
	}

	closingStart := duration - closingLength
	if closingStart < 0 {
		closingStart = 0
	}
	overlay.Clips = append(overlay.Clips, timeline.Clip{
		Kind:   timeline.ClipKindText,
		Start:  closingStart,
		Length: closingLength,
		Text:   closingText,
		Style:  &timeline.Style{X: &centerXY, Y: &centerXY},
	})

	tl := &timeline.Timeline{
		Duration:      duration,
		Resolution:    timeline.Resolution{Width: assembleWidth, Height: assembleHeight},
		FPS:           assembleFPS,
		OverlayTracks: []timeline.Track{overlay},
		VideoTracks:   []timeline.Track{video},
	}
	if voiceover != nil && voiceover.URL != "" {
		tl.Soundtrack = &timeline.Soundtrack{
			Src:     voiceover.URL,
			Volume:  1,
			FadeOut: true,
		}
	}
	return tl
}

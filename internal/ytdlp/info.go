package ytdlp

import (
	"encoding/json"
	"sort"

	"github.com/dustin/go-humanize"

	"video-downloader/pkg/models"
)

// maxFormats caps the format list so the UI isn't overwhelmed
const maxFormats = 15

// maxDescriptionLen truncates long descriptions in info responses
const maxDescriptionLen = 200

// rawInfo mirrors the fields we consume from yt-dlp's -J output
type rawInfo struct {
	Title       string      `json:"title"`
	Duration    float64     `json:"duration"`
	Uploader    string      `json:"uploader"`
	ViewCount   int64       `json:"view_count"`
	Description string      `json:"description"`
	Thumbnail   string      `json:"thumbnail"`
	Formats     []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Resolution     string  `json:"resolution"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	Ext            string  `json:"ext"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	Vcodec         string  `json:"vcodec"`
	Acodec         string  `json:"acodec"`
	FormatNote     string  `json:"format_note"`
	URL            string  `json:"url"`
	TBR            float64 `json:"tbr"`
}

// parseVideoInfo converts yt-dlp's info JSON into the VideoMetadata model
func parseVideoInfo(data []byte) (*models.VideoInfo, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	title := raw.Title
	if title == "" {
		title = "Unknown Title"
	}

	uploader := raw.Uploader
	if uploader == "" {
		uploader = "Unknown"
	}

	description := raw.Description
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen] + "..."
	}

	return &models.VideoInfo{
		Title:       title,
		Duration:    int64(raw.Duration),
		Uploader:    uploader,
		ViewCount:   raw.ViewCount,
		Description: description,
		Thumbnail:   raw.Thumbnail,
		Formats:     extractFormats(raw.Formats),
	}, nil
}

// extractFormats filters and orders the selectable formats: audio-only
// entries are dropped, the rest sorted by resolution then audio presence
func extractFormats(raw []rawFormat) []models.VideoFormat {
	formats := make([]models.VideoFormat, 0, len(raw))

	for _, f := range raw {
		// Skip audio-only formats for simplicity
		if f.Vcodec == "none" {
			continue
		}

		// Skip formats that are not actually retrievable
		if f.Filesize == 0 && f.FilesizeApprox == 0 && f.URL == "" {
			continue
		}

		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		sizeStr := "Unknown"
		if size > 0 {
			sizeStr = humanize.Bytes(uint64(size))
		}

		resolution := f.Resolution
		if resolution == "" {
			resolution = "N/A"
		}

		hasAudio := f.Acodec != "none" && f.Acodec != ""

		note := f.FormatNote
		if note == "" && f.Height > 0 {
			note = qualityNote(f.Height)
		}

		formats = append(formats, models.VideoFormat{
			FormatID:   f.FormatID,
			Resolution: resolution,
			Height:     f.Height,
			Width:      f.Width,
			Extension:  f.Ext,
			FileSize:   sizeStr,
			HasAudio:   hasAudio,
			FormatNote: note,
		})
	}

	sort.SliceStable(formats, func(i, j int) bool {
		if formats[i].Height != formats[j].Height {
			return formats[i].Height > formats[j].Height
		}
		return formats[i].HasAudio && !formats[j].HasAudio
	})

	if len(formats) > maxFormats {
		formats = formats[:maxFormats]
	}

	return formats
}

func qualityNote(height int) string {
	switch {
	case height >= 1080:
		return "High Quality"
	case height >= 720:
		return "Medium Quality"
	case height >= 480:
		return "Standard Quality"
	default:
		return "Low Quality"
	}
}

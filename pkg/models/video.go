package models

// VideoFormat represents one selectable quality/container variant of a video
type VideoFormat struct {
	FormatID   string `json:"format_id"`
	Resolution string `json:"resolution"`
	Height     int    `json:"height"`
	Width      int    `json:"width"`
	Extension  string `json:"extension"`
	FileSize   string `json:"file_size"`
	HasAudio   bool   `json:"has_audio"`
	FormatNote string `json:"format_note"`
}

// VideoInfo represents the ephemeral result of an info query; never persisted
type VideoInfo struct {
	Title       string        `json:"title"`
	Duration    int64         `json:"duration"`
	Uploader    string        `json:"uploader"`
	ViewCount   int64         `json:"view_count"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	Formats     []VideoFormat `json:"formats"`
}

package studio

import (
	"fmt"
	"time"

	"image-processor-go/internal/domain/session"
)

// ImageView describes the captured image without its bytes.
type ImageView struct {
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
	Source   string `json:"source"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url"`
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID        string     `json:"id"`
	Stage     string     `json:"stage"`
	Image     *ImageView `json:"image,omitempty"`
	Prompt    string     `json:"prompt,omitempty"`
	Response  string     `json:"response,omitempty"`
	Pending   bool       `json:"pending"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PromptRequest is the body of the prompt and process calls.
type PromptRequest struct {
	Prompt *string `json:"prompt"`
}

// ImageRequest is the JSON alternative to a multipart upload.
type ImageRequest struct {
	// Image is base64 data, optionally as a data: URL.
	Image    string `json:"image" binding:"required"`
	Filename string `json:"filename"`
}

func newSessionView(s session.Session, imagePath string) SessionView {
	v := SessionView{
		ID:        s.ID,
		Stage:     string(s.Stage),
		Prompt:    s.Prompt,
		Response:  s.Response,
		Pending:   s.Pending,
		LastError: s.LastError,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.HasImage() {
		v.Image = &ImageView{
			Format:   s.Image.Format,
			Width:    s.Image.Width,
			Height:   s.Image.Height,
			Size:     s.Image.Size,
			Source:   string(s.Image.Source),
			Filename: s.Image.Filename,
			// the version query defeats browser caching across start-over
			URL: fmt.Sprintf("%s?v=%d", imagePath, s.Image.AcquiredAt.UnixNano()),
		}
	}
	return v
}

package image

import (
	"encoding/base64"
	"time"
)

// Source identifies where an image came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceCamera Source = "camera"
)

// Image is the validated, opaque image handle carried by a session.
type Image struct {
	Bytes      []byte    `json:"bytes"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int64     `json:"size"`
	Source     Source    `json:"source"`
	Filename   string    `json:"filename,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Empty reports whether the handle carries no payload.
func (img *Image) Empty() bool {
	return img == nil || len(img.Bytes) == 0
}

// MIMEType maps the decoded format to a content type.
func (img *Image) MIMEType() string {
	switch img.Format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Base64 returns the standard base64 encoding of the payload.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Bytes)
}

// DataURL renders the payload as a data: URL suitable for chat-style vision APIs.
func (img *Image) DataURL() string {
	return "data:" + img.MIMEType() + ";base64," + img.Base64()
}

// Metrics aggregates pipeline statistics for observability.
type Metrics struct {
	TotalProcessed    int64 `json:"total_processed"`
	UploadAccepted    int64 `json:"upload_accepted"`
	CameraAccepted    int64 `json:"camera_accepted"`
	FailedValidations int64 `json:"failed_validations"`
	SecurityIncidents int64 `json:"security_incidents"`
}

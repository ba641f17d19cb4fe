package image

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-processor-go/internal/platform/config"
	"image-processor-go/internal/platform/errors"
)

func encode(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func newPipeline(t *testing.T, mutate func(*config.SecurityConfig)) *Pipeline {
	t.Helper()
	sec := config.DefaultSecurity()
	if mutate != nil {
		mutate(&sec)
	}
	p, err := NewPipeline(Options{Security: sec})
	require.NoError(t, err)
	return p
}

func TestPipelineAcceptsAllowedFormats(t *testing.T) {
	p := newPipeline(t, nil)

	tests := []struct {
		name     string
		filename string
		format   string
		want     string
	}{
		{name: "png upload", filename: "photo.png", format: "png", want: "png"},
		{name: "jpeg upload", filename: "photo.jpeg", format: "jpeg", want: "jpeg"},
		{name: "jpg extension", filename: "PHOTO.JPG", format: "jpeg", want: "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encode(t, tt.format, 32, 16)
			img, err := p.FromBytes(context.Background(), data, SourceUpload, tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.Format)
			assert.Equal(t, 32, img.Width)
			assert.Equal(t, 16, img.Height)
			assert.Equal(t, int64(len(data)), img.Size)
			assert.Equal(t, SourceUpload, img.Source)
			assert.False(t, img.Empty())
		})
	}

	m := p.Metrics()
	assert.Equal(t, int64(3), m.TotalProcessed)
	assert.Equal(t, int64(3), m.UploadAccepted)
}

func TestPipelineRejections(t *testing.T) {
	p := newPipeline(t, func(s *config.SecurityConfig) {
		s.MaxFileSize = 4096
		s.MaxWidth = 64
		s.MaxHeight = 64
		s.MaxPixels = 64 * 64
	})

	tests := []struct {
		name     string
		data     []byte
		filename string
	}{
		{name: "unsupported extension", data: encode(t, "png", 8, 8), filename: "photo.bmp"},
		{name: "missing extension", data: encode(t, "png", 8, 8), filename: "photo"},
		{name: "gif content behind png name", data: encode(t, "gif", 8, 8), filename: "photo.png"},
		{name: "not an image", data: []byte("definitely not an image"), filename: "photo.png"},
		{name: "empty payload", data: nil, filename: "photo.png"},
		{name: "too large dimensions", data: encode(t, "png", 128, 8), filename: "wide.png"},
		{name: "too many bytes", data: bytes.Repeat([]byte{0x89}, 8192), filename: "big.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.FromBytes(context.Background(), tt.data, SourceUpload, tt.filename)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindAcquisition), "got %v", err)
		})
	}

	assert.Equal(t, int64(len(tests)), p.Metrics().FailedValidations)
}

func TestPipelineCameraFrameWithoutFilename(t *testing.T) {
	p := newPipeline(t, nil)
	img, err := p.Process(context.Background(), Input{
		Reader: bytes.NewReader(encode(t, "jpeg", 20, 10)),
		Source: SourceCamera,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceCamera, img.Source)
	assert.Equal(t, "image/jpeg", img.MIMEType())
	assert.Contains(t, img.DataURL(), "data:image/jpeg;base64,")
	assert.Equal(t, int64(1), p.Metrics().CameraAccepted)
}

func TestPipelineNilReader(t *testing.T) {
	p := newPipeline(t, nil)
	_, err := p.Process(context.Background(), Input{})
	assert.True(t, errors.IsKind(err, errors.KindAcquisition))
}

func TestNewPipelineRejectsBadTimeout(t *testing.T) {
	sec := config.DefaultSecurity()
	sec.ValidationTimeout = "soon"
	_, err := NewPipeline(Options{Security: sec})
	assert.Error(t, err)
}

package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/platform/errors"
)

func TestBuildParts(t *testing.T) {
	img := domainimage.Image{Bytes: []byte{1, 2, 3}, Format: "png"}

	tests := []struct {
		name      string
		prompt    string
		wantKinds []PartKind
		wantText  string
	}{
		{name: "joint query", prompt: "What is in this picture?", wantKinds: []PartKind{PartText, PartImage}, wantText: "What is in this picture?"},
		{name: "image only", prompt: "", wantKinds: []PartKind{PartImage}},
		{name: "blank prompt is image only", prompt: "  \n\t", wantKinds: []PartKind{PartImage}},
		{name: "prompt is trimmed", prompt: "  describe  ", wantKinds: []PartKind{PartText, PartImage}, wantText: "describe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := BuildParts(img, tt.prompt)
			kinds := make([]PartKind, len(parts))
			for i, p := range parts {
				kinds[i] = p.Kind
			}
			assert.Equal(t, tt.wantKinds, kinds)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, parts[0].Text)
			}
			last := parts[len(parts)-1]
			require.NotNil(t, last.Image)
			assert.Equal(t, img.Bytes, last.Image.Bytes)
		})
	}
}

func TestCheckResponse(t *testing.T) {
	text, err := CheckResponse("op", "  A cat.  ")
	require.NoError(t, err)
	assert.Equal(t, "A cat.", text)

	_, err = CheckResponse("op", " \n ")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindModel))
}

func TestClientFunc(t *testing.T) {
	var gotPrompt string
	c := ClientFunc(func(_ context.Context, _ domainimage.Image, prompt string) (string, error) {
		gotPrompt = prompt
		return "ok", nil
	})
	out, err := c.Generate(context.Background(), domainimage.Image{}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "hi", gotPrompt)
}

// Package vision defines the contract between the session service and a
// hosted vision-language model.
package vision

import (
	"context"
	"strings"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/platform/errors"
)

// Client answers a single image query. A non-empty prompt is sent together
// with the image; an empty prompt sends the image alone. Implementations
// return KindModel errors, including for an empty answer.
type Client interface {
	Generate(ctx context.Context, img domainimage.Image, prompt string) (string, error)
}

// Describer is implemented by clients that can report what they talk to.
type Describer interface {
	Name() string
	Model() string
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, img domainimage.Image, prompt string) (string, error)

func (f ClientFunc) Generate(ctx context.Context, img domainimage.Image, prompt string) (string, error) {
	return f(ctx, img, prompt)
}

// PartKind distinguishes the pieces of a query.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one element of the user message sent to the model.
type Part struct {
	Kind  PartKind
	Text  string
	Image *domainimage.Image
}

// BuildParts returns [prompt, image] for a non-blank prompt and [image] otherwise.
func BuildParts(img domainimage.Image, prompt string) []Part {
	parts := make([]Part, 0, 2)
	if p := strings.TrimSpace(prompt); p != "" {
		parts = append(parts, Part{Kind: PartText, Text: p})
	}
	return append(parts, Part{Kind: PartImage, Image: &img})
}

// ErrEmptyResponse builds the error returned when the model answers with no text.
func ErrEmptyResponse(op string) error {
	return errors.New(errors.KindModel, op, "model returned an empty response")
}

// CheckResponse trims text and converts a blank answer into ErrEmptyResponse.
func CheckResponse(op, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse(op)
	}
	return text, nil
}

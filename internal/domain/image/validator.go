package image

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"image-processor-go/internal/platform/config"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/utils"
)

// Reason classifies why an image was refused.
type Reason string

const (
	ReasonEmpty      Reason = "empty"
	ReasonTooLarge   Reason = "too_large"
	ReasonFormat     Reason = "unsupported_format"
	ReasonMismatch   Reason = "content_mismatch"
	ReasonUnreadable Reason = "unreadable"
	ReasonDimensions Reason = "dimensions"
	ReasonSuspicious Reason = "suspicious_content"
	ReasonTimeout    Reason = "timeout"
)

const validateOperation = "image.validate"

// Rejection is the cause carried by every acquisition error the validator
// returns. Callers inspect it with RejectionOf.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Detail
}

// RejectionOf extracts the Rejection from an error chain.
func RejectionOf(err error) (*Rejection, bool) {
	var r *Rejection
	if stderrors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func reject(reason Reason, message string) error {
	return errors.Wrap(errors.KindAcquisition, validateOperation, message, &Rejection{Reason: reason, Detail: message})
}

// Decoded is what the validator learned about an accepted payload.
type Decoded struct {
	Format string
	Width  int
	Height int
}

// magic numbers of the formats a declared extension may claim
var formatMagic = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// payloads that decode as images but smuggle something else
var foreignPayloads = []struct {
	name   string
	prefix []byte
}{
	{"executable", []byte{0x4D, 0x5A}},
	{"pdf document", []byte("%PDF")},
	{"zip archive", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"gzip archive", []byte{0x1F, 0x8B, 0x08}},
}

var svgScriptTokens = []string{
	"<script", "javascript:", "vbscript:", "onload=", "onerror=", "eval(",
	"document.cookie", "window.location", "<iframe", "<object", "<embed",
}

// Validator checks raw bytes against the configured limits before an image
// is attached to a session.
type Validator struct {
	limits  config.SecurityConfig
	allowed map[string]struct{}
	logger  *utils.Logger
}

// NewValidator builds a validator for limits.
func NewValidator(limits config.SecurityConfig, logger *utils.Logger) *Validator {
	allowed := make(map[string]struct{}, len(limits.AllowedFormats))
	for _, f := range limits.AllowedFormats {
		allowed[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	return &Validator{limits: limits, allowed: allowed, logger: logger}
}

// Allowed reports whether format is on the allow-list. An empty list allows all.
func (v *Validator) Allowed(format string) bool {
	if len(v.allowed) == 0 {
		return true
	}
	_, ok := v.allowed[strings.ToLower(format)]
	return ok
}

// Check decodes the header of raw and applies every limit. Failures are
// KindAcquisition errors wrapping a *Rejection.
func (v *Validator) Check(raw []byte, declared string) (Decoded, error) {
	if len(raw) == 0 {
		return Decoded{}, reject(ReasonEmpty, "image is empty")
	}
	if int64(len(raw)) > v.limits.MaxFileSize {
		return Decoded{}, reject(ReasonTooLarge,
			fmt.Sprintf("image is %d bytes, limit is %d", len(raw), v.limits.MaxFileSize))
	}
	if declared != "" && !v.Allowed(declared) {
		return Decoded{}, reject(ReasonFormat, fmt.Sprintf("unsupported format %q", declared))
	}

	if declared != "" && !hasMagic(raw, declared) {
		v.logger.WarnTag("Vision", "content does not match declared format: declared=%s header=%x",
			declared, raw[:min(len(raw), 16)])
		return Decoded{}, reject(ReasonMismatch, fmt.Sprintf("content is not a %s image", declared))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Decoded{}, reject(ReasonUnreadable, "image data could not be decoded")
	}
	if !v.Allowed(format) {
		return Decoded{}, reject(ReasonFormat, fmt.Sprintf("unsupported format %q", format))
	}

	if cfg.Width > v.limits.MaxWidth || cfg.Height > v.limits.MaxHeight {
		return Decoded{}, reject(ReasonDimensions, fmt.Sprintf("image is %dx%d, limit is %dx%d",
			cfg.Width, cfg.Height, v.limits.MaxWidth, v.limits.MaxHeight))
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > v.limits.MaxPixels {
		return Decoded{}, reject(ReasonDimensions, fmt.Sprintf("image has %d pixels, limit is %d", pixels, v.limits.MaxPixels))
	}

	if v.limits.EnableDeepScan {
		if what, found := foreignContent(raw); found {
			v.logger.WarnTag("Vision", "refused image carrying %s", what)
			return Decoded{}, reject(ReasonSuspicious, "image carries "+what)
		}
	}

	return Decoded{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func hasMagic(raw []byte, format string) bool {
	magic, ok := formatMagic[strings.ToLower(format)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, magic)
}

// foreignContent names the first non-image payload found in raw.
func foreignContent(raw []byte) (string, bool) {
	for _, p := range foreignPayloads {
		if bytes.HasPrefix(raw, p.prefix) {
			return p.name, true
		}
	}
	lower := strings.ToLower(string(raw))
	if !strings.Contains(lower, "<svg") {
		return "", false
	}
	for _, token := range svgScriptTokens {
		if strings.Contains(lower, token) {
			return "svg script (" + token + ")", true
		}
	}
	return "", false
}

package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"image-processor-go/internal/platform/config"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/utils"
)

// Pipeline turns an untrusted byte stream into a validated Image.
type Pipeline struct {
	validator *Validator
	logger    *utils.Logger
	security  config.SecurityConfig
	timeout   time.Duration

	processed  atomic.Int64
	uploads    atomic.Int64
	captures   atomic.Int64
	failed     atomic.Int64
	suspicious atomic.Int64
}

// Options configures the pipeline behaviour.
type Options struct {
	Security config.SecurityConfig
	Logger   *utils.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader io.Reader
	// Filename is the client supplied name; its extension must be an allowed format.
	Filename       string
	DeclaredFormat string
	Source         Source
}

// NewPipeline constructs a streaming image pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security.MaxFileSize <= 0 {
		return nil, fmt.Errorf("security.max_file_size must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}

	timeout := 10 * time.Second
	if opts.Security.ValidationTimeout != "" {
		d, err := time.ParseDuration(opts.Security.ValidationTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse validation_timeout: %w", err)
		}
		timeout = d
	}

	return &Pipeline{
		validator: NewValidator(opts.Security, opts.Logger),
		logger:    opts.Logger,
		security:  opts.Security,
		timeout:   timeout,
	}, nil
}

// Process reads the input, validates it and returns the image handle.
// Every failure is a KindAcquisition error.
func (p *Pipeline) Process(ctx context.Context, input Input) (Image, error) {
	img, err := p.process(ctx, input)
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.logger.WarnTag("Vision", "image rejected: source=%s filename=%s error=%v", input.Source, input.Filename, err)
		return Image{}, err
	}
	if img.Source == SourceCamera {
		p.captures.Add(1)
	} else {
		p.uploads.Add(1)
	}
	return img, nil
}

func (p *Pipeline) process(ctx context.Context, input Input) (Image, error) {
	const op = "image.process"

	if input.Reader == nil {
		return Image{}, errors.New(errors.KindAcquisition, op, "no image provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	declared := strings.ToLower(strings.TrimSpace(input.DeclaredFormat))
	if input.Filename != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(input.Filename)), ".")
		if ext == "" || !p.validator.Allowed(ext) {
			return Image{}, reject(ReasonFormat,
				fmt.Sprintf("unsupported format %q, allowed: %s", ext, strings.Join(p.security.AllowedFormats, ", ")))
		}
		if declared == "" {
			declared = ext
		}
	}

	limited := &io.LimitedReader{
		R: input.Reader,
		N: p.security.MaxFileSize + 1,
	}
	raw, err := io.ReadAll(limited)
	if err != nil {
		return Image{}, errors.Wrap(errors.KindAcquisition, op, "failed to read image", err)
	}
	if limited.N <= 0 {
		return Image{}, reject(ReasonTooLarge,
			fmt.Sprintf("image exceeds maximum size of %d bytes", p.security.MaxFileSize))
	}

	decoded, err := p.validate(ctx, raw, declared)
	if err != nil {
		if r, ok := RejectionOf(err); ok && r.Reason == ReasonSuspicious {
			p.suspicious.Add(1)
		}
		return Image{}, err
	}

	source := input.Source
	if source == "" {
		source = SourceUpload
	}

	return Image{
		Bytes:      raw,
		Format:     decoded.Format,
		Width:      decoded.Width,
		Height:     decoded.Height,
		Size:       int64(len(raw)),
		Source:     source,
		Filename:   filepath.Base(input.Filename),
		AcquiredAt: time.Now().UTC(),
	}, nil
}

// validate runs the validator bounded by the configured timeout.
func (p *Pipeline) validate(ctx context.Context, raw []byte, declared string) (Decoded, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		decoded Decoded
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		d, err := p.validator.Check(raw, declared)
		done <- outcome{d, err}
	}()

	select {
	case res := <-done:
		return res.decoded, res.err
	case <-ctx.Done():
		return Decoded{}, errors.Wrap(errors.KindAcquisition, validateOperation, "image validation timed out",
			&Rejection{Reason: ReasonTimeout, Detail: ctx.Err().Error()})
	}
}

// Metrics returns a snapshot of pipeline counters.
func (p *Pipeline) Metrics() Metrics {
	return Metrics{
		TotalProcessed:    p.processed.Load(),
		UploadAccepted:    p.uploads.Load(),
		CameraAccepted:    p.captures.Load(),
		FailedValidations: p.failed.Load(),
		SecurityIncidents: p.suspicious.Load(),
	}
}

// FromBytes is a convenience wrapper for payloads already in memory.
func (p *Pipeline) FromBytes(ctx context.Context, data []byte, source Source, filename string) (Image, error) {
	return p.Process(ctx, Input{
		Reader:   bytes.NewReader(data),
		Filename: filename,
		Source:   source,
	})
}

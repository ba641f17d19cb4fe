// Package session implements the three-stage interaction state machine
// (INPUT -> PROCESS -> RESULT) and the service that drives it.
package session

import (
	"fmt"
	"strings"
	"time"

	domainimage "image-processor-go/internal/domain/image"
)

// Stage is the current phase of an interaction.
type Stage string

const (
	StageInput   Stage = "INPUT"
	StageProcess Stage = "PROCESS"
	StageResult  Stage = "RESULT"
)

// Valid reports whether s is one of the three known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageInput, StageProcess, StageResult:
		return true
	}
	return false
}

// Session holds everything collected during one interaction.
type Session struct {
	ID        string             `json:"id"`
	Stage     Stage              `json:"stage"`
	Image     *domainimage.Image `json:"image,omitempty"`
	Prompt    string             `json:"prompt,omitempty"`
	Response  string             `json:"response,omitempty"`
	Pending   bool               `json:"pending"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// New returns a fresh session at INPUT.
func New(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Stage:     StageInput,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Fresh reports whether s carries no collected data, i.e. it is
// indistinguishable from New apart from identity and timestamps.
func (s Session) Fresh() bool {
	return s.Stage == StageInput &&
		s.Image == nil &&
		s.Prompt == "" &&
		s.Response == "" &&
		!s.Pending &&
		s.LastError == ""
}

// HasImage reports whether a captured image is attached.
func (s Session) HasImage() bool {
	return !s.Image.Empty()
}

// Validate checks the per-stage invariants.
func (s Session) Validate() error {
	switch s.Stage {
	case StageInput:
		if s.Image != nil {
			return fmt.Errorf("stage %s must not carry an image", s.Stage)
		}
		if s.Response != "" {
			return fmt.Errorf("stage %s must not carry a response", s.Stage)
		}
		if s.Pending {
			return fmt.Errorf("stage %s cannot be pending", s.Stage)
		}
	case StageProcess:
		if !s.HasImage() {
			return fmt.Errorf("stage %s requires an image", s.Stage)
		}
		if s.Response != "" {
			return fmt.Errorf("stage %s must not carry a response", s.Stage)
		}
	case StageResult:
		if !s.HasImage() {
			return fmt.Errorf("stage %s requires an image", s.Stage)
		}
		if strings.TrimSpace(s.Response) == "" {
			return fmt.Errorf("stage %s requires a response", s.Stage)
		}
		if s.Pending {
			return fmt.Errorf("stage %s cannot be pending", s.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", s.Stage)
	}
	return nil
}

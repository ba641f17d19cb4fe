package session

import (
	stderrors "errors"
	"fmt"
	"strings"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/platform/errors"
)

// ErrIllegalTransition is the cause of every rejected (stage, action) pair.
var ErrIllegalTransition = stderrors.New("illegal transition")

// Action is an input to the state machine.
type Action interface {
	Name() string
}

// Acquired attaches a validated image.
type Acquired struct{ Image domainimage.Image }

// AcquireFailed records why an image could not be obtained.
type AcquireFailed struct{ Reason string }

// SetPrompt replaces the optional prompt.
type SetPrompt struct{ Prompt string }

// ProcessStarted marks a model call as outstanding.
type ProcessStarted struct{}

// ProcessSucceeded carries the model's answer.
type ProcessSucceeded struct{ Response string }

// ProcessFailed records a model failure; the image is kept for a retry.
type ProcessFailed struct{ Reason string }

// StartOver discards everything and returns to INPUT.
type StartOver struct{}

func (Acquired) Name() string         { return "acquired" }
func (AcquireFailed) Name() string    { return "acquire_failed" }
func (SetPrompt) Name() string        { return "set_prompt" }
func (ProcessStarted) Name() string   { return "process_started" }
func (ProcessSucceeded) Name() string { return "process_succeeded" }
func (ProcessFailed) Name() string    { return "process_failed" }
func (StartOver) Name() string        { return "start_over" }

const (
	// EmptyResponseMessage is recorded when the model answers with blank text.
	EmptyResponseMessage = "model returned an empty response"
	// InterruptedMessage is recorded when a pending call was lost before it finished.
	InterruptedMessage = "previous request was interrupted, please try again"
)

// Allowed reports whether action a may be applied in stage st. It does not
// look at the pending flag; Transition does.
func Allowed(st Stage, a Action) bool {
	switch a.(type) {
	case StartOver:
		return true
	case Acquired, AcquireFailed:
		return st == StageInput
	case SetPrompt, ProcessStarted, ProcessSucceeded, ProcessFailed:
		return st == StageProcess
	}
	return false
}

// Transition applies a to s and returns the next session. Rejected pairs
// return s unchanged together with an error. Timestamps are left to the caller.
func Transition(s Session, a Action) (Session, error) {
	if a == nil || !Allowed(s.Stage, a) {
		return s, illegal(s, a)
	}

	next := s
	switch act := a.(type) {
	case Acquired:
		if act.Image.Empty() {
			return s, errors.New(errors.KindAcquisition, "session.transition", "no image provided")
		}
		img := act.Image
		next.Stage = StageProcess
		next.Image = &img
		next.LastError = ""

	case AcquireFailed:
		next.LastError = act.Reason

	case SetPrompt:
		if s.Pending {
			return s, illegal(s, a)
		}
		next.Prompt = act.Prompt

	case ProcessStarted:
		if s.Pending {
			return s, illegal(s, a)
		}
		next.Pending = true
		next.LastError = ""

	case ProcessSucceeded:
		next.Pending = false
		if strings.TrimSpace(act.Response) == "" {
			next.LastError = EmptyResponseMessage
			break
		}
		next.Stage = StageResult
		next.Response = act.Response
		next.LastError = ""

	case ProcessFailed:
		next.Pending = false
		next.LastError = act.Reason

	case StartOver:
		next = New(s.ID, s.CreatedAt)
		next.UpdatedAt = s.UpdatedAt
	}

	if err := next.Validate(); err != nil {
		return s, errors.Wrap(errors.KindDomain, "session.transition", "transition broke session invariants", err)
	}
	return next, nil
}

func illegal(s Session, a Action) error {
	name := "<nil>"
	if a != nil {
		name = a.Name()
	}
	msg := fmt.Sprintf("cannot %s while in stage %s", name, s.Stage)
	if s.Pending {
		msg = fmt.Sprintf("cannot %s while a request is pending", name)
	}
	return errors.Wrap(errors.KindDomain, "session.transition", msg, ErrIllegalTransition)
}

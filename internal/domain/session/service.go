package session

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"image-processor-go/internal/domain/eventbus"
	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/vision"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/utils"
)

var (
	// ErrNotFound is returned by repositories for unknown or expired ids.
	ErrNotFound = stderrors.New("session not found")
	// ErrBusy is the cause returned when another action holds the session.
	ErrBusy = stderrors.New("session busy")
)

// Repository persists sessions between requests.
type Repository interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// Acquirer validates an incoming image.
type Acquirer interface {
	Process(ctx context.Context, input domainimage.Input) (domainimage.Image, error)
}

// Options wires the service collaborators.
type Options struct {
	Repo           Repository
	Images         Acquirer
	Vision         vision.Client
	Events         eventbus.Publisher
	Logger         *utils.Logger
	MaxPromptRunes int
	Now            func() time.Time
	NewID          func() string
}

// Service performs the side effects around Transition: image acquisition,
// the model call, persistence and events. Mutating calls on one session
// are serialised by a try-lock; a second concurrent call fails with ErrBusy.
type Service struct {
	repo      Repository
	images    Acquirer
	vision    vision.Client
	events    eventbus.Publisher
	logger    *utils.Logger
	maxPrompt int
	now       func() time.Time
	newID     func() string
	locks     *keyLock
}

// NewService validates options and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "session repository is required")
	}
	if opts.Images == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "image pipeline is required")
	}
	if opts.Vision == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "vision client is required")
	}
	if opts.Events == nil {
		opts.Events = eventbus.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	if opts.MaxPromptRunes <= 0 {
		opts.MaxPromptRunes = 2000
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Service{
		repo:      opts.Repo,
		images:    opts.Images,
		vision:    opts.Vision,
		events:    opts.Events,
		logger:    opts.Logger,
		maxPrompt: opts.MaxPromptRunes,
		now:       opts.Now,
		newID:     opts.NewID,
		locks:     newKeyLock(),
	}, nil
}

// Current loads the session for id, creating a fresh one when id is empty,
// unknown or expired. The returned session's ID may differ from id.
func (s *Service) Current(ctx context.Context, id string) (Session, error) {
	return s.load(ctx, id)
}

// Acquire runs the image pipeline and moves INPUT -> PROCESS. A rejected
// image leaves the stage at INPUT and records the reason.
func (s *Service) Acquire(ctx context.Context, id string, input domainimage.Input) (Session, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cur Session) (Session, error) {
		if !Allowed(cur.Stage, Acquired{}) {
			return cur, s.reject(cur, Acquired{}, illegal(cur, Acquired{}))
		}

		img, err := s.images.Process(ctx, input)
		if err != nil {
			next, applyErr := s.apply(ctx, cur, AcquireFailed{Reason: errors.MessageOf(err)})
			if applyErr != nil {
				return cur, applyErr
			}
			return next, errors.Wrap(errors.KindAcquisition, "session.acquire", "image could not be acquired", err)
		}
		return s.apply(ctx, cur, Acquired{Image: img})
	})
}

// SetPrompt stores the optional prompt in PROCESS.
func (s *Service) SetPrompt(ctx context.Context, id, prompt string) (Session, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cur Session) (Session, error) {
		return s.apply(ctx, cur, SetPrompt{Prompt: utils.SanitizePrompt(prompt, s.maxPrompt)})
	})
}

// Process optionally updates the prompt, then calls the model once.
// Success moves to RESULT. Failure stays in PROCESS with the image kept
// and the error recorded; there is no automatic retry.
func (s *Service) Process(ctx context.Context, id string, prompt *string) (Session, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cur Session) (Session, error) {
		if prompt != nil {
			next, err := s.apply(ctx, cur, SetPrompt{Prompt: utils.SanitizePrompt(*prompt, s.maxPrompt)})
			if err != nil {
				return cur, err
			}
			cur = next
		}

		cur, err := s.apply(ctx, cur, ProcessStarted{})
		if err != nil {
			return cur, err
		}

		event := eventbus.VisionEventData{
			SessionID:   cur.ID,
			PromptChars: len([]rune(cur.Prompt)),
			ImageBytes:  cur.Image.Size,
		}
		if d, ok := s.vision.(vision.Describer); ok {
			event.Model = d.Model()
		}
		s.events.PublishAsync(eventbus.EventVisionRequested, event)

		start := time.Now()
		text, callErr := s.vision.Generate(ctx, *cur.Image, cur.Prompt)
		event.Duration = time.Since(start)

		// The outcome is recorded even when the caller has gone away.
		saveCtx := context.WithoutCancel(ctx)
		if callErr != nil {
			callErr = errors.Wrap(errors.KindModel, "session.process", "model call failed", callErr)
			event.Error = errors.MessageOf(callErr)
			s.events.PublishAsync(eventbus.EventVisionFailed, event)

			next, err := s.apply(saveCtx, cur, ProcessFailed{Reason: errors.MessageOf(callErr)})
			if err != nil {
				cur.Pending = false
				return cur, err
			}
			return next, callErr
		}

		next, err := s.apply(saveCtx, cur, ProcessSucceeded{Response: text})
		if err != nil {
			cur.Pending = false
			return cur, err
		}
		if next.Stage != StageResult {
			emptyErr := vision.ErrEmptyResponse("session.process")
			event.Error = errors.MessageOf(emptyErr)
			s.events.PublishAsync(eventbus.EventVisionFailed, event)
			return next, emptyErr
		}
		s.events.PublishAsync(eventbus.EventVisionCompleted, event)
		return next, nil
	})
}

// StartOver resets the session to a fresh INPUT value, keeping its id.
func (s *Service) StartOver(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cur Session) (Session, error) {
		return s.apply(ctx, cur, StartOver{})
	})
}

// Image returns the captured image for display.
func (s *Service) Image(ctx context.Context, id string) (domainimage.Image, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return domainimage.Image{}, errors.Wrap(errors.KindDomain, "session.image", "session not found", err)
		}
		return domainimage.Image{}, errors.Wrap(errors.KindStorage, "session.image", "failed to load session", err)
	}
	if !cur.HasImage() {
		return domainimage.Image{}, errors.New(errors.KindDomain, "session.image", "no image captured yet")
	}
	return *cur.Image, nil
}

// mutate serialises fn per session id.
func (s *Service) mutate(ctx context.Context, id string, fn func(context.Context, Session) (Session, error)) (Session, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	unlock, ok := s.locks.TryLock(cur.ID)
	if !ok {
		busy := errors.Wrap(errors.KindDomain, "session.lock", "another action is already in progress", ErrBusy)
		s.publishRejected(cur, "busy", busy)
		return cur, busy
	}
	defer unlock()

	// Reload under the lock so a concurrent writer's result is not lost.
	if cur, err = s.load(ctx, cur.ID); err != nil {
		return Session{}, err
	}
	if cur.Pending {
		if cur, err = s.recoverPending(ctx, cur); err != nil {
			return cur, err
		}
	}
	return fn(ctx, cur)
}

// recoverPending clears a pending flag left behind by a call that no longer
// runs: while the lock is held no call can be outstanding for this id, so the
// flag survived a restart or a failed save.
func (s *Service) recoverPending(ctx context.Context, cur Session) (Session, error) {
	s.logger.WarnTag("Session", "recovering interrupted request: session=%s", cur.ID)
	return s.apply(ctx, cur, ProcessFailed{Reason: InterruptedMessage})
}

func (s *Service) load(ctx context.Context, id string) (Session, error) {
	if id != "" {
		cur, err := s.repo.Get(ctx, id)
		if err == nil {
			return cur, nil
		}
		if !stderrors.Is(err, ErrNotFound) {
			return Session{}, errors.Wrap(errors.KindStorage, "session.load", "failed to load session", err)
		}
	}

	fresh := New(s.newID(), s.now())
	if err := s.repo.Save(ctx, fresh); err != nil {
		return Session{}, errors.Wrap(errors.KindStorage, "session.create", "failed to create session", err)
	}
	s.events.PublishAsync(eventbus.EventSessionCreated, eventbus.SessionEventData{
		SessionID: fresh.ID,
		To:        string(fresh.Stage),
		At:        fresh.CreatedAt,
	})
	return fresh, nil
}

// apply runs Transition, stamps and persists the result, and publishes it.
func (s *Service) apply(ctx context.Context, cur Session, a Action) (Session, error) {
	next, err := Transition(cur, a)
	if err != nil {
		return cur, s.reject(cur, a, err)
	}
	next.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, next); err != nil {
		return cur, errors.Wrap(errors.KindStorage, "session.save", "failed to save session", err)
	}

	s.events.PublishAsync(eventbus.EventSessionTransition, eventbus.SessionEventData{
		SessionID: next.ID,
		Action:    a.Name(),
		From:      string(cur.Stage),
		To:        string(next.Stage),
		Error:     next.LastError,
		At:        next.UpdatedAt,
	})
	return next, nil
}

func (s *Service) reject(cur Session, a Action, err error) error {
	s.publishRejected(cur, a.Name(), err)
	return err
}

func (s *Service) publishRejected(cur Session, action string, err error) {
	s.events.PublishAsync(eventbus.EventSessionRejected, eventbus.SessionEventData{
		SessionID: cur.ID,
		Action:    action,
		From:      string(cur.Stage),
		To:        string(cur.Stage),
		Error:     errors.MessageOf(err),
		At:        s.now(),
	})
}

// IsBusy reports whether err means another action holds the session.
func IsBusy(err error) bool {
	return stderrors.Is(err, ErrBusy)
}

// IsIllegal reports whether err is a rejected transition.
func IsIllegal(err error) bool {
	return stderrors.Is(err, ErrIllegalTransition)
}

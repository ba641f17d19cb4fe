package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/platform/errors"
)

func testImage() domainimage.Image {
	return domainimage.Image{Bytes: []byte{1, 2, 3}, Format: "png", Width: 1, Height: 1, Size: 3}
}

func sessionAt(t *testing.T, stage Stage) Session {
	t.Helper()
	s := New("id-1", time.Unix(100, 0))
	var err error
	if stage == StageInput {
		return s
	}
	s, err = Transition(s, Acquired{Image: testImage()})
	require.NoError(t, err)
	if stage == StageProcess {
		return s
	}
	s, err = Transition(s, ProcessStarted{})
	require.NoError(t, err)
	s, err = Transition(s, ProcessSucceeded{Response: "a picture"})
	require.NoError(t, err)
	return s
}

func allActions() []Action {
	return []Action{
		Acquired{Image: testImage()},
		AcquireFailed{Reason: "bad file"},
		SetPrompt{Prompt: "describe"},
		ProcessStarted{},
		ProcessSucceeded{Response: "text"},
		ProcessFailed{Reason: "quota"},
		StartOver{},
	}
}

func TestTransitionTable(t *testing.T) {
	legal := map[Stage]map[string]Stage{
		StageInput: {
			"acquired":       StageProcess,
			"acquire_failed": StageInput,
			"start_over":     StageInput,
		},
		StageProcess: {
			"set_prompt":        StageProcess,
			"process_started":   StageProcess,
			"process_succeeded": StageResult,
			"process_failed":    StageProcess,
			"start_over":        StageInput,
		},
		StageResult: {
			"start_over": StageInput,
		},
	}

	for _, stage := range []Stage{StageInput, StageProcess, StageResult} {
		for _, action := range allActions() {
			t.Run(string(stage)+"/"+action.Name(), func(t *testing.T) {
				cur := sessionAt(t, stage)
				next, err := Transition(cur, action)

				want, ok := legal[stage][action.Name()]
				if !ok {
					require.Error(t, err)
					assert.True(t, IsIllegal(err))
					assert.True(t, errors.IsKind(err, errors.KindDomain))
					assert.Equal(t, cur, next, "rejected transition must leave the session untouched")
					return
				}
				require.NoError(t, err)
				assert.Equal(t, want, next.Stage)
				assert.NoError(t, next.Validate(), "invariants must hold after every transition")
			})
		}
	}
}

func TestInvariantsHoldAlongAnyActionSequence(t *testing.T) {
	// Apply every action in a fixed rotation for several rounds; any
	// accepted transition must produce a valid session.
	s := New("seq", time.Now())
	actions := allActions()
	for i := 0; i < 5*len(actions); i++ {
		a := actions[(i*3)%len(actions)]
		next, err := Transition(s, a)
		if err != nil {
			assert.Equal(t, s, next)
			continue
		}
		require.NoError(t, next.Validate(), "after %s from %s", a.Name(), s.Stage)
		s = next
	}
}

func TestAcquireFailedKeepsInputAndRecordsError(t *testing.T) {
	s := sessionAt(t, StageInput)
	next, err := Transition(s, AcquireFailed{Reason: "unsupported format"})
	require.NoError(t, err)
	assert.Equal(t, StageInput, next.Stage)
	assert.Nil(t, next.Image)
	assert.Equal(t, "unsupported format", next.LastError)

	next, err = Transition(next, Acquired{Image: testImage()})
	require.NoError(t, err)
	assert.Empty(t, next.LastError, "successful acquire clears the error")
}

func TestAcquiredRequiresImage(t *testing.T) {
	s := sessionAt(t, StageInput)
	next, err := Transition(s, Acquired{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAcquisition))
	assert.Equal(t, s, next)
}

func TestProcessFailedRetainsImage(t *testing.T) {
	s := sessionAt(t, StageProcess)
	s, err := Transition(s, ProcessStarted{})
	require.NoError(t, err)
	assert.True(t, s.Pending)

	next, err := Transition(s, ProcessFailed{Reason: "quota exceeded"})
	require.NoError(t, err)
	assert.Equal(t, StageProcess, next.Stage)
	assert.False(t, next.Pending)
	assert.NotNil(t, next.Image)
	assert.Equal(t, "quota exceeded", next.LastError)
}

func TestEmptyResponseIsTreatedAsFailure(t *testing.T) {
	s := sessionAt(t, StageProcess)
	s, _ = Transition(s, ProcessStarted{})

	next, err := Transition(s, ProcessSucceeded{Response: "  \n"})
	require.NoError(t, err)
	assert.Equal(t, StageProcess, next.Stage)
	assert.Equal(t, EmptyResponseMessage, next.LastError)
	assert.False(t, next.Pending)
}

func TestPendingBlocksPromptAndSecondStart(t *testing.T) {
	s := sessionAt(t, StageProcess)
	s, _ = Transition(s, ProcessStarted{})

	_, err := Transition(s, SetPrompt{Prompt: "late"})
	assert.True(t, IsIllegal(err))
	_, err = Transition(s, ProcessStarted{})
	assert.True(t, IsIllegal(err))

	reset, err := Transition(s, StartOver{})
	require.NoError(t, err)
	assert.True(t, reset.Fresh())
}

func TestStartOverIsIdempotentAndFresh(t *testing.T) {
	for _, stage := range []Stage{StageInput, StageProcess, StageResult} {
		t.Run(string(stage), func(t *testing.T) {
			s := sessionAt(t, stage)
			s.Prompt = ""
			once, err := Transition(s, StartOver{})
			require.NoError(t, err)
			twice, err := Transition(once, StartOver{})
			require.NoError(t, err)

			assert.Equal(t, once, twice)
			assert.True(t, once.Fresh())
			assert.Equal(t, s.ID, once.ID)
			fresh := New(s.ID, s.CreatedAt)
			assert.Equal(t, fresh.Stage, once.Stage)
			assert.Equal(t, fresh.Image, once.Image)
		})
	}
}

func TestAcquireThenResetRoundTrip(t *testing.T) {
	s := New("rt", time.Unix(1, 0))
	acquired, err := Transition(s, Acquired{Image: testImage()})
	require.NoError(t, err)
	acquired, err = Transition(acquired, SetPrompt{Prompt: "hello"})
	require.NoError(t, err)

	back, err := Transition(acquired, StartOver{})
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestValidateRejectsBrokenSessions(t *testing.T) {
	img := testImage()
	tests := []struct {
		name string
		s    Session
	}{
		{name: "input with image", s: Session{Stage: StageInput, Image: &img}},
		{name: "input with response", s: Session{Stage: StageInput, Response: "x"}},
		{name: "process without image", s: Session{Stage: StageProcess}},
		{name: "process with response", s: Session{Stage: StageProcess, Image: &img, Response: "x"}},
		{name: "result without response", s: Session{Stage: StageResult, Image: &img}},
		{name: "result without image", s: Session{Stage: StageResult, Response: "x"}},
		{name: "unknown stage", s: Session{Stage: "DONE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.s.Validate())
		})
	}
}

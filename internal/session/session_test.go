package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/loopforge/strudel-api/internal/history"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	generateFunc func(ctx context.Context, request *llm.Request) (*llm.Response, error)
	calls        int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, request *llm.Request) (*llm.Response, error) {
	p.calls++
	if p.generateFunc != nil {
		return p.generateFunc(ctx, request)
	}
	return &llm.Response{Code: "setcpm(132)\nstack(s(\"bd!4\")).play()"}, nil
}

type stubEngine struct {
	evalErr error
	calls   []string
}

func (e *stubEngine) Initialize(_ context.Context) error { return nil }

func (e *stubEngine) Evaluate(_ context.Context, code string) error {
	e.calls = append(e.calls, "eval:"+code)
	return e.evalErr
}

func (e *stubEngine) Hush() {
	e.calls = append(e.calls, "hush")
}

func newTestSession(provider llm.Provider, engine playback.Engine) *Session {
	store := history.New()
	controller := playback.NewController(func() playback.Engine { return engine })
	return New(provider, "test-model", store, controller, nil)
}

func TestGenerateAppendsAndPlays(t *testing.T) {
	provider := &stubProvider{}
	engine := &stubEngine{}
	s := newTestSession(provider, engine)

	rec, index, err := s.Generate(context.Background(), "dark techno")
	require.NoError(t, err)

	assert.Equal(t, 0, index)
	assert.Equal(t, "dark techno", rec.Prompt)
	assert.Equal(t, 132, rec.Tempo)
	assert.Equal(t, 0, s.Store().ActiveIndex())
	assert.True(t, s.Playing())

	// New generations blend over the current audio, no hush first.
	require.NotEmpty(t, engine.calls)
	assert.NotContains(t, engine.calls, "hush")
}

func TestGenerateEmptyPrompt(t *testing.T) {
	provider := &stubProvider{}
	s := newTestSession(provider, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 0, s.Store().Len())
}

func TestGenerateRefinementUsesActiveCode(t *testing.T) {
	var lastRequest *llm.Request
	provider := &stubProvider{
		generateFunc: func(_ context.Context, request *llm.Request) (*llm.Response, error) {
			lastRequest = request
			return &llm.Response{Code: fmt.Sprintf("setcpm(132) // v%d", len(request.Messages))}, nil
		},
	}
	s := newTestSession(provider, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "first")
	require.NoError(t, err)
	require.Len(t, lastRequest.Messages, 2)

	_, _, err = s.Generate(context.Background(), "more hats")
	require.NoError(t, err)

	// The second call carries the active pattern as refinement context.
	require.Len(t, lastRequest.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, lastRequest.Messages[1].Role)
	assert.Contains(t, lastRequest.Messages[2].Content, "Modify the code above: more hats")
	assert.Equal(t, 2, s.Store().Len())
}

func TestGenerateUpstreamFailureLeavesStoreUnchanged(t *testing.T) {
	failing := false
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			if failing {
				return nil, fmt.Errorf("%w: status 500", llm.ErrUpstream)
			}
			return &llm.Response{Code: "setcpm(130).play()"}, nil
		},
	}
	s := newTestSession(provider, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, s.EnableEvolve(60))
	require.True(t, s.Scheduler().Enabled())

	failing = true
	_, _, err = s.Generate(context.Background(), "break it")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUpstream)

	// The failed attempt leaves no trace in the history and the active
	// pattern keeps playing, but auto-evolve disarms.
	assert.Equal(t, 1, s.Store().Len())
	assert.Equal(t, 0, s.Store().ActiveIndex())
	assert.True(t, s.Playing())
	assert.False(t, s.Scheduler().Enabled())
}

func TestGenerateDiscardedAfterClear(t *testing.T) {
	s := newTestSession(nil, &stubEngine{})
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			// Simulates the user clearing the session while the relay call
			// is in flight.
			s.Clear()
			return &llm.Response{Code: "setcpm(130).play()"}, nil
		},
	}
	s.provider = provider

	_, _, err := s.Generate(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, 0, s.Store().Len())
	assert.False(t, s.Playing())
}

func TestGenerateDiscardedAfterStop(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.True(t, s.Playing())

	s.provider = &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			// Simulates the user hitting stop while the relay call is in
			// flight.
			s.Stop()
			return &llm.Response{Code: "setcpm(130).play()"}, nil
		},
	}

	_, _, err = s.Generate(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrSuperseded)

	// The late result must not resurrect playback or touch the history.
	assert.False(t, s.Playing())
	assert.Equal(t, 1, s.Store().Len())
	assert.Equal(t, 0, s.Store().ActiveIndex())
}

func TestEvolveResultDiscardedAfterStop(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, s.EnableEvolve(60))

	s.provider = &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			s.Stop()
			return &llm.Response{Code: "setcpm(130).play()"}, nil
		},
	}

	// A stop during the in-flight evolve step wins: the step is skipped, not
	// failed, and its result never reaches the engine.
	require.NoError(t, s.evolveStep())
	assert.False(t, s.Playing())
	assert.False(t, s.Scheduler().Enabled())
	assert.Equal(t, 1, s.Store().Len())
}

func TestGenerateBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			close(started)
			<-release
			return &llm.Response{Code: "setcpm(130).play()"}, nil
		},
	}
	s := newTestSession(provider, &stubEngine{})

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Generate(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, _, err := s.Generate(context.Background(), "impatient")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Store().Len())
}

func TestGenerateEngineFailureKeepsRecord(t *testing.T) {
	engine := &stubEngine{evalErr: playback.ErrEngine}
	s := newTestSession(&stubProvider{}, engine)

	rec, index, err := s.Generate(context.Background(), "dark techno")
	require.Error(t, err)
	assert.ErrorIs(t, err, playback.ErrEngine)

	// The generation itself succeeded; only playback failed.
	assert.Equal(t, 0, index)
	assert.NotEmpty(t, rec.Code)
	assert.Equal(t, 1, s.Store().Len())
	assert.False(t, s.Playing())
}

func TestGenerateEngineFailureDisarmsEvolve(t *testing.T) {
	engine := &stubEngine{}
	s := newTestSession(&stubProvider{}, engine)

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, s.EnableEvolve(60))

	engine.evalErr = playback.ErrEngine
	_, _, err = s.Generate(context.Background(), "next")
	require.Error(t, err)
	assert.ErrorIs(t, err, playback.ErrEngine)

	// Playback stopped with the engine failure, so auto-evolve must not stay
	// armed.
	assert.False(t, s.Playing())
	assert.False(t, s.Scheduler().Enabled())
}

func TestPlaySwitchesActiveRecord(t *testing.T) {
	engine := &stubEngine{}
	s := newTestSession(&stubProvider{}, engine)

	_, _, err := s.Generate(context.Background(), "first")
	require.NoError(t, err)
	_, _, err = s.Generate(context.Background(), "second")
	require.NoError(t, err)
	require.Equal(t, 1, s.Store().ActiveIndex())

	engine.calls = nil
	rec, err := s.Play(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "first", rec.Prompt)
	assert.Equal(t, 0, s.Store().ActiveIndex())

	// Explicit playback of a history entry silences before evaluating.
	require.Len(t, engine.calls, 2)
	assert.Equal(t, "hush", engine.calls[0])
}

func TestPlayInvalidIndex(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	_, err := s.Play(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoSuchRecord)
}

func TestStopDisarmsEvolve(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, s.EnableEvolve(60))

	s.Stop()

	assert.False(t, s.Playing())
	assert.False(t, s.Scheduler().Enabled())
	// History survives a stop.
	assert.Equal(t, 1, s.Store().Len())
}

func TestClearEmptiesHistory(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)

	s.Clear()

	assert.Equal(t, 0, s.Store().Len())
	assert.Equal(t, -1, s.Store().ActiveIndex())
	assert.False(t, s.Playing())
}

func TestEnableEvolveRequiresPlayback(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	err := s.EnableEvolve(60)
	assert.ErrorIs(t, err, ErrNotPlaying)

	_, _, genErr := s.Generate(context.Background(), "seed")
	require.NoError(t, genErr)
	s.Stop()

	err = s.EnableEvolve(60)
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestEnableEvolveRejectsBadInterval(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	assert.ErrorIs(t, s.EnableEvolve(0), ErrBadInterval)
	assert.ErrorIs(t, s.EnableEvolve(90), ErrBadInterval)
	assert.ErrorIs(t, s.SetEvolveInterval(45), ErrBadInterval)
}

func TestEvolveStepRunsRefinement(t *testing.T) {
	var requests []*llm.Request
	provider := &stubProvider{
		generateFunc: func(_ context.Context, request *llm.Request) (*llm.Response, error) {
			requests = append(requests, request)
			return &llm.Response{Code: "setcpm(132).play()"}, nil
		},
	}
	s := newTestSession(provider, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)

	require.NoError(t, s.evolveStep())

	// The evolve step refines the active pattern with a catalog instruction.
	require.Len(t, requests, 2)
	last := requests[1]
	require.Len(t, last.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, last.Messages[1].Role)
	assert.Equal(t, 2, s.Store().Len())
}

func TestEvolveStepFailurePropagates(t *testing.T) {
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			return nil, fmt.Errorf("%w: status 502", llm.ErrUpstream)
		},
	}
	s := newTestSession(provider, &stubEngine{})

	err := s.evolveStep()
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUpstream)
}

func TestStatusSnapshot(t *testing.T) {
	s := newTestSession(&stubProvider{}, &stubEngine{})

	status := s.Status()
	assert.False(t, status.Playing)
	assert.Equal(t, -1, status.ActiveIndex)
	assert.Equal(t, 0, status.HistoryLength)
	assert.Equal(t, "disarmed", status.Evolve.State)

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	require.NoError(t, s.EnableEvolve(120))

	status = s.Status()
	assert.True(t, status.Playing)
	assert.Equal(t, 0, status.ActiveIndex)
	assert.Equal(t, 1, status.HistoryLength)
	assert.True(t, status.Evolve.Enabled)
	assert.Equal(t, "armed", status.Evolve.State)
	assert.Equal(t, 120, status.Evolve.IntervalSeconds)

	s.DisableEvolve()
	assert.False(t, s.Status().Evolve.Enabled)
}

func TestEvolveEndToEnd(t *testing.T) {
	// Full loop with a real (short) timer: seed, arm, wait for one evolution.
	generated := make(chan struct{}, 8)
	provider := &stubProvider{
		generateFunc: func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
			select {
			case generated <- struct{}{}:
			default:
			}
			return &llm.Response{Code: "setcpm(132).play()"}, nil
		},
	}
	s := newTestSession(provider, &stubEngine{})

	_, _, err := s.Generate(context.Background(), "seed")
	require.NoError(t, err)
	<-generated

	s.Scheduler().Arm(20 * time.Millisecond)

	select {
	case <-generated:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-evolve never fired")
	}

	s.Stop()
	assert.False(t, s.Scheduler().Enabled())
	assert.GreaterOrEqual(t, s.Store().Len(), 2)
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{ErrEmptyPrompt, ErrBusy, ErrSuperseded, ErrNoSuchRecord, ErrNotPlaying, ErrBadInterval}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}

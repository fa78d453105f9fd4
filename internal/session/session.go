// Package session orchestrates the generation flow: compose a prompt, relay
// it to the completion provider, record the result, and drive playback and
// the auto-evolve scheduler. It is the Go rendition of the original
// single-threaded event loop: every state mutation runs under one mutex, so
// user actions, network callbacks, and timer callbacks never interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loopforge/strudel-api/internal/evolve"
	"github.com/loopforge/strudel-api/internal/history"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/logger"
	"github.com/loopforge/strudel-api/internal/metrics"
	"github.com/loopforge/strudel-api/internal/observability"
	"github.com/loopforge/strudel-api/internal/playback"
	"github.com/loopforge/strudel-api/internal/prompt"
)

var (
	// ErrEmptyPrompt rejects blank instructions before any composition.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrBusy rejects a generation while another is in flight. Only one
	// request is ever pending at a time.
	ErrBusy = errors.New("a generation is already in flight")
	// ErrSuperseded marks a relay result discarded because the session was
	// stopped or cleared while the request was in flight.
	ErrSuperseded = errors.New("generation superseded by stop or clear")
	// ErrNoSuchRecord rejects playback of an index outside the history.
	ErrNoSuchRecord = errors.New("no such history record")
	// ErrNotPlaying rejects arming auto-evolve while playback is stopped or
	// nothing is active.
	ErrNotPlaying = errors.New("auto-evolve requires an active, playing pattern")
	// ErrBadInterval rejects evolve periods outside the fixed choices.
	ErrBadInterval = errors.New("interval must be one of 60, 120, 180, 300 seconds")
)

// Generation source labels for metrics.
const (
	sourceUser   = "user"
	sourceEvolve = "evolve"
)

// Session owns the per-process pattern state: history, playback, and the
// auto-evolve scheduler.
type Session struct {
	provider   llm.Provider
	model      string
	store      *history.Store
	controller *playback.Controller
	scheduler  *evolve.Scheduler
	cloudwatch *metrics.Client
	sentry     *metrics.SentryMetrics

	mu sync.Mutex // serializes state mutations (apply phase, play, stop, clear)
	// epoch counts stop/clear actions. A generation captures it before the
	// relay call; a mismatch on return means the user superseded the request.
	epoch      uint64
	genMu      sync.Mutex
	generating bool
}

// New creates a session around the given provider, model, and playback
// controller.
func New(provider llm.Provider, model string, store *history.Store, controller *playback.Controller, cw *metrics.Client) *Session {
	s := &Session{
		provider:   provider,
		model:      model,
		store:      store,
		controller: controller,
		cloudwatch: cw,
		sentry:     metrics.NewSentryMetrics(),
	}
	s.scheduler = evolve.NewScheduler(s.evolveStep)
	return s
}

// Scheduler exposes the evolve scheduler for status reads.
func (s *Session) Scheduler() *evolve.Scheduler {
	return s.scheduler
}

// Store exposes the history store for reads.
func (s *Session) Store() *history.Store {
	return s.store
}

// Playing reports the playback state.
func (s *Session) Playing() bool {
	return s.controller.Playing()
}

// Generate runs one full user-initiated generation: compose with the active
// code as refinement context, relay, append + activate, and auto-play with
// the blend policy (no hush first, so the new pattern overlaps the old).
func (s *Session) Generate(ctx context.Context, instruction string) (history.Record, int, error) {
	return s.generate(ctx, instruction, sourceUser)
}

func (s *Session) generate(ctx context.Context, instruction string, source string) (history.Record, int, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return history.Record{}, -1, ErrEmptyPrompt
	}

	if err := s.beginGeneration(); err != nil {
		return history.Record{}, -1, err
	}
	defer s.endGeneration()

	// Capture the session token and stop epoch before suspending on the
	// network call. If the user clears the history or stops playback while
	// the request is in flight, the mismatch below discards the stale result
	// instead of resurrecting playback.
	s.mu.Lock()
	token := s.store.Token()
	epoch := s.epoch
	currentCode, _ := s.store.CurrentCode()
	s.mu.Unlock()

	messages := prompt.Compose(instruction, currentCode)

	trace := observability.GetClient().StartTrace(ctx, "pattern.generate", map[string]interface{}{
		"source": source,
		"model":  s.model,
	})
	defer trace.Finish()
	gen := trace.Generation("completion", nil)
	defer gen.Finish()

	startTime := time.Now()
	resp, err := s.provider.Generate(ctx, &llm.Request{Model: s.model, Messages: messages})
	duration := time.Since(startTime)
	metrics.GenerationDuration.Observe(duration.Seconds())
	s.sentry.RecordGenerationDuration(ctx, duration, err == nil)

	if err != nil {
		logger.Error("Generation failed", err, logger.Fields{"model": s.model, "source": source})
		gen.SetLevel("ERROR")
		metrics.GenerationsTotal.WithLabelValues(source, "upstream_error").Inc()
		s.recordCloudwatch(false, 0, duration)
		// A failed relay disarms auto-evolve rather than retry-looping.
		s.scheduler.Disarm()
		metrics.SetEvolveArmed(false)
		return history.Record{}, -1, err
	}

	gen.LogCompletion(s.model, messages, resp.Code, resp.Usage)
	s.sentry.RecordTokenUsage(ctx, s.model, resp.Usage.TotalTokens, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	s.recordCloudwatch(true, resp.Usage.TotalTokens, duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Token() != token || s.epoch != epoch {
		// The user stopped or cleared the session while this request was in
		// flight.
		logger.Warn("Discarding stale generation result", logger.Fields{"source": source})
		return history.Record{}, -1, ErrSuperseded
	}

	rec := s.store.NewRecord(instruction, resp.Code, llm.ExtractTempo(resp.Code))
	index := s.store.Append(rec)
	s.store.SetActive(index)
	metrics.HistoryLength.Set(float64(s.store.Len()))
	metrics.GenerationsTotal.WithLabelValues(source, "success").Inc()

	// Auto-play without silencing first: the new pattern blends with
	// whatever is already sounding.
	if err := s.controller.Blend(ctx, resp.Code); err != nil {
		metrics.GenerationsTotal.WithLabelValues(source, "engine_error").Inc()
		metrics.SetPlaybackActive(false)
		// Playback just stopped, so an armed scheduler must not keep firing.
		s.scheduler.Disarm()
		metrics.SetEvolveArmed(false)
		return rec, index, fmt.Errorf("auto-play: %w", err)
	}
	metrics.SetPlaybackActive(true)

	return rec, index, nil
}

// Play loads the history record at index into the engine. Explicit play
// silences first: the user is deliberately switching context.
func (s *Session) Play(ctx context.Context, index int) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.store.Record(index)
	if !ok {
		return history.Record{}, ErrNoSuchRecord
	}

	if err := s.controller.Play(ctx, rec.Code); err != nil {
		metrics.SetPlaybackActive(false)
		return history.Record{}, err
	}

	s.store.SetActive(index)
	metrics.SetPlaybackActive(true)
	return rec, nil
}

// Stop silences playback and disarms auto-evolve. Pending evolve timers are
// cancelled immediately; an in-flight relay result will be discarded on
// arrival if the session is also cleared.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	s.epoch++
	s.controller.Stop()
	s.scheduler.Disarm()
	metrics.SetPlaybackActive(false)
	metrics.SetEvolveArmed(false)
}

// Clear stops playback, disarms auto-evolve, and empties the history. The
// store's token bump invalidates any in-flight generation.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.store.Clear()
	metrics.HistoryLength.Set(0)
}

// EnableEvolve arms the auto-evolve scheduler. Only effective while a record
// is active and playing; otherwise no timers start.
func (s *Session) EnableEvolve(intervalSeconds int) error {
	if !evolve.ValidInterval(intervalSeconds) {
		return ErrBadInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.controller.Playing() || s.store.ActiveIndex() < 0 {
		return ErrNotPlaying
	}

	s.scheduler.Arm(time.Duration(intervalSeconds) * time.Second)
	metrics.SetEvolveArmed(true)
	return nil
}

// SetEvolveInterval reconfigures the evolve period. While armed this cancels
// the pending deadline and restarts a full-length countdown.
func (s *Session) SetEvolveInterval(intervalSeconds int) error {
	if !evolve.ValidInterval(intervalSeconds) {
		return ErrBadInterval
	}
	s.scheduler.SetInterval(time.Duration(intervalSeconds) * time.Second)
	return nil
}

// DisableEvolve disarms the scheduler.
func (s *Session) DisableEvolve() {
	s.scheduler.Disarm()
	metrics.SetEvolveArmed(false)
}

// evolveStep is invoked by the scheduler's deadline. It picks one catalog
// instruction and runs the normal generation path with the active code as
// context. A returned error disarms the scheduler.
func (s *Session) evolveStep() error {
	instruction := prompt.PickEvolveInstruction()
	logger.Info("Auto-evolve firing", logger.Fields{"instruction": instruction})

	_, _, err := s.generate(context.Background(), instruction, sourceEvolve)
	switch {
	case err == nil:
		s.sentry.RecordEvolveRun(true)
		return nil
	case errors.Is(err, ErrBusy), errors.Is(err, ErrSuperseded):
		// A user action won the race; skip this round without failing.
		return nil
	default:
		s.sentry.RecordEvolveRun(false)
		return err
	}
}

// Status is a point-in-time snapshot for the UI.
type Status struct {
	Playing       bool         `json:"playing"`
	ActiveIndex   int          `json:"active_index"`
	HistoryLength int          `json:"history_length"`
	Evolve        EvolveStatus `json:"evolve"`
}

// EvolveStatus describes the scheduler.
type EvolveStatus struct {
	Enabled          bool   `json:"enabled"`
	State            string `json:"state"`
	IntervalSeconds  int    `json:"interval_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// Status returns the current snapshot.
func (s *Session) Status() Status {
	return Status{
		Playing:       s.controller.Playing(),
		ActiveIndex:   s.store.ActiveIndex(),
		HistoryLength: s.store.Len(),
		Evolve: EvolveStatus{
			Enabled:          s.scheduler.Enabled(),
			State:            s.scheduler.State().String(),
			IntervalSeconds:  int(s.scheduler.Interval() / time.Second),
			RemainingSeconds: s.scheduler.Remaining(),
		},
	}
}

func (s *Session) beginGeneration() error {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generating {
		return ErrBusy
	}
	s.generating = true
	return nil
}

func (s *Session) endGeneration() {
	s.genMu.Lock()
	s.generating = false
	s.genMu.Unlock()
}

func (s *Session) recordCloudwatch(success bool, totalTokens int, duration time.Duration) {
	if s.cloudwatch != nil {
		s.cloudwatch.RecordGeneration(s.model, success, totalTokens, duration)
	}
}

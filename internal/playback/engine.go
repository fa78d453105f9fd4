// Package playback bridges the session history and the external Strudel
// audio engine. The engine itself is an external collaborator; this package
// never schedules or synthesizes audio.
package playback

import (
	"context"
	"errors"
)

// ErrEngine marks a failure of the external audio engine (initialization or
// pattern evaluation). Handlers map it to a generic user-facing message.
var ErrEngine = errors.New("audio engine failed")

// Engine is the surface this service needs from the external pattern engine.
type Engine interface {
	// Initialize performs the one-time engine setup. Idempotent-once: the
	// controller calls it lazily and memoizes the result.
	Initialize(ctx context.Context) error

	// Evaluate schedules/plays the given pattern source. May fail on invalid
	// source.
	Evaluate(ctx context.Context, code string) error

	// Hush silences all currently playing patterns synchronously.
	Hush()
}

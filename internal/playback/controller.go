package playback

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Controller owns the audio engine handle. Initialization is lazy and
// memoized: the first operation that needs the engine runs the one-time
// setup; a failed setup leaves the handle unset so a later action retries.
// No other component touches the engine directly.
type Controller struct {
	newEngine func() Engine

	mu      sync.Mutex
	engine  Engine
	playing bool
}

// NewController creates a controller. newEngine constructs the engine on
// first demand.
func NewController(newEngine func() Engine) *Controller {
	return &Controller{newEngine: newEngine}
}

// Play silences current audio, then evaluates the given pattern. Used for
// explicit Play/Restart on a history entry, where the user is deliberately
// switching context.
func (c *Controller) Play(ctx context.Context, code string) error {
	return c.evaluate(ctx, code, true)
}

// Blend evaluates the pattern without silencing first, so a freshly
// generated pattern can overlap whatever is already sounding (smooth
// transition policy for new generations).
func (c *Controller) Blend(ctx context.Context, code string) error {
	return c.evaluate(ctx, code, false)
}

func (c *Controller) evaluate(ctx context.Context, code string, hushFirst bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	engine, err := c.engineLocked(ctx)
	if err != nil {
		return err
	}

	if hushFirst {
		engine.Hush()
	}

	if err := engine.Evaluate(ctx, code); err != nil {
		c.playing = false
		return fmt.Errorf("evaluate pattern: %w", err)
	}

	c.playing = true
	return nil
}

// Stop silences all audio and marks playback stopped. Safe to call when the
// engine was never initialized.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		c.engine.Hush()
	}
	c.playing = false
}

// Playing reports whether a pattern is currently loaded and sounding.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Close tears down the engine process if one was started.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if closer, ok := c.engine.(interface{ Close() }); ok {
		closer.Close()
	}
	c.engine = nil
	c.playing = false
}

// engineLocked returns the memoized engine, initializing it on first use.
func (c *Controller) engineLocked(ctx context.Context) (Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}

	engine := c.newEngine()
	if err := engine.Initialize(ctx); err != nil {
		// Leave c.engine unset so the next action retries initialization.
		log.Printf("❌ Audio engine initialization failed: %v", err)
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	c.engine = engine
	return engine, nil
}

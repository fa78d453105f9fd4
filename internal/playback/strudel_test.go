package playback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrudelEngineNoCommand(t *testing.T) {
	engine := NewStrudelEngine("")

	err := engine.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
}

func TestStrudelEngineBadCommand(t *testing.T) {
	engine := NewStrudelEngine("definitely-not-a-real-binary-xyz")

	err := engine.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)

	// A failed start leaves the engine unstarted, so Evaluate refuses too.
	err = engine.Evaluate(context.Background(), "setcpm(132).play()")
	assert.ErrorIs(t, err, ErrEngine)
}

func TestStrudelEngineEvaluateBeforeInitialize(t *testing.T) {
	engine := NewStrudelEngine("cat")

	err := engine.Evaluate(context.Background(), "setcpm(132).play()")
	assert.ErrorIs(t, err, ErrEngine)
}

func TestStrudelEngineLifecycle(t *testing.T) {
	// cat stands in for the REPL: it reads stdin until the pipe closes.
	engine := NewStrudelEngine("cat")

	require.NoError(t, engine.Initialize(context.Background()))
	// Second Initialize is a no-op.
	require.NoError(t, engine.Initialize(context.Background()))

	require.NoError(t, engine.Evaluate(context.Background(), "setcpm(132).play()"))
	engine.Hush()

	engine.Close()

	// After Close the engine is unstarted again.
	err := engine.Evaluate(context.Background(), "setcpm(132).play()")
	assert.ErrorIs(t, err, ErrEngine)
}

func TestStrudelEngineCommandParsing(t *testing.T) {
	engine := NewStrudelEngine("strudel repl --headless")
	assert.Equal(t, "strudel", engine.command)
	assert.Equal(t, []string{"repl", "--headless"}, engine.args)
}

package prompt

import (
	"testing"

	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeFreshGeneration(t *testing.T) {
	messages := Compose("dark minimal techno", "")

	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, SystemPrompt, messages[0].Content)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
	assert.Equal(t, "dark minimal techno", messages[1].Content)
}

func TestComposeRefinement(t *testing.T) {
	current := "setcpm(132)\nstack(s(\"bd!4\")).play()"
	messages := Compose("add more hats", current)

	require.Len(t, messages, 3)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)

	// The prior pattern goes in verbatim as an assistant turn so the model
	// refines it instead of starting over.
	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
	assert.Equal(t, current, messages[1].Content)

	assert.Equal(t, llm.RoleUser, messages[2].Role)
	assert.Equal(t, "Modify the code above: add more hats", messages[2].Content)
}

func TestComposeTrimsInstruction(t *testing.T) {
	messages := Compose("  acid line  ", "")
	require.Len(t, messages, 2)
	assert.Equal(t, "acid line", messages[1].Content)
}

func TestComposeSystemPromptAlwaysFirst(t *testing.T) {
	for _, current := range []string{"", "setcpm(120).play()"} {
		messages := Compose("anything", current)
		require.NotEmpty(t, messages)
		assert.Equal(t, llm.RoleSystem, messages[0].Role)
	}
}

func TestPickEvolveInstruction(t *testing.T) {
	catalog := EvolveInstructions()
	require.NotEmpty(t, catalog)

	for range 50 {
		picked := PickEvolveInstruction()
		assert.Contains(t, catalog, picked)
	}
}

func TestEvolveInstructionsReturnsCopy(t *testing.T) {
	first := EvolveInstructions()
	first[0] = "mutated"

	second := EvolveInstructions()
	assert.NotEqual(t, "mutated", second[0])
}

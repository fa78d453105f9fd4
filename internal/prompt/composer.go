package prompt

import (
	"strings"

	"github.com/loopforge/strudel-api/internal/llm"
)

// Compose builds the chat transcript for a generation request. Pure function,
// no side effects.
//
// Without currentCode the transcript is system + user instruction. With
// currentCode the prior pattern goes in as an assistant turn followed by a
// user turn asking to modify it, so the model refines instead of starting
// over. Callers reject empty/whitespace instructions before composing.
func Compose(instruction, currentCode string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
	}

	if currentCode != "" {
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: currentCode},
			llm.Message{Role: llm.RoleUser, Content: "Modify the code above: " + strings.TrimSpace(instruction)},
		)
		return messages
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: strings.TrimSpace(instruction)})
}

package conversation

import (
	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

// BuildContext assembles the bounded message list for one provider call:
// system preamble, then at most maxHistory of the most recent prior turns
// (oldest first), then the current user message. The user message is included
// in-memory; persisting it is the caller's job.
//
// Pure function: no I/O, input slices are not modified.
func BuildContext(systemPrompt string, history []transcript.Message, userMessage string, maxHistory int) []llm.Message {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: string(transcript.RoleSystem), Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: string(transcript.RoleUser), Content: userMessage})

	return messages
}

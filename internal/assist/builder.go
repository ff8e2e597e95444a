package assist

import (
	"encoding/json"
	"strings"
)

// Message is a single chat turn in the outbound request.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// DefaultSystemMessage opens every chat request unless the caller overrides it.
const DefaultSystemMessage = "You are a helpful assistant. Provide clear, concise answers."

const contextMarker = "Context: "

// BuildMessages assembles the ordered message list: a system preamble, an
// optional context system message, and the trimmed user prompt.
//
// Context that parses as JSON is serialized verbatim; anything else is wrapped
// as {"text": context} rather than rejected.
func BuildMessages(prompt, context, systemOverride string) ([]Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	system := systemOverride
	if system == "" {
		system = DefaultSystemMessage
	}

	messages := []Message{{Role: "system", Content: system}}

	if context != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: contextMarker + normalizeContext(context),
		})
	}

	messages = append(messages, Message{Role: "user", Content: prompt})
	return messages, nil
}

// normalizeContext returns a JSON serialization of the context: verbatim when
// it is already valid JSON, wrapped as {"text": ...} otherwise.
func normalizeContext(context string) string {
	var parsed any
	if err := json.Unmarshal([]byte(context), &parsed); err == nil {
		out, err := json.Marshal(parsed)
		if err == nil {
			return string(out)
		}
	}
	wrapped, _ := json.Marshal(map[string]string{"text": context})
	return string(wrapped)
}

// Package llm is forge's boundary to the language model. The model is an
// opaque capability, complete(system, messages, json) -> text, reached through
// a provider CLI. Callers that need structured output use CompleteJSON, which
// repairs malformed replies and feeds parse errors back to the model.
package llm

import (
	"context"
	"strings"
)

// Message is one turn of a conversation.
type Message struct {
	// Role is "user" or "assistant".
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single model completion request.
type Request struct {
	// Node names the workflow node issuing the request. It is used for logging
	// and by test fakes to route scripted replies.
	Node string

	System   string
	Messages []Message

	// JSON asks the model to answer with a single JSON value.
	JSON bool
}

// Client completes requests. Implementations must be safe for concurrent use
// by independent sessions.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// User is shorthand for a user message.
func User(content string) Message {
	return Message{Role: "user", Content: content}
}

// Assistant is shorthand for an assistant message.
func Assistant(content string) Message {
	return Message{Role: "assistant", Content: content}
}

const jsonInstruction = "Respond with a single valid JSON value and nothing else. Do not wrap it in prose."

// RenderPrompt flattens the messages into a single transcript for CLIs that
// accept one prompt on stdin.
func RenderPrompt(req Request) string {
	var b strings.Builder
	if len(req.Messages) == 1 && req.Messages[0].Role == "user" {
		b.WriteString(req.Messages[0].Content)
	} else {
		for i, m := range req.Messages {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("### ")
			b.WriteString(m.Role)
			b.WriteString("\n")
			b.WriteString(m.Content)
		}
	}
	if req.JSON {
		b.WriteString("\n\n")
		b.WriteString(jsonInstruction)
	}
	return b.String()
}

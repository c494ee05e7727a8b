package llm

import (
	"context"
	"fmt"

	"github.com/mrz1836/forge/internal/jsonrepair"
)

// CompleteJSON asks the model for JSON and decodes it into T. A reply that
// cannot be decoded, or that validate rejects, is fed back to the model with
// the error and the call repeats until attempts is used up. Invocation
// failures are returned immediately since the client has already retried them.
func CompleteJSON[T any](ctx context.Context, c Client, req Request, attempts int, validate func(T) error) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	req.JSON = true
	messages := append([]Message(nil), req.Messages...)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req.Messages = messages

		text, err := c.Complete(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			me := AsModelError(req.Node, err)
			if me.Kind != KindEmpty {
				return zero, me
			}
			lastErr = me
			messages = append(messages, User("Your previous reply was empty. "+jsonInstruction))
			continue
		}

		value, err := jsonrepair.Decode[T](text)
		if err == nil && validate != nil {
			err = validate(value)
		}
		if err == nil {
			return value, nil
		}

		lastErr = err
		messages = append(messages, Assistant(text), User(feedback(err)))
	}

	return zero, &ModelError{
		Node:     req.Node,
		Kind:     KindExhausted,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func feedback(err error) string {
	return fmt.Sprintf("Your previous reply could not be used: %v\nCorrect it and answer again. %s", err, jsonInstruction)
}

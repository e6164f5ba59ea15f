package intel

import "context"

// Completer issues one chat-completion round trip against the remote model.
// Implementations own retry/backoff for rate limiting; each call is
// independent and stateless.
type Completer interface {
	Complete(ctx context.Context, req *ChatRequest) (*ChatResult, error)
}

// ChatMessage is a single role/content message in a completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is the model-agnostic input to a Completer.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// FinishLength is the finish reason reported when the response was cut off
// by the max-token limit. Non-fatal: the (possibly truncated) content is
// still used.
const FinishLength = "length"

// ChatResult is the extracted first completion of a response.
type ChatResult struct {
	Content      string
	Reasoning    string
	FinishReason string
}

// Truncated reports whether the response hit the max-token limit.
func (r *ChatResult) Truncated() bool {
	return r.FinishReason == FinishLength
}

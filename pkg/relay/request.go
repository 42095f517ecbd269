package relay

// DefaultModel is used when a chat request does not name a model.
const DefaultModel = "gpt-4o-mini"

// ChatRequest is the body accepted by the chat endpoint and forwarded to the
// backend's /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// ChatResponse is the normalized envelope returned for textual replies.
type ChatResponse struct {
	Response string `json:"response"`
}

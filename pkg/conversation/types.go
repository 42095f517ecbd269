// Package conversation manages the client side of a chat session: the ordered
// message history, the single pending attachment, the send state machine and
// the image handles owned by assistant messages.
//
// A send is atomic from the caller's point of view. It appends the user
// message, makes one relay call, then appends exactly one assistant message
// (a reply, a chart, or an apology) before returning to Idle. Only one send
// may be in flight; Close cancels it and releases every image handle.
package conversation

import (
	"context"
	"time"

	"github.com/stevejgoodman/hotmesscoach/pkg/blob"
	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the send state of a conversation.
type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	default:
		return "unknown"
	}
}

const (
	// ChartText accompanies every image reply.
	ChartText = "Here's your chart:"
	// ApologyText replaces any failed send.
	ApologyText = "Oops! Something went wrong. Please try again."
	// EmptyReplyText is shown when the relay answers with an empty response.
	EmptyReplyText = "Sorry, I encountered an error. Please try again."
	// DefaultGreeting opens a new conversation when WithGreeting is used
	// without text.
	DefaultGreeting = "Hey there! 👋 I'm your Hot Mess Coach - here to help you untangle life's chaos and get things organized. What's on your mind today?"
)

// Message is one entry in the conversation history. Messages are never
// modified after they are appended.
type Message struct {
	ID        uint64
	Role      Role
	Content   string
	CreatedAt time.Time

	// Image describes the chart of a chart reply. The handle it was read
	// from belongs to the Manager and is released by Close.
	Image *Image

	handle *blob.Handle
}

// HasImage reports whether the message carries a chart.
func (m Message) HasImage() bool {
	return m.Image != nil
}

// Image is a read-only view of a chart held by the Manager. URL is a blob
// locator that can be opened on the manager's registry until Close.
type Image struct {
	URL       string
	MediaType string
	Size      int
}

// PendingAttachment describes a file that was uploaded and is waiting to go
// out with the next send.
type PendingAttachment struct {
	Filename  string
	Size      int
	MediaType string
}

// Relay is the transport used by the manager. A returned error is a fault
// (the call could not be made or decoded); an error Response is a relay that
// was answered with a failure. Both are treated as a failed send.
type Relay interface {
	Chat(ctx context.Context, message, model string) (relay.Response, error)
	Upload(ctx context.Context, filename, mediaType string, data []byte) (relay.Response, error)
}

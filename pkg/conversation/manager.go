package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/blob"
	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

var (
	// ErrEmptySubmission is returned by Send when there is neither text nor a
	// pending attachment.
	ErrEmptySubmission = errors.New("nothing to send")
	// ErrBusy is returned when a send is already in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("conversation closed")
)

// Option configures a Manager.
type Option func(*Manager)

// WithModel sets the model named in every chat request.
func WithModel(model string) Option {
	return func(m *Manager) { m.model = model }
}

// WithGreeting opens the conversation with an assistant message. An empty
// text uses DefaultGreeting.
func WithGreeting(text string) Option {
	return func(m *Manager) {
		if text == "" {
			text = DefaultGreeting
		}
		m.greeting = text
	}
}

// WithLogger sets the logger used for operator diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the state of one conversation. It is safe for concurrent use;
// the relay call of a send runs without holding the lock so readers are never
// blocked by the network.
type Manager struct {
	relay  Relay
	blobs  *blob.Registry
	model  string
	logger *zap.Logger
	now    func() time.Time

	greeting string

	// ctx is canceled by Close to abandon in-flight calls.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	messages []Message
	nextID   uint64
	input    string
	pending  *PendingAttachment
	state    State
	closed   bool
	inflight sync.WaitGroup
}

// NewManager creates a manager that relays through r and stores chart images
// in blobs.
func NewManager(r Relay, blobs *blob.Registry, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		relay:  r,
		blobs:  blobs,
		model:  relay.DefaultModel,
		logger: zap.NewNop(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		nextID: 1,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.greeting != "" {
		m.appendLocked(RoleAssistant, m.greeting, nil)
	}

	return m
}

// SetInput replaces the input buffer.
func (m *Manager) SetInput(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = text
}

// Input returns the input buffer.
func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// State returns the current send state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns a copy of the pending attachment, or nil.
func (m *Manager) Pending() *PendingAttachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

// Messages returns a copy of the history in append order.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]Message, len(m.messages))
	for i, msg := range m.messages {
		if msg.Image != nil {
			image := *msg.Image
			msg.Image = &image
		}
		msg.handle = nil
		history[i] = msg
	}
	return history
}

// CanSend reports whether Send would be accepted right now.
func (m *Manager) CanSend() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkSendLocked() == nil
}

func (m *Manager) checkSendLocked() error {
	switch {
	case m.closed:
		return ErrClosed
	case m.state == Sending:
		return ErrBusy
	case strings.TrimSpace(m.input) == "" && m.pending == nil:
		return ErrEmptySubmission
	}
	return nil
}

// Send submits the input buffer. It appends the user message, relays it and
// appends the assistant's answer before returning. A rejected submission
// returns an error and changes nothing; a failed relay is not an error to the
// caller, it shows up as an apology message.
func (m *Manager) Send(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkSendLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	text := m.input
	m.appendLocked(RoleUser, text, nil)
	m.input = ""
	m.state = Sending
	m.inflight.Add(1)
	m.mu.Unlock()

	defer m.inflight.Done()
	defer m.setIdle()

	ctx, stop := mergeCancel(ctx, m.ctx)
	defer stop()

	resp, err := m.relay.Chat(ctx, text, m.model)
	m.finishSend(resp, err)
	return nil
}

// finishSend appends the outcome of a relay call. A chart whose handle cannot
// be created counts as a failure.
func (m *Manager) finishSend(resp relay.Response, err error) {
	if err == nil && resp.IsError() {
		err = fmt.Errorf("relay returned %d: %s", resp.Status, resp.Detail)
	}

	var image *blob.Handle
	if err == nil && resp.Kind == relay.KindImage {
		image, err = m.blobs.Create(resp.MediaType, resp.Bytes)
		if err != nil {
			err = fmt.Errorf("create image resource: %w", err)
		}
	}
	if err == nil && resp.Kind != relay.KindImage && resp.Kind != relay.KindText {
		err = fmt.Errorf("unexpected chat response kind %q", resp.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		// Close already tore the session down; nothing may be appended.
		if image != nil {
			_ = image.Release()
		}
		return
	}

	if err != nil {
		m.logger.Error("failed to send message", zap.Error(err))
		m.appendLocked(RoleAssistant, ApologyText, nil)
		return
	}

	switch resp.Kind {
	case relay.KindImage:
		m.appendLocked(RoleAssistant, ChartText, image)
	default:
		text := resp.Text
		if text == "" {
			text = EmptyReplyText
		}
		m.appendLocked(RoleAssistant, text, nil)
	}
	m.pending = nil
}

func (m *Manager) setIdle() {
	m.mu.Lock()
	m.state = Idle
	m.mu.Unlock()
}

// Attach uploads a file immediately. On success it becomes the pending
// attachment, replacing any previous one; on failure the pending attachment
// is left untouched.
func (m *Manager) Attach(ctx context.Context, filename, mediaType string, data []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	ctx, stop := mergeCancel(ctx, m.ctx)
	defer stop()

	resp, err := m.relay.Upload(ctx, filename, mediaType, data)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("upload rejected with %d: %s", resp.Status, resp.Detail)
	}
	if err != nil {
		m.logger.Error("file upload failed", zap.String("filename", filename), zap.Error(err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pending = &PendingAttachment{
		Filename:  filename,
		Size:      len(data),
		MediaType: mediaType,
	}
	return nil
}

// RemoveAttachment drops the pending attachment, if any.
func (m *Manager) RemoveAttachment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// Close ends the session. In-flight calls are canceled and awaited, then the
// image handle of every message is released exactly once. Close is
// idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.inflight.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, msg := range m.messages {
		if msg.handle == nil {
			continue
		}
		if err := msg.handle.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release image of message %d: %w", msg.ID, err))
		}
	}
	m.state = Idle
	m.pending = nil

	return errors.Join(errs...)
}

func (m *Manager) appendLocked(role Role, content string, handle *blob.Handle) {
	msg := Message{
		ID:        m.nextID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
		handle:    handle,
	}
	if handle != nil {
		msg.Image = &Image{
			URL:       handle.URL(),
			MediaType: handle.MediaType(),
			Size:      handle.Size(),
		}
	}
	m.messages = append(m.messages, msg)
	m.nextID++
}

// mergeCancel returns a context that is done when either parent is.
func mergeCancel(ctx, session context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(session, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

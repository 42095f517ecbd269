package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/stevejgoodman/hotmesscoach/pkg/blob"
	"github.com/stevejgoodman/hotmesscoach/pkg/conversation"
)

const helpText = `Commands:
  /attach <path>      upload a file to go with your next message
  /remove             drop the pending attachment
  /save <id> <path>   write the chart of message <id> to a file
  /help               show this help
  /quit               leave the chat`

// errQuit ends the chat loop.
var errQuit = errors.New("quit")

// session turns input lines into conversation actions. It is shared by the
// terminal UI and the plain line mode.
type session struct {
	manager  *conversation.Manager
	registry *blob.Registry
}

// handle runs one line of input. The returned notice is meant for the status
// line; it is empty when the conversation itself shows the outcome.
func (s *session) handle(ctx context.Context, line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		s.manager.SetInput(line)
		if err := s.manager.Send(ctx); err != nil {
			if errors.Is(err, conversation.ErrEmptySubmission) {
				return "", nil
			}
			return "", err
		}
		return "", nil
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/quit", "/exit":
		return "", errQuit
	case "/help":
		return helpText, nil
	case "/remove":
		s.manager.RemoveAttachment()
		return "attachment removed", nil
	case "/attach":
		if len(fields) < 2 {
			return "", errors.New("usage: /attach <path>")
		}
		return s.attach(ctx, strings.Join(fields[1:], " "))
	case "/save":
		if len(fields) != 3 {
			return "", errors.New("usage: /save <id> <path>")
		}
		return s.save(fields[1], fields[2])
	default:
		return "", fmt.Errorf("unknown command %s, try /help", fields[0])
	}
}

func (s *session) attach(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	if err := s.manager.Attach(ctx, filename, mediaTypeOf(filename, data), data); err != nil {
		return "", fmt.Errorf("could not upload %s", filename)
	}
	return fmt.Sprintf("attached %s (%s)", filename, humanize.Bytes(uint64(len(data)))), nil
}

func (s *session) save(idArg, path string) (string, error) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid message id %q", idArg)
	}

	for _, msg := range s.manager.Messages() {
		if msg.ID != id {
			continue
		}
		if !msg.HasImage() {
			return "", fmt.Errorf("message %d has no chart", id)
		}
		_, data, err := s.registry.Open(msg.Image.URL)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("could not write %s: %w", path, err)
		}
		return fmt.Sprintf("saved chart to %s", path), nil
	}
	return "", fmt.Errorf("no message with id %d", id)
}

// mediaTypeOf guesses from the extension first and the content second.
func mediaTypeOf(filename string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func describeAttachment(p *conversation.PendingAttachment) string {
	return fmt.Sprintf("📎 %s (%s, %s)", p.Filename, p.MediaType, humanize.Bytes(uint64(p.Size)))
}

func describeImage(msg conversation.Message) string {
	return fmt.Sprintf("[chart %s, %s · /save %d <file>]",
		msg.Image.MediaType, humanize.Bytes(uint64(msg.Image.Size)), msg.ID)
}

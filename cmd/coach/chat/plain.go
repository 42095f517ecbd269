package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/stevejgoodman/hotmesscoach/pkg/conversation"
)

// runPlain is a line-oriented chat loop for pipes and dumb terminals.
func runPlain(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	shown := 0
	flush := func() {
		msgs := s.manager.Messages()
		for _, msg := range msgs[shown:] {
			fmt.Fprintln(out, plainLine(msg))
		}
		shown = len(msgs)
	}

	flush()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		notice, err := s.handle(ctx, scanner.Text())
		flush()

		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, "! "+err.Error())
			continue
		}
		if notice != "" {
			fmt.Fprintln(out, "* "+notice)
		}
	}

	return scanner.Err()
}

func plainLine(msg conversation.Message) string {
	who := "you"
	if msg.Role == conversation.RoleAssistant {
		who = "coach"
	}

	line := fmt.Sprintf("[%d] %s> %s", msg.ID, who, msg.Content)
	if msg.HasImage() {
		line += " " + describeImage(msg)
	}
	return line
}

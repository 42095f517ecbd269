package main

import (
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/stevejgoodman/hotmesscoach/cmd/coach/chat"
	servecmder "github.com/stevejgoodman/hotmesscoach/cmd/coach/serve"
)

const coachLongDesc string = `Hot Mess Coach relays chat messages and file uploads to an
inference backend and shows its replies, text or rendered charts.

Run the relay in front of the backend with "coach serve", then talk to
it from a terminal with "coach chat".`

func main() {
	cmd := &cobra.Command{
		Use:          "coach",
		Short:        "Chat relay for the Hot Mess Coach backend",
		Long:         coachLongDesc,
		SilenceUsage: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

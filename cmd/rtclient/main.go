// Command rtclient is a terminal client for exercising the relay with typed text.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type chatFlags struct {
	addr  string
	raw   bool
	audio bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rtclient",
		Short:         "Terminal client for the voice relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChatCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a session and send typed messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runChat(cmd.Context(), flags, os.Stdin, cmd.OutOrStdout()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: ")+err.Error())
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "ws://localhost:8765/realtime", "relay realtime endpoint")
	cmd.Flags().BoolVar(&flags.raw, "raw", false, "print every event as JSON")
	cmd.Flags().BoolVar(&flags.audio, "audio", false, "ask for audio responses as well as text")
	return cmd
}

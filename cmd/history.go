package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [chat-id]",
	Short: "List stored chats, or print one transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	if len(args) == 0 {
		a.controller.RefreshHistory(cmd.Context())
		state := a.controller.State()
		if state.LastError != "" {
			return fmt.Errorf("%s", state.LastError)
		}
		for _, h := range state.History {
			fmt.Printf("%s  %s\n", h.ID, h.Title)
		}
		return nil
	}

	if err := a.controller.LoadChat(cmd.Context(), args[0], ""); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}
	printTranscript(a.controller.State().Messages)
	return nil
}

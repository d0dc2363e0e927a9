package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the device's system information",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	info, err := a.api.SystemInfo(cmd.Context(), a.sessions.SessionID())
	if err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

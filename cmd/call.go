package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call <tool> [key=value ...]",
	Short: "Invoke a device tool directly",
	Long: `Invoke a tool through function calling, bypassing the chat flow.
Parameters are given as key=value pairs. When the result asks for a
service restart or a shutdown, a confirmation prompt is shown before
anything is executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	params := make(map[string]string)
	for _, pair := range args[1:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("parameter %q is not key=value", pair)
		}
		params[key] = value
	}

	if err := a.controller.ExecuteFunctionCalling(cmd.Context(), args[0], params); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}

	state := a.controller.State()
	fmt.Println(state.FunctionResult)

	if state.PendingRestart != "" {
		if confirm(fmt.Sprintf("Restart service %q?", state.PendingRestart)) {
			if err := a.controller.ConfirmRestart(cmd.Context()); err != nil {
				return fmt.Errorf("%s", a.controller.State().LastError)
			}
			fmt.Println("Service restart requested.")
		} else {
			a.controller.DismissRestart()
		}
	}

	if state.PendingShutdown {
		if confirm("Shut the device down?") {
			if err := a.controller.ConfirmShutdown(cmd.Context()); err != nil {
				return fmt.Errorf("%s", a.controller.State().LastError)
			}
			fmt.Println("Shutdown requested.")
		} else {
			a.controller.DismissShutdown()
		}
	}

	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

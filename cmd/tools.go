package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// toolsCmd represents the tools command group
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and toggle device-side tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the device offers",
	RunE:  runToolsList,
}

var toolsEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolsToggle(cmd, args[0], true)
	},
}

var toolsDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolsToggle(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsEnableCmd)
	toolsCmd.AddCommand(toolsDisableCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	if err := a.controller.RefreshTools(cmd.Context()); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}

	for _, t := range a.controller.State().Tools {
		enabled := "disabled"
		if t.Enabled {
			enabled = "enabled"
		}
		fmt.Printf("%-24s %-10s %s\n", t.Name, enabled, strings.Join(t.Properties, ", "))
	}
	return nil
}

func runToolsToggle(cmd *cobra.Command, name string, enabled bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	if err := a.controller.RefreshTools(cmd.Context()); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}
	if err := a.controller.SetToolEnabled(cmd.Context(), name, enabled); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}

	fmt.Printf("Tool %s is now %s\n", name, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}

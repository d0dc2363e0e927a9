package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// servicesCmd represents the services command group
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List or select the device's AI backends",
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the AI services the device offers",
	RunE:  runServicesList,
}

var servicesSelectCmd = &cobra.Command{
	Use:   "select <identifier>",
	Short: "Switch the active AI service",
	Args:  cobra.ExactArgs(1),
	RunE:  runServicesSelect,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesListCmd)
	servicesCmd.AddCommand(servicesSelectCmd)
}

func runServicesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	state := a.controller.State()
	for _, svc := range state.Services {
		marker := " "
		if svc.ID == state.SelectedService {
			marker = "*"
		}
		fmt.Printf("%s %-16s %s\n", marker, svc.ID, svc.Label())
	}
	return nil
}

func runServicesSelect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	if err := a.controller.SelectAIService(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("%s", a.controller.State().LastError)
	}
	if msg := a.controller.State().LastError; msg != "" {
		return fmt.Errorf("%s", msg)
	}

	fmt.Printf("Selected %s\n", args[0])
	return nil
}

package cmd

import (
	"fmt"

	"github.com/oasis-home/oasisctl/pkg/controller"
	"github.com/spf13/cobra"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for Oasis devices",
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Println("Scanning for devices...")
	a.controller.Discover(cmd.Context())

	state := a.controller.State()
	if state.Discovery == controller.DiscoveryFailed {
		return fmt.Errorf("%s", state.DiscoveryError)
	}

	for _, d := range state.Devices {
		fmt.Printf("%-30s %s:%d\n", d.Name, d.IP, d.Port)
	}
	return nil
}

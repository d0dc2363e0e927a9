package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a device and store the credentials",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringP("username", "u", "root", "Login username")
	loginCmd.Flags().String("password", "", "Login password (prompted when empty)")

	_ = viper.BindPFlag("device.username", loginCmd.Flags().Lookup("username"))
	_ = viper.BindPFlag("device.password", loginCmd.Flags().Lookup("password"))
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	host := a.cfg.Device.Host
	if host == "" {
		return fmt.Errorf("no device host given: pass --host or set device.host")
	}

	password := a.cfg.Device.Password
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", a.cfg.Device.Username, host)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(string(raw))
	}

	if err := a.controller.Login(cmd.Context(), host, a.cfg.Device.Username, password); err != nil {
		state := a.controller.State()
		if state.LoginError != "" {
			return fmt.Errorf("%s", state.LoginError)
		}
		return err
	}

	fmt.Printf("Logged in to %s\n", host)
	return nil
}

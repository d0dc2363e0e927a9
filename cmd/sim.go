package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oasis-home/oasisctl/pkg/config"
	"github.com/oasis-home/oasisctl/pkg/devicesim"
	"github.com/oasis-home/oasisctl/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// simCmd represents the sim command
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a local Oasis device simulator",
	Long: `Start an HTTP server that behaves like an Oasis device: the same
/ubus JSON-RPC endpoint, session handling and chat/tool methods. Useful
for development and for trying the CLI without hardware.`,
	RunE: runSim,
}

func init() {
	viper.AutomaticEnv()
	// Replace . with _ in env var names (e.g., sim.port becomes SIM_PORT)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	rootCmd.AddCommand(simCmd)

	// Simulator-specific flags
	simCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	simCmd.Flags().String("username", "root", "Accepted login username")
	simCmd.Flags().String("password", "oasis", "Accepted login password")
	simCmd.Flags().Int("session-ttl", 300, "Session lifetime in seconds")
	simCmd.Flags().Bool("enable-telemetry", false, "Enable OpenTelemetry tracing")
	simCmd.Flags().String("otel-endpoint", "", "OpenTelemetry endpoint (if empty, uses auto-export)")

	// Bind flags to viper
	_ = viper.BindPFlag("sim.port", simCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("sim.username", simCmd.Flags().Lookup("username"))
	_ = viper.BindPFlag("sim.password", simCmd.Flags().Lookup("password"))
	_ = viper.BindPFlag("sim.session_ttl_seconds", simCmd.Flags().Lookup("session-ttl"))
	_ = viper.BindPFlag("telemetry.enabled", simCmd.Flags().Lookup("enable-telemetry"))
	_ = viper.BindPFlag("telemetry.endpoint", simCmd.Flags().Lookup("otel-endpoint"))
}

func runSim(cmd *cobra.Command, args []string) error {
	logger := GetLogger()
	logger.Info("Starting Oasis device simulator")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize telemetry if enabled
	var cleanup func()
	if cfg.Telemetry.Enabled {
		logger.Info("Initializing OpenTelemetry")
		cleanup, err = telemetry.Initialize(cfg.Telemetry, logger)
		if err != nil {
			logger.Warnf("Failed to initialize telemetry: %v", err)
		} else {
			defer cleanup()
		}
	}

	// Create and start the simulator
	srv, err := devicesim.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	// Start the simulator in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("Simulator starting on port %d", cfg.Sim.Port)
		serverErrors <- srv.Start()
	}()

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("simulator error: %w", err)
	case sig := <-interrupt:
		logger.Infof("Received signal %v, shutting down...", sig)

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Simulator shutdown error: %v", err)
			return err
		}

		logger.Info("Simulator stopped gracefully")
		return nil
	}
}

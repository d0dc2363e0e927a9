package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/oasis-home/oasisctl/pkg/config"
	"github.com/oasis-home/oasisctl/pkg/controller"
	"github.com/oasis-home/oasisctl/pkg/credstore"
	"github.com/oasis-home/oasisctl/pkg/discovery"
	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/rpc"
	"github.com/oasis-home/oasisctl/pkg/session"
)

// app bundles the wired-up client stack the subcommands work with
type app struct {
	cfg        *config.Config
	api        *oasis.API
	sessions   *session.Manager
	controller *controller.Controller
}

// newApp builds the full client stack from the loaded configuration
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := GetLogger()

	client := rpc.New(logger, rpc.WithTimeouts(
		time.Duration(cfg.Device.ConnectTimeoutSec)*time.Second,
		time.Duration(cfg.Device.CallTimeoutSec)*time.Second,
	))
	api := oasis.NewAPI(client)
	sessions := session.NewManager(api, logger)

	engine := discovery.NewEngine(
		discovery.NewZeroconfBrowser(),
		logger,
		discovery.WithTimeout(time.Duration(cfg.Discovery.TimeoutSec)*time.Second),
		discovery.WithRefineBudget(time.Duration(cfg.Discovery.RefineBudgetMS)*time.Millisecond),
	)

	store, err := credstore.NewFileStore(cfg.Credentials.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	ctrl := controller.New(api, sessions, engine, store, logger)
	return &app{cfg: cfg, api: api, sessions: sessions, controller: ctrl}, nil
}

// ensureLoggedIn logs in from flags/config or falls back to stored
// credentials
func (a *app) ensureLoggedIn(ctx context.Context) error {
	if a.sessions.Authenticated() {
		return nil
	}

	dev := a.cfg.Device
	if dev.Host != "" && dev.Username != "" && dev.Password != "" {
		return a.controller.Login(ctx, dev.Host, dev.Username, dev.Password)
	}

	if a.controller.TryAutoLogin(ctx) {
		return nil
	}
	return fmt.Errorf("not logged in: run 'oasisctl login' or set device.host, device.username and device.password")
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apihandlers "github.com/The-Promised-Neverland/relay/internal/api/handlers"
	"github.com/The-Promised-Neverland/relay/internal/api/routers"
	"github.com/The-Promised-Neverland/relay/internal/config"
	"github.com/The-Promised-Neverland/relay/internal/handlers"
	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
	"github.com/The-Promised-Neverland/relay/internal/watcher"
	"github.com/The-Promised-Neverland/relay/internal/ws"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/system"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	config     *config.Config
	components *Components
	hub        *ws.Hub
	handlers   *handlers.Handlers
	server     *http.Server
	inbox      *watcher.Inbox
}

// NewApplication builds the relay bound to appCtx: transfers started by the
// application stop when appCtx is cancelled.
func NewApplication(appCtx context.Context, cfg *config.Config) (*Application, error) {
	system.InitStartTime()
	components, err := NewComponents(appCtx, cfg, nil)
	if err != nil {
		return nil, err
	}
	if cfg.OperatorToken() == "" {
		logger.Log.Warn("OPERATOR_TOKEN is empty, every API and session request will be refused")
	}

	hub := ws.NewHub()
	h := handlers.NewHandler(appCtx, hub, components.Orchestrator)
	h.RegisterHandlers()

	api := apihandlers.NewHandler(h, components.Orchestrator, components.Previews, components.Service).
		WithHost(components.Service)
	router := routers.NewRouter(cfg, api, apihandlers.NewWebSocketHandler(hub), components.Registry, components.Metrics.Handler()).SetupRouter()

	app := &Application{
		config:     cfg,
		components: components,
		hub:        hub,
		handlers:   h,
		server: &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if dir := cfg.InboxDir(); dir != "" {
		inbox, err := watcher.NewInbox(appCtx, dir, app.relayInbound, watcher.WithSettle(cfg.InboxSettle()))
		if err != nil {
			logger.Log.Warn("Failed to create inbox watcher, inbox disabled", "path", dir, "err", err)
		} else {
			app.inbox = inbox
		}
	}
	return app, nil
}

// relayInbound relays an inbox file for the operator.
func (app *Application) relayInbound(ref models.Reference) transfer.Result {
	return app.handlers.Run(app.config.OperatorID(), ref, "")
}

// Run serves until appCtx is cancelled or the listener fails.
func (app *Application) Run(appCtx context.Context) error {
	if app.inbox != nil {
		if err := app.inbox.Start(); err != nil {
			logger.Log.Warn("Failed to start inbox watcher", "err", err)
			app.inbox = nil
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.Info("Relay listening", "addr", app.server.Addr, "destination", app.config.Destination())
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-appCtx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	}
	app.Shutdown()
	return err
}

func (app *Application) Shutdown() {
	if app.inbox != nil {
		app.inbox.Stop()
		app.inbox = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		logger.Log.Error("Error shutting down http server", "err", err)
	}
	app.hub.Close()
	logger.Log.Info("Relay stopped")
}

// Handler returns the HTTP handler of the application.
func (app *Application) Handler() http.Handler {
	return app.server.Handler
}

/*
Webapi is the executable for the main web server.
It connects to the external resources needed (database, images store) and
starts the API web server, which carries both the REST routes and the
websocket change feed.

Usage:

	webapi [flags]

Flags and configurations are handled automatically by the code in `load-configuration.go`.

Return values (exit codes):

	0
		The program ended successfully (no errors, stopped by signal)

	> 0
		The program ended due to an error
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	_ "github.com/mattn/go-sqlite3"
	"github.com/silvestri/maglia/pkg/auth"
	"github.com/silvestri/maglia/pkg/collectibles"
	"github.com/silvestri/maglia/pkg/content"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/messages"
	"github.com/silvestri/maglia/pkg/rest"
	"github.com/silvestri/maglia/pkg/storage/images"
	"github.com/silvestri/maglia/pkg/storage/sqlite"
	"github.com/silvestri/maglia/pkg/users"
	"github.com/sirupsen/logrus"
)

// main is the program entry point. The only purpose of this function is to call run() and set the exit code if there is
// any error
func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error: ", err)
		os.Exit(1)
	}
}

// run executes the program:
// * reads the configuration
// * creates and configures the logger
// * connects to external resources (database, images store)
// * registers every entity kind and wires the route handlers
// * starts the web server and waits for a termination event
func run() error {
	// Load Configuration and defaults
	cfg, err := loadConfiguration()
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return err
	}

	// Init logging
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.Infof("application initializing")

	// initialise database before registering handlers for an immediate exit in case of issues
	storage, err := sqlite.New(logger, cfg.DB.Filename)
	if err != nil {
		logger.WithError(err).Error("error initialising storage")
		return fmt.Errorf("error while initialising storage: %w", err)
	}
	defer storage.Close()

	imagesStorage, err := images.New(logger, cfg.Images.Path, cfg.Images.Prefix)
	if err != nil {
		logger.WithError(err).Error("error initialising images store")
		return fmt.Errorf("error while initialising images store: %w", err)
	}

	// the hub broadcasts entity mutations to websocket listeners
	hub := events.NewHub(logger)
	go hub.Heartbeat(cfg.Events.HeartbeatInterval)
	defer hub.Close()

	tokens := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenDuration)

	// Start (main) API server
	logger.Info("initializing API server")

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	e, err := rest.New(rest.Config{
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Error("error creating the API server instance")
		return fmt.Errorf("creating the API server instance: %w", err)
	}
	e.Use(rest.RequestLogger(logger))

	// setup repositories and the kinds registry
	var authRepository = auth.NewRepository(storage.Connection, hub)
	var collectiblesStore = collectibles.NewStore(storage.Connection, hub)

	var registry = entities.NewRegistry(storage.Connection, hub, logger)
	entities.Register(registry, users.AccountKind())
	entities.Register(registry, users.PendingKind())
	entities.Register(registry, collectibles.JerseyKind())
	entities.Register(registry, collectibles.ItemKind())
	entities.Register(registry, collectibles.CommentKind())
	entities.Register(registry, collectibles.LikeKind())
	entities.Register(registry, messages.MessageKind())
	entities.Register(registry, content.Kind())

	// seed the configured administrator on a fresh database
	if cfg.Auth.AdminPassword != "" {
		hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("hashing admin password: %w", err)
		}
		if err = authRepository.EnsureAdmin(cfg.Auth.AdminEmail, hash); err != nil {
			return fmt.Errorf("seeding admin account: %w", err)
		}
	}

	// setup handlers
	var authenticated = auth.Authenticated(tokens, authRepository)

	auth.RegisterHandlers(e, authRepository, tokens, logger)
	entities.RegisterHandlers(e, registry, auth.GetActor, authenticated)
	collectibles.RegisterHandlers(e, collectiblesStore, authenticated)
	content.RegisterHandlers(e, storage.Connection)
	events.RegisterHandlers(e, hub, authenticated)
	images.RegisterHandlers(e, imagesStorage, authenticated)

	e.ServeFiles("/static/*filepath", http.Dir("static"))

	// Apply CORS policy
	handler := applyCORSHandler(e.Handler())

	// create the API server
	server := http.Server{
		Addr:              cfg.Web.APIHost,
		Handler:           handler,
		ReadTimeout:       cfg.Web.ReadTimeout,
		ReadHeaderTimeout: cfg.Web.ReadTimeout,
		WriteTimeout:      cfg.Web.WriteTimeout,
	}

	// Start the service listening for requests in a separate goroutine
	go func() {
		logger.Infof("API listening on %s", server.Addr)
		serverErrors <- server.ListenAndServe()
		logger.Infof("stopping API server")
	}()

	// Waiting for shutdown signal or POSIX signals
	select {
	case err := <-serverErrors:
		// Non-recoverable server error
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("signal %v received, start shutdown", sig)

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and load shed.
		err = server.Shutdown(ctx)
		if err != nil {
			logger.WithError(err).Warning("error during graceful shutdown of HTTP server")
			err = server.Close()
		}

		if err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

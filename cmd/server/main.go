package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/identity"
	"github.com/jrsteele09/minis-web/internal/config"
	"github.com/jrsteele09/minis-web/server"
	"github.com/jrsteele09/minis-web/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	handler, closeFn, err := buildHandler(c)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func buildHandler(c config.Config) (http.Handler, func(), error) {
	db, err := session.OpenDatabase(c.GetSessionDBPath())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = db.Close() }

	client, err := api.New(c.GetAPIBaseURL(), api.WithTimeout(c.GetAPITimeout()))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	resolver, err := identity.NewResolver(client, c.GetIdentityCacheSize())
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	// any 401 marks the token invalid, whichever call saw it
	client.SetUnauthorizedHook(resolver.Invalidate)

	srv, err := server.New(c, server.Deps{
		API:       client,
		Resolver:  resolver,
		Durable:   session.NewDurableManager(db, c.GetRememberLifetime(), c.GetSecureCookies()),
		Ephemeral: session.NewEphemeralManager(c.GetEphemeralLifetime(), c.GetSecureCookies()),
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return srv, closeFn, nil
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

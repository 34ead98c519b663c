package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/campus-session-client/internal/config"
	"github.com/jrsteele09/campus-session-client/internal/devserver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Accounts available on a fresh dev backend.
var seedUsers = []struct {
	username, password, role string
}{
	{"student", "student123", devserver.RoleUser},
	{"admin", "admin123", devserver.RoleAdmin},
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warn().Err(err).Msg("reading .env failed")
	}
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("dev backend failed, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("dev backend stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	config.ConfigureLogging(c)
	displayAppname(c.GetAppName() + " dev")

	backend := devserver.New(
		devserver.WithSecret(c.GetDevBackendJWTSecret()),
		devserver.WithRefreshTokens(),
		devserver.WithCORS(c),
	)
	for _, u := range seedUsers {
		if err := backend.Seed(u.username, u.password, u.role); err != nil {
			return errors.Wrap(err, "seeding users")
		}
		log.Info().Str("username", u.username).Str("role", u.role).Msg("seeded account")
	}

	server := &http.Server{Addr: c.GetDevBackendPort(), Handler: backend}
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Str("api", devserver.APIPrefix).Msg("dev backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
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
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

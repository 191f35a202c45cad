package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ragassist/app/server"
	"ragassist/config"
)

func init() {
	loadEnvVariables()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.Log)

	s, err := server.NewServer(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("error to build server", "error", err)
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() { errch <- s.Run() }()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigch:
		logger.Info("received shutdown signal, shutting down server")
	case err := <-errch:
		if err != nil {
			s.Stop()
			os.Exit(1)
		}
	}
	if err := s.Stop(); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// loadEnvVariables reads .env when present. The environment alone is a valid
// setup, so a missing file is not fatal.
func loadEnvVariables() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("Error loading .env file: ", err)
	}
}

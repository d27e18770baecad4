package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/rs/zerolog"

	"quickdraw/internal/app"
)

func main() {
	var (
		home      = flag.String("home", ".quickdraw", "app home directory (state will be stored under <home>/app)")
		addr      = flag.String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
		transport = flag.String("transport", "socket", "ABCI transport (socket|grpc)")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*debug {
		logger = logger.Level(zerolog.InfoLevel)
	}

	a, err := app.New(*home, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init app")
	}

	srv, err := server.NewServer(*addr, *transport, a)
	if err != nil {
		logger.Fatal().Err(err).Msg("create abci server")
	}
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start abci server")
	}
	defer func() { _ = srv.Stop() }()

	logger.Info().Str("addr", *addr).Str("transport", *transport).Msg("quickdraw abci app listening")

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

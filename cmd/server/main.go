package main

import (
	"context"
	"os"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"
	"github.com/rs/zerolog"

	"tokensale/bank"
	"tokensale/config"
	"tokensale/exchange"
	"tokensale/issuer"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("binary", "server").Logger()

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	restateServer := server.NewRestate().
		Bind(restate.Reflect(issuer.Issuer{})).
		Bind(restate.Reflect(exchange.Exchange{})).
		Bind(restate.Reflect(bank.Bank{}))

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Strs("services", []string{issuer.ServiceName, exchange.ServiceName, bank.ServiceName}).
		Msg("starting token sale services")

	if err := restateServer.Start(context.Background(), cfg.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	restateingress "github.com/restatedev/sdk-go/ingress"
	"github.com/rs/zerolog"

	"tokensale/config"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("binary", "gateway").Logger()

	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	gw := &gateway{
		client: restateingress.NewClient(cfg.IngressURL),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	if cfg.APIKey != "" {
		r.Use(apiKeyAuth(cfg.APIKey))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/issuers/{issuerID}", func(r chi.Router) {
			r.Post("/init", gw.handleInitIssuer)
			r.Post("/offers", gw.handleCreateOffer)
			r.Get("/offers", gw.handleListOffers)
			r.Get("/offers/{price}", gw.handleGetOffer)
			r.Delete("/offers/{price}", gw.handleRemoveOffer)
			r.Post("/sellers", gw.handleRegisterSeller)
			r.Get("/sellers", gw.handleListSellers)
			r.Get("/sellers/{sellerID}", gw.handleGetSeller)
			r.Delete("/sellers/{sellerID}", gw.handleRemoveSeller)
			r.Post("/storage", gw.handleRegisterStorage)
			r.Get("/balances/{account}", gw.handleBalanceOf)
		})
		r.Route("/exchanges/{exchangeID}", func(r chi.Router) {
			r.Post("/purchases", gw.handleInitiatePurchase)
			r.Get("/purchases/{purchaseID}", gw.handleGetPurchase)
			r.Post("/purchases/{purchaseID}/compensate", gw.handleCompensate)
			r.Get("/partial-aborts", gw.handleListPartialAborts)
		})
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Post("/deposit", gw.handleDeposit)
			r.Get("/balance", gw.handleBalance)
		})
	})

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("ingress", cfg.IngressURL).
		Msg("starting token sale gateway")

	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		logger.Fatal().Err(err).Msg("gateway error")
	}
}

func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("requestId", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

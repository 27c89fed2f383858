package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/config"
	"github.com/apoorvlathey/invite-markets-api/internal/domain/listing"
	"github.com/apoorvlathey/invite-markets-api/internal/domain/purchase"
	"github.com/apoorvlathey/invite-markets-api/internal/middleware"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/database"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/ethsig"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/logger"
	pkgresponse "github.com/apoorvlathey/invite-markets-api/internal/pkg/response"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/x402"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Int64("chain_id", cfg.ChainID()).
		Str("network", cfg.Network()).
		Msg("Starting Invite Markets API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	// ---------- Chain access ----------
	var backend ethsig.ChainBackend
	if cfg.RPCURL != "" {
		ethClient, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to EVM RPC")
		}
		defer ethClient.Close()
		backend = ethClient
	} else {
		log.Warn().Msg("RPC URL not configured, smart-contract wallet signatures disabled")
	}
	verifier := ethsig.NewDualVerifier(backend)

	// ---------- Signed-action authorization ----------
	var nonceLedger signedaction.NonceLedger
	if redisClient != nil {
		nonceLedger = signedaction.NewRedisNonceLedger(redisClient)
	} else {
		log.Warn().Msg("Nonce dedup disabled, signed actions are replayable")
	}
	authorizer := signedaction.NewAuthorizer(verifier, cfg.ChainID(), nonceLedger)

	// ---------- x402 facilitator ----------
	facilitator := x402.NewFacilitatorClient(cfg.FacilitatorURL, cfg.FacilitatorAPIKey, cfg.FacilitatorTimeout)
	var guard purchase.Guard
	if sg := x402.NewSettlementGuard(redisClient, 10*time.Minute); sg != nil {
		guard = sg
	}

	// ---------- Repositories ----------
	listingRepo := listing.NewRepository(db)
	transactionRepo := purchase.NewRepository(db)

	// ---------- Services ----------
	listingService := listing.NewService(listingRepo, authorizer)
	purchaseService := purchase.NewService(listingRepo, transactionRepo, facilitator, authorizer, guard, purchase.ChainConfig{
		ChainID:           cfg.ChainID(),
		Network:           cfg.Network(),
		USDCAddress:       cfg.USDCAddress(),
		PublicBaseURL:     cfg.PublicBaseURL,
		MaxTimeoutSeconds: int(cfg.FacilitatorTimeout / time.Second),
	})

	// ---------- Handlers ----------
	listingHandler := listing.NewHandler(listingService)
	purchaseHandler := purchase.NewHandler(purchaseService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/listings", listingHandler.Routes())

		// x402-gated settlement endpoint
		r.Post("/listings/{slug}/purchase", purchaseHandler.Purchase)

		r.Mount("/", purchaseHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/curveforge/curved/internal/collab"
	"github.com/curveforge/curved/internal/config"
	"github.com/curveforge/curved/internal/engine"
	"github.com/curveforge/curved/internal/fees"
	"github.com/curveforge/curved/internal/graduation"
	"github.com/curveforge/curved/internal/ledger"
	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/oracle"
	"github.com/curveforge/curved/internal/types"
	"github.com/curveforge/curved/internal/web"
)

// main is the entry point for the curved token market.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Curved token market starting...")

	clock := clockwork.NewRealClock()
	writers := []string{ledger.ActorTradingEngine, ledger.ActorGraduation, ledger.ActorAdmin}

	// --- 2. Curve Ledger ---
	var store ledger.Store
	if os.Getenv("LEDGER_BACKEND") == "memory" {
		log.Warn().Msg("Using the in-memory ledger. State will not survive a restart.")
		store = ledger.NewMemoryStore(writers)
	} else {
		dbCfg := ledger.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		db, err := ledger.OpenDB(dbCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		if err := ledger.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = ledger.NewPostgresStore(db, writers)
	}
	defer store.Close()

	// --- 3. Oracle and external collaborators ---
	priceGuard := oracle.NewGuard(
		oracle.NewHTTPFeed(config.OracleURL),
		clock,
		config.OracleMaxAge,
		config.FallbackEthUsd,
		config.BaseGasPriceWei,
	)

	deployer := collab.NewInProcessDeployer()
	venue := collab.NewInProcessVenue(deployer)
	locker := collab.NewInProcessLocker()

	// --- 4. Trading Engine and Graduation Orchestrator ---
	resolver := fees.NewResolver(fees.Params{
		PlatformBps: map[types.ProfileKind]uint64{
			types.KindBasic:       config.PlatformFeeBpsBasic,
			types.KindAdvanced:    config.PlatformFeeBpsAdvanced,
			types.KindSuperSimple: config.PlatformFeeBpsSuperSimple,
			types.KindZeroSimple:  config.PlatformFeeBpsZeroSimple,
		},
		TreasurySkimBps: config.TreasurySkimBps,
	})

	eng := engine.New(store, resolver, engine.Params{
		Treasury:              types.Address(config.TreasuryAddress),
		CreatorGraceWindow:    config.CreatorGraceWindow,
		OvershootToleranceBps: config.OvershootToleranceBps,
	}, clock)

	orch := graduation.New(store, deployer, venue, locker, priceGuard, clock, graduation.Params{
		Treasury:             types.Address(config.TreasuryAddress),
		VenueAccount:         collab.VenueAccount,
		GradFee:              config.GraduationFeeWei,
		LockFee:              config.LockFeeWei,
		MinPoolUsd:           config.MinPoolUsd,
		MaxPoolUsd:           config.MaxPoolUsd,
		ClaimModeThreshold:   config.ClaimModeThreshold,
		StipendMultiplierBps: config.StipendMultiplierBps,
		StipendFloor:         config.StipendFloorWei,
		StipendCap:           config.StipendCapWei,
	})
	eng.SetGraduator(orch)

	// --- 5. Web surface ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, eng, orch, store)
	log.Info().Str("port", webPort).Msg("Starting market API server")
	if err := webServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server failed")
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

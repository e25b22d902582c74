package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// TreasuryAddress receives platform fees and the treasury skim of dev taxes.
	TreasuryAddress string

	// PlatformFeeBpsBasic .. PlatformFeeBpsZeroSimple are the platform fee in basis
	// points applied to the gross amount of every trade, by profile kind.
	PlatformFeeBpsBasic       uint64
	PlatformFeeBpsAdvanced    uint64
	PlatformFeeBpsSuperSimple uint64
	PlatformFeeBpsZeroSimple  uint64

	// TreasurySkimBps is the share of each dev tax diverted to the treasury.
	TreasurySkimBps uint64

	// CreatorGraceWindow exempts the creator from the anti-whale ceilings for this
	// long after token creation.
	CreatorGraceWindow time.Duration

	// OvershootToleranceBps bounds how far a single buy may push circulating supply
	// past the graduation cap.
	OvershootToleranceBps uint64

	// GraduationFeeWei and LockFeeWei are the fixed graduation-time fees. The lock
	// fee is waived when the LP position is burned.
	GraduationFeeWei sdkmath.Int
	LockFeeWei       sdkmath.Int

	// MinPoolUsd / MaxPoolUsd bound the pool value validated before graduation,
	// in whole USD.
	MinPoolUsd uint64
	MaxPoolUsd uint64

	// ClaimModeThreshold is the holder count above which graduation distributes
	// balances through deferred claims instead of a direct airdrop.
	ClaimModeThreshold int

	// Stipend sizing for the graduation trigger.
	StipendMultiplierBps uint64      // safety multiplier over the raw gas estimate
	StipendFloorWei      sdkmath.Int // minimum stipend
	StipendCapWei        sdkmath.Int // hard maximum stipend

	// Oracle configuration.
	OracleURL       string
	OracleMaxAge    time.Duration
	FallbackEthUsd  sdkmath.Int // 8-decimal fixed point
	BaseGasPriceWei sdkmath.Int // stipend fallback when the gas oracle is unusable
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	TreasuryAddress, err = getEnv("TREASURY_ADDRESS")
	if err != nil {
		return err
	}

	PlatformFeeBpsBasic, err = getEnvAsUint64("PLATFORM_FEE_BPS_BASIC")
	if err != nil {
		return err
	}
	PlatformFeeBpsAdvanced, err = getEnvAsUint64("PLATFORM_FEE_BPS_ADVANCED")
	if err != nil {
		return err
	}
	PlatformFeeBpsSuperSimple, err = getEnvAsUint64("PLATFORM_FEE_BPS_SUPER_SIMPLE")
	if err != nil {
		return err
	}
	PlatformFeeBpsZeroSimple, err = getEnvAsUint64("PLATFORM_FEE_BPS_ZERO_SIMPLE")
	if err != nil {
		return err
	}

	TreasurySkimBps, err = getEnvAsUint64("TREASURY_SKIM_BPS")
	if err != nil {
		return err
	}

	CreatorGraceWindow, err = getEnvAsDuration("CREATOR_GRACE_WINDOW_SECONDS")
	if err != nil {
		return err
	}

	OvershootToleranceBps, err = getEnvAsUint64("OVERSHOOT_TOLERANCE_BPS")
	if err != nil {
		return err
	}

	GraduationFeeWei, err = getEnvAsBigInt("GRADUATION_FEE_WEI")
	if err != nil {
		return err
	}
	LockFeeWei, err = getEnvAsBigInt("LOCK_FEE_WEI")
	if err != nil {
		return err
	}

	MinPoolUsd, err = getEnvAsUint64("MIN_POOL_USD")
	if err != nil {
		return err
	}
	MaxPoolUsd, err = getEnvAsUint64("MAX_POOL_USD")
	if err != nil {
		return err
	}

	claimThreshold, err := getEnvAsUint64("CLAIM_MODE_THRESHOLD")
	if err != nil {
		return err
	}
	ClaimModeThreshold = int(claimThreshold)

	StipendMultiplierBps, err = getEnvAsUint64("STIPEND_MULTIPLIER_BPS")
	if err != nil {
		return err
	}
	StipendFloorWei, err = getEnvAsBigInt("STIPEND_FLOOR_WEI")
	if err != nil {
		return err
	}
	StipendCapWei, err = getEnvAsBigInt("STIPEND_CAP_WEI")
	if err != nil {
		return err
	}

	OracleURL, err = getEnv("ORACLE_URL")
	if err != nil {
		return err
	}
	OracleMaxAge, err = getEnvAsDuration("ORACLE_MAX_AGE_SECONDS")
	if err != nil {
		return err
	}
	FallbackEthUsd, err = getEnvAsBigInt("FALLBACK_ETH_USD_8DEC")
	if err != nil {
		return err
	}
	BaseGasPriceWei, err = getEnvAsBigInt("BASE_GAS_PRICE_WEI")
	if err != nil {
		return err
	}

	log.Debug().
		Str("TreasuryAddress", TreasuryAddress).
		Uint64("OvershootToleranceBps", OvershootToleranceBps).
		Int("ClaimModeThreshold", ClaimModeThreshold).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable expressed in whole seconds.
func getEnvAsDuration(key string) (time.Duration, error) {
	seconds, err := getEnvAsUint64(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// getEnvAsBigInt retrieves an environment variable as an arbitrary-precision integer.
func getEnvAsBigInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return value, nil
}

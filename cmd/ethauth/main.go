package main

import (
	"fmt"
	"os"

	"github.com/layer-3/ethauth/internal/config"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ethauth",
	Short: "Ethereum challenge/response authentication server",
	Long:  `Issues address-bound challenges and verifies wallet signatures over them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (json, yaml or toml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(challengeMessageCmd)
	rootCmd.AddCommand(signCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up the global logger
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "ethauth").Logger()
	log.Logger = logger

	return cfg, logger, nil
}

// newHasher builds the hashing scheme selected by cfg. The EIP-712 hasher is
// returned separately so that challenge responses can include typed data.
func newHasher(cfg *config.Config) (eth.Hasher, *eth.EIP712Hasher, error) {
	if cfg.Scheme != config.SchemeEIP712 {
		return eth.LegacyHasher{}, nil, nil
	}

	hasher, err := eth.NewEIP712Hasher(eth.EIP712Domain{
		Name:              cfg.EIP712.Name,
		Version:           cfg.EIP712.Version,
		ChainID:           cfg.EIP712.ChainIDBig(),
		VerifyingContract: cfg.EIP712.VerifyingContract,
	})
	if err != nil {
		return nil, nil, err
	}
	return hasher, hasher, nil
}

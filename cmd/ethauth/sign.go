package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/spf13/cobra"
)

var (
	privateKeyHex string
	challengeHash string
)

var challengeMessageCmd = &cobra.Command{
	Use:   "challenge-message <challenge-hash>",
	Short: "Print the message a wallet signs for a challenge hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		_, typedData, err := newHasher(cfg)
		if err != nil {
			return err
		}

		msg := core.NewChallengeMessage(cfg.Banner, args[0])
		var out interface{} = msg
		if typedData != nil {
			out = typedData.TypedData(msg)
		}

		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a challenge hash with a private key, as a wallet would",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if privateKeyHex == "" || challengeHash == "" {
			return errors.New("--key and --challenge are required")
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		hasher, _, err := newHasher(cfg)
		if err != nil {
			return err
		}

		signer, err := eth.NewSignerFromHex(privateKeyHex, hasher)
		if err != nil {
			return err
		}

		sig, err := signer.Sign(core.NewChallengeMessage(cfg.Banner, challengeHash))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "address:   %s\nsignature: %s\n", signer.Address().Hex(), sig)
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&privateKeyHex, "key", "", "hex encoded secp256k1 private key")
	signCmd.Flags().StringVar(&challengeHash, "challenge", "", "challenge hash returned by /auth/challenge")
}

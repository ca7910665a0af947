package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	hashKeyValue string
	hashKeyCost  int
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Generate an operator API key and its bcrypt hash",
	Long: `hash-key prints an operator API key and the bcrypt hash to place under
auth.operator_key_hashes in the server config. Pass --key to hash an existing
key instead of generating one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := hashKeyValue
		if key == "" {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			key = base64.RawURLEncoding.EncodeToString(buf)
		}

		hash, err := hashOperatorKey(key, hashKeyCost)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nhash: %s\n", key, hash)
		return nil
	},
}

func hashOperatorKey(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(hash), nil
}

func init() {
	hashKeyCmd.Flags().StringVar(&hashKeyValue, "key", "", "Existing key to hash")
	hashKeyCmd.Flags().IntVar(&hashKeyCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}

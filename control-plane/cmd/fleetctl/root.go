package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/control-plane/internal/client"
)

var (
	serverURL  string
	apiKey     string
	operatorID string
	insecure   bool
)

var rootCmd = &cobra.Command{
	Use:           "fleetctl",
	Short:         "Fleet control plane CLI",
	Long:          "fleetctl drives missions, swarms and detection ingestion on the fleet control plane.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("FLEETCTL_SERVER", "http://localhost:8080"), "Control plane base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("FLEETCTL_API_KEY"), "Operator API key")
	rootCmd.PersistentFlags().StringVar(&operatorID, "operator", os.Getenv("FLEETCTL_OPERATOR"), "Operator ID recorded on mission events")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")

	rootCmd.AddCommand(missionCmd)
	rootCmd.AddCommand(droneCmd)
	rootCmd.AddCommand(swarmCmd)
	rootCmd.AddCommand(detectionsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(healthCmd)
}

func newClient() *client.Client {
	return client.NewClient(client.Config{
		BaseURL:            serverURL,
		APIKey:             apiKey,
		OperatorID:         operatorID,
		InsecureSkipVerify: insecure,
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// printJSON writes v to stdout as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

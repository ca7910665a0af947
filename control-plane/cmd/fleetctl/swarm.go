package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/pkg/types"
)

var swarmFile string

var swarmCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Publish and inspect swarm formations",
}

var swarmCoordinateCmd = &cobra.Command{
	Use:   "coordinate",
	Short: "Publish a swarm configuration and print the generated commands",
	Long: `coordinate reads a swarm configuration (YAML or JSON) and publishes it.
Each call replaces the swarm's previous configuration and bumps its version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if swarmFile == "" {
			return fmt.Errorf("--file is required")
		}
		var cfg types.SwarmConfig
		if err := readDocument(swarmFile, &cfg); err != nil {
			return err
		}
		result, err := newClient().CoordinateSwarm(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var swarmGetCmd = &cobra.Command{
	Use:   "get <swarm-id>",
	Short: "Show the current configuration of a swarm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := newClient().GetSwarm(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

func init() {
	swarmCoordinateCmd.Flags().StringVarP(&swarmFile, "file", "f", "", "Swarm configuration file (- for stdin)")

	swarmCmd.AddCommand(swarmCoordinateCmd)
	swarmCmd.AddCommand(swarmGetCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the control plane is reachable and its database is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", serverURL)
		return nil
	},
}

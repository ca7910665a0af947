package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/pkg/types"
)

var (
	droneName   string
	droneStatus string
	droneRole   string
)

var droneCmd = &cobra.Command{
	Use:   "drone",
	Short: "Register drones and assign them to missions",
}

var droneRegisterCmd = &cobra.Command{
	Use:   "register <drone-id>",
	Short: "Create or update a drone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().RegisterDrone(cmd.Context(), args[0], droneName, types.DroneStatus(droneStatus))
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var droneAssignCmd = &cobra.Command{
	Use:   "assign <drone-id> <mission-id>",
	Short: "Assign a drone to a mission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().AssignDrone(cmd.Context(), args[1], args[0], droneRole); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "drone %s assigned to mission %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	droneRegisterCmd.Flags().StringVar(&droneName, "name", "", "Display name")
	droneRegisterCmd.Flags().StringVar(&droneStatus, "status", "online", "Drone status (offline, online, mission, error, armed, flying)")
	droneAssignCmd.Flags().StringVar(&droneRole, "role", "", "Operational role on the mission")

	droneCmd.AddCommand(droneRegisterCmd)
	droneCmd.AddCommand(droneAssignCmd)
}

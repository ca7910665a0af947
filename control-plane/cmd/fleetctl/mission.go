package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/control-plane/internal/client"
	"github.com/pilot-net/fleet-control/pkg/types"
)

var (
	missionID      string
	missionName    string
	missionRuleset string
	patchFile      string
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Create, inspect and control missions",
}

var missionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a mission in planning",
	RunE: func(cmd *cobra.Command, args []string) error {
		var ruleset types.Ruleset
		if missionRuleset != "" {
			if err := readDocument(missionRuleset, &ruleset); err != nil {
				return err
			}
		}
		m, err := newClient().CreateMission(cmd.Context(), missionID, missionName, ruleset)
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	},
}

var missionGetCmd = &cobra.Command{
	Use:   "get <mission-id>",
	Short: "Show a mission and its assigned drones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newClient().GetMission(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	},
}

var missionUpdateCmd = &cobra.Command{
	Use:   "update-waypoints <mission-id>",
	Short: "Merge a ruleset patch into a planning or active mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if patchFile == "" {
			return fmt.Errorf("--patch is required")
		}
		var patch types.RulesetPatch
		if err := readDocument(patchFile, &patch); err != nil {
			return err
		}
		return controlMission(cmd, args[0], types.ActionUpdateWaypoints, &patch)
	},
}

// actionCommand builds a subcommand for an action that takes no payload.
func actionCommand(action types.MissionAction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <mission-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return controlMission(cmd, args[0], action, nil)
		},
	}
}

func controlMission(cmd *cobra.Command, id string, action types.MissionAction, patch *types.RulesetPatch) error {
	result, err := newClient().ControlMission(cmd.Context(), client.MissionControlRequest{
		MissionID: id,
		Action:    string(action),
		Payload:   patch,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func init() {
	missionCreateCmd.Flags().StringVar(&missionID, "id", "", "Mission ID (generated when empty)")
	missionCreateCmd.Flags().StringVar(&missionName, "name", "", "Mission name")
	missionCreateCmd.Flags().StringVar(&missionRuleset, "ruleset", "", "YAML or JSON ruleset file")
	missionUpdateCmd.Flags().StringVar(&patchFile, "patch", "", "YAML or JSON ruleset patch file")

	missionCmd.AddCommand(missionCreateCmd)
	missionCmd.AddCommand(missionGetCmd)
	missionCmd.AddCommand(missionUpdateCmd)
	missionCmd.AddCommand(actionCommand(types.ActionLaunch, "Launch a planning mission"))
	missionCmd.AddCommand(actionCommand(types.ActionPause, "Pause an active mission"))
	missionCmd.AddCommand(actionCommand(types.ActionResume, "Resume a paused mission"))
	missionCmd.AddCommand(actionCommand(types.ActionAbort, "Abort an active or paused mission"))
}

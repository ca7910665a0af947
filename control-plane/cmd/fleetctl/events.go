package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/pkg/types"
)

var (
	eventsMission  string
	eventsDrone    string
	eventsType     string
	eventsSeverity string
	eventsSince    time.Duration
	eventsLimit    int
	eventsJSON     bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events from the event log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.EventFilter{
			MissionID: eventsMission,
			DroneID:   eventsDrone,
			Type:      types.EventType(eventsType),
			Severity:  types.Severity(eventsSeverity),
			Limit:     eventsLimit,
		}
		if eventsSince > 0 {
			since := time.Now().Add(-eventsSince)
			filter.Since = &since
		}

		events, err := newClient().ListEvents(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if eventsJSON {
			return printJSON(cmd, events)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSEVERITY\tTYPE\tMISSION\tDRONE\tID")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.CreatedAt.Local().Format(time.DateTime), e.Severity, e.Type,
				deref(e.MissionID), deref(e.DroneID), e.ID)
		}
		return tw.Flush()
	},
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	eventsCmd.Flags().StringVar(&eventsMission, "mission", "", "Filter by mission ID")
	eventsCmd.Flags().StringVar(&eventsDrone, "drone", "", "Filter by drone ID")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type (MISSION_CONTROL, SWARM_INTENT, CRITICAL_DETECTION)")
	eventsCmd.Flags().StringVar(&eventsSeverity, "severity", "", "Minimum severity (info, warning, critical)")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "Only events newer than this, e.g. 1h")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "Maximum number of events (server default when 0)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print raw JSON")
}

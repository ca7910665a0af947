package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilot-net/fleet-control/control-plane/internal/client"
	"github.com/pilot-net/fleet-control/pkg/types"
)

var (
	detectionsFile string
	segmentDrone   string
	segmentMission string
)

var detectionsCmd = &cobra.Command{
	Use:   "detections",
	Short: "Register video segments and ingest detection batches",
}

var detectionsIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit a detection batch",
	Long: `ingest reads a batch (YAML or JSON) with video_segment_id, model_info and
detections, and submits it. The response reports how many critical alerts
were raised.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if detectionsFile == "" {
			return fmt.Errorf("--file is required")
		}
		var batch client.DetectionBatch
		if err := readDocument(detectionsFile, &batch); err != nil {
			return err
		}
		result, err := newClient().IngestDetections(cmd.Context(), batch)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var segmentRegisterCmd = &cobra.Command{
	Use:   "register-segment [segment-id]",
	Short: "Register a video segment recorded by a drone",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seg := types.VideoSegment{
			DroneID:   segmentDrone,
			MissionID: segmentMission,
		}
		if len(args) == 1 {
			seg.ID = args[0]
		}
		created, err := newClient().RegisterVideoSegment(cmd.Context(), seg)
		if err != nil {
			return err
		}
		return printJSON(cmd, created)
	},
}

var modelMetricsCmd = &cobra.Command{
	Use:   "metrics <model> <segment-id>",
	Short: "Show aggregate metrics for a model on a segment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newClient().GetModelMetrics(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	},
}

func init() {
	detectionsIngestCmd.Flags().StringVarP(&detectionsFile, "file", "f", "", "Detection batch file (- for stdin)")
	segmentRegisterCmd.Flags().StringVar(&segmentDrone, "drone", "", "Recording drone ID")
	segmentRegisterCmd.Flags().StringVar(&segmentMission, "mission", "", "Mission ID")
	segmentRegisterCmd.MarkFlagRequired("drone")
	segmentRegisterCmd.MarkFlagRequired("mission")

	detectionsCmd.AddCommand(detectionsIngestCmd)
	detectionsCmd.AddCommand(segmentRegisterCmd)
	detectionsCmd.AddCommand(modelMetricsCmd)
}

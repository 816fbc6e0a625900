package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panelworks/vrrd/internal/vrr"
)

func init() {
	rootCmd.AddCommand(stateCmd)
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the controller state and event queue",
	RunE:  runState,
}

func runState(cmd *cobra.Command, args []string) error {
	var snap vrr.Snapshot
	if err := apiGet("/api/state", &snap); err != nil {
		return err
	}

	fmt.Printf("State:          %s\n", snap.State)
	fmt.Printf("Enabled:        %v\n", snap.Enabled)
	fmt.Printf("Active config:  %d\n", snap.ActiveConfigID)
	fmt.Printf("Pending frames: %d\n", snap.PendingFrames)
	fmt.Printf("Queued events:  %d\n", snap.QueueLen)
	if snap.EventQueue != "" {
		fmt.Println("Event queue:")
		fmt.Print(snap.EventQueue)
	}
	for _, p := range snap.PresentHistory {
		fmt.Printf("present: time = %d, interval = %d\n", p.TimeNs, p.FrameIntervalNs)
	}
	return nil
}

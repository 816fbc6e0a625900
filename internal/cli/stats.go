package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/panelworks/vrrd/internal/daemon"
	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/infra/sqlite"
)

func init() {
	statsCmd.Flags().StringVar(&statsSnapshot, "snapshot", "", "Show a stored snapshot instead of live statistics")
	statsCmd.Flags().BoolVar(&statsList, "list", false, "List stored snapshots")
	rootCmd.AddCommand(statsCmd)
}

var (
	statsSnapshot string
	statsList     bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show present-interval statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsList {
		return listSnapshots()
	}

	var entries []display.StatEntry
	if statsSnapshot != "" {
		db, err := sqlite.Open(daemon.VrrdHome())
		if err != nil {
			return err
		}
		defer db.Close()
		entries, err = db.SnapshotStats(statsSnapshot)
		if err != nil {
			return err
		}
	} else if err := apiGet("/api/statistics", &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No statistics recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POWER\tBRIGHTNESS\tCONFIG\tVSYNCS\tCOUNT\tLAST PRESENT (ns)")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			e.Profile.Status.PowerMode,
			e.Profile.Status.BrightnessMode,
			e.Profile.Status.ActiveConfigID,
			e.Profile.NumVsync,
			e.Record.Count,
			e.Record.LastTimestampNs,
		)
	}
	return w.Flush()
}

func listSnapshots() error {
	db, err := sqlite.Open(daemon.VrrdHome())
	if err != nil {
		return err
	}
	defer db.Close()

	snapshots, err := db.ListSnapshots()
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Println("No snapshots stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAKEN\tENTRIES")
	for _, s := range snapshots {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.ID, s.TakenAt.Format("2006-01-02 15:04:05"), s.Entries)
	}
	return w.Flush()
}

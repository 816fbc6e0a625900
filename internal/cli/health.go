package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/panelworks/vrrd/internal/daemon"
	"github.com/panelworks/vrrd/internal/health"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the daemon self-check results",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/health", cfg.API.Host, cfg.API.Port)

	// A degraded daemon answers 503 with the same body, so decode either way.
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is vrrd running? %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", body.Status)
	if len(body.Checks) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tHEALTHY\tERROR")
	for _, c := range body.Checks {
		fmt.Fprintf(w, "%s\t%v\t%s\n", c.Name, c.Healthy, c.Error)
	}
	return w.Flush()
}

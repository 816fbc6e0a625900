package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/panelworks/vrrd/internal/daemon"
)

// apiGet fetches a JSON resource from the running daemon's API.
func apiGet(path string, out interface{}) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", cfg.API.Host, cfg.API.Port, path)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is vrrd running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

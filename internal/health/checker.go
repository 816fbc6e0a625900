// Package health runs periodic daemon self-checks: the snapshot store, the
// panel command node, and the controller worker.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panelworks/vrrd/internal/infra/sqlite"
	"github.com/panelworks/vrrd/internal/panel"
	"github.com/panelworks/vrrd/internal/vrr"
)

// Check is a single named health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status is the result of one health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs the checks on a fixed interval and caches the results.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the standard vrrd checks. db may be nil when the sqlite
// sink is disabled; panelPath may be empty when no panel node is configured.
func NewChecker(db *sqlite.DB, panelPath string, controller *vrr.Controller) *Checker {
	checks := []Check{
		{
			Name: "controller_worker",
			CheckFn: func(ctx context.Context) error {
				select {
				case <-controller.Done():
					return fmt.Errorf("worker has exited")
				default:
					return nil
				}
			},
		},
		{
			Name: "panel_node",
			CheckFn: func(ctx context.Context) error {
				return checkPanelNode(panelPath)
			},
		},
	}
	if db != nil {
		checks = append(checks, Check{
			Name: "sqlite",
			CheckFn: func(ctx context.Context) error {
				return db.Ping()
			},
		})
	}
	return &Checker{
		interval: 60 * time.Second,
		checks:   checks,
	}
}

// Run starts the check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check passed on the last run.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// checkPanelNode verifies the frame-insertion command node is reachable.
// An unconfigured path is reported unhealthy: frame insertion cannot work.
func checkPanelNode(panelPath string) error {
	if panelPath == "" {
		return fmt.Errorf("no panel file node path configured")
	}
	node := filepath.Join(panelPath, panel.RefreshCtrlNode)
	info, err := os.Stat(node)
	if err != nil {
		return fmt.Errorf("check panel node: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("panel node %s is a directory", node)
	}
	return nil
}

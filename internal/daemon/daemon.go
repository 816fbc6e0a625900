package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panelworks/vrrd/internal/api"
	"github.com/panelworks/vrrd/internal/clock"
	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/health"
	"github.com/panelworks/vrrd/internal/infra/metrics"
	"github.com/panelworks/vrrd/internal/infra/sqlite"
	"github.com/panelworks/vrrd/internal/panel"
	"github.com/panelworks/vrrd/internal/stats"
	"github.com/panelworks/vrrd/internal/vrr"
)

// Daemon is the vrrd runtime. It wires the display context provider, the
// VRR controller, the statistics aggregator, the refresh-rate calculator,
// the snapshot store, and the HTTP API.
type Daemon struct {
	Config     Config
	Provider   display.ContextProvider
	Controller *vrr.Controller
	Looper     *vrr.Looper
	Statistic  *stats.Statistic
	Calculator *stats.Calculator
	DB         *sqlite.DB
	Server     *api.Server
	Checker    *health.Checker

	cancel context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	var provider display.ContextProvider
	if cfg.Panel.SysfsDir != "" {
		provider = display.NewSysfsProvider(cfg.Panel.SysfsDir, cfg.Panel.Path)
	} else {
		static := display.NewStaticProvider(cfg.Panel.Path)
		static.SetActiveConfigID(display.ConfigID(cfg.VRR.ActiveConfig))
		provider = static
	}

	panelPath := cfg.Panel.Path
	if panelPath == "" {
		panelPath = provider.PanelFileNodePath()
	}
	writer := panel.NewNodeWriter(panelPath)

	clk := clock.NewMonotonic()
	controller := vrr.NewController(clk, writer)

	table, err := cfg.VrrTable()
	if err != nil {
		return nil, fmt.Errorf("vrr config table: %w", err)
	}
	controller.SetVrrConfigurations(table)

	looper := vrr.NewLooper(clk)

	updatePeriod := parseDuration(cfg.Statistics.UpdatePeriod, time.Second)
	statistic := stats.NewStatistic(provider, looper, clk,
		cfg.Statistics.MaxFrameRate, cfg.Statistics.MaxTeFrequency,
		updatePeriod.Nanoseconds())

	calcParams := stats.DefaultCalculatorParams()
	if cfg.RefreshRate.Calculator == "major" {
		calcParams.Type = stats.CalculatorMajor
	}
	calcParams.MeasurePeriodNs = parseDuration(cfg.RefreshRate.MeasurePeriod, 500*time.Millisecond).Nanoseconds()
	if cfg.RefreshRate.Confidence > 0 {
		calcParams.ConfidencePercentage = cfg.RefreshRate.Confidence
	}
	calculator := stats.NewCalculator(looper, clk, cfg.Statistics.MaxTeFrequency, calcParams)

	d := &Daemon{
		Config:     cfg,
		Provider:   provider,
		Controller: controller,
		Looper:     looper,
		Statistic:  statistic,
		Calculator: calculator,
	}

	if cfg.Telemetry.SQLite {
		db, err := sqlite.Open(vrrdHome())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		d.DB = db
	}

	d.Checker = health.NewChecker(d.DB, panelPath, controller)

	srv := api.NewServer(controller, statistic, calculator, provider)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	srv.SetHealthChecker(d.Checker)
	d.Server = srv

	return d, nil
}

// Serve starts the control core and the HTTP server, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.Looper.Start()
	d.Controller.Start()
	d.Controller.SetEnable(true)
	d.Controller.SetActiveVrrConfiguration(display.ConfigID(d.Config.VRR.ActiveConfig))
	d.Statistic.SetActiveVrrConfiguration(
		display.ConfigID(d.Config.VRR.ActiveConfig), d.Config.Statistics.MaxTeFrequency)
	d.Statistic.Start()
	d.Calculator.Start()

	if d.DB != nil {
		go d.snapshotLoop(ctx)
	}
	go d.Checker.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		d.Controller.Stop()
		d.Looper.Stop()
		_ = httpServer.Shutdown(shutdownCtx)
		if d.DB != nil {
			_ = d.DB.Close()
		}
	}()

	fmt.Printf("vrrd serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// snapshotLoop flushes updated statistics into the snapshot store.
func (d *Daemon) snapshotLoop(ctx context.Context) {
	period := parseDuration(d.Config.Statistics.SnapshotPeriod, time.Minute)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated := d.Statistic.GetUpdatedStatistics()
			if len(updated) == 0 {
				continue
			}
			id, err := d.DB.SaveSnapshot(display.SortedEntries(updated))
			if err != nil {
				log.Printf("[daemon] save snapshot: %v", err)
				continue
			}
			metrics.SnapshotsTotal.Inc()
			log.Printf("[daemon] persisted snapshot %s (%d entries)", id, len(updated))
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.Controller.Stop()
	d.Looper.Stop()
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

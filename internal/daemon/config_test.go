package daemon

import (
	"testing"
	"time"

	"github.com/panelworks/vrrd/internal/display"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Node.ID != "display-primary" {
		t.Errorf("node id = %q", cfg.Node.ID)
	}
	if cfg.VRR.ActiveConfig != 1 || len(cfg.VRR.Configs) != 1 {
		t.Errorf("vrr table = %+v, want one active entry", cfg.VRR)
	}
	if cfg.Statistics.MaxTeFrequency != 120 || cfg.Statistics.MaxFrameRate != 120 {
		t.Errorf("statistics limits = %+v, want 120/120", cfg.Statistics)
	}
	if cfg.API.Port != 8791 {
		t.Errorf("api port = %d, want 8791", cfg.API.Port)
	}
	if !cfg.Telemetry.Prometheus || !cfg.Telemetry.SQLite {
		t.Error("telemetry sinks should default on")
	}
}

func TestVrrTable(t *testing.T) {
	cfg := DefaultConfig()
	table, err := cfg.VrrTable()
	if err != nil {
		t.Fatalf("VrrTable: %v", err)
	}
	entry, ok := table[display.ConfigID(1)]
	if !ok {
		t.Fatalf("table missing config 1: %+v", table)
	}
	if entry.MinFrameIntervalNs != 8_333_333 {
		t.Errorf("min frame interval = %d, want 8333333", entry.MinFrameIntervalNs)
	}
	if entry.NotifyExpectedPresentConfig.TimeoutNs != (30 * time.Millisecond).Nanoseconds() {
		t.Errorf("timeout = %d, want 30ms", entry.NotifyExpectedPresentConfig.TimeoutNs)
	}
}

func TestVrrTable_BadDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VRR.Configs[0].Timeout = "soon"
	if _, err := cfg.VrrTable(); err == nil {
		t.Error("expected error for unparseable timeout")
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("VRRD_HOME", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("port = %d, want default", cfg.API.Port)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("VRRD_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Node.ID = "display-bench"
	cfg.API.Port = 9100
	cfg.VRR.Configs = append(cfg.VRR.Configs, VRRConfigEntry{
		ID: 2, MinFrameInterval: "16666666ns", Timeout: "50ms",
	})
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Node.ID != "display-bench" {
		t.Errorf("node id = %q, want display-bench", loaded.Node.ID)
	}
	if loaded.API.Port != 9100 {
		t.Errorf("port = %d, want 9100", loaded.API.Port)
	}
	if len(loaded.VRR.Configs) != 2 {
		t.Fatalf("vrr configs = %d, want 2", len(loaded.VRR.Configs))
	}
	table, err := loaded.VrrTable()
	if err != nil {
		t.Fatalf("VrrTable: %v", err)
	}
	if table[display.ConfigID(2)].MinFrameIntervalNs != 16_666_666 {
		t.Errorf("config 2 min frame interval = %d", table[display.ConfigID(2)].MinFrameIntervalNs)
	}
}

func TestParseDuration_Fallback(t *testing.T) {
	if got := parseDuration("", 5*time.Second); got != 5*time.Second {
		t.Errorf("empty = %v, want fallback", got)
	}
	if got := parseDuration("nope", time.Minute); got != time.Minute {
		t.Errorf("garbage = %v, want fallback", got)
	}
	if got := parseDuration("250ms", time.Minute); got != 250*time.Millisecond {
		t.Errorf("valid = %v, want 250ms", got)
	}
}

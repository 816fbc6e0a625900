package display

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ContextProvider exposes the live display configuration the core consumes.
// Implementations must be safe for concurrent use.
type ContextProvider interface {
	PowerMode() PowerMode
	BrightnessMode() BrightnessMode
	ActiveConfigID() ConfigID
	PanelFileNodePath() string
}

// PowerModeListener receives power-state transitions from the power
// management path. The statistics aggregator implements this capability.
type PowerModeListener interface {
	OnPowerStateChange(from, to PowerMode)
}

// ─── Static provider ─────────────────────────────────────────────────────────

// StaticProvider is an in-memory ContextProvider, settable at runtime. It
// backs tests, simulation, and deployments without panel sysfs nodes.
type StaticProvider struct {
	mu         sync.RWMutex
	power      PowerMode
	brightness BrightnessMode
	config     ConfigID
	panelPath  string
}

// NewStaticProvider creates a provider reporting a normal, lit panel.
func NewStaticProvider(panelPath string) *StaticProvider {
	return &StaticProvider{
		power:      PowerNormal,
		brightness: BrightnessNormal,
		config:     InvalidConfigID,
		panelPath:  panelPath,
	}
}

func (p *StaticProvider) PowerMode() PowerMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.power
}

func (p *StaticProvider) BrightnessMode() BrightnessMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.brightness
}

func (p *StaticProvider) ActiveConfigID() ConfigID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

func (p *StaticProvider) PanelFileNodePath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.panelPath
}

// SetPowerMode updates the reported power mode.
func (p *StaticProvider) SetPowerMode(m PowerMode) {
	p.mu.Lock()
	p.power = m
	p.mu.Unlock()
}

// SetBrightnessMode updates the reported brightness mode.
func (p *StaticProvider) SetBrightnessMode(m BrightnessMode) {
	p.mu.Lock()
	p.brightness = m
	p.mu.Unlock()
}

// SetActiveConfigID updates the reported active configuration.
func (p *StaticProvider) SetActiveConfigID(id ConfigID) {
	p.mu.Lock()
	p.config = id
	p.mu.Unlock()
}

// ─── Sysfs provider ──────────────────────────────────────────────────────────

// SysfsProvider reads the display configuration from panel attribute files
// under a sysfs-style directory: power_mode, brightness_mode and
// active_config each hold a single integer. Reads fall back to the last
// good value when a node is missing or malformed.
type SysfsProvider struct {
	dir       string
	panelPath string

	mu         sync.Mutex
	power      PowerMode
	brightness BrightnessMode
	config     ConfigID
}

// NewSysfsProvider creates a provider rooted at dir. The panel command node
// directory defaults to dir unless panelPath overrides it.
func NewSysfsProvider(dir, panelPath string) *SysfsProvider {
	if panelPath == "" {
		panelPath = dir
	}
	return &SysfsProvider{
		dir:        dir,
		panelPath:  panelPath,
		power:      PowerOff,
		brightness: BrightnessInvalid,
		config:     InvalidConfigID,
	}
}

func (p *SysfsProvider) PowerMode() PowerMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.readInt("power_mode"); ok {
		p.power = PowerMode(v)
	}
	return p.power
}

func (p *SysfsProvider) BrightnessMode() BrightnessMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.readInt("brightness_mode"); ok {
		p.brightness = BrightnessMode(v)
	}
	return p.brightness
}

func (p *SysfsProvider) ActiveConfigID() ConfigID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.readInt("active_config"); ok {
		p.config = ConfigID(v)
	}
	return p.config
}

func (p *SysfsProvider) PanelFileNodePath() string { return p.panelPath }

func (p *SysfsProvider) readInt(node string) (int64, bool) {
	raw, err := os.ReadFile(filepath.Join(p.dir, node))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

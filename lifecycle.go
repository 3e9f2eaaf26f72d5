package phymuti

import (
	"sync"

	"github.com/phymuti/phymuti-go/internal/logging"
)

// System bundles the five cooperating registries in their dependency
// order: actions have no dependencies, the monitor dispatches into
// actions, memory regions broadcast into the monitor, and devices own
// memory regions. The rule engine sits beside the monitor, also
// dispatching into actions but never auto-triggered by memory access.
type System struct {
	Actions *ActionRegistry
	Monitor *Monitor
	Memory  *MemoryRegistry
	Devices *DeviceRegistry
	Rules   *RuleEngine
	Metrics *Metrics

	log *logging.Logger
}

// NewSystem constructs a fully wired System. Unlike the package-level
// Init/Cleanup pair, callers that want more than one independent
// simulation in a process should use this directly instead of the
// shared default instance.
func NewSystem() *System {
	log := logging.Default().WithComponent("system")
	metrics := NewMetrics()
	actions := newActionRegistry(log)
	actions.metrics = metrics
	monitor := newMonitor(actions, log)
	monitor.metrics = metrics
	memory := newMemoryRegistry(monitor, log)
	memory.metrics = metrics
	devices := newDeviceRegistry(memory, log)
	rules := newRuleEngine(actions, log)
	rules.metrics = metrics

	return &System{
		Actions: actions,
		Monitor: monitor,
		Memory:  memory,
		Devices: devices,
		Rules:   rules,
		Metrics: metrics,
		log:     log,
	}
}

// ProcessEvents is a reserved hook for a future time-driven stimulus
// scheduler; the current core only reacts to explicit reads/writes, so
// this is presently a no-op.
func (s *System) ProcessEvents() {
}

var (
	defaultMu     sync.RWMutex
	defaultSystem *System
)

// Init creates the process-wide default System, replacing any prior
// one. Safe to call more than once; each call starts a fresh lifecycle
// with registries reset to empty.
func Init() *System {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSystem = NewSystem()
	return defaultSystem
}

// Cleanup discards the process-wide default System, so the next Default
// or Init call builds a fresh one. It does not destroy the registries'
// devices, regions, watchpoints, actions or rules one by one, in any
// order, and it does not stop in-flight SCRIPT/COMMAND subprocesses.
func Cleanup() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSystem = nil
}

// Default returns the process-wide default System, calling Init
// lazily if it has not been set up yet.
func Default() *System {
	defaultMu.RLock()
	if defaultSystem != nil {
		defer defaultMu.RUnlock()
		return defaultSystem
	}
	defaultMu.RUnlock()
	return Init()
}

// ProcessEvents forwards to the default System's ProcessEvents.
func ProcessEvents() {
	Default().ProcessEvents()
}

package phymuti

import (
	"sync"
	"sync/atomic"

	"github.com/phymuti/phymuti-go/internal/logging"
	"github.com/phymuti/phymuti-go/internal/matchpool"
)

type matchEntry struct {
	actionID uint64
	ctx      AccessContext
}

type watchpoint struct {
	id          uint64
	regionID    uint64
	addr        uint64
	size        uint64
	kind        WatchpointKind
	enabled     bool
	targetValue uint64
	actionIDs   []uint64
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// WatchpointInfo is a point-in-time snapshot returned by GetInfo.
type WatchpointInfo struct {
	ID          uint64
	Region      uint64
	Address     uint64
	Size        uint64
	Kind        WatchpointKind
	Enabled     bool
	TargetValue uint64
	ActionIDs   []uint64
}

// Monitor is the per-region watchpoint engine: it tracks overlapping
// address-range watchpoints and, on every memory access notification,
// walks the matching ones and fires their bound actions. The walk and
// the firing are two separate phases (snapshot-then-invoke) so that an
// action invoked mid-dispatch can freely add, remove, enable, or
// disable watchpoints without corrupting the walk in progress or
// deadlocking on the monitor's own lock.
type Monitor struct {
	mu          sync.Mutex
	watchpoints map[uint64]*watchpoint
	order       []uint64 // newest-first; Add prepends
	byRegion    map[uint64]map[uint64]bool
	nextID      uint64

	actions *ActionRegistry
	pool    *matchpool.Pool[matchEntry]
	log     *logging.Logger
	metrics *Metrics
}

func newMonitor(actions *ActionRegistry, log *logging.Logger) *Monitor {
	return &Monitor{
		watchpoints: make(map[uint64]*watchpoint),
		byRegion:    make(map[uint64]map[uint64]bool),
		actions:     actions,
		pool:        matchpool.New[matchEntry](),
		log:         log.WithComponent("monitor"),
	}
}

// NewMonitor constructs a standalone Monitor dispatching into actions,
// for callers that want the monitor layer without the rest of a
// System.
func NewMonitor(actions *ActionRegistry) *Monitor {
	return newMonitor(actions, logging.Default())
}

func (mo *Monitor) allocID() uint64 {
	return atomic.AddUint64(&mo.nextID, 1)
}

// Add registers a new watchpoint on regionID covering [addr, addr+size)
// with the given kind and (for VALUE_WRITE) target value. size must be
// in [1, MaxWatchpointSize].
func (mo *Monitor) Add(regionID, addr, size uint64, kind WatchpointKind, targetValue uint64) (uint64, error) {
	if size == 0 || size > MaxWatchpointSize {
		return invalidID, NewError("Add", ErrCodeInvalidParam)
	}
	switch kind {
	case WatchRead, WatchWrite, WatchAccess, WatchValueWrite:
	default:
		return invalidID, NewError("Add", ErrCodeWatchpointInvalidType)
	}

	mo.mu.Lock()
	defer mo.mu.Unlock()

	id := mo.allocID()
	wp := &watchpoint{
		id:          id,
		regionID:    regionID,
		addr:        addr,
		size:        size,
		kind:        kind,
		enabled:     true,
		targetValue: targetValue,
		actionIDs:   make([]uint64, 0, actionListInitialCapacity),
	}
	mo.watchpoints[id] = wp
	mo.order = append([]uint64{id}, mo.order...)
	if mo.byRegion[regionID] == nil {
		mo.byRegion[regionID] = make(map[uint64]bool)
	}
	mo.byRegion[regionID][id] = true
	if mo.metrics != nil {
		mo.metrics.WatchpointsAdded.Add(1)
	}

	mo.log.Debug("watchpoint added", "id", id, "region", regionID, "addr", addr, "size", size, "kind", kind)
	return id, nil
}

// Remove deletes a watchpoint.
func (mo *Monitor) Remove(id uint64) error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[id]
	if !ok {
		return NewError("Remove", ErrCodeWatchpointNotFound)
	}
	mo.removeLocked(wp)
	return nil
}

func (mo *Monitor) removeLocked(wp *watchpoint) {
	delete(mo.watchpoints, wp.id)
	if set, ok := mo.byRegion[wp.regionID]; ok {
		delete(set, wp.id)
	}
	for i, id := range mo.order {
		if id == wp.id {
			mo.order = append(mo.order[:i], mo.order[i+1:]...)
			break
		}
	}
}

// Enable re-activates a disabled watchpoint.
func (mo *Monitor) Enable(id uint64) error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[id]
	if !ok {
		return NewError("Enable", ErrCodeWatchpointNotFound)
	}
	wp.enabled = true
	return nil
}

// Disable deactivates a watchpoint without removing it.
func (mo *Monitor) Disable(id uint64) error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[id]
	if !ok {
		return NewError("Disable", ErrCodeWatchpointNotFound)
	}
	wp.enabled = false
	return nil
}

// BindAction attaches actionID to watchpoint wpID. Duplicate binds are
// idempotent: the call succeeds without adding a second entry. No
// check is made that actionID currently resolves to a live action —
// late binding is tolerated, matching the action registry's own
// late-bound dispatch.
func (mo *Monitor) BindAction(wpID, actionID uint64) error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[wpID]
	if !ok {
		return NewError("BindAction", ErrCodeWatchpointNotFound)
	}
	if containsID(wp.actionIDs, actionID) {
		return nil
	}
	wp.actionIDs = append(wp.actionIDs, actionID)
	return nil
}

// UnbindAction detaches actionID from watchpoint wpID, returning
// NotFound if the binding did not exist.
func (mo *Monitor) UnbindAction(wpID, actionID uint64) error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[wpID]
	if !ok {
		return NewError("UnbindAction", ErrCodeWatchpointNotFound)
	}
	for i, id := range wp.actionIDs {
		if id == actionID {
			wp.actionIDs = append(wp.actionIDs[:i], wp.actionIDs[i+1:]...)
			return nil
		}
	}
	return NewError("UnbindAction", ErrCodeNotFound)
}

// GetInfo returns a snapshot of a watchpoint's current state.
func (mo *Monitor) GetInfo(id uint64) (WatchpointInfo, error) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	wp, ok := mo.watchpoints[id]
	if !ok {
		return WatchpointInfo{}, NewError("GetInfo", ErrCodeWatchpointNotFound)
	}
	return WatchpointInfo{
		ID:          wp.id,
		Region:      wp.regionID,
		Address:     wp.addr,
		Size:        wp.size,
		Kind:        wp.kind,
		Enabled:     wp.enabled,
		TargetValue: wp.targetValue,
		ActionIDs:   append([]uint64(nil), wp.actionIDs...),
	}, nil
}

func kindMatches(wpKind WatchpointKind, access AccessKind, value, target uint64) bool {
	switch wpKind {
	case WatchRead:
		return access == AccessRead
	case WatchWrite:
		return access == AccessWrite
	case WatchAccess:
		return access == AccessRead || access == AccessWrite
	case WatchValueWrite:
		return access == AccessWrite && value == target
	default:
		return false
	}
}

// Notify is called by the memory layer after every successful access.
// It walks watchpoints for the accessed region, collects every
// (action, context) match under lock, releases the lock, then invokes
// each action. Actions invoked during this phase may freely call back
// into Add/Remove/Enable/Disable/BindAction or anything else on the
// Monitor: the walk has already finished by the time any action runs.
func (mo *Monitor) Notify(regionID, addr uint64, size uint32, value uint64, kind AccessKind) {
	mo.mu.Lock()
	matches := mo.pool.Get(len(mo.watchpoints))
	end := addr + uint64(size)
	for _, id := range mo.order {
		wp := mo.watchpoints[id]
		if wp == nil || !wp.enabled || wp.regionID != regionID {
			continue
		}
		if end <= wp.addr || addr >= wp.addr+wp.size {
			continue
		}
		if !kindMatches(wp.kind, kind, value, wp.targetValue) {
			continue
		}
		ctx := AccessContext{Region: regionID, Address: addr, Size: size, Value: value, Kind: kind}
		for _, actionID := range wp.actionIDs {
			matches = append(matches, matchEntry{actionID: actionID, ctx: ctx})
		}
	}
	mo.mu.Unlock()

	for _, match := range matches {
		err := mo.actions.Execute(match.actionID, match.ctx)
		if mo.metrics != nil {
			mo.metrics.RecordWatchpointFire()
		}
		if err != nil && !IsCode(err, ErrCodeActionNotFound) {
			mo.log.Warn("watchpoint action failed", "action", match.actionID, "error", err)
		}
	}
	mo.pool.Put(matches)
}

// hasWatchpointsFor reports whether any watchpoint still references
// regionID, used by the memory registry to refuse destroying a region
// still in use.
func (mo *Monitor) hasWatchpointsFor(regionID uint64) bool {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	return len(mo.byRegion[regionID]) > 0
}

// destroyAllForRegion force-removes every watchpoint attached to
// regionID, used when a region is cascade-destroyed along with its
// owning device.
func (mo *Monitor) destroyAllForRegion(regionID uint64) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	for id := range mo.byRegion[regionID] {
		if wp, ok := mo.watchpoints[id]; ok {
			mo.removeLocked(wp)
		}
	}
	delete(mo.byRegion, regionID)
}

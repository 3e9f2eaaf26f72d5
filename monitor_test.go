package phymuti

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func countingAction(counter *int64) ActionFunc {
	return func(ctx AccessContext, userData any) error {
		atomic.AddInt64(counter, 1)
		return nil
	}
}

func TestMonitorWriteWatchpointEnableDisable(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	mock := NewMockActionCallback()
	actionID, _ := actions.CreateCallback(mock.Func(), nil)
	wpID, err := monitor.Add(1, 0x1000, 4, WatchWrite, 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := monitor.BindAction(wpID, actionID); err != nil {
		t.Fatalf("BindAction: %v", err)
	}

	monitor.Notify(1, 0x1000, 4, 1, AccessWrite)
	monitor.Notify(1, 0x1000, 4, 2, AccessWrite)
	monitor.Notify(1, 0x1000, 4, 3, AccessWrite)
	if mock.CallCount() != 3 {
		t.Fatalf("call count = %d, want 3", mock.CallCount())
	}

	if err := monitor.Disable(wpID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	monitor.Notify(1, 0x1000, 4, 4, AccessWrite)
	if mock.CallCount() != 3 {
		t.Fatalf("call count after disable = %d, want 3", mock.CallCount())
	}

	if err := monitor.Enable(wpID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	monitor.Notify(1, 0x1000, 4, 5, AccessWrite)
	if mock.CallCount() != 4 {
		t.Fatalf("call count after re-enable = %d, want 4", mock.CallCount())
	}
	last := mock.Calls()[mock.CallCount()-1]
	if last.Value != 5 {
		t.Fatalf("last call value = %d, want 5", last.Value)
	}
}

func TestMonitorValueWriteFiresOnlyOnMatch(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	var counter int64
	actionID, _ := actions.CreateCallback(countingAction(&counter), nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchValueWrite, 0x42280000)
	monitor.BindAction(wpID, actionID)

	monitor.Notify(1, 0x1000, 4, 0x41200000, AccessWrite)
	monitor.Notify(1, 0x1000, 4, 0x42280000, AccessWrite)
	monitor.Notify(1, 0x1000, 4, 0x42880000, AccessWrite)

	if counter != 1 {
		t.Fatalf("counter = %d, want 1", counter)
	}
}

func TestMonitorHalfOpenOverlapAbuttingDoesNotFire(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	var counter int64
	actionID, _ := actions.CreateCallback(countingAction(&counter), nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchAccess, 0)
	monitor.BindAction(wpID, actionID)

	// Access at [0x1004, 0x1008) abuts [0x1000, 0x1004) exactly; must not fire.
	monitor.Notify(1, 0x1004, 4, 0, AccessWrite)
	if counter != 0 {
		t.Fatalf("abutting access fired, counter = %d", counter)
	}

	monitor.Notify(1, 0x1000, 4, 0, AccessWrite)
	if counter != 1 {
		t.Fatalf("overlapping access did not fire, counter = %d", counter)
	}
}

func TestMonitorAccessKindDoesNotMatchExec(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	var counter int64
	actionID, _ := actions.CreateCallback(countingAction(&counter), nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchAccess, 0)
	monitor.BindAction(wpID, actionID)

	monitor.Notify(1, 0x1000, 4, 0, AccessExec)
	if counter != 0 {
		t.Fatalf("ACCESS watchpoint fired on EXEC, counter = %d", counter)
	}
}

func TestMonitorBindActionIdempotent(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	var counter int64
	actionID, _ := actions.CreateCallback(countingAction(&counter), nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchWrite, 0)

	monitor.BindAction(wpID, actionID)
	monitor.BindAction(wpID, actionID)

	info, _ := monitor.GetInfo(wpID)
	if len(info.ActionIDs) != 1 {
		t.Fatalf("ActionIDs = %v, want exactly one entry", info.ActionIDs)
	}

	monitor.Notify(1, 0x1000, 4, 0, AccessWrite)
	if counter != 1 {
		t.Fatalf("counter = %d, want 1 (fired once, not twice)", counter)
	}
}

func TestMonitorUnbindThenRebindRestoresList(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)
	actionID, _ := actions.CreateCallback(func(AccessContext, any) error { return nil }, nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchWrite, 0)

	monitor.BindAction(wpID, actionID)
	before, _ := monitor.GetInfo(wpID)

	if err := monitor.UnbindAction(wpID, actionID); err != nil {
		t.Fatalf("UnbindAction: %v", err)
	}
	if err := monitor.BindAction(wpID, actionID); err != nil {
		t.Fatalf("BindAction: %v", err)
	}
	after, _ := monitor.GetInfo(wpID)

	if len(before.ActionIDs) != len(after.ActionIDs) {
		t.Fatalf("action list not restored: before=%v after=%v", before.ActionIDs, after.ActionIDs)
	}
}

func TestMonitorGetInfoSnapshot(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)
	actionID, _ := actions.CreateCallback(func(AccessContext, any) error { return nil }, nil)

	wpID, _ := monitor.Add(7, 0x2000, 4, WatchValueWrite, 0x99)
	monitor.BindAction(wpID, actionID)

	got, err := monitor.GetInfo(wpID)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	want := WatchpointInfo{
		ID:          wpID,
		Region:      7,
		Address:     0x2000,
		Size:        4,
		Kind:        WatchValueWrite,
		Enabled:     true,
		TargetValue: 0x99,
		ActionIDs:   []uint64{actionID},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetInfo mismatch (-want +got):\n%s", diff)
	}
}

func TestMonitorActionFailureIsLoggedNotFatal(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	mock := NewMockActionCallback()
	mock.FailWith(errors.New("boom"))
	actionID, _ := actions.CreateCallback(mock.Func(), nil)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchWrite, 0)
	monitor.BindAction(wpID, actionID)

	// Notify must not panic or block even though the bound action fails;
	// the failure is only logged.
	monitor.Notify(1, 0x1000, 4, 1, AccessWrite)
	if mock.CallCount() != 1 {
		t.Fatalf("call count = %d, want 1 despite action failure", mock.CallCount())
	}
}

func TestMonitorUnbindMissingReturnsNotFound(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)
	wpID, _ := monitor.Add(1, 0x1000, 4, WatchWrite, 0)

	err := monitor.UnbindAction(wpID, 999)
	if !IsCode(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestMonitorAddInvalidSize(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	if _, err := monitor.Add(1, 0, 0, WatchWrite, 0); !IsCode(err, ErrCodeInvalidParam) {
		t.Fatalf("size 0: expected InvalidParam, got %v", err)
	}
	if _, err := monitor.Add(1, 0, 9, WatchWrite, 0); !IsCode(err, ErrCodeInvalidParam) {
		t.Fatalf("size 9: expected InvalidParam, got %v", err)
	}
}

func TestMonitorActionAddedDuringCallbackWaitsForNextAccess(t *testing.T) {
	actions := NewActionRegistry()
	monitor := NewMonitor(actions)

	var secondCounter int64
	var secondWPID uint64
	firstActionID, _ := actions.CreateCallback(func(ctx AccessContext, userData any) error {
		secondWPID, _ = monitor.Add(1, 0x2000, 4, WatchWrite, 0)
		secondActionID, _ := actions.CreateCallback(countingAction(&secondCounter), nil)
		monitor.BindAction(secondWPID, secondActionID)
		return nil
	}, nil)
	firstWPID, _ := monitor.Add(1, 0x1000, 4, WatchWrite, 0)
	monitor.BindAction(firstWPID, firstActionID)

	monitor.Notify(1, 0x1000, 4, 0, AccessWrite)
	monitor.Notify(1, 0x2000, 4, 0, AccessWrite)
	if secondCounter != 1 {
		t.Fatalf("second watchpoint should fire on the access after it was created, counter = %d", secondCounter)
	}
	if secondWPID == invalidID {
		t.Fatal("second watchpoint was not created")
	}
}

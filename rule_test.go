package phymuti

import (
	"errors"
	"testing"
)

func TestRuleCreateDefaultsDisabled(t *testing.T) {
	sys := NewSystem()
	id, err := sys.Rules.Create("high")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var fired bool
	actionID, _ := sys.Actions.CreateCallback(func(AccessContext, any) error {
		fired = true
		return nil
	}, nil)
	sys.Rules.SetCondition(id, func(ctx AccessContext, userData any) bool { return true }, nil)
	sys.Rules.AddAction(id, actionID)

	if err := sys.Rules.Evaluate(id, AccessContext{}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if fired {
		t.Fatal("freshly created rule must default to disabled")
	}
}

func TestRuleEvaluateCountsMatchingContexts(t *testing.T) {
	sys := NewSystem()
	id, _ := sys.Rules.Create("high")
	sys.Rules.SetCondition(id, func(ctx AccessContext, userData any) bool {
		return ctx.Value > 30
	}, nil)

	var counter int
	actionID, _ := sys.Actions.CreateCallback(func(AccessContext, any) error {
		counter++
		return nil
	}, nil)
	sys.Rules.AddAction(id, actionID)
	sys.Rules.Enable(id)

	for _, v := range []uint64{25, 31, 29, 40} {
		sys.Rules.Evaluate(id, AccessContext{Value: v})
	}
	if counter != 2 {
		t.Fatalf("counter = %d, want 2", counter)
	}
}

func TestRuleDuplicateNameFails(t *testing.T) {
	sys := NewSystem()
	sys.Rules.Create("dup")
	if _, err := sys.Rules.Create("dup"); !IsCode(err, ErrCodeAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRuleEmptyNameFails(t *testing.T) {
	sys := NewSystem()
	if _, err := sys.Rules.Create(""); !IsCode(err, ErrCodeInvalidParam) {
		t.Fatalf("expected InvalidParam, got %v", err)
	}
}

func TestRuleAddActionIdempotent(t *testing.T) {
	sys := NewSystem()
	id, _ := sys.Rules.Create("r")

	var count int
	actionID, _ := sys.Actions.CreateCallback(func(AccessContext, any) error {
		count++
		return nil
	}, nil)

	sys.Rules.AddAction(id, actionID)
	sys.Rules.AddAction(id, actionID)
	sys.Rules.SetCondition(id, func(AccessContext, any) bool { return true }, nil)
	sys.Rules.Enable(id)

	sys.Rules.Evaluate(id, AccessContext{})
	if count != 1 {
		t.Fatalf("action fired %d times, want exactly 1", count)
	}
}

func TestRuleConditionlessEvaluateIsNoOp(t *testing.T) {
	sys := NewSystem()
	id, _ := sys.Rules.Create("r")
	sys.Rules.Enable(id)
	if err := sys.Rules.Evaluate(id, AccessContext{}); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func TestRuleContinuesPastActionFailureAndReportsFirst(t *testing.T) {
	sys := NewSystem()
	id, _ := sys.Rules.Create("r")
	sys.Rules.SetCondition(id, func(AccessContext, any) bool { return true }, nil)
	sys.Rules.Enable(id)

	var secondRan bool
	failing, _ := sys.Actions.CreateCallback(func(AccessContext, any) error {
		return errors.New("boom")
	}, nil)
	ok, _ := sys.Actions.CreateCallback(func(AccessContext, any) error {
		secondRan = true
		return nil
	}, nil)
	sys.Rules.AddAction(id, failing)
	sys.Rules.AddAction(id, ok)

	err := sys.Rules.Evaluate(id, AccessContext{})
	if err == nil {
		t.Fatal("expected the first failure to be reported")
	}
	if !secondRan {
		t.Fatal("evaluation should continue past a failing action")
	}
}

func TestRuleFindByName(t *testing.T) {
	sys := NewSystem()
	id, _ := sys.Rules.Create("named")
	got, err := sys.Rules.FindByName("named")
	if err != nil || got != id {
		t.Fatalf("FindByName = %d, %v; want %d, nil", got, err, id)
	}
}

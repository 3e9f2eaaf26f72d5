package phymuti

import (
	"sync"
	"sync/atomic"

	"github.com/phymuti/phymuti-go/internal/logging"
)

// ConditionFunc is a rule's predicate: given the access context under
// evaluation and the closure datum registered with SetCondition, it
// reports whether the rule's bound actions should fire.
type ConditionFunc func(ctx AccessContext, userData any) bool

type rule struct {
	id        uint64
	name      string
	condition ConditionFunc
	condData  any
	actionIDs []uint64
	enabled   bool

	mu       sync.Mutex
	userData any
}

// RuleEngine holds named condition-plus-action-set rules, evaluated
// explicitly by the embedder against an access context. Unlike the
// monitor, rules are never auto-triggered by a memory access — see
// RuleEngine.Evaluate.
type RuleEngine struct {
	mu     sync.Mutex
	rules  map[uint64]*rule
	byName map[string]uint64
	nextID uint64

	actions *ActionRegistry
	log     *logging.Logger
	metrics *Metrics
}

func newRuleEngine(actions *ActionRegistry, log *logging.Logger) *RuleEngine {
	return &RuleEngine{
		rules:   make(map[uint64]*rule),
		byName:  make(map[string]uint64),
		actions: actions,
		log:     log.WithComponent("rule"),
	}
}

// NewRuleEngine constructs a standalone RuleEngine dispatching into
// actions, for callers that want the rule layer without the rest of a
// System.
func NewRuleEngine(actions *ActionRegistry) *RuleEngine {
	return newRuleEngine(actions, logging.Default())
}

func (e *RuleEngine) allocID() uint64 {
	return atomic.AddUint64(&e.nextID, 1)
}

// Create registers a new rule named name. A freshly created rule
// starts disabled: the embedder must call Enable before Evaluate has
// any effect, matching how the reference sensor example always issues
// an explicit enable after create (see DESIGN.md Open Questions).
func (e *RuleEngine) Create(name string) (uint64, error) {
	if name == "" {
		return invalidID, NewError("Create", ErrCodeInvalidParam)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byName[name]; exists {
		return invalidID, NewError("Create", ErrCodeAlreadyExists)
	}
	id := e.allocID()
	e.rules[id] = &rule{id: id, name: name, enabled: false}
	e.byName[name] = id
	e.log.Debug("rule created", "id", id, "name", name)
	return id, nil
}

// Destroy removes a rule.
func (e *RuleEngine) Destroy(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("Destroy", ErrCodeRuleNotFound)
	}
	delete(e.rules, id)
	delete(e.byName, r.name)
	return nil
}

// SetCondition installs or replaces a rule's predicate and closure
// datum.
func (e *RuleEngine) SetCondition(id uint64, fn ConditionFunc, userData any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("SetCondition", ErrCodeRuleNotFound)
	}
	r.condition = fn
	r.condData = userData
	return nil
}

// AddAction binds actionID to rule id. Duplicate binds are idempotent.
func (e *RuleEngine) AddAction(id, actionID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("AddAction", ErrCodeRuleNotFound)
	}
	if containsID(r.actionIDs, actionID) {
		return nil
	}
	r.actionIDs = append(r.actionIDs, actionID)
	return nil
}

// RemoveAction unbinds actionID from rule id.
func (e *RuleEngine) RemoveAction(id, actionID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("RemoveAction", ErrCodeRuleNotFound)
	}
	for i, a := range r.actionIDs {
		if a == actionID {
			r.actionIDs = append(r.actionIDs[:i], r.actionIDs[i+1:]...)
			return nil
		}
	}
	return NewError("RemoveAction", ErrCodeNotFound)
}

// Enable activates a rule so Evaluate will act on it.
func (e *RuleEngine) Enable(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("Enable", ErrCodeRuleNotFound)
	}
	r.enabled = true
	return nil
}

// Disable deactivates a rule without destroying it.
func (e *RuleEngine) Disable(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return NewError("Disable", ErrCodeRuleNotFound)
	}
	r.enabled = false
	return nil
}

// FindByName returns the id of the rule named name.
func (e *RuleEngine) FindByName(name string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byName[name]
	if !ok {
		return invalidID, NewError("FindByName", ErrCodeRuleNotFound)
	}
	return id, nil
}

// Name returns the name a rule was created with.
func (e *RuleEngine) Name(id uint64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return "", NewError("Name", ErrCodeRuleNotFound)
	}
	return r.name, nil
}

// UserData reads a rule's user data slot.
func (e *RuleEngine) UserData(id uint64) (any, error) {
	e.mu.Lock()
	r, ok := e.rules[id]
	e.mu.Unlock()
	if !ok {
		return nil, NewError("UserData", ErrCodeRuleNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userData, nil
}

// SetUserData writes a rule's user data slot.
func (e *RuleEngine) SetUserData(id uint64, v any) error {
	e.mu.Lock()
	r, ok := e.rules[id]
	e.mu.Unlock()
	if !ok {
		return NewError("SetUserData", ErrCodeRuleNotFound)
	}
	r.mu.Lock()
	r.userData = v
	r.mu.Unlock()
	return nil
}

// Evaluate runs rule id's predicate against ctx if the rule is enabled
// and has a condition installed; a disabled or condition-less rule is
// a no-op success. If the predicate returns true, every bound action
// is executed in bind order against a copy of the action list taken
// before the predicate ran — so neither the predicate nor an action it
// triggers can corrupt the very list being walked. Execution continues
// past individual action failures; the first one encountered is
// returned after every action has run.
func (e *RuleEngine) Evaluate(id uint64, ctx AccessContext) error {
	e.mu.Lock()
	r, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return NewError("Evaluate", ErrCodeRuleNotFound)
	}
	if !r.enabled || r.condition == nil {
		e.mu.Unlock()
		return nil
	}
	condition := r.condition
	condData := r.condData
	actionIDs := append([]uint64(nil), r.actionIDs...)
	e.mu.Unlock()

	fired := condition(ctx, condData)
	if e.metrics != nil {
		e.metrics.RecordRuleEvaluation(fired)
	}
	if !fired {
		return nil
	}

	var firstErr error
	for _, actionID := range actionIDs {
		if err := e.actions.Execute(actionID, ctx); err != nil {
			if IsCode(err, ErrCodeActionNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = NewErrorMsg("Evaluate", ErrCodeRuleActionFailed, err.Error())
			}
		}
	}
	return firstErr
}

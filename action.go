package phymuti

import (
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/phymuti/phymuti-go/internal/logging"
)

// ActionFunc is the signature of a CALLBACK action's payload. It
// receives the same AccessContext the monitor or a rule evaluated,
// plus whatever user data was registered alongside it. Callbacks may
// freely call back into any other public System API — the registries
// never hold their lock across this call.
type ActionFunc func(ctx AccessContext, userData any) error

type action struct {
	id         uint64
	kind       ActionType
	callback   ActionFunc
	scriptPath string
	cmdline    string

	mu       sync.Mutex
	userData any
}

// ActionRegistry is the identity-addressable directory of executable
// units (callback, script, command) that watchpoints and rules bind to
// by id. Actions are never owned by a watchpoint or rule; bindings
// hold only ids, so an action can be destroyed out from under a stale
// binding without corrupting anything — dispatch simply skips ids it
// can no longer resolve.
type ActionRegistry struct {
	mu      sync.Mutex
	actions map[uint64]*action
	nextID  uint64

	log     *logging.Logger
	metrics *Metrics
}

func newActionRegistry(log *logging.Logger) *ActionRegistry {
	return &ActionRegistry{
		actions: make(map[uint64]*action),
		log:     log.WithComponent("action"),
	}
}

// NewActionRegistry constructs a standalone ActionRegistry, for callers
// that want the action layer without the rest of a System.
func NewActionRegistry() *ActionRegistry {
	return newActionRegistry(logging.Default())
}

func (r *ActionRegistry) allocID() uint64 {
	return atomic.AddUint64(&r.nextID, 1)
}

// CreateCallback registers a CALLBACK action invoking fn with userData
// on execution.
func (r *ActionRegistry) CreateCallback(fn ActionFunc, userData any) (uint64, error) {
	if fn == nil {
		return invalidID, NewError("CreateCallback", ErrCodeInvalidParam)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocID()
	r.actions[id] = &action{id: id, kind: ActionCallback, callback: fn, userData: userData}
	r.log.Debug("action created", "id", id, "type", ActionCallback)
	return id, nil
}

// CreateScript registers a SCRIPT action that execs path with decimal
// access-context arguments on execution.
func (r *ActionRegistry) CreateScript(path string) (uint64, error) {
	if path == "" {
		return invalidID, NewError("CreateScript", ErrCodeInvalidParam)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocID()
	r.actions[id] = &action{id: id, kind: ActionScript, scriptPath: path}
	r.log.Debug("action created", "id", id, "type", ActionScript)
	return id, nil
}

// CreateCommand registers a COMMAND action that runs cmdline through a
// shell on execution.
func (r *ActionRegistry) CreateCommand(cmdline string) (uint64, error) {
	if cmdline == "" {
		return invalidID, NewError("CreateCommand", ErrCodeInvalidParam)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocID()
	r.actions[id] = &action{id: id, kind: ActionCommand, cmdline: cmdline}
	r.log.Debug("action created", "id", id, "type", ActionCommand)
	return id, nil
}

// Destroy removes an action from the registry.
func (r *ActionRegistry) Destroy(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[id]; !ok {
		return NewError("Destroy", ErrCodeActionNotFound)
	}
	delete(r.actions, id)
	r.log.Debug("action destroyed", "id", id)
	return nil
}

// GetType reports the ActionType an action id was created with.
func (r *ActionRegistry) GetType(id uint64) (ActionType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return 0, NewError("GetType", ErrCodeActionNotFound)
	}
	return a.kind, nil
}

// SetUserData replaces the user data slot of an action.
func (r *ActionRegistry) SetUserData(id uint64, data any) error {
	r.mu.Lock()
	a, ok := r.actions[id]
	r.mu.Unlock()
	if !ok {
		return NewError("SetUserData", ErrCodeActionNotFound)
	}
	a.mu.Lock()
	a.userData = data
	a.mu.Unlock()
	return nil
}

// GetUserData reads the user data slot of an action.
func (r *ActionRegistry) GetUserData(id uint64) (any, error) {
	r.mu.Lock()
	a, ok := r.actions[id]
	r.mu.Unlock()
	if !ok {
		return nil, NewError("GetUserData", ErrCodeActionNotFound)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userData, nil
}

// Execute runs the action identified by id with ctx, returning
// ActionNotFound if id does not resolve. Dispatch call sites (monitor,
// rule engine) treat that specific error as a silent skip rather than
// a failed notify/evaluate, since a watchpoint or rule may reference
// an action destroyed after it was bound.
func (r *ActionRegistry) Execute(id uint64, ctx AccessContext) error {
	r.mu.Lock()
	a, ok := r.actions[id]
	r.mu.Unlock()
	if !ok {
		return NewError("Execute", ErrCodeActionNotFound)
	}

	err := r.dispatch(a, ctx)
	if r.metrics != nil {
		r.metrics.RecordAction(err == nil)
	}
	return err
}

func (r *ActionRegistry) dispatch(a *action, ctx AccessContext) error {
	switch a.kind {
	case ActionCallback:
		a.mu.Lock()
		userData := a.userData
		a.mu.Unlock()
		if err := a.callback(ctx, userData); err != nil {
			return WrapError("Execute", err)
		}
		return nil
	case ActionScript:
		return r.runScript(a.scriptPath, ctx)
	case ActionCommand:
		return r.runCommand(a.cmdline, ctx)
	default:
		return NewError("Execute", ErrCodeActionInvalidType)
	}
}

func (r *ActionRegistry) runScript(path string, ctx AccessContext) error {
	args := []string{
		strconv.FormatUint(ctx.Address, 10),
		strconv.FormatUint(uint64(ctx.Size), 10),
		strconv.FormatUint(ctx.Value, 10),
		strconv.Itoa(int(ctx.Kind)),
	}
	cmd := exec.Command(path, args...)
	if err := cmd.Run(); err != nil {
		return NewErrorMsg("Execute", ErrCodeActionExecuteFailed, err.Error())
	}
	return nil
}

func (r *ActionRegistry) runCommand(cmdline string, ctx AccessContext) error {
	cmd := exec.Command("sh", "-c", cmdline)
	if err := cmd.Run(); err != nil {
		return NewErrorMsg("Execute", ErrCodeActionExecuteFailed, err.Error())
	}
	return nil
}

// Exists reports whether id currently resolves to a live action,
// without executing it. Dispatch paths (monitor, rule engine) don't
// call this — they rely on Execute's ErrCodeActionNotFound to treat a
// stale binding as a silent skip; this is for callers that want to
// check liveness without triggering a side effect.
func (r *ActionRegistry) Exists(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.actions[id]
	return ok
}

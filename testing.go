package phymuti

import "sync"

// MockClass builds a DeviceOps that tracks how many times each lifecycle
// hook fired, for verifying device registry behavior in tests without
// hand-rolling a fresh set of closures every time.
type MockClass struct {
	mu sync.RWMutex

	createCalls    int
	destroyCalls   int
	resetCalls     int
	saveStateCalls int
	loadStateCalls int
	ioctlCalls     int

	createErr    error
	destroyErr   error
	resetErr     error
	saveStateErr error
	loadStateErr error

	savedState []byte
}

// NewMockClass creates a MockClass with every hook succeeding by
// default. Use the Fail* setters to make a specific hook return an
// error instead.
func NewMockClass() *MockClass {
	return &MockClass{}
}

// FailCreate makes the next Create calls return err.
func (c *MockClass) FailCreate(err error) { c.createErr = err }

// FailDestroy makes the next Destroy calls return err.
func (c *MockClass) FailDestroy(err error) { c.destroyErr = err }

// FailReset makes the next Reset calls return err.
func (c *MockClass) FailReset(err error) { c.resetErr = err }

// FailSaveState makes the next SaveState calls return err.
func (c *MockClass) FailSaveState(err error) { c.saveStateErr = err }

// Ops returns the DeviceOps wired to this mock's tracking hooks, ready
// to pass to DeviceRegistry.RegisterClass.
func (c *MockClass) Ops() DeviceOps {
	return DeviceOps{
		Create: func(h *DeviceHandle, config any) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.createCalls++
			return c.createErr
		},
		Destroy: func(h *DeviceHandle) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.destroyCalls++
			return c.destroyErr
		},
		Reset: func(h *DeviceHandle) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.resetCalls++
			return c.resetErr
		},
		SaveState: func(h *DeviceHandle, buf []byte) (int, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.saveStateCalls++
			if c.saveStateErr != nil {
				return 0, c.saveStateErr
			}
			if buf == nil {
				return len(c.savedState), nil
			}
			return copy(buf, c.savedState), nil
		},
		LoadState: func(h *DeviceHandle, buf []byte) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.loadStateCalls++
			if c.loadStateErr != nil {
				return c.loadStateErr
			}
			c.savedState = append([]byte(nil), buf...)
			return nil
		},
		Ioctl: func(h *DeviceHandle, cmd int, arg any) (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.ioctlCalls++
			return arg, nil
		},
	}
}

// CallCounts returns how many times each hook has fired so far.
func (c *MockClass) CallCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"create":     c.createCalls,
		"destroy":    c.destroyCalls,
		"reset":      c.resetCalls,
		"save_state": c.saveStateCalls,
		"load_state": c.loadStateCalls,
		"ioctl":      c.ioctlCalls,
	}
}

// SetSavedState seeds the blob a subsequent SaveState call will report,
// useful for testing SaveStateSize/SaveState without a real LoadState
// round trip first.
func (c *MockClass) SetSavedState(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savedState = append([]byte(nil), data...)
}

// MockActionCallback is an ActionFunc with call tracking, for verifying
// watchpoint and rule dispatch without asserting on side effects alone.
type MockActionCallback struct {
	mu    sync.Mutex
	calls []AccessContext
	err   error
}

// NewMockActionCallback creates a MockActionCallback that succeeds on
// every invocation until FailWith is called.
func NewMockActionCallback() *MockActionCallback {
	return &MockActionCallback{}
}

// FailWith makes subsequent invocations return err.
func (m *MockActionCallback) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Func returns the ActionFunc to register with ActionRegistry.CreateCallback.
func (m *MockActionCallback) Func() ActionFunc {
	return func(ctx AccessContext, userData any) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.calls = append(m.calls, ctx)
		return m.err
	}
}

// Calls returns a copy of every context this callback has been invoked
// with, in invocation order.
func (m *MockActionCallback) Calls() []AccessContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AccessContext(nil), m.calls...)
}

// CallCount reports how many times this callback has been invoked.
func (m *MockActionCallback) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

package phymuti

import (
	"sync"
	"sync/atomic"

	"github.com/phymuti/phymuti-go/internal/logging"
)

// DeviceOps is the set of lifecycle hooks a registered device class
// provides. Any slot left nil is treated per its documented default:
// Create absent means instantiation always succeeds with no setup
// work, Reset absent is a no-op success, Destroy absent means no
// teardown work, and SaveState/LoadState/Ioctl absent fail with
// NotSupported.
type DeviceOps struct {
	Create    func(h *DeviceHandle, config any) error
	Destroy   func(h *DeviceHandle) error
	Reset     func(h *DeviceHandle) error
	SaveState func(h *DeviceHandle, buf []byte) (int, error)
	LoadState func(h *DeviceHandle, buf []byte) error
	Ioctl     func(h *DeviceHandle, cmd int, arg any) (any, error)
}

type deviceClass struct {
	name      string
	ops       DeviceOps
	userData  any
	liveCount int
}

type deviceInstance struct {
	id        uint64
	name      string
	className string
	state     InstanceState

	mu       sync.Mutex
	userData any
}

// DeviceHandle is the opaque reference a class's lifecycle hooks and a
// caller use to address one device instance. It is a thin id wrapper
// that always resolves through the owning DeviceRegistry, so it stays
// valid to hold even across a Reset or SaveState call.
type DeviceHandle struct {
	registry *DeviceRegistry
	id       uint64
}

// ID returns the instance's numeric id.
func (h *DeviceHandle) ID() uint64 { return h.id }

// Name returns the instance's unique name.
func (h *DeviceHandle) Name() (string, error) { return h.registry.Name(h.id) }

// ClassName returns the name of the class this instance belongs to.
func (h *DeviceHandle) ClassName() (string, error) { return h.registry.ClassName(h.id) }

// UserData reads the instance's user data slot.
func (h *DeviceHandle) UserData() (any, error) { return h.registry.UserData(h.id) }

// SetUserData writes the instance's user data slot. A class's Create
// hook typically calls this to stash whatever state it allocated.
func (h *DeviceHandle) SetUserData(v any) error { return h.registry.SetUserData(h.id, v) }

// Memory exposes the System's MemoryRegistry, so a device class can
// create the regions it owns from within Create.
func (h *DeviceHandle) Memory() *MemoryRegistry { return h.registry.memory }

// DeviceRegistry is the directory of registered device classes and the
// named live instances created from them. Device-class names and
// device-instance names are each unique within their own namespace;
// instance names are unique across all classes.
type DeviceRegistry struct {
	mu        sync.Mutex
	classes   map[string]*deviceClass
	instances map[uint64]*deviceInstance
	byName    map[string]uint64
	nextID    uint64

	memory *MemoryRegistry
	log    *logging.Logger
}

func newDeviceRegistry(memory *MemoryRegistry, log *logging.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		classes:   make(map[string]*deviceClass),
		instances: make(map[uint64]*deviceInstance),
		byName:    make(map[string]uint64),
		memory:    memory,
		log:       log.WithComponent("device"),
	}
}

// NewDeviceRegistry constructs a standalone DeviceRegistry whose
// instances own regions in memory, for callers that want the device
// layer without the rest of a System.
func NewDeviceRegistry(memory *MemoryRegistry) *DeviceRegistry {
	return newDeviceRegistry(memory, logging.Default())
}

func (d *DeviceRegistry) allocID() uint64 {
	return atomic.AddUint64(&d.nextID, 1)
}

// RegisterClass adds a new device class under name.
func (d *DeviceRegistry) RegisterClass(name string, ops DeviceOps, userData any) error {
	if name == "" {
		return NewError("RegisterClass", ErrCodeInvalidParam)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.classes[name]; exists {
		return NewError("RegisterClass", ErrCodeAlreadyExists)
	}
	d.classes[name] = &deviceClass{name: name, ops: ops, userData: userData}
	d.log.Debug("class registered", "name", name)
	return nil
}

// UnregisterClass removes a device class, failing with Busy if any
// instance of it is still live, or DeviceTypeNotFound if the class
// name is unknown.
func (d *DeviceRegistry) UnregisterClass(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	class, ok := d.classes[name]
	if !ok {
		return NewError("UnregisterClass", ErrCodeDeviceTypeNotFound)
	}
	if class.liveCount > 0 {
		return NewError("UnregisterClass", ErrCodeBusy)
	}
	delete(d.classes, name)
	d.log.Debug("class unregistered", "name", name)
	return nil
}

// CreateInstance instantiates className under instanceName, calling
// the class's Create hook outside the registry lock. If Create fails
// (or the instance name collides, or the class is unknown) the
// instance is never exposed to FindByName and its storage is released.
func (d *DeviceRegistry) CreateInstance(className, instanceName string, config any) (uint64, error) {
	if instanceName == "" {
		return invalidID, NewError("CreateInstance", ErrCodeInvalidParam)
	}

	d.mu.Lock()
	class, ok := d.classes[className]
	if !ok {
		d.mu.Unlock()
		return invalidID, NewError("CreateInstance", ErrCodeDeviceTypeNotFound)
	}
	if _, exists := d.byName[instanceName]; exists {
		d.mu.Unlock()
		return invalidID, NewError("CreateInstance", ErrCodeAlreadyExists)
	}
	id := d.allocID()
	inst := &deviceInstance{id: id, name: instanceName, className: className, state: StateCreating}
	d.instances[id] = inst
	d.byName[instanceName] = id
	d.mu.Unlock()

	handle := &DeviceHandle{registry: d, id: id}
	if class.ops.Create != nil {
		if err := class.ops.Create(handle, config); err != nil {
			d.mu.Lock()
			delete(d.instances, id)
			delete(d.byName, instanceName)
			d.mu.Unlock()
			return invalidID, NewErrorMsg("CreateInstance", ErrCodeDeviceCreateFailed, err.Error())
		}
	}

	d.mu.Lock()
	inst.state = StateLive
	class.liveCount++
	d.mu.Unlock()

	d.log.Debug("instance created", "id", id, "name", instanceName, "class", className)
	return id, nil
}

// DestroyInstance transitions instance id through Destroying then Gone,
// invoking its class's Destroy hook and cascading to destroy every
// memory region it owns (invariant: no region outlives its owning
// device). The instance is marked Destroying before the hook runs and
// stays in the directory until teardown finishes, so a concurrent
// FindByName or liveInstance lookup observes it going away without a
// list-walk race; a second concurrent DestroyInstance on the same id
// sees the non-Live state and fails with DeviceNotFound instead of
// racing the map delete.
func (d *DeviceRegistry) DestroyInstance(id uint64) error {
	d.mu.Lock()
	inst, ok := d.instances[id]
	if !ok || inst.state != StateLive {
		d.mu.Unlock()
		return NewError("DestroyInstance", ErrCodeDeviceNotFound)
	}
	class := d.classes[inst.className]
	inst.state = StateDestroying
	d.mu.Unlock()

	if class != nil && class.ops.Destroy != nil {
		handle := &DeviceHandle{registry: d, id: id}
		if err := class.ops.Destroy(handle); err != nil {
			d.log.Warn("destroy hook failed", "id", id, "error", err)
		}
	}

	d.memory.destroyAllForDevice(id)

	d.mu.Lock()
	inst.state = StateGone
	delete(d.instances, id)
	delete(d.byName, inst.name)
	if class != nil {
		class.liveCount--
	}
	d.mu.Unlock()

	d.log.Debug("instance destroyed", "id", id)
	return nil
}

// FindByName returns the id of the live instance named name.
func (d *DeviceRegistry) FindByName(name string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byName[name]
	if !ok {
		return invalidID, NewError("FindByName", ErrCodeDeviceNotFound)
	}
	inst := d.instances[id]
	if inst == nil || inst.state != StateLive {
		return invalidID, NewError("FindByName", ErrCodeDeviceNotFound)
	}
	return id, nil
}

func (d *DeviceRegistry) liveInstance(id uint64) (*deviceInstance, *deviceClass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[id]
	if !ok || inst.state != StateLive {
		return nil, nil, NewError("", ErrCodeDeviceNotFound)
	}
	return inst, d.classes[inst.className], nil
}

// Name returns an instance's unique name.
func (d *DeviceRegistry) Name(id uint64) (string, error) {
	inst, _, err := d.liveInstance(id)
	if err != nil {
		return "", WrapError("Name", err)
	}
	return inst.name, nil
}

// ClassName returns the name of the class an instance belongs to.
func (d *DeviceRegistry) ClassName(id uint64) (string, error) {
	inst, _, err := d.liveInstance(id)
	if err != nil {
		return "", WrapError("ClassName", err)
	}
	return inst.className, nil
}

// UserData reads an instance's user data slot.
func (d *DeviceRegistry) UserData(id uint64) (any, error) {
	inst, _, err := d.liveInstance(id)
	if err != nil {
		return nil, WrapError("UserData", err)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.userData, nil
}

// SetUserData writes an instance's user data slot. Unlike the other
// accessors it also accepts an instance still in Creating, so the
// class's Create hook can store its state.
func (d *DeviceRegistry) SetUserData(id uint64, v any) error {
	d.mu.Lock()
	inst, ok := d.instances[id]
	if ok && inst.state != StateLive && inst.state != StateCreating {
		ok = false
	}
	d.mu.Unlock()
	if !ok {
		return NewError("SetUserData", ErrCodeDeviceNotFound)
	}
	inst.mu.Lock()
	inst.userData = v
	inst.mu.Unlock()
	return nil
}

// Reset invokes an instance's class's Reset hook, succeeding as a
// no-op if the class has none.
func (d *DeviceRegistry) Reset(id uint64) error {
	inst, class, err := d.liveInstance(id)
	if err != nil {
		return WrapError("Reset", err)
	}
	if class == nil || class.ops.Reset == nil {
		return nil
	}
	handle := &DeviceHandle{registry: d, id: inst.id}
	if err := class.ops.Reset(handle); err != nil {
		return NewErrorMsg("Reset", ErrCodeDeviceResetFailed, err.Error())
	}
	return nil
}

// SaveStateSize queries the number of bytes a subsequent SaveState call
// would need, implementing the size half of the two-call protocol as a
// dedicated method rather than overloading an error code to mean
// "buffer too small" (see DESIGN.md).
func (d *DeviceRegistry) SaveStateSize(id uint64) (int, error) {
	inst, class, err := d.liveInstance(id)
	if err != nil {
		return 0, WrapError("SaveStateSize", err)
	}
	if class == nil || class.ops.SaveState == nil {
		return 0, NewError("SaveStateSize", ErrCodeNotSupported)
	}
	handle := &DeviceHandle{registry: d, id: inst.id}
	n, err := class.ops.SaveState(handle, nil)
	if err != nil {
		return 0, NewErrorMsg("SaveStateSize", ErrCodeDeviceSaveStateFailed, err.Error())
	}
	return n, nil
}

// SaveState writes an instance's opaque state blob into buf, which
// must be at least as long as SaveStateSize reported.
func (d *DeviceRegistry) SaveState(id uint64, buf []byte) (int, error) {
	inst, class, err := d.liveInstance(id)
	if err != nil {
		return 0, WrapError("SaveState", err)
	}
	if class == nil || class.ops.SaveState == nil {
		return 0, NewError("SaveState", ErrCodeNotSupported)
	}
	handle := &DeviceHandle{registry: d, id: inst.id}
	n, err := class.ops.SaveState(handle, buf)
	if err != nil {
		return 0, NewErrorMsg("SaveState", ErrCodeDeviceSaveStateFailed, err.Error())
	}
	return n, nil
}

// LoadState restores an instance's state from an opaque blob
// previously produced by SaveState.
func (d *DeviceRegistry) LoadState(id uint64, buf []byte) error {
	inst, class, err := d.liveInstance(id)
	if err != nil {
		return WrapError("LoadState", err)
	}
	if class == nil || class.ops.LoadState == nil {
		return NewError("LoadState", ErrCodeNotSupported)
	}
	handle := &DeviceHandle{registry: d, id: inst.id}
	if err := class.ops.LoadState(handle, buf); err != nil {
		return NewErrorMsg("LoadState", ErrCodeDeviceLoadStateFailed, err.Error())
	}
	return nil
}

// Ioctl forwards an arbitrary (cmd, arg) pair to the instance's class.
func (d *DeviceRegistry) Ioctl(id uint64, cmd int, arg any) (any, error) {
	inst, class, err := d.liveInstance(id)
	if err != nil {
		return nil, WrapError("Ioctl", err)
	}
	if class == nil || class.ops.Ioctl == nil {
		return nil, NewError("Ioctl", ErrCodeNotSupported)
	}
	handle := &DeviceHandle{registry: d, id: inst.id}
	return class.ops.Ioctl(handle, cmd, arg)
}

package phymuti

import (
	"sync"
	"sync/atomic"

	"github.com/phymuti/phymuti-go/internal/logging"
	"github.com/phymuti/phymuti-go/internal/memstore"
)

// AccessContext is the value broadcast to the monitor (and later passed
// to bound actions and rule predicates) on every successful memory
// access. Value is an untyped 64-bit bit-bag: for typed multi-byte
// access it holds the little-endian load/store value; for buffer
// access it is always zero.
type AccessContext struct {
	Region  uint64
	Address uint64
	Size    uint32
	Value   uint64
	Kind    AccessKind
}

type region struct {
	id       uint64
	name     string
	deviceID uint64
	base     uint64
	size     uint64
	flags    Flags
	store    *memstore.Store
}

// MemoryRegistry is the directory of byte-addressable memory regions,
// each owned by exactly one device. It broadcasts every successful
// access into a Monitor, and refuses to destroy a region that still has
// watchpoints attached (the region→watchpoint cascade index lives on
// the Monitor; see Monitor.hasWatchpointsFor).
type MemoryRegistry struct {
	mu        sync.RWMutex
	regions   map[uint64]*region
	byDevice  map[uint64]map[string]uint64 // deviceID -> name -> regionID
	regionsOf map[uint64]map[uint64]bool   // deviceID -> set of regionIDs, for cascade
	nextID    uint64
	monitor   *Monitor
	log       *logging.Logger
	metrics   *Metrics
}

func newMemoryRegistry(monitor *Monitor, log *logging.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		regions:   make(map[uint64]*region),
		byDevice:  make(map[uint64]map[string]uint64),
		regionsOf: make(map[uint64]map[uint64]bool),
		monitor:   monitor,
		log:       log.WithComponent("memory"),
	}
}

// NewMemoryRegistry constructs a standalone MemoryRegistry bound to
// monitor, for callers that want the memory layer without the rest of
// a System.
func NewMemoryRegistry(monitor *Monitor) *MemoryRegistry {
	return newMemoryRegistry(monitor, logging.Default())
}

func (m *MemoryRegistry) allocID() uint64 {
	return atomic.AddUint64(&m.nextID, 1)
}

// Create allocates a zero-initialized region of size bytes at [base,
// base+size) on deviceID, named name (unique among that device's
// regions).
func (m *MemoryRegistry) Create(deviceID uint64, name string, base, size uint64, flags Flags) (uint64, error) {
	if name == "" || size == 0 {
		return invalidID, NewError("Create", ErrCodeInvalidParam)
	}
	if base+size < base {
		return invalidID, NewError("Create", ErrCodeInvalidParam)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	names, ok := m.byDevice[deviceID]
	if !ok {
		names = make(map[string]uint64)
		m.byDevice[deviceID] = names
	}
	if _, exists := names[name]; exists {
		return invalidID, NewError("Create", ErrCodeAlreadyExists)
	}

	id := m.allocID()
	r := &region{
		id:       id,
		name:     name,
		deviceID: deviceID,
		base:     base,
		size:     size,
		flags:    flags,
		store:    memstore.New(int(size)),
	}
	m.regions[id] = r
	names[name] = id
	if m.regionsOf[deviceID] == nil {
		m.regionsOf[deviceID] = make(map[uint64]bool)
	}
	m.regionsOf[deviceID][id] = true

	m.log.Debug("region created", "id", id, "name", name, "device", deviceID, "base", base, "size", size)
	return id, nil
}

// Destroy removes region id, refusing with Busy if the monitor still
// has watchpoints attached to it.
func (m *MemoryRegistry) Destroy(id uint64) error {
	m.mu.Lock()
	r, ok := m.regions[id]
	if !ok {
		m.mu.Unlock()
		return NewError("Destroy", ErrCodeMemoryRegionNotFound)
	}
	m.mu.Unlock()

	if m.monitor.hasWatchpointsFor(id) {
		return NewError("Destroy", ErrCodeBusy)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, id)
	if names, ok := m.byDevice[r.deviceID]; ok {
		delete(names, r.name)
	}
	if set, ok := m.regionsOf[r.deviceID]; ok {
		delete(set, id)
	}
	m.log.Debug("region destroyed", "id", id)
	return nil
}

// destroyAllForDevice force-destroys every region owned by deviceID,
// cascading through the monitor to remove any attached watchpoints
// too. Used by the device registry when an instance is destroyed, so
// invariant 3 ("no region may outlive its owning device") holds
// unconditionally rather than refusing on attached watchpoints the way
// a standalone Destroy call does.
func (m *MemoryRegistry) destroyAllForDevice(deviceID uint64) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.regionsOf[deviceID]))
	for id := range m.regionsOf[deviceID] {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.monitor.destroyAllForRegion(id)

		m.mu.Lock()
		if r, ok := m.regions[id]; ok {
			delete(m.regions, id)
			if names, ok := m.byDevice[r.deviceID]; ok {
				delete(names, r.name)
			}
		}
		delete(m.regionsOf[deviceID], id)
		m.mu.Unlock()
	}
}

// Find looks up a region by owning device and name.
func (m *MemoryRegistry) Find(deviceID uint64, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, ok := m.byDevice[deviceID]
	if !ok {
		return invalidID, NewError("Find", ErrCodeMemoryRegionNotFound)
	}
	id, ok := names[name]
	if !ok {
		return invalidID, NewError("Find", ErrCodeMemoryRegionNotFound)
	}
	return id, nil
}

func (m *MemoryRegistry) get(id uint64) (*region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[id]
	if !ok {
		return nil, NewError("", ErrCodeMemoryRegionNotFound)
	}
	return r, nil
}

// Base returns a region's base address.
func (m *MemoryRegistry) Base(id uint64) (uint64, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("Base", err)
	}
	return r.base, nil
}

// Size returns a region's size in bytes.
func (m *MemoryRegistry) Size(id uint64) (uint64, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("Size", err)
	}
	return r.size, nil
}

// Name returns a region's name.
func (m *MemoryRegistry) Name(id uint64) (string, error) {
	r, err := m.get(id)
	if err != nil {
		return "", WrapError("Name", err)
	}
	return r.name, nil
}

// Flags returns a region's permission flags.
func (m *MemoryRegistry) Flags(id uint64) (Flags, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("Flags", err)
	}
	return r.flags, nil
}

func checkAlignment(addr uint64, width uint64) error {
	if width > 1 && addr%width != 0 {
		return NewError("", ErrCodeMemoryAlignment)
	}
	return nil
}

func checkRange(r *region, addr, width uint64) error {
	end := addr + width
	if end < addr || addr < r.base || end > r.base+r.size {
		return NewError("", ErrCodeMemoryOutOfRange)
	}
	return nil
}

func checkPermission(r *region, kind AccessKind) error {
	var need Flags
	switch kind {
	case AccessRead:
		need = FlagRead
	case AccessWrite:
		need = FlagWrite
	case AccessExec:
		need = FlagExec
	}
	if r.flags&need == 0 {
		return NewError("", ErrCodeMemoryPermission)
	}
	return nil
}

// checkTypedAccess applies the mandated order: alignment, then range,
// then permission, recording a metrics counter on whichever check
// rejects the access.
func (m *MemoryRegistry) checkTypedAccess(r *region, addr, width uint64, kind AccessKind) error {
	if err := checkAlignment(addr, width); err != nil {
		m.recordAccessError(err)
		return err
	}
	if err := checkRange(r, addr, width); err != nil {
		m.recordAccessError(err)
		return err
	}
	if err := checkPermission(r, kind); err != nil {
		m.recordAccessError(err)
		return err
	}
	return nil
}

func (m *MemoryRegistry) recordAccessError(err error) {
	if m.metrics != nil {
		m.metrics.RecordAccessError(CodeOf(err))
	}
}

func (m *MemoryRegistry) broadcast(r *region, addr uint64, size uint32, value uint64, kind AccessKind) {
	if m.metrics != nil {
		m.metrics.RecordAccess(kind)
	}
	m.monitor.Notify(r.id, addr, size, value, kind)
}

// ReadU8 reads one byte at addr.
func (m *MemoryRegistry) ReadU8(id uint64, addr uint64) (uint8, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("ReadU8", err)
	}
	if err := m.checkTypedAccess(r, addr, 1, AccessRead); err != nil {
		return 0, WrapError("ReadU8", err)
	}
	v := r.store.ReadByte(int(addr - r.base))
	m.broadcast(r, addr, 1, uint64(v), AccessRead)
	return v, nil
}

// WriteU8 writes one byte at addr.
func (m *MemoryRegistry) WriteU8(id uint64, addr uint64, val uint8) error {
	r, err := m.get(id)
	if err != nil {
		return WrapError("WriteU8", err)
	}
	if err := m.checkTypedAccess(r, addr, 1, AccessWrite); err != nil {
		return WrapError("WriteU8", err)
	}
	r.store.WriteByte(int(addr-r.base), val)
	m.broadcast(r, addr, 1, uint64(val), AccessWrite)
	return nil
}

// ReadU16 reads a little-endian halfword at addr, which must be
// 2-byte aligned.
func (m *MemoryRegistry) ReadU16(id uint64, addr uint64) (uint16, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("ReadU16", err)
	}
	if err := m.checkTypedAccess(r, addr, 2, AccessRead); err != nil {
		return 0, WrapError("ReadU16", err)
	}
	var buf [2]byte
	r.store.ReadAt(buf[:], int(addr-r.base))
	v := uint16(buf[0]) | uint16(buf[1])<<8
	m.broadcast(r, addr, 2, uint64(v), AccessRead)
	return v, nil
}

// WriteU16 writes a little-endian halfword at addr.
func (m *MemoryRegistry) WriteU16(id uint64, addr uint64, val uint16) error {
	r, err := m.get(id)
	if err != nil {
		return WrapError("WriteU16", err)
	}
	if err := m.checkTypedAccess(r, addr, 2, AccessWrite); err != nil {
		return WrapError("WriteU16", err)
	}
	buf := [2]byte{byte(val), byte(val >> 8)}
	r.store.WriteAt(buf[:], int(addr-r.base))
	m.broadcast(r, addr, 2, uint64(val), AccessWrite)
	return nil
}

// ReadU32 reads a little-endian word at addr, which must be 4-byte
// aligned.
func (m *MemoryRegistry) ReadU32(id uint64, addr uint64) (uint32, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("ReadU32", err)
	}
	if err := m.checkTypedAccess(r, addr, 4, AccessRead); err != nil {
		return 0, WrapError("ReadU32", err)
	}
	var buf [4]byte
	r.store.ReadAt(buf[:], int(addr-r.base))
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	m.broadcast(r, addr, 4, uint64(v), AccessRead)
	return v, nil
}

// WriteU32 writes a little-endian word at addr.
func (m *MemoryRegistry) WriteU32(id uint64, addr uint64, val uint32) error {
	r, err := m.get(id)
	if err != nil {
		return WrapError("WriteU32", err)
	}
	if err := m.checkTypedAccess(r, addr, 4, AccessWrite); err != nil {
		return WrapError("WriteU32", err)
	}
	buf := [4]byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
	r.store.WriteAt(buf[:], int(addr-r.base))
	m.broadcast(r, addr, 4, uint64(val), AccessWrite)
	return nil
}

// ReadU64 reads a little-endian doubleword at addr, which must be
// 8-byte aligned.
func (m *MemoryRegistry) ReadU64(id uint64, addr uint64) (uint64, error) {
	r, err := m.get(id)
	if err != nil {
		return 0, WrapError("ReadU64", err)
	}
	if err := m.checkTypedAccess(r, addr, 8, AccessRead); err != nil {
		return 0, WrapError("ReadU64", err)
	}
	var buf [8]byte
	r.store.ReadAt(buf[:], int(addr-r.base))
	v := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
	m.broadcast(r, addr, 8, v, AccessRead)
	return v, nil
}

// WriteU64 writes a little-endian doubleword at addr.
func (m *MemoryRegistry) WriteU64(id uint64, addr uint64, val uint64) error {
	r, err := m.get(id)
	if err != nil {
		return WrapError("WriteU64", err)
	}
	if err := m.checkTypedAccess(r, addr, 8, AccessWrite); err != nil {
		return WrapError("WriteU64", err)
	}
	buf := [8]byte{
		byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24),
		byte(val >> 32), byte(val >> 40), byte(val >> 48), byte(val >> 56),
	}
	r.store.WriteAt(buf[:], int(addr-r.base))
	m.broadcast(r, addr, 8, val, AccessWrite)
	return nil
}

// ReadBuffer copies length bytes starting at addr into a new slice.
// No alignment check applies to bulk access; range and permission
// still do. The broadcast carries Value=0 and Size=length, per a
// single notification for the whole call.
func (m *MemoryRegistry) ReadBuffer(id uint64, addr uint64, length int) ([]byte, error) {
	r, err := m.get(id)
	if err != nil {
		return nil, WrapError("ReadBuffer", err)
	}
	if err := checkRange(r, addr, uint64(length)); err != nil {
		return nil, WrapError("ReadBuffer", err)
	}
	if err := checkPermission(r, AccessRead); err != nil {
		return nil, WrapError("ReadBuffer", err)
	}
	buf := make([]byte, length)
	r.store.ReadAt(buf, int(addr-r.base))
	m.broadcast(r, addr, uint32(length), 0, AccessRead)
	return buf, nil
}

// WriteBuffer copies data into the region starting at addr.
func (m *MemoryRegistry) WriteBuffer(id uint64, addr uint64, data []byte) error {
	r, err := m.get(id)
	if err != nil {
		return WrapError("WriteBuffer", err)
	}
	if err := checkRange(r, addr, uint64(len(data))); err != nil {
		return WrapError("WriteBuffer", err)
	}
	if err := checkPermission(r, AccessWrite); err != nil {
		return WrapError("WriteBuffer", err)
	}
	r.store.WriteAt(data, int(addr-r.base))
	m.broadcast(r, addr, uint32(len(data)), 0, AccessWrite)
	return nil
}

package permission

import (
	"sync"
	"sync/atomic"
)

// Catalog interns permission names into bit positions of a [Mask].
// Bits are assigned in registration order and are stable for the
// lifetime of the process.
//
//	Docs: docs/permission.md
type Catalog struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    atomic.Bool
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Ensure returns the bit for name, assigning the next free bit when the
// name is new. It fails once the catalog is frozen or full.
func (c *Catalog) Ensure(name string) (int, error) {
	if name == "" {
		return -1, ErrEmptyPermission
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if bit, ok := c.nameToBit[name]; ok {
		return bit, nil
	}
	if c.frozen.Load() {
		return -1, ErrRegistryFrozen
	}

	next := len(c.nameToBit)
	if next >= MaxPermissions {
		return -1, ErrPermissionLimit
	}

	c.nameToBit[name] = next
	c.bitToName[next] = name
	return next, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (c *Catalog) Bit(name string) (int, bool) {
	if c.frozen.Load() {
		bit, ok := c.nameToBit[name]
		return bit, ok
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	bit, ok := c.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (c *Catalog) Name(bit int) (string, bool) {
	if c.frozen.Load() {
		name, ok := c.bitToName[bit]
		return name, ok
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.bitToName[bit]
	return name, ok
}

// Count returns the number of interned permissions.
func (c *Catalog) Count() int {
	if c.frozen.Load() {
		return len(c.nameToBit)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nameToBit)
}

// Freeze publishes the catalog as immutable. Reads after Freeze take no lock.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen.Store(true)
}

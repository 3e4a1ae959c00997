package permission

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

const (
	// RoleAnonymous is the role assigned to actors without a resolved identity.
	RoleAnonymous = "anonymous"
	// DefaultSuperRole is the role that holds every permission.
	DefaultSuperRole = "super_admin"
)

var (
	// ErrRegistryFrozen is returned when mutating a registry after Freeze.
	ErrRegistryFrozen = errors.New("permission registry frozen")
	// ErrEmptyRole is returned when registering a role with an empty name.
	ErrEmptyRole = errors.New("role name empty")
	// ErrEmptyPermission is returned when interning an empty permission name.
	ErrEmptyPermission = errors.New("permission name empty")
	// ErrPermissionLimit is returned when more than MaxPermissions names are interned.
	ErrPermissionLimit = errors.New("permission limit exceeded")
	// ErrReservedRole is returned when registering the anonymous or super role.
	ErrReservedRole = errors.New("role name reserved")
	// ErrEmptyModule is returned when mapping an empty module key.
	ErrEmptyModule = errors.New("module key empty")
)

// Registry is the role to permission-set table consulted by every
// authorization decision.
//
// Roles and modules are registered during startup composition. After
// [Registry.Freeze] the tables are immutable and all queries are lock-free.
//
//	Docs: docs/permission.md
type Registry struct {
	superRole string
	catalog   *Catalog

	mu      sync.RWMutex
	roles   map[string]Mask
	modules map[string]string
	frozen  atomic.Bool
}

// NewRegistry creates a registry whose super role is superRole, or
// [DefaultSuperRole] when empty.
func NewRegistry(superRole string) *Registry {
	if superRole == "" {
		superRole = DefaultSuperRole
	}
	return &Registry{
		superRole: superRole,
		catalog:   NewCatalog(),
		roles:     make(map[string]Mask),
		modules:   make(map[string]string),
	}
}

/*
====================================
REGISTRATION
====================================
*/

// RegisterRole binds role to permissions. Registering the same role again
// replaces its set, so repeated registration with identical input is a
// no-op.
func (r *Registry) RegisterRole(role string, permissions []string) error {
	if role == "" {
		return ErrEmptyRole
	}
	if role == RoleAnonymous || role == r.superRole {
		return ErrReservedRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return ErrRegistryFrozen
	}

	var mask Mask
	for _, perm := range permissions {
		bit, err := r.catalog.Ensure(perm)
		if err != nil {
			return err
		}
		mask.Set(bit)
	}

	r.roles[role] = mask
	return nil
}

// MapModule declares that module requires permission. The permission is
// interned even when no role holds it yet.
func (r *Registry) MapModule(module, permission string) error {
	if module == "" {
		return ErrEmptyModule
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if _, err := r.catalog.Ensure(permission); err != nil {
		return err
	}

	r.modules[module] = permission
	return nil
}

// Freeze publishes the registry. Subsequent registrations fail with
// [ErrRegistryFrozen].
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog.Freeze()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

/*
====================================
QUERIES
====================================
*/

// HasPermission reports whether role holds permission. Unknown roles hold
// nothing. The super role holds everything, including unregistered
// permissions.
func (r *Registry) HasPermission(role, permission string) bool {
	if r == nil {
		return false
	}
	if r.IsSuper(role) {
		return true
	}

	mask, ok := r.mask(role)
	if !ok {
		return false
	}
	bit, ok := r.catalog.Bit(permission)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// IsSuper reports whether role is the registry's super role.
func (r *Registry) IsSuper(role string) bool {
	return r != nil && role != "" && role == r.superRole
}

// SuperRole returns the configured super role name.
func (r *Registry) SuperRole() string {
	return r.superRole
}

// Permissions returns a sorted copy of the permissions held by role. The
// super role receives every interned permission.
func (r *Registry) Permissions(role string) []string {
	if r == nil {
		return nil
	}

	var mask Mask
	if r.IsSuper(role) {
		for bit := 0; bit < r.catalog.Count(); bit++ {
			mask.Set(bit)
		}
	} else {
		m, ok := r.mask(role)
		if !ok {
			return []string{}
		}
		mask = m
	}

	bits := mask.Bits()
	out := make([]string, 0, len(bits))
	for _, bit := range bits {
		if name, ok := r.catalog.Name(bit); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ModuleAccess reports whether role may open module. Unmapped modules are
// public.
func (r *Registry) ModuleAccess(role, module string) bool {
	perm, ok := r.RequiredPermission(module)
	if !ok {
		return true
	}
	return r.HasPermission(role, perm)
}

// RequiredPermission returns the permission mapped to module.
func (r *Registry) RequiredPermission(module string) (string, bool) {
	if r == nil {
		return "", false
	}
	if r.frozen.Load() {
		perm, ok := r.modules[module]
		return perm, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	perm, ok := r.modules[module]
	return perm, ok
}

// Roles returns the registered role names in sorted order.
func (r *Registry) Roles() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	out := make([]string, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered roles.
func (r *Registry) Count() int {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return len(r.roles)
}

func (r *Registry) mask(role string) (Mask, bool) {
	if r.frozen.Load() {
		m, ok := r.roles[role]
		return m, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.roles[role]
	return m, ok
}

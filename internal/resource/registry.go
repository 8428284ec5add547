package resource

import (
	"fmt"
	"reflect"
	"sync"
)

// ErrTypeNotRegistered is returned by the generic Get/Remove/Retain/etc.
// free functions when no pool has ever been created for T (i.e. Add[T] was
// never called).
var ErrTypeNotRegistered = fmt.Errorf("resource: type not registered")

// Registry routes per-type operations to the Pool[T] for that type, keyed
// by reflect.Type — the stable runtime identity token standing in for the
// teacher's BucketSize enum key (see DESIGN.md Component B). A Registry
// guards its type-to-pool map with its own mutex, held only while a pool is
// looked up or created, so concurrent first Add[T] calls for the same T
// create exactly one pool. Operations on a pool itself are serialized by
// that Pool[T]'s own mutex.
type Registry struct {
	mu    sync.Mutex
	pools map[reflect.Type]any
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[reflect.Type]any)}
}

// poolFor returns the Pool[T] for T, creating it (with default alignment)
// on first use.
func poolFor[T any](r *Registry) (*Pool[T], error) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pools[key]; ok {
		p, ok := existing.(*Pool[T])
		if !ok {
			// Same reflect.Type key resolved to a differently
			// instantiated pool; cannot happen barring a bug in
			// how keys are derived, but guard explicitly (§7
			// TypeMismatch is a programming error).
			panic(fmt.Sprintf("resource: registry type mismatch for %s", key))
		}
		return p, nil
	}

	p, err := New[T](0)
	if err != nil {
		return nil, err
	}
	r.pools[key] = p
	debugLogger.Printf("registered pool for type %s", key)
	return p, nil
}

// lookupPoolFor returns the Pool[T] for T without creating one, or false
// if T was never registered.
func lookupPoolFor[T any](r *Registry) (*Pool[T], bool) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.pools[key]
	if !ok {
		return nil, false
	}
	p, ok := existing.(*Pool[T])
	return p, ok
}

// Add allocates value of type T in r's pool for T, creating that pool on
// first use.
func Add[T any](r *Registry, value T) (Handle[T], error) {
	p, err := poolFor[T](r)
	if err != nil {
		return Handle[T]{}, err
	}
	return p.Add(value)
}

// AddWithGUID allocates value of type T bound to guid, creating T's pool
// on first use.
func AddWithGUID[T any](r *Registry, guid GUID, value T) (Handle[T], error) {
	p, err := poolFor[T](r)
	if err != nil {
		return Handle[T]{}, err
	}
	return p.AddWithGUID(guid, value)
}

// Get resolves h within T's pool. Fails with ErrTypeNotRegistered if T's
// pool was never created.
func Get[T any](r *Registry, h Handle[T]) (*T, error) {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return nil, ErrTypeNotRegistered
	}
	return p.Get(h)
}

// Remove resolves h within T's pool and removes it (idempotent on an
// invalid handle, per Pool.Remove). Fails with ErrTypeNotRegistered if T's
// pool was never created — per spec §7's error table, TypeNotRegistered is
// raised by "Registry get/remove/…", not merely Get.
func Remove[T any](r *Registry, h Handle[T]) error {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return ErrTypeNotRegistered
	}
	return p.Remove(h)
}

// Retain increments h's reference count within T's pool. Fails with
// ErrTypeNotRegistered if T's pool was never created.
func Retain[T any](r *Registry, h Handle[T]) error {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return ErrTypeNotRegistered
	}
	p.Retain(h)
	return nil
}

// Release decrements h's reference count within T's pool, removing the
// object on transition to zero. Fails with ErrTypeNotRegistered if T's
// pool was never created.
func Release[T any](r *Registry, h Handle[T]) error {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return ErrTypeNotRegistered
	}
	return p.Release(h)
}

// UseCount returns h's reference count within T's pool. Fails with
// ErrTypeNotRegistered if T's pool was never created.
func UseCount[T any](r *Registry, h Handle[T]) (uint64, error) {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return 0, ErrTypeNotRegistered
	}
	return p.UseCount(h), nil
}

// Valid reports whether h is currently live within T's pool. Fails with
// ErrTypeNotRegistered if T's pool was never created.
func Valid[T any](r *Registry, h Handle[T]) (bool, error) {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return false, ErrTypeNotRegistered
	}
	return p.Valid(h), nil
}

// GuidOf returns the GUID bound to h within T's pool (NilGUID if none is
// bound). Fails with ErrTypeNotRegistered if T's pool was never created.
func GuidOf[T any](r *Registry, h Handle[T]) (GUID, error) {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return NilGUID, ErrTypeNotRegistered
	}
	return p.GuidOf(h), nil
}

// FindByGUID returns the handle bound to guid within T's pool (the null
// handle if guid isn't bound). Fails with ErrTypeNotRegistered if T's pool
// was never created.
func FindByGUID[T any](r *Registry, guid GUID) (Handle[T], error) {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return Handle[T]{}, ErrTypeNotRegistered
	}
	return p.FindByGUID(guid), nil
}

// ForAll visits every live T across r's pool for T. Fails with
// ErrTypeNotRegistered if T's pool was never created.
func ForAll[T any](r *Registry, f func(h Handle[T], value *T)) error {
	p, ok := lookupPoolFor[T](r)
	if !ok {
		return ErrTypeNotRegistered
	}
	p.ForEach(f)
	return nil
}

// ValidateInvariants walks every registered pool and checks its internal
// consistency, in the spirit of the teacher's top-level
// ValidateClusterIntegrity sweep over all buckets.
func (r *Registry) ValidateInvariants() error {
	r.mu.Lock()
	pools := make([]any, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()

	for _, p := range pools {
		if v, ok := p.(interface{ ValidateInvariants() error }); ok {
			if err := v.ValidateInvariants(); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegisteredTypes returns the set of types with a pool currently in r, for
// diagnostics (e.g. cmd/enginectl's debug dump).
func (r *Registry) RegisteredTypes() []reflect.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]reflect.Type, 0, len(r.pools))
	for t := range r.pools {
		types = append(types, t)
	}
	return types
}

// Package resource layers validity (versioned handles), lifetime (reference
// counts), and identity (optional GUID binding) on top of package slab, and
// routes per-type operations through a Registry by runtime type identity.
//
// Grounded on the teacher's internal/memory subsystem (bucketed slot
// allocation with an embedded freelist, growth-by-double) generalized with a
// version/refcount array kept in lockstep with the slab, the way the
// teacher keeps Batch.slots and BucketPool.freeSlots in lockstep — see
// DESIGN.md Component B.
package resource

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/irfansharif/enginecore/internal/slab"
)

var debugLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("ENGINECORE_DEBUG_RESOURCE") == "1" {
		debugLogger = log.New(os.Stdout, "[resource] ", log.Ltime|log.Lmsgprefix)
	}
}

// Handle is a versioned reference into a Pool[T]: the underlying slab
// offset plus the generation the handle was minted for.
type Handle[T any] = slab.Handle[T]

// Errors raised by Pool operations (spec §7). TypeNotRegistered is raised
// by Registry, not Pool — see registry.go.
var (
	// ErrInvalidHandle is returned by Get when the handle's version does
	// not match the slot's current version (or the handle was never
	// issued a nonzero version).
	ErrInvalidHandle = fmt.Errorf("resource: invalid handle")
	// ErrDuplicateGUID is returned by AddWithGUID when guid is already
	// bound to a live handle.
	ErrDuplicateGUID = fmt.Errorf("resource: guid already bound")
	// ErrInvalidGUID is returned by AddWithGUID when guid is the nil
	// sentinel.
	ErrInvalidGUID = fmt.Errorf("resource: invalid (nil) guid")
)

// Stats summarizes a Pool's current occupancy, in the spirit of the
// teacher's memory.Stats / BucketSizeStats.
type Stats struct {
	Live      int
	Free      int
	SlotCount int
	Bound     int // live handles with a bound GUID
}

// Pool adds validity, lifetime, and identity to a slab.Pool[T]. All
// operations take pool's lock for their entire duration (§4.B).
type Pool[T any] struct {
	mu sync.Mutex

	slab *slab.Pool[T]

	versions  []uint64
	refcounts []uint64

	guidToHandle map[GUID]Handle[T]
	handleToGUID map[slab.Index]GUID
}

// New constructs an empty Pool[T] with the given slab alignment.
func New[T any](alignment uintptr) (*Pool[T], error) {
	sp, err := slab.New[T](alignment)
	if err != nil {
		return nil, err
	}
	return &Pool[T]{
		slab:         sp,
		guidToHandle: make(map[GUID]Handle[T]),
		handleToGUID: make(map[slab.Index]GUID),
	}, nil
}

// ensureCapacityLocked grows the version/refcount arrays to cover the
// slab's current slot count. Caller must hold p.mu.
func (p *Pool[T]) ensureCapacityLocked() {
	need := p.slab.SlotCount()
	if len(p.versions) >= need {
		return
	}
	grown := make([]uint64, need)
	copy(grown, p.versions)
	p.versions = grown

	grownRef := make([]uint64, need)
	copy(grownRef, p.refcounts)
	p.refcounts = grownRef
}

// Add allocates value with no GUID binding.
func (p *Pool[T]) Add(value T) (Handle[T], error) {
	return p.add(NilGUID, value, false)
}

// AddWithGUID allocates value and binds it to guid. Fails with
// ErrInvalidGUID if guid is the nil sentinel, or ErrDuplicateGUID if guid
// is already bound to a live handle. On failure the pool is left
// unchanged.
func (p *Pool[T]) AddWithGUID(guid GUID, value T) (Handle[T], error) {
	if guid == NilGUID {
		return Handle[T]{}, ErrInvalidGUID
	}
	return p.add(guid, value, true)
}

func (p *Pool[T]) add(guid GUID, value T, bind bool) (Handle[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bind {
		if _, exists := p.guidToHandle[guid]; exists {
			return Handle[T]{}, ErrDuplicateGUID
		}
	}

	h, err := p.slab.Create(value)
	if err != nil {
		return Handle[T]{}, err
	}
	p.ensureCapacityLocked()

	idx := h.Offset
	if p.versions[idx] == 0 {
		p.versions[idx] = 1 // first issuance
	}
	// Reused slot: stamp with the current (already bumped) version,
	// per spec §4.B's version policy — no bump on reissue.
	h.Version = p.versions[idx]
	p.refcounts[idx] = 1

	if bind {
		p.guidToHandle[guid] = h
		p.handleToGUID[idx] = guid
	}

	debugLogger.Printf("add at slot %d, version %d, bound=%v", idx, h.Version, bind)
	return h, nil
}

// validLocked reports whether h currently addresses a live slot with a
// matching version. Caller must hold p.mu.
func (p *Pool[T]) validLocked(h Handle[T]) bool {
	if !h.Valid() || h.Version == 0 || h.Offset >= uint64(len(p.versions)) {
		return false
	}
	return p.versions[h.Offset] == h.Version
}

// Get resolves h to its live object. Fails with ErrInvalidHandle if h's
// version doesn't match the slot's current version.
func (p *Pool[T]) Get(h Handle[T]) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.validLocked(h) {
		return nil, ErrInvalidHandle
	}
	return p.slab.Get(h)
}

// Remove is idempotent on invalid handles: destroys the object, bumps the
// slot's version (invalidating every outstanding copy of h), zeroes the
// refcount, and unbinds any GUID.
func (p *Pool[T]) Remove(h Handle[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(h)
}

func (p *Pool[T]) removeLocked(h Handle[T]) error {
	if !p.validLocked(h) {
		return nil // idempotent no-op
	}

	idx := h.Offset
	if err := p.slab.Destroy(h); err != nil {
		return err
	}
	p.versions[idx]++
	p.refcounts[idx] = 0

	if guid, ok := p.handleToGUID[idx]; ok {
		delete(p.handleToGUID, idx)
		delete(p.guidToHandle, guid)
	}

	debugLogger.Printf("removed slot %d, version now %d", idx, p.versions[idx])
	return nil
}

// Retain increments h's reference count. No-op on an invalid handle.
func (p *Pool[T]) Retain(h Handle[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(h) {
		return
	}
	p.refcounts[h.Offset]++
}

// Release decrements h's reference count; on transition to zero, removes
// the object. No-op on an invalid handle.
func (p *Pool[T]) Release(h Handle[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(h) {
		return nil
	}
	p.refcounts[h.Offset]--
	if p.refcounts[h.Offset] == 0 {
		return p.removeLocked(h)
	}
	return nil
}

// UseCount returns h's current reference count, or 0 for an invalid
// handle.
func (p *Pool[T]) UseCount(h Handle[T]) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(h) {
		return 0
	}
	return p.refcounts[h.Offset]
}

// Valid reports whether h currently addresses a live object.
func (p *Pool[T]) Valid(h Handle[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validLocked(h)
}

// GuidOf returns the GUID bound to h, or NilGUID if none is bound (or h is
// invalid).
func (p *Pool[T]) GuidOf(h Handle[T]) GUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(h) {
		return NilGUID
	}
	if guid, ok := p.handleToGUID[h.Offset]; ok {
		return guid
	}
	return NilGUID
}

// FindByGUID returns the handle bound to guid, or the null handle if none.
func (p *Pool[T]) FindByGUID(guid GUID) Handle[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.guidToHandle[guid]; ok {
		return h
	}
	return Handle[T]{Offset: slab.NullIndex}
}

// ForEach visits every live object with the pool lock held (§5), the same
// non-reentrancy caveat as slab.Pool.UsedVisitor applies.
func (p *Pool[T]) ForEach(f func(h Handle[T], value *T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// slab.Pool.UsedVisitor stamps Offset only; add the current version
	// so callers receive a fully valid handle.
	p.slab.UsedVisitor(func(h Handle[T], value *T) {
		h.Version = p.versions[h.Offset]
		f(h, value)
	})
}

// Stats summarizes the pool's current occupancy.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	free := p.slab.CountFree()
	return Stats{
		Live:      len(p.versions) - free,
		Free:      free,
		SlotCount: len(p.versions),
		Bound:     len(p.guidToHandle),
	}
}

// ValidateInvariants checks internal consistency, in the spirit of the
// teacher's MemoryController.ValidateClusterIntegrity: every bound GUID
// must point back to a live handle in the slab, and vice versa.
func (p *Pool[T]) ValidateInvariants() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for guid, h := range p.guidToHandle {
		if !p.validLocked(h) {
			return fmt.Errorf("resource: guid %s bound to invalid handle %+v", guid, h)
		}
		if p.handleToGUID[h.Offset] != guid {
			return fmt.Errorf("resource: guid %s / handle %+v back-reference mismatch", guid, h)
		}
	}
	for idx, guid := range p.handleToGUID {
		if h, ok := p.guidToHandle[guid]; !ok || h.Offset != idx {
			return fmt.Errorf("resource: slot %d's guid %s has no matching forward binding", idx, guid)
		}
	}
	return nil
}

package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type sprite struct {
	Path string
}

type sound struct {
	Path string
}

func TestRegistryCreatesPoolOnFirstAdd(t *testing.T) {
	r := NewRegistry()
	require.Empty(t, r.RegisteredTypes())

	h, err := Add(r, sprite{Path: "a.png"})
	require.NoError(t, err)
	require.Len(t, r.RegisteredTypes(), 1)

	got, err := Get(r, h)
	require.NoError(t, err)
	require.Equal(t, "a.png", got.Path)
}

func TestRegistryGetUnregisteredTypeFails(t *testing.T) {
	r := NewRegistry()
	_, err := Get(r, Handle[sprite]{Offset: 0})
	require.ErrorIs(t, err, ErrTypeNotRegistered)
}

func TestRegistryKeepsTypesIndependent(t *testing.T) {
	r := NewRegistry()

	hs, err := Add(r, sprite{Path: "a.png"})
	require.NoError(t, err)
	hd, err := Add(r, sound{Path: "a.wav"})
	require.NoError(t, err)

	require.NoError(t, Remove(r, hs))
	validS, err := Valid(r, hs)
	require.NoError(t, err)
	require.False(t, validS)

	// sound pool is unaffected by removing from the sprite pool, even
	// though both handles started at offset 0.
	validD, err := Valid(r, hd)
	require.NoError(t, err)
	require.True(t, validD)
}

// TestRegistryUnregisteredTypeFailsAcrossSurface exercises spec §7's error
// table literally: TypeNotRegistered is raised by the registry's full
// surface area (get/remove/retain/release/valid/use_count/for_all/
// find_by_guid), not just get, for any T that was never added.
func TestRegistryUnregisteredTypeFailsAcrossSurface(t *testing.T) {
	r := NewRegistry()
	h := Handle[sprite]{Offset: 0}

	_, err := Get(r, h)
	require.ErrorIs(t, err, ErrTypeNotRegistered)

	require.ErrorIs(t, Remove(r, h), ErrTypeNotRegistered)
	require.ErrorIs(t, Retain(r, h), ErrTypeNotRegistered)
	require.ErrorIs(t, Release(r, h), ErrTypeNotRegistered)

	_, err = UseCount(r, h)
	require.ErrorIs(t, err, ErrTypeNotRegistered)

	_, err = Valid(r, h)
	require.ErrorIs(t, err, ErrTypeNotRegistered)

	_, err = GuidOf(r, h)
	require.ErrorIs(t, err, ErrTypeNotRegistered)

	_, err = FindByGUID[sprite](r, NewGUID())
	require.ErrorIs(t, err, ErrTypeNotRegistered)

	err = ForAll(r, func(h Handle[sprite], value *sprite) {
		t.Fatal("should not be called for an unregistered type")
	})
	require.ErrorIs(t, err, ErrTypeNotRegistered)
}

func TestRegistryFindByGUID(t *testing.T) {
	r := NewRegistry()
	guid := NewGUID()

	h, err := AddWithGUID(r, guid, sprite{Path: "a.png"})
	require.NoError(t, err)
	found, err := FindByGUID[sprite](r, guid)
	require.NoError(t, err)
	require.Equal(t, h, found)

	gotGUID, err := GuidOf(r, h)
	require.NoError(t, err)
	require.Equal(t, guid, gotGUID)
}

func TestRegistryValidateInvariants(t *testing.T) {
	r := NewRegistry()
	_, err := Add(r, sprite{Path: "a.png"})
	require.NoError(t, err)
	_, err = AddWithGUID(r, NewGUID(), sound{Path: "a.wav"})
	require.NoError(t, err)

	require.NoError(t, r.ValidateInvariants())
}

// TestConcurrentCreateDestroy models many goroutines hammering a single
// registered type concurrently: every handle that is eventually dropped
// to a zero refcount must report invalid, and the pool's invariants must
// hold throughout.
func TestConcurrentCreateDestroy(t *testing.T) {
	r := NewRegistry()
	const workers = 8
	const iterations = 1000

	g := new(errgroup.Group)
	var mu sync.Mutex
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				h, err := Add(r, sprite{Path: "stress"})
				if err != nil {
					return err
				}
				if err := Retain(r, h); err != nil {
					return err
				}
				if err := Release(r, h); err != nil {
					return err
				}
				if err := Release(r, h); err != nil {
					return err
				}
				valid, err := Valid(r, h)
				if err != nil {
					return err
				}
				if valid {
					mu.Lock()
					t.Errorf("worker %d: handle still valid after double release", w)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, r.ValidateInvariants())
}

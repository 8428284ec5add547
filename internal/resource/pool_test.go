package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string
	N    int
}

func TestAddGetRoundTrip(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	h, err := p.Add(widget{Name: "a", N: 1})
	require.NoError(t, err)

	got, err := p.Get(h)
	require.NoError(t, err)
	require.Equal(t, "a", got.Name)
	require.Equal(t, uint64(1), p.UseCount(h))
}

func TestRemoveInvalidatesHandleAndIsIdempotent(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	h, err := p.Add(widget{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, p.Remove(h))

	_, err = p.Get(h)
	require.ErrorIs(t, err, ErrInvalidHandle)

	// Idempotent: removing an already-invalid handle is not an error.
	require.NoError(t, p.Remove(h))
}

// TestVersionBumpOnReuseNoBumpOnReissue exercises the spec's version
// policy literally: destroying and recreating bumps the version exactly
// once per removal, never on a bare reissue into the same slot.
func TestVersionBumpOnReuseNoBumpOnReissue(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	h1, err := p.Add(widget{Name: "first"})
	require.NoError(t, err)
	require.NoError(t, p.Remove(h1))

	h2, err := p.Add(widget{Name: "second"})
	require.NoError(t, err)

	require.Equal(t, h1.Offset, h2.Offset)
	require.NotEqual(t, h1.Version, h2.Version)

	// An old copy of h1 must not resolve to the new occupant.
	_, err = p.Get(h1)
	require.ErrorIs(t, err, ErrInvalidHandle)

	got, err := p.Get(h2)
	require.NoError(t, err)
	require.Equal(t, "second", got.Name)
}

func TestRetainReleaseLifecycle(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	h, err := p.Add(widget{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.UseCount(h))

	p.Retain(h)
	require.Equal(t, uint64(2), p.UseCount(h))

	require.NoError(t, p.Release(h))
	require.Equal(t, uint64(1), p.UseCount(h))
	require.True(t, p.Valid(h))

	require.NoError(t, p.Release(h))
	require.False(t, p.Valid(h))
}

func TestAddWithGUIDRejectsNilAndDuplicate(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	_, err = p.AddWithGUID(NilGUID, widget{})
	require.ErrorIs(t, err, ErrInvalidGUID)

	guid := NewGUID()
	h, err := p.AddWithGUID(guid, widget{Name: "bound"})
	require.NoError(t, err)
	require.Equal(t, guid, p.GuidOf(h))

	_, err = p.AddWithGUID(guid, widget{Name: "dup"})
	require.ErrorIs(t, err, ErrDuplicateGUID)
}

func TestFindByGUIDAfterRemoveReturnsNullHandle(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	guid := NewGUID()
	h, err := p.AddWithGUID(guid, widget{Name: "bound"})
	require.NoError(t, err)
	require.Equal(t, h, p.FindByGUID(guid))

	require.NoError(t, p.Remove(h))
	require.False(t, p.FindByGUID(guid).Valid())
}

func TestForEachVisitsOnlyLive(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	h1, _ := p.Add(widget{Name: "a"})
	h2, _ := p.Add(widget{Name: "b"})
	require.NoError(t, p.Remove(h2))

	var names []string
	p.ForEach(func(h Handle[widget], value *widget) {
		names = append(names, value.Name)
		require.Equal(t, h1, h)
	})
	require.Equal(t, []string{"a"}, names)
}

func TestValidateInvariantsOnHealthyPool(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	guid := NewGUID()
	_, err = p.AddWithGUID(guid, widget{Name: "a"})
	require.NoError(t, err)
	_, err = p.Add(widget{Name: "b"})
	require.NoError(t, err)

	require.NoError(t, p.ValidateInvariants())
}

func TestStatsReportsOccupancy(t *testing.T) {
	p, err := New[widget](0)
	require.NoError(t, err)

	guid := NewGUID()
	h, err := p.AddWithGUID(guid, widget{Name: "a"})
	require.NoError(t, err)
	_, err = p.Add(widget{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, p.Remove(h))

	stats := p.Stats()
	require.Equal(t, 1, stats.Live)
	require.Equal(t, 0, stats.Bound)
}

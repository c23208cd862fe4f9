package id

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULIDSortsInCreationOrder(t *testing.T) {
	g := NewULIDGenerator()
	fixed := time.UnixMilli(1_700_000_000_000)
	g.now = func() time.Time { return fixed }

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = g.Generate()
	}
	assert.True(t, sort.StringsAreSorted(ids))
	for _, s := range ids {
		assert.Len(t, s, 26)
		assert.True(t, IsValidULID(s))
	}
}

func TestNewULIDLaterTimeIsGreater(t *testing.T) {
	g := NewULIDGenerator()
	g.now = func() time.Time { return time.UnixMilli(1000) }
	a := g.Generate()
	g.now = func() time.Time { return time.UnixMilli(2000) }
	b := g.Generate()
	assert.Less(t, a, b)
}

func TestNewUUID(t *testing.T) {
	a, b := NewUUID(), NewUUID()
	assert.NotEqual(t, a, b)
	assert.True(t, IsValidUUID(a))
	assert.Equal(t, "4", string(a[14]))
}

func TestParse(t *testing.T) {
	u := NewUUID()
	got, err := ParseUUID(strings.ToUpper(u))
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = ParseUUID("nope")
	assert.ErrorIs(t, err, ErrInvalidUUID)

	l := NewULID()
	got, err = ParseULID(strings.ToLower(l))
	require.NoError(t, err)
	assert.Equal(t, l, got)

	_, err = ParseULID("too-short")
	assert.ErrorIs(t, err, ErrInvalidULID)
}

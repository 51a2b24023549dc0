package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndPopMostRecent(t *testing.T) {
	c := New[string](4)
	base := time.Now()

	c.Add("a", base)
	c.Add("b", base.Add(time.Second))
	c.Add("c", base.Add(2*time.Second))

	require.Equal(t, 3, c.Len())

	v, ok := c.PopMostRecent()
	require.True(t, ok)
	assert.Equal(t, "c", v)

	v, ok = c.PopMostRecent()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.Equal(t, 1, c.Len())
}

func TestPopMostRecentEmpty(t *testing.T) {
	c := New[int](0)
	_, ok := c.PopMostRecent()
	assert.False(t, ok)
}

func TestCountAndRemoveIdleLongerThan(t *testing.T) {
	c := New[string](4)
	base := time.Now()

	c.Add("old1", base.Add(-10*time.Minute))
	c.Add("old2", base.Add(-6*time.Minute))
	c.Add("fresh", base.Add(-1*time.Minute))

	cutoff := base.Add(-5 * time.Minute)
	assert.Equal(t, 2, c.CountIdleLongerThan(cutoff))

	removed := c.RemoveIdleLongerThan(cutoff)
	require.Len(t, removed, 2)
	assert.Equal(t, []string{"old1", "old2"}, removed)
	assert.Equal(t, 1, c.Len())

	v, ok := c.PopMostRecent()
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestRemovePrefixClamped(t *testing.T) {
	c := New[int](2)
	c.Add(1, time.Now())
	c.Add(2, time.Now())

	removed := c.RemovePrefix(10)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, c.Len())

	assert.Nil(t, c.RemovePrefix(1))
	assert.Nil(t, c.RemovePrefix(0))
}

func TestOldestAndSnapshot(t *testing.T) {
	c := New[int](3)
	base := time.Now()
	c.Add(1, base)
	c.Add(2, base.Add(time.Second))
	c.Add(3, base.Add(2*time.Second))

	oldest := c.Oldest(2)
	assert.Equal(t, []int{1, 2}, oldest)
	assert.Equal(t, 3, c.Len(), "Oldest must not remove entries")

	snap := c.Snapshot()
	assert.Equal(t, []int{1, 2, 3}, snap)

	cleared := c.Clear()
	assert.Equal(t, []int{1, 2, 3}, cleared)
	assert.Equal(t, 0, c.Len())
}

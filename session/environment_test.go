package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAssembleIncompleteWhenAnyPartEmpty(t *testing.T) {
	var e Environment
	now := time.Now()

	assert.False(t, e.Assemble("", "C", "T", now))
	assert.False(t, e.Complete())
	assert.False(t, e.Dirty())
	assert.True(t, e.Timestamp().IsZero())

	assert.False(t, e.Assemble("S", "", "T", now))
	assert.False(t, e.Complete())

	assert.False(t, e.Assemble("S", "C", "", now))
	assert.False(t, e.Complete())
}

func TestAssembleCombinesAndMarksDirty(t *testing.T) {
	var e Environment
	stamp := time.Now()

	changed := e.Assemble("S", "C", "T", stamp)
	assert.True(t, changed)
	assert.True(t, e.Complete())
	assert.True(t, e.Dirty())
	assert.Equal(t, stamp, e.Timestamp())
	assert.Equal(t, "SCT", e.Take())
	assert.False(t, e.Dirty())
}

func TestAssembleIsIdempotent(t *testing.T) {
	var e Environment
	stamp := time.Now()

	assert.True(t, e.Assemble("S", "C", "T", stamp))
	combined := e.Take()

	assert.False(t, e.Assemble("S", "C", "T", stamp.Add(time.Second)))
	assert.False(t, e.Dirty())
	assert.True(t, e.Complete())
	assert.Equal(t, combined, e.Take())
}

func TestAssembleDetectsContentChange(t *testing.T) {
	var e Environment
	first := time.Now()
	second := first.Add(time.Minute)

	e.Assemble("S", "C", "T", first)
	e.Take()

	assert.True(t, e.Assemble("S", "C2", "T", second))
	assert.True(t, e.Dirty())
	assert.Equal(t, second, e.Timestamp())
	assert.Equal(t, "SC2T", e.Take())
}

func TestIncompleteResetsTimestampSentinel(t *testing.T) {
	var e Environment
	e.Assemble("S", "C", "T", time.Now())
	assert.False(t, e.Timestamp().IsZero())

	e.Assemble("S", "", "T", time.Now())
	assert.True(t, e.Timestamp().IsZero())
}

func TestClearDirty(t *testing.T) {
	var e Environment
	e.Assemble("S", "C", "T", time.Now())
	assert.True(t, e.Dirty())
	e.ClearDirty()
	assert.False(t, e.Dirty())
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore()

	sess, created := store.GetOrCreate(42, "alice")
	require.True(t, created)
	require.NotNil(t, sess)
	assert.Equal(t, int64(42), sess.ID)
	assert.Equal(t, "alice", sess.DisplayName)
	assert.Equal(t, StepDefault, sess.Step)
	assert.Empty(t, sess.Channels)
	assert.Empty(t, sess.Query)

	again, created := store.GetOrCreate(42, "renamed")
	assert.False(t, created)
	assert.Same(t, sess, again)
	assert.Equal(t, "alice", again.DisplayName)

	assert.Equal(t, 1, store.Count())
}

func TestStoreGet(t *testing.T) {
	store := NewStore()

	_, ok := store.Get(7)
	assert.False(t, ok)

	created, _ := store.GetOrCreate(7, "bob")
	got, ok := store.Get(7)
	require.True(t, ok)
	assert.Same(t, created, got)
}

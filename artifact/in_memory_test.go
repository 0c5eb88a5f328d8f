package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGet_CopiesData(t *testing.T) {
	s := NewInMemoryStore()
	data := []byte("# Report")

	require.NoError(t, s.Save("task-1", "a1", data))
	data[0] = 'X' // mutating the input must not affect the stored copy

	got, err := s.Get("task-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("# Report"), got)

	got[0] = 'Y' // mutating the output must not affect the stored copy
	again, err := s.Get("task-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("# Report"), again)
}

func TestGet_NotFound(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get("missing-task", "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save("task-1", "a1", []byte("x")))
	_, err = s.Get("task-1", "missing-artifact")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_ReturnsIDsPerTask(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Save("task-1", "a1", []byte("one")))
	require.NoError(t, s.Save("task-1", "a2", []byte("two")))
	require.NoError(t, s.Save("task-2", "b1", []byte("three")))

	ids, err := s.List("task-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	empty, err := s.List("task-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDelete(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Save("task-1", "a1", []byte("one")))

	require.NoError(t, s.Delete("task-1", "a1"))
	_, err := s.Get("task-1", "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete("task-1", "a1"), ErrNotFound)
	assert.ErrorIs(t, s.Delete("missing", "a1"), ErrNotFound)
}

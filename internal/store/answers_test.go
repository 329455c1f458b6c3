package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAnswerStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	logger := zaptest.NewLogger(t)

	s := OpenAnswers(path, logger)
	require.NoError(t, s.Put("what is your expected salary", "95000"))
	require.NoError(t, s.Put("are you authorized to work", "True"))

	// A fresh load from disk must see everything put before it.
	reloaded := OpenAnswers(path, logger)
	got, ok := reloaded.Get("what is your expected salary")
	require.True(t, ok)
	assert.Equal(t, "95000", got)
	got, ok = reloaded.Get("are you authorized to work")
	require.True(t, ok)
	assert.Equal(t, "True", got)
	assert.Equal(t, 2, reloaded.Len())
}

func TestAnswerStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	s := OpenAnswers(path, zaptest.NewLogger(t))

	require.NoError(t, s.Put("phone number", "555-0100"))
	require.NoError(t, s.Put("phone number", "555-0199"))

	got, ok := OpenAnswers(path, zaptest.NewLogger(t)).Get("phone number")
	require.True(t, ok)
	assert.Equal(t, "555-0199", got)
}

func TestAnswerStoreEvict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	s := OpenAnswers(path, zaptest.NewLogger(t))

	require.NoError(t, s.Put("upload your resume_resume", "/tmp/gone.pdf"))
	require.NoError(t, s.Evict("upload your resume_resume"))

	_, ok := s.Get("upload your resume_resume")
	assert.False(t, ok)
	// Eviction persists too.
	_, ok = OpenAnswers(path, zaptest.NewLogger(t)).Get("upload your resume_resume")
	assert.False(t, ok)

	// Evicting a key that is not there is a quiet no-op.
	require.NoError(t, s.Evict("never stored"))
}

func TestAnswerStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := OpenAnswers(path, zaptest.NewLogger(t))
	assert.Equal(t, 0, s.Len())

	// The store must remain writable after a corrupt load.
	require.NoError(t, s.Put("k", "v"))
	got, ok := OpenAnswers(path, zaptest.NewLogger(t)).Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestAnswerStoreMissingFileStartsEmpty(t *testing.T) {
	s := OpenAnswers(filepath.Join(t.TempDir(), "does", "not", "exist.json"), zaptest.NewLogger(t))
	assert.Equal(t, 0, s.Len())
	// First put creates the parent directory.
	require.NoError(t, s.Put("k", "v"))
}

func TestAnswerStoreKeysSorted(t *testing.T) {
	s := OpenAnswers(filepath.Join(t.TempDir(), "a.json"), zaptest.NewLogger(t))
	require.NoError(t, s.Put("zeta", "1"))
	require.NoError(t, s.Put("alpha", "2"))
	require.NoError(t, s.Put("mid", "3"))
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, s.Keys())
}

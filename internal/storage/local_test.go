package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse/statements/internal/common"
)

func TestLocalStore_SaveAndRead(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := s.Save("report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, int64(9), info.Size)
	assert.NotEmpty(t, info.SHA256)

	got, err := s.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	b, err := s.Read(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(b))
}

func TestLocalStore_DeduplicatesByContent(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	first, err := s.Save("a.pdf", strings.NewReader("same bytes"))
	require.NoError(t, err)
	second, err := s.Save("b.pdf", strings.NewReader("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	files, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLocalStore_Delete(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := s.Save("a.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(info.ID))
	_, err = s.Get(info.ID)
	assert.Error(t, err)

	// hash slot is freed, so the same content stores again
	again, err := s.Save("a.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotEqual(t, info.ID, again.ID)
}

func TestLocalStore_IndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	info, err := s.Save("report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)

	// a fresh store over the same directory rebuilds the index
	reopened, err := NewLocalStore(dir)
	require.NoError(t, err)

	got, err := reopened.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Name)
	assert.Equal(t, info.SHA256, got.SHA256)

	b, err := reopened.Read(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(b))

	// dedupe keeps working against the rebuilt hash index
	again, err := reopened.Save("copy.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)
}

func TestLocalStore_GetMissingIsNotFound(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.Delete("nope"), common.ErrNotFound)
}

func TestLocalStore_ListLimit(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save("a.pdf", strings.NewReader("aa"))
	require.NoError(t, err)
	_, err = s.Save("b.pdf", strings.NewReader("bb"))
	require.NoError(t, err)

	files, err := s.List(1)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropmail/backend/internal/domain"
)

func TestSaveGetDeleteRaw(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	raw := []byte("From: a@b\r\nSubject: hi\r\n\r\nbody")
	ref, err := store.SaveRaw("Box@drop.example", "msg-1", raw)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("box@drop.example", "msg-1.eml"), ref)

	got, err := store.GetRaw("box@drop.example", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	require.NoError(t, store.DeleteRaw("box@drop.example", "msg-1"))
	_, err = store.GetRaw("box@drop.example", "msg-1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// 删除幂等
	assert.NoError(t, store.DeleteRaw("box@drop.example", "msg-1"))
}

func TestDeleteAllRaw(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	_, err = store.SaveRaw("box@drop.example", "msg-1", []byte("one"))
	require.NoError(t, err)
	_, err = store.SaveRaw("box@drop.example", "msg-2", []byte("two"))
	require.NoError(t, err)
	_, err = store.SaveRaw("other@drop.example", "msg-3", []byte("three"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteAllRaw("box@drop.example"))

	_, err = store.GetRaw("box@drop.example", "msg-1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = os.Stat(filepath.Join(base, "box@drop.example"))
	assert.True(t, os.IsNotExist(err))

	// 其他地址不受影响
	got, err := store.GetRaw("other@drop.example", "msg-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), got)
}

func TestSanitizeKeepsPathInsideBase(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	ref, err := store.SaveRaw("../escape@drop.example", "../../msg", []byte("x"))
	require.NoError(t, err)

	abs := filepath.Join(base, ref)
	rel, err := filepath.Rel(base, abs)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(rel))
	assert.NotContains(t, rel, "..")
}

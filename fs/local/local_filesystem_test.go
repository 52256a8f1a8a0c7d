package fslocal

import (
	"io"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	eel "github.com/bjitd/eel-sdk"
)

func TestLocalFilesystem(t *testing.T) {
	root := t.TempDir()
	fs := New()

	t.Run("CreateWriteRead", func(t *testing.T) {
		p := path.Join(root, "a/b/data.jsonl")

		w, err := fs.CreateFile(p)
		require.NoError(t, err)
		_, err = w.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		exists, err := fs.Exists(p)
		require.NoError(t, err)
		require.True(t, exists)

		r, err := fs.Open(p)
		require.NoError(t, err)
		content, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.Equal(t, "hello", string(content))
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := fs.Open(path.Join(root, "nope"))
		require.ErrorIs(t, err, eel.ErrFileNotFound)
	})

	t.Run("RenameWithinDir", func(t *testing.T) {
		from := path.Join(root, "a/b/.tmp/staged.jsonl")
		to := path.Join(root, "a/b/staged.jsonl")

		w, err := fs.CreateFile(from)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		require.NoError(t, fs.Rename(from, to))

		exists, err := fs.Exists(from)
		require.NoError(t, err)
		require.False(t, exists)

		exists, err = fs.Exists(to)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("Permissions", func(t *testing.T) {
		dir := path.Join(root, "restricted")
		require.NoError(t, fs.Mkdir(dir, 0700))

		perm, err := fs.GetPermission(dir)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0700), perm)

		require.NoError(t, fs.SetPermission(dir, 0755))
		perm, err = fs.GetPermission(dir)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0755), perm)
	})

	t.Run("DeleteRecursive", func(t *testing.T) {
		dir := path.Join(root, "gone/deep")
		require.NoError(t, fs.MkdirAll(dir, 0755))

		w, err := fs.CreateFile(path.Join(dir, "f"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		require.NoError(t, fs.Delete(path.Join(root, "gone"), true))

		exists, err := fs.Exists(path.Join(root, "gone"))
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("List", func(t *testing.T) {
		dir := path.Join(root, "listed")
		for _, name := range []string{"one", "two"} {
			w, err := fs.CreateFile(path.Join(dir, name))
			require.NoError(t, err)
			require.NoError(t, w.Close())
		}

		names, err := fs.List(dir)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{path.Join(dir, "one"), path.Join(dir, "two")}, names)
	})
}

package fslocal

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	eel "github.com/bjitd/eel-sdk"
	"github.com/thehivecorporation/log"
)

// New returns a Filesystem over the local POSIX filesystem. Relative paths
// are resolved against the working directory.
func New() eel.Filesystem {
	return &localFs{}
}

type localFs struct{}

func (f *localFs) Exists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

func (f *localFs) CreateFile(p string) (io.WriteCloser, error) {
	if err := os.MkdirAll(path.Dir(p), 0755); err != nil {
		return nil, errors.Join(errors.New("error creating parent dirs"), err)
	}

	file, err := os.Create(p)
	if err != nil {
		return nil, errors.Join(errors.New("error creating file"), err)
	}

	return file, nil
}

func (f *localFs) Open(p string) (io.ReadCloser, error) {
	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(err, eel.ErrFileNotFound)
		}
		return nil, err
	}

	return file, nil
}

func (f *localFs) Mkdir(p string, perm os.FileMode) error {
	if err := os.Mkdir(p, perm); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}

	// Mkdir applies the umask; force the requested bits.
	return os.Chmod(p, perm)
}

func (f *localFs) MkdirAll(p string, perm os.FileMode) error {
	return os.MkdirAll(p, perm)
}

func (f *localFs) Delete(p string, recursive bool) error {
	if recursive {
		log.Debugf("Removing '%s' recursively", p)
		return os.RemoveAll(p)
	}

	log.Debugf("Removing '%s'", p)

	return os.Remove(p)
}

func (f *localFs) Rename(from, to string) error {
	if err := os.MkdirAll(path.Dir(to), 0755); err != nil {
		return err
	}

	return os.Rename(from, to)
}

func (f *localFs) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}

	return names, nil
}

func (f *localFs) GetPermission(p string) (os.FileMode, error) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, err
	}

	return info.Mode().Perm(), nil
}

func (f *localFs) SetPermission(p string, perm os.FileMode) error {
	return os.Chmod(p, perm)
}

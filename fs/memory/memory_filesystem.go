package fsmemory

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	eel "github.com/bjitd/eel-sdk"
	"github.com/puzpuzpuz/xsync/v3"
)

// New returns a purely in-memory Filesystem, mostly useful for tests.
// Directories are tracked explicitly so permission bits survive round-trips.
func New() eel.Filesystem {
	return &memoryFs{
		files: xsync.NewMapOf[string, *memFile](),
		dirs:  xsync.NewMapOf[string, os.FileMode](),
	}
}

type memFile struct {
	data []byte
	perm os.FileMode
}

type memoryFs struct {
	files *xsync.MapOf[string, *memFile]
	dirs  *xsync.MapOf[string, os.FileMode]
}

func (m *memoryFs) Exists(p string) (bool, error) {
	p = path.Clean(p)
	if _, found := m.files.Load(p); found {
		return true, nil
	}

	if _, found := m.dirs.Load(p); found {
		return true, nil
	}

	return false, nil
}

func (m *memoryFs) CreateFile(p string) (io.WriteCloser, error) {
	p = path.Clean(p)
	if err := m.MkdirAll(path.Dir(p), 0755); err != nil {
		return nil, err
	}

	return &memWriter{fs: m, path: p}, nil
}

func (m *memoryFs) Open(p string) (io.ReadCloser, error) {
	f, found := m.files.Load(path.Clean(p))
	if !found {
		return nil, eel.ErrFileNotFound
	}

	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (m *memoryFs) Mkdir(p string, perm os.FileMode) error {
	m.dirs.Store(path.Clean(p), perm)
	return nil
}

func (m *memoryFs) MkdirAll(p string, perm os.FileMode) error {
	p = path.Clean(p)
	for p != "/" && p != "." && p != "" {
		m.dirs.LoadOrStore(p, perm)
		p = path.Dir(p)
	}

	return nil
}

func (m *memoryFs) Delete(p string, recursive bool) error {
	p = path.Clean(p)
	if !recursive {
		m.files.Delete(p)
		m.dirs.Delete(p)
		return nil
	}

	prefix := p + "/"
	m.files.Range(func(k string, _ *memFile) bool {
		if k == p || strings.HasPrefix(k, prefix) {
			m.files.Delete(k)
		}
		return true
	})
	m.dirs.Range(func(k string, _ os.FileMode) bool {
		if k == p || strings.HasPrefix(k, prefix) {
			m.dirs.Delete(k)
		}
		return true
	})

	return nil
}

func (m *memoryFs) Rename(from, to string) error {
	from, to = path.Clean(from), path.Clean(to)

	f, found := m.files.Load(from)
	if !found {
		return errors.Join(errors.New("rename source"), eel.ErrFileNotFound)
	}

	if err := m.MkdirAll(path.Dir(to), 0755); err != nil {
		return err
	}

	m.files.Store(to, f)
	m.files.Delete(from)

	return nil
}

func (m *memoryFs) List(dir string) ([]string, error) {
	dir = path.Clean(dir)
	prefix := dir + "/"

	out := make([]string, 0)
	m.files.Range(func(k string, _ *memFile) bool {
		if strings.HasPrefix(k, prefix) && !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			out = append(out, k)
		}
		return true
	})
	m.dirs.Range(func(k string, _ os.FileMode) bool {
		if strings.HasPrefix(k, prefix) && !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			out = append(out, k)
		}
		return true
	})

	return out, nil
}

func (m *memoryFs) GetPermission(p string) (os.FileMode, error) {
	p = path.Clean(p)
	if f, found := m.files.Load(p); found {
		return f.perm, nil
	}

	if perm, found := m.dirs.Load(p); found {
		return perm, nil
	}

	return 0, eel.ErrFileNotFound
}

func (m *memoryFs) SetPermission(p string, perm os.FileMode) error {
	p = path.Clean(p)
	if f, found := m.files.Load(p); found {
		m.files.Store(p, &memFile{data: f.data, perm: perm})
		return nil
	}

	if _, found := m.dirs.Load(p); found {
		m.dirs.Store(p, perm)
		return nil
	}

	return eel.ErrFileNotFound
}

// memWriter buffers writes and stores the file on Close, so a file is never
// observable half-written.
type memWriter struct {
	fs   *memoryFs
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.fs.files.Store(w.path, &memFile{data: w.buf.Bytes(), perm: 0644})
	return nil
}

package sink

import (
	"errors"
	"path"

	eel "github.com/bjitd/eel-sdk"
	"github.com/thehivecorporation/log"
)

// TempDirName is the hidden subdirectory staged files are written under.
const TempDirName = ".eeltmp"

const (
	dirPerm  = 0755
	filePerm = 0644
)

type writerKey struct {
	partition string
	worker    int
}

// writerHandle owns one open output file, bound to exactly one
// (partition, worker) pair. Only its owning worker ever writes to it, so no
// locking happens on the write path.
type writerHandle struct {
	partition eel.Partition
	worker    int

	// writePath is where bytes go; in staged mode it differs from finalPath
	// until publish renames it.
	writePath string
	finalPath string
	tempDir   string

	writer eel.FormatWriter
}

func (s *Sink) openWriter(worker int, parts eel.Partition) (*writerHandle, error) {
	if err := s.registry.ensure(parts); err != nil {
		return nil, err
	}

	partitionDir := s.tablePath
	if fragment := parts.Fragment(); fragment != "" {
		partitionDir = path.Join(s.tablePath, fragment)
	}

	if err := s.ensureDirectory(partitionDir); err != nil {
		return nil, errors.Join(errors.New("error creating partition directory"), err)
	}

	name := newFileNameBuilder().
		WithWorker(worker).
		WithExtension(s.format.Extension()).
		Build()

	h := &writerHandle{
		partition: parts,
		worker:    worker,
		finalPath: path.Join(partitionDir, name),
		writePath: path.Join(partitionDir, name),
	}

	if s.cfg.WriteToTempDirectory {
		h.tempDir = path.Join(partitionDir, TempDirName)
		h.writePath = path.Join(h.tempDir, name)
		if err := s.fs.MkdirAll(h.tempDir, dirPerm); err != nil {
			return nil, errors.Join(errors.New("error creating temp directory"), err)
		}
	}

	s.notifyFileCreated(h.writePath)

	writer, err := s.format.Open(s.fs, h.writePath, s.fileSchema, filePerm, map[string]string{
		"database": s.cfg.Database,
		"table":    s.cfg.Table,
	})
	if err != nil {
		return nil, errors.Join(errors.New("error opening format writer"), err)
	}
	h.writer = writer

	s.filesCreated.Add(1)
	log.WithFields(log.Fields{"path": h.writePath, "worker": worker}).Debug("Opened writer")

	return h, nil
}

// ensureDirectory creates dir and any missing ancestors. With permission
// inheritance on, the permission bits of the nearest existing ancestor are
// replicated down through every directory created. The walk is iterative so
// pathological path depths cannot blow the stack.
func (s *Sink) ensureDirectory(dir string) error {
	exists, err := s.fs.Exists(dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if !s.inheritPerms {
		return s.fs.MkdirAll(dir, dirPerm)
	}

	missing := make([]string, 0, 4)
	ancestor := dir
	for {
		exists, err = s.fs.Exists(ancestor)
		if err != nil {
			return err
		}
		if exists {
			break
		}

		missing = append(missing, ancestor)
		parent := path.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}

	perm, err := s.fs.GetPermission(ancestor)
	if err != nil {
		log.WithFields(log.Fields{"path": ancestor, "error": err}).
			Warn("Cannot read ancestor permissions, falling back to defaults")
		perm = dirPerm
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err = s.fs.Mkdir(missing[i], perm); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sink) notifyFileCreated(path string) {
	for _, listener := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{"path": path, "panic": r}).
						Warn("File-created listener panicked")
				}
			}()
			listener.OnFileCreated(path)
		}()
	}
}

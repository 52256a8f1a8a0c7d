package eel

import (
	"errors"
	"io"
	"os"
)

type FilesystemType int

const (
	FILESYSTEM_TYPE_LOCAL FilesystemType = iota
	FILESYSTEM_TYPE_S3
	FILESYSTEM_TYPE_MEMORY
)

var ErrUnknownFilesystemType = errors.New("unknown filesystem type")

var FilesystemTypeMap = map[FilesystemType]string{
	FILESYSTEM_TYPE_LOCAL:  "local",
	FILESYSTEM_TYPE_S3:     "s3",
	FILESYSTEM_TYPE_MEMORY: "memory",
}

var FilesystemTypeReverseMap = map[string]FilesystemType{
	"local":  FILESYSTEM_TYPE_LOCAL,
	"s3":     FILESYSTEM_TYPE_S3,
	"memory": FILESYSTEM_TYPE_MEMORY,
}

var ErrFileNotFound = errors.New("file not found")

// Filesystem abstracts the storage the sink publishes files to. Object
// stores emulate directories with key prefixes; permission calls may be
// no-ops there.
type Filesystem interface {
	Exists(path string) (bool, error)
	// CreateFile opens path for writing, creating missing parent
	// directories. The file content becomes durable on Close.
	CreateFile(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Delete(path string, recursive bool) error
	Rename(from, to string) error
	List(dir string) ([]string, error)
	GetPermission(path string) (os.FileMode, error)
	SetPermission(path string, perm os.FileMode) error
}

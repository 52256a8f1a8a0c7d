package eel

import (
	"errors"
	"time"
)

type FILE_FORMAT int

const (
	FILE_FORMAT_JSONL FILE_FORMAT = iota
	FILE_FORMAT_PARQUET
)

var FormatMap = map[FILE_FORMAT]string{
	FILE_FORMAT_JSONL:   "jsonl",
	FILE_FORMAT_PARQUET: "parquet",
}

var ReverseFormatMap = map[string]FILE_FORMAT{
	"jsonl":   FILE_FORMAT_JSONL,
	"parquet": FILE_FORMAT_PARQUET,
}

const PARQUET_NUMBER_OF_THREADS = 8

// DefaultInheritPermissions is the process-wide default applied when
// SinkConfig.InheritPermissions is left nil.
var DefaultInheritPermissions = false

var (
	ErrNoIoThreads = errors.New("io threads must be at least 1")
	ErrNoBuffer    = errors.New("buffer size must be at least 1")
	ErrNoTable     = errors.New("database and table names are required")
)

type SinkConfig struct {
	Database string
	Table    string

	// IoThreads is the number of writer workers started at construction.
	IoThreads int
	// BufferSize is the capacity of the ingestion queue. Write blocks when
	// the queue is full.
	BufferSize int
	// DynamicPartitioning registers new partitions in the catalog on first
	// write instead of requiring pre-creation.
	DynamicPartitioning bool
	// WriteToTempDirectory stages files under a hidden subdirectory of the
	// partition and publishes them by rename on Close.
	WriteToTempDirectory bool
	// InheritPermissions copies the permission bits of the nearest existing
	// ancestor onto newly created partition directories. Nil falls back to
	// DefaultInheritPermissions.
	InheritPermissions *bool
	// IncludePartitionsInData duplicates partition-key columns into the file
	// body instead of stripping them.
	IncludePartitionsInData bool

	// CloseTimeout bounds how long Close waits for the workers to drain.
	CloseTimeout time.Duration

	S3Config S3Config
}

type S3Config struct {
	Region string
	Bucket string
}

func NewDefaultSinkConfig(database, table string) *SinkConfig {
	return &SinkConfig{
		Database:             database,
		Table:                table,
		IoThreads:            4,
		BufferSize:           1000,
		DynamicPartitioning:  true,
		WriteToTempDirectory: true,
		CloseTimeout:         time.Hour,
	}
}

func (c *SinkConfig) Validate() error {
	if c.Database == "" || c.Table == "" {
		return ErrNoTable
	}

	if c.IoThreads < 1 {
		return ErrNoIoThreads
	}

	if c.BufferSize < 1 {
		return ErrNoBuffer
	}

	if c.CloseTimeout <= 0 {
		c.CloseTimeout = time.Hour
	}

	return nil
}

// InheritPermissionsOrDefault resolves the tri-state flag.
func (c *SinkConfig) InheritPermissionsOrDefault() bool {
	if c.InheritPermissions == nil {
		return DefaultInheritPermissions
	}

	return *c.InheritPermissions
}

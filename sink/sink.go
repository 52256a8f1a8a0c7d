package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eel "github.com/bjitd/eel-sdk"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/thehivecorporation/log"
)

var (
	ErrSinkClosed   = errors.New("sink is closed")
	ErrCloseTimeout = errors.New("timed out waiting for writers to drain")
)

type sinkState int32

const (
	stateOpen sinkState = iota
	stateDraining
	stateClosed
)

// poisonPill is the shutdown sentinel. A worker that dequeues it re-enqueues
// it for the next consumer before exiting, so one enqueued sentinel reaches
// all workers.
var poisonPill = eel.Row{}

func isPoison(row eel.Row) bool {
	return row.Schema() == nil
}

// Sink routes a concurrent stream of rows into one file per
// (partition, worker) pair under a partitioned table directory, registering
// new partitions in the catalog as they are first seen.
//
// Rows enter through Write, which blocks when the ingestion queue is full;
// that is the backpressure bound on memory. A fixed pool of workers drains
// the queue. Ordering is preserved only per worker; there is no global order
// across the sink.
type Sink struct {
	cfg       *eel.SinkConfig
	catalog   eel.Catalog
	fs        eel.Filesystem
	format    eel.FormatFactory
	listeners []eel.FileCreatedListener

	schema        *eel.Schema
	fileSchema    *eel.Schema
	projection    *eel.Projection
	partitionKeys []string
	tablePath     string
	inheritPerms  bool

	queue    chan eel.Row
	workers  sync.WaitGroup
	writers  *xsync.MapOf[writerKey, *writerHandle]
	registry *partitionRegistry

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	rowsWritten  atomic.Int64
	rowsDropped  atomic.Int64
	filesCreated atomic.Int64
}

// New validates the configuration, resolves the table's partition keys and
// base path from the catalog, and starts the worker pool. Schema problems
// (a partition key missing from the row schema, nothing left to write after
// stripping partition columns) fail here, never per row.
func New(cfg *eel.SinkConfig, schema *eel.Schema, catalog eel.Catalog, fs eel.Filesystem, format eel.FormatFactory, listeners ...eel.FileCreatedListener) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	partitionKeys, err := catalog.PartitionKeys(cfg.Database, cfg.Table)
	if err != nil {
		return nil, errors.Join(errors.New("error resolving partition keys"), err)
	}

	for _, k := range partitionKeys {
		if _, found := schema.IndexOf(k); !found {
			return nil, fmt.Errorf("partition key column '%s' is missing from the row schema", k)
		}
	}

	tablePath, err := catalog.TablePath(cfg.Database, cfg.Table)
	if err != nil {
		return nil, errors.Join(errors.New("error resolving table path"), err)
	}

	fileSchema := schema
	if !cfg.IncludePartitionsInData {
		fileSchema = schema.Without(partitionKeys...)
	}
	if fileSchema.Len() == 0 {
		return nil, errors.New("file schema is empty: every column is a partition key")
	}

	projection, err := eel.NewProjection(schema, fileSchema)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		cfg:           cfg,
		catalog:       catalog,
		fs:            fs,
		format:        format,
		listeners:     listeners,
		schema:        schema,
		fileSchema:    fileSchema,
		projection:    projection,
		partitionKeys: partitionKeys,
		tablePath:     tablePath,
		inheritPerms:  cfg.InheritPermissionsOrDefault(),
		queue:         make(chan eel.Row, cfg.BufferSize),
		writers:       xsync.NewMapOf[writerKey, *writerHandle](),
		registry:      newPartitionRegistry(catalog, cfg.Database, cfg.Table, cfg.DynamicPartitioning),
	}

	s.workers.Add(cfg.IoThreads)
	for i := 0; i < cfg.IoThreads; i++ {
		go s.worker(i)
	}

	return s, nil
}

// Write enqueues one row. It blocks while the queue is full and fails once
// Close has been called.
func (s *Sink) Write(row eel.Row) error {
	if sinkState(s.state.Load()) != stateOpen {
		return ErrSinkClosed
	}

	s.queue <- row

	return nil
}

func (s *Sink) worker(id int) {
	defer s.workers.Done()

	for row := range s.queue {
		if isPoison(row) {
			// pass the sentinel on so every worker sees it once
			s.queue <- row
			return
		}

		if err := s.process(id, row); err != nil {
			s.rowsDropped.Add(1)
			log.WithFields(log.Fields{"worker": id, "error": err}).
				Warn("Dropping row after write error")
		}
	}
}

func (s *Sink) process(worker int, row eel.Row) error {
	parts, err := s.partitionFor(row)
	if err != nil {
		return err
	}

	key := writerKey{partition: parts.Fragment(), worker: worker}

	// Only this worker ever touches this key, so a plain load-then-store is
	// race free; the concurrent map protects unrelated keys being inserted
	// by the other workers at the same time.
	handle, found := s.writers.Load(key)
	if !found {
		if handle, err = s.openWriter(worker, parts); err != nil {
			return err
		}
		s.writers.Store(key, handle)
	}

	normalized, err := s.normalize(row)
	if err != nil {
		return err
	}

	if err = handle.writer.Write(normalized); err != nil {
		return err
	}
	s.rowsWritten.Add(1)

	return nil
}

func (s *Sink) partitionFor(row eel.Row) (eel.Partition, error) {
	parts := make(eel.Partition, 0, len(s.partitionKeys))
	for _, key := range s.partitionKeys {
		v, err := row.Get(key)
		if err != nil {
			return nil, err
		}
		parts = append(parts, eel.PartitionPart{Key: key, Value: eel.PartitionValue(v)})
	}

	return parts, nil
}

func (s *Sink) normalize(row eel.Row) (eel.Row, error) {
	if row.Schema() == s.schema || row.Schema().Equals(s.schema) {
		return s.projection.Apply(row)
	}

	// The row carries its own schema; project it on the fly.
	projection, err := eel.NewProjection(row.Schema(), s.fileSchema)
	if err != nil {
		return eel.Row{}, err
	}

	return projection.Apply(row)
}

// Close drains the queue, stops all workers, closes every open writer and,
// in staged mode, publishes the finished files. It is safe to call more than
// once; later calls return the first result.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.doClose()
	})

	return s.closeErr
}

func (s *Sink) doClose() error {
	s.state.Store(int32(stateDraining))
	s.queue <- poisonPill

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.CloseTimeout):
		s.state.Store(int32(stateClosed))
		return ErrCloseTimeout
	}

	errs := make([]error, 0)

	s.writers.Range(func(_ writerKey, h *writerHandle) bool {
		if err := h.writer.Close(); err != nil {
			errs = append(errs, errors.Join(fmt.Errorf("error closing writer for '%s'", h.writePath), err))
		}
		return true
	})

	if s.cfg.WriteToTempDirectory {
		if err := s.publish(); err != nil {
			errs = append(errs, err)
		}
	}

	s.state.Store(int32(stateClosed))

	return errors.Join(errs...)
}

type Stats struct {
	RowsWritten       int64
	RowsDropped       int64
	FilesCreated      int64
	PartitionsCreated int64
}

func (s *Sink) Stats() Stats {
	return Stats{
		RowsWritten:       s.rowsWritten.Load(),
		RowsDropped:       s.rowsDropped.Load(),
		FilesCreated:      s.filesCreated.Load(),
		PartitionsCreated: s.registry.createdCount.Load(),
	}
}

// Dropped reports how many rows were lost to per-row write errors. Such rows
// never fail Close; callers that care should check this counter.
func (s *Sink) Dropped() int64 {
	return s.rowsDropped.Load()
}

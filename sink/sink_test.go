package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	eel "github.com/bjitd/eel-sdk"
	catalogmemory "github.com/bjitd/eel-sdk/catalog/memory"
	formatjsonl "github.com/bjitd/eel-sdk/format/jsonl"
	fsmemory "github.com/bjitd/eel-sdk/fs/memory"
)

const (
	testDB        = "default"
	testTable     = "events"
	testTablePath = "/warehouse/default/events"
)

func testSchema() *eel.Schema {
	return eel.NewSchema(
		eel.Field{Name: "id", Type: eel.TypeInt64},
		eel.Field{Name: "country", Type: eel.TypeString},
		eel.Field{Name: "value", Type: eel.TypeFloat64, Nullable: true},
	)
}

type countingCatalog struct {
	*catalogmemory.Catalog
	creates atomic.Int64
}

func (c *countingCatalog) CreatePartitionIfNotExists(database, table string, parts eel.Partition) error {
	c.creates.Add(1)
	return c.Catalog.CreatePartitionIfNotExists(database, table, parts)
}

func newTestCatalog(keys ...string) *countingCatalog {
	c := &countingCatalog{Catalog: catalogmemory.New()}
	c.RegisterTable(testDB, testTable, testTablePath, keys...)
	return c
}

func readJSONL(t *testing.T, fs eel.Filesystem, path string) []map[string]any {
	t.Helper()

	file, err := fs.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows := make([]map[string]any, 0)
	dec := json.NewDecoder(file)
	for {
		doc := make(map[string]any)
		if err := dec.Decode(&doc); err == io.EOF {
			break
		} else {
			require.NoError(t, err)
		}
		rows = append(rows, doc)
	}

	return rows
}

func readPartition(t *testing.T, fs eel.Filesystem, fragment string) []map[string]any {
	t.Helper()

	files, err := fs.List(testTablePath + "/" + fragment)
	require.NoError(t, err)

	rows := make([]map[string]any, 0)
	for _, f := range files {
		rows = append(rows, readJSONL(t, fs, f)...)
	}

	return rows
}

func TestSingleWorkerDirectMode(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.WriteToTempDirectory = false

	var created []string
	var mu sync.Mutex

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New(),
		eel.FileCreatedFunc(func(p string) {
			mu.Lock()
			created = append(created, p)
			mu.Unlock()
		}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(eel.NewRow(schema, int64(i), "usa", float64(i)*1.5)))
	}
	for i := 3; i < 5; i++ {
		require.NoError(t, s.Write(eel.NewRow(schema, int64(i), "uk", float64(i)*1.5)))
	}

	require.NoError(t, s.Close())

	// one file per partition
	require.Len(t, created, 2)
	require.EqualValues(t, 2, s.Stats().FilesCreated)
	require.EqualValues(t, 5, s.Stats().RowsWritten)

	usa := readPartition(t, fs, "country=usa")
	require.Len(t, usa, 3)
	for i, row := range usa {
		// submission order with a single worker
		require.EqualValues(t, i, row["id"])
		// the partition column is stripped from the file body
		require.NotContains(t, row, "country")
	}

	uk := readPartition(t, fs, "country=uk")
	require.Len(t, uk, 2)
	require.EqualValues(t, 3, uk[0]["id"])
	require.EqualValues(t, 4, uk[1]["id"])

	// listeners fired for files under the final partition dirs
	for _, p := range created {
		require.True(t, strings.HasPrefix(p, testTablePath+"/country="))
		require.NotContains(t, p, TempDirName)
	}
}

func TestStagedConcurrentProducers(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 4
	cfg.BufferSize = 10
	cfg.WriteToTempDirectory = true

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	countries := []string{"usa", "uk", "fr", "de", "jp"}

	var producers sync.WaitGroup
	producers.Add(4)
	for p := 0; p < 4; p++ {
		go func(p int) {
			defer producers.Done()
			for i := 0; i < 25; i++ {
				n := p*25 + i
				err := s.Write(eel.NewRow(schema, int64(n), countries[n%5], float64(n)))
				require.NoError(t, err)
			}
		}(p)
	}
	producers.Wait()

	require.NoError(t, s.Close())

	// the catalog saw exactly one creation call per distinct partition
	require.EqualValues(t, 5, catalog.creates.Load())
	require.EqualValues(t, 5, s.Stats().PartitionsCreated)
	require.EqualValues(t, 100, s.Stats().RowsWritten)
	require.EqualValues(t, 0, s.Stats().RowsDropped)

	for _, country := range countries {
		dir := testTablePath + "/country=" + country

		exists, err := fs.Exists(dir + "/" + TempDirName)
		require.NoError(t, err)
		require.False(t, exists, "temp dir should be gone for %s", country)

		rows := readPartition(t, fs, "country="+country)
		require.Len(t, rows, 20, "partition %s", country)
	}
}

func TestStagedPublishAtomicity(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 2
	cfg.WriteToTempDirectory = true

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Write(eel.NewRow(schema, int64(i), "usa", 1.0)))
	}

	require.Eventually(t, func() bool {
		return s.Stats().RowsWritten == 10
	}, 5*time.Second, time.Millisecond)

	// mid-write: nothing visible in the partition dir besides the temp dir
	dir := testTablePath + "/country=usa"
	entries, err := fs.List(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.True(t, strings.HasSuffix(e, TempDirName), "unexpected visible entry %s", e)
	}

	require.NoError(t, s.Close())

	exists, err := fs.Exists(dir + "/" + TempDirName)
	require.NoError(t, err)
	require.False(t, exists)

	rows := readPartition(t, fs, "country=usa")
	require.Len(t, rows, 10)
}

func TestStaticPartitioning(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	// uk pre-exists in the catalog, usa does not
	require.NoError(t, catalog.Catalog.CreatePartitionIfNotExists(testDB, testTable,
		eel.NewPartition(eel.PartitionPart{Key: "country", Value: "uk"})))

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.DynamicPartitioning = false
	cfg.WriteToTempDirectory = false

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	require.NoError(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)))
	require.NoError(t, s.Write(eel.NewRow(schema, int64(2), "uk", 2.0)))
	require.NoError(t, s.Write(eel.NewRow(schema, int64(3), "usa", 3.0)))

	// the sink still closes fine; the unregistered partition only cost us
	// its rows
	require.NoError(t, s.Close())

	require.EqualValues(t, 2, s.Dropped())
	require.EqualValues(t, 1, s.Stats().RowsWritten)
	require.EqualValues(t, 0, catalog.creates.Load())

	exists, err := fs.Exists(testTablePath + "/country=usa")
	require.NoError(t, err)
	require.False(t, exists)

	rows := readPartition(t, fs, "country=uk")
	require.Len(t, rows, 1)
	require.EqualValues(t, 2, rows[0]["id"])
}

func TestRowWithForeignSchema(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.WriteToTempDirectory = false

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	// extra column, different order
	wide := eel.NewSchema(
		eel.Field{Name: "extra", Type: eel.TypeString},
		eel.Field{Name: "country", Type: eel.TypeString},
		eel.Field{Name: "value", Type: eel.TypeFloat64, Nullable: true},
		eel.Field{Name: "id", Type: eel.TypeInt64},
	)

	require.NoError(t, s.Write(eel.NewRow(wide, "ignored", "usa", 9.5, int64(7))))
	require.NoError(t, s.Close())

	rows := readPartition(t, fs, "country=usa")
	require.Len(t, rows, 1)
	require.EqualValues(t, 7, rows[0]["id"])
	require.EqualValues(t, 9.5, rows[0]["value"])
	require.NotContains(t, rows[0], "extra")
	require.NotContains(t, rows[0], "country")
}

func TestPerRowErrorsDoNotAbort(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.WriteToTempDirectory = false

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	require.NoError(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)))
	// mis-typed value: bool where float64 is expected
	require.NoError(t, s.Write(eel.NewRow(schema, int64(2), "usa", true)))
	require.NoError(t, s.Write(eel.NewRow(schema, int64(3), "usa", 3.0)))

	require.NoError(t, s.Close())

	require.EqualValues(t, 1, s.Dropped())
	rows := readPartition(t, fs, "country=usa")
	require.Len(t, rows, 2)
}

// slowFormat delays every row write to let a small queue fill up.
type slowFormat struct {
	eel.FormatFactory
	delay time.Duration
}

func (f *slowFormat) Open(fs eel.Filesystem, path string, schema *eel.Schema, perm os.FileMode, md map[string]string) (eel.FormatWriter, error) {
	w, err := f.FormatFactory.Open(fs, path, schema, perm, md)
	if err != nil {
		return nil, err
	}
	return &slowWriter{FormatWriter: w, delay: f.delay}, nil
}

type slowWriter struct {
	eel.FormatWriter
	delay time.Duration
}

func (w *slowWriter) Write(row eel.Row) error {
	time.Sleep(w.delay)
	return w.FormatWriter.Write(row)
}

func TestBackpressureLosesNoRows(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.BufferSize = 2
	cfg.WriteToTempDirectory = false

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, &slowFormat{FormatFactory: formatjsonl.New(), delay: time.Millisecond})
	require.NoError(t, err)

	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, s.Write(eel.NewRow(schema, int64(i), "usa", float64(i))))
	}

	require.NoError(t, s.Close())

	require.EqualValues(t, total, s.Stats().RowsWritten)
	rows := readPartition(t, fs, "country=usa")
	require.Len(t, rows, total)
}

func TestCloseSemantics(t *testing.T) {
	t.Run("MultiWorkerShutdownTerminates", func(t *testing.T) {
		catalog := newTestCatalog("country")
		fs := fsmemory.New()

		cfg := eel.NewDefaultSinkConfig(testDB, testTable)
		cfg.IoThreads = 8

		schema := testSchema()
		s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
		require.NoError(t, err)

		for i := 0; i < 200; i++ {
			require.NoError(t, s.Write(eel.NewRow(schema, int64(i), "usa", float64(i))))
		}

		done := make(chan error, 1)
		go func() { done <- s.Close() }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("close did not terminate")
		}
	})

	t.Run("DoubleCloseIsNoop", func(t *testing.T) {
		catalog := newTestCatalog("country")
		s, err := New(eel.NewDefaultSinkConfig(testDB, testTable), testSchema(), catalog, fsmemory.New(), formatjsonl.New())
		require.NoError(t, err)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
	})

	t.Run("WriteAfterCloseFails", func(t *testing.T) {
		catalog := newTestCatalog("country")
		schema := testSchema()
		s, err := New(eel.NewDefaultSinkConfig(testDB, testTable), schema, catalog, fsmemory.New(), formatjsonl.New())
		require.NoError(t, err)

		require.NoError(t, s.Close())
		require.ErrorIs(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)), ErrSinkClosed)
	})
}

// blockingFormat never finishes a row write; used to exercise the close
// timeout path.
type blockingFormat struct{}

func (blockingFormat) Extension() string { return ".blocked" }

func (blockingFormat) Open(eel.Filesystem, string, *eel.Schema, os.FileMode, map[string]string) (eel.FormatWriter, error) {
	return blockingWriter{}, nil
}

type blockingWriter struct{}

func (blockingWriter) Write(eel.Row) error {
	select {}
}

func (blockingWriter) Close() error { return nil }

func TestCloseTimeout(t *testing.T) {
	catalog := newTestCatalog("country")

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.CloseTimeout = 100 * time.Millisecond

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fsmemory.New(), blockingFormat{})
	require.NoError(t, err)

	require.NoError(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)))
	require.ErrorIs(t, s.Close(), ErrCloseTimeout)
}

func TestConstructionErrors(t *testing.T) {
	catalog := newTestCatalog("country")

	t.Run("PartitionKeyMissingFromSchema", func(t *testing.T) {
		schema := eel.NewSchema(eel.Field{Name: "id", Type: eel.TypeInt64})
		_, err := New(eel.NewDefaultSinkConfig(testDB, testTable), schema, catalog, fsmemory.New(), formatjsonl.New())
		require.Error(t, err)
		require.Contains(t, err.Error(), "country")
	})

	t.Run("AllColumnsArePartitionKeys", func(t *testing.T) {
		schema := eel.NewSchema(eel.Field{Name: "country", Type: eel.TypeString})
		_, err := New(eel.NewDefaultSinkConfig(testDB, testTable), schema, catalog, fsmemory.New(), formatjsonl.New())
		require.Error(t, err)
	})

	t.Run("UnknownTable", func(t *testing.T) {
		_, err := New(eel.NewDefaultSinkConfig(testDB, "nope"), testSchema(), catalog, fsmemory.New(), formatjsonl.New())
		require.ErrorIs(t, err, eel.ErrTableNotFound)
	})

	t.Run("BadConfig", func(t *testing.T) {
		cfg := eel.NewDefaultSinkConfig(testDB, testTable)
		cfg.IoThreads = 0
		_, err := New(cfg, testSchema(), catalog, fsmemory.New(), formatjsonl.New())
		require.ErrorIs(t, err, eel.ErrNoIoThreads)
	})
}

func TestIncludePartitionsInData(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.WriteToTempDirectory = false
	cfg.IncludePartitionsInData = true

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	require.NoError(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)))
	require.NoError(t, s.Close())

	rows := readPartition(t, fs, "country=usa")
	require.Len(t, rows, 1)
	require.EqualValues(t, "usa", rows[0]["country"])
}

func TestInheritPermissions(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	// pre-create the table dir with unusual bits for the sink to replicate
	require.NoError(t, fs.Mkdir(testTablePath, 0700))

	inherit := true
	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 1
	cfg.WriteToTempDirectory = false
	cfg.InheritPermissions = &inherit

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	require.NoError(t, s.Write(eel.NewRow(schema, int64(1), "usa", 1.0)))
	require.NoError(t, s.Close())

	perm, err := fs.GetPermission(testTablePath + "/country=usa")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0700), perm)
}

func TestWriterPerPartitionWorkerPair(t *testing.T) {
	catalog := newTestCatalog("country")
	fs := fsmemory.New()

	cfg := eel.NewDefaultSinkConfig(testDB, testTable)
	cfg.IoThreads = 2
	cfg.WriteToTempDirectory = false

	schema := testSchema()
	s, err := New(cfg, schema, catalog, fs, formatjsonl.New())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Write(eel.NewRow(schema, int64(i), fmt.Sprintf("c%d", i%2), float64(i))))
	}

	require.NoError(t, s.Close())

	// at most one file per (partition, worker) pair
	require.LessOrEqual(t, s.Stats().FilesCreated, int64(4))
	require.EqualValues(t, 100, s.Stats().RowsWritten)
}

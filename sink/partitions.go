package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	eel "github.com/bjitd/eel-sdk"
	"github.com/puzpuzpuz/xsync/v3"
)

// partitionRegistry remembers which partitions are already confirmed to exist
// in the catalog, either pre-existing or created by this sink. The fast path
// is a lock-free map read; the slow path re-checks under one lock so that the
// catalog receives at most one creation call per partition per sink lifetime,
// no matter how many workers race on the first row of a new partition.
type partitionRegistry struct {
	catalog  eel.Catalog
	database string
	table    string
	dynamic  bool

	created *xsync.MapOf[uint64, string]
	mu      sync.Mutex

	createdCount atomic.Int64
}

func newPartitionRegistry(catalog eel.Catalog, database, table string, dynamic bool) *partitionRegistry {
	return &partitionRegistry{
		catalog:  catalog,
		database: database,
		table:    table,
		dynamic:  dynamic,
		created:  xsync.NewMapOf[uint64, string](),
	}
}

func (r *partitionRegistry) ensure(parts eel.Partition) error {
	if len(parts) == 0 {
		return nil
	}

	id := parts.ID()
	if _, found := r.created.Load(id); found {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another worker may have passed the fast-path check at the same time
	// and already registered the partition while we waited for the lock.
	if _, found := r.created.Load(id); found {
		return nil
	}

	exists, err := r.catalog.PartitionExists(r.database, r.table, parts)
	if err != nil {
		return errors.Join(errors.New("error checking partition existence"), err)
	}

	if !exists {
		if !r.dynamic {
			return errors.Join(fmt.Errorf("partition '%s'", parts.Fragment()), eel.ErrPartitionNotFound)
		}

		if err = r.catalog.CreatePartitionIfNotExists(r.database, r.table, parts); err != nil {
			return errors.Join(errors.New("error creating partition"), err)
		}
		r.createdCount.Add(1)
	}

	r.created.Store(id, parts.Fragment())

	return nil
}

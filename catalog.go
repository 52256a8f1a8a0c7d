package eel

import "errors"

var (
	ErrTableNotFound     = errors.New("table not found in catalog")
	ErrPartitionNotFound = errors.New("partition not found in catalog")
)

// Catalog is the shared metadata store the sink coordinates partition
// creation against.
type Catalog interface {
	// PartitionKeys returns the declared partition-key column names of the
	// table, in declaration order.
	PartitionKeys(database, table string) ([]string, error)
	PartitionExists(database, table string, parts Partition) (bool, error)
	// CreatePartitionIfNotExists registers the partition; already-existing
	// partitions are not an error.
	CreatePartitionIfNotExists(database, table string, parts Partition) error
	// TablePath returns the base directory the table's partitions live under.
	TablePath(database, table string) (string, error)
}

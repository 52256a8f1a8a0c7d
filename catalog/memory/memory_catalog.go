package catalogmemory

import (
	"errors"
	"fmt"
	"sync"

	eel "github.com/bjitd/eel-sdk"
	"github.com/google/btree"
	"github.com/thehivecorporation/log"
)

var ErrUnknownPartitionKey = errors.New("value for undeclared partition key")

// New returns an empty in-memory catalog. Tables must be registered before
// a sink can write to them.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*table)}
}

type table struct {
	path       string
	keys       []string
	partitions *btree.BTreeG[string]
}

// Catalog keeps table metadata in memory, with partitions held in an ordered
// btree so listings come out sorted. All methods are safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func tableID(database, tableName string) string {
	return database + "." + tableName
}

// RegisterTable declares a table, its base path and its partition-key
// columns, in order.
func (c *Catalog) RegisterTable(database, tableName, path string, partitionKeys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables[tableID(database, tableName)] = &table{
		path:       path,
		keys:       partitionKeys,
		partitions: btree.NewG[string](2, func(a, b string) bool { return a < b }),
	}
}

func (c *Catalog) lookup(database, tableName string) (*table, error) {
	t, found := c.tables[tableID(database, tableName)]
	if !found {
		return nil, errors.Join(fmt.Errorf("table '%s.%s'", database, tableName), eel.ErrTableNotFound)
	}

	return t, nil
}

func (c *Catalog) PartitionKeys(database, tableName string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(t.keys))
	copy(keys, t.keys)

	return keys, nil
}

func (c *Catalog) PartitionExists(database, tableName string, parts eel.Partition) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return false, err
	}

	return t.partitions.Has(parts.Fragment()), nil
}

func (c *Catalog) CreatePartitionIfNotExists(database, tableName string, parts eel.Partition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return err
	}

	for _, part := range parts {
		declared := false
		for _, k := range t.keys {
			if k == part.Key {
				declared = true
				break
			}
		}
		if !declared {
			return errors.Join(fmt.Errorf("key '%s'", part.Key), ErrUnknownPartitionKey)
		}
	}

	fragment := parts.Fragment()
	if t.partitions.Has(fragment) {
		return nil
	}

	log.WithFields(log.Fields{"table": tableID(database, tableName), "partition": fragment}).
		Debug("Registering partition")
	t.partitions.ReplaceOrInsert(fragment)

	return nil
}

func (c *Catalog) TablePath(database, tableName string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return "", err
	}

	return t.path, nil
}

// Partitions lists the table's partitions in lexicographic fragment order.
func (c *Catalog) Partitions(database, tableName string) ([]eel.Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return nil, err
	}

	out := make([]eel.Partition, 0, t.partitions.Len())
	var walkErr error
	t.partitions.Ascend(func(fragment string) bool {
		parts, err := eel.ParsePartition(fragment)
		if err != nil {
			walkErr = err
			return false
		}
		out = append(out, parts)
		return true
	})

	return out, walkErr
}

package catalogjsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	eel "github.com/bjitd/eel-sdk"
	"github.com/thehivecorporation/log"
)

type tableDoc struct {
	Path       string   `json:"path"`
	Keys       []string `json:"partition_keys"`
	Partitions []string `json:"partitions"`
}

type catalogDoc struct {
	Tables map[string]*tableDoc `json:"tables"`
}

// Catalog persists the whole catalog as one JSON document on a Filesystem,
// rewritten after every mutation. Suited to single-process deployments; a
// shared metastore should sit behind the same interface instead.
type Catalog struct {
	mu   sync.RWMutex
	fs   eel.Filesystem
	path string
	doc  catalogDoc
}

// Open loads the catalog document at path, starting empty if absent.
func Open(fs eel.Filesystem, path string) (*Catalog, error) {
	c := &Catalog{fs: fs, path: path, doc: catalogDoc{Tables: make(map[string]*tableDoc)}}

	exists, err := fs.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return c, nil
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err = json.NewDecoder(file).Decode(&c.doc); err != nil {
		return nil, errors.Join(errors.New("error decoding catalog file"), err)
	}
	if c.doc.Tables == nil {
		c.doc.Tables = make(map[string]*tableDoc)
	}

	return c, nil
}

// flush rewrites the document. Callers hold the write lock.
func (c *Catalog) flush() error {
	file, err := c.fs.CreateFile(c.path)
	if err != nil {
		return errors.Join(errors.New("error creating catalog file"), err)
	}

	if err = json.NewEncoder(file).Encode(&c.doc); err != nil {
		file.Close()
		return errors.Join(errors.New("error encoding catalog file"), err)
	}

	return file.Close()
}

func tableID(database, tableName string) string {
	return database + "." + tableName
}

func (c *Catalog) RegisterTable(database, tableName, path string, partitionKeys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc.Tables[tableID(database, tableName)] = &tableDoc{Path: path, Keys: partitionKeys}

	return c.flush()
}

func (c *Catalog) lookup(database, tableName string) (*tableDoc, error) {
	t, found := c.doc.Tables[tableID(database, tableName)]
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

	keys := make([]string, len(t.Keys))
	copy(keys, t.Keys)

	return keys, nil
}

func (c *Catalog) PartitionExists(database, tableName string, parts eel.Partition) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return false, err
	}

	fragment := parts.Fragment()
	i := sort.SearchStrings(t.Partitions, fragment)

	return i < len(t.Partitions) && t.Partitions[i] == fragment, nil
}

func (c *Catalog) CreatePartitionIfNotExists(database, tableName string, parts eel.Partition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return err
	}

	fragment := parts.Fragment()
	i := sort.SearchStrings(t.Partitions, fragment)
	if i < len(t.Partitions) && t.Partitions[i] == fragment {
		return nil
	}

	log.WithFields(log.Fields{"table": tableID(database, tableName), "partition": fragment}).
		Debug("Registering partition")

	t.Partitions = append(t.Partitions, "")
	copy(t.Partitions[i+1:], t.Partitions[i:])
	t.Partitions[i] = fragment

	return c.flush()
}

func (c *Catalog) TablePath(database, tableName string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.lookup(database, tableName)
	if err != nil {
		return "", err
	}

	return t.Path, nil
}

package eel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

var (
	ErrPartitionKeyNotFound = errors.New("partition key not found")
	ErrInvalidPartitionPath = errors.New("invalid partition path fragment")
)

type PartitionPart struct {
	Key   string
	Value string
}

// Partition is an ordered list of key/value pairs extracted from the
// partition-key columns of a row. Key order is stable and comes from the
// table's declared partition-key order, never from row arrival order.
type Partition []PartitionPart

func NewPartition(parts ...PartitionPart) Partition {
	return Partition(parts)
}

func (p Partition) Get(key string) (string, error) {
	for _, part := range p {
		if part.Key == key {
			return part.Value, nil
		}
	}

	return "", errors.Join(fmt.Errorf("key '%s'", key), ErrPartitionKeyNotFound)
}

// Fragment returns the directory-name representation 'k1=v1/k2=v2'. Values
// containing '/' or '=' are not escaped and produce ambiguous fragments.
func (p Partition) Fragment() string {
	segments := make([]string, 0, len(p))
	for _, part := range p {
		segments = append(segments, part.Key+"="+part.Value)
	}

	return strings.Join(segments, "/")
}

// Literal returns the quoted form used in catalog query literals,
// e.g. country='usa',city='london'.
func (p Partition) Literal() string {
	segments := make([]string, 0, len(p))
	for _, part := range p {
		segments = append(segments, part.Key+"='"+part.Value+"'")
	}

	return strings.Join(segments, ",")
}

// ID is a stable 64 bit identity for the partition, derived from its
// fragment. Used as the key of the created-partitions registry.
func (p Partition) ID() uint64 {
	h := murmur3.New64()
	if _, err := h.Write([]byte(p.Fragment())); err != nil {
		panic(err)
	}

	return h.Sum64()
}

// ParsePartition decodes a 'k1=v1/k2=v2' fragment. It splits on '/' and then
// on the first '=' of each segment, the inverse of Fragment.
func ParsePartition(fragment string) (Partition, error) {
	if fragment == "" {
		return nil, nil
	}

	segments := strings.Split(fragment, "/")
	parts := make(Partition, 0, len(segments))

	for _, segment := range segments {
		key, value, found := strings.Cut(segment, "=")
		if !found || key == "" {
			return nil, errors.Join(fmt.Errorf("segment '%s'", segment), ErrInvalidPartitionPath)
		}
		parts = append(parts, PartitionPart{Key: key, Value: value})
	}

	return parts, nil
}

// PartitionValue renders a row value as a partition directory value.
func PartitionValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "__null__"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

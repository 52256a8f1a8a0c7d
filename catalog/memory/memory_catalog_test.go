package catalogmemory

import (
	"testing"

	"github.com/stretchr/testify/require"

	eel "github.com/bjitd/eel-sdk"
)

func TestMemoryCatalog(t *testing.T) {
	c := New()
	c.RegisterTable("db", "events", "/warehouse/db/events", "country", "city")

	t.Run("PartitionKeysInDeclarationOrder", func(t *testing.T) {
		keys, err := c.PartitionKeys("db", "events")
		require.NoError(t, err)
		require.Equal(t, []string{"country", "city"}, keys)
	})

	t.Run("TablePath", func(t *testing.T) {
		p, err := c.TablePath("db", "events")
		require.NoError(t, err)
		require.Equal(t, "/warehouse/db/events", p)
	})

	t.Run("UnknownTable", func(t *testing.T) {
		_, err := c.PartitionKeys("db", "missing")
		require.ErrorIs(t, err, eel.ErrTableNotFound)
	})

	t.Run("CreateAndExists", func(t *testing.T) {
		parts := eel.NewPartition(
			eel.PartitionPart{Key: "country", Value: "usa"},
			eel.PartitionPart{Key: "city", Value: "nyc"},
		)

		exists, err := c.PartitionExists("db", "events", parts)
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, c.CreatePartitionIfNotExists("db", "events", parts))
		// second creation is a silent no-op
		require.NoError(t, c.CreatePartitionIfNotExists("db", "events", parts))

		exists, err = c.PartitionExists("db", "events", parts)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("UndeclaredKeyRejected", func(t *testing.T) {
		err := c.CreatePartitionIfNotExists("db", "events",
			eel.NewPartition(eel.PartitionPart{Key: "continent", Value: "na"}))
		require.ErrorIs(t, err, ErrUnknownPartitionKey)
	})

	t.Run("PartitionsSorted", func(t *testing.T) {
		require.NoError(t, c.CreatePartitionIfNotExists("db", "events",
			eel.NewPartition(
				eel.PartitionPart{Key: "country", Value: "ar"},
				eel.PartitionPart{Key: "city", Value: "bsas"},
			)))

		parts, err := c.Partitions("db", "events")
		require.NoError(t, err)
		require.Len(t, parts, 2)
		require.Equal(t, "country=ar/city=bsas", parts[0].Fragment())
		require.Equal(t, "country=usa/city=nyc", parts[1].Fragment())
	})
}

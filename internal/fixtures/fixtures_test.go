package fixtures

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/database"
	"nlquery-agent/internal/docstore"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestOrdersAreDeterministic(t *testing.T) {
	a := Orders(rand.New(rand.NewSource(7)), now, 20)
	b := Orders(rand.New(rand.NewSource(7)), now, 20)
	assert.Equal(t, a, b)

	for _, o := range a {
		assert.GreaterOrEqual(t, o.UserID, 1)
		assert.LessOrEqual(t, o.UserID, len(Users))
		assert.Contains(t, OrderStatuses, o.Status)
		assert.False(t, o.OrderDate.After(now))
	}
}

func TestSeedRelationalSQLite(t *testing.T) {
	client, err := database.NewRelational(config.RelationalConfig{
		Driver:         "sqlite",
		DSN:            ":memory:",
		MaxConnections: 1,
		MaxIdle:        1,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	summary, err := SeedRelational(ctx, client, 1, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{"users": 10, "products": 15, "orders": RelationalOrderCount}, summary)

	var users int
	require.NoError(t, client.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users))
	assert.Equal(t, 10, users)

	var electronics int
	require.NoError(t, client.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM products WHERE category = 'Electronics'").Scan(&electronics))
	assert.Equal(t, 5, electronics)

	// reseeding starts from scratch
	_, err = SeedRelational(ctx, client, 2, now)
	require.NoError(t, err)
	require.NoError(t, client.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users))
	assert.Equal(t, 10, users)
}

func TestSeedDocumentsMemory(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Insert("stale", docstore.Document{"x": 1})

	ctx := context.Background()
	summary, err := SeedDocuments(ctx, MemoryWriter(store), 3, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{"users": 5, "orders": DocumentOrderCount}, summary)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", "orders"}, names)

	alice, ok, err := store.FindOne(ctx, "users", docstore.Filter{"name": "Alice Smith"})
	require.NoError(t, err)
	require.True(t, ok)

	userIDs, err := store.Distinct(ctx, "users", "_id", docstore.Filter{})
	require.NoError(t, err)
	orders, err := store.Find(ctx, "orders", docstore.Filter{}, docstore.FindOptions{})
	require.NoError(t, err)
	for _, o := range orders {
		assert.Contains(t, userIDs, o["user_id"])
	}
	assert.NotEmpty(t, alice["_id"])
}

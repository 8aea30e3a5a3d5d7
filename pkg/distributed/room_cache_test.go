package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSnapshot struct {
	MatchID string         `json:"matchId"`
	Scores  map[string]int `json:"scores"`
}

func TestRoomCache_SaveLoadDelete(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	cache := NewRoomCache(client, time.Minute)
	ctx := context.Background()

	saved := testSnapshot{
		MatchID: "match-1",
		Scores:  map[string]int{"p1": 260, "p2": 30},
	}
	require.NoError(t, cache.Save(ctx, "match-1", saved))

	var loaded testSnapshot
	found, err := cache.Load(ctx, "match-1", &loaded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved, loaded)

	require.NoError(t, cache.Delete(ctx, "match-1"))

	found, err = cache.Load(ctx, "match-1", &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRoomCache_MissingSnapshot(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	cache := NewRoomCache(client, time.Minute)

	var out testSnapshot
	found, err := cache.Load(context.Background(), "no-such-match", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRoomCache_TTLIsSet(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	cache := NewRoomCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "match-1", testSnapshot{MatchID: "match-1"}))

	ttl, err := client.TTL(ctx, "room:match-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

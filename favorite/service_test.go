package favorite

import (
	"context"
	"sync"
	"testing"

	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, maxFree int64, users ...model.User) (*Service, *store.MemoryStore, *eventbus.FakePublisher) {
	s := store.NewMemoryStore()
	for i := range users {
		_, err := s.CreateUser(context.Background(), &users[i])
		require.NoError(t, err)
	}
	pub := &eventbus.FakePublisher{}
	return NewService(s, pub, maxFree), s, pub
}

func game(id int64) model.GameRef {
	return model.GameRef{Id: id, Name: " Game ", CoverUrl: "https://images.igdb.com/cover.jpg"}
}

func TestAddIsIdempotent(t *testing.T) {
	svc, s, pub := newTestService(t, 2, model.User{Id: "u"})
	ctx := context.Background()

	f, err := svc.Add(ctx, "u", game(1))
	require.NoError(t, err)
	assert.Equal(t, "Game", f.GameName)
	again, err := svc.Add(ctx, "u", game(1))
	require.NoError(t, err)
	assert.Equal(t, f.Cursor, again.Cursor)

	quota, err := s.GetQuota(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1), quota.FavoriteCount)
	assert.Len(t, pub.Events(eventbus.TOPIC_FAVORITE_CHANGED), 1)
}

func TestFreeTierCap(t *testing.T) {
	svc, _, _ := newTestService(t, 2, model.User{Id: "free"}, model.User{Id: "vip", IsPremium: true})
	ctx := context.Background()

	for id := int64(1); id <= 2; id++ {
		_, err := svc.Add(ctx, "free", game(id))
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, "free", game(3))
	assert.Equal(t, ErrFavoriteQuotaExceeded, err)

	// re-adding an existing favorite at the cap is fine
	_, err = svc.Add(ctx, "free", game(2))
	assert.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "free", 1))
	_, err = svc.Add(ctx, "free", game(3))
	assert.NoError(t, err)

	for id := int64(1); id <= 5; id++ {
		_, err := svc.Add(ctx, "vip", game(id))
		require.NoError(t, err)
	}
}

func TestRemoveAndList(t *testing.T) {
	svc, s, _ := newTestService(t, 10, model.User{Id: "u"})
	ctx := context.Background()

	assert.Equal(t, ErrFavoriteNotFound, svc.Remove(ctx, "u", 1))

	for id := int64(1); id <= 3; id++ {
		_, err := svc.Add(ctx, "u", game(id))
		require.NoError(t, err)
	}
	list, next, err := svc.List(ctx, "u", model.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].GameId)

	rest, next, err := svc.List(ctx, "u", model.Page{Cursor: next, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Zero(t, next)

	require.NoError(t, svc.Remove(ctx, "u", 2))
	ok, err := svc.IsFavorite(ctx, "u", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = svc.IsFavorite(ctx, "u", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	quota, err := s.GetQuota(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(2), quota.FavoriteCount)
}

func TestAddValidation(t *testing.T) {
	svc, _, _ := newTestService(t, 2)
	_, err := svc.Add(context.Background(), "u", model.GameRef{Id: 0})
	assert.Equal(t, ErrInvalidGame, err)
	_, err = svc.Add(context.Background(), "ghost", game(1))
	assert.Equal(t, ErrUserNotFound, err)
}

func TestConcurrentAddsRespectCap(t *testing.T) {
	svc, s, _ := newTestService(t, 3, model.User{Id: "u"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for id := int64(1); id <= 10; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			svc.Add(ctx, "u", game(id))
		}(id)
	}
	wg.Wait()

	list, _, err := svc.List(ctx, "u", model.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
	quota, err := s.GetQuota(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(3), quota.FavoriteCount)
}

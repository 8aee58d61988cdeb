package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/cache"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	calls    map[string]int
	failList string
	details  map[int64]model.GameDetails
	lastTerm string
	lastSize int
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: map[string]int{}, details: map[int64]model.GameDetails{}}
}

func (f *fakeSource) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) list(name string, limit int) ([]model.GameSummary, error) {
	f.record(name)
	if f.failList == name {
		return nil, errors.New("upstream down")
	}
	res := []model.GameSummary{}
	for i := 0; i < limit; i++ {
		res = append(res, model.GameSummary{Id: int64(i + 1), Name: name})
	}
	return res, nil
}

func (f *fakeSource) Search(ctx context.Context, term string, limit int) ([]model.GameSummary, error) {
	f.record("search")
	f.mu.Lock()
	f.lastTerm, f.lastSize = term, limit
	f.mu.Unlock()
	return []model.GameSummary{{Id: 1, Name: term}}, nil
}

func (f *fakeSource) Popular(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.list("popular", limit)
}

func (f *fakeSource) Upcoming(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.list("upcoming", limit)
}

func (f *fakeSource) RecentlyReleased(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.list("recent", limit)
}

func (f *fakeSource) GameDetails(ctx context.Context, id int64) (model.GameDetails, error) {
	f.record("details")
	d, ok := f.details[id]
	if !ok {
		return model.GameDetails{}, errors.New("not found")
	}
	return d, nil
}

func (f *fakeSource) GamesByIds(ctx context.Context, ids []int64) ([]model.GameSummary, error) {
	f.record("ids")
	res := []model.GameSummary{}
	for _, id := range ids {
		res = append(res, model.GameSummary{Id: id})
	}
	return res, nil
}

type fakeStats struct {
	stats map[int64]model.GameReviewStats
	err   error
}

func (f *fakeStats) GetStats(ctx context.Context, gameId int64) (model.GameReviewStats, error) {
	if f.err != nil {
		return model.GameReviewStats{}, f.err
	}
	return f.stats[gameId], nil
}

func newTestService(t *testing.T, source *fakeSource, stats StatsReader) *Service {
	kv := utils.NewMemoryKeyValueStore()
	details, err := cache.NewDetailsCache(10, time.Hour, kv)
	require.NoError(t, err)
	s := NewService(source, cache.NewDiscoveryCache(time.Hour, kv), details, stats, 3)
	s.now = func() time.Time { return time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestDiscoveryFeedIsCached(t *testing.T) {
	source := newFakeSource()
	s := newTestService(t, source, nil)
	ctx := context.Background()

	feed, err := s.DiscoveryFeed(ctx)
	require.NoError(t, err)
	assert.Len(t, feed.Popular, 3)
	assert.Len(t, feed.Upcoming, 3)
	assert.Len(t, feed.RecentlyReleased, 3)
	assert.Equal(t, "upcoming", feed.Upcoming[0].Name)
	assert.Equal(t, time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC), feed.FetchedAt)

	_, err = s.DiscoveryFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.count("popular"))

	_, err = s.RefreshDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count("popular"))
	assert.Equal(t, 2, source.count("upcoming"))
	assert.Equal(t, 2, source.count("recent"))
}

func TestDiscoveryFeedPartialFailureIsNotCached(t *testing.T) {
	source := newFakeSource()
	source.failList = "upcoming"
	s := newTestService(t, source, nil)
	ctx := context.Background()

	_, err := s.DiscoveryFeed(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch upcoming games")

	_, ok := s.Discovery.Get(ctx)
	assert.False(t, ok)
}

func TestGameDetailsAttachesLiveStats(t *testing.T) {
	source := newFakeSource()
	source.details[7] = model.GameDetails{GameSummary: model.GameSummary{Id: 7, Name: "seven"}}
	stats := &fakeStats{stats: map[int64]model.GameReviewStats{
		7: {GameId: 7, ReviewCount: 2, RatingTotal: 15, AverageRating: 7.5},
	}}
	s := newTestService(t, source, stats)
	ctx := context.Background()

	d, err := s.GameDetails(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, d.Stats)
	assert.Equal(t, 7.5, d.Stats.AverageRating)

	stats.stats[7] = model.GameReviewStats{GameId: 7, ReviewCount: 3, RatingTotal: 24, AverageRating: 8}
	d, err = s.GameDetails(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 8.0, d.Stats.AverageRating)
	assert.Equal(t, 1, source.count("details"))

	_, err = s.RefreshGameDetails(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count("details"))

	s.InvalidateGame(ctx, 7)
	_, err = s.GameDetails(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, source.count("details"))
}

func TestGameDetailsStatsFailureStillServesPage(t *testing.T) {
	source := newFakeSource()
	source.details[7] = model.GameDetails{GameSummary: model.GameSummary{Id: 7}}
	s := newTestService(t, source, &fakeStats{err: errors.New("db down")})

	d, err := s.GameDetails(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, d.Stats)
}

func TestGameDetailsErrors(t *testing.T) {
	source := newFakeSource()
	s := newTestService(t, source, nil)
	ctx := context.Background()

	_, err := s.GameDetails(ctx, 0)
	assert.True(t, errors.Is(err, ErrInvalidGame))

	_, err = s.GameDetails(ctx, 99)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Details.Len())
}

func TestSearch(t *testing.T) {
	source := newFakeSource()
	s := newTestService(t, source, nil)
	ctx := context.Background()

	_, err := s.Search(ctx, "   ", 10)
	assert.True(t, errors.Is(err, ErrEmptyQuery))
	assert.Equal(t, 0, source.count("search"))

	res, err := s.Search(ctx, "  zelda ", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "zelda", source.lastTerm)
	assert.Equal(t, 3, source.lastSize)

	_, err = s.Search(ctx, "zelda", 500)
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, source.lastSize)
	assert.Equal(t, 2, source.count("search"))
}

func TestPurgeCaches(t *testing.T) {
	source := newFakeSource()
	source.details[1] = model.GameDetails{GameSummary: model.GameSummary{Id: 1}}
	s := newTestService(t, source, nil)
	ctx := context.Background()

	_, err := s.DiscoveryFeed(ctx)
	require.NoError(t, err)
	_, err = s.GameDetails(ctx, 1)
	require.NoError(t, err)

	s.PurgeCaches(ctx)
	_, ok := s.Discovery.Get(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Details.Len())
}

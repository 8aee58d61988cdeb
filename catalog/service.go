// Package catalog serves game metadata: IGDB behind the discovery and
// details caches, with Playlog's own review stats attached to game pages.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/cache"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
)

const (
	DefaultListSize = 20
	MaxSearchLimit  = 50
)

var (
	ErrEmptyQuery  = errors.New("search query is empty")
	ErrInvalidGame = errors.New("invalid game id")
)

// GameSource is the upstream game database, implemented by igdb.Client.
type GameSource interface {
	Search(ctx context.Context, term string, limit int) ([]model.GameSummary, error)
	Popular(ctx context.Context, limit int) ([]model.GameSummary, error)
	Upcoming(ctx context.Context, limit int) ([]model.GameSummary, error)
	RecentlyReleased(ctx context.Context, limit int) ([]model.GameSummary, error)
	GameDetails(ctx context.Context, id int64) (model.GameDetails, error)
	GamesByIds(ctx context.Context, ids []int64) ([]model.GameSummary, error)
}

type StatsReader interface {
	GetStats(ctx context.Context, gameId int64) (model.GameReviewStats, error)
}

type Service struct {
	Source    GameSource
	Discovery *cache.DiscoveryCache
	Details   *cache.DetailsCache
	Stats     StatsReader
	ListSize  int

	now func() time.Time
}

func NewService(source GameSource, discovery *cache.DiscoveryCache, details *cache.DetailsCache, stats StatsReader, listSize int) *Service {
	if listSize <= 0 {
		listSize = DefaultListSize
	}
	return &Service{
		Source:    source,
		Discovery: discovery,
		Details:   details,
		Stats:     stats,
		ListSize:  listSize,
		now:       time.Now,
	}
}

// DiscoveryFeed returns the cached feed when it is fresh, otherwise fetches
// it from upstream and caches it.
func (s *Service) DiscoveryFeed(ctx context.Context) (model.DiscoveryFeed, error) {
	if feed, ok := s.Discovery.Get(ctx); ok {
		return feed, nil
	}
	return s.RefreshDiscovery(ctx)
}

// RefreshDiscovery fetches the three discovery lists concurrently. Nothing is
// cached unless all of them succeed.
func (s *Service) RefreshDiscovery(ctx context.Context) (model.DiscoveryFeed, error) {
	type fetch struct {
		name string
		fn   func(context.Context, int) ([]model.GameSummary, error)
		dst  *[]model.GameSummary
	}
	feed := model.DiscoveryFeed{}
	fetches := []fetch{
		{name: "popular", fn: s.Source.Popular, dst: &feed.Popular},
		{name: "upcoming", fn: s.Source.Upcoming, dst: &feed.Upcoming},
		{name: "recently released", fn: s.Source.RecentlyReleased, dst: &feed.RecentlyReleased},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(fetches))
	for i := range fetches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := fetches[i]
			games, err := f.fn(ctx, s.ListSize)
			if err != nil {
				errs[i] = errors.Wrapf(err, "fetch %s games", f.name)
				return
			}
			*f.dst = games
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return model.DiscoveryFeed{}, err
		}
	}
	feed.FetchedAt = s.now()
	s.Discovery.Set(ctx, feed)
	Logger.Log.Infof("discovery feed refreshed: %d popular, %d upcoming, %d recently released",
		len(feed.Popular), len(feed.Upcoming), len(feed.RecentlyReleased))
	return feed, nil
}

// GameDetails returns the game page. Metadata comes from the cache when
// fresh, review stats are always read live.
func (s *Service) GameDetails(ctx context.Context, gameId int64) (model.GameDetails, error) {
	if gameId <= 0 {
		return model.GameDetails{}, ErrInvalidGame
	}
	details, ok := s.Details.Get(ctx, gameId)
	if !ok {
		var err error
		details, err = s.fetchDetails(ctx, gameId)
		if err != nil {
			return model.GameDetails{}, err
		}
	}
	return s.withStats(ctx, details), nil
}

// RefreshGameDetails skips the cache read but still writes the result back.
func (s *Service) RefreshGameDetails(ctx context.Context, gameId int64) (model.GameDetails, error) {
	if gameId <= 0 {
		return model.GameDetails{}, ErrInvalidGame
	}
	details, err := s.fetchDetails(ctx, gameId)
	if err != nil {
		return model.GameDetails{}, err
	}
	return s.withStats(ctx, details), nil
}

func (s *Service) fetchDetails(ctx context.Context, gameId int64) (model.GameDetails, error) {
	details, err := s.Source.GameDetails(ctx, gameId)
	if err != nil {
		return model.GameDetails{}, errors.Wrapf(err, "fetch details of game %d", gameId)
	}
	s.Details.Set(ctx, details)
	return details, nil
}

func (s *Service) withStats(ctx context.Context, details model.GameDetails) model.GameDetails {
	if s.Stats == nil {
		return details
	}
	stats, err := s.Stats.GetStats(ctx, details.Id)
	if err != nil {
		Logger.Log.WithError(err).Warnf("fail to read review stats of game %d", details.Id)
		return details
	}
	details.Stats = &stats
	return details
}

// Search forwards to upstream uncached.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.GameSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.ListSize
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.Source.Search(ctx, query, limit)
}

func (s *Service) GamesByIds(ctx context.Context, ids []int64) ([]model.GameSummary, error) {
	return s.Source.GamesByIds(ctx, ids)
}

func (s *Service) InvalidateGame(ctx context.Context, gameId int64) {
	s.Details.Invalidate(ctx, gameId)
}

func (s *Service) PurgeCaches(ctx context.Context) {
	s.Discovery.Invalidate(ctx)
	s.Details.Purge(ctx)
}

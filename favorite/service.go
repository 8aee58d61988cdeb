// Package favorite keeps the games users marked as favorite, capped by plan
// tier.
package favorite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/store"
	Logger "github.com/playlog/backend/utils/log"
)

var (
	ErrFavoriteQuotaExceeded = errors.New("favorite quota exceeded")
	ErrFavoriteNotFound      = errors.New("favorite not found")
	ErrInvalidGame           = errors.New("invalid game")
	ErrUserNotFound          = errors.New("user not found")
)

type Service struct {
	Store            store.Store
	Publisher        eventbus.Publisher
	MaxFreeFavorites int64
	now              func() time.Time
}

func NewService(s store.Store, p eventbus.Publisher, maxFreeFavorites int64) *Service {
	return &Service{Store: s, Publisher: p, MaxFreeFavorites: maxFreeFavorites, now: time.Now}
}

// Add favorites game for userId. Adding a game twice returns the existing
// favorite and does not count twice.
func (s *Service) Add(ctx context.Context, userId string, game model.GameRef) (model.Favorite, error) {
	if game.Id <= 0 {
		return model.Favorite{}, ErrInvalidGame
	}

	var (
		saved   model.Favorite
		created bool
	)
	err := s.Store.RunInTransaction(ctx, func(tx store.Tx) error {
		created = false
		user, err := tx.User(userId)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		existing, err := tx.Favorite(userId, game.Id)
		if err != nil {
			return err
		}
		if existing != nil {
			saved = *existing
			return nil
		}
		quota, err := tx.Quota(userId)
		if err != nil {
			return err
		}
		if !user.IsPremium && quota.FavoriteCount >= s.MaxFreeFavorites {
			return ErrFavoriteQuotaExceeded
		}

		saved = model.Favorite{
			UserId:    userId,
			GameId:    game.Id,
			GameName:  strings.TrimSpace(game.Name),
			CoverUrl:  game.CoverUrl,
			CreatedAt: s.now(),
		}
		if err := tx.CreateFavorite(&saved); err != nil {
			return err
		}
		quota.FavoriteCount++
		created = true
		return tx.SaveQuota(quota)
	})
	if err != nil {
		return model.Favorite{}, err
	}
	if created {
		s.publish(eventbus.FavoriteChangedEvent{UserId: userId, GameId: game.Id, Added: true})
	}
	return saved, nil
}

func (s *Service) Remove(ctx context.Context, userId string, gameId int64) error {
	err := s.Store.RunInTransaction(ctx, func(tx store.Tx) error {
		existing, err := tx.Favorite(userId, gameId)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrFavoriteNotFound
		}
		quota, err := tx.Quota(userId)
		if err != nil {
			return err
		}
		if err := tx.DeleteFavorite(userId, gameId); err != nil {
			return err
		}
		if quota.FavoriteCount > 0 {
			quota.FavoriteCount--
		}
		return tx.SaveQuota(quota)
	})
	if err != nil {
		return err
	}
	s.publish(eventbus.FavoriteChangedEvent{UserId: userId, GameId: gameId, Added: false})
	return nil
}

func (s *Service) IsFavorite(ctx context.Context, userId string, gameId int64) (bool, error) {
	f, err := s.Store.GetFavorite(ctx, userId, gameId)
	return f != nil, err
}

// List returns a page of favorites, most recent first, and the next cursor.
func (s *Service) List(ctx context.Context, userId string, page model.Page) ([]model.Favorite, int64, error) {
	page = page.Normalize()
	favorites, err := s.Store.ListFavorites(ctx, userId, page)
	if err != nil {
		return nil, 0, err
	}
	next := int64(0)
	if len(favorites) > 0 {
		next = page.NextCursor(favorites[len(favorites)-1].Cursor, len(favorites))
	}
	return favorites, next, nil
}

func (s *Service) publish(event eventbus.FavoriteChangedEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(eventbus.TOPIC_FAVORITE_CHANGED, event); err != nil {
		Logger.Log.WithError(err).Error("fail to publish favorite event")
	}
}

// Package review writes reviews together with the per-game aggregate and the
// author's quota, so that the aggregate always reflects the stored reviews.
package review

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/moderation"
	"github.com/playlog/backend/store"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
)

const (
	MinRating = model.MinReviewRating
	MaxRating = model.MaxReviewRating
	// Ratings and their sums keep one decimal.
	ratingPrecision = 1
)

type Config struct {
	MaxFreeReviews int64
	MaxBodyLength  int
}

// CommentCleaner drops the comments of a deleted review.
type CommentCleaner interface {
	DeleteForReview(ctx context.Context, gameId int64, reviewUserId string) error
}

type Service struct {
	Store     store.Store
	Moderator moderation.Moderator
	Publisher eventbus.Publisher
	Comments  CommentCleaner
	Config    Config
	now       func() time.Time
}

func NewService(s store.Store, m moderation.Moderator, p eventbus.Publisher, config Config) *Service {
	if m == nil {
		m = moderation.NoopModerator{}
	}
	return &Service{Store: s, Moderator: m, Publisher: p, Config: config, now: time.Now}
}

// Drift describes a game whose stored aggregate disagreed with its reviews.
type Drift struct {
	Before model.GameReviewStats
	After  model.GameReviewStats
}

func normalizeRating(rating float64) (float64, error) {
	if math.IsNaN(rating) || rating < MinRating || rating > MaxRating {
		return 0, ErrInvalidRating
	}
	return utils.RoundTo(rating, ratingPrecision), nil
}

func (s *Service) normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	if s.Config.MaxBodyLength > 0 && utf8.RuneCountInString(body) > s.Config.MaxBodyLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// Submit creates the user's review of the game, or edits it when one exists.
// Creating counts against the quota of free-tier users, editing never does.
func (s *Service) Submit(ctx context.Context, userId string, gameId int64, rating float64, body string) (model.Review, model.GameReviewStats, error) {
	if gameId <= 0 {
		return model.Review{}, model.GameReviewStats{}, ErrInvalidGame
	}
	rating, err := normalizeRating(rating)
	if err != nil {
		return model.Review{}, model.GameReviewStats{}, err
	}
	body, err = s.normalizeBody(body)
	if err != nil {
		return model.Review{}, model.GameReviewStats{}, err
	}
	if err := s.Moderator.Check(ctx, body); err != nil {
		return model.Review{}, model.GameReviewStats{}, err
	}

	var (
		saved  model.Review
		stats  model.GameReviewStats
		action eventbus.ReviewAction
	)
	err = s.Store.RunInTransaction(ctx, func(tx store.Tx) error {
		user, err := tx.User(userId)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		existing, err := tx.Review(gameId, userId)
		if err != nil {
			return err
		}
		quota, err := tx.Quota(userId)
		if err != nil {
			return err
		}
		stats, err = tx.Stats(gameId)
		if err != nil {
			return err
		}

		now := s.now()
		if existing == nil {
			if !user.IsPremium && quota.ReviewCount >= s.Config.MaxFreeReviews {
				return ErrReviewQuotaExceeded
			}
			saved = model.Review{
				GameId:    gameId,
				UserId:    userId,
				Rating:    rating,
				Body:      body,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.CreateReview(&saved); err != nil {
				return err
			}
			stats.ReviewCount++
			stats.RatingTotal += rating
			quota.ReviewCount++
			if err := tx.SaveQuota(quota); err != nil {
				return err
			}
			action = eventbus.ReviewCreated
		} else {
			saved = *existing
			stats.RatingTotal += rating - existing.Rating
			saved.Rating = rating
			saved.Body = body
			saved.UpdatedAt = now
			if err := tx.UpdateReview(&saved); err != nil {
				return err
			}
			action = eventbus.ReviewEdited
		}

		stats.GameId = gameId
		stats.RatingTotal = utils.RoundTo(stats.RatingTotal, ratingPrecision)
		stats.UpdatedAt = now
		stats.Recalculate()
		return tx.SaveStats(stats)
	})
	if err != nil {
		return model.Review{}, model.GameReviewStats{}, err
	}

	s.publish(eventbus.ReviewWrittenEvent{GameId: gameId, UserId: userId, Rating: rating, Action: action})
	return saved, stats, nil
}

// Delete removes the user's review and reverses its contribution to the
// aggregate and the quota.
func (s *Service) Delete(ctx context.Context, userId string, gameId int64) (model.GameReviewStats, error) {
	var (
		stats   model.GameReviewStats
		removed model.Review
	)
	err := s.Store.RunInTransaction(ctx, func(tx store.Tx) error {
		existing, err := tx.Review(gameId, userId)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrReviewNotFound
		}
		removed = *existing
		quota, err := tx.Quota(userId)
		if err != nil {
			return err
		}
		stats, err = tx.Stats(gameId)
		if err != nil {
			return err
		}

		if err := tx.DeleteReview(gameId, userId); err != nil {
			return err
		}
		stats.GameId = gameId
		stats.ReviewCount--
		stats.RatingTotal = utils.RoundTo(stats.RatingTotal-existing.Rating, ratingPrecision)
		stats.UpdatedAt = s.now()
		stats.Recalculate()
		if err := tx.SaveStats(stats); err != nil {
			return err
		}

		if quota.ReviewCount > 0 {
			quota.ReviewCount--
		}
		return tx.SaveQuota(quota)
	})
	if err != nil {
		return model.GameReviewStats{}, err
	}

	if s.Comments != nil {
		if err := s.Comments.DeleteForReview(ctx, gameId, userId); err != nil {
			Logger.Log.WithError(err).Errorf("fail to delete comments of review %d/%s", gameId, userId)
		}
	}
	s.publish(eventbus.ReviewWrittenEvent{GameId: gameId, UserId: userId, Rating: removed.Rating, Action: eventbus.ReviewDeleted})
	return stats, nil
}

func (s *Service) Get(ctx context.Context, gameId int64, userId string) (model.Review, error) {
	r, err := s.Store.GetReview(ctx, gameId, userId)
	if err != nil {
		return model.Review{}, err
	}
	if r == nil {
		return model.Review{}, ErrReviewNotFound
	}
	return *r, nil
}

func (s *Service) Stats(ctx context.Context, gameId int64) (model.GameReviewStats, error) {
	return s.Store.GetStats(ctx, gameId)
}

// ListByGame returns a page of the game's reviews, newest first, and the
// cursor of the next page (0 when there is none).
func (s *Service) ListByGame(ctx context.Context, gameId int64, page model.Page) ([]model.Review, int64, error) {
	page = page.Normalize()
	reviews, err := s.Store.ListGameReviews(ctx, gameId, page)
	if err != nil {
		return nil, 0, err
	}
	return reviews, nextCursor(page, reviews), nil
}

func (s *Service) ListByUser(ctx context.Context, userId string, page model.Page) ([]model.Review, int64, error) {
	page = page.Normalize()
	reviews, err := s.Store.ListUserReviews(ctx, userId, page)
	if err != nil {
		return nil, 0, err
	}
	return reviews, nextCursor(page, reviews), nil
}

func nextCursor(page model.Page, reviews []model.Review) int64 {
	if len(reviews) == 0 {
		return 0
	}
	return page.NextCursor(reviews[len(reviews)-1].Cursor, len(reviews))
}

// Recompute rebuilds the game's aggregate from its stored reviews.
func (s *Service) Recompute(ctx context.Context, gameId int64) (Drift, error) {
	drift := Drift{}
	err := s.Store.RunInTransaction(ctx, func(tx store.Tx) error {
		before, err := tx.Stats(gameId)
		if err != nil {
			return err
		}
		reviews, err := tx.GameReviews(gameId)
		if err != nil {
			return err
		}

		after := model.GameReviewStats{GameId: gameId, UpdatedAt: s.now()}
		for _, r := range reviews {
			after.ReviewCount++
			after.RatingTotal += r.Rating
		}
		after.RatingTotal = utils.RoundTo(after.RatingTotal, ratingPrecision)
		after.Recalculate()

		drift = Drift{Before: before, After: after}
		if sameStats(before, after) {
			return nil
		}
		return tx.SaveStats(after)
	})
	return drift, errors.Wrapf(err, "recompute game %d", gameId)
}

// RecomputeAll recomputes every reviewed game and returns the ones that
// drifted.
func (s *Service) RecomputeAll(ctx context.Context) ([]Drift, error) {
	ids, err := s.Store.ListReviewedGameIds(ctx)
	if err != nil {
		return nil, err
	}
	drifts := []Drift{}
	for _, id := range ids {
		d, err := s.Recompute(ctx, id)
		if err != nil {
			return drifts, err
		}
		if !sameStats(d.Before, d.After) {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

func sameStats(a, b model.GameReviewStats) bool {
	const eps = 1e-9
	return a.ReviewCount == b.ReviewCount &&
		math.Abs(a.RatingTotal-b.RatingTotal) < eps &&
		math.Abs(a.AverageRating-b.AverageRating) < eps
}

func (s *Service) publish(event eventbus.ReviewWrittenEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(eventbus.TOPIC_REVIEW_WRITTEN, event); err != nil {
		Logger.Log.WithError(err).Error("fail to publish review event")
	}
}

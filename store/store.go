// Package store keeps the rows whose consistency matters most: reviews, the
// per-game aggregate derived from them, favorites and the per-user quota
// counters. Every multi-row write goes through RunInTransaction.
package store

import (
	"context"

	"github.com/playlog/backend/model"
)

// Tx is the view of the store inside a transaction. Reads through Tx lock the
// rows they return until the transaction ends. Missing rows are reported as
// nil pointers or zero-valued documents, never as errors.
type Tx interface {
	User(userId string) (*model.User, error)

	Quota(userId string) (model.UserQuota, error)
	SaveQuota(q model.UserQuota) error

	Stats(gameId int64) (model.GameReviewStats, error)
	SaveStats(s model.GameReviewStats) error

	Review(gameId int64, userId string) (*model.Review, error)
	CreateReview(r *model.Review) error
	// UpdateReview rewrites rating, body and update time of an existing review.
	UpdateReview(r *model.Review) error
	DeleteReview(gameId int64, userId string) error
	GameReviews(gameId int64) ([]model.Review, error)

	Favorite(userId string, gameId int64) (*model.Favorite, error)
	CreateFavorite(f *model.Favorite) error
	DeleteFavorite(userId string, gameId int64) error
}

// TxFunc is run by RunInTransaction, possibly more than once. It must not
// have side effects outside of tx.
type TxFunc func(tx Tx) error

type Store interface {
	// RunInTransaction runs fn atomically. Conflicting concurrent transactions
	// are retried transparently, the error returned by fn is returned as is.
	RunInTransaction(ctx context.Context, fn TxFunc) error

	GetUser(ctx context.Context, userId string) (*model.User, error)
	// CreateUser inserts u unless a user with the same id exists, and returns
	// the stored user either way.
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)

	GetStats(ctx context.Context, gameId int64) (model.GameReviewStats, error)
	GetQuota(ctx context.Context, userId string) (model.UserQuota, error)

	GetReview(ctx context.Context, gameId int64, userId string) (*model.Review, error)
	ListGameReviews(ctx context.Context, gameId int64, page model.Page) ([]model.Review, error)
	ListUserReviews(ctx context.Context, userId string, page model.Page) ([]model.Review, error)
	// ListReviewedGameIds returns every game that has reviews or stats.
	ListReviewedGameIds(ctx context.Context) ([]int64, error)
	ListInteractions(ctx context.Context) ([]model.Interaction, error)

	GetFavorite(ctx context.Context, userId string, gameId int64) (*model.Favorite, error)
	ListFavorites(ctx context.Context, userId string, page model.Page) ([]model.Favorite, error)
}

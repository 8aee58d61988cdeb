package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultMaxRetry = 5

// GormStore is the Postgres backed Store. Transactions run at serializable
// isolation with row locks and are retried on serialization failures,
// deadlocks and unique violations from concurrent inserts.
type GormStore struct {
	DB       *gorm.DB
	MaxRetry int
}

func NewGormStore(db *gorm.DB, maxRetry int) *GormStore {
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &GormStore{DB: db, MaxRetry: maxRetry}
}

func (s *GormStore) RunInTransaction(ctx context.Context, fn TxFunc) error {
	return utils.RunSerializable(ctx, s.DB, s.MaxRetry, func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) GetUser(ctx context.Context, userId string) (*model.User, error) {
	return findUser(s.DB.WithContext(ctx), userId)
}

func (s *GormStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return findUser(db, u.Id)
}

func (s *GormStore) GetStats(ctx context.Context, gameId int64) (model.GameReviewStats, error) {
	return findStats(s.DB.WithContext(ctx), gameId)
}

func (s *GormStore) GetQuota(ctx context.Context, userId string) (model.UserQuota, error) {
	return findQuota(s.DB.WithContext(ctx), userId)
}

func (s *GormStore) GetReview(ctx context.Context, gameId int64, userId string) (*model.Review, error) {
	return findReview(s.DB.WithContext(ctx), gameId, userId)
}

func (s *GormStore) ListGameReviews(ctx context.Context, gameId int64, page model.Page) ([]model.Review, error) {
	var reviews []model.Review
	err := paginate(s.DB.WithContext(ctx).Where("game_id = ?", gameId), page).Find(&reviews).Error
	return reviews, errors.Wrap(err, "list game reviews")
}

func (s *GormStore) ListUserReviews(ctx context.Context, userId string, page model.Page) ([]model.Review, error) {
	var reviews []model.Review
	err := paginate(s.DB.WithContext(ctx).Where("user_id = ?", userId), page).Find(&reviews).Error
	return reviews, errors.Wrap(err, "list user reviews")
}

func (s *GormStore) ListReviewedGameIds(ctx context.Context) ([]int64, error) {
	var fromReviews, fromStats []int64
	db := s.DB.WithContext(ctx)
	if err := db.Model(&model.Review{}).Distinct().Pluck("game_id", &fromReviews).Error; err != nil {
		return nil, errors.Wrap(err, "list reviewed games")
	}
	if err := db.Model(&model.GameReviewStats{}).Pluck("game_id", &fromStats).Error; err != nil {
		return nil, errors.Wrap(err, "list games with stats")
	}
	ids := utils.DedupInt64(append(fromReviews, fromStats...))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *GormStore) ListInteractions(ctx context.Context) ([]model.Interaction, error) {
	var res []model.Interaction
	err := s.DB.WithContext(ctx).Model(&model.Review{}).
		Select("user_id, game_id, rating").
		Order("cursor asc").
		Scan(&res).Error
	return res, errors.Wrap(err, "list interactions")
}

func (s *GormStore) GetFavorite(ctx context.Context, userId string, gameId int64) (*model.Favorite, error) {
	return findFavorite(s.DB.WithContext(ctx), userId, gameId)
}

func (s *GormStore) ListFavorites(ctx context.Context, userId string, page model.Page) ([]model.Favorite, error) {
	var favorites []model.Favorite
	err := paginate(s.DB.WithContext(ctx).Where("user_id = ?", userId), page).Find(&favorites).Error
	return favorites, errors.Wrap(err, "list favorites")
}

// gormTx implements Tx on top of a gorm transaction.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) User(userId string) (*model.User, error) {
	return findUser(t.db, userId)
}

func (t *gormTx) Quota(userId string) (model.UserQuota, error) {
	return findQuota(t.forUpdate(), userId)
}

func (t *gormTx) SaveQuota(q model.UserQuota) error {
	return errors.Wrap(upsert(t.db, &q), "save quota")
}

func (t *gormTx) Stats(gameId int64) (model.GameReviewStats, error) {
	return findStats(t.forUpdate(), gameId)
}

func (t *gormTx) SaveStats(s model.GameReviewStats) error {
	return errors.Wrap(upsert(t.db, &s), "save stats")
}

func (t *gormTx) Review(gameId int64, userId string) (*model.Review, error) {
	return findReview(t.forUpdate(), gameId, userId)
}

func (t *gormTx) CreateReview(r *model.Review) error {
	return errors.Wrap(t.db.Create(r).Error, "create review")
}

func (t *gormTx) UpdateReview(r *model.Review) error {
	err := t.db.Model(&model.Review{}).
		Where("game_id = ? AND user_id = ?", r.GameId, r.UserId).
		Updates(map[string]interface{}{
			"rating":     r.Rating,
			"body":       r.Body,
			"updated_at": r.UpdatedAt,
		}).Error
	return errors.Wrap(err, "update review")
}

func (t *gormTx) DeleteReview(gameId int64, userId string) error {
	err := t.db.Where("game_id = ? AND user_id = ?", gameId, userId).Delete(&model.Review{}).Error
	return errors.Wrap(err, "delete review")
}

func (t *gormTx) GameReviews(gameId int64) ([]model.Review, error) {
	var reviews []model.Review
	err := t.forUpdate().Where("game_id = ?", gameId).Order("cursor asc").Find(&reviews).Error
	return reviews, errors.Wrap(err, "load game reviews")
}

func (t *gormTx) Favorite(userId string, gameId int64) (*model.Favorite, error) {
	return findFavorite(t.forUpdate(), userId, gameId)
}

func (t *gormTx) CreateFavorite(f *model.Favorite) error {
	return errors.Wrap(t.db.Create(f).Error, "create favorite")
}

func (t *gormTx) DeleteFavorite(userId string, gameId int64) error {
	err := t.db.Where("user_id = ? AND game_id = ?", userId, gameId).Delete(&model.Favorite{}).Error
	return errors.Wrap(err, "delete favorite")
}

func upsert(db *gorm.DB, value interface{}) error {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}

func paginate(db *gorm.DB, page model.Page) *gorm.DB {
	page = page.Normalize()
	if page.Cursor > 0 {
		db = db.Where("cursor < ?", page.Cursor)
	}
	return db.Order("cursor desc").Limit(page.Limit)
}

func findUser(db *gorm.DB, userId string) (*model.User, error) {
	var u model.User
	err := db.Where("id = ?", userId).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return &u, nil
}

func findQuota(db *gorm.DB, userId string) (model.UserQuota, error) {
	q := model.UserQuota{}
	err := db.Where("user_id = ?", userId).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.UserQuota{UserId: userId}, nil
	}
	return q, errors.Wrap(err, "find quota")
}

func findStats(db *gorm.DB, gameId int64) (model.GameReviewStats, error) {
	s := model.GameReviewStats{}
	err := db.Where("game_id = ?", gameId).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.GameReviewStats{GameId: gameId}, nil
	}
	return s, errors.Wrap(err, "find stats")
}

func findReview(db *gorm.DB, gameId int64, userId string) (*model.Review, error) {
	var r model.Review
	err := db.Where("game_id = ? AND user_id = ?", gameId, userId).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find review")
	}
	return &r, nil
}

func findFavorite(db *gorm.DB, userId string, gameId int64) (*model.Favorite, error) {
	var f model.Favorite
	err := db.Where("user_id = ? AND game_id = ?", userId, gameId).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find favorite")
	}
	return &f, nil
}

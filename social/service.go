// Package social maintains the follow and block graphs between users.
package social

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSelfFollow   = errors.New("cannot follow yourself")
	ErrSelfBlock    = errors.New("cannot block yourself")
	ErrBlocked      = errors.New("one of the users blocked the other")
	ErrUserNotFound = errors.New("user not found")
)

const defaultMaxRetry = 5

// Service writes edges in serializable transactions, so a follow never
// commits next to a block of the same pair.
type Service struct {
	DB        *gorm.DB
	Publisher eventbus.Publisher
	MaxRetry  int
	now       func() time.Time
}

func NewService(db *gorm.DB, publisher eventbus.Publisher) *Service {
	return &Service{DB: db, Publisher: publisher, MaxRetry: defaultMaxRetry, now: time.Now}
}

// Follow makes followerId follow followeeId. Following twice is a no-op, only
// a new edge emits TOPIC_USER_FOLLOWED.
func (s *Service) Follow(ctx context.Context, followerId string, followeeId string) error {
	if followerId == followeeId {
		return ErrSelfFollow
	}

	var follower model.User
	created := false
	err := utils.RunSerializable(ctx, s.DB, s.MaxRetry, func(tx *gorm.DB) error {
		created = false
		if err := requireUser(tx, followeeId, nil); err != nil {
			return err
		}
		if err := requireUser(tx, followerId, &follower); err != nil {
			return err
		}
		blocked, err := blockedEither(tx, followerId, followeeId)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Follow{
			FollowerId: followerId,
			FolloweeId: followeeId,
			CreatedAt:  s.now(),
		})
		if res.Error != nil {
			return errors.Wrap(res.Error, "create follow")
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return err
	}

	if created && s.Publisher != nil {
		event := eventbus.UserFollowedEvent{
			FollowerId:   followerId,
			FollowerName: follower.Name,
			FolloweeId:   followeeId,
			At:           s.now(),
		}
		if err := s.Publisher.Publish(eventbus.TOPIC_USER_FOLLOWED, event); err != nil {
			Logger.Log.WithError(err).Error("fail to publish follow event")
		}
	}
	return nil
}

// Unfollow removes the edge, it is not an error when none exists.
func (s *Service) Unfollow(ctx context.Context, followerId string, followeeId string) error {
	err := s.DB.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerId, followeeId).
		Delete(&model.Follow{}).Error
	return errors.Wrap(err, "delete follow")
}

// Block records the block and drops follow edges in both directions.
func (s *Service) Block(ctx context.Context, blockerId string, blockedId string) error {
	if blockerId == blockedId {
		return ErrSelfBlock
	}
	var block utils.GormTransaction = func(tx *gorm.DB) error {
		if err := requireUser(tx, blockedId, nil); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Block{
			BlockerId: blockerId,
			BlockedId: blockedId,
			CreatedAt: s.now(),
		}).Error
		if err != nil {
			return errors.Wrap(err, "create block")
		}
		err = tx.Where("(follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)",
			blockerId, blockedId, blockedId, blockerId).
			Delete(&model.Follow{}).Error
		return errors.Wrap(err, "drop follows of blocked user")
	}
	return utils.RunSerializable(ctx, s.DB, s.MaxRetry, block)
}

func (s *Service) Unblock(ctx context.Context, blockerId string, blockedId string) error {
	err := s.DB.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerId, blockedId).
		Delete(&model.Block{}).Error
	return errors.Wrap(err, "delete block")
}

// Blocked reports whether either user blocked the other.
func (s *Service) Blocked(ctx context.Context, a string, b string) (bool, error) {
	return blockedEither(s.DB.WithContext(ctx), a, b)
}

// BlockedIn is Blocked read through tx, callers use it to check and write in
// the same transaction.
func (s *Service) BlockedIn(tx *gorm.DB, a string, b string) (bool, error) {
	return blockedEither(tx, a, b)
}

func (s *Service) ListFollowers(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return s.listEdges(ctx, "follows", "follower_id", "followee_id", userId, page)
}

func (s *Service) ListFollowing(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return s.listEdges(ctx, "follows", "followee_id", "follower_id", userId, page)
}

func (s *Service) ListBlocked(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return s.listEdges(ctx, "blocks", "blocked_id", "blocker_id", userId, page)
}

// listEdges lists the users on the otherColumn side of edges whose ownColumn
// is userId, newest edge first.
func (s *Service) listEdges(ctx context.Context, table, otherColumn, ownColumn, userId string, page model.Page) ([]model.UserEdge, error) {
	page = page.Normalize()
	query := s.DB.WithContext(ctx).Table(table).
		Select("users.id, users.name, users.avatar_url, users.is_premium, "+table+".created_at AS since, "+table+".cursor AS cursor").
		Joins("JOIN users ON users.id = "+table+"."+otherColumn).
		Where(table+"."+ownColumn+" = ?", userId).
		Where("users.deleted_at IS NULL")
	if page.Cursor > 0 {
		query = query.Where(table+".cursor < ?", page.Cursor)
	}

	res := []model.UserEdge{}
	err := query.Order(table + ".cursor desc").Limit(page.Limit).Scan(&res).Error
	return res, errors.Wrapf(err, "list %s", table)
}

func (s *Service) Relationship(ctx context.Context, viewerId string, otherId string) (model.Relationship, error) {
	rel := model.Relationship{}
	if viewerId == otherId {
		return rel, nil
	}
	db := s.DB.WithContext(ctx)
	var err error
	if rel.Following, err = exists(db, &model.Follow{}, "follower_id = ? AND followee_id = ?", viewerId, otherId); err != nil {
		return rel, err
	}
	if rel.FollowedBy, err = exists(db, &model.Follow{}, "follower_id = ? AND followee_id = ?", otherId, viewerId); err != nil {
		return rel, err
	}
	if rel.Blocking, err = exists(db, &model.Block{}, "blocker_id = ? AND blocked_id = ?", viewerId, otherId); err != nil {
		return rel, err
	}
	if rel.BlockedBy, err = exists(db, &model.Block{}, "blocker_id = ? AND blocked_id = ?", otherId, viewerId); err != nil {
		return rel, err
	}
	return rel, nil
}

// Counts returns follower and following counts of userId.
func (s *Service) Counts(ctx context.Context, userId string) (followers int64, following int64, err error) {
	db := s.DB.WithContext(ctx)
	if err = db.Model(&model.Follow{}).Where("followee_id = ?", userId).Count(&followers).Error; err != nil {
		return 0, 0, errors.Wrap(err, "count followers")
	}
	if err = db.Model(&model.Follow{}).Where("follower_id = ?", userId).Count(&following).Error; err != nil {
		return 0, 0, errors.Wrap(err, "count following")
	}
	return followers, following, nil
}

func requireUser(db *gorm.DB, userId string, dst *model.User) error {
	var u model.User
	err := db.Where("id = ?", userId).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrUserNotFound, "user %s", userId)
	}
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if dst != nil {
		*dst = u
	}
	return nil
}

func blockedEither(db *gorm.DB, a string, b string) (bool, error) {
	return exists(db, &model.Block{}, "(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a)
}

func exists(db *gorm.DB, m interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := db.Model(m).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "check edge")
	}
	return count > 0, nil
}

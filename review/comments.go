package review

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/moderation"
	"github.com/playlog/backend/store"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
	"gorm.io/gorm"
)

const (
	excerptLength   = 80
	commentMaxRetry = 5
)

// BlockChecker reports whether either user blocked the other, reading
// through tx. Implemented by social.Service.
type BlockChecker interface {
	BlockedIn(tx *gorm.DB, a string, b string) (bool, error)
}

// CommentService manages comments left on reviews.
type CommentService struct {
	DB        *gorm.DB
	Store     store.Store
	Moderator moderation.Moderator
	Blocks    BlockChecker
	Publisher eventbus.Publisher
	MaxLength int
	MaxRetry  int
	now       func() time.Time
}

func NewCommentService(db *gorm.DB, s store.Store, m moderation.Moderator, blocks BlockChecker, p eventbus.Publisher, maxLength int) *CommentService {
	if m == nil {
		m = moderation.NoopModerator{}
	}
	return &CommentService{DB: db, Store: s, Moderator: m, Blocks: blocks, Publisher: p, MaxLength: maxLength, MaxRetry: commentMaxRetry, now: time.Now}
}

// AddComment stores a comment on reviewUserId's review of gameId. Commenting on
// someone else's review emits TOPIC_REVIEW_COMMENTED.
func (c *CommentService) AddComment(ctx context.Context, authorId string, gameId int64, reviewUserId string, body string) (model.ReviewComment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.ReviewComment{}, ErrEmptyComment
	}
	if c.MaxLength > 0 && utf8.RuneCountInString(body) > c.MaxLength {
		return model.ReviewComment{}, ErrCommentTooLong
	}

	author, err := c.Store.GetUser(ctx, authorId)
	if err != nil {
		return model.ReviewComment{}, err
	}
	if author == nil {
		return model.ReviewComment{}, ErrUserNotFound
	}
	r, err := c.Store.GetReview(ctx, gameId, reviewUserId)
	if err != nil {
		return model.ReviewComment{}, err
	}
	if r == nil {
		return model.ReviewComment{}, ErrReviewNotFound
	}
	if err := c.Moderator.Check(ctx, body); err != nil {
		return model.ReviewComment{}, err
	}

	comment := model.ReviewComment{
		Id:           uuid.New().String(),
		GameId:       gameId,
		ReviewUserId: reviewUserId,
		AuthorId:     authorId,
		Body:         body,
		CreatedAt:    c.now(),
	}
	// the block check and the insert commit together or not at all
	err = utils.RunSerializable(ctx, c.DB, c.MaxRetry, func(tx *gorm.DB) error {
		if authorId != reviewUserId && c.Blocks != nil {
			blocked, err := c.Blocks.BlockedIn(tx, authorId, reviewUserId)
			if err != nil {
				return err
			}
			if blocked {
				return ErrCommentBlocked
			}
		}
		return errors.Wrap(tx.Create(&comment).Error, "create comment")
	})
	if err != nil {
		return model.ReviewComment{}, err
	}

	if authorId != reviewUserId && c.Publisher != nil {
		event := eventbus.ReviewCommentedEvent{
			CommentId:    comment.Id,
			GameId:       gameId,
			ReviewUserId: reviewUserId,
			AuthorId:     authorId,
			AuthorName:   author.Name,
			Excerpt:      excerpt(body),
			At:           comment.CreatedAt,
		}
		if err := c.Publisher.Publish(eventbus.TOPIC_REVIEW_COMMENTED, event); err != nil {
			Logger.Log.WithError(err).Error("fail to publish comment event")
		}
	}
	return comment, nil
}

// ListComments returns a page of the review's comments, newest first.
func (c *CommentService) ListComments(ctx context.Context, gameId int64, reviewUserId string, page model.Page) ([]model.ReviewComment, int64, error) {
	page = page.Normalize()
	query := c.DB.WithContext(ctx).Where("game_id = ? AND review_user_id = ?", gameId, reviewUserId)
	if page.Cursor > 0 {
		query = query.Where("cursor < ?", page.Cursor)
	}
	comments := []model.ReviewComment{}
	if err := query.Order("cursor desc").Limit(page.Limit).Find(&comments).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list comments")
	}
	next := int64(0)
	if len(comments) > 0 {
		next = page.NextCursor(comments[len(comments)-1].Cursor, len(comments))
	}
	return comments, next, nil
}

// DeleteComment removes a comment. The comment author and the review author
// may delete it.
func (c *CommentService) DeleteComment(ctx context.Context, userId string, commentId string) error {
	var comment model.ReviewComment
	err := c.DB.WithContext(ctx).Where("id = ?", commentId).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return errors.Wrap(err, "find comment")
	}
	if userId != comment.AuthorId && userId != comment.ReviewUserId {
		return ErrCommentForbidden
	}
	return errors.Wrap(c.DB.WithContext(ctx).Delete(&comment).Error, "delete comment")
}

func (c *CommentService) DeleteForReview(ctx context.Context, gameId int64, reviewUserId string) error {
	err := c.DB.WithContext(ctx).
		Where("game_id = ? AND review_user_id = ?", gameId, reviewUserId).
		Delete(&model.ReviewComment{}).Error
	return errors.Wrap(err, "delete review comments")
}

func excerpt(body string) string {
	if utf8.RuneCountInString(body) <= excerptLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:excerptLength]) + "…"
}

// Package notification stores user notifications and pushes them to live
// clients.
package notification

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidSince         = errors.New("invalid since timestamp")
)

// ListOptions filters a notification listing.
type ListOptions struct {
	Page       model.Page
	UnreadOnly bool
	// Since keeps notifications created strictly after it, ignored when zero.
	Since time.Time
}

type Service struct {
	DB  *gorm.DB
	Hub *Hub
	now func() time.Time
}

func NewService(db *gorm.DB, hub *Hub) *Service {
	return &Service{DB: db, Hub: hub, now: time.Now}
}

// Create stores n and pushes it to the recipient's live channels.
func (s *Service) Create(ctx context.Context, n *model.Notification) error {
	if !n.Type.IsValid() {
		return errors.Errorf("invalid notification type %q", n.Type)
	}
	if n.Id == "" {
		n.Id = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if len(n.Metadata) == 0 {
		n.Metadata = datatypes.JSON("{}")
	}
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return errors.Wrap(err, "create notification")
	}

	if s.Hub != nil {
		if err := s.Hub.PushToUser(n, n.UserId); err != nil && !errors.Is(err, ErrNoActiveConnection) {
			Logger.Log.WithError(err).Warn("fail to push notification")
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, userId string, opts ListOptions) ([]model.Notification, error) {
	page := opts.Page.Normalize()
	query := s.DB.WithContext(ctx).Where("user_id = ?", userId)
	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if !opts.Since.IsZero() {
		query = query.Where("created_at > ?", opts.Since)
	}
	if page.Cursor > 0 {
		query = query.Where("cursor < ?", page.Cursor)
	}

	var res []model.Notification
	err := query.Order("cursor desc").Limit(page.Limit).Find(&res).Error
	return res, errors.Wrap(err, "list notifications")
}

func (s *Service) MarkRead(ctx context.Context, userId string, id string) error {
	res := s.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userId).
		Update("read", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead returns the number of notifications that flipped to read.
func (s *Service) MarkAllRead(ctx context.Context, userId string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userId, false).
		Update("read", true)
	return res.RowsAffected, errors.Wrap(res.Error, "mark all notifications read")
}

func (s *Service) UnreadCount(ctx context.Context, userId string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userId, false).
		Count(&count).Error
	return count, errors.Wrap(err, "count unread notifications")
}

func (s *Service) Delete(ctx context.Context, userId string, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userId).Delete(&model.Notification{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete notification")
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ParseSince accepts the loose timestamp formats clients send, e.g. RFC3339,
// "2021-10-01 12:00" or unix seconds. Empty input yields the zero time.
func ParseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidSince, "%q", s)
	}
	return t, nil
}

// Metadata encodes deep-link fields, dropping empty values.
func Metadata(fields map[string]interface{}) datatypes.JSON {
	clean := map[string]interface{}{}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
		case int64:
			if val == 0 {
				continue
			}
		case nil:
			continue
		}
		clean[k] = v
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// NewFollowerNotification builds the notification sent to the followed user.
func NewFollowerNotification(recipientId, followerId, followerName string) *model.Notification {
	return &model.Notification{
		UserId:  recipientId,
		ActorId: followerId,
		Type:    model.NotificationTypeNewFollower,
		Metadata: Metadata(map[string]interface{}{
			"user_id":    followerId,
			"actor_name": followerName,
		}),
	}
}

// ReviewCommentNotification builds the notification sent to a review's author.
func ReviewCommentNotification(reviewUserId, authorId, authorName string, gameId int64, commentId, excerpt string) *model.Notification {
	return &model.Notification{
		UserId:  reviewUserId,
		ActorId: authorId,
		Type:    model.NotificationTypeReviewComment,
		Metadata: Metadata(map[string]interface{}{
			"game_id":        gameId,
			"review_user_id": reviewUserId,
			"comment_id":     commentId,
			"actor_name":     authorName,
			"excerpt":        excerpt,
		}),
	}
}

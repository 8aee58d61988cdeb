package model

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationTypeNewFollower   NotificationType = "NEW_FOLLOWER"
	NotificationTypeReviewComment NotificationType = "REVIEW_COMMENT"
)

var AllNotificationType = []NotificationType{
	NotificationTypeNewFollower,
	NotificationTypeReviewComment,
}

func (e NotificationType) IsValid() bool {
	switch e {
	case NotificationTypeNewFollower, NotificationTypeReviewComment:
		return true
	}
	return false
}

func (e NotificationType) String() string {
	return string(e)
}

/*

Notification is an event shown in a user's notification list.

UserId: recipient
ActorId: user who triggered it
Type: NEW_FOLLOWER or REVIEW_COMMENT
Read: whether the recipient has seen it
Metadata: JSON object the client uses to deep-link, e.g. game_id,
review_user_id, comment_id, actor_name

*/
type Notification struct {
	Id        string           `json:"id" gorm:"primaryKey"`
	UserId    string           `json:"user_id" gorm:"index:idx_notification_user"`
	ActorId   string           `json:"actor_id"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read" gorm:"index:idx_notification_user"`
	Metadata  datatypes.JSON   `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
	Cursor    int64            `json:"cursor" gorm:"autoIncrement;index"`
}

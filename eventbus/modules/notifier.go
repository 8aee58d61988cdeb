package modules

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/notification"
	Logger "github.com/playlog/backend/utils/log"
)

// NotificationCreator stores a notification and pushes it to live devices,
// implemented by notification.Service.
type NotificationCreator interface {
	Create(ctx context.Context, n *model.Notification) error
}

type NotifierConfig struct {
	Name string
}

// Notifier turns social events into user notifications.
type Notifier struct {
	Config NotifierConfig

	Notifications NotificationCreator

	EventBus message.Subscriber
}

func NewNotifier(config NotifierConfig, n NotificationCreator, e message.Subscriber) *Notifier {
	return &Notifier{
		Config:        config,
		Notifications: n,
		EventBus:      e,
	}
}

// notificationOf builds the notification for an event, nil when nobody
// should be notified.
func notificationOf(topic string, msg *message.Message) (*model.Notification, error) {
	switch topic {
	case eventbus.TOPIC_USER_FOLLOWED:
		e := eventbus.UserFollowedEvent{}
		if err := eventbus.Decode(msg, &e); err != nil {
			return nil, err
		}
		if e.FollowerId == e.FolloweeId {
			return nil, nil
		}
		return notification.NewFollowerNotification(e.FolloweeId, e.FollowerId, e.FollowerName), nil
	case eventbus.TOPIC_REVIEW_COMMENTED:
		e := eventbus.ReviewCommentedEvent{}
		if err := eventbus.Decode(msg, &e); err != nil {
			return nil, err
		}
		if e.AuthorId == e.ReviewUserId {
			return nil, nil
		}
		return notification.ReviewCommentNotification(e.ReviewUserId, e.AuthorId, e.AuthorName, e.GameId, e.CommentId, e.Excerpt), nil
	}
	return nil, errors.Errorf("notifier does not handle topic %s", topic)
}

// HandleEvent creates the notification for a single message. Undecodable
// messages are dropped.
func (n *Notifier) HandleEvent(ctx context.Context, topic string, msg *message.Message) error {
	notif, err := notificationOf(topic, msg)
	if err != nil {
		Logger.Log.WithError(err).Errorf("notifier dropped message %s", msg.UUID)
		return nil
	}
	if notif == nil {
		return nil
	}
	return n.Notifications.Create(ctx, notif)
}

func (n *Notifier) consume(ctx context.Context, topic string, messages <-chan *message.Message) {
	for msg := range messages {
		msg.Ack()
		if err := n.HandleEvent(ctx, topic, msg); err != nil {
			Logger.Log.WithError(err).Errorf("fail to create notification from %s", topic)
		}
	}
}

func (n *Notifier) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	followed, err := n.EventBus.Subscribe(ctx, eventbus.TOPIC_USER_FOLLOWED)
	if err != nil {
		return err
	}
	commented, err := n.EventBus.Subscribe(ctx, eventbus.TOPIC_REVIEW_COMMENTED)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.consume(ctx, eventbus.TOPIC_REVIEW_COMMENTED, commented)
	}()
	n.consume(ctx, eventbus.TOPIC_USER_FOLLOWED, followed)
	<-done
	return nil
}

func (n *Notifier) Name() string {
	return n.Config.Name
}

package eventbus

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UserFollowedEvent struct {
	FollowerId   string    `json:"follower_id"`
	FollowerName string    `json:"follower_name"`
	FolloweeId   string    `json:"followee_id"`
	At           time.Time `json:"at"`
}

type ReviewCommentedEvent struct {
	CommentId    string    `json:"comment_id"`
	GameId       int64     `json:"game_id"`
	ReviewUserId string    `json:"review_user_id"`
	AuthorId     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Excerpt      string    `json:"excerpt"`
	At           time.Time `json:"at"`
}

type ReviewAction string

const (
	ReviewCreated ReviewAction = "created"
	ReviewEdited  ReviewAction = "edited"
	ReviewDeleted ReviewAction = "deleted"
)

type ReviewWrittenEvent struct {
	GameId int64        `json:"game_id"`
	UserId string       `json:"user_id"`
	Rating float64      `json:"rating"`
	Action ReviewAction `json:"action"`
}

type FavoriteChangedEvent struct {
	UserId string `json:"user_id"`
	GameId int64  `json:"game_id"`
	Added  bool   `json:"added"`
}

// Publisher sends domain events. Delivery is best effort: publishing happens
// after the write is committed and a failure never undoes the write.
type Publisher interface {
	Publish(topic string, event interface{}) error
}

// BusPublisher encodes events as JSON watermill messages.
type BusPublisher struct {
	bus message.Publisher
}

func NewBusPublisher(bus message.Publisher) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) Publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode event for %s", topic)
	}
	return errors.Wrapf(p.bus.Publish(topic, message.NewMessage(uuid.New().String(), payload)), "publish to %s", topic)
}

// Decode unmarshals a message produced by BusPublisher.
func Decode(msg *message.Message, event interface{}) error {
	return errors.Wrap(json.Unmarshal(msg.Payload, event), "decode event")
}

package modules

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	tags   map[string][]string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: map[string]int{}, tags: map[string][]string{}}
}

func (f *fakeMetrics) Incr(name string, tags []string, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
	f.tags[name] = tags
	return nil
}

func (f *fakeMetrics) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

type fakeNotifications struct {
	mu      sync.Mutex
	created []*model.Notification
	err     error
}

func (f *fakeNotifications) Create(ctx context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotifications) all() []*model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Notification{}, f.created...)
}

// persistent bus delivers messages published before the module subscribed
func newPersistentBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
}

func encode(t *testing.T, topic string, event interface{}) *message.Message {
	bus := newPersistentBus()
	defer bus.Close()
	require.NoError(t, eventbus.NewBusPublisher(bus).Publish(topic, event))
	messages, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	msg := <-messages
	msg.Ack()
	return msg
}

func TestNotifierHandleFollow(t *testing.T) {
	notifications := &fakeNotifications{}
	n := NewNotifier(NotifierConfig{Name: "notifier"}, notifications, nil)

	msg := encode(t, eventbus.TOPIC_USER_FOLLOWED, eventbus.UserFollowedEvent{
		FollowerId: "alice", FollowerName: "Alice", FolloweeId: "bob",
	})
	require.NoError(t, n.HandleEvent(context.Background(), eventbus.TOPIC_USER_FOLLOWED, msg))

	created := notifications.all()
	require.Len(t, created, 1)
	assert.Equal(t, "bob", created[0].UserId)
	assert.Equal(t, "alice", created[0].ActorId)
	assert.Equal(t, model.NotificationTypeNewFollower, created[0].Type)
}

func TestNotifierHandleComment(t *testing.T) {
	notifications := &fakeNotifications{}
	n := NewNotifier(NotifierConfig{Name: "notifier"}, notifications, nil)
	ctx := context.Background()

	msg := encode(t, eventbus.TOPIC_REVIEW_COMMENTED, eventbus.ReviewCommentedEvent{
		CommentId: "c1", GameId: 7, ReviewUserId: "bob", AuthorId: "alice", AuthorName: "Alice", Excerpt: "nice",
	})
	require.NoError(t, n.HandleEvent(ctx, eventbus.TOPIC_REVIEW_COMMENTED, msg))

	self := encode(t, eventbus.TOPIC_REVIEW_COMMENTED, eventbus.ReviewCommentedEvent{
		CommentId: "c2", GameId: 7, ReviewUserId: "bob", AuthorId: "bob",
	})
	require.NoError(t, n.HandleEvent(ctx, eventbus.TOPIC_REVIEW_COMMENTED, self))

	created := notifications.all()
	require.Len(t, created, 1)
	assert.Equal(t, "bob", created[0].UserId)
	assert.Equal(t, model.NotificationTypeReviewComment, created[0].Type)
	assert.Contains(t, string(created[0].Metadata), `"comment_id":"c1"`)
}

func TestNotifierDropsGarbage(t *testing.T) {
	notifications := &fakeNotifications{}
	n := NewNotifier(NotifierConfig{Name: "notifier"}, notifications, nil)

	msg := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	assert.NoError(t, n.HandleEvent(context.Background(), eventbus.TOPIC_USER_FOLLOWED, msg))
	assert.NoError(t, n.HandleEvent(context.Background(), "topic.unknown", msg))
	assert.Empty(t, notifications.all())

	notifications.err = errors.New("db down")
	ok := encode(t, eventbus.TOPIC_USER_FOLLOWED, eventbus.UserFollowedEvent{FollowerId: "a", FolloweeId: "b"})
	assert.Error(t, n.HandleEvent(context.Background(), eventbus.TOPIC_USER_FOLLOWED, ok))
}

func TestNotifierConsumesBus(t *testing.T) {
	bus := newPersistentBus()
	notifications := &fakeNotifications{}
	n := NewNotifier(NotifierConfig{Name: "notifier"}, notifications, bus)
	publisher := eventbus.NewBusPublisher(bus)

	require.NoError(t, publisher.Publish(eventbus.TOPIC_USER_FOLLOWED, eventbus.UserFollowedEvent{FollowerId: "a", FolloweeId: "b"}))
	require.NoError(t, publisher.Publish(eventbus.TOPIC_REVIEW_COMMENTED, eventbus.ReviewCommentedEvent{ReviewUserId: "b", AuthorId: "a", GameId: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- n.RunModule(ctx) }()

	require.Eventually(t, func() bool {
		return len(notifications.all()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, bus.Close())
	assert.NoError(t, <-done)
}

func TestReporterCountsEvents(t *testing.T) {
	bus := newPersistentBus()
	metrics := newFakeMetrics()
	r := NewReporter(ReporterConfig{Name: "reporter"}, metrics, bus)
	publisher := eventbus.NewBusPublisher(bus)

	require.NoError(t, publisher.Publish(eventbus.TOPIC_REVIEW_WRITTEN, eventbus.ReviewWrittenEvent{GameId: 1, UserId: "a", Action: eventbus.ReviewCreated}))
	require.NoError(t, publisher.Publish(eventbus.TOPIC_REVIEW_WRITTEN, eventbus.ReviewWrittenEvent{GameId: 2, UserId: "a", Action: eventbus.ReviewDeleted}))
	require.NoError(t, publisher.Publish(eventbus.TOPIC_FAVORITE_CHANGED, eventbus.FavoriteChangedEvent{UserId: "a", GameId: 1, Added: true}))
	require.NoError(t, publisher.Publish(eventbus.TOPIC_USER_FOLLOWED, eventbus.UserFollowedEvent{FollowerId: "a", FolloweeId: "b"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.RunModule(ctx) }()

	require.Eventually(t, func() bool {
		return metrics.count(eventbus.DDOG_REVIEW_COUNTER) == 2 &&
			metrics.count(eventbus.DDOG_FAVORITE_COUNTER) == 1 &&
			metrics.count(eventbus.DDOG_FOLLOW_COUNTER) == 1
	}, time.Second, 5*time.Millisecond)

	metrics.mu.Lock()
	assert.Equal(t, []string{"added:true"}, metrics.tags[eventbus.DDOG_FAVORITE_COUNTER])
	metrics.mu.Unlock()
	assert.Equal(t, 0, metrics.count(eventbus.DDOG_COMMENT_COUNTER))

	cancel()
	require.NoError(t, bus.Close())
	assert.NoError(t, <-done)
}

type countingRefresher struct {
	calls int32
}

func (c *countingRefresher) RefreshDiscovery(ctx context.Context) (model.DiscoveryFeed, error) {
	atomic.AddInt32(&c.calls, 1)
	return model.DiscoveryFeed{}, errors.New("upstream down")
}

func TestRefresherRefreshesPeriodically(t *testing.T) {
	c := &countingRefresher{}
	r := NewRefresher(RefresherConfig{Name: "refresher", Interval: 5 * time.Millisecond}, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.RunModule(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&c.calls) >= 3
	}, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
